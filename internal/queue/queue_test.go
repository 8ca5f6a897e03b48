package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderVerification(t *testing.T) {
	t.Parallel()
	subject, body, err := render(EmailRequested{
		Kind: EmailVerification,
		To:   "alice@example.com",
		URL:  "https://app.example.com/verify-email?token=abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "Verify your email address", subject)
	assert.Contains(t, body, "https://app.example.com/verify-email?token=abc")
}

func TestRenderPasswordReset(t *testing.T) {
	t.Parallel()
	subject, body, err := render(EmailRequested{
		Kind: EmailPasswordReset,
		To:   "alice@example.com",
		URL:  "https://app.example.com/reset-password?token=abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "Password reset request", subject)
	assert.Contains(t, body, "https://app.example.com/reset-password?token=abc")
}

func TestRenderUnknownKind(t *testing.T) {
	t.Parallel()
	_, _, err := render(EmailRequested{Kind: "newsletter"})
	assert.Error(t, err)
}

func TestSMTPConfigFromEnvDefaults(t *testing.T) {
	t.Setenv("SMTP_HOST", "")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("SMTP_USER", "")
	t.Setenv("SMTP_PASSWORD", "")
	t.Setenv("EMAIL_FROM", "")
	t.Setenv("EMAIL_FROM_NAME", "")

	cfg := SMTPConfigFromEnv()
	assert.Equal(t, 587, cfg.Port)
	assert.Equal(t, "noreply@fitgate.local", cfg.From)
	assert.Empty(t, cfg.User)
}

func TestSMTPConfigFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.example.com")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("SMTP_PASSWORD", "hunter2")
	t.Setenv("EMAIL_FROM", "auth@example.com")
	t.Setenv("EMAIL_FROM_NAME", "Fitgate")

	cfg := SMTPConfigFromEnv()
	assert.Equal(t, "mail.example.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
	assert.Equal(t, "mailer", cfg.User)
	assert.Equal(t, "auth@example.com", cfg.From)
	assert.Equal(t, "Fitgate", cfg.FromName)
}
