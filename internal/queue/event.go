// Package queue defines the outbound email events exchanged over the
// message broker and the consumer that delivers them.
package queue

// Email kinds understood by the consumer. Each kind selects a subject line
// and a body template.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
)

// EmailRequested is published whenever the auth flow needs a message sent:
// account verification links and password-reset links. Delivery is
// fire-and-forget; the publishing request never waits on the broker or the
// SMTP server.
type EmailRequested struct {
	Kind        string `json:"kind"`
	To          string `json:"to"`
	URL         string `json:"url"`
	RequestedAt string `json:"requested_at"`
}
