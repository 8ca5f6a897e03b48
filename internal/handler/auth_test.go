package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/fitgate/internal/model"
	"github.com/iliyamo/fitgate/internal/queue"
	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/secrets"
	"github.com/iliyamo/fitgate/internal/service"
	"github.com/iliyamo/fitgate/internal/token"
)

// memStore is a single-user in-memory backend for handler round trips.
type memStore struct {
	user model.User
}

func (m *memStore) Create(_ context.Context, u *model.User) error {
	u.ID = 1
	m.user = *u
	return nil
}

func (m *memStore) match(u model.User, ok bool) (model.User, error) {
	if !ok || m.user.ID == 0 {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (m *memStore) ByEmail(_ context.Context, email string) (model.User, error) {
	return m.match(m.user, m.user.Email == email)
}

func (m *memStore) ByUsername(_ context.Context, username string) (model.User, error) {
	return m.match(m.user, m.user.Username == username)
}

func (m *memStore) ByID(_ context.Context, id uint64) (model.User, error) {
	return m.match(m.user, m.user.ID == id)
}

func (m *memStore) ByResetToken(_ context.Context, tok string) (model.User, error) {
	return m.match(m.user, m.user.ResetToken != nil && *m.user.ResetToken == tok)
}

func (m *memStore) ByVerificationToken(_ context.Context, tok string) (model.User, error) {
	return m.match(m.user, m.user.VerificationToken != nil && *m.user.VerificationToken == tok)
}

func (m *memStore) Update(_ context.Context, u *model.User) error {
	m.user = *u
	return nil
}

func (m *memStore) SetLastLogin(_ context.Context, _ uint64, t time.Time) error {
	m.user.LastLogin = &t
	return nil
}

func (m *memStore) RoleNames(context.Context, uint64) ([]string, error) {
	return []string{"user"}, nil
}

func (m *memStore) AssignRole(context.Context, uint64, uint64) error { return nil }

type memRoles struct{}

func (memRoles) Default(context.Context) (model.Role, error) {
	return model.Role{}, repository.ErrNotFound
}

type memLedger struct {
	active map[string]time.Time
}

func (m *memLedger) Record(_ context.Context, _ uint64, hash string, exp time.Time) error {
	m.active[hash] = exp
	return nil
}

func (m *memLedger) FindActive(_ context.Context, hash string, userID uint64) (model.RefreshToken, error) {
	exp, ok := m.active[hash]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return model.RefreshToken{UserID: userID, TokenHash: hash, ExpiresAt: exp}, nil
}

func (m *memLedger) Revoke(_ context.Context, hash string) error {
	delete(m.active, hash)
	return nil
}

func (m *memLedger) RevokeAllForUser(context.Context, uint64) error {
	m.active = map[string]time.Time{}
	return nil
}

func (m *memLedger) Rotate(_ context.Context, _ uint64, oldHash, newHash string, exp time.Time) error {
	if _, ok := m.active[oldHash]; !ok {
		return repository.ErrTokenConsumed
	}
	delete(m.active, oldHash)
	m.active[newHash] = exp
	return nil
}

type dropMailer struct{}

func (dropMailer) Send(context.Context, queue.EmailRequested) error { return nil }

func testHandler(t *testing.T) (*AuthHandler, *memStore) {
	t.Helper()
	store := &memStore{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	tm := token.NewManager("test-secret", 15*time.Minute, time.Hour)
	svc := service.NewAuthService(store, memRoles{}, &memLedger{active: map[string]time.Time{}}, tm, dropMailer{}, service.Config{
		Issuer:          "fitgate",
		FrontendURL:     "https://app.example.com",
		BcryptCost:      bcrypt.MinCost,
		VerificationTTL: time.Hour,
		ResetTTL:        time.Hour,
	}, log)
	return NewAuthHandler(svc, log), store
}

func jsonCtx(t *testing.T, method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func seedAccount(t *testing.T, store *memStore, mutate ...func(*model.User)) {
	t.Helper()
	hash, err := secrets.HashPassword("pass1234", bcrypt.MinCost)
	require.NoError(t, err)
	u := model.User{
		ID:           1,
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: hash,
		IsActive:     true,
		IsVerified:   true,
	}
	for _, m := range mutate {
		m(&u)
	}
	store.user = u
}

func TestRegisterAndLoginRoundTrip(t *testing.T) {
	t.Parallel()
	h, store := testHandler(t)

	c, rec := jsonCtx(t, http.MethodPost, "/v1/auth/register",
		`{"email":"Alice@Example.com","username":"alice","password":"pass1234"}`)
	require.NoError(t, h.Register(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	// email is lowercased before storage, secrets never leave the server
	assert.Equal(t, "alice@example.com", created["email"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Equal(t, "alice@example.com", store.user.Email)

	c, rec = jsonCtx(t, http.MethodPost, "/v1/auth/login",
		`{"identifier":"alice@example.com","password":"pass1234"}`)
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	assert.Equal(t, "bearer", tokens["token_type"])
	assert.NotEmpty(t, tokens["access_token"])
	assert.NotEmpty(t, tokens["refresh_token"])
	assert.Greater(t, tokens["expires_at"].(float64), float64(time.Now().Unix()))
}

func TestLoginTwoFactorChallenge(t *testing.T) {
	t.Parallel()
	h, store := testHandler(t)
	secret := "JBSWY3DPEHPK3PXP"
	seedAccount(t, store, func(u *model.User) {
		u.TwoFactorEnabled = true
		u.TwoFactorSecret = &secret
	})

	c, rec := jsonCtx(t, http.MethodPost, "/v1/auth/login",
		`{"identifier":"alice","password":"pass1234"}`)
	require.NoError(t, h.Login(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "two_factor_required", body["detail"])
	assert.Equal(t, float64(1), body["user_id"])
	assert.NotContains(t, body, "access_token")
}

func TestLoginFailureStatuses(t *testing.T) {
	t.Parallel()
	h, store := testHandler(t)
	seedAccount(t, store)

	cases := []struct {
		name string
		body string
		code int
	}{
		{"missing fields", `{"identifier":"alice"}`, http.StatusBadRequest},
		{"wrong password", `{"identifier":"alice","password":"nope"}`, http.StatusUnauthorized},
		{"unknown identifier", `{"identifier":"ghost","password":"pass1234"}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := jsonCtx(t, http.MethodPost, "/v1/auth/login", tc.body)
			require.NoError(t, h.Login(c))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()
	h, store := testHandler(t)
	seedAccount(t, store)

	c, rec := jsonCtx(t, http.MethodPost, "/v1/auth/login",
		`{"identifier":"alice","password":"pass1234"}`)
	require.NoError(t, h.Login(c))
	var tokens map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tokens))
	refresh := tokens["refresh_token"].(string)

	c, rec = jsonCtx(t, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	// the consumed token is rejected on replay
	c, rec = jsonCtx(t, http.MethodPost, "/v1/auth/refresh",
		`{"refresh_token":"`+refresh+`"}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = jsonCtx(t, http.MethodPost, "/v1/auth/refresh", `{}`)
	require.NoError(t, h.Refresh(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestPasswordResetUniformResponse(t *testing.T) {
	t.Parallel()
	h, store := testHandler(t)
	seedAccount(t, store)

	for _, email := range []string{"alice@example.com", "ghost@example.com"} {
		c, rec := jsonCtx(t, http.MethodPost, "/v1/auth/request-password-reset",
			`{"email":"`+email+`"}`)
		require.NoError(t, h.RequestPasswordReset(c))
		assert.Equal(t, http.StatusOK, rec.Code, "email %s", email)
	}
}

func TestFailMapping(t *testing.T) {
	t.Parallel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cases := []struct {
		err  error
		code int
	}{
		{service.ErrInvalidCredentials, http.StatusUnauthorized},
		{service.ErrInvalidToken, http.StatusUnauthorized},
		{service.ErrTokenExpired, http.StatusUnauthorized},
		{service.ErrInvalidCode, http.StatusUnauthorized},
		{service.ErrInactiveAccount, http.StatusBadRequest},
		{service.ErrInvalidState, http.StatusBadRequest},
		{service.ErrNotConfigured, http.StatusBadRequest},
		{repository.ErrRoleInUse, http.StatusBadRequest},
		{repository.ErrDuplicateEmail, http.StatusConflict},
		{repository.ErrDuplicateUsername, http.StatusConflict},
		{repository.ErrDuplicateRole, http.StatusConflict},
		{repository.ErrNotFound, http.StatusNotFound},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			c, rec := jsonCtx(t, http.MethodGet, "/", "")
			require.NoError(t, fail(c, log, tc.err))
			assert.Equal(t, tc.code, rec.Code)
			// persistence details never reach the client
			if tc.code == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "connection reset")
			}
		})
	}
}
