package service

import "errors"

// Expected, user-facing outcomes of the auth flows. Handlers map these onto
// HTTP statuses; anything else that escapes the service is treated as an
// internal failure and surfaced generically.
var (
	// ErrInvalidCredentials covers both unknown identifier and password
	// mismatch so responses cannot be used for account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email/username or password")

	// ErrInactiveAccount is returned for a soft-deleted account.
	ErrInactiveAccount = errors.New("inactive user")

	// ErrInvalidToken covers malformed, bad-signature, wrong-type and
	// not-found-in-ledger refresh tokens. Deliberately undifferentiated.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a presented single-use or refresh
	// token is past its stored expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidCode is returned for a failed TOTP check.
	ErrInvalidCode = errors.New("invalid authentication code")

	// ErrInvalidState is returned when a 2FA challenge is answered for an
	// account that has no enabled second factor.
	ErrInvalidState = errors.New("two-factor authentication not enabled")

	// ErrNotConfigured is returned when 2FA setup verification runs without
	// a pending secret.
	ErrNotConfigured = errors.New("two-factor authentication not set up")
)
