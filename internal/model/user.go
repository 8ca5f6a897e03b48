package model

import "time"

// User represents a row in the `users` table. Nullable columns map to
// pointers so that a missing token or secret is distinguishable from an
// empty string. The password hash and two-factor secret must never appear
// in API responses; handlers define their own response types.
//
// Fields:
//  ID                  – primary key identifier of the user.
//  Email               – unique email address (stored lowercased).
//  Username            – unique handle.
//  PasswordHash        – bcrypt hashed password.
//  FirstName/LastName  – optional display names.
//  IsActive            – soft-delete flag; deactivated users cannot sign in.
//  IsSuperuser         – bypasses role checks in the authorization gate.
//  IsVerified          – set once the email address has been confirmed.
//  VerificationToken   – pending single-use email-verification token.
//  VerificationExpires – expiry of the verification token.
//  ResetToken          – pending single-use password-reset token.
//  ResetExpires        – expiry of the reset token.
//  TwoFactorSecret     – base32 TOTP secret; set during enrollment and may be
//                        present while TwoFactorEnabled is still false.
//  TwoFactorEnabled    – whether login requires a TOTP challenge.
//  LastLogin           – timestamp of the last successful authentication.
type User struct {
	ID                  uint64
	Email               string
	Username            string
	PasswordHash        string
	FirstName           string
	LastName            string
	IsActive            bool
	IsSuperuser         bool
	IsVerified          bool
	VerificationToken   *string
	VerificationExpires *time.Time
	ResetToken          *string
	ResetExpires        *time.Time
	TwoFactorSecret     *string
	TwoFactorEnabled    bool
	LastLogin           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Role is a named capability bucket. Users and roles are related through the
// `user_roles` join table. At most one role carries IsDefault at any time;
// that role is assigned automatically at registration.
type Role struct {
	ID          uint64
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RefreshToken models an entry in the `refresh_tokens` ledger. Each issued
// refresh token has exactly one row; rows are revoked, never deleted. The
// signed token string itself is not stored, only its SHA-256 hex digest.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the signed token string.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null while still active).
//  CreatedAt – timestamp of issuance.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
