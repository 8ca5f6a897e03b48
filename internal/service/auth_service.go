// Package service implements the authentication lifecycle as guarded
// transitions over the credential codec, the token issuer and the
// refresh-token ledger. Handlers stay thin; every security-relevant
// decision lives here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/fitgate/internal/model"
	"github.com/iliyamo/fitgate/internal/queue"
	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/secrets"
	"github.com/iliyamo/fitgate/internal/token"
)

// UserStore is the persistence contract the auth flows need for principals.
// *repository.UserRepo satisfies it.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	ByEmail(ctx context.Context, email string) (model.User, error)
	ByUsername(ctx context.Context, username string) (model.User, error)
	ByID(ctx context.Context, id uint64) (model.User, error)
	ByResetToken(ctx context.Context, tok string) (model.User, error)
	ByVerificationToken(ctx context.Context, tok string) (model.User, error)
	Update(ctx context.Context, u *model.User) error
	SetLastLogin(ctx context.Context, id uint64, t time.Time) error
	RoleNames(ctx context.Context, userID uint64) ([]string, error)
	AssignRole(ctx context.Context, userID, roleID uint64) error
}

// RoleStore resolves the registration default role.
// *repository.RoleRepo satisfies it.
type RoleStore interface {
	Default(ctx context.Context) (model.Role, error)
}

// TokenLedger is the persisted record of issued refresh tokens.
// *repository.RefreshTokenRepo satisfies it.
type TokenLedger interface {
	Record(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error
	FindActive(ctx context.Context, tokenHash string, userID uint64) (model.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
	Rotate(ctx context.Context, userID uint64, oldHash, newHash string, expiresAt time.Time) error
}

// Mailer dispatches outbound email events. *queue.Publisher satisfies it.
type Mailer interface {
	Send(ctx context.Context, ev queue.EmailRequested) error
}

// Config carries the tunables of the auth flows.
type Config struct {
	Issuer          string        // name shown in authenticator apps
	FrontendURL     string        // base URL for links embedded in emails
	BcryptCost      int           // password hashing cost
	VerificationTTL time.Duration // email-verification token lifetime
	ResetTTL        time.Duration // password-reset token lifetime
}

// AuthService orchestrates login, refresh, logout, password reset, email
// verification and two-factor enrollment.
type AuthService struct {
	users  UserStore
	roles  RoleStore
	ledger TokenLedger
	tokens *token.Manager
	mailer Mailer
	cfg    Config
	log    *slog.Logger
	now    func() time.Time
}

func NewAuthService(users UserStore, roles RoleStore, ledger TokenLedger, tokens *token.Manager, mailer Mailer, cfg Config, log *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		roles:  roles,
		ledger: ledger,
		tokens: tokens,
		mailer: mailer,
		cfg:    cfg,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// TokenPair is the successful outcome of login, 2FA completion and refresh.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// LoginResult distinguishes a completed login from a pending 2FA challenge.
// When TwoFactorRequired is set, only UserID is populated and no tokens
// have been issued.
type LoginResult struct {
	TwoFactorRequired bool
	UserID            uint64
	Tokens            TokenPair
}

// expired implements the uniform expiry rule: equal to expiry counts as
// expired.
func (s *AuthService) expired(t time.Time) bool {
	return !s.now().Before(t)
}

// sendMail dispatches an email event without blocking the request that
// triggered it. Failures are logged, never surfaced.
func (s *AuthService) sendMail(kind, to, url string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.mailer.Send(ctx, queue.EmailRequested{Kind: kind, To: to, URL: url}); err != nil {
			s.log.Error("email dispatch failed", "kind", kind, "err", err)
		}
	}()
}

// completeLogin performs the shared success path of Login and
// VerifyTwoFactor: last-login stamp, token pair issuance and ledger record.
func (s *AuthService) completeLogin(ctx context.Context, u model.User) (TokenPair, error) {
	if err := s.users.SetLastLogin(ctx, u.ID, s.now()); err != nil {
		return TokenPair{}, fmt.Errorf("stamp last login: %w", err)
	}
	roles, err := s.users.RoleNames(ctx, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("resolve roles: %w", err)
	}
	access, accessExp, err := s.tokens.IssueAccess(u.ID, roles)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.ledger.Record(ctx, u.ID, token.Hash(refresh), refreshExp); err != nil {
		return TokenPair{}, fmt.Errorf("record refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, AccessExpiresAt: accessExp, RefreshToken: refresh}, nil
}

// Login authenticates an identifier (email or username) and password.
// Unknown identifier and wrong password produce the identical
// ErrInvalidCredentials. Accounts with 2FA enabled get a challenge result
// instead of tokens.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	u, err := s.users.ByEmail(ctx, identifier)
	if errors.Is(err, repository.ErrNotFound) {
		u, err = s.users.ByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if !secrets.VerifyPassword(u.PasswordHash, password) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return LoginResult{}, ErrInactiveAccount
	}
	if u.TwoFactorEnabled {
		return LoginResult{TwoFactorRequired: true, UserID: u.ID}, nil
	}
	pair, err := s.completeLogin(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{UserID: u.ID, Tokens: pair}, nil
}

// VerifyTwoFactor completes a pending login challenge with a TOTP code.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, userID uint64, code string) (TokenPair, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrInvalidState
		}
		return TokenPair{}, err
	}
	if !u.TwoFactorEnabled || u.TwoFactorSecret == nil {
		return TokenPair{}, ErrInvalidState
	}
	if !secrets.VerifyTOTP(*u.TwoFactorSecret, code) {
		return TokenPair{}, ErrInvalidCode
	}
	return s.completeLogin(ctx, u)
}

// Refresh exchanges a valid refresh token for a new pair, rotating the
// ledger entry. All decode, type and lookup failures collapse into
// ErrInvalidToken; only a ledger row past its stored expiry yields
// ErrTokenExpired, and that row is revoked on first use (expire-on-read).
func (s *AuthService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := s.tokens.ParseAllowExpired(raw)
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	if claims.Type != token.TypeRefresh {
		return TokenPair{}, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return TokenPair{}, ErrInvalidToken
	}
	hash := token.Hash(raw)

	entry, err := s.ledger.FindActive(ctx, hash, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if s.expired(entry.ExpiresAt) {
		if err := s.ledger.Revoke(ctx, hash); err != nil {
			s.log.Error("revoke expired refresh token failed", "err", err)
		}
		return TokenPair{}, ErrTokenExpired
	}

	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if !u.IsActive {
		return TokenPair{}, ErrInvalidToken
	}

	roles, err := s.users.RoleNames(ctx, u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("resolve roles: %w", err)
	}
	access, accessExp, err := s.tokens.IssueAccess(u.ID, roles)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	newRefresh, refreshExp, err := s.tokens.IssueRefresh(u.ID)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	// Fail-closed: the old row's revocation and the new row commit together
	// or not at all. A concurrent double-refresh loses the guarded update
	// and gets ErrInvalidToken.
	if err := s.ledger.Rotate(ctx, u.ID, hash, token.Hash(newRefresh), refreshExp); err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, AccessExpiresAt: accessExp, RefreshToken: newRefresh}, nil
}

// Logout revokes the caller's ledger entry for the presented refresh token.
// Idempotent: an unknown or already-revoked token is not an error.
func (s *AuthService) Logout(ctx context.Context, userID uint64, raw string) error {
	hash := token.Hash(raw)
	if _, err := s.ledger.FindActive(ctx, hash, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	return s.ledger.Revoke(ctx, hash)
}

// RequestPasswordReset begins the reset flow. It reports success regardless
// of whether the email is known or the account active, so responses cannot
// be used for enumeration; a reset token and email are produced only when
// an active account exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	u, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return err
	}
	if !u.IsActive {
		return nil
	}
	tok, err := secrets.OpaqueToken()
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	exp := s.now().Add(s.cfg.ResetTTL)
	u.ResetToken = &tok
	u.ResetExpires = &exp
	if err := s.users.Update(ctx, &u); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	s.sendMail(queue.EmailPasswordReset, u.Email, fmt.Sprintf("%s/reset-password?token=%s", s.cfg.FrontendURL, tok))
	return nil
}

// ResetPassword completes the reset flow: the token is consumed, the new
// password hash stored and every existing session revoked.
func (s *AuthService) ResetPassword(ctx context.Context, tok, newPassword string) error {
	u, err := s.users.ByResetToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if u.ResetExpires == nil || s.expired(*u.ResetExpires) {
		return ErrTokenExpired
	}
	hash, err := secrets.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	u.ResetToken = nil
	u.ResetExpires = nil
	if err := s.users.Update(ctx, &u); err != nil {
		return fmt.Errorf("store new password: %w", err)
	}
	if err := s.ledger.RevokeAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// VerifyEmailResult reports the outcome of an email-verification attempt.
// When the stored token had expired, a fresh one is issued instead of
// failing outright and VerificationURL carries the new link.
type VerifyEmailResult struct {
	Reissued        bool
	VerificationURL string
}

// VerifyEmail consumes a verification token, marking the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, tok string) (VerifyEmailResult, error) {
	u, err := s.users.ByVerificationToken(ctx, tok)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return VerifyEmailResult{}, ErrInvalidToken
		}
		return VerifyEmailResult{}, err
	}
	if u.VerificationExpires == nil || s.expired(*u.VerificationExpires) {
		fresh, err := secrets.OpaqueToken()
		if err != nil {
			return VerifyEmailResult{}, fmt.Errorf("generate verification token: %w", err)
		}
		exp := s.now().Add(s.cfg.VerificationTTL)
		u.VerificationToken = &fresh
		u.VerificationExpires = &exp
		if err := s.users.Update(ctx, &u); err != nil {
			return VerifyEmailResult{}, fmt.Errorf("store verification token: %w", err)
		}
		return VerifyEmailResult{
			Reissued:        true,
			VerificationURL: fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, fresh),
		}, nil
	}
	u.IsVerified = true
	u.VerificationToken = nil
	u.VerificationExpires = nil
	if err := s.users.Update(ctx, &u); err != nil {
		return VerifyEmailResult{}, fmt.Errorf("mark verified: %w", err)
	}
	return VerifyEmailResult{}, nil
}

// SetupTwoFactor either begins enrollment (a new secret is persisted but
// not yet enabled) or disables 2FA entirely. Disabling revokes every
// existing session.
func (s *AuthService) SetupTwoFactor(ctx context.Context, userID uint64, enable bool) (secrets.TOTPEnrollment, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return secrets.TOTPEnrollment{}, err
	}
	if enable {
		enr, err := secrets.NewTOTPEnrollment(s.cfg.Issuer, u.Email)
		if err != nil {
			return secrets.TOTPEnrollment{}, fmt.Errorf("generate totp secret: %w", err)
		}
		u.TwoFactorSecret = &enr.Secret
		if err := s.users.Update(ctx, &u); err != nil {
			return secrets.TOTPEnrollment{}, fmt.Errorf("store totp secret: %w", err)
		}
		return enr, nil
	}
	u.TwoFactorSecret = nil
	u.TwoFactorEnabled = false
	if err := s.users.Update(ctx, &u); err != nil {
		return secrets.TOTPEnrollment{}, fmt.Errorf("disable 2fa: %w", err)
	}
	if err := s.ledger.RevokeAllForUser(ctx, u.ID); err != nil {
		return secrets.TOTPEnrollment{}, fmt.Errorf("revoke sessions: %w", err)
	}
	return secrets.TOTPEnrollment{}, nil
}

// VerifyTwoFactorSetup confirms enrollment with a code from the pending
// secret, enables 2FA and forces re-authentication by revoking all
// sessions.
func (s *AuthService) VerifyTwoFactorSetup(ctx context.Context, userID uint64, code string) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.TwoFactorSecret == nil {
		return ErrNotConfigured
	}
	if !secrets.VerifyTOTP(*u.TwoFactorSecret, code) {
		return ErrInvalidCode
	}
	u.TwoFactorEnabled = true
	if err := s.users.Update(ctx, &u); err != nil {
		return fmt.Errorf("enable 2fa: %w", err)
	}
	if err := s.ledger.RevokeAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// ChangePassword verifies the current password before storing the new hash
// and revoking every existing session.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint64, current, newPassword string) error {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return err
	}
	if !secrets.VerifyPassword(u.PasswordHash, current) {
		return ErrInvalidCredentials
	}
	hash, err := secrets.HashPassword(newPassword, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	if err := s.users.Update(ctx, &u); err != nil {
		return fmt.Errorf("store new password: %w", err)
	}
	if err := s.ledger.RevokeAllForUser(ctx, u.ID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// AdminSetPassword hashes a plain password onto the user with the service's
// configured cost. Used by the administrative update path; sessions are not
// revoked there, matching the self-service semantics only for ChangePassword.
func (s *AuthService) AdminSetPassword(u *model.User, plain string) error {
	hash, err := secrets.HashPassword(plain, s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash
	return nil
}

// RegisterInput is the payload of a registration request.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an unverified account, assigns the default role when one
// is configured and dispatches the verification email.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	hash, err := secrets.HashPassword(in.Password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	tok, err := secrets.OpaqueToken()
	if err != nil {
		return model.User{}, fmt.Errorf("generate verification token: %w", err)
	}
	exp := s.now().Add(s.cfg.VerificationTTL)
	u := model.User{
		Email:               in.Email,
		Username:            in.Username,
		PasswordHash:        hash,
		FirstName:           in.FirstName,
		LastName:            in.LastName,
		IsActive:            true,
		VerificationToken:   &tok,
		VerificationExpires: &exp,
	}
	if err := s.users.Create(ctx, &u); err != nil {
		return model.User{}, err
	}
	if role, err := s.roles.Default(ctx); err == nil {
		if err := s.users.AssignRole(ctx, u.ID, role.ID); err != nil {
			s.log.Error("assign default role failed", "user_id", u.ID, "err", err)
		}
	} else if !errors.Is(err, repository.ErrNotFound) {
		s.log.Error("resolve default role failed", "err", err)
	}
	s.sendMail(queue.EmailVerification, u.Email, fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, tok))
	return u, nil
}

// ProfileUpdate carries a partial self-service profile change. Nil fields
// are left untouched.
type ProfileUpdate struct {
	Email     *string
	Username  *string
	FirstName *string
	LastName  *string
	Password  *string
}

// UpdateProfile applies a self-service profile change. Changing the email
// address restarts verification: the account drops back to unverified and a
// fresh verification link is mailed to the new address.
func (s *AuthService) UpdateProfile(ctx context.Context, userID uint64, in ProfileUpdate) (model.User, error) {
	u, err := s.users.ByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	var reverify string
	if in.Email != nil && *in.Email != u.Email {
		tok, err := secrets.OpaqueToken()
		if err != nil {
			return model.User{}, fmt.Errorf("generate verification token: %w", err)
		}
		exp := s.now().Add(s.cfg.VerificationTTL)
		u.Email = *in.Email
		u.IsVerified = false
		u.VerificationToken = &tok
		u.VerificationExpires = &exp
		reverify = tok
	}
	if in.Username != nil {
		u.Username = *in.Username
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Password != nil {
		hash, err := secrets.HashPassword(*in.Password, s.cfg.BcryptCost)
		if err != nil {
			return model.User{}, fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
	}
	if err := s.users.Update(ctx, &u); err != nil {
		return model.User{}, err
	}
	if reverify != "" {
		s.sendMail(queue.EmailVerification, u.Email, fmt.Sprintf("%s/verify-email?token=%s", s.cfg.FrontendURL, reverify))
	}
	return u, nil
}
