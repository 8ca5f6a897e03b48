// Package token issues and parses the signed session tokens. Access tokens
// are short-lived and carry the principal's role names; refresh tokens are
// long-lived, carry no roles, and are additionally tracked server-side in
// the refresh-token ledger.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminators. A token is only ever accepted by operations
// expecting its own type.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Parse failure modes. Handlers collapse these into a single generic
// response so callers cannot distinguish which check failed; the distinct
// values exist for server-side logging and tests.
var (
	ErrMalformed    = errors.New("malformed token")
	ErrBadSignature = errors.New("bad token signature")
	ErrExpired      = errors.New("token expired")
)

// Claims is the claim set carried by both token kinds.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	Type  string   `json:"type"`
	jwt.RegisteredClaims
}

// UserID decodes the subject claim into the principal's numeric id.
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return id, nil
}

// Manager signs and verifies tokens with a server-held HS256 key.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewManager(secret string, accessTTL, refreshTTL time.Duration) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// AccessTTL reports the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *Manager) issue(subject uint64, typ string, ttl time.Duration, roles []string) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(ttl)
	claims := Claims{
		Roles: roles,
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(subject, 10),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// IssueAccess mints an access token carrying the principal's role names.
func (m *Manager) IssueAccess(userID uint64, roles []string) (string, time.Time, error) {
	return m.issue(userID, TypeAccess, m.accessTTL, roles)
}

// IssueRefresh mints a refresh token. Refresh tokens carry no roles claim;
// roles are re-resolved from the store at rotation time.
func (m *Manager) IssueRefresh(userID uint64) (string, time.Time, error) {
	return m.issue(userID, TypeRefresh, m.refreshTTL, nil)
}

// Parse verifies signature and structure and returns the claim set. The
// three failure modes are reported distinctly. Expiry is validated here
// against the wall clock and re-checked by callers where the outcome is
// security sensitive.
func (m *Manager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, ErrMalformed
		}
	}
	if claims.ExpiresAt == nil || !m.now().Before(claims.ExpiresAt.Time) {
		// equal to expiry counts as expired
		return nil, ErrExpired
	}
	return claims, nil
}

// ParseAllowExpired verifies signature and structure but tolerates an
// expired exp claim. The refresh flow uses it so that an expired token can
// still be located in the ledger and revoked there (expire-on-read); the
// ledger's stored expiry is authoritative for the outcome.
func (m *Manager) ParseAllowExpired(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrBadSignature
		}
		return nil, ErrMalformed
	}
	return claims, nil
}

// Hash returns the SHA-256 hex digest of a signed token string. Only the
// digest of a refresh token is ever persisted, so a leaked ledger cannot be
// replayed.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
