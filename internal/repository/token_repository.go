package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/fitgate/internal/model"
)

// RefreshTokenRepo is the ledger of issued refresh tokens. Tokens are stored
// as SHA-256 hashes; rows are revoked in place and never deleted so that a
// presented token can always be classified as active, revoked or unknown.
type RefreshTokenRepo struct{ DB *sql.DB }

func NewRefreshTokenRepo(db *sql.DB) *RefreshTokenRepo { return &RefreshTokenRepo{DB: db} }

// Record inserts a new non-revoked ledger row. Exactly one call per issued
// refresh token.
func (r *RefreshTokenRepo) Record(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, tokenHash, expiresAt)
	return err
}

// FindActive returns the non-revoked ledger row for the given hash and
// owner. Expiry is deliberately not checked here; callers compare against
// the clock themselves and decide whether to revoke.
func (r *RefreshTokenRepo) FindActive(ctx context.Context, tokenHash string, userID uint64) (model.RefreshToken, error) {
	var (
		t         model.RefreshToken
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, revoked_at, created_at
		 FROM refresh_tokens
		 WHERE token_hash=? AND user_id=? AND revoked_at IS NULL LIMIT 1`,
		tokenHash, userID).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &revokedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RefreshToken{}, ErrNotFound
		}
		return model.RefreshToken{}, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// Revoke marks a token as revoked. Revoking an already-revoked token is a
// no-op.
func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return err
}

// RevokeAllForUser revokes every active token owned by the user. Used on
// logout-everywhere events: password change/reset and 2FA state changes.
func (r *RefreshTokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE user_id=? AND revoked_at IS NULL",
		userID)
	return err
}

// Rotate atomically revokes the presented token row and records its
// replacement. The revoke is guarded on revoked_at IS NULL: when a
// concurrent rotation got there first, zero rows are affected, the
// transaction aborts with ErrTokenConsumed and no replacement is written.
func (r *RefreshTokenRepo) Rotate(ctx context.Context, userID uint64, oldHash, newHash string, expiresAt time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=NOW() WHERE token_hash=? AND user_id=? AND revoked_at IS NULL",
		oldHash, userID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTokenConsumed
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		userID, newHash, expiresAt); err != nil {
		return err
	}
	return tx.Commit()
}
