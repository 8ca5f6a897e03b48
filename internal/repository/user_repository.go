package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/fitgate/internal/model"
)

const userColumns = `id,email,username,password_hash,first_name,last_name,
is_active,is_superuser,is_verified,
verification_token,verification_expires_at,
reset_token,reset_expires_at,
two_factor_secret,two_factor_enabled,
last_login,created_at,updated_at`

// UserRepo provides access to the `users` table and the `user_roles` join
// table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u          model.User
		first      sql.NullString
		last       sql.NullString
		verTok     sql.NullString
		verExp     sql.NullTime
		resetTok   sql.NullString
		resetExp   sql.NullTime
		totpSecret sql.NullString
		lastLogin  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &first, &last,
		&u.IsActive, &u.IsSuperuser, &u.IsVerified,
		&verTok, &verExp, &resetTok, &resetExp,
		&totpSecret, &u.TwoFactorEnabled,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	u.FirstName = first.String
	u.LastName = last.String
	if verTok.Valid {
		u.VerificationToken = &verTok.String
	}
	if verExp.Valid {
		u.VerificationExpires = &verExp.Time
	}
	if resetTok.Valid {
		u.ResetToken = &resetTok.String
	}
	if resetExp.Valid {
		u.ResetExpires = &resetExp.Time
	}
	if totpSecret.Valid {
		u.TwoFactorSecret = &totpSecret.String
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	return u, nil
}

// Create inserts a user and fills in its ID. Duplicate email or username
// collisions are reported as ErrDuplicateEmail / ErrDuplicateUsername.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (email,username,password_hash,first_name,last_name,
		 is_active,is_superuser,is_verified,verification_token,verification_expires_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		u.Email, u.Username, u.PasswordHash, nullStr(u.FirstName), nullStr(u.LastName),
		u.IsActive, u.IsSuperuser, u.IsVerified, u.VerificationToken, u.VerificationExpires)
	if err != nil {
		return dupUserErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// dupUserErr maps a MySQL 1062 duplicate-key error onto the field-specific
// sentinel by inspecting the violated index name.
func dupUserErr(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return err
	}
	if strings.Contains(msg, "username") {
		return ErrDuplicateUsername
	}
	return ErrDuplicateEmail
}

// ByEmail fetches a user by normalized email.
func (r *UserRepo) ByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// ByUsername fetches a user by handle.
func (r *UserRepo) ByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username))
}

// ByID fetches a user by id.
func (r *UserRepo) ByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// ByResetToken fetches an active user holding the given password-reset token.
func (r *UserRepo) ByResetToken(ctx context.Context, token string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE reset_token=? AND is_active=TRUE LIMIT 1", token))
}

// ByVerificationToken fetches an active user holding the given
// email-verification token.
func (r *UserRepo) ByVerificationToken(ctx context.Context, token string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE verification_token=? AND is_active=TRUE LIMIT 1", token))
}

// Update writes all mutable columns of the user row.
func (r *UserRepo) Update(ctx context.Context, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET email=?,username=?,password_hash=?,first_name=?,last_name=?,
		 is_active=?,is_superuser=?,is_verified=?,
		 verification_token=?,verification_expires_at=?,
		 reset_token=?,reset_expires_at=?,
		 two_factor_secret=?,two_factor_enabled=?,last_login=?
		 WHERE id=?`,
		u.Email, u.Username, u.PasswordHash, nullStr(u.FirstName), nullStr(u.LastName),
		u.IsActive, u.IsSuperuser, u.IsVerified,
		u.VerificationToken, u.VerificationExpires,
		u.ResetToken, u.ResetExpires,
		u.TwoFactorSecret, u.TwoFactorEnabled, u.LastLogin,
		u.ID)
	if err != nil {
		return dupUserErr(err)
	}
	return nil
}

// SetLastLogin stamps the last successful authentication time.
func (r *UserRepo) SetLastLogin(ctx context.Context, id uint64, t time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login=? WHERE id=?", t, id)
	return err
}

// Deactivate soft-deletes a user by flipping is_active. Rows are never
// physically removed.
func (r *UserRepo) Deactivate(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET is_active=FALSE WHERE id=?", id)
	return err
}

// List returns a page of users ordered by id.
func (r *UserRepo) List(ctx context.Context, offset, limit int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,email,username,first_name,last_name,is_active,is_superuser,is_verified,two_factor_enabled,last_login,created_at,updated_at FROM users ORDER BY id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		var (
			u         model.User
			first     sql.NullString
			last      sql.NullString
			lastLogin sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &first, &last,
			&u.IsActive, &u.IsSuperuser, &u.IsVerified, &u.TwoFactorEnabled,
			&lastLogin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.FirstName = first.String
		u.LastName = last.String
		if lastLogin.Valid {
			u.LastLogin = &lastLogin.Time
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// RoleNames returns the names of all roles assigned to the user.
func (r *UserRepo) RoleNames(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.name FROM roles r
		 JOIN user_roles ur ON ur.role_id=r.id
		 WHERE ur.user_id=?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// AssignRole links a role to a user. Assigning an already-assigned role is
// a no-op.
func (r *UserRepo) AssignRole(ctx context.Context, userID, roleID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?,?)", userID, roleID)
	return err
}

// ReplaceRoles swaps the user's role set for the given role ids in one
// transaction. Unknown role ids are skipped.
func (r *UserRepo) ReplaceRoles(ctx context.Context, userID uint64, roleIDs []uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=?", userID); err != nil {
		return err
	}
	for _, rid := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE id=?",
			userID, rid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
