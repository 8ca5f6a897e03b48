package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/fitgate/internal/model"
)

// RoleRepo provides access to the `roles` table. The single global invariant
// it owns is that at most one role carries is_default at any time; every
// write that sets the flag clears the previous holder inside the same
// transaction.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

func scanRole(row *sql.Row) (model.Role, error) {
	var (
		role model.Role
		desc sql.NullString
	)
	err := row.Scan(&role.ID, &role.Name, &desc, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Role{}, ErrNotFound
		}
		return model.Role{}, err
	}
	role.Description = desc.String
	return role, nil
}

// Create inserts a role. Setting is_default clears the previous default
// atomically.
func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if role.IsDefault {
		if _, err := tx.ExecContext(ctx, "UPDATE roles SET is_default=FALSE WHERE is_default=TRUE"); err != nil {
			return err
		}
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO roles (name, description, is_default) VALUES (?,?,?)",
		role.Name, nullStr(role.Description), role.IsDefault)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateRole
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	role.ID = uint64(id)
	return tx.Commit()
}

// Update writes name, description and the default flag. Promoting a role to
// default demotes the previous one in the same transaction.
func (r *RoleRepo) Update(ctx context.Context, role *model.Role) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if role.IsDefault {
		if _, err := tx.ExecContext(ctx,
			"UPDATE roles SET is_default=FALSE WHERE is_default=TRUE AND id<>?", role.ID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE roles SET name=?, description=?, is_default=? WHERE id=?",
		role.Name, nullStr(role.Description), role.IsDefault, role.ID); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateRole
		}
		return err
	}
	return tx.Commit()
}

// ByID fetches a role by id.
func (r *RoleRepo) ByID(ctx context.Context, id uint64) (model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx,
		"SELECT id,name,description,is_default,created_at,updated_at FROM roles WHERE id=? LIMIT 1", id))
}

// ByName fetches a role by its unique name.
func (r *RoleRepo) ByName(ctx context.Context, name string) (model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx,
		"SELECT id,name,description,is_default,created_at,updated_at FROM roles WHERE name=? LIMIT 1", name))
}

// Default returns the role flagged as the registration default, or
// ErrNotFound when none is configured.
func (r *RoleRepo) Default(ctx context.Context) (model.Role, error) {
	return scanRole(r.DB.QueryRowContext(ctx,
		"SELECT id,name,description,is_default,created_at,updated_at FROM roles WHERE is_default=TRUE LIMIT 1"))
}

// List returns all roles ordered by id.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,name,description,is_default,created_at,updated_at FROM roles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Role
	for rows.Next() {
		var (
			role model.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.IsDefault, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.Description = desc.String
		out = append(out, role)
	}
	return out, rows.Err()
}

// Delete removes an unassigned role. Roles still linked to users are
// refused with ErrRoleInUse.
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	var n int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_roles WHERE role_id=?", id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ErrRoleInUse
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM roles WHERE id=?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
