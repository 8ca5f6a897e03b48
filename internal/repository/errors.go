// Package repository defines error values that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth service and handlers to distinguish between failure scenarios
// without inspecting driver-specific errors.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no row. Repositories
// translate sql.ErrNoRows into this value so callers never depend on
// database/sql directly.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned when an insert or update collides with the
// unique index on users.email.
var ErrDuplicateEmail = errors.New("email already exists")

// ErrDuplicateUsername is returned when an insert or update collides with
// the unique index on users.username.
var ErrDuplicateUsername = errors.New("username already exists")

// ErrDuplicateRole is returned when a role name collides with an existing
// role.
var ErrDuplicateRole = errors.New("role already exists")

// ErrRoleInUse is returned when deleting a role that is still assigned to
// at least one user.
var ErrRoleInUse = errors.New("role is assigned to users")

// ErrTokenConsumed is returned by Rotate when the presented refresh token
// row was already revoked by a concurrent rotation. The rotation contract
// is fail-closed: the transaction aborts and no new token row is written.
var ErrTokenConsumed = errors.New("refresh token already consumed")
