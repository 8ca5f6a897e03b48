package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/middleware"
	"github.com/iliyamo/fitgate/internal/model"
	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/service"
)

// UserHandler exposes the self-service profile endpoints and the
// admin-only user CRUD.
type UserHandler struct {
	Users *repository.UserRepo
	Auth  *service.AuthService
	Log   *slog.Logger
}

func NewUserHandler(users *repository.UserRepo, auth *service.AuthService, log *slog.Logger) *UserHandler {
	return &UserHandler{Users: users, Auth: auth, Log: log}
}

type userPart struct {
	ID               uint64     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	FirstName        string     `json:"first_name,omitempty"`
	LastName         string     `json:"last_name,omitempty"`
	IsActive         bool       `json:"is_active"`
	IsSuperuser      bool       `json:"is_superuser"`
	IsVerified       bool       `json:"is_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Roles            []string   `json:"roles,omitempty"`
}

// userResp builds the public view of a user. Password hash, tokens and the
// TOTP secret never leave the server.
func userResp(u model.User, roles []string) userPart {
	return userPart{
		ID:               u.ID,
		Email:            u.Email,
		Username:         u.Username,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		IsActive:         u.IsActive,
		IsSuperuser:      u.IsSuperuser,
		IsVerified:       u.IsVerified,
		TwoFactorEnabled: u.TwoFactorEnabled,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		Roles:            roles,
	}
}

type updateUserReq struct {
	Email       *string `json:"email"`
	Username    *string `json:"username"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	Password    *string `json:"password"`
	IsActive    *bool   `json:"is_active"`
	IsSuperuser *bool   `json:"is_superuser"`
	IsVerified  *bool   `json:"is_verified"`
}

func pathID(c echo.Context) (uint64, error) {
	return strconv.ParseUint(c.Param("id"), 10, 64)
}

// List returns a page of users. Admin only.
func (h *UserHandler) List(c echo.Context) error {
	offset, _ := strconv.Atoi(c.QueryParam("skip"))
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 100
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, offset, limit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]userPart, 0, len(users))
	for _, u := range users {
		out = append(out, userResp(u, nil))
	}
	return c.JSON(http.StatusOK, out)
}

// Me returns the authenticated caller's profile.
func (h *UserHandler) Me(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	return c.JSON(http.StatusOK, userResp(u, middleware.PrincipalRoles(c)))
}

// UpdateMe applies a self-service profile change. An email change restarts
// verification.
func (h *UserHandler) UpdateMe(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	updated, err := h.Auth.UpdateProfile(ctx, u.ID, service.ProfileUpdate{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp(updated, middleware.PrincipalRoles(c)))
}

// Get returns one user with their role names. Admin only.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	roles, err := h.Users.RoleNames(ctx, u.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp(u, roles))
}

// Update applies an administrative change to any user row. Admin only.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.Username != nil {
		u.Username = *req.Username
	}
	if req.FirstName != nil {
		u.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		u.LastName = *req.LastName
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.IsSuperuser != nil {
		u.IsSuperuser = *req.IsSuperuser
	}
	if req.IsVerified != nil {
		u.IsVerified = *req.IsVerified
	}
	if req.Password != nil && *req.Password != "" {
		if err := h.Auth.AdminSetPassword(&u, *req.Password); err != nil {
			return fail(c, h.Log, err)
		}
	}
	if err := h.Users.Update(ctx, &u); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp(u, nil))
}

// Delete soft-deletes a user by flipping is_active. Deleting oneself is
// rejected. Admin only.
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	caller, _ := middleware.Principal(c)
	if caller.ID == id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot delete own user account"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Users.Deactivate(ctx, u.ID); err != nil {
		return fail(c, h.Log, err)
	}
	u.IsActive = false
	return c.JSON(http.StatusOK, userResp(u, nil))
}

// SetRoles replaces a user's role set. Admin only.
func (h *UserHandler) SetRoles(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var roleIDs []uint64
	if err := c.Bind(&roleIDs); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Users.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Users.ReplaceRoles(ctx, u.ID, roleIDs); err != nil {
		return fail(c, h.Log, err)
	}
	roles, err := h.Users.RoleNames(ctx, u.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userResp(u, roles))
}
