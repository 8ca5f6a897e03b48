package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/model"
	"github.com/iliyamo/fitgate/internal/repository"
)

// RoleHandler exposes the admin-only role CRUD. At most one role is the
// default at any time; the repository transactions enforce that.
type RoleHandler struct {
	Roles *repository.RoleRepo
	Log   *slog.Logger
}

func NewRoleHandler(roles *repository.RoleRepo, log *slog.Logger) *RoleHandler {
	return &RoleHandler{Roles: roles, Log: log}
}

type rolePart struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

func roleResp(r model.Role) rolePart {
	return rolePart{ID: r.ID, Name: r.Name, Description: r.Description, IsDefault: r.IsDefault, CreatedAt: r.CreatedAt}
}

type roleReq struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsDefault   *bool   `json:"is_default"`
}

// List returns all roles.
func (h *RoleHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]rolePart, 0, len(roles))
	for _, r := range roles {
		out = append(out, roleResp(r))
	}
	return c.JSON(http.StatusOK, out)
}

// Create adds a new role.
func (h *RoleHandler) Create(c echo.Context) error {
	var req roleReq
	if err := c.Bind(&req); err != nil || req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name required"})
	}
	role := model.Role{Name: strings.TrimSpace(*req.Name)}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsDefault != nil {
		role.IsDefault = *req.IsDefault
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Roles.Create(ctx, &role); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, roleResp(role))
}

// Get returns one role.
func (h *RoleHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	role, err := h.Roles.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, roleResp(role))
}

// Update changes name, description or the default flag.
func (h *RoleHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	role, err := h.Roles.ByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		role.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		role.Description = *req.Description
	}
	if req.IsDefault != nil {
		role.IsDefault = *req.IsDefault
	}
	if err := h.Roles.Update(ctx, &role); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, roleResp(role))
}

// Delete removes an unassigned role.
func (h *RoleHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Roles.Delete(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
