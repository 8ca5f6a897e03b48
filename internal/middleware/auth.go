// Package middleware provides the authorization gate and the request rate
// limiter shared by all protected routes.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/model"
	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/token"
)

// Context keys under which the gate stores the resolved principal.
const (
	principalKey = "principal"
	rolesKey     = "principal_roles"
)

// PrincipalStore resolves an access-token subject to a stored principal.
// *repository.UserRepo satisfies it.
type PrincipalStore interface {
	ByID(ctx context.Context, id uint64) (model.User, error)
	RoleNames(ctx context.Context, userID uint64) ([]string, error)
}

// Gate resolves inbound bearer tokens to principals and enforces layered
// requirements: authenticated, active, verified, role membership. Each
// layer narrows the previous one.
type Gate struct {
	Tokens *token.Manager
	Users  PrincipalStore
}

func NewGate(tokens *token.Manager, users PrincipalStore) *Gate {
	return &Gate{Tokens: tokens, Users: users}
}

// Principal returns the authenticated user stored by the gate, or false for
// anonymous requests (possible under OptionalAuth).
func Principal(c echo.Context) (model.User, bool) {
	u, ok := c.Get(principalKey).(model.User)
	return u, ok
}

// PrincipalRoles returns the role names resolved alongside the principal.
func PrincipalRoles(c echo.Context) []string {
	names, _ := c.Get(rolesKey).([]string)
	return names
}

// resolve authenticates the bearer token on the request and loads the
// principal. Every failure mode maps to a single generic outcome so the
// response cannot reveal which check failed.
func (g *Gate) resolve(c echo.Context) (model.User, []string, error) {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return model.User{}, nil, errors.New("missing bearer token")
	}
	raw := strings.TrimPrefix(auth, "Bearer ")

	claims, err := g.Tokens.Parse(raw)
	if err != nil {
		return model.User{}, nil, err
	}
	if claims.Type != token.TypeAccess {
		return model.User{}, nil, errors.New("wrong token type")
	}
	userID, err := claims.UserID()
	if err != nil {
		return model.User{}, nil, err
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	u, err := g.Users.ByID(ctx, userID)
	if err != nil {
		return model.User{}, nil, err
	}
	roles, err := g.Users.RoleNames(ctx, u.ID)
	if err != nil {
		return model.User{}, nil, err
	}
	return u, roles, nil
}

// RequireAuthenticated rejects requests without a valid access token whose
// subject resolves to an existing principal.
func (g *Gate) RequireAuthenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, roles, err := g.resolve(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			c.Set(principalKey, u)
			c.Set(rolesKey, roles)
			return next(c)
		}
	}
}

// OptionalAuth resolves a principal when possible and proceeds anonymously
// otherwise. Resolution failures, including an inactive account, yield "no
// principal" rather than an error.
func (g *Gate) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u, roles, err := g.resolve(c); err == nil && u.IsActive {
				c.Set(principalKey, u)
				c.Set(rolesKey, roles)
			}
			return next(c)
		}
	}
}

// RequireActive rejects principals whose account has been deactivated.
// Assumes RequireAuthenticated ran earlier in the chain.
func RequireActive() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			if !u.IsActive {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "inactive user"})
			}
			return next(c)
		}
	}
}

// RequireVerified additionally rejects principals who have not confirmed
// their email address.
func RequireVerified() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			if !u.IsVerified {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "email not verified"})
			}
			return next(c)
		}
	}
}

// RequireRoles enforces that the principal holds at least one of the given
// role names. Superusers bypass the check entirely; an empty requirement
// passes any principal that made it this far.
func RequireRoles(names ...string) echo.MiddlewareFunc {
	required := make(map[string]bool, len(names))
	for _, n := range names {
		required[n] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
			}
			if u.IsSuperuser || len(required) == 0 {
				return next(c)
			}
			for _, have := range PrincipalRoles(c) {
				if required[have] {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient privileges"})
		}
	}
}

var _ PrincipalStore = (*repository.UserRepo)(nil)
