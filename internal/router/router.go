// Package router wires HTTP routes to handlers and applies the
// authorization gate and rate-limit middleware.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/fitgate/internal/config"
	"github.com/iliyamo/fitgate/internal/handler"
	"github.com/iliyamo/fitgate/internal/middleware"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Auth  *handler.AuthHandler
	Users *handler.UserHandler
	Roles *handler.RoleHandler
	Gate  *middleware.Gate
	Redis *redis.Client
	Rates config.RatePolicies
	Log   *slog.Logger
}

// Register sets up all routes. Auth lifecycle endpoints live under
// /v1/auth; the sensitive ones are rate limited per client. Protected
// endpoints layer the gate's requirements: authenticated, active, then
// verified and role-bound where needed.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	rl := func(p config.RatePolicy) echo.MiddlewareFunc {
		return middleware.RateLimit(d.Redis, p, d.Log)
	}
	authed := []echo.MiddlewareFunc{d.Gate.RequireAuthenticated(), middleware.RequireActive()}
	admin := append(append([]echo.MiddlewareFunc{}, authed...),
		middleware.RequireVerified(), middleware.RequireRoles("admin"))

	g := e.Group("/v1/auth")
	g.POST("/register", d.Auth.Register, rl(d.Rates.Register))
	g.POST("/login", d.Auth.Login, rl(d.Rates.Login))
	g.POST("/verify-2fa", d.Auth.VerifyTwoFactor, rl(d.Rates.Verify2FA))
	g.POST("/refresh", d.Auth.Refresh, rl(d.Rates.Refresh))
	g.POST("/request-password-reset", d.Auth.RequestPasswordReset, rl(d.Rates.ResetRequest))
	g.POST("/reset-password", d.Auth.ResetPassword, rl(d.Rates.ResetPassword))
	g.POST("/verify-email/:token", d.Auth.VerifyEmail)
	g.POST("/logout", d.Auth.Logout, authed...)
	g.POST("/setup-2fa", d.Auth.SetupTwoFactor, authed...)
	g.POST("/verify-2fa-setup", d.Auth.VerifyTwoFactorSetup, authed...)
	g.POST("/change-password", d.Auth.ChangePassword, authed...)

	users := e.Group("/v1/users")
	users.GET("/me", d.Users.Me, authed...)
	users.PUT("/me", d.Users.UpdateMe, authed...)
	users.GET("", d.Users.List, admin...)
	users.GET("/:id", d.Users.Get, admin...)
	users.PUT("/:id", d.Users.Update, admin...)
	users.DELETE("/:id", d.Users.Delete, admin...)
	users.POST("/:id/roles", d.Users.SetRoles, admin...)

	roles := e.Group("/v1/roles", admin...)
	roles.GET("", d.Roles.List)
	roles.POST("", d.Roles.Create)
	roles.GET("/:id", d.Roles.Get)
	roles.PUT("/:id", d.Roles.Update)
	roles.DELETE("/:id", d.Roles.Delete)
}
