package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/middleware"
	"github.com/iliyamo/fitgate/internal/service"
)

// AuthHandler exposes the authentication lifecycle over HTTP. All logic
// lives in the service; handlers bind, call and map.
type AuthHandler struct {
	Auth *service.AuthService
	Log  *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Log: log}
}

// ----- DTOs -----

type registerReq struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
type loginReq struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}
type verify2FAReq struct {
	UserID uint64 `json:"user_id"`
	Code   string `json:"code"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type forgotPasswordReq struct {
	Email string `json:"email"`
}
type resetPasswordReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}
type setup2FAReq struct {
	Enable bool `json:"enable"`
}
type verify2FASetupReq struct {
	Code string `json:"code"`
}
type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// tokenResp is the uniform shape of every successful token issuance.
type tokenResp struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // absolute access-token expiry, epoch seconds
}

func newTokenResp(p service.TokenPair) tokenResp {
	return tokenResp{
		AccessToken:  p.AccessToken,
		TokenType:    "bearer",
		RefreshToken: p.RefreshToken,
		ExpiresAt:    p.AccessExpiresAt.Unix(),
	}
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), 5*time.Second)
}

// Register creates a new unverified account and mails a verification link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, username and password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, userResp(u, nil))
}

// Login verifies credentials and either issues a token pair or reports a
// pending two-factor challenge.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Identifier = strings.TrimSpace(req.Identifier)
	if req.Identifier == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "identifier and password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if res.TwoFactorRequired {
		return c.JSON(http.StatusOK, echo.Map{
			"detail":  "two_factor_required",
			"user_id": res.UserID,
		})
	}
	return c.JSON(http.StatusOK, newTokenResp(res.Tokens))
}

// VerifyTwoFactor completes a login challenge with a TOTP code.
func (h *AuthHandler) VerifyTwoFactor(c echo.Context) error {
	var req verify2FAReq
	if err := c.Bind(&req); err != nil || req.UserID == 0 || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id and code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Auth.VerifyTwoFactor(ctx, req.UserID, req.Code)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newTokenResp(pair))
}

// Refresh rotates a refresh token and returns a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, newTokenResp(pair))
}

// Logout revokes the presented refresh token for the authenticated caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.Logout(ctx, u.ID, strings.TrimSpace(req.RefreshToken)); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "successfully logged out"})
}

// RequestPasswordReset acknowledges uniformly whether or not the address is
// registered.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req forgotPasswordReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.RequestPasswordReset(ctx, strings.TrimSpace(req.Email)); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"detail": "if a registered account with this email exists, a password reset link has been sent",
	})
}

// ResetPassword consumes a reset token and stores the new password.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordReq
	if err := c.Bind(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and new_password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "password has been reset successfully"})
}

// VerifyEmail consumes a verification token from the URL path. An expired
// token is replaced with a fresh one and the new link returned.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	tok := c.Param("token")
	if tok == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Auth.VerifyEmail(ctx, tok)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if res.Reissued {
		return c.JSON(http.StatusOK, echo.Map{
			"detail":           "verification token expired, a new verification link has been generated",
			"verification_url": res.VerificationURL,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "email verified successfully"})
}

// SetupTwoFactor begins or ends TOTP enrollment for the caller.
func (h *AuthHandler) SetupTwoFactor(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req setup2FAReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	enr, err := h.Auth.SetupTwoFactor(ctx, u.ID, req.Enable)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if !req.Enable {
		return c.JSON(http.StatusOK, echo.Map{"detail": "two-factor authentication disabled successfully"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"secret":      enr.Secret,
		"otpauth_url": enr.URI,
		"qr_code":     enr.QRCode,
		"is_enabled":  false,
	})
}

// VerifyTwoFactorSetup confirms enrollment with a code from the pending
// secret.
func (h *AuthHandler) VerifyTwoFactorSetup(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req verify2FASetupReq
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.VerifyTwoFactorSetup(ctx, u.ID, req.Code); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "two-factor authentication enabled successfully"})
}

// ChangePassword verifies the current password before storing a new one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	u, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "not authenticated"})
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil || req.CurrentPassword == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_password and new_password required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"detail": "password changed successfully"})
}
