package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/service"
)

// fail maps the expected service and repository outcomes onto client-visible
// statuses. Anything unanticipated is logged with full context and surfaced
// as a generic internal failure so no persistence or codec detail leaks.
func fail(c echo.Context, log *slog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrInvalidCode):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInactiveAccount),
		errors.Is(err, service.ErrInvalidState),
		errors.Is(err, service.ErrNotConfigured),
		errors.Is(err, repository.ErrRoleInUse):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicateEmail),
		errors.Is(err, repository.ErrDuplicateUsername),
		errors.Is(err, repository.ErrDuplicateRole):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	default:
		log.Error("request failed", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
