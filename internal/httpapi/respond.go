package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"

	"github.com/vetcee/portal/internal/auth"
)

// renderError maps a rich error onto an HTTP status and a small JSON payload.
// Internal details never reach the response body.
func (s *Server) renderError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "unexpected server error").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusForCategory(richErr.Category)
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed on %s: %v", c.Path(), err)
	}

	payload := fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	}
	if status == fiber.StatusTooManyRequests {
		if v, ok := richErr.Metadata["retry_after_seconds"]; ok {
			payload["retry_after_seconds"] = v
		}
		if v, ok := richErr.Metadata["remaining"]; ok {
			payload["remaining"] = v
		}
	}

	return c.Status(status).JSON(payload)
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryRateLimit:
		return fiber.StatusTooManyRequests
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) setSessionCookie(c *fiber.Ctx, credential string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     s.cfg.CookieName,
		Value:    credential,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: "Lax",
		Path:     "/",
	})
}

func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: "Lax",
		Path:     "/",
	})
}

// sessionExpiry pulls the cookie lifetime out of minted claims.
func sessionExpiry(claims *auth.SessionClaims) time.Time {
	if claims == nil || claims.ExpiresAt == nil {
		return time.Now().Add(24 * time.Hour)
	}
	return claims.ExpiresAt.Time
}
