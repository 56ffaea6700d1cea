package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/policy"
)

const sessionLocal = "httpapi.session"

// cors applies permissive CORS headers and answers preflight requests before
// any other check runs.
func (s *Server) cors() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", s.cfg.AllowOrigin)
		c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Set("Access-Control-Allow-Credentials", "true")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusOK)
		}
		return c.Next()
	}
}

// loadSession decodes the credential from the session cookie or bearer header
// when present. It never rejects; the gate middlewares decide.
func (s *Server) loadSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := s.credentialFrom(c)
		if raw == "" {
			return c.Next()
		}

		claims, err := s.tokens.Validate(raw)
		if err != nil {
			// an invalid credential is treated the same as none at all
			s.logger.Debug("discarding invalid session credential: %v", err)
			return c.Next()
		}

		c.Locals(sessionLocal, claims)
		return c.Next()
	}
}

func (s *Server) credentialFrom(c *fiber.Ctx) string {
	if cookie := c.Cookies(s.cfg.CookieName); cookie != "" {
		return cookie
	}
	header := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// CurrentSession returns the decoded session claims, nil when absent.
func CurrentSession(c *fiber.Ctx) *auth.SessionClaims {
	claims, _ := c.Locals(sessionLocal).(*auth.SessionClaims)
	return claims
}

// requireApproved is the admission gate: a valid credential for an approved
// account, or nothing.
func (s *Server) requireApproved() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := CurrentSession(c)
		if claims == nil {
			return s.renderError(c, auth.ErrNoSession)
		}
		if !claims.Approved() {
			return s.renderError(c, auth.ErrNotApproved)
		}
		return c.Next()
	}
}

// requireAction checks the role policy for a specific protected operation.
func (s *Server) requireAction(action policy.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims := CurrentSession(c)
		if claims == nil {
			return s.renderError(c, auth.ErrNoSession)
		}
		if !policy.Allows(claims.PolicySubject(), action) {
			s.logger.Info("policy denied %s for user %s", action, claims.UserID())
			return s.renderError(c, auth.ErrForbidden)
		}
		return c.Next()
	}
}
