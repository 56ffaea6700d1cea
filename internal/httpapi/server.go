package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/policy"
	"github.com/vetcee/portal/internal/repository"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] HTTP "+format+"\n", args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] HTTP "+format+"\n", args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] HTTP "+format+"\n", args...)
}

// Config holds the HTTP surface options.
type Config struct {
	// CookieName is the session cookie, default "vetcee.session".
	CookieName string
	// FrontendURL is where callback redirects land.
	FrontendURL string
	// AllowOrigin is the CORS origin, default "*".
	AllowOrigin string
	// CookieSecure marks the session cookie Secure.
	CookieSecure bool
	// DevRoutes enables the debug endpoints and link echoing.
	DevRoutes bool
}

func (c Config) withDefaults() Config {
	if c.CookieName == "" {
		c.CookieName = "vetcee.session"
	}
	if c.AllowOrigin == "" {
		c.AllowOrigin = "*"
	}
	if c.FrontendURL == "" {
		c.FrontendURL = "http://localhost:3000"
	}
	return c
}

// Server is the portal HTTP surface.
type Server struct {
	app    *fiber.App
	engine *auth.Engine
	tokens *auth.TokenService
	repos  repository.Manager
	logger Logger
	cfg    Config
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock, used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the fiber application with every route registered.
func New(cfg Config, engine *auth.Engine, tokens *auth.TokenService, repos repository.Manager, logger Logger, opts ...Option) *Server {
	if logger == nil {
		logger = defLogger{}
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "vetcee-portal",
			DisableStartupMessage: true,
		}),
		engine: engine,
		tokens: tokens,
		repos:  repos,
		logger: logger,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

// App exposes the underlying fiber application, used by tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	api := s.app.Group("/api", s.cors(), s.loadSession())

	api.Get("/health", s.health)

	// the auth surface is exempt from the admission gate
	authGroup := api.Group("/auth")
	authGroup.Post("/request-link", s.requestLink)
	authGroup.Get("/callback", s.callback)
	authGroup.Post("/check-email", s.checkEmail)
	authGroup.Post("/register", s.register)
	authGroup.Post("/register/complete", s.registerComplete)
	authGroup.Post("/logout", s.logout)
	if s.cfg.DevRoutes {
		authGroup.Post("/dev-magic-link", s.devMagicLink)
	}

	// everything below requires an approved session
	authGroup.Post("/invite", s.requireApproved(), s.requireAction(policy.ActionInviteMember), s.invite)
	authGroup.Post("/clear-tokens", s.requireApproved(), s.requireAction(policy.ActionClearTokens), s.clearTokens)
	authGroup.Post("/impersonate", s.requireApproved(), s.requireAction(policy.ActionImpersonate), s.impersonate)

	admin := api.Group("/admin", s.requireApproved())
	admin.Post("/users/approve", s.requireAction(policy.ActionApproveUser), s.approveUser)
	admin.Post("/users/roles", s.requireAction(policy.ActionMutateRoles), s.updateUserRoles)
	admin.Get("/users", s.requireAction(policy.ActionListUsers), s.listUsers)
	admin.Get("/tokens", s.requireAction(policy.ActionViewTokens), s.listTokens)
	admin.Delete("/tokens", s.requireAction(policy.ActionDeleteToken), s.deleteToken)

	courses := api.Group("/courses", s.requireApproved())
	courses.Post("/", s.requireAction(policy.ActionCreateCourse), s.createCourse)
	courses.Get("/", s.listCourses)
	courses.Post("/review", s.requireAction(policy.ActionReviewCourse), s.reviewCourse)
	courses.Post("/status", s.requireAction(policy.ActionReviewCourse), s.updateCourseStatus)

	profile := api.Group("/profile", s.requireApproved())
	profile.Get("/", s.getProfile)
	profile.Put("/", s.updateProfile)
}

func (s *Server) health(c *fiber.Ctx) error {
	if err := s.repos.Ping(c.Context()); err != nil {
		s.logger.Error("health check database ping failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
