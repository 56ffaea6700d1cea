// Package config loads the portal settings from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Config is the full runtime configuration. Every value has a development
// default except the signing secret, which must be provided.
type Config struct {
	// Addr is the listen address for the HTTP surface.
	Addr string `env:"VETCEE_ADDR" envDefault:":8080"`

	// BaseURL is the public URL magic links point back at.
	BaseURL string `env:"VETCEE_BASE_URL" envDefault:"http://localhost:8080"`
	// FrontendURL is where callback redirects land.
	FrontendURL string `env:"VETCEE_FRONTEND_URL" envDefault:"http://localhost:3000"`
	// AllowOrigin is the CORS origin served to browsers.
	AllowOrigin string `env:"VETCEE_ALLOW_ORIGIN" envDefault:"*"`

	// SigningSecret signs session credentials. The server refuses to start
	// without one outside of dev mode.
	SigningSecret string `env:"VETCEE_SIGNING_SECRET"`
	Issuer        string `env:"VETCEE_TOKEN_ISSUER" envDefault:"vetcee-portal"`
	Audience      string `env:"VETCEE_TOKEN_AUDIENCE"`

	SessionTTL      time.Duration `env:"VETCEE_SESSION_TTL" envDefault:"24h"`
	AdminSessionTTL time.Duration `env:"VETCEE_ADMIN_SESSION_TTL" envDefault:"8h"`
	LinkTTL         time.Duration `env:"VETCEE_LINK_TTL" envDefault:"10m"`
	InviteTTL       time.Duration `env:"VETCEE_INVITE_TTL" envDefault:"24h"`

	RateLimitWindow   time.Duration `env:"VETCEE_RATE_WINDOW" envDefault:"10m"`
	RateLimitRequests int           `env:"VETCEE_RATE_REQUESTS" envDefault:"3"`

	CookieName   string `env:"VETCEE_COOKIE_NAME" envDefault:"vetcee.session"`
	CookieSecure bool   `env:"VETCEE_COOKIE_SECURE" envDefault:"false"`

	// DSN is the sqlite database path or URI.
	DSN string `env:"VETCEE_DSN" envDefault:"file:vetcee.db"`

	// MailProvider selects delivery: "log", "noop", "smtp", or a webhook URL.
	MailProvider string `env:"VETCEE_MAIL_PROVIDER" envDefault:"log"`
	SMTPHost     string `env:"VETCEE_SMTP_HOST"`
	SMTPPort     int    `env:"VETCEE_SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"VETCEE_SMTP_USERNAME"`
	SMTPPassword string `env:"VETCEE_SMTP_PASSWORD"`
	SMTPFrom     string `env:"VETCEE_SMTP_FROM" envDefault:"noreply@vetcee.example"`

	// Dev enables the debug endpoints and a generated signing secret.
	Dev bool `env:"VETCEE_DEV" envDefault:"false"`

	// CleanupInterval controls the expired token and session sweep.
	CleanupInterval time.Duration `env:"VETCEE_CLEANUP_INTERVAL" envDefault:"1h"`
}

// Load parses the environment and validates the result.
func Load() (*Config, error) {
	cfg := new(Config)
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate will run validation rules
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.BaseURL, validation.Required, is.URL),
		validation.Field(&c.FrontendURL, validation.Required, is.URL),
		validation.Field(&c.Issuer, validation.Required),
		validation.Field(&c.RateLimitRequests, validation.Min(1)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}

	if c.SigningSecret == "" && !c.Dev {
		return goerrors.New("VETCEE_SIGNING_SECRET is required outside dev mode", goerrors.CategoryValidation)
	}
	if c.MailProvider == "smtp" && c.SMTPHost == "" {
		return goerrors.New("VETCEE_SMTP_HOST is required when the smtp provider is selected", goerrors.CategoryValidation)
	}
	return nil
}
