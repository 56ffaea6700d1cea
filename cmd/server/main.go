package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/vetcee/portal/internal/auth"
	"github.com/vetcee/portal/internal/config"
	"github.com/vetcee/portal/internal/httpapi"
	"github.com/vetcee/portal/internal/mailer"
	"github.com/vetcee/portal/internal/ratelimit"
	"github.com/vetcee/portal/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithName("vetcee"),
	)

	if cfg.Dev {
		fmt.Println("============")
		fmt.Println(print.MaybePrettyJSON(cfg))
		fmt.Println("============")
	}

	secret := cfg.SigningSecret
	if secret == "" {
		// dev mode only; sessions do not survive a restart
		secret = randomSecret()
		lgr.GetLogger("app").Info("generated an ephemeral signing secret")
	}

	ctx := context.Background()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		log.Fatal(err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := repository.CreateSchema(ctx, db); err != nil {
		log.Fatal(err)
	}
	manager := repository.NewManager(db)

	sender := mailer.NewProvider(cfg.MailProvider, mailer.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}, lgr.GetLogger("mailer"))

	var audience jwt.ClaimStrings
	if cfg.Audience != "" {
		audience = jwt.ClaimStrings{cfg.Audience}
	}

	tokens := auth.NewTokenService([]byte(secret), cfg.Issuer, audience,
		cfg.SessionTTL, cfg.AdminSessionTTL,
		auth.WithTokenLogger(lgr.GetLogger("tokens")),
	)

	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitRequests)

	engine := auth.NewEngine(manager, tokens, limiter, sender,
		auth.WithBaseURL(cfg.BaseURL),
		auth.WithLinkTTL(cfg.LinkTTL),
		auth.WithInviteTTL(cfg.InviteTTL),
		auth.WithLogger(lgr.GetLogger("auth")),
	)

	server := httpapi.New(httpapi.Config{
		CookieName:   cfg.CookieName,
		FrontendURL:  cfg.FrontendURL,
		AllowOrigin:  cfg.AllowOrigin,
		CookieSecure: cfg.CookieSecure,
		DevRoutes:    cfg.Dev,
	}, engine, tokens, manager, lgr.GetLogger("http"))

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	go runCleanup(cleanupCtx, engine, cfg.CleanupInterval, lgr.GetLogger("cleanup"))

	go func() {
		lgr.GetLogger("app").Info("listening", "addr", cfg.Addr)
		if err := server.Listen(cfg.Addr); err != nil {
			log.Fatal(err)
		}
	}()

	WaitExitSignal()
	stopCleanup()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lgr.GetLogger("app").Error("shutdown failed", "error", err)
	}
}

func runCleanup(ctx context.Context, engine *auth.Engine, interval time.Duration, logger glog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := engine.Cleanup(ctx); err != nil {
				logger.Error("token cleanup failed", "error", err)
			}
		}
	}
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		log.Fatal(err)
	}
	return hex.EncodeToString(buf)
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
