package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/fitgate/internal/config"
	"github.com/iliyamo/fitgate/internal/database"
	"github.com/iliyamo/fitgate/internal/handler"
	"github.com/iliyamo/fitgate/internal/middleware"
	"github.com/iliyamo/fitgate/internal/queue"
	"github.com/iliyamo/fitgate/internal/repository"
	"github.com/iliyamo/fitgate/internal/router"
	"github.com/iliyamo/fitgate/internal/service"
	"github.com/iliyamo/fitgate/internal/token"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled")
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	ledger := repository.NewRefreshTokenRepo(db)
	tokens := token.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	mailer := queue.NewPublisher(logger)

	auth := service.NewAuthService(users, roles, ledger, tokens, mailer, service.Config{
		Issuer:          cfg.ProjectName,
		FrontendURL:     cfg.FrontendURL,
		BcryptCost:      cfg.BcryptCost,
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
	}, logger)

	// Email delivery runs beside the HTTP server and reconnects on its own.
	go queue.StartEmailConsumer(queue.SMTPConfigFromEnv(), logger)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, router.Deps{
		Auth:  handler.NewAuthHandler(auth, logger),
		Users: handler.NewUserHandler(users, auth, logger),
		Roles: handler.NewRoleHandler(roles, logger),
		Gate:  middleware.NewGate(tokens, users),
		Redis: rdb,
		Rates: config.LoadRatePolicies(),
		Log:   logger,
	})

	addr := ":" + cfg.Port
	logger.Info("listening", "addr", addr, "env", cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
