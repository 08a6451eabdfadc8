package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/audit"
	"github.com/aphrodite-labs/phishguard/internal/biometric"
	"github.com/aphrodite-labs/phishguard/internal/config"
	delivery "github.com/aphrodite-labs/phishguard/internal/delivery/http"
	"github.com/aphrodite-labs/phishguard/internal/detection"
	"github.com/aphrodite-labs/phishguard/internal/otp"
	"github.com/aphrodite-labs/phishguard/internal/repository"
	"github.com/aphrodite-labs/phishguard/internal/usecase"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 2. Infrastructure (persistence)
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	// 3. Repositories and collaborators
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewRedisTokenRepo(rdb)
	scanRepo := repository.NewPostgresScanRepo(db)

	auditor := audit.NewAsync(repository.NewPostgresAuditRepo(db, logger), logger)
	defer auditor.Close()

	otpStore := otp.NewRedisStore(rdb, cfg.OTPTTL)
	oracle := biometric.NewSimulatedOracle(logger)

	var mlClient *detection.MLClient
	if cfg.MLBaseURL != "" {
		mlClient = detection.NewMLClient(cfg.MLBaseURL, cfg.MLTimeout)
	}

	// 4. Business logic (usecases)
	authUsecase := usecase.NewAuthUsecase(userRepo, tokenRepo, otpStore, oracle, auditor, usecase.AuthConfig{
		JWTSecret:    cfg.JWTSecret,
		AccessTTL:    cfg.AccessTokenTTL,
		RefreshTTL:   cfg.RefreshTokenTTL,
		ChallengeTTL: cfg.ChallengeTTL,
	}, logger)
	defer authUsecase.Close()

	scanUsecase := usecase.NewScanUsecase(scanRepo, mlClient, auditor, usecase.ScanConfig{
		SigningSecret:      cfg.JWTSecret,
		ReaderPublicKeyPEM: cfg.ReaderPublicKeyPEM,
	}, logger)

	// 5. HTTP framework and global middlewares
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	// 6. Register delivery handlers (routes)
	v1 := e.Group("/v1")
	delivery.NewAuthHandler(v1, authUsecase, cfg.JWTSecret)
	delivery.NewMFAHandler(v1, authUsecase, cfg.JWTSecret)
	delivery.NewScanHandler(v1, scanUsecase, cfg.JWTSecret)

	// 7. Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 8. Start server with graceful shutdown
	go func() {
		logger.Info("starting phishguard server", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
