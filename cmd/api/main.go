package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/njala-api/internal/application/audit"
	"github.com/njala-api/internal/application/auth"
	"github.com/njala-api/internal/application/credential"
	"github.com/njala-api/internal/application/otp"
	"github.com/njala-api/internal/application/token"
	"github.com/njala-api/internal/application/user"
	"github.com/njala-api/internal/config"
	"github.com/njala-api/internal/infrastructure/dynamo"
	"github.com/njala-api/internal/infrastructure/google"
	jwtinfra "github.com/njala-api/internal/infrastructure/jwt"
	redisinfra "github.com/njala-api/internal/infrastructure/redis"
	"github.com/njala-api/internal/infrastructure/smtp"
	"github.com/njala-api/internal/infrastructure/sns"
	"github.com/njala-api/internal/pkg/keylock"
	"github.com/njala-api/internal/pkg/metrics"
	transporthttp "github.com/njala-api/internal/transport/http"
	appmiddleware "github.com/njala-api/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}
	cfg := config.Load()
	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	awsCfg, err := dynamo.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	dynamoClient := dynamo.NewClient(awsCfg, cfg)
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		return err
	}

	userRepo := dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users)
	otpRepo := dynamo.NewOTPRepo(dynamoClient, cfg.DynamoTables.OTPCodes)
	refreshRepo := dynamo.NewRefreshTokenRepo(dynamoClient, cfg.DynamoTables.RefreshTokens)
	auditRepo := dynamo.NewAuditRepo(dynamoClient, cfg.DynamoTables.AuditLogs)

	var lock locker = keylock.New()
	if cfg.RedisAddr != "" {
		rdb := redisinfra.NewClient(cfg)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		lock = redisinfra.NewLocker(rdb)
		slog.Info("otp lock: redis", "addr", cfg.RedisAddr)
	} else {
		slog.Info("otp lock: in-process")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	mailer := smtp.NewMailer(cfg)

	auditSvc := audit.NewService(audit.ServiceDeps{Repo: auditRepo, Metrics: m})
	defer auditSvc.Close()

	ledger := otp.NewService(otp.ServiceDeps{
		Repo:      otpRepo,
		Locker:    lock,
		Mailer:    mailer,
		SMSSender: sns.NewSender(awsCfg, cfg),
		Metrics:   m,
		Retention: cfg.Retention(),
	})
	tokens := token.NewService(token.ServiceDeps{
		RefreshRepo:     refreshRepo,
		UserRepo:        userRepo,
		JWTProvider:     jwtProvider,
		RefreshTokenDur: cfg.RefreshTokenExpiry,
		Retention:       cfg.Retention(),
	})
	creds := credential.NewService(credential.ServiceDeps{
		UserRepo: userRepo,
		Ledger:   ledger,
		Tokens:   tokens,
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		Credentials:              creds,
		Ledger:                   ledger,
		Tokens:                   tokens,
		GoogleVerifier:           google.NewVerifier(cfg.GoogleClientID),
		Mailer:                   mailer,
		Audit:                    auditSvc,
		Metrics:                  m,
		ResetLinkBaseURL:         cfg.ResetLinkBaseURL,
		ResetConcealUnknownEmail: cfg.ResetConcealUnknownEmail,
		GoogleLoginRequire2FA:    cfg.GoogleLoginRequire2FA,
	})
	userSvc := user.NewService(user.ServiceDeps{
		Credentials: creds,
		UserRepo:    userRepo,
		Tokens:      tokens,
		Audit:       auditSvc,
	})

	if err := userSvc.SeedSuperAdmin(ctx, cfg.SuperAdminEmail, cfg.SuperAdminPassword); err != nil {
		return err
	}

	limiter := appmiddleware.NewRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	defer limiter.Stop()

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Auth:     authSvc,
		Users:    userSvc,
		Audit:    auditSvc,
		Verifier: tokens,
		Gatherer: prometheus.DefaultGatherer,
		Limiter:  limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
