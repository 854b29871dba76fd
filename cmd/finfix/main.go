package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"finfix/internal/amqp"
	"finfix/internal/backend"
	"finfix/internal/cli"
	apphttp "finfix/internal/http"
	"finfix/internal/log"
	"finfix/internal/middleware/ratelimit"
	"finfix/internal/services"
	"finfix/internal/session"
)

func main() {
	cli.LoadEnvFile()
	boot := cli.SetupLogger("info", "text")
	cfg := cli.LoadAndValidateConfig(boot)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required to verify backend tokens")
		os.Exit(1)
	}

	ctx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	// Logout flags live in Redis when configured so every replica sees them
	var flags session.LogoutFlags
	var readiness []func(context.Context) error
	if cfg.RedisAddr != "" {
		client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Error("Failed to connect to Redis", log.FieldError, err, "addr", cfg.RedisAddr)
			os.Exit(1)
		}
		defer client.Close()
		flags = session.NewRedisLogoutFlags(client)
		readiness = append(readiness, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		logger.Info("Using Redis logout flags", "addr", cfg.RedisAddr)
	}
	if result.Repository != nil {
		readiness = append(readiness, result.Repository.Ping)
	}

	var publisher services.CompletionPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("Publishing onboarding completions", "exchange", cfg.AMQPExchange)
	}

	mode, _ := session.ParseMode(cfg.DefaultMode)
	sessions := session.NewManager(session.Config{
		DefaultMode:   mode,
		LogoutFlagTTL: cfg.LogoutFlagTTL,
	}, session.NewTokenVerifier(cfg.JWTSecret), result.Backend, flags, logger)

	svcCfg := services.DefaultOnboardingServiceConfig()
	svcCfg.CategoryTTL = cfg.CategoryCacheTTL
	onboardingSvc := services.NewOnboardingService(result.Backend, publisher, svcCfg, logger)

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = cfg.RateLimitPerMinute

	srv := apphttp.NewServer(cfg.Addr(), apphttp.Deps{
		Sessions:      sessions,
		Onboarding:    onboardingSvc,
		Limiter:       ratelimit.NewLimiter(limiterCfg),
		Logger:        logger,
		SecureCookies: cfg.CookieSecure,
		Ready: func(ctx context.Context) error {
			g, ctx := errgroup.WithContext(ctx)
			for _, check := range readiness {
				g.Go(func() error { return check(ctx) })
			}
			return g.Wait()
		},
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			_ = amqpClient.Close()
		}
		if err := result.Close(); err != nil {
			logger.Error("Failed to close backend", log.FieldError, err)
		}
	})

	logger.Info("Starting finfix server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		log.FieldMode, mode,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
