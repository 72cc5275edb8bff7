package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"winery/internal/amqp"
	"winery/internal/backend"
	"winery/internal/cache"
	"winery/internal/cli"
	apphttp "winery/internal/http"
	"winery/internal/log"
	"winery/internal/poll"
	"winery/internal/services"
	"winery/internal/session"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	store, closeStore := cli.InitSessionStore(logger, cfg)
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("Failed to close session store", log.FieldError, err)
		}
	}()
	sessions := session.NewManager(store, result.API, cfg.SessionIdleTimeout, logger)

	options := services.NewOptions(result.API, cfg.OptionsPageSize, cfg.OptionsCacheTTL)
	caches := cache.NewManager(logger)
	caches.Register("options", options.Cleaner())
	caches.Register("sessions", sessions)

	// Change notifications are optional; without a broker writes still work.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		publisher = client
		logger.Info("Publishing record changes", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled, no AMQP_URL provided")
	}
	records := services.NewRecordService(result.API, options, publisher, logger)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Config{
		CookieName:     cfg.SessionCookieName,
		SecureCookies:  cfg.SecureCookies,
		IdleTimeout:    cfg.SessionIdleTimeout,
		RefreshWindow:  cfg.TokenRefreshWindow,
		LogsRefresh:    cfg.LogsRefreshInterval,
		LoginRateLimit: cfg.LoginRateLimit,
	}, apphttp.Deps{
		API:      result.API,
		Sessions: sessions,
		Records:  records,
		Options:  options,
		Caches:   caches,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}
	caches.StartCleanup(5 * time.Minute)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
	})

	purger := poll.Start(ctx, time.Hour, func(ctx context.Context) error {
		_, err := sessions.Purge(ctx)
		return err
	}, logger)
	defer purger.Stop()

	logger.Info("Starting winery console",
		"port", cfg.Port,
		"backend", result.Type.String(),
		"session_store", cfg.SessionStore)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
