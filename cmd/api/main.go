// Package main is the entry point for the wp-cloud API server.
//
// It loads configuration, opens the pending-deployment store, wires the
// Stripe and deployer clients into the HTTP chassis, and starts listening.
// When reconciliation is enabled a background sweeper re-drives pending
// deployments whose webhook delivery was lost.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
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

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Rayan-Walnut/wp-cloud/internal/api/handlers"
	"github.com/Rayan-Walnut/wp-cloud/internal/config"
	"github.com/Rayan-Walnut/wp-cloud/internal/core"
	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/pendingstore"
	"github.com/Rayan-Walnut/wp-cloud/internal/provision"
	"github.com/Rayan-Walnut/wp-cloud/internal/queue"
	"github.com/Rayan-Walnut/wp-cloud/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("wp-cloud API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
		"frontend_url", cfg.Server.FrontendURL,
		"stripe_configured", cfg.Stripe.Configured(),
		"cloudflare_configured", cfg.Cloudflare.Configured(),
		"store_backend", cfg.Store.Backend,
	)

	ctx := context.Background()

	store, cleanup, err := newPendingStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("opening pending store: %w", err)
	}
	defer cleanup()

	stripeClient := external.NewStripeClient(&http.Client{Timeout: 30 * time.Second}, external.StripeClientConfig{
		SecretKey:   cfg.Stripe.SecretKey.Unmask(),
		BaseURL:     cfg.Stripe.BaseURL,
		FrontendURL: cfg.Server.FrontendURL,
		Logger:      logger,
	})

	// No client-level timeout: a deploy call legitimately blocks for minutes
	// and is bounded by the trigger's deploy budget instead.
	deployerClient := external.NewDeployerClient(&http.Client{}, external.DeployerClientConfig{
		BaseURL:        cfg.Deployer.BaseURL,
		APIKey:         cfg.Deployer.APIKey.Unmask(),
		RequestTimeout: cfg.Deployer.RequestTimeout,
		Logger:         logger,
	})

	trigger := provision.NewTrigger(store, deployerClient, cfg.Deployer.DeployTimeout, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	var awsCfg *aws.Config
	if cfg.Reconcile.DeadLetterQueueURL != "" || cfg.Telemetry.EnableMetrics {
		loaded, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS configuration: %w", err)
		}
		awsCfg = &loaded
	}

	if cfg.Telemetry.EnableMetrics {
		cwClient := cloudwatch.NewFromConfig(*awsCfg, func(o *cloudwatch.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
			}
		})
		srv.Metrics = telemetry.NewCloudWatchCollector(cwClient, cfg.Telemetry.MetricNamespace, logger)
	}

	checkoutHandler := handlers.NewCheckoutHandler(stripeClient, store, srv.Validator, logger)
	webhookHandler := handlers.NewStripeWebhookHandler(
		&external.StripeVerifier{},
		trigger,
		cfg.Stripe.WebhookSecret.Unmask(),
		logger,
	)
	installationsHandler := handlers.NewInstallationsHandler(
		deployerClient,
		srv.Validator,
		cfg.Security.AdminPasswordHash.Unmask(),
		logger,
	)

	srv.Registrars = []core.RouteRegistrar{
		checkoutHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		installationsHandler.RegisterRoutes,
	}
	srv.HealthProbes = []core.HealthProbe{
		external.DeployerProbe{Client: deployerClient},
	}

	srv.MountRoutes()

	reconcileCtx, stopReconcile := context.WithCancel(ctx)
	defer stopReconcile()
	if cfg.Reconcile.Enabled {
		var deadLetter provision.DeadLetterPublisher = queue.LogDeadLetter{Logger: logger}
		if cfg.Reconcile.DeadLetterQueueURL != "" {
			sqsClient := sqs.NewFromConfig(*awsCfg, func(o *sqs.Options) {
				if cfg.AWS.EndpointURL != "" {
					o.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
				}
			})
			deadLetter = queue.NewSQSDeadLetter(sqsClient, cfg.Reconcile.DeadLetterQueueURL, logger)
		}

		reconciler := provision.NewReconciler(store, stripeClient, trigger, deadLetter, provision.ReconcilerConfig{
			Interval:    cfg.Reconcile.Interval,
			MinAge:      cfg.Reconcile.MinAge,
			MaxAttempts: cfg.Reconcile.MaxAttempts,
			SessionTTL:  cfg.Reconcile.SessionTTL,
		}, logger)
		go reconciler.Run(reconcileCtx)

		logger.Info("reconciler started",
			"interval", cfg.Reconcile.Interval,
			"min_age", cfg.Reconcile.MinAge,
			"dead_letter_queue", cfg.Reconcile.DeadLetterQueueURL != "",
		)
	}

	return runHTTPServer(srv, cfg, logger, stopReconcile)
}

// newPendingStore opens the configured pending-deployment store and returns
// it with a cleanup function for shutdown.
func newPendingStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (pendingstore.PendingStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.DatabaseURL.Unmask())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		store := pendingstore.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensuring schema: %w", err)
		}
		logger.Info("pending store ready", "backend", "postgres")
		return store, pool.Close, nil

	default:
		store, err := pendingstore.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("pending store ready", "backend", "file", "path", store.Path())
		return store, func() {}, nil
	}
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger, stopBackground func()) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: deploy passthrough responses can take minutes.
		IdleTimeout: 120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	stopBackground()

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
