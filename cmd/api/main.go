// Package main is the entry point for the subscription API server.
//
// It loads configuration, connects the Postgres pool and the SQS client,
// builds the HTTP server with the core chassis (middleware, routing,
// health check), mounts the subscription routes, and listens until a
// shutdown signal arrives.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"golang.org/x/sync/errgroup"

	"teamsjira/internal/api/handlers"
	"teamsjira/internal/config"
	"teamsjira/internal/core"
	"teamsjira/internal/db"
	"teamsjira/internal/subscriptions"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit
// on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("subscription API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Lifecycle events are best-effort: without an analytics queue the
	// service only logs them.
	var emitter subscriptions.EventEmitter = subscriptions.NewLogEventEmitter(logger)
	if cfg.AWS.AnalyticsQueue != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if cfg.AWS.EndpointURL != "" {
				o.BaseEndpoint = &cfg.AWS.EndpointURL
			}
		})
		emitter = subscriptions.NewSQSEventEmitter(sqsClient, cfg.AWS.AnalyticsQueue)
	}

	service := subscriptions.NewService(db.NewSubscriptionRepository(pool), emitter, logger)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	handlers.NewSubscriptionHandler(service, srv.Validator).RegisterRoutes(srv.Router())

	return serve(srv.Handler(), cfg, logger)
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests within the configured shutdown timeout.
func serve(handler http.Handler, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "reason", context.Cause(gctx).Error())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a JSON slog.Logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
