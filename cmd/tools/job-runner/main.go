// Package main runs the notification job as a local daemon: the same
// pipeline the Lambda entrypoint executes, driven by an in-process
// interval loop instead of an EventBridge schedule. Intended for local
// development against LocalStack and for environments without Lambda.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"teamsjira/internal/config"
	"teamsjira/internal/core"
	"teamsjira/internal/db"
	"teamsjira/internal/external"
	"teamsjira/internal/notifications"
	"teamsjira/internal/notifications/card"
	"teamsjira/internal/queue"
	"teamsjira/internal/scheduler"
	"teamsjira/internal/subscriptions"
)

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.Service)
	slog.SetDefault(logger)
	logger.Info("job runner starting",
		"environment", cfg.Environment,
		"poll_interval", cfg.Job.PollInterval.String(),
		"batch_size", cfg.Job.BatchSize,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})

	// Outside AWS proper, CloudWatch metrics are usually noise; keep them
	// log-only unless an endpoint override says otherwise.
	var metrics core.NotificationMetrics = core.NoopMetrics{}
	if cfg.Environment != "local" {
		metrics = core.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.AWS.MetricNamespace, logger)
	}

	tokens := external.NewClientCredentialsTokenProvider(
		&http.Client{Timeout: cfg.Bot.RequestTimeout},
		cfg.Bot.TokenURL, cfg.Bot.AppID, cfg.Bot.AppPassword,
	)
	connector := external.NewBotConnectorClient(
		&http.Client{Timeout: cfg.Bot.RequestTimeout}, tokens, logger,
	)

	service := subscriptions.NewService(
		db.NewSubscriptionRepository(pool),
		subscriptions.NewLogEventEmitter(logger),
		logger,
	)

	processor := notifications.NewProcessor(
		service,
		db.NewConversationReferenceRepository(pool),
		card.NewBuilder(cfg.Jira.BaseURL),
		connector,
		metrics,
		logger,
	)

	job := scheduler.NewNotificationJob(scheduler.NotificationJobConfig{
		Queue:     queue.NewNotificationQueue(sqsClient, cfg.AWS.NotificationQueue, logger),
		Processor: processor,
		BatchSize: cfg.Job.BatchSize,
		Metrics:   metrics,
		Logger:    logger,
	})

	err = job.Run(ctx, cfg.Job.PollInterval)
	logger.Info("job runner stopped")
	return err
}
