// Package main is the entrypoint for the notification job Lambda.
//
// An EventBridge schedule invokes it periodically; each invocation runs
// exactly one queue tick: dequeue a batch of raw Jira events, process
// each against the stored subscriptions, and acknowledge only what
// succeeded. Dependencies are assembled once during cold start and
// reused across invocations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
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

// handler holds the cold-start-initialized job.
type handler struct {
	job    *scheduler.NotificationJob
	logger *slog.Logger
}

func (h *handler) handle(ctx context.Context, event events.CloudWatchEvent) error {
	result, err := h.job.RunTick(ctx)
	if err != nil {
		return fmt.Errorf("notification tick: %w", err)
	}
	h.logger.InfoContext(ctx, "scheduled tick finished",
		"source", event.Source,
		"fetched", result.Fetched,
		"processed", result.Processed,
		"poisoned", result.Poisoned,
		"failed", result.Failed,
	)
	return nil
}

func main() {
	h, err := newHandler(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(h.handle)
}

// newHandler wires the full notification pipeline: queue, subscription
// store, conversation resolver, card builder, connector client, metrics.
func newHandler(ctx context.Context) (*handler, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", cfg.Service)
	slog.SetDefault(logger)
	logger.Info("notification job initializing (cold start)", "environment", cfg.Environment)

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWS.EndpointURL != "" {
			o.BaseEndpoint = &cfg.AWS.EndpointURL
		}
	})
	cwClient := cloudwatch.NewFromConfig(awsCfg)

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

	metrics := core.NewCloudWatchMetrics(cwClient, cfg.AWS.MetricNamespace, logger)

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

	return &handler{job: job, logger: logger}, nil
}
