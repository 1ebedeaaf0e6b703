package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"teamsjira/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEventEmitter publishes subscription lifecycle events to the analytics
// queue. Consumers downstream (audit, telemetry) are external; delivery is
// best effort.
type SQSEventEmitter struct {
	client   SQSSender
	queueURL string
}

// NewSQSEventEmitter creates an emitter targeting the analytics queue.
func NewSQSEventEmitter(client SQSSender, queueURL string) *SQSEventEmitter {
	return &SQSEventEmitter{client: client, queueURL: queueURL}
}

// Emit serializes the event and sends it to the analytics queue.
func (e *SQSEventEmitter) Emit(ctx context.Context, event types.SubscriptionEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("subscription events: failed to marshal event: %w", err)
	}

	_, err = e.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("subscription events: failed to send to %s: %w", e.queueURL, err)
	}
	return nil
}

// LogEventEmitter writes lifecycle events to the structured log. Used when
// no analytics queue is configured (local development).
type LogEventEmitter struct {
	logger *slog.Logger
}

// NewLogEventEmitter creates a log-backed emitter.
func NewLogEventEmitter(logger *slog.Logger) *LogEventEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventEmitter{logger: logger}
}

// Emit logs the event.
func (e *LogEventEmitter) Emit(ctx context.Context, event types.SubscriptionEvent) error {
	e.logger.InfoContext(ctx, "subscription lifecycle event",
		"subscription_id", event.Subscription.ID,
		"jira_id", event.Subscription.JiraID,
		"action", string(event.Action),
	)
	return nil
}

// Compile-time assertions.
var (
	_ EventEmitter = (*SQSEventEmitter)(nil)
	_ EventEmitter = (*LogEventEmitter)(nil)
)
