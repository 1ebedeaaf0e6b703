// Package scheduler implements the notification job: a recurring task
// that drains a batch of raw Jira events from the notification queue,
// hands each to the processor, and acknowledges (deletes) a message only
// after its processing fully succeeded.
package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"teamsjira/internal/core"
	"teamsjira/internal/queue"
	"teamsjira/internal/types"
)

// DefaultBatchSize is the number of messages fetched per tick.
const DefaultBatchSize = 32

// MessageQueue is the durable queue contract the job depends on.
// Implemented by queue.NotificationQueue.
type MessageQueue interface {
	DequeueBatch(ctx context.Context, maxMessages int) ([]queue.Envelope, error)
	DeleteMessage(ctx context.Context, messageID, receiptHandle string) error
}

// Processor handles one deserialized notification message.
type Processor interface {
	ProcessNotification(ctx context.Context, msg *types.NotificationMessage) error
}

// TickResult summarizes one job tick for the entrypoint's logging.
type TickResult struct {
	Fetched   int
	Processed int
	Poisoned  int
	Failed    int
}

// NotificationJob is the queue poller. Envelopes within a tick are
// processed sequentially: this bounds concurrent load on the subscription
// store and the connector, and keeps failure isolation trivial.
type NotificationJob struct {
	queue     MessageQueue
	processor Processor
	batchSize int
	metrics   core.NotificationMetrics
	logger    *slog.Logger
}

// NotificationJobConfig holds the dependencies for creating a NotificationJob.
type NotificationJobConfig struct {
	Queue     MessageQueue
	Processor Processor
	BatchSize int
	Metrics   core.NotificationMetrics
	Logger    *slog.Logger
}

// NewNotificationJob creates a NotificationJob. A non-positive batch size
// falls back to DefaultBatchSize.
func NewNotificationJob(cfg NotificationJobConfig) *NotificationJob {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	return &NotificationJob{
		queue:     cfg.Queue,
		processor: cfg.Processor,
		batchSize: batchSize,
		metrics:   metrics,
		logger:    logger,
	}
}

// RunTick executes one poll cycle:
//
//  1. Dequeue up to batchSize envelopes; an empty queue is a no-op tick.
//  2. For each envelope, sequentially:
//     a. Deserialize. Failure is a poison message: log, delete, continue.
//     b. Process. Failure: log with context, leave un-acked so the lease
//     expiry redelivers it, continue with the next envelope.
//     c. Success: delete the message (ack-after-success).
//
// Cancellation is observed between envelopes: the in-flight envelope
// completes, no new envelope starts after the context is done.
func (j *NotificationJob) RunTick(ctx context.Context) (TickResult, error) {
	var result TickResult

	envelopes, err := j.queue.DequeueBatch(ctx, j.batchSize)
	if err != nil {
		return result, err
	}
	result.Fetched = len(envelopes)
	if len(envelopes) == 0 {
		return result, nil
	}

	for _, env := range envelopes {
		if ctx.Err() != nil {
			j.logger.Info("tick cancelled mid-batch",
				"handled", result.Processed+result.Poisoned+result.Failed,
				"fetched", result.Fetched,
			)
			return result, ctx.Err()
		}
		j.handleEnvelope(ctx, env, &result)
	}

	j.logger.Info("notification tick complete",
		"fetched", result.Fetched,
		"processed", result.Processed,
		"poisoned", result.Poisoned,
		"failed", result.Failed,
	)
	return result, nil
}

// handleEnvelope processes a single envelope through deserialize, process,
// and ack. One failing envelope never aborts the rest of the batch.
func (j *NotificationJob) handleEnvelope(ctx context.Context, env queue.Envelope, result *TickResult) {
	var msg types.NotificationMessage
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		// Poison message: drop it rather than retrying forever.
		perr := types.NewAppError(types.ErrCodeQueuePoisonMessage, "failed to deserialize notification message", err)
		j.logger.Error("dropping poison notification message",
			"message_id", env.MessageID,
			"dequeue_count", env.DequeueCount,
			"error_code", string(perr.Code),
			"error", perr.Error(),
		)
		if delErr := j.queue.DeleteMessage(ctx, env.MessageID, env.ReceiptHandle); delErr != nil {
			j.logger.Error("failed to delete poison message",
				"message_id", env.MessageID,
				"error", delErr.Error(),
			)
		}
		result.Poisoned++
		return
	}

	if !env.SentAt.IsZero() {
		j.metrics.RecordQueueLag(ctx, time.Since(env.SentAt))
	}

	if err := j.processor.ProcessNotification(ctx, &msg); err != nil {
		// Leave un-acked: the queue lease expiry redelivers the message.
		j.logger.Error("failed to process notification message, leaving for retry",
			"message_id", env.MessageID,
			"jira_id", msg.JiraID,
			"event_type", string(msg.EventType),
			"dequeue_count", env.DequeueCount,
			"error", err.Error(),
		)
		result.Failed++
		return
	}

	if err := j.queue.DeleteMessage(ctx, env.MessageID, env.ReceiptHandle); err != nil {
		// Processing succeeded but the ack failed: the message will be
		// redelivered and reprocessed (at-least-once, duplicate Teams
		// messages are cosmetic).
		j.logger.Error("failed to delete processed message",
			"message_id", env.MessageID,
			"error", err.Error(),
		)
		result.Failed++
		return
	}
	result.Processed++
}

// Run executes RunTick on a fixed interval until the context is cancelled.
// Ticks never overlap: the next wait starts only after the previous tick
// finished. Used by the local daemon entrypoint; the Lambda entrypoint
// calls RunTick directly, one tick per scheduled invocation.
func (j *NotificationJob) Run(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := j.RunTick(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("notification tick failed", "error", err.Error())
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		timer.Reset(interval)
	}
}
