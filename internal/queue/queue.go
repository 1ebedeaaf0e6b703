// Package queue provides the SQS-backed durable notification queue: raw
// Jira notification events are enqueued by the ingestion path and consumed
// in batches by the notification job with at-least-once semantics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"teamsjira/internal/types"
)

// sqsReceiveChunk is the SQS per-request maximum for ReceiveMessage.
const sqsReceiveChunk = 10

// SQSClient abstracts the SQS operations the queue uses, for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSClient interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Envelope is the queue's wrapper around one message body. MessageID and
// ReceiptHandle (the ack token for the current lease) belong to the queue
// infrastructure; the processor never sees them, only the job does.
type Envelope struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
	// DequeueCount is how many times the message has been received.
	// A high count indicates a message that keeps failing processing.
	DequeueCount int
	// SentAt is when the message was enqueued, from the SentTimestamp
	// attribute. Zero when the queue did not report it.
	SentAt time.Time
}

// NotificationQueue is the SQS implementation of the durable notification
// queue. Messages become invisible to other consumers for the queue's
// visibility timeout after a dequeue; deleting before the timeout expires
// acknowledges them permanently, otherwise they reappear for retry.
type NotificationQueue struct {
	client   SQSClient
	queueURL string
	logger   *slog.Logger
}

// NewNotificationQueue creates a NotificationQueue bound to the given SQS
// queue URL.
func NewNotificationQueue(client SQSClient, queueURL string, logger *slog.Logger) *NotificationQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Enqueue appends one notification message. Producer retries may enqueue
// duplicates; they are not deduplicated at this layer.
func (q *NotificationQueue) Enqueue(ctx context.Context, msg types.NotificationMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal notification message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	}
	if msg.TraceID != "" {
		input.MessageAttributes = map[string]sqsTypes.MessageAttributeValue{
			"trace_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.TraceID),
			},
		}
	}

	if _, err := q.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeQueueUnavailable,
			fmt.Sprintf("failed to enqueue notification to %s", q.queueURL), err)
	}

	q.logger.InfoContext(ctx, "notification message enqueued",
		"jira_id", msg.JiraID,
		"event_type", string(msg.EventType),
		"trace_id", msg.TraceID,
	)
	return nil
}

// DequeueBatch returns up to maxMessages envelopes. SQS caps a single
// ReceiveMessage at 10 messages, so larger batches are assembled from
// consecutive receives; the loop stops early once the queue is drained.
// An empty queue returns an empty slice, not an error.
func (q *NotificationQueue) DequeueBatch(ctx context.Context, maxMessages int) ([]Envelope, error) {
	var envelopes []Envelope

	for len(envelopes) < maxMessages {
		chunk := maxMessages - len(envelopes)
		if chunk > sqsReceiveChunk {
			chunk = sqsReceiveChunk
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: int32(chunk),
			MessageSystemAttributeNames: []sqsTypes.MessageSystemAttributeName{
				sqsTypes.MessageSystemAttributeNameApproximateReceiveCount,
				sqsTypes.MessageSystemAttributeNameSentTimestamp,
			},
		})
		if err != nil {
			return envelopes, types.NewAppError(types.ErrCodeQueueUnavailable,
				fmt.Sprintf("failed to dequeue from %s", q.queueURL), err)
		}
		if len(out.Messages) == 0 {
			break
		}

		for _, m := range out.Messages {
			envelopes = append(envelopes, envelopeFromMessage(m))
		}
	}

	return envelopes, nil
}

// DeleteMessage permanently removes a message. It must only be called
// after the message's side effects have fully completed; skipping it
// causes redelivery after the visibility timeout expires.
func (q *NotificationQueue) DeleteMessage(ctx context.Context, messageID, receiptHandle string) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeQueueUnavailable,
			fmt.Sprintf("failed to delete message %s", messageID), err)
	}
	return nil
}

func envelopeFromMessage(m sqsTypes.Message) Envelope {
	env := Envelope{
		MessageID:     aws.ToString(m.MessageId),
		ReceiptHandle: aws.ToString(m.ReceiptHandle),
		Body:          []byte(aws.ToString(m.Body)),
	}
	if v, ok := m.Attributes[string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			env.DequeueCount = n
		}
	}
	// SentTimestamp is epoch milliseconds.
	if v, ok := m.Attributes[string(sqsTypes.MessageSystemAttributeNameSentTimestamp)]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			env.SentAt = time.UnixMilli(ms).UTC()
		}
	}
	return env
}
