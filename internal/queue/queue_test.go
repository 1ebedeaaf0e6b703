package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"teamsjira/internal/types"
)

// fakeSQS serves queued messages in chunks the way SQS ReceiveMessage
// does, and records sends and deletes.
type fakeSQS struct {
	pending     []sqsTypes.Message
	sent        []*sqs.SendMessageInput
	deleted     []string
	receiveErr  error
	sendErr     error
	receiveCaps []int32
}

func (f *fakeSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, params)
	return &sqs.SendMessageOutput{MessageId: aws.String("m1")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	f.receiveCaps = append(f.receiveCaps, params.MaxNumberOfMessages)

	n := int(params.MaxNumberOfMessages)
	if n > len(f.pending) {
		n = len(f.pending)
	}
	out := &sqs.ReceiveMessageOutput{Messages: f.pending[:n]}
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func pendingMessage(id string, receiveCount string) sqsTypes.Message {
	return sqsTypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(`{"jiraId":"jira-1","eventType":"issue_created","issue":{"id":"1","key":"OPS-1"}}`),
		Attributes: map[string]string{
			string(sqsTypes.MessageSystemAttributeNameApproximateReceiveCount): receiveCount,
		},
	}
}

func TestEnqueueSerializesMessage(t *testing.T) {
	f := &fakeSQS{}
	q := NewNotificationQueue(f, "https://sqs.example.com/notifications", nil)

	msg := types.NotificationMessage{
		JiraID:    "jira-1",
		EventType: types.EventIssueCreated,
		Issue:     &types.NotificationIssue{ID: "1", Key: "OPS-1"},
		TraceID:   "trace-42",
	}
	if err := q.Enqueue(context.Background(), msg); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if len(f.sent) != 1 {
		t.Fatalf("expected 1 send, got %d", len(f.sent))
	}
	sent := f.sent[0]
	if aws.ToString(sent.QueueUrl) != "https://sqs.example.com/notifications" {
		t.Errorf("wrong queue URL: %s", aws.ToString(sent.QueueUrl))
	}

	var decoded types.NotificationMessage
	if err := json.Unmarshal([]byte(aws.ToString(sent.MessageBody)), &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.JiraID != "jira-1" || decoded.EventType != types.EventIssueCreated {
		t.Errorf("round trip mismatch: %+v", decoded)
	}

	attr, ok := sent.MessageAttributes["trace_id"]
	if !ok || aws.ToString(attr.StringValue) != "trace-42" {
		t.Errorf("trace attribute missing or wrong: %+v", sent.MessageAttributes)
	}
}

func TestEnqueueFailureMapsToQueueUnavailable(t *testing.T) {
	f := &fakeSQS{sendErr: fmt.Errorf("simulated SQS outage")}
	q := NewNotificationQueue(f, "url", nil)

	err := q.Enqueue(context.Background(), types.NotificationMessage{JiraID: "jira-1"})
	if !types.IsCode(err, types.ErrCodeQueueUnavailable) {
		t.Errorf("expected queue unavailable error, got %v", err)
	}
}

func TestDequeueBatchChunksOverReceiveLimit(t *testing.T) {
	f := &fakeSQS{}
	for i := 0; i < 25; i++ {
		f.pending = append(f.pending, pendingMessage(fmt.Sprintf("m%d", i), "1"))
	}
	q := NewNotificationQueue(f, "url", nil)

	envelopes, err := q.DequeueBatch(context.Background(), 32)
	if err != nil {
		t.Fatalf("DequeueBatch returned error: %v", err)
	}
	if len(envelopes) != 25 {
		t.Fatalf("expected 25 envelopes, got %d", len(envelopes))
	}
	// 10 + 10 + 5, then one empty receive ends the loop early: the SQS
	// per-request cap is 10.
	for _, requested := range f.receiveCaps {
		if requested > 10 {
			t.Errorf("receive requested %d messages, above the SQS cap", requested)
		}
	}
}

func TestDequeueBatchEmptyQueue(t *testing.T) {
	q := NewNotificationQueue(&fakeSQS{}, "url", nil)
	envelopes, err := q.DequeueBatch(context.Background(), 32)
	if err != nil {
		t.Fatalf("DequeueBatch returned error: %v", err)
	}
	if len(envelopes) != 0 {
		t.Errorf("expected empty slice, got %d envelopes", len(envelopes))
	}
}

func TestDequeueBatchCarriesDequeueCount(t *testing.T) {
	f := &fakeSQS{pending: []sqsTypes.Message{pendingMessage("m1", "4")}}
	q := NewNotificationQueue(f, "url", nil)

	envelopes, err := q.DequeueBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("DequeueBatch returned error: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envelopes))
	}
	env := envelopes[0]
	if env.MessageID != "m1" || env.ReceiptHandle != "rh-m1" {
		t.Errorf("envelope identity wrong: %+v", env)
	}
	if env.DequeueCount != 4 {
		t.Errorf("expected dequeue count 4, got %d", env.DequeueCount)
	}
}

func TestDequeueBatchParsesSentTimestamp(t *testing.T) {
	sentAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	msg := pendingMessage("m1", "1")
	msg.Attributes[string(sqsTypes.MessageSystemAttributeNameSentTimestamp)] = strconv.FormatInt(sentAt.UnixMilli(), 10)

	f := &fakeSQS{pending: []sqsTypes.Message{msg}}
	q := NewNotificationQueue(f, "url", nil)

	envelopes, err := q.DequeueBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("DequeueBatch returned error: %v", err)
	}
	if len(envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(envelopes))
	}
	if !envelopes[0].SentAt.Equal(sentAt) {
		t.Errorf("expected SentAt %v, got %v", sentAt, envelopes[0].SentAt)
	}
}

func TestDequeueBatchMissingSentTimestamp(t *testing.T) {
	f := &fakeSQS{pending: []sqsTypes.Message{pendingMessage("m1", "1")}}
	q := NewNotificationQueue(f, "url", nil)

	envelopes, err := q.DequeueBatch(context.Background(), 1)
	if err != nil {
		t.Fatalf("DequeueBatch returned error: %v", err)
	}
	if !envelopes[0].SentAt.IsZero() {
		t.Errorf("expected zero SentAt without the attribute, got %v", envelopes[0].SentAt)
	}
}

func TestDeleteMessageUsesReceiptHandle(t *testing.T) {
	f := &fakeSQS{}
	q := NewNotificationQueue(f, "url", nil)

	if err := q.DeleteMessage(context.Background(), "m1", "rh-m1"); err != nil {
		t.Fatalf("DeleteMessage returned error: %v", err)
	}
	if len(f.deleted) != 1 || f.deleted[0] != "rh-m1" {
		t.Errorf("expected delete by receipt handle, got %v", f.deleted)
	}
}
