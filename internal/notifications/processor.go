// Package notifications implements the notification processor: it matches
// one inbound Jira event against the stored subscriptions for its Jira
// instance, applies per-recipient view-permission gating, builds the card
// payload, and dispatches to each matched Teams conversation.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"teamsjira/internal/core"
	"teamsjira/internal/filter"
	"teamsjira/internal/notifications/card"
	"teamsjira/internal/types"
)

// SubscriptionSource provides the subscriptions to match against.
// Implemented by subscriptions.Service.
type SubscriptionSource interface {
	GetSubscriptionsByJiraID(ctx context.Context, jiraID string) ([]*types.Subscription, error)
}

// ConversationResolver maps a subscription to a concrete conversation
// reference: the stored channel conversation, or the user's 1:1 bot chat.
// The bot state store behind it is an external collaborator.
type ConversationResolver interface {
	Resolve(ctx context.Context, sub *types.Subscription) (types.ConversationReference, error)
}

// Dispatcher sends a built payload to one conversation. At-most-once per
// call; retry happens only via queue redelivery of the whole message.
type Dispatcher interface {
	Send(ctx context.Context, ref types.ConversationReference, payload card.Payload) error
}

// Processor matches inbound notification messages against subscriptions
// and dispatches delivery payloads.
type Processor struct {
	subs     SubscriptionSource
	resolver ConversationResolver
	builder  *card.Builder
	sender   Dispatcher
	metrics  core.NotificationMetrics
	logger   *slog.Logger
}

// NewProcessor creates a Processor. Metrics may be nil (treated as no-op).
func NewProcessor(
	subs SubscriptionSource,
	resolver ConversationResolver,
	builder *card.Builder,
	sender Dispatcher,
	metrics core.NotificationMetrics,
	logger *slog.Logger,
) *Processor {
	if metrics == nil {
		metrics = core.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		subs:     subs,
		resolver: resolver,
		builder:  builder,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
	}
}

// ProcessNotification handles one inbound message. It returns an error on
// any unrecoverable condition so the job can leave the message un-acked
// for queue-driven retry.
//
// No matching subscription is a successful no-op. A dispatch failure for
// one recipient is logged and does not block the others; only when every
// dispatch for the message fails does the call report failure.
func (p *Processor) ProcessNotification(ctx context.Context, msg *types.NotificationMessage) error {
	start := time.Now()
	logger := p.logger.With(
		"jira_id", msg.JiraID,
		"event_type", string(msg.EventType),
		"trace_id", msg.TraceID,
	)

	subs, err := p.subs.GetSubscriptionsByJiraID(ctx, msg.JiraID)
	if err != nil {
		return fmt.Errorf("processor: failed to load subscriptions for %s: %w", msg.JiraID, err)
	}

	attempted := 0
	succeeded := 0

	for _, sub := range subs {
		if !sub.IsActive || !sub.HasEventType(msg.EventType) {
			continue
		}

		matched, err := p.matchesFilter(sub, msg)
		if err != nil {
			return fmt.Errorf("processor: filter evaluation failed for subscription %s: %w", sub.ID, err)
		}
		if !matched {
			continue
		}

		bctx, deliverable := p.gateRecipient(sub, msg)
		if !deliverable {
			logger.Info("recipient filtered by view permissions",
				"subscription_id", sub.ID,
				"subscription_type", string(sub.Type),
			)
			p.metrics.RecordDelivery(ctx, core.MetricSkipped)
			continue
		}

		payload := p.builder.Build(msg, bctx)

		// Resolution is recipient-specific: a failure here counts as a
		// failed dispatch for this recipient, not a whole-message abort.
		attempted++
		ref, err := p.resolver.Resolve(ctx, sub)
		if err != nil {
			logger.Error("conversation resolution failed",
				"subscription_id", sub.ID,
				"error", err.Error(),
			)
			p.metrics.RecordDelivery(ctx, core.MetricFailed)
			continue
		}

		if err := p.sender.Send(ctx, ref, payload); err != nil {
			// Per-recipient dispatch failure: log and continue.
			logger.Error("dispatch failed",
				"subscription_id", sub.ID,
				"conversation_id", ref.ConversationID,
				"error", err.Error(),
			)
			p.metrics.RecordDelivery(ctx, core.MetricFailed)
			continue
		}
		succeeded++
		p.metrics.RecordDelivery(ctx, core.MetricSuccess)
	}

	p.metrics.RecordProcessingLatency(ctx, time.Since(start))

	if attempted > 0 && succeeded == 0 {
		return types.NewAppError(types.ErrCodeUpstreamTeams,
			fmt.Sprintf("all %d dispatches failed", attempted), nil)
	}

	logger.Info("notification processed",
		"matched", attempted,
		"delivered", succeeded,
	)
	return nil
}

// matchesFilter evaluates the subscription's stored filter predicate
// against the message's issue snapshot. The filter was validated at save
// time; a parse failure here is a processing error, not a silent skip.
func (p *Processor) matchesFilter(sub *types.Subscription, msg *types.NotificationMessage) (bool, error) {
	clauses, err := filter.Parse(sub.Filter)
	if err != nil {
		return false, err
	}
	return clauses.Matches(msg.Issue), nil
}

// gateRecipient applies the per-recipient view-permission gate and
// resolves the card framing context.
//
// Personal subscriptions deliver only when the recipient appears in the
// event's watcher or mention lists with CanViewIssue true (and
// CanViewComment true for comment events); the flags are precomputed
// upstream and trusted as-is. An absent recipient means the permission
// cannot be verified, so nothing is delivered.
//
// Channel subscriptions have no per-user flags; they are gated only on
// internal comments, which must not surface in channels.
func (p *Processor) gateRecipient(sub *types.Subscription, msg *types.NotificationMessage) (card.Context, bool) {
	if sub.Type == types.SubscriptionChannel {
		if msg.EventType.IsCommentEvent() && msg.Comment != nil && msg.Comment.IsInternal {
			return card.Context{}, false
		}
		return card.Context{}, true
	}

	recipient := findRecipient(msg, sub.MicrosoftUserID)
	if recipient == nil {
		return card.Context{}, false
	}
	if !recipient.CanViewIssue {
		return card.Context{}, false
	}
	if msg.EventType.IsCommentEvent() && !recipient.CanViewComment {
		return card.Context{}, false
	}

	return card.Context{IsMention: msg.IsMentioned(sub.MicrosoftUserID)}, true
}

// findRecipient locates the recipient's permission snapshot in the
// event's mention and watcher lists. Mentions take precedence because
// their flags are computed against the comment being delivered.
func findRecipient(msg *types.NotificationMessage, microsoftUserID string) *types.NotificationUser {
	for i := range msg.Mentions {
		if msg.Mentions[i].MicrosoftUserID == microsoftUserID {
			return &msg.Mentions[i]
		}
	}
	for i := range msg.Watchers {
		if msg.Watchers[i].MicrosoftUserID == microsoftUserID {
			return &msg.Watchers[i]
		}
	}
	return nil
}
