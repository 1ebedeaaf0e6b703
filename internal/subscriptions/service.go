// Package subscriptions implements the subscription service: CRUD over the
// subscription store with duplicate detection, filter validation, and
// best-effort lifecycle events to the analytics sink.
package subscriptions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"teamsjira/internal/filter"
	"teamsjira/internal/types"
)

// Store defines the persistence contract the service needs. Implemented by
// db.SubscriptionRepository.
type Store interface {
	Insert(ctx context.Context, sub *types.Subscription) error
	Update(ctx context.Context, sub *types.Subscription) error
	GetByID(ctx context.Context, id string) (*types.Subscription, error)
	ListByJiraID(ctx context.Context, jiraID string) ([]*types.Subscription, error)
	ListByConversation(ctx context.Context, jiraID, conversationID string) ([]*types.Subscription, error)
	SetActive(ctx context.Context, id string, isActive bool) error
	Delete(ctx context.Context, id string) error
}

// EventEmitter receives subscription lifecycle events. Emission is best
// effort and asynchronous; failures never affect the primary operation.
type EventEmitter interface {
	Emit(ctx context.Context, event types.SubscriptionEvent) error
}

// emitTimeout bounds the background lifecycle-event emission.
const emitTimeout = 5 * time.Second

// Service orchestrates subscription CRUD, dedup, and lifecycle events.
type Service struct {
	store   Store
	emitter EventEmitter
	logger  *slog.Logger
}

// NewService creates a subscription Service. The emitter may be nil, in
// which case no lifecycle events are emitted.
func NewService(store Store, emitter EventEmitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		emitter: emitter,
		logger:  logger,
	}
}

// Create validates the subscription, rejects duplicates within the same
// scope, persists it with a newly assigned ID, and returns that ID.
func (s *Service) Create(ctx context.Context, sub *types.Subscription) (string, error) {
	if err := validateSubscription(sub); err != nil {
		return "", err
	}

	if err := s.checkDuplicate(ctx, sub, ""); err != nil {
		return "", err
	}

	sub.ID = uuid.New().String()
	sub.IsActive = true
	if err := s.store.Insert(ctx, sub); err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID,
		"jira_id", sub.JiraID,
		"subscription_type", string(sub.Type),
	)
	s.emit(ctx, *sub, types.SubscriptionCreated)
	return sub.ID, nil
}

// Update rewrites a subscription's mutable fields in place, preserving its
// ID. Duplicate-freeness is re-validated against all other subscriptions
// in the same Jira instance (excluding itself).
func (s *Service) Update(ctx context.Context, sub *types.Subscription) error {
	if sub.ID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "subscriptionId is required", nil)
	}
	if err := validateSubscription(sub); err != nil {
		return err
	}

	existing, err := s.store.GetByID(ctx, sub.ID)
	if err != nil {
		return err
	}
	if existing.JiraID != sub.JiraID {
		return types.NewAppError(types.ErrCodeNotFoundSubscription,
			"subscription does not belong to this Jira instance", nil)
	}
	// Mute state is only changed through ToggleActive.
	sub.IsActive = existing.IsActive

	if err := s.checkDuplicate(ctx, sub, sub.ID); err != nil {
		return err
	}

	if err := s.store.Update(ctx, sub); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription updated",
		"subscription_id", sub.ID,
		"jira_id", sub.JiraID,
	)
	s.emit(ctx, *sub, types.SubscriptionUpdated)
	return nil
}

// GetSubscriptionsByJiraID returns all subscriptions (active and inactive)
// for a Jira instance. The notification processor filters by IsActive.
func (s *Service) GetSubscriptionsByJiraID(ctx context.Context, jiraID string) ([]*types.Subscription, error) {
	return s.store.ListByJiraID(ctx, jiraID)
}

// GetSubscriptionsByConversation returns the subscriptions addressed to
// one Teams conversation, for the settings UI.
func (s *Service) GetSubscriptionsByConversation(ctx context.Context, jiraID, conversationID string) ([]*types.Subscription, error) {
	return s.store.ListByConversation(ctx, jiraID, conversationID)
}

// ToggleActive flips the mute state without deleting. Setting the current
// state again is an idempotent no-op.
func (s *Service) ToggleActive(ctx context.Context, subscriptionID string, isActive bool) error {
	sub, err := s.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if err := s.store.SetActive(ctx, subscriptionID, isActive); err != nil {
		return err
	}

	action := types.SubscriptionDisabled
	if isActive {
		action = types.SubscriptionEnabled
	}
	sub.IsActive = isActive

	s.logger.InfoContext(ctx, "subscription toggled",
		"subscription_id", subscriptionID,
		"is_active", isActive,
	)
	s.emit(ctx, *sub, action)
	return nil
}

// Delete hard-deletes a subscription.
func (s *Service) Delete(ctx context.Context, subscriptionID string) error {
	sub, err := s.store.GetByID(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, subscriptionID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription deleted",
		"subscription_id", subscriptionID,
		"jira_id", sub.JiraID,
	)
	s.emit(ctx, *sub, types.SubscriptionDeleted)
	return nil
}

// checkDuplicate rejects an equivalent subscription in the same scope.
// excludeID skips the subscription being updated. This is a read-then-check;
// the store's unique index closes the remaining concurrent-create race.
func (s *Service) checkDuplicate(ctx context.Context, sub *types.Subscription, excludeID string) error {
	existing, err := s.store.ListByJiraID(ctx, sub.JiraID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.ID == excludeID {
			continue
		}
		if other.EqualScope(sub) {
			return types.NewAppError(types.ErrCodeConflictDuplicateSubscription,
				"an equivalent subscription already exists for this target", nil)
		}
	}
	return nil
}

// emit sends a lifecycle event to the analytics sink on a detached
// context so it can neither block nor fail the primary operation.
func (s *Service) emit(ctx context.Context, sub types.Subscription, action types.SubscriptionAction) {
	if s.emitter == nil {
		return
	}

	event := types.SubscriptionEvent{
		Subscription: sub,
		Action:       action,
		OccurredAt:   time.Now().UTC(),
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(bg, emitTimeout)
		defer cancel()
		if err := s.emitter.Emit(emitCtx, event); err != nil {
			s.logger.Warn("subscription lifecycle event emission failed",
				"subscription_id", sub.ID,
				"action", string(action),
				"error", err.Error(),
			)
		}
	}()
}

// validateSubscription enforces the subscription invariants: a valid type,
// exactly one delivery target matching the type, a non-empty event-type
// set drawn from the type's allowed tokens, and a parseable filter.
func validateSubscription(sub *types.Subscription) error {
	if sub.JiraID == "" {
		return types.NewAppError(types.ErrCodeValidationMissingField, "jiraId is required", nil)
	}

	switch sub.Type {
	case types.SubscriptionChannel:
		if sub.ConversationID == "" {
			return types.NewAppError(types.ErrCodeValidationTarget,
				"channel subscriptions require a conversationId", nil)
		}
		if sub.MicrosoftUserID != "" {
			return types.NewAppError(types.ErrCodeValidationTarget,
				"channel subscriptions must not carry a microsoftUserId", nil)
		}
	case types.SubscriptionPersonal:
		if sub.MicrosoftUserID == "" {
			return types.NewAppError(types.ErrCodeValidationTarget,
				"personal subscriptions require a microsoftUserId", nil)
		}
	default:
		return types.NewAppError(types.ErrCodeValidationMissingField,
			fmt.Sprintf("unknown subscription type %q", sub.Type), nil)
	}

	if len(sub.EventTypes) == 0 {
		return types.NewAppError(types.ErrCodeValidationEventTypes, "eventTypes must not be empty", nil)
	}
	allowed := types.PersonalEventTypes
	if sub.Type == types.SubscriptionChannel {
		allowed = types.ChannelEventTypes
	}
	for _, et := range sub.EventTypes {
		if !containsEventType(allowed, et) {
			return types.NewAppError(types.ErrCodeValidationEventTypes,
				fmt.Sprintf("event type %q is not valid for %s subscriptions", et, sub.Type), nil)
		}
	}

	if _, err := filter.Parse(sub.Filter); err != nil {
		return types.NewAppError(types.ErrCodeValidationFilter, err.Error(), err)
	}
	return nil
}

func containsEventType(set []types.EventType, et types.EventType) bool {
	for _, t := range set {
		if t == et {
			return true
		}
	}
	return false
}
