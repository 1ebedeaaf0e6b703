package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"teamsjira/internal/types"
)

// SubscriptionRepository provides data access for the
// notification_subscriptions table.
//
// Schema (reference):
//
//	CREATE TABLE notification_subscriptions (
//	    id                        UUID PRIMARY KEY,
//	    jira_id                   TEXT NOT NULL,
//	    subscription_type         TEXT NOT NULL,
//	    conversation_id           TEXT NOT NULL DEFAULT '',
//	    conversation_reference_id TEXT NOT NULL DEFAULT '',
//	    microsoft_user_id         TEXT NOT NULL DEFAULT '',
//	    project_id                TEXT NOT NULL DEFAULT '',
//	    project_name              TEXT NOT NULL DEFAULT '',
//	    filter                    TEXT NOT NULL DEFAULT '',
//	    event_types               TEXT[] NOT NULL,
//	    is_active                 BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX idx_subscriptions_jira ON notification_subscriptions (jira_id);
//	-- Backs the service-level duplicate check against concurrent creates.
//	CREATE UNIQUE INDEX idx_subscriptions_scope ON notification_subscriptions
//	    (jira_id, subscription_type, conversation_id, microsoft_user_id,
//	     project_id, filter, (ARRAY(SELECT unnest(event_types) ORDER BY 1)));
type SubscriptionRepository struct {
	db DBTX
}

// NewSubscriptionRepository creates a new SubscriptionRepository backed by
// the given database connection (pool or transaction).
func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `id, jira_id, subscription_type, conversation_id,
	conversation_reference_id, microsoft_user_id, project_id, project_name,
	filter, event_types, is_active, created_at, updated_at`

// Insert persists a new subscription. The caller assigns the ID.
func (r *SubscriptionRepository) Insert(ctx context.Context, sub *types.Subscription) error {
	row := r.db.QueryRow(ctx,
		`INSERT INTO notification_subscriptions
		 (id, jira_id, subscription_type, conversation_id, conversation_reference_id,
		  microsoft_user_id, project_id, project_name, filter, event_types, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at, updated_at`,
		sub.ID,
		sub.JiraID,
		string(sub.Type),
		sub.ConversationID,
		sub.ConversationReferenceID,
		sub.MicrosoftUserID,
		sub.ProjectID,
		sub.ProjectName,
		sub.Filter,
		eventTypeStrings(sub.EventTypes),
		sub.IsActive,
	)
	if err := row.Scan(&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert subscription", err)
	}
	return nil
}

// Update rewrites the mutable fields of an existing subscription in place,
// preserving its ID. Returns not_found_subscription if the ID is unknown.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *types.Subscription) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_subscriptions
		 SET conversation_id = $1,
		     conversation_reference_id = $2,
		     microsoft_user_id = $3,
		     project_id = $4,
		     project_name = $5,
		     filter = $6,
		     event_types = $7,
		     is_active = $8,
		     updated_at = NOW()
		 WHERE id = $9 AND jira_id = $10`,
		sub.ConversationID,
		sub.ConversationReferenceID,
		sub.MicrosoftUserID,
		sub.ProjectID,
		sub.ProjectName,
		sub.Filter,
		eventTypeStrings(sub.EventTypes),
		sub.IsActive,
		sub.ID,
		sub.JiraID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// GetByID returns one subscription or not_found_subscription.
func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*types.Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM notification_subscriptions WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscription", err)
	}
	return sub, nil
}

// ListByJiraID returns all subscriptions (active and inactive) for a Jira
// instance. The processor filters by IsActive.
func (r *SubscriptionRepository) ListByJiraID(ctx context.Context, jiraID string) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM notification_subscriptions WHERE jira_id = $1
		 ORDER BY created_at`, jiraID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscriptions", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// ListByConversation returns all subscriptions addressed to one Teams
// conversation within a Jira instance.
func (r *SubscriptionRepository) ListByConversation(ctx context.Context, jiraID, conversationID string) ([]*types.Subscription, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriptionColumns+`
		 FROM notification_subscriptions
		 WHERE jira_id = $1 AND conversation_id = $2
		 ORDER BY created_at`, jiraID, conversationID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list subscriptions by conversation", err)
	}
	defer rows.Close()

	return collectSubscriptions(rows)
}

// SetActive flips the mute state without deleting the subscription.
func (r *SubscriptionRepository) SetActive(ctx context.Context, id string, isActive bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notification_subscriptions
		 SET is_active = $1, updated_at = NOW()
		 WHERE id = $2`, isActive, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to toggle subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// Delete hard-deletes a subscription.
func (r *SubscriptionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_subscriptions WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscription, "subscription not found", nil)
	}
	return nil
}

// scanSubscription scans one row into a Subscription.
func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	var subType string
	var eventTypes []string
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&sub.ID,
		&sub.JiraID,
		&subType,
		&sub.ConversationID,
		&sub.ConversationReferenceID,
		&sub.MicrosoftUserID,
		&sub.ProjectID,
		&sub.ProjectName,
		&sub.Filter,
		&eventTypes,
		&sub.IsActive,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Type = types.SubscriptionType(subType)
	sub.EventTypes = make([]types.EventType, 0, len(eventTypes))
	for _, et := range eventTypes {
		sub.EventTypes = append(sub.EventTypes, types.EventType(et))
	}
	sub.CreatedAt = createdAt
	sub.UpdatedAt = updatedAt
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*types.Subscription, error) {
	var subs []*types.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read subscriptions", err)
	}
	return subs, nil
}

func eventTypeStrings(eventTypes []types.EventType) []string {
	out := make([]string, 0, len(eventTypes))
	for _, et := range eventTypes {
		out = append(out, string(et))
	}
	return out
}
