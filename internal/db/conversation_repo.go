package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"teamsjira/internal/types"
)

// ConversationReferenceRepository resolves delivery targets from the bot
// state the messaging extension records when it is installed in a channel
// or first talked to by a user.
//
// Schema (reference):
//
//	CREATE TABLE conversation_references (
//	    id                TEXT PRIMARY KEY,
//	    conversation_id   TEXT NOT NULL,
//	    service_url       TEXT NOT NULL,
//	    tenant_id         TEXT NOT NULL DEFAULT '',
//	    microsoft_user_id TEXT NOT NULL DEFAULT '',
//	    is_group          BOOLEAN NOT NULL DEFAULT FALSE,
//	    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//	CREATE INDEX idx_conversation_refs_user ON conversation_references (microsoft_user_id)
//	    WHERE microsoft_user_id <> '';
type ConversationReferenceRepository struct {
	db DBTX
}

// NewConversationReferenceRepository creates a repository backed by the
// given database connection (pool or transaction).
func NewConversationReferenceRepository(db DBTX) *ConversationReferenceRepository {
	return &ConversationReferenceRepository{db: db}
}

// Resolve maps a subscription to its stored conversation reference. Channel
// subscriptions resolve by the reference ID captured at bot install time;
// personal subscriptions resolve to the user's 1:1 bot chat.
func (r *ConversationReferenceRepository) Resolve(ctx context.Context, sub *types.Subscription) (types.ConversationReference, error) {
	switch sub.Type {
	case types.SubscriptionChannel:
		return r.getByID(ctx, sub.ConversationReferenceID)
	case types.SubscriptionPersonal:
		return r.getByUser(ctx, sub.MicrosoftUserID)
	default:
		return types.ConversationReference{}, types.NewAppError(types.ErrCodeValidationTarget,
			"unknown subscription type "+string(sub.Type), nil)
	}
}

// Upsert stores or refreshes a conversation reference keyed by its ID.
func (r *ConversationReferenceRepository) Upsert(ctx context.Context, id string, ref types.ConversationReference, microsoftUserID string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO conversation_references
		 (id, conversation_id, service_url, tenant_id, microsoft_user_id, is_group)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		     conversation_id = EXCLUDED.conversation_id,
		     service_url = EXCLUDED.service_url,
		     tenant_id = EXCLUDED.tenant_id,
		     microsoft_user_id = EXCLUDED.microsoft_user_id,
		     is_group = EXCLUDED.is_group,
		     updated_at = NOW()`,
		id, ref.ConversationID, ref.ServiceURL, ref.TenantID, microsoftUserID, ref.IsGroup,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert conversation reference", err)
	}
	return nil
}

func (r *ConversationReferenceRepository) getByID(ctx context.Context, id string) (types.ConversationReference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT conversation_id, service_url, tenant_id, is_group
		 FROM conversation_references WHERE id = $1`, id)
	return scanReference(row, "no conversation reference with id "+id)
}

func (r *ConversationReferenceRepository) getByUser(ctx context.Context, microsoftUserID string) (types.ConversationReference, error) {
	row := r.db.QueryRow(ctx,
		`SELECT conversation_id, service_url, tenant_id, is_group
		 FROM conversation_references
		 WHERE microsoft_user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT 1`, microsoftUserID)
	return scanReference(row, "no personal conversation for user "+microsoftUserID)
}

func scanReference(row pgx.Row, notFoundMsg string) (types.ConversationReference, error) {
	var ref types.ConversationReference
	err := row.Scan(&ref.ConversationID, &ref.ServiceURL, &ref.TenantID, &ref.IsGroup)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.ConversationReference{}, types.NewAppError(types.ErrCodeNotFoundConversation, notFoundMsg, nil)
	}
	if err != nil {
		return types.ConversationReference{}, types.NewAppError(types.ErrCodeInternalDB,
			"failed to load conversation reference", err)
	}
	return ref, nil
}
