package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"teamsjira/internal/notifications/card"
	"teamsjira/internal/types"
)

// TokenProvider supplies a Bot Framework bearer token for the connector
// service. Token acquisition and refresh (OAuth client-credentials) is an
// external collaborator.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// BotConnectorClient sends proactive messages to Teams conversations via
// the Bot Framework connector REST API. Each Send is at-most-once: no
// internal retry, per the delivery boundary contract.
type BotConnectorClient struct {
	base   *BaseClient
	tokens TokenProvider
	logger *slog.Logger
}

// NewBotConnectorClient creates a connector client. The http client's
// timeout bounds each send attempt.
func NewBotConnectorClient(httpClient *http.Client, tokens TokenProvider, logger *slog.Logger) *BotConnectorClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotConnectorClient{
		base:   NewBaseClient(httpClient, "bot-connector", "TeamsJira-Notifications/1.0"),
		tokens: tokens,
		logger: logger,
	}
}

// Send posts the card payload as an activity to the conversation:
//
//	POST {serviceUrl}/v3/conversations/{conversationId}/activities
//
// A non-2xx connector response is returned as an AppError so the
// processor can account the recipient as failed.
func (c *BotConnectorClient) Send(ctx context.Context, ref types.ConversationReference, payload card.Payload) error {
	if ref.ServiceURL == "" || ref.ConversationID == "" {
		return types.NewAppError(types.ErrCodeValidationTarget,
			"conversation reference is missing serviceUrl or conversationId", nil)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamTeams, "failed to acquire connector token", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("bot connector: failed to marshal activity: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimSuffix(ref.ServiceURL, "/"),
		url.PathEscape(ref.ConversationID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("bot connector: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return types.NewAppError(types.ErrCodeUpstreamTeams,
			fmt.Sprintf("connector returned %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	c.logger.InfoContext(ctx, "proactive message sent",
		"conversation_id", ref.ConversationID,
		"is_group", ref.IsGroup,
	)
	return nil
}
