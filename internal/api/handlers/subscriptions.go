// Package handlers contains the HTTP handler implementations for the
// subscription API consumed by the Teams app UI.
//
// Routes map 1:1 to subscription service operations:
//   - POST   /api/notifications/{jiraId}                    create
//   - GET    /api/notifications/{jiraId}?conversationId=... list by conversation
//   - PUT    /api/notifications/{jiraId}/{subscriptionId}   update
//   - PATCH  /api/notifications/{jiraId}/{subscriptionId}   toggle mute state
//   - DELETE /api/notifications/{jiraId}/{subscriptionId}   delete
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"teamsjira/internal/core"
	"teamsjira/internal/types"
)

// SubscriptionService defines the service contract for subscription
// operations. Mirrors the concrete subscriptions.Service methods used by
// this handler; the handler depends on the abstraction for testability.
type SubscriptionService interface {
	Create(ctx context.Context, sub *types.Subscription) (string, error)
	Update(ctx context.Context, sub *types.Subscription) error
	GetSubscriptionsByConversation(ctx context.Context, jiraID, conversationID string) ([]*types.Subscription, error)
	ToggleActive(ctx context.Context, subscriptionID string, isActive bool) error
	Delete(ctx context.Context, subscriptionID string) error
}

// SubscriptionRequest is the request body for create and update.
type SubscriptionRequest struct {
	SubscriptionType        string   `json:"subscriptionType" validate:"required,oneof=personal channel"`
	ConversationID          string   `json:"conversationId,omitempty"`
	ConversationReferenceID string   `json:"conversationReferenceId,omitempty"`
	MicrosoftUserID         string   `json:"microsoftUserId,omitempty"`
	ProjectID               string   `json:"projectId,omitempty"`
	ProjectName             string   `json:"projectName,omitempty"`
	Filter                  string   `json:"filter,omitempty"`
	EventTypes              []string `json:"eventTypes" validate:"required,min=1"`
}

// ToggleRequest is the request body for PATCH (mute/unmute).
type ToggleRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

// CreateSubscriptionResponse returns the assigned subscription ID.
type CreateSubscriptionResponse struct {
	SubscriptionID string `json:"subscriptionId"`
}

// SubscriptionHandler serves the subscription CRUD surface.
type SubscriptionHandler struct {
	service   SubscriptionService
	validator *core.Validator
}

// NewSubscriptionHandler creates a SubscriptionHandler.
func NewSubscriptionHandler(service SubscriptionService, validator *core.Validator) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, validator: validator}
}

// RegisterRoutes mounts the subscription routes on the router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/notifications/{jiraId}", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.ListByConversation)
		r.Put("/{subscriptionId}", h.Update)
		r.Patch("/{subscriptionId}", h.Toggle)
		r.Delete("/{subscriptionId}", h.Delete)
	})
}

// Create handles POST /api/notifications/{jiraId}.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	sub, err := h.decodeSubscription(r, "")
	if err != nil {
		core.Error(w, r, err)
		return
	}

	id, err := h.service.Create(r.Context(), sub)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: CreateSubscriptionResponse{SubscriptionID: id},
	})
}

// Update handles PUT /api/notifications/{jiraId}/{subscriptionId}.
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	sub, err := h.decodeSubscription(r, chi.URLParam(r, "subscriptionId"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.service.Update(r.Context(), sub); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sub})
}

// ListByConversation handles GET /api/notifications/{jiraId}?conversationId=...
func (h *SubscriptionHandler) ListByConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"conversationId query parameter is required", nil))
		return
	}

	subs, err := h.service.GetSubscriptionsByConversation(r.Context(), chi.URLParam(r, "jiraId"), conversationID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if subs == nil {
		subs = []*types.Subscription{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: subs})
}

// Toggle handles PATCH /api/notifications/{jiraId}/{subscriptionId}.
func (h *SubscriptionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.service.ToggleActive(r.Context(), chi.URLParam(r, "subscriptionId"), *req.IsActive); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: map[string]bool{"isActive": *req.IsActive},
	})
}

// Delete handles DELETE /api/notifications/{jiraId}/{subscriptionId}.
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "subscriptionId")); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeSubscription parses and validates the request body into a domain
// subscription scoped to the route's Jira instance.
func (h *SubscriptionHandler) decodeSubscription(r *http.Request, subscriptionID string) (*types.Subscription, error) {
	var req SubscriptionRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		return nil, err
	}

	eventTypes := make([]types.EventType, 0, len(req.EventTypes))
	for _, et := range req.EventTypes {
		eventTypes = append(eventTypes, types.EventType(et))
	}

	return &types.Subscription{
		ID:                      subscriptionID,
		JiraID:                  chi.URLParam(r, "jiraId"),
		Type:                    types.SubscriptionType(req.SubscriptionType),
		ConversationID:          req.ConversationID,
		ConversationReferenceID: req.ConversationReferenceID,
		MicrosoftUserID:         req.MicrosoftUserID,
		ProjectID:               req.ProjectID,
		ProjectName:             req.ProjectName,
		Filter:                  req.Filter,
		EventTypes:              eventTypes,
		IsActive:                true,
	}, nil
}
