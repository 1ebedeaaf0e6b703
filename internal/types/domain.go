// Package types defines the shared domain model for the Teams/Jira
// notification pipeline: subscriptions, inbound Jira notification events,
// and the conversation addressing used for proactive Teams delivery.
package types

import "time"

// SubscriptionType determines the delivery target shape of a subscription.
type SubscriptionType string

const (
	// SubscriptionPersonal delivers to a user's 1:1 bot conversation.
	SubscriptionPersonal SubscriptionType = "personal"
	// SubscriptionChannel delivers to a team channel conversation.
	SubscriptionChannel SubscriptionType = "channel"
)

// EventType is a Jira event token a subscription can react to.
type EventType string

const (
	EventIssueCreated   EventType = "issue_created"
	EventIssueUpdated   EventType = "issue_updated"
	EventIssueAssigned  EventType = "issue_assigned"
	EventCommentCreated EventType = "comment_created"
	EventCommentUpdated EventType = "comment_updated"
	EventCommentDeleted EventType = "comment_deleted"
)

// ChannelEventTypes is the set of event types a channel subscription may
// select. Personal subscriptions may additionally select assignment and
// comment-deletion events.
var ChannelEventTypes = []EventType{
	EventIssueCreated,
	EventIssueUpdated,
	EventCommentCreated,
	EventCommentUpdated,
}

// PersonalEventTypes is the richer set available to personal subscriptions.
var PersonalEventTypes = []EventType{
	EventIssueCreated,
	EventIssueUpdated,
	EventIssueAssigned,
	EventCommentCreated,
	EventCommentUpdated,
	EventCommentDeleted,
}

// IsCommentEvent reports whether the event concerns a comment, which makes
// the per-recipient CanViewComment flag relevant.
func (e EventType) IsCommentEvent() bool {
	switch e {
	case EventCommentCreated, EventCommentUpdated, EventCommentDeleted:
		return true
	}
	return false
}

// Subscription is a stored rule mapping a Jira event filter to a Teams
// delivery target. Exactly one of ConversationID (channel scope) or
// MicrosoftUserID (personal scope) is populated, per Type.
type Subscription struct {
	ID                      string           `json:"subscriptionId"`
	JiraID                  string           `json:"jiraId"`
	Type                    SubscriptionType `json:"subscriptionType"`
	ConversationID          string           `json:"conversationId,omitempty"`
	ConversationReferenceID string           `json:"conversationReferenceId,omitempty"`
	MicrosoftUserID         string           `json:"microsoftUserId,omitempty"`
	ProjectID               string           `json:"projectId,omitempty"`
	ProjectName             string           `json:"projectName,omitempty"`
	Filter                  string           `json:"filter,omitempty"`
	EventTypes              []EventType      `json:"eventTypes"`
	IsActive                bool             `json:"isActive"`
	CreatedAt               time.Time        `json:"createdAt,omitempty"`
	UpdatedAt               time.Time        `json:"updatedAt,omitempty"`
}

// TargetID returns the delivery-scope identifier used for duplicate
// detection: the conversation for channel subscriptions, the Microsoft
// user for personal ones.
func (s *Subscription) TargetID() string {
	if s.Type == SubscriptionChannel {
		return s.ConversationID
	}
	return s.MicrosoftUserID
}

// EqualScope reports whether two subscriptions cover the same scope and
// would deliver the same notifications: same Jira instance, type, target,
// project, filter string, and event-type set (order-insensitive).
func (s *Subscription) EqualScope(other *Subscription) bool {
	if s.JiraID != other.JiraID ||
		s.Type != other.Type ||
		s.TargetID() != other.TargetID() ||
		s.ProjectID != other.ProjectID ||
		s.Filter != other.Filter {
		return false
	}
	if len(s.EventTypes) != len(other.EventTypes) {
		return false
	}
	set := make(map[EventType]struct{}, len(s.EventTypes))
	for _, et := range s.EventTypes {
		set[et] = struct{}{}
	}
	for _, et := range other.EventTypes {
		if _, ok := set[et]; !ok {
			return false
		}
	}
	return true
}

// HasEventType reports whether the subscription reacts to the given event.
func (s *Subscription) HasEventType(et EventType) bool {
	for _, t := range s.EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// SubscriptionAction is the lifecycle action emitted to the analytics sink
// on subscription mutations.
type SubscriptionAction string

const (
	SubscriptionCreated  SubscriptionAction = "create"
	SubscriptionUpdated  SubscriptionAction = "update"
	SubscriptionDeleted  SubscriptionAction = "delete"
	SubscriptionEnabled  SubscriptionAction = "enabled"
	SubscriptionDisabled SubscriptionAction = "disabled"
)

// SubscriptionEvent is the best-effort lifecycle event sent to the
// external analytics/audit sink on create/update/delete/toggle.
type SubscriptionEvent struct {
	Subscription Subscription       `json:"subscription"`
	Action       SubscriptionAction `json:"action"`
	OccurredAt   time.Time          `json:"occurredAt"`
}

// NotificationUser is a value snapshot of a Jira/Teams user attached to a
// notification event. CanViewIssue and CanViewComment are precomputed by
// the upstream event producer and trusted as-is.
type NotificationUser struct {
	JiraAccountID   string `json:"jiraAccountId,omitempty"`
	MicrosoftUserID string `json:"microsoftUserId,omitempty"`
	Name            string `json:"name,omitempty"`
	CanViewIssue    bool   `json:"canViewIssue"`
	CanViewComment  bool   `json:"canViewComment"`
}

// NotificationIssue is a value snapshot of the issue at event time, not a
// live reference.
type NotificationIssue struct {
	ID          string            `json:"id"`
	Key         string            `json:"key"`
	Summary     string            `json:"summary,omitempty"`
	Type        string            `json:"type,omitempty"`
	Status      string            `json:"status,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	ProjectID   string            `json:"projectId,omitempty"`
	ProjectName string            `json:"projectName,omitempty"`
	Assignee    *NotificationUser `json:"assignee,omitempty"`
	Reporter    *NotificationUser `json:"reporter,omitempty"`
}

// ChangelogEntry is one field-level transition attached to an update event.
type ChangelogEntry struct {
	Field string `json:"field"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

// NotificationComment carries the comment content for comment events.
// IsInternal marks service-desk internal comments that must not be shown
// in channel conversations.
type NotificationComment struct {
	Content    string `json:"content"`
	IsInternal bool   `json:"isInternal"`
}

// NotificationMessage is the inbound, queued representation of one Jira
// event. It is constructed by the external event producer, serialized onto
// the notification queue, and consumed by the notification job.
type NotificationMessage struct {
	JiraID    string               `json:"jiraId"`
	EventType EventType            `json:"eventType"`
	User      *NotificationUser    `json:"user,omitempty"`
	Issue     *NotificationIssue   `json:"issue"`
	Changelog []ChangelogEntry     `json:"changelog,omitempty"`
	Comment   *NotificationComment `json:"comment,omitempty"`
	Watchers  []NotificationUser   `json:"watchers,omitempty"`
	Mentions  []NotificationUser   `json:"mentions,omitempty"`
	TraceID   string               `json:"traceId,omitempty"`
}

// ActorName returns the display name of the user who triggered the event,
// or "Someone" when the actor is unknown.
func (m *NotificationMessage) ActorName() string {
	if m.User != nil && m.User.Name != "" {
		return m.User.Name
	}
	return "Someone"
}

// IsMentioned reports whether the given Microsoft user appears in the
// event's mention list.
func (m *NotificationMessage) IsMentioned(microsoftUserID string) bool {
	for _, u := range m.Mentions {
		if u.MicrosoftUserID == microsoftUserID {
			return true
		}
	}
	return false
}

// ConversationReference addresses one Teams conversation for proactive
// delivery: a channel conversation or a user's 1:1 bot chat.
type ConversationReference struct {
	ConversationID string `json:"conversationId"`
	ServiceURL     string `json:"serviceUrl"`
	TenantID       string `json:"tenantId,omitempty"`
	IsGroup        bool   `json:"isGroup"`
}
