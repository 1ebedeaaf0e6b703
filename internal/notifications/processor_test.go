package notifications

import (
	"context"
	"fmt"
	"testing"

	"teamsjira/internal/notifications/card"
	"teamsjira/internal/types"
)

// --- Test Doubles ---

type mockSubscriptionSource struct {
	subs []*types.Subscription
	err  error
}

func (m *mockSubscriptionSource) GetSubscriptionsByJiraID(ctx context.Context, jiraID string) ([]*types.Subscription, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.subs, nil
}

type mockResolver struct {
	failFor map[string]bool
}

func (m *mockResolver) Resolve(ctx context.Context, sub *types.Subscription) (types.ConversationReference, error) {
	if m.failFor[sub.ID] {
		return types.ConversationReference{}, fmt.Errorf("simulated resolution failure")
	}
	return types.ConversationReference{
		ConversationID: "conv-" + sub.ID,
		ServiceURL:     "https://smba.example.com",
		IsGroup:        sub.Type == types.SubscriptionChannel,
	}, nil
}

type sentActivity struct {
	conversationID string
	payload        card.Payload
}

type mockDispatcher struct {
	sent    []sentActivity
	failFor map[string]bool
}

func (m *mockDispatcher) Send(ctx context.Context, ref types.ConversationReference, payload card.Payload) error {
	if m.failFor[ref.ConversationID] {
		return fmt.Errorf("simulated dispatch failure")
	}
	m.sent = append(m.sent, sentActivity{conversationID: ref.ConversationID, payload: payload})
	return nil
}

func newTestProcessor(subs []*types.Subscription, resolver *mockResolver, sender *mockDispatcher) *Processor {
	if resolver == nil {
		resolver = &mockResolver{}
	}
	if sender == nil {
		sender = &mockDispatcher{}
	}
	return NewProcessor(
		&mockSubscriptionSource{subs: subs},
		resolver,
		card.NewBuilder("https://jira.example.com"),
		sender,
		nil,
		nil,
	)
}

func channelSub(id string, events ...types.EventType) *types.Subscription {
	if len(events) == 0 {
		events = []types.EventType{types.EventIssueCreated}
	}
	return &types.Subscription{
		ID:             id,
		JiraID:         "jira-1",
		Type:           types.SubscriptionChannel,
		ConversationID: "channel-" + id,
		EventTypes:     events,
		IsActive:       true,
	}
}

func personalSub(id, userID string, events ...types.EventType) *types.Subscription {
	if len(events) == 0 {
		events = []types.EventType{types.EventIssueCreated}
	}
	return &types.Subscription{
		ID:              id,
		JiraID:          "jira-1",
		Type:            types.SubscriptionPersonal,
		MicrosoftUserID: userID,
		EventTypes:      events,
		IsActive:        true,
	}
}

func issueCreatedMessage() *types.NotificationMessage {
	return &types.NotificationMessage{
		JiraID:    "jira-1",
		EventType: types.EventIssueCreated,
		User:      &types.NotificationUser{Name: "Alice"},
		Issue:     &types.NotificationIssue{Key: "OPS-1", Summary: "It broke"},
	}
}

// --- Tests ---

func TestProcessDispatchesToMatchedSubscriptions(t *testing.T) {
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{channelSub("a"), channelSub("b")}, nil, sender)

	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("ProcessNotification returned error: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(sender.sent))
	}
}

func TestProcessSkipsInactiveAndNonMatchingEventTypes(t *testing.T) {
	inactive := channelSub("a")
	inactive.IsActive = false
	wrongEvent := channelSub("b", types.EventCommentCreated)

	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{inactive, wrongEvent}, nil, sender)

	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("ProcessNotification returned error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no dispatches, got %d", len(sender.sent))
	}
}

func TestProcessZeroMatchesIsSuccess(t *testing.T) {
	p := newTestProcessor(nil, nil, nil)
	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("expected success on zero matches, got %v", err)
	}
}

func TestProcessAppliesFilter(t *testing.T) {
	matching := channelSub("a")
	matching.Filter = `project = "OPS" AND type in ("Bug","Task") AND priority = "High"`
	nonMatching := channelSub("b")
	nonMatching.Filter = `priority = "Low"`

	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{matching, nonMatching}, nil, sender)

	msg := issueCreatedMessage()
	msg.Issue.Type = "Bug"
	msg.Issue.Priority = "High"
	msg.Issue.ProjectName = "OPS"

	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("ProcessNotification returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(sender.sent))
	}
	if sender.sent[0].conversationID != "conv-a" {
		t.Errorf("dispatched to wrong conversation: %s", sender.sent[0].conversationID)
	}
}

func TestProcessPersonalPermissionGate(t *testing.T) {
	sub := personalSub("a", "ms-user-1")
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{sub}, nil, sender)

	// Recipient present as watcher but without issue view permission:
	// silently skipped, no error.
	msg := issueCreatedMessage()
	msg.Watchers = []types.NotificationUser{
		{MicrosoftUserID: "ms-user-1", CanViewIssue: false},
	}
	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("expected permission skip to be silent, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("expected no dispatch for recipient without view permission")
	}

	// Same recipient with permission delivers.
	msg.Watchers[0].CanViewIssue = true
	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("ProcessNotification returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(sender.sent))
	}
}

func TestProcessPersonalCommentRequiresCommentPermission(t *testing.T) {
	sub := personalSub("a", "ms-user-1", types.EventCommentCreated)
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{sub}, nil, sender)

	msg := issueCreatedMessage()
	msg.EventType = types.EventCommentCreated
	msg.Comment = &types.NotificationComment{Content: "hi"}
	msg.Watchers = []types.NotificationUser{
		{MicrosoftUserID: "ms-user-1", CanViewIssue: true, CanViewComment: false},
	}

	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("expected no dispatch without comment view permission")
	}
}

func TestProcessPersonalAbsentRecipientNotDelivered(t *testing.T) {
	sub := personalSub("a", "ms-user-1")
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{sub}, nil, sender)

	// Recipient appears in neither watchers nor mentions.
	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("expected no dispatch for unverifiable recipient")
	}
}

func TestProcessChannelSkipsInternalComments(t *testing.T) {
	sub := channelSub("a", types.EventCommentCreated)
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{sub}, nil, sender)

	msg := issueCreatedMessage()
	msg.EventType = types.EventCommentCreated
	msg.Comment = &types.NotificationComment{Content: "internal note", IsInternal: true}

	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("internal comment must not surface in a channel")
	}
}

func TestProcessMentionSwitchesCardFraming(t *testing.T) {
	sub := personalSub("a", "ms-user-1", types.EventCommentCreated)
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{sub}, nil, sender)

	msg := issueCreatedMessage()
	msg.EventType = types.EventCommentCreated
	msg.Comment = &types.NotificationComment{Content: "ping"}
	msg.Mentions = []types.NotificationUser{
		{MicrosoftUserID: "ms-user-1", CanViewIssue: true, CanViewComment: true},
	}

	if err := p.ProcessNotification(context.Background(), msg); err != nil {
		t.Fatalf("ProcessNotification returned error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 dispatch, got %d", len(sender.sent))
	}
	title := sender.sent[0].payload.Attachments[0].Content.Body[0].Text
	if title != "Alice mentioned you in a comment:" {
		t.Errorf("got title %q", title)
	}
}

func TestProcessPartialDispatchFailureIsTolerated(t *testing.T) {
	sender := &mockDispatcher{failFor: map[string]bool{"conv-a": true}}
	p := newTestProcessor([]*types.Subscription{channelSub("a"), channelSub("b")}, nil, sender)

	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("one failure among two must not fail the message: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].conversationID != "conv-b" {
		t.Fatalf("expected only conv-b delivered, got %+v", sender.sent)
	}
}

func TestProcessAllDispatchesFailedReturnsError(t *testing.T) {
	sender := &mockDispatcher{failFor: map[string]bool{"conv-a": true, "conv-b": true}}
	p := newTestProcessor([]*types.Subscription{channelSub("a"), channelSub("b")}, nil, sender)

	err := p.ProcessNotification(context.Background(), issueCreatedMessage())
	if err == nil {
		t.Fatal("expected error when every dispatch fails")
	}
	if !types.IsCode(err, types.ErrCodeUpstreamTeams) {
		t.Errorf("expected upstream error code, got %v", err)
	}
}

func TestProcessResolutionFailureCountsAsDispatchFailure(t *testing.T) {
	resolver := &mockResolver{failFor: map[string]bool{"a": true}}
	sender := &mockDispatcher{}
	p := newTestProcessor([]*types.Subscription{channelSub("a"), channelSub("b")}, resolver, sender)

	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err != nil {
		t.Fatalf("one unresolved recipient must not fail the message: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].conversationID != "conv-b" {
		t.Fatalf("expected only conv-b delivered, got %+v", sender.sent)
	}
}

func TestProcessSubscriptionLoadFailurePropagates(t *testing.T) {
	p := NewProcessor(
		&mockSubscriptionSource{err: fmt.Errorf("simulated store outage")},
		&mockResolver{},
		card.NewBuilder("https://jira.example.com"),
		&mockDispatcher{},
		nil,
		nil,
	)
	if err := p.ProcessNotification(context.Background(), issueCreatedMessage()); err == nil {
		t.Fatal("expected store failure to propagate for queue retry")
	}
}
