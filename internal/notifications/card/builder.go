// Package card builds the Teams Adaptive Card payload for one matched
// notification. Building is a pure transformation of the notification
// message plus the matched delivery context; the rendering SDK on the
// Teams side is an external collaborator.
package card

import (
	"fmt"
	"strings"

	"teamsjira/internal/types"
)

// maxBodyLength is the truncation limit applied to comment bodies and to
// each side of a changelog transition. Truncation takes the first 500
// characters verbatim with no ellipsis marker.
const maxBodyLength = 500

// Context carries the per-recipient framing decisions the builder needs.
type Context struct {
	// IsMention is true when the recipient appears in the event's mention
	// list, switching comment titles to the "mentioned you" framing.
	IsMention bool
}

// Builder shapes notification messages into Adaptive Card payloads.
// JiraBaseURL is used for the Open in Jira deep link.
type Builder struct {
	jiraBaseURL string
}

// NewBuilder creates a Builder. The base URL is used without a trailing
// slash for browse deep links.
func NewBuilder(jiraBaseURL string) *Builder {
	return &Builder{jiraBaseURL: strings.TrimSuffix(jiraBaseURL, "/")}
}

// Build produces the delivery payload for one matched subscription.
func (b *Builder) Build(msg *types.NotificationMessage, bctx Context) Payload {
	title := buildTitle(msg, bctx)

	body := []AdaptiveItem{
		{
			Type:   "TextBlock",
			Text:   title,
			Size:   "Medium",
			Weight: "Bolder",
			Wrap:   true,
		},
	}

	if msg.Issue != nil {
		body = append(body, AdaptiveItem{
			Type: "TextBlock",
			Text: fmt.Sprintf("%s: %s", msg.Issue.Key, msg.Issue.Summary),
			Wrap: true,
		})
	}

	body = append(body, buildDetailItems(msg)...)

	if facts := buildFacts(msg.Issue); len(facts) > 0 {
		body = append(body, AdaptiveItem{Type: "FactSet", Facts: facts})
	}

	return Payload{
		Type: "message",
		Attachments: []Attachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: AdaptiveCard{
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
					Actions: b.buildActions(msg),
				},
			},
		},
	}
}

// buildTitle selects the title line by event type.
func buildTitle(msg *types.NotificationMessage, bctx Context) string {
	actor := msg.ActorName()

	switch msg.EventType {
	case types.EventIssueCreated:
		return fmt.Sprintf("%s created this issue", actor)
	case types.EventIssueAssigned:
		return fmt.Sprintf("%s assigned this issue to you", actor)
	case types.EventCommentCreated:
		if bctx.IsMention {
			return fmt.Sprintf("%s mentioned you in a comment:", actor)
		}
		return fmt.Sprintf("%s commented on this issue:", actor)
	case types.EventCommentUpdated:
		if bctx.IsMention {
			return fmt.Sprintf("%s mentioned you in an updated comment:", actor)
		}
		return fmt.Sprintf("%s updated a comment on this issue:", actor)
	case types.EventCommentDeleted:
		return fmt.Sprintf("%s removed comment from this issue", actor)
	default:
		fields := changedFieldNames(msg.Changelog)
		if fields == "" {
			return fmt.Sprintf("%s updated this issue", actor)
		}
		return fmt.Sprintf("%s updated the %s on this issue", actor, fields)
	}
}

// buildDetailItems renders the comment body for comment events, or one
// line per changelog transition for field updates.
func buildDetailItems(msg *types.NotificationMessage) []AdaptiveItem {
	if msg.EventType.IsCommentEvent() {
		if msg.Comment == nil || msg.Comment.Content == "" || msg.EventType == types.EventCommentDeleted {
			return nil
		}
		return []AdaptiveItem{{
			Type: "TextBlock",
			Text: truncate(msg.Comment.Content),
			Wrap: true,
		}}
	}

	items := make([]AdaptiveItem, 0, len(msg.Changelog))
	for _, entry := range msg.Changelog {
		items = append(items, AdaptiveItem{
			Type: "TextBlock",
			Text: fmt.Sprintf("%s → %s", transitionValue(entry.From), transitionValue(entry.To)),
			Wrap: true,
		})
	}
	return items
}

// buildFacts collects the issue's status, priority, and assignee into
// FactSet entries, skipping fields the event snapshot left empty.
func buildFacts(issue *types.NotificationIssue) []Fact {
	if issue == nil {
		return nil
	}
	var facts []Fact
	if issue.Status != "" {
		facts = append(facts, Fact{Title: "Status", Value: issue.Status})
	}
	if issue.Priority != "" {
		facts = append(facts, Fact{Title: "Priority", Value: issue.Priority})
	}
	if issue.Assignee != nil && issue.Assignee.Name != "" {
		facts = append(facts, Fact{Title: "Assignee", Value: issue.Assignee.Name})
	}
	return facts
}

// buildActions attaches the standard card actions: the Jira deep link plus
// Comment and Edit submit actions handled by the bot.
func (b *Builder) buildActions(msg *types.NotificationMessage) []Action {
	issueKey := ""
	if msg.Issue != nil {
		issueKey = msg.Issue.Key
	}

	return []Action{
		{
			Type:  "Action.OpenUrl",
			Title: "Open in Jira",
			URL:   fmt.Sprintf("%s/browse/%s", b.jiraBaseURL, issueKey),
		},
		{
			Type:  "Action.Submit",
			Title: "Comment",
			Data:  map[string]string{"command": "comment", "issueKey": issueKey, "jiraId": msg.JiraID},
		},
		{
			Type:  "Action.Submit",
			Title: "Edit",
			Data:  map[string]string{"command": "edit", "issueKey": issueKey, "jiraId": msg.JiraID},
		},
	}
}

// changedFieldNames joins the lowercased changed field names with commas.
func changedFieldNames(changelog []types.ChangelogEntry) string {
	names := make([]string, 0, len(changelog))
	for _, entry := range changelog {
		names = append(names, strings.ToLower(entry.Field))
	}
	return strings.Join(names, ", ")
}

// transitionValue truncates one side of a changelog transition,
// substituting "None" for empty values.
func transitionValue(v string) string {
	if v == "" {
		return "None"
	}
	return truncate(v)
}

// truncate takes the first maxBodyLength characters verbatim.
func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxBodyLength {
		return s
	}
	return string(runes[:maxBodyLength])
}
