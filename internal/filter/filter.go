// Package filter implements the subscription event filter: a small
// boolean-AND predicate over the issue snapshot fields project, type,
// priority, and status.
//
// The persisted form is a restricted JQL-like string that only ever uses
// two clause shapes, joined by AND:
//
//	project = "OPS"
//	type in ("Bug","Task")
//
// Parse validates and converts the string into structured clauses once;
// matching never re-tokenizes values. This is intentionally not a general
// JQL parser.
package filter

import (
	"fmt"
	"strings"

	"teamsjira/internal/types"
)

// Field identifies the issue snapshot field a clause constrains.
type Field string

const (
	FieldProject  Field = "project"
	FieldType     Field = "type"
	FieldPriority Field = "priority"
	FieldStatus   Field = "status"
)

// Clause is one field constraint: the field must equal one of Values
// (case-insensitive). An equality clause is an in-clause with one value.
type Clause struct {
	Field  Field
	Values []string
}

// matches reports whether the issue satisfies this clause.
func (c Clause) matches(issue *types.NotificationIssue) bool {
	var actual []string
	switch c.Field {
	case FieldProject:
		actual = []string{issue.ProjectID, issue.ProjectName}
	case FieldType:
		actual = []string{issue.Type}
	case FieldPriority:
		actual = []string{issue.Priority}
	case FieldStatus:
		actual = []string{issue.Status}
	default:
		return false
	}
	for _, want := range c.Values {
		for _, got := range actual {
			if got != "" && strings.EqualFold(want, got) {
				return true
			}
		}
	}
	return false
}

// Clauses is a parsed filter predicate. A subscription matches iff every
// clause is satisfied; the empty predicate matches everything.
type Clauses []Clause

// Matches evaluates the predicate against an issue snapshot. A nil issue
// only matches the empty predicate.
func (cs Clauses) Matches(issue *types.NotificationIssue) bool {
	if len(cs) == 0 {
		return true
	}
	if issue == nil {
		return false
	}
	for _, c := range cs {
		if !c.matches(issue) {
			return false
		}
	}
	return true
}

// Parse converts the persisted filter string into structured clauses.
// An empty or blank string parses to the empty predicate.
func Parse(raw string) (Clauses, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var clauses Clauses
	for _, part := range splitAnd(raw) {
		clause, err := parseClause(part)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

// splitAnd splits on the AND keyword outside of quoted strings.
func splitAnd(raw string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := false

	tokens := strings.Fields(raw)
	for _, tok := range tokens {
		if !inQuote && strings.EqualFold(tok, "and") {
			parts = append(parts, sb.String())
			sb.Reset()
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
		// Track quote state across tokens so a quoted value containing
		// the word "and" does not split the clause.
		if strings.Count(tok, `"`)%2 == 1 {
			inQuote = !inQuote
		}
	}
	parts = append(parts, sb.String())
	return parts
}

// parseClause parses a single `field = "v"` or `field in ("v1","v2")` term.
func parseClause(part string) (Clause, error) {
	part = strings.TrimSpace(part)

	// The operator always precedes the first quoted value, so restrict the
	// search to that prefix. This keeps values containing "=" or "in" intact.
	head := part
	if q := strings.Index(part, `"`); q >= 0 {
		head = part[:q]
	}

	var field, rest string
	switch {
	case strings.Contains(head, "="):
		idx := strings.Index(part, "=")
		field, rest = part[:idx], part[idx+1:]
	case strings.Contains(strings.ToLower(head), " in"):
		idx := strings.Index(strings.ToLower(part), " in")
		field, rest = part[:idx], part[idx+3:]
	default:
		return Clause{}, fmt.Errorf("filter: unsupported clause %q", part)
	}

	f, err := parseField(strings.TrimSpace(field))
	if err != nil {
		return Clause{}, err
	}

	values, err := parseValues(strings.TrimSpace(rest))
	if err != nil {
		return Clause{}, fmt.Errorf("filter: clause %q: %w", part, err)
	}
	return Clause{Field: f, Values: values}, nil
}

func parseField(name string) (Field, error) {
	switch strings.ToLower(name) {
	case "project":
		return FieldProject, nil
	case "type", "issuetype":
		return FieldType, nil
	case "priority":
		return FieldPriority, nil
	case "status":
		return FieldStatus, nil
	}
	return "", fmt.Errorf("filter: unknown field %q", name)
}

// parseValues parses `"v"` or `("v1","v2")` into a value list.
func parseValues(rest string) ([]string, error) {
	if strings.HasPrefix(rest, "(") {
		if !strings.HasSuffix(rest, ")") {
			return nil, fmt.Errorf("unterminated value list")
		}
		rest = rest[1 : len(rest)-1]
	}

	var values []string
	for _, v := range splitQuoted(rest) {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		unquoted, err := unquote(v)
		if err != nil {
			return nil, err
		}
		values = append(values, unquoted)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty value list")
	}
	return values, nil
}

// splitQuoted splits on commas outside of double quotes.
func splitQuoted(s string) []string {
	var parts []string
	var sb strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == ',' && !inQuote:
			parts = append(parts, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(r)
		}
	}
	parts = append(parts, sb.String())
	return parts
}

func unquote(v string) (string, error) {
	if len(v) < 2 || !strings.HasPrefix(v, `"`) || !strings.HasSuffix(v, `"`) {
		return "", fmt.Errorf("value %s is not quoted", v)
	}
	return v[1 : len(v)-1], nil
}
