package filter

import (
	"testing"

	"teamsjira/internal/types"
)

func TestParseEquality(t *testing.T) {
	clauses, err := Parse(`project = "OPS"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(clauses))
	}
	if clauses[0].Field != FieldProject {
		t.Errorf("expected field project, got %s", clauses[0].Field)
	}
	if len(clauses[0].Values) != 1 || clauses[0].Values[0] != "OPS" {
		t.Errorf("unexpected values: %v", clauses[0].Values)
	}
}

func TestParseInList(t *testing.T) {
	clauses, err := Parse(`type in ("Bug","Task")`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(clauses) != 1 {
		t.Fatalf("expected 1 clause, got %d", len(clauses))
	}
	if len(clauses[0].Values) != 2 || clauses[0].Values[0] != "Bug" || clauses[0].Values[1] != "Task" {
		t.Errorf("unexpected values: %v", clauses[0].Values)
	}
}

func TestParseConjunction(t *testing.T) {
	clauses, err := Parse(`project = "OPS" AND type in ("Bug") AND priority = "High"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(clauses) != 3 {
		t.Fatalf("expected 3 clauses, got %d", len(clauses))
	}
	fields := []Field{clauses[0].Field, clauses[1].Field, clauses[2].Field}
	want := []Field{FieldProject, FieldType, FieldPriority}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("clause %d: expected field %s, got %s", i, want[i], fields[i])
		}
	}
}

func TestParseQuotedValueContainingKeywords(t *testing.T) {
	// Values containing "and", "in", or "=" must not confuse the tokenizer.
	clauses, err := Parse(`status = "Ready and Waiting" AND type = "a = b"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(clauses) != 2 {
		t.Fatalf("expected 2 clauses, got %d", len(clauses))
	}
	if clauses[0].Values[0] != "Ready and Waiting" {
		t.Errorf("quoted value mangled: %q", clauses[0].Values[0])
	}
	if clauses[1].Values[0] != "a = b" {
		t.Errorf("quoted value mangled: %q", clauses[1].Values[0])
	}
}

func TestParseEmptyIsEmptyPredicate(t *testing.T) {
	for _, raw := range []string{"", "   "} {
		clauses, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", raw, err)
		}
		if len(clauses) != 0 {
			t.Errorf("Parse(%q): expected empty predicate, got %v", raw, clauses)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		`project`,
		`project = OPS`,
		`project = "OPS" AND`,
		`color = "red"`,
		`type in ()`,
		`type in ("Bug"`,
	}
	for _, raw := range cases {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q): expected error, got nil", raw)
		}
	}
}

func TestMatchesExample(t *testing.T) {
	clauses, err := Parse(`project = "OPS" AND type in ("Bug","Task") AND priority = "High"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	matching := &types.NotificationIssue{
		Key:         "OPS-12",
		Type:        "Bug",
		Priority:    "High",
		ProjectName: "OPS",
	}
	if !clauses.Matches(matching) {
		t.Error("expected OPS/Bug/High to match")
	}

	wrongPriority := &types.NotificationIssue{
		Key:         "OPS-13",
		Type:        "Bug",
		Priority:    "Low",
		ProjectName: "OPS",
	}
	if clauses.Matches(wrongPriority) {
		t.Error("expected OPS/Bug/Low not to match")
	}
}

func TestMatchesIsCaseInsensitive(t *testing.T) {
	clauses, err := Parse(`priority = "high"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !clauses.Matches(&types.NotificationIssue{Priority: "High"}) {
		t.Error("expected case-insensitive value match")
	}
}

func TestMatchesProjectByIDOrName(t *testing.T) {
	clauses, err := Parse(`project = "10001"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if !clauses.Matches(&types.NotificationIssue{ProjectID: "10001", ProjectName: "Operations"}) {
		t.Error("expected project clause to match the project ID")
	}
}

func TestMatchesNilIssue(t *testing.T) {
	empty, _ := Parse("")
	if !empty.Matches(nil) {
		t.Error("empty predicate must match a nil issue")
	}

	nonEmpty, err := Parse(`project = "OPS"`)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if nonEmpty.Matches(nil) {
		t.Error("non-empty predicate must not match a nil issue")
	}
}
