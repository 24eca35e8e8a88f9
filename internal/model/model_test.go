package model

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" founder "); err != nil || r != RoleFounder {
		t.Fatalf("expected founder; got %q err=%v", r, err)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestIdentityValid(t *testing.T) {
	var nilID *Identity
	if nilID.Valid() {
		t.Fatalf("nil identity must not be valid")
	}
	id := &Identity{ID: "u1", Email: "a@b.co", Role: RoleTeamMember}
	if !id.Valid() {
		t.Fatalf("expected valid identity")
	}
	id.Role = "root"
	if id.Valid() {
		t.Fatalf("unknown role must not be valid")
	}
}

func TestTaskUnmarshal_BadDueDateDoesNotFailList(t *testing.T) {
	raw := `[
		{"id":"1","title":"A","priority":"low","status":"pending","due_date":""},
		{"id":"2","title":"B","priority":"low","status":"pending","due_date":null},
		{"id":"3","title":"C","priority":"low","status":"pending","due_date":"next friday"},
		{"id":"4","title":"D","priority":"low","status":"completed","due_date":"2026-01-02"}
	]`
	var ts []Task
	if err := json.Unmarshal([]byte(raw), &ts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(ts) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(ts))
	}
	for _, task := range ts[:3] {
		if task.DueDate != nil {
			t.Fatalf("task %s: expected no due date, got %v", task.ID, task.DueDate)
		}
	}
	if ts[0].Title != "A" || ts[3].Status != StatusCompleted {
		t.Fatalf("other fields lost: %+v", ts)
	}
	if ts[3].DueDate == nil || ts[3].DueDate.String() != "2026-01-02" {
		t.Fatalf("unexpected due date: %v", ts[3].DueDate)
	}
}

func TestTaskUnmarshal_DueDateAcceptsDatetime(t *testing.T) {
	raw := `{"id":"t1","title":"Ship","description":"","assigned_to":null,"priority":"high","status":"pending","due_date":"2026-03-04T00:00:00"}`
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if task.DueDate == nil || task.DueDate.String() != "2026-03-04" {
		t.Fatalf("unexpected due date: %+v", task.DueDate)
	}
	if task.AssignedToID() != "" {
		t.Fatalf("expected unassigned")
	}
}

func TestTaskPatch_MarshalSendsExplicitNulls(t *testing.T) {
	st := StatusInProgress
	b, err := json.Marshal(TaskPatch{Status: &st, ClearAssignee: true, ClearDueDate: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := string(b)
	for _, want := range []string{`"status":"in_progress"`, `"assigned_to":null`, `"due_date":null`} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %s in %s", want, got)
		}
	}
	if strings.Contains(got, "title") {
		t.Fatalf("unset fields must be omitted: %s", got)
	}
}

func TestAnnotationTime(t *testing.T) {
	a := Annotation{Timestamp: "2025-01-02T03:04:05.123456"}
	if _, ok := a.Time(); !ok {
		t.Fatalf("expected python isoformat timestamp to parse")
	}
	if _, ok := (Annotation{Timestamp: "yesterday"}).Time(); ok {
		t.Fatalf("expected non-ISO timestamp to fail")
	}
}
