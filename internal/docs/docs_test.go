package docs

import (
	"strings"
	"testing"
)

func TestTopics_Sorted(t *testing.T) {
	got := Topics()
	want := []string{"config", "notes", "roles", "tasks"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Topics() = %v; want %v", got, want)
	}
}

func TestGet(t *testing.T) {
	body, ok := Get(" Tasks ")
	if !ok || !strings.Contains(body, "# Task lifecycle") {
		t.Fatalf("expected tasks topic, got ok=%v", ok)
	}
	for _, bad := range []string{"", "nope", "../docs", "content/tasks"} {
		if _, ok := Get(bad); ok {
			t.Fatalf("Get(%q) should fail", bad)
		}
	}
}
