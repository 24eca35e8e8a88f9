package perm

import (
	"errors"
	"testing"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
)

func TestCapabilitiesFor_TeamMemberIsReadMostly(t *testing.T) {
	caps := CapabilitiesFor(model.RoleTeamMember)
	for _, c := range []Capability{TasksView, TasksAdvance, ContactsView, ContactsNote} {
		if !caps.Has(c) {
			t.Fatalf("team member should have %s", c)
		}
	}
	for _, c := range []Capability{TeamView, TeamProvision, TeamEdit, TasksCreate, TasksEdit, TasksDelete, TasksAssign, ContactsCreate, ContactsEdit, ContactsDelete, StatsView} {
		if caps.Has(c) {
			t.Fatalf("team member must not have %s", c)
		}
	}
}

func TestCapabilitiesFor_FounderHasEverything(t *testing.T) {
	f := CapabilitiesFor(model.RoleFounder)
	for c := range CapabilitiesFor(model.RoleTeamMember) {
		if !f.Has(c) {
			t.Fatalf("founder should be a superset; missing %s", c)
		}
	}
	if !f.Has(TeamProvision) || !f.Has(TasksAssign) {
		t.Fatalf("founder missing provisioning or assignment")
	}
}

func TestCapabilitiesFor_UnknownRole(t *testing.T) {
	if n := len(CapabilitiesFor("admin")); n != 0 {
		t.Fatalf("unknown role got %d capabilities", n)
	}
}

func TestSelectView(t *testing.T) {
	if v := SelectView(nil); v.Kind != ViewLogin || len(v.Tabs) != 0 {
		t.Fatalf("nil identity: %+v", v)
	}

	founder := &model.Identity{ID: "1", Email: "f@x.io", Role: model.RoleFounder}
	v := SelectView(founder)
	if v.Kind != ViewFounder || len(v.Tabs) != 4 || v.Tabs[0] != TabOverview {
		t.Fatalf("founder view: %+v", v)
	}

	member := &model.Identity{ID: "2", Email: "m@x.io", Role: model.RoleTeamMember}
	v = SelectView(member)
	if v.Kind != ViewTeamMember || len(v.Tabs) != 2 || v.Tabs[0] != TabTasks || v.Tabs[1] != TabContacts {
		t.Fatalf("team member view: %+v", v)
	}
	if v.Capabilities.Has(TeamView) {
		t.Fatalf("team member view exposes team")
	}
}

func TestRequire(t *testing.T) {
	member := &model.Identity{ID: "2", Email: "m@x.io", Role: model.RoleTeamMember}
	if err := Require(member, ContactsNote); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	err := Require(member, TasksCreate)
	if err == nil {
		t.Fatalf("expected denial")
	}
	if gateway.KindOf(err) != gateway.KindValidation {
		t.Fatalf("kind: %q", gateway.KindOf(err))
	}
	var d DeniedError
	if !errors.As(err, &d) || d.Capability != TasksCreate {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if err := Require(nil, TasksView); err == nil {
		t.Fatalf("nil identity must be denied")
	}
}

func TestSorted(t *testing.T) {
	got := CapabilitiesFor(model.RoleTeamMember).Sorted()
	want := []Capability{ContactsNote, ContactsView, TasksAdvance, TasksView}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
