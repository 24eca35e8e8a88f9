package perm

import (
	"fmt"
	"sort"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
)

type Capability string

const (
	TeamView      Capability = "team.view"
	TeamProvision Capability = "team.provision"
	TeamEdit      Capability = "team.edit"
	TeamDelete    Capability = "team.delete"

	TasksView    Capability = "tasks.view"
	TasksCreate  Capability = "tasks.create"
	TasksEdit    Capability = "tasks.edit"
	TasksDelete  Capability = "tasks.delete"
	TasksAssign  Capability = "tasks.assign"
	TasksAdvance Capability = "tasks.advance"

	ContactsView   Capability = "contacts.view"
	ContactsCreate Capability = "contacts.create"
	ContactsEdit   Capability = "contacts.edit"
	ContactsDelete Capability = "contacts.delete"
	ContactsNote   Capability = "contacts.note"

	StatsView Capability = "stats.view"
)

type Set map[Capability]bool

func (s Set) Has(c Capability) bool { return s[c] }

// Sorted returns the capabilities in stable order, for output.
func (s Set) Sorted() []Capability {
	out := make([]Capability, 0, len(s))
	for c, ok := range s {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CapabilitiesFor is a pure mapping. Unknown roles get nothing.
//
// Rules:
//   - founder: full CRUD on team members, tasks and contacts; provisioning; stats.
//   - team_member: read contacts and append notes; read tasks and advance
//     their own (the lifecycle table decides which ones).
func CapabilitiesFor(role model.Role) Set {
	switch role {
	case model.RoleFounder:
		return Set{
			TeamView: true, TeamProvision: true, TeamEdit: true, TeamDelete: true,
			TasksView: true, TasksCreate: true, TasksEdit: true, TasksDelete: true, TasksAssign: true, TasksAdvance: true,
			ContactsView: true, ContactsCreate: true, ContactsEdit: true, ContactsDelete: true, ContactsNote: true,
			StatsView: true,
		}
	case model.RoleTeamMember:
		return Set{
			TasksView: true, TasksAdvance: true,
			ContactsView: true, ContactsNote: true,
		}
	default:
		return Set{}
	}
}

type ViewKind string

const (
	ViewLogin      ViewKind = "login"
	ViewFounder    ViewKind = "founder"
	ViewTeamMember ViewKind = "team_member"
)

type Tab string

const (
	TabOverview Tab = "overview"
	TabTeam     Tab = "team"
	TabTasks    Tab = "tasks"
	TabContacts Tab = "contacts"
)

// View is what a dashboard should render for an identity.
type View struct {
	Kind         ViewKind
	Tabs         []Tab
	Capabilities Set
}

// SelectView derives the dashboard for id. A nil or invalid identity selects
// the login view. Call it again on every identity change.
func SelectView(id *model.Identity) View {
	if !id.Valid() {
		return View{Kind: ViewLogin, Capabilities: Set{}}
	}
	caps := CapabilitiesFor(id.Role)
	v := View{Kind: ViewTeamMember, Capabilities: caps}
	if id.Role == model.RoleFounder {
		v.Kind = ViewFounder
	}
	for _, t := range []struct {
		tab Tab
		cap Capability
	}{
		{TabOverview, StatsView},
		{TabTeam, TeamView},
		{TabTasks, TasksView},
		{TabContacts, ContactsView},
	} {
		if caps.Has(t.cap) {
			v.Tabs = append(v.Tabs, t.tab)
		}
	}
	return v
}

// DeniedError is a validation failure raised before dispatch.
type DeniedError struct {
	Role       model.Role
	Capability Capability
}

func (e DeniedError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("not logged in: %s requires an active session", e.Capability)
	}
	return fmt.Sprintf("permission denied: %s may not %s", e.Role, e.Capability)
}

// Require returns a validation-kind error when id lacks c.
func Require(id *model.Identity, c Capability) error {
	if id.Valid() && CapabilitiesFor(id.Role).Has(c) {
		return nil
	}
	d := DeniedError{Capability: c}
	if id != nil {
		d.Role = id.Role
	}
	return &gateway.Error{Kind: gateway.KindValidation, Message: d.Error(), Err: d}
}
