// Package tasks owns the task status lifecycle and the role-gated rules for
// moving a task through it.
package tasks

import (
	"strings"

	"crewdesk/internal/model"
)

// Relation is how an actor relates to a task for lifecycle purposes.
type Relation string

const (
	RelationNone     Relation = "none"
	RelationAssignee Relation = "assignee"
	RelationFounder  Relation = "founder"
)

// RelationOf classifies actor against t. Founders are always RelationFounder,
// even when they are also the assignee.
func RelationOf(actor *model.Identity, t model.Task) Relation {
	if actor == nil {
		return RelationNone
	}
	if actor.Role == model.RoleFounder {
		return RelationFounder
	}
	if actor.Role == model.RoleTeamMember && t.AssignedToID() != "" && t.AssignedToID() == strings.TrimSpace(actor.ID) {
		return RelationAssignee
	}
	return RelationNone
}

// transitions is the full table. Anything absent is not allowed; completed
// has no entries at all.
var transitions = map[model.TaskStatus]map[Relation][]model.TaskStatus{
	model.StatusPending: {
		RelationAssignee: {model.StatusInProgress},
		RelationFounder:  {model.StatusInProgress, model.StatusCompleted},
	},
	model.StatusInProgress: {
		RelationAssignee: {model.StatusCompleted},
		RelationFounder:  {model.StatusPending, model.StatusCompleted},
	},
}

func IsTerminal(s model.TaskStatus) bool { return s == model.StatusCompleted }

// Next returns the statuses reachable from `from` for rel, in lifecycle order.
func Next(from model.TaskStatus, rel Relation) []model.TaskStatus {
	next := transitions[from][rel]
	out := make([]model.TaskStatus, len(next))
	copy(out, next)
	return out
}

func isAllowedTransition(from, to model.TaskStatus, rel Relation) bool {
	for _, s := range transitions[from][rel] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses is Next for a concrete actor and task.
func NextStatuses(actor *model.Identity, t model.Task) []model.TaskStatus {
	return Next(t.Status, RelationOf(actor, t))
}

// CheckTransition validates moving t to `to` on behalf of actor without
// dispatching anything.
func CheckTransition(actor *model.Identity, t model.Task, to model.TaskStatus) error {
	if IsTerminal(t.Status) {
		return completed(0)
	}
	rel := RelationOf(actor, t)
	if rel == RelationNone {
		id := ""
		if actor != nil {
			id = actor.ID
		}
		return invalid(NotAssigneeError{TaskID: t.ID, ActorID: id})
	}
	if !isAllowedTransition(t.Status, to, rel) {
		return invalid(TransitionError{From: t.Status, To: to, Rel: rel})
	}
	return nil
}
