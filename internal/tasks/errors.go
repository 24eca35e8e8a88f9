package tasks

import (
	"errors"
	"fmt"
	"net/http"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
)

// ErrCompletedTask is returned for any mutation of a completed task, whether
// it was caught locally or rejected by the backend.
var ErrCompletedTask = errors.New("cannot modify a completed task")

type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type NotAssigneeError struct {
	TaskID  string
	ActorID string
}

func (e NotAssigneeError) Error() string {
	return fmt.Sprintf("only the assignee can update task %s", e.TaskID)
}

type TransitionError struct {
	From model.TaskStatus
	To   model.TaskStatus
	Rel  Relation
}

func (e TransitionError) Error() string {
	if e.From == model.StatusPending && e.To == model.StatusCompleted && e.Rel == RelationAssignee {
		return "start the task before completing it"
	}
	return fmt.Sprintf("cannot move task from %s to %s", e.From, e.To)
}

func invalid(err error) error {
	return &gateway.Error{Kind: gateway.KindValidation, Message: err.Error(), Err: err}
}

func completed(status int) error {
	return &gateway.Error{Kind: gateway.KindDomain, Status: status, Message: ErrCompletedTask.Error(), Err: ErrCompletedTask}
}

// mapUpdateError maps a backend 403 on a task update or delete to
// ErrCompletedTask.
func mapUpdateError(err error) error {
	if err == nil {
		return nil
	}
	if gateway.KindOf(err) == gateway.KindDomain && gateway.StatusOf(err) == http.StatusForbidden {
		return completed(http.StatusForbidden)
	}
	return err
}
