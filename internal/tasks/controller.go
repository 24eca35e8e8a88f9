package tasks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
	"crewdesk/internal/perm"
)

// Backend is the task slice of the backend API.
type Backend interface {
	Tasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)
	UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Controller holds the task board. The board is only ever replaced by a
// fresh fetch; mutations never edit it in place.
type Controller struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.RWMutex
	board []model.Task
}

func NewController(b Backend, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{backend: b, logger: logger}
}

// Board returns a copy of the last fetched tasks.
func (c *Controller) Board() []model.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Task, len(c.board))
	copy(out, c.board)
	return out
}

// Replace installs tasks fetched elsewhere (the dashboard loader).
func (c *Controller) Replace(tasks []model.Task) {
	c.mu.Lock()
	c.board = append([]model.Task(nil), tasks...)
	c.mu.Unlock()
}

func (c *Controller) Find(id string) (model.Task, bool) {
	id = strings.TrimSpace(id)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.board {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

func (c *Controller) Refresh(ctx context.Context) ([]model.Task, error) {
	ts, err := c.backend.Tasks(ctx)
	if err != nil {
		return nil, err
	}
	c.Replace(ts)
	return c.Board(), nil
}

// lookup finds id on the board, fetching once if it is not there yet.
func (c *Controller) lookup(ctx context.Context, id string) (model.Task, error) {
	if t, ok := c.Find(id); ok {
		return t, nil
	}
	if _, err := c.Refresh(ctx); err != nil {
		return model.Task{}, err
	}
	if t, ok := c.Find(id); ok {
		return t, nil
	}
	return model.Task{}, NotFoundError{Kind: "task", ID: id}
}

// afterMutation refetches the board after a dispatched mutation, whatever its
// outcome. A rejected credential has already torn the session down, so there
// is nothing left to refetch with.
func (c *Controller) afterMutation(ctx context.Context, mutErr error) error {
	if mutErr != nil && gateway.KindOf(mutErr) == gateway.KindUnauthorized {
		return mutErr
	}
	if _, err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refetch tasks after mutation", slog.String("error", err.Error()))
		if mutErr == nil {
			return fmt.Errorf("refresh tasks: %w", err)
		}
	}
	return mutErr
}

// Advance moves a task to `to` under the lifecycle table. Rejections are
// local and dispatch nothing.
func (c *Controller) Advance(ctx context.Context, actor *model.Identity, id string, to model.TaskStatus) (model.Task, error) {
	if err := perm.Require(actor, perm.TasksAdvance); err != nil {
		return model.Task{}, err
	}
	if _, err := model.ParseTaskStatus(string(to)); err != nil {
		return model.Task{}, invalid(err)
	}
	t, err := c.lookup(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if err := CheckTransition(actor, t, to); err != nil {
		return model.Task{}, err
	}

	c.logger.Debug("advance task", slog.String("task_id", t.ID), slog.String("from", string(t.Status)), slog.String("to", string(to)))
	_, err = c.backend.UpdateTask(ctx, t.ID, model.TaskPatch{Status: &to})
	if err = c.afterMutation(ctx, mapUpdateError(err)); err != nil {
		return model.Task{}, err
	}
	return c.current(t.ID), nil
}

func (c *Controller) Start(ctx context.Context, actor *model.Identity, id string) (model.Task, error) {
	return c.Advance(ctx, actor, id, model.StatusInProgress)
}

func (c *Controller) Complete(ctx context.Context, actor *model.Identity, id string) (model.Task, error) {
	return c.Advance(ctx, actor, id, model.StatusCompleted)
}

// Edit applies a founder's direct field edit. It is not bound by the
// lifecycle table, but the backend still refuses to touch completed tasks.
func (c *Controller) Edit(ctx context.Context, actor *model.Identity, id string, patch model.TaskPatch) (model.Task, error) {
	if patch.AssignedTo != nil || patch.ClearAssignee {
		if err := perm.Require(actor, perm.TasksAssign); err != nil {
			return model.Task{}, err
		}
	}
	if err := perm.Require(actor, perm.TasksEdit); err != nil {
		return model.Task{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Task{}, gateway.Invalid("task id is required")
	}
	if patch.Empty() {
		return model.Task{}, gateway.Invalid("nothing to update")
	}
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Task{}, gateway.Invalid("title cannot be empty")
	}

	_, err := c.backend.UpdateTask(ctx, id, patch)
	if err = c.afterMutation(ctx, mapUpdateError(err)); err != nil {
		return model.Task{}, err
	}
	return c.current(id), nil
}

func (c *Controller) Create(ctx context.Context, actor *model.Identity, in model.TaskInput) (model.Task, error) {
	if err := perm.Require(actor, perm.TasksCreate); err != nil {
		return model.Task{}, err
	}
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Task{}, gateway.Invalid("title is required")
	}
	if in.Priority == "" {
		in.Priority = model.PriorityMedium
	}
	if _, err := model.ParsePriority(string(in.Priority)); err != nil {
		return model.Task{}, invalid(err)
	}
	if in.AssignedTo != nil && strings.TrimSpace(*in.AssignedTo) == "" {
		in.AssignedTo = nil
	}
	if in.AssignedTo != nil {
		if err := perm.Require(actor, perm.TasksAssign); err != nil {
			return model.Task{}, err
		}
	}

	created, err := c.backend.CreateTask(ctx, in)
	if err = c.afterMutation(ctx, err); err != nil {
		return model.Task{}, err
	}
	if t, ok := c.Find(created.ID); ok {
		return t, nil
	}
	return created, nil
}

func (c *Controller) Delete(ctx context.Context, actor *model.Identity, id string) error {
	if err := perm.Require(actor, perm.TasksDelete); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return gateway.Invalid("task id is required")
	}
	err := c.backend.DeleteTask(ctx, id)
	return c.afterMutation(ctx, mapUpdateError(err))
}

func (c *Controller) current(id string) model.Task {
	t, _ := c.Find(id)
	return t
}

// Stats are task counts by status.
type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func ComputeStats(ts []model.Task) Stats {
	s := Stats{Total: len(ts)}
	for _, t := range ts {
		switch t.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusInProgress:
			s.InProgress++
		case model.StatusCompleted:
			s.Completed++
		}
	}
	return s
}

// Stats counts the cached board.
func (c *Controller) Stats() Stats { return ComputeStats(c.Board()) }
