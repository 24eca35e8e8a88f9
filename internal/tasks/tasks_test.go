package tasks

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
	"crewdesk/internal/perm"
)

var (
	founder = &model.Identity{ID: "f1", Name: "Fay", Email: "fay@x.io", Role: model.RoleFounder}
	member  = &model.Identity{ID: "m1", Name: "Max", Email: "max@x.io", Role: model.RoleTeamMember}
	other   = &model.Identity{ID: "m2", Name: "Ola", Email: "ola@x.io", Role: model.RoleTeamMember}
)

func task(id string, status model.TaskStatus, assignee string) model.Task {
	t := model.Task{ID: id, Title: "T" + id, Priority: model.PriorityMedium, Status: status}
	if assignee != "" {
		t.AssignedTo = &assignee
	}
	return t
}

type fakeBackend struct {
	tasks     []model.Task
	updateErr error
	deleteErr error
	listErr   error

	lists   int
	updates []model.TaskPatch
	creates []model.TaskInput
	deletes []string
}

func (f *fakeBackend) Tasks(context.Context) ([]model.Task, error) {
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Task(nil), f.tasks...), nil
}

func (f *fakeBackend) CreateTask(_ context.Context, in model.TaskInput) (model.Task, error) {
	f.creates = append(f.creates, in)
	t := model.Task{ID: "new", Title: in.Title, Priority: in.Priority, Status: model.StatusPending, AssignedTo: in.AssignedTo}
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeBackend) UpdateTask(_ context.Context, id string, p model.TaskPatch) (model.Task, error) {
	f.updates = append(f.updates, p)
	if f.updateErr != nil {
		return model.Task{}, f.updateErr
	}
	for i := range f.tasks {
		if f.tasks[i].ID == id && p.Status != nil {
			f.tasks[i].Status = *p.Status
			return f.tasks[i], nil
		}
	}
	return model.Task{}, nil
}

func (f *fakeBackend) DeleteTask(_ context.Context, id string) error {
	f.deletes = append(f.deletes, id)
	return f.deleteErr
}

func newController(t *testing.T, tasks ...model.Task) (*Controller, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{tasks: tasks}
	c := NewController(fb, nil)
	if _, err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	fb.lists = 0
	return c, fb
}

func TestTransitionTable_Exhaustive(t *testing.T) {
	want := map[model.TaskStatus]map[Relation][]model.TaskStatus{
		model.StatusPending:    {RelationAssignee: {model.StatusInProgress}, RelationFounder: {model.StatusInProgress, model.StatusCompleted}},
		model.StatusInProgress: {RelationAssignee: {model.StatusCompleted}, RelationFounder: {model.StatusPending, model.StatusCompleted}},
	}
	for _, from := range model.TaskStatuses {
		for _, rel := range []Relation{RelationNone, RelationAssignee, RelationFounder} {
			for _, to := range model.TaskStatuses {
				expected := false
				for _, s := range want[from][rel] {
					if s == to {
						expected = true
					}
				}
				if got := isAllowedTransition(from, to, rel); got != expected {
					t.Fatalf("%s -> %s as %s: got %v, want %v", from, to, rel, got, expected)
				}
			}
		}
	}
}

func TestNextStatuses(t *testing.T) {
	pending := task("1", model.StatusPending, "m1")
	if got := NextStatuses(member, pending); len(got) != 1 || got[0] != model.StatusInProgress {
		t.Fatalf("assignee pending: %v", got)
	}
	if got := NextStatuses(other, pending); len(got) != 0 {
		t.Fatalf("non-assignee should get nothing: %v", got)
	}
	if got := NextStatuses(founder, task("2", model.StatusCompleted, "")); len(got) != 0 {
		t.Fatalf("completed is terminal: %v", got)
	}
	if got := NextStatuses(nil, pending); len(got) != 0 {
		t.Fatalf("no actor: %v", got)
	}
}

func TestRelationOf_FounderWinsOverAssignee(t *testing.T) {
	if rel := RelationOf(founder, task("1", model.StatusPending, "f1")); rel != RelationFounder {
		t.Fatalf("got %s", rel)
	}
}

func TestAdvance_AssigneeStartsTaskAndBoardIsRefetched(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, "m1"))

	got, err := c.Start(context.Background(), member, "1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(fb.updates) != 1 || *fb.updates[0].Status != model.StatusInProgress {
		t.Fatalf("updates: %+v", fb.updates)
	}
	if fb.lists != 1 {
		t.Fatalf("expected one refetch, got %d", fb.lists)
	}
	if got.Status != model.StatusInProgress {
		t.Fatalf("board not refreshed: %+v", got)
	}
}

func TestAdvance_TeamMemberCannotSkipToCompleted(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, "m1"))

	_, err := c.Complete(context.Background(), member, "1")
	var te TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if gateway.KindOf(err) != gateway.KindValidation {
		t.Fatalf("kind: %q", gateway.KindOf(err))
	}
	if len(fb.updates) != 0 || fb.lists != 0 {
		t.Fatalf("local rejection must not dispatch or refetch: updates=%d lists=%d", len(fb.updates), fb.lists)
	}
	if b := c.Board(); b[0].Status != model.StatusPending {
		t.Fatalf("board changed: %+v", b[0])
	}
}

func TestAdvance_NonAssigneeRejected(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, "m1"))
	_, err := c.Start(context.Background(), other, "1")
	var na NotAssigneeError
	if !errors.As(err, &na) {
		t.Fatalf("expected NotAssigneeError, got %v", err)
	}
	if len(fb.updates) != 0 {
		t.Fatalf("dispatched")
	}
}

func TestAdvance_CompletedTaskRejectedLocally(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusCompleted, "m1"))
	for _, actor := range []*model.Identity{founder, member} {
		_, err := c.Advance(context.Background(), actor, "1", model.StatusPending)
		if !errors.Is(err, ErrCompletedTask) {
			t.Fatalf("expected ErrCompletedTask, got %v", err)
		}
		if err.Error() != "cannot modify a completed task" {
			t.Fatalf("message: %q", err.Error())
		}
	}
	if len(fb.updates) != 0 {
		t.Fatalf("dispatched")
	}
}

func TestAdvance_BackendForbiddenMapsToCompleted(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusInProgress, "m1"))
	fb.updateErr = &gateway.Error{Kind: gateway.KindDomain, Status: http.StatusForbidden, Message: "Task is completed"}

	_, err := c.Complete(context.Background(), member, "1")
	if !errors.Is(err, ErrCompletedTask) {
		t.Fatalf("expected ErrCompletedTask, got %v", err)
	}
	if gateway.KindOf(err) != gateway.KindDomain {
		t.Fatalf("kind: %q", gateway.KindOf(err))
	}
	if fb.lists != 1 {
		t.Fatalf("refetch must follow a failed dispatch, got %d", fb.lists)
	}
}

func TestAdvance_ServerFailureStillRefetches(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, ""))
	fb.updateErr = &gateway.Error{Kind: gateway.KindServer, Status: 500, Message: "Server error: Please try again later"}

	_, err := c.Start(context.Background(), founder, "1")
	if !errors.Is(err, gateway.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if fb.lists != 1 {
		t.Fatalf("expected refetch, got %d", fb.lists)
	}
}

func TestAdvance_ExpiredSessionSkipsRefetch(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, ""))
	fb.updateErr = &gateway.Error{Kind: gateway.KindUnauthorized, Status: 401, Message: "expired"}

	_, err := c.Start(context.Background(), founder, "1")
	if !errors.Is(err, gateway.ErrSessionExpired) {
		t.Fatalf("got %v", err)
	}
	if fb.lists != 0 {
		t.Fatalf("refetched after teardown")
	}
}

func TestAdvance_UnknownTaskFetchesOnceThenNotFound(t *testing.T) {
	c, fb := newController(t)
	_, err := c.Start(context.Background(), founder, "missing")
	var nf NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if fb.lists != 1 {
		t.Fatalf("expected one lookup fetch, got %d", fb.lists)
	}
}

func TestEdit_FounderOnly(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, "m1"))
	title := "renamed"

	if _, err := c.Edit(context.Background(), member, "1", model.TaskPatch{Title: &title}); err == nil {
		t.Fatalf("team member edit must be denied")
	}
	if len(fb.updates) != 0 {
		t.Fatalf("dispatched")
	}

	if _, err := c.Edit(context.Background(), founder, "1", model.TaskPatch{}); err == nil {
		t.Fatalf("empty patch must be rejected")
	}

	status := model.StatusCompleted
	if _, err := c.Edit(context.Background(), founder, "1", model.TaskPatch{Status: &status}); err != nil {
		t.Fatalf("founder edit: %v", err)
	}
	if fb.lists != 1 {
		t.Fatalf("expected refetch")
	}
}

func TestEdit_AssignmentNeedsAssignCapability(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, ""))
	who := "m1"

	_, err := c.Edit(context.Background(), member, "1", model.TaskPatch{AssignedTo: &who})
	var denied perm.DeniedError
	if !errors.As(err, &denied) || denied.Capability != perm.TasksAssign {
		t.Fatalf("expected tasks.assign denial, got %v", err)
	}
	_, err = c.Edit(context.Background(), member, "1", model.TaskPatch{ClearAssignee: true})
	if !errors.As(err, &denied) || denied.Capability != perm.TasksAssign {
		t.Fatalf("expected tasks.assign denial on clear, got %v", err)
	}
	if len(fb.updates) != 0 {
		t.Fatalf("dispatched %v", fb.updates)
	}

	if _, err := c.Edit(context.Background(), founder, "1", model.TaskPatch{AssignedTo: &who}); err != nil {
		t.Fatalf("founder assign: %v", err)
	}
	if len(fb.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(fb.updates))
	}
}

func TestCreate_DefaultsPriorityAndRefetches(t *testing.T) {
	c, fb := newController(t)
	got, err := c.Create(context.Background(), founder, model.TaskInput{Title: "  Ship it "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if fb.creates[0].Priority != model.PriorityMedium || fb.creates[0].Title != "Ship it" {
		t.Fatalf("input: %+v", fb.creates[0])
	}
	if got.ID != "new" || len(c.Board()) != 1 {
		t.Fatalf("board not refreshed: %+v", c.Board())
	}
	if _, err := c.Create(context.Background(), member, model.TaskInput{Title: "x"}); err == nil {
		t.Fatalf("team member create must be denied")
	}
}

func TestDelete(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusPending, ""))
	if err := c.Delete(context.Background(), founder, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(fb.deletes) != 1 || fb.lists != 1 {
		t.Fatalf("deletes=%v lists=%d", fb.deletes, fb.lists)
	}
}

func TestDelete_BackendForbiddenMapsToCompleted(t *testing.T) {
	c, fb := newController(t, task("1", model.StatusCompleted, ""))
	fb.deleteErr = &gateway.Error{Kind: gateway.KindDomain, Status: http.StatusForbidden, Message: "Not allowed"}

	err := c.Delete(context.Background(), founder, "1")
	if !errors.Is(err, ErrCompletedTask) {
		t.Fatalf("expected completed-task error, got %v", err)
	}
	if err.Error() != "cannot modify a completed task" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if fb.lists != 1 {
		t.Fatalf("expected refetch after rejected delete, lists=%d", fb.lists)
	}
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats([]model.Task{
		task("1", model.StatusPending, ""),
		task("2", model.StatusPending, ""),
		task("3", model.StatusInProgress, ""),
		task("4", model.StatusCompleted, ""),
	})
	if s != (Stats{Total: 4, Pending: 2, InProgress: 1, Completed: 1}) {
		t.Fatalf("got %+v", s)
	}
}
