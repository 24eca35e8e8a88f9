package cli

import (
	"strings"

	"crewdesk/internal/model"
	"crewdesk/internal/perm"
	"crewdesk/internal/tasks"

	"github.com/spf13/cobra"
)

func newTasksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Task commands",
	}
	cmd.AddCommand(newTasksListCmd(app))
	cmd.AddCommand(newTasksShowCmd(app))
	cmd.AddCommand(newTasksCreateCmd(app))
	cmd.AddCommand(newTasksEditCmd(app))
	cmd.AddCommand(newTasksDeleteCmd(app))
	cmd.AddCommand(newTasksAdvanceCmd(app, "start", "Move an assigned task to in_progress", model.StatusInProgress))
	cmd.AddCommand(newTasksAdvanceCmd(app, "complete", "Move an in-progress task to completed", model.StatusCompleted))
	cmd.AddCommand(newTasksStatusCmd(app))
	cmd.AddCommand(newTasksNextCmd(app))
	return cmd
}

type taskView struct {
	model.Task
	Next []model.TaskStatus `json:"next"`
}

func withNext(id *model.Identity, ts []model.Task) []taskView {
	out := make([]taskView, 0, len(ts))
	for _, t := range ts {
		out = append(out, taskView{Task: t, Next: tasks.NextStatuses(id, t)})
	}
	return out
}

func newTasksListCmd(app *App) *cobra.Command {
	var status string
	var mine bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var want model.TaskStatus
			if status != "" {
				if want, err = model.ParseTaskStatus(status); err != nil {
					return writeErr(cmd, err)
				}
			}
			all, err := app.tasks.Refresh(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var out []model.Task
			for _, t := range all {
				if want != "" && t.Status != want {
					continue
				}
				if mine && t.AssignedToID() != id.ID {
					continue
				}
				out = append(out, t)
			}
			if app.Format == "table" {
				return writeOut(cmd, app, taskTable{tasks: out, identity: id})
			}
			env := map[string]any{"data": withNext(id, out)}
			if perm.Require(id, perm.StatsView) == nil {
				env["meta"] = map[string]any{"stats": app.tasks.Stats()}
			}
			return writeOut(cmd, app, env)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only tasks in this status (pending|in_progress|completed)")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only tasks assigned to me")
	return cmd
}

func (app *App) findTask(cmd *cobra.Command, taskID string) (model.Task, error) {
	if _, err := app.tasks.Refresh(cmd.Context()); err != nil {
		return model.Task{}, err
	}
	t, ok := app.tasks.Find(taskID)
	if !ok {
		return model.Task{}, tasks.NotFoundError{Kind: "task", ID: taskID}
	}
	return t, nil
}

func newTasksShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task and the statuses it can move to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := app.findTask(cmd, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": taskView{Task: t, Next: tasks.NextStatuses(id, t)}})
		},
	}
}

func newTasksCreateCmd(app *App) *cobra.Command {
	var title, description, assignee, priority, due string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task (founders only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			in := model.TaskInput{Title: title, Description: description, Priority: model.Priority(strings.TrimSpace(priority))}
			if a := strings.TrimSpace(assignee); a != "" {
				in.AssignedTo = &a
			}
			if strings.TrimSpace(due) != "" {
				d, err := model.ParseDate(due)
				if err != nil {
					return writeErr(cmd, err)
				}
				in.DueDate = &d
			}
			t, err := app.tasks.Create(cmd.Context(), id, in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&description, "description", "", "Description (markdown)")
	cmd.Flags().StringVar(&assignee, "assign", "", "Team member id to assign")
	cmd.Flags().StringVar(&priority, "priority", "medium", "Priority (low|medium|high)")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newTasksEditCmd(app *App) *cobra.Command {
	var title, description, assignee, priority, status, due string
	var unassign, clearDue bool

	cmd := &cobra.Command{
		Use:   "edit <task-id>",
		Short: "Edit task fields directly (founders only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			var patch model.TaskPatch
			f := cmd.Flags()
			if f.Changed("title") {
				patch.Title = &title
			}
			if f.Changed("description") {
				patch.Description = &description
			}
			if f.Changed("assign") {
				a := strings.TrimSpace(assignee)
				if a == "" {
					patch.ClearAssignee = true
				} else {
					patch.AssignedTo = &a
				}
			}
			if unassign {
				patch.ClearAssignee = true
				patch.AssignedTo = nil
			}
			if f.Changed("priority") {
				p, err := model.ParsePriority(priority)
				if err != nil {
					return writeErr(cmd, err)
				}
				patch.Priority = &p
			}
			if f.Changed("status") {
				s, err := model.ParseTaskStatus(status)
				if err != nil {
					return writeErr(cmd, err)
				}
				patch.Status = &s
			}
			if f.Changed("due") {
				d, err := model.ParseDate(due)
				if err != nil {
					return writeErr(cmd, err)
				}
				patch.DueDate = &d
			}
			if clearDue {
				patch.ClearDueDate = true
				patch.DueDate = nil
			}
			t, err := app.tasks.Edit(cmd.Context(), id, args[0], patch)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": t})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&assignee, "assign", "", "Assign to team member id (empty to unassign)")
	cmd.Flags().BoolVar(&unassign, "unassign", false, "Remove the assignee")
	cmd.Flags().StringVar(&priority, "priority", "", "New priority (low|medium|high)")
	cmd.Flags().StringVar(&status, "status", "", "Set status directly (pending|in_progress|completed)")
	cmd.Flags().StringVar(&due, "due", "", "New due date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&clearDue, "clear-due", false, "Remove the due date")
	return cmd
}

func newTasksDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete a task (founders only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := app.tasks.Delete(cmd.Context(), id, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"id": args[0], "deleted": true}})
		},
	}
}

func runAdvance(cmd *cobra.Command, app *App, taskID string, to model.TaskStatus) error {
	id, err := app.identity(cmd.Context())
	if err != nil {
		return writeErr(cmd, err)
	}
	t, err := app.tasks.Advance(cmd.Context(), id, taskID, to)
	if err != nil {
		return writeErr(cmd, err)
	}
	return writeOut(cmd, app, map[string]any{"data": taskView{Task: t, Next: tasks.NextStatuses(id, t)}})
}

func newTasksAdvanceCmd(app *App, use, short string, to model.TaskStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <task-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdvance(cmd, app, args[0], to)
		},
	}
}

func newTasksStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Move a task along its lifecycle (pending|in_progress|completed)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := model.ParseTaskStatus(args[1])
			if err != nil {
				return writeErr(cmd, errUsage("%v", err))
			}
			return runAdvance(cmd, app, args[0], to)
		},
	}
}

func newTasksNextCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "next <task-id>",
		Short: "List the statuses you may move a task to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.identity(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			t, err := app.findTask(cmd, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{
				"id":       t.ID,
				"status":   t.Status,
				"relation": tasks.RelationOf(id, t),
				"next":     tasks.NextStatuses(id, t),
			}})
		},
	}
}
