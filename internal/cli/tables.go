package cli

import (
	"strconv"
	"strings"

	"crewdesk/internal/model"
	"crewdesk/internal/tasks"
)

type taskTable struct {
	tasks    []model.Task
	identity *model.Identity
}

func (t taskTable) Header() []string {
	return []string{"ID", "TITLE", "STATUS", "PRIORITY", "ASSIGNEE", "DUE", "NEXT"}
}

func (t taskTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.tasks))
	for _, tk := range t.tasks {
		due := ""
		if tk.DueDate != nil {
			due = tk.DueDate.String()
		}
		next := make([]string, 0, 2)
		for _, s := range tasks.NextStatuses(t.identity, tk) {
			next = append(next, string(s))
		}
		rows = append(rows, []string{tk.ID, tk.Title, tk.Status.Label(), string(tk.Priority), tk.AssignedToID(), due, strings.Join(next, ",")})
	}
	return rows
}

type teamTable []model.Identity

func (t teamTable) Header() []string { return []string{"ID", "NAME", "EMAIL", "ROLE"} }

func (t teamTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, m := range t {
		rows = append(rows, []string{m.ID, m.Name, m.Email, string(m.Role)})
	}
	return rows
}

type contactTable []model.Contact

func (t contactTable) Header() []string {
	return []string{"ID", "NAME", "COMPANY", "POSITION", "EMAIL", "PHONE", "NOTES"}
}

func (t contactTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, c := range t {
		rows = append(rows, []string{c.ID, c.Name, deref(c.Company), deref(c.Position), deref(c.Email), deref(c.Phone), strconv.Itoa(len(c.Notes))})
	}
	return rows
}

type notesTable []model.Annotation

func (t notesTable) Header() []string { return []string{"WHEN", "AUTHOR", "NOTE"} }

func (t notesTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, a := range t {
		rows = append(rows, []string{a.Timestamp, a.Author, a.Content})
	}
	return rows
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
