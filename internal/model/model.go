package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleFounder    Role = "founder"
	RoleTeamMember Role = "team_member"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.TrimSpace(s)); r {
	case RoleFounder, RoleTeamMember:
		return r, nil
	default:
		return "", fmt.Errorf("invalid role: %q", s)
	}
}

// Identity is the authenticated principal for the current session.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Valid reports whether the identity carries enough to be made active.
func (i *Identity) Valid() bool {
	if i == nil {
		return false
	}
	if strings.TrimSpace(i.ID) == "" || strings.TrimSpace(i.Email) == "" {
		return false
	}
	_, err := ParseRole(string(i.Role))
	return err == nil
}

func (i *Identity) IsFounder() bool { return i != nil && i.Role == RoleFounder }

// Credential is the opaque bearer token paired with an Identity.
type Credential string

func (c Credential) Empty() bool { return strings.TrimSpace(string(c)) == "" }

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

// TaskStatuses lists statuses in lifecycle order.
var TaskStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(strings.TrimSpace(s)); st {
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid status: %q (want pending|in_progress|completed)", s)
	}
}

func (s TaskStatus) Label() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.TrimSpace(s)); p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority: %q (want low|medium|high)", s)
	}
}

// Date is a calendar date (YYYY-MM-DD). The backend sometimes returns full
// ISO datetimes for due dates; those are truncated to the date on decode.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return Date{t}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date: %q (want YYYY-MM-DD)", s)
}

func (d Date) String() string { return d.Format(dateLayout) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  *string    `json:"assigned_to"`
	Priority    Priority   `json:"priority"`
	Status      TaskStatus `json:"status"`
	DueDate     *Date      `json:"due_date"`
}

// UnmarshalJSON reads a task with a lenient due date: null, "" and values
// ParseDate rejects all decode as no due date, so one bad row cannot fail a
// whole listing.
func (t *Task) UnmarshalJSON(b []byte) error {
	type plain Task
	var aux struct {
		plain
		DueDate json.RawMessage `json:"due_date"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*t = Task(aux.plain)
	t.DueDate = nil
	var s string
	if len(aux.DueDate) > 0 && json.Unmarshal(aux.DueDate, &s) == nil && strings.TrimSpace(s) != "" {
		if d, err := ParseDate(s); err == nil {
			t.DueDate = &d
		}
	}
	return nil
}

// AssignedToID returns the assignee id or "" when unassigned.
func (t Task) AssignedToID() string {
	if t.AssignedTo == nil {
		return ""
	}
	return strings.TrimSpace(*t.AssignedTo)
}

type Contact struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Email    *string  `json:"email"`
	Phone    *string  `json:"phone"`
	Company  *string  `json:"company"`
	Position *string  `json:"position"`
	Notes    []string `json:"notes"`
}

// Annotation is the structured view of a raw contact note.
type Annotation struct {
	Timestamp string `json:"timestamp"`
	Author    string `json:"author"`
	Content   string `json:"content"`
}

// Time parses Timestamp as an ISO-8601 instant.
func (a Annotation) Time() (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999", "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, strings.TrimSpace(a.Timestamp)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type TokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type,omitempty"`
	User        Identity `json:"user"`
}

type ProvisionedMember struct {
	User              Identity `json:"user"`
	GeneratedPassword string   `json:"generated_password"`
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

type ResetPasswordInput struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ProvisionInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

type TeamMemberPatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	AssignedTo  *string  `json:"assigned_to"`
	Priority    Priority `json:"priority"`
	DueDate     *Date    `json:"due_date"`
}

// TaskPatch is a partial founder edit. Clear* flags send an explicit null.
type TaskPatch struct {
	Title         *string
	Description   *string
	AssignedTo    *string
	ClearAssignee bool
	Priority      *Priority
	Status        *TaskStatus
	DueDate       *Date
	ClearDueDate  bool
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.AssignedTo == nil && !p.ClearAssignee &&
		p.Priority == nil && p.Status == nil && p.DueDate == nil && !p.ClearDueDate
}

func (p TaskPatch) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	if p.Title != nil {
		out["title"] = *p.Title
	}
	if p.Description != nil {
		out["description"] = *p.Description
	}
	if p.ClearAssignee {
		out["assigned_to"] = nil
	} else if p.AssignedTo != nil {
		out["assigned_to"] = *p.AssignedTo
	}
	if p.Priority != nil {
		out["priority"] = *p.Priority
	}
	if p.Status != nil {
		out["status"] = *p.Status
	}
	if p.ClearDueDate {
		out["due_date"] = nil
	} else if p.DueDate != nil {
		out["due_date"] = p.DueDate.String()
	}
	return json.Marshal(out)
}

// Input returns the full editable record of c.
func (c Contact) Input() ContactInput {
	return ContactInput{Name: c.Name, Email: c.Email, Phone: c.Phone, Company: c.Company, Position: c.Position}
}

type ContactInput struct {
	Name     string  `json:"name"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Company  *string `json:"company,omitempty"`
	Position *string `json:"position,omitempty"`
}
