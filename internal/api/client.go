// Package api is the typed surface over the backend's REST endpoints. Every
// call goes through the gateway, so credential attachment and failure
// classification happen in one place.
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
)

// Doer is the gateway surface the client needs.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
	Download(ctx context.Context, req gateway.Request) ([]byte, http.Header, error)
	Health(ctx context.Context) (map[string]any, error)
}

type Client struct {
	gw Doer
}

func New(gw Doer) *Client { return &Client{gw: gw} }

func esc(id string) string { return url.PathEscape(strings.TrimSpace(id)) }

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return gateway.Invalid("%s id is required", kind)
	}
	return nil
}

// Auth.

func (c *Client) Token(ctx context.Context, email, password string) (model.TokenResponse, error) {
	var out model.TokenResponse
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/token",
		Form:      url.Values{"username": {email}, "password": {password}},
		Anonymous: true,
	}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in model.RegisterInput) (model.Identity, error) {
	var out model.Identity
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/auth/register", JSON: in, Anonymous: true}, &out)
	return out, err
}

// ResetPassword checks the confirmation locally before anything is sent.
func (c *Client) ResetPassword(ctx context.Context, email, current, next, confirm string) error {
	email = strings.TrimSpace(email)
	if email == "" || current == "" || next == "" {
		return gateway.Invalid("email, current password and new password are required")
	}
	if next != confirm {
		return gateway.Invalid("New passwords do not match")
	}
	return c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/reset-password",
		JSON:      model.ResetPasswordInput{Email: email, CurrentPassword: current, NewPassword: next},
		Anonymous: true,
	}, nil)
}

func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	return c.gw.Health(ctx)
}

// Team.

func (c *Client) ProvisionTeamMember(ctx context.Context, in model.ProvisionInput) (model.ProvisionedMember, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		return model.ProvisionedMember{}, gateway.Invalid("name and email are required")
	}
	var out model.ProvisionedMember
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/auth/create-team-member", JSON: in}, &out)
	return out, err
}

// CredentialsFile is a downloaded credentials sheet.
type CredentialsFile struct {
	Filename string
	Content  []byte
}

// CredentialsFilename is the name a credentials sheet for memberName is saved under.
func CredentialsFilename(memberName string) string {
	return "team_member_" + strings.Join(strings.Fields(memberName), "_") + "_credentials.txt"
}

func (c *Client) DownloadCredentials(ctx context.Context, member model.Identity, generatedPassword string) (CredentialsFile, error) {
	if err := requireID("team member", member.ID); err != nil {
		return CredentialsFile{}, err
	}
	if generatedPassword == "" {
		return CredentialsFile{}, gateway.Invalid("generated password is required")
	}
	body, _, err := c.gw.Download(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/auth/download-credentials/" + esc(member.ID),
		Query:  url.Values{"generated_password": {generatedPassword}},
	})
	if err != nil {
		return CredentialsFile{}, err
	}
	return CredentialsFile{Filename: CredentialsFilename(member.Name), Content: body}, nil
}

func (c *Client) Team(ctx context.Context) ([]model.Identity, error) {
	var out []model.Identity
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/users/team"}, &out)
	return out, err
}

func (c *Client) UpdateTeamMember(ctx context.Context, id string, patch model.TeamMemberPatch) (model.Identity, error) {
	if err := requireID("team member", id); err != nil {
		return model.Identity{}, err
	}
	if patch.Name == nil && patch.Email == nil {
		return model.Identity{}, gateway.Invalid("nothing to update")
	}
	var out model.Identity
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPut, Path: "/users/team/" + esc(id), JSON: patch}, &out)
	return out, err
}

func (c *Client) DeleteTeamMember(ctx context.Context, id string) error {
	if err := requireID("team member", id); err != nil {
		return err
	}
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: "/users/team/" + esc(id)}, nil)
}

// Tasks.

func (c *Client) Tasks(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/tasks"}, &out)
	return out, err
}

func (c *Client) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	var out model.Task
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/tasks", JSON: in}, &out)
	return out, err
}

func (c *Client) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	if err := requireID("task", id); err != nil {
		return model.Task{}, err
	}
	var out model.Task
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPut, Path: "/tasks/" + esc(id), JSON: patch}, &out)
	return out, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if err := requireID("task", id); err != nil {
		return err
	}
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: "/tasks/" + esc(id)}, nil)
}

// Contacts.

func (c *Client) Contacts(ctx context.Context) ([]model.Contact, error) {
	var out []model.Contact
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/contacts"}, &out)
	return out, err
}

func (c *Client) Contact(ctx context.Context, id string) (model.Contact, error) {
	if err := requireID("contact", id); err != nil {
		return model.Contact{}, err
	}
	var out model.Contact
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/contacts/" + esc(id)}, &out)
	return out, err
}

func (c *Client) CreateContact(ctx context.Context, in model.ContactInput) (model.Contact, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return model.Contact{}, gateway.Invalid("name is required")
	}
	var out model.Contact
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPost, Path: "/contacts", JSON: in}, &out)
	return out, err
}

func (c *Client) UpdateContact(ctx context.Context, id string, in model.ContactInput) (model.Contact, error) {
	if err := requireID("contact", id); err != nil {
		return model.Contact{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return model.Contact{}, gateway.Invalid("name is required")
	}
	var out model.Contact
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodPut, Path: "/contacts/" + esc(id), JSON: in}, &out)
	return out, err
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	if err := requireID("contact", id); err != nil {
		return err
	}
	return c.gw.Do(ctx, gateway.Request{Method: http.MethodDelete, Path: "/contacts/" + esc(id)}, nil)
}

// AddNote appends plain note text; the backend stamps it with time and
// author. The contact is fetched again so the caller sees the stored form.
func (c *Client) AddNote(ctx context.Context, contactID, note string) (model.Contact, error) {
	if err := requireID("contact", contactID); err != nil {
		return model.Contact{}, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return model.Contact{}, gateway.Invalid("note cannot be empty")
	}
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   "/contacts/" + esc(contactID) + "/notes",
		JSON:   map[string]string{"note": note},
	}, nil)
	if err != nil {
		return model.Contact{}, err
	}
	return c.Contact(ctx, contactID)
}
