package backendtest

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"crewdesk/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func withCaller(r *http.Request, id model.Identity) context.Context {
	return context.WithValue(r.Context(), ctxKey{}, id)
}

func caller(r *http.Request) model.Identity {
	id, _ := r.Context().Value(ctxKey{}).(model.Identity)
	return id
}

// Auth.

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	email, password := r.PostForm.Get("username"), r.PostForm.Get("password")

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.userByEmailLocked(email)
	if a == nil || a.Password != password {
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	writeJSON(w, http.StatusOK, model.TokenResponse{
		AccessToken: s.issueLocked(a.ID, s.TokenTTL),
		TokenType:   "bearer",
		User:        a.Identity,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in model.RegisterInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if in.Role == "" {
		in.Role = model.RoleTeamMember
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByEmailLocked(in.Email) != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	a := &account{Identity: model.Identity{ID: uuid.NewString(), Name: in.Name, Email: in.Email, Role: in.Role}, Password: in.Password}
	s.users = append(s.users, a)
	writeJSON(w, http.StatusOK, a.Identity)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in model.ResetPasswordInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.userByEmailLocked(in.Email)
	if a == nil || a.Password != in.CurrentPassword {
		writeDetail(w, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	a.Password = in.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully"})
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	var in model.ProvisionInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByEmailLocked(in.Email) != nil {
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	}
	pw := in.Password
	if pw == "" {
		pw = strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}
	a := &account{Identity: model.Identity{ID: uuid.NewString(), Name: in.Name, Email: in.Email, Role: model.RoleTeamMember}, Password: pw}
	s.users = append(s.users, a)
	writeJSON(w, http.StatusOK, model.ProvisionedMember{User: a.Identity, GeneratedPassword: pw})
}

func (s *Server) handleDownloadCredentials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pw := r.URL.Query().Get("generated_password")

	s.mu.Lock()
	a := s.userLocked(id)
	s.mu.Unlock()
	if a == nil {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if pw == "" {
		writeDetail(w, http.StatusBadRequest, "generated_password is required")
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=team_member_%s_credentials.txt", strings.ReplaceAll(a.Name, " ", "_")))
	fmt.Fprintf(w, "Name: %s\nEmail: %s\nPassword: %s\n", a.Name, a.Email, pw)
}

// Users.

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, caller(r))
}

func (s *Server) handleListTeam(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Identity{}
	for _, a := range s.users {
		if a.Role == model.RoleTeamMember {
			out = append(out, a.Identity)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	var in model.TeamMemberPatch
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.userLocked(chi.URLParam(r, "id"))
	if a == nil || a.Role != model.RoleTeamMember {
		writeDetail(w, http.StatusNotFound, "Team member not found")
		return
	}
	if in.Name != nil {
		a.Name = *in.Name
	}
	if in.Email != nil {
		a.Email = *in.Email
	}
	writeJSON(w, http.StatusOK, a.Identity)
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.users {
		if a.ID == id && a.Role == model.RoleTeamMember {
			s.users = append(s.users[:i], s.users[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Team member deleted"})
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Team member not found")
}

// Tasks.

func visible(id model.Identity, t model.Task) bool {
	return id.Role == model.RoleFounder || t.AssignedToID() == id.ID
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	who := caller(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Task{}
	for _, t := range s.tasks {
		if visible(who, t) {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var in model.TaskInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	t := model.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		AssignedTo:  in.AssignedTo,
		Priority:    in.Priority,
		Status:      model.StatusPending,
		DueDate:     in.DueDate,
	}
	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, t)
}

// taskUpdate mirrors the JSON a client may send; a present-but-null field
// clears the value.
type taskUpdate struct {
	Title       *string              `json:"title"`
	Description *string              `json:"description"`
	AssignedTo  nullable[string]     `json:"assigned_to"`
	Priority    *model.Priority      `json:"priority"`
	Status      *model.TaskStatus    `json:"status"`
	DueDate     nullable[model.Date] `json:"due_date"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var in taskUpdate
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	who := caller(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.taskIndexLocked(chi.URLParam(r, "id"))
	if i < 0 || !visible(who, s.tasks[i]) {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	t := &s.tasks[i]
	if t.Status == model.StatusCompleted {
		writeDetail(w, http.StatusForbidden, "Cannot update completed tasks")
		return
	}
	if who.Role != model.RoleFounder {
		if in.Title != nil || in.Description != nil || in.AssignedTo.Set || in.Priority != nil || in.DueDate.Set {
			writeDetail(w, http.StatusBadRequest, "Team members can only update task status")
			return
		}
	}
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.AssignedTo.Set {
		t.AssignedTo = in.AssignedTo.Value
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.DueDate.Set {
		t.DueDate = in.DueDate.Value
	}
	writeJSON(w, http.StatusOK, *t)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.taskIndexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Task not found")
		return
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Task deleted"})
}

// Contacts.

func (s *Server) handleListContacts(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.Contact{}, s.contacts...)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetContact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.contactIndexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Contact not found")
		return
	}
	writeJSON(w, http.StatusOK, s.contacts[i])
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	var in model.ContactInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	c := model.Contact{ID: uuid.NewString(), Name: in.Name, Email: in.Email, Phone: in.Phone, Company: in.Company, Position: in.Position, Notes: []string{}}
	s.mu.Lock()
	s.contacts = append(s.contacts, c)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	var in model.ContactInput
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.contactIndexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Contact not found")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "name is required")
		return
	}
	c := &s.contacts[i]
	c.Name = in.Name
	c.Email = in.Email
	c.Phone = in.Phone
	c.Company = in.Company
	c.Position = in.Position
	writeJSON(w, http.StatusOK, *c)
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.contactIndexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.contacts = append(s.contacts[:i], s.contacts[i+1:]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Contact deleted"})
}

func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Note string `json:"note"`
	}
	if err := decode(r, &in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	who := caller(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.contactIndexLocked(chi.URLParam(r, "id"))
	if i < 0 {
		writeDetail(w, http.StatusNotFound, "Contact not found")
		return
	}
	stamp := s.Now().UTC().Format("2006-01-02T15:04:05.000000")
	s.contacts[i].Notes = append(s.contacts[i].Notes, fmt.Sprintf("[%s] %s: %s", stamp, who.Name, in.Note))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note added successfully"})
}
