// Package backendtest runs an in-memory stand-in for the crewdesk backend
// behind httptest. It issues real HS256 bearer tokens and enforces the same
// rules the real backend does: founders see everything, team members see and
// update only their own tasks, and completed tasks cannot be modified.
package backendtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crewdesk/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const APIPrefix = "/api/v1"

type account struct {
	model.Identity
	Password string
}

type Server struct {
	*httptest.Server

	// Now stamps notes and tokens.
	Now      func() time.Time
	TokenTTL time.Duration

	mu       sync.Mutex
	secret   []byte
	gen      int
	users    []*account
	tasks    []model.Task
	contacts []model.Contact
	requests []string
	forced   map[string]forcedResponse
}

type forcedResponse struct {
	status int
	detail string
}

type claims struct {
	Gen int `json:"gen"`
	jwt.RegisteredClaims
}

// New starts a server and closes it when t finishes.
func New(t testing.TB) *Server {
	s := &Server{
		Now:      time.Now,
		TokenTTL: time.Hour,
		secret:   []byte(uuid.NewString()),
		forced:   map[string]forcedResponse{},
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// APIURL is the base URL a client should be configured with.
func (s *Server) APIURL() string { return s.URL + APIPrefix }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.override)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "crewdesk backend", "status": "healthy"})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.With(founderOnly).Post("/auth/create-team-member", s.handleProvision)
			r.With(founderOnly).Get("/auth/download-credentials/{id}", s.handleDownloadCredentials)

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", s.handleMe)
				r.With(founderOnly).Get("/team", s.handleListTeam)
				r.With(founderOnly).Put("/team/{id}", s.handleUpdateMember)
				r.With(founderOnly).Delete("/team/{id}", s.handleDeleteMember)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.handleListTasks)
				r.With(founderOnly).Post("/", s.handleCreateTask)
				r.Put("/{id}", s.handleUpdateTask)
				r.With(founderOnly).Delete("/{id}", s.handleDeleteTask)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Get("/", s.handleListContacts)
				r.With(founderOnly).Post("/", s.handleCreateContact)
				r.Get("/{id}", s.handleGetContact)
				r.With(founderOnly).Put("/{id}", s.handleUpdateContact)
				r.With(founderOnly).Delete("/{id}", s.handleDeleteContact)
				r.Post("/{id}/notes", s.handleAddNote)
			})
		})
	})
	return r
}

// Seeding.

func (s *Server) SeedFounder(name, email, password string) model.Identity {
	return s.seedUser(name, email, password, model.RoleFounder)
}

func (s *Server) SeedMember(name, email, password string) model.Identity {
	return s.seedUser(name, email, password, model.RoleTeamMember)
}

func (s *Server) seedUser(name, email, password string, role model.Role) model.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{Identity: model.Identity{ID: uuid.NewString(), Name: name, Email: email, Role: role}, Password: password}
	s.users = append(s.users, a)
	return a.Identity
}

func (s *Server) SeedTask(t model.Task) model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *Server) SeedContact(c model.Contact) model.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Notes == nil {
		c.Notes = []string{}
	}
	s.contacts = append(s.contacts, c)
	return c
}

// Task returns the server's copy of a task.
func (s *Server) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// IssueToken mints a token for userID as the login endpoint would.
func (s *Server) IssueToken(userID string, ttl time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(userID, ttl)
}

func (s *Server) issueLocked(userID string, ttl time.Duration) string {
	now := s.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Gen: s.gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

// Force makes the next request to method+path answer status with detail.
func (s *Server) Force(method, path string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[method+" "+APIPrefix+path] = forcedResponse{status: status, detail: detail}
}

// Requests lists "METHOD /path" for every request received, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) ResetRequests() {
	s.mu.Lock()
	s.requests = nil
	s.mu.Unlock()
}

// Middleware.

type ctxKey struct{}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) override(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimRight(r.URL.Path, "/")
		s.mu.Lock()
		f, ok := s.forced[key]
		delete(s.forced, key)
		s.mu.Unlock()
		if ok {
			writeDetail(w, f.status, f.detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		var c claims
		_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(s.Now),
		)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		s.mu.Lock()
		gen := s.gen
		a := s.userLocked(c.Subject)
		s.mu.Unlock()
		if c.Gen != gen || a == nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r, a.Identity)))
	})
}

func founderOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller(r).Role != model.RoleFounder {
			writeDetail(w, http.StatusForbidden, "Only founders can perform this action")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helpers; callers hold s.mu.

func (s *Server) userLocked(id string) *account {
	for _, a := range s.users {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (s *Server) userByEmailLocked(email string) *account {
	for _, a := range s.users {
		if strings.EqualFold(a.Email, email) {
			return a
		}
	}
	return nil
}

func (s *Server) taskIndexLocked(id string) int {
	for i, t := range s.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Server) contactIndexLocked(id string) int {
	for i, c := range s.contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

var errBadBody = errors.New("invalid request body")

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}
