// Package session is the single source of truth for who is logged in.
//
// The active Identity and Credential live in memory and are written through
// to a store.KV on every mutation. A persisted credential without a
// persisted identity (or the reverse) is treated as no session at all.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"crewdesk/internal/gateway"
	"crewdesk/internal/model"
	"crewdesk/internal/store"
)

// Backend is the slice of the backend API the session needs.
type Backend interface {
	Token(ctx context.Context, email, password string) (model.TokenResponse, error)
	Register(ctx context.Context, in model.RegisterInput) (model.Identity, error)
}

type EventKind string

const (
	EventRestore EventKind = "restore"
	EventLogin   EventKind = "login"
	EventLogout  EventKind = "logout"
	// EventExpired is the redirect signal: the credential was rejected and
	// the caller should return to the login entry point.
	EventExpired EventKind = "expired"
)

// Event is delivered to subscribers after every identity change. Identity is
// nil when no session is active.
type Event struct {
	Kind     EventKind
	Identity *model.Identity
	Reason   string
}

var ErrNoBackend = errors.New("session: no backend configured")

type Store struct {
	kv      store.KV
	backend Backend
	logger  *slog.Logger

	mu         sync.RWMutex
	identity   *model.Identity
	credential model.Credential

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int
}

func New(kv store.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{kv: kv, logger: logger, subs: map[int]func(Event){}}
}

// SetBackend wires the backend used by Login and Register. The backend's
// gateway usually depends on this Store, so it is attached after construction.
func (s *Store) SetBackend(b Backend) { s.backend = b }

// Current returns a copy of the active identity, or nil.
func (s *Store) Current() *model.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil
	}
	id := *s.identity
	return &id
}

// Credential returns the active credential. It never yields a credential
// without an identity.
func (s *Store) Credential() (model.Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil || s.credential.Empty() {
		return "", false
	}
	return s.credential, true
}

// Subscribe registers fn for identity-change events and returns a func that
// removes it. fn runs on the goroutine that caused the change.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// Restore activates a persisted session when both halves are present and
// well-formed. Anything else leaves no active identity and erases whatever
// half was stored. It never fails.
func (s *Store) Restore(ctx context.Context) *model.Identity {
	id, tok, ok := s.readPersisted(ctx)

	s.mu.Lock()
	if ok {
		s.identity = id
		s.credential = tok
	} else {
		s.identity = nil
		s.credential = ""
	}
	s.mu.Unlock()

	if !ok {
		if err := s.kv.Delete(ctx, store.KeyToken, store.KeyUser); err != nil {
			s.logger.Warn("clear persisted session", slog.String("error", err.Error()))
		}
	}

	cur := s.Current()
	s.emit(Event{Kind: EventRestore, Identity: cur})
	return cur
}

func (s *Store) readPersisted(ctx context.Context) (*model.Identity, model.Credential, bool) {
	rawTok, hasTok, err := s.kv.Get(ctx, store.KeyToken)
	if err != nil {
		s.logger.Warn("read persisted token", slog.String("error", err.Error()))
		return nil, "", false
	}
	rawUser, hasUser, err := s.kv.Get(ctx, store.KeyUser)
	if err != nil {
		s.logger.Warn("read persisted user", slog.String("error", err.Error()))
		return nil, "", false
	}
	if !hasTok || !hasUser {
		if hasTok || hasUser {
			s.logger.Warn("discarding half-persisted session",
				slog.Bool("has_token", hasTok),
				slog.Bool("has_user", hasUser),
			)
		}
		return nil, "", false
	}
	tok := model.Credential(strings.TrimSpace(rawTok))
	if tok.Empty() {
		s.logger.Warn("discarding persisted session with empty token")
		return nil, "", false
	}
	var id model.Identity
	if err := json.Unmarshal([]byte(rawUser), &id); err != nil || !id.Valid() {
		s.logger.Warn("discarding malformed persisted user")
		return nil, "", false
	}
	return &id, tok, true
}

// Login authenticates against the backend and activates the returned
// identity. On any failure the previous state is left untouched.
func (s *Store) Login(ctx context.Context, email, password string) (*model.Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, gateway.Invalid("email and password are required")
	}
	if s.backend == nil {
		return nil, ErrNoBackend
	}

	resp, err := s.backend.Token(ctx, email, password)
	if err != nil {
		return nil, loginError(err)
	}
	tok := model.Credential(strings.TrimSpace(resp.AccessToken))
	if tok.Empty() || !resp.User.Valid() {
		return nil, gateway.Domain("Login failed: malformed response from server")
	}
	id := resp.User

	if err := s.persist(ctx, &id, tok); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.identity = &id
	s.credential = tok
	s.mu.Unlock()

	s.logger.Info("logged in", slog.String("user_id", id.ID), slog.String("role", string(id.Role)))
	cur := s.Current()
	s.emit(Event{Kind: EventLogin, Identity: cur})
	return cur, nil
}

func loginError(err error) error {
	if strings.TrimSpace(err.Error()) == "" {
		return gateway.Domain("Login failed")
	}
	return err
}

// persist writes both halves; a partial write is rolled back so storage never
// holds half a pair.
func (s *Store) persist(ctx context.Context, id *model.Identity, tok model.Credential) error {
	b, err := json.Marshal(id)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, store.KeyUser, string(b)); err != nil {
		s.rollbackPersisted(ctx)
		return err
	}
	if err := s.kv.Set(ctx, store.KeyToken, string(tok)); err != nil {
		s.rollbackPersisted(ctx)
		return err
	}
	return nil
}

func (s *Store) rollbackPersisted(ctx context.Context) {
	s.mu.RLock()
	id, tok := s.identity, s.credential
	s.mu.RUnlock()

	if id == nil {
		_ = s.kv.Delete(ctx, store.KeyToken, store.KeyUser)
		return
	}
	if b, err := json.Marshal(id); err == nil {
		_ = s.kv.Set(ctx, store.KeyUser, string(b))
		_ = s.kv.Set(ctx, store.KeyToken, string(tok))
	}
}

// Register creates a founder account. It does not log in.
func (s *Store) Register(ctx context.Context, name, email, password string) (model.Identity, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return model.Identity{}, gateway.Invalid("name, email and password are required")
	}
	if s.backend == nil {
		return model.Identity{}, ErrNoBackend
	}
	return s.backend.Register(ctx, model.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     model.RoleFounder,
	})
}

// Logout clears the active session and its persisted copy. Safe to call
// with no active session.
func (s *Store) Logout(ctx context.Context) error {
	was := s.clear()
	err := s.kv.Delete(ctx, store.KeyToken, store.KeyUser)
	if was {
		s.emit(Event{Kind: EventLogout})
	}
	return err
}

// ForceLogout is the teardown run when the backend rejects the credential.
// It always emits EventExpired so views can return to the login entry point.
func (s *Store) ForceLogout(ctx context.Context, reason string) {
	s.clear()
	if err := s.kv.Delete(context.WithoutCancel(ctx), store.KeyToken, store.KeyUser); err != nil {
		s.logger.Error("clear persisted session after rejected credential", slog.String("error", err.Error()))
	}
	s.logger.Warn("session expired", slog.String("reason", reason))
	s.emit(Event{Kind: EventExpired, Reason: reason})
}

func (s *Store) clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.identity != nil
	s.identity = nil
	s.credential = ""
	return was
}
