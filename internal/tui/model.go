package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"crewdesk/internal/dashboard"
	"crewdesk/internal/model"
	"crewdesk/internal/notes"
	"crewdesk/internal/perm"
	"crewdesk/internal/session"
	"crewdesk/internal/tasks"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type Sessions interface {
	Current() *model.Identity
	Login(ctx context.Context, email, password string) (*model.Identity, error)
	Logout(ctx context.Context) error
	Subscribe(fn func(session.Event)) func()
}

// TaskBoard is the lifecycle controller as the dashboard uses it.
type TaskBoard interface {
	Board() []model.Task
	Replace(ts []model.Task)
	Advance(ctx context.Context, actor *model.Identity, id string, to model.TaskStatus) (model.Task, error)
}

type NoteAdder interface {
	AddNote(ctx context.Context, contactID, note string) (model.Contact, error)
}

type SnapshotLoader interface {
	Load(ctx context.Context, id *model.Identity) (dashboard.Snapshot, error)
}

type Deps struct {
	Session Sessions
	Tasks   TaskBoard
	Notes   NoteAdder
	Loader  SnapshotLoader
	Logger  *slog.Logger
}

type mode int

const (
	modeLogin mode = iota
	modeBrowse
	modeThread
	modeNote
)

type (
	snapshotMsg struct {
		snap  dashboard.Snapshot
		err   error
		forID string
	}
	taskMsg struct {
		task model.Task
		err  error
	}
	noteMsg struct {
		contact model.Contact
		err     error
	}
	loginMsg struct {
		id  *model.Identity
		err error
	}
	logoutMsg  struct{ err error }
	sessionMsg session.Event
)

// Model is the dashboard program. Which tabs and actions it offers is
// re-derived from the identity every time the identity changes.
type Model struct {
	ctx    context.Context
	deps   Deps
	logger *slog.Logger

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	identity *model.Identity
	view     perm.View
	mode     mode
	tab      int
	cursor   map[perm.Tab]int
	snap     dashboard.Snapshot
	loading  bool

	email      textinput.Model
	password   textinput.Model
	loginFocus int
	note       textinput.Model

	status    string
	statusErr bool

	width, height int
}

func New(ctx context.Context, d Deps) Model {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := Model{
		ctx:     ctx,
		deps:    d,
		logger:  logger,
		keys:    defaultKeyMap(),
		help:    help.New(),
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	m.email = newInput("you@company.com", false)
	m.password = newInput("password", true)
	m.note = newInput("write a note, enter to save", false)
	m.note.CharLimit = 2000

	m.applyIdentity(d.Session.Current())
	if m.identity != nil {
		m.loading = true
	}
	return m
}

func newInput(placeholder string, secret bool) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = ""
	ti.Cursor.SetMode(cursor.CursorStatic)
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return ti
}

func (m Model) Init() tea.Cmd {
	if m.identity == nil {
		return nil
	}
	return tea.Batch(m.spinner.Tick, m.load())
}

// applyIdentity switches the dashboard to id. Everything derived from the
// previous identity is dropped.
func (m *Model) applyIdentity(id *model.Identity) {
	if id != nil {
		cp := *id
		id = &cp
	}
	m.identity = id
	m.view = perm.SelectView(id)
	m.keys.gate(m.view)
	m.tab = 0
	m.cursor = map[perm.Tab]int{}
	m.snap = dashboard.Snapshot{}
	m.loading = false
	m.note.Reset()
	m.note.Blur()
	if m.view.Kind == perm.ViewLogin {
		m.identity = nil
		m.mode = modeLogin
		m.loginFocus = 0
		m.email.Focus()
		m.password.Blur()
		return
	}
	m.mode = modeBrowse
	m.email.Blur()
	m.password.Blur()
}

func sameIdentity(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Role == b.Role && a.Name == b.Name && a.Email == b.Email
}

func (m Model) setIdentity(id *model.Identity) (Model, tea.Cmd) {
	if sameIdentity(m.identity, id) {
		return m, nil
	}
	m.applyIdentity(id)
	if m.identity == nil {
		return m, nil
	}
	m.logger.Debug("dashboard identity changed", slog.String("user", m.identity.ID), slog.String("view", string(m.view.Kind)))
	m.loading = true
	return m, tea.Batch(m.spinner.Tick, m.load())
}

func (m Model) load() tea.Cmd {
	id := *m.identity
	ctx, loader := m.ctx, m.deps.Loader
	return func() tea.Msg {
		snap, err := loader.Load(ctx, &id)
		return snapshotMsg{snap: snap, err: err, forID: id.ID}
	}
}

func (m *Model) flash(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m Model) currentTab() perm.Tab {
	if m.tab < 0 || m.tab >= len(m.view.Tabs) {
		return ""
	}
	return m.view.Tabs[m.tab]
}

func (m Model) rowCount(t perm.Tab) int {
	switch t {
	case perm.TabTeam:
		return len(m.snap.Team)
	case perm.TabTasks:
		return len(m.snap.Tasks)
	case perm.TabContacts:
		return len(m.snap.Contacts)
	}
	return 0
}

func (m *Model) clampCursors() {
	for _, t := range m.view.Tabs {
		n := m.rowCount(t)
		switch c := m.cursor[t]; {
		case n == 0:
			m.cursor[t] = 0
		case c >= n:
			m.cursor[t] = n - 1
		case c < 0:
			m.cursor[t] = 0
		}
	}
}

func (m *Model) move(delta int) {
	t := m.currentTab()
	m.cursor[t] += delta
	m.clampCursors()
}

func (m *Model) switchTab(delta int) {
	n := len(m.view.Tabs)
	if n == 0 {
		return
	}
	m.tab = (m.tab + delta + n) % n
	if m.mode == modeThread || m.mode == modeNote {
		m.mode = modeBrowse
		m.note.Reset()
		m.note.Blur()
	}
}

func (m Model) selectedTask() (model.Task, bool) {
	i := m.cursor[perm.TabTasks]
	if i < 0 || i >= len(m.snap.Tasks) {
		return model.Task{}, false
	}
	return m.snap.Tasks[i], true
}

func (m Model) selectedContact() (model.Contact, bool) {
	i := m.cursor[perm.TabContacts]
	if i < 0 || i >= len(m.snap.Contacts) {
		return model.Contact{}, false
	}
	return m.snap.Contacts[i], true
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionMsg:
		return m.onSession(session.Event(msg))

	case snapshotMsg:
		// A load that finishes after logout or an identity switch is stale.
		if m.identity == nil || msg.forID != m.identity.ID {
			return m, nil
		}
		m.loading = false
		m.snap = msg.snap
		m.deps.Tasks.Replace(msg.snap.Tasks)
		m.clampCursors()
		if msg.err != nil {
			m.flash(msg.err.Error(), true)
		}
		return m, nil

	case taskMsg:
		if m.identity == nil {
			return m, nil
		}
		m.snap.Tasks = m.deps.Tasks.Board()
		m.snap.Stats.Tasks = tasks.ComputeStats(m.snap.Tasks)
		m.clampCursors()
		if msg.err != nil {
			m.flash(msg.err.Error(), true)
		} else {
			m.flash(fmt.Sprintf("%q is now %s", msg.task.Title, msg.task.Status.Label()), false)
		}
		return m, nil

	case noteMsg:
		if m.identity == nil {
			return m, nil
		}
		if msg.err != nil {
			m.flash(msg.err.Error(), true)
			return m, nil
		}
		for i := range m.snap.Contacts {
			if m.snap.Contacts[i].ID == msg.contact.ID {
				m.snap.Contacts[i] = msg.contact
			}
		}
		m.flash("Note added", false)
		return m, nil

	case loginMsg:
		m.password.SetValue("")
		if msg.err != nil {
			m.flash(msg.err.Error(), true)
			return m, nil
		}
		m.flash("", false)
		return m.setIdentity(msg.id)

	case logoutMsg:
		if msg.err != nil {
			m.flash(msg.err.Error(), true)
		}
		return m.setIdentity(nil)

	case tea.KeyMsg:
		return m.onKey(msg)
	}
	return m, nil
}

func (m Model) onSession(ev session.Event) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch ev.Kind {
	case session.EventExpired:
		m, cmd = m.setIdentity(nil)
		m.flash("Session expired. Please log in again.", true)
	case session.EventLogout:
		m, cmd = m.setIdentity(nil)
	default:
		m, cmd = m.setIdentity(ev.Identity)
	}
	return m, cmd
}

func (m Model) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	switch m.mode {
	case modeLogin:
		return m.onLoginKey(msg)
	case modeNote:
		return m.onNoteKey(msg)
	}

	k := m.keys
	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, k.Back):
		if m.mode == modeThread {
			m.mode = modeBrowse
		}
	case key.Matches(msg, k.NextTab):
		m.switchTab(1)
	case key.Matches(msg, k.PrevTab):
		m.switchTab(-1)
	case key.Matches(msg, k.Up):
		m.move(-1)
	case key.Matches(msg, k.Down):
		m.move(1)
	case key.Matches(msg, k.Refresh):
		if !m.loading {
			m.loading = true
			return m, tea.Batch(m.spinner.Tick, m.load())
		}
	case key.Matches(msg, k.Open):
		if _, ok := m.selectedContact(); ok && m.currentTab() == perm.TabContacts {
			m.mode = modeThread
		}
	case key.Matches(msg, k.Advance):
		return m.moveTask(forward)
	case key.Matches(msg, k.Revert):
		return m.moveTask(backward)
	case key.Matches(msg, k.Note):
		if _, ok := m.selectedContact(); ok && m.currentTab() == perm.TabContacts {
			m.mode = modeNote
			m.note.Focus()
		}
	case key.Matches(msg, k.Logout):
		sess, ctx := m.deps.Session, m.ctx
		return m, func() tea.Msg { return logoutMsg{err: sess.Logout(ctx)} }
	}
	return m, nil
}

func (m Model) onLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.focusLogin(1 - m.loginFocus)
		return m, nil
	case tea.KeyEnter:
		if m.loginFocus == 0 {
			m.focusLogin(1)
			return m, nil
		}
		email, password := m.email.Value(), m.password.Value()
		sess, ctx := m.deps.Session, m.ctx
		m.flash("Logging in…", false)
		return m, func() tea.Msg {
			id, err := sess.Login(ctx, email, password)
			return loginMsg{id: id, err: err}
		}
	}
	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	return m, cmd
}

func (m *Model) focusLogin(i int) {
	m.loginFocus = i
	if i == 0 {
		m.email.Focus()
		m.password.Blur()
		return
	}
	m.password.Focus()
	m.email.Blur()
}

func (m Model) onNoteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.note.Reset()
		m.note.Blur()
		m.mode = modeThread
		return m, nil
	case tea.KeyEnter:
		c, ok := m.selectedContact()
		if !ok {
			return m, nil
		}
		text := m.note.Value()
		m.note.Reset()
		m.note.Blur()
		m.mode = modeThread
		adder, ctx := m.deps.Notes, m.ctx
		return m, func() tea.Msg {
			updated, err := adder.AddNote(ctx, c.ID, text)
			return noteMsg{contact: updated, err: err}
		}
	}
	var cmd tea.Cmd
	m.note, cmd = m.note.Update(msg)
	return m, cmd
}

type direction int

const (
	forward direction = iota
	backward
)

var statusRank = map[model.TaskStatus]int{
	model.StatusPending:    0,
	model.StatusInProgress: 1,
	model.StatusCompleted:  2,
}

// pickMove chooses the nearest allowed status in dir, if any.
func pickMove(from model.TaskStatus, allowed []model.TaskStatus, dir direction) (model.TaskStatus, bool) {
	for _, s := range allowed {
		if dir == forward && statusRank[s] > statusRank[from] {
			return s, true
		}
		if dir == backward && statusRank[s] < statusRank[from] {
			return s, true
		}
	}
	return "", false
}

// moveTask rejects locally when the lifecycle table has nothing for the
// selected task, so only legal moves are dispatched.
func (m Model) moveTask(dir direction) (tea.Model, tea.Cmd) {
	if m.currentTab() != perm.TabTasks {
		return m, nil
	}
	t, ok := m.selectedTask()
	if !ok {
		return m, nil
	}
	to, ok := pickMove(t.Status, tasks.NextStatuses(m.identity, t), dir)
	if !ok {
		switch {
		case tasks.IsTerminal(t.Status):
			m.flash("Completed tasks cannot be changed", true)
		case tasks.RelationOf(m.identity, t) == tasks.RelationNone:
			m.flash("Only the assignee can move this task", true)
		default:
			m.flash(fmt.Sprintf("No move from %s in that direction", t.Status.Label()), true)
		}
		return m, nil
	}
	actor, board, ctx := *m.identity, m.deps.Tasks, m.ctx
	m.flash(fmt.Sprintf("Moving %q to %s…", t.Title, to.Label()), false)
	return m, func() tea.Msg {
		updated, err := board.Advance(ctx, &actor, t.ID, to)
		return taskMsg{task: updated, err: err}
	}
}

// annotations for the selected contact, decoded in stored order.
func (m Model) annotations() []model.Annotation {
	c, ok := m.selectedContact()
	if !ok {
		return nil
	}
	return notes.DecodeAll(c.Notes)
}
