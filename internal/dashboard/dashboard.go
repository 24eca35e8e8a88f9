// Package dashboard loads everything a role's dashboard shows in one go.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"crewdesk/internal/model"
	"crewdesk/internal/perm"
	"crewdesk/internal/tasks"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

type Source interface {
	Team(ctx context.Context) ([]model.Identity, error)
	Tasks(ctx context.Context) ([]model.Task, error)
	Contacts(ctx context.Context) ([]model.Contact, error)
}

var ErrNotLoggedIn = errors.New("not logged in")

type Stats struct {
	TeamMembers int         `json:"team_members"`
	Tasks       tasks.Stats `json:"tasks"`
	Contacts    int         `json:"contacts"`
}

// Snapshot is one dashboard load. Parts that failed to load are empty and
// listed in Failed.
type Snapshot struct {
	Identity model.Identity   `json:"identity"`
	View     perm.View        `json:"-"`
	Team     []model.Identity `json:"team,omitempty"`
	Tasks    []model.Task     `json:"tasks"`
	Contacts []model.Contact  `json:"contacts"`
	Stats    Stats            `json:"stats"`
	Failed   []string         `json:"failed,omitempty"`
}

// PartError names the dashboard part that failed.
type PartError struct {
	Part string
	Err  error
}

func (e *PartError) Error() string { return fmt.Sprintf("load %s: %v", e.Part, e.Err) }
func (e *PartError) Unwrap() error { return e.Err }

type Loader struct {
	src    Source
	logger *slog.Logger
}

func NewLoader(src Source, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{src: src, logger: logger}
}

// Load fetches the parts id's view needs in parallel. A failing part never
// cancels the others; every failure is logged and returned together as a
// *multierror.Error next to whatever did load.
func (l *Loader) Load(ctx context.Context, id *model.Identity) (Snapshot, error) {
	view := perm.SelectView(id)
	if view.Kind == perm.ViewLogin {
		return Snapshot{View: view}, ErrNotLoggedIn
	}
	snap := Snapshot{Identity: *id, View: view}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		result *multierror.Error
	)
	run := func(part string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				l.logger.Warn("dashboard part failed", slog.String("part", part), slog.String("error", err.Error()))
				mu.Lock()
				result = multierror.Append(result, &PartError{Part: part, Err: err})
				snap.Failed = append(snap.Failed, part)
				mu.Unlock()
			}
			return nil
		})
	}

	if view.Capabilities.Has(perm.TeamView) {
		run("team", func() (err error) {
			snap.Team, err = l.src.Team(ctx)
			return err
		})
	}
	run("tasks", func() (err error) {
		snap.Tasks, err = l.src.Tasks(ctx)
		return err
	})
	run("contacts", func() (err error) {
		snap.Contacts, err = l.src.Contacts(ctx)
		return err
	})
	_ = g.Wait()
	sort.Strings(snap.Failed)

	if view.Capabilities.Has(perm.StatsView) {
		snap.Stats = Stats{
			TeamMembers: len(snap.Team),
			Tasks:       tasks.ComputeStats(snap.Tasks),
			Contacts:    len(snap.Contacts),
		}
	}
	if result != nil {
		result.ErrorFormat = formatErrors
	}
	return snap, result.ErrorOrNil()
}

func formatErrors(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	s := fmt.Sprintf("%d dashboard parts failed:", len(errs))
	for _, e := range errs {
		s += "\n  * " + e.Error()
	}
	return s
}
