// Package tui is the interactive dashboard. Its tabs and actions come from
// the role-based view for whoever is logged in, and it falls back to the
// login form whenever the session ends or expires.
package tui

import (
	"context"

	"crewdesk/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

func Run(ctx context.Context, d Deps) error {
	applyThemePreference()
	applyColorProfilePreference()

	p := tea.NewProgram(New(ctx, d), tea.WithAltScreen(), tea.WithContext(ctx))
	unsubscribe := d.Session.Subscribe(func(ev session.Event) {
		p.Send(sessionMsg(ev))
	})
	defer unsubscribe()

	_, err := p.Run()
	return err
}
