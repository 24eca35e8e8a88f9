package tui

import (
	"crewdesk/internal/perm"

	"github.com/charmbracelet/bubbles/key"
)

type keyMap struct {
	NextTab key.Binding
	PrevTab key.Binding
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Back    key.Binding
	Advance key.Binding
	Revert  key.Binding
	Note    key.Binding
	Refresh key.Binding
	Logout  key.Binding
	Help    key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		NextTab: key.NewBinding(key.WithKeys("tab", "right", "l"), key.WithHelp("tab", "next tab")),
		PrevTab: key.NewBinding(key.WithKeys("shift+tab", "left", "h"), key.WithHelp("shift+tab", "prev tab")),
		Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Open:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "open notes")),
		Back:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Advance: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next status")),
		Revert:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "back to pending")),
		Note:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add note")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Logout:  key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "log out")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// gate enables only the bindings the view's capabilities allow. Revert is a
// founder-only move, so it follows TasksEdit.
func (k *keyMap) gate(v perm.View) {
	k.Advance.SetEnabled(v.Capabilities.Has(perm.TasksAdvance))
	k.Revert.SetEnabled(v.Capabilities.Has(perm.TasksEdit))
	k.Note.SetEnabled(v.Capabilities.Has(perm.ContactsNote))
	k.Open.SetEnabled(v.Capabilities.Has(perm.ContactsView))
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextTab, k.Advance, k.Note, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.NextTab, k.PrevTab, k.Up, k.Down},
		{k.Open, k.Back, k.Advance, k.Revert, k.Note},
		{k.Refresh, k.Logout, k.Help, k.Quit},
	}
}
