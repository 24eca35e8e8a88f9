package tui

import (
	"fmt"
	"strings"

	"crewdesk/internal/model"
	"crewdesk/internal/perm"
	"crewdesk/internal/tasks"

	"github.com/charmbracelet/lipgloss"
)

const defaultWidth = 80

var tabTitles = map[perm.Tab]string{
	perm.TabOverview: "Overview",
	perm.TabTeam:     "Team",
	perm.TabTasks:    "Tasks",
	perm.TabContacts: "Contacts",
}

func (m Model) contentWidth() int {
	if m.width > 0 {
		return m.width
	}
	return defaultWidth
}

func (m Model) View() string {
	if m.mode == modeLogin {
		return m.loginView()
	}
	w := m.contentWidth()

	body := m.bodyView(w)
	if m.height > 0 {
		// header(1) + tabs(1) + blank(1) + status(1) + help(1)
		h := m.height - 5
		if h < 1 {
			h = 1
		}
		body = normalizePane(body, w, h)
	}

	return strings.Join([]string{
		m.headerView(w),
		m.tabsView(),
		"",
		body,
		m.statusView(w),
		m.help.View(m.keys),
	}, "\n")
}

func (m Model) headerView(w int) string {
	title := styleTitle().Render("crewdesk")
	who := styleMuted().Render(fmt.Sprintf("%s <%s> · %s", m.identity.Name, m.identity.Email, m.identity.Role))
	return truncate(title+"  "+who, w)
}

func (m Model) tabsView() string {
	parts := make([]string, 0, len(m.view.Tabs))
	for i, t := range m.view.Tabs {
		st := styleTabInactive()
		if i == m.tab {
			st = styleTabActive()
		}
		parts = append(parts, st.Render(tabTitles[t]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) statusView(w int) string {
	if m.loading {
		return m.spinner.View() + " " + styleMuted().Render("Loading…")
	}
	if m.status == "" {
		return ""
	}
	return truncate(styleFlash(m.statusErr).Render(m.status), w)
}

func (m Model) bodyView(w int) string {
	switch m.currentTab() {
	case perm.TabOverview:
		return m.overviewView()
	case perm.TabTeam:
		return m.teamView(w)
	case perm.TabTasks:
		return m.tasksView(w)
	case perm.TabContacts:
		if m.mode == modeThread || m.mode == modeNote {
			return m.threadView(w)
		}
		return m.contactsView(w)
	}
	return ""
}

func (m Model) overviewView() string {
	s := m.snap.Stats
	lines := []string{
		fmt.Sprintf("Team members   %d", s.TeamMembers),
		fmt.Sprintf("Tasks          %d", s.Tasks.Total),
		fmt.Sprintf("  pending      %d", s.Tasks.Pending),
		fmt.Sprintf("  in progress  %d", s.Tasks.InProgress),
		fmt.Sprintf("  completed    %d", s.Tasks.Completed),
		fmt.Sprintf("Contacts       %d", s.Contacts),
	}
	if len(m.snap.Failed) > 0 {
		lines = append(lines, "", styleFlash(true).Render("Could not load: "+strings.Join(m.snap.Failed, ", ")))
	}
	return strings.Join(lines, "\n")
}

func (m Model) rows(t perm.Tab, w int, lines []string) string {
	if len(lines) == 0 {
		return styleMuted().Render("Nothing here yet.")
	}
	sel := m.cursor[t]
	for i, ln := range lines {
		ln = padRight(ln, w-2)
		if i == sel {
			lines[i] = styleSelectedRow().Render("› " + ln)
		} else {
			lines[i] = "  " + ln
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) teamView(w int) string {
	lines := make([]string, 0, len(m.snap.Team))
	for _, p := range m.snap.Team {
		lines = append(lines, fmt.Sprintf("%-24s %-32s %s", p.Name, p.Email, p.Role))
	}
	return m.rows(perm.TabTeam, w, lines)
}

func statusStyle(s model.TaskStatus) lipgloss.Style {
	switch s {
	case model.StatusInProgress:
		return lipgloss.NewStyle().Foreground(colorInProgress)
	case model.StatusCompleted:
		return lipgloss.NewStyle().Foreground(colorCompleted)
	}
	return lipgloss.NewStyle().Foreground(colorPending)
}

func (m Model) tasksView(w int) string {
	lines := make([]string, 0, len(m.snap.Tasks))
	for _, t := range m.snap.Tasks {
		label := statusStyle(t.Status).Render(padRight(t.Status.Label(), 12))
		line := fmt.Sprintf("%s %-7s %s", label, t.Priority, t.Title)
		if t.DueDate != nil {
			line += styleMuted().Render("  due " + t.DueDate.String())
		}
		if next := tasks.NextStatuses(m.identity, t); len(next) > 0 {
			hints := make([]string, 0, len(next))
			for _, s := range next {
				hints = append(hints, s.Label())
			}
			line += styleMuted().Render("  → " + strings.Join(hints, " / "))
		}
		lines = append(lines, line)
	}
	out := m.rows(perm.TabTasks, w, lines)
	if t, ok := m.selectedTask(); ok && strings.TrimSpace(t.Description) != "" {
		out += "\n\n" + renderMarkdown(t.Description, w-2)
	}
	return out
}

func (m Model) contactsView(w int) string {
	lines := make([]string, 0, len(m.snap.Contacts))
	for _, c := range m.snap.Contacts {
		company := ""
		if c.Company != nil {
			company = *c.Company
		}
		lines = append(lines, fmt.Sprintf("%-24s %-24s %d notes", c.Name, company, len(c.Notes)))
	}
	return m.rows(perm.TabContacts, w, lines)
}

func (m Model) threadView(w int) string {
	c, _ := m.selectedContact()
	parts := []string{styleTitle().Render(c.Name)}
	var meta []string
	for _, p := range []*string{c.Position, c.Company, c.Email, c.Phone} {
		if p != nil && *p != "" {
			meta = append(meta, *p)
		}
	}
	if len(meta) > 0 {
		parts = append(parts, styleMuted().Render(strings.Join(meta, " · ")))
	}
	parts = append(parts, "", renderMarkdown(notesMarkdown(m.annotations()), w-2))
	if m.mode == modeNote {
		parts = append(parts, "", "Note: "+m.note.View())
	}
	return strings.Join(parts, "\n")
}

func (m Model) loginView() string {
	w := m.contentWidth()
	label := func(s string, focused bool) string {
		if focused {
			return lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Render(s)
		}
		return styleMuted().Render(s)
	}
	lines := []string{
		styleTitle().Render("crewdesk"),
		styleMuted().Render("Log in to continue"),
		"",
		label("Email    ", m.loginFocus == 0) + m.email.View(),
		label("Password ", m.loginFocus == 1) + m.password.View(),
		"",
	}
	if m.status != "" {
		lines = append(lines, styleFlash(m.statusErr).Render(m.status))
	}
	lines = append(lines, styleMuted().Render("tab: switch field   enter: submit   esc: quit"))
	return normalizePane(strings.Join(lines, "\n"), w, 0)
}
