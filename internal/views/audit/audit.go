// Package audit renders the audit log with a username search box.
package audit

import (
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

type Model struct {
	Width   int
	Height  int
	Offset  int
	Search  textinput.Model
	entries []model.AuditEntry
}

func New() Model {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "filter by username"
	ti.CharLimit = 64
	return Model{Search: ti}
}

func (m *Model) SetEntries(entries []model.AuditEntry) {
	m.entries = entries
	if m.Offset >= len(entries) {
		m.Offset = max(0, len(entries)-1)
	}
}

func (m *Model) Scroll(delta int) {
	m.Offset = max(0, min(m.Offset+delta, len(m.entries)-1))
}

// Searching reports whether keystrokes go to the search box.
func (m Model) Searching() bool { return m.Search.Focused() }

func (m *Model) Focus() tea.Cmd { return m.Search.Focus() }

func (m *Model) Blur() { m.Search.Blur() }

// Update feeds msg to the search box. changed reports whether the search
// text differs afterwards.
func (m *Model) Update(msg tea.Msg) (cmd tea.Cmd, changed bool) {
	before := m.Search.Value()
	m.Search, cmd = m.Search.Update(msg)
	return cmd, m.Search.Value() != before
}

func (m Model) View() string {
	width := max(m.Width, 40)
	header := theme.StyleHeader.Render(fmt.Sprintf("  Audit Log (%d)", len(m.entries)))
	search := "  " + m.Search.View()

	if len(m.entries) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, search, theme.StyleDimmed.Render("  No audit entries"))
	}

	colTime, colUser, colAction, colIP := 19, 14, 24, 15
	colDetails := max(10, width-colTime-colUser-colAction-colIP-8)
	lines := []string{
		header,
		search,
		theme.StyleDimmed.Render(fmt.Sprintf("  %-*s %-*s %-*s %-*s %s",
			colTime, "Time", colUser, "User", colAction, "Action", colIP, "IP", "Details")),
	}

	visible := max(m.Height-4, 5)
	end := min(m.Offset+visible, len(m.entries))
	for _, e := range m.entries[m.Offset:end] {
		ts := "-"
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.Local().Format("2006-01-02 15:04:05")
		}
		action := lipgloss.NewStyle().Foreground(actionColor(e.Action)).Width(colAction).
			Render(theme.Truncate(e.Action, colAction))
		lines = append(lines, fmt.Sprintf("  %-*s %-*s %s %-*s %s",
			colTime, ts,
			colUser, theme.Truncate(e.Username, colUser),
			action,
			colIP, theme.Truncate(e.IPAddress, colIP),
			theme.Truncate(e.Details, colDetails)))
	}
	if rest := len(m.entries) - end; rest > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ↓ %d more", rest)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func actionColor(action string) lipgloss.Color {
	switch action {
	case "query_approved", "login":
		return theme.ColorApproved
	case "query_rejected", "unauthorized_access":
		return theme.ColorRejected
	case "vote_cast":
		return theme.ColorVote
	default:
		return theme.ColorDefault
	}
}
