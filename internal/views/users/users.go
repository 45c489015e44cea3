// Package users renders the operator account list.
package users

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

type Model struct {
	Width    int
	Selected int
	rows     []model.User
}

func New() Model { return Model{} }

func (m *Model) SetRows(rows []model.User) {
	m.rows = rows
	if m.Selected >= len(rows) {
		m.Selected = max(0, len(rows)-1)
	}
}

func (m *Model) Move(delta int) {
	if n := len(m.rows); n > 0 {
		m.Selected = ((m.Selected+delta)%n + n) % n
	}
}

func (m Model) SelectedUser() (model.User, bool) {
	if m.Selected < 0 || m.Selected >= len(m.rows) {
		return model.User{}, false
	}
	return m.rows[m.Selected], true
}

// View renders the table. self is the signed-in operator's ID.
func (m Model) View(self int64, isAdmin bool) string {
	header := theme.StyleHeader.Render(fmt.Sprintf("  Users (%d)", len(m.rows)))
	if !isAdmin {
		return lipgloss.JoinVertical(lipgloss.Left, header,
			theme.StyleDimmed.Render("  User management requires the ADMIN role"))
	}
	if len(m.rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No users"))
	}

	lines := []string{
		header,
		theme.StyleDimmed.Render(fmt.Sprintf("  %-6s %-20s %-7s %-17s %-17s", "ID", "Username", "Role", "Created", "Last login")),
	}
	for i, u := range m.rows {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		name := theme.Truncate(u.Username, 20)
		if u.ID == self {
			name = theme.Truncate(u.Username+" (you)", 20)
		}
		role := lipgloss.NewStyle().Foreground(theme.RoleColor(string(u.Role))).Width(7).Render(string(u.Role))
		lines = append(lines, fmt.Sprintf("%s%-6d %-20s %s %-17s %-17s",
			prefix, u.ID, name, role, stamp(u.CreatedAt), stamp(u.LastLogin)))
	}
	lines = append(lines, "", theme.StyleDimmed.Render("  n:new user  x:delete selected"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func stamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
