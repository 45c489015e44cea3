// Package queries renders the full blocked query history with a status
// filter.
package queries

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
	"github.com/gautamrajesh007/Interceptor/internal/views/dashboard"
)

// Filters is the order the filter key cycles through.
var Filters = []string{
	"all",
	string(model.StatusPending),
	string(model.StatusApproved),
	string(model.StatusRejected),
	string(model.StatusExpired),
}

// NextFilter returns the filter after current.
func NextFilter(current string) string {
	for i, f := range Filters {
		if f == current {
			return Filters[(i+1)%len(Filters)]
		}
	}
	return Filters[0]
}

type Model struct {
	Width    int
	Height   int
	Selected int
	Filter   string
	rows     []model.BlockedQuery
}

func New() Model {
	return Model{Filter: Filters[0]}
}

func (m *Model) SetRows(rows []model.BlockedQuery, filter string) {
	m.rows = rows
	m.Filter = filter
	if m.Selected >= len(rows) {
		m.Selected = max(0, len(rows)-1)
	}
}

func (m *Model) Move(delta int) {
	if n := len(m.rows); n > 0 {
		m.Selected = ((m.Selected+delta)%n + n) % n
	}
}

func (m Model) SelectedQuery() (model.BlockedQuery, bool) {
	if m.Selected < 0 || m.Selected >= len(m.rows) {
		return model.BlockedQuery{}, false
	}
	return m.rows[m.Selected], true
}

func (m Model) View() string {
	width := max(m.Width, 40)

	var tabs []string
	for _, f := range Filters {
		label := strings.ToLower(f)
		if f == m.Filter {
			tabs = append(tabs, theme.StyleSelected.Render("["+label+"]"))
		} else {
			tabs = append(tabs, theme.StyleDimmed.Render(label))
		}
	}
	header := theme.StyleHeader.Render(fmt.Sprintf("  All Queries (%d)", len(m.rows))) +
		"  " + strings.Join(tabs, " ")

	if len(m.rows) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No queries"))
	}

	colID, colStatus, colType, colAge := 6, 11, 10, 6
	colPreview := max(20, width-colID-colStatus-colType-colAge-10)
	lines := []string{
		header,
		theme.StyleDimmed.Render(fmt.Sprintf("  %-*s %-*s %-*s %-*s %*s",
			colID, "ID", colStatus, "Status", colType, "Type", colPreview, "Statement", colAge, "Age")),
	}

	start, end := window(m.Selected, len(m.rows), max(m.Height-3, 5))
	now := time.Now()
	for i := start; i < end; i++ {
		q := m.rows[i]
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		status := lipgloss.NewStyle().Foreground(theme.StatusColor(string(q.Status))).Width(colStatus).
			Render(theme.StatusGlyph(string(q.Status)) + " " + string(q.Status))
		preview := lipgloss.NewStyle().Width(colPreview).
			Render(theme.Truncate(strings.Join(strings.Fields(q.QueryPreview), " "), colPreview))
		line := fmt.Sprintf("%s%-*d %s %-*s %s %*s", prefix, colID, q.ID, status,
			colType, theme.Truncate(q.QueryType, colType), preview,
			colAge, dashboard.FormatAge(q.CreatedAt.Time, now))
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// window returns the row range of at most size rows that keeps sel visible.
func window(sel, n, size int) (int, int) {
	if n <= size {
		return 0, n
	}
	start := sel - size/2
	start = max(0, min(start, n-size))
	return start, start + size
}
