// Package dashboard provides the metrics row and the pending query table
// for the interceptor console.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

// FrameInterval is the animation step for the metric counters.
const FrameInterval = time.Second / 30

// counter eases a displayed figure towards its target.
type counter struct {
	label    string
	color    lipgloss.Color
	pos, vel float64
	target   float64
}

func (c *counter) settled() bool {
	return c.pos == c.target && c.vel == 0
}

func (c *counter) step(s harmonica.Spring) {
	c.pos, c.vel = s.Update(c.pos, c.vel, c.target)
	if d := c.target - c.pos; d < 0.5 && d > -0.5 && c.vel < 0.5 && c.vel > -0.5 {
		c.pos, c.vel = c.target, 0
	}
}

func (c *counter) value() int64 {
	return int64(c.pos + 0.5)
}

// Model holds the dashboard state.
type Model struct {
	Width    int
	Selected int
	spring   harmonica.Spring
	counters []*counter
	pending  []model.BlockedQuery
}

// New creates a dashboard model.
func New() Model {
	return Model{
		spring: harmonica.NewSpring(harmonica.FPS(30), 6.0, 1.0),
		counters: []*counter{
			{label: "Total", color: theme.ColorBright},
			{label: "Blocked", color: theme.ColorPending},
			{label: "Approved", color: theme.ColorApproved},
			{label: "Rejected", color: theme.ColorRejected},
			{label: "Connections", color: theme.ColorAccent},
			{label: "Errors", color: theme.ColorDanger},
		},
	}
}

// SetMetrics retargets the counters. It reports whether any counter needs
// animation frames to reach its new value.
func (m *Model) SetMetrics(mt model.Metrics) bool {
	targets := []int64{
		mt.TotalQueries, mt.BlockedQueries, mt.ApprovedQueries,
		mt.RejectedQueries, mt.ActiveConnections, mt.Errors,
	}
	moving := false
	for i, c := range m.counters {
		c.target = float64(targets[i])
		if !c.settled() {
			moving = true
		}
	}
	return moving
}

// Step advances every counter one frame and reports whether any is still
// moving.
func (m *Model) Step() bool {
	moving := false
	for _, c := range m.counters {
		if c.settled() {
			continue
		}
		c.step(m.spring)
		if !c.settled() {
			moving = true
		}
	}
	return moving
}

// Values returns the figures currently displayed, in counter order.
func (m Model) Values() []int64 {
	out := make([]int64, len(m.counters))
	for i, c := range m.counters {
		out[i] = c.value()
	}
	return out
}

// SetPending replaces the pending query list, oldest first.
func (m *Model) SetPending(pending []model.BlockedQuery) {
	m.pending = pending
	if m.Selected >= len(pending) {
		m.Selected = max(0, len(pending)-1)
	}
}

// Pending returns the query list shown in the table.
func (m Model) Pending() []model.BlockedQuery {
	return m.pending
}

// SelectedQuery returns the highlighted query, if any.
func (m Model) SelectedQuery() (model.BlockedQuery, bool) {
	if m.Selected < 0 || m.Selected >= len(m.pending) {
		return model.BlockedQuery{}, false
	}
	return m.pending[m.Selected], true
}

// Move shifts the selection by delta, wrapping around.
func (m *Model) Move(delta int) {
	if n := len(m.pending); n > 0 {
		m.Selected = ((m.Selected+delta)%n + n) % n
	}
}

// View renders the metrics row and the pending table.
func (m Model) View(busy map[int64]bool) string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderStatsRow(width),
		m.renderPending(width, busy),
	)
}

func (m Model) renderStatsRow(width int) string {
	statStyle := lipgloss.NewStyle().Padding(0, 1)
	stats := make([]string, 0, len(m.counters))
	for _, c := range m.counters {
		stats = append(stats, statStyle.Foreground(c.color).Render(
			fmt.Sprintf("%s: %s", c.label, formatCount(c.value()))))
	}
	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderPending(width int, busy map[int64]bool) string {
	header := theme.StyleHeader.Render(fmt.Sprintf("  Pending Approval (%d)", len(m.pending)))
	if len(m.pending) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left,
			header,
			theme.StyleDimmed.Render("  No queries awaiting review"),
		)
	}

	colID := 6
	colType := 10
	colVotes := 7
	colAge := 9
	colPreview := max(20, width-colID-colType-colVotes-colAge-10)

	dimStyle := lipgloss.NewStyle().Foreground(theme.ColorDimmed)
	tableHeader := fmt.Sprintf("  %-*s %-*s %-*s %*s %*s",
		colID, "ID",
		colType, "Type",
		colPreview, "Statement",
		colVotes, "Votes",
		colAge, "Age",
	)
	lines := []string{
		header,
		dimStyle.Render(tableHeader),
		dimStyle.Render("  " + strings.Repeat("─", min(width-4, colID+colType+colPreview+colVotes+colAge+4))),
	}

	for i, q := range m.pending {
		prefix := "  "
		if i == m.Selected {
			prefix = "> "
		}
		typeStr := lipgloss.NewStyle().Foreground(theme.ColorPending).Width(colType).
			Render(theme.Truncate(q.QueryType, colType))
		preview := theme.Truncate(oneLine(q.QueryPreview), colPreview)
		if busy[q.ID] {
			preview = theme.Truncate("… "+oneLine(q.QueryPreview), colPreview)
		}
		previewStr := lipgloss.NewStyle().Width(colPreview).Render(preview)
		votes := "-"
		if q.RequiresPeerApproval {
			votes = fmt.Sprintf("%d/%d", q.ApprovalCount, q.RejectCount)
		}
		line := fmt.Sprintf("%s%-*d %s %s %*s %*s",
			prefix, colID, q.ID, typeStr, previewStr,
			colVotes, votes, colAge, FormatAge(q.CreatedAt.Time, time.Now()))
		if i == m.Selected {
			line = theme.StyleSelected.Render(line)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FormatAge renders how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", max(0, int(d.Seconds())))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours())/24)
	}
}

// formatCount formats large numbers with K/M suffixes.
func formatCount(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}
