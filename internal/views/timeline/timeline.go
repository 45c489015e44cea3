// Package timeline renders the reconciler's activity timeline as a
// scrollable panel.
package timeline

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

// Model holds timeline view state. Entries are newest first, as the
// reconciler returns them.
type Model struct {
	Entries []reconcile.TimelineEntry
	Offset  int // scroll offset from the newest entry
	newest  uint64
}

// New creates an empty timeline model.
func New() Model {
	return Model{}
}

// SetEntries replaces the entries. Scroll resets to the top when a newer
// entry has arrived.
func (m *Model) SetEntries(entries []reconcile.TimelineEntry) {
	m.Entries = entries
	if len(entries) > 0 && entries[0].Seq != m.newest {
		m.newest = entries[0].Seq
		m.Offset = 0
	}
	m.clamp()
}

// ScrollDown moves towards older entries.
func (m *Model) ScrollDown(n int) {
	m.Offset += n
	m.clamp()
}

// ScrollUp moves towards newer entries.
func (m *Model) ScrollUp(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

func (m *Model) clamp() {
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

// panelStyle returns the shared border style for the timeline panel.
func panelStyle(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

// View renders at most height-4 entries inside a panel of the given width.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visibleLines := height - 4
	if visibleLines < 3 {
		visibleLines = 3
	}

	title := theme.StyleHeader.Render("Activity")
	if len(m.Entries) == 0 {
		body := theme.StyleDimmed.Render("No recent activity")
		return panelStyle(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	start := m.Offset
	end := start + visibleLines
	if end > len(m.Entries) {
		end = len(m.Entries)
	}

	var lines []string
	for _, e := range m.Entries[start:end] {
		tsStr := theme.StyleDimmed.Render(e.OccurredAt.Format("15:04:05"))
		kindColor := theme.EntryColor(string(e.Kind))
		if e.Local {
			kindColor = theme.ColorLocal
		}
		titleStr := lipgloss.NewStyle().Foreground(kindColor).Render(e.Title)
		detail := theme.Truncate(e.Detail, innerW-lipgloss.Width(e.Title)-12)
		lines = append(lines, fmt.Sprintf("%s %s %s", tsStr, titleStr, detail))
	}

	footer := theme.StyleDimmed.Render(fmt.Sprintf("%d/%d", end, len(m.Entries)))
	if rest := len(m.Entries) - end; rest > 0 {
		footer = theme.StyleDimmed.Render(fmt.Sprintf("↓ %d older", rest))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n"), footer)
	return panelStyle(innerW).Render(content)
}
