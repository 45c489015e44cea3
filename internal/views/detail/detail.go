// Package detail renders the blocked query flyout overlay.
package detail

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

const (
	panelWidth = 72
	barWidth   = 20
	labelWidth = 14
)

var (
	stylePanel = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(theme.ColorBorder).
			Padding(0, 1)

	styleLabel = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed).
			Width(labelWidth)

	styleValue = lipgloss.NewStyle().
			Foreground(theme.ColorBright)

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBright)

	styleFooter = lipgloss.NewStyle().
			Foreground(theme.ColorDimmed)

	styleSectionHeader = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorDimmed)
)

// Model holds the state for the detail overlay.
type Model struct {
	Query     *model.BlockedQuery
	Votes     *model.VoteStatus
	VoteError string
	CanDecide bool // false once the query left PENDING
	IsAdmin   bool
	Busy      bool
	Now       func() time.Time
}

// New creates a detail model for q.
func New(q model.BlockedQuery, isAdmin bool) Model {
	return Model{
		Query:     &q,
		CanDecide: q.Status == model.StatusPending,
		IsAdmin:   isAdmin,
		Now:       time.Now,
	}
}

// View renders the detail panel. Returns an empty string if no query is set.
func (m Model) View() string {
	if m.Query == nil {
		return ""
	}
	return stylePanel.Width(panelWidth).Render(m.renderInner(*m.Query))
}

func (m Model) renderInner(q model.BlockedQuery) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render(fmt.Sprintf("Query #%d", q.ID)) + "\n")
	b.WriteString(strings.Repeat("─", panelWidth-4) + "\n")

	statusColor := theme.StatusColor(string(q.Status))
	writeRow(&b, "Status", lipgloss.NewStyle().Foreground(statusColor).
		Render(theme.StatusGlyph(string(q.Status))+" "+string(q.Status)))
	writeRow(&b, "Type", q.QueryType)
	if q.ConnID != "" {
		writeRow(&b, "Connection", q.ConnID)
	}
	if !q.CreatedAt.IsZero() {
		writeRow(&b, "Blocked", q.CreatedAt.Local().Format("2006-01-02 15:04:05")+
			" ("+formatAge(m.Now().Sub(q.CreatedAt.Time))+")")
	}

	b.WriteString("\n")
	b.WriteString(RenderSQL(q.QueryPreview, panelWidth-4))
	b.WriteString("\n")

	if q.RequiresPeerApproval {
		b.WriteString(styleSectionHeader.Render("Peer votes") + "\n")
		switch {
		case m.VoteError != "":
			b.WriteString(theme.StyleError.Render("  "+m.VoteError) + "\n")
		case m.Votes == nil:
			b.WriteString(theme.StyleDimmed.Render("  loading...") + "\n")
		default:
			b.WriteString(renderVotes(*m.Votes))
		}
		b.WriteString("\n")
	}

	var footer string
	switch {
	case m.Busy:
		footer = "submitting...  [esc] close"
	case !m.CanDecide:
		footer = "[esc] close"
	case m.IsAdmin:
		footer = "[a] approve  [r] reject  [esc] close"
	default:
		footer = "[a] vote approve  [r] vote reject  [esc] close"
	}
	b.WriteString(styleFooter.Render(footer))
	return b.String()
}

func renderVotes(v model.VoteStatus) string {
	var b strings.Builder
	pct := float64(v.ApprovalPercent()) / 100
	color := theme.ColorRejected
	if pct >= 0.5 {
		color = theme.ColorApproved
	}
	if v.ApprovalCount+v.RejectionCount == 0 {
		color = theme.ColorDimmed
	}
	writeRow(&b, "Approval", renderBar(pct, barWidth, color)+fmt.Sprintf(" %d%%", v.ApprovalPercent()))
	writeRow(&b, "Approved by", namesOrDash(v.Approvals, v.ApprovalCount))
	writeRow(&b, "Rejected by", namesOrDash(v.Rejections, v.RejectionCount))
	return b.String()
}

func namesOrDash(names []string, count int) string {
	if len(names) == 0 {
		return fmt.Sprintf("%d", count)
	}
	return fmt.Sprintf("%d (%s)", count, strings.Join(names, ", "))
}

// RenderSQL renders stmt as a highlighted SQL code block. It falls back to
// the plain statement when the renderer is unavailable.
func RenderSQL(stmt string, width int) string {
	md := "```sql\n" + strings.TrimSpace(stmt) + "\n```\n"
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return stmt + "\n"
	}
	out, err := r.Render(md)
	if err != nil {
		return stmt + "\n"
	}
	return strings.Trim(out, "\n") + "\n"
}

func writeRow(b *strings.Builder, label, value string) {
	b.WriteString(styleLabel.Render(label+":") + styleValue.Render(value) + "\n")
}

func renderBar(pct float64, width int, color lipgloss.Color) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 1 {
		pct = 1
	}
	filled := int(pct * float64(width))
	empty := width - filled
	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", max(0, int(d.Seconds())))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds ago", int(d.Minutes()), int(d.Seconds())%60)
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm ago", h, m)
	}
}
