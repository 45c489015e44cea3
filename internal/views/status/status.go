package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

// Page is one tab shown in the status bar.
type Page struct {
	Key   string
	Label string
}

// Model holds the status bar state.
type Model struct {
	Phase    event.Phase
	Retries  int
	User     *model.User
	Pages    []Page
	Active   int
	InFlight int
	Width    int
}

// New creates a status bar model.
func New(pages []Page) Model {
	return Model{Pages: pages}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	var connStr string
	switch m.Phase {
	case event.PhaseConnected:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("● Live")
	case event.PhaseConnecting:
		connStr = lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("◌ Connecting...")
	default:
		label := "○ Offline"
		if m.Retries > 0 {
			label = fmt.Sprintf("○ Offline (retry %d)", m.Retries)
		}
		connStr = lipgloss.NewStyle().Foreground(theme.ColorDanger).Render(label)
	}

	var tabs []string
	for i, p := range m.Pages {
		label := fmt.Sprintf("%s:%s", p.Key, p.Label)
		if i == m.Active {
			tabs = append(tabs, theme.StyleSelected.Underline(true).Render(label))
		} else {
			tabs = append(tabs, theme.StyleDimmed.Render(label))
		}
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := connStr + sep + strings.Join(tabs, "  ")
	if m.User != nil {
		role := lipgloss.NewStyle().Foreground(theme.RoleColor(string(m.User.Role))).
			Render(string(m.User.Role))
		content += sep + m.User.Username + " " + role
	}
	if m.InFlight > 0 {
		content += sep + lipgloss.NewStyle().Foreground(theme.ColorWarning).
			Render(fmt.Sprintf("%d in flight", m.InFlight))
	}

	bar := lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)

	return bar
}
