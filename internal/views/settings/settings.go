// Package settings renders the read-only proxy configuration.
package settings

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

var styleLabel = lipgloss.NewStyle().Foreground(theme.ColorDimmed).Width(24)

// View renders cfg. A nil cfg means it has not loaded yet.
func View(cfg *model.ProxyConfig, width int) string {
	header := theme.StyleHeader.Render("  Proxy Configuration")
	if cfg == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  Loading..."))
	}

	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(styleLabel.Render(label+":") + value + "\n")
	}
	row("Proxy port", fmt.Sprintf("%d", cfg.ProxyPort))
	row("Target", fmt.Sprintf("%s:%d", cfg.TargetHost, cfg.TargetPort))
	row("Block by default", yesNo(cfg.BlockByDefault))
	row("Peer approval", yesNo(cfg.PeerApprovalEnabled))
	if cfg.PeerApprovalEnabled {
		row("Minimum votes", fmt.Sprintf("%d", cfg.PeerApprovalMinVotes))
	}
	b.WriteString("\n")
	row("Critical keywords", badges(model.Keywords(cfg.CriticalKeywords), theme.ColorDanger))
	row("Allowed keywords", badges(model.Keywords(cfg.AllowedKeywords), theme.ColorHealthy))

	panel := lipgloss.NewStyle().
		Width(max(width-4, 40)).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.TrimRight(b.String(), "\n"))
	note := theme.StyleDimmed.Render("  Changes are applied by the proxy on restart.")
	return lipgloss.JoinVertical(lipgloss.Left, header, panel, note)
}

func yesNo(v bool) string {
	if v {
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("enabled")
	}
	return theme.StyleDimmed.Render("disabled")
}

func badges(words []string, color lipgloss.Color) string {
	if len(words) == 0 {
		return theme.StyleDimmed.Render("none")
	}
	style := lipgloss.NewStyle().Foreground(color)
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = style.Render("[" + w + "]")
	}
	return strings.Join(out, " ")
}
