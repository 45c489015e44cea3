// Package theme provides the Lip Gloss color palette and reusable styles
// for the interceptor console. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Query status colors.
var (
	ColorPending  = lipgloss.Color("#d97706")
	ColorApproved = lipgloss.Color("#16a34a")
	ColorRejected = lipgloss.Color("#dc2626")
	ColorExpired  = lipgloss.Color("#6b7280")
)

// Timeline colors.
var (
	ColorBlocked = lipgloss.Color("#f59e0b")
	ColorVote    = lipgloss.Color("#3b82f6")
	ColorLocal   = lipgloss.Color("#7c3aed")
)

// Role colors.
var (
	ColorAdmin = lipgloss.Color("#a855f7")
	ColorPeer  = lipgloss.Color("#06b6d4")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorAccent  = lipgloss.Color("#3b82f6")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorDefault = lipgloss.Color("#9ca3af")
)

// StatusColor returns the color for a query status string.
func StatusColor(status string) lipgloss.Color {
	switch status {
	case "PENDING":
		return ColorPending
	case "APPROVED":
		return ColorApproved
	case "REJECTED":
		return ColorRejected
	case "EXPIRED":
		return ColorExpired
	default:
		return ColorDefault
	}
}

// StatusGlyph returns a Unicode glyph for a query status string.
func StatusGlyph(status string) string {
	switch status {
	case "PENDING":
		return "◌"
	case "APPROVED":
		return "✓"
	case "REJECTED":
		return "✗"
	case "EXPIRED":
		return "⌛"
	default:
		return "·"
	}
}

// EntryColor returns the color for a timeline entry kind.
func EntryColor(kind string) lipgloss.Color {
	switch kind {
	case "blocked":
		return ColorBlocked
	case "approved":
		return ColorApproved
	case "rejected":
		return ColorRejected
	case "vote":
		return ColorVote
	default:
		return ColorDimmed
	}
}

// RoleColor returns the color for an operator role.
func RoleColor(role string) lipgloss.Color {
	switch role {
	case "ADMIN":
		return ColorAdmin
	case "PEER":
		return ColorPeer
	default:
		return ColorDefault
	}
}

// LevelColor returns the color for a notice level.
func LevelColor(level string) lipgloss.Color {
	switch level {
	case "success":
		return ColorHealthy
	case "warning":
		return ColorWarning
	case "error":
		return ColorDanger
	default:
		return ColorAccent
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorDanger)
)

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 1 || len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
