package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI.
type KeyMap struct {
	Up           key.Binding
	Down         key.Binding
	Enter        key.Binding
	Tab          key.Binding
	ShiftTab     key.Binding
	Page1        key.Binding
	Page2        key.Binding
	Page3        key.Binding
	Page4        key.Binding
	Page5        key.Binding
	Escape       key.Binding
	Quit         key.Binding
	Approve      key.Binding
	Reject       key.Binding
	Filter       key.Binding
	Search       key.Binding
	NewUser      key.Binding
	DeleteUser   key.Binding
	Confirm      key.Binding
	Refresh      key.Binding
	Logout       key.Binding
	OlderEvents  key.Binding
	NewerEvents  key.Binding
	BlockDefault key.Binding
	PeerApproval key.Binding
	MoreVotes    key.Binding
	FewerVotes   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev row"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next row"),
		),
		Enter: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "detail / submit"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next page"),
		),
		ShiftTab: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous"),
		),
		Page1: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "dashboard"),
		),
		Page2: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "queries"),
		),
		Page3: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "users"),
		),
		Page4: key.NewBinding(
			key.WithKeys("4"),
			key.WithHelp("4", "audit"),
		),
		Page5: key.NewBinding(
			key.WithKeys("5"),
			key.WithHelp("5", "settings"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "close overlay"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Approve: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "approve"),
		),
		Reject: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reject"),
		),
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "cycle filter"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "search"),
		),
		NewUser: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new user"),
		),
		DeleteUser: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete user"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "confirm"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "refresh"),
		),
		Logout: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "log out"),
		),
		OlderEvents: key.NewBinding(
			key.WithKeys("pgdown", "J"),
			key.WithHelp("J", "older activity"),
		),
		NewerEvents: key.NewBinding(
			key.WithKeys("pgup", "K"),
			key.WithHelp("K", "newer activity"),
		),
		BlockDefault: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "toggle block by default"),
		),
		PeerApproval: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "toggle peer approval"),
		),
		MoreVotes: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "more votes"),
		),
		FewerVotes: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "fewer votes"),
		),
	}
}
