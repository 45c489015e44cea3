package form

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestFocusCycles(t *testing.T) {
	m := New("Sign in", Field{Label: "Username"}, Field{Label: "Password", Secret: true})
	if m.Focused() != 0 || m.Last() {
		t.Fatal("first field should start focused")
	}
	m.Next()
	if !m.Last() {
		t.Error("expected the last field after Next")
	}
	m.Next()
	if m.Focused() != 0 {
		t.Error("Next should wrap to the first field")
	}
	m.Prev()
	if m.Focused() != 1 {
		t.Error("Prev should wrap to the last field")
	}
}

func TestTypingGoesToFocusedField(t *testing.T) {
	m := New("Sign in", Field{Label: "Username"}, Field{Label: "Password", Secret: true})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("admin")})
	m.Next()
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s3cret")})

	if m.Value(0) != "admin" || m.Value(1) != "s3cret" {
		t.Errorf("values = %q, %q", m.Value(0), m.Value(1))
	}
	if v := m.View(); strings.Contains(v, "s3cret") {
		t.Error("secret fields must not echo their text")
	}

	m.Error = "Invalid credentials"
	m.Reset()
	if m.Value(0) != "" || m.Error != "" || m.Focused() != 0 {
		t.Error("Reset should clear values, error and focus")
	}
}

func TestViewStates(t *testing.T) {
	m := New("New user", Field{Label: "Username"})
	m.Hint = "enter to submit"
	if !strings.Contains(m.View(), "enter to submit") {
		t.Error("hint should show when idle")
	}
	m.Error = "Username already exists"
	if !strings.Contains(m.View(), "Username already exists") {
		t.Error("error should replace the hint")
	}
	m.Busy = true
	if !strings.Contains(m.View(), "Please wait") {
		t.Error("busy should replace the error")
	}
}
