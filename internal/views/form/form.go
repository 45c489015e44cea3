// Package form is a small stack of text inputs used for the login screen
// and the new user dialog.
package form

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/theme"
)

// Field describes one input.
type Field struct {
	Label  string
	Secret bool
}

type Model struct {
	Title  string
	Hint   string
	Error  string
	Busy   bool
	inputs []textinput.Model
	labels []string
	focus  int
}

func New(title string, fields ...Field) Model {
	m := Model{Title: title}
	for i, f := range fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 128
		ti.Width = 32
		if f.Secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		if i == 0 {
			ti.Focus()
		}
		m.inputs = append(m.inputs, ti)
		m.labels = append(m.labels, f.Label)
	}
	return m
}

// Value returns the text of field i.
func (m Model) Value(i int) string { return m.inputs[i].Value() }

// SetValue replaces the text of field i.
func (m *Model) SetValue(i int, v string) { m.inputs[i].SetValue(v) }

// Focused returns the index of the focused field.
func (m Model) Focused() int { return m.focus }

// Next moves focus to the following field, wrapping around.
func (m *Model) Next() tea.Cmd { return m.setFocus((m.focus + 1) % len(m.inputs)) }

// Prev moves focus to the previous field, wrapping around.
func (m *Model) Prev() tea.Cmd { return m.setFocus((m.focus - 1 + len(m.inputs)) % len(m.inputs)) }

// Last reports whether the final field has focus.
func (m Model) Last() bool { return m.focus == len(m.inputs)-1 }

func (m *Model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[i].Focus()
}

// Reset clears every field and focuses the first.
func (m *Model) Reset() {
	for i := range m.inputs {
		m.inputs[i].SetValue("")
	}
	m.Error = ""
	m.Busy = false
	m.setFocus(0)
}

// Update passes msg to the focused input.
func (m *Model) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(theme.StyleHeader.Render(m.Title) + "\n\n")
	label := lipgloss.NewStyle().Width(12).Foreground(theme.ColorDimmed)
	for i, in := range m.inputs {
		marker := "  "
		if i == m.focus {
			marker = lipgloss.NewStyle().Foreground(theme.ColorAccent).Render("> ")
		}
		b.WriteString(marker + label.Render(m.labels[i]) + in.View() + "\n")
	}
	b.WriteString("\n")
	switch {
	case m.Busy:
		b.WriteString(theme.StyleDimmed.Render("Please wait..."))
	case m.Error != "":
		b.WriteString(theme.StyleError.Render(m.Error))
	case m.Hint != "":
		b.WriteString(theme.StyleDimmed.Render(m.Hint))
	}
	return theme.StyleBorder.Padding(1, 2).Render(b.String())
}
