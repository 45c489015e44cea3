package audit

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func TestSearchInputReportsChanges(t *testing.T) {
	m := New()
	if m.Searching() {
		t.Fatal("search box should start blurred")
	}
	m.Focus()

	_, changed := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("ad")})
	if !changed {
		t.Error("typing should change the search text")
	}
	if got := m.Search.Value(); got != "ad" {
		t.Errorf("search = %q, want ad", got)
	}

	_, changed = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	if changed {
		t.Error("cursor movement should not count as a change")
	}

	m.Blur()
	if m.Searching() {
		t.Error("blur should release the search box")
	}
}

func TestViewEntries(t *testing.T) {
	m := New()
	m.Width = 140
	m.Height = 20
	m.SetEntries([]model.AuditEntry{
		{ID: 2, Username: "admin", Action: "query_approved", Details: "Approved query 7", IPAddress: "127.0.0.1",
			Timestamp: model.Timestamp{Time: time.Now()}},
		{ID: 1, Username: "peer1", Action: "vote_cast", Details: "APPROVE on query 7"},
	})
	v := m.View()
	for _, want := range []string{"Audit Log (2)", "query_approved", "Approved query 7", "127.0.0.1", "peer1"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}

	m.Scroll(10)
	if m.Offset != 1 {
		t.Errorf("scroll should clamp to 1, got %d", m.Offset)
	}

	m.SetEntries(nil)
	if !strings.Contains(m.View(), "No audit entries") {
		t.Error("empty log should say so")
	}
}
