package timeline

import (
	"strings"
	"testing"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
)

func entries(n int) []reconcile.TimelineEntry {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out := make([]reconcile.TimelineEntry, n)
	for i := range out {
		seq := uint64(n - i)
		out[i] = reconcile.TimelineEntry{
			Seq:        seq,
			Kind:       reconcile.EntryBlocked,
			Title:      "Query Intercepted",
			Detail:     "DROP TABLE t",
			OccurredAt: base.Add(time.Duration(seq) * time.Second),
		}
	}
	return out
}

func TestScrollUpDown(t *testing.T) {
	m := New()
	m.SetEntries(entries(20))
	if m.Offset != 0 {
		t.Fatal("expected offset 0 after set")
	}

	m.ScrollDown(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollUp(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollUp(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
}

func TestScrollDownCapped(t *testing.T) {
	m := New()
	m.SetEntries(entries(5))
	m.ScrollDown(100)
	if m.Offset != 4 {
		t.Errorf("expected offset 4, got %d", m.Offset)
	}
}

func TestNewEntryResetsScroll(t *testing.T) {
	m := New()
	m.SetEntries(entries(10))
	m.ScrollDown(5)

	// Same newest entry: scroll is kept.
	m.SetEntries(entries(10))
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.SetEntries(entries(11))
	if m.Offset != 0 {
		t.Error("a newer entry should reset scroll to 0")
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	v := m.View(80, 20)
	if !strings.Contains(v, "No recent activity") {
		t.Error("empty view should show 'No recent activity'")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New()
	m.SetEntries([]reconcile.TimelineEntry{
		{Seq: 2, Kind: reconcile.EntryApproved, Title: "Query Approved", Detail: "#7 approved by admin"},
		{Seq: 1, Kind: reconcile.EntryBlocked, Title: "Query Intercepted", Detail: "DROP TABLE t"},
	})
	v := m.View(100, 20)
	for _, want := range []string{"Query Approved", "#7 approved by admin", "Query Intercepted"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}
