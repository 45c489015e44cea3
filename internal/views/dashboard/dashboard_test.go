package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func TestCountersEaseToTarget(t *testing.T) {
	m := New()
	if !m.SetMetrics(model.Metrics{TotalQueries: 1200, BlockedQueries: 3, Errors: 1}) {
		t.Fatal("SetMetrics should report movement for new targets")
	}

	first := true
	for i := 0; i < 1000 && m.Step(); i++ {
		if first {
			if v := m.Values()[0]; v <= 0 || v >= 1200 {
				t.Errorf("first frame should land between 0 and 1200, got %d", v)
			}
			first = false
		}
	}

	got := m.Values()
	want := []int64{1200, 3, 0, 0, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("counter %d = %d, want %d", i, got[i], want[i])
		}
	}
	if m.SetMetrics(model.Metrics{TotalQueries: 1200, BlockedQueries: 3, Errors: 1}) {
		t.Error("unchanged metrics should not need frames")
	}
}

func TestSelectionWrapsAndClamps(t *testing.T) {
	m := New()
	m.SetPending([]model.BlockedQuery{{ID: 1}, {ID: 2}, {ID: 3}})

	m.Move(-1)
	if q, _ := m.SelectedQuery(); q.ID != 3 {
		t.Errorf("expected wrap to 3, got %d", q.ID)
	}
	m.Move(1)
	if q, _ := m.SelectedQuery(); q.ID != 1 {
		t.Errorf("expected wrap to 1, got %d", q.ID)
	}

	m.Selected = 2
	m.SetPending([]model.BlockedQuery{{ID: 1}})
	if m.Selected != 0 {
		t.Errorf("selection should clamp to 0, got %d", m.Selected)
	}

	m.SetPending(nil)
	if _, ok := m.SelectedQuery(); ok {
		t.Error("no selection expected on an empty table")
	}
}

func TestViewPending(t *testing.T) {
	m := New()
	m.Width = 120
	m.SetPending([]model.BlockedQuery{
		{ID: 7, QueryType: "DROP", QueryPreview: "DROP TABLE\n  customers", Status: model.StatusPending},
	})
	v := m.View(nil)
	for _, want := range []string{"Pending Approval (1)", "DROP TABLE customers", "Blocked: 0"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}

	m.SetPending(nil)
	if v := m.View(nil); !strings.Contains(v, "No queries awaiting review") {
		t.Error("empty table should say so")
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}
	for _, tt := range tests {
		if got := FormatAge(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("FormatAge(-%s) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := FormatAge(time.Time{}, now); got != "-" {
		t.Errorf("zero time = %q, want -", got)
	}
}
