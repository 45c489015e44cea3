package queries

import (
	"strings"
	"testing"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func TestNextFilterCycles(t *testing.T) {
	got := []string{}
	f := "all"
	for range Filters {
		f = NextFilter(f)
		got = append(got, f)
	}
	want := []string{"PENDING", "APPROVED", "REJECTED", "EXPIRED", "all"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, got[i], want[i])
		}
	}
	if NextFilter("bogus") != "all" {
		t.Error("unknown filter should reset to all")
	}
}

func TestWindowKeepsSelectionVisible(t *testing.T) {
	tests := []struct {
		sel, n, size     int
		wantStart, wantEnd int
	}{
		{0, 3, 10, 0, 3},
		{0, 30, 10, 0, 10},
		{15, 30, 10, 10, 20},
		{29, 30, 10, 20, 30},
	}
	for _, tt := range tests {
		start, end := window(tt.sel, tt.n, tt.size)
		if start != tt.wantStart || end != tt.wantEnd {
			t.Errorf("window(%d,%d,%d) = %d,%d want %d,%d",
				tt.sel, tt.n, tt.size, start, end, tt.wantStart, tt.wantEnd)
		}
	}
}

func TestViewRows(t *testing.T) {
	m := New()
	m.Width = 120
	m.Height = 20
	m.SetRows([]model.BlockedQuery{
		{ID: 2, QueryType: "DELETE", QueryPreview: "DELETE FROM t", Status: model.StatusRejected},
		{ID: 1, QueryType: "DROP", QueryPreview: "DROP TABLE t", Status: model.StatusApproved},
	}, "all")

	v := m.View()
	for _, want := range []string{"All Queries (2)", "REJECTED", "APPROVED", "DELETE FROM t", "[all]"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}

	m.Move(1)
	if q, ok := m.SelectedQuery(); !ok || q.ID != 1 {
		t.Errorf("expected query 1 selected, got %+v", q)
	}

	m.SetRows(nil, "EXPIRED")
	if v := m.View(); !strings.Contains(v, "No queries") || !strings.Contains(v, "[expired]") {
		t.Error("empty filtered view should name the filter and say no queries")
	}
}
