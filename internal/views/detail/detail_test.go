package detail

import (
	"strings"
	"testing"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func pendingQuery() model.BlockedQuery {
	return model.BlockedQuery{
		ID:                   7,
		ConnID:               "conn-7",
		QueryType:            "DROP",
		QueryPreview:         "DROP TABLE customers",
		Status:               model.StatusPending,
		RequiresPeerApproval: true,
	}
}

func TestViewEmpty(t *testing.T) {
	if v := (Model{}).View(); v != "" {
		t.Errorf("expected empty view, got %q", v)
	}
}

func TestViewPeerFooterAndVotes(t *testing.T) {
	m := New(pendingQuery(), false)
	v := m.View()
	for _, want := range []string{"Query #7", "conn-7", "PENDING", "vote approve", "loading..."} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}

	m.Votes = &model.VoteStatus{QueryID: 7, ApprovalCount: 1, RejectionCount: 1, Approvals: []string{"peer1"}, Rejections: []string{"peer2"}}
	v = m.View()
	for _, want := range []string{"50%", "1 (peer1)", "1 (peer2)"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestViewAdminAndResolved(t *testing.T) {
	m := New(pendingQuery(), true)
	if v := m.View(); !strings.Contains(v, "[a] approve") {
		t.Error("admin footer should offer direct approval")
	}

	q := pendingQuery()
	q.Status = model.StatusApproved
	m = New(q, true)
	v := m.View()
	if strings.Contains(v, "[a]") {
		t.Error("resolved query should not offer actions")
	}
	if !strings.Contains(v, "APPROVED") {
		t.Error("view should show the status")
	}
}

func TestViewVoteError(t *testing.T) {
	m := New(pendingQuery(), false)
	m.VoteError = "Failed to load vote status"
	if v := m.View(); !strings.Contains(v, "Failed to load vote status") {
		t.Error("view should show the vote error")
	}
}

func TestFormatAge(t *testing.T) {
	if got := formatAge(90 * time.Second); got != "1m 30s ago" {
		t.Errorf("formatAge = %q", got)
	}
	if got := formatAge(-time.Second); got != "0s ago" {
		t.Errorf("formatAge = %q", got)
	}
}
