package transport

import (
	"testing"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func TestTopicDecoders(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		name   string
		decode func([]byte) (event.Event, error)
		body   string
		want   event.Event
	}{
		{
			name:   "blocked with preview",
			decode: decodeBlocked,
			body:   `{"id":42,"preview":"DELETE FROM accounts","timestamp":1772600767000}`,
			want:   event.QueryBlocked{QueryID: 42, Preview: "DELETE FROM accounts", OccurredAt: at},
		},
		{
			name:   "blocked with queryPreview and queryId",
			decode: decodeBlocked,
			body:   `{"queryId":7,"queryPreview":"DROP TABLE t"}`,
			want:   event.QueryBlocked{QueryID: 7, Preview: "DROP TABLE t"},
		},
		{
			name:   "blocked forwarded as a JSON string",
			decode: decodeBlocked,
			body:   `"{\"id\":9,\"query\":\"TRUNCATE t\"}"`,
			want:   event.QueryBlocked{QueryID: 9, Preview: "TRUNCATE t"},
		},
		{
			name:   "approval from status",
			decode: decodeApproval,
			body:   `{"id":42,"status":"APPROVED","resolvedBy":"alice"}`,
			want:   event.ApprovalDecision{QueryID: 42, Status: model.StatusApproved, ResolvedBy: "alice"},
		},
		{
			name:   "approval from type",
			decode: decodeApproval,
			body:   `{"queryId":42,"type":"reject","approvedBy":"root"}`,
			want:   event.ApprovalDecision{QueryID: 42, Status: model.StatusRejected, ResolvedBy: "root"},
		},
		{
			name:   "vote",
			decode: decodeVote,
			body:   `{"id":5,"voter":"bob","vote":"reject"}`,
			want:   event.VoteCast{QueryID: 5, Username: "bob", Vote: model.VoteReject},
		},
		{
			name:   "audit object",
			decode: decodeAudit,
			body:   `{"username":"alice","action":"login","details":"Login successful","timestamp":"2026-03-04T05:06:07Z"}`,
			want:   event.AuditLogged{Username: "alice", Action: "login", Details: "Login successful", OccurredAt: at},
		},
		{
			name:   "audit plain text",
			decode: decodeAudit,
			body:   `config updated`,
			want:   event.AuditLogged{Details: "config updated"},
		},
		{
			name:   "metrics",
			decode: decodeMetrics,
			body:   `{"totalQueries":10,"blockedQueries":3,"activeConnections":2}`,
			want:   event.MetricsUpdated{Metrics: model.Metrics{TotalQueries: 10, BlockedQueries: 3, ActiveConnections: 2}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.decode([]byte(tt.body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTopicDecodersReject(t *testing.T) {
	tests := []struct {
		name   string
		decode func([]byte) (event.Event, error)
		body   string
	}{
		{"blocked without id", decodeBlocked, `{"preview":"x"}`},
		{"blocked not json", decodeBlocked, `<html>`},
		{"approval unknown status", decodeApproval, `{"id":1,"status":"MAYBE"}`},
		{"vote unknown ballot", decodeVote, `{"id":1,"vote":"abstain"}`},
		{"metrics wrong type", decodeMetrics, `{"totalQueries":"many"}`},
		{"empty", decodeMetrics, ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.decode([]byte(tt.body)); err == nil {
				t.Errorf("decode(%q) succeeded, want error", tt.body)
			}
		})
	}
}
