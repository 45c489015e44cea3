// Package model holds the wire types shared by the REST client, the push
// channel decoders and the reconciler. Types mirror the interceptor backend's
// JSON without importing any backend code.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is an operator's permission level.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RolePeer  Role = "PEER"
)

// User is an operator account.
type User struct {
	ID        int64      `json:"id"`
	Username  string     `json:"username"`
	Role      Role       `json:"role"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// IsAdmin reports whether u may decide queries directly.
func (u *User) IsAdmin() bool { return u != nil && u.Role == RoleAdmin }

// QueryStatus is the lifecycle state of a blocked query.
type QueryStatus string

const (
	StatusPending  QueryStatus = "PENDING"
	StatusApproved QueryStatus = "APPROVED"
	StatusRejected QueryStatus = "REJECTED"
	StatusExpired  QueryStatus = "EXPIRED"
)

// Terminal reports whether s can no longer change.
func (s QueryStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Vote is a peer's ballot on a blocked query.
type Vote string

const (
	VoteApprove Vote = "APPROVE"
	VoteReject  Vote = "REJECT"
)

// BlockedQuery is one intercepted statement awaiting or past review.
type BlockedQuery struct {
	ID                   int64       `json:"id"`
	ConnID               string      `json:"connId,omitempty"`
	QueryType            string      `json:"queryType"`
	QueryPreview         string      `json:"queryPreview"`
	Status               QueryStatus `json:"status"`
	ApprovalCount        int         `json:"approvalCount"`
	RejectCount          int         `json:"rejectCount"`
	RequiresPeerApproval bool        `json:"requiresPeerApproval"`
	CreatedAt            Timestamp   `json:"createdAt"`
}

// Metrics is the proxy's aggregate counters.
type Metrics struct {
	TotalQueries      int64 `json:"totalQueries"`
	BlockedQueries    int64 `json:"blockedQueries"`
	ApprovedQueries   int64 `json:"approvedQueries"`
	RejectedQueries   int64 `json:"rejectedQueries"`
	ActiveConnections int64 `json:"activeConnections"`
	Errors            int64 `json:"errors"`
}

// VoteStatus is the peer-vote tally for one query.
type VoteStatus struct {
	QueryID        int64    `json:"queryId"`
	ApprovalCount  int      `json:"approvalCount"`
	RejectionCount int      `json:"rejectionCount"`
	Approvals      []string `json:"approvals"`
	Rejections     []string `json:"rejections"`
}

// ApprovalPercent returns the share of approvals among all votes, rounded.
func (v VoteStatus) ApprovalPercent() int {
	total := v.ApprovalCount + v.RejectionCount
	if total == 0 {
		return 0
	}
	return int((float64(v.ApprovalCount)/float64(total))*100 + 0.5)
}

// AuditEntry is one line of the backend audit log.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	IPAddress string    `json:"ipAddress"`
	Timestamp Timestamp `json:"timestamp"`
}

// ProxyConfig is the read-only proxy configuration shown on the settings page.
type ProxyConfig struct {
	ProxyPort            int    `json:"proxy_port"`
	TargetHost           string `json:"target_host"`
	TargetPort           int    `json:"target_port"`
	BlockByDefault       bool   `json:"block_by_default"`
	CriticalKeywords     string `json:"critical_keywords"`
	AllowedKeywords      string `json:"allowed_keywords"`
	PeerApprovalEnabled  bool   `json:"peer_approval_enabled"`
	PeerApprovalMinVotes int    `json:"peer_approval_min_votes"`
}

// Keywords splits a comma separated keyword list, dropping blanks.
func Keywords(list string) []string {
	var out []string
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// ConfigUpdateResult is returned by PUT /api/config.
type ConfigUpdateResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Timestamp accepts the shapes the backend emits for instants: RFC 3339
// strings, epoch milliseconds as a number, or epoch milliseconds as a string.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return t.parseString(s)
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (t *Timestamp) parseString(s string) error {
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unrecognised format", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
