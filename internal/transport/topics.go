package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

// Topic names, as used in logs and metrics labels.
const (
	TopicQueryBlocked     = "query-blocked"
	TopicApprovalDecision = "approval-decision"
	TopicVoteCast         = "vote-cast"
	TopicAuditLog         = "audit-log"
	TopicMetricsUpdate    = "metrics-update"
)

type topic struct {
	name        string
	destination string
	decode      func(body []byte) (event.Event, error)
}

// topics is the fixed subscription set, re-sent on every connect. The
// subscription id of topics[i] is "sub-<i>".
var topics = []topic{
	{TopicQueryBlocked, "/topic/blocked", decodeBlocked},
	{TopicApprovalDecision, "/topic/approvals", decodeApproval},
	{TopicVoteCast, "/topic/votes", decodeVote},
	{TopicAuditLog, "/topic/logs", decodeAudit},
	{TopicMetricsUpdate, "/topic/metrics", decodeMetrics},
}

// Destinations lists the broker destinations in subscription order.
func Destinations() []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = t.destination
	}
	return out
}

func subscriptionID(i int) string { return fmt.Sprintf("sub-%d", i) }

var errMissingID = errors.New("payload has no query id")

// unwrap decodes a body that the broker forwarded as a JSON string holding
// the JSON document.
func unwrap(body []byte) []byte {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return trimmed
	}
	return []byte(inner)
}

func decodeInto(body []byte, v any) error {
	body = unwrap(body)
	if len(body) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(body, v)
}

type queryRef struct {
	ID      *int64 `json:"id"`
	QueryID *int64 `json:"queryId"`
}

func (r queryRef) resolve() (int64, error) {
	switch {
	case r.ID != nil:
		return *r.ID, nil
	case r.QueryID != nil:
		return *r.QueryID, nil
	}
	return 0, errMissingID
}

type stamped struct {
	Timestamp model.Timestamp `json:"timestamp"`
	CreatedAt model.Timestamp `json:"createdAt"`
}

func (s stamped) at() model.Timestamp {
	if !s.Timestamp.IsZero() {
		return s.Timestamp
	}
	return s.CreatedAt
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func decodeBlocked(body []byte) (event.Event, error) {
	var p struct {
		queryRef
		stamped
		Preview      string `json:"preview"`
		QueryPreview string `json:"queryPreview"`
		Query        string `json:"query"`
	}
	if err := decodeInto(body, &p); err != nil {
		return nil, err
	}
	id, err := p.resolve()
	if err != nil {
		return nil, err
	}
	return event.QueryBlocked{
		QueryID:    id,
		Preview:    firstNonEmpty(p.Preview, p.QueryPreview, p.Query),
		OccurredAt: p.at().Time,
	}, nil
}

// decisionStatus maps the status or type field to a terminal status.
func decisionStatus(raw string) (model.QueryStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "APPROVED", "APPROVE":
		return model.StatusApproved, nil
	case "REJECTED", "REJECT":
		return model.StatusRejected, nil
	case "EXPIRED", "EXPIRE":
		return model.StatusExpired, nil
	}
	return "", fmt.Errorf("unknown decision %q", raw)
}

func decodeApproval(body []byte) (event.Event, error) {
	var p struct {
		queryRef
		stamped
		Status     string `json:"status"`
		Type       string `json:"type"`
		ResolvedBy string `json:"resolvedBy"`
		ApprovedBy string `json:"approvedBy"`
		By         string `json:"by"`
		Username   string `json:"username"`
	}
	if err := decodeInto(body, &p); err != nil {
		return nil, err
	}
	id, err := p.resolve()
	if err != nil {
		return nil, err
	}
	status, err := decisionStatus(firstNonEmpty(p.Status, p.Type))
	if err != nil {
		return nil, err
	}
	return event.ApprovalDecision{
		QueryID:    id,
		Status:     status,
		ResolvedBy: firstNonEmpty(p.ResolvedBy, p.ApprovedBy, p.By, p.Username),
		OccurredAt: p.at().Time,
	}, nil
}

func decodeVote(body []byte) (event.Event, error) {
	var p struct {
		queryRef
		stamped
		Username string `json:"username"`
		Voter    string `json:"voter"`
		Vote     string `json:"vote"`
	}
	if err := decodeInto(body, &p); err != nil {
		return nil, err
	}
	id, err := p.resolve()
	if err != nil {
		return nil, err
	}
	vote := model.Vote(strings.ToUpper(strings.TrimSpace(p.Vote)))
	if vote != model.VoteApprove && vote != model.VoteReject {
		return nil, fmt.Errorf("unknown vote %q", p.Vote)
	}
	return event.VoteCast{
		QueryID:    id,
		Username:   firstNonEmpty(p.Username, p.Voter),
		Vote:       vote,
		OccurredAt: p.at().Time,
	}, nil
}

// decodeAudit also accepts a bare text line, which becomes the details.
func decodeAudit(body []byte) (event.Event, error) {
	if text := unwrap(body); len(text) > 0 && text[0] != '{' {
		return event.AuditLogged{Details: string(text)}, nil
	}
	var p struct {
		stamped
		Username string `json:"username"`
		Action   string `json:"action"`
		Details  string `json:"details"`
	}
	if err := decodeInto(body, &p); err != nil {
		return nil, err
	}
	return event.AuditLogged{
		Username:   p.Username,
		Action:     p.Action,
		Details:    p.Details,
		OccurredAt: p.at().Time,
	}, nil
}

func decodeMetrics(body []byte) (event.Event, error) {
	var m model.Metrics
	if err := decodeInto(body, &m); err != nil {
		return nil, err
	}
	return event.MetricsUpdated{Metrics: m}, nil
}
