// Package event defines the closed set of events that flow over the
// console's in-process bus. Each kind is its own struct carrying a typed
// payload; consumers switch on the concrete type or subscribe by Kind.
package event

import (
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/model"
)

// Kind names an event channel on the bus.
type Kind string

const (
	KindQueryBlocked     Kind = "query:blocked"
	KindApprovalDecision Kind = "query:approval"
	KindVoteCast         Kind = "query:vote"
	KindAuditLogged      Kind = "audit:log"
	KindMetricsUpdated   Kind = "metrics:update"

	KindConnected     Kind = "ws:connected"
	KindDisconnected  Kind = "ws:disconnected"
	KindStatusChanged Kind = "ws:status"

	KindSessionExpired Kind = "auth:expired"

	KindStateChanged Kind = "state:changed"
	KindNotice       Kind = "notice"
)

// Event is implemented only by the types in this package.
type Event interface {
	Kind() Kind
	sealed()
}

// QueryBlocked is pushed when the proxy intercepts a statement.
type QueryBlocked struct {
	QueryID    int64
	Preview    string
	OccurredAt time.Time
}

// ApprovalDecision is pushed when a blocked query is resolved.
type ApprovalDecision struct {
	QueryID    int64
	Status     model.QueryStatus // APPROVED or REJECTED
	ResolvedBy string
	OccurredAt time.Time
}

// VoteCast is pushed when a peer votes on a query.
type VoteCast struct {
	QueryID    int64
	Username   string
	Vote       model.Vote
	OccurredAt time.Time
}

// AuditLogged is pushed for every audit log line written by the backend.
type AuditLogged struct {
	Username   string
	Action     string
	Details    string
	OccurredAt time.Time
}

// MetricsUpdated carries a full metrics snapshot.
type MetricsUpdated struct {
	Metrics model.Metrics
}

// Connected is published once the push channel's handshake succeeds and all
// topics are subscribed.
type Connected struct{}

// Disconnected is published when the push channel drops or is torn down.
type Disconnected struct {
	Err error // nil for a deliberate disconnect
}

// Phase is the push channel's lifecycle state.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// StatusChanged is published on every transport phase transition.
type StatusChanged struct {
	Phase   Phase
	Retries int
}

// SessionExpired is published when the backend rejects the credential.
type SessionExpired struct{}

// Section identifies which part of the reconciled state changed.
type Section string

const (
	SectionMetrics    Section = "metrics"
	SectionPending    Section = "pending"
	SectionQueries    Section = "queries"
	SectionUsers      Section = "users"
	SectionAudit      Section = "audit"
	SectionConfig     Section = "config"
	SectionTimeline   Section = "timeline"
	SectionConnection Section = "connection"
	SectionSession    Section = "session"
	SectionPage       Section = "page"
	SectionInFlight   Section = "inflight"
)

// StateChanged tells projections to re-read a section of reconciler state.
type StateChanged struct {
	Section Section
}

// Level grades a Notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a transient, user-facing message.
type Notice struct {
	Level   Level
	Message string
}

func (QueryBlocked) Kind() Kind     { return KindQueryBlocked }
func (ApprovalDecision) Kind() Kind { return KindApprovalDecision }
func (VoteCast) Kind() Kind         { return KindVoteCast }
func (AuditLogged) Kind() Kind      { return KindAuditLogged }
func (MetricsUpdated) Kind() Kind   { return KindMetricsUpdated }
func (Connected) Kind() Kind        { return KindConnected }
func (Disconnected) Kind() Kind     { return KindDisconnected }
func (StatusChanged) Kind() Kind    { return KindStatusChanged }
func (SessionExpired) Kind() Kind   { return KindSessionExpired }
func (StateChanged) Kind() Kind     { return KindStateChanged }
func (Notice) Kind() Kind           { return KindNotice }

func (QueryBlocked) sealed()     {}
func (ApprovalDecision) sealed() {}
func (VoteCast) sealed()         {}
func (AuditLogged) sealed()      {}
func (MetricsUpdated) sealed()   {}
func (Connected) sealed()        {}
func (Disconnected) sealed()     {}
func (StatusChanged) sealed()    {}
func (SessionExpired) sealed()   {}
func (StateChanged) sealed()     {}
func (Notice) sealed()           {}
