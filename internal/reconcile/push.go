package reconcile

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

func (r *Reconciler) subscribe() {
	r.subs = append(r.subs,
		bus.On(r.bus, r.onBlocked),
		bus.On(r.bus, r.onDecision),
		bus.On(r.bus, r.onVote),
		bus.On(r.bus, r.onAudit),
		bus.On(r.bus, r.onMetrics),
		bus.On(r.bus, r.onStatus),
		bus.On(r.bus, r.onDisconnected),
		bus.On(r.bus, r.onExpired),
	)
}

// Push handlers run on the transport's reader goroutine. They never block
// on I/O: re-pulls go through spawn.

func (r *Reconciler) onBlocked(ev event.QueryBlocked) {
	epoch := r.currentEpoch()
	detail := ev.Preview
	if detail == "" {
		detail = fmt.Sprintf("Query #%d", ev.QueryID)
	}
	r.addTimeline(epoch, TimelineEntry{Kind: EntryBlocked, Title: "Query Intercepted", Detail: detail, OccurredAt: ev.OccurredAt})
	r.notify(event.LevelInfo, "New query intercepted and blocked")
	r.loadPending()
	r.loadMetrics()
}

func (r *Reconciler) onDecision(ev event.ApprovalDecision) {
	epoch := r.currentEpoch()
	r.decided(epoch, ev.QueryID, ev.Status)

	by := ev.ResolvedBy
	if by == "" {
		by = "system"
	}
	kind, title := decisionEntry(ev.Status)
	r.addTimeline(epoch, TimelineEntry{
		Kind:       kind,
		Title:      title,
		Detail:     fmt.Sprintf("Query #%d by %s", ev.QueryID, by),
		OccurredAt: ev.OccurredAt,
	})
	r.loadPending()
	r.loadQueries()
	r.loadMetrics()
}

func decisionEntry(s model.QueryStatus) (EntryKind, string) {
	switch s {
	case model.StatusApproved:
		return EntryApproved, "Query Approved"
	case model.StatusExpired:
		return EntryDefault, "Query Expired"
	default:
		return EntryRejected, "Query Rejected"
	}
}

// decided records a terminal status and moves the current projections
// forward ahead of the next pull.
func (r *Reconciler) decided(epoch uint64, id int64, s model.QueryStatus) {
	r.mu.Lock()
	if !r.liveLocked(epoch) || !r.ledger.record(id, s) {
		r.mu.Unlock()
		return
	}
	r.pending = r.ledger.pending(r.pending)
	for i := range r.queries {
		r.ledger.apply(&r.queries[i])
	}
	r.mu.Unlock()
	r.changed(event.SectionPending)
	r.changed(event.SectionQueries)
}

func (r *Reconciler) onVote(ev event.VoteCast) {
	r.addTimeline(r.currentEpoch(), TimelineEntry{
		Kind:       EntryVote,
		Title:      "Vote Cast",
		Detail:     fmt.Sprintf("%s voted %s on #%d", ev.Username, ev.Vote, ev.QueryID),
		OccurredAt: ev.OccurredAt,
	})
	r.votes.Delete(voteKey(ev.QueryID))
	r.loadPending()
}

func (r *Reconciler) onAudit(ev event.AuditLogged) {
	title := ev.Action
	if title == "" {
		title = "Activity"
	}
	r.addTimeline(r.currentEpoch(), TimelineEntry{Kind: EntryDefault, Title: title, Detail: ev.Details, OccurredAt: ev.OccurredAt})
}

func (r *Reconciler) onMetrics(ev event.MetricsUpdated) {
	r.mu.Lock()
	r.stampLocked(resMetrics)
	r.metricsSnap = ev.Metrics
	r.mu.Unlock()
	r.changed(event.SectionMetrics)
}

func (r *Reconciler) onStatus(ev event.StatusChanged) {
	r.mu.Lock()
	r.phase, r.retries = ev.Phase, ev.Retries
	r.mu.Unlock()
	r.changed(event.SectionConnection)
}

func (r *Reconciler) onDisconnected(ev event.Disconnected) {
	if ev.Err != nil {
		r.logger.Info("push channel dropped", zap.Error(ev.Err))
	}
}

// onExpired runs when the backend rejects the credential. Only the first of
// several concurrent rejections raises the notice.
func (r *Reconciler) onExpired(event.SessionExpired) {
	r.mu.Lock()
	wasActive := r.active
	r.active = false
	r.mu.Unlock()
	if wasActive {
		r.notify(event.LevelWarning, "Session expired. Please sign in again.")
	}
	if err := r.Logout(context.Background()); err != nil {
		r.logger.Warn("logout after expiry", zap.Error(err))
	}
}

func voteKey(id int64) string { return strconv.FormatInt(id, 10) }
