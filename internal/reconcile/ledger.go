package reconcile

import "github.com/gautamrajesh007/Interceptor/internal/model"

// ledger remembers every terminal status seen for a query, from pushes or
// pulls, so that a later snapshot carrying an older view never moves a
// query back to PENDING. It is reset on logout.
type ledger map[int64]model.QueryStatus

// record keeps the first terminal status seen for id. Non-terminal statuses
// are ignored.
func (l ledger) record(id int64, s model.QueryStatus) bool {
	if !s.Terminal() {
		return false
	}
	if _, ok := l[id]; ok {
		return false
	}
	l[id] = s
	return true
}

// pending drops rows the ledger already knows to be decided.
func (l ledger) pending(rows []model.BlockedQuery) []model.BlockedQuery {
	out := make([]model.BlockedQuery, 0, len(rows))
	for _, q := range rows {
		if q.Status.Terminal() {
			l.record(q.ID, q.Status)
			continue
		}
		if _, decided := l[q.ID]; decided {
			continue
		}
		out = append(out, q)
	}
	return out
}

// all upgrades stale PENDING rows to their known terminal status and learns
// the terminal statuses the snapshot carries.
func (l ledger) all(rows []model.BlockedQuery) []model.BlockedQuery {
	out := make([]model.BlockedQuery, len(rows))
	for i, q := range rows {
		if q.Status.Terminal() {
			l.record(q.ID, q.Status)
		} else if s, ok := l[q.ID]; ok {
			q.Status = s
		}
		out[i] = q
	}
	return out
}

// apply moves a single in-memory row forward if the ledger knows better.
func (l ledger) apply(q *model.BlockedQuery) {
	if s, ok := l[q.ID]; ok && !q.Status.Terminal() {
		q.Status = s
	}
}
