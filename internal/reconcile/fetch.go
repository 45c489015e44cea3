package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

type resource string

const (
	resMetrics resource = "metrics"
	resPending resource = "pending"
	resQueries resource = "queries"
	resUsers   resource = "users"
	resAudit   resource = "audit"
	resConfig  resource = "config"
)

var resources = []resource{resMetrics, resPending, resQueries, resUsers, resAudit, resConfig}

// slot tracks the fetches of one resource. issued counts fetches started,
// applied is the generation whose result currently backs the projection.
type slot struct {
	issued  uint64
	applied uint64
	cancel  context.CancelFunc
}

func (r *Reconciler) slot(res resource) *slot {
	s, ok := r.slots[res]
	if !ok {
		s = &slot{}
		r.slots[res] = s
	}
	return s
}

// begin cancels the previous fetch of res and stamps a new generation. It
// reports false when the sign-in epoch has moved on or nobody is signed in.
func (r *Reconciler) begin(ctx context.Context, res resource, epoch uint64) (context.Context, context.CancelFunc, uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.liveLocked(epoch) {
		return ctx, func() {}, 0, false
	}
	ctx, cancel := context.WithCancel(ctx)
	s := r.slot(res)
	if s.cancel != nil {
		s.cancel()
	}
	s.issued++
	s.cancel = cancel
	return ctx, cancel, s.issued, true
}

// commit runs apply under the lock when gen is newer than the applied
// result, and counts the result as stale otherwise.
func (r *Reconciler) commit(res resource, gen uint64, apply func()) bool {
	r.mu.Lock()
	s := r.slot(res)
	fresh := gen > s.applied
	if fresh {
		s.applied = gen
		apply()
	}
	if gen == s.issued {
		s.cancel = nil
	}
	r.mu.Unlock()

	if !fresh {
		r.stale(res)
	}
	return fresh
}

func (r *Reconciler) superseded(res resource, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.slot(res)
	return gen < s.issued || gen <= s.applied
}

func (r *Reconciler) stale(res resource) {
	if r.metrics != nil {
		r.metrics.StaleFetch(string(res))
	}
	r.logger.Debug("dropped stale fetch", zap.String("resource", string(res)))
}

// stampLocked marks res as freshly applied without a fetch, for snapshots
// delivered by push. Any fetch still in flight becomes stale.
func (r *Reconciler) stampLocked(res resource) {
	s := r.slot(res)
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.issued++
	s.applied = s.issued
}

// cancelFetchesLocked drops every in-flight fetch and makes sure none of
// them can apply a result later.
func (r *Reconciler) cancelFetchesLocked() {
	for _, res := range resources {
		r.stampLocked(res)
	}
}

// pull runs one generation-stamped fetch of res on behalf of sign-in epoch.
// A result is applied only when no fresher one has been applied in the
// meantime. A fetch superseded while in flight is not an error.
func pull[T any](ctx context.Context, r *Reconciler, epoch uint64, res resource, section event.Section,
	load func(context.Context) (T, error), apply func(T)) error {
	ctx, cancel, gen, ok := r.begin(ctx, res, epoch)
	if !ok {
		r.logger.Debug("fetch outside its session", zap.String("resource", string(res)))
		return nil
	}
	defer cancel()

	v, err := load(ctx)
	if err != nil {
		if r.superseded(res, gen) {
			r.stale(res)
			return nil
		}
		return err
	}
	if r.commit(res, gen, func() { apply(v) }) {
		r.changed(section)
	}
	return nil
}

// spawn runs fn on a tracked goroutine for the sign-in epoch current at the
// call. Errors are logged only; the next poll or push retries.
func (r *Reconciler) spawn(res resource, fn func(context.Context, uint64) error) {
	epoch := r.currentEpoch()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(context.Background(), epoch); err != nil {
			r.logger.Warn("fetch failed", zap.String("resource", string(res)), zap.Error(err))
		}
	}()
}

func (r *Reconciler) pullMetrics(ctx context.Context, epoch uint64) error {
	return pull(ctx, r, epoch, resMetrics, event.SectionMetrics, r.api.Metrics, func(m *model.Metrics) {
		if m != nil {
			r.metricsSnap = *m
		}
	})
}

func (r *Reconciler) pullPending(ctx context.Context, epoch uint64) error {
	return pull(ctx, r, epoch, resPending, event.SectionPending, r.api.Pending, func(rows []model.BlockedQuery) {
		r.pending = r.ledger.pending(rows)
	})
}

func (r *Reconciler) pullQueries(ctx context.Context, epoch uint64) error {
	return pull(ctx, r, epoch, resQueries, event.SectionQueries, r.api.AllQueries, func(rows []model.BlockedQuery) {
		r.queries = r.ledger.all(rows)
	})
}

func (r *Reconciler) pullUsers(ctx context.Context, epoch uint64) error {
	return pull(ctx, r, epoch, resUsers, event.SectionUsers, r.api.Users, func(users []model.User) {
		r.users = users
	})
}

func (r *Reconciler) pullConfig(ctx context.Context, epoch uint64) error {
	return pull(ctx, r, epoch, resConfig, event.SectionConfig, r.api.Config, func(cfg *model.ProxyConfig) {
		r.config = cfg
	})
}

// pullAudit loads the full log, or one user's entries when username is set.
func (r *Reconciler) pullAudit(ctx context.Context, epoch uint64, username string) error {
	load := r.api.Audit
	if username != "" {
		load = func(ctx context.Context) ([]model.AuditEntry, error) {
			return r.api.AuditByUser(ctx, username)
		}
	}
	return pull(ctx, r, epoch, resAudit, event.SectionAudit, load, func(entries []model.AuditEntry) {
		r.audit = entries
	})
}

func (r *Reconciler) loadMetrics() { r.spawn(resMetrics, r.pullMetrics) }
func (r *Reconciler) loadPending() { r.spawn(resPending, r.pullPending) }
func (r *Reconciler) loadQueries() { r.spawn(resQueries, r.pullQueries) }
func (r *Reconciler) loadUsers()   { r.spawn(resUsers, r.pullUsers) }
func (r *Reconciler) loadConfig()  { r.spawn(resConfig, r.pullConfig) }

func (r *Reconciler) loadAudit(username string) {
	r.spawn(resAudit, func(ctx context.Context, epoch uint64) error { return r.pullAudit(ctx, epoch, username) })
}
