// Package reconcile is the console's state controller. It merges pushed
// events with pulled snapshots, keeps the activity timeline, debounces audit
// search, and issues approve/reject/vote actions with nonces so the backend
// can collapse retries.
package reconcile

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

// API is the backend surface the reconciler drives. *api.Client implements
// it.
type API interface {
	Login(ctx context.Context, username, password string) (string, *model.User, error)
	Logout(ctx context.Context) error
	Pending(ctx context.Context) ([]model.BlockedQuery, error)
	AllQueries(ctx context.Context) ([]model.BlockedQuery, error)
	Approve(ctx context.Context, req api.ActionRequest) (*api.ActionResult, error)
	Reject(ctx context.Context, req api.ActionRequest) (*api.ActionResult, error)
	Vote(ctx context.Context, req api.ActionRequest) (*api.ActionResult, error)
	VoteStatus(ctx context.Context, id int64) (*model.VoteStatus, error)
	Users(ctx context.Context) ([]model.User, error)
	CreateUser(ctx context.Context, u api.NewUser) (*model.User, error)
	DeleteUser(ctx context.Context, id int64) error
	Config(ctx context.Context) (*model.ProxyConfig, error)
	UpdateConfig(ctx context.Context, cfg model.ProxyConfig) (*model.ConfigUpdateResult, error)
	Metrics(ctx context.Context) (*model.Metrics, error)
	Audit(ctx context.Context) ([]model.AuditEntry, error)
	AuditByUser(ctx context.Context, username string) ([]model.AuditEntry, error)
}

// Transport is the push channel. *transport.Client implements it.
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect()
	Status() (event.Phase, int)
}

// Session is the signed-in identity. *session.Store implements it.
type Session interface {
	Set(ctx context.Context, token string, user *model.User) error
	Clear(ctx context.Context) error
	User() *model.User
	Valid() bool
}

var (
	ErrMissingCredentials = errors.New("username and password are required")
	ErrDeleteSelf         = errors.New("cannot delete yourself")
)

// Page is the view whose data the reconciler keeps loaded.
type Page string

const (
	PageDashboard Page = "dashboard"
	PageQueries   Page = "queries"
	PageUsers     Page = "users"
	PageAudit     Page = "audit"
	PageSettings  Page = "settings"
)

// FilterAll disables the status filter on the queries page.
const FilterAll = "all"

type Config struct {
	PollInterval   time.Duration
	SearchDebounce time.Duration
	TimelineSize   int
	ActionRetries  uint
	RetryInterval  time.Duration
	VoteCacheTTL   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.SearchDebounce <= 0 {
		c.SearchDebounce = 400 * time.Millisecond
	}
	if c.TimelineSize <= 0 {
		c.TimelineSize = DefaultTimelineSize
	}
	if c.ActionRetries == 0 {
		c.ActionRetries = 3
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	if c.VoteCacheTTL <= 0 {
		c.VoteCacheTTL = 5 * time.Second
	}
	return c
}

// State is a point-in-time copy of everything the projection renders.
type State struct {
	Page        Page
	Metrics     model.Metrics
	Pending     []model.BlockedQuery
	Queries     []model.BlockedQuery // filtered by QueryFilter
	QueryFilter string
	Users       []model.User
	Audit       []model.AuditEntry
	AuditSearch string
	Config      *model.ProxyConfig
	Timeline    []TimelineEntry
	Connection  event.Phase
	Retries     int
	User        *model.User
	InFlight    []PendingAction
}

type Option func(*Reconciler)

func WithClock(c clock.Clock) Option        { return func(r *Reconciler) { r.clock = c } }
func WithMetrics(m *metrics.Metrics) Option { return func(r *Reconciler) { r.metrics = m } }
func WithLogger(l *zap.Logger) Option       { return func(r *Reconciler) { r.logger = l } }
func WithConfig(cfg Config) Option          { return func(r *Reconciler) { r.cfg = cfg } }
func WithVoteCache(c *gocache.Cache) Option { return func(r *Reconciler) { r.votes = c } }

type Reconciler struct {
	api       API
	transport Transport
	session   Session
	bus       *bus.Bus
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       Config
	votes     *gocache.Cache
	subs      []*bus.Subscription
	wg        sync.WaitGroup

	mu          sync.Mutex
	active      bool
	epoch       uint64 // bumped by every sign-in and sign-out
	page        Page
	metricsSnap model.Metrics
	pending     []model.BlockedQuery
	queries     []model.BlockedQuery
	filter      string
	users       []model.User
	audit       []model.AuditEntry
	auditSearch string
	config      *model.ProxyConfig
	timeline    *Timeline
	ledger      ledger
	phase       event.Phase
	retries     int
	inflight    map[string]PendingAction
	slots       map[resource]*slot

	ticker      *clock.Ticker
	tickerDone  chan struct{}
	debounce    *clock.Timer
	debounceSeq uint64
}

// New wires a reconciler to its collaborators and subscribes it to the bus.
// Call Close to drop the subscriptions.
func New(a API, t Transport, s Session, b *bus.Bus, opts ...Option) *Reconciler {
	r := &Reconciler{
		api:       a,
		transport: t,
		session:   s,
		bus:       b,
		clock:     clock.Real(),
		page:      PageDashboard,
		filter:    FilterAll,
		ledger:    make(ledger),
		inflight:  make(map[string]PendingAction),
		slots:     make(map[resource]*slot),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cfg = r.cfg.withDefaults()
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("reconcile")
	if r.votes == nil {
		r.votes = gocache.New(r.cfg.VoteCacheTTL, 2*r.cfg.VoteCacheTTL)
	}
	r.timeline = NewTimeline(r.cfg.TimelineSize)
	r.subscribe()
	return r
}

// Close unsubscribes from the bus and stops timers. It does not touch the
// session or the transport.
func (r *Reconciler) Close() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.subs = nil
	r.mu.Lock()
	r.stopTimersLocked()
	r.mu.Unlock()
}

// Wait blocks until every fetch started so far has finished.
func (r *Reconciler) Wait() { r.wg.Wait() }

// Login signs in, stores the session, connects the push channel and loads
// the dashboard. A failed connect is only logged; the transport keeps
// retrying on its own.
func (r *Reconciler) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	token, user, err := r.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := r.session.Set(ctx, token, user); err != nil {
		if errors.Is(err, session.ErrIncomplete) {
			return err
		}
		// The in-memory session is set; only persistence failed.
		r.logger.Warn("persist session", zap.Error(err))
	}
	r.start(ctx)
	return nil
}

// Resume picks up a stored session. It reports false when there is none.
func (r *Reconciler) Resume(ctx context.Context) bool {
	if !r.session.Valid() {
		return false
	}
	r.start(ctx)
	return true
}

func (r *Reconciler) start(ctx context.Context) {
	r.mu.Lock()
	r.active = true
	r.epoch++
	r.startPollingLocked()
	r.mu.Unlock()
	r.changed(event.SectionSession)

	if err := r.transport.Connect(ctx); err != nil {
		r.logger.Warn("push channel not connected", zap.Error(err))
	}
	r.Navigate(PageDashboard)
}

// Logout tears down the push channel and every timer and fetch before the
// session is cleared, so nothing runs against a cleared credential. Errors
// from the logout endpoint are ignored; a storage error is returned after
// the in-memory session is already empty.
func (r *Reconciler) Logout(ctx context.Context) error {
	r.transport.Disconnect()

	r.mu.Lock()
	r.active = false
	r.epoch++
	r.stopTimersLocked()
	r.cancelFetchesLocked()
	r.mu.Unlock()

	if err := r.api.Logout(ctx); err != nil {
		r.logger.Debug("logout endpoint", zap.Error(err))
	}
	err := r.session.Clear(ctx)

	r.mu.Lock()
	r.resetLocked()
	r.mu.Unlock()
	r.votes.Flush()

	r.changed(event.SectionSession)
	return err
}

// currentEpoch returns the sign-in epoch. Work stamped with it applies only
// while the same session is signed in.
func (r *Reconciler) currentEpoch() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

func (r *Reconciler) liveLocked(epoch uint64) bool {
	return r.active && r.epoch == epoch
}

func (r *Reconciler) resetLocked() {
	r.page = PageDashboard
	r.metricsSnap = model.Metrics{}
	r.pending = nil
	r.queries = nil
	r.filter = FilterAll
	r.users = nil
	r.audit = nil
	r.auditSearch = ""
	r.config = nil
	r.timeline.Reset()
	r.ledger = make(ledger)
	clear(r.inflight)
}

func (r *Reconciler) startPollingLocked() {
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.tickerDone)
	}
	t := r.clock.NewTicker(r.cfg.PollInterval)
	done := make(chan struct{})
	r.ticker, r.tickerDone = t, done

	go func() {
		for {
			select {
			case <-t.C:
				r.poll()
			case <-done:
				return
			}
		}
	}()
}

func (r *Reconciler) stopTimersLocked() {
	if r.ticker != nil {
		r.ticker.Stop()
		close(r.tickerDone)
		r.ticker, r.tickerDone = nil, nil
	}
	if r.debounce != nil {
		r.debounce.Stop()
		r.debounce = nil
	}
	r.debounceSeq++
}

// poll refreshes the dashboard figures, but only while it is shown.
func (r *Reconciler) poll() {
	r.mu.Lock()
	due := r.active && r.page == PageDashboard
	r.mu.Unlock()
	if !due {
		return
	}
	r.loadMetrics()
	r.loadPending()
}

// Navigate switches page and loads its data.
func (r *Reconciler) Navigate(page Page) {
	r.mu.Lock()
	r.page = page
	search := strings.TrimSpace(r.auditSearch)
	r.mu.Unlock()
	r.changed(event.SectionPage)

	switch page {
	case PageDashboard:
		r.loadMetrics()
		r.loadPending()
	case PageQueries:
		r.loadQueries()
	case PageUsers:
		r.loadUsers()
	case PageAudit:
		r.loadAudit(search)
	case PageSettings:
		r.loadConfig()
	}
}

// Refresh reloads metrics and pending queries together and reports the
// outcome as a notice. It does nothing while signed out.
func (r *Reconciler) Refresh(ctx context.Context) error {
	r.mu.Lock()
	live, epoch := r.active, r.epoch
	r.mu.Unlock()
	if !live {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.pullMetrics(ctx, epoch) })
	g.Go(func() error { return r.pullPending(ctx, epoch) })
	if err := g.Wait(); err != nil {
		r.notify(event.LevelError, "Failed to refresh")
		return err
	}
	r.notify(event.LevelSuccess, "Dashboard refreshed")
	return nil
}

// SearchAudit records the search text and reloads the audit log once input
// has been idle for the debounce interval. Each call restarts the wait.
func (r *Reconciler) SearchAudit(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auditSearch = text
	if r.debounce != nil {
		r.debounce.Stop()
	}
	r.debounceSeq++
	seq := r.debounceSeq
	r.debounce = r.clock.AfterFunc(r.cfg.SearchDebounce, func() { r.fireSearch(seq) })
}

func (r *Reconciler) fireSearch(seq uint64) {
	r.mu.Lock()
	if seq != r.debounceSeq || !r.active {
		r.mu.Unlock()
		return
	}
	r.debounce = nil
	text := strings.TrimSpace(r.auditSearch)
	r.mu.Unlock()
	r.loadAudit(text)
}

// SetQueryFilter filters the queries page by status, or FilterAll.
func (r *Reconciler) SetQueryFilter(filter string) {
	if filter == "" {
		filter = FilterAll
	}
	r.mu.Lock()
	r.filter = filter
	r.mu.Unlock()
	r.changed(event.SectionQueries)
}

// Queries returns the all-queries projection under the current filter.
func (r *Reconciler) Queries() []model.BlockedQuery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filteredLocked()
}

func (r *Reconciler) filteredLocked() []model.BlockedQuery {
	if r.filter == FilterAll {
		return slices.Clone(r.queries)
	}
	out := make([]model.BlockedQuery, 0, len(r.queries))
	for _, q := range r.queries {
		if string(q.Status) == r.filter {
			out = append(out, q)
		}
	}
	return out
}

// Snapshot copies the current state.
func (r *Reconciler) Snapshot() State {
	user := r.session.User()
	r.mu.Lock()
	defer r.mu.Unlock()
	st := State{
		Page:        r.page,
		Metrics:     r.metricsSnap,
		Pending:     slices.Clone(r.pending),
		Queries:     r.filteredLocked(),
		QueryFilter: r.filter,
		Users:       slices.Clone(r.users),
		Audit:       slices.Clone(r.audit),
		AuditSearch: r.auditSearch,
		Timeline:    r.timeline.Entries(),
		Connection:  r.phase,
		Retries:     r.retries,
		User:        user,
	}
	if r.config != nil {
		cfg := *r.config
		st.Config = &cfg
	}
	for _, pa := range r.inflight {
		st.InFlight = append(st.InFlight, pa)
	}
	slices.SortFunc(st.InFlight, func(a, b PendingAction) int { return a.IssuedAt.Compare(b.IssuedAt) })
	return st
}

// Timeline returns the activity timeline, newest first.
func (r *Reconciler) Timeline() []TimelineEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline.Entries()
}

// addTimeline records e unless the session of epoch has ended.
func (r *Reconciler) addTimeline(epoch uint64, e TimelineEntry) {
	r.mu.Lock()
	if !r.liveLocked(epoch) {
		r.mu.Unlock()
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.clock.Now()
	}
	r.timeline.Add(e)
	r.mu.Unlock()
	r.changed(event.SectionTimeline)
}

func (r *Reconciler) changed(section event.Section) {
	r.bus.Publish(event.StateChanged{Section: section})
}

func (r *Reconciler) notify(level event.Level, msg string) {
	r.bus.Publish(event.Notice{Level: level, Message: msg})
}
