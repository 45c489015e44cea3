package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

// fakeAPI records every call. The *Fn hooks override the canned replies.
type fakeAPI struct {
	mu      sync.Mutex
	calls   map[string]int
	actions []recordedAction
	audit   []string // AuditByUser arguments, "" for the full log
	auditAt []time.Time
	clock   clock.Clock

	pending []model.BlockedQuery
	queries []model.BlockedQuery
	metrics model.Metrics

	pendingFn func(ctx context.Context) ([]model.BlockedQuery, error)
	metricsFn func(ctx context.Context) (*model.Metrics, error)
	actionFn  func(route string, req api.ActionRequest) error
	votesFn   func(id int64) (*model.VoteStatus, error)
}

type recordedAction struct {
	route string
	req   api.ActionRequest
}

func newFakeAPI(clk clock.Clock) *fakeAPI {
	return &fakeAPI{calls: make(map[string]int), clock: clk}
}

func (f *fakeAPI) hit(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) reset() {
	f.mu.Lock()
	f.calls = make(map[string]int)
	f.mu.Unlock()
}

func (f *fakeAPI) recorded() []recordedAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedAction(nil), f.actions...)
}

func (f *fakeAPI) Login(_ context.Context, username, password string) (string, *model.User, error) {
	f.hit("Login")
	if password != "secret" {
		return "", nil, &api.Error{Status: 401, Message: "Invalid credentials"}
	}
	role := model.RolePeer
	if username == "admin" {
		role = model.RoleAdmin
	}
	return "tok-" + username, &model.User{ID: 1, Username: username, Role: role}, nil
}

func (f *fakeAPI) Logout(context.Context) error {
	f.hit("Logout")
	return nil
}

func (f *fakeAPI) Pending(ctx context.Context) ([]model.BlockedQuery, error) {
	f.hit("Pending")
	if f.pendingFn != nil {
		return f.pendingFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BlockedQuery(nil), f.pending...), nil
}

func (f *fakeAPI) AllQueries(context.Context) ([]model.BlockedQuery, error) {
	f.hit("AllQueries")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.BlockedQuery(nil), f.queries...), nil
}

func (f *fakeAPI) action(route string, req api.ActionRequest) (*api.ActionResult, error) {
	f.hit(route)
	f.mu.Lock()
	f.actions = append(f.actions, recordedAction{route: route, req: req})
	fn := f.actionFn
	f.mu.Unlock()
	if fn != nil {
		if err := fn(route, req); err != nil {
			return nil, err
		}
	}
	return &api.ActionResult{Success: true}, nil
}

func (f *fakeAPI) Approve(_ context.Context, req api.ActionRequest) (*api.ActionResult, error) {
	return f.action("approve", req)
}

func (f *fakeAPI) Reject(_ context.Context, req api.ActionRequest) (*api.ActionResult, error) {
	return f.action("reject", req)
}

func (f *fakeAPI) Vote(_ context.Context, req api.ActionRequest) (*api.ActionResult, error) {
	return f.action("vote", req)
}

func (f *fakeAPI) VoteStatus(_ context.Context, id int64) (*model.VoteStatus, error) {
	f.hit("VoteStatus")
	if f.votesFn != nil {
		return f.votesFn(id)
	}
	return &model.VoteStatus{QueryID: id, ApprovalCount: 1}, nil
}

func (f *fakeAPI) Users(context.Context) ([]model.User, error) {
	f.hit("Users")
	return []model.User{{ID: 1, Username: "admin", Role: model.RoleAdmin}}, nil
}

func (f *fakeAPI) CreateUser(_ context.Context, u api.NewUser) (*model.User, error) {
	f.hit("CreateUser")
	if u.Username == "taken" {
		return nil, &api.Error{Status: 409, Message: "Username already exists"}
	}
	return &model.User{ID: 2, Username: u.Username, Role: u.Role}, nil
}

func (f *fakeAPI) DeleteUser(context.Context, int64) error {
	f.hit("DeleteUser")
	return nil
}

func (f *fakeAPI) Config(context.Context) (*model.ProxyConfig, error) {
	f.hit("Config")
	return &model.ProxyConfig{ProxyPort: 5433, TargetHost: "db"}, nil
}

func (f *fakeAPI) UpdateConfig(context.Context, model.ProxyConfig) (*model.ConfigUpdateResult, error) {
	f.hit("UpdateConfig")
	return &model.ConfigUpdateResult{OK: true, Message: "Config updated (restart required)"}, nil
}

func (f *fakeAPI) Metrics(ctx context.Context) (*model.Metrics, error) {
	f.hit("Metrics")
	if f.metricsFn != nil {
		return f.metricsFn(ctx)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.metrics
	return &m, nil
}

func (f *fakeAPI) Audit(context.Context) ([]model.AuditEntry, error) {
	return f.auditCall("")
}

func (f *fakeAPI) AuditByUser(_ context.Context, username string) ([]model.AuditEntry, error) {
	return f.auditCall(username)
}

func (f *fakeAPI) auditCall(username string) ([]model.AuditEntry, error) {
	f.hit("Audit")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, username)
	f.auditAt = append(f.auditAt, f.clock.Now())
	return []model.AuditEntry{{ID: 1, Username: username, Action: "LOGIN"}}, nil
}

type fakeTransport struct {
	mu          sync.Mutex
	connects    int
	disconnects int
	err         error
}

func (t *fakeTransport) Connect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connects++
	return t.err
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
}

func (t *fakeTransport) Status() (event.Phase, int) { return event.PhaseConnected, 0 }

func (t *fakeTransport) counts() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connects, t.disconnects
}

type notices struct {
	mu  sync.Mutex
	all []event.Notice
}

func (n *notices) add(ev event.Notice) {
	n.mu.Lock()
	n.all = append(n.all, ev)
	n.mu.Unlock()
}

func (n *notices) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.all))
	for i, ev := range n.all {
		out[i] = ev.Message
	}
	return out
}

type fixture struct {
	r         *Reconciler
	api       *fakeAPI
	transport *fakeTransport
	session   *session.Store
	bus       *bus.Bus
	clock     *clock.FakeClock
	metrics   *metrics.Metrics
	notices   *notices
}

var errConnReset = errors.New("read tcp 127.0.0.1:8080: connection reset by peer")

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := metrics.New("test")
	b := bus.New(nil, m)
	f := &fixture{
		api:       newFakeAPI(clk),
		transport: &fakeTransport{},
		session:   session.NewStore(nil, clk, nil),
		bus:       b,
		clock:     clk,
		metrics:   m,
		notices:   &notices{},
	}
	bus.On(b, f.notices.add)
	f.r = New(f.api, f.transport, f.session, b,
		WithClock(clk),
		WithMetrics(m),
		WithConfig(Config{RetryInterval: time.Millisecond}),
	)
	t.Cleanup(func() {
		f.r.Close()
		f.r.Wait()
	})
	return f
}

// login signs in as username and waits for the initial dashboard load.
func (f *fixture) login(t *testing.T, username string) {
	t.Helper()
	require.NoError(t, f.r.Login(context.Background(), username, "secret"))
	f.r.Wait()
}
