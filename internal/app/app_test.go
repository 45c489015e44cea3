package app

import (
	"context"
	"net/http"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
)

type fakeConsole struct {
	state     reconcile.State
	loginErr  error
	logins    []string
	navigated []reconcile.Page
	searches  []string
	approved  []int64
	rejected  []int64
	created   []string
	deleted   []int64
	configs   []model.ProxyConfig
	configErr error
	votes     *model.VoteStatus
	logouts   int
}

func (f *fakeConsole) Login(_ context.Context, username, _ string) error {
	f.logins = append(f.logins, username)
	if f.loginErr != nil {
		return f.loginErr
	}
	f.state.User = &model.User{ID: 1, Username: username, Role: model.RoleAdmin}
	return nil
}

func (f *fakeConsole) Logout(context.Context) error {
	f.logouts++
	f.state = reconcile.State{Page: reconcile.PageDashboard}
	return nil
}

func (f *fakeConsole) Navigate(p reconcile.Page) {
	f.navigated = append(f.navigated, p)
	f.state.Page = p
}

func (f *fakeConsole) Refresh(context.Context) error { return nil }
func (f *fakeConsole) SearchAudit(text string)       { f.searches = append(f.searches, text) }
func (f *fakeConsole) SetQueryFilter(filter string)  { f.state.QueryFilter = filter }
func (f *fakeConsole) Snapshot() reconcile.State     { return f.state }

func (f *fakeConsole) Approve(_ context.Context, id int64) error {
	f.approved = append(f.approved, id)
	return nil
}

func (f *fakeConsole) Reject(_ context.Context, id int64) error {
	f.rejected = append(f.rejected, id)
	return nil
}

func (f *fakeConsole) VoteStatus(context.Context, int64) (*model.VoteStatus, error) {
	return f.votes, nil
}

func (f *fakeConsole) CreateUser(_ context.Context, username, _ string, _ model.Role) error {
	f.created = append(f.created, username)
	return nil
}

func (f *fakeConsole) DeleteUser(_ context.Context, id int64, _ string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeConsole) UpdateConfig(_ context.Context, cfg model.ProxyConfig) error {
	f.configs = append(f.configs, cfg)
	return f.configErr
}

func newTestModel(t *testing.T, f *fakeConsole) Model {
	t.Helper()
	m := New(f, bus.New(nil, nil))
	t.Cleanup(m.Close)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return next.(Model)
}

func signedIn(role model.Role) *fakeConsole {
	return &fakeConsole{state: reconcile.State{
		Page:        reconcile.PageDashboard,
		QueryFilter: reconcile.FilterAll,
		User:        &model.User{ID: 1, Username: "operator", Role: role},
		Connection:  event.PhaseConnected,
	}}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds msg to m and returns the new model and command.
func press(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

// typeText feeds each rune of s as its own key press.
func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = press(m, runes(string(r)))
	}
	return m
}

func TestLoginScreenWhenSignedOut(t *testing.T) {
	m := newTestModel(t, &fakeConsole{})
	v := m.View()
	if !strings.Contains(v, "Interceptor Console") {
		t.Error("signed-out view should show the login form")
	}
	if strings.Contains(v, "Dashboard") {
		t.Error("signed-out view should not show page tabs")
	}
}

func TestLoginSubmitsCredentials(t *testing.T) {
	f := &fakeConsole{}
	m := newTestModel(t, f)

	m = typeText(m, "admin")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m = typeText(m, "admin123")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("enter on the last field should submit")
	}
	if !strings.Contains(m.View(), "Please wait") {
		t.Error("form should show progress while signing in")
	}

	m, _ = press(m, cmd())
	if len(f.logins) != 1 || f.logins[0] != "admin" {
		t.Fatalf("logins = %v", f.logins)
	}
	if !m.signedIn {
		t.Fatal("model should be signed in after a successful login")
	}
	if v := m.View(); !strings.Contains(v, "Pending Approval") || !strings.Contains(v, "admin") {
		t.Error("dashboard should render after login")
	}
}

func TestLoginErrorShown(t *testing.T) {
	f := &fakeConsole{loginErr: &api.Error{Method: "POST", Route: "/api/login", Status: http.StatusUnauthorized, Message: "Invalid credentials"}}
	m := newTestModel(t, f)

	m = typeText(m, "admin")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "nope")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = press(m, cmd())

	if !strings.Contains(m.View(), "Invalid credentials") {
		t.Error("login error should be shown")
	}
	if m.login.Value(1) != "" {
		t.Error("password should be cleared after a failed login")
	}
	if m.login.Value(0) != "admin" {
		t.Error("username should be kept after a failed login")
	}
}

func TestLoginErrorText(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing", reconcile.ErrMissingCredentials, "Username and password are required"},
		{"unauthorized", api.ErrNotAuthenticated, "Invalid credentials"},
		{"backend message", &api.Error{Status: 500, Message: "boom"}, "boom"},
		{"network", context.DeadlineExceeded, "Cannot reach the server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loginError(tt.err); got != tt.want {
				t.Errorf("loginError() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateMsgRefreshesDashboard(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	f.state.Pending = []model.BlockedQuery{{ID: 7, QueryType: "DROP", QueryPreview: "DROP TABLE customers", Status: model.StatusPending}}
	f.state.Timeline = []reconcile.TimelineEntry{{Seq: 1, Kind: reconcile.EntryBlocked, Title: "Query Intercepted", Detail: "DROP TABLE customers"}}
	m, _ = press(m, StateMsg{Section: event.SectionPending})

	v := m.View()
	for _, want := range []string{"Pending Approval (1)", "DROP TABLE customers", "Query Intercepted", "Live"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}

func TestMetricsStartAnimation(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	f.state.Metrics = model.Metrics{TotalQueries: 50}
	m, cmd := press(m, StateMsg{Section: event.SectionMetrics})
	if cmd == nil || !m.animating {
		t.Fatal("new metrics should start the counter animation")
	}
	for i := 0; i < 1000 && m.animating; i++ {
		m, _ = press(m, frameMsg{})
	}
	if m.animating {
		t.Fatal("animation should settle")
	}
	if got := m.dashboard.Values()[0]; got != 50 {
		t.Errorf("total = %d, want 50", got)
	}
}

func TestApproveAndRejectSelectedQuery(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	f.state.Pending = []model.BlockedQuery{{ID: 3, Status: model.StatusPending}, {ID: 4, Status: model.StatusPending}}
	m := newTestModel(t, f)

	m, cmd := press(m, runes("a"))
	if cmd == nil {
		t.Fatal("approve should issue a command")
	}
	if !m.busy[3] {
		t.Error("query should be marked busy until the action returns")
	}
	m, _ = press(m, cmd())
	if m.busy[3] {
		t.Error("busy flag should clear when the action returns")
	}

	m, _ = press(m, runes("j"))
	_, cmd = press(m, runes("r"))
	cmd()

	if len(f.approved) != 1 || f.approved[0] != 3 {
		t.Errorf("approved = %v", f.approved)
	}
	if len(f.rejected) != 1 || f.rejected[0] != 4 {
		t.Errorf("rejected = %v", f.rejected)
	}
}

func TestDetailOverlayLoadsVotes(t *testing.T) {
	f := signedIn(model.RolePeer)
	f.state.Pending = []model.BlockedQuery{{ID: 9, QueryType: "DELETE", QueryPreview: "DELETE FROM t", Status: model.StatusPending, RequiresPeerApproval: true}}
	f.votes = &model.VoteStatus{QueryID: 9, ApprovalCount: 1, Approvals: []string{"peer1"}}
	m := newTestModel(t, f)

	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.overlay != OverlayDetail || cmd == nil {
		t.Fatal("enter should open the detail overlay and load votes")
	}
	m, _ = press(m, cmd())
	v := m.View()
	for _, want := range []string{"Query #9", "1 (peer1)", "vote approve"} {
		if !strings.Contains(v, want) {
			t.Errorf("detail should contain %q", want)
		}
	}

	// The query resolves while the overlay is open.
	f.state.Pending = nil
	m, _ = press(m, StateMsg{Section: event.SectionPending})
	if m.detail.CanDecide {
		t.Error("a query that left the pending list should not be decidable")
	}
	if _, cmd = press(m, runes("a")); cmd != nil {
		t.Error("no action expected for a resolved query")
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.overlay != OverlayNone {
		t.Error("esc should close the overlay")
	}
}

func TestPageKeysNavigate(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	m, _ = press(m, runes("2"))
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyShiftTab})

	want := []reconcile.Page{reconcile.PageQueries, reconcile.PageUsers, reconcile.PageQueries}
	if len(f.navigated) != len(want) {
		t.Fatalf("navigated = %v", f.navigated)
	}
	for i := range want {
		if f.navigated[i] != want[i] {
			t.Errorf("navigation %d = %s, want %s", i, f.navigated[i], want[i])
		}
	}

	m, _ = press(m, runes("f"))
	if f.state.QueryFilter != string(model.StatusPending) {
		t.Errorf("filter = %q, want PENDING", f.state.QueryFilter)
	}
}

func TestAuditSearchForwardsText(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	m, _ = press(m, runes("4"))
	m, _ = press(m, runes("/"))
	if !m.audit.Searching() {
		t.Fatal("/ should focus the search box")
	}
	m = typeText(m, "ad")
	// Page keys are text while searching.
	m = typeText(m, "1")

	want := []string{"a", "ad", "ad1"}
	if strings.Join(f.searches, ",") != strings.Join(want, ",") {
		t.Errorf("searches = %v, want %v", f.searches, want)
	}
	if f.state.Page != reconcile.PageAudit {
		t.Error("typing a digit in the search box must not navigate")
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.audit.Searching() {
		t.Error("esc should leave the search box")
	}
}

func TestUserManagementKeys(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	f.state.Users = []model.User{{ID: 1, Username: "operator", Role: model.RoleAdmin}, {ID: 2, Username: "peer1", Role: model.RolePeer}}
	m := newTestModel(t, f)
	m, _ = press(m, runes("3"))

	m, _ = press(m, runes("n"))
	if m.overlay != OverlayNewUser {
		t.Fatal("n should open the new user form")
	}
	m = typeText(m, "carol")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "pw")
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "peer")
	m, cmd := press(m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = press(m, cmd())
	if len(f.created) != 1 || f.created[0] != "carol" {
		t.Errorf("created = %v", f.created)
	}
	if m.overlay != OverlayNone {
		t.Error("form should close after a successful create")
	}

	m, _ = press(m, runes("j"))
	m, _ = press(m, runes("x"))
	if m.overlay != OverlayConfirmDelete {
		t.Fatal("x should ask for confirmation")
	}
	m, cmd = press(m, runes("y"))
	cmd()
	if len(f.deleted) != 1 || f.deleted[0] != 2 {
		t.Errorf("deleted = %v", f.deleted)
	}
}

func TestSettingsKeys(t *testing.T) {
	cfg := &model.ProxyConfig{PeerApprovalEnabled: true, PeerApprovalMinVotes: 1}

	peer := signedIn(model.RolePeer)
	peer.state.Config = cfg
	m := newTestModel(t, peer)
	m, _ = press(m, runes("5"))
	if _, cmd := press(m, runes("b")); cmd != nil {
		t.Error("peers cannot change the configuration")
	}

	admin := signedIn(model.RoleAdmin)
	admin.state.Config = cfg
	m = newTestModel(t, admin)
	m, _ = press(m, runes("5"))
	if _, cmd := press(m, runes("-")); cmd != nil {
		t.Error("minimum votes cannot drop below 1")
	}
	_, cmd := press(m, runes("b"))
	cmd()
	if len(admin.configs) != 1 || !admin.configs[0].BlockByDefault {
		t.Errorf("configs = %+v", admin.configs)
	}
	if cfg.BlockByDefault {
		t.Error("the snapshot's config must not be modified in place")
	}
}

func TestSettingsUpdateFailureShown(t *testing.T) {
	admin := signedIn(model.RoleAdmin)
	admin.state.Config = &model.ProxyConfig{PeerApprovalMinVotes: 1}
	admin.configErr = &api.Error{Method: "PUT", Route: "/api/config", Status: http.StatusBadRequest, Message: "Invalid proxy port"}
	m := newTestModel(t, admin)
	m, _ = press(m, runes("5"))

	m, cmd := press(m, runes("b"))
	if cmd == nil {
		t.Fatal("expected an update command")
	}
	if _, again := press(m, runes("p")); again != nil {
		t.Error("a second change must wait for the first to finish")
	}
	m, _ = press(m, cmd())
	if !strings.Contains(m.View(), "Invalid proxy port") {
		t.Error("the update failure should be shown on the settings page")
	}

	admin.configErr = nil
	m, cmd = press(m, runes("b"))
	if cmd == nil {
		t.Fatal("settings should accept changes again after a failure")
	}
	m, _ = press(m, cmd())
	if strings.Contains(m.View(), "Invalid proxy port") {
		t.Error("a successful update should clear the failure")
	}
	if len(admin.configs) != 2 {
		t.Errorf("configs = %+v", admin.configs)
	}
}

func TestNoticeExpires(t *testing.T) {
	m := newTestModel(t, signedIn(model.RoleAdmin))

	m, _ = press(m, NoticeMsg{Notice: event.Notice{Level: event.LevelSuccess, Message: "Query approved"}})
	if !strings.Contains(m.View(), "Query approved") {
		t.Fatal("notice should be shown")
	}
	m, _ = press(m, NoticeMsg{Notice: event.Notice{Level: event.LevelInfo, Message: "Dashboard refreshed"}})

	// The first notice's timer must not clear the second.
	m, _ = press(m, noticeTimeout{seq: 1})
	if !strings.Contains(m.View(), "Dashboard refreshed") {
		t.Error("stale timeout cleared the current notice")
	}
	m, _ = press(m, noticeTimeout{seq: 2})
	if strings.Contains(m.View(), "Dashboard refreshed") {
		t.Error("notice should clear after its timeout")
	}
}

func TestLogoutReturnsToLogin(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	m, cmd := press(m, runes("L"))
	m, _ = press(m, cmd())
	if f.logouts != 1 {
		t.Errorf("logouts = %d", f.logouts)
	}
	if m.signedIn || !strings.Contains(m.View(), "Interceptor Console") {
		t.Error("logout should return to the login form")
	}
}

func TestSessionExpiredShowsLogin(t *testing.T) {
	f := signedIn(model.RoleAdmin)
	m := newTestModel(t, f)

	f.state.User = nil
	m, _ = press(m, SessionExpiredMsg{})
	if !strings.Contains(m.View(), "Session expired") {
		t.Error("expiry should be explained on the login form")
	}
}

func TestEventsForwardsBusEvents(t *testing.T) {
	b := bus.New(nil, nil)
	e := Subscribe(b)

	b.Publish(event.Notice{Level: event.LevelError, Message: "Failed to refresh"})
	b.Publish(event.StateChanged{Section: event.SectionTimeline})
	b.Publish(event.SessionExpired{})

	if msg, ok := e.Next()().(NoticeMsg); !ok || msg.Notice.Message != "Failed to refresh" {
		t.Errorf("first message = %#v", msg)
	}
	if msg, ok := e.Next()().(StateMsg); !ok || msg.Section != event.SectionTimeline {
		t.Errorf("second message = %#v", msg)
	}
	if _, ok := e.Next()().(SessionExpiredMsg); !ok {
		t.Error("third message should be SessionExpiredMsg")
	}

	e.Close()
	if b.Len(event.KindNotice) != 0 {
		t.Error("Close should unsubscribe")
	}
	if msg := e.Next()(); msg != nil {
		t.Errorf("Next after Close = %#v, want nil", msg)
	}
	e.Close()
}

func TestEventsNeverBlockPublisher(t *testing.T) {
	b := bus.New(nil, nil)
	e := Subscribe(b)
	defer e.Close()

	for i := 0; i < 1000; i++ {
		b.Publish(event.StateChanged{Section: event.SectionPending})
	}
	if _, ok := e.Next()().(StateMsg); !ok {
		t.Error("buffered events should still be delivered")
	}
}
