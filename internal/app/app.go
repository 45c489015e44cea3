package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/reconcile"
	"github.com/gautamrajesh007/Interceptor/internal/theme"
	"github.com/gautamrajesh007/Interceptor/internal/views/audit"
	"github.com/gautamrajesh007/Interceptor/internal/views/dashboard"
	"github.com/gautamrajesh007/Interceptor/internal/views/detail"
	"github.com/gautamrajesh007/Interceptor/internal/views/form"
	"github.com/gautamrajesh007/Interceptor/internal/views/queries"
	"github.com/gautamrajesh007/Interceptor/internal/views/settings"
	"github.com/gautamrajesh007/Interceptor/internal/views/status"
	"github.com/gautamrajesh007/Interceptor/internal/views/timeline"
	"github.com/gautamrajesh007/Interceptor/internal/views/users"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayNewUser
	OverlayConfirmDelete
)

// pages lists the navigable pages in key order.
var pages = []reconcile.Page{
	reconcile.PageDashboard,
	reconcile.PageQueries,
	reconcile.PageUsers,
	reconcile.PageAudit,
	reconcile.PageSettings,
}

var pageTabs = []status.Page{
	{Key: "1", Label: "Dashboard"},
	{Key: "2", Label: "Queries"},
	{Key: "3", Label: "Users"},
	{Key: "4", Label: "Audit"},
	{Key: "5", Label: "Settings"},
}

// Model is the root Bubble Tea model.
type Model struct {
	console Console
	events  *Events
	ctx     context.Context
	cancel  context.CancelFunc

	keys   KeyMap
	width  int
	height int

	state    reconcile.State
	signedIn bool
	busy     map[int64]bool

	// Navigation.
	overlay  Overlay
	detailID int64
	doomed   model.User

	// Sub-views.
	statusBar status.Model
	dashboard dashboard.Model
	timeline  timeline.Model
	queries   queries.Model
	users     users.Model
	audit     audit.Model
	detail    detail.Model
	login     form.Model
	newUser   form.Model

	notice    event.Notice
	noticeSeq int
	animating bool

	// A configuration change in flight, and why the last one failed.
	configBusy bool
	configErr  string
}

// New creates the root model. Bus events reach it once Init runs; call
// Close after the program exits.
func New(c Console, b *bus.Bus) Model {
	ctx, cancel := context.WithCancel(context.Background())
	login := form.New("Interceptor Console", form.Field{Label: "Username"}, form.Field{Label: "Password", Secret: true})
	login.Hint = "tab: next field  enter: sign in  ctrl+c: quit"
	newUser := form.New("New user",
		form.Field{Label: "Username"}, form.Field{Label: "Password", Secret: true}, form.Field{Label: "Role"})
	newUser.Hint = "role: ADMIN or PEER (default PEER)  esc: cancel"

	m := Model{
		console:   c,
		events:    Subscribe(b),
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		busy:      make(map[int64]bool),
		statusBar: status.New(pageTabs),
		dashboard: dashboard.New(),
		timeline:  timeline.New(),
		queries:   queries.New(),
		users:     users.New(),
		audit:     audit.New(),
		login:     login,
		newUser:   newUser,
	}
	m.sync()
	return m
}

// Close cancels outstanding commands and drops the bus subscriptions.
func (m Model) Close() {
	m.cancel()
	m.events.Close()
}

// Init starts listening for bus events.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.events.Next(), textinput.Blink}
	if m.animating {
		cmds = append(cmds, frameCmd())
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		m.queries.Width = msg.Width
		m.queries.Height = msg.Height - 8
		m.users.Width = msg.Width
		m.audit.Width = msg.Width
		m.audit.Height = msg.Height - 8
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		cmd := m.sync()
		return m, tea.Batch(m.events.Next(), cmd)

	case NoticeMsg:
		m.noticeSeq++
		m.notice = msg.Notice
		return m, tea.Batch(m.events.Next(), noticeTimeoutCmd(m.noticeSeq))

	case SessionExpiredMsg:
		m.overlay = OverlayNone
		m.login.Reset()
		m.login.Error = "Session expired. Please sign in again."
		cmd := m.sync()
		return m, tea.Batch(m.events.Next(), cmd)

	case noticeTimeout:
		if msg.seq == m.noticeSeq {
			m.notice = event.Notice{}
		}
		return m, nil

	case frameMsg:
		if m.dashboard.Step() {
			return m, frameCmd()
		}
		m.animating = false
		return m, nil

	case loginDoneMsg:
		m.login.Busy = false
		if msg.err != nil {
			m.login.Error = loginError(msg.err)
			m.login.SetValue(1, "")
			return m, nil
		}
		m.login.Reset()
		cmd := m.sync()
		return m, cmd

	case logoutDoneMsg:
		m.overlay = OverlayNone
		m.configErr = ""
		m.login.Reset()
		cmd := m.sync()
		return m, cmd

	case actionDoneMsg:
		delete(m.busy, msg.id)
		if msg.err == nil && m.overlay == OverlayDetail && m.detailID == msg.id {
			m.overlay = OverlayNone
		}
		m.detail.Busy = false
		return m, nil

	case voteStatusMsg:
		if m.overlay == OverlayDetail && m.detailID == msg.id {
			m.detail.Votes = msg.status
			if msg.err != nil {
				m.detail.VoteError = "Failed to load vote status"
			}
		}
		return m, nil

	case userDoneMsg:
		m.newUser.Busy = false
		if m.overlay == OverlayNewUser {
			if msg.err != nil {
				m.newUser.Error = failureText(msg.err, "Failed to create user")
				return m, nil
			}
			m.overlay = OverlayNone
		}
		return m, nil

	case configDoneMsg:
		m.configBusy = false
		if msg.err != nil {
			m.configErr = failureText(msg.err, "Failed to update configuration")
		}
		return m, nil

	case refreshDoneMsg:
		return m, nil
	}

	return m, nil
}

// sync re-reads the reconciler snapshot into the sub-views. It returns a
// frame command when the metric counters start moving.
func (m *Model) sync() tea.Cmd {
	st := m.console.Snapshot()
	m.state = st
	m.signedIn = st.User != nil

	m.statusBar.Phase = st.Connection
	m.statusBar.Retries = st.Retries
	m.statusBar.User = st.User
	m.statusBar.InFlight = len(st.InFlight)
	m.statusBar.Active = pageIndex(st.Page)

	m.busy = make(map[int64]bool, len(st.InFlight))
	for _, pa := range st.InFlight {
		m.busy[pa.QueryID] = true
	}

	m.dashboard.SetPending(st.Pending)
	m.timeline.SetEntries(st.Timeline)
	m.queries.SetRows(st.Queries, st.QueryFilter)
	m.users.SetRows(st.Users)
	m.audit.SetEntries(st.Audit)

	if m.overlay == OverlayDetail {
		if q, ok := m.lookup(m.detailID); ok {
			m.detail.Query = &q
			m.detail.CanDecide = q.Status == model.StatusPending
		}
		m.detail.IsAdmin = st.User.IsAdmin()
	}
	if !m.signedIn && m.overlay != OverlayNone {
		m.overlay = OverlayNone
	}

	if m.dashboard.SetMetrics(st.Metrics) && !m.animating {
		m.animating = true
		return frameCmd()
	}
	return nil
}

func (m Model) lookup(id int64) (model.BlockedQuery, bool) {
	for _, list := range [][]model.BlockedQuery{m.state.Pending, m.state.Queries} {
		for _, q := range list {
			if q.ID == id {
				return q, true
			}
		}
	}
	return model.BlockedQuery{}, false
}

func pageIndex(p reconcile.Page) int {
	for i, pg := range pages {
		if pg == p {
			return i
		}
	}
	return 0
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.cancel()
		return m, tea.Quit
	}
	if !m.signedIn {
		return m.handleLoginKey(msg)
	}

	switch m.overlay {
	case OverlayDetail:
		return m.handleDetailKey(msg)
	case OverlayNewUser:
		return m.handleNewUserKey(msg)
	case OverlayConfirmDelete:
		m.overlay = OverlayNone
		if key.Matches(msg, m.keys.Confirm) {
			return m, deleteUserCmd(m.ctx, m.console, m.doomed)
		}
		return m, nil
	}

	if m.state.Page == reconcile.PageAudit && m.audit.Searching() {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Page1):
		return m.navigate(0)
	case key.Matches(msg, m.keys.Page2):
		return m.navigate(1)
	case key.Matches(msg, m.keys.Page3):
		return m.navigate(2)
	case key.Matches(msg, m.keys.Page4):
		return m.navigate(3)
	case key.Matches(msg, m.keys.Page5):
		return m.navigate(4)
	case key.Matches(msg, m.keys.Tab):
		return m.navigate((pageIndex(m.state.Page) + 1) % len(pages))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.navigate((pageIndex(m.state.Page) - 1 + len(pages)) % len(pages))

	case key.Matches(msg, m.keys.Refresh):
		return m, refreshCmd(m.ctx, m.console)

	case key.Matches(msg, m.keys.Logout):
		return m, logoutCmd(m.ctx, m.console)
	}

	switch m.state.Page {
	case reconcile.PageDashboard:
		return m.handleDashboardKey(msg)
	case reconcile.PageQueries:
		return m.handleQueriesKey(msg)
	case reconcile.PageUsers:
		return m.handleUsersKey(msg)
	case reconcile.PageAudit:
		return m.handleAuditKey(msg)
	case reconcile.PageSettings:
		return m.handleSettingsKey(msg)
	}
	return m, nil
}

func (m Model) navigate(i int) (tea.Model, tea.Cmd) {
	m.console.Navigate(pages[i])
	m.statusBar.Active = i
	m.state.Page = pages[i]
	return m, nil
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.Busy {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		cmd := m.login.Next()
		return m, cmd
	case tea.KeyShiftTab, tea.KeyUp:
		cmd := m.login.Prev()
		return m, cmd
	case tea.KeyEnter:
		if !m.login.Last() {
			cmd := m.login.Next()
			return m, cmd
		}
		m.login.Busy = true
		m.login.Error = ""
		return m, loginCmd(m.ctx, m.console, m.login.Value(0), m.login.Value(1))
	}
	cmd := m.login.Update(msg)
	return m, cmd
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Quit):
		m.overlay = OverlayNone
	case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Reject):
		if !m.detail.CanDecide || m.detail.Busy {
			return m, nil
		}
		m.detail.Busy = true
		cmd := m.decide(m.detailID, key.Matches(msg, m.keys.Approve))
		return m, cmd
	}
	return m, nil
}

func (m *Model) decide(id int64, approve bool) tea.Cmd {
	m.busy[id] = true
	return decideCmd(m.ctx, m.console, id, approve)
}

func (m Model) openDetail(q model.BlockedQuery) (tea.Model, tea.Cmd) {
	m.overlay = OverlayDetail
	m.detailID = q.ID
	m.detail = detail.New(q, m.state.User.IsAdmin())
	m.detail.Busy = m.busy[q.ID]
	if q.RequiresPeerApproval {
		return m, voteStatusCmd(m.ctx, m.console, q.ID)
	}
	return m, nil
}

func (m Model) handleDashboardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		m.dashboard.Move(1)
	case key.Matches(msg, m.keys.Up):
		m.dashboard.Move(-1)
	case key.Matches(msg, m.keys.OlderEvents):
		m.timeline.ScrollDown(5)
	case key.Matches(msg, m.keys.NewerEvents):
		m.timeline.ScrollUp(5)
	case key.Matches(msg, m.keys.Enter):
		if q, ok := m.dashboard.SelectedQuery(); ok {
			return m.openDetail(q)
		}
	case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Reject):
		if q, ok := m.dashboard.SelectedQuery(); ok && !m.busy[q.ID] {
			cmd := m.decide(q.ID, key.Matches(msg, m.keys.Approve))
			return m, cmd
		}
	}
	return m, nil
}

func (m Model) handleQueriesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Down):
		m.queries.Move(1)
	case key.Matches(msg, m.keys.Up):
		m.queries.Move(-1)
	case key.Matches(msg, m.keys.Filter):
		m.console.SetQueryFilter(queries.NextFilter(m.state.QueryFilter))
	case key.Matches(msg, m.keys.Enter):
		if q, ok := m.queries.SelectedQuery(); ok {
			return m.openDetail(q)
		}
	}
	return m, nil
}

func (m Model) handleUsersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.state.User.IsAdmin() {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Down):
		m.users.Move(1)
	case key.Matches(msg, m.keys.Up):
		m.users.Move(-1)
	case key.Matches(msg, m.keys.NewUser):
		m.overlay = OverlayNewUser
		m.newUser.Reset()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.DeleteUser):
		if u, ok := m.users.SelectedUser(); ok {
			m.doomed = u
			m.overlay = OverlayConfirmDelete
		}
	}
	return m, nil
}

func (m Model) handleNewUserKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.newUser.Busy {
		return m, nil
	}
	switch msg.Type {
	case tea.KeyEsc:
		m.overlay = OverlayNone
		return m, nil
	case tea.KeyTab, tea.KeyDown:
		cmd := m.newUser.Next()
		return m, cmd
	case tea.KeyShiftTab, tea.KeyUp:
		cmd := m.newUser.Prev()
		return m, cmd
	case tea.KeyEnter:
		if !m.newUser.Last() {
			cmd := m.newUser.Next()
			return m, cmd
		}
		m.newUser.Busy = true
		m.newUser.Error = ""
		role := model.Role(strings.ToUpper(strings.TrimSpace(m.newUser.Value(2))))
		return m, createUserCmd(m.ctx, m.console, m.newUser.Value(0), m.newUser.Value(1), role)
	}
	cmd := m.newUser.Update(msg)
	return m, cmd
}

func (m Model) handleAuditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		cmd := m.audit.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Down):
		m.audit.Scroll(1)
	case key.Matches(msg, m.keys.Up):
		m.audit.Scroll(-1)
	}
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.audit.Blur()
		return m, nil
	}
	cmd, changed := m.audit.Update(msg)
	if changed {
		m.console.SearchAudit(m.audit.Search.Value())
	}
	return m, cmd
}

func (m Model) handleSettingsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state.Config == nil || !m.state.User.IsAdmin() || m.configBusy {
		return m, nil
	}
	cfg := *m.state.Config
	switch {
	case key.Matches(msg, m.keys.BlockDefault):
		cfg.BlockByDefault = !cfg.BlockByDefault
	case key.Matches(msg, m.keys.PeerApproval):
		cfg.PeerApprovalEnabled = !cfg.PeerApprovalEnabled
	case key.Matches(msg, m.keys.MoreVotes):
		cfg.PeerApprovalMinVotes++
	case key.Matches(msg, m.keys.FewerVotes):
		if cfg.PeerApprovalMinVotes <= 1 {
			return m, nil
		}
		cfg.PeerApprovalMinVotes--
	default:
		return m, nil
	}
	m.configBusy, m.configErr = true, ""
	return m, updateConfigCmd(m.ctx, m.console, cfg)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if !m.signedIn {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.login.View())
	}

	var body string
	switch m.overlay {
	case OverlayDetail:
		body = m.detail.View()
	case OverlayNewUser:
		body = m.newUser.View()
	case OverlayConfirmDelete:
		body = theme.StyleBorder.Padding(1, 2).Render(
			"Delete user " + theme.StyleSelected.Render(m.doomed.Username) + "?\n\n" +
				theme.StyleDimmed.Render("y: delete  any other key: cancel"))
	default:
		body = m.renderPage()
	}

	sections := []string{
		m.statusBar.View(),
		body,
		m.renderNotice(),
		theme.StyleDimmed.Render("  " + m.helpLine()),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderPage() string {
	switch m.state.Page {
	case reconcile.PageQueries:
		return m.queries.View()
	case reconcile.PageUsers:
		var self int64
		if m.state.User != nil {
			self = m.state.User.ID
		}
		return m.users.View(self, m.state.User.IsAdmin())
	case reconcile.PageAudit:
		return m.audit.View()
	case reconcile.PageSettings:
		view := settings.View(m.state.Config, m.width)
		if m.configErr != "" {
			view = lipgloss.JoinVertical(lipgloss.Left, view, theme.StyleError.Render("  "+m.configErr))
		}
		return view
	default:
		board := m.dashboard.View(m.busy)
		used := lipgloss.Height(board) + 6
		return lipgloss.JoinVertical(lipgloss.Left, board, m.timeline.View(m.width, m.height-used))
	}
}

func (m Model) renderNotice() string {
	if m.notice.Message == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(theme.LevelColor(string(m.notice.Level))).
		Render("  " + m.notice.Message)
}

func (m Model) helpLine() string {
	common := "1-5/tab:page  R:refresh  L:logout  q:quit"
	if m.overlay != OverlayNone {
		return "esc:close"
	}
	switch m.state.Page {
	case reconcile.PageQueries:
		return "j/k:navigate  f:filter  enter:detail  " + common
	case reconcile.PageUsers:
		return "j/k:navigate  n:new  x:delete  " + common
	case reconcile.PageAudit:
		if m.audit.Searching() {
			return "type to filter  enter/esc:done"
		}
		return "/:search  j/k:scroll  " + common
	case reconcile.PageSettings:
		if m.state.User.IsAdmin() {
			return "b:block default  p:peer approval  +/-:min votes  " + common
		}
		return common
	default:
		return "j/k:navigate  enter:detail  a:approve  r:reject  J/K:activity  " + common
	}
}
