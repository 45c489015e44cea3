package mockserver

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrResolved       = errors.New("query already resolved")
	ErrAlreadyVoted   = errors.New("already voted on this query")
	ErrUserExists     = errors.New("username already exists")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrNonceReused    = errors.New("nonce already used for a different action")
)

const maxAuditEntries = 500

type account struct {
	user     model.User
	password string
	version  int // bumped on logout; older tokens stop verifying
}

// outcome is the first response to a nonce. A later request with the same
// nonce and action replays it instead of acting twice.
type outcome struct {
	action  string
	queryID int64
	status  model.QueryStatus
}

// Store is the mock backend's in-memory state.
type Store struct {
	clock clock.Clock

	mu        sync.Mutex
	nextQuery int64
	nextUser  int64
	nextAudit int64
	queries   map[int64]*model.BlockedQuery
	votes     map[int64]map[string]model.Vote
	accounts  map[string]*account
	audit     []model.AuditEntry
	config    model.ProxyConfig
	metrics   model.Metrics
	outcomes  map[string]outcome
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	return &Store{
		clock:    clk,
		queries:  make(map[int64]*model.BlockedQuery),
		votes:    make(map[int64]map[string]model.Vote),
		accounts: make(map[string]*account),
		outcomes: make(map[string]outcome),
		config: model.ProxyConfig{
			ProxyPort:            5433,
			TargetHost:           "localhost",
			TargetPort:           5432,
			BlockByDefault:       false,
			CriticalKeywords:     "DROP, TRUNCATE, DELETE, ALTER, GRANT, REVOKE",
			AllowedKeywords:      "SELECT, SHOW, EXPLAIN",
			PeerApprovalEnabled:  true,
			PeerApprovalMinVotes: 2,
		},
	}
}

// Intercept records a new pending query.
func (s *Store) Intercept(connID, queryType, preview string, peerApproval bool) model.BlockedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextQuery++
	q := &model.BlockedQuery{
		ID:                   s.nextQuery,
		ConnID:               connID,
		QueryType:            queryType,
		QueryPreview:         preview,
		Status:               model.StatusPending,
		RequiresPeerApproval: peerApproval,
		CreatedAt:            model.Timestamp{Time: s.clock.Now().UTC()},
	}
	s.queries[q.ID] = q
	s.metrics.TotalQueries++
	s.metrics.BlockedQueries++
	return *q
}

func (s *Store) Query(id int64) (model.BlockedQuery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[id]
	if !ok {
		return model.BlockedQuery{}, false
	}
	return *q, true
}

// Pending lists unresolved queries, oldest first.
func (s *Store) Pending() []model.BlockedQuery {
	return s.list(func(q *model.BlockedQuery) bool { return q.Status == model.StatusPending })
}

// All lists every query, newest first.
func (s *Store) All() []model.BlockedQuery {
	out := s.list(func(*model.BlockedQuery) bool { return true })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) list(keep func(*model.BlockedQuery) bool) []model.BlockedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.BlockedQuery, 0, len(s.queries))
	for _, q := range s.queries {
		if keep(q) {
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Decide resolves id. replay is true when nonce already resolved the same
// query with the same action, in which case nothing changes.
func (s *Store) Decide(id int64, action string, status model.QueryStatus, nonce string) (q model.BlockedQuery, replay bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.outcomes[nonce]; ok && nonce != "" {
		if o.action != action || o.queryID != id {
			return model.BlockedQuery{}, false, ErrNonceReused
		}
		return *s.queries[id], true, nil
	}
	cur, ok := s.queries[id]
	if !ok {
		return model.BlockedQuery{}, false, ErrNotFound
	}
	if cur.Status.Terminal() {
		return *cur, false, ErrResolved
	}
	s.resolveLocked(cur, status)
	if nonce != "" {
		s.outcomes[nonce] = outcome{action: action, queryID: id, status: status}
	}
	return *cur, false, nil
}

func (s *Store) resolveLocked(q *model.BlockedQuery, status model.QueryStatus) {
	q.Status = status
	switch status {
	case model.StatusApproved:
		s.metrics.ApprovedQueries++
	case model.StatusRejected:
		s.metrics.RejectedQueries++
	}
	if s.metrics.BlockedQueries > 0 {
		s.metrics.BlockedQueries--
	}
}

// VoteResult reports a recorded ballot and whether it settled the query.
type VoteResult struct {
	Query   model.BlockedQuery
	Settled bool
}

// Vote records username's ballot. Reaching minVotes approvals or
// rejections settles the query.
func (s *Store) Vote(id int64, username string, vote model.Vote, nonce string, minVotes int) (res VoteResult, replay bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	action := "vote:" + string(vote)
	if o, ok := s.outcomes[nonce]; ok && nonce != "" {
		if o.action != action || o.queryID != id {
			return VoteResult{}, false, ErrNonceReused
		}
		q := s.queries[id]
		return VoteResult{Query: *q, Settled: q.Status.Terminal()}, true, nil
	}
	q, ok := s.queries[id]
	if !ok {
		return VoteResult{}, false, ErrNotFound
	}
	if q.Status.Terminal() {
		return VoteResult{Query: *q}, false, ErrResolved
	}
	ballots := s.votes[id]
	if ballots == nil {
		ballots = make(map[string]model.Vote)
		s.votes[id] = ballots
	}
	if _, voted := ballots[username]; voted {
		return VoteResult{Query: *q}, false, ErrAlreadyVoted
	}
	ballots[username] = vote
	if vote == model.VoteApprove {
		q.ApprovalCount++
	} else {
		q.RejectCount++
	}

	if minVotes < 1 {
		minVotes = 1
	}
	switch {
	case q.ApprovalCount >= minVotes:
		s.resolveLocked(q, model.StatusApproved)
		res.Settled = true
	case q.RejectCount >= minVotes:
		s.resolveLocked(q, model.StatusRejected)
		res.Settled = true
	}
	if nonce != "" {
		s.outcomes[nonce] = outcome{action: action, queryID: id, status: q.Status}
	}
	res.Query = *q
	return res, false, nil
}

func (s *Store) VoteStatus(id int64) (model.VoteStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queries[id]; !ok {
		return model.VoteStatus{}, ErrNotFound
	}
	vs := model.VoteStatus{QueryID: id, Approvals: []string{}, Rejections: []string{}}
	for name, v := range s.votes[id] {
		if v == model.VoteApprove {
			vs.Approvals = append(vs.Approvals, name)
		} else {
			vs.Rejections = append(vs.Rejections, name)
		}
	}
	sort.Strings(vs.Approvals)
	sort.Strings(vs.Rejections)
	vs.ApprovalCount = len(vs.Approvals)
	vs.RejectionCount = len(vs.Rejections)
	return vs, nil
}

// ExpireBefore marks pending queries created before cutoff as expired and
// returns them.
func (s *Store) ExpireBefore(cutoff time.Time) []model.BlockedQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.BlockedQuery
	for _, q := range s.queries {
		if q.Status == model.StatusPending && q.CreatedAt.Before(cutoff) {
			s.resolveLocked(q, model.StatusExpired)
			out = append(out, *q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddUser creates an account. Roles other than ADMIN become PEER.
func (s *Store) AddUser(username, password string, role model.Role) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[username]; ok {
		return model.User{}, ErrUserExists
	}
	if role != model.RoleAdmin {
		role = model.RolePeer
	}
	s.nextUser++
	now := s.clock.Now().UTC()
	a := &account{
		user:     model.User{ID: s.nextUser, Username: username, Role: role, CreatedAt: &now},
		password: password,
	}
	s.accounts[username] = a
	return a.user, nil
}

func (s *Store) DeleteUser(id int64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, a := range s.accounts {
		if a.user.ID == id {
			delete(s.accounts, name)
			return a.user, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (s *Store) Users() []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Authenticate checks credentials and stamps the last login. It returns the
// user and the account's current token version.
func (s *Store) Authenticate(username, password string) (model.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok || a.password != password {
		return model.User{}, 0, ErrBadCredentials
	}
	now := s.clock.Now().UTC()
	a.user.LastLogin = &now
	return a.user, a.version, nil
}

// TokenVersion reports the account's current token version.
func (s *Store) TokenVersion(username string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return 0, false
	}
	return a.version, true
}

// Revoke invalidates every token issued to username so far.
func (s *Store) Revoke(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[username]; ok {
		a.version++
	}
}

// Record appends an audit entry, dropping the oldest beyond the cap.
func (s *Store) Record(username, action, details, ip string) model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAudit++
	e := model.AuditEntry{
		ID:        s.nextAudit,
		Username:  username,
		Action:    action,
		Details:   details,
		IPAddress: ip,
		Timestamp: model.Timestamp{Time: s.clock.Now().UTC()},
	}
	s.audit = append(s.audit, e)
	if len(s.audit) > maxAuditEntries {
		s.audit = s.audit[len(s.audit)-maxAuditEntries:]
	}
	return e
}

// Audit lists entries newest first, optionally for one username.
func (s *Store) Audit(username string) []model.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEntry, 0, len(s.audit))
	for i := len(s.audit) - 1; i >= 0; i-- {
		if username == "" || strings.EqualFold(s.audit[i].Username, username) {
			out = append(out, s.audit[i])
		}
	}
	return out
}

func (s *Store) Config() model.ProxyConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Store) SetMinVotes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.PeerApprovalMinVotes = n
}

// Metrics returns the counters with activeConnections filled in by the caller.
func (s *Store) Metrics(active int) model.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	m.ActiveConnections = int64(active)
	return m
}
