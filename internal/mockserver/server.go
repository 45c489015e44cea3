// Package mockserver is an in-memory stand-in for the interceptor backend.
// It serves the REST API the console calls and a STOMP broker on
// /ws/websocket that pushes the same five topics, so the console can be run
// and tested end to end without the proxy.
package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/api"
	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/config"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

const (
	DestBlocked   = "/topic/blocked"
	DestApprovals = "/topic/approvals"
	DestVotes     = "/topic/votes"
	DestLogs      = "/topic/logs"
	DestMetrics   = "/topic/metrics"
)

const configSavedMessage = "Configuration saved.  Restart required to apply changes."

type blockedMessage struct {
	ID           int64  `json:"id"`
	ConnID       string `json:"connId"`
	QueryType    string `json:"queryType"`
	QueryPreview string `json:"queryPreview"`
	Timestamp    int64  `json:"timestamp"`
}

type decisionMessage struct {
	ID         int64             `json:"id"`
	Status     model.QueryStatus `json:"status"`
	ResolvedBy string            `json:"resolvedBy"`
	Timestamp  int64             `json:"timestamp"`
}

type voteMessage struct {
	QueryID   int64      `json:"queryId"`
	Username  string     `json:"username"`
	Vote      model.Vote `json:"vote"`
	Timestamp int64      `json:"timestamp"`
}

type logMessage struct {
	Username  string `json:"username"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	Timestamp int64  `json:"timestamp"`
}

type Server struct {
	store    *Store
	issuer   *Issuer
	broker   *Broker
	clock    clock.Clock
	logger   *zap.Logger
	minVotes int

	allowedOrigins map[string]bool
}

// New builds a server with the configured accounts. clk may be nil.
func New(cfg config.MockConfig, logger *zap.Logger, clk clock.Clock) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real()
	}
	store := NewStore(clk)
	issuer := NewIssuer(cfg.JWTSecret, cfg.TokenTTL, store, clk)
	s := &Server{
		store:          store,
		issuer:         issuer,
		broker:         NewBroker(issuer, logger),
		clock:          clk,
		logger:         logger.Named("mock"),
		minVotes:       cfg.MinVotes,
		allowedOrigins: make(map[string]bool),
	}
	if s.minVotes < 1 {
		s.minVotes = 1
	}
	store.SetMinVotes(s.minVotes)
	for _, u := range cfg.Users {
		if _, err := store.AddUser(u.Username, u.Password, model.Role(strings.ToUpper(u.Role))); err != nil {
			return nil, fmt.Errorf("seeding user %q: %w", u.Username, err)
		}
	}
	return s, nil
}

func (s *Server) Store() *Store   { return s.store }
func (s *Server) Broker() *Broker { return s.broker }

// AllowOrigins restricts WebSocket upgrades to the given origins. Without
// it, only same-host and loopback origins are accepted.
func (s *Server) AllowOrigins(origins []string) {
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			s.allowedOrigins[o] = true
		}
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/websocket", s.handleWS)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/logout", s.authed(false, s.handleLogout))

	mux.HandleFunc("GET /api/blocked", s.authed(false, s.handlePending))
	mux.HandleFunc("GET /api/blocked/all", s.authed(false, s.handleAllQueries))
	mux.HandleFunc("GET /api/blocked/{id}/votes", s.authed(false, s.handleVoteStatus))
	mux.HandleFunc("POST /api/approve", s.authed(true, s.handleDecision(model.StatusApproved)))
	mux.HandleFunc("POST /api/reject", s.authed(true, s.handleDecision(model.StatusRejected)))
	mux.HandleFunc("POST /api/vote", s.authed(false, s.handleVote))

	mux.HandleFunc("GET /api/users", s.authed(true, s.handleUsers))
	mux.HandleFunc("POST /api/users", s.authed(true, s.handleCreateUser))
	mux.HandleFunc("DELETE /api/users/{id}", s.authed(true, s.handleDeleteUser))

	mux.HandleFunc("GET /api/config", s.authed(true, s.handleConfig))
	mux.HandleFunc("PUT /api/config", s.authed(true, s.handleUpdateConfig))
	mux.HandleFunc("GET /api/metrics", s.authed(false, s.handleMetrics))
	mux.HandleFunc("GET /api/audit", s.authed(true, s.handleAudit))
	mux.HandleFunc("GET /api/audit/user/{username}", s.authed(true, s.handleAudit))
}

type authedFunc func(w http.ResponseWriter, r *http.Request, claims *session.Claims)

// authed verifies the bearer token. adminOnly routes answer 403 to peers.
func (s *Server) authed(adminOnly bool, h authedFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing or invalid token")
			return
		}
		claims, err := s.issuer.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if adminOnly && model.Role(claims.Role) != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "Access denied")
			return
		}
		h(w, r, claims)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	s.broker.Serve(conn)
	s.publishMetrics()
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req api.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	user, version, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		s.audit(req.Username, "login", "Unauthorized access", r)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.issuer.Issue(user, version)
	if err != nil {
		s.logger.Error("signing token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	s.audit(user.Username, "login", "Login successful", r)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	s.store.Revoke(claims.Name())
	s.audit(claims.Name(), "logout", "Logged out", r)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePending(w http.ResponseWriter, _ *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.Pending())
}

func (s *Server) handleAllQueries(w http.ResponseWriter, _ *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.All())
}

func (s *Server) handleVoteStatus(w http.ResponseWriter, r *http.Request, _ *session.Claims) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query id")
		return
	}
	vs, err := s.store.VoteStatus(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Query not found")
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleDecision(status model.QueryStatus) authedFunc {
	verb := "approved"
	if status == model.StatusRejected {
		verb = "rejected"
	}
	return func(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
		req, ok := decodeAction(w, r)
		if !ok {
			return
		}
		q, replay, err := s.store.Decide(req.ID, string(status), status, req.Nonce)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if !replay {
			s.logger.Info("query decided",
				zap.Int64("id", q.ID), zap.String("status", string(status)), zap.String("by", claims.Name()))
			s.broker.Publish(DestApprovals, decisionMessage{
				ID:         q.ID,
				Status:     status,
				ResolvedBy: claims.Name(),
				Timestamp:  s.clock.Now().UnixMilli(),
			})
			s.audit(claims.Name(), "query_"+verb, fmt.Sprintf("Query #%d %s", q.ID, verb), r)
			s.publishMetrics()
		}
		writeJSON(w, http.StatusOK, api.ActionResult{
			Success: true,
			Message: "Query " + verb,
			Status:  q.Status,
		})
	}
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	if req.Vote != model.VoteApprove && req.Vote != model.VoteReject {
		writeError(w, http.StatusBadRequest, "Vote must be APPROVE or REJECT")
		return
	}
	res, replay, err := s.store.Vote(req.ID, claims.Name(), req.Vote, req.Nonce, s.minVotes)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if !replay {
		now := s.clock.Now().UnixMilli()
		s.broker.Publish(DestVotes, voteMessage{
			QueryID:   req.ID,
			Username:  claims.Name(),
			Vote:      req.Vote,
			Timestamp: now,
		})
		s.audit(claims.Name(), "vote_cast", fmt.Sprintf("Voted %s on query #%d", req.Vote, req.ID), r)
		if res.Settled {
			s.broker.Publish(DestApprovals, decisionMessage{
				ID:         req.ID,
				Status:     res.Query.Status,
				ResolvedBy: "peer vote",
				Timestamp:  now,
			})
		}
		s.publishMetrics()
	}
	writeJSON(w, http.StatusOK, api.ActionResult{
		Success: true,
		Message: "Vote recorded",
		Status:  res.Query.Status,
	})
}

func decodeAction(w http.ResponseWriter, r *http.Request) (api.ActionRequest, bool) {
	var req api.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return req, false
	}
	return req, true
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.Users())
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	var req api.NewUser
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}
	u, err := s.store.AddUser(strings.TrimSpace(req.Username), req.Password, req.Role)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.audit(claims.Name(), "user_created", fmt.Sprintf("Created user %s (%s)", u.Username, u.Role), r)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if id == claims.UserID {
		writeError(w, http.StatusBadRequest, "Cannot delete yourself")
		return
	}
	u, err := s.store.DeleteUser(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	s.audit(claims.Name(), "user_deleted", "Deleted user "+u.Username, r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.Config())
}

// handleUpdateConfig accepts the body but changes nothing; the proxy only
// reads its configuration at startup.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request, claims *session.Claims) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid configuration")
		return
	}
	s.audit(claims.Name(), "config_update_attempted", fmt.Sprintf("Fields: %d", len(body)), r)
	writeJSON(w, http.StatusOK, model.ConfigUpdateResult{OK: true, Message: configSavedMessage})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.Metrics(s.broker.ClientCount()))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, _ *session.Claims) {
	writeJSON(w, http.StatusOK, s.store.Audit(r.PathValue("username")))
}

// Intercept records a blocked statement and announces it.
func (s *Server) Intercept(connID, queryType, preview string) model.BlockedQuery {
	cfg := s.store.Config()
	q := s.store.Intercept(connID, queryType, preview, cfg.PeerApprovalEnabled)
	s.logger.Info("query intercepted", zap.Int64("id", q.ID), zap.String("type", queryType))
	s.broker.Publish(DestBlocked, blockedMessage{
		ID:           q.ID,
		ConnID:       q.ConnID,
		QueryType:    q.QueryType,
		QueryPreview: q.QueryPreview,
		Timestamp:    q.CreatedAt.UnixMilli(),
	})
	s.publishMetrics()
	return q
}

// ExpireStale expires pending queries older than ttl and announces each.
func (s *Server) ExpireStale(ttl time.Duration) []model.BlockedQuery {
	now := s.clock.Now()
	expired := s.store.ExpireBefore(now.Add(-ttl))
	for _, q := range expired {
		s.broker.Publish(DestApprovals, decisionMessage{
			ID:         q.ID,
			Status:     model.StatusExpired,
			ResolvedBy: "system",
			Timestamp:  now.UnixMilli(),
		})
	}
	if len(expired) > 0 {
		s.publishMetrics()
	}
	return expired
}

func (s *Server) publishMetrics() {
	s.broker.Publish(DestMetrics, s.store.Metrics(s.broker.ClientCount()))
}

func (s *Server) audit(username, action, details string, r *http.Request) {
	e := s.store.Record(username, action, details, clientIP(r))
	s.broker.Publish(DestLogs, logMessage{
		Username:  e.Username,
		Action:    e.Action,
		Details:   e.Details,
		Timestamp: e.Timestamp.UnixMilli(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[origin] {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if len(s.allowedOrigins) > 0 {
		return false
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Query not found")
	case errors.Is(err, ErrResolved):
		writeError(w, http.StatusConflict, "Query already resolved")
	case errors.Is(err, ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "You have already voted on this query")
	case errors.Is(err, ErrNonceReused):
		writeError(w, http.StatusConflict, "Nonce already used")
	case errors.Is(err, ErrUserExists):
		writeError(w, http.StatusConflict, "Username already exists")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
