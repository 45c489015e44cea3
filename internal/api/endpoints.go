package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user,omitempty"`
}

// ActionRequest is the body of approve, reject and vote calls. Nonce and
// Timestamp let the backend collapse resubmissions of the same action.
type ActionRequest struct {
	ID        int64      `json:"id"`
	Vote      model.Vote `json:"vote,omitempty"`
	Nonce     string     `json:"nonce"`
	Timestamp string     `json:"timestamp"`
}

// NewActionRequest stamps issuedAt as epoch milliseconds.
func NewActionRequest(id int64, vote model.Vote, nonce string, issuedAt time.Time) ActionRequest {
	return ActionRequest{
		ID:        id,
		Vote:      vote,
		Nonce:     nonce,
		Timestamp: strconv.FormatInt(issuedAt.UnixMilli(), 10),
	}
}

type ActionResult struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Status  model.QueryStatus `json:"status,omitempty"`
}

type NewUser struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
}

// Login exchanges credentials for a token. The session is not touched; a
// 401 here is a wrong password, not an expiry. When the response omits the
// user it is read from the token's claims.
func (c *Client) Login(ctx context.Context, username, password string) (string, *model.User, error) {
	var resp LoginResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		route:  "/api/login",
		path:   "/api/login",
		body:   LoginRequest{Username: username, Password: password},
		out:    &resp,
		public: true,
	})
	if err != nil {
		return "", nil, err
	}
	if resp.Token == "" {
		return "", nil, errors.New("login response carried no token")
	}
	if resp.User != nil {
		return resp.Token, resp.User, nil
	}

	claims, err := session.ParseClaims(resp.Token)
	if err != nil {
		return "", nil, fmt.Errorf("reading token claims: %w", err)
	}
	user, err := claims.User()
	if err != nil {
		return "", nil, err
	}
	return resp.Token, user, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.send(ctx, http.MethodPost, "/api/logout", nil, nil)
}

func (c *Client) Pending(ctx context.Context) ([]model.BlockedQuery, error) {
	var out []model.BlockedQuery
	if err := c.get(ctx, "/api/blocked", "/api/blocked", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) AllQueries(ctx context.Context) ([]model.BlockedQuery, error) {
	var out []model.BlockedQuery
	if err := c.get(ctx, "/api/blocked/all", "/api/blocked/all", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Approve(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return c.action(ctx, "/api/approve", req)
}

func (c *Client) Reject(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	return c.action(ctx, "/api/reject", req)
}

// Vote casts req.Vote on req.ID.
func (c *Client) Vote(ctx context.Context, req ActionRequest) (*ActionResult, error) {
	if req.Vote != model.VoteApprove && req.Vote != model.VoteReject {
		return nil, fmt.Errorf("invalid vote %q", req.Vote)
	}
	return c.action(ctx, "/api/vote", req)
}

func (c *Client) action(ctx context.Context, route string, req ActionRequest) (*ActionResult, error) {
	var out ActionResult
	if err := c.send(ctx, http.MethodPost, route, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) VoteStatus(ctx context.Context, id int64) (*model.VoteStatus, error) {
	var out model.VoteStatus
	path := "/api/blocked/" + strconv.FormatInt(id, 10) + "/votes"
	if err := c.get(ctx, "/api/blocked/{id}/votes", path, &out); err != nil {
		return nil, err
	}
	if out.QueryID == 0 {
		out.QueryID = id
	}
	return &out, nil
}

func (c *Client) Users(ctx context.Context) ([]model.User, error) {
	var out []model.User
	if err := c.get(ctx, "/api/users", "/api/users", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateUser(ctx context.Context, u NewUser) (*model.User, error) {
	var out model.User
	if err := c.send(ctx, http.MethodPost, "/api/users", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.do(ctx, call{
		method: http.MethodDelete,
		route:  "/api/users/{id}",
		path:   "/api/users/" + strconv.FormatInt(id, 10),
	})
}

func (c *Client) Config(ctx context.Context) (*model.ProxyConfig, error) {
	var out model.ProxyConfig
	if err := c.get(ctx, "/api/config", "/api/config", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateConfig(ctx context.Context, cfg model.ProxyConfig) (*model.ConfigUpdateResult, error) {
	var out model.ConfigUpdateResult
	if err := c.send(ctx, http.MethodPut, "/api/config", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Metrics(ctx context.Context) (*model.Metrics, error) {
	var out model.Metrics
	if err := c.get(ctx, "/api/metrics", "/api/metrics", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Audit(ctx context.Context) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	if err := c.get(ctx, "/api/audit", "/api/audit", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AuditByUser lists audit entries for one username.
func (c *Client) AuditByUser(ctx context.Context, username string) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	path := "/api/audit/user/" + url.PathEscape(username)
	if err := c.get(ctx, "/api/audit/user/{username}", path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
