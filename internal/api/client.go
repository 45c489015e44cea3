// Package api is the console's REST client for the interceptor backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
	"github.com/gautamrajesh007/Interceptor/internal/session"
)

const defaultTimeout = 10 * time.Second

// Client makes authenticated REST calls. A 401 on any authenticated call
// clears the session and publishes event.SessionExpired.
type Client struct {
	baseURL string
	session *session.Store
	bus     *bus.Bus
	http    *http.Client
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("api")
		}
	}
}

// NewClient targets baseURL, e.g. "http://127.0.0.1:8080". b may be nil.
func NewClient(baseURL string, sess *session.Store, b *bus.Bus, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		session: sess,
		bus:     b,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

// call describes one request. route is the path template used for metrics
// and errors; path is the concrete URL path.
type call struct {
	method string
	route  string
	path   string
	body   any
	out    any
	public bool
}

func (c *Client) get(ctx context.Context, route, path string, out any) error {
	return c.do(ctx, call{method: http.MethodGet, route: route, path: path, out: out})
}

func (c *Client) send(ctx context.Context, method, route string, body, out any) error {
	return c.do(ctx, call{method: method, route: route, path: route, body: body, out: out})
}

func (c *Client) do(ctx context.Context, r call) error {
	var token string
	if !r.public {
		if token = c.session.Token(); token == "" {
			return ErrNotAuthenticated
		}
	}

	var reader io.Reader
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("%s %s: encoding body: %w", r.method, r.route, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.record(r, 0, start)
		return fmt.Errorf("%s %s: %w", r.method, r.route, err)
	}
	defer resp.Body.Close()
	c.record(r, resp.StatusCode, start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading body: %w", r.method, r.route, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &Error{
			Method:  r.method,
			Route:   r.route,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.StatusCode, body),
		}
		if resp.StatusCode == http.StatusUnauthorized && !r.public {
			c.expire(ctx, token)
		}
		return apiErr
	}

	if r.out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, r.out); err != nil {
		return fmt.Errorf("%s %s: decoding body: %w", r.method, r.route, err)
	}
	return nil
}

func (c *Client) record(r call, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.Request(r.method, r.route, status, start)
	}
}

// expire drops the credential before anyone is told, so subscribers of
// SessionExpired already observe a signed-out store. A 401 for a token that
// has since been replaced or cleared changes nothing.
func (c *Client) expire(ctx context.Context, token string) {
	revoked, err := c.session.Revoke(context.WithoutCancel(ctx), token)
	if err != nil {
		c.logger.Error("clearing expired session", zap.Error(err))
	}
	if !revoked {
		c.logger.Debug("ignoring rejection of a superseded credential")
		return
	}
	c.logger.Warn("backend rejected credential; session cleared")
	if c.bus != nil {
		c.bus.Publish(event.SessionExpired{})
	}
}
