// Package transport owns the console's single push connection: STOMP over a
// WebSocket, five fixed topic subscriptions, and a fixed-interval reconnect
// loop driven by an explicit Disconnected/Connecting/Connected machine.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/bus"
	"github.com/gautamrajesh007/Interceptor/internal/clock"
	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
	"github.com/gautamrajesh007/Interceptor/internal/stomp"
)

const (
	DefaultReconnectInterval = 5 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	writeTimeout             = 10 * time.Second
	pongTimeout              = 60 * time.Second
	pingInterval             = 30 * time.Second
)

var (
	// ErrNoCredential means Connect found no usable credential and did not
	// dial.
	ErrNoCredential = errors.New("no valid session credential")
	// ErrSuperseded means a Disconnect or newer Connect overtook this
	// attempt.
	ErrSuperseded = errors.New("connection attempt superseded")
	ErrBroker     = errors.New("broker error")
)

// Credentials is the read side of the session store.
type Credentials interface {
	Valid() bool
	Token() string
}

type Config struct {
	// URL of the raw WebSocket endpoint, e.g. ws://host:8080/ws/websocket.
	URL               string
	ReconnectInterval time.Duration
	HandshakeTimeout  time.Duration
}

type Option func(*Client)

func WithDialer(d Dialer) Option            { return func(c *Client) { c.dialer = d } }
func WithClock(clk clock.Clock) Option      { return func(c *Client) { c.clock = clk } }
func WithMetrics(m *metrics.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("transport")
		}
	}
}

// Client publishes topic events, Connected, Disconnected and StatusChanged
// on the bus. Handlers of those events run on the client's goroutines and
// must not call Connect or Disconnect synchronously.
type Client struct {
	cfg     Config
	creds   Credentials
	bus     *bus.Bus
	dialer  Dialer
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	phase    event.Phase
	retries  int
	epoch    uint64 // bumped whenever the current connection is abandoned
	gen      uint64 // bumped by every Connect and Disconnect
	conn     Conn
	cancel   context.CancelFunc
	timer    *clock.Timer
	timerSeq uint64

	// writeMu serialises writes on the live connection.
	writeMu sync.Mutex
	// deliverMu is held across the epoch check and the publish of every
	// event, so Disconnect can wait out a delivery already in progress.
	deliverMu sync.Mutex
}

func New(cfg Config, creds Credentials, b *bus.Bus, opts ...Option) *Client {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	c := &Client{
		cfg:    cfg,
		creds:  creds,
		bus:    b,
		dialer: WebsocketDialer{},
		clock:  clock.Real(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status returns the current phase and the number of failed attempts since
// the last successful connect.
func (c *Client) Status() (event.Phase, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase, c.retries
}

// Connect tears down any existing connection and opens a new one. Without a
// valid credential it returns ErrNoCredential and does nothing else. A
// failed attempt leaves exactly one reconnect timer pending.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()
	return c.connect(ctx, gen)
}

// connect makes one attempt on behalf of gen. Once a Disconnect or a newer
// Connect has moved gen on, it returns ErrSuperseded without dialing.
func (c *Client) connect(ctx context.Context, gen uint64) error {
	if !c.creds.Valid() {
		c.mu.Lock()
		if c.gen == gen {
			c.stopTimerLocked()
		}
		c.mu.Unlock()
		return ErrNoCredential
	}
	token := c.creds.Token()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	c.stopTimerLocked()
	prev, prevCancel := c.detachLocked()
	wasConnected := c.phase == event.PhaseConnected
	c.setPhaseLocked(event.PhaseConnecting)
	epoch, retries := c.epoch, c.retries
	connCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	c.closeConn(prev, prevCancel, true)
	if wasConnected {
		c.deliver(epoch,
			event.StatusChanged{Phase: event.PhaseDisconnected, Retries: retries},
			event.Disconnected{},
		)
	}
	c.deliver(epoch, event.StatusChanged{Phase: event.PhaseConnecting, Retries: retries})
	if c.metrics != nil {
		c.metrics.ConnectAttempt()
	}

	hsCtx, hsCancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	defer hsCancel()
	stop := context.AfterFunc(connCtx, hsCancel)
	defer stop()

	conn, err := c.handshake(hsCtx, token)
	if err != nil {
		c.logger.Warn("push handshake failed", zap.Error(err))
		c.fail(epoch, err)
		return err
	}

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		conn.Close()
		return ErrSuperseded
	}
	c.conn = conn
	c.retries = 0
	c.setPhaseLocked(event.PhaseConnected)
	c.mu.Unlock()

	if !c.deliver(epoch, event.StatusChanged{Phase: event.PhaseConnected}, event.Connected{}) {
		return ErrSuperseded
	}
	c.logger.Info("push channel connected", zap.String("url", c.cfg.URL))

	go c.readLoop(epoch, conn)
	go c.pingLoop(connCtx, conn)
	return nil
}

// Disconnect cancels any pending reconnect and closes the connection. No
// topic event is published once it returns. A final Disconnected is
// published only if the client was not already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	conn, cancel := c.detachLocked()
	was := c.phase
	c.retries = 0
	c.setPhaseLocked(event.PhaseDisconnected)
	c.mu.Unlock()

	c.closeConn(conn, cancel, true)

	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()
	if was != event.PhaseDisconnected {
		c.logger.Info("push channel closed")
		c.bus.Publish(event.StatusChanged{Phase: event.PhaseDisconnected})
		c.bus.Publish(event.Disconnected{})
	}
}

// handshake dials, sends CONNECT and subscribes to every topic. The
// returned connection is not yet visible to other goroutines.
func (c *Client) handshake(ctx context.Context, token string) (Conn, error) {
	conn, err := c.dialer.Dial(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	// Unblocks ReadMessage when ctx ends first.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := c.write(conn, stomp.Connect(hostOf(c.cfg.URL), token)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending CONNECT: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}
	if err := awaitConnected(conn); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	for i, t := range topics {
		if err := c.write(conn, stomp.Subscribe(subscriptionID(i), t.destination)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("subscribing %s: %w", t.name, err)
		}
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func awaitConnected(conn Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("awaiting CONNECTED: %w", err)
		}
		f, err := stomp.Decode(data)
		if err != nil {
			return err
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case stomp.CmdConnected:
			return nil
		case stomp.CmdError:
			return fmt.Errorf("%w: %s", ErrBroker, stomp.ErrorText(f))
		default:
			return fmt.Errorf("unexpected %s before CONNECTED", f.Command)
		}
	}
}

func (c *Client) readLoop(epoch uint64, conn Conn) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.fail(epoch, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		f, err := stomp.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case stomp.CmdMessage:
			if !c.dispatch(epoch, f) {
				return
			}
		case stomp.CmdError:
			c.fail(epoch, fmt.Errorf("%w: %s", ErrBroker, stomp.ErrorText(f)))
			return
		}
	}
}

// dispatch decodes a MESSAGE for its topic. It returns false once the
// connection is stale.
func (c *Client) dispatch(epoch uint64, f *stomp.Frame) bool {
	t, ok := lookupTopic(f)
	if !ok {
		c.logger.Debug("message for unknown subscription",
			zap.String("destination", f.Header.Get(stomp.HdrDestination)))
		return true
	}
	ev, err := t.decode(f.Body)
	if err != nil {
		c.logger.Warn("dropping undecodable push payload",
			zap.String("topic", t.name), zap.Error(err))
		if c.metrics != nil {
			c.metrics.DecodeError(t.name)
		}
		return true
	}
	if c.metrics != nil {
		c.metrics.Message(t.name)
	}
	return c.deliver(epoch, ev)
}

func lookupTopic(f *stomp.Frame) (topic, bool) {
	sub := f.Header.Get(stomp.HdrSubscription)
	dest := f.Header.Get(stomp.HdrDestination)
	for i, t := range topics {
		if sub == subscriptionID(i) || (sub == "" && dest == t.destination) {
			return t, true
		}
	}
	return topic{}, false
}

func (c *Client) pingLoop(ctx context.Context, conn Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// fail abandons the connection of epoch, if it is still current, and
// schedules the next attempt.
func (c *Client) fail(epoch uint64, cause error) {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	conn, cancel := c.detachLocked()
	c.retries++
	c.setPhaseLocked(event.PhaseDisconnected)
	c.scheduleLocked()
	next, retries := c.epoch, c.retries
	c.mu.Unlock()

	c.closeConn(conn, cancel, false)
	c.logger.Warn("push channel lost",
		zap.Error(cause),
		zap.Int("retries", retries),
		zap.Duration("retry_in", c.cfg.ReconnectInterval))
	c.deliver(next,
		event.StatusChanged{Phase: event.PhaseDisconnected, Retries: retries},
		event.Disconnected{Err: cause},
	)
}

// scheduleLocked replaces any pending reconnect timer with a new one.
func (c *Client) scheduleLocked() {
	c.stopTimerLocked()
	c.timerSeq++
	seq, gen := c.timerSeq, c.gen
	c.timer = c.clock.AfterFunc(c.cfg.ReconnectInterval, func() { c.reconnect(seq, gen) })
	if c.metrics != nil {
		c.metrics.ReconnectScheduled()
	}
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// reconnect runs when timer seq fires. The credential is checked now, not
// when the timer was set, and the attempt is dropped if a Disconnect lands
// before it dials.
func (c *Client) reconnect(seq, gen uint64) {
	c.mu.Lock()
	if seq != c.timerSeq || c.timer == nil || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	switch err := c.connect(context.Background(), gen); {
	case errors.Is(err, ErrNoCredential):
		c.logger.Info("reconnect skipped: no credential")
	case err != nil:
		c.logger.Debug("reconnect attempt failed", zap.Error(err))
	}
}

// detachLocked abandons the current connection and returns it for closing.
func (c *Client) detachLocked() (Conn, context.CancelFunc) {
	c.epoch++
	conn, cancel := c.conn, c.cancel
	c.conn, c.cancel = nil, nil
	return conn, cancel
}

func (c *Client) setPhaseLocked(p event.Phase) {
	c.phase = p
	if c.metrics != nil {
		c.metrics.SetPhase(int(p))
	}
}

func (c *Client) closeConn(conn Conn, cancel context.CancelFunc, graceful bool) {
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return
	}
	if graceful {
		c.write(conn, stomp.Disconnect(""))
		c.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
	}
	conn.Close()
}

func (c *Client) write(conn Conn, f *stomp.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, stomp.Encode(f))
}

// deliver publishes evs if epoch is still current.
func (c *Client) deliver(epoch uint64, evs ...event.Event) bool {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	current := c.epoch == epoch
	c.mu.Unlock()
	if !current {
		return false
	}
	for _, ev := range evs {
		c.bus.Publish(ev)
	}
	return true
}

// hostOf names the virtual host for CONNECT: the endpoint's host name
// without the port.
func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
