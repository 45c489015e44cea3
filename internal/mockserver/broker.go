package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gautamrajesh007/Interceptor/internal/session"
	"github.com/gautamrajesh007/Interceptor/internal/stomp"
)

const (
	connectTimeout = 10 * time.Second
	writeWait      = 10 * time.Second
	sendBuffer     = 64
)

// Verifier checks the bearer token carried by CONNECT.
type Verifier interface {
	Verify(token string) (*session.Claims, error)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	user string

	mu     sync.Mutex
	subs   map[string]string // subscription id -> destination
	closed bool
}

func newClient(conn *websocket.Conn, user string) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		user: user,
		subs: make(map[string]string),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues msg without blocking. It reports false when the client is
// closed or its buffer is full.
func (c *client) trySend(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// subscriptions returns the ids subscribed to destination.
func (c *client) subscriptions(destination string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []string
	for id, dest := range c.subs {
		if dest == destination {
			ids = append(ids, id)
		}
	}
	return ids
}

// Broker is a minimal STOMP 1.2 broker: authenticated CONNECT, SUBSCRIBE,
// UNSUBSCRIBE, DISCONNECT and server-side publish to /topic destinations.
type Broker struct {
	verifier Verifier
	logger   *zap.Logger
	msgSeq   atomic.Uint64

	mu      sync.RWMutex
	clients map[*client]bool
}

func NewBroker(v Verifier, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		verifier: v,
		logger:   logger.Named("broker"),
		clients:  make(map[*client]bool),
	}
}

// Serve runs the STOMP session on conn until the peer leaves.
func (b *Broker) Serve(conn *websocket.Conn) {
	c, err := b.handleConnect(conn)
	if err != nil {
		b.logger.Info("rejected STOMP session", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
		conn.Close()
		return
	}
	b.logger.Info("STOMP session opened", zap.String("user", c.user))
	defer func() {
		b.RemoveClient(c)
		b.logger.Info("STOMP session closed", zap.String("user", c.user))
	}()
	b.handleFrames(c)
}

// handleConnect reads the first frame, which must be an authenticated
// CONNECT, and answers CONNECTED or ERROR.
func (b *Broker) handleConnect(conn *websocket.Conn) (*client, error) {
	conn.SetReadDeadline(time.Now().Add(connectTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading CONNECT: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	f, err := stomp.Decode(data)
	if err != nil {
		writeFrame(conn, stomp.Error("malformed frame", nil))
		return nil, err
	}
	if f == nil || (f.Command != stomp.CmdConnect && f.Command != stomp.CmdStomp) {
		writeFrame(conn, stomp.Error("expected CONNECT", nil))
		return nil, errors.New("first frame was not CONNECT")
	}
	claims, err := b.verifier.Verify(stomp.Bearer(f))
	if err != nil {
		writeFrame(conn, stomp.Error("Unauthorized", []byte(`{"error":"Invalid or expired token"}`)))
		return nil, err
	}
	if err := writeFrame(conn, stomp.Connected("0,0")); err != nil {
		return nil, err
	}

	c := newClient(conn, claims.Name())
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	return c, nil
}

func (b *Broker) handleFrames(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := stomp.Decode(data)
		if err != nil {
			b.reply(c, stomp.Error("malformed frame", []byte(err.Error())))
			return
		}
		if f == nil {
			continue
		}

		switch f.Command {
		case stomp.CmdSubscribe:
			id, dest := f.Header.Get(stomp.HdrID), f.Header.Get(stomp.HdrDestination)
			if id == "" || dest == "" {
				b.reply(c, stomp.Error("SUBSCRIBE requires id and destination", nil))
				return
			}
			c.mu.Lock()
			c.subs[id] = dest
			c.mu.Unlock()
			b.logger.Debug("subscribed", zap.String("user", c.user), zap.String("destination", dest))
		case stomp.CmdUnsubscribe:
			c.mu.Lock()
			delete(c.subs, f.Header.Get(stomp.HdrID))
			c.mu.Unlock()
		case stomp.CmdDisconnect:
			b.receipt(c, f)
			return
		case stomp.CmdSend:
			// Console clients never SEND.
			b.logger.Debug("ignoring SEND", zap.String("destination", f.Header.Get(stomp.HdrDestination)))
		case stomp.CmdConnect, stomp.CmdStomp:
			b.reply(c, stomp.Error("already connected", nil))
			return
		default:
			b.reply(c, stomp.Error("unsupported command "+f.Command, nil))
			return
		}
		if f.Command != stomp.CmdDisconnect {
			b.receipt(c, f)
		}
	}
}

func (b *Broker) receipt(c *client, f *stomp.Frame) {
	if id := f.Header.Get(stomp.HdrReceipt); id != "" {
		b.reply(c, stomp.New(stomp.CmdReceipt, stomp.HdrReceiptID, id))
	}
}

func (b *Broker) reply(c *client, f *stomp.Frame) {
	c.trySend(stomp.Encode(f))
}

func (b *Broker) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish sends payload as JSON to every subscription on destination.
// Clients whose send buffer is full are disconnected.
func (b *Broker) Publish(destination string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("encoding publish payload", zap.String("destination", destination), zap.Error(err))
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		for _, sub := range c.subscriptions(destination) {
			id := strconv.FormatUint(b.msgSeq.Add(1), 10)
			if !c.trySend(stomp.Encode(stomp.Message(destination, sub, id, body))) {
				b.logger.Warn("STOMP client too slow, disconnecting", zap.String("user", c.user))
				b.RemoveClient(c)
				break
			}
		}
	}
}

// DropAll closes every session, as a broker restart would.
func (b *Broker) DropAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[*client]bool)
	b.mu.Unlock()
	for c := range clients {
		c.close()
	}
}

// Subscribers counts live subscriptions on destination.
func (b *Broker) Subscribers(destination string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for c := range b.clients {
		n += len(c.subscriptions(destination))
	}
	return n
}

func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func writeFrame(conn *websocket.Conn, f *stomp.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, stomp.Encode(f))
}
