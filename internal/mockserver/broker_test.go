package mockserver

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gautamrajesh007/Interceptor/internal/config"
	"github.com/gautamrajesh007/Interceptor/internal/model"
	"github.com/gautamrajesh007/Interceptor/internal/stomp"
)

func dialBroker(t *testing.T, h *harness) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(config.PushURLFor(h.http.URL), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f *stomp.Frame) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, stomp.Encode(f)))
}

func read(t *testing.T, conn *websocket.Conn) *stomp.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	f, err := stomp.Decode(data)
	require.NoError(t, err)
	require.NotNil(t, f)
	return f
}

func adminToken(t *testing.T, h *harness) string {
	t.Helper()
	u, version, err := h.srv.Store().Authenticate("admin", "admin123")
	require.NoError(t, err)
	token, err := h.srv.issuer.Issue(u, version)
	require.NoError(t, err)
	return token
}

func TestBrokerRejectsMissingToken(t *testing.T) {
	h := newHarness(t)
	conn := dialBroker(t, h)

	send(t, conn, stomp.Connect("localhost", ""))
	f := read(t, conn)
	assert.Equal(t, stomp.CmdError, f.Command)
	assert.Equal(t, "Unauthorized", stomp.ErrorText(f))
	assert.Equal(t, 0, h.srv.Broker().ClientCount())
}

func TestBrokerRejectsRevokedToken(t *testing.T) {
	h := newHarness(t)
	token := adminToken(t, h)
	h.srv.Store().Revoke("admin")

	conn := dialBroker(t, h)
	send(t, conn, stomp.Connect("localhost", token))
	assert.Equal(t, stomp.CmdError, read(t, conn).Command)
}

func TestBrokerDeliversToSubscribers(t *testing.T) {
	h := newHarness(t)
	conn := dialBroker(t, h)

	send(t, conn, stomp.Connect("localhost", adminToken(t, h)))
	connected := read(t, conn)
	require.Equal(t, stomp.CmdConnected, connected.Command)
	assert.Equal(t, stomp.Version, connected.Header.Get(stomp.HdrVersion))

	sub := stomp.Subscribe("sub-0", DestBlocked)
	sub.Header.Set(stomp.HdrReceipt, "r-1")
	send(t, conn, sub)
	receipt := read(t, conn)
	require.Equal(t, stomp.CmdReceipt, receipt.Command)
	assert.Equal(t, "r-1", receipt.Header.Get(stomp.HdrReceiptID))

	q := h.srv.Intercept("conn-3", "DROP", "DROP TABLE t")

	msg := read(t, conn)
	require.Equal(t, stomp.CmdMessage, msg.Command)
	assert.Equal(t, DestBlocked, msg.Header.Get(stomp.HdrDestination))
	assert.Equal(t, "sub-0", msg.Header.Get(stomp.HdrSubscription))
	assert.Contains(t, string(msg.Body), `"queryPreview":"DROP TABLE t"`)
	assert.Contains(t, string(msg.Body), `"id":`+strconv.FormatInt(q.ID, 10))

	send(t, conn, stomp.Disconnect("bye"))
	f := read(t, conn)
	assert.Equal(t, stomp.CmdReceipt, f.Command)
	assert.Equal(t, "bye", f.Header.Get(stomp.HdrReceiptID))
	require.Eventually(t, func() bool { return h.srv.Broker().ClientCount() == 0 }, waitFor, tick)
}

func TestBrokerSkipsUnsubscribedDestinations(t *testing.T) {
	h := newHarness(t)
	conn := dialBroker(t, h)
	send(t, conn, stomp.Connect("localhost", adminToken(t, h)))
	read(t, conn)

	send(t, conn, stomp.Subscribe("sub-4", DestMetrics))
	send(t, conn, stomp.Subscribe("sub-0", DestBlocked))
	send(t, conn, stomp.New(stomp.CmdUnsubscribe, stomp.HdrID, "sub-0"))
	require.Eventually(t, func() bool {
		return h.srv.Broker().Subscribers(DestMetrics) == 1 && h.srv.Broker().Subscribers(DestBlocked) == 0
	}, waitFor, tick)

	h.srv.Intercept("conn-1", "DROP", "DROP TABLE t")
	f := read(t, conn)
	assert.Equal(t, DestMetrics, f.Header.Get(stomp.HdrDestination))
	assert.Contains(t, string(f.Body), `"blockedQueries":1`)
}

func TestGeneratorTick(t *testing.T) {
	h := newHarness(t)
	g := NewGenerator(h.srv, time.Second, time.Hour, nil)

	g.Tick()
	g.Tick()

	pending := h.srv.Store().Pending()
	require.Len(t, pending, 2)
	for _, q := range pending {
		assert.Equal(t, model.StatusPending, q.Status)
		assert.True(t, strings.HasPrefix(q.QueryPreview, q.QueryType), "type %q for %q", q.QueryType, q.QueryPreview)
		assert.True(t, q.RequiresPeerApproval)
	}
}

func TestStatementType(t *testing.T) {
	assert.Equal(t, "DROP", statementType("  drop table x"))
	assert.Equal(t, "TRUNCATE", statementType("TRUNCATE"))
}
