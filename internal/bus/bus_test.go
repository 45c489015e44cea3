package bus

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gautamrajesh007/Interceptor/internal/event"
	"github.com/gautamrajesh007/Interceptor/internal/metrics"
)

func record(calls *[]string, name string) Handler {
	return func(event.Event) error {
		*calls = append(*calls, name)
		return nil
	}
}

func TestPublishRunsHandlersInRegistrationOrder(t *testing.T) {
	b := New(nil, nil)
	var calls []string
	for i := 0; i < 5; i++ {
		b.Subscribe(event.KindVoteCast, record(&calls, fmt.Sprintf("h%d", i)))
	}

	b.Publish(event.VoteCast{QueryID: 1})
	b.Publish(event.VoteCast{QueryID: 2})

	assert.Equal(t, []string{"h0", "h1", "h2", "h3", "h4", "h0", "h1", "h2", "h3", "h4"}, calls)
}

func TestFailingHandlerDoesNotStopLaterOnes(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	m := metrics.New("test")
	b := New(zap.New(core), m)

	var calls []string
	b.Subscribe(event.KindQueryBlocked, record(&calls, "first"))
	b.Subscribe(event.KindQueryBlocked, func(event.Event) error { panic("boom") })
	b.Subscribe(event.KindQueryBlocked, record(&calls, "third"))
	b.Subscribe(event.KindQueryBlocked, func(event.Event) error { return errors.New("nope") })
	b.Subscribe(event.KindQueryBlocked, record(&calls, "fifth"))

	require.NotPanics(t, func() { b.Publish(event.QueryBlocked{QueryID: 7}) })

	assert.Equal(t, []string{"first", "third", "fifth"}, calls)
	assert.Equal(t, 2, logs.FilterMessage("event handler failed").Len())
	assert.Equal(t, 2.0, m.Value("test_bus_handler_failures_total"))
}

func TestDuplicateRegistrationsBothFire(t *testing.T) {
	b := New(nil, nil)
	n := 0
	h := func(event.Event) error { n++; return nil }
	b.Subscribe(event.KindAuditLogged, h)
	b.Subscribe(event.KindAuditLogged, h)

	b.Publish(event.AuditLogged{Action: "login"})
	assert.Equal(t, 2, n)
}

func TestUnsubscribeByHandle(t *testing.T) {
	b := New(nil, nil)
	var calls []string
	first := b.Subscribe(event.KindConnected, record(&calls, "first"))
	b.Subscribe(event.KindConnected, record(&calls, "second"))

	first.Unsubscribe()
	first.Unsubscribe()
	b.Unsubscribe(nil)

	b.Publish(event.Connected{})
	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, b.Len(event.KindConnected))
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	b := New(nil, nil)
	b.Publish(event.SessionExpired{})

	fired := false
	b.Subscribe(event.KindSessionExpired, func(event.Event) error { fired = true; return nil })
	assert.False(t, fired)
}

func TestSubscribeDuringPublishTakesEffectNextTime(t *testing.T) {
	b := New(nil, nil)
	var calls []string
	var late *Subscription
	b.Subscribe(event.KindNotice, func(event.Event) error {
		calls = append(calls, "outer")
		if late == nil {
			late = b.Subscribe(event.KindNotice, record(&calls, "late"))
		}
		return nil
	})

	b.Publish(event.Notice{})
	assert.Equal(t, []string{"outer"}, calls)

	b.Publish(event.Notice{})
	assert.Equal(t, []string{"outer", "outer", "late"}, calls)
}

func TestOnDeliversTypedEvents(t *testing.T) {
	b := New(nil, nil)
	var got event.ApprovalDecision
	sub := On(b, func(ev event.ApprovalDecision) { got = ev })

	b.Publish(event.ApprovalDecision{QueryID: 42, ResolvedBy: "alice"})
	assert.Equal(t, int64(42), got.QueryID)
	assert.Equal(t, event.KindApprovalDecision, sub.Kind())
}

func TestKindsAreIsolated(t *testing.T) {
	b := New(nil, nil)
	fired := false
	b.Subscribe(event.KindMetricsUpdated, func(event.Event) error { fired = true; return nil })

	b.Publish(event.QueryBlocked{})
	assert.False(t, fired)
}
