package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAreIndependentPerInstance(t *testing.T) {
	a := New("console")
	b := New("console")

	a.ConnectAttempt()
	a.ConnectAttempt()
	b.ConnectAttempt()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.connectAttempts))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.connectAttempts))
}

func TestLabelledCounters(t *testing.T) {
	m := New("console")
	m.DecodeError("query-blocked")
	m.DecodeError("query-blocked")
	m.HandlerFailure("query:vote")
	m.SetPhase(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.decodeErrors.WithLabelValues("query-blocked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("query:vote")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.phase))
}

func TestHandlerServesExposition(t *testing.T) {
	m := New("console")
	m.Request(http.MethodGet, "/api/metrics", 200, time.Now())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `console_api_requests_total{method="GET",route="/api/metrics",status="200"} 1`))
}

func TestValueSumsSeries(t *testing.T) {
	m := New("console")
	m.DecodeError("vote-cast")
	m.DecodeError("audit-log")
	m.DecodeError("audit-log")

	assert.Equal(t, 3.0, m.Value("console_push_decode_errors_total"))
	assert.Equal(t, 0.0, m.Value("console_nothing_here"))
}
