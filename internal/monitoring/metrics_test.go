package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.RecordSend("login", SendResultSent)
	m.RecordSend("login", SendResultSent)
	m.RecordSend("login", SendResultRateLimited)
	m.RecordVerify("login", VerifyResultInvalid)
	m.RecordExpired(3)
	m.RecordExpired(0)
	m.RecordProviderRequest("smsbao", "success", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodesSent.WithLabelValues("login", SendResultSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodesSent.WithLabelValues("login", SendResultRateLimited)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodesVerified.WithLabelValues("login", VerifyResultInvalid)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CodesExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderRequests.WithLabelValues("smsbao", "success")))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// 多个实例互不冲突
	a := NewMetrics()
	b := NewMetrics()

	a.RecordPanic()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.PanicsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PanicsTotal))
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSend("login", SendResultSent)
		m.RecordVerify("login", VerifyResultSuccess)
		m.RecordExpired(1)
		m.RecordProviderRequest("log", "success", time.Millisecond)
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		m.RecordPanic()
		m.RecordRateLimitBlock("ip")
	})
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordSend("register", SendResultSimulated)

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `smscode_codes_sent_total{purpose="register",result="simulated"} 1`)
}
