package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveAPI("list", 20*time.Millisecond, nil)
	m.ObserveAPI("list", 10*time.Millisecond, errors.New("down"))
	m.StaleRefresh()
	m.RejectedRecords(2)
	m.RejectedRecords(0)
	m.Mutation("mark_paid", errors.New("no responsible"), true)
	m.Mutation("claim", nil, false)
	m.ActivitySynced(nil)
	m.RateLimited()
	m.SuspiciousRequest()

	body := scrape(t, m)
	assert.Contains(t, body, `walletwise_api_requests_total{endpoint="list",outcome="ok"} 1`)
	assert.Contains(t, body, `walletwise_api_requests_total{endpoint="list",outcome="error"} 1`)
	assert.Contains(t, body, `walletwise_api_request_duration_seconds_count{endpoint="list"} 2`)
	assert.Contains(t, body, `walletwise_board_stale_refreshes_total 1`)
	assert.Contains(t, body, `walletwise_api_records_rejected_total 2`)
	assert.Contains(t, body, `walletwise_bill_mutations_total{action="mark_paid",outcome="rejected"} 1`)
	assert.Contains(t, body, `walletwise_bill_mutations_total{action="claim",outcome="ok"} 1`)
	assert.Contains(t, body, `walletwise_activity_sync_total{outcome="ok"} 1`)
	assert.Contains(t, body, `walletwise_rate_limited_requests_total 1`)
	assert.Contains(t, body, `walletwise_suspicious_requests_total 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAPI("list", time.Second, nil)
	m.StaleRefresh()
	m.RejectedRecords(1)
	m.Mutation("claim", nil, false)
	m.HTTPRequest(http.MethodGet, 200)
	m.ActivitySynced(nil)
	m.RateLimited()
	m.SuspiciousRequest()
}

func TestHandlerExposesHTTPRequests(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodGet, 200)
	assert.Contains(t, scrape(t, m), `walletwise_http_requests_total{code="200",method="GET"} 1`)
}
