package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewCollector(config.MetricsConfig{Namespace: "test"}, prometheus.NewRegistry())
}

func TestRecordCheck(t *testing.T) {
	c := newTestCollector()

	result := compliance.Result{
		Violations: []compliance.Violation{
			{Type: compliance.TypeFinancial},
			{Type: compliance.TypeUnrealisticGuarantee},
			{Type: compliance.TypeFinancial},
		},
		RiskLevel: compliance.RiskHigh,
	}
	c.RecordCheck("api", "twitter", result, 2*time.Millisecond)
	c.RecordCheck("api", "twitter", compliance.Result{IsCompliant: true, RiskLevel: compliance.RiskLow}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.checksTotal.WithLabelValues("twitter", "High")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checksTotal.WithLabelValues("twitter", "Low")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.violationsTotal.WithLabelValues("Financial Violation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.violationsTotal.WithLabelValues("Unrealistic Guarantee")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.checkDuration))
}

func TestCacheAndPersistCounters(t *testing.T) {
	c := newTestCollector()

	c.RecordCacheLookup(CacheHit)
	c.RecordCacheLookup(CacheMiss)
	c.RecordCacheLookup(CacheMiss)
	c.RecordPersistFailure()
	c.SetWebSocketClients(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues(CacheHit)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheRequests.WithLabelValues(CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.persistFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.wsClients))
}

func TestHandler(t *testing.T) {
	c := newTestCollector()
	c.RecordCheck("batch", "facebook", compliance.Result{IsCompliant: true, RiskLevel: compliance.RiskLow}, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_checks_total{platform="facebook",risk="Low"} 1`), body)
	assert.Contains(t, body, "test_check_duration_seconds")
}

func TestNewCollectorDefaultRegistry(t *testing.T) {
	c := NewCollector(config.MetricsConfig{}, nil)
	require.NotNil(t, c.Registry())

	families, err := c.Registry().Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
	assert.Contains(t, names, "sentinel_persist_failures_total")
}
