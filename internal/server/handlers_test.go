package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/raaihank/compliance-sentinel/internal/cache"
	"github.com/raaihank/compliance-sentinel/internal/compliance"
	"github.com/raaihank/compliance-sentinel/internal/config"
	"github.com/raaihank/compliance-sentinel/internal/metrics"
	"github.com/raaihank/compliance-sentinel/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioContent = "GUARANTEED 500% returns! Invest now!"

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]compliance.Result
}

func (c *memoryCache) Get(_ context.Context, platform, content string) (*compliance.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	result, ok := c.entries[platform+"\x00"+content]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &result, nil
}

func (c *memoryCache) Set(_ context.Context, platform, content string, result compliance.Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[platform+"\x00"+content] = result
	return nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, store.Record) error { return errors.New("disk full") }
func (failingStore) Get(context.Context, string) (*store.Record, error) {
	return nil, store.ErrNotFound
}
func (failingStore) Recent(context.Context, int, string) ([]store.Record, error) {
	return nil, errors.New("disk full")
}
func (failingStore) Summary(context.Context) (*store.Summary, error) {
	return nil, errors.New("disk full")
}

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config, deps Dependencies) *Server {
	t.Helper()
	engine, err := compliance.New(cfg.Engine, nil)
	require.NoError(t, err)
	deps.Engine = engine
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(cfg.Metrics, prometheus.NewRegistry())
	}

	srv, err := New(cfg, nil, deps)
	require.NoError(t, err)
	return srv
}

func openStore(t *testing.T) *store.SQLStore {
	t.Helper()
	s, err := store.Open(context.Background(), config.StoreConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "checks.db"),
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndInfo(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{Store: openStore(t), Version: "1.2.3"})

	rec := do(t, srv.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "ok", health["store"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, srv.Handler(), http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[map[string]any](t, rec)
	assert.Equal(t, "1.2.3", info["version"])
	assert.Equal(t, compliance.RulesVersion, info["rules_version"])
	assert.Equal(t, true, info["store_enabled"])
	assert.Equal(t, false, info["cache_enabled"])
}

func TestCheckPersistsAndReturnsRecord(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{Store: openStore(t)})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{
		Content:  scenarioContent,
		Platform: "twitter",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[CheckResponse](t, rec)
	assert.True(t, strings.HasPrefix(resp.PostID, "post_"))
	assert.False(t, resp.IsCompliant)
	assert.Equal(t, compliance.RiskHigh, resp.RiskLevel)
	assert.Len(t, resp.Violations, 3)
	assert.True(t, resp.Persisted)
	assert.False(t, resp.Cached)
	assert.Equal(t,
		`GUARANTEED 500% returns! <span class="violation-financial" title="Financial Violation">Invest now</span>!`,
		resp.Highlighted)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/v1/records/"+resp.PostID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := decode[store.Record](t, rec)
	assert.Equal(t, store.StatusNonCompliant, stored.Status)
	assert.Equal(t, "Financial Violation, Unrealistic Guarantee, Formatting Violation", stored.ViolationReason)
	assert.Equal(t, "twitter", stored.Platform)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/v1/records/post_missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckCompliantContent(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{
		Content:  "Just a normal update about our community meetup next week.",
		Platform: "facebook",
		PostID:   "post_custom",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CheckResponse](t, rec)
	assert.Equal(t, "post_custom", resp.PostID)
	assert.True(t, resp.IsCompliant)
	assert.Equal(t, compliance.RiskLow, resp.RiskLevel)
	assert.Equal(t, "Content passes all compliance checks.", resp.Summary)
	assert.False(t, resp.Persisted)
}

func TestCheckTrimsContent(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{Store: openStore(t)})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{
		Content:  "  \n this is a scam.\t ",
		Platform: "facebook",
		PostID:   "post_padded",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CheckResponse](t, rec)
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, 10, resp.Violations[0].Position)
	assert.Equal(t, "Word 4", resp.Violations[0].WordPosition)
	assert.Equal(t, `this is a <span class="violation-inappropriate" title="Inappropriate Content">scam</span>.`, resp.Highlighted)

	stored := decode[store.Record](t, do(t, srv.Handler(), http.MethodGet, "/api/v1/records/post_padded", nil))
	assert.Equal(t, "this is a scam.", stored.Content)
}

func TestCheckValidation(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxContentLength = 20
	srv := newTestServer(t, cfg, Dependencies{})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", "{not json", http.StatusBadRequest},
		{"missing content", CheckRequest{Platform: "twitter"}, http.StatusBadRequest},
		{"blank content", CheckRequest{Content: "   ", Platform: "twitter"}, http.StatusBadRequest},
		{"missing platform", CheckRequest{Content: "hello"}, http.StatusBadRequest},
		{"too long", CheckRequest{Content: strings.Repeat("a", 21), Platform: "twitter"}, http.StatusRequestEntityTooLarge},
		{"body too large", CheckRequest{Content: strings.Repeat("a", 200000), Platform: "twitter"}, http.StatusRequestEntityTooLarge},
		{"unknown platform", CheckRequest{Content: "hello", Platform: "myspace"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/check", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestCheckUsesCache(t *testing.T) {
	cfg := testConfig()
	collector := metrics.NewCollector(cfg.Metrics, prometheus.NewRegistry())
	srv := newTestServer(t, cfg, Dependencies{
		Cache:   &memoryCache{entries: make(map[string]compliance.Result)},
		Metrics: collector,
	})

	body := CheckRequest{Content: "free money for everyone", Platform: "facebook"}
	first := decode[CheckResponse](t, do(t, srv.Handler(), http.MethodPost, "/api/v1/check", body))
	second := decode[CheckResponse](t, do(t, srv.Handler(), http.MethodPost, "/api/v1/check", body))

	assert.False(t, first.Cached)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Result, second.Result)

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sentinel_cache_requests_total{result="hit"} 1`)
	assert.Contains(t, rec.Body.String(), `sentinel_cache_requests_total{result="miss"} 1`)
	assert.Contains(t, rec.Body.String(), `sentinel_checks_total{platform="facebook",risk="Medium"} 2`)
}

func TestCheckSurvivesPersistFailure(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{Store: failingStore{}})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{Content: "this is a scam.", Platform: "facebook"})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[CheckResponse](t, rec)
	assert.False(t, resp.Persisted)
	assert.False(t, resp.IsCompliant)

	rec = do(t, srv.Handler(), http.MethodGet, "/metrics", nil)
	assert.Contains(t, rec.Body.String(), "sentinel_persist_failures_total 1")

	rec = do(t, srv.Handler(), http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerMinute = 60
	cfg.RateLimit.Burst = 2
	srv := newTestServer(t, cfg, Dependencies{})

	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/v1/platforms", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/api/v1/platforms", nil).Code)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/platforms", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// health checks are not rate limited
	assert.Equal(t, http.StatusOK, do(t, srv.Handler(), http.MethodGet, "/health", nil).Code)
}

func TestPlatformsAndRules(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	platforms := decode[map[string][]compliance.PlatformProfile](t, do(t, srv.Handler(), http.MethodGet, "/api/v1/platforms", nil))
	require.Len(t, platforms["platforms"], 7)
	assert.Equal(t, "ad-campaign", platforms["platforms"][0].ID)

	rules := decode[map[string]json.RawMessage](t, do(t, srv.Handler(), http.MethodGet, "/api/v1/rules", nil))
	var patterns []patternInfo
	require.NoError(t, json.Unmarshal(rules["patterns"], &patterns))
	assert.Len(t, patterns, 7)
	assert.Equal(t, compliance.TypeUnrealisticGuarantee, patterns[0].Type)

	var types []string
	require.NoError(t, json.Unmarshal(rules["types"], &types))
	assert.Contains(t, types, "Potential Subscription Trap")
}

func TestHighlightEndpoint(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/v1/highlight", HighlightRequest{
		Content:  "this is a scam.",
		Platform: "facebook",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]json.RawMessage](t, rec)
	var highlighted string
	require.NoError(t, json.Unmarshal(body["highlighted"], &highlighted))
	assert.Equal(t, `this is a <span class="violation-inappropriate" title="Inappropriate Content">scam</span>.`, highlighted)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/v1/highlight", HighlightRequest{
		Content: "<b>buy</b>",
		Violations: []compliance.Violation{
			{Phrase: "buy", Type: compliance.TypeAggressiveSales, Position: 3, OriginalPhrase: "buy"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]json.RawMessage](t, rec)
	require.NoError(t, json.Unmarshal(body["highlighted"], &highlighted))
	assert.Equal(t, `&lt;b&gt;<span class="violation-sales" title="Aggressive Sales">buy</span>&lt;/b&gt;`, highlighted)

	rec = do(t, srv.Handler(), http.MethodPost, "/api/v1/highlight", HighlightRequest{Content: "no platform"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordsListingStatsAndExport(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{Store: openStore(t)})
	h := srv.Handler()

	for _, body := range []CheckRequest{
		{Content: "hello world", Platform: "facebook"},
		{Content: "this is a scam.", Platform: "twitter"},
		{Content: scenarioContent, Platform: "twitter"},
	} {
		require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/v1/check", body).Code)
	}

	listing := decode[struct {
		Records []store.Record `json:"records"`
		Count   int            `json:"count"`
	}](t, do(t, h, http.MethodGet, "/api/v1/records?platform=twitter&limit=10", nil))
	assert.Equal(t, 2, listing.Count)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/records?limit=abc", nil).Code)

	stats := decode[struct {
		Records store.Summary `json:"records"`
	}](t, do(t, h, http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, 3, stats.Records.Total)
	assert.Equal(t, 1, stats.Records.Compliant)
	assert.Equal(t, 2, stats.Records.ByViolation["Inappropriate Content"]+stats.Records.ByViolation["Financial Violation"])

	rec := do(t, h, http.MethodGet, "/api/v1/records/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "post_id", rows[0][0])

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/records/export?format=xml", nil).Code)
}

func TestRecordsRequireStore(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv.Handler(), http.MethodGet, "/api/v1/records", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv.Handler(), http.MethodGet, "/api/v1/records/post_1", nil).Code)

	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode[map[string]any](t, rec), "records")
}

func TestSystemStatusCounters(t *testing.T) {
	srv := newTestServer(t, testConfig(), Dependencies{})

	do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{Content: "this is a scam.", Platform: "facebook"})
	do(t, srv.Handler(), http.MethodPost, "/api/v1/check", CheckRequest{Content: "hello", Platform: "facebook"})

	status := srv.SystemStatus()
	assert.Equal(t, int64(2), status.TotalChecks)
	assert.Equal(t, int64(1), status.NonCompliant)
	assert.Equal(t, compliance.RulesVersion, status.RulesVersion)
	assert.Positive(t, status.ActiveRules)
}

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(testConfig(), nil, Dependencies{})
	assert.Error(t, err)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	assert.Equal(t, "198.51.100.4", getClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "192.0.2.10, 10.0.0.1")
	assert.Equal(t, "192.0.2.10", getClientIP(r))
}
