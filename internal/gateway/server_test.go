package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-intel/internal/config"
	"github.com/sells-group/listing-intel/internal/intel"
	"github.com/sells-group/listing-intel/internal/model"
	"github.com/sells-group/listing-intel/internal/monitoring"
	"github.com/sells-group/listing-intel/internal/parser"
	"github.com/sells-group/listing-intel/internal/scrape"
)

const listingURL = "https://portal.example/listing/42"

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls []string
	errs  map[string]error
	stats *monitoring.Stats
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{errs: map[string]error{}, stats: monitoring.NewStats()}
}

func (f *fakeAnalyzer) AnalyzeLeadFromURL(_ context.Context, url string) (*model.LeadOpportunity, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	err := f.errs[url]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &model.LeadOpportunity{
		ExtractedLead:  model.ExtractedLead{SourceURL: url, Title: "2BR Apartment", Price: 250000, Location: "Lisbon"},
		MarketScore:    78.75,
		Recommendation: "High-potential opportunity: contact the seller immediately.",
		IsHighPriority: true,
	}, nil
}

func (f *fakeAnalyzer) InFlight() []intel.InFlightInfo {
	return []intel.InFlightInfo{{URL: listingURL, Stage: model.StageParsing, Waiters: 2}}
}

func (f *fakeAnalyzer) Stats() *monitoring.Stats { return f.stats }

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestAnalyze_Success(t *testing.T) {
	a := newFakeAnalyzer()
	h := NewRouter(a, Options{})

	rec, out := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze", `{"url":"`+listingURL+`"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	data := out["data"].(map[string]any)
	assert.Equal(t, 78.75, data["marketScore"])
	assert.Equal(t, true, data["isHighPriority"])
	lead := data["extractedLead"].(map[string]any)
	assert.Contains(t, lead, "bedrooms")
	assert.Nil(t, lead["bedrooms"])
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Equal(t, []string{listingURL}, a.calls)
}

func TestAnalyze_ErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
		cause  string
	}{
		{"invalid url", &intel.Error{Kind: intel.KindInvalidURL, Stage: model.StageIdle, Cause: errors.New("url: unsupported scheme")}, http.StatusBadRequest, "invalid_url", ""},
		{"upstream", &intel.Error{Kind: intel.KindUpstreamFailure, Stage: model.StageScraping, Cause: &scrape.Error{Kind: scrape.KindNotFound, StatusCode: 404}}, http.StatusBadGateway, "upstream_failure", "not_found"},
		{"parse upstream", &intel.Error{Kind: intel.KindUpstreamFailure, Stage: model.StageParsing, Cause: &parser.Error{Kind: parser.KindLowConfidence}}, http.StatusBadGateway, "upstream_failure", "low_confidence"},
		{"timeout", &intel.Error{Kind: intel.KindTimeout, Stage: model.StageParsing, Cause: context.DeadlineExceeded}, http.StatusGatewayTimeout, "timeout", ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newFakeAnalyzer()
			a.errs[listingURL] = tt.err

			rec, out := do(t, NewRouter(a, Options{}), http.MethodPost, "/api/v1/intelligence/analyze", `{"url":"`+listingURL+`"}`)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, false, out["success"])
			body := out["error"].(map[string]any)
			assert.Equal(t, tt.kind, body["kind"])
			if tt.cause != "" {
				assert.Equal(t, tt.cause, body["cause"])
			}
			assert.NotEmpty(t, body["message"])
		})
	}
}

func TestAnalyze_BadRequests(t *testing.T) {
	a := newFakeAnalyzer()
	h := NewRouter(a, Options{})

	rec, out := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, kindInvalidRequest, out["error"].(map[string]any)["kind"])

	rec, out = do(t, h, http.MethodPost, "/api/v1/intelligence/analyze", `{"url":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_url", out["error"].(map[string]any)["kind"])

	assert.Empty(t, a.calls)
}

func TestAnalyze_RateLimited(t *testing.T) {
	a := newFakeAnalyzer()
	h := NewRouter(a, Options{RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}})

	rec, _ := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze", `{"url":"`+listingURL+`"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, out := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze", `{"url":"`+listingURL+`"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", out["error"].(map[string]any)["kind"])
	assert.Len(t, a.calls, 1)

	// Read-only routes are not limited.
	rec, _ = do(t, h, http.MethodGet, "/api/v1/intelligence/inflight", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAnalyze_RateLimitedPerClient(t *testing.T) {
	a := newFakeAnalyzer()
	h := NewRouter(a, Options{RateLimit: config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}})

	post := func(clientIP string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/intelligence/analyze",
			strings.NewReader(`{"url":"`+listingURL+`"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Real-IP", clientIP)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, post("203.0.113.7"))
	assert.Equal(t, http.StatusTooManyRequests, post("203.0.113.7"))
	assert.Equal(t, http.StatusOK, post("198.51.100.20"), "another client has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, post("198.51.100.20"))
}

func TestClientLimiters_EvictsIdleClients(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	l := &clientLimiters{limit: 0.001, burst: 1, clients: make(map[string]*clientBucket), lastSweep: start}

	assert.True(t, l.allow("203.0.113.7", start))
	assert.False(t, l.allow("203.0.113.7", start.Add(time.Second)))

	later := start.Add(clientIdle + time.Minute)
	assert.True(t, l.allow("198.51.100.20", later))
	assert.Len(t, l.clients, 1, "idle client dropped")
	assert.True(t, l.allow("203.0.113.7", later), "returning client starts with a full bucket")
}

func TestAnalyzeBatch(t *testing.T) {
	a := newFakeAnalyzer()
	bad := "https://portal.example/listing/404"
	a.errs[bad] = &intel.Error{Kind: intel.KindUpstreamFailure, Stage: model.StageScraping, Cause: &scrape.Error{Kind: scrape.KindNotFound}}
	h := NewRouter(a, Options{BatchConcurrency: 2})

	rec, out := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze/batch",
		`{"urls":["`+listingURL+`","`+bad+`"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	items := out["data"].([]any)
	require.Len(t, items, 2)

	first := items[0].(map[string]any)
	assert.Equal(t, listingURL, first["url"])
	assert.Equal(t, true, first["success"])
	assert.Equal(t, float64(http.StatusOK), first["status"])

	second := items[1].(map[string]any)
	assert.Equal(t, false, second["success"])
	assert.Equal(t, float64(http.StatusBadGateway), second["status"])
	assert.Equal(t, "not_found", second["error"].(map[string]any)["cause"])
}

func TestAnalyzeBatch_Limits(t *testing.T) {
	a := newFakeAnalyzer()
	h := NewRouter(a, Options{MaxBatchSize: 2})

	rec, _ := do(t, h, http.MethodPost, "/api/v1/intelligence/analyze/batch", `{"urls":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodPost, "/api/v1/intelligence/analyze/batch", `{"urls":["a","b","c"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, a.calls)
}

func TestInFlightAndStats(t *testing.T) {
	a := newFakeAnalyzer()
	a.stats.AnalysisStarted()
	a.stats.Completed(80, true)
	h := NewRouter(a, Options{})

	rec, out := do(t, h, http.MethodGet, "/api/v1/intelligence/inflight", "")
	require.Equal(t, http.StatusOK, rec.Code)
	entry := out["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "parsing", entry["stage"])
	assert.Equal(t, float64(2), entry["waiters"])

	rec, out = do(t, h, http.MethodGet, "/api/v1/intelligence/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap := out["data"].(map[string]any)
	assert.Equal(t, float64(1), snap["analyses_completed"])
	assert.Equal(t, float64(1), snap["high_priority"])
}

func TestHealth(t *testing.T) {
	rec, out := do(t, NewRouter(newFakeAnalyzer(), Options{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestRequestID_Propagated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rec := httptest.NewRecorder()
	NewRouter(newFakeAnalyzer(), Options{}).ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/intelligence/analyze", nil)
	req.Header.Set("Origin", "https://crm.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	NewRouter(newFakeAnalyzer(), Options{AllowedOrigins: []string{"https://crm.example"}}).ServeHTTP(rec, req)

	assert.Equal(t, "https://crm.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Server:    config.ServerConfig{BatchConcurrency: 3, MaxBatchSize: 10, AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 2, Burst: 4},
	}
	opts := OptionsFromConfig(cfg)
	assert.Equal(t, 3, opts.BatchConcurrency)
	assert.Equal(t, 10, opts.MaxBatchSize)
	assert.Equal(t, 2.0, opts.RateLimit.RequestsPerSecond)
}
