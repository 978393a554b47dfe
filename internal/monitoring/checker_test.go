package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/sells-group/listing-intel/internal/config"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, FailureRateThreshold: 0.10}
	checker := NewChecker(NewStats(), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_DefaultInterval(t *testing.T) {
	checker := NewChecker(NewStats(), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})
	assert.NotNil(t, checker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckUsesWindowSincePrevious(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cfg := config.MonitoringConfig{WebhookURL: ts.URL, BlockedThreshold: 3}
	stats := NewStats()
	checker := NewChecker(stats, NewAlerter(cfg), cfg)
	checker.prev = stats.Snapshot()

	for i := 0; i < 3; i++ {
		stats.Failed("upstream_failure", "blocked")
	}
	assert.Equal(t, 1, checker.check(context.Background(), zap.NewNop()))

	// Same cumulative counts, empty window: nothing new to report.
	assert.Equal(t, 0, checker.check(context.Background(), zap.NewNop()))
	assert.Equal(t, int32(1), received.Load())
}
