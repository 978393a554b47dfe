// Package monitoring counts analysis outcomes and raises webhook alerts when
// failure or block rates cross configured thresholds.
package monitoring

import (
	"sync"
	"time"
)

// MetricsSnapshot holds a point-in-time view of analysis activity.
type MetricsSnapshot struct {
	AnalysesStarted   int64   `json:"analyses_started"`
	AnalysesCompleted int64   `json:"analyses_completed"`
	AnalysesFailed    int64   `json:"analyses_failed"`
	DedupJoins        int64   `json:"dedup_joins"`
	HighPriority      int64   `json:"high_priority"`
	FailRate          float64 `json:"fail_rate"`
	AvgScore          float64 `json:"avg_score"`
	ModelCostUSD      float64 `json:"model_cost_usd"`

	// Retries by stage ("scraping", "parsing").
	Retries map[string]int64 `json:"retries"`
	// Failures by orchestration kind ("upstream_failure", "timeout", ...).
	Failures map[string]int64 `json:"failures"`
	// Causes by stage-level kind ("blocked", "not_found", "low_confidence", ...).
	Causes map[string]int64 `json:"causes"`

	// Window covered by the snapshot.
	Since       time.Time `json:"since"`
	CollectedAt time.Time `json:"collected_at"`

	scoreSum float64
}

// Stats accumulates analysis counters. It is safe for concurrent use.
type Stats struct {
	mu   sync.Mutex
	snap MetricsSnapshot
	now  func() time.Time
}

// NewStats creates an empty collector.
func NewStats() *Stats {
	s := &Stats{now: time.Now}
	s.snap = emptySnapshot(s.now().UTC())
	return s
}

func emptySnapshot(since time.Time) MetricsSnapshot {
	return MetricsSnapshot{
		Retries:  map[string]int64{},
		Failures: map[string]int64{},
		Causes:   map[string]int64{},
		Since:    since,
	}
}

// AnalysisStarted records a new pipeline run.
func (s *Stats) AnalysisStarted() {
	s.mu.Lock()
	s.snap.AnalysesStarted++
	s.mu.Unlock()
}

// DedupJoined records a caller that joined an in-flight run.
func (s *Stats) DedupJoined() {
	s.mu.Lock()
	s.snap.DedupJoins++
	s.mu.Unlock()
}

// Retried records a retry of stage.
func (s *Stats) Retried(stage string) {
	s.mu.Lock()
	s.snap.Retries[stage]++
	s.mu.Unlock()
}

// Completed records a successful run and its score.
func (s *Stats) Completed(score float64, highPriority bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AnalysesCompleted++
	s.snap.scoreSum += score
	if highPriority {
		s.snap.HighPriority++
	}
}

// Failed records a failed run. cause is the stage-level kind, if any.
func (s *Stats) Failed(kind, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.AnalysesFailed++
	s.snap.Failures[kind]++
	if cause != "" {
		s.snap.Causes[cause]++
	}
}

// AddCost records model spend in USD.
func (s *Stats) AddCost(usd float64) {
	if usd <= 0 {
		return
	}
	s.mu.Lock()
	s.snap.ModelCostUSD += usd
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters with derived rates filled in.
func (s *Stats) Snapshot() *MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.snap
	out.Retries = copyCounts(s.snap.Retries)
	out.Failures = copyCounts(s.snap.Failures)
	out.Causes = copyCounts(s.snap.Causes)
	out.CollectedAt = s.now().UTC()
	out.derive()
	return &out
}

// Sub returns the activity between prev and m. A nil prev returns m.
func (m *MetricsSnapshot) Sub(prev *MetricsSnapshot) *MetricsSnapshot {
	if prev == nil {
		return m
	}
	out := *m
	out.AnalysesStarted -= prev.AnalysesStarted
	out.AnalysesCompleted -= prev.AnalysesCompleted
	out.AnalysesFailed -= prev.AnalysesFailed
	out.DedupJoins -= prev.DedupJoins
	out.HighPriority -= prev.HighPriority
	out.ModelCostUSD -= prev.ModelCostUSD
	out.scoreSum -= prev.scoreSum
	out.Retries = subCounts(m.Retries, prev.Retries)
	out.Failures = subCounts(m.Failures, prev.Failures)
	out.Causes = subCounts(m.Causes, prev.Causes)
	out.Since = prev.CollectedAt
	out.derive()
	return &out
}

// Finished is the number of runs that reached a terminal state.
func (m *MetricsSnapshot) Finished() int64 {
	return m.AnalysesCompleted + m.AnalysesFailed
}

func (m *MetricsSnapshot) derive() {
	m.FailRate, m.AvgScore = 0, 0
	if finished := m.Finished(); finished > 0 {
		m.FailRate = float64(m.AnalysesFailed) / float64(finished)
	}
	if m.AnalysesCompleted > 0 {
		m.AvgScore = m.scoreSum / float64(m.AnalysesCompleted)
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func subCounts(cur, prev map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(cur))
	for k, v := range cur {
		if d := v - prev[k]; d != 0 {
			out[k] = d
		}
	}
	return out
}
