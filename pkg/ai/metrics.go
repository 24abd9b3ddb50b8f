package ai

import (
	"math"
	"sync"
)

// ModelMetrics contains performance metrics from AI model operations.
type ModelMetrics struct {
	InputTokens    int     `json:"input_tokens"`
	OutputTokens   int     `json:"output_tokens"`
	TotalTokens    int     `json:"total_tokens"`
	DurationMs     int64   `json:"duration_ms"`
	Requests       int     `json:"requests"`
	TokenPerSecond float32 `json:"tokens_per_second"`
}

// MetricsTracker accumulates ModelMetrics across requests. The zero value is
// ready to use and safe for concurrent use.
type MetricsTracker struct {
	mu      sync.Mutex
	metrics ModelMetrics
}

// Add folds one request's metrics into the running totals.
func (t *MetricsTracker) Add(m ModelMetrics) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.metrics.InputTokens += m.InputTokens
	t.metrics.OutputTokens += m.OutputTokens
	t.metrics.TotalTokens += m.TotalTokens
	t.metrics.DurationMs += m.DurationMs
	t.metrics.Requests++

	if t.metrics.DurationMs > 0 {
		tokensPerSecond := (float64(t.metrics.TotalTokens) * 1000.0) / float64(t.metrics.DurationMs)
		t.metrics.TokenPerSecond = float32(math.Round(tokensPerSecond*100) / 100)
	}
}

// Reset clears all accumulated metrics.
func (t *MetricsTracker) Reset() {
	t.mu.Lock()
	t.metrics = ModelMetrics{}
	t.mu.Unlock()
}

// Snapshot returns a copy of the accumulated metrics.
func (t *MetricsTracker) Snapshot() ModelMetrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.metrics
}
