// File: internal/registry/metrics.go
package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sample is one recorded action invocation.
type Sample struct {
	ActionID string
	Duration time.Duration
	Success  bool
	Error    string
	At       time.Time
}

// Recorder is the metrics sink compiled tools report into.
type Recorder interface {
	Record(s Sample)
}

// ActionStats is an aggregate view over the retained samples of one action.
type ActionStats struct {
	Calls       int           `json:"calls"`
	Failures    int           `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastError   string        `json:"last_error,omitempty"`
}

// PerfRecorder retains the last hour of samples per action and can summarize
// them for operator introspection.
type PerfRecorder struct {
	mu        sync.Mutex
	samples   map[string][]Sample
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewPerfRecorder creates a recorder with a one-hour retention window.
func NewPerfRecorder(logger *zap.Logger) *PerfRecorder {
	return &PerfRecorder{
		samples:   make(map[string][]Sample),
		retention: time.Hour,
		logger:    logger.Named("action_metrics"),
		now:       time.Now,
	}
}

// Record appends a sample and drops anything older than the retention window
// for that action.
func (r *PerfRecorder) Record(s Sample) {
	if s.At.IsZero() {
		s.At = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.samples[s.ActionID][:0]
	cutoff := r.now().Add(-r.retention)
	for _, old := range r.samples[s.ActionID] {
		if old.At.After(cutoff) {
			kept = append(kept, old)
		}
	}
	r.samples[s.ActionID] = append(kept, s)
}

// Snapshot summarizes the retained samples per action id.
func (r *PerfRecorder) Snapshot() map[string]ActionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.retention)
	out := make(map[string]ActionStats, len(r.samples))
	for id, samples := range r.samples {
		var stats ActionStats
		var total time.Duration
		for _, s := range samples {
			if !s.At.After(cutoff) {
				continue
			}
			stats.Calls++
			total += s.Duration
			if !s.Success {
				stats.Failures++
				stats.LastError = s.Error
			}
		}
		if stats.Calls > 0 {
			stats.AvgDuration = total / time.Duration(stats.Calls)
			out[id] = stats
		}
	}
	return out
}
