// Package performance provides lightweight operation timing for the flow
// engine, with per-tenant markers and aggregate statistics.
package performance

import (
	"fmt"
	"sync"
	"time"
)

// Marker represents a single timed operation.
type Marker struct {
	Operation string        `json:"operation"` // e.g. "engine:execute", "storage:save"
	TenantID  string        `json:"tenantId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Completed bool          `json:"completed"`
}

// Complete marks the operation as finished.
func (m *Marker) Complete() {
	if m.Completed {
		return
	}
	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true
}

// SetSuccess marks the operation outcome.
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError records an error and marks the operation failed.
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// OperationStats aggregates completed markers per operation name.
type OperationStats struct {
	Count         int           `json:"count"`
	Failures      int           `json:"failures"`
	TotalDuration time.Duration `json:"totalDuration"`
	MaxDuration   time.Duration `json:"maxDuration"`
}

// Tracker collects markers and aggregates operation statistics.
type Tracker struct {
	stats      map[string]*OperationStats
	maxMarkers int
	recent     []*Marker
	mu         sync.Mutex
	started    time.Time
}

// NewTracker creates a tracker retaining up to maxMarkers recent markers.
func NewTracker(maxMarkers int) *Tracker {
	if maxMarkers <= 0 {
		maxMarkers = 1000
	}
	return &Tracker{
		stats:      make(map[string]*OperationStats),
		maxMarkers: maxMarkers,
		started:    time.Now().UTC(),
	}
}

// StartMarker begins timing an operation for a tenant.
func (t *Tracker) StartMarker(operation, tenantID string) *Marker {
	return &Marker{
		Operation: operation,
		TenantID:  tenantID,
		StartTime: time.Now(),
		Success:   true,
	}
}

// Record completes a marker (if needed) and folds it into the aggregates.
func (t *Tracker) Record(m *Marker) {
	if m == nil {
		return
	}
	m.Complete()

	t.mu.Lock()
	defer t.mu.Unlock()

	stats, ok := t.stats[m.Operation]
	if !ok {
		stats = &OperationStats{}
		t.stats[m.Operation] = stats
	}
	stats.Count++
	if !m.Success {
		stats.Failures++
	}
	stats.TotalDuration += m.Duration
	if m.Duration > stats.MaxDuration {
		stats.MaxDuration = m.Duration
	}

	t.recent = append(t.recent, m)
	if len(t.recent) > t.maxMarkers {
		t.recent = t.recent[len(t.recent)-t.maxMarkers:]
	}
}

// Stats returns a copy of the aggregated per-operation statistics.
func (t *Tracker) Stats() map[string]OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]OperationStats, len(t.stats))
	for op, s := range t.stats {
		out[op] = *s
	}
	return out
}

// Summary returns a human-readable snapshot for the ops endpoints.
func (t *Tracker) Summary() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := make(map[string]any, len(t.stats)+1)
	summary["uptime"] = time.Since(t.started).String()
	for op, s := range t.stats {
		avg := time.Duration(0)
		if s.Count > 0 {
			avg = s.TotalDuration / time.Duration(s.Count)
		}
		summary[op] = fmt.Sprintf("count=%d failures=%d avg=%s max=%s",
			s.Count, s.Failures, avg, s.MaxDuration)
	}
	return summary
}
