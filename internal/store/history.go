package store

import (
	"sync"
	"time"
)

// DefaultRetention is the span kept by in-memory histories: three weeks.
const DefaultRetention = 504 * time.Hour

// FlowHistory keeps the flow samples of one meter within a retention window relative to
// the newest sample. Safe for one writer and concurrent readers.
type FlowHistory struct {
	mu        sync.RWMutex
	retention time.Duration
	samples   []FlowSample
}

// NewFlowHistory returns an empty history. A non-positive retention uses DefaultRetention.
func NewFlowHistory(retention time.Duration) *FlowHistory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &FlowHistory{retention: retention}
}

// Append adds a sample and drops everything older than its time minus the retention.
func (h *FlowHistory) Append(s FlowSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, s)
	h.samples = pruneBefore(h.samples, s.Time.Add(-h.retention), func(x FlowSample) time.Time { return x.Time })
}

// Samples returns a copy of the history, oldest first.
func (h *FlowHistory) Samples() []FlowSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]FlowSample, len(h.samples))
	copy(out, h.samples)
	return out
}

// Latest returns the newest sample.
func (h *FlowHistory) Latest() (FlowSample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.samples) == 0 {
		return FlowSample{}, false
	}
	return h.samples[len(h.samples)-1], true
}

// Len returns the number of retained samples.
func (h *FlowHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.samples)
}

// NutritionHistory records dosing pump transitions. Only changes are stored, plus the
// first observed state.
type NutritionHistory struct {
	mu        sync.RWMutex
	retention time.Duration
	samples   []NutritionSample
	seen      bool
	last      bool
}

// NewNutritionHistory returns an empty history. A non-positive retention uses
// DefaultRetention.
func NewNutritionHistory(retention time.Duration) *NutritionHistory {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &NutritionHistory{retention: retention}
}

// Observe records the pump state at t when it differs from the previous observation.
// It returns the stored sample and true when a sample was recorded.
func (h *NutritionHistory) Observe(t time.Time, active bool) (NutritionSample, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seen && h.last == active {
		return NutritionSample{}, false
	}
	h.seen = true
	h.last = active
	s := NutritionSample{Time: t, Active: active}
	h.samples = append(h.samples, s)
	h.samples = pruneBefore(h.samples, t.Add(-h.retention), func(x NutritionSample) time.Time { return x.Time })
	return s, true
}

// Samples returns a copy of the history, oldest first.
func (h *NutritionHistory) Samples() []NutritionSample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]NutritionSample, len(h.samples))
	copy(out, h.samples)
	return out
}

// pruneBefore drops the leading samples older than cutoff. Samples are appended in time
// order so the retained part is a suffix.
func pruneBefore[T any](s []T, cutoff time.Time, at func(T) time.Time) []T {
	i := 0
	for i < len(s) && at(s[i]).Before(cutoff) {
		i++
	}
	if i == 0 {
		return s
	}
	return append(s[:0:0], s[i:]...)
}
