package mock

import (
	"sync"
	"time"
)

// RecordingStatter is used for testing. It records every stat it is sent,
// along with the tags last sent for each name. Safe for concurrent use.
type RecordingStatter struct {
	mu      sync.Mutex
	Counts  map[string]int64
	Gauges  map[string]float64
	Timings map[string][]time.Duration
	Tags    map[string][]string
}

// Count sums value into Counts.
func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
	r.tag(name, tags)
}

// Gauge keeps the latest value in Gauges.
func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Gauges == nil {
		r.Gauges = make(map[string]float64)
	}
	r.Gauges[name] = value
	r.tag(name, tags)
}

// tag records the latest tags seen for name. r.mu must be held.
func (r *RecordingStatter) tag(name string, tags []string) {
	if r.Tags == nil {
		r.Tags = make(map[string][]string)
	}
	r.Tags[name] = append([]string(nil), tags...)
}

// Histogram does nothing.
func (r *RecordingStatter) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (r *RecordingStatter) Set(name string, value string, rate float64, tags ...string) {}

// Timing appends value to Timings.
func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Timings == nil {
		r.Timings = make(map[string][]time.Duration)
	}
	r.Timings[name] = append(r.Timings[name], value)
	r.tag(name, tags)
}

// Get returns the recorded total for name.
func (r *RecordingStatter) Get(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counts[name]
}
