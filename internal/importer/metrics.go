package importer

import (
	"sync"
	"time"
)

// Timings tracks stage durations and store-call counters for one session.
// Safe for concurrent use; all methods tolerate a nil receiver so callers
// can pass nil to disable collection.
type Timings struct {
	mu sync.Mutex

	ParseTotal    time.Duration
	ValidateTotal time.Duration
	PlanTotal     time.Duration

	StoreCallTotal time.Duration
	StoreCallCount int64
	StoreAttempts  int64
	StoreRetries   int64
}

// NewTimings creates an empty Timings instance
func NewTimings() *Timings {
	return &Timings{}
}

// ObserveParse records the duration of the parse stage
func (t *Timings) ObserveParse(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ParseTotal += d
}

// ObserveValidate records the duration of the validation stage
func (t *Timings) ObserveValidate(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ValidateTotal += d
}

// ObservePlan records the duration of the reconciliation stage
func (t *Timings) ObservePlan(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.PlanTotal += d
}

// ObserveStoreCall records one store mutation or query duration
func (t *Timings) ObserveStoreCall(d time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StoreCallTotal += d
	t.StoreCallCount++
}

// IncStoreAttempt counts one HTTP attempt against the store
func (t *Timings) IncStoreAttempt() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StoreAttempts++
}

// IncStoreRetry counts one retried HTTP attempt
func (t *Timings) IncStoreRetry() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.StoreRetries++
}

// Snapshot returns the current values, in milliseconds for durations
func (t *Timings) Snapshot() map[string]int64 {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return map[string]int64{
		"parseMs":        t.ParseTotal.Milliseconds(),
		"validateMs":     t.ValidateTotal.Milliseconds(),
		"planMs":         t.PlanTotal.Milliseconds(),
		"storeCallMs":    t.StoreCallTotal.Milliseconds(),
		"storeCallCount": t.StoreCallCount,
		"storeAttempts":  t.StoreAttempts,
		"storeRetries":   t.StoreRetries,
	}
}
