package motion

import (
	"context"
	"sync"
	"time"

	"github.com/standsense/standsense/internal/timeutil"
)

// DefaultStaleAfter is how long a source may stay silent before its data is
// considered gone.
const DefaultStaleAfter = 2 * time.Second

// Source is a pluggable motion provider. The orchestrator holds a collection
// of Sources and treats them polymorphically; it never sees hardware details.
type Source interface {
	// Name identifies the source in logs and status output.
	Name() string

	// Available reports whether the underlying device or feed can be opened
	// right now, with a human-readable reason when it cannot.
	Available() (bool, string)

	// RequestAccess performs any permission or device-open handshake. A false
	// return with a reason leaves the caller in a degraded mode; it is not an
	// error.
	RequestAccess(ctx context.Context) (bool, string)

	// Start begins producing samples until Stop or context cancellation.
	Start(ctx context.Context) error

	// Stop halts production. Idempotent.
	Stop()

	// Samples returns the stream of normalized samples. The channel is closed
	// when the source stops.
	Samples() <-chan Sample
}

// FreshnessTracker derives the "is data currently arriving" signal from the
// sample stream: a mark refreshes it, and silence longer than staleAfter
// drops it.
type FreshnessTracker struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	staleAfter time.Duration
	lastSample time.Time
}

// NewFreshnessTracker returns a tracker using the given staleness window.
// A non-positive window falls back to DefaultStaleAfter.
func NewFreshnessTracker(clock timeutil.Clock, staleAfter time.Duration) *FreshnessTracker {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &FreshnessTracker{clock: clock, staleAfter: staleAfter}
}

// Mark records that a valid sample arrived now.
func (f *FreshnessTracker) Mark() {
	f.mu.Lock()
	f.lastSample = f.clock.Now()
	f.mu.Unlock()
}

// Fresh reports whether a valid sample arrived within the staleness window.
// Before the first Mark it is always false.
func (f *FreshnessTracker) Fresh() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastSample.IsZero() {
		return false
	}
	return f.clock.Since(f.lastSample) < f.staleAfter
}

// Valid reports whether a raw reading carries meaningful data. An all-zero
// gravity vector means the provider has nothing to say; such readings are
// treated as silence, not as samples.
func Valid(gravity Vector3) bool {
	return gravity.X != 0 || gravity.Y != 0 || gravity.Z != 0
}
