package motion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/standsense/standsense/internal/timeutil"
)

func TestFreshnessTracker(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	tr := NewFreshnessTracker(clock, 2*time.Second)

	assert.False(t, tr.Fresh(), "fresh before any sample")

	tr.Mark()
	assert.True(t, tr.Fresh())

	clock.Advance(1900 * time.Millisecond)
	assert.True(t, tr.Fresh(), "inside staleness window")

	clock.Advance(200 * time.Millisecond)
	assert.False(t, tr.Fresh(), "past staleness window")

	tr.Mark()
	assert.True(t, tr.Fresh(), "recovers on next sample")
}

func TestValidGravity(t *testing.T) {
	assert.False(t, Valid(Vector3{}))
	assert.True(t, Valid(Vector3{Z: -0.98}))
}
