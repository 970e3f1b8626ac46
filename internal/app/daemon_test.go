// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/motion"
	"github.com/standsense/standsense/internal/notify"
	"github.com/standsense/standsense/internal/posture"
	"github.com/standsense/standsense/internal/timeutil"
)

func newFeedFixture(t *testing.T) (*timeutil.FakeClock, *motion.FreshnessTracker, *posture.Analyzer, *posture.StandupAnalyzer, *notify.Controller) {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC))
	tracker := motion.NewFreshnessTracker(clock, 2*time.Second)
	analyzer := posture.NewAnalyzer(posture.DefaultConfig(), clock, zap.NewNop(), nil)
	standup := posture.NewStandupAnalyzer(posture.DefaultStandupConfig(), clock, zap.NewNop(), nil)
	backoff := notify.NewController(notify.DefaultBackoffConfig(), clock, zap.NewNop(), nil)
	return clock, tracker, analyzer, standup, backoff
}

func TestFeedSampleDegenerateReadingIsSilence(t *testing.T) {
	clock, tracker, analyzer, standup, backoff := newFeedFixture(t)

	// An all-zero gravity vector carries no meaningful data: it must not
	// refresh the freshness signal and must not become the posture baseline.
	degenerate := motion.Sample{Timestamp: clock.Now()}
	feedSample(degenerate, tracker, analyzer, standup, backoff)

	assert.False(t, tracker.Fresh())
	assert.Equal(t, posture.StatusUnknown, analyzer.Snapshot().Status)
}

func TestFeedSampleValidReadingFlowsThrough(t *testing.T) {
	clock, tracker, analyzer, standup, backoff := newFeedFixture(t)

	valid := motion.NewSample(clock.Now(), motion.Quaternion{W: 1},
		motion.Vector3{}, motion.Vector3{Z: -1}, motion.Vector3{})
	feedSample(valid, tracker, analyzer, standup, backoff)

	assert.True(t, tracker.Fresh())
	assert.Equal(t, posture.StatusGood, analyzer.Snapshot().Status)
}

func TestFeedSampleDegenerateDoesNotKeepDataAlive(t *testing.T) {
	clock, tracker, analyzer, standup, backoff := newFeedFixture(t)

	valid := motion.NewSample(clock.Now(), motion.Quaternion{W: 1},
		motion.Vector3{}, motion.Vector3{Z: -1}, motion.Vector3{})
	feedSample(valid, tracker, analyzer, standup, backoff)

	// Only degenerate readings arrive from here on; the freshness window
	// must expire exactly as it would under total silence.
	clock.Advance(3 * time.Second)
	feedSample(motion.Sample{Timestamp: clock.Now()}, tracker, analyzer, standup, backoff)

	assert.False(t, tracker.Fresh())
	assert.Equal(t, posture.StatusGood, analyzer.Snapshot().Status)
}
