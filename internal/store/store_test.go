package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndSummarize(t *testing.T) {
	s := openTestStore(t)

	day := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordTransition(day, "sitting", "standing", 30*time.Minute, true))
	require.NoError(t, s.RecordTransition(day.Add(10*time.Minute), "standing", "sitting", 10*time.Minute, true))
	require.NoError(t, s.RecordTransition(day.Add(40*time.Minute), "sitting", "standing", 30*time.Minute, false))

	require.NoError(t, s.RecordEvent("e1", day, "poor_posture", "pitch 22.5"))
	require.NoError(t, s.RecordEvent("e2", day.Add(time.Hour), "poor_posture", "pitch 19.0"))
	require.NoError(t, s.RecordEvent("e3", day.Add(2*time.Hour), "notification_sent", "Posture check"))

	// Records on another day must not leak into the summary.
	require.NoError(t, s.RecordTransition(day.Add(24*time.Hour), "sitting", "standing", time.Hour, true))

	sum, err := s.Summarize(day)
	require.NoError(t, err)

	assert.Equal(t, "2026-03-01", sum.Day)
	assert.Equal(t, int64(3600), sum.PhaseSeconds["sitting"])
	assert.Equal(t, int64(600), sum.PhaseSeconds["standing"])
	assert.Equal(t, int64(2), sum.EventCounts["poor_posture"])
	assert.Equal(t, int64(1), sum.EventCounts["notification_sent"])
}

func TestDuplicateEventIDRejected(t *testing.T) {
	s := openTestStore(t)

	at := time.Now()
	require.NoError(t, s.RecordEvent("same-id", at, "poor_posture", ""))
	assert.Error(t, s.RecordEvent("same-id", at, "poor_posture", ""))
}

func TestSummarizeEmptyDay(t *testing.T) {
	s := openTestStore(t)

	sum, err := s.Summarize(time.Now())
	require.NoError(t, err)
	assert.Empty(t, sum.PhaseSeconds)
	assert.Empty(t, sum.EventCounts)
}
