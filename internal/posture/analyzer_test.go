package posture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/motion"
	"github.com/standsense/standsense/internal/timeutil"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *timeutil.FakeClock, *[]Event) {
	t.Helper()
	clock := timeutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	events := &[]Event{}
	a := NewAnalyzer(DefaultConfig(), clock, zap.NewNop(), func(e Event) {
		*events = append(*events, e)
	})
	return a, clock, events
}

func sampleAt(pitch, roll float64) motion.Sample {
	return motion.Sample{Pitch: pitch, Roll: roll, Gravity: motion.Vector3{Z: -1}}
}

func TestImplicitBaselineCaptureLeavesUnknown(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	require.Equal(t, StatusUnknown, a.Snapshot().Status)
	a.ProcessSample(sampleAt(10, -5))

	assert.Equal(t, StatusGood, a.Snapshot().Status)
	b := a.Baseline()
	require.NotNil(t, b)
	assert.Equal(t, 10.0, b.Pitch)
	assert.Equal(t, -5.0, b.Roll)
}

func TestDeviationIsBaselineRelativeAndWrapSafe(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(170, 0)) // baseline pitch=170
	clock.Advance(5 * time.Second)
	a.ProcessSample(sampleAt(-170, 0)) // 20 degrees the short way round

	st := a.Snapshot()
	assert.InDelta(t, 20, st.PitchDeviation, 1e-9, "wrapped deviation, not 340")
	assert.Equal(t, StatusPoor, st.Status)
}

func TestThrottleIgnoresFastSamples(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(0, 0))
	clock.Advance(time.Second)
	a.ProcessSample(sampleAt(90, 90)) // inside the 5s window, must be dropped

	st := a.Snapshot()
	assert.Equal(t, StatusGood, st.Status)
	assert.Equal(t, 0.0, st.Pitch)
}

func TestHighFrequencyModeAcceptsAtOneSecond(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)
	a.SetHighFrequency(true)

	a.ProcessSample(sampleAt(0, 0))
	clock.Advance(time.Second)
	a.ProcessSample(sampleAt(90, 0))

	assert.Equal(t, StatusPoor, a.Snapshot().Status)
}

func TestSustainedPoorEmitsAndRearms(t *testing.T) {
	a, clock, events := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(0, 0)) // baseline at t0

	// Poor samples every 5 seconds. Poor is entered at t+5; the sustained
	// event must fire at t+35 (30s of continuous poor) and again at t+65.
	for i := 0; i < 13; i++ {
		clock.Advance(5 * time.Second)
		a.ProcessSample(sampleAt(40, 0))
	}

	require.Len(t, *events, 2, "one event per full threshold interval")
	assert.Equal(t, EventPoorPostureSustained, (*events)[0].Kind)
	gap := (*events)[1].At.Sub((*events)[0].At)
	assert.Equal(t, 30*time.Second, gap)
}

func TestGoodSampleBeforeThresholdPreventsEvent(t *testing.T) {
	a, clock, events := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(0, 0))

	// 25 seconds of poor, then a good sample at 29s of the streak.
	for i := 0; i < 5; i++ {
		clock.Advance(5 * time.Second)
		a.ProcessSample(sampleAt(40, 0))
	}
	clock.Advance(4 * time.Second)
	a.SetHighFrequency(true) // allow the 4s-spaced sample through
	a.ProcessSample(sampleAt(0, 0))

	assert.Equal(t, StatusGood, a.Snapshot().Status)
	assert.Empty(t, *events, "interrupted streak must not emit")
	assert.True(t, a.Snapshot().PoorSince.IsZero(), "streak timestamp cleared")
}

func TestExplicitCalibrationCycle(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(10, 10))
	clock.Advance(5 * time.Second)
	a.ProcessSample(sampleAt(50, 10)) // poor against the 10/10 baseline
	require.Equal(t, StatusPoor, a.Snapshot().Status)

	a.StartCalibration()
	assert.Equal(t, StatusCalibrating, a.Snapshot().Status)
	assert.Nil(t, a.Baseline())

	a.CompleteCalibration() // current pitch/roll (50, 10) becomes baseline
	assert.Equal(t, StatusGood, a.Snapshot().Status)
	b := a.Baseline()
	require.NotNil(t, b)
	assert.Equal(t, 50.0, b.Pitch)

	clock.Advance(5 * time.Second)
	a.ProcessSample(sampleAt(52, 11)) // close to the new baseline
	assert.Equal(t, StatusGood, a.Snapshot().Status)
}

func TestNoDataAndRecovery(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)

	a.ProcessSample(sampleAt(0, 0))
	a.SetNoData()
	assert.Equal(t, StatusNoData, a.Snapshot().Status)

	clock.Advance(5 * time.Second)
	a.ProcessSample(sampleAt(1, 1))
	assert.Equal(t, StatusGood, a.Snapshot().Status)
}

func TestSubscribeSeesStatusChanges(t *testing.T) {
	a, clock, _ := newTestAnalyzer(t)

	var seen []Status
	a.Subscribe(func(st State) { seen = append(seen, st.Status) })

	a.ProcessSample(sampleAt(0, 0))
	clock.Advance(5 * time.Second)
	a.ProcessSample(sampleAt(40, 0))

	assert.Equal(t, []Status{StatusGood, StatusPoor}, seen)
}

func TestSetterValidation(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)

	assert.Error(t, a.SetThresholds(0, 15))
	assert.Error(t, a.SetThresholds(15, 181))
	assert.NoError(t, a.SetThresholds(10, 20))

	assert.Error(t, a.SetPoorPostureThreshold(0))
	assert.NoError(t, a.SetPoorPostureThreshold(time.Minute))

	assert.Error(t, a.SetUpdateFrequency(-time.Second))
	assert.NoError(t, a.SetUpdateFrequency(2*time.Second))
}

func TestStandupSpikeDetection(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var events []Event
	s := NewStandupAnalyzer(DefaultStandupConfig(), clock, zap.NewNop(), func(e Event) {
		events = append(events, e)
	})

	accel := func(mag float64) motion.Sample {
		return motion.Sample{Acceleration: motion.Vector3{Z: mag}, Gravity: motion.Vector3{Z: -1}}
	}

	s.ProcessSample(accel(0.02)) // resting baseline

	// Two consecutive spike samples above baseline+threshold.
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(accel(0.5))
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(accel(0.5))
	require.Len(t, events, 1)
	assert.Equal(t, EventStoodUp, events[0].Kind)

	// Another spike inside the cooldown is swallowed.
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(accel(0.6))
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(accel(0.6))
	assert.Len(t, events, 1)
}

func TestStandupSingleBumpIgnored(t *testing.T) {
	clock := timeutil.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	var events []Event
	s := NewStandupAnalyzer(DefaultStandupConfig(), clock, zap.NewNop(), func(e Event) {
		events = append(events, e)
	})

	s.ProcessSample(motion.Sample{Acceleration: motion.Vector3{Z: 0.02}})
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(motion.Sample{Acceleration: motion.Vector3{Z: 0.5}}) // single bump
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(motion.Sample{Acceleration: motion.Vector3{Z: 0.03}})
	clock.Advance(200 * time.Millisecond)
	s.ProcessSample(motion.Sample{Acceleration: motion.Vector3{Z: 0.5}})

	assert.Empty(t, events)
}
