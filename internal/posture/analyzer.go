// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package posture implements the calibration-relative posture state machine
// and the stand-up motion analyzer.
package posture

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/motion"
	"github.com/standsense/standsense/internal/timeutil"
)

// Status is the posture state machine position.
type Status int

const (
	StatusUnknown Status = iota
	StatusCalibrating
	StatusGood
	StatusPoor
	StatusNoData
)

// String returns the wire/log name of the status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusCalibrating:
		return "calibrating"
	case StatusGood:
		return "good"
	case StatusPoor:
		return "poor"
	case StatusNoData:
		return "noData"
	default:
		return "invalid"
	}
}

// Baseline is the calibration reference against which deviation is measured.
type Baseline struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// EventKind discriminates analyzer events.
type EventKind int

const (
	// EventPoorPostureSustained fires when poor posture has persisted for the
	// configured threshold. It re-arms: continued poor posture fires it again
	// after each further full threshold interval.
	EventPoorPostureSustained EventKind = iota

	// EventStoodUp fires when the stand-up analyzer detects an acceleration
	// spike consistent with rising from a chair.
	EventStoodUp
)

// Event is a typed analyzer emission consumed directly by the orchestrator.
type Event struct {
	Kind           EventKind
	At             time.Time
	PitchDeviation float64
	RollDeviation  float64
}

// State is the externally visible analyzer snapshot.
type State struct {
	Status         Status    `json:"status"`
	Pitch          float64   `json:"pitch"`
	Roll           float64   `json:"roll"`
	PitchDeviation float64   `json:"pitch_deviation"`
	RollDeviation  float64   `json:"roll_deviation"`
	PoorSince      time.Time `json:"poor_since,omitzero"`
}

// Config holds the analyzer tunables.
type Config struct {
	// PitchThreshold and RollThreshold are the maximum deviations from the
	// baseline, in degrees, still considered good posture.
	PitchThreshold float64
	RollThreshold  float64

	// PoorPostureThreshold is how long posture must stay continuously poor
	// before the sustained event fires.
	PoorPostureThreshold time.Duration

	// UpdateFrequency is the minimum spacing between accepted samples.
	// HighFrequencyUpdate replaces it while a settings surface wants live
	// readouts.
	UpdateFrequency     time.Duration
	HighFrequencyUpdate time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PitchThreshold:       15,
		RollThreshold:        15,
		PoorPostureThreshold: 30 * time.Second,
		UpdateFrequency:      5 * time.Second,
		HighFrequencyUpdate:  time.Second,
	}
}

// Analyzer consumes normalized motion samples at a throttled rate, maintains
// a calibration baseline, and drives the posture status state machine.
//
// All methods must be called from a single goroutine (the daemon's sample
// loop); the internal mutex guards only snapshot reads from other goroutines.
type Analyzer struct {
	mu     sync.Mutex
	cfg    Config
	clock  timeutil.Clock
	logger *zap.Logger

	highFrequency bool
	baseline      *Baseline
	state         State
	lastAccepted  time.Time

	onEvent     func(Event)
	subscribers []func(State)
}

// NewAnalyzer creates an Analyzer. onEvent receives sustained-poor events; it
// must be fast and non-blocking (it runs on the sample path). May be nil.
func NewAnalyzer(cfg Config, clock timeutil.Clock, logger *zap.Logger, onEvent func(Event)) *Analyzer {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Analyzer{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		state:   State{Status: StatusUnknown},
		onEvent: onEvent,
	}
}

// Snapshot returns the current externally visible state.
func (a *Analyzer) Snapshot() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Subscribe registers a callback invoked after every status change, with the
// new snapshot. Callbacks run on the sample path with the analyzer locked:
// they must not block and must not call back into the analyzer.
func (a *Analyzer) Subscribe(fn func(State)) {
	a.mu.Lock()
	a.subscribers = append(a.subscribers, fn)
	a.mu.Unlock()
}

// Baseline returns the current calibration baseline, or nil before one has
// been captured.
func (a *Analyzer) Baseline() *Baseline {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.baseline == nil {
		return nil
	}
	b := *a.baseline
	return &b
}

// ProcessSample feeds one normalized sample through the state machine.
// Samples arriving faster than the update frequency are ignored.
func (a *Analyzer) ProcessSample(s motion.Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	if !a.lastAccepted.IsZero() && now.Sub(a.lastAccepted) < a.updateInterval() {
		return
	}
	a.lastAccepted = now

	a.state.Pitch = s.Pitch
	a.state.Roll = s.Roll

	// Implicit calibration: the first accepted sample after a reset becomes
	// the baseline.
	if a.baseline == nil {
		a.baseline = &Baseline{Pitch: s.Pitch, Roll: s.Roll}
		a.state.PitchDeviation = 0
		a.state.RollDeviation = 0
		if a.state.Status == StatusUnknown || a.state.Status == StatusCalibrating {
			a.transition(StatusGood, now)
		}
		a.logger.Info("posture baseline captured",
			zap.Float64("pitch", s.Pitch),
			zap.Float64("roll", s.Roll),
		)
		return
	}

	pitchDev := abs(motion.AngleDelta(s.Pitch, a.baseline.Pitch))
	rollDev := abs(motion.AngleDelta(s.Roll, a.baseline.Roll))
	a.state.PitchDeviation = pitchDev
	a.state.RollDeviation = rollDev

	isGood := pitchDev <= a.cfg.PitchThreshold && rollDev <= a.cfg.RollThreshold

	switch {
	case isGood:
		if a.state.Status == StatusPoor || a.state.Status == StatusCalibrating || a.state.Status == StatusNoData {
			a.state.PoorSince = time.Time{}
			a.transition(StatusGood, now)
		}

	case a.state.Status == StatusPoor:
		// Still poor: fire the sustained event once per full threshold
		// interval, re-arming after each emission.
		if !a.state.PoorSince.IsZero() && now.Sub(a.state.PoorSince) >= a.cfg.PoorPostureThreshold {
			a.state.PoorSince = now
			a.onEvent(Event{
				Kind:           EventPoorPostureSustained,
				At:             now,
				PitchDeviation: pitchDev,
				RollDeviation:  rollDev,
			})
		}

	case a.state.Status == StatusGood || a.state.Status == StatusCalibrating || a.state.Status == StatusNoData:
		a.state.PoorSince = now
		a.transition(StatusPoor, now)
	}
}

// StartCalibration clears the baseline and forces the status to calibrating.
// The next accepted sample (or CompleteCalibration) establishes the new
// baseline.
func (a *Analyzer) StartCalibration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = nil
	a.state.PoorSince = time.Time{}
	a.transition(StatusCalibrating, a.clock.Now())
}

// CompleteCalibration snapshots the current pitch/roll as the baseline and
// forces the status to good.
func (a *Analyzer) CompleteCalibration() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseline = &Baseline{Pitch: a.state.Pitch, Roll: a.state.Roll}
	a.state.PitchDeviation = 0
	a.state.RollDeviation = 0
	a.state.PoorSince = time.Time{}
	a.transition(StatusGood, a.clock.Now())
}

// SetNoData forces the status to noData. Called by the orchestrator when the
// upstream freshness signal drops.
func (a *Analyzer) SetNoData() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Status == StatusNoData {
		return
	}
	a.state.PoorSince = time.Time{}
	a.transition(StatusNoData, a.clock.Now())
}

// SetHighFrequency toggles the 1-second sampling override used while a
// settings surface is open.
func (a *Analyzer) SetHighFrequency(on bool) {
	a.mu.Lock()
	a.highFrequency = on
	a.mu.Unlock()
}

// SetThresholds updates the deviation thresholds. Values must be positive and
// at most 180 degrees; the change applies from the next evaluation.
func (a *Analyzer) SetThresholds(pitch, roll float64) error {
	if pitch <= 0 || pitch > 180 || roll <= 0 || roll > 180 {
		return fmt.Errorf("posture thresholds must be in (0, 180], got pitch=%v roll=%v", pitch, roll)
	}
	a.mu.Lock()
	a.cfg.PitchThreshold = pitch
	a.cfg.RollThreshold = roll
	a.mu.Unlock()
	return nil
}

// SetPoorPostureThreshold updates the sustained-poor duration.
func (a *Analyzer) SetPoorPostureThreshold(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poor posture threshold must be positive, got %v", d)
	}
	a.mu.Lock()
	a.cfg.PoorPostureThreshold = d
	a.mu.Unlock()
	return nil
}

// SetUpdateFrequency updates the sample throttle interval.
func (a *Analyzer) SetUpdateFrequency(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("update frequency must be positive, got %v", d)
	}
	a.mu.Lock()
	a.cfg.UpdateFrequency = d
	a.mu.Unlock()
	return nil
}

func (a *Analyzer) updateInterval() time.Duration {
	if a.highFrequency {
		return a.cfg.HighFrequencyUpdate
	}
	return a.cfg.UpdateFrequency
}

// transition moves the state machine and notifies subscribers. Callers hold
// the mutex.
func (a *Analyzer) transition(to Status, at time.Time) {
	from := a.state.Status
	if from == to {
		return
	}
	a.state.Status = to
	a.logger.Info("posture status changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Time("at", at),
	)
	snapshot := a.state
	for _, fn := range a.subscribers {
		fn(snapshot)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
