// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package scheduler drives the sit/stand and focus/break phase cycles.
package scheduler

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/timeutil"
)

// ErrInvalidDuration is returned by Start when any phase duration is not
// positive. The scheduler state is left untouched.
var ErrInvalidDuration = errors.New("scheduler: phase durations must be positive")

// tickPeriod is the deadline check resolution.
const tickPeriod = time.Second

// Phase is one named interval in a repeating cycle.
type Phase struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Cause says why a transition happened.
type Cause int

const (
	// CauseDeadline is a natural deadline-triggered transition.
	CauseDeadline Cause = iota
	// CauseSkip is a user-initiated skip.
	CauseSkip
)

// Transition is emitted on every phase change. Notify is false for skips and
// for deadline fires suppressed by the busy signal; the state has advanced
// either way.
type Transition struct {
	From   Phase
	To     Phase
	At     time.Time
	Cause  Cause
	Notify bool
}

// State is the externally visible scheduler snapshot.
type State struct {
	Phase     Phase         `json:"phase"`
	Running   bool          `json:"running"`
	Paused    bool          `json:"paused"`
	Remaining time.Duration `json:"remaining"`
}

// SitStandCycle builds the basic alternating cycle.
func SitStandCycle(sitting, standing time.Duration) []Phase {
	return []Phase{
		{Name: "sitting", Duration: sitting},
		{Name: "standing", Duration: standing},
	}
}

// FocusCycle expands a focus/break plan into an explicit ordered cycle with a
// long break after every longEvery focus intervals. longEvery < 1 yields a
// plain focus/shortBreak alternation.
func FocusCycle(focus, shortBreak, longBreak time.Duration, longEvery int) []Phase {
	if longEvery < 1 {
		return []Phase{
			{Name: "focus", Duration: focus},
			{Name: "shortBreak", Duration: shortBreak},
		}
	}
	var phases []Phase
	for i := 0; i < longEvery; i++ {
		phases = append(phases, Phase{Name: "focus", Duration: focus})
		if i == longEvery-1 {
			phases = append(phases, Phase{Name: "longBreak", Duration: longBreak})
		} else {
			phases = append(phases, Phase{Name: "shortBreak", Duration: shortBreak})
		}
	}
	return phases
}

// Scheduler cycles through ordered phases against a wall-clock deadline,
// checked at 1-second resolution. Pause preserves remaining time; skip
// advances silently; a busy signal can mute the outward notification of a
// natural fire without stopping state progression.
//
// Public operations are serialized by the internal mutex; the tick path holds
// the same lock, so a pause issued before a tick observes wall-clock time is
// always honored by that tick.
type Scheduler struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	logger *zap.Logger

	phases          []Phase
	idx             int
	running         bool
	paused          bool
	deadline        time.Time
	pausedRemaining time.Duration

	suppressWhenBusy bool
	busy             func() bool

	onTransition func(Transition)

	ticker timeutil.Ticker
	stop   chan struct{}
}

// New creates a Scheduler. busy is polled at fire time when busy suppression
// is enabled; it may be nil. onTransition receives every phase change; it
// runs with the scheduler locked and must not block or call back in.
func New(clock timeutil.Clock, logger *zap.Logger, busy func() bool, onTransition func(Transition)) *Scheduler {
	if onTransition == nil {
		onTransition = func(Transition) {}
	}
	return &Scheduler{
		clock:        clock,
		logger:       logger,
		busy:         busy,
		onTransition: onTransition,
	}
}

// Start cancels any existing run and begins the cycle at its first phase.
// It refuses, with no state change, if any phase duration is not positive.
func (s *Scheduler) Start(phases ...Phase) error {
	if len(phases) == 0 {
		return ErrInvalidDuration
	}
	for _, p := range phases {
		if p.Duration <= 0 {
			return ErrInvalidDuration
		}
	}

	s.mu.Lock()
	s.stopTickerLocked()

	s.phases = append([]Phase(nil), phases...)
	s.idx = 0
	s.running = true
	s.paused = false
	s.pausedRemaining = 0
	s.deadline = s.clock.Now().Add(phases[0].Duration)

	ticker := s.clock.NewTicker(tickPeriod)
	stop := make(chan struct{})
	s.ticker = ticker
	s.stop = stop
	s.mu.Unlock()

	s.logger.Info("schedule started",
		zap.String("phase", phases[0].Name),
		zap.Duration("duration", phases[0].Duration),
	)

	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				s.Tick()
			}
		}
	}()
	return nil
}

// Tick evaluates the deadline once. It is driven by the internal 1-second
// ticker and is exported so tests can step deterministically.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return
	}

	// remaining <= 0 covers exact expiry and accumulated drift. advance
	// pushes the deadline a full phase ahead, so one crossing fires exactly
	// once no matter how many ticks observe it.
	if s.clock.Now().Before(s.deadline) {
		return
	}

	notify := true
	if s.suppressWhenBusy && s.busy != nil && s.busy() {
		notify = false
	}
	s.advanceLocked(CauseDeadline, notify)
}

// Pause freezes the countdown, preserving the remaining time. No-op unless
// running and not already paused.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.paused {
		return
	}
	s.paused = true
	s.pausedRemaining = s.deadline.Sub(s.clock.Now())
	if s.pausedRemaining < 0 {
		s.pausedRemaining = 0
	}
	s.logger.Info("schedule paused", zap.Duration("remaining", s.pausedRemaining))
}

// Resume recomputes the deadline from the preserved remaining time. No-op
// unless running and paused.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeLocked()
}

func (s *Scheduler) resumeLocked() {
	if !s.running || !s.paused {
		return
	}
	s.paused = false
	s.deadline = s.clock.Now().Add(s.pausedRemaining)
	s.pausedRemaining = 0
	s.logger.Info("schedule resumed", zap.Time("next_fire", s.deadline))
}

// Skip advances to the next phase immediately without the outward
// notification. A paused scheduler resumes first.
func (s *Scheduler) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.resumeLocked()
	s.advanceLocked(CauseSkip, false)
}

// Stop cancels the run and resets to the initial phase. Idempotent; no
// tick-driven side effects can occur after it returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.stopTickerLocked()
	s.running = false
	s.paused = false
	s.pausedRemaining = 0
	s.idx = 0
	s.deadline = time.Time{}
	s.logger.Info("schedule stopped")
}

// Snapshot returns the current scheduler state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{Running: s.running, Paused: s.paused}
	if len(s.phases) > 0 {
		st.Phase = s.phases[s.idx]
	}
	switch {
	case !s.running:
	case s.paused:
		st.Remaining = s.pausedRemaining
	default:
		st.Remaining = s.deadline.Sub(s.clock.Now())
	}
	return st
}

// SetSuppressWhenBusy toggles calendar suppression of natural-fire
// notifications.
func (s *Scheduler) SetSuppressWhenBusy(on bool) {
	s.mu.Lock()
	s.suppressWhenBusy = on
	s.mu.Unlock()
}

// advanceLocked moves to the next phase and emits the transition. Callers
// hold the mutex.
func (s *Scheduler) advanceLocked(cause Cause, notify bool) {
	from := s.phases[s.idx]
	s.idx = (s.idx + 1) % len(s.phases)
	to := s.phases[s.idx]
	now := s.clock.Now()
	s.deadline = now.Add(to.Duration)

	s.logger.Info("phase transition",
		zap.String("from", from.Name),
		zap.String("to", to.Name),
		zap.Bool("notify", notify),
	)
	s.onTransition(Transition{From: from, To: to, At: now, Cause: cause, Notify: notify})
}

func (s *Scheduler) stopTickerLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.ticker = nil
		s.stop = nil
	}
}
