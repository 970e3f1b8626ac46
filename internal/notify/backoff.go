// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package notify rate-limits repeated alerts with capped exponential backoff
// and delivers them through pluggable notifiers.
package notify

import (
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/timeutil"
)

// BackoffConfig holds the controller tunables.
type BackoffConfig struct {
	// Base and Exponent shape the wait between repeats: the n-th repeat may
	// only go out Base*Exponent^n after the previous one. Max caps the wait.
	Base     time.Duration
	Exponent float64
	Max      time.Duration

	// RequiredGoodDuration is how long the monitored condition must stay
	// continuously good before the backoff state resets.
	RequiredGoodDuration time.Duration

	// ResetAfter is the quiet-time fallback: with no send for this long the
	// state resets regardless of the good tracker, so backoff never
	// compounds across unrelated sessions.
	ResetAfter time.Duration
}

// DefaultBackoffConfig returns the production defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Base:                 60 * time.Second,
		Exponent:             1.5,
		Max:                  300 * time.Second,
		RequiredGoodDuration: 120 * time.Second,
		ResetAfter:           1800 * time.Second,
	}
}

// Message is one escalation tier of alert content.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// escalation is the fixed ordered content ladder; the last tier repeats for
// all further counts.
var escalation = []Message{
	{Title: "Posture check", Body: "Your posture has drifted. A small adjustment now saves your neck later."},
	{Title: "Still slouching", Body: "You've been out of position for a while. Sit tall or take a short stretch."},
	{Title: "Posture reminder", Body: "Third nudge: shoulders back, screen at eye level."},
	{Title: "Your back called", Body: "It would like you to stop slouching. Maybe stand for a minute?"},
	{Title: "Seriously, stretch", Body: "Prolonged poor posture adds up. Stand up, roll your shoulders, reset."},
}

// State is the backoff bookkeeping, reset transactionally as a whole.
type State struct {
	Count        int       `json:"count"`
	LastSent     time.Time `json:"last_sent,omitzero"`
	GoodSince    time.Time `json:"good_since,omitzero"`
	TrackingGood bool      `json:"tracking_good"`
}

// Controller decides whether a just-triggered alert condition should surface
// a notification. One Controller per alert kind.
type Controller struct {
	mu     sync.Mutex
	cfg    BackoffConfig
	clock  timeutil.Clock
	logger *zap.Logger
	mute   func() bool

	state State
}

// NewController creates a Controller. mute is the external busy/meeting
// signal, polled before every send decision; it may be nil.
func NewController(cfg BackoffConfig, clock timeutil.Clock, logger *zap.Logger, mute func() bool) *Controller {
	return &Controller{cfg: cfg, clock: clock, logger: logger, mute: mute}
}

// BackoffFor returns the minimum wait after the n-th notification:
// min(Base*Exponent^n, Max). Non-decreasing in n.
func (c *Controller) BackoffFor(n int) time.Duration {
	d := time.Duration(float64(c.cfg.Base) * math.Pow(c.cfg.Exponent, float64(n)))
	if d > c.cfg.Max || d < 0 {
		return c.cfg.Max
	}
	return d
}

// ShouldNotify reports whether the triggered condition may surface a
// notification now. The first alert always passes; repeats wait out the
// backoff. A muted decision is not "spent": no internal state advances.
func (c *Controller) ShouldNotify() bool {
	if c.mute != nil && c.mute() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	// Idle fallback: a long quiet stretch clears accumulated backoff.
	if c.state.Count > 0 && now.Sub(c.state.LastSent) >= c.cfg.ResetAfter {
		c.resetLocked("idle")
	}

	if c.state.Count == 0 {
		return true
	}
	return now.Sub(c.state.LastSent) >= c.BackoffFor(c.state.Count)
}

// NoteSent records a successful send: the count advances, the timestamp
// updates, and any good streak in progress is discarded (the condition is
// evidently not good).
func (c *Controller) NoteSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Count++
	c.state.LastSent = c.clock.Now()
	c.state.TrackingGood = false
	c.state.GoodSince = time.Time{}
}

// CurrentMessage returns the escalation tier for the next send, clamped to
// the last tier.
func (c *Controller) CurrentMessage() Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := c.state.Count
	if idx >= len(escalation) {
		idx = len(escalation) - 1
	}
	return escalation[idx]
}

// ObserveCondition drives the sustained-good tracker. A continuous good
// streak of RequiredGoodDuration resets the backoff state atomically; any
// interruption discards the streak, and a fresh one starts from zero.
func (c *Controller) ObserveCondition(good bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !good {
		c.state.TrackingGood = false
		c.state.GoodSince = time.Time{}
		return
	}

	now := c.clock.Now()
	if !c.state.TrackingGood {
		c.state.TrackingGood = true
		c.state.GoodSince = now
		return
	}
	if now.Sub(c.state.GoodSince) >= c.cfg.RequiredGoodDuration {
		c.resetLocked("sustained good")
	}
}

// Reset clears all backoff state as one transaction.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked("manual")
}

// Snapshot returns the current backoff bookkeeping.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) resetLocked(reason string) {
	if c.state.Count == 0 && c.state.LastSent.IsZero() && !c.state.TrackingGood {
		return
	}
	c.logger.Info("backoff reset",
		zap.String("reason", reason),
		zap.Int("count", c.state.Count),
	)
	c.state = State{}
}
