package posture

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/standsense/standsense/internal/motion"
	"github.com/standsense/standsense/internal/timeutil"
)

// StandupConfig holds the stand-up analyzer tunables.
type StandupConfig struct {
	// SpikeThreshold is the user-acceleration magnitude, in g, above the
	// resting baseline that counts as stand-up motion.
	SpikeThreshold float64

	// MinSpikeSamples is how many consecutive accepted samples must exceed
	// the threshold before the event fires. Guards against single-sample
	// bumps of the desk.
	MinSpikeSamples int

	// Cooldown is the minimum spacing between emitted stand-up events.
	Cooldown time.Duration

	// UpdateFrequency throttles sample acceptance, same as the posture
	// analyzer but typically much shorter since spikes are brief.
	UpdateFrequency time.Duration
}

// DefaultStandupConfig returns the production defaults.
func DefaultStandupConfig() StandupConfig {
	return StandupConfig{
		SpikeThreshold:  0.25,
		MinSpikeSamples: 2,
		Cooldown:        30 * time.Second,
		UpdateFrequency: 200 * time.Millisecond,
	}
}

// StandupAnalyzer shares the posture analyzer's throttle/baseline skeleton
// but triggers on an acceleration spike rather than angular deviation. The
// baseline here is the resting user-acceleration magnitude, auto-captured
// from the first accepted sample after a reset.
type StandupAnalyzer struct {
	mu     sync.Mutex
	cfg    StandupConfig
	clock  timeutil.Clock
	logger *zap.Logger

	baselineMag  float64
	hasBaseline  bool
	lastAccepted time.Time
	spikeRun     int
	lastEvent    time.Time

	onEvent func(Event)
}

// NewStandupAnalyzer creates a StandupAnalyzer. onEvent receives stood-up
// events and may be nil.
func NewStandupAnalyzer(cfg StandupConfig, clock timeutil.Clock, logger *zap.Logger, onEvent func(Event)) *StandupAnalyzer {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &StandupAnalyzer{
		cfg:     cfg,
		clock:   clock,
		logger:  logger,
		onEvent: onEvent,
	}
}

// ProcessSample feeds one sample through the spike detector.
func (s *StandupAnalyzer) ProcessSample(sample motion.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.lastAccepted.IsZero() && now.Sub(s.lastAccepted) < s.cfg.UpdateFrequency {
		return
	}
	s.lastAccepted = now

	mag := vecMag(sample.Acceleration)

	if !s.hasBaseline {
		s.baselineMag = mag
		s.hasBaseline = true
		return
	}

	if mag-s.baselineMag < s.cfg.SpikeThreshold {
		s.spikeRun = 0
		return
	}

	s.spikeRun++
	if s.spikeRun < s.cfg.MinSpikeSamples {
		return
	}
	s.spikeRun = 0

	if !s.lastEvent.IsZero() && now.Sub(s.lastEvent) < s.cfg.Cooldown {
		return
	}
	s.lastEvent = now

	s.logger.Info("stand-up motion detected",
		zap.Float64("magnitude", mag),
		zap.Float64("baseline", s.baselineMag),
	)
	s.onEvent(Event{Kind: EventStoodUp, At: now})
}

// Reset clears the resting baseline so it is re-captured from the next
// accepted sample, e.g. after the phase scheduler switches to standing.
func (s *StandupAnalyzer) Reset() {
	s.mu.Lock()
	s.hasBaseline = false
	s.spikeRun = 0
	s.mu.Unlock()
}

// SetSpikeThreshold updates the spike threshold in g.
func (s *StandupAnalyzer) SetSpikeThreshold(g float64) error {
	if g <= 0 {
		return fmt.Errorf("spike threshold must be positive, got %v", g)
	}
	s.mu.Lock()
	s.cfg.SpikeThreshold = g
	s.mu.Unlock()
	return nil
}

func vecMag(v motion.Vector3) float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}
