// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"context"
	"math"
	"sync"
	"time"
)

type mockSource struct {
	interval time.Duration
	samples  chan Sample
	stop     chan struct{}
	stopOnce sync.Once
	start    time.Time
}

// NewMockSource creates a synthetic motion source that generates smooth
// changing orientation values at the given interval. Useful for development
// without a head tracker attached.
func NewMockSource(interval time.Duration) Source {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &mockSource{
		interval: interval,
		samples:  make(chan Sample, 16),
		stop:     make(chan struct{}),
		start:    time.Now(),
	}
}

func (m *mockSource) Name() string { return "mock" }

func (m *mockSource) Available() (bool, string) { return true, "" }

func (m *mockSource) RequestAccess(ctx context.Context) (bool, string) {
	return true, ""
}

func (m *mockSource) Start(ctx context.Context) error {
	go func() {
		defer close(m.samples)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case t := <-ticker.C:
				elapsed := t.Sub(m.start).Seconds()
				s := Sample{
					Timestamp:    t,
					Pitch:        15 * math.Cos(elapsed*0.7),
					Roll:         20 * math.Sin(elapsed),
					Yaw:          NormalizeAngle(elapsed * 30),
					Acceleration: Vector3{X: 0.02 * math.Sin(elapsed*3)},
					Gravity:      Vector3{Z: -1},
				}
				select {
				case m.samples <- s:
				default:
					// Consumer is behind; drop rather than block the tick.
				}
			}
		}
	}()
	return nil
}

func (m *mockSource) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *mockSource) Samples() <-chan Sample { return m.samples }
