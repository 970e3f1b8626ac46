// Copyright (c) 2026 Standsense Labs
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package motion

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTSourceDeliverAfterStop(t *testing.T) {
	src := &mqttSource{logger: zap.NewNop(), samples: make(chan Sample, 4)}

	src.deliver(Sample{Pitch: 1})
	src.Stop()

	// A handler dispatched before Stop may still run afterwards; it must
	// drop the sample instead of sending on the closed channel.
	require.NotPanics(t, func() { src.deliver(Sample{Pitch: 2}) })

	s, open := <-src.samples
	require.True(t, open)
	assert.Equal(t, 1.0, s.Pitch)

	_, open = <-src.samples
	assert.False(t, open)
}

func TestMQTTSourceStopIdempotent(t *testing.T) {
	src := &mqttSource{logger: zap.NewNop(), samples: make(chan Sample, 1)}
	src.Stop()
	require.NotPanics(t, src.Stop)
}

func TestMQTTSourceStopDuringDeliveries(t *testing.T) {
	src := &mqttSource{logger: zap.NewNop(), samples: make(chan Sample, 1)}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				src.deliver(Sample{})
			}
		}()
	}
	src.Stop()
	wg.Wait()
}
