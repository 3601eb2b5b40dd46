package vox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_StopAtFrame28(t *testing.T) {
	g := NewGate(20*time.Millisecond, DefaultHangover)

	startFrame, stopFrame := 0, 0
	for frame := 1; frame <= 40; frame++ {
		switch g.Observe(frame <= 3) {
		case DecisionStart:
			startFrame = frame
		case DecisionStop:
			if stopFrame == 0 {
				stopFrame = frame
			}
		}
	}

	assert.Equal(t, 1, startFrame)
	assert.Equal(t, 28, stopFrame)
	assert.Equal(t, StateSilence, g.State())
}

func TestGate_NeverStopsEarly(t *testing.T) {
	for _, d := range []time.Duration{2500 * time.Microsecond, 10 * time.Millisecond, 20 * time.Millisecond, 60 * time.Millisecond} {
		g := NewGate(d, DefaultHangover)
		g.Observe(true)

		var silence time.Duration
		for {
			decision := g.Observe(false)
			silence += d
			if decision == DecisionStop {
				break
			}
			assert.Less(t, silence, DefaultHangover, "frame %s: no stop before threshold", d)
		}
		assert.GreaterOrEqual(t, silence, DefaultHangover, "frame %s", d)
		assert.Less(t, silence-d, DefaultHangover, "frame %s: stop on first frame reaching threshold", d)
	}
}

func TestGate_SignalResetsAccumulator(t *testing.T) {
	g := NewGate(20*time.Millisecond, DefaultHangover)
	assert.Equal(t, DecisionStart, g.Observe(true))

	for i := 0; i < 20; i++ {
		assert.Equal(t, DecisionNone, g.Observe(false))
	}
	assert.Equal(t, StateHangover, g.State())
	assert.Equal(t, 400*time.Millisecond, g.Elapsed())

	assert.Equal(t, DecisionNone, g.Observe(true), "speech during hangover does not restart the stream")
	assert.Equal(t, StateSpeaking, g.State())
	assert.Equal(t, time.Duration(0), g.Elapsed())

	for i := 0; i < 24; i++ {
		assert.Equal(t, DecisionNone, g.Observe(false), "frame %d", i)
	}
	assert.Equal(t, DecisionStop, g.Observe(false))
}

func TestGate_ElapsedOnlyInHangover(t *testing.T) {
	g := NewGate(20*time.Millisecond, DefaultHangover)

	g.Observe(false)
	assert.Equal(t, StateSilence, g.State())
	assert.Equal(t, time.Duration(0), g.Elapsed())

	g.Observe(true)
	assert.Equal(t, time.Duration(0), g.Elapsed())

	g.Observe(false)
	assert.Equal(t, 20*time.Millisecond, g.Elapsed())
}

func TestGate_Reset(t *testing.T) {
	g := NewGate(20*time.Millisecond, 0)
	assert.False(t, g.Reset())

	g.Observe(true)
	g.Observe(false)
	assert.True(t, g.Reset())
	assert.Equal(t, StateSilence, g.State())
	assert.Equal(t, time.Duration(0), g.Elapsed())
	assert.Equal(t, DecisionStart, g.Observe(true))
}
