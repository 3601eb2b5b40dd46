// Package vox turns per-frame voice classification into stream start and
// stop requests, holding the stream open through short pauses
package vox

import "time"

// DefaultHangover is the continuous silence needed before a stop
const DefaultHangover = 500 * time.Millisecond

// State of the gate
type State int

const (
	StateSilence State = iota
	StateSpeaking
	StateHangover
)

func (s State) String() string {
	switch s {
	case StateSilence:
		return "silence"
	case StateSpeaking:
		return "speaking"
	case StateHangover:
		return "hangover"
	default:
		return "unknown"
	}
}

// Decision is what the gate wants done after a frame
type Decision int

const (
	DecisionNone Decision = iota
	DecisionStart
	DecisionStop
)

// Gate is the hangover state machine. It is not safe for concurrent use;
// the worker owns it.
type Gate struct {
	frame    time.Duration
	hangover time.Duration
	state    State
	elapsed  time.Duration
}

// NewGate creates a gate for frames of the given duration
func NewGate(frameDuration, hangover time.Duration) *Gate {
	if hangover <= 0 {
		hangover = DefaultHangover
	}
	return &Gate{frame: frameDuration, hangover: hangover}
}

// Observe feeds one classified frame
func (g *Gate) Observe(voice bool) Decision {
	if voice {
		prev := g.state
		g.state = StateSpeaking
		g.elapsed = 0
		if prev == StateSilence {
			return DecisionStart
		}
		return DecisionNone
	}

	switch g.state {
	case StateSpeaking:
		g.state = StateHangover
		g.elapsed = g.frame
	case StateHangover:
		g.elapsed += g.frame
	default:
		return DecisionNone
	}

	if g.elapsed >= g.hangover {
		g.state = StateSilence
		g.elapsed = 0
		return DecisionStop
	}
	return DecisionNone
}

// Reset forces Silence and reports whether the gate had been holding
func (g *Gate) Reset() bool {
	holding := g.state != StateSilence
	g.state = StateSilence
	g.elapsed = 0
	return holding
}

// State returns the current state
func (g *Gate) State() State {
	return g.state
}

// Elapsed returns the silence accumulated in Hangover
func (g *Gate) Elapsed() time.Duration {
	return g.elapsed
}
