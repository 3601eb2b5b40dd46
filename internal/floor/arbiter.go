// Package floor decides who holds the outbound stream: the manual
// push-to-talk trigger or the voice activity gate
package floor

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Source is the trigger that asked for the stream
type Source int

const (
	SourceManual Source = iota
	SourceVox
)

func (s Source) String() string {
	switch s {
	case SourceManual:
		return "manual"
	case SourceVox:
		return "vox"
	default:
		return "unknown"
	}
}

// State of the outbound stream
type State int

const (
	StateIdle State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "idle"
}

// Streamer opens and closes the outbound stream. Start receives an epoch
// that identifies this activation in later fault reports. Stop must
// return only once no more audio will be sent.
type Streamer interface {
	Start(epoch uint64) error
	Stop()
}

// Notifier is told about every transition, exactly once per edge, in
// transition order
type Notifier interface {
	StreamStarted(source Source)
	StreamStopped(source Source)
	StreamFailed(source Source, err error)
}

const noHolder = -1

// Arbiter serializes start and stop requests from both trigger sources.
// Manual requests take precedence over voice activity.
type Arbiter struct {
	logger   zerolog.Logger
	streamer Streamer
	notifier Notifier

	mu     sync.Mutex
	open   bool
	state  State
	holder Source
	epoch  uint64

	active      atomic.Bool
	holderID    atomic.Int32
	activeEpoch atomic.Uint64
}

// New creates a closed arbiter
func New(streamer Streamer, notifier Notifier, logger zerolog.Logger) *Arbiter {
	a := &Arbiter{
		logger:   logger.With().Str("component", "floor").Logger(),
		streamer: streamer,
		notifier: notifier,
	}
	a.holderID.Store(noHolder)
	return a
}

// Open allows streams to start
func (a *Arbiter) Open() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.open = true
}

// Close stops any active stream and refuses new ones until reopened.
// It reports whether a stream was stopped.
func (a *Arbiter) Close() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.open = false
	if a.state != StateActive {
		return false
	}
	a.stopLocked("closed")
	return true
}

// RequestStart asks for the stream on behalf of source. It returns true
// when this call started the stream or took it over.
func (a *Arbiter) RequestStart(source Source) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.open {
		a.logger.Debug().Stringer("source", source).Msg("Start ignored, floor closed")
		return false, nil
	}

	if a.state == StateActive {
		switch {
		case a.holder == source:
			return false, nil
		case a.holder == SourceVox && source == SourceManual:
			a.setHolder(SourceManual)
			a.logger.Info().Msg("Manual trigger took over voice activated stream")
			return true, nil
		default:
			a.logger.Debug().Stringer("source", source).Stringer("holder", a.holder).Msg("Start ignored, stream held")
			return false, nil
		}
	}

	a.epoch++
	if err := a.streamer.Start(a.epoch); err != nil {
		a.logger.Error().Err(err).Stringer("source", source).Msg("Failed to start stream")
		a.notifier.StreamFailed(source, err)
		return false, err
	}

	a.state = StateActive
	a.setHolder(source)
	a.activeEpoch.Store(a.epoch)
	a.active.Store(true)
	a.logger.Info().Stringer("source", source).Uint64("epoch", a.epoch).Msg("Stream started")
	a.notifier.StreamStarted(source)
	return true, nil
}

// RequestStop releases the stream if source holds it
func (a *Arbiter) RequestStop(source Source) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive || a.holder != source {
		return false
	}
	a.stopLocked("released")
	return true
}

// ForceStop stops the stream whoever holds it
func (a *Arbiter) ForceStop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive {
		return false
	}
	a.stopLocked("forced")
	return true
}

// StopEpoch stops the stream only if it is still the activation that
// epoch identifies. Stale fault reports are ignored.
func (a *Arbiter) StopEpoch(epoch uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateActive || a.epoch != epoch {
		return false
	}
	a.stopLocked("fault")
	return true
}

func (a *Arbiter) stopLocked(reason string) {
	holder := a.holder
	a.streamer.Stop()

	a.state = StateIdle
	a.active.Store(false)
	a.holderID.Store(noHolder)
	a.activeEpoch.Store(0)
	a.logger.Info().Stringer("source", holder).Str("reason", reason).Msg("Stream stopped")
	a.notifier.StreamStopped(holder)
}

func (a *Arbiter) setHolder(source Source) {
	a.holder = source
	a.holderID.Store(int32(source))
}

// Active reports whether the stream is open. It never waits for a
// transition in progress.
func (a *Arbiter) Active() bool {
	return a.active.Load()
}

// Holder returns the current holder, if any
func (a *Arbiter) Holder() (Source, bool) {
	id := a.holderID.Load()
	if id == noHolder {
		return 0, false
	}
	return Source(id), true
}

// ActiveEpoch returns the epoch of the active stream, if any. Epochs
// start at 1.
func (a *Arbiter) ActiveEpoch() (uint64, bool) {
	epoch := a.activeEpoch.Load()
	return epoch, epoch != 0
}
