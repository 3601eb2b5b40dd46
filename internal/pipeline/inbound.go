package pipeline

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/transport"
)

// UnknownSender names the sender of audio whose stream start was not seen
const UnknownSender = "unknown"

// AudioPublisher receives every decoded packet's raw payload
type AudioPublisher interface {
	AudioReceived(channel, sender string, payload []byte)
}

// InboundConfig wires an Inbound pipeline
type InboundConfig struct {
	Codec     audio.Decoder
	Playback  audio.PlaybackDevice
	Publisher AudioPublisher
	Channel   string
	OnFault   func(err error)
	Logger    zerolog.Logger
}

// Inbound decodes and plays received packets while connected. It is
// driven by the transport read loop, so packets are handled one at a time
// in arrival order.
type Inbound struct {
	cfg     InboundConfig
	logger  zerolog.Logger
	running atomic.Bool

	mu      sync.Mutex
	senders map[uint32]string
}

// NewInbound creates a stopped inbound pipeline
func NewInbound(cfg InboundConfig) *Inbound {
	return &Inbound{
		cfg:     cfg,
		logger:  cfg.Logger.With().Str("component", "inbound").Logger(),
		senders: make(map[uint32]string),
	}
}

// Start begins accepting packets
func (in *Inbound) Start() {
	in.mu.Lock()
	in.senders = make(map[uint32]string)
	in.mu.Unlock()
	in.running.Store(true)
}

// Stop drops all later packets
func (in *Inbound) Stop() {
	in.running.Store(false)
}

// Running reports whether packets are accepted
func (in *Inbound) Running() bool {
	return in.running.Load()
}

// StreamStarted records who is talking on a remote stream
func (in *Inbound) StreamStarted(ev transport.Event) {
	sender := ev.From
	if sender == "" {
		sender = UnknownSender
	}
	in.mu.Lock()
	in.senders[ev.StreamID] = sender
	in.mu.Unlock()

	in.logger.Debug().Uint32("stream_id", ev.StreamID).Str("from", sender).Msg("Remote stream started")
}

// StreamStopped forgets a remote stream
func (in *Inbound) StreamStopped(ev transport.Event) {
	in.mu.Lock()
	delete(in.senders, ev.StreamID)
	in.mu.Unlock()

	in.logger.Debug().Uint32("stream_id", ev.StreamID).Msg("Remote stream stopped")
}

// HandleAudio decodes one packet, plays it and publishes its payload
func (in *Inbound) HandleAudio(pkt transport.AudioPacket) {
	if !in.running.Load() {
		observability.RecordAudioPacket("in", "dropped", 0)
		return
	}

	in.mu.Lock()
	sender, ok := in.senders[pkt.StreamID]
	in.mu.Unlock()
	if !ok {
		sender = UnknownSender
	}

	frame, err := in.cfg.Codec.Decode(pkt.Payload)
	if err != nil {
		in.fault(fmt.Errorf("decode packet %d of stream %d: %w", pkt.PacketID, pkt.StreamID, err))
		return
	}
	frame.Sequence = uint64(pkt.PacketID)
	if err := in.cfg.Playback.WriteFrame(frame); err != nil {
		in.fault(fmt.Errorf("playback: %w", err))
		return
	}

	observability.RecordAudioPacket("in", "played", len(pkt.Payload))
	in.cfg.Publisher.AudioReceived(in.cfg.Channel, sender, pkt.Payload)
}

func (in *Inbound) fault(err error) {
	observability.RecordAudioPacket("in", "error", 0)
	in.logger.Error().Err(err).Msg("Inbound pipeline failed")
	if in.cfg.OnFault != nil {
		in.cfg.OnFault(err)
	}
}
