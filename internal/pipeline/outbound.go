// Package pipeline moves audio between devices, the codec and the
// transport: outbound while the stream is active, inbound while connected
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/transport"
)

// DefaultAckTimeout bounds the wait for start_stream and stop_stream replies
const DefaultAckTimeout = 5 * time.Second

// Sender is the transport surface the outbound pipeline needs
type Sender interface {
	SendControl(ctx context.Context, cmd transport.Command) (*transport.Reply, error)
	SendBinary(data []byte) error
}

// OutboundConfig wires an Outbound pipeline
type OutboundConfig struct {
	Transport     Sender
	Codec         audio.Encoder
	Capture       audio.CaptureDevice
	SampleRate    int
	FrameDuration time.Duration
	AckTimeout    time.Duration
	// OnFault is called from the worker after it has exited
	OnFault func(epoch uint64, err error)
	Logger  zerolog.Logger
}

var errHalted = errors.New("outbound stream halted")

// Outbound runs capture, encode and send once per frame while the stream
// is active. It implements floor.Streamer; Start and Stop are serialized
// by the caller.
type Outbound struct {
	cfg    OutboundConfig
	logger zerolog.Logger

	mu       sync.Mutex // guards sends and the stream identity
	halted   bool
	epoch    uint64
	streamID uint32
	packetID uint32

	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbound creates an idle outbound pipeline
func NewOutbound(cfg OutboundConfig) *Outbound {
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	return &Outbound{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "outbound").Logger(),
		halted: true,
	}
}

// Start opens a stream on the server and launches the frame worker
func (o *Outbound) Start(epoch uint64) error {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AckTimeout)
	defer cancel()

	header := transport.NewCodecHeader(o.cfg.SampleRate, o.cfg.FrameDuration)
	reply, err := o.cfg.Transport.SendControl(ctx, transport.StartStreamCommand(header))
	if err != nil {
		return fmt.Errorf("start_stream: %w", err)
	}

	o.mu.Lock()
	o.halted = false
	o.epoch = epoch
	o.streamID = reply.StreamID
	o.packetID = 0
	o.mu.Unlock()

	workerCtx, workerCancel := context.WithCancel(context.Background())
	o.cancel = workerCancel
	o.done = make(chan struct{})
	go o.run(workerCtx, epoch, o.done)

	o.logger.Debug().Uint32("stream_id", reply.StreamID).Uint64("epoch", epoch).Msg("Outbound stream open")
	return nil
}

// Stop cancels the worker, waits at most two frames for it to flush, then
// halts sends and closes the stream on the server. No packet is sent
// after Stop returns.
func (o *Outbound) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	o.cancel = nil

	timer := time.NewTimer(2 * o.cfg.FrameDuration)
	select {
	case <-o.done:
	case <-timer.C:
		o.logger.Warn().Msg("Outbound worker did not stop within two frames, halting sends")
	}
	timer.Stop()

	o.mu.Lock()
	o.halted = true
	streamID := o.streamID
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.AckTimeout)
	defer cancel()
	if _, err := o.cfg.Transport.SendControl(ctx, transport.StopStreamCommand(streamID)); err != nil {
		o.logger.Warn().Err(err).Uint32("stream_id", streamID).Msg("stop_stream failed")
	}
}

func (o *Outbound) run(ctx context.Context, epoch uint64, done chan struct{}) {
	var fault error
	defer func() {
		close(done)
		if fault != nil && o.cfg.OnFault != nil {
			o.cfg.OnFault(epoch, fault)
		}
	}()

	ticker := time.NewTicker(o.cfg.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.flush(epoch, true)
			return
		case <-ticker.C:
		}

		frame, err := o.cfg.Capture.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				o.flush(epoch, true)
				return
			}
			fault = fmt.Errorf("capture: %w", err)
			break
		}
		payload, err := o.cfg.Codec.Encode(frame)
		if err != nil {
			fault = fmt.Errorf("encode: %w", err)
			break
		}
		if payload == nil {
			continue
		}
		if err := o.send(epoch, payload); err != nil {
			if errors.Is(err, errHalted) {
				o.flush(epoch, false)
				return
			}
			fault = fmt.Errorf("send: %w", err)
			break
		}
	}

	o.flush(epoch, false)
	o.logger.Error().Err(fault).Msg("Outbound pipeline failed")
}

// flush drains a buffering codec, sending the result only when asked
func (o *Outbound) flush(epoch uint64, send bool) {
	f, ok := o.cfg.Codec.(audio.Flusher)
	if !ok {
		return
	}
	packets, err := f.Flush()
	if err != nil {
		o.logger.Warn().Err(err).Msg("Codec flush failed")
	}
	if !send {
		return
	}
	for _, p := range packets {
		if err := o.send(epoch, p); err != nil {
			return
		}
	}
}

func (o *Outbound) send(epoch uint64, payload []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.halted || o.epoch != epoch {
		observability.RecordAudioPacket("out", "dropped", 0)
		return errHalted
	}
	o.packetID++
	pkt := transport.AudioPacket{StreamID: o.streamID, PacketID: o.packetID, Payload: payload}
	if err := o.cfg.Transport.SendBinary(pkt.Marshal()); err != nil {
		observability.RecordAudioPacket("out", "error", 0)
		return err
	}
	observability.RecordAudioPacket("out", "sent", len(payload))
	return nil
}
