// Package stt transcribes audio received on the channel with Deepgram's
// streaming API
package stt

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/events"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/resilience"
)

// ErrNotActive is returned when audio arrives while no stream is open
var ErrNotActive = errors.New("transcriber is not active")

// messageCallbackHandler implements the LiveMessageCallback interface.
// It embeds the default handler and overrides only Message and Error.
type messageCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	handler      func(*msginterfaces.MessageResponse)
	errorHandler func(*msginterfaces.ErrorResponse) error
}

func (m *messageCallbackHandler) Message(message *msginterfaces.MessageResponse) error {
	m.handler(message)
	return nil
}

func (m *messageCallbackHandler) Error(errorResponse *msginterfaces.ErrorResponse) error {
	if m.errorHandler != nil {
		return m.errorHandler(errorResponse)
	}
	return m.DefaultCallbackHandler.Error(errorResponse)
}

// Config wires a Transcriber
type Config struct {
	APIKey   string
	Model    string
	Language string

	// Format is the raw format Decoder produces
	Format  audio.Format
	Decoder audio.Decoder

	BreakerFailures int
	BreakerReset    time.Duration
	Reconnect       resilience.ReconnectConfig

	// OnTranscript, if set, is called for every result on the Deepgram
	// callback goroutine
	OnTranscript func(TranscriptionResult)

	Logger zerolog.Logger
}

type dialFunc func(ctx context.Context, callback msginterfaces.LiveMessageCallback) (audioStream, error)

// Transcriber is a session listener that streams received channel audio
// to Deepgram while the session is connected
type Transcriber struct {
	events.BaseListener

	cfg     Config
	logger  zerolog.Logger
	breaker *resilience.CircuitBreaker
	dial    dialFunc
	results chan TranscriptionResult

	mu         sync.Mutex
	stream     audioStream
	channel    string
	ctx        context.Context
	cancel     context.CancelFunc
	firstAudio time.Time
}

// NewTranscriber creates an idle transcriber
func NewTranscriber(cfg Config) *Transcriber {
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerReset <= 0 {
		cfg.BreakerReset = 30 * time.Second
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect = resilience.DefaultReconnectConfig()
	}

	t := &Transcriber{
		cfg:     cfg,
		logger:  observability.WithComponent(cfg.Logger, "stt"),
		breaker: resilience.NewCircuitBreaker("deepgram", cfg.BreakerFailures, cfg.BreakerReset),
		results: make(chan TranscriptionResult, 100),
	}
	t.dial = t.dialDeepgram
	return t
}

// Results returns the channel transcripts are delivered on. Results are
// dropped when nobody reads them.
func (t *Transcriber) Results() <-chan TranscriptionResult {
	return t.results
}

// OnChannelStatusChanged opens the stream on connect and closes it on
// disconnect
func (t *Transcriber) OnChannelStatusChanged(channel, status string) {
	switch status {
	case "connected":
		t.Start(channel)
	case "disconnected":
		t.Stop()
	}
}

// OnAudioStreamReceived decodes one packet and streams it as linear16
func (t *Transcriber) OnAudioStreamReceived(channel, sender string, payload []byte) {
	if err := t.SendPacket(payload); err != nil && !errors.Is(err, ErrNotActive) {
		t.logger.Debug().Err(err).Str("sender", sender).Msg("Dropped audio for transcription")
	}
}

// Start opens a Deepgram stream in the background. It returns at once so
// the event dispatcher is never held by the network.
func (t *Transcriber) Start(channel string) {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.ctx, t.cancel = ctx, cancel
	t.channel = channel
	t.mu.Unlock()

	go t.connect(ctx)
}

func (t *Transcriber) connect(ctx context.Context) {
	err := resilience.Reconnect(ctx, func() error {
		return t.breaker.Call(func() error { return t.open(ctx) })
	}, t.cfg.Reconnect, t.logger)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.RecordError("connect", "stt")
		t.logger.Error().Err(err).Msg("Could not open Deepgram stream")
	}
}

func (t *Transcriber) open(ctx context.Context) error {
	callback := &messageCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		handler:                t.handleDeepgramMessage,
		errorHandler: func(errorResponse *msginterfaces.ErrorResponse) error {
			t.logger.Error().Str("error", fmt.Sprintf("%+v", errorResponse)).Msg("Deepgram error")
			t.breaker.RecordResult(false)
			observability.RecordError("deepgram", "stt")
			t.dropStream(ctx)
			return nil
		},
	}

	stream, err := t.dial(ctx, callback)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if ctx.Err() != nil || t.ctx != ctx {
		stream.Finish()
		return ctx.Err()
	}
	t.stream = stream
	t.logger.Info().Str("model", t.cfg.Model).Str("language", t.cfg.Language).Msg("Deepgram stream open")
	return nil
}

func (t *Transcriber) dialDeepgram(ctx context.Context, callback msginterfaces.LiveMessageCallback) (audioStream, error) {
	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       t.cfg.Language,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       t.cfg.Format.Channels,
		SampleRate:     t.cfg.Format.SampleRate,
	}

	client, err := listenClient.NewWSUsingCallback(ctx, t.cfg.APIKey, &interfaces.ClientOptions{}, tOptions, callback)
	if err != nil {
		return nil, fmt.Errorf("failed to create Deepgram client: %w", err)
	}
	if !client.Connect() {
		return nil, errors.New("failed to connect to Deepgram")
	}
	return client, nil
}

// dropStream forgets a failed stream and reconnects if still running
func (t *Transcriber) dropStream(ctx context.Context) {
	t.mu.Lock()
	if t.ctx != ctx || t.stream == nil {
		t.mu.Unlock()
		return
	}
	t.stream = nil
	t.mu.Unlock()

	go t.connect(ctx)
}

// SendPacket decodes an encoded channel packet and writes it to Deepgram
func (t *Transcriber) SendPacket(payload []byte) error {
	frame, err := t.cfg.Decoder.Decode(payload)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	samples, err := audio.ToLinear16(t.cfg.Format, frame.Payload)
	if err != nil {
		return fmt.Errorf("convert: %w", err)
	}
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
	}
	return t.SendAudio(pcm)
}

// SendAudio writes linear16 audio through the circuit breaker
func (t *Transcriber) SendAudio(pcm []byte) error {
	t.mu.Lock()
	stream := t.stream
	if stream != nil && t.firstAudio.IsZero() {
		t.firstAudio = time.Now()
	}
	t.mu.Unlock()

	if stream == nil {
		return ErrNotActive
	}
	return t.breaker.Call(func() error {
		if _, err := stream.Write(pcm); err != nil {
			return fmt.Errorf("failed to send audio to Deepgram: %w", err)
		}
		return nil
	})
}

// handleDeepgramMessage maps a Deepgram response onto a TranscriptionResult
func (t *Transcriber) handleDeepgramMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "Results", "Message":
	default:
		t.logger.Debug().Str("type", msg.Type).Msg("Deepgram message")
		return
	}
	if len(msg.Channel.Alternatives) == 0 {
		return
	}
	alt := msg.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return
	}

	startTime, duration := msg.Start, msg.Duration
	if duration == 0 && len(alt.Words) > 0 {
		startTime = alt.Words[0].Start
		duration = alt.Words[len(alt.Words)-1].End - startTime
	}

	t.mu.Lock()
	result := TranscriptionResult{
		Channel:    t.channel,
		Text:       alt.Transcript,
		IsFinal:    msg.IsFinal,
		Confidence: alt.Confidence,
		StartTime:  startTime,
		Duration:   duration,
	}
	if msg.IsFinal && !t.firstAudio.IsZero() {
		result.Latency = time.Since(t.firstAudio)
		t.firstAudio = time.Time{}
	}
	t.mu.Unlock()

	observability.RecordTranscript(result.IsFinal, result.Latency)
	t.logger.Debug().
		Bool("final", result.IsFinal).
		Float64("confidence", result.Confidence).
		Str("text", result.Text).
		Msg("Transcript")

	if t.cfg.OnTranscript != nil {
		t.cfg.OnTranscript(result)
	}
	select {
	case t.results <- result:
	default:
		t.logger.Warn().Msg("Transcript channel full, dropping transcript")
	}
}

// Stop finishes the Deepgram stream and cancels any reconnect in progress
func (t *Transcriber) Stop() {
	t.mu.Lock()
	cancel, stream := t.cancel, t.stream
	t.cancel, t.ctx, t.stream = nil, nil, nil
	t.firstAudio = time.Time{}
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if stream != nil {
		stream.Finish()
	}
	t.logger.Info().Msg("Deepgram stream stopped")
}

// IsActive reports whether a Deepgram stream is open
func (t *Transcriber) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stream != nil
}
