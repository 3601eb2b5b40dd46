// Package session owns the connection lifecycle of a push-to-talk channel
// client and wires the event bus, the stream arbiter, the voice activity
// gate and both audio pipelines together
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/events"
	"github.com/lexiqai/ptt-client/internal/floor"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/pipeline"
	"github.com/lexiqai/ptt-client/internal/transport"
	"github.com/lexiqai/ptt-client/internal/vox"
)

// Channel status values emitted through OnChannelStatusChanged
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// AnonymousSender names the local sender when logging on with a token
const AnonymousSender = "anonymous"

// Transport carries signaling and audio to the channel server
type Transport interface {
	Connect(ctx context.Context, h transport.Handler) error
	SendControl(ctx context.Context, cmd transport.Command) (*transport.Reply, error)
	SendBinary(data []byte) error
	Disconnect() error
}

type controllerConfig struct {
	builder    *Builder
	logger     zerolog.Logger
	transport  Transport
	codec      audio.Codec
	capture    audio.CaptureDevice
	playback   audio.PlaybackDevice
	classifier audio.VoiceClassifier
}

// Controller is one channel session
type Controller struct {
	id      string
	logger  zerolog.Logger
	metrics *observability.Metrics

	channel     string
	username    string
	password    string
	accessToken string
	auth        AuthMode
	sender      string
	ackTimeout  time.Duration

	transport  Transport
	bus        *events.Bus
	arbiter    *floor.Arbiter
	outbound   *pipeline.Outbound
	inbound    *pipeline.Inbound
	vox        *vox.Worker
	pttHandler PTTHandler

	ctrl   sync.Mutex // serializes Connect and Disconnect
	state  atomic.Int32
	faults sync.WaitGroup // inbound fault stops still running
}

func newController(cfg controllerConfig) (*Controller, error) {
	b := cfg.builder
	id := observability.NewSessionID()
	logger := observability.WithSessionID(cfg.logger, id).With().Str("channel", b.channel).Logger()

	c := &Controller{
		id:          id,
		logger:      observability.WithComponent(logger, "session"),
		metrics:     observability.NewSessionMetrics(id),
		channel:     b.channel,
		username:    b.username,
		password:    b.password,
		accessToken: b.accessToken,
		auth:        AuthToken,
		sender:      AnonymousSender,
		ackTimeout:  b.ackTimeout,
		transport:   cfg.transport,
		bus:         events.NewBus(logger),
		pttHandler:  b.pttHandler,
	}
	if b.credentials {
		c.auth = AuthCredentials
		c.sender = b.username
	}

	for _, l := range b.listeners {
		if err := c.bus.Register(l); err != nil {
			return nil, err
		}
	}

	// With VOX the gate and the outbound pipeline read the same device
	outboundCapture := cfg.capture
	var voxCapture audio.CaptureDevice
	if b.voxEnabled {
		tee := audio.NewCaptureTee(cfg.capture)
		outboundCapture = tee.NewReader()
		voxCapture = tee.NewReader()
	}

	c.outbound = pipeline.NewOutbound(pipeline.OutboundConfig{
		Transport:     cfg.transport,
		Codec:         cfg.codec,
		Capture:       outboundCapture,
		SampleRate:    b.format.SampleRate,
		FrameDuration: b.packetDuration,
		AckTimeout:    b.ackTimeout,
		OnFault:       c.outboundFault,
		Logger:        logger,
	})
	c.inbound = pipeline.NewInbound(pipeline.InboundConfig{
		Codec:     cfg.codec,
		Playback:  cfg.playback,
		Publisher: c.bus,
		Channel:   b.channel,
		OnFault:   c.inboundFault,
		Logger:    logger,
	})
	c.arbiter = floor.New(c.outbound, floorNotifier{c}, logger)

	if b.voxEnabled {
		c.vox = vox.NewWorker(vox.WorkerConfig{
			Capture:       voxCapture,
			Classifier:    cfg.classifier,
			Floor:         c.arbiter,
			FrameDuration: b.packetDuration,
			Hangover:      vox.DefaultHangover,
			Logger:        logger,
		})
	}

	c.logger.Info().
		Str("server", b.serverURI).
		Stringer("auth", c.auth).
		Stringer("format", b.format).
		Dur("packet", b.packetDuration).
		Bool("vox", b.voxEnabled).
		Msg("Session created")
	return c, nil
}

// SessionID returns the correlation id used in logs
func (c *Controller) SessionID() string {
	return c.id
}

// Channel returns the channel name
func (c *Controller) Channel() string {
	return c.channel
}

// AuthMode returns how the session logs on
func (c *Controller) AuthMode() AuthMode {
	return c.auth
}

// State returns the current connection state
func (c *Controller) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected reports whether the session is Connected
func (c *Controller) IsConnected() bool {
	return c.State() == StateConnected
}

// IsPttActive reports whether the outbound stream is active
func (c *Controller) IsPttActive() bool {
	return c.arbiter.Active()
}

// CustomPTTHandler returns the configured handler, or nil
func (c *Controller) CustomPTTHandler() PTTHandler {
	return c.pttHandler
}

// AddListener registers a listener before the first Connect
func (c *Controller) AddListener(l events.Listener) error {
	return c.bus.Register(l)
}

// setState moves along a legal edge. Callers hold ctrl.
func (c *Controller) setState(next ConnectionState) {
	prev := c.State()
	if !CanTransition(prev, next) {
		c.logger.Error().Stringer("from", prev).Stringer("to", next).Msg("Illegal state transition")
		return
	}
	c.state.Store(int32(next))
	c.metrics.RecordState(int(next))
	c.logger.Debug().Stringer("from", prev).Stringer("to", next).Msg("State changed")
}

// Connect dials the server and logs on. Calling it while not
// Disconnected is a no-op.
func (c *Controller) Connect(ctx context.Context) error {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	if state := c.State(); state != StateDisconnected {
		c.logger.Warn().Stringer("state", state).Msg("Connect ignored, session not disconnected")
		return nil
	}

	c.setState(StateConnecting)
	c.bus.Seal()
	c.bus.Start()

	if err := c.transport.Connect(ctx, transportHandler{c}); err != nil {
		return c.connectFailed("dial", err, false)
	}

	logonCtx, cancel := context.WithTimeout(ctx, c.ackTimeout)
	_, err := c.transport.SendControl(logonCtx, transport.LogonCommand(c.channel, c.username, c.password, c.accessToken))
	cancel()
	if err != nil {
		return c.connectFailed("logon", err, true)
	}

	c.setState(StateConnected)
	c.metrics.RecordConnectResult(true)
	c.arbiter.Open()
	c.inbound.Start()
	c.bus.ChannelStatus(c.channel, StatusConnected)
	if c.vox != nil {
		c.vox.Start()
	}
	if c.pttHandler != nil {
		c.pttHandler.Initialize(c)
	}

	c.logger.Info().Str("sender", c.sender).Msg("Connected to channel")
	return nil
}

func (c *Controller) connectFailed(op string, err error, dialed bool) error {
	if dialed {
		if derr := c.transport.Disconnect(); derr != nil {
			c.logger.Warn().Err(derr).Msg("Failed to close transport after connect failure")
		}
	}
	c.setState(StateDisconnected)
	c.metrics.RecordConnectResult(false)
	c.metrics.RecordError(op, "session")

	connErr := &ConnectionError{Op: op, Err: err}
	c.logger.Error().Err(err).Str("op", op).Msg("Connect failed")
	c.bus.Error(connErr)
	c.bus.Close()
	return connErr
}

// Disconnect stops any outbound stream, the gate and the inbound pipeline,
// then closes the transport. The stream stop event is delivered before
// the disconnected status. Calling it while Disconnected is a no-op.
func (c *Controller) Disconnect() error {
	c.ctrl.Lock()
	defer c.ctrl.Unlock()

	if c.State() == StateDisconnected {
		c.logger.Warn().Msg("Disconnect ignored, session already disconnected")
		return nil
	}

	c.setState(StateDisconnecting)
	if c.pttHandler != nil {
		c.pttHandler.Cleanup()
	}
	c.arbiter.Close()
	if c.vox != nil {
		c.vox.Stop()
	}
	c.inbound.Stop()

	var result error
	if err := c.transport.Disconnect(); err != nil {
		c.logger.Warn().Err(err).Msg("Transport close failed")
		result = &ConnectionError{Op: "disconnect", Err: err}
	}
	// The read loop has exited, so no more fault stops can be queued
	c.faults.Wait()

	c.setState(StateDisconnected)
	c.metrics.RecordDisconnected()
	c.bus.ChannelStatus(c.channel, StatusDisconnected)
	c.bus.Close()

	c.logger.Info().Msg("Disconnected from channel")
	return result
}

// StartPushToTalk opens the outbound stream for the manual trigger. It is
// a no-op while not Connected.
func (c *Controller) StartPushToTalk() error {
	if !c.IsConnected() {
		c.logger.Warn().Stringer("state", c.State()).Msg("StartPushToTalk ignored, session not connected")
		return nil
	}
	if _, err := c.arbiter.RequestStart(floor.SourceManual); err != nil {
		return &StreamError{Direction: DirectionOutbound, Err: err}
	}
	return nil
}

// StopPushToTalk releases a manually held stream. It is a no-op when the
// manual trigger does not hold the stream.
func (c *Controller) StopPushToTalk() error {
	if holder, ok := c.arbiter.Holder(); !ok || holder != floor.SourceManual {
		c.logger.Warn().Msg("StopPushToTalk ignored, no manual stream active")
		return nil
	}
	c.arbiter.RequestStop(floor.SourceManual)
	return nil
}

func (c *Controller) outboundFault(epoch uint64, err error) {
	c.metrics.RecordError("pipeline", DirectionOutbound)
	c.bus.Error(&StreamError{Direction: DirectionOutbound, Err: err})
	c.arbiter.StopEpoch(epoch)
}

func (c *Controller) inboundFault(err error) {
	c.metrics.RecordError("pipeline", DirectionInbound)
	c.bus.Error(&StreamError{Direction: DirectionInbound, Err: err})

	epoch, ok := c.arbiter.ActiveEpoch()
	if !ok {
		return
	}
	// Runs on the transport read loop, which must keep routing replies
	c.faults.Add(1)
	go func() {
		defer c.faults.Done()
		c.arbiter.StopEpoch(epoch)
	}()
}

// floorNotifier publishes arbiter transitions
type floorNotifier struct {
	c *Controller
}

func (n floorNotifier) StreamStarted(source floor.Source) {
	n.c.metrics.RecordStreamStart(source.String())
	n.c.bus.StreamStarted(n.c.channel, n.c.sender)
}

func (n floorNotifier) StreamStopped(source floor.Source) {
	n.c.metrics.RecordStreamStop(source.String())
	n.c.bus.StreamStopped(n.c.channel, n.c.sender)
}

func (n floorNotifier) StreamFailed(source floor.Source, err error) {
	n.c.metrics.RecordError("start_stream", source.String())
	n.c.bus.Error(&StreamError{Direction: DirectionOutbound, Err: err})
}

// transportHandler routes server traffic into the session
type transportHandler struct {
	c *Controller
}

func (h transportHandler) HandleEvent(ev transport.Event) {
	c := h.c
	switch ev.Command {
	case transport.EventStreamStart:
		c.inbound.StreamStarted(ev)
	case transport.EventStreamStop:
		c.inbound.StreamStopped(ev)
	case transport.EventTextMessage:
		channel := ev.Channel
		if channel == "" {
			channel = c.channel
		}
		c.bus.TextMessage(channel, ev.From, ev.Text)
	case transport.EventChannelStatus:
		c.logger.Info().Str("status", ev.Status).Int("users_online", ev.UsersOnline).Msg("Channel status")
	case transport.EventError:
		c.metrics.RecordError("server", "session")
		c.bus.Error(&ConnectionError{Op: "server", Err: errors.New(ev.Error)})
	default:
		c.logger.Debug().Str("command", ev.Command).Msg("Unhandled server event")
	}
}

func (h transportHandler) HandleAudio(pkt transport.AudioPacket) {
	h.c.inbound.HandleAudio(pkt)
}

func (h transportHandler) HandleError(err error) {
	c := h.c
	if !c.IsConnected() {
		return
	}
	c.metrics.RecordError("connection_lost", "session")
	c.bus.Error(&ConnectionError{Op: "read", Err: err})
	go func() {
		if err := c.Disconnect(); err != nil {
			c.logger.Warn().Err(err).Msg("Disconnect after connection loss failed")
		}
	}()
}
