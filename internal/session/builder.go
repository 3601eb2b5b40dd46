package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/codec"
	"github.com/lexiqai/ptt-client/internal/events"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/pipeline"
	"github.com/lexiqai/ptt-client/internal/transport"
)

// Packet duration bounds
const (
	MinPacketDuration     = 2500 * time.Microsecond
	MaxPacketDuration     = 60 * time.Millisecond
	DefaultPacketDuration = 20 * time.Millisecond
)

// AuthMode is how the session logs on
type AuthMode int

const (
	AuthCredentials AuthMode = iota
	AuthToken
)

func (m AuthMode) String() string {
	if m == AuthToken {
		return "token"
	}
	return "credentials"
}

// Builder collects session options. Build validates them all at once.
type Builder struct {
	serverURI   string
	channel     string
	username    string
	password    string
	accessToken string
	credentials bool
	token       bool

	format         audio.Format
	packetDuration time.Duration
	voxMode        audio.VoxMode
	voxEnabled     bool
	ackTimeout     time.Duration

	pttHandler PTTHandler
	listeners  []events.Listener

	transport  Transport
	codec      audio.Codec
	capture    audio.CaptureDevice
	playback   audio.PlaybackDevice
	classifier audio.VoiceClassifier

	logger    zerolog.Logger
	loggerSet bool
}

// NewBuilder returns a builder with the default audio format and packet duration
func NewBuilder() *Builder {
	return &Builder{
		format:         audio.DefaultFormat(),
		packetDuration: DefaultPacketDuration,
		ackTimeout:     pipeline.DefaultAckTimeout,
	}
}

// ServerURI sets the channel server WebSocket address
func (b *Builder) ServerURI(uri string) *Builder {
	b.serverURI = uri
	return b
}

// Credentials authenticates with a username and password
func (b *Builder) Credentials(username, password string) *Builder {
	b.username = username
	b.password = password
	b.credentials = true
	return b
}

// AccessToken authenticates with a token
func (b *Builder) AccessToken(token string) *Builder {
	b.accessToken = token
	b.token = true
	return b
}

// Channel sets the channel to join
func (b *Builder) Channel(name string) *Builder {
	b.channel = name
	return b
}

// AudioFormat sets the raw format of capture and playback audio
func (b *Builder) AudioFormat(encoding audio.Encoding, sampleRate, bitsPerSample, channels int) *Builder {
	b.format = audio.Format{
		Encoding:      encoding,
		SampleRate:    sampleRate,
		BitsPerSample: bitsPerSample,
		Channels:      channels,
	}
	return b
}

// PacketDuration sets the frame duration, between 2.5 ms and 60 ms
func (b *Builder) PacketDuration(d time.Duration) *Builder {
	b.packetDuration = d
	return b
}

// EnableVox turns on voice activated transmission
func (b *Builder) EnableVox(mode audio.VoxMode) *Builder {
	b.voxMode = mode
	b.voxEnabled = true
	return b
}

// WithCustomPTTHandler installs an external push-to-talk driver
func (b *Builder) WithCustomPTTHandler(h PTTHandler) *Builder {
	b.pttHandler = h
	return b
}

// AddMessageListener registers a listener. Nil is ignored.
func (b *Builder) AddMessageListener(l events.Listener) *Builder {
	if l != nil {
		b.listeners = append(b.listeners, l)
	}
	return b
}

// AckTimeout bounds the wait for each command reply
func (b *Builder) AckTimeout(d time.Duration) *Builder {
	b.ackTimeout = d
	return b
}

// WithTransport replaces the WebSocket transport
func (b *Builder) WithTransport(t Transport) *Builder {
	b.transport = t
	return b
}

// WithCodec replaces the Opus codec
func (b *Builder) WithCodec(c audio.Codec) *Builder {
	b.codec = c
	return b
}

// WithCaptureDevice sets the audio source. Defaults to silence.
func (b *Builder) WithCaptureDevice(d audio.CaptureDevice) *Builder {
	b.capture = d
	return b
}

// WithPlaybackDevice sets the audio sink. Defaults to discarding.
func (b *Builder) WithPlaybackDevice(d audio.PlaybackDevice) *Builder {
	b.playback = d
	return b
}

// WithVoiceClassifier replaces the energy classifier used for VOX
func (b *Builder) WithVoiceClassifier(c audio.VoiceClassifier) *Builder {
	b.classifier = c
	return b
}

// WithLogger sets the base logger
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// Build validates the options and creates a disconnected session
func (b *Builder) Build() (*Controller, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if !b.loggerSet {
		logger = observability.GetLogger()
	}

	var err error
	c := b.codec
	if c == nil {
		if c, err = codec.NewOpus(b.format, b.packetDuration); err != nil {
			return nil, &ConfigurationError{Field: "Codec", Message: err.Error()}
		}
	}

	t := b.transport
	if t == nil {
		t = transport.NewClient(transport.Config{URL: b.serverURI, Logger: logger})
	}
	capture := b.capture
	if capture == nil {
		capture = audio.NewSilenceCapture(b.format, b.packetDuration)
	}
	playback := b.playback
	if playback == nil {
		playback = audio.DiscardPlayback{}
	}
	classifier := b.classifier
	if classifier == nil && b.voxEnabled {
		classifier = audio.NewEnergyClassifier(b.format, b.voxMode)
	}

	return newController(controllerConfig{
		builder:    b,
		logger:     logger,
		transport:  t,
		codec:      c,
		capture:    capture,
		playback:   playback,
		classifier: classifier,
	})
}

func (b *Builder) validate() error {
	switch {
	case b.serverURI == "":
		return &ConfigurationError{Field: "ServerURI", Message: "server URI must be specified"}
	case b.channel == "":
		return &ConfigurationError{Field: "Channel", Message: "channel must be specified"}
	case b.credentials && b.token:
		return &ConfigurationError{Field: "Auth", Message: "cannot use both credentials and an access token"}
	case !b.credentials && !b.token:
		return &ConfigurationError{Field: "Auth", Message: "either credentials or an access token must be provided"}
	case b.credentials && b.username == "":
		return &ConfigurationError{Field: "Auth", Message: "username must not be empty"}
	case b.token && b.accessToken == "":
		return &ConfigurationError{Field: "Auth", Message: "access token must not be empty"}
	case b.packetDuration < MinPacketDuration || b.packetDuration > MaxPacketDuration:
		return &ConfigurationError{Field: "PacketDuration", Message: "must be between 2.5ms and 60ms, got " + b.packetDuration.String()}
	case b.ackTimeout <= 0:
		return &ConfigurationError{Field: "AckTimeout", Message: "must be positive"}
	}
	if err := b.format.Validate(); err != nil {
		return &ConfigurationError{Field: "AudioFormat", Message: err.Error()}
	}
	return nil
}
