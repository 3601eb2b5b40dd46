package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lexiqai/ptt-client/internal/audio"
)

// Config holds all configuration for the push-to-talk client
type Config struct {
	// Channel server configuration
	ServerURI   string `envconfig:"PTT_SERVER_URI" required:"true"` // e.g. wss://zello.io/ws
	Username    string `envconfig:"PTT_USERNAME" default:""`
	Password    string `envconfig:"PTT_PASSWORD" default:""`
	AccessToken string `envconfig:"PTT_ACCESS_TOKEN" default:""` // Used instead of username/password
	Channel     string `envconfig:"PTT_CHANNEL" required:"true"`

	// Audio configuration
	Encoding         string  `envconfig:"PTT_ENCODING" default:"pcm_signed"` // pcm_signed, pcm_unsigned, ulaw, alaw
	SampleRate       int     `envconfig:"PTT_SAMPLE_RATE" default:"16000"`
	BitsPerSample    int     `envconfig:"PTT_BITS_PER_SAMPLE" default:"16"`
	Channels         int     `envconfig:"PTT_CHANNELS" default:"1"`
	PacketDurationMs float64 `envconfig:"PTT_PACKET_DURATION_MS" default:"20"` // 2.5 to 60
	VoxMode          string  `envconfig:"PTT_VOX_MODE" default:""`             // empty disables VOX

	// Signaling
	AckTimeout time.Duration `envconfig:"PTT_ACK_TIMEOUT" default:"5s"` // Wait for command replies

	// Audio devices: raw audio in the configured format, "-" for stdin/stdout
	CapturePath  string `envconfig:"PTT_CAPTURE_PATH" default:""`
	PlaybackPath string `envconfig:"PTT_PLAYBACK_PATH" default:""`

	// Deepgram STT for received audio (optional)
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// Observability configuration
	Port           string `envconfig:"PORT" default:"9102"`
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Serve /metrics, /health and /ready
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURI == "" {
		return fmt.Errorf("PTT_SERVER_URI is required")
	}
	if c.Channel == "" {
		return fmt.Errorf("PTT_CHANNEL is required")
	}
	if _, err := c.AudioFormat(); err != nil {
		return err
	}
	if _, _, err := c.Vox(); err != nil {
		return err
	}
	return nil
}

// AudioFormat returns the configured capture and playback format
func (c *Config) AudioFormat() (audio.Format, error) {
	encoding, err := audio.ParseEncoding(c.Encoding)
	if err != nil {
		return audio.Format{}, fmt.Errorf("PTT_ENCODING: %w", err)
	}
	return audio.Format{
		Encoding:      encoding,
		SampleRate:    c.SampleRate,
		BitsPerSample: c.BitsPerSample,
		Channels:      c.Channels,
	}, nil
}

// PacketDuration returns the frame duration
func (c *Config) PacketDuration() time.Duration {
	return time.Duration(c.PacketDurationMs * float64(time.Millisecond))
}

// Vox returns the configured VOX mode and whether VOX is enabled
func (c *Config) Vox() (audio.VoxMode, bool, error) {
	if c.VoxMode == "" {
		return 0, false, nil
	}
	mode, err := audio.ParseVoxMode(c.VoxMode)
	if err != nil {
		return 0, false, fmt.Errorf("PTT_VOX_MODE: %w", err)
	}
	return mode, true, nil
}
