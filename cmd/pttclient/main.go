package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/codec"
	"github.com/lexiqai/ptt-client/internal/config"
	"github.com/lexiqai/ptt-client/internal/observability"
	"github.com/lexiqai/ptt-client/internal/session"
	"github.com/lexiqai/ptt-client/internal/stt"
)

// captureBufferFrames is how much input audio may queue ahead of the
// outbound pipeline
const captureBufferFrames = 50

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	format, err := cfg.AudioFormat()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid audio format")
	}
	voxMode, voxEnabled, err := cfg.Vox()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid VOX mode")
	}

	logger.Info().
		Str("server", cfg.ServerURI).
		Str("channel", cfg.Channel).
		Stringer("format", format).
		Dur("packet", cfg.PacketDuration()).
		Bool("vox", voxEnabled).
		Str("log_level", cfg.LogLevel).
		Msg("Push-to-talk client starting")

	b := session.NewBuilder().
		ServerURI(cfg.ServerURI).
		Channel(cfg.Channel).
		AudioFormat(format.Encoding, format.SampleRate, format.BitsPerSample, format.Channels).
		PacketDuration(cfg.PacketDuration()).
		AckTimeout(cfg.AckTimeout).
		WithCustomPTTHandler(newSignalPTT(logger)).
		AddMessageListener(newLogListener(logger)).
		WithLogger(logger)
	if cfg.AccessToken != "" {
		b.AccessToken(cfg.AccessToken)
	} else {
		b.Credentials(cfg.Username, cfg.Password)
	}
	if voxEnabled {
		b.EnableVox(voxMode)
	}

	closers, err := wireDevices(cfg, format, b, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open audio devices")
	}
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()

	if cfg.DeepgramAPIKey != "" {
		transcriber, err := newTranscriber(cfg, format, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create transcriber")
		}
		b.AddMessageListener(transcriber)
	}

	ptt, err := b.Build()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid session configuration")
	}

	server := startHTTP(cfg, ptt, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = ptt.Connect(ctx)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down...")
	if err := ptt.Disconnect(); err != nil {
		logger.Warn().Err(err).Msg("Disconnect failed")
	}

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("HTTP server forced to shutdown")
		}
	}
	logger.Info().Msg("Client exited gracefully")
}

// wireDevices attaches file or stdio backed capture and playback
func wireDevices(cfg *config.Config, format audio.Format, b *session.Builder, logger zerolog.Logger) ([]io.Closer, error) {
	var closers []io.Closer

	if cfg.CapturePath != "" {
		var src io.ReadCloser = os.Stdin
		if cfg.CapturePath != "-" {
			f, err := os.Open(cfg.CapturePath)
			if err != nil {
				return closers, fmt.Errorf("open capture: %w", err)
			}
			src = f
			closers = append(closers, f)
		}

		capture := audio.NewBufferedCapture(format, cfg.PacketDuration(), captureBufferFrames)
		closers = append(closers, capture)
		go func() {
			n, err := io.Copy(capture, src)
			if err != nil && !errors.Is(err, audio.ErrCaptureClosed) {
				logger.Warn().Err(err).Msg("Capture input failed")
			}
			logger.Info().Int64("bytes", n).Msg("Capture input ended")
		}()
		b.WithCaptureDevice(capture)
	}

	if cfg.PlaybackPath != "" {
		var dst io.Writer = os.Stdout
		if cfg.PlaybackPath != "-" {
			f, err := os.Create(cfg.PlaybackPath)
			if err != nil {
				return closers, fmt.Errorf("create playback: %w", err)
			}
			dst = f
			closers = append(closers, f)
		}
		b.WithPlaybackDevice(audio.NewWriterPlayback(dst))
	}
	return closers, nil
}

func newTranscriber(cfg *config.Config, format audio.Format, logger zerolog.Logger) (*stt.Transcriber, error) {
	// The transcriber keeps its own decoder state
	decoder, err := codec.NewOpus(format, cfg.PacketDuration())
	if err != nil {
		return nil, err
	}
	return stt.NewTranscriber(stt.Config{
		APIKey:   cfg.DeepgramAPIKey,
		Model:    cfg.DeepgramModel,
		Language: cfg.DeepgramLanguage,
		Format:   format,
		Decoder:  decoder,
		OnTranscript: func(r stt.TranscriptionResult) {
			if r.IsFinal {
				logger.Info().Str("channel", r.Channel).Str("text", r.Text).Dur("latency", r.Latency).Msg("Transcript")
			}
		},
		Logger: logger,
	}), nil
}

func startHTTP(cfg *config.Config, ptt *session.Controller, logger zerolog.Logger) *http.Server {
	if !cfg.MetricsEnabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", observability.HealthCheckHandler(func() string {
		return ptt.State().String()
	}))
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"channel": func(ctx context.Context) (bool, error) {
			if !ptt.IsConnected() {
				return false, fmt.Errorf("session is %s", ptt.State())
			}
			return true, nil
		},
	}))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info().Str("port", cfg.Port).Msg("Serving /health, /ready and /metrics")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return server
}
