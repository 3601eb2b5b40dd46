package vox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/floor"
	"github.com/lexiqai/ptt-client/internal/observability"
)

// Requester is the part of the arbiter the gate drives
type Requester interface {
	RequestStart(source floor.Source) (bool, error)
	RequestStop(source floor.Source) bool
}

// WorkerConfig wires a Worker
type WorkerConfig struct {
	Capture       audio.CaptureDevice
	Classifier    audio.VoiceClassifier
	Floor         Requester
	FrameDuration time.Duration
	Hangover      time.Duration
	Logger        zerolog.Logger
}

// Worker samples the capture device once per frame and runs the gate
type Worker struct {
	cfg    WorkerConfig
	gate   *Gate
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a stopped worker
func NewWorker(cfg WorkerConfig) *Worker {
	return &Worker{
		cfg:    cfg,
		gate:   NewGate(cfg.FrameDuration, cfg.Hangover),
		logger: cfg.Logger.With().Str("component", "vox").Logger(),
	}
}

// Start launches the sampling loop
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	w.logger.Info().Dur("frame", w.cfg.FrameDuration).Msg("Voice activity gate started")
}

// Stop ends the loop, forces the gate to Silence and releases the stream
// if the gate was holding it
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if w.gate.Reset() {
		w.cfg.Floor.RequestStop(floor.SourceVox)
	}
	w.logger.Info().Msg("Voice activity gate stopped")
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.cfg.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, err := w.cfg.Capture.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			observability.RecordError("capture", "vox")
			w.logger.Warn().Err(err).Msg("Capture read failed")
			continue
		}
		w.observe(frame)
	}
}

// observe classifies one frame and acts on the gate decision
func (w *Worker) observe(frame audio.Frame) {
	switch w.gate.Observe(w.cfg.Classifier.Classify(frame)) {
	case DecisionStart:
		observability.RecordVoxDecision("start")
		if _, err := w.cfg.Floor.RequestStart(floor.SourceVox); err != nil {
			w.logger.Warn().Err(err).Msg("Voice activated start failed")
		}
	case DecisionStop:
		observability.RecordVoxDecision("stop")
		w.cfg.Floor.RequestStop(floor.SourceVox)
	}
}
