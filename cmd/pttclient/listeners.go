package main

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/session"
)

// logListener writes every session event to the log
type logListener struct {
	logger zerolog.Logger
}

func newLogListener(logger zerolog.Logger) *logListener {
	return &logListener{logger: logger.With().Str("component", "events").Logger()}
}

func (l *logListener) OnTextMessageReceived(channel, sender, text string) {
	l.logger.Info().Str("channel", channel).Str("sender", sender).Str("text", text).Msg("Text message")
}

func (l *logListener) OnChannelStatusChanged(channel, status string) {
	l.logger.Info().Str("channel", channel).Str("status", status).Msg("Channel status")
}

func (l *logListener) OnAudioStreamStarted(channel, sender string) {
	l.logger.Info().Str("channel", channel).Str("sender", sender).Msg("Talking")
}

func (l *logListener) OnAudioStreamStopped(channel, sender string) {
	l.logger.Info().Str("channel", channel).Str("sender", sender).Msg("Stopped talking")
}

func (l *logListener) OnAudioStreamReceived(channel, sender string, payload []byte) {
	l.logger.Trace().Str("sender", sender).Int("bytes", len(payload)).Msg("Audio received")
}

func (l *logListener) OnError(err error) {
	l.logger.Error().Err(err).Msg("Session error")
}

// signalPTT toggles push-to-talk on SIGUSR1
type signalPTT struct {
	logger zerolog.Logger

	mu   sync.Mutex
	sig  chan os.Signal
	done chan struct{}
}

func newSignalPTT(logger zerolog.Logger) *signalPTT {
	return &signalPTT{logger: logger.With().Str("component", "ptt").Logger()}
}

func (h *signalPTT) Initialize(ctl session.PTTControl) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sig = make(chan os.Signal, 1)
	h.done = make(chan struct{})
	signal.Notify(h.sig, syscall.SIGUSR1)
	go h.run(ctl, h.sig, h.done)

	h.logger.Info().Int("pid", os.Getpid()).Msg("Send SIGUSR1 to toggle push-to-talk")
}

func (h *signalPTT) run(ctl session.PTTControl, sig <-chan os.Signal, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-sig:
		}

		var err error
		if ctl.IsPttActive() {
			err = ctl.StopPushToTalk()
		} else {
			err = ctl.StartPushToTalk()
		}
		if err != nil {
			h.logger.Error().Err(err).Msg("Push-to-talk toggle failed")
		}
	}
}

func (h *signalPTT) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sig == nil {
		return
	}
	signal.Stop(h.sig)
	close(h.done)
	h.sig, h.done = nil, nil
}
