package stt

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/resilience"
)

type fakeStream struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	finished bool
}

func (s *fakeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeStream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
}

func (s *fakeStream) written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.writes...)
}

func (s *fakeStream) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// rawDecoder returns the payload as a raw frame
type rawDecoder struct{}

func (rawDecoder) Decode(p []byte) (audio.Frame, error) {
	return audio.Frame{Payload: p}, nil
}

func newTestTranscriber(stream *fakeStream, dialErrs int) *Transcriber {
	tr := NewTranscriber(Config{
		Model:           "nova-2",
		Language:        "en",
		Format:          audio.DefaultFormat(),
		Decoder:         rawDecoder{},
		BreakerFailures: 2,
		BreakerReset:    time.Minute,
		Reconnect:       resilience.ReconnectConfig{MaxAttempts: 5, Backoff: time.Millisecond, Multiplier: 1},
		Logger:          zerolog.Nop(),
	})
	var mu sync.Mutex
	tr.dial = func(ctx context.Context, cb msginterfaces.LiveMessageCallback) (audioStream, error) {
		mu.Lock()
		defer mu.Unlock()
		if dialErrs > 0 {
			dialErrs--
			return nil, errors.New("dial refused")
		}
		return stream, nil
	}
	return tr
}

func TestTranscriber_StreamsWhileConnected(t *testing.T) {
	stream := &fakeStream{}
	tr := newTestTranscriber(stream, 0)

	require.ErrorIs(t, tr.SendAudio([]byte{1, 2}), ErrNotActive)

	tr.OnChannelStatusChanged("ops", "connected")
	require.Eventually(t, tr.IsActive, time.Second, time.Millisecond)

	tr.OnAudioStreamReceived("ops", "bob", []byte{0x10, 0x00, 0xF0, 0xFF})
	assert.Equal(t, [][]byte{{0x10, 0x00, 0xF0, 0xFF}}, stream.written())

	tr.OnChannelStatusChanged("ops", "disconnected")
	assert.False(t, tr.IsActive())
	assert.True(t, stream.isFinished())
}

func TestTranscriber_RetriesDial(t *testing.T) {
	stream := &fakeStream{}
	tr := newTestTranscriber(stream, 1)

	tr.Start("ops")
	require.Eventually(t, tr.IsActive, time.Second, time.Millisecond)
	tr.Stop()
}

func TestTranscriber_BreakerOpensOnWriteFailures(t *testing.T) {
	stream := &fakeStream{writeErr: errors.New("broken pipe")}
	tr := newTestTranscriber(stream, 0)

	tr.Start("ops")
	require.Eventually(t, tr.IsActive, time.Second, time.Millisecond)

	assert.Error(t, tr.SendAudio([]byte{0, 0}))
	assert.Error(t, tr.SendAudio([]byte{0, 0}))
	assert.ErrorIs(t, tr.SendAudio([]byte{0, 0}), resilience.ErrCircuitOpen)
	tr.Stop()
}

func TestTranscriber_MapsFinalResult(t *testing.T) {
	stream := &fakeStream{}
	tr := newTestTranscriber(stream, 0)
	tr.Start("ops")
	require.Eventually(t, tr.IsActive, time.Second, time.Millisecond)
	require.NoError(t, tr.SendAudio([]byte{0, 0}))

	tr.handleDeepgramMessage(&msginterfaces.MessageResponse{
		Type:    "Results",
		IsFinal: true,
		Channel: msginterfaces.Channel{
			Alternatives: []msginterfaces.Alternative{{
				Transcript: "copy that",
				Confidence: 0.92,
				Words: []msginterfaces.Word{
					{Start: 1.0, End: 1.5},
					{Start: 1.5, End: 2.25},
				},
			}},
		},
	})

	select {
	case r := <-tr.Results():
		assert.Equal(t, "ops", r.Channel)
		assert.Equal(t, "copy that", r.Text)
		assert.True(t, r.IsFinal)
		assert.InDelta(t, 0.92, r.Confidence, 1e-9)
		assert.InDelta(t, 1.0, r.StartTime, 1e-9)
		assert.InDelta(t, 1.25, r.Duration, 1e-9)
		assert.Greater(t, r.Latency, time.Duration(0))
	case <-time.After(time.Second):
		t.Fatal("no transcript delivered")
	}
	tr.Stop()
}

func TestTranscriber_IgnoresEmptyAndNonResults(t *testing.T) {
	var got []TranscriptionResult
	tr := newTestTranscriber(&fakeStream{}, 0)
	tr.cfg.OnTranscript = func(r TranscriptionResult) { got = append(got, r) }

	tr.handleDeepgramMessage(nil)
	tr.handleDeepgramMessage(&msginterfaces.MessageResponse{Type: "SpeechStarted"})
	tr.handleDeepgramMessage(&msginterfaces.MessageResponse{Type: "Results"})
	tr.handleDeepgramMessage(&msginterfaces.MessageResponse{
		Type:    "Results",
		Channel: msginterfaces.Channel{Alternatives: []msginterfaces.Alternative{{Transcript: ""}}},
	})
	tr.handleDeepgramMessage(&msginterfaces.MessageResponse{
		Type:    "Results",
		Channel: msginterfaces.Channel{Alternatives: []msginterfaces.Alternative{{Transcript: "over"}}},
	})

	require.Len(t, got, 1)
	assert.Equal(t, "over", got[0].Text)
	assert.False(t, got[0].IsFinal)
	assert.Zero(t, got[0].Latency)
}
