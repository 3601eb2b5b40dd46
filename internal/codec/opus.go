// Package codec holds the default Opus codec used by the audio pipelines
package codec

import (
	"fmt"
	"sync"
	"time"

	"github.com/hraban/opus"

	"github.com/lexiqai/ptt-client/internal/audio"
)

// maxPacketBytes bounds a single encoded Opus packet
const maxPacketBytes = 4000

var supportedRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

var supportedFrameDurations = []time.Duration{
	2500 * time.Microsecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	20 * time.Millisecond,
	40 * time.Millisecond,
	60 * time.Millisecond,
}

// Opus encodes raw frames into Opus packets and back. Raw audio is
// converted through linear 16-bit PCM, so any audio.Format is accepted as
// long as its sample rate is one Opus supports. Input that does not fill a
// whole Opus frame is held until the next call or Flush.
type Opus struct {
	format        audio.Format
	frameDuration time.Duration
	frameSamples  int

	encMu   sync.Mutex
	enc     *opus.Encoder
	pending []int16

	decMu sync.Mutex
	dec   *opus.Decoder
	pcm   []int16
}

// NewOpus creates an Opus codec for the format and frame duration
func NewOpus(format audio.Format, frameDuration time.Duration) (*Opus, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if !supportedRates[format.SampleRate] {
		return nil, fmt.Errorf("opus does not support %d Hz", format.SampleRate)
	}
	if !SupportsFrameDuration(frameDuration) {
		return nil, fmt.Errorf("opus does not support %s frames", frameDuration)
	}

	enc, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	frameSamples := format.SamplesPerChannel(frameDuration) * format.Channels
	return &Opus{
		format:        format,
		frameDuration: frameDuration,
		frameSamples:  frameSamples,
		enc:           enc,
		dec:           dec,
		// 120 ms is the longest packet a peer may send
		pcm: make([]int16, format.SamplesPerChannel(120*time.Millisecond)*format.Channels),
	}, nil
}

// SupportsFrameDuration reports whether d is a valid Opus frame size
func SupportsFrameDuration(d time.Duration) bool {
	for _, s := range supportedFrameDurations {
		if s == d {
			return true
		}
	}
	return false
}

// FrameDuration returns the duration of one encoded packet
func (o *Opus) FrameDuration() time.Duration {
	return o.frameDuration
}

// Encode appends the frame to the pending samples and encodes one Opus
// frame. It returns nil when less than a frame is pending.
func (o *Opus) Encode(frame audio.Frame) ([]byte, error) {
	samples, err := audio.ToLinear16(o.format, frame.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame %d: %w", frame.Sequence, err)
	}

	o.encMu.Lock()
	defer o.encMu.Unlock()

	o.pending = append(o.pending, samples...)
	if len(o.pending) < o.frameSamples {
		return nil, nil
	}
	return o.encodePending()
}

// Flush pads any pending samples with silence and encodes them
func (o *Opus) Flush() ([][]byte, error) {
	o.encMu.Lock()
	defer o.encMu.Unlock()

	var out [][]byte
	for len(o.pending) > 0 {
		if len(o.pending) < o.frameSamples {
			o.pending = append(o.pending, make([]int16, o.frameSamples-len(o.pending))...)
		}
		packet, err := o.encodePending()
		if err != nil {
			o.pending = o.pending[:0]
			return out, err
		}
		out = append(out, packet)
	}
	return out, nil
}

func (o *Opus) encodePending() ([]byte, error) {
	buf := make([]byte, maxPacketBytes)
	n, err := o.enc.Encode(o.pending[:o.frameSamples], buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	o.pending = append(o.pending[:0], o.pending[o.frameSamples:]...)
	return buf[:n], nil
}

// Decode decodes one Opus packet into a raw frame in the codec format
func (o *Opus) Decode(payload []byte) (audio.Frame, error) {
	o.decMu.Lock()
	defer o.decMu.Unlock()

	n, err := o.dec.Decode(payload, o.pcm)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("opus decode failed: %w", err)
	}

	raw, err := audio.FromLinear16(o.format, o.pcm[:n*o.format.Channels])
	if err != nil {
		return audio.Frame{}, err
	}
	return audio.Frame{
		Payload:    raw,
		CapturedAt: time.Now(),
		Duration:   time.Duration(n) * time.Second / time.Duration(o.format.SampleRate),
	}, nil
}
