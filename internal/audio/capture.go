package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrCaptureClosed is returned by writes into a closed BufferedCapture
var ErrCaptureClosed = errors.New("capture closed")

// SilenceCapture produces frames of digital silence. It is the capture
// device used when none is configured.
type SilenceCapture struct {
	format   Format
	duration time.Duration
	seq      atomic.Uint64
}

// NewSilenceCapture creates a silence source for the given frame duration
func NewSilenceCapture(format Format, frameDuration time.Duration) *SilenceCapture {
	return &SilenceCapture{format: format, duration: frameDuration}
}

// ReadFrame returns one frame of silence
func (s *SilenceCapture) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{
		Sequence:   s.seq.Add(1) - 1,
		Payload:    s.format.Silence(s.format.FrameBytes(s.duration)),
		CapturedAt: time.Now(),
		Duration:   s.duration,
	}, nil
}

// BufferedCapture is fed raw audio through Write and hands it out one
// frame at a time. Reads never block: an underrun is padded with silence
// so the reader keeps its real-time cadence. Writes block while the ring
// is full, which paces producers that are faster than real time.
type BufferedCapture struct {
	ring       *RingBuffer
	format     Format
	duration   time.Duration
	frameBytes int
	seq        uint64

	space     chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	readMu    sync.Mutex
}

// NewBufferedCapture creates a capture buffer holding up to bufferFrames frames
func NewBufferedCapture(format Format, frameDuration time.Duration, bufferFrames int) *BufferedCapture {
	if bufferFrames < 1 {
		bufferFrames = 1
	}
	frameBytes := format.FrameBytes(frameDuration)
	return &BufferedCapture{
		ring:       NewRingBuffer(frameBytes*bufferFrames + 1),
		format:     format,
		duration:   frameDuration,
		frameBytes: frameBytes,
		space:      make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Write implements io.Writer
func (b *BufferedCapture) Write(p []byte) (int, error) {
	total := 0
	for {
		select {
		case <-b.done:
			return total, ErrCaptureClosed
		default:
		}

		n := b.ring.Write(p[total:])
		total += n
		if total == len(p) {
			return total, nil
		}

		select {
		case <-b.space:
		case <-b.done:
			return total, ErrCaptureClosed
		}
	}
}

// ReadFrame returns the next frame, padding with silence when the
// producer has not supplied a full frame yet
func (b *BufferedCapture) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	b.readMu.Lock()
	defer b.readMu.Unlock()

	payload := b.format.Silence(b.frameBytes)
	bps := b.format.BytesPerSample()
	want := b.ring.Available()
	want -= want % bps
	if want > b.frameBytes {
		want = b.frameBytes
	}
	if want > 0 {
		b.ring.Read(payload[:want])
		select {
		case b.space <- struct{}{}:
		default:
		}
	}

	frame := Frame{
		Sequence:   b.seq,
		Payload:    payload,
		CapturedAt: time.Now(),
		Duration:   b.duration,
	}
	b.seq++
	return frame, nil
}

// Buffered returns the number of bytes waiting to be read
func (b *BufferedCapture) Buffered() int {
	return b.ring.Available()
}

// Close unblocks pending writers and rejects later writes
func (b *BufferedCapture) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
