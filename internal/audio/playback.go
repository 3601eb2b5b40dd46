package audio

import (
	"io"
	"sync"
)

// DiscardPlayback drops every frame
type DiscardPlayback struct{}

// WriteFrame implements PlaybackDevice
func (DiscardPlayback) WriteFrame(Frame) error { return nil }

// WriterPlayback writes raw frame payloads to an io.Writer
type WriterPlayback struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterPlayback wraps w as a playback device
func NewWriterPlayback(w io.Writer) *WriterPlayback {
	return &WriterPlayback{w: w}
}

// WriteFrame implements PlaybackDevice
func (p *WriterPlayback) WriteFrame(frame Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(frame.Payload)
	return err
}
