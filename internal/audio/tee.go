package audio

import (
	"context"
	"sync"
)

const defaultTeeDepth = 4

// CaptureTee lets several readers share one capture device. Each frame is
// read from the device once and served to every reader that asks for it
// while it is still among the most recent depth frames.
type CaptureTee struct {
	mu     sync.Mutex
	src    CaptureDevice
	depth  int
	frames []Frame
	next   uint64
}

// NewCaptureTee wraps src
func NewCaptureTee(src CaptureDevice) *CaptureTee {
	return &CaptureTee{src: src, depth: defaultTeeDepth}
}

// NewReader returns an independent reader. A new reader starts with the
// next frame read from the device.
func (t *CaptureTee) NewReader() *TeeReader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &TeeReader{tee: t, pos: t.next}
}

// TeeReader is one consumer of a CaptureTee
type TeeReader struct {
	tee *CaptureTee
	pos uint64
}

// ReadFrame returns the reader's next frame. A reader that fell further
// behind than the tee depth skips to the oldest retained frame.
func (r *TeeReader) ReadFrame(ctx context.Context) (Frame, error) {
	t := r.tee
	t.mu.Lock()
	defer t.mu.Unlock()

	oldest := t.next - uint64(len(t.frames))
	if r.pos < oldest {
		r.pos = oldest
	}
	if r.pos < t.next {
		f := t.frames[r.pos-oldest]
		r.pos++
		return f, nil
	}

	f, err := t.src.ReadFrame(ctx)
	if err != nil {
		return Frame{}, err
	}
	f.Sequence = t.next
	t.frames = append(t.frames, f)
	if len(t.frames) > t.depth {
		t.frames = append(t.frames[:0], t.frames[1:]...)
	}
	t.next++
	r.pos = t.next
	return f, nil
}
