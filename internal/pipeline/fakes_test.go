package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/transport"
)

type fakeSender struct {
	mu       sync.Mutex
	commands []transport.Command
	packets  []transport.AudioPacket
	startErr error
	sendErr  error
}

func (s *fakeSender) SendControl(ctx context.Context, cmd transport.Command) (*transport.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	if cmd.Command == transport.CommandStartStream {
		if s.startErr != nil {
			return nil, s.startErr
		}
		return &transport.Reply{Success: true, StreamID: 77}, nil
	}
	return &transport.Reply{Success: true}, nil
}

func (s *fakeSender) SendBinary(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	pkt, err := transport.ParseAudioPacket(data)
	if err != nil {
		return err
	}
	s.packets = append(s.packets, pkt)
	return nil
}

func (s *fakeSender) sent() []transport.AudioPacket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.AudioPacket(nil), s.packets...)
}

func (s *fakeSender) commandNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.commands))
	for i, c := range s.commands {
		names[i] = c.Command
	}
	return names
}

// passCodec encodes a frame as its payload and decodes the same way
type passCodec struct {
	mu        sync.Mutex
	encodeErr error
	decodeErr error
	flushed   [][]byte
}

func (c *passCodec) Encode(f audio.Frame) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return f.Payload, nil
}

func (c *passCodec) Decode(p []byte) (audio.Frame, error) {
	if c.decodeErr != nil {
		return audio.Frame{}, c.decodeErr
	}
	return audio.Frame{Payload: append([]byte{0xD0}, p...)}, nil
}

type flushingCodec struct {
	passCodec
	tail [][]byte
}

func (c *flushingCodec) Flush() ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tail := c.tail
	c.tail = nil
	return tail, nil
}

type counterCapture struct {
	mu sync.Mutex
	n  byte
}

func (c *counterCapture) ReadFrame(ctx context.Context) (audio.Frame, error) {
	if err := ctx.Err(); err != nil {
		return audio.Frame{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return audio.Frame{Payload: []byte{c.n}}, nil
}

type recordingPlayback struct {
	mu     sync.Mutex
	frames []audio.Frame
	err    error
}

func (p *recordingPlayback) WriteFrame(f audio.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, f)
	return nil
}

type published struct {
	sender  string
	payload []byte
}

type recordingPublisher struct {
	mu    sync.Mutex
	items []published
}

func (p *recordingPublisher) AudioReceived(channel, sender string, payload []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, published{sender: sender, payload: payload})
}

var errBoom = errors.New("boom")
