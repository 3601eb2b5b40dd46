package session

import (
	"context"
	"errors"
	"sync"

	"github.com/lexiqai/ptt-client/internal/audio"
	"github.com/lexiqai/ptt-client/internal/events"
	"github.com/lexiqai/ptt-client/internal/transport"
)

// fakeTransport answers commands the way a channel server would
type fakeTransport struct {
	mu          sync.Mutex
	handler     transport.Handler
	commands    []transport.Command
	binary      [][]byte
	dialErr     error
	rejectLogon bool
	disconnects int
}

func (f *fakeTransport) Connect(ctx context.Context, h transport.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return f.dialErr
	}
	f.handler = h
	return nil
}

func (f *fakeTransport) SendControl(ctx context.Context, cmd transport.Command) (*transport.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)

	reply := &transport.Reply{Success: true}
	switch cmd.Command {
	case transport.CommandLogon:
		if f.rejectLogon {
			reply.Success = false
			reply.Error = "not authorized"
			return reply, &transport.CommandError{Command: cmd.Command, Message: reply.Error}
		}
	case transport.CommandStartStream:
		reply.StreamID = 7
	}
	return reply, nil
}

func (f *fakeTransport) SendBinary(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binary = append(f.binary, data)
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeTransport) commandNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		names = append(names, c.Command)
	}
	return names
}

func (f *fakeTransport) packets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.binary)
}

func (f *fakeTransport) server() transport.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

// echoCodec passes payloads through unchanged
type echoCodec struct {
	failDecode bool
	failEncode bool
}

func (c *echoCodec) Encode(f audio.Frame) ([]byte, error) {
	if c.failEncode {
		return nil, errors.New("encoder failed")
	}
	return append([]byte(nil), f.Payload...), nil
}

func (c *echoCodec) Decode(p []byte) (audio.Frame, error) {
	if c.failDecode {
		return audio.Frame{}, errors.New("corrupt packet")
	}
	return audio.Frame{Payload: append([]byte(nil), p...)}, nil
}

// switchClassifier reports voice while on is set
type switchClassifier struct {
	mu sync.Mutex
	on bool
}

func (c *switchClassifier) set(on bool) {
	c.mu.Lock()
	c.on = on
	c.mu.Unlock()
}

func (c *switchClassifier) Classify(audio.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.on
}

// togglePTT records its lifecycle calls
type togglePTT struct {
	mu       sync.Mutex
	ctl      PTTControl
	cleanups int
}

func (h *togglePTT) Initialize(ctl PTTControl) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctl = ctl
}

func (h *togglePTT) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups++
}

func (h *togglePTT) control() PTTControl {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ctl
}

// blockingListener holds the dispatcher inside its first text message
// until release is closed
type blockingListener struct {
	events.BaseListener
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *blockingListener) OnTextMessageReceived(channel, sender, text string) {
	l.once.Do(func() { close(l.entered) })
	<-l.release
}
