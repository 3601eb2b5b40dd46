package events

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/lexiqai/ptt-client/internal/observability"
)

// ErrRegistrationClosed is returned when adding a listener after the
// session has connected
var ErrRegistrationClosed = errors.New("listener registration is closed")

// Bus delivers events to listeners in registration order. While started,
// publishing only enqueues; a single dispatcher goroutine drains the queue
// in FIFO order. While stopped, events are delivered on the caller.
type Bus struct {
	logger zerolog.Logger

	mu        sync.Mutex
	listeners []Listener
	sealed    bool
	queue     []Event
	running   bool
	stopping  bool
	wake      chan struct{}
	done      chan struct{}

	// goroutine id of the running dispatcher, 0 when stopped
	dispatcher atomic.Int64
}

// NewBus creates a stopped bus
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		logger: logger.With().Str("component", "events").Logger(),
		wake:   make(chan struct{}, 1),
	}
}

// Register appends a listener. Nil listeners are ignored.
func (b *Bus) Register(l Listener) error {
	if l == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sealed {
		return ErrRegistrationClosed
	}
	b.listeners = append(b.listeners, l)
	return nil
}

// Seal closes registration for good
func (b *Bus) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Len returns the number of registered listeners
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Start launches the dispatcher. Starting a bus that is still draining
// after Close keeps the existing dispatcher.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		b.stopping = false
		return
	}
	b.running = true
	b.stopping = false
	b.done = make(chan struct{})
	go b.dispatch(b.done)
}

// Close delivers everything queued and stops the dispatcher. Only a call
// made on the dispatcher itself, from inside a listener callback, returns
// without waiting; the dispatcher still drains the queue before exiting.
func (b *Bus) Close() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.stopping = true
	done := b.done
	b.mu.Unlock()
	b.signal()

	if id := b.dispatcher.Load(); id != 0 && id == goroutineID() {
		return
	}
	<-done
}

// Publish enqueues ev, or delivers it inline when the bus is stopped
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	if !b.running {
		listeners := b.listeners
		b.mu.Unlock()
		b.deliver(listeners, ev)
		return
	}
	b.queue = append(b.queue, ev)
	b.mu.Unlock()
	b.signal()
}

// TextMessage publishes a text message notification
func (b *Bus) TextMessage(channel, sender, text string) {
	b.Publish(Event{Kind: KindTextMessage, Channel: channel, Sender: sender, Text: text})
}

// ChannelStatus publishes a channel status notification
func (b *Bus) ChannelStatus(channel, status string) {
	b.Publish(Event{Kind: KindChannelStatus, Channel: channel, Status: status})
}

// StreamStarted publishes an outbound or inbound stream start
func (b *Bus) StreamStarted(channel, sender string) {
	b.Publish(Event{Kind: KindStreamStarted, Channel: channel, Sender: sender})
}

// StreamStopped publishes an outbound or inbound stream stop
func (b *Bus) StreamStopped(channel, sender string) {
	b.Publish(Event{Kind: KindStreamStopped, Channel: channel, Sender: sender})
}

// AudioReceived publishes one received audio payload
func (b *Bus) AudioReceived(channel, sender string, payload []byte) {
	b.Publish(Event{Kind: KindStreamReceived, Channel: channel, Sender: sender, Payload: payload})
}

// Error publishes a runtime fault
func (b *Bus) Error(err error) {
	b.Publish(Event{Kind: KindError, Err: err})
}

func (b *Bus) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) dispatch(done chan struct{}) {
	b.dispatcher.Store(goroutineID())
	for {
		b.mu.Lock()
		for len(b.queue) == 0 {
			if b.stopping {
				b.running = false
				b.stopping = false
				b.dispatcher.Store(0)
				b.mu.Unlock()
				close(done)
				return
			}
			b.mu.Unlock()
			<-b.wake
			b.mu.Lock()
		}
		ev := b.queue[0]
		b.queue[0] = Event{}
		b.queue = b.queue[1:]
		listeners := b.listeners
		b.mu.Unlock()

		b.deliver(listeners, ev)
	}
}

func (b *Bus) deliver(listeners []Listener, ev Event) {
	for _, l := range listeners {
		b.safeInvoke(l, ev)
	}
}

func (b *Bus) safeInvoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordListenerPanic()
			b.logger.Error().
				Str("event", ev.Kind.String()).
				Str("panic", fmt.Sprint(r)).
				Msg("Listener panicked")
		}
	}()
	ev.deliver(l)
}

// goroutineID reads the current goroutine's id from its stack header,
// which starts with "goroutine <id> ["
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, _ := strconv.ParseInt(string(header), 10, 64)
	return id
}
