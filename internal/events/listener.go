// Package events delivers session notifications to registered listeners
package events

// Listener receives session notifications. Callbacks run on the bus
// dispatcher goroutine, one at a time, in publication order.
type Listener interface {
	OnTextMessageReceived(channel, sender, text string)
	OnChannelStatusChanged(channel, status string)
	OnAudioStreamStarted(channel, sender string)
	OnAudioStreamStopped(channel, sender string)
	OnAudioStreamReceived(channel, sender string, payload []byte)
	OnError(err error)
}

// BaseListener implements Listener with no-ops. Embed it to override
// only the callbacks of interest.
type BaseListener struct{}

func (BaseListener) OnTextMessageReceived(channel, sender, text string) {}
func (BaseListener) OnChannelStatusChanged(channel, status string) {}
func (BaseListener) OnAudioStreamStarted(channel, sender string) {}
func (BaseListener) OnAudioStreamStopped(channel, sender string) {}
func (BaseListener) OnAudioStreamReceived(channel, sender string, payload []byte) {}
func (BaseListener) OnError(err error) {}

// Kind identifies one of the six notifications
type Kind int

const (
	KindTextMessage Kind = iota
	KindChannelStatus
	KindStreamStarted
	KindStreamStopped
	KindStreamReceived
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindTextMessage:
		return "text_message"
	case KindChannelStatus:
		return "channel_status"
	case KindStreamStarted:
		return "stream_started"
	case KindStreamStopped:
		return "stream_stopped"
	case KindStreamReceived:
		return "stream_received"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a queued notification
type Event struct {
	Kind    Kind
	Channel string
	Sender  string
	Text    string
	Status  string
	Payload []byte
	Err     error
}

func (e Event) deliver(l Listener) {
	switch e.Kind {
	case KindTextMessage:
		l.OnTextMessageReceived(e.Channel, e.Sender, e.Text)
	case KindChannelStatus:
		l.OnChannelStatusChanged(e.Channel, e.Status)
	case KindStreamStarted:
		l.OnAudioStreamStarted(e.Channel, e.Sender)
	case KindStreamStopped:
		l.OnAudioStreamStopped(e.Channel, e.Sender)
	case KindStreamReceived:
		l.OnAudioStreamReceived(e.Channel, e.Sender, e.Payload)
	case KindError:
		l.OnError(e.Err)
	}
}
