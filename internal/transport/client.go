package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Default connection settings
const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteWait        = 5 * time.Second
	DefaultCloseGracePeriod = 2 * time.Second
	DefaultMaxMessageSize   = 1 << 20
)

// ErrNotConnected is returned by sends while no connection is open
var ErrNotConnected = errors.New("transport not connected")

// Handler receives everything the server sends. Calls are made from the
// single read goroutine, in arrival order.
type Handler interface {
	HandleEvent(ev Event)
	HandleAudio(pkt AudioPacket)
	// HandleError reports loss of the connection. It is not called for a
	// close requested through Disconnect.
	HandleError(err error)
}

// Config configures the WebSocket client
type Config struct {
	URL              string
	Headers          http.Header
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	CloseGracePeriod time.Duration
	MaxMessageSize   int64
	Logger           zerolog.Logger
}

func (c *Config) defaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteWait == 0 {
		c.WriteWait = DefaultWriteWait
	}
	if c.CloseGracePeriod == 0 {
		c.CloseGracePeriod = DefaultCloseGracePeriod
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
}

// Client is a WebSocket connection to a channel server
type Client struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[uint32]chan Reply
	closing bool
	done    chan struct{}

	writeMu sync.Mutex // gorilla allows one concurrent writer
	seq     atomic.Uint32
}

// NewClient creates a client. Connect opens the connection.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger.With().Str("component", "transport").Logger(),
	}
}

// Connect dials the server and starts the read loop
func (c *Client) Connect(ctx context.Context, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return errors.New("transport already connected")
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.cfg.Headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (status %d): %w", c.cfg.URL, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", c.cfg.URL, err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.conn = conn
	c.pending = make(map[uint32]chan Reply)
	c.closing = false
	c.done = make(chan struct{})

	go c.readLoop(conn, h, c.done)

	c.logger.Info().Str("url", c.cfg.URL).Msg("Connected to channel server")
	return nil
}

// SendControl sends a command and waits for its reply. A reply with
// success=false is returned together with a *CommandError.
func (c *Client) SendControl(ctx context.Context, cmd Command) (*Reply, error) {
	cmd.Seq = c.seq.Add(1)
	ch := make(chan Reply, 1)

	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	c.pending[cmd.Seq] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, cmd.Seq)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", cmd.Command, err)
	}
	if err := c.write(conn, websocket.TextMessage, data); err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", cmd.Command, err)
	}

	select {
	case reply := <-ch:
		if !reply.Success {
			return &reply, &CommandError{Command: cmd.Command, Message: reply.Error}
		}
		return &reply, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s reply: %w", cmd.Command, ctx.Err())
	case <-done:
		return nil, fmt.Errorf("waiting for %s reply: %w", cmd.Command, ErrNotConnected)
	}
}

// SendBinary writes one binary message
func (c *Client) SendBinary(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, websocket.BinaryMessage, data)
}

func (c *Client) write(conn *websocket.Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return conn.WriteMessage(messageType, data)
}

// Disconnect sends a close frame, waits briefly for the server to answer,
// then closes the socket and waits for the read loop to exit
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	if conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.conn = nil
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.CloseGracePeriod),
	)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Debug().Err(err).Msg("Failed to send close frame")
	}

	timer := time.NewTimer(c.cfg.CloseGracePeriod)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn().Msg("Server did not acknowledge close, forcing")
	}

	_ = conn.Close()
	<-done

	c.logger.Info().Msg("Disconnected from channel server")
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, h Handler, done chan struct{}) {
	defer close(done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closing := c.closing
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if !closing {
				_ = conn.Close()
				c.logger.Error().Err(err).Msg("Connection lost")
				h.HandleError(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			pkt, err := ParseAudioPacket(data)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Dropping binary message")
				continue
			}
			h.HandleAudio(pkt)
		case websocket.TextMessage:
			reply, ev, err := parseMessage(data)
			if err != nil {
				c.logger.Warn().Err(err).Msg("Dropping text message")
				continue
			}
			if ev != nil {
				h.HandleEvent(*ev)
				continue
			}
			c.routeReply(*reply)
		}
	}
}

func (c *Client) routeReply(reply Reply) {
	c.mu.Lock()
	ch, ok := c.pending[reply.Seq]
	c.mu.Unlock()

	if !ok {
		c.logger.Debug().Uint32("seq", reply.Seq).Msg("Reply for unknown command")
		return
	}
	select {
	case ch <- reply:
	default:
	}
}
