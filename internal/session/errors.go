package session

import "fmt"

// ConfigurationError is returned by Build for an invalid option set.
// No session exists when it is returned.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Message)
}

// ConnectionError reports a failed handshake or logon, a lost connection,
// or an error pushed by the server
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StreamError reports a failure in the outbound or inbound audio pipeline
type StreamError struct {
	Direction string
	Err       error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s stream failed: %v", e.Direction, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Stream directions
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)
