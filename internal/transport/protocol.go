// Package transport implements the channel signaling protocol: JSON
// control commands correlated by sequence number, server events, and
// binary audio packets, carried over a WebSocket.
package transport

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Control commands sent by the client
const (
	CommandLogon       = "logon"
	CommandStartStream = "start_stream"
	CommandStopStream  = "stop_stream"
)

// Events pushed by the server
const (
	EventChannelStatus = "on_channel_status"
	EventStreamStart   = "on_stream_start"
	EventStreamStop    = "on_stream_stop"
	EventTextMessage   = "on_text_message"
	EventError         = "on_error"
)

// Command is a client to server control message
type Command struct {
	Command        string `json:"command"`
	Seq            uint32 `json:"seq"`
	AuthToken      string `json:"auth_token,omitempty"`
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Channel        string `json:"channel,omitempty"`
	Type           string `json:"type,omitempty"`
	Codec          string `json:"codec,omitempty"`
	CodecHeader    string `json:"codec_header,omitempty"`
	PacketDuration int    `json:"packet_duration,omitempty"`
	StreamID       uint32 `json:"stream_id,omitempty"`
}

// LogonCommand authenticates with either credentials or a token
func LogonCommand(channel, username, password, token string) Command {
	return Command{
		Command:   CommandLogon,
		Channel:   channel,
		Username:  username,
		Password:  password,
		AuthToken: token,
	}
}

// StartStreamCommand opens an outgoing Opus audio stream
func StartStreamCommand(header CodecHeader) Command {
	return Command{
		Command:        CommandStartStream,
		Type:           "audio",
		Codec:          "opus",
		CodecHeader:    header.Encode(),
		PacketDuration: header.FrameSizeMs,
	}
}

// StopStreamCommand closes an outgoing stream
func StopStreamCommand(streamID uint32) Command {
	return Command{Command: CommandStopStream, StreamID: streamID}
}

// Reply answers a Command with the same Seq
type Reply struct {
	Seq          uint32 `json:"seq"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	StreamID     uint32 `json:"stream_id,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Event is a server initiated message
type Event struct {
	Command        string `json:"command"`
	Channel        string `json:"channel,omitempty"`
	Status         string `json:"status,omitempty"`
	UsersOnline    int    `json:"users_online,omitempty"`
	StreamID       uint32 `json:"stream_id,omitempty"`
	From           string `json:"from,omitempty"`
	Type           string `json:"type,omitempty"`
	Codec          string `json:"codec,omitempty"`
	CodecHeader    string `json:"codec_header,omitempty"`
	PacketDuration int    `json:"packet_duration,omitempty"`
	Text           string `json:"text,omitempty"`
	Error          string `json:"error,omitempty"`
}

// CommandError is returned when the server rejects a command
type CommandError struct {
	Command string
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s rejected: %s", e.Command, e.Message)
}

// message is the union used to tell replies from events
type message struct {
	Event
	Seq     *uint32 `json:"seq"`
	Success bool    `json:"success"`
}

// parseMessage decodes a text frame into either a reply or an event
func parseMessage(data []byte) (*Reply, *Event, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("invalid message: %w", err)
	}
	if m.Command != "" {
		ev := m.Event
		return nil, &ev, nil
	}
	if m.Seq != nil {
		var r Reply
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, nil, fmt.Errorf("invalid reply: %w", err)
		}
		return &r, nil, nil
	}
	return nil, nil, errors.New("message has neither command nor seq")
}

// CodecHeader describes an Opus stream: sample rate, frames per packet and
// frame size in milliseconds
type CodecHeader struct {
	SampleRate      int
	FramesPerPacket int
	FrameSizeMs     int
}

// NewCodecHeader builds the header for one frame per packet of duration d
func NewCodecHeader(sampleRate int, d time.Duration) CodecHeader {
	ms := int((d + time.Millisecond/2) / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	return CodecHeader{SampleRate: sampleRate, FramesPerPacket: 1, FrameSizeMs: ms}
}

// Encode returns the base64 wire form
func (h CodecHeader) Encode() string {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf, uint16(h.SampleRate))
	buf[2] = byte(h.FramesPerPacket)
	buf[3] = byte(h.FrameSizeMs)
	return base64.StdEncoding.EncodeToString(buf)
}

// DecodeCodecHeader parses the base64 wire form
func DecodeCodecHeader(s string) (CodecHeader, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return CodecHeader{}, fmt.Errorf("invalid codec header: %w", err)
	}
	if len(buf) != 4 {
		return CodecHeader{}, fmt.Errorf("codec header must be 4 bytes, got %d", len(buf))
	}
	return CodecHeader{
		SampleRate:      int(binary.LittleEndian.Uint16(buf)),
		FramesPerPacket: int(buf[2]),
		FrameSizeMs:     int(buf[3]),
	}, nil
}

const (
	audioPacketType   = 0x01
	audioPacketHeader = 9
)

// AudioPacket is one binary audio frame: type byte, stream id, packet id,
// then the encoded payload. Integers are big endian.
type AudioPacket struct {
	StreamID uint32
	PacketID uint32
	Payload  []byte
}

// Marshal returns the wire form of the packet
func (p AudioPacket) Marshal() []byte {
	buf := make([]byte, audioPacketHeader+len(p.Payload))
	buf[0] = audioPacketType
	binary.BigEndian.PutUint32(buf[1:5], p.StreamID)
	binary.BigEndian.PutUint32(buf[5:9], p.PacketID)
	copy(buf[audioPacketHeader:], p.Payload)
	return buf
}

// ParseAudioPacket decodes a binary frame
func ParseAudioPacket(data []byte) (AudioPacket, error) {
	if len(data) < audioPacketHeader {
		return AudioPacket{}, fmt.Errorf("audio packet too short: %d bytes", len(data))
	}
	if data[0] != audioPacketType {
		return AudioPacket{}, fmt.Errorf("unknown binary packet type 0x%02x", data[0])
	}
	return AudioPacket{
		StreamID: binary.BigEndian.Uint32(data[1:5]),
		PacketID: binary.BigEndian.Uint32(data[5:9]),
		Payload:  data[audioPacketHeader:],
	}, nil
}
