package audio

import "context"

// Encoder turns a raw frame into a transport payload
type Encoder interface {
	Encode(frame Frame) ([]byte, error)
}

// Decoder turns a transport payload back into a raw frame
type Decoder interface {
	Decode(payload []byte) (Frame, error)
}

// Codec is the pair used by the outbound and inbound pipelines
type Codec interface {
	Encoder
	Decoder
}

// Flusher is implemented by codecs that buffer partial frames.
// Flush returns the remaining encoded payloads, if any.
type Flusher interface {
	Flush() ([][]byte, error)
}

// CaptureDevice yields one frame per call
type CaptureDevice interface {
	ReadFrame(ctx context.Context) (Frame, error)
}

// PlaybackDevice renders decoded frames
type PlaybackDevice interface {
	WriteFrame(frame Frame) error
}

// VoiceClassifier reports whether a frame carries voice
type VoiceClassifier interface {
	Classify(frame Frame) bool
}
