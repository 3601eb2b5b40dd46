package stt

import "time"

// TranscriptionResult is one transcript of received channel audio
type TranscriptionResult struct {
	// Channel the audio was received on
	Channel string

	// Text is the transcribed text
	Text string

	// IsFinal indicates a final transcript rather than an interim one
	IsFinal bool

	// Confidence is the confidence score (0.0 to 1.0) if available
	Confidence float64

	// StartTime is the start of the utterance in seconds into the stream
	StartTime float64

	// Duration is the duration of the utterance in seconds
	Duration float64

	// Latency is the time from the first audio of the utterance to this
	// result. Only set on final results.
	Latency time.Duration
}

// audioStream is the live connection the transcriber writes audio to
type audioStream interface {
	Write(p []byte) (int, error)
	Finish()
}
