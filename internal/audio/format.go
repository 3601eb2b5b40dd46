package audio

import (
	"fmt"
	"strings"
	"time"
)

// Encoding identifies the sample representation of captured and played audio
type Encoding int

const (
	EncodingPCMSigned Encoding = iota
	EncodingPCMUnsigned
	EncodingULaw
	EncodingALaw
)

func (e Encoding) String() string {
	switch e {
	case EncodingPCMSigned:
		return "pcm_signed"
	case EncodingPCMUnsigned:
		return "pcm_unsigned"
	case EncodingULaw:
		return "ulaw"
	case EncodingALaw:
		return "alaw"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// ParseEncoding maps a configuration string onto an Encoding
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pcm", "pcm_signed":
		return EncodingPCMSigned, nil
	case "pcm_unsigned":
		return EncodingPCMUnsigned, nil
	case "ulaw", "mulaw", "pcmu":
		return EncodingULaw, nil
	case "alaw", "pcma":
		return EncodingALaw, nil
	}
	return 0, fmt.Errorf("unknown audio encoding %q", s)
}

// Format describes the raw audio exchanged with capture and playback devices
type Format struct {
	Encoding      Encoding
	SampleRate    int
	BitsPerSample int
	Channels      int
}

// DefaultFormat returns signed 16-bit mono PCM at 16 kHz
func DefaultFormat() Format {
	return Format{
		Encoding:      EncodingPCMSigned,
		SampleRate:    16000,
		BitsPerSample: 16,
		Channels:      1,
	}
}

// Validate checks that the format can be converted to and from linear PCM
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels != 1 && f.Channels != 2 {
		return fmt.Errorf("channels must be 1 or 2, got %d", f.Channels)
	}
	switch f.Encoding {
	case EncodingPCMSigned, EncodingPCMUnsigned:
		if f.BitsPerSample != 8 && f.BitsPerSample != 16 {
			return fmt.Errorf("%s requires 8 or 16 bits per sample, got %d", f.Encoding, f.BitsPerSample)
		}
	case EncodingULaw, EncodingALaw:
		if f.BitsPerSample != 8 {
			return fmt.Errorf("%s requires 8 bits per sample, got %d", f.Encoding, f.BitsPerSample)
		}
	default:
		return fmt.Errorf("unsupported encoding %s", f.Encoding)
	}
	return nil
}

// BytesPerSample returns the size of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitsPerSample / 8
}

// SamplesPerChannel returns how many samples of one channel cover d
func (f Format) SamplesPerChannel(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// FrameBytes returns the byte size of a frame covering d
func (f Format) FrameBytes(d time.Duration) int {
	return f.SamplesPerChannel(d) * f.Channels * f.BytesPerSample()
}

// Silence returns n bytes of digital silence in this format
func (f Format) Silence(n int) []byte {
	buf := make([]byte, n)
	var fill []byte
	switch {
	case f.Encoding == EncodingULaw:
		fill = []byte{0xFF}
	case f.Encoding == EncodingALaw:
		fill = []byte{0xD5}
	case f.Encoding == EncodingPCMUnsigned && f.BitsPerSample == 8:
		fill = []byte{0x80}
	case f.Encoding == EncodingPCMUnsigned:
		fill = []byte{0x00, 0x80}
	default:
		return buf
	}
	for i := range buf {
		buf[i] = fill[i%len(fill)]
	}
	return buf
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%dHz/%dbit/%dch", f.Encoding, f.SampleRate, f.BitsPerSample, f.Channels)
}

// VoxMode selects how eagerly the voice classifier treats a frame as speech.
// Higher modes need more energy before a frame counts as voice.
type VoxMode int

const (
	VoxModeQuality VoxMode = iota
	VoxModeLowBitrate
	VoxModeAggressive
	VoxModeVeryAggressive
)

func (m VoxMode) String() string {
	switch m {
	case VoxModeQuality:
		return "quality"
	case VoxModeLowBitrate:
		return "low_bitrate"
	case VoxModeAggressive:
		return "aggressive"
	case VoxModeVeryAggressive:
		return "very_aggressive"
	default:
		return fmt.Sprintf("vox_mode(%d)", int(m))
	}
}

// ParseVoxMode accepts either the mode name or its numeric value
func ParseVoxMode(s string) (VoxMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "quality", "0":
		return VoxModeQuality, nil
	case "low_bitrate", "1":
		return VoxModeLowBitrate, nil
	case "aggressive", "2":
		return VoxModeAggressive, nil
	case "very_aggressive", "3":
		return VoxModeVeryAggressive, nil
	}
	return 0, fmt.Errorf("unknown vox mode %q", s)
}

// Frame is one packet-duration slice of audio
type Frame struct {
	Sequence   uint64
	Payload    []byte
	CapturedAt time.Time
	Duration   time.Duration
}
