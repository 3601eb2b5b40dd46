package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ToLinear16 converts a payload in format f into interleaved 16-bit samples
func ToLinear16(f Format, payload []byte) ([]int16, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	bps := f.BytesPerSample()
	if len(payload)%bps != 0 {
		return nil, fmt.Errorf("payload length %d is not a multiple of %d-byte samples", len(payload), bps)
	}

	samples := make([]int16, len(payload)/bps)
	for i := range samples {
		switch f.Encoding {
		case EncodingPCMSigned:
			if bps == 1 {
				samples[i] = int16(int8(payload[i])) << 8
			} else {
				samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
			}
		case EncodingPCMUnsigned:
			if bps == 1 {
				samples[i] = (int16(payload[i]) - 128) << 8
			} else {
				samples[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]) ^ 0x8000)
			}
		case EncodingULaw:
			samples[i] = mulawToLinear(payload[i])
		case EncodingALaw:
			samples[i] = alawToLinear(payload[i])
		}
	}
	return samples, nil
}

// FromLinear16 converts interleaved 16-bit samples into format f
func FromLinear16(f Format, samples []int16) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	bps := f.BytesPerSample()
	out := make([]byte, len(samples)*bps)
	for i, s := range samples {
		switch f.Encoding {
		case EncodingPCMSigned:
			if bps == 1 {
				out[i] = byte(int8(s >> 8))
			} else {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
			}
		case EncodingPCMUnsigned:
			if bps == 1 {
				out[i] = byte((s >> 8) + 128)
			} else {
				binary.LittleEndian.PutUint16(out[i*2:], uint16(s)^0x8000)
			}
		case EncodingULaw:
			out[i] = linearToMulaw(s)
		case EncodingALaw:
			out[i] = linearToAlaw(s)
		}
	}
	return out, nil
}

// linearToMulaw converts a 16-bit linear sample to 8-bit G.711 μ-law
func linearToMulaw(sample int16) byte {
	const (
		bias = 0x84
		clip = 32635
	)

	magnitude := int32(sample)
	var sign byte
	if magnitude < 0 {
		magnitude = -magnitude
		sign = 0x80
	}
	if magnitude > clip {
		magnitude = clip
	}
	magnitude += bias

	// Exponent is the position of the highest set bit above bit 7
	exponent := byte(7)
	for mask := int32(0x4000); magnitude&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte((magnitude >> (exponent + 3)) & 0x0F)

	return ^(sign | exponent<<4 | mantissa)
}

// mulawToLinear converts an 8-bit G.711 μ-law sample to 16-bit linear
func mulawToLinear(u byte) int16 {
	u = ^u
	exponent := int32(u>>4) & 0x07
	mantissa := int32(u & 0x0F)
	magnitude := (((mantissa << 3) + 0x84) << exponent) - 0x84

	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

var alawSegmentEnds = [8]int32{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

// linearToAlaw converts a 16-bit linear sample to 8-bit G.711 A-law
func linearToAlaw(sample int16) byte {
	value := int32(sample) >> 3
	mask := byte(0xD5)
	if value < 0 {
		mask = 0x55
		value = -value - 1
	}

	segment := 0
	for segment < len(alawSegmentEnds) && value > alawSegmentEnds[segment] {
		segment++
	}
	if segment >= len(alawSegmentEnds) {
		return 0x7F ^ mask
	}

	out := byte(segment << 4)
	if segment < 2 {
		out |= byte(value>>1) & 0x0F
	} else {
		out |= byte(value>>uint(segment)) & 0x0F
	}
	return out ^ mask
}

// alawToLinear converts an 8-bit G.711 A-law sample to 16-bit linear
func alawToLinear(a byte) int16 {
	a ^= 0x55
	t := int32(a&0x0F) << 4
	segment := int32(a&0x70) >> 4
	switch segment {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= uint(segment - 1)
	}

	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
