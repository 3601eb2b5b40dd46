package audio

import (
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func TestToLinear16_PCMSigned16(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	payload := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(s))
	}

	got, err := ToLinear16(DefaultFormat(), payload)
	if err != nil {
		t.Fatalf("ToLinear16 failed: %v", err)
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("Expected sample %d at %d, got %d", samples[i], i, got[i])
		}
	}
}

func TestToLinear16_OddPayload(t *testing.T) {
	if _, err := ToLinear16(DefaultFormat(), []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for payload that splits a sample")
	}
}

func TestPCMUnsignedRoundTrip(t *testing.T) {
	for _, bits := range []int{8, 16} {
		f := Format{Encoding: EncodingPCMUnsigned, SampleRate: 8000, BitsPerSample: bits, Channels: 1}
		samples := []int16{0, 256, -256, 32512, -32768}

		payload, err := FromLinear16(f, samples)
		if err != nil {
			t.Fatalf("FromLinear16 failed: %v", err)
		}
		got, err := ToLinear16(f, payload)
		if err != nil {
			t.Fatalf("ToLinear16 failed: %v", err)
		}
		for i := range samples {
			if got[i] != samples[i] {
				t.Errorf("%d-bit: expected %d at %d, got %d", bits, samples[i], i, got[i])
			}
		}
	}
}

func TestCompandingKeepsSignAndMagnitude(t *testing.T) {
	cases := []struct {
		name    string
		encode  func(int16) byte
		decode  func(byte) int16
		silence byte
	}{
		{"ulaw", linearToMulaw, mulawToLinear, 0xFF},
		{"alaw", linearToAlaw, alawToLinear, 0xD5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.encode(0); got != tc.silence {
				t.Errorf("Expected silence byte 0x%02X, got 0x%02X", tc.silence, got)
			}
			for _, s := range []int16{100, -100, 1000, -1000, 12000, -12000, 32767, -32768} {
				decoded := tc.decode(tc.encode(s))
				if (s < 0) != (decoded < 0) {
					t.Errorf("Sign lost for %d: decoded %d", s, decoded)
				}
				// Companding error stays within a few percent of the magnitude
				if diff := math.Abs(float64(decoded) - float64(s)); diff > math.Abs(float64(s))*0.07+16 {
					t.Errorf("Sample %d decoded to %d, error %.0f too large", s, decoded, diff)
				}
			}
		})
	}
}

func TestFormatSilenceDecodesToNearZero(t *testing.T) {
	formats := []Format{
		DefaultFormat(),
		{Encoding: EncodingPCMUnsigned, SampleRate: 8000, BitsPerSample: 8, Channels: 1},
		{Encoding: EncodingPCMUnsigned, SampleRate: 8000, BitsPerSample: 16, Channels: 1},
		{Encoding: EncodingULaw, SampleRate: 8000, BitsPerSample: 8, Channels: 1},
		{Encoding: EncodingALaw, SampleRate: 8000, BitsPerSample: 8, Channels: 1},
	}
	for _, f := range formats {
		samples, err := ToLinear16(f, f.Silence(f.FrameBytes(20*time.Millisecond)))
		if err != nil {
			t.Fatalf("%s: ToLinear16 failed: %v", f, err)
		}
		if rms := CalculateRMS(samples); rms > 16 {
			t.Errorf("%s: expected silence RMS near 0, got %f", f, rms)
		}
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("Expected 0 for empty input, got %f", rms)
	}
	if rms := CalculateRMS([]int16{1000, -1000, 1000, -1000}); math.Abs(rms-1000) > 0.001 {
		t.Errorf("Expected RMS 1000, got %f", rms)
	}
}
