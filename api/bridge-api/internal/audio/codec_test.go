// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_audio

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zaf/g711"

	"github.com/voxbridge/pkg/commons"
)

// ============================================================================
// Test helpers
// ============================================================================

func newTestCodec() *Codec {
	logger, _ := commons.NewApplicationLogger()
	return NewCodec(logger, 8000, 16000)
}

// pcmSine builds n samples of a sine wave at the given amplitude, encoded as
// little-endian PCM16.
func pcmSine(n int, amplitude float64) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(amplitude * math.Sin(2*math.Pi*float64(i)/50.0))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

func pcmSamples(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return out
}

// ============================================================================
// DecodeMulawBase64
// ============================================================================

func TestDecodeMulawBase64_ValidFrame(t *testing.T) {
	c := newTestCodec()

	// One 20ms telephony frame: 160 mu-law bytes of silence (0xFF decodes
	// to zero).
	mulaw := make([]byte, 160)
	for i := range mulaw {
		mulaw[i] = 0xFF
	}
	payload := base64.StdEncoding.EncodeToString(mulaw)

	pcm := c.DecodeMulawBase64(payload)
	require.NotNil(t, pcm)

	// 160 samples at 8kHz resampled to 16kHz → 320 samples → 640 bytes.
	assert.Equal(t, 640, len(pcm), "20ms of 8kHz audio should yield 320 samples at 16kHz")

	for _, s := range pcmSamples(pcm) {
		assert.LessOrEqual(t, int(math.Abs(float64(s))), 4, "silence should decode near zero")
	}
}

func TestDecodeMulawBase64_MalformedBase64(t *testing.T) {
	c := newTestCodec()
	assert.Nil(t, c.DecodeMulawBase64("not!!valid!!base64"), "malformed payload should yield nil, not panic")
}

func TestDecodeMulawBase64_EmptyPayload(t *testing.T) {
	c := newTestCodec()
	assert.Nil(t, c.DecodeMulawBase64(""))
}

func TestDecodeMulawBase64_SpeechSignalRoundTrip(t *testing.T) {
	c := newTestCodec()

	// Encode a known PCM signal at 8kHz to mu-law, then run it through the
	// inbound decode path and compare against the original at 16kHz.
	original := pcmSine(160, 8000)
	mulaw := g711.EncodeUlaw(original)
	payload := base64.StdEncoding.EncodeToString(mulaw)

	pcm := c.DecodeMulawBase64(payload)
	require.NotNil(t, pcm)
	require.Equal(t, len(original)*2, len(pcm), "rate doubling should double the byte count")

	// Every second output sample aligns with an input sample. Mu-law is
	// lossy, so require bounded quantization error rather than equality.
	in := pcmSamples(original)
	out := pcmSamples(pcm)
	for i := range in {
		diff := math.Abs(float64(in[i]) - float64(out[2*i]))
		assert.LessOrEqual(t, diff, 512.0, "sample %d drifted beyond mu-law quantization error", i)
	}
}

// ============================================================================
// EncodeToMulaw
// ============================================================================

func TestEncodeToMulaw_DownsamplesToTelephonyRate(t *testing.T) {
	c := newTestCodec()

	// 480 samples at 24kHz = 20ms → 160 mu-law bytes at 8kHz.
	pcm := pcmSine(480, 8000)
	mulaw := c.EncodeToMulaw(pcm, 24000)
	require.NotNil(t, mulaw)
	assert.Equal(t, 160, len(mulaw), "20ms at any source rate should produce 160 mu-law bytes")
}

func TestEncodeToMulaw_EmptyInput(t *testing.T) {
	c := newTestCodec()
	assert.Nil(t, c.EncodeToMulaw(nil, 24000))
	assert.Nil(t, c.EncodeToMulaw([]byte{}, 24000))
}

func TestEncodeToMulaw_TruncatedPCM(t *testing.T) {
	c := newTestCodec()
	assert.Nil(t, c.EncodeToMulaw([]byte{0x01, 0x02, 0x03}, 24000), "odd-length PCM is not a valid 16-bit stream")
}

// ============================================================================
// Resample
// ============================================================================

func TestResample_LengthRatios(t *testing.T) {
	c := newTestCodec()

	tests := []struct {
		name     string
		samples  int
		fromRate int
		toRate   int
		expected int // output samples
	}{
		{"8k to 16k doubles", 160, 8000, 16000, 320},
		{"24k to 8k thirds", 480, 24000, 8000, 160},
		{"16k to 8k halves", 320, 16000, 8000, 160},
		{"same rate copies", 160, 8000, 8000, 160},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := pcmSine(tt.samples, 1000)
			out := c.Resample(in, tt.fromRate, tt.toRate)
			require.NotNil(t, out)
			assert.Equal(t, tt.expected*2, len(out), "output byte count should track the rate ratio")
		})
	}
}

func TestResample_SameRateReturnsCopy(t *testing.T) {
	c := newTestCodec()
	in := pcmSine(100, 1000)

	out := c.Resample(in, 8000, 8000)
	require.Equal(t, in, out)

	// Mutating the output must not corrupt the caller's buffer.
	out[0] ^= 0xFF
	assert.NotEqual(t, in[0], out[0])
}

func TestResample_ConstantSignalStaysConstant(t *testing.T) {
	c := newTestCodec()

	in := make([]byte, 320)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(in[2*i:], uint16(int16(1234)))
	}

	out := c.Resample(in, 8000, 16000)
	require.NotNil(t, out)
	for i, s := range pcmSamples(out) {
		assert.Equal(t, int16(1234), s, "interpolation between equal samples must not move, sample %d", i)
	}
}

func TestResample_InterpolatesAcrossLargeSwings(t *testing.T) {
	c := newTestCodec()

	// Adjacent samples further apart than int16 can hold. The interpolated
	// midpoint must land between them, not wrap around.
	in := make([]byte, 4)
	lo, hi := int16(-30000), int16(30000)
	binary.LittleEndian.PutUint16(in[0:], uint16(lo))
	binary.LittleEndian.PutUint16(in[2:], uint16(hi))

	out := c.Resample(in, 8000, 16000)
	require.NotNil(t, out)
	samples := pcmSamples(out)
	require.Len(t, samples, 4)

	assert.Equal(t, int16(-30000), samples[0])
	assert.InDelta(t, 0, float64(samples[1]), 1, "midpoint of -30000 and 30000 must be near zero")
	assert.Equal(t, int16(30000), samples[2])
}

func TestResample_InvalidInput(t *testing.T) {
	c := newTestCodec()

	assert.Nil(t, c.Resample(nil, 8000, 16000))
	assert.Nil(t, c.Resample([]byte{1}, 8000, 16000), "odd-length buffer")
	assert.Nil(t, c.Resample(pcmSine(10, 100), 0, 16000), "zero source rate")
	assert.Nil(t, c.Resample(pcmSine(10, 100), 8000, 0), "zero target rate")
}

// ============================================================================
// AudioConfig
// ============================================================================

func TestAudioConfig_ByteRates(t *testing.T) {
	tests := []struct {
		name       string
		cfg        AudioConfig
		bytesPerMs int
		chunk20ms  int
	}{
		{"mulaw 8kHz", NewMulaw8khzMonoAudioConfig(), 8, 160},
		{"linear16 16kHz", NewLinear16khzMonoAudioConfig(), 32, 640},
		{"linear16 24kHz", NewLinear24khzMonoAudioConfig(), 48, 960},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.bytesPerMs, tt.cfg.BytesPerMillisecond())
			assert.Equal(t, tt.chunk20ms, tt.cfg.FrameBytes(ChunkDuration))
		})
	}
}
