// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_audio

import "time"

// ============================================================================
// Audio formats and frame types
// ============================================================================

// Encoding tags an audio payload with its wire format and sample rate.
type Encoding string

const (
	EncodingMulaw8k Encoding = "mulaw-8k"
	EncodingPCM16k  Encoding = "pcm16-16k"
	EncodingPCM24k  Encoding = "pcm16-24k"
)

// Track labels on telephony media frames. Only the inbound track carries
// caller audio; outbound is our own playback echoed back by the provider.
const (
	TrackInbound  = "inbound"
	TrackOutbound = "outbound"
)

// Frame is an immutable audio value moving through the bridge. Sequence
// position is implied by arrival order.
type Frame struct {
	Payload  []byte
	Encoding Encoding
	Track    string
}

// AudioConfig describes a PCM or mu-law stream.
type AudioConfig struct {
	Format     string
	SampleRate int
	Channels   int
}

// NewMulaw8khzMonoAudioConfig is the native telephony provider format.
func NewMulaw8khzMonoAudioConfig() AudioConfig {
	return AudioConfig{Format: "mulaw", SampleRate: 8000, Channels: 1}
}

// NewLinear16khzMonoAudioConfig is the speech-service input format.
func NewLinear16khzMonoAudioConfig() AudioConfig {
	return AudioConfig{Format: "linear16", SampleRate: 16000, Channels: 1}
}

// NewLinear24khzMonoAudioConfig is the speech-service output format.
func NewLinear24khzMonoAudioConfig() AudioConfig {
	return AudioConfig{Format: "linear16", SampleRate: 24000, Channels: 1}
}

// BytesPerMillisecond returns the stream byte rate. Mu-law carries one byte
// per sample; linear16 carries two.
func (c AudioConfig) BytesPerMillisecond() int {
	bytesPerSample := 2
	if c.Format == "mulaw" {
		bytesPerSample = 1
	}
	return c.SampleRate / 1000 * c.Channels * bytesPerSample
}

// FrameBytes returns the byte count of one frame of the given duration.
func (c AudioConfig) FrameBytes(d time.Duration) int {
	return c.BytesPerMillisecond() * int(d.Milliseconds())
}
