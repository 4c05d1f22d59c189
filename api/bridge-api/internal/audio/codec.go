// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_audio

import (
	"encoding/base64"
	"encoding/binary"

	"github.com/zaf/g711"

	"github.com/voxbridge/pkg/commons"
)

// ============================================================================
// Codec: mu-law / PCM16 conversion and linear resampling
// ============================================================================

// Codec converts between the telephony provider's base64 mu-law frames and
// the speech service's linear PCM. Conversion failures (malformed base64,
// truncated PCM) yield an empty result with a non-fatal log; a bad frame
// must never take a call down.
type Codec struct {
	logger commons.Logger

	telephonyRate   int // mu-law side, 8000
	speechInputRate int // PCM handed to the speech service, 16000
}

// NewCodec builds a codec for the given telephony and speech-service rates.
func NewCodec(logger commons.Logger, telephonyRate, speechInputRate int) *Codec {
	return &Codec{
		logger:          logger,
		telephonyRate:   telephonyRate,
		speechInputRate: speechInputRate,
	}
}

// DecodeMulawBase64 decodes a base64 mu-law payload from the provider and
// returns PCM16 at the speech-service input rate. Returns nil on any
// malformed input.
func (c *Codec) DecodeMulawBase64(payload string) []byte {
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		c.logger.Warnw("Dropping undecodable media payload", "error", err.Error())
		return nil
	}
	if len(mulaw) == 0 {
		return nil
	}
	pcm := g711.DecodeUlaw(mulaw)
	return c.Resample(pcm, c.telephonyRate, c.speechInputRate)
}

// EncodeToMulaw resamples PCM16 from sourceRate down to the telephony rate
// and encodes it as mu-law bytes ready for the provider.
func (c *Codec) EncodeToMulaw(pcm []byte, sourceRate int) []byte {
	resampled := c.Resample(pcm, sourceRate, c.telephonyRate)
	if len(resampled) == 0 {
		return nil
	}
	return g711.EncodeUlaw(resampled)
}

// Resample converts PCM16 between sample rates by linear interpolation.
// Output sample count is proportional to the rate ratio. The conversion is
// lossy: callers must not assume bit-exact round trips, only bounded
// quantization error. A truncated (odd-length) buffer yields nil.
func (c *Codec) Resample(pcm []byte, fromRate, toRate int) []byte {
	if len(pcm) == 0 || fromRate <= 0 || toRate <= 0 {
		return nil
	}
	if len(pcm)%2 != 0 {
		c.logger.Warnw("Dropping truncated PCM buffer", "bytes", len(pcm))
		return nil
	}
	if fromRate == toRate {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out
	}

	in := make([]int16, len(pcm)/2)
	for i := range in {
		in[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}

	outLen := int(int64(len(in)) * int64(toRate) / int64(fromRate))
	if outLen == 0 {
		return nil
	}

	out := make([]byte, outLen*2)
	step := float64(fromRate) / float64(toRate)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(in)-1 {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(in[len(in)-1]))
			continue
		}
		frac := pos - float64(idx)
		// The difference must be computed in float64: adjacent samples can be
		// further apart than int16 holds.
		sample := float64(in[idx]) + frac*(float64(in[idx+1])-float64(in[idx]))
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(sample)))
	}
	return out
}
