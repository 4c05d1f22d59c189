// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_audio

import (
	"context"
	"time"

	"github.com/voxbridge/pkg/commons"
)

// ChunkDuration is the telephony frame cadence. The provider expects one
// media message per 20ms of audio and misbehaves when fed faster than
// real time.
const ChunkDuration = 20 * time.Millisecond

// Pacer slices a complete synthesized buffer into fixed-duration chunks and
// delivers them at the real-time playback rate. Cancellation between any two
// chunks is honored; a chunk is never cut mid-delivery.
type Pacer struct {
	logger     commons.Logger
	chunkBytes int

	// wait is injectable for tests; defaults to a timer-based sleep that
	// aborts on context cancellation.
	wait func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer for a mu-law stream at the given sample rate.
func NewPacer(logger commons.Logger, cfg AudioConfig) *Pacer {
	return &Pacer{
		logger:     logger,
		chunkBytes: cfg.FrameBytes(ChunkDuration),
		wait:       sleepCtx,
	}
}

// ChunkBytes returns the byte size of one paced chunk.
func (p *Pacer) ChunkBytes() int {
	return p.chunkBytes
}

// Stream delivers buf in paced chunks through deliver. It returns the
// context error when cancelled mid-stream, or the first delivery error.
// The trailing partial chunk (mu-law is one byte per sample, so any length
// is a valid frame) is delivered last.
func (p *Pacer) Stream(ctx context.Context, buf []byte, deliver func(chunk []byte) error) error {
	for offset := 0; offset < len(buf); offset += p.chunkBytes {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := offset + p.chunkBytes
		if end > len(buf) {
			end = len(buf)
		}
		if err := deliver(buf[offset:end]); err != nil {
			return err
		}
		if end == len(buf) {
			break
		}
		if err := p.wait(ctx, ChunkDuration); err != nil {
			return err
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
