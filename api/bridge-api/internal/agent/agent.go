// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_agent

import (
	"context"
	"errors"
	"time"

	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
)

// StartupTimeout bounds how long Start may take before the session gives up
// on the remote speech service.
const StartupTimeout = 15 * time.Second

// ErrStartupTimeout is returned by Start when the remote service does not
// become ready within StartupTimeout.
var ErrStartupTimeout = errors.New("speech agent startup timeout")

// OutboundItem is one unit produced by a speech agent: either synthesized
// PCM16 audio (Audio non-nil, tagged with its sample rate) or informational
// text such as a transcript. Text is observed in logs only; it is never
// forwarded to the telephony side.
type OutboundItem struct {
	Audio      []byte
	SampleRate int
	Text       string
}

// SpeechAgent is the capability contract shared by the duplex and turn-based
// speech-service integrations. The session state machine is agnostic to the
// variant behind it.
//
//   - Start begins the remote session and returns once the service can
//     accept audio, or ErrStartupTimeout after StartupTimeout.
//   - SubmitAudio enqueues inbound PCM16 without blocking. Frames submitted
//     before the agent is ready (or after Stop) are silently dropped.
//   - Output yields produced items in order. The channel is closed when
//     production ends, either on Stop or on a terminal remote failure,
//     which Err reports afterwards.
//   - Stop releases remote resources and is idempotent.
type SpeechAgent interface {
	Start(ctx context.Context) error
	SubmitAudio(frame internal_audio.Frame)
	Output() <-chan OutboundItem
	Err() error
	Stop()
}

// Factory constructs one agent per call; the session owns the instance.
type Factory func(callID string) SpeechAgent
