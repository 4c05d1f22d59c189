// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/genai"

	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	"github.com/voxbridge/pkg/commons"
)

const (
	// inboundQueueSize buffers decoded caller audio awaiting forwarding.
	inboundQueueSize = 256

	// outputQueueSize buffers produced items awaiting the session pump.
	outputQueueSize = 50

	receiveMaxRetries   = 5
	receiveRetryBackoff = 500 * time.Millisecond

	initialGreeting = "Hello! I'm your AI assistant. I'm ready to talk with you. Please speak when you're ready."
)

// liveSession is the slice of *genai.Session the duplex agent touches.
// Tests substitute a fake.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

// duplexAgent bridges a call to the Gemini Live API: every submitted frame is
// forwarded immediately, and incoming audio deltas are yielded as they
// arrive, with no full-utterance buffering.
type duplexAgent struct {
	logger commons.Logger
	callID string

	connect    func(ctx context.Context) (liveSession, error)
	inputRate  int
	outputRate int

	// Timing knobs, defaulted from package constants; tests shrink them.
	startupTimeout time.Duration
	retryBackoff   time.Duration

	mu      sync.Mutex
	session liveSession

	started atomic.Bool
	running atomic.Bool
	ready   atomic.Bool

	readyCh  chan struct{}
	startErr error
	stopped  chan struct{}

	inbound chan internal_audio.Frame
	output  chan OutboundItem

	stopOnce   sync.Once
	outputOnce sync.Once

	errMu   sync.Mutex
	termErr error
}

// NewDuplexFactory returns a Factory producing Gemini Live duplex agents.
func NewDuplexFactory(logger commons.Logger, client *genai.Client, model string, inputRate, outputRate int) Factory {
	return func(callID string) SpeechAgent {
		a := newDuplexAgent(logger, callID, inputRate, outputRate)
		a.connect = func(ctx context.Context) (liveSession, error) {
			return client.Live.Connect(ctx, model, &genai.LiveConnectConfig{
				ResponseModalities: []genai.Modality{genai.ModalityAudio},
				SpeechConfig: &genai.SpeechConfig{
					LanguageCode: "en-US",
					VoiceConfig: &genai.VoiceConfig{
						PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: "Puck"},
					},
				},
			})
		}
		return a
	}
}

func newDuplexAgent(logger commons.Logger, callID string, inputRate, outputRate int) *duplexAgent {
	return &duplexAgent{
		logger:         logger,
		callID:         callID,
		inputRate:      inputRate,
		outputRate:     outputRate,
		startupTimeout: StartupTimeout,
		retryBackoff:   receiveRetryBackoff,
		readyCh:        make(chan struct{}),
		stopped:        make(chan struct{}),
		inbound:        make(chan internal_audio.Frame, inboundQueueSize),
		output:         make(chan OutboundItem, outputQueueSize),
	}
}

// Start connects to the remote service and blocks until it is ready to
// accept audio, the startup window elapses, or ctx is cancelled.
func (a *duplexAgent) Start(ctx context.Context) error {
	a.started.Store(true)
	a.running.Store(true)
	go a.run(ctx)

	timer := time.NewTimer(a.startupTimeout)
	defer timer.Stop()
	select {
	case <-a.readyCh:
		if a.startErr != nil {
			a.Stop()
			return a.startErr
		}
		return nil
	case <-timer.C:
		a.Stop()
		return ErrStartupTimeout
	case <-ctx.Done():
		a.Stop()
		return ctx.Err()
	}
}

func (a *duplexAgent) run(ctx context.Context) {
	defer a.closeOutput()

	session, err := a.connect(ctx)
	if err != nil {
		a.startErr = fmt.Errorf("connecting speech session for call %s: %w", a.callID, err)
		close(a.readyCh)
		return
	}
	a.mu.Lock()
	if !a.running.Load() {
		// Stop won the race while connect was in flight. The session is
		// never stored, so Stop saw nil; release it here.
		a.mu.Unlock()
		if cerr := session.Close(); cerr != nil {
			a.logger.Debugf("closing late speech session for call %s: %v", a.callID, cerr)
		}
		return
	}
	a.session = session
	a.mu.Unlock()

	if err := session.SendClientContent(genai.LiveClientContentInput{
		Turns:        genai.Text(initialGreeting),
		TurnComplete: genai.Ptr(true),
	}); err != nil {
		a.logger.Warnw("Failed to send initial greeting", "call", a.callID, "error", err.Error())
	}

	a.ready.Store(true)
	close(a.readyCh)
	a.logger.Infof("speech session established for call %s", a.callID)

	go a.sendLoop(ctx)
	a.receiveLoop()
}

// sendLoop forwards queued inbound frames to the remote session immediately.
func (a *duplexAgent) sendLoop(ctx context.Context) {
	mimeType := fmt.Sprintf("audio/pcm;rate=%d", a.inputRate)
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopped:
			return
		case frame := <-a.inbound:
			err := a.session.SendRealtimeInput(genai.LiveRealtimeInput{
				Media: &genai.Blob{Data: frame.Payload, MIMEType: mimeType},
			})
			if err != nil {
				if !a.running.Load() {
					return
				}
				a.logger.Errorf("speech send error for call %s: %v", a.callID, err)
			}
		}
	}
}

// receiveLoop yields remote audio deltas and transcripts. Read errors are
// retried with backoff while the agent is running; exhausted retries are
// terminal and close the output channel.
func (a *duplexAgent) receiveLoop() {
	retries := 0
	for a.running.Load() {
		msg, err := a.session.Receive()
		if err != nil {
			if !a.running.Load() {
				return
			}
			retries++
			if retries > receiveMaxRetries {
				a.setErr(fmt.Errorf("speech session for call %s failed after %d retries: %w", a.callID, receiveMaxRetries, err))
				return
			}
			a.logger.Errorf("speech receive error for call %s (retry %d/%d): %v", a.callID, retries, receiveMaxRetries, err)
			select {
			case <-a.stopped:
				return
			case <-time.After(time.Duration(retries) * a.retryBackoff):
			}
			continue
		}
		retries = 0
		a.dispatch(msg)
	}
}

func (a *duplexAgent) dispatch(msg *genai.LiveServerMessage) {
	if msg == nil || msg.ServerContent == nil || msg.ServerContent.ModelTurn == nil {
		return
	}
	for _, part := range msg.ServerContent.ModelTurn.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			a.emit(OutboundItem{Audio: part.InlineData.Data, SampleRate: a.outputRate})
		}
		if part.Text != "" {
			a.emit(OutboundItem{Text: part.Text})
		}
	}
}

func (a *duplexAgent) emit(item OutboundItem) {
	select {
	case a.output <- item:
	default:
		a.logger.Warnw("Agent output queue full, dropping item", "call", a.callID)
	}
}

// SubmitAudio enqueues an inbound frame without blocking. Frames arriving
// before readiness or after Stop are dropped.
func (a *duplexAgent) SubmitAudio(frame internal_audio.Frame) {
	if !a.running.Load() || !a.ready.Load() {
		return
	}
	select {
	case a.inbound <- frame:
	default:
		a.logger.Warnw("Agent inbound queue full, dropping frame", "call", a.callID)
	}
}

func (a *duplexAgent) Output() <-chan OutboundItem {
	return a.output
}

// Err reports the terminal failure that closed Output, if any.
func (a *duplexAgent) Err() error {
	a.errMu.Lock()
	defer a.errMu.Unlock()
	return a.termErr
}

// Stop releases the remote session. Idempotent.
func (a *duplexAgent) Stop() {
	a.stopOnce.Do(func() {
		a.running.Store(false)
		a.ready.Store(false)
		close(a.stopped)

		a.mu.Lock()
		session := a.session
		a.mu.Unlock()
		if session != nil {
			if err := session.Close(); err != nil {
				a.logger.Debugf("closing speech session for call %s: %v", a.callID, err)
			}
		}
		// run() owns the output channel once started; when Start was never
		// called there is no producer, so release consumers here.
		if !a.started.Load() {
			a.closeOutput()
		}
		a.logger.Infof("speech agent stopped for call %s", a.callID)
	})
}

func (a *duplexAgent) setErr(err error) {
	a.errMu.Lock()
	a.termErr = err
	a.errMu.Unlock()
	a.logger.Errorf("%v", err)
}

func (a *duplexAgent) closeOutput() {
	a.outputOnce.Do(func() { close(a.output) })
}
