// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_agent

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"time"

	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	"github.com/voxbridge/pkg/commons"
)

const (
	// A turn ends once the caller has been silent for this long.
	turnSilenceGap = 700 * time.Millisecond
	turnPollEvery  = 100 * time.Millisecond

	turnGreeting = "Hello! I'm your AI assistant. How can I help you today?"
)

// standInResponses are the canned replies produced while no recognizer is
// wired into the turn-based variant.
var standInResponses = []string{
	"Hello! How can I help you today?",
	"That's interesting! Tell me more.",
	"I understand. Is there anything else I can assist you with?",
	"Thank you for calling. Have a great day!",
	"I'm here to help you with any questions.",
}

// Synthesizer turns a reply text into one complete PCM16 buffer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (pcm []byte, sampleRate int, err error)
}

// turnBasedAgent accumulates a full inbound utterance, picks a stand-in
// response, synthesizes the whole reply in one shot, and yields the complete
// buffer. It honors the same contract as the duplex variant so the session
// never knows the difference.
type turnBasedAgent struct {
	logger commons.Logger
	callID string

	synth     Synthesizer
	inputRate int

	// minUtteranceBytes is the least buffered audio considered a turn;
	// overridable in tests.
	minUtteranceBytes int
	silenceGap        time.Duration

	mu        sync.Mutex
	utterance bytes.Buffer
	lastAudio time.Time

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	running atomic.Bool
	ready   atomic.Bool

	turnIdx atomic.Int64
	turns   chan string
	output  chan OutboundItem

	stopOnce   sync.Once
	outputOnce sync.Once
}

// NewTurnBasedFactory returns a Factory producing turn-based agents backed
// by the given synthesizer.
func NewTurnBasedFactory(logger commons.Logger, synth Synthesizer, inputRate int) Factory {
	return func(callID string) SpeechAgent {
		return newTurnBasedAgent(logger, callID, synth, inputRate)
	}
}

func newTurnBasedAgent(logger commons.Logger, callID string, synth Synthesizer, inputRate int) *turnBasedAgent {
	return &turnBasedAgent{
		logger:            logger,
		callID:            callID,
		synth:             synth,
		inputRate:         inputRate,
		minUtteranceBytes: inputRate, // half a second of 16-bit mono
		silenceGap:        turnSilenceGap,
		turns:             make(chan string, 8),
		output:            make(chan OutboundItem, outputQueueSize),
	}
}

// Start needs no remote connection: the agent is ready as soon as its turn
// processor is running. The greeting is queued as the first turn, matching
// the duplex variant's opening behavior.
func (a *turnBasedAgent) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.started.Store(true)
	a.running.Store(true)
	a.ready.Store(true)

	a.turns <- turnGreeting
	go a.run()
	return nil
}

func (a *turnBasedAgent) run() {
	defer a.closeOutput()

	ticker := time.NewTicker(turnPollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case text := <-a.turns:
			a.processTurn(text)
		case <-ticker.C:
			if text, ok := a.takeUtterance(); ok {
				a.processTurn(text)
			}
		}
	}
}

// takeUtterance closes the current turn when enough audio has accumulated
// and the caller has gone quiet, returning the stand-in reply for it.
func (a *turnBasedAgent) takeUtterance() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.utterance.Len() < a.minUtteranceBytes || time.Since(a.lastAudio) < a.silenceGap {
		return "", false
	}
	a.logger.Debugf("turn boundary for call %s after %d buffered bytes", a.callID, a.utterance.Len())
	a.utterance.Reset()

	idx := int(a.turnIdx.Add(1)-1) % len(standInResponses)
	return standInResponses[idx], true
}

// processTurn synthesizes the full reply in one shot and yields it as a
// single complete buffer. Synthesis failures are absorbed; the call simply
// stays silent for that turn.
func (a *turnBasedAgent) processTurn(text string) {
	audio, rate, err := a.synth.Synthesize(a.ctx, text)
	if err != nil {
		a.logger.Errorf("synthesis failed for call %s: %v", a.callID, err)
		return
	}
	if len(audio) == 0 {
		return
	}
	a.emit(OutboundItem{Text: text})
	a.emit(OutboundItem{Audio: audio, SampleRate: rate})
}

func (a *turnBasedAgent) emit(item OutboundItem) {
	select {
	case a.output <- item:
	case <-a.ctx.Done():
	}
}

// SubmitAudio accumulates inbound PCM into the current utterance.
func (a *turnBasedAgent) SubmitAudio(frame internal_audio.Frame) {
	if !a.running.Load() || !a.ready.Load() {
		return
	}
	a.mu.Lock()
	a.utterance.Write(frame.Payload)
	a.lastAudio = time.Now()
	a.mu.Unlock()
}

func (a *turnBasedAgent) Output() <-chan OutboundItem {
	return a.output
}

// Err always reports nil: the turn-based variant has no persistent remote
// session that can fail terminally.
func (a *turnBasedAgent) Err() error {
	return nil
}

// Stop cancels the turn processor. Idempotent.
func (a *turnBasedAgent) Stop() {
	a.stopOnce.Do(func() {
		a.running.Store(false)
		a.ready.Store(false)
		if a.cancel != nil {
			a.cancel()
		}
		if !a.started.Load() {
			a.closeOutput()
		}
		a.logger.Infof("turn-based agent stopped for call %s", a.callID)
	})
}

func (a *turnBasedAgent) closeOutput() {
	a.outputOnce.Do(func() { close(a.output) })
}
