// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	internal_agent "github.com/voxbridge/api/bridge-api/internal/agent"
	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	"github.com/voxbridge/pkg/commons"
)

// ============================================================================
// States
// ============================================================================

// State is a call session's lifecycle stage. Transitions are monotonic;
// there is no way back.
type State int32

const (
	StateCreated State = iota
	StateAwaitingStart
	StateActive
	StateStopping
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingStart:
		return "awaiting_start"
	case StateActive:
		return "active"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	// OutboundQueueCap bounds frames/text awaiting synthesis/transmission.
	// On overflow the NEW item is rejected: for real-time audio a stale
	// backlog is worse than a dropped frame.
	OutboundQueueCap = 50

	inboundQueueCap = 512

	// teardownGrace bounds how long teardown waits for session tasks.
	// Tasks that do not finish promptly are abandoned, not awaited forever.
	teardownGrace = 5 * time.Second
)

// MediaWriter delivers one encoded mu-law chunk to the telephony transport.
// The transport serializes writes in call order.
type MediaWriter interface {
	WriteMedia(streamID string, mulaw []byte) error
}

// ============================================================================
// Session
// ============================================================================

// Session owns one telephone call: its state machine, inbound/outbound
// queues, the speech agent, and the pump tasks that tie them together.
type Session struct {
	logger   commons.Logger
	registry Registry
	factory  internal_agent.Factory
	codec    *internal_audio.Codec
	pacer    *internal_audio.Pacer
	writer   MediaWriter

	mu       sync.Mutex
	state    State
	id       string   // current identifier: temporary, then durable
	streamID string   // provider stream identifier for outbound envelopes
	ids      []string // every identifier this session was registered under

	agent internal_agent.SpeechAgent

	inbound  chan internal_audio.Frame
	outbound chan internal_agent.OutboundItem

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	startOnce    sync.Once
	teardownOnce sync.Once
	done         chan struct{}
}

// NewSession creates a session in StateCreated with a temporary identifier.
func NewSession(
	logger commons.Logger,
	registry Registry,
	factory internal_agent.Factory,
	codec *internal_audio.Codec,
	pacer *internal_audio.Pacer,
	writer MediaWriter,
) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		logger:   logger,
		registry: registry,
		factory:  factory,
		codec:    codec,
		pacer:    pacer,
		writer:   writer,
		state:    StateCreated,
		id:       tempCallID(),
		inbound:  make(chan internal_audio.Frame, inboundQueueCap),
		outbound: make(chan internal_agent.OutboundItem, OutboundQueueCap),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func tempCallID() string {
	return "WS_" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Begin registers the session under its temporary identifier and moves it to
// StateAwaitingStart. Called by the transport right after accepting the
// connection.
func (s *Session) Begin() error {
	if err := s.registry.Create(s.ID(), s); err != nil {
		return err
	}
	s.advance(StateAwaitingStart)
	return nil
}

// HandleStart is the only legal trigger for AwaitingStart → Active. It
// promotes the registry entry to the durable call identifier, constructs the
// speech agent, and blocks until the agent is ready or the startup window
// elapses, in which case the session goes straight to teardown and the
// timeout error is surfaced to the caller.
func (s *Session) HandleStart(callSid, streamSid string) error {
	var err error
	handled := false
	s.startOnce.Do(func() {
		handled = true
		err = s.activate(callSid, streamSid)
	})
	if !handled {
		s.logger.Warnw("Duplicate start event ignored", "call", callSid)
	}
	return err
}

func (s *Session) activate(callSid, streamSid string) error {
	if st := s.State(); st != StateAwaitingStart {
		return fmt.Errorf("start event in state %s", st)
	}

	if callSid != "" {
		if err := s.registry.Promote(s.ID(), callSid); err != nil {
			s.logger.Errorf("identifier promotion failed: %v", err)
		} else {
			s.setID(callSid)
		}
	}
	s.mu.Lock()
	s.streamID = streamSid
	s.mu.Unlock()

	agent := s.factory(callSid)
	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()

	if err := agent.Start(s.ctx); err != nil {
		s.logger.Errorf("agent startup failed for call %s: %v", callSid, err)
		s.Teardown("agent startup failure")
		return err
	}

	if !s.advance(StateActive) {
		// Torn down while the agent was starting.
		return fmt.Errorf("session %s ended during startup", callSid)
	}

	s.tasks.Add(3)
	go s.runInboundPump()
	go s.runAgentPump()
	go s.runOutboundPump()

	s.logger.Infof("session %s active (stream %s)", callSid, streamSid)
	return nil
}

// HandleMedia accepts one inbound media payload. Frames on any other track
// are discarded, and frames arriving before the session is Active are
// dropped, never buffered for later.
func (s *Session) HandleMedia(track, payload string) {
	if track != internal_audio.TrackInbound {
		return
	}
	if s.State() != StateActive {
		s.logger.Debugf("dropping media for %s in state %s", s.ID(), s.State())
		return
	}
	pcm := s.codec.DecodeMulawBase64(payload)
	if len(pcm) == 0 {
		return
	}
	frame := internal_audio.Frame{
		Payload:  pcm,
		Encoding: internal_audio.EncodingPCM16k,
		Track:    internal_audio.TrackInbound,
	}
	select {
	case s.inbound <- frame:
	default:
		s.logger.Warnw("Inbound queue full, dropping frame", "call", s.ID())
	}
}

// HandleStop reacts to the provider's stop event. An unexpected disconnect
// is routed here as well.
func (s *Session) HandleStop(reason string) {
	s.Teardown(reason)
}

// ============================================================================
// Pumps
// ============================================================================

// runInboundPump submits decoded frames to the agent in arrival order.
func (s *Session) runInboundPump() {
	defer s.tasks.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.inbound:
			s.agent.SubmitAudio(frame)
		}
	}
}

// runAgentPump moves produced items into the bounded outbound queue. A
// closed output channel with a terminal agent error takes the session down.
func (s *Session) runAgentPump() {
	defer s.tasks.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case item, ok := <-s.agent.Output():
			if !ok {
				if err := s.agent.Err(); err != nil {
					s.logger.Errorf("agent failed for call %s: %v", s.ID(), err)
					// Teardown waits on this pump; detach.
					go s.Teardown("agent failure")
				}
				return
			}
			s.enqueueOutbound(item)
		}
	}
}

// enqueueOutbound applies the overflow policy: at capacity the new item is
// rejected and a backpressure signal logged; queued items keep their order.
func (s *Session) enqueueOutbound(item internal_agent.OutboundItem) bool {
	select {
	case s.outbound <- item:
		return true
	default:
		s.logger.Warnw("Outbound queue full, rejecting item", "call", s.ID())
		return false
	}
}

// runOutboundPump encodes produced audio to paced mu-law chunks and writes
// them to the transport in production order. Text items are observed in the
// log only.
func (s *Session) runOutboundPump() {
	defer s.tasks.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case item := <-s.outbound:
			if item.Text != "" && item.Audio == nil {
				s.logger.Infof("transcript for call %s: %s", s.ID(), item.Text)
				continue
			}
			mulaw := s.codec.EncodeToMulaw(item.Audio, item.SampleRate)
			if len(mulaw) == 0 {
				continue
			}
			streamID := s.StreamID()
			err := s.pacer.Stream(s.ctx, mulaw, func(chunk []byte) error {
				return s.writer.WriteMedia(streamID, chunk)
			})
			if err != nil && s.ctx.Err() == nil {
				s.logger.Errorf("outbound write failed for call %s: %v", s.ID(), err)
			}
		}
	}
}

// ============================================================================
// Teardown
// ============================================================================

// Teardown is the single authorized release path: cancel tasks, await their
// bounded completion, stop the agent, and remove every identifier the
// session was registered under. Safe to invoke concurrently from any
// trigger; once terminated, further requests are ignored.
func (s *Session) Teardown(reason string) {
	s.teardownOnce.Do(func() {
		s.advance(StateStopping)
		s.logger.Infof("tearing down session %s: %s", s.ID(), reason)

		s.cancel()

		finished := make(chan struct{})
		go func() {
			s.tasks.Wait()
			close(finished)
		}()
		select {
		case <-finished:
		case <-time.After(teardownGrace):
			s.logger.Warnw("Session tasks did not finish in time, abandoning", "call", s.ID())
		}

		s.mu.Lock()
		agent := s.agent
		s.mu.Unlock()
		if agent != nil {
			agent.Stop()
		}

		for _, id := range s.registeredIDs() {
			s.registry.Remove(id)
		}

		s.advance(StateTerminated)
		close(s.done)
		s.logger.Infof("session %s terminated", s.ID())
	})
}

// Done closes once the session reaches StateTerminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ============================================================================
// Accessors and state transitions
// ============================================================================

// advance moves the state forward; backward and repeated transitions are
// rejected, keeping the lifecycle monotonic.
func (s *Session) advance(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to <= s.state {
		return false
	}
	s.logger.Debugf("session %s: %s -> %s", s.id, s.state, to)
	s.state = to
	return true
}

// State returns the current lifecycle stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the current (temporary or durable) call identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) setID(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// StreamID returns the provider stream identifier from the start event.
func (s *Session) StreamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamID
}

// recordID remembers an identifier for teardown sweeping. Called by the
// registry inside its own critical section.
func (s *Session) recordID(id string) {
	s.mu.Lock()
	s.ids = append(s.ids, id)
	s.mu.Unlock()
}

func (s *Session) registeredIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}
