// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_telephony

import (
	"sync"

	"github.com/gorilla/websocket"

	internal_agent "github.com/voxbridge/api/bridge-api/internal/agent"
	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	internal_session "github.com/voxbridge/api/bridge-api/internal/session"
	"github.com/voxbridge/pkg/commons"
)

// StreamHandler runs the transport event loop for one media-stream
// connection: it creates the session, dispatches decoded envelopes into the
// state machine, and serializes outbound frames back onto the socket.
type StreamHandler struct {
	logger   commons.Logger
	registry internal_session.Registry
	factory  internal_agent.Factory
	codec    *internal_audio.Codec
	pacer    *internal_audio.Pacer
}

// NewStreamHandler wires the collaborators every connection shares.
func NewStreamHandler(
	logger commons.Logger,
	registry internal_session.Registry,
	factory internal_agent.Factory,
	codec *internal_audio.Codec,
	pacer *internal_audio.Pacer,
) *StreamHandler {
	return &StreamHandler{
		logger:   logger,
		registry: registry,
		factory:  factory,
		codec:    codec,
		pacer:    pacer,
	}
}

// Serve owns the connection until the call ends. An unexpected disconnect
// is treated exactly like a stop event: it triggers teardown.
func (h *StreamHandler) Serve(conn *websocket.Conn) {
	writer := newStreamWriter(conn)
	sess := internal_session.NewSession(h.logger, h.registry, h.factory, h.codec, h.pacer, writer)
	if err := sess.Begin(); err != nil {
		h.logger.Errorf("session registration failed: %v", err)
		return
	}
	defer sess.Teardown("transport closed")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debugf("media stream closed for %s", sess.ID())
			} else {
				h.logger.Debugf("media stream read ended for %s: %v", sess.ID(), err)
			}
			sess.HandleStop("transport disconnect")
			return
		}

		env, err := DecodeEnvelope(data)
		if err != nil {
			// A malformed message never takes the loop down.
			h.logger.Warnw("Skipping malformed media-stream message", "error", err.Error())
			continue
		}

		switch env.Event {
		case EventConnected:
			h.logger.Debugf("media stream connected for %s", sess.ID())
		case EventStart:
			if env.Start == nil {
				h.logger.Warnw("Start event without payload", "call", sess.ID())
				continue
			}
			if err := sess.HandleStart(env.Start.CallSid, env.Start.StreamSid); err != nil {
				h.logger.Errorf("session activation failed: %v", err)
				return
			}
		case EventMedia:
			if env.Media != nil {
				sess.HandleMedia(env.Media.Track, env.Media.Payload)
			}
		case EventStop:
			sess.HandleStop("stop event")
			return
		default:
			h.logger.Debugf("ignoring media-stream event %q", env.Event)
		}
	}
}

// streamWriter serializes outbound envelopes onto the socket. gorilla
// permits one concurrent writer, so every write goes through one mutex.
type streamWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func newStreamWriter(conn *websocket.Conn) *streamWriter {
	return &streamWriter{conn: conn}
}

func (w *streamWriter) WriteMedia(streamID string, mulaw []byte) error {
	data, err := NewMediaEnvelope(streamID, mulaw)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}
