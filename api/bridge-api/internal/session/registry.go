// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_session

import (
	"fmt"
	"sync"

	"github.com/voxbridge/pkg/commons"
)

// Registry is the process-wide map from call/stream identifier to session.
//
// Sessions are registered under a locally generated temporary identifier the
// moment the transport accepts a connection, then promoted to the durable
// provider-assigned identifier when the start event arrives. Promotion is
// atomic: the temporary entry is removed in the same critical section that
// inserts the durable one, so no moment exists where both resolve, or
// neither does.
type Registry interface {
	// Create registers a new session under its temporary identifier.
	// Fails if the identifier is already taken (identifiers are never
	// reused concurrently).
	Create(tempID string, s *Session) error

	// Promote atomically replaces the temporary identifier with the
	// durable one. After promotion the temporary identifier resolves to
	// nothing.
	Promote(tempID, durableID string) error

	// Remove drops one identifier. Removing an absent identifier is a
	// no-op so teardown can sweep every identifier a session ever held.
	Remove(id string)

	// Lookup resolves an identifier to its session.
	Lookup(id string) (*Session, bool)

	// ActiveIDs lists all currently registered identifiers.
	ActiveIDs() []string
}

type memoryRegistry struct {
	logger   commons.Logger
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty in-memory registry.
func NewRegistry(logger commons.Logger) Registry {
	return &memoryRegistry{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func (r *memoryRegistry) Create(tempID string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[tempID]; exists {
		return fmt.Errorf("session identifier %s already registered", tempID)
	}
	r.sessions[tempID] = s
	s.recordID(tempID)
	r.logger.Debugf("registered session %s", tempID)
	return nil
}

func (r *memoryRegistry) Promote(tempID, durableID string) error {
	if tempID == durableID {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[tempID]
	if !ok {
		return fmt.Errorf("cannot promote unknown session %s", tempID)
	}
	if existing, taken := r.sessions[durableID]; taken && existing != s {
		return fmt.Errorf("identifier %s already held by another session", durableID)
	}
	delete(r.sessions, tempID)
	r.sessions[durableID] = s
	s.recordID(durableID)
	r.logger.Infof("promoted session %s -> %s", tempID, durableID)
	return nil
}

func (r *memoryRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *memoryRegistry) Lookup(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *memoryRegistry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
