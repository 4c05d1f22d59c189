// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	"github.com/voxbridge/pkg/commons"
)

// ============================================================================
// Test fakes
// ============================================================================

// fakeLiveSession stands in for the remote speech session.
type fakeLiveSession struct {
	mu       sync.Mutex
	realtime []genai.LiveRealtimeInput
	content  []genai.LiveClientContentInput
	recvErr  error
	closes   int

	recv      chan *genai.LiveServerMessage
	done      chan struct{}
	closeOnce sync.Once
}

func newFakeLiveSession() *fakeLiveSession {
	return &fakeLiveSession{
		recv: make(chan *genai.LiveServerMessage, 16),
		done: make(chan struct{}),
	}
}

func (f *fakeLiveSession) SendRealtimeInput(input genai.LiveRealtimeInput) error {
	f.mu.Lock()
	f.realtime = append(f.realtime, input)
	f.mu.Unlock()
	return nil
}

func (f *fakeLiveSession) SendClientContent(input genai.LiveClientContentInput) error {
	f.mu.Lock()
	f.content = append(f.content, input)
	f.mu.Unlock()
	return nil
}

func (f *fakeLiveSession) Receive() (*genai.LiveServerMessage, error) {
	for {
		f.mu.Lock()
		err := f.recvErr
		f.mu.Unlock()
		if err != nil {
			return nil, err
		}
		select {
		case msg := <-f.recv:
			return msg, nil
		case <-f.done:
			return nil, errors.New("session closed")
		case <-time.After(time.Millisecond):
			// Re-check recvErr so an error set while blocked is delivered.
		}
	}
}

func (f *fakeLiveSession) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	f.closeOnce.Do(func() { close(f.done) })
	return nil
}

func (f *fakeLiveSession) realtimeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.realtime)
}

func (f *fakeLiveSession) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// ============================================================================
// Test helpers
// ============================================================================

func newTestDuplexAgent(session *fakeLiveSession) *duplexAgent {
	logger, _ := commons.NewApplicationLogger()
	a := newDuplexAgent(logger, "CA123", 16000, 24000)
	a.retryBackoff = time.Millisecond
	a.connect = func(ctx context.Context) (liveSession, error) {
		return session, nil
	}
	return a
}

func audioMessage(data []byte) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{
					{InlineData: &genai.Blob{Data: data, MIMEType: "audio/pcm"}},
				},
			},
		},
	}
}

func textMessage(text string) *genai.LiveServerMessage {
	return &genai.LiveServerMessage{
		ServerContent: &genai.LiveServerContent{
			ModelTurn: &genai.Content{
				Parts: []*genai.Part{{Text: text}},
			},
		},
	}
}

func readItem(t *testing.T, a *duplexAgent) OutboundItem {
	t.Helper()
	select {
	case item, ok := <-a.Output():
		require.True(t, ok, "output closed unexpectedly")
		return item
	case <-time.After(2 * time.Second):
		t.Fatal("no item produced in time")
		return OutboundItem{}
	}
}

func waitOutputClosed(t *testing.T, a *duplexAgent) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-a.Output():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("output channel never closed")
		}
	}
}

// ============================================================================
// Start
// ============================================================================

func TestDuplexStart_ReadyAfterConnect(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	defer a.Stop()

	require.NoError(t, a.Start(context.Background()))

	// The opening turn is sent as soon as the session is up.
	session.mu.Lock()
	greetings := len(session.content)
	session.mu.Unlock()
	assert.Equal(t, 1, greetings, "exactly one opening turn")
}

func TestDuplexStart_ConnectFailure(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()
	a := newDuplexAgent(logger, "CA123", 16000, 24000)
	a.connect = func(ctx context.Context) (liveSession, error) {
		return nil, errors.New("dial refused")
	}

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial refused")

	waitOutputClosed(t, a)
}

func TestDuplexStart_TimesOut(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()
	a := newDuplexAgent(logger, "CA123", 16000, 24000)
	a.startupTimeout = 50 * time.Millisecond
	a.connect = func(ctx context.Context) (liveSession, error) {
		<-ctx.Done() // remote never answers
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := a.Start(ctx)
	assert.ErrorIs(t, err, ErrStartupTimeout)
}

func TestDuplexStart_LateConnectAfterTimeoutClosesSession(t *testing.T) {
	session := newFakeLiveSession()
	logger, _ := commons.NewApplicationLogger()
	a := newDuplexAgent(logger, "CA123", 16000, 24000)
	a.startupTimeout = 20 * time.Millisecond

	release := make(chan struct{})
	a.connect = func(ctx context.Context) (liveSession, error) {
		<-release
		return session, nil
	}

	err := a.Start(context.Background())
	require.ErrorIs(t, err, ErrStartupTimeout)

	// The remote answers only after the caller gave up.
	close(release)

	require.Eventually(t, func() bool {
		return session.closeCount() == 1
	}, 2*time.Second, 5*time.Millisecond, "a late-established session must still be released")

	session.mu.Lock()
	greetings := len(session.content)
	session.mu.Unlock()
	assert.Equal(t, 0, greetings, "no opening turn after shutdown")

	waitOutputClosed(t, a)
}

func TestDuplexStart_CancelledContext(t *testing.T) {
	logger, _ := commons.NewApplicationLogger()
	a := newDuplexAgent(logger, "CA123", 16000, 24000)
	a.connect = func(ctx context.Context) (liveSession, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := a.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// ============================================================================
// SubmitAudio
// ============================================================================

func TestDuplexSubmitAudio_ForwardsWithSampleRate(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	defer a.Stop()

	require.NoError(t, a.Start(context.Background()))

	a.SubmitAudio(internal_audio.Frame{
		Payload:  []byte{1, 2, 3, 4},
		Encoding: internal_audio.EncodingPCM16k,
		Track:    internal_audio.TrackInbound,
	})

	require.Eventually(t, func() bool {
		return session.realtimeCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	session.mu.Lock()
	defer session.mu.Unlock()
	require.NotNil(t, session.realtime[0].Media)
	assert.Equal(t, []byte{1, 2, 3, 4}, session.realtime[0].Media.Data)
	assert.Equal(t, "audio/pcm;rate=16000", session.realtime[0].Media.MIMEType)
}

func TestDuplexSubmitAudio_DroppedBeforeStart(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)

	a.SubmitAudio(internal_audio.Frame{Payload: []byte{1, 2}})

	assert.Equal(t, 0, session.realtimeCount(), "frames before readiness are dropped, never queued")
}

func TestDuplexSubmitAudio_DroppedAfterStop(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	require.NoError(t, a.Start(context.Background()))

	a.Stop()
	a.SubmitAudio(internal_audio.Frame{Payload: []byte{1, 2}})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, session.realtimeCount())
}

// ============================================================================
// Receive dispatch
// ============================================================================

func TestDuplexReceive_YieldsAudioAndText(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	defer a.Stop()

	require.NoError(t, a.Start(context.Background()))

	session.recv <- audioMessage([]byte{9, 9, 9, 9})
	item := readItem(t, a)
	assert.Equal(t, []byte{9, 9, 9, 9}, item.Audio)
	assert.Equal(t, 24000, item.SampleRate, "produced audio is tagged with the service output rate")

	session.recv <- textMessage("transcribed words")
	item = readItem(t, a)
	assert.Equal(t, "transcribed words", item.Text)
	assert.Nil(t, item.Audio)
}

func TestDuplexReceive_IgnoresEmptyMessages(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	defer a.Stop()

	require.NoError(t, a.Start(context.Background()))

	session.recv <- &genai.LiveServerMessage{}
	session.recv <- audioMessage([]byte{1, 2})

	item := readItem(t, a)
	assert.Equal(t, []byte{1, 2}, item.Audio, "empty server messages are skipped")
}

func TestDuplexReceive_TerminalAfterRetriesExhausted(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)

	require.NoError(t, a.Start(context.Background()))

	session.mu.Lock()
	session.recvErr = errors.New("stream reset")
	session.mu.Unlock()

	waitOutputClosed(t, a)
	require.Error(t, a.Err())
	assert.Contains(t, a.Err().Error(), "stream reset")

	a.Stop()
}

// ============================================================================
// Stop
// ============================================================================

func TestDuplexStop_Idempotent(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)
	require.NoError(t, a.Start(context.Background()))

	a.Stop()
	a.Stop()
	a.Stop()

	assert.Equal(t, 1, session.closeCount(), "the remote session is closed exactly once")
	waitOutputClosed(t, a)
	assert.NoError(t, a.Err(), "an operator-requested stop is not a failure")
}

func TestDuplexStop_WithoutStartClosesOutput(t *testing.T) {
	session := newFakeLiveSession()
	a := newTestDuplexAgent(session)

	a.Stop()

	waitOutputClosed(t, a)
	assert.Equal(t, 0, session.closeCount(), "nothing to close when never connected")
}
