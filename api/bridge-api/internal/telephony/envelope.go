// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_telephony

import (
	"encoding/base64"
	"encoding/json"
)

// Media-stream event tags sent by the telephony provider.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
)

// Envelope is one JSON message on the media-stream WebSocket, in both
// directions. The event tag selects which payload field is populated.
type Envelope struct {
	Event     string        `json:"event"`
	StreamSid string        `json:"streamSid,omitempty"`
	Start     *StartPayload `json:"start,omitempty"`
	Media     *MediaPayload `json:"media,omitempty"`
}

// StartPayload carries the durable call identifier assigned by the provider.
type StartPayload struct {
	CallSid   string   `json:"callSid"`
	StreamSid string   `json:"streamSid"`
	Tracks    []string `json:"tracks"`
}

// MediaPayload carries one base64 mu-law audio frame. Track is set on
// inbound messages only.
type MediaPayload struct {
	Track   string `json:"track,omitempty"`
	Payload string `json:"payload"`
}

// DecodeEnvelope parses one wire message.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// NewMediaEnvelope builds the outbound media message for one mu-law chunk.
func NewMediaEnvelope(streamSid string, mulaw []byte) ([]byte, error) {
	return json.Marshal(&Envelope{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media: &MediaPayload{
			Payload: base64.StdEncoding.EncodeToString(mulaw),
		},
	})
}
