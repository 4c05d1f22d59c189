// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.
package internal_twilio_telephony

import (
	"fmt"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/voxbridge/config"
	"github.com/voxbridge/pkg/commons"
)

// CallControl wraps the provider REST surface used by the control plane:
// creating outbound calls, hanging calls up, and generating the call-setup
// markup that points the provider at our media-stream WebSocket.
type CallControl struct {
	logger commons.Logger
	cfg    *config.AppConfig
	client *twilio.RestClient
}

func NewCallControl(logger commons.Logger, cfg *config.AppConfig) *CallControl {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSid,
		Password: cfg.TwilioAuthToken,
	})
	return &CallControl{
		logger: logger,
		cfg:    cfg,
		client: client,
	}
}

// CreateCall places an outbound call that fetches its markup from
// /outbound-twiml and reports status changes to /call-status.
func (cc *CallControl) CreateCall(phoneNumber string) (string, error) {
	to := phoneNumber
	if !strings.HasPrefix(to, "+") {
		to = "+" + strings.TrimLeft(to, "+")
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(cc.cfg.TwilioPhoneNumber)
	params.SetUrl(fmt.Sprintf("https://%s/outbound-twiml", cc.cfg.PublicDomain))
	params.SetStatusCallback(fmt.Sprintf("https://%s/call-status", cc.cfg.PublicDomain))
	params.SetRecord(false)

	call, err := cc.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("creating call to %s: %w", to, err)
	}
	if call.Sid == nil {
		return "", fmt.Errorf("provider returned call without sid")
	}
	cc.logger.Infof("call initiated: sid=%s to=%s", *call.Sid, to)
	return *call.Sid, nil
}

// Hangup ends a live call on the provider side.
func (cc *CallControl) Hangup(callSid string) error {
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := cc.client.Api.UpdateCall(callSid, params); err != nil {
		return fmt.Errorf("hanging up call %s: %w", callSid, err)
	}
	cc.logger.Infof("hung up call: sid=%s", callSid)
	return nil
}

// StreamTwiML builds the call-setup markup: open the media stream, greet,
// then keep the call alive for the conversation.
func StreamTwiML(publicDomain string) (string, error) {
	stream := &twiml.VoiceStream{
		Url:   fmt.Sprintf("wss://%s/media-stream", publicDomain),
		Track: "both_tracks",
	}
	start := &twiml.VoiceStart{
		InnerElements: []twiml.Element{stream},
	}
	verbs := []twiml.Element{
		start,
		&twiml.VoicePause{Length: "1"},
		&twiml.VoiceSay{Message: "Hello! I'm your AI assistant."},
		&twiml.VoicePause{Length: "300"},
	}
	return twiml.Voice(verbs)
}

// HangupTwiML is returned when call setup fails.
func HangupTwiML() (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: "Connection error."},
		&twiml.VoiceHangup{},
	})
}
