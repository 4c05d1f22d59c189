// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package bridge_api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	internal_session "github.com/voxbridge/api/bridge-api/internal/session"
	internal_telephony "github.com/voxbridge/api/bridge-api/internal/telephony"
	internal_twilio_telephony "github.com/voxbridge/api/bridge-api/internal/telephony/twilio"
	"github.com/voxbridge/config"
	"github.com/voxbridge/pkg/commons"
)

var mediaStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// terminalCallStatuses are the provider status-callback values that mean the
// underlying call has ended and its session must be torn down.
var terminalCallStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"no-answer": true,
	"canceled":  true,
	"failed":    true,
}

// BridgeApi exposes the control plane and the media-stream endpoint.
type BridgeApi struct {
	cfg         *config.AppConfig
	logger      commons.Logger
	registry    internal_session.Registry
	callControl *internal_twilio_telephony.CallControl
	stream      *internal_telephony.StreamHandler
}

func New(
	cfg *config.AppConfig,
	logger commons.Logger,
	registry internal_session.Registry,
	callControl *internal_twilio_telephony.CallControl,
	stream *internal_telephony.StreamHandler,
) *BridgeApi {
	return &BridgeApi{
		cfg:         cfg,
		logger:      logger,
		registry:    registry,
		callControl: callControl,
		stream:      stream,
	}
}

// CallRequest is the make-call request body.
type CallRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
	Message     string `json:"message"`
}

// Root reports service liveness for humans poking the base URL.
func (b *BridgeApi) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "voxbridge is running"})
}

// Healthz is the liveness probe.
func (b *BridgeApi) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness is the readiness probe.
func (b *BridgeApi) Readiness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "version": b.cfg.Version})
}

// MakeCall initiates an outbound call through the provider.
//
// @Router /make-call [post]
func (b *BridgeApi) MakeCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sid, err := b.callControl.CreateCall(req.PhoneNumber)
	if err != nil {
		b.logger.Errorf("make-call failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to make call"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"call_sid": sid,
		"status":   "initiated",
		"to":       req.PhoneNumber,
		"from":     b.cfg.TwilioPhoneNumber,
	})
}

// OutboundTwiML serves the call-setup markup the provider fetches when the
// callee answers.
//
// @Router /outbound-twiml [post]
func (b *BridgeApi) OutboundTwiML(c *gin.Context) {
	doc, err := internal_twilio_telephony.StreamTwiML(b.cfg.PublicDomain)
	if err != nil {
		b.logger.Errorf("twiml generation failed: %v", err)
		if doc, err = internal_twilio_telephony.HangupTwiML(); err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
	}
	c.Data(http.StatusOK, "application/xml", []byte(doc))
}

// CallStatus receives provider status callbacks. Terminal statuses tear the
// session down by its durable identifier; callbacks for unknown calls are
// acknowledged and ignored (they can arrive after teardown).
//
// @Router /call-status [post]
func (b *BridgeApi) CallStatus(c *gin.Context) {
	callSid := c.PostForm("CallSid")
	callStatus := c.PostForm("CallStatus")
	b.logger.Infof("call %s status: %s", callSid, callStatus)

	if terminalCallStatuses[callStatus] {
		if sess, ok := b.registry.Lookup(callSid); ok {
			sess.Teardown("call " + callStatus)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

// HangupCall ends a call on the provider side and tears its session down.
//
// @Router /hangup-call/:callSid [post]
func (b *BridgeApi) HangupCall(c *gin.Context) {
	callSid := c.Param("callSid")
	if err := b.callControl.Hangup(callSid); err != nil {
		b.logger.Errorf("hangup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hang up call"})
		return
	}
	if sess, ok := b.registry.Lookup(callSid); ok {
		sess.Teardown("external hangup")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "call_sid": callSid, "status": "hung_up"})
}

// ActiveCalls lists the identifiers of all live sessions.
//
// @Router /active-calls [get]
func (b *BridgeApi) ActiveCalls(c *gin.Context) {
	ids := b.registry.ActiveIDs()
	c.JSON(http.StatusOK, gin.H{"active_calls": ids, "count": len(ids)})
}

// MediaStream upgrades the provider's media-stream connection and hands it
// to the transport event loop for the lifetime of the call.
//
// @Router /media-stream [get]
func (b *BridgeApi) MediaStream(c *gin.Context) {
	conn, err := mediaStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Errorf("media-stream upgrade failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to upgrade to WebSocket"})
		return
	}
	defer conn.Close()

	b.logger.Infof("media stream accepted from %s", c.ClientIP())
	b.stream.Serve(conn)
}
