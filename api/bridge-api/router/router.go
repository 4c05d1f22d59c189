// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package bridge_routers

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	bridge_api "github.com/voxbridge/api/bridge-api/api"
	"github.com/voxbridge/config"
	"github.com/voxbridge/pkg/commons"
)

// BridgeRoutes registers the control plane, health probes, and the
// media-stream endpoint on the engine.
func BridgeRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, bApi *bridge_api.BridgeApi) {
	logger.Info("Bridge routes added to engine.")

	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization"},
	}))

	apiv1 := engine.Group("")
	{
		apiv1.GET("/", bApi.Root)
		apiv1.GET("/healthz/", bApi.Healthz)
		apiv1.GET("/readiness/", bApi.Readiness)

		apiv1.POST("/make-call", bApi.MakeCall)
		apiv1.POST("/outbound-twiml", bApi.OutboundTwiML)
		apiv1.POST("/call-status", bApi.CallStatus)
		apiv1.POST("/hangup-call/:callSid", bApi.HangupCall)
		apiv1.GET("/active-calls", bApi.ActiveCalls)

		apiv1.GET("/media-stream", bApi.MediaStream)
	}
}
