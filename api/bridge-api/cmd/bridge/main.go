// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	bridge_api "github.com/voxbridge/api/bridge-api/api"
	internal_agent "github.com/voxbridge/api/bridge-api/internal/agent"
	internal_audio "github.com/voxbridge/api/bridge-api/internal/audio"
	internal_session "github.com/voxbridge/api/bridge-api/internal/session"
	internal_telephony "github.com/voxbridge/api/bridge-api/internal/telephony"
	internal_twilio_telephony "github.com/voxbridge/api/bridge-api/internal/telephony/twilio"
	bridge_routers "github.com/voxbridge/api/bridge-api/router"
	"github.com/voxbridge/config"
	"github.com/voxbridge/pkg/commons"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config init failed: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	logger, err := commons.NewApplicationLogger(commons.WithLevel(cfg.LogLevel))
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiApiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.Fatalf("speech service client init failed: %v", err)
	}

	var factory internal_agent.Factory
	switch cfg.AgentMode {
	case "turnbased":
		synth := internal_agent.NewGeminiSynthesizer(logger, client, cfg.GeminiTtsModel, cfg.SpeechOutputRate)
		factory = internal_agent.NewTurnBasedFactory(logger, synth, cfg.SpeechInputRate)
	default:
		factory = internal_agent.NewDuplexFactory(logger, client, cfg.GeminiModel, cfg.SpeechInputRate, cfg.SpeechOutputRate)
	}

	codec := internal_audio.NewCodec(logger, cfg.TelephonySampleRate, cfg.SpeechInputRate)
	pacer := internal_audio.NewPacer(logger, internal_audio.AudioConfig{
		Format:     "mulaw",
		SampleRate: cfg.TelephonySampleRate,
		Channels:   1,
	})
	registry := internal_session.NewRegistry(logger)
	streamHandler := internal_telephony.NewStreamHandler(logger, registry, factory, codec, pacer)
	callControl := internal_twilio_telephony.NewCallControl(logger, cfg)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	bApi := bridge_api.New(cfg, logger, registry, callControl, streamHandler)
	bridge_routers.BridgeRoutes(cfg, engine, logger, bApi)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	go func() {
		logger.Infof("%s %s listening on %s", cfg.Name, cfg.Version, server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	// End live calls before closing the listener. Each teardown waits out
	// its own grace period, so they run concurrently.
	var g errgroup.Group
	for _, id := range registry.ActiveIDs() {
		id := id
		g.Go(func() error {
			if sess, ok := registry.Lookup(id); ok {
				sess.Teardown("server shutdown")
			}
			return nil
		})
	}
	g.Wait()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}
