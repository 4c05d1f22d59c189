// Copyright (c) 2025-2026 Voxbridge Labs
//
// Licensed under the Apache License, Version 2.0.
// See LICENSE for details.

package internal_agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/voxbridge/pkg/commons"
)

// geminiSynthesizer produces a complete reply buffer through the Gemini
// speech-generation API in a single request.
type geminiSynthesizer struct {
	logger     commons.Logger
	client     *genai.Client
	model      string
	outputRate int
}

// NewGeminiSynthesizer builds the one-shot synthesizer used by the
// turn-based agent. The model must support an AUDIO response modality.
func NewGeminiSynthesizer(logger commons.Logger, client *genai.Client, model string, outputRate int) Synthesizer {
	return &geminiSynthesizer{
		logger:     logger,
		client:     client,
		model:      model,
		outputRate: outputRate,
	}
}

func (s *geminiSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, int, error) {
	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: "Puck"},
			},
		},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("speech generation request: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, s.outputRate, nil
			}
		}
	}
	return nil, 0, fmt.Errorf("speech generation returned no audio for %q", text)
}
