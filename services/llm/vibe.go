// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// TextGenerator is the single-turn generation call VibeGenerator needs.
// GeminiClient implements it.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, Usage, error)
}

// VibeOptions configures a VibeGenerator.
type VibeOptions struct {
	// SystemPrompt is sent as the system instruction on every request.
	SystemPrompt string

	// MaxOutputTokens and Temperature are passed through when positive.
	MaxOutputTokens int
	Temperature     float64

	// RatePerMinute limits requests. Zero or negative disables limiting.
	RatePerMinute int

	Logger *slog.Logger
}

// VibeGenerator turns a mood phrase into raw command text.
//
// Description:
//
//	The vibe is framed as "Input: <vibe>\nOutput:" and sent with the
//	system prompt. The reply is stripped of backticks and a leading
//	program name, and any <placeholder> is replaced with a default value
//	chosen from its name. The result is not validated; callers run it
//	through the validator.
//
// Thread Safety: VibeGenerator is safe for concurrent use.
type VibeGenerator struct {
	client  TextGenerator
	params  GenerationParams
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewVibeGenerator wraps client with framing, cleanup and rate limiting.
func NewVibeGenerator(client TextGenerator, opts VibeOptions) *VibeGenerator {
	params := GenerationParams{SystemInstruction: opts.SystemPrompt}
	if opts.MaxOutputTokens > 0 {
		n := opts.MaxOutputTokens
		params.MaxOutputTokens = &n
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		params.Temperature = &temp
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &VibeGenerator{
		client:  client,
		params:  params,
		limiter: limiter,
		logger:  logger.With(slog.String("component", "vibe_generator")),
	}
}

// Generate returns cleaned command text for vibe.
//
// Inputs:
//   - ctx: Bounds both the rate-limit wait and the request.
//   - vibe: The mood phrase.
//
// Outputs:
//   - string: Cleaned, unvalidated command text.
//   - error: Rate-limit wait or generation failure.
func (v *VibeGenerator) Generate(ctx context.Context, vibe string) (string, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gemini: rate limit wait: %w", err)
	}

	start := time.Now()
	text, usage, err := v.client.Generate(ctx, FramePrompt(vibe), v.params)
	elapsed := time.Since(start)
	recordGeneration(elapsed, usage, err)

	if err != nil {
		v.logger.Warn("generation failed",
			slog.String("vibe", SafeLogString(vibe)),
			slog.Duration("duration", elapsed),
			slog.String("error", SafeLogString(err.Error())),
		)
		return "", err
	}

	cleaned := CleanGeneration(text)
	v.logger.Info("generation complete",
		slog.String("vibe", SafeLogString(vibe)),
		slog.String("raw", SafeLogString(text)),
		slog.String("cleaned", SafeLogString(cleaned)),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("candidate_tokens", usage.CandidatesTokens),
		slog.Duration("duration", elapsed),
	)
	return cleaned, nil
}

// FramePrompt wraps a vibe in the Input/Output frame the system prompt's
// examples use.
func FramePrompt(vibe string) string {
	return fmt.Sprintf("Input: %s\nOutput:", vibe)
}

var (
	leadingProgram    = regexp.MustCompile(`^(magick|magica)\s+`)
	placeholderToken  = regexp.MustCompile(`<[^>]+>`)
	placeholderValues = []struct{ hint, value string }{
		{"radius", "0"},
		{"kernel", "1"},
		{"degree", "180"},
		{"factor", "0.5"},
		{"percent", "50"},
	}
)

// CleanGeneration strips formatting from generated text and fills
// placeholders with safe defaults ("<radius>" becomes "0", "<degrees>"
// becomes "180"; anything unrecognised becomes "1").
func CleanGeneration(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "`", ""))
	text = leadingProgram.ReplaceAllString(text, "")
	return placeholderToken.ReplaceAllStringFunc(text, func(match string) string {
		placeholdersTotal.Inc()
		for _, p := range placeholderValues {
			if strings.Contains(match, p.hint) {
				return p.value
			}
		}
		return "1"
	})
}
