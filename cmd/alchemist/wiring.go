// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/agent"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/config"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/engine"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/gencache"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/presets"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
	"github.com/AleutianAI/AleutianAlchemist/services/llm"
)

// agentDeps is an agent together with what it holds open.
type agentDeps struct {
	Agent *agent.Agent
	Cache *gencache.Store

	// Generation and CacheEnabled report what was actually wired.
	Generation   bool
	CacheEnabled bool
}

// Close releases the generation cache.
func (d *agentDeps) Close() {
	if d.Cache == nil {
		return
	}
	if err := d.Cache.Close(); err != nil {
		slog.Warn("Failed to close generation cache", slog.String("error", err.Error()))
	}
}

// buildAgent wires an agent over st from cfg.
//
// Description:
//
//	Generation is enabled when a Gemini key is configured; otherwise the
//	agent runs offline. The generation cache is opened when enabled and
//	useCache is true. A cache that cannot be opened is logged and skipped,
//	the service keeps working without persistence.
func buildAgent(cfg *config.Config, st *stack.Stack, useCache bool, logger *slog.Logger) *agentDeps {
	deps := &agentDeps{}
	opts := agent.Options{
		Stack:   st,
		Auditor: validator.NewAuditor(logger, cfg.AuditEnabled, cfg.AuditHash),
		Logger:  logger,
	}

	if cfg.GenerationEnabled() {
		client, err := llm.NewGeminiClientWithConfig(cfg.GeminiAPIKey, cfg.GeminiModel, "")
		if err != nil {
			logger.Warn("Generation disabled", slog.String("error", err.Error()))
		} else {
			gen := presets.MustCatalog().Generation
			opts.Generator = llm.NewVibeGenerator(client, llm.VibeOptions{
				SystemPrompt:    presets.SystemPrompt(),
				MaxOutputTokens: gen.MaxOutputTokens,
				Temperature:     gen.Temperature,
				RatePerMinute:   cfg.RatePerMinute,
				Logger:          logger,
			})
			deps.Generation = true
			logger.Info("Generation enabled", slog.String("model", client.Model()))
		}
	}

	if useCache && cfg.CacheEnabled() {
		store, err := gencache.Open(gencache.Options{Dir: cfg.CacheDir, TTL: cfg.CacheTTL, Logger: logger})
		if err != nil {
			logger.Warn("Generation cache unavailable, persistence disabled",
				slog.String("path", cfg.CacheDir),
				slog.String("error", err.Error()),
			)
		} else {
			deps.Cache = store
			deps.CacheEnabled = true
			opts.Cache = store
			logger.Info("Generation cache opened", slog.String("path", cfg.CacheDir))
		}
	}

	deps.Agent = agent.New(opts)
	return deps
}

// newEngine builds the ImageMagick engine from cfg.
func newEngine(cfg *config.Config, logger *slog.Logger) *engine.Magick {
	return engine.NewMagick(engine.Options{
		Binary:    cfg.EngineBinary,
		Timeout:   cfg.EngineTimeout,
		TempDir:   cfg.TempDir,
		MaxPixels: cfg.MaxPixels,
		Logger:    logger,
	})
}
