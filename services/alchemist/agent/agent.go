// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent turns a vibe into stack entries.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/gencache"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/presets"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/splitter"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
)

const tracerName = "alchemist.agent"

// FallbackCommand is pushed when nothing usable survives validation.
const FallbackCommand = "-charcoal 5 -colorspace Gray"

// DefaultGenerateTimeout bounds one shared generator call.
const DefaultGenerateTimeout = 45 * time.Second

// ErrEmptyVibe is returned by ProcessVibe for a blank vibe.
var ErrEmptyVibe = errors.New("agent: vibe is empty")

// Generator produces raw command text for a vibe. llm.VibeGenerator
// implements it.
type Generator interface {
	Generate(ctx context.Context, vibe string) (string, error)
}

// Cache stores generated text between runs. gencache.Store implements it.
type Cache interface {
	Get(ctx context.Context, vibe string) (gencache.Entry, error)
	Put(ctx context.Context, vibe, command string) error
}

// Options configures an Agent.
type Options struct {
	// Stack receives the entries. Required.
	Stack *stack.Stack

	// Generator is optional; without one every miss runs offline.
	Generator Generator

	// Cache is optional.
	Cache Cache

	// GenerateTimeout bounds a generator call. The call is shared by every
	// concurrent caller with the same vibe and outlives any one of them.
	// Zero uses DefaultGenerateTimeout.
	GenerateTimeout time.Duration

	// Auditor records each validation. Nil records metrics only.
	Auditor *validator.Auditor

	// Catalog returns the current preset catalogue on each call so a
	// hot-reloaded override is picked up. Nil uses presets.MustCatalog.
	Catalog func() *presets.Catalog

	Logger *slog.Logger
}

// Report describes what ProcessVibe did.
type Report struct {
	Vibe string `json:"vibe"`

	// Source is preset for a catalogue hit, otherwise generated.
	Source stack.Source `json:"source"`

	// Raw is the text before validation: the preset command, the cached or
	// generated text, or the ready effect used offline.
	Raw string `json:"raw"`

	// Command is what was split into Entries.
	Command string `json:"command"`

	Stripped []string      `json:"stripped"`
	Entries  []stack.Entry `json:"entries"`

	CacheHit bool `json:"cache_hit"`

	// Offline is set when generation was unavailable and a random ready
	// effect stood in.
	Offline bool `json:"offline"`

	// Fallback is set when FallbackCommand replaced an empty result.
	Fallback bool `json:"fallback"`
}

// Agent runs the vibe pipeline.
//
// Description:
//
//	A vibe that names a preset pushes that preset's command as a single
//	entry. Anything else goes through the generation cache, then the
//	generator, then validation and splitting, and each segment is pushed
//	as its own entry. Concurrent calls for the same normalized vibe share
//	one generator call, which runs to completion (bounded by
//	GenerateTimeout) even if the caller that started it goes away.
//
// Thread Safety: Agent is safe for concurrent use. The entries of one
// call are pushed contiguously.
type Agent struct {
	stack     *stack.Stack
	generator Generator
	cache     Cache
	timeout   time.Duration
	auditor   *validator.Auditor
	catalog   func() *presets.Catalog
	logger    *slog.Logger

	group  singleflight.Group
	pushMu sync.Mutex
}

// New creates an Agent. It panics if opts.Stack is nil.
func New(opts Options) *Agent {
	if opts.Stack == nil {
		panic("agent.New: stack must not be nil")
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = presets.MustCatalog
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.GenerateTimeout
	if timeout <= 0 {
		timeout = DefaultGenerateTimeout
	}
	return &Agent{
		stack:     opts.Stack,
		generator: opts.Generator,
		cache:     opts.Cache,
		timeout:   timeout,
		auditor:   opts.Auditor,
		catalog:   catalog,
		logger:    logger.With(slog.String("component", "agent")),
	}
}

// ProcessVibe turns vibe into stack entries.
//
// Description:
//
//  1. A preset name (trimmed, case-insensitive) pushes one preset entry.
//  2. Otherwise the cache is consulted, then the generator.
//  3. If generation fails a random ready effect is used (offline mode).
//  4. The text is validated and the removals are audited.
//  5. An empty result becomes FallbackCommand.
//  6. The command is split and every segment is pushed as generated.
//
// Inputs:
//   - ctx: Bounds cache and generator calls.
//   - vibe: The mood phrase. Must not be blank.
//
// Outputs:
//   - Report: What was pushed and why.
//   - error: ErrEmptyVibe, or the context error if ctx ended while
//     generating. Generator failures are not returned; they switch to
//     offline mode.
func (a *Agent) ProcessVibe(ctx context.Context, vibe string) (Report, error) {
	trimmed := strings.TrimSpace(vibe)
	if trimmed == "" {
		return Report{}, ErrEmptyVibe
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent.Agent.ProcessVibe",
		trace.WithAttributes(attribute.Int("vibe_length", len(trimmed))),
	)
	defer span.End()
	start := time.Now()

	if p, ok := a.catalog().Lookup(trimmed); ok {
		a.pushMu.Lock()
		entry := a.stack.Push(trimmed, p.Command, stack.SourcePreset)
		a.pushMu.Unlock()

		vibesTotal.WithLabelValues(pathPreset).Inc()
		span.SetAttributes(attribute.String("path", pathPreset))
		a.logger.Info("preset matched",
			slog.String("vibe", trimmed),
			slog.String("preset", p.Name),
		)
		return Report{
			Vibe:     trimmed,
			Source:   stack.SourcePreset,
			Raw:      p.Command,
			Command:  p.Command,
			Stripped: []string{},
			Entries:  []stack.Entry{entry},
		}, nil
	}

	report := Report{Vibe: trimmed, Source: stack.SourceGenerated}

	raw, path, err := a.obtain(ctx, trimmed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Report{}, err
	}
	report.Raw = raw
	report.CacheHit = path == pathCache
	report.Offline = path == pathOffline

	res := validator.Validate(raw)
	a.auditor.Record(ctx, string(stack.SourceGenerated), raw, res)
	report.Stripped = res.Stripped

	command := res.Command
	segments := splitter.Split(command)
	if len(segments) == 0 {
		a.logger.Warn("nothing valid remained, using fallback",
			slog.String("vibe", trimmed),
			slog.Int("stripped_count", len(res.Stripped)),
		)
		command = FallbackCommand
		segments = splitter.Split(command)
		report.Fallback = true
		fallbacksTotal.Inc()
	}
	report.Command = command

	a.pushMu.Lock()
	report.Entries = make([]stack.Entry, 0, len(segments))
	for _, seg := range segments {
		report.Entries = append(report.Entries, a.stack.Push(seg.Label, seg.Command, stack.SourceGenerated))
	}
	a.pushMu.Unlock()

	vibesTotal.WithLabelValues(path).Inc()
	span.SetAttributes(
		attribute.String("path", path),
		attribute.Int("entries", len(report.Entries)),
		attribute.Int("stripped", len(report.Stripped)),
		attribute.Bool("fallback", report.Fallback),
	)
	a.logger.Info("vibe processed",
		slog.String("vibe", trimmed),
		slog.String("path", path),
		slog.String("command", command),
		slog.Int("entries", len(report.Entries)),
		slog.Int("stripped_count", len(report.Stripped)),
		slog.Bool("fallback", report.Fallback),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// Path labels for metrics, logs and spans.
const (
	pathPreset    = "preset"
	pathCache     = "cache"
	pathGenerated = "generated"
	pathOffline   = "offline"
)

// obtain returns raw text for a non-preset vibe and the path it came from.
func (a *Agent) obtain(ctx context.Context, vibe string) (string, string, error) {
	if a.cache != nil {
		e, err := a.cache.Get(ctx, vibe)
		switch {
		case err == nil:
			return e.Command, pathCache, nil
		case errors.Is(err, gencache.ErrNotFound):
		default:
			a.logger.Warn("cache lookup failed", slog.String("error", err.Error()))
		}
	}

	if a.generator != nil {
		// The call is shared, so it ignores any one caller's cancellation.
		genCtx := context.WithoutCancel(ctx)
		ch := a.group.DoChan(gencache.Normalize(vibe), func() (any, error) {
			gctx, cancel := context.WithTimeout(genCtx, a.timeout)
			defer cancel()

			text, err := a.generator.Generate(gctx, vibe)
			if err != nil {
				return "", err
			}
			if a.cache != nil {
				if perr := a.cache.Put(gctx, vibe, text); perr != nil {
					a.logger.Warn("cache write failed", slog.String("error", perr.Error()))
				}
			}
			return text, nil
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return "", "", ctx.Err()
		}
		if res.Err == nil {
			if res.Shared {
				sharedTotal.Inc()
			}
			return res.Val.(string), pathGenerated, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", "", ctxErr
		}
		a.logger.Warn("generation failed, running offline", slog.String("error", res.Err.Error()))
	}

	p, ok := a.catalog().RandomReadyEffect()
	if !ok {
		return "", pathOffline, nil
	}
	a.logger.Info("offline effect chosen", slog.String("preset", p.Name))
	return p.Command, pathOffline, nil
}
