// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes the Alchemist pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/agent"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/effects"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/engine"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/executor"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/presets"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/sanitizer"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/splitter"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
)

// VibeProcessor turns a vibe into stack entries. *agent.Agent implements it.
type VibeProcessor interface {
	ProcessVibe(ctx context.Context, vibe string) (agent.Report, error)
}

// Renderer runs render jobs latest-wins. *executor.Executor implements it.
type Renderer interface {
	Submit(ctx context.Context, job engine.Job) <-chan executor.Outcome
	Do(ctx context.Context, job engine.Job) (engine.Result, error)
	Busy() bool
}

// Config wires Handlers to the service components.
type Config struct {
	// Stack is required.
	Stack *stack.Stack

	// Agent is optional; without it POST /vibe returns 503.
	Agent VibeProcessor

	// Renderer is optional; without it render endpoints return 503.
	Renderer Renderer

	// Catalog returns the current presets. Nil uses presets.MustCatalog.
	Catalog func() *presets.Catalog

	// Auditor records every validation of client command text. Nil records
	// metrics only.
	Auditor *validator.Auditor

	// MaxPixels bounds render jobs. Zero uses engine.DefaultMaxPixels.
	MaxPixels int

	// GenerationEnabled and CacheEnabled are reported by /health.
	GenerationEnabled bool
	CacheEnabled      bool

	Logger *slog.Logger
}

// Handlers holds the HTTP handlers.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	stack      *stack.Stack
	agent      VibeProcessor
	renderer   Renderer
	catalog    func() *presets.Catalog
	auditor    *validator.Auditor
	maxPixels  int
	generation bool
	cache      bool
	logger     *slog.Logger
}

// NewHandlers creates Handlers. It panics if cfg.Stack is nil.
func NewHandlers(cfg Config) *Handlers {
	if cfg.Stack == nil {
		panic("api.NewHandlers: stack must not be nil")
	}
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = presets.MustCatalog
	}
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = engine.DefaultMaxPixels
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		stack:      cfg.Stack,
		agent:      cfg.Agent,
		renderer:   cfg.Renderer,
		catalog:    catalog,
		auditor:    cfg.Auditor,
		maxPixels:  maxPixels,
		generation: cfg.GenerationEnabled,
		cache:      cfg.CacheEnabled,
		logger:     logger.With(slog.String("component", "api")),
	}
}

// =============================================================================
// Service
// =============================================================================

// HandleHealth handles GET /v1/alchemist/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:     "healthy",
		Generation: h.generation,
		Cache:      h.cache,
	}
	if h.renderer != nil {
		resp.Busy = h.renderer.Busy()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleFlags handles GET /v1/alchemist/flags.
//
// Response:
//
//	200 OK: FlagsResponse with the allow-list in declaration order, every
//	rule keyed by flag, and every value set keyed by name.
func (h *Handlers) HandleFlags(c *gin.Context) {
	resp := FlagsResponse{
		Allowed: grammar.AllowedFlags(),
		Rules:   make(map[string]RuleInfo),
		Sets:    make(map[string][]string),
	}
	for _, flag := range grammar.RuleFlags() {
		rule, _ := grammar.Lookup(flag)
		info := RuleInfo{Arity: rule.Arity, StripSuffix: rule.StripSuffix}
		if rule.Arg1 != nil {
			info.Arg1 = rule.Arg1.Name()
		}
		if rule.Arg2 != nil {
			info.Arg2 = rule.Arg2.Name()
		}
		resp.Rules[flag] = info
	}
	for name, set := range grammar.Sets() {
		resp.Sets[name] = set.Values()
	}
	c.JSON(http.StatusOK, resp)
}

// HandlePresets handles GET /v1/alchemist/presets.
func (h *Handlers) HandlePresets(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog())
}

// =============================================================================
// Pure Pipeline
// =============================================================================

// HandleValidate handles POST /v1/alchemist/validate.
//
// Response:
//
//	200 OK: validator.Result
//	400 Bad Request: Malformed body
func (h *Handlers) HandleValidate(c *gin.Context) {
	var req CommandRequest
	if !bind(c, &req) {
		return
	}
	res := validator.Validate(req.Command)
	h.auditor.Record(c.Request.Context(), string(stack.SourceManual), req.Command, res)
	c.JSON(http.StatusOK, res)
}

// HandleSplit handles POST /v1/alchemist/split.
func (h *Handlers) HandleSplit(c *gin.Context) {
	var req CommandRequest
	if !bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, SplitResponse{Entries: splitter.Split(req.Command)})
}

// HandleParseEffects handles POST /v1/alchemist/effects/parse.
func (h *Handlers) HandleParseEffects(c *gin.Context) {
	var req CommandRequest
	if !bind(c, &req) {
		return
	}
	effs := effects.Parse(req.Command)
	c.JSON(http.StatusOK, EffectsResponse{Effects: effs, Command: effects.Reconstruct(effs)})
}

// HandleReconstruct handles POST /v1/alchemist/effects/reconstruct.
func (h *Handlers) HandleReconstruct(c *gin.Context) {
	var req ReconstructRequest
	if !bind(c, &req) {
		return
	}
	c.JSON(http.StatusOK, CommandResponse{Command: effects.Reconstruct(req.Effects)})
}

// HandleSanitize handles POST /v1/alchemist/sanitize.
func (h *Handlers) HandleSanitize(c *gin.Context) {
	var req SanitizeRequest
	if !bind(c, &req) {
		return
	}
	inv := sanitizer.Sanitize(req.Command, req.Width, req.Height, modeOf(req.Export))
	c.JSON(http.StatusOK, SanitizeResponse{
		Args:    inv.Args,
		Output:  inv.Output,
		Mode:    modeOf(req.Export).String(),
		Command: inv.String(),
	})
}

// =============================================================================
// Agent
// =============================================================================

// HandleVibe handles POST /v1/alchemist/vibe.
//
// Response:
//
//	200 OK: agent.Report
//	400 Bad Request: Missing or blank vibe
//	503 Service Unavailable: No agent configured
//	504 Gateway Timeout: The request ended while generating
func (h *Handlers) HandleVibe(c *gin.Context) {
	logger := h.requestLogger(c, "HandleVibe")

	if h.agent == nil {
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, "vibe processing is not configured")
		return
	}
	var req VibeRequest
	if !bind(c, &req) {
		return
	}

	report, err := h.agent.ProcessVibe(c.Request.Context(), req.Vibe)
	if err != nil {
		if errors.Is(err, agent.ErrEmptyVibe) {
			respondError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
			return
		}
		logger.Warn("vibe failed", slog.String("error", err.Error()))
		status, code := classify(err)
		respondError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, report)
}

// =============================================================================
// Stack
// =============================================================================

// HandleGetStack handles GET /v1/alchemist/stack.
func (h *Handlers) HandleGetStack(c *gin.Context) {
	c.JSON(http.StatusOK, StackResponse{Entries: h.stack.Entries(), Command: h.stack.Build()})
}

// HandlePush handles POST /v1/alchemist/stack.
//
// Description:
//
//	The command is validated before it is pushed; only the surviving text
//	is stored and the stripped reasons are returned with the entry.
//
// Response:
//
//	201 Created: PushResponse
//	400 Bad Request: Malformed body, or nothing in the command is allowed
func (h *Handlers) HandlePush(c *gin.Context) {
	var req PushRequest
	if !bind(c, &req) {
		return
	}
	source := req.Source
	if source == "" {
		source = stack.SourceManual
	}

	res := h.validated(c.Request.Context(), string(source), req.Command)
	if res.Command == "" {
		respondStripped(c, res)
		return
	}
	c.JSON(http.StatusCreated, PushResponse{
		Entry:    h.stack.Push(req.Label, res.Command, source),
		Stripped: res.Stripped,
	})
}

// HandleRemove handles DELETE /v1/alchemist/stack/:id.
func (h *Handlers) HandleRemove(c *gin.Context) {
	if err := h.stack.Remove(c.Param("id")); err != nil {
		respondNotFound(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleToggle handles POST /v1/alchemist/stack/:id/toggle.
func (h *Handlers) HandleToggle(c *gin.Context) {
	e, err := h.stack.Toggle(c.Param("id"))
	if err != nil {
		respondNotFound(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// HandleMove handles POST /v1/alchemist/stack/:id/move.
//
// Moving past either end, or an unknown id, is not an error; Moved is
// false and the stack is unchanged.
func (h *Handlers) HandleMove(c *gin.Context) {
	var req MoveRequest
	if !bind(c, &req) {
		return
	}
	moved := h.stack.Move(c.Param("id"), req.Direction)
	c.JSON(http.StatusOK, MoveResponse{Moved: moved, Entries: h.stack.Entries()})
}

// HandleUpdateEffects handles PUT /v1/alchemist/stack/:id/effects.
//
// Edited effects are rejected when their reconstruction would lose anything
// to validation, so free-text slots cannot introduce other operations.
func (h *Handlers) HandleUpdateEffects(c *gin.Context) {
	var req UpdateEffectsRequest
	if !bind(c, &req) {
		return
	}
	if res := h.validated(c.Request.Context(), string(stack.SourceManual), effects.Reconstruct(req.Effects)); len(res.Stripped) > 0 {
		respondStripped(c, res)
		return
	}
	e, err := h.stack.UpdateEffects(c.Param("id"), req.Effects)
	if err != nil {
		respondNotFound(c, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// HandlePop handles POST /v1/alchemist/stack/pop.
func (h *Handlers) HandlePop(c *gin.Context) {
	e, ok := h.stack.Pop()
	if !ok {
		respondError(c, http.StatusNotFound, CodeStackEmpty, "stack is empty")
		return
	}
	c.JSON(http.StatusOK, e)
}

// HandleClear handles DELETE /v1/alchemist/stack.
func (h *Handlers) HandleClear(c *gin.Context) {
	h.stack.Clear()
	c.Status(http.StatusNoContent)
}

// HandleStackCommand handles GET /v1/alchemist/stack/command.
func (h *Handlers) HandleStackCommand(c *gin.Context) {
	c.JSON(http.StatusOK, CommandResponse{Command: h.stack.Build()})
}

// =============================================================================
// Render
// =============================================================================

// HandleRender handles POST /v1/alchemist/render.
//
// Description:
//
//	Submits the job to the latest-wins executor and waits for its outcome.
//	A request displaced by a newer one before it started gets 409.
//
// Response:
//
//	200 OK: RenderResponse
//	400 Bad Request: Malformed body, a command with nothing allowed in it,
//	  or a buffer that does not match the dimensions
//	409 Conflict: Superseded by a newer render
//	422 Unprocessable Entity: The engine failed
//	503 Service Unavailable: No renderer configured, or shutting down
func (h *Handlers) HandleRender(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRender")

	if h.renderer == nil {
		respondError(c, http.StatusServiceUnavailable, CodeUnavailable, "rendering is not configured")
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRenderBody(h.maxPixels))

	var req RenderRequest
	if !bind(c, &req) {
		return
	}
	job, checked := h.jobFor(c.Request.Context(), req)
	if job.Command == "" && len(checked.Stripped) > 0 {
		respondStripped(c, checked)
		return
	}
	if err := job.Validate(h.maxPixels); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidJob, err.Error())
		return
	}

	res, err := h.renderer.Do(c.Request.Context(), job)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("render failed", slog.String("error", err.Error()))
		}
		respondError(c, status, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, renderResponse(res))
}

// jobFor builds an engine job, defaulting the command to the stack. The
// command always passes through the validator, stack text included, so only
// allow-listed operations reach the engine.
func (h *Handlers) jobFor(ctx context.Context, req RenderRequest) (engine.Job, validator.Result) {
	command := req.Command
	if command == "" {
		command = h.stack.Build()
	}
	res := h.validated(ctx, auditSourceRender, command)
	return engine.Job{
		Command: res.Command,
		Width:   req.Width,
		Height:  req.Height,
		Pixels:  req.Pixels,
		Mode:    modeOf(req.Export),
	}, res
}

// auditSourceRender tags validations of render commands.
const auditSourceRender = "render"

// validated runs command text through the allow-list and records the
// outcome.
func (h *Handlers) validated(ctx context.Context, source, command string) validator.Result {
	res := validator.Validate(command)
	h.auditor.Record(ctx, source, command, res)
	return res
}

// =============================================================================
// Helpers
// =============================================================================

// bind decodes and validates the JSON body, writing a 400 on failure.
func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return false
	}
	return true
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: msg, Code: code})
}

// respondStripped rejects a command that validation stripped.
func respondStripped(c *gin.Context, res validator.Result) {
	msg := "command has no allowed operations"
	if len(res.Stripped) > 0 {
		msg += ": " + strings.Join(res.Stripped, "; ")
	}
	respondError(c, http.StatusBadRequest, CodeInvalidCommand, msg)
}

func respondNotFound(c *gin.Context, err error) {
	if errors.Is(err, stack.ErrNotFound) {
		respondError(c, http.StatusNotFound, CodeNotFound, err.Error())
		return
	}
	respondError(c, http.StatusInternalServerError, CodeInternal, err.Error())
}

// classify maps a pipeline error to an HTTP status and error code.
func classify(err error) (int, string) {
	var execErr *engine.ExecutionError
	switch {
	case errors.Is(err, engine.ErrInvalidJob):
		return http.StatusBadRequest, CodeInvalidJob
	case errors.Is(err, executor.ErrSuperseded):
		return http.StatusConflict, CodeSuperseded
	case errors.Is(err, executor.ErrClosed):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.As(err, &execErr):
		return http.StatusUnprocessableEntity, CodeExecution
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func modeOf(export bool) sanitizer.Mode {
	if export {
		return sanitizer.ModeExport
	}
	return sanitizer.ModePreview
}

func renderResponse(res engine.Result) RenderResponse {
	return RenderResponse{
		Data:       res.Data,
		Width:      res.Width,
		Height:     res.Height,
		Mode:       res.Mode.String(),
		Invocation: res.Invocation.String(),
		DurationMs: res.Duration.Milliseconds(),
	}
}

// maxRenderBody is the largest render body for maxPixels: base64 of the
// RGBA buffer plus room for the other fields.
func maxRenderBody(maxPixels int) int64 {
	return int64(maxPixels)*4*4/3 + 4 + 16*1024
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return h.logger.With(
		slog.String("request_id", c.GetString(requestIDKey)),
		slog.String("handler", handler),
	)
}
