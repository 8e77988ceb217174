// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/effects"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/splitter"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
)

// maxCommandLen bounds command text accepted over HTTP.
const maxCommandLen = 8192

// =============================================================================
// Errors
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error codes.
const (
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidCommand = "INVALID_COMMAND"
	CodeNotFound       = "NOT_FOUND"
	CodeStackEmpty     = "STACK_EMPTY"
	CodeInvalidJob     = "INVALID_JOB"
	CodeSuperseded     = "SUPERSEDED"
	CodeExecution      = "EXECUTION_FAILED"
	CodeTimeout        = "TIMEOUT"
	CodeUnavailable    = "UNAVAILABLE"
	CodeInternal       = "INTERNAL_ERROR"
)

// =============================================================================
// Requests
// =============================================================================

// CommandRequest carries command text for the pure pipeline endpoints.
type CommandRequest struct {
	Command string `json:"command" binding:"max=8192"`
}

// ReconstructRequest carries structured effects to render back to text.
type ReconstructRequest struct {
	Effects []effects.Effect `json:"effects" binding:"required"`
}

// SanitizeRequest asks for the argv a command would run with.
type SanitizeRequest struct {
	Command string `json:"command" binding:"max=8192"`
	Width   int    `json:"width" binding:"required,gt=0,lte=65535"`
	Height  int    `json:"height" binding:"required,gt=0,lte=65535"`
	Export  bool   `json:"export"`
}

// VibeRequest asks the agent to process a vibe.
type VibeRequest struct {
	Vibe string `json:"vibe" binding:"required,max=500"`
}

// PushRequest adds an entry to the stack. Source defaults to manual.
type PushRequest struct {
	Label   string       `json:"label" binding:"required,max=200"`
	Command string       `json:"command" binding:"required,max=8192"`
	Source  stack.Source `json:"source" binding:"omitempty,oneof=preset generated manual"`
}

// MoveRequest moves an entry one slot up (-1) or down (+1).
type MoveRequest struct {
	Direction int `json:"direction" binding:"required,oneof=-1 1"`
}

// UpdateEffectsRequest replaces an entry's structured effects.
type UpdateEffectsRequest struct {
	Effects []effects.Effect `json:"effects" binding:"required"`
}

// RenderRequest runs a command over an RGBA image.
//
// Description:
//
//	Pixels is Width*Height*4 bytes of 8-bit RGBA, base64-encoded in JSON.
//	An empty Command renders the current stack. ID is echoed back on the
//	websocket stream and ignored over plain HTTP.
type RenderRequest struct {
	ID      string `json:"id,omitempty" binding:"max=128"`
	Command string `json:"command" binding:"max=8192"`
	Width   int    `json:"width" binding:"required,gt=0"`
	Height  int    `json:"height" binding:"required,gt=0"`
	Export  bool   `json:"export"`
	Pixels  []byte `json:"pixels" binding:"required"`
}

// =============================================================================
// Responses
// =============================================================================

// HealthResponse reports service status.
type HealthResponse struct {
	Status     string `json:"status"`
	Generation bool   `json:"generation"`
	Cache      bool   `json:"cache"`
	Busy       bool   `json:"busy"`
}

// RuleInfo describes one flag rule.
type RuleInfo struct {
	Arity       int    `json:"arity"`
	Arg1        string `json:"arg1,omitempty"`
	Arg2        string `json:"arg2,omitempty"`
	StripSuffix bool   `json:"strip_suffix,omitempty"`
}

// FlagsResponse is the grammar registry.
type FlagsResponse struct {
	Allowed []string            `json:"allowed"`
	Rules   map[string]RuleInfo `json:"rules"`
	Sets    map[string][]string `json:"sets"`
}

// SplitResponse lists the segments of a command.
type SplitResponse struct {
	Entries []splitter.Entry `json:"entries"`
}

// EffectsResponse pairs parsed effects with their canonical text.
type EffectsResponse struct {
	Effects []effects.Effect `json:"effects"`
	Command string           `json:"command"`
}

// CommandResponse carries a single command string.
type CommandResponse struct {
	Command string `json:"command"`
}

// SanitizeResponse is the engine invocation for a command.
type SanitizeResponse struct {
	Args    []string `json:"args"`
	Output  string   `json:"output"`
	Mode    string   `json:"mode"`
	Command string   `json:"command"`
}

// StackResponse is a stack snapshot and its built command.
type StackResponse struct {
	Entries []stack.Entry `json:"entries"`
	Command string        `json:"command"`
}

// PushResponse is the pushed entry and what validation stripped from its
// command.
type PushResponse struct {
	stack.Entry
	Stripped []string `json:"stripped,omitempty"`
}

// MoveResponse reports whether a move happened.
type MoveResponse struct {
	Moved   bool          `json:"moved"`
	Entries []stack.Entry `json:"entries"`
}

// RenderResponse is a completed render.
type RenderResponse struct {
	Data       []byte `json:"data"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Mode       string `json:"mode"`
	Invocation string `json:"invocation"`
	DurationMs int64  `json:"duration_ms"`
}

// Render event statuses on the websocket stream.
const (
	StatusOK         = "ok"
	StatusSuperseded = "superseded"
	StatusError      = "error"
)

// RenderEvent is one message on the /ws/render stream.
type RenderEvent struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status"`
	Seq    uint64          `json:"seq,omitempty"`
	Result *RenderResponse `json:"result,omitempty"`
	Error  *ErrorResponse  `json:"error,omitempty"`
}
