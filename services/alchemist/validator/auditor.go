// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Auditor produces structured audit log entries for validation outcomes.
//
// Description:
//
//	Logs each validation with the raw and kept lengths and every stripped
//	reason. When hashing is enabled, a SHA256 of the raw input is attached so
//	individual generations can be correlated without logging their text.
//	Stripped reasons are also counted in Prometheus by Kind.
//
// Thread Safety: Safe for concurrent use (slog.Logger is concurrent-safe).
type Auditor struct {
	logger      *slog.Logger
	enabled     bool
	hashContent bool
}

// NewAuditor creates a new auditor.
//
// Inputs:
//   - logger: The structured logger for audit output. Nil uses slog.Default().
//   - enabled: Whether audit logging is active. Metrics are recorded either way.
//   - hashContent: Whether to include SHA256 content hashes in log entries.
//
// Outputs:
//   - *Auditor: Configured auditor.
func NewAuditor(logger *slog.Logger, enabled, hashContent bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:      logger.With(slog.String("component", "validator_audit")),
		enabled:     enabled,
		hashContent: hashContent,
	}
}

// Record logs one validation.
//
// Inputs:
//   - ctx: Context containing trace information.
//   - source: Where the raw text came from (e.g. "generated", "manual").
//   - raw: The text that was validated.
//   - res: The validation result.
func (a *Auditor) Record(ctx context.Context, source, raw string, res Result) {
	for _, r := range res.Removals {
		strippedTotal.WithLabelValues(string(r.Kind)).Inc()
	}
	validationsTotal.WithLabelValues(source, outcome(res)).Inc()

	if a == nil || !a.enabled {
		return
	}

	logger := a.loggerWithTrace(ctx)

	attrs := []any{
		slog.String("event", "command_validated"),
		slog.String("source", source),
		slog.Int("raw_length", len(raw)),
		slog.Int("kept_length", len(res.Command)),
		slog.Int("stripped_count", len(res.Stripped)),
		slog.Int64("timestamp", time.Now().UnixMilli()),
	}
	if len(res.Stripped) > 0 {
		attrs = append(attrs, slog.Any("stripped", res.Stripped))
	}
	if a.hashContent {
		if h := HashContent([]byte(raw)); h != "" {
			attrs = append(attrs, slog.String("content_hash", h))
		}
	}

	if res.Command == "" && raw != "" {
		logger.Warn("command fully stripped", attrs...)
		return
	}
	logger.Info("command validated", attrs...)
}

func outcome(res Result) string {
	switch {
	case res.Command == "":
		return "empty"
	case len(res.Removals) > 0:
		return "stripped"
	default:
		return "clean"
	}
}

// loggerWithTrace returns a logger enriched with trace context.
func (a *Auditor) loggerWithTrace(ctx context.Context) *slog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return a.logger
	}
	return a.logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// HashContent computes the SHA256 hex digest of content for audit purposes.
// Returns empty string for empty input.
func HashContent(content []byte) string {
	if len(content) == 0 {
		return ""
	}
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}
