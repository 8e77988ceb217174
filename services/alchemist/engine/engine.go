// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine runs sanitized invocations against an ImageMagick binary.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/sanitizer"
)

const tracerName = "alchemist.engine"

// Defaults for Options.
const (
	DefaultBinary    = "convert"
	DefaultTimeout   = 30 * time.Second
	DefaultMaxPixels = 4096 * 4096

	// maxStderr bounds how much engine stderr is kept on an ExecutionError.
	maxStderr = 4096

	// waitDelay bounds how long a killed run may hold its output pipes.
	waitDelay = time.Second
)

// ErrInvalidJob is returned for jobs whose buffer does not match their
// dimensions.
var ErrInvalidJob = errors.New("engine: invalid job")

// Job is one render request.
type Job struct {
	// Command is the user command text. It is sanitized before running.
	Command string

	// Width and Height are the source dimensions in pixels.
	Width  int
	Height int

	// Pixels is the source image as 8-bit RGBA, Width*Height*4 bytes.
	Pixels []byte

	// Mode selects preview (raw RGBA) or export (JPEG) output.
	Mode sanitizer.Mode
}

// Validate checks the job's dimensions against its buffer.
func (j Job) Validate(maxPixels int) error {
	if j.Width <= 0 || j.Height <= 0 {
		return fmt.Errorf("%w: dimensions %dx%d", ErrInvalidJob, j.Width, j.Height)
	}
	if maxPixels > 0 && j.Width*j.Height > maxPixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidJob, j.Width, j.Height, maxPixels)
	}
	if want := j.Width * j.Height * 4; len(j.Pixels) != want {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrInvalidJob, len(j.Pixels), want)
	}
	return nil
}

// Result is the output of a completed run.
type Result struct {
	// Data is raw RGBA in preview mode and JPEG bytes in export mode.
	Data []byte

	Width  int
	Height int
	Mode   sanitizer.Mode

	// Invocation is the argv that produced Data.
	Invocation sanitizer.Invocation

	Duration time.Duration
}

// Engine runs jobs.
type Engine interface {
	Run(ctx context.Context, job Job) (Result, error)
}

// ExecutionError reports a failed engine run.
//
// Description:
//
//	ExitCode is the process exit status, or -1 when the process did not
//	exit normally (not found, killed by timeout). Stderr holds the trimmed
//	tail of the engine's error output.
type ExecutionError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("engine: execution failed (exit %d)", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Options configures a Magick engine.
type Options struct {
	// Binary is the executable to run. Default: "convert".
	Binary string

	// Timeout bounds a single run. Default: 30s.
	Timeout time.Duration

	// TempDir is the parent of per-run working directories. Empty uses
	// os.TempDir().
	TempDir string

	// MaxPixels bounds Width*Height. Default: 4096*4096.
	MaxPixels int

	Logger *slog.Logger
}

// Magick runs jobs through a local ImageMagick binary.
//
// Description:
//
//	Each run gets a fresh temporary directory holding source.rgba. The
//	sanitized argv runs with that directory as its working directory, and
//	the mode's output file is read back. The directory is removed after the
//	run.
//
// Thread Safety: Magick is safe for concurrent use.
type Magick struct {
	binary    string
	timeout   time.Duration
	tempDir   string
	maxPixels int
	logger    *slog.Logger
}

// NewMagick creates a Magick engine, applying defaults for zero options.
func NewMagick(opts Options) *Magick {
	m := &Magick{
		binary:    opts.Binary,
		timeout:   opts.Timeout,
		tempDir:   opts.TempDir,
		maxPixels: opts.MaxPixels,
		logger:    opts.Logger,
	}
	if m.binary == "" {
		m.binary = DefaultBinary
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	if m.maxPixels <= 0 {
		m.maxPixels = DefaultMaxPixels
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With(slog.String("component", "engine"))
	return m
}

// Run executes one job.
//
// Inputs:
//   - ctx: Bounds the run together with the configured timeout.
//   - job: The job. Must pass Validate.
//
// Outputs:
//   - Result: The output bytes and the invocation used.
//   - error: ErrInvalidJob for a malformed job, *ExecutionError when the
//     binary fails or produces no usable output.
func (m *Magick) Run(ctx context.Context, job Job) (Result, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.Magick.Run",
		trace.WithAttributes(
			attribute.Int("width", job.Width),
			attribute.Int("height", job.Height),
			attribute.String("mode", job.Mode.String()),
		),
	)
	defer span.End()

	res, err := m.run(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Warn("render failed",
			slog.String("mode", job.Mode.String()),
			slog.String("error", err.Error()),
		)
		return Result{}, err
	}

	m.logger.Debug("render complete",
		slog.String("mode", job.Mode.String()),
		slog.Int("bytes", len(res.Data)),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

func (m *Magick) run(ctx context.Context, job Job) (Result, error) {
	if err := job.Validate(m.maxPixels); err != nil {
		return Result{}, err
	}

	dir, err := os.MkdirTemp(m.tempDir, "alchemist-*")
	if err != nil {
		return Result{}, fmt.Errorf("engine: creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, sanitizer.InputFile), job.Pixels, 0o600); err != nil {
		return Result{}, fmt.Errorf("engine: writing source: %w", err)
	}

	inv := sanitizer.Sanitize(job.Command, job.Width, job.Height, job.Mode)

	runCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, m.binary, inv.Args[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		if runCtx.Err() != nil {
			runErr = fmt.Errorf("%w: %w", runErr, runCtx.Err())
		}
		return Result{}, &ExecutionError{ExitCode: code, Stderr: tail(stderr.String()), Err: runErr}
	}

	data, err := os.ReadFile(filepath.Join(dir, inv.Output))
	if err != nil {
		return Result{}, &ExecutionError{Stderr: tail(stderr.String()), Err: fmt.Errorf("reading %s: %w", inv.Output, err)}
	}
	if job.Mode == sanitizer.ModePreview && len(data) != len(job.Pixels) {
		return Result{}, &ExecutionError{
			Stderr: tail(stderr.String()),
			Err:    fmt.Errorf("%s is %d bytes, want %d", inv.Output, len(data), len(job.Pixels)),
		}
	}

	return Result{
		Data:       data,
		Width:      job.Width,
		Height:     job.Height,
		Mode:       job.Mode,
		Invocation: inv,
		Duration:   elapsed,
	}, nil
}

// tail trims s and keeps at most its last maxStderr bytes.
func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
