// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// alchemist is the command-line front end and HTTP server for the Glitch
// Alchemist pipeline.
//
// Usage:
//
//	alchemist validate -- -swirl 90 -foo 3
//	alchemist split -- -charcoal 5 -negate
//	alchemist effects -- -blur 0x5
//	alchemist sanitize --width 800 --height 600 -- -negate
//	alchemist presets
//	alchemist vibe "melting clock"
//	alchemist render --in photo.png --out glitched.png -- -swirl 180
//	alchemist serve --port 8080
//
// Command text starts with a dash, so it goes after "--". Commands that
// take command text read it from stdin when no arguments are given or the
// only argument is "-".
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Persistent flag values.
var (
	logFormat   string
	logLevel    string
	traceStdout bool
	jsonOutput  bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var shutdownTracing func(context.Context) error

	root := &cobra.Command{
		Use:           "alchemist",
		Short:         "Turn moods into ImageMagick glitch pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), logFormat, logLevel)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			if traceStdout {
				shutdown, err := setupTracing(cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				shutdownTracing = shutdown
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if shutdownTracing == nil {
				return nil
			}
			return shutdownTracing(context.Background())
		},
	}

	root.PersistentFlags().StringVar(&logFormat, "log-format", "auto", "Log format: auto, text or json")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&traceStdout, "trace", false, "Print OpenTelemetry spans to stderr")
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	root.AddCommand(
		newValidateCmd(),
		newSplitCmd(),
		newEffectsCmd(),
		newSanitizeCmd(),
		newPresetsCmd(),
		newVibeCmd(),
		newRenderCmd(),
		newServeCmd(),
	)
	return root
}

// newLogger builds the process logger. "auto" picks text on a terminal and
// JSON otherwise.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "auto":
		if isTerminal(w) {
			return slog.New(slog.NewTextHandler(w, opts)), nil
		}
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q", format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// setupTracing installs a tracer provider that prints spans to w.
func setupTracing(w io.Writer) (func(context.Context) error, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("stdout trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
