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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/api"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/config"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/executor"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/presets"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	var (
		port  int
		debug bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Alchemist HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = port
			}
			if cmd.Flags().Changed("debug") {
				cfg.Debug = debug
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
	cmd.Flags().IntVar(&port, "port", config.DefaultPort, "Port to listen on (overrides ALCHEMIST_PORT)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug mode (overrides ALCHEMIST_DEBUG)")
	return cmd
}

// runServer serves until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.Config) error {
	logger := slog.Default()
	logger.Info("Starting Alchemist", slog.Any("config", *cfg))

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Catalogue override, hot-reloaded. A bad file leaves the built-in
	// catalogue in place.
	if cfg.PresetsFile != "" {
		w := presets.NewWatcher(cfg.PresetsFile, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn("Preset override not watched", slog.String("error", err.Error()))
		} else {
			defer w.Stop()
		}
	}

	st := stack.New(nil)
	deps := buildAgent(cfg, st, true, logger)
	defer deps.Close()

	exec := executor.New(newEngine(cfg, logger), logger)
	defer exec.Close()

	handlers := api.NewHandlers(api.Config{
		Stack:             st,
		Agent:             deps.Agent,
		Renderer:          exec,
		Auditor:           validator.NewAuditor(logger, cfg.AuditEnabled, cfg.AuditHash),
		MaxPixels:         cfg.MaxPixels,
		GenerationEnabled: deps.Generation,
		CacheEnabled:      deps.CacheEnabled,
		Logger:            logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           api.NewRouter(handlers, cfg.Debug),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg.Port, deps.Generation, deps.CacheEnabled)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down Alchemist")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func printBanner(port int, generation, cache bool) {
	onOff := func(b bool) string {
		if b {
			return commandStyle.Render("on")
		}
		return dimStyle.Render("off")
	}
	fmt.Fprintln(os.Stderr, titleStyle.Render("Glitch Alchemist"))
	fmt.Fprintf(os.Stderr, "  %s http://localhost:%d/v1/alchemist\n", labelStyle.Render("api       "), port)
	fmt.Fprintf(os.Stderr, "  %s %s\n", labelStyle.Render("generation"), onOff(generation))
	fmt.Fprintf(os.Stderr, "  %s %s\n", labelStyle.Render("cache     "), onOff(cache))
}
