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
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/agent"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/config"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/stack"
)

func newVibeCmd() *cobra.Command {
	var (
		noCache     bool
		presetsFile string
	)
	cmd := &cobra.Command{
		Use:   "vibe <phrase...>",
		Short: "Turn a mood phrase into stack entries",
		Long: "Looks the phrase up as a preset first, then the generation cache, then\n" +
			"asks the model when GEMINI_API_KEY is set. Without a key a random ready\n" +
			"effect is used.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if presetsFile == "" {
				presetsFile = cfg.PresetsFile
			}
			if presetsFile != "" {
				if _, err := loadCatalog(cmd.Context(), presetsFile); err != nil {
					return err
				}
			}

			st := stack.New(stack.NewSequentialIDs("e"))
			deps := buildAgent(cfg, st, !noCache, slog.Default())
			defer deps.Close()

			report, err := deps.Agent.ProcessVibe(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printReport(cmd, report)
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the generation cache")
	cmd.Flags().StringVar(&presetsFile, "presets", "", "Catalogue file to load instead of the built-in one")
	return cmd
}

func printReport(cmd *cobra.Command, r agent.Report) error {
	w := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(w, r)
	}

	source := string(r.Source)
	switch {
	case r.CacheHit:
		source += " (cached)"
	case r.Offline:
		source += " (offline)"
	}
	if r.Fallback {
		source += " (fallback)"
	}

	field(w, "vibe", titleStyle.Render(r.Vibe))
	field(w, "source", source)
	if r.Raw != "" && r.Raw != r.Command {
		field(w, "raw", dimStyle.Render(r.Raw))
	}
	field(w, "command", showCommand(r.Command))
	for _, s := range r.Stripped {
		field(w, "stripped", warnStyle.Render(s))
	}
	for i, e := range r.Entries {
		fmt.Fprintf(w, "%s %s  %s\n", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), titleStyle.Render(e.Label), showCommand(e.Command))
	}
	return nil
}
