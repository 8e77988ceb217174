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
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/effects"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/presets"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/sanitizer"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/splitter"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [-- command...]",
		Short: "Strip a command down to the allowed grammar",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := commandText(cmd, args)
			if err != nil {
				return err
			}
			res := validator.Validate(raw)
			validator.NewAuditor(nil, false, false).Record(cmd.Context(), "manual", raw, res)

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, res)
			}
			field(w, "command", showCommand(res.Command))
			for _, s := range res.Stripped {
				field(w, "stripped", warnStyle.Render(s))
			}
			return nil
		},
	}
}

func newSplitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split [-- command...]",
		Short: "Segment a command into stack entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := commandText(cmd, args)
			if err != nil {
				return err
			}
			entries := splitter.Split(raw)

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, entries)
			}
			for i, e := range entries {
				fmt.Fprintf(w, "%s %s  %s\n", dimStyle.Render(fmt.Sprintf("%2d.", i+1)), titleStyle.Render(e.Label), showCommand(e.Command))
			}
			return nil
		},
	}
}

func newEffectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "effects [-- command...]",
		Short: "Parse a command into editable effects",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := commandText(cmd, args)
			if err != nil {
				return err
			}
			effs := effects.Parse(raw)

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, effs)
			}
			for _, e := range effs {
				fmt.Fprintf(w, "%s %s\n", titleStyle.Render(e.Name), dimStyle.Render("("+string(e.Family)+")"))
				for _, a := range e.Args {
					field(w, "  "+a.Label, describeArg(a))
				}
			}
			field(w, "command", showCommand(effects.Reconstruct(effs)))
			return nil
		},
	}
}

// describeArg renders an argument's value and range.
func describeArg(a effects.Argument) string {
	if a.Kind != effects.KindNumber {
		if len(a.Options) > 0 {
			return fmt.Sprintf("%s %s", a.Text, dimStyle.Render("["+strings.Join(a.Options, "|")+"]"))
		}
		return a.Text
	}
	return fmt.Sprintf("%g%s %s", a.Number, a.Unit, dimStyle.Render(fmt.Sprintf("[%g..%g step %g]", a.Min, a.Max, a.Step)))
}

func newSanitizeCmd() *cobra.Command {
	var (
		width, height int
		export        bool
	)
	cmd := &cobra.Command{
		Use:   "sanitize [-- command...]",
		Short: "Show the engine invocation for a command",
		RunE: func(cmd *cobra.Command, args []string) error {
			if width <= 0 || height <= 0 {
				return fmt.Errorf("--width and --height must be positive")
			}
			raw, err := commandText(cmd, args)
			if err != nil {
				return err
			}
			mode := sanitizer.ModePreview
			if export {
				mode = sanitizer.ModeExport
			}
			inv := sanitizer.Sanitize(raw, width, height, mode)

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, inv)
			}
			field(w, "mode", mode.String())
			field(w, "output", inv.Output)
			field(w, "argv", showCommand(inv.String()))
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 800, "Source width in pixels")
	cmd.Flags().IntVar(&height, "height", 600, "Source height in pixels")
	cmd.Flags().BoolVar(&export, "export", false, "Build the JPEG export invocation")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the preset catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := loadCatalog(cmd.Context(), file)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, cat)
			}
			groups := []struct {
				title string
				items []presets.Preset
			}{
				{"Primitives", cat.Primitives},
				{"Ready effects", cat.ReadyEffects},
				{"Spellbook", cat.Spellbook},
			}
			for _, g := range groups {
				fmt.Fprintln(w, titleStyle.Render(g.title))
				for _, p := range g.items {
					field(w, "  "+p.Name, showCommand(p.Command))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Catalogue file to load instead of the built-in one")
	return cmd
}

// loadCatalog returns the catalogue at path, or the built-in one.
func loadCatalog(ctx context.Context, path string) (*presets.Catalog, error) {
	if path == "" {
		return presets.GetCatalog(ctx)
	}
	cat, err := presets.LoadFile(ctx, path)
	if err != nil {
		return nil, err
	}
	presets.SetCatalog(cat)
	return cat, nil
}
