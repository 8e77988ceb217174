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
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/config"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/engine"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/sanitizer"
)

func newRenderCmd() *cobra.Command {
	var (
		in, out string
		export  bool
	)
	cmd := &cobra.Command{
		Use:   "render --in <image> [--out <file>] [-- command...]",
		Short: "Run a command over an image with the local engine",
		Long: "Decodes a PNG or JPEG, runs the sanitized command over its pixels and\n" +
			"writes the result. Preview mode writes PNG; --export writes the engine's\n" +
			"JPEG as is.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			raw, err := commandText(cmd, args)
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			src, err := readImage(in)
			if err != nil {
				return err
			}

			mode := sanitizer.ModePreview
			if export {
				mode = sanitizer.ModeExport
			}
			b := src.Bounds()
			job := engine.Job{
				Command: raw,
				Width:   b.Dx(),
				Height:  b.Dy(),
				Pixels:  src.Pix,
				Mode:    mode,
			}

			res, err := newEngine(cfg, slog.Default()).Run(cmd.Context(), job)
			if err != nil {
				return err
			}

			if out == "" {
				out = defaultOutput(in, mode)
			}
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := writeResult(f, res); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", out, err)
			}

			w := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(w, map[string]any{
					"output":      out,
					"invocation":  res.Invocation.String(),
					"duration_ms": res.Duration.Milliseconds(),
				})
			}
			field(w, "argv", showCommand(res.Invocation.String()))
			field(w, "output", out)
			field(w, "took", res.Duration.Round(time.Millisecond).String())
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Source image (PNG or JPEG)")
	cmd.Flags().StringVar(&out, "out", "", "Output file (default: <in>.glitch.png or .jpg)")
	cmd.Flags().BoolVar(&export, "export", false, "Export a JPEG instead of a PNG preview")
	return cmd
}

// readImage decodes path into non-premultiplied 8-bit RGBA.
func readImage(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return toNRGBA(img), nil
}

// toNRGBA copies img into a tightly packed NRGBA at the origin.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// writeResult writes a preview as PNG and an export unchanged.
func writeResult(w io.Writer, res engine.Result) error {
	if res.Mode == sanitizer.ModeExport {
		_, err := w.Write(res.Data)
		return err
	}
	if len(res.Data) != res.Width*res.Height*4 {
		return fmt.Errorf("engine returned %d bytes for %dx%d", len(res.Data), res.Width, res.Height)
	}
	img := &image.NRGBA{
		Pix:    res.Data,
		Stride: res.Width * 4,
		Rect:   image.Rect(0, 0, res.Width, res.Height),
	}
	return png.Encode(w, img)
}

// defaultOutput names the output next to the input.
func defaultOutput(in string, mode sanitizer.Mode) string {
	base := strings.TrimSuffix(in, filepath.Ext(in))
	if mode == sanitizer.ModeExport {
		return base + ".glitch.jpg"
	}
	return base + ".glitch.png"
}
