// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sanitizer is the last pure step before the engine. It cleans free
// text and pins it between a fixed input declaration and a fixed output.
package sanitizer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// Fixed file names inside the engine's working directory.
const (
	InputFile         = "source.rgba"
	PreviewOutputFile = "out.rgba"
	ExportOutputFile  = "out.jpg"

	// DefaultCommand replaces a command that cleans to nothing.
	DefaultCommand = "-negate"

	// Program is argv[0] of every invocation.
	Program = "convert"
)

// Mode selects the output tail of an invocation.
type Mode int

const (
	// ModePreview resizes back to the source size and writes raw RGBA.
	ModePreview Mode = iota
	// ModeExport writes a JPEG at quality 90.
	ModeExport
)

// String returns "preview" or "export".
func (m Mode) String() string {
	if m == ModeExport {
		return "export"
	}
	return "preview"
}

// OutputFile returns the file the engine reads back in this mode.
func (m Mode) OutputFile() string {
	if m == ModeExport {
		return ExportOutputFile
	}
	return PreviewOutputFile
}

// Invocation is a complete engine argument vector.
type Invocation struct {
	// Args holds argv including the program name.
	Args []string `json:"args"`

	// Output is the file name the engine writes.
	Output string `json:"output"`
}

// String joins the arguments with spaces, double-quoting those that contain
// whitespace.
func (inv Invocation) String() string {
	parts := make([]string, len(inv.Args))
	for i, a := range inv.Args {
		if strings.ContainsAny(a, " \t") {
			parts[i] = `"` + a + `"`
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// Cleaning
// =============================================================================

var (
	codeFence   = regexp.MustCompile("(?i)```[a-z]*\n?")
	programName = regexp.MustCompile(`(?i)^(magick|convert|magica)\s+`)
	fileName    = regexp.MustCompile(`(?i)\b(input|output|source|out|result)\.(png|jpg|jpeg|gif|webp|tiff|bmp|rgba)\b`)
	placeholder = regexp.MustCompile(`<[^>]+>`)
	lineBreaks  = regexp.MustCompile(`[\r\n]+`)
)

// Clean strips generation artifacts from command text.
//
// Description:
//
//	Removes code fences and backticks, a leading program name, file names
//	the engine would misread as images, and replaces <placeholders> with 1.
//	Line breaks become spaces. Text that cleans to nothing becomes
//	DefaultCommand.
//
// Inputs:
//   - raw: Free text.
//
// Outputs:
//   - string: Cleaned, trimmed command text. Never empty.
//
// Thread Safety: This function is safe for concurrent use.
func Clean(raw string) string {
	cleaned := codeFence.ReplaceAllString(raw, "")
	cleaned = strings.ReplaceAll(cleaned, "`", "")
	cleaned = programName.ReplaceAllString(cleaned, "")
	cleaned = fileName.ReplaceAllString(cleaned, "")
	cleaned = placeholder.ReplaceAllString(cleaned, "1")
	cleaned = strings.TrimSpace(lineBreaks.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return DefaultCommand
	}
	return cleaned
}

// =============================================================================
// Assembly
// =============================================================================

// Sanitize builds the engine invocation for raw command text.
//
// Description:
//
//	The text is cleaned and split into arguments with grammar.SplitArgs,
//	then placed between the input declaration
//	"convert -size WxH -depth 8 source.rgba" and the mode's output tail.
//	Preview output is point-resized back to WxH so the result has the same
//	geometry as the source; export output is a quality 90 JPEG.
//
// Inputs:
//   - raw: Command text, possibly straight from a generator.
//   - width, height: Source pixel dimensions.
//   - mode: ModePreview or ModeExport.
//
// Outputs:
//   - Invocation: The argv and output file name.
//
// Examples:
//
//	Sanitize("magick -negate", 800, 600, ModePreview).String()
//	// "convert -size 800x600 -depth 8 source.rgba -negate -filter Point -resize 800x600! -depth 8 out.rgba"
//
// Thread Safety: This function is safe for concurrent use.
func Sanitize(raw string, width, height int, mode Mode) Invocation {
	user := grammar.SplitArgs(Clean(raw))
	size := fmt.Sprintf("%dx%d", width, height)

	args := make([]string, 0, len(user)+12)
	args = append(args, Program, "-size", size, "-depth", "8", InputFile)
	args = append(args, user...)

	if mode == ModeExport {
		args = append(args, "-quality", "90", ExportOutputFile)
	} else {
		args = append(args, "-filter", "Point", "-resize", size+"!", "-depth", "8", PreviewOutputFile)
	}

	return Invocation{Args: args, Output: mode.OutputFile()}
}
