// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package splitter segments a flat command into labelled units that can be
// toggled and reordered independently on the effect stack.
package splitter

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// Entry is one segment of a split command.
type Entry struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

const (
	labelLayerGroup = "Layer Group"

	// maxLabelOps is how many operation names a channel block label lists.
	maxLabelOps = 2

	// maxLabelArg is the longest argument shown verbatim in a label.
	maxLabelArg = 10
)

// Split segments command into stack entries.
//
// Description:
//
//	Tokens are scanned left to right with grammar.Tokenize:
//	  - "-channel X ... +channel" (matched with depth counting) becomes one
//	    entry labelled "X Channel: Op1, Op2...". An unmatched -channel is
//	    handled as an ordinary flag.
//	  - A balanced "( ... )" becomes one "Layer Group" entry.
//	  - Any other flag becomes an atom with its registry arity of arguments.
//	"-alpha opaque", lone "+channel" resets and stray arguments are dropped.
//
// Inputs:
//   - command: Command text, usually validator output.
//
// Outputs:
//   - []Entry: Segments in order. Empty (non-nil) when nothing survives.
//
// Examples:
//
//	Split("-edge 1 -channel R -roll +10+0 +channel -negate")
//	// [{Edge 1, -edge 1}, {R Channel: Roll, -channel R -roll +10+0 +channel}, {Negate, -negate}]
//
// Thread Safety: This function is safe for concurrent use.
func Split(command string) []Entry {
	tokens := grammar.Tokenize(command)
	entries := make([]Entry, 0, len(tokens)/2+1)

	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if tok == "-channel" {
			if end := matchClose(tokens, i, "-channel", "+channel"); end >= 0 {
				entries = append(entries, Entry{
					Label:   channelLabel(tokens, i, end),
					Command: strings.Join(tokens[i:end+1], " "),
				})
				i = end + 1
				continue
			}
		}

		if tok == "(" {
			if end := matchClose(tokens, i, "(", ")"); end >= 0 {
				entries = append(entries, Entry{
					Label:   labelLayerGroup,
					Command: strings.Join(tokens[i:end+1], " "),
				})
				i = end + 1
				continue
			}
		}

		if !grammar.IsFlag(tok) {
			i++
			continue
		}

		if tok == "+channel" {
			i++
			continue
		}

		args := grammar.PeekArgs(tokens, i+1)
		if n := grammar.Arity(tok); len(args) > n {
			args = args[:n]
		}

		if tok == "-alpha" && len(args) > 0 && args[0] == "opaque" {
			i += 1 + len(args)
			continue
		}

		atom := make([]string, 0, 1+len(args))
		atom = append(atom, tok)
		atom = append(atom, args...)
		entries = append(entries, Entry{
			Label:   FormatLabel(tok, args...),
			Command: strings.Join(atom, " "),
		})
		i += 1 + len(args)
	}

	return entries
}

// matchClose returns the index of the token closing the block opened at
// start, or -1 when the block is never closed.
func matchClose(tokens []string, start int, open, closing string) int {
	depth := 0
	for j := start; j < len(tokens); j++ {
		switch tokens[j] {
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return -1
}

func channelLabel(tokens []string, start, end int) string {
	label := tokens[start+1] + " Channel"

	var ops []string
	if start+2 <= end {
		for _, t := range tokens[start+2 : end] {
			if grammar.IsFlag(t) {
				ops = append(ops, FormatLabel(t))
			}
		}
	}

	if len(ops) > 0 {
		shown := ops
		if len(shown) > maxLabelOps {
			shown = shown[:maxLabelOps]
		}
		label += ": " + strings.Join(shown, ", ")
		if len(ops) > maxLabelOps {
			label += "..."
		}
	}
	return label
}

// FormatLabel turns a flag and its arguments into a display label.
//
// Description:
//
//	Leading dashes are removed and each dash-separated word is capitalised
//	("-sepia-tone" becomes "Sepia Tone"). Arguments are appended; any longer
//	than 10 characters is cut to 8 characters plus "..".
func FormatLabel(flag string, args ...string) string {
	words := strings.Split(strings.TrimLeft(flag, "-"), "-")
	for i, w := range words {
		if r, size := utf8.DecodeRuneInString(w); size > 0 {
			words[i] = string(unicode.ToUpper(r)) + w[size:]
		}
	}
	name := strings.Join(words, " ")

	if len(args) == 0 {
		return name
	}

	shown := make([]string, len(args))
	for i, a := range args {
		if r := []rune(a); len(r) > maxLabelArg {
			a = string(r[:8]) + ".."
		}
		shown[i] = a
	}
	return name + " " + strings.Join(shown, " ")
}
