// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package grammar

import (
	"regexp"
	"strings"
)

// =============================================================================
// Tokenizers
// =============================================================================

// Tokenize splits raw into tokens, keeping quoted literals intact with their
// quote characters.
//
// Description:
//
//	Spaces and tabs separate tokens. A ' or " opens a literal that runs to the
//	matching quote (or the end of input when unterminated) and is emitted as
//	one token including its quotes. Parentheses are always standalone tokens.
//	This is the variant used by the validator and the splitter, which must
//	pass quoted arguments through untouched.
//
// Inputs:
//   - raw: Untrusted command text. Leading and trailing whitespace is ignored.
//
// Outputs:
//   - []string: Tokens in order. Never contains an empty string.
//
// Examples:
//
//	Tokenize(`-fx 'u*0.5' ( -clone 0 )`)
//	// ["-fx", "'u*0.5'", "(", "-clone", "0", ")"]
//
// Thread Safety: This function is safe for concurrent use.
func Tokenize(raw string) []string {
	s := strings.TrimSpace(raw)
	tokens := make([]string, 0, strings.Count(s, " ")+1)

	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++

		case c == '"' || c == '\'':
			j := i + 1
			for j < len(s) && s[j] != c {
				j++
			}
			end := j + 1
			if end > len(s) {
				end = len(s)
			}
			tokens = append(tokens, s[i:end])
			i = end

		case c == '(' || c == ')':
			tokens = append(tokens, s[i:i+1])
			i++

		default:
			j := i
			for j < len(s) && !isBareBoundary(s[j]) {
				j++
			}
			tokens = append(tokens, s[i:j])
			i = j
		}
	}
	return tokens
}

func isBareBoundary(c byte) bool {
	return c == ' ' || c == '\t' || c == '(' || c == ')'
}

// SplitArgs splits raw into literal argument values the way a POSIX-ish
// shell would: quotes are removed and a backslash escapes the next character.
//
// Description:
//
//	Used by the effect parser and the boundary sanitizer, which need de-quoted
//	values. Unlike Tokenize, parentheses are ordinary characters and quote
//	characters never appear in the output unless escaped. An unterminated quote
//	runs to end of input. A trailing lone backslash is dropped.
//
// Inputs:
//   - raw: Command text.
//
// Outputs:
//   - []string: Argument values. Never contains an empty string.
//
// Examples:
//
//	SplitArgs(`-fx "u + 0.5" -fill \'red\'`)
//	// ["-fx", "u + 0.5", "-fill", "'red'"]
//
// Thread Safety: This function is safe for concurrent use.
func SplitArgs(raw string) []string {
	var (
		args    []string
		current strings.Builder
		quote   byte
		escape  bool
	)

	for i := 0; i < len(raw); i++ {
		c := raw[i]

		if escape {
			current.WriteByte(c)
			escape = false
			continue
		}
		if c == '\\' {
			escape = true
			continue
		}

		if quote != 0 {
			if c == quote {
				quote = 0
			} else {
				current.WriteByte(c)
			}
			continue
		}

		switch c {
		case '"', '\'':
			quote = c
		case ' ', '\t':
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}

	if current.Len() > 0 {
		args = append(args, current.String())
	}
	return args
}

// PeekArgs collects the run of argument tokens starting at start, stopping at
// the first flag or parenthesis.
func PeekArgs(tokens []string, start int) []string {
	if start < 0 || start >= len(tokens) {
		return nil
	}
	end := start
	for end < len(tokens) {
		t := tokens[end]
		if IsGroup(t) || IsFlag(t) {
			break
		}
		end++
	}
	return tokens[start:end]
}

// =============================================================================
// Classification
// =============================================================================

// numericLiteral matches a complete decimal literal with optional sign and
// exponent, or a signed Infinity.
var numericLiteral = regexp.MustCompile(`^[+-]?(?:(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?|Infinity)$`)

// IsNumeric reports whether tok is, as a whole, a numeric literal.
func IsNumeric(tok string) bool {
	return numericLiteral.MatchString(tok)
}

// IsFlag reports whether tok names an operation rather than an argument.
//
// Description:
//
//	A flag starts with '-' or '+', is longer than one character, its second
//	character is neither a digit nor '.', and it is not a numeric literal.
//	Signed numbers and offsets such as "-5", "-.5" and "+10+0" are therefore
//	arguments.
//
// Examples:
//
//	IsFlag("-negate")   // true
//	IsFlag("+channel")  // true
//	IsFlag("+10+0")     // false
//	IsFlag("-")         // false
//
// Thread Safety: This function is safe for concurrent use.
func IsFlag(tok string) bool {
	if len(tok) <= 1 {
		return false
	}
	if tok[0] != '-' && tok[0] != '+' {
		return false
	}
	if c := tok[1]; (c >= '0' && c <= '9') || c == '.' {
		return false
	}
	return !IsNumeric(tok)
}

// IsGroup reports whether tok is a layer grouping delimiter.
func IsGroup(tok string) bool {
	return tok == "(" || tok == ")"
}
