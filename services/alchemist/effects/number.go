// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package effects

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// leadingNumber matches the longest decimal prefix of a string.
var leadingNumber = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// leadingFloat parses the numeric prefix of s ("50%" is 50, "0x5" is 0).
// ok is false when there is no prefix or the value is not finite.
func leadingFloat(s string) (float64, bool) {
	m := leadingNumber.FindString(strings.TrimLeft(s, " \t\r\n"))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// floatOr returns the numeric prefix of s, or def.
func floatOr(s string, def float64) float64 {
	if v, ok := leadingFloat(s); ok {
		return v
	}
	return def
}

// plainNumber parses a whole-token number with an optional trailing "%".
func plainNumber(tok string) (v float64, percent bool, ok bool) {
	body := tok
	if strings.HasSuffix(body, "%") {
		body = strings.TrimSuffix(body, "%")
		percent = true
	}
	if !grammar.IsNumeric(body) {
		return 0, false, false
	}
	v, err := strconv.ParseFloat(body, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false, false
	}
	return v, percent, true
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// shellQuote escapes backslashes and quotes, and wraps the value in quotes
// when it holds whitespace or parentheses, so grammar.SplitArgs recovers it
// as one argument. Double quotes are used when the value holds a single
// quote, which keeps the literal whole for grammar.Tokenize too.
func shellQuote(v string) string {
	escaped := escapeArg(v)
	if !strings.ContainsAny(v, " \t\n()") {
		return escaped
	}
	if strings.Contains(v, "'") && !strings.Contains(v, `"`) {
		return `"` + escaped + `"`
	}
	return "'" + escaped + "'"
}

// quoteRun renders argument tokens as command text that grammar.SplitArgs
// splits back into exactly those tokens.
func quoteRun(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		if t == "" {
			quoted[i] = "''"
			continue
		}
		quoted[i] = shellQuote(t)
	}
	return strings.Join(quoted, " ")
}

var argEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `"`, `\"`)

func escapeArg(v string) string {
	return argEscaper.Replace(v)
}
