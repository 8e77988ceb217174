// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
	"unicode/utf8"
)

// redactionPattern pairs a compiled regex with a replacement label.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is applied in order; the header and query forms must
// run before the bare key form so their labels survive.
var redactionPatterns = []redactionPattern{
	{
		Pattern:     regexp.MustCompile(`(?i)x-goog-api-key:\s*\S+`),
		Replacement: "x-goog-api-key: [REDACTED]",
	},
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
	{
		Pattern:     regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
		Replacement: "[REDACTED:gemini_key]",
	},
	{
		Pattern:     regexp.MustCompile(`ya29\.[A-Za-z0-9._-]{20,}`),
		Replacement: "[REDACTED:oauth_token]",
	},
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
}

// maxLogLen bounds generated text copied into log lines.
const maxLogLen = 256

// SafeLogString redacts Google credential patterns from a string before it
// is logged or embedded in an error.
//
// Description:
//
//	Matches API keys, OAuth access tokens, bearer tokens and key query
//	parameters, replacing each with a labeled placeholder. Output longer
//	than 256 bytes is cut at a rune boundary and suffixed with "...".
//
// Inputs:
//   - s: The string to redact. Empty returns empty.
//
// Outputs:
//   - string: The redacted, bounded string.
//
// Examples:
//
//	SafeLogString("bad key AIzaSyAbcDefGhiJklMnoPqrStUvWxYz01234567")
//	// Returns: "bad key [REDACTED:gemini_key]"
//
// Limitations:
//   - Pattern-based only. Secrets in unknown formats pass through.
//
// Thread Safety: This function is safe for concurrent use.
func SafeLogString(s string) string {
	if s == "" {
		return s
	}
	for _, p := range redactionPatterns {
		s = p.Pattern.ReplaceAllString(s, p.Replacement)
	}
	if len(s) > maxLogLen {
		cut := maxLogLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}
