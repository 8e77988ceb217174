// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validator turns untrusted command text into a command that uses
// only allow-listed flags with their declared arity.
//
// Validation is tolerant: offending tokens are stripped and reported, never
// rejected. The result is always a usable (possibly empty) command.
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// Kind classifies why a run of tokens was stripped.
type Kind string

const (
	KindUnknownFlag   Kind = "unknown_flag"
	KindMissingArgs   Kind = "missing_args"
	KindInvalidMethod Kind = "invalid_method"
	KindInvalidKernel Kind = "invalid_kernel"
	KindStray         Kind = "stray_token"
)

// Removal records one stripped run of tokens.
type Removal struct {
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// Result is the outcome of Validate.
//
// Description:
//
//	Command holds the surviving tokens joined by single spaces. Stripped holds
//	one human-readable reason per removal, in input order; Removals carries
//	the same reasons with their Kind.
type Result struct {
	Command  string    `json:"command"`
	Stripped []string  `json:"stripped"`
	Removals []Removal `json:"-"`
}

var (
	backtickPattern    = regexp.MustCompile("`")
	toolPrefixPattern  = regexp.MustCompile(`(?i)^(magick|convert)\s+`)
	placeholderPattern = regexp.MustCompile(`<[^>]+>`)
	newlinePattern     = regexp.MustCompile(`[\r\n]+`)
	geometryPattern    = regexp.MustCompile(`^\d+x\d+`)
)

// Clean applies the textual pre-clean step on its own: backticks, a leading
// tool name, <placeholder> hallucinations and line breaks are removed.
func Clean(raw string) string {
	s := backtickPattern.ReplaceAllString(raw, "")
	s = toolPrefixPattern.ReplaceAllString(s, "")
	s = placeholderPattern.ReplaceAllString(s, "1")
	s = newlinePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Validate strips everything from raw that is not an allow-listed flag with
// acceptable arguments.
//
// Description:
//
//	After Clean, raw is tokenized with grammar.Tokenize and scanned once:
//	  - "(" and ")" are kept as-is; balance is not checked.
//	  - An unknown flag is dropped together with its following argument run.
//	  - An allow-listed flag without a rule is kept alone.
//	  - A flag with a rule keeps exactly Arity arguments when enough are
//	    present and the value-set checks pass; otherwise the flag and the
//	    arguments it would consume are dropped.
//	  - Anything else is a stray token and is dropped.
//
// Inputs:
//   - raw: Untrusted command text.
//
// Outputs:
//   - Result: The surviving command and the removal reasons. Never fails.
//
// Examples:
//
//	Validate("convert -colorspace Gray -foo 3 -blur")
//	// Command: "-colorspace Gray"
//	// Stripped: ["-foo 3 (unknown flag)", "-blur (missing arguments, need 1, got 0)"]
//
// Thread Safety: This function is safe for concurrent use.
func Validate(raw string) Result {
	tokens := grammar.Tokenize(Clean(raw))
	kept := make([]string, 0, len(tokens))
	res := Result{Stripped: []string{}}

	strip := func(kind Kind, reason string) {
		res.Stripped = append(res.Stripped, reason)
		res.Removals = append(res.Removals, Removal{Kind: kind, Reason: reason})
	}

	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if grammar.IsGroup(tok) {
			kept = append(kept, tok)
			i++
			continue
		}

		if !grammar.IsFlag(tok) {
			strip(KindStray, fmt.Sprintf("\"%s\" (stray token)", tok))
			i++
			continue
		}

		if !grammar.Allowed(tok) {
			stray := grammar.PeekArgs(tokens, i+1)
			strip(KindUnknownFlag, fmt.Sprintf("%s (unknown flag)", joinRun(tok, stray)))
			i += 1 + len(stray)
			continue
		}

		rule, ok := grammar.Lookup(tok)
		if !ok {
			kept = append(kept, tok)
			i++
			continue
		}

		available := grammar.PeekArgs(tokens, i+1)
		if len(available) < rule.Arity {
			strip(KindMissingArgs, fmt.Sprintf("%s (missing arguments, need %d, got %d)", tok, rule.Arity, len(available)))
			i += 1 + len(available)
			continue
		}

		args := available[:rule.Arity]
		if kind, reason, bad := checkArgs(tok, rule, args); bad {
			strip(kind, reason)
			i += 1 + rule.Arity
			continue
		}

		kept = append(kept, tok)
		kept = append(kept, args...)
		i += 1 + rule.Arity
	}

	res.Command = strings.Join(kept, " ")
	return res
}

// checkArgs applies the rule's value-set checks to args.
func checkArgs(flag string, rule grammar.FlagRule, args []string) (Kind, string, bool) {
	if rule.Arg1 != nil && len(args) > 0 {
		v := args[0]
		if rule.StripSuffix {
			v = beforeColon(v)
		}
		if !rule.Arg1.Has(v) {
			return KindInvalidMethod, fmt.Sprintf("%s (invalid method \"%s\")", joinRun(flag, args), v), true
		}
	}

	if rule.Arg2 != nil && len(args) > 1 && !isCustomKernel(args[1]) {
		v := beforeColon(args[1])
		if !rule.Arg2.Has(v) {
			return KindInvalidKernel, fmt.Sprintf("%s (invalid kernel \"%s\")", joinRun(flag, args), v), true
		}
	}

	return "", "", false
}

// isCustomKernel reports whether a kernel argument is an inline definition
// (quoted literal or WxH geometry) rather than a named kernel.
func isCustomKernel(arg string) bool {
	if strings.HasPrefix(arg, "'") || strings.HasPrefix(arg, `"`) {
		return true
	}
	return geometryPattern.MatchString(arg)
}

func beforeColon(s string) string {
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func joinRun(flag string, args []string) string {
	if len(args) == 0 {
		return flag
	}
	return flag + " " + strings.Join(args, " ")
}
