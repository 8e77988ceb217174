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
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// Parse projects command text into editable effects.
//
// Description:
//
//	The text is split with grammar.SplitArgs, so quoted values arrive
//	de-quoted. Each flag is dispatched through the policy table with the run
//	of non-flag tokens that follows it; a policy that cannot interpret the
//	run declines and the generic handler keeps the flag and run verbatim.
//	Parentheses become group effects. Tokens that are neither flags nor
//	consumed arguments are dropped.
//
//	The exact form "-channel RGB -negate +channel" (and the same around
//	-edge) is absorbed into a single toggle or wrapped effect, matching what
//	Reconstruct emits for them.
//
// Inputs:
//   - command: Command text.
//
// Outputs:
//   - []Effect: Effects in order. Empty (non-nil) for empty input.
//
// Examples:
//
//	Parse("-charcoal 5 -fill red")
//	// [{Charcoal -charcoal numeric [5]}, {Fill Color -fill color [red]}]
//
// Thread Safety: This function is safe for concurrent use.
func Parse(command string) []Effect {
	parts := grammar.SplitArgs(command)
	out := make([]Effect, 0, len(parts)/2+1)

	i := 0
	for i < len(parts) {
		tok := parts[i]

		if grammar.IsGroup(tok) {
			out = append(out, groupEffect(tok))
			i++
			continue
		}

		if !grammar.IsFlag(tok) {
			i++
			continue
		}

		if e, n, ok := absorbWrapper(parts, i); ok {
			out = append(out, e)
			i += n
			continue
		}

		run := argRun(parts, i+1)
		if p, ok := policies[tok]; ok {
			if e, used, ok := p.parse(tok, run); ok {
				out = append(out, e)
				i += 1 + used
				continue
			}
		}

		e, used := parseGeneric(tok, run)
		out = append(out, e)
		i += 1 + used
	}

	return out
}

// argRun returns the tokens after start up to the next flag or group
// delimiter.
func argRun(parts []string, start int) []string {
	end := start
	for end < len(parts) && !grammar.IsFlag(parts[end]) && !grammar.IsGroup(parts[end]) {
		end++
	}
	if start >= end {
		return nil
	}
	return parts[start:end]
}

// absorbWrapper recognises "-channel RGB <op> +channel" around a toggle or
// wrapped operation that renders with its own RGB scope.
func absorbWrapper(parts []string, i int) (Effect, int, bool) {
	if parts[i] != "-channel" || i+3 >= len(parts) || parts[i+1] != "RGB" {
		return Effect{}, 0, false
	}

	inner := parts[i+2]
	if toggleRenders[inner] != "-channel RGB "+inner+" +channel" && FamilyOf(inner) != FamilyWrapped {
		return Effect{}, 0, false
	}

	run := argRun(parts, i+3)
	if FamilyOf(inner) == FamilyToggle {
		run = nil
	}
	e, used, ok := policies[inner].parse(inner, run)
	if !ok {
		return Effect{}, 0, false
	}

	closeAt := i + 3 + used
	if closeAt >= len(parts) || parts[closeAt] != "+channel" {
		return Effect{}, 0, false
	}
	return e, closeAt - i + 1, true
}

func groupEffect(tok string) Effect {
	name := "Group Start"
	if tok == ")" {
		name = "Group End"
	}
	return Effect{Name: name, Flag: tok, Family: FamilyGroup, Args: []Argument{}}
}
