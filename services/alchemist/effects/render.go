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
	"strings"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// toggleThreshold is the slot value above which a toggle is active.
const toggleThreshold = 0.5

// spaceSeparated lists flags whose slots are always space-joined.
var spaceSeparated = map[string]bool{
	"-fill":       true,
	"-compose":    true,
	"-morphology": true,
}

// Reconstruct renders effects back into command text.
//
// Description:
//
//	Each effect renders through its family. Effects rendering to nothing
//	(inactive toggles) are dropped and the rest are joined by single spaces.
//	An effect with an empty Family is rendered as the family its flag parses
//	into.
//
// Inputs:
//   - effects: Effects to render, typically from Parse or an editor.
//
// Outputs:
//   - string: Command text. Empty for no effects.
//
// Thread Safety: This function is safe for concurrent use.
func Reconstruct(effects []Effect) string {
	parts := make([]string, 0, len(effects))
	for _, e := range effects {
		if s := Render(e); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Render renders a single effect.
func Render(e Effect) string {
	family := e.Family
	if family == "" {
		family = FamilyOf(e.Flag)
	}

	switch family {
	case FamilyToggle:
		if len(e.Args) == 0 || e.Args[0].Number <= toggleThreshold {
			return ""
		}
		if s, ok := toggleRenders[e.Flag]; ok {
			return s
		}
		return e.Flag

	case FamilyWrapped:
		if len(e.Args) == 0 {
			return ""
		}
		return "-channel RGB " + e.Flag + " " + e.Args[0].Value() + " +channel"

	case FamilyKernel:
		if len(e.Args) >= 4 {
			return renderKernel(e)
		}

	case FamilyMethod:
		if len(e.Args) >= 2 {
			return e.Flag + " " + renderValue(e.Args[0], false) + " " + renderValue(e.Args[1], false)
		}

	case FamilyReset, FamilyGroup:
		return e.Flag
	}

	return renderHeuristic(e, family == FamilyGeneric)
}

func renderKernel(e Effect) string {
	method := renderValue(e.Args[0], false)
	kernel := e.Args[1].Text
	a1, a2 := e.Args[2].Number, e.Args[3].Number

	spec := kernel
	if a1 > 0 || a2 > 0 || grammar.ShapedKernels.Has(kernel) {
		spec += ":" + formatNumber(a1)
		if a2 > 0 {
			spec += "x" + formatNumber(a2)
		}
	}
	return e.Flag + " " + method + " " + shellQuote(spec)
}

// renderHeuristic joins slot values with commas (and their units) when every
// slot is numeric, otherwise with spaces. "+" flags always use spaces.
func renderHeuristic(e Effect, generic bool) string {
	flag := e.Flag
	if generic {
		flag = shellQuote(flag)
	}

	values := make([]string, 0, len(e.Args))
	withUnits := make([]string, 0, len(e.Args))
	textual := false

	for _, a := range e.Args {
		v := renderValue(a, generic)
		if v == "" {
			continue
		}
		values = append(values, v)
		withUnits = append(withUnits, v+emittedUnit(a))
		if a.Kind != KindNumber {
			if _, ok := leadingFloat(a.Text); !ok {
				textual = true
			}
		}
	}

	if len(values) == 0 {
		return flag
	}
	if strings.HasPrefix(e.Flag, "+") {
		return flag + " " + strings.Join(values, " ")
	}
	if textual || spaceSeparated[e.Flag] {
		return flag + " " + strings.Join(withUnits, " ")
	}
	return flag + " " + strings.Join(withUnits, ",")
}

// renderValue formats a slot value as command text. Generic slots already
// hold command text and are emitted as-is.
func renderValue(a Argument, generic bool) string {
	if a.Kind == KindNumber {
		return a.Value()
	}
	if generic {
		return a.Text
	}
	return shellQuote(a.Text)
}

// emittedUnit returns the unit suffix written into commands. Only "%" is
// meaningful to the engine; other units are display-only.
func emittedUnit(a Argument) string {
	if a.Kind == KindNumber && a.Unit == "%" {
		return "%"
	}
	return ""
}
