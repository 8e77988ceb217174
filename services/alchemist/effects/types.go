// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package effects projects command text into typed, editable parameters and
// renders them back into command text.
//
// The projection is lossy. The guarantee is that one Parse/Reconstruct cycle
// reaches a fixed point:
//
//	Reconstruct(Parse(Reconstruct(Parse(t)))) == Reconstruct(Parse(t))
package effects

import (
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/grammar"
)

// Kind tags the variant held by an Argument.
type Kind string

const (
	KindNumber Kind = "number"
	KindColor  Kind = "color"
	KindSelect Kind = "select"
	KindText   Kind = "text"
)

// Family selects the parse and render policy for an Effect.
type Family string

const (
	FamilyNumeric Family = "numeric"
	FamilyTriplet Family = "triplet"
	FamilyPair    Family = "pair"
	FamilyColor   Family = "color"
	FamilySelect  Family = "select"
	FamilyKernel  Family = "kernel"
	FamilyMethod  Family = "method"
	FamilyToggle  Family = "toggle"
	FamilyWrapped Family = "wrapped"
	FamilyReset   Family = "reset"
	FamilyText    Family = "text"
	FamilyGroup   Family = "group"
	FamilyGeneric Family = "generic"
)

// Argument is one editable slot of an Effect.
//
// Description:
//
//	Number, Min, Max, Step and Unit apply to KindNumber. Text holds the value
//	of every other kind. Options lists the accepted values of KindSelect.
//	Unit is display metadata; only "%" is emitted on render.
type Argument struct {
	Kind    Kind     `json:"kind"`
	Label   string   `json:"label"`
	Number  float64  `json:"number,omitempty"`
	Text    string   `json:"text,omitempty"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
	Step    float64  `json:"step,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Options []string `json:"options,omitempty"`
}

// Value returns the argument value as command text, without unit.
func (a Argument) Value() string {
	if a.Kind == KindNumber {
		return formatNumber(a.Number)
	}
	return a.Text
}

// Effect is one operation in structurally editable form.
//
// Description:
//
//	Flag is the canonical spelling including its sign ("-modulate",
//	"+noise"). Args follow the family's slot order.
type Effect struct {
	Name   string     `json:"name"`
	Flag   string     `json:"flag"`
	Family Family     `json:"family"`
	Args   []Argument `json:"args"`
}

// Clone returns a deep copy of e.
func (e Effect) Clone() Effect {
	out := e
	if e.Args != nil {
		out.Args = make([]Argument, len(e.Args))
		for i, a := range e.Args {
			if a.Options != nil {
				a.Options = append([]string(nil), a.Options...)
			}
			out.Args[i] = a
		}
	}
	return out
}

// CloneAll deep-copies a list of effects.
func CloneAll(in []Effect) []Effect {
	if in == nil {
		return nil
	}
	out := make([]Effect, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// =============================================================================
// Argument Constructors
// =============================================================================

// NumberArg builds a numeric slot.
func NumberArg(label string, v, minV, maxV, step float64, unit string) Argument {
	return Argument{Kind: KindNumber, Label: label, Number: v, Min: minV, Max: maxV, Step: step, Unit: unit}
}

// ColorArg builds a color slot.
func ColorArg(label, v string) Argument {
	return Argument{Kind: KindColor, Label: label, Text: v}
}

// SelectArg builds a select slot offering the members of set.
func SelectArg(label, v string, set *grammar.Set) Argument {
	return Argument{Kind: KindSelect, Label: label, Text: v, Options: set.Values()}
}

// TextArg builds a free-text slot.
func TextArg(label, v string) Argument {
	return Argument{Kind: KindText, Label: label, Text: v}
}
