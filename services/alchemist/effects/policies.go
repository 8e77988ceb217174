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

// parseFunc projects a flag and the run of argument tokens that follows it.
// It returns the effect, how many run tokens it consumed, and false to
// decline, in which case the generic handler takes over.
type parseFunc func(flag string, run []string) (Effect, int, bool)

// policy binds a flag to its family and parser.
type policy struct {
	family Family
	parse  parseFunc
}

// numericSpec describes a single-slider flag.
type numericSpec struct {
	name  string
	min   float64
	max   float64
	step  float64
	unit  string
	limit float64 // values above limit are clamped to it; 0 disables
}

var numericSpecs = map[string]numericSpec{
	"-tint":       {name: "Tint Amount", min: 0, max: 100, step: 1, unit: "%"},
	"-charcoal":   {name: "Charcoal", min: 0, max: 10, step: 0.1},
	"-swirl":      {name: "Swirl", min: -360, max: 360, step: 5, unit: "°"},
	"-implode":    {name: "Implode", min: -2, max: 2, step: 0.05},
	"-solarize":   {name: "Solarize", min: 0, max: 100, step: 1, unit: "%"},
	"-blue-shift": {name: "Blue Shift", min: 0, max: 5, step: 0.05},
	"-blur":       {name: "Blur", min: 0, max: 20, step: 0.5},
	"-sepia-tone": {name: "Sepia", min: 0, max: 100, step: 1, unit: "%"},
	"-posterize":  {name: "Posterize", min: 2, max: 64, step: 1},
	"-emboss":     {name: "Emboss", min: 0, max: 10, step: 0.5},
	"-add-noise":  {name: "Add Noise", min: 0, max: 1, step: 0.1, limit: 1},
	"-colors":     {name: "Colors", min: 2, max: 256, step: 1},
	"-attenuate":  {name: "Attenuate", min: 0, max: 5, step: 0.1},
	"-threshold":  {name: "Threshold", min: 0, max: 100, step: 1, unit: "%"},
	"-spread":     {name: "Spread", min: 0, max: 50, step: 1},
}

// selectSpec describes a single-select flag.
type selectSpec struct {
	name   string
	label  string
	set    *grammar.Set
	strict bool // decline values outside set
}

var selectSpecs = map[string]selectSpec{
	"-compose":       {name: "Blend Mode", label: "Mode", set: grammar.ComposeMethods, strict: true},
	"+noise":         {name: "Noise", label: "Type", set: grammar.NoiseTypes},
	"-channel":       {name: "Channel", label: "Chan", set: grammar.Channels},
	"-dither":        {name: "Dither", label: "Method", set: grammar.DitherMethods},
	"-virtual-pixel": {name: "Virtual Pixel", label: "Method", set: grammar.VirtualPixelMethods},
}

// textSpec describes a single free-text flag.
type textSpec struct {
	name  string
	label string
}

var textSpecs = map[string]textSpec{
	"-roll":             {name: "Roll", label: "Geometry"},
	"-wave":             {name: "Wave", label: "Geometry"},
	"-lat":              {name: "Lat", label: "Geometry"},
	"-level":            {name: "Level", label: "Range"},
	"-contrast-stretch": {name: "Stretch", label: "Range"},
	"-fx":               {name: "FX Math", label: "Expr"},
}

var toggleNames = map[string]string{
	"-negate":     "Negate",
	"-grayscale":  "Grayscale",
	"-monochrome": "Monochrome",
	"-auto-level": "Auto Level",
}

// toggleRenders maps toggles to their emitted form when active. Toggles not
// listed emit their bare flag.
var toggleRenders = map[string]string{
	"-negate":    "-channel RGB -negate +channel",
	"-grayscale": "-colorspace Gray",
}

// policies is the per-flag dispatch table. Flags not present use the generic
// handler.
var policies = buildPolicies()

func buildPolicies() map[string]policy {
	p := map[string]policy{
		"-modulate":           {FamilyTriplet, parseModulate},
		"-sigmoidal-contrast": {FamilyPair, parseSigmoidal},
		"-fill":               {FamilyColor, parseFill},
		"-sample":             {FamilyNumeric, parseSample},
		"-morphology":         {FamilyKernel, parseMorphology},
		"-distort":            {FamilyMethod, parseMethodText("Distort", grammar.DistortMethods)},
		"-function":           {FamilyMethod, parseMethodText("Function", grammar.FunctionMethods)},
		"-evaluate":           {FamilyMethod, parseEvaluate},
		"-edge":               {FamilyWrapped, parseWrapped},
		"+channel":            {FamilyReset, parseReset},
	}
	for flag, spec := range numericSpecs {
		p[flag] = policy{FamilyNumeric, parseNumeric(spec)}
	}
	for flag, spec := range selectSpecs {
		p[flag] = policy{FamilySelect, parseSelect(spec)}
	}
	for flag, spec := range textSpecs {
		p[flag] = policy{FamilyText, parseText(spec)}
	}
	for flag, name := range toggleNames {
		p[flag] = policy{FamilyToggle, parseToggle(name)}
	}
	return p
}

// FamilyOf returns the family a flag is parsed into.
func FamilyOf(flag string) Family {
	if grammar.IsGroup(flag) {
		return FamilyGroup
	}
	if p, ok := policies[flag]; ok {
		return p.family
	}
	return FamilyGeneric
}

// =============================================================================
// Parsers
// =============================================================================

func parseNumeric(spec numericSpec) parseFunc {
	return func(flag string, run []string) (Effect, int, bool) {
		v, used := 1.0, 0
		if len(run) > 0 {
			n, percent, ok := plainNumber(run[0])
			if !ok || (percent && spec.unit != "%") {
				return Effect{}, 0, false
			}
			v, used = n, 1
		}
		if spec.limit > 0 && v > spec.limit {
			v = spec.limit
		}
		return Effect{
			Name:   spec.name,
			Flag:   flag,
			Family: FamilyNumeric,
			Args:   []Argument{NumberArg(spec.name, v, spec.min, spec.max, spec.step, spec.unit)},
		}, used, true
	}
}

func parseSample(flag string, run []string) (Effect, int, bool) {
	if len(run) == 0 {
		return Effect{}, 0, false
	}
	v, percent, ok := plainNumber(run[0])
	if !ok {
		return Effect{}, 0, false
	}
	unit := ""
	if percent {
		unit = "%"
	}
	return Effect{
		Name:   "Sample",
		Flag:   flag,
		Family: FamilyNumeric,
		Args:   []Argument{NumberArg("Size", v, 1, 2000, 1, unit)},
	}, 1, true
}

func parseModulate(flag string, run []string) (Effect, int, bool) {
	raw, used := "100", 0
	if len(run) > 0 {
		raw, used = run[0], 1
	}
	parts := strings.Split(raw, ",")
	at := func(i int) float64 {
		if i < len(parts) {
			return floatOr(parts[i], 100)
		}
		return 100
	}
	return Effect{
		Name:   "Modulate",
		Flag:   flag,
		Family: FamilyTriplet,
		Args: []Argument{
			NumberArg("Bright", at(0), 0, 200, 1, "%"),
			NumberArg("Sat", at(1), 0, 300, 1, "%"),
			NumberArg("Hue", at(2), 0, 200, 1, "%"),
		},
	}, used, true
}

func parseSigmoidal(flag string, run []string) (Effect, int, bool) {
	raw, used := "3,50%", 0
	if len(run) > 0 {
		raw, used = run[0], 1
	}
	parts := strings.Split(strings.Replace(raw, "x", ",", 1), ",")

	strength, ok := leadingFloat(parts[0])
	if !ok {
		return Effect{}, 0, false
	}
	mid := 50.0
	if len(parts) > 1 && parts[1] != "" {
		mid = floatOr(parts[1], 50)
	}

	return Effect{
		Name:   "Contrast",
		Flag:   flag,
		Family: FamilyPair,
		Args: []Argument{
			NumberArg("Str", strength, 0, 20, 0.1, ""),
			NumberArg("Mid", mid, 0, 100, 1, "%"),
		},
	}, used, true
}

func parseFill(flag string, run []string) (Effect, int, bool) {
	if len(run) == 0 {
		return Effect{}, 0, false
	}
	return Effect{
		Name:   "Fill Color",
		Flag:   flag,
		Family: FamilyColor,
		Args:   []Argument{ColorArg("Fill", run[0])},
	}, 1, true
}

func parseSelect(spec selectSpec) parseFunc {
	return func(flag string, run []string) (Effect, int, bool) {
		if len(run) == 0 {
			return Effect{}, 0, false
		}
		if spec.strict && !spec.set.Has(run[0]) {
			return Effect{}, 0, false
		}
		return Effect{
			Name:   spec.name,
			Flag:   flag,
			Family: FamilySelect,
			Args:   []Argument{SelectArg(spec.label, run[0], spec.set)},
		}, 1, true
	}
}

func parseText(spec textSpec) parseFunc {
	return func(flag string, run []string) (Effect, int, bool) {
		if len(run) == 0 {
			return Effect{}, 0, false
		}
		return Effect{
			Name:   spec.name,
			Flag:   flag,
			Family: FamilyText,
			Args:   []Argument{TextArg(spec.label, run[0])},
		}, 1, true
	}
}

func parseToggle(name string) parseFunc {
	return func(flag string, _ []string) (Effect, int, bool) {
		return Effect{
			Name:   name,
			Flag:   flag,
			Family: FamilyToggle,
			Args:   []Argument{NumberArg("Active", 1, 0, 1, 1, "")},
		}, 0, true
	}
}

func parseWrapped(flag string, run []string) (Effect, int, bool) {
	v, used := 1.0, 0
	if len(run) > 0 {
		n, percent, ok := plainNumber(run[0])
		if !ok || percent {
			return Effect{}, 0, false
		}
		v, used = n, 1
	}
	return Effect{
		Name:   "Edge",
		Flag:   flag,
		Family: FamilyWrapped,
		Args:   []Argument{NumberArg("Edge", v, 0, 20, 0.5, "")},
	}, used, true
}

func parseReset(flag string, _ []string) (Effect, int, bool) {
	return Effect{Name: "Channel Reset", Flag: flag, Family: FamilyReset, Args: []Argument{}}, 0, true
}

// parseMorphology handles "Method Name[:A[xB]]". Inline kernel definitions
// and unknown methods are declined.
func parseMorphology(flag string, run []string) (Effect, int, bool) {
	if len(run) == 0 || !grammar.MorphologyMethods.Has(run[0]) {
		return Effect{}, 0, false
	}
	method, used := run[0], 1

	var spec string
	if len(run) > 1 {
		spec, used = run[1], 2
	}

	name, dims, hasDims := strings.Cut(spec, ":")
	if name != "" && !grammar.MorphologyKernels.Has(name) {
		return Effect{}, 0, false
	}
	if name == "" {
		name = "Disk"
	}

	var a1, a2 float64
	switch {
	case hasDims && strings.Contains(dims, "x"):
		w, h, _ := strings.Cut(dims, "x")
		a1 = floatOr(w, 0)
		a2 = floatOr(strings.SplitN(h, "x", 2)[0], 0)
	case hasDims:
		a1 = floatOr(dims, 0)
	case grammar.ShapedKernels.Has(name):
		a1 = 1
	}

	return Effect{
		Name:   "Morphology",
		Flag:   flag,
		Family: FamilyKernel,
		Args: []Argument{
			SelectArg("Method", method, grammar.MorphologyMethods),
			SelectArg("Kernel", name, grammar.MorphologyKernels),
			NumberArg("Rad/W", a1, 0, 50, 0.5, ""),
			NumberArg("Sig/H", a2, 0, 50, 0.5, ""),
		},
	}, used, true
}

func parseMethodText(name string, set *grammar.Set) parseFunc {
	return func(flag string, run []string) (Effect, int, bool) {
		if len(run) == 0 {
			return Effect{}, 0, false
		}
		param, used := "0", 1
		if len(run) > 1 {
			param, used = run[1], 2
		}
		return Effect{
			Name:   name,
			Flag:   flag,
			Family: FamilyMethod,
			Args: []Argument{
				SelectArg("Method", run[0], set),
				TextArg("Args", param),
			},
		}, used, true
	}
}

func parseEvaluate(flag string, run []string) (Effect, int, bool) {
	if len(run) == 0 {
		return Effect{}, 0, false
	}
	val, used := 0.0, 1
	if len(run) > 1 {
		val, used = floatOr(run[1], 0), 2
	}
	return Effect{
		Name:   "Evaluate",
		Flag:   flag,
		Family: FamilyMethod,
		Args: []Argument{
			SelectArg("Method", run[0], grammar.EvaluateFunctions),
			NumberArg("Val", val, 0, 10, 0.1, ""),
		},
	}, used, true
}

// parseGeneric keeps the raw spelling and stores the whole run as one text
// slot in command syntax, each token quoted as needed. The slot is emitted
// verbatim, so it splits back into the same tokens.
func parseGeneric(flag string, run []string) (Effect, int) {
	args := []Argument{}
	if len(run) > 0 {
		args = append(args, TextArg("Args", quoteRun(run)))
	}
	return Effect{Name: flag, Flag: flag, Family: FamilyGeneric, Args: args}, len(run)
}
