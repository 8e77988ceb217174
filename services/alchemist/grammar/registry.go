// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grammar holds the ImageMagick flag grammar shared by the validator,
// splitter, effect parser and sanitizer: the allow-list, per-flag arity
// rules, finite value sets, the flag classifier and both tokenizers.
//
// Everything in this package is immutable after package initialization.
package grammar

import (
	"sort"
)

// FlagRule describes how many arguments a flag consumes and which values
// are acceptable in each position.
//
// Description:
//
//	Arg1 and Arg2 are optional. When StripSuffix is set, a ":suffix" on the
//	first argument is removed before the Arg1 membership check (e.g.
//	"Thinning:20" is checked as "Thinning").
//
// Thread Safety: Immutable value; safe for concurrent use.
type FlagRule struct {
	Arity       int
	Arg1        *Set
	Arg2        *Set
	StripSuffix bool
}

// allowedFlags is the passthrough allow-list in declaration order. Anything
// not listed is stripped by the validator.
var allowedFlags = []string{
	// randomization and geometry
	"-seed", "-spread", "-implode", "-swirl",
	"-resize", "-crop", "-trim",
	"+repage", "-rotate", "-flip", "-flop",
	"-filter",

	// color and tone
	"-colorspace", "-channel", "+channel",
	"-negate", "-auto-level", "-auto-gamma",
	"-normalize", "-contrast-stretch",
	"-brightness-contrast", "-gamma", "-level",
	"-threshold", "-black-threshold", "-white-threshold",
	"-modulate", "-fill", "-tint", "-sigmoidal-contrast",
	"-monochrome", "-colors", "-dither", "-opaque",

	// evaluate and function
	"-evaluate", "-function",

	// effects and filters
	"-charcoal", "-solarize", "-blue-shift",
	"-sepia-tone", "-posterize", "-edge", "-emboss",
	"-blur", "-gaussian-blur", "-motion-blur",
	"-adaptive-blur", "-adaptive-sharpen", "-sharpen",
	"-despeckle", "-median", "-paint", "-sketch", "-vignette",
	"-wave", "-lat", "-statistic", "-fx",

	// noise
	"+noise",

	// morphology and canny
	"-morphology", "-canny",

	// layers
	"-clone", "+clone", "-delete", "-layers",
	"-compose", "-composite",
	"-roll",

	// distortion
	"-virtual-pixel", "-distort",

	// misc
	"-define", "-strip", "-sample", "-attenuate", "-alpha",
}

var allowedIndex = func() map[string]struct{} {
	m := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		m[f] = struct{}{}
	}
	return m
}()

// rules maps canonical flag spelling to its FlagRule. Some entries
// (-radial-blur, -liquid-rescale) are deliberately absent from the
// allow-list: the splitter still knows their arity, the validator strips them.
var rules = map[string]FlagRule{
	// zero-arg
	"-negate":     {Arity: 0},
	"-auto-level": {Arity: 0},
	"-auto-gamma": {Arity: 0},
	"-normalize":  {Arity: 0},
	"-despeckle":  {Arity: 0},
	"-strip":      {Arity: 0},
	"-flip":       {Arity: 0},
	"-flop":       {Arity: 0},
	"+repage":     {Arity: 0},
	"-composite":  {Arity: 0},
	"+channel":    {Arity: 0},
	"+clone":      {Arity: 0},
	"-trim":       {Arity: 0},
	"-monochrome": {Arity: 0},

	// one-arg
	"-seed":                {Arity: 1},
	"-spread":              {Arity: 1},
	"-implode":             {Arity: 1},
	"-swirl":               {Arity: 1},
	"-resize":              {Arity: 1},
	"-filter":              {Arity: 1},
	"-charcoal":            {Arity: 1},
	"-solarize":            {Arity: 1},
	"-blue-shift":          {Arity: 1},
	"-sepia-tone":          {Arity: 1},
	"-posterize":           {Arity: 1},
	"-edge":                {Arity: 1},
	"-emboss":              {Arity: 1},
	"-blur":                {Arity: 1},
	"-gaussian-blur":       {Arity: 1},
	"-motion-blur":         {Arity: 1},
	"-radial-blur":         {Arity: 1},
	"-adaptive-blur":       {Arity: 1},
	"-adaptive-sharpen":    {Arity: 1},
	"-sharpen":             {Arity: 1},
	"-median":              {Arity: 1},
	"-paint":               {Arity: 1},
	"-sketch":              {Arity: 1},
	"-vignette":            {Arity: 1},
	"-threshold":           {Arity: 1},
	"-black-threshold":     {Arity: 1},
	"-white-threshold":     {Arity: 1},
	"-gamma":               {Arity: 1},
	"-rotate":              {Arity: 1},
	"-roll":                {Arity: 1},
	"-contrast-stretch":    {Arity: 1},
	"-brightness-contrast": {Arity: 1},
	"-level":               {Arity: 1},
	"-canny":               {Arity: 1},
	"-define":              {Arity: 1},
	"-crop":                {Arity: 1},
	"-clone":               {Arity: 1},
	"-delete":              {Arity: 1},
	"-layers":              {Arity: 1},
	"-fx":                  {Arity: 1},
	"-wave":                {Arity: 1},
	"-liquid-rescale":      {Arity: 1},
	"-sample":              {Arity: 1},
	"-attenuate":           {Arity: 1},
	"-colors":              {Arity: 1},
	"-dither":              {Arity: 1},
	"-sigmoidal-contrast":  {Arity: 1},
	"-lat":                 {Arity: 1},
	"-alpha":               {Arity: 1},
	"-fill":                {Arity: 1},
	"-tint":                {Arity: 1},
	"-modulate":            {Arity: 1},
	"-opaque":              {Arity: 1},

	// one-arg, value checked
	"-colorspace":    {Arity: 1, Arg1: Colorspaces},
	"-channel":       {Arity: 1, Arg1: Channels},
	"-compose":       {Arity: 1, Arg1: ComposeMethods},
	"-virtual-pixel": {Arity: 1, Arg1: VirtualPixelMethods},
	"+noise":         {Arity: 1, Arg1: NoiseTypes},

	// two-arg
	"-statistic":  {Arity: 2},
	"-morphology": {Arity: 2, Arg1: MorphologyMethods, Arg2: MorphologyKernels, StripSuffix: true},
	"-evaluate":   {Arity: 2, Arg1: EvaluateFunctions},
	"-distort":    {Arity: 2, Arg1: DistortMethods},
	"-function":   {Arity: 2, Arg1: FunctionMethods},
}

// Lookup returns the rule for flag, if one is registered.
func Lookup(flag string) (FlagRule, bool) {
	r, ok := rules[flag]
	return r, ok
}

// Allowed reports whether flag is on the passthrough allow-list.
func Allowed(flag string) bool {
	_, ok := allowedIndex[flag]
	return ok
}

// Arity returns the declared argument count for flag, or 0 when the flag has
// no rule.
func Arity(flag string) int {
	return rules[flag].Arity
}

// AllowedFlags returns a copy of the allow-list in declaration order.
func AllowedFlags() []string {
	out := make([]string, len(allowedFlags))
	copy(out, allowedFlags)
	return out
}

// Flags returns the allow-list sorted lexically.
func Flags() []string {
	out := AllowedFlags()
	sort.Strings(out)
	return out
}

// RuleFlags returns every flag that has a rule, sorted.
func RuleFlags() []string {
	out := make([]string, 0, len(rules))
	for f := range rules {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
