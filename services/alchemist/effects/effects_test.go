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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ignoreOptions drops option lists from comparisons; they mirror the
// registry sets and are covered in grammar.
var ignoreOptions = cmpopts.IgnoreFields(Argument{}, "Options")

func TestParse_Empty(t *testing.T) {
	got := Parse("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, "", Reconstruct(nil))
}

func TestParse_Numeric(t *testing.T) {
	got := Parse("-charcoal 5 -swirl 180 -implode -0.5 -solarize 50%")
	want := []Effect{
		{Name: "Charcoal", Flag: "-charcoal", Family: FamilyNumeric, Args: []Argument{NumberArg("Charcoal", 5, 0, 10, 0.1, "")}},
		{Name: "Swirl", Flag: "-swirl", Family: FamilyNumeric, Args: []Argument{NumberArg("Swirl", 180, -360, 360, 5, "°")}},
		{Name: "Implode", Flag: "-implode", Family: FamilyNumeric, Args: []Argument{NumberArg("Implode", -0.5, -2, 2, 0.05, "")}},
		{Name: "Solarize", Flag: "-solarize", Family: FamilyNumeric, Args: []Argument{NumberArg("Solarize", 50, 0, 100, 1, "%")}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_NumericDefaultsAndLimits(t *testing.T) {
	got := Parse("-blur -add-noise 5")
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].Args[0].Number, "missing value defaults to 1")
	assert.Equal(t, 1.0, got[1].Args[0].Number, "add-noise is capped at 1")
}

func TestParse_NumericDeclinesGeometry(t *testing.T) {
	got := Parse("-blur 0x5")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyGeneric, got[0].Family)
	assert.Equal(t, "-blur 0x5", Reconstruct(got))

	got = Parse("-blur 5%")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyGeneric, got[0].Family, "percent only where the slot takes percent")
}

func TestParse_Sample(t *testing.T) {
	got := Parse("-sample 13% -sample 800")
	require.Len(t, got, 2)
	assert.Equal(t, "Size", got[0].Args[0].Label)
	assert.Equal(t, "%", got[0].Args[0].Unit)
	assert.Equal(t, "", got[1].Args[0].Unit)
	assert.Equal(t, "-sample 13% -sample 800", Reconstruct(got))

	got = Parse("-sample")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyGeneric, got[0].Family)
}

func TestParse_Modulate(t *testing.T) {
	got := Parse("-modulate 150,abc")
	require.Len(t, got, 1)
	e := got[0]
	assert.Equal(t, FamilyTriplet, e.Family)
	require.Len(t, e.Args, 3)
	assert.Equal(t, []float64{150, 100, 100}, []float64{e.Args[0].Number, e.Args[1].Number, e.Args[2].Number})
	assert.Equal(t, []string{"Bright", "Sat", "Hue"}, []string{e.Args[0].Label, e.Args[1].Label, e.Args[2].Label})
	assert.Equal(t, "-modulate 150%,100%,100%", Reconstruct(got))

	got = Parse("-modulate")
	assert.Equal(t, "-modulate 100%,100%,100%", Reconstruct(got))
}

func TestParse_Sigmoidal(t *testing.T) {
	got := Parse("-sigmoidal-contrast 3x40%")
	require.Len(t, got, 1)
	assert.Equal(t, "Contrast", got[0].Name)
	assert.Equal(t, 3.0, got[0].Args[0].Number)
	assert.Equal(t, 40.0, got[0].Args[1].Number)
	assert.Equal(t, "-sigmoidal-contrast 3,40%", Reconstruct(got))

	got = Parse("-sigmoidal-contrast 10")
	assert.Equal(t, 50.0, got[0].Args[1].Number, "mid defaults to 50")

	got = Parse("-sigmoidal-contrast strong")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyGeneric, got[0].Family)
}

func TestParse_ColorAndSelect(t *testing.T) {
	got := Parse("-fill '#0033cc' -compose Screen +noise Laplacian -channel R -dither Riemersma -virtual-pixel Mirror")
	names := make([]string, len(got))
	for i, e := range got {
		names[i] = e.Name
	}
	assert.Equal(t, []string{"Fill Color", "Blend Mode", "Noise", "Channel", "Dither", "Virtual Pixel"}, names)
	assert.Equal(t, KindColor, got[0].Args[0].Kind)
	assert.Equal(t, "#0033cc", got[0].Args[0].Text)
	assert.Contains(t, got[1].Args[0].Options, "Overlay")
	assert.Equal(t, "-fill #0033cc -compose Screen +noise Laplacian -channel R -dither Riemersma -virtual-pixel Mirror", Reconstruct(got))
}

func TestParse_ComposeDeclinesUnknownMode(t *testing.T) {
	got := Parse("-compose Sparkle")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyGeneric, got[0].Family)
	assert.Equal(t, "-compose", got[0].Name)
	assert.Equal(t, "-compose Sparkle", Reconstruct(got))
}

func TestParse_Morphology(t *testing.T) {
	tests := []struct {
		in     string
		kernel string
		a1, a2 float64
		out    string
	}{
		{"-morphology Dilate Disk:3", "Disk", 3, 0, "-morphology Dilate Disk:3"},
		{"-morphology Dilate Rectangle:20x1", "Rectangle", 20, 1, "-morphology Dilate Rectangle:20x1"},
		{"-morphology Erode Square", "Square", 1, 0, "-morphology Erode Square:1"},
		{"-morphology Thinning Skeleton", "Skeleton", 0, 0, "-morphology Thinning Skeleton"},
		{"-morphology Close", "Disk", 1, 0, "-morphology Close Disk:1"},
		{"-morphology Open Disk:0", "Disk", 0, 0, "-morphology Open Disk:0"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := Parse(tc.in)
			require.Len(t, got, 1)
			e := got[0]
			require.Equal(t, FamilyKernel, e.Family)
			assert.Equal(t, tc.kernel, e.Args[1].Text)
			assert.Equal(t, tc.a1, e.Args[2].Number)
			assert.Equal(t, tc.a2, e.Args[3].Number)
			assert.Equal(t, tc.out, Reconstruct(got))
		})
	}
}

func TestParse_MorphologyDeclines(t *testing.T) {
	for _, in := range []string{
		"-morphology Thinning:20 Skeleton",
		"-morphology Convolve 3x3:1,0,1,0,1,0,1,0,1",
		"-morphology",
	} {
		got := Parse(in)
		require.Len(t, got, 1, in)
		assert.Equal(t, FamilyGeneric, got[0].Family, in)
		assert.Equal(t, in, Reconstruct(got), in)
	}
}

func TestParse_Methods(t *testing.T) {
	got := Parse("-distort Polar -function Sinusoid 4,-90 -evaluate Sin 2 -evaluate Cos")
	require.Len(t, got, 4)
	assert.Equal(t, "0", got[0].Args[1].Text, "distort args default to 0")
	assert.Equal(t, "4,-90", got[1].Args[1].Text)
	assert.Equal(t, 2.0, got[2].Args[1].Number)
	assert.Equal(t, 0.0, got[3].Args[1].Number)
	assert.Equal(t, "-distort Polar 0 -function Sinusoid 4,-90 -evaluate Sin 2 -evaluate Cos 0", Reconstruct(got))
}

func TestParse_Text(t *testing.T) {
	got := Parse(`-roll +10+0 -wave 7x63 -lat 25x25+10% -level 0%,90% -contrast-stretch 5% -fx "u * 0.5"`)
	require.Len(t, got, 6)
	assert.Equal(t, []string{"Roll", "Wave", "Lat", "Level", "Stretch", "FX Math"},
		[]string{got[0].Name, got[1].Name, got[2].Name, got[3].Name, got[4].Name, got[5].Name})
	assert.Equal(t, "Geometry", got[0].Args[0].Label)
	assert.Equal(t, "Range", got[3].Args[0].Label)
	assert.Equal(t, "Expr", got[5].Args[0].Label)
	assert.Equal(t, "u * 0.5", got[5].Args[0].Text)
	assert.Equal(t, `-roll +10+0 -wave 7x63 -lat 25x25+10% -level 0%,90% -contrast-stretch 5% -fx 'u * 0.5'`, Reconstruct(got))
}

func TestParse_Toggles(t *testing.T) {
	got := Parse("-negate -grayscale -monochrome -auto-level")
	require.Len(t, got, 4)
	for _, e := range got {
		assert.Equal(t, FamilyToggle, e.Family)
		require.Len(t, e.Args, 1)
		assert.Equal(t, "Active", e.Args[0].Label)
		assert.Equal(t, 1.0, e.Args[0].Number)
		assert.Equal(t, 0.0, e.Args[0].Min)
		assert.Equal(t, 1.0, e.Args[0].Max)
	}
	assert.Equal(t, "-channel RGB -negate +channel -colorspace Gray -monochrome -auto-level", Reconstruct(got))
}

func TestReconstruct_ToggleThreshold(t *testing.T) {
	negate := func(v float64) []Effect {
		return []Effect{{Name: "Negate", Flag: "-negate", Family: FamilyToggle, Args: []Argument{NumberArg("Active", v, 0, 1, 1, "")}}}
	}
	assert.Equal(t, "-channel RGB -negate +channel", Reconstruct(negate(1)))
	assert.Equal(t, "-channel RGB -negate +channel", Reconstruct(negate(0.51)))
	assert.Equal(t, "", Reconstruct(negate(0.5)))
	assert.Equal(t, "", Reconstruct(negate(0)))
}

func TestParse_WrapperAbsorbed(t *testing.T) {
	got := Parse("-channel RGB -negate +channel")
	require.Len(t, got, 1)
	assert.Equal(t, "-negate", got[0].Flag)
	assert.Equal(t, "Negate", got[0].Name)

	got = Parse("-channel RGB -edge 3 +channel")
	require.Len(t, got, 1)
	assert.Equal(t, FamilyWrapped, got[0].Family)
	assert.Equal(t, "-channel RGB -edge 3 +channel", Reconstruct(got))

	got = Parse("-channel R -negate +channel")
	assert.Len(t, got, 3, "only the RGB form is absorbed")

	got = Parse("-channel RGB -negate -blur 2 +channel")
	assert.Len(t, got, 4)
}

func TestParse_EdgeWrapsOnRender(t *testing.T) {
	got := Parse("-edge 2")
	require.Len(t, got, 1)
	assert.Equal(t, "-channel RGB -edge 2 +channel", Reconstruct(got))
}

func TestParse_ResetAndGroups(t *testing.T) {
	got := Parse("( -clone 0 -negate ) +channel")
	require.Len(t, got, 5)
	assert.Equal(t, FamilyGroup, got[0].Family)
	assert.Equal(t, FamilyGeneric, got[1].Family)
	assert.Equal(t, FamilyGroup, got[3].Family)
	assert.Equal(t, FamilyReset, got[4].Family)
	assert.Equal(t, "( -clone 0 -channel RGB -negate +channel ) +channel", Reconstruct(got))
}

func TestParse_Generic(t *testing.T) {
	got := Parse("-statistic Maximum 20x1 +repage -alpha opaque stray")
	want := []Effect{
		{Name: "-statistic", Flag: "-statistic", Family: FamilyGeneric, Args: []Argument{TextArg("Args", "Maximum 20x1")}},
		{Name: "+repage", Flag: "+repage", Family: FamilyGeneric, Args: []Argument{}},
		{Name: "-alpha", Flag: "-alpha", Family: FamilyGeneric, Args: []Argument{TextArg("Args", "opaque stray")}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "-statistic Maximum 20x1 +repage -alpha opaque stray", Reconstruct(got))
}

func TestParse_GenericKeepsQuotedTokens(t *testing.T) {
	tests := []struct {
		in   string
		slot string
		out  string
	}{
		{"-blur '0.1 0.2'", "'0.1 0.2'", "-blur '0.1 0.2'"},
		{"-swirl '90 deg'", "'90 deg'", "-swirl '90 deg'"},
		{"-define 'a  b' c", "'a  b' c", "-define 'a  b' c"},
		{`-label a\ b`, "'a b'", "-label 'a b'"},
		{`-annotate "it's here"`, `"it\'s here"`, `-annotate "it\'s here"`},
		{"-morphology Convolve '3x3: 0,1,0'", "Convolve '3x3: 0,1,0'", "-morphology Convolve '3x3: 0,1,0'"},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := Parse(tc.in)
			require.Len(t, got, 1)
			assert.Equal(t, FamilyGeneric, got[0].Family)
			require.Len(t, got[0].Args, 1)
			assert.Equal(t, tc.slot, got[0].Args[0].Text)
			assert.Equal(t, tc.out, Reconstruct(got))
		})
	}
}

func TestReconstruct_QuotesGenericFlag(t *testing.T) {
	got := Parse(`'-odd flag' 3`)
	require.Len(t, got, 1)
	assert.Equal(t, "-odd flag", got[0].Flag)
	assert.Equal(t, "'-odd flag' 3", Reconstruct(got))
}

func TestParse_LeadingStraysDropped(t *testing.T) {
	got := Parse("hello 5 -negate")
	require.Len(t, got, 1)
	assert.Equal(t, "-negate", got[0].Flag)
}

func TestReconstruct_EmptyFamilyUsesFlag(t *testing.T) {
	e := Effect{Flag: "-blur", Args: []Argument{NumberArg("Blur", 3, 0, 20, 0.5, "")}}
	assert.Equal(t, "-blur 3", Reconstruct([]Effect{e}))

	e = Effect{Flag: "-edge", Args: []Argument{NumberArg("Edge", 3, 0, 20, 0.5, "")}}
	assert.Equal(t, "-channel RGB -edge 3 +channel", Reconstruct([]Effect{e}))
}

func TestReconstruct_QuotesWhitespaceText(t *testing.T) {
	e := Effect{Flag: "-fill", Family: FamilyColor, Args: []Argument{ColorArg("Fill", "rgb(1, 2, 3)")}}
	assert.Equal(t, `-fill 'rgb(1, 2, 3)'`, Reconstruct([]Effect{e}))

	e = Effect{Flag: "-fx", Family: FamilyText, Args: []Argument{TextArg("Expr", `it's`)}}
	assert.Equal(t, `-fx it\'s`, Reconstruct([]Effect{e}))
}

func TestReconstruct_EditedSlider(t *testing.T) {
	got := Parse("-charcoal 5")
	got[0].Args[0].Number = 10
	assert.Equal(t, "-charcoal 10", Reconstruct(got))
}

func TestClone_IsDeep(t *testing.T) {
	orig := Parse("-compose Screen")
	cp := CloneAll(orig)
	cp[0].Args[0].Text = "Multiply"
	cp[0].Args[0].Options[0] = "mutated"

	assert.Equal(t, "Screen", orig[0].Args[0].Text)
	assert.NotEqual(t, "mutated", orig[0].Args[0].Options[0])
	assert.Nil(t, CloneAll(nil))
	if diff := cmp.Diff(orig, CloneAll(orig), ignoreOptions); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}
}

func TestLeadingFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"50%", 50, true},
		{"0x5", 0, true},
		{"  -1.5e2abc", -150, true},
		{".5", 0.5, true},
		{"abc", 0, false},
		{"", 0, false},
		{"1e999", 0, false},
		{"Infinity", 0, false},
	}
	for _, tc := range tests {
		v, ok := leadingFloat(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, v, tc.in)
	}
}

func TestReconstruct_DisplayUnitsNotEmitted(t *testing.T) {
	got := Parse("-swirl 90 -tint 40%")
	require.Len(t, got, 2)
	assert.Equal(t, "°", got[0].Args[0].Unit)
	assert.Equal(t, "%", got[1].Args[0].Unit)
	assert.Equal(t, "-swirl 90 -tint 40%", Reconstruct(got))
}
