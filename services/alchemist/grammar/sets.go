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

// Set is an immutable, ordered set of accepted argument values.
//
// Description:
//
//	Membership checks are case-sensitive, matching how the engine spells
//	methods and kernels. Values returns the declaration order so editors can
//	present options in a stable order.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type Set struct {
	name   string
	values []string
	index  map[string]struct{}
}

func newSet(name string, values ...string) *Set {
	s := &Set{
		name:   name,
		values: values,
		index:  make(map[string]struct{}, len(values)),
	}
	for _, v := range values {
		s.index[v] = struct{}{}
	}
	return s
}

// Name returns the registry name of the set (e.g. "morphology_methods").
func (s *Set) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Has reports whether v is a member. A nil set has no members.
func (s *Set) Has(v string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[v]
	return ok
}

// Values returns a copy of the members in declaration order.
func (s *Set) Values() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.values))
	copy(out, s.values)
	return out
}

// Len returns the number of members.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.values)
}

// =============================================================================
// Value Sets
// =============================================================================

var (
	// MorphologyMethods are the accepted first arguments of -morphology.
	MorphologyMethods = newSet("morphology_methods",
		"Erode", "Dilate", "Open", "Close", "Smooth",
		"EdgeIn", "EdgeOut", "TopHat", "BottomHat",
		"HitAndMiss", "Thinning", "Thicken",
		"Convolve", "Correlate", "Distance",
	)

	// MorphologyKernels are the named kernels accepted as the second
	// argument of -morphology (optionally followed by ":size").
	MorphologyKernels = newSet("morphology_kernels",
		// shaped
		"Diamond", "Square", "Octagon", "Disk", "Plus", "Cross", "Ring", "Rectangle",
		// hit-and-miss and special
		"ConvexHull", "Skeleton", "Edges", "Corners",
		"Diagonals", "LineEnds", "LineJunctions", "Ridges",
		"ThinSE", "Peaks",
		// convolution
		"Unity", "Gaussian", "DoG", "LoG", "Blur", "Comet", "Binomial",
		// distance
		"Chebyshev", "Manhattan", "Euclidean",
	)

	// ShapedKernels default to a radius of 1 when written without a size.
	ShapedKernels = newSet("shaped_kernels", "Disk", "Square", "Diamond", "Octagon")

	// EvaluateFunctions are the accepted operators of -evaluate.
	EvaluateFunctions = newSet("evaluate_functions",
		"Add", "Subtract", "Multiply", "Divide",
		"Sin", "Cos", "Pow", "Log", "Exp",
		"And", "Or", "Xor", "Min", "Max",
		"Set", "Abs", "Mean", "Median",
		"GaussianNoise", "InverseLog",
		"Arcsin", "Arccos", "Arctan",
	)

	// Colorspaces are the accepted arguments of -colorspace.
	Colorspaces = newSet("colorspaces",
		"Gray", "sRGB", "RGB", "LAB", "HSL", "HSB",
		"CMYK", "CMYKA", "XYZ", "YCbCr", "YIQ", "YUV",
		"Transparent", "OHTA", "Rec601Luma", "Rec709Luma",
	)

	// ComposeMethods are the accepted arguments of -compose.
	ComposeMethods = newSet("compose_methods",
		"Screen", "Multiply", "Overlay",
		"Darken", "Lighten", "Difference", "Exclusion",
		"Add", "Subtract", "HardLight", "SoftLight",
		"ColorDodge", "ColorBurn", "LinearDodge", "LinearBurn",
		"Over", "In", "Out", "Atop", "Xor",
		"Plus", "Minus", "Bumpmap", "Dissolve",
	)

	// VirtualPixelMethods are the accepted arguments of -virtual-pixel.
	VirtualPixelMethods = newSet("virtual_pixel_methods",
		"Tile", "Edge", "Mirror", "Black", "White",
		"Background", "Transparent", "Dither",
		"Random", "CheckerTile", "HorizontalTile", "VerticalTile",
	)

	// DistortMethods are the accepted first arguments of -distort.
	DistortMethods = newSet("distort_methods",
		"ARC", "SRT", "Barrel", "BarrelInverse",
		"Perspective", "BilinearForward", "BilinearReverse",
		"Polar", "DePolar", "Shepards", "Affine",
		"AffineProjection", "ScaleRotateTranslate",
	)

	// NoiseTypes are the accepted arguments of +noise.
	NoiseTypes = newSet("noise_types",
		"Gaussian", "Impulse", "Laplacian",
		"Multiplicative", "Poisson", "Random", "Uniform",
	)

	// Channels are the accepted arguments of -channel.
	Channels = newSet("channels",
		"Red", "Green", "Blue", "Alpha",
		"Cyan", "Magenta", "Yellow", "Black",
		"Opacity", "Index", "RGB", "RGBA",
		"CMYK", "CMYKA", "All",
		"R", "G", "B", "A",
		"C", "M", "Y", "K",
	)

	// FunctionMethods are the accepted first arguments of -function.
	FunctionMethods = newSet("function_methods",
		"Sinusoid", "Arcsin", "Arctan", "Polynomial",
	)

	// DitherMethods are offered by editors for -dither. Not enforced by the
	// validator.
	DitherMethods = newSet("dither_methods", "FloydSteinberg", "Riemersma", "None")
)

// Sets returns every named value set, keyed by Set.Name.
func Sets() map[string]*Set {
	all := []*Set{
		MorphologyMethods, MorphologyKernels, ShapedKernels, EvaluateFunctions,
		Colorspaces, ComposeMethods, VirtualPixelMethods, DistortMethods,
		NoiseTypes, Channels, FunctionMethods, DitherMethods,
	}
	out := make(map[string]*Set, len(all))
	for _, s := range all {
		out[s.name] = s
	}
	return out
}
