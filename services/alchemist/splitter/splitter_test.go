// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package splitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Atoms(t *testing.T) {
	got := Split("-edge 1 -negate")
	assert.Equal(t, []Entry{
		{Label: "Edge 1", Command: "-edge 1"},
		{Label: "Negate", Command: "-negate"},
	}, got)
}

func TestSplit_MultipleArguments(t *testing.T) {
	got := Split("-evaluate Sin 2")
	assert.Equal(t, []Entry{{Label: "Evaluate Sin 2", Command: "-evaluate Sin 2"}}, got)
}

func TestSplit_ChannelBlock(t *testing.T) {
	cmd := "-channel RGB -negate -blur 0x5 +channel"
	got := Split(cmd)
	require.Len(t, got, 1)
	assert.Equal(t, cmd, got[0].Command)
	assert.Equal(t, "RGB Channel: Negate, Blur", got[0].Label)
}

func TestSplit_ChannelLabelEllipsis(t *testing.T) {
	got := Split("-channel R -negate -blur 2 -sepia-tone 80% +channel")
	require.Len(t, got, 1)
	assert.Equal(t, "R Channel: Negate, Blur...", got[0].Label)

	got = Split("-channel G +channel")
	require.Len(t, got, 1)
	assert.Equal(t, "G Channel", got[0].Label)
}

func TestSplit_ChannelWithoutArgument(t *testing.T) {
	got := Split("-channel +channel -negate")
	require.Len(t, got, 2)
	assert.Equal(t, "-channel +channel", got[0].Command)
	assert.Equal(t, "+channel Channel", got[0].Label)
	assert.Equal(t, "-negate", got[1].Command)
}

func TestSplit_MixedStandaloneAndGrouped(t *testing.T) {
	got := Split("-edge 1 -channel R -roll +10+0 +channel -negate")
	require.Len(t, got, 3)
	assert.Equal(t, "Edge 1", got[0].Label)
	assert.Equal(t, "R Channel: Roll", got[1].Label)
	assert.Equal(t, "-channel R -roll +10+0 +channel", got[1].Command)
	assert.Equal(t, "Negate", got[2].Label)
}

func TestSplit_LayerGroup(t *testing.T) {
	got := Split("( -clone 0 -negate ) -delete 0")
	assert.Equal(t, []Entry{
		{Label: "Layer Group", Command: "( -clone 0 -negate )"},
		{Label: "Delete 0", Command: "-delete 0"},
	}, got)

	got = Split("( ( +clone ) -negate )")
	require.Len(t, got, 1)
	assert.Equal(t, "( ( +clone ) -negate )", got[0].Command)
}

func TestSplit_UnbalancedParenFallsThrough(t *testing.T) {
	got := Split("( -negate")
	assert.Equal(t, []Entry{{Label: "Negate", Command: "-negate"}}, got)
}

func TestSplit_UnmatchedChannel(t *testing.T) {
	got := Split("-channel RGB -negate")
	require.Len(t, got, 2)
	assert.Equal(t, "-channel RGB", got[0].Command)
	assert.Equal(t, "Channel RGB", got[0].Label)
	assert.Equal(t, "-negate", got[1].Command)
}

func TestSplit_DroppedTokens(t *testing.T) {
	got := Split("-negate -alpha opaque +channel stray -flip")
	assert.Equal(t, []Entry{
		{Label: "Negate", Command: "-negate"},
		{Label: "Flip", Command: "-flip"},
	}, got)

	got = Split("-alpha set")
	assert.Equal(t, []Entry{{Label: "Alpha set", Command: "-alpha set"}}, got)
}

func TestSplit_Empty(t *testing.T) {
	got := Split("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSplit_RuleLessFlagTakesNoArgs(t *testing.T) {
	got := Split("-unknown-op 5 -negate")
	assert.Equal(t, []Entry{
		{Label: "Unknown Op", Command: "-unknown-op"},
		{Label: "Negate", Command: "-negate"},
	}, got)
}

func TestFormatLabel(t *testing.T) {
	assert.Equal(t, "Sepia Tone", FormatLabel("-sepia-tone"))
	assert.Equal(t, "Liquid Rescale", FormatLabel("-liquid-rescale"))
	assert.Equal(t, "+noise Laplacian", FormatLabel("+noise", "Laplacian"))
	assert.Equal(t, "Fx 'u+(rand..", FormatLabel("-fx", "'u+(rand()-0.5)'"))
	assert.Equal(t, "Fx 0123456789", FormatLabel("-fx", "0123456789"), "exactly ten characters is kept")
	assert.Equal(t, "Morphology Dilate Octagon:10", FormatLabel("-morphology", "Dilate", "Octagon:10"))
}
