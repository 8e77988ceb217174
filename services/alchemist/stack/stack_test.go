// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stack

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/effects"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/sanitizer"
	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/validator"
)

func newTestStack() *Stack {
	return New(NewSequentialIDs("e"))
}

func labels(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Label
	}
	return out
}

func TestPush(t *testing.T) {
	s := newTestStack()

	e := s.Push("Negate", "-negate", SourcePreset)
	assert.Equal(t, "e-1", e.ID)
	assert.Equal(t, "Negate", e.Label)
	assert.Equal(t, "-negate", e.Command)
	assert.True(t, e.Enabled)
	assert.Equal(t, SourcePreset, e.Source)

	c := s.Push("Charcoal", "-charcoal 5", SourceGenerated)
	require.Len(t, c.Effects, 1)
	assert.Equal(t, "Charcoal", c.Effects[0].Name)
	assert.Equal(t, 5.0, c.Effects[0].Args[0].Number)

	assert.Equal(t, []string{"Negate", "Charcoal"}, labels(s.Entries()))
}

func TestPush_DefaultIDsAreUnique(t *testing.T) {
	s := New(nil)
	a := s.Push("A", "-negate", SourcePreset)
	b := s.Push("B", "-negate", SourcePreset)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRemove(t *testing.T) {
	s := newTestStack()
	a := s.Push("A", "-negate", SourcePreset)
	s.Push("B", "-charcoal 5", SourcePreset)

	require.NoError(t, s.Remove(a.ID))
	assert.Equal(t, []string{"B"}, labels(s.Entries()))

	assert.ErrorIs(t, s.Remove("nonexistent"), ErrNotFound)
	assert.Equal(t, 1, s.Len())
}

func TestToggle(t *testing.T) {
	s := newTestStack()
	a := s.Push("A", "-negate", SourcePreset)

	got, err := s.Toggle(a.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	got, err = s.Toggle(a.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	_, err = s.Toggle("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMove(t *testing.T) {
	s := newTestStack()
	a := s.Push("A", "-negate", SourcePreset)
	b := s.Push("B", "-charcoal 5", SourcePreset)

	assert.True(t, s.Move(a.ID, 1))
	assert.Equal(t, []string{"B", "A"}, labels(s.Entries()))

	assert.True(t, s.Move(a.ID, -1))
	assert.Equal(t, []string{"A", "B"}, labels(s.Entries()))

	assert.False(t, s.Move(a.ID, -1), "already first")
	assert.False(t, s.Move(b.ID, 1), "already last")
	assert.False(t, s.Move("missing", 1))
	assert.False(t, s.Move(a.ID, 0))
	assert.Equal(t, []string{"A", "B"}, labels(s.Entries()))
}

func TestUpdateEffects(t *testing.T) {
	s := newTestStack()
	e := s.Push("Charcoal", "-charcoal 5", SourcePreset)

	modified := effects.CloneAll(e.Effects)
	modified[0].Args[0].Number = 10
	got, err := s.UpdateEffects(e.ID, modified)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.Effects[0].Args[0].Number)
	assert.Equal(t, "-charcoal 5", got.Command)

	// The stack keeps its own copy.
	modified[0].Args[0].Number = 3
	stored, err := s.Get(e.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Effects[0].Args[0].Number)

	_, err = s.UpdateEffects("missing", modified)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPopAndClear(t *testing.T) {
	s := newTestStack()

	_, ok := s.Pop()
	assert.False(t, ok)

	s.Push("A", "-negate", SourcePreset)
	s.Push("B", "-charcoal 5", SourcePreset)

	popped, ok := s.Pop()
	require.True(t, ok)
	assert.Equal(t, "B", popped.Label)
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Empty(t, s.Entries())
	assert.Equal(t, "", s.Build())
}

func TestEntries_IsSnapshot(t *testing.T) {
	s := newTestStack()
	s.Push("Charcoal", "-charcoal 5", SourcePreset)

	snap := s.Entries()
	snap[0].Label = "mutated"
	snap[0].Effects[0].Args[0].Number = 99

	fresh := s.Entries()
	assert.Equal(t, "Charcoal", fresh[0].Label)
	assert.Equal(t, 5.0, fresh[0].Effects[0].Args[0].Number)
}

func TestBuild(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", newTestStack().Build())
	})

	t.Run("concatenates in order", func(t *testing.T) {
		s := newTestStack()
		s.Push("A", "-negate", SourcePreset)
		s.Push("B", "-charcoal 5", SourcePreset)
		assert.Equal(t, "-channel RGB -negate +channel -charcoal 5", s.Build())
	})

	t.Run("skips disabled", func(t *testing.T) {
		s := newTestStack()
		a := s.Push("A", "-negate", SourcePreset)
		s.Push("B", "-charcoal 5", SourcePreset)
		_, err := s.Toggle(a.ID)
		require.NoError(t, err)
		assert.Equal(t, "-charcoal 5", s.Build())
	})

	t.Run("uses edited effects", func(t *testing.T) {
		s := newTestStack()
		e := s.Push("Charcoal", "-charcoal 5", SourcePreset)
		edited := effects.CloneAll(e.Effects)
		edited[0].Args[0].Number = 10
		_, err := s.UpdateEffects(e.ID, edited)
		require.NoError(t, err)
		assert.Equal(t, "-charcoal 10", s.Build())
	})

	t.Run("falls back to raw command", func(t *testing.T) {
		s := newTestStack()
		s.Push("Stray", "just words", SourceManual)
		s.Push("Blank", "   ", SourceManual)
		s.Push("Negate", "-negate", SourceManual)
		assert.Equal(t, "just words -channel RGB -negate +channel", s.Build())
	})

	t.Run("toggled-off effect contributes nothing", func(t *testing.T) {
		s := newTestStack()
		e := s.Push("Negate", "-negate", SourcePreset)
		s.Push("Blur", "-blur 2", SourcePreset)
		off := effects.CloneAll(e.Effects)
		off[0].Args[0].Number = 0
		_, err := s.UpdateEffects(e.ID, off)
		require.NoError(t, err)
		assert.Equal(t, "-blur 2", s.Build())
	})

	t.Run("reflects reordering", func(t *testing.T) {
		s := newTestStack()
		a := s.Push("A", "-negate", SourcePreset)
		s.Push("B", "-charcoal 5", SourcePreset)
		s.Move(a.ID, 1)
		cmd := s.Build()
		assert.Less(t, strings.Index(cmd, "-charcoal"), strings.Index(cmd, "-negate"))
	})
}

func TestBuild_KeepsQuotedArguments(t *testing.T) {
	commands := []string{
		"-morphology Convolve '3x3: 0,1,0 1,1,1 0,1,0'",
		"-blur '0.1 0.2'",
		"-swirl '90 deg' -charcoal 5",
		"-fill 'rgb(10, 20, 30)' -fx 'u * 0.5'",
		`-fx "it's a test"`,
	}
	for _, raw := range commands {
		t.Run(raw, func(t *testing.T) {
			validated := validator.Validate(raw).Command
			require.NotEmpty(t, validated)

			s := newTestStack()
			s.Push("Entry", validated, SourceManual)

			want := sanitizer.Sanitize(validated, 4, 4, sanitizer.ModePreview).Args
			got := sanitizer.Sanitize(s.Build(), 4, 4, sanitizer.ModePreview).Args
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("argv mismatch (-direct +built):\n%s", diff)
			}
		})
	}
}

func TestSource_Valid(t *testing.T) {
	assert.True(t, SourcePreset.Valid())
	assert.True(t, SourceGenerated.Valid())
	assert.True(t, SourceManual.Valid())
	assert.False(t, Source("ai").Valid())
}

func TestStack_ConcurrentUse(t *testing.T) {
	s := New(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := s.Push("N", "-negate", SourceManual)
			_ = s.Build()
			_, _ = s.Toggle(e.ID)
			s.Move(e.ID, -1)
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, e := range s.Entries() {
		assert.False(t, seen[e.ID], "duplicate id %s", e.ID)
		seen[e.ID] = true
	}
	assert.Len(t, seen, 20)
}
