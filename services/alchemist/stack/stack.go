// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stack holds the ordered list of effects a user is composing and
// builds the combined command from it.
package stack

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/effects"
)

// ErrNotFound is returned when no entry has the requested id.
var ErrNotFound = errors.New("stack: entry not found")

// Source records where an entry came from.
type Source string

const (
	SourcePreset    Source = "preset"
	SourceGenerated Source = "generated"
	SourceManual    Source = "manual"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	switch s {
	case SourcePreset, SourceGenerated, SourceManual:
		return true
	}
	return false
}

// Entry is one layer of the stack.
type Entry struct {
	ID      string           `json:"id"`
	Label   string           `json:"label"`
	Command string           `json:"command"`
	Enabled bool             `json:"enabled"`
	Effects []effects.Effect `json:"effects"`
	Source  Source           `json:"source"`
}

func (e Entry) clone() Entry {
	e.Effects = effects.CloneAll(e.Effects)
	return e
}

// contribution is the command text the entry adds to Build.
func (e Entry) contribution() string {
	if len(e.Effects) > 0 {
		return e.Reconstructed()
	}
	return e.Command
}

// Reconstructed returns the entry's effects rendered back to command text.
func (e Entry) Reconstructed() string {
	return effects.Reconstruct(e.Effects)
}

// IDSource produces entry ids. It must return a new id on every call.
type IDSource func() string

// NewSequentialIDs returns an IDSource yielding prefix-1, prefix-2, ...
func NewSequentialIDs(prefix string) IDSource {
	var n atomic.Uint64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

// Stack is an ordered, mutable list of entries.
//
// Description:
//
//	Entries are appended by Push and composed by Build in order. Disabled
//	entries stay in place but contribute nothing. Entries returned by any
//	method are deep copies; mutate the stack only through its methods.
//
// Thread Safety: Stack is safe for concurrent use.
type Stack struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  IDSource
}

// New creates an empty stack. A nil ids uses random UUIDs.
func New(ids IDSource) *Stack {
	if ids == nil {
		ids = uuid.NewString
	}
	return &Stack{nextID: ids}
}

// Push appends an enabled entry and parses its effects.
//
// Inputs:
//   - label: Display name.
//   - command: Command text for this layer.
//   - source: Origin of the entry.
//
// Outputs:
//   - Entry: A copy of the stored entry, including its new id.
func (s *Stack) Push(label, command string, source Source) Entry {
	e := Entry{
		ID:      s.nextID(),
		Label:   label,
		Command: command,
		Enabled: true,
		Effects: effects.Parse(command),
		Source:  source,
	}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()

	return e.clone()
}

// Remove deletes the entry with id.
func (s *Stack) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotFound
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	return nil
}

// Toggle flips the enabled state of the entry with id and returns the
// updated entry.
func (s *Stack) Toggle(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Entry{}, ErrNotFound
	}
	s.entries[i].Enabled = !s.entries[i].Enabled
	return s.entries[i].clone(), nil
}

// Move swaps the entry with id with its neighbour in direction (negative
// is towards the front). Moving past either end, a zero direction, or an
// unknown id leaves the stack unchanged.
//
// Outputs:
//   - bool: True if the stack changed.
func (s *Stack) Move(id string, direction int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 || direction == 0 {
		return false
	}
	j := i + 1
	if direction < 0 {
		j = i - 1
	}
	if j < 0 || j >= len(s.entries) {
		return false
	}
	s.entries[i], s.entries[j] = s.entries[j], s.entries[i]
	return true
}

// UpdateEffects replaces the effects of the entry with id. The entry's
// Command is left as pushed; Build uses the new effects.
func (s *Stack) UpdateEffects(id string, updated []effects.Effect) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Entry{}, ErrNotFound
	}
	s.entries[i].Effects = effects.CloneAll(updated)
	return s.entries[i].clone(), nil
}

// Clear removes every entry.
func (s *Stack) Clear() {
	s.mu.Lock()
	s.entries = nil
	s.mu.Unlock()
}

// Pop removes and returns the last entry. ok is false on an empty stack.
func (s *Stack) Pop() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return Entry{}, false
	}
	last := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return last, true
}

// Get returns the entry with id.
func (s *Stack) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexLocked(id)
	if i < 0 {
		return Entry{}, ErrNotFound
	}
	return s.entries[i].clone(), nil
}

// Len returns the number of entries.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns a snapshot of all entries in order.
func (s *Stack) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.clone()
	}
	return out
}

// Build composes the command for the whole stack.
//
// Description:
//
//	Enabled entries contribute in order: the reconstruction of their
//	effects when they have any, otherwise their raw command. Blank
//	contributions are skipped and the rest are joined by single spaces.
//
// Outputs:
//   - string: The combined command. Empty for an empty or fully disabled
//     stack.
//
// Thread Safety: This method is safe for concurrent use.
func (s *Stack) Build() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	parts := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if !e.Enabled {
			continue
		}
		if c := strings.TrimSpace(e.contribution()); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, " ")
}

func (s *Stack) indexLocked(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}
