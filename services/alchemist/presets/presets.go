// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package presets provides the built-in effect catalogue and the system
// prompt used for text generation.
package presets

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

var tracer = otel.Tracer("alchemist.presets")

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed presets.yaml
var defaultPresetsYAML []byte

//go:embed system_prompt.txt
var systemPrompt string

// MaxYAMLFileSize bounds catalogue files loaded from disk.
const MaxYAMLFileSize = 1 << 20

// SystemPrompt returns the instruction text sent with every generation.
func SystemPrompt() string {
	return systemPrompt
}

// =============================================================================
// Catalogue Types
// =============================================================================

// Category names a preset group.
type Category string

const (
	CategoryPrimitive Category = "primitives"
	CategoryReady     Category = "ready_effects"
	CategorySpellbook Category = "spellbook"
)

// Preset is one named command.
type Preset struct {
	Name     string   `yaml:"name" json:"name"`
	Command  string   `yaml:"command" json:"command"`
	Category Category `yaml:"-" json:"category"`
}

// Generation holds the sampling parameters for text generation.
type Generation struct {
	MaxOutputTokens int     `yaml:"max_output_tokens" json:"max_output_tokens"`
	Temperature     float64 `yaml:"temperature" json:"temperature"`
	MaxOperations   int     `yaml:"max_operations" json:"max_operations"`
}

// Catalog is a loaded preset catalogue.
//
// Description:
//
//	Presets are grouped in three ordered categories. Lookup is by name,
//	case-insensitive, and later categories shadow earlier ones on a clash.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Catalog struct {
	Primitives   []Preset   `yaml:"primitives" json:"primitives"`
	ReadyEffects []Preset   `yaml:"ready_effects" json:"ready_effects"`
	Spellbook    []Preset   `yaml:"spellbook" json:"spellbook"`
	Generation   Generation `yaml:"generation" json:"generation"`

	index map[string]Preset
}

const (
	DefaultMaxOutputTokens = 30
	DefaultTemperature     = 0.9
	DefaultMaxOperations   = 3
)

// Lookup finds a preset by name. The name is trimmed and compared
// case-insensitively.
func (c *Catalog) Lookup(name string) (Preset, bool) {
	if c == nil {
		return Preset{}, false
	}
	p, ok := c.index[normalize(name)]
	return p, ok
}

// All returns every preset in category order.
func (c *Catalog) All() []Preset {
	if c == nil {
		return nil
	}
	out := make([]Preset, 0, len(c.Primitives)+len(c.ReadyEffects)+len(c.Spellbook))
	out = append(out, c.Primitives...)
	out = append(out, c.ReadyEffects...)
	out = append(out, c.Spellbook...)
	return out
}

// RandomReadyEffect returns a uniformly chosen ready effect. ok is false when
// the category is empty.
func (c *Catalog) RandomReadyEffect() (Preset, bool) {
	if c == nil || len(c.ReadyEffects) == 0 {
		return Preset{}, false
	}
	return c.ReadyEffects[rand.IntN(len(c.ReadyEffects))], true
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// =============================================================================
// Singleton Catalogue
// =============================================================================

var (
	catalogMu      sync.RWMutex
	catalogOnce    sync.Once
	cachedCatalog  *Catalog
	catalogLoadErr error
)

// GetCatalog returns the cached catalogue, loading the embedded defaults on
// first call.
//
// Thread Safety: Safe for concurrent use via sync.Once.
func GetCatalog(ctx context.Context) (*Catalog, error) {
	if ctx == nil {
		return nil, fmt.Errorf("GetCatalog: ctx must not be nil")
	}

	catalogMu.RLock()
	if cachedCatalog != nil || catalogLoadErr != nil {
		c, err := cachedCatalog, catalogLoadErr
		catalogMu.RUnlock()
		return c, err
	}
	catalogMu.RUnlock()

	catalogMu.Lock()
	defer catalogMu.Unlock()

	if cachedCatalog != nil || catalogLoadErr != nil {
		return cachedCatalog, catalogLoadErr
	}

	catalogOnce.Do(func() {
		cachedCatalog, catalogLoadErr = LoadCatalog(ctx, defaultPresetsYAML)
	})

	return cachedCatalog, catalogLoadErr
}

// MustCatalog is GetCatalog for callers that cannot proceed without presets.
// The embedded catalogue is covered by tests, so a failure here is a build
// defect.
func MustCatalog() *Catalog {
	c, err := GetCatalog(context.Background())
	if err != nil {
		panic(err)
	}
	return c
}

// SetCatalog replaces the cached catalogue. Used by the override watcher.
func SetCatalog(c *Catalog) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	catalogOnce.Do(func() {})
	cachedCatalog = c
	catalogLoadErr = nil
}

// ResetCatalog resets the cached catalogue for testing.
//
// Thread Safety: Safe for concurrent use.
func ResetCatalog() {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	cachedCatalog = nil
	catalogLoadErr = nil
	catalogOnce = sync.Once{}
}

// LoadCatalog parses and validates a catalogue from YAML bytes.
//
// Description:
//
//	Applies generation defaults for missing fields, stamps each preset with
//	its category and builds the lookup index.
//
// Inputs:
//   - ctx: Context for tracing.
//   - data: Raw YAML bytes to parse.
//
// Outputs:
//   - *Catalog: The validated catalogue.
//   - error: Non-nil if parsing or validation fails.
func LoadCatalog(ctx context.Context, data []byte) (*Catalog, error) {
	_, span := tracer.Start(ctx, "presets.LoadCatalog")
	defer span.End()

	if len(data) == 0 {
		return nil, fmt.Errorf("LoadCatalog: empty YAML data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("LoadCatalog: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("LoadCatalog: parsing YAML: %w", err)
	}

	if c.Generation.MaxOutputTokens <= 0 {
		c.Generation.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = DefaultTemperature
	}
	if c.Generation.MaxOperations <= 0 {
		c.Generation.MaxOperations = DefaultMaxOperations
	}

	c.index = make(map[string]Preset)
	groups := []struct {
		cat   Category
		items []Preset
	}{
		{CategoryPrimitive, c.Primitives},
		{CategoryReady, c.ReadyEffects},
		{CategorySpellbook, c.Spellbook},
	}
	for _, g := range groups {
		for i := range g.items {
			p := &g.items[i]
			p.Name = strings.TrimSpace(p.Name)
			p.Command = strings.TrimSpace(p.Command)
			if p.Name == "" {
				return nil, fmt.Errorf("LoadCatalog: validation: %s[%d]: empty name", g.cat, i)
			}
			if p.Command == "" {
				return nil, fmt.Errorf("LoadCatalog: validation: %s %q: empty command", g.cat, p.Name)
			}
			p.Category = g.cat
			c.index[normalize(p.Name)] = *p
		}
	}

	span.SetAttributes(
		attribute.Int("presets.primitives", len(c.Primitives)),
		attribute.Int("presets.ready_effects", len(c.ReadyEffects)),
		attribute.Int("presets.spellbook", len(c.Spellbook)),
	)

	return &c, nil
}
