// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the Alchemist service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when a variable is unset or unparsable.
const (
	DefaultPort          = 8080
	DefaultEngineBinary  = "convert"
	DefaultEngineTimeout = 30 * time.Second
	DefaultMaxPixels     = 4096 * 4096
	DefaultCacheTTL      = 7 * 24 * time.Hour
	DefaultRatePerMinute = 15
)

// CacheDisabled as ALCHEMIST_CACHE_DIR turns the generation cache off.
const CacheDisabled = "off"

// Config holds all service settings.
//
// Description:
//
//	Loaded once at startup by Load. Each field names its variable in the
//	env tag; validation errors are reported by that name.
//
// Thread Safety: Config is a value type. Safe to copy and share after loading.
type Config struct {
	// Port is the HTTP listen port.
	// Env: ALCHEMIST_PORT (default: 8080)
	Port int `env:"ALCHEMIST_PORT" validate:"min=1,max=65535"`

	// Debug enables gin debug mode and request logging.
	// Env: ALCHEMIST_DEBUG (default: "false")
	Debug bool `env:"ALCHEMIST_DEBUG"`

	// EngineBinary is the image program run by the engine.
	// Env: ALCHEMIST_ENGINE_BINARY (default: "convert")
	EngineBinary string `env:"ALCHEMIST_ENGINE_BINARY" validate:"required"`

	// EngineTimeout bounds one engine run.
	// Env: ALCHEMIST_ENGINE_TIMEOUT (default: 30s)
	EngineTimeout time.Duration `env:"ALCHEMIST_ENGINE_TIMEOUT" validate:"gte=100ms,lte=10m"`

	// MaxPixels bounds width*height of a render job.
	// Env: ALCHEMIST_MAX_PIXELS (default: 16777216)
	MaxPixels int `env:"ALCHEMIST_MAX_PIXELS" validate:"gt=0"`

	// TempDir is where engine scratch directories are created. Empty uses
	// the system default.
	// Env: ALCHEMIST_TEMP_DIR
	TempDir string `env:"ALCHEMIST_TEMP_DIR" validate:"omitempty,dir"`

	// CacheDir is the generation cache directory. Empty disables the cache.
	// Env: ALCHEMIST_CACHE_DIR (default: ~/.aleutian/cache/alchemist, "off" disables)
	CacheDir string `env:"ALCHEMIST_CACHE_DIR"`

	// CacheTTL is the lifetime of a cached generation.
	// Env: ALCHEMIST_CACHE_TTL (default: 168h)
	CacheTTL time.Duration `env:"ALCHEMIST_CACHE_TTL" validate:"gte=1m"`

	// PresetsFile is an optional catalogue override, hot-reloaded.
	// Env: ALCHEMIST_PRESETS_FILE
	PresetsFile string `env:"ALCHEMIST_PRESETS_FILE" validate:"omitempty,file"`

	// RatePerMinute limits generation requests. Zero disables limiting.
	// Env: ALCHEMIST_RATE_PER_MINUTE (default: 15)
	RatePerMinute int `env:"ALCHEMIST_RATE_PER_MINUTE" validate:"gte=0"`

	// AuditEnabled controls validation audit logging.
	// Env: ALCHEMIST_AUDIT_ENABLED (default: "true")
	AuditEnabled bool `env:"ALCHEMIST_AUDIT_ENABLED"`

	// AuditHash attaches a SHA256 of the raw text to audit entries.
	// Env: ALCHEMIST_AUDIT_HASH (default: "false")
	AuditHash bool `env:"ALCHEMIST_AUDIT_HASH"`

	// GeminiAPIKey enables generation. Empty runs offline.
	// Env: GEMINI_API_KEY
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	// GeminiModel overrides the default model.
	// Env: GEMINI_MODEL
	GeminiModel string `env:"GEMINI_MODEL"`
}

// Load reads the configuration from environment variables and validates it.
//
// Outputs:
//   - *Config: The populated configuration.
//   - error: A validation failure naming the offending variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envInt("ALCHEMIST_PORT", DefaultPort),
		Debug:         envBool("ALCHEMIST_DEBUG", false),
		EngineBinary:  envString("ALCHEMIST_ENGINE_BINARY", DefaultEngineBinary),
		EngineTimeout: envDuration("ALCHEMIST_ENGINE_TIMEOUT", DefaultEngineTimeout),
		MaxPixels:     envInt("ALCHEMIST_MAX_PIXELS", DefaultMaxPixels),
		TempDir:       os.Getenv("ALCHEMIST_TEMP_DIR"),
		CacheDir:      cacheDir(),
		CacheTTL:      envDuration("ALCHEMIST_CACHE_TTL", DefaultCacheTTL),
		PresetsFile:   os.Getenv("ALCHEMIST_PRESETS_FILE"),
		RatePerMinute: envInt("ALCHEMIST_RATE_PER_MINUTE", DefaultRatePerMinute),
		AuditEnabled:  envBool("ALCHEMIST_AUDIT_ENABLED", true),
		AuditHash:     envBool("ALCHEMIST_AUDIT_HASH", false),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks field constraints. Errors name the environment variable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

// GenerationEnabled reports whether a Gemini key is configured.
func (c *Config) GenerationEnabled() bool {
	return c.GeminiAPIKey != ""
}

// CacheEnabled reports whether the generation cache should be opened.
func (c *Config) CacheEnabled() bool {
	return c.CacheDir != ""
}

// LogValue implements slog.LogValuer. The API key is never logged.
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("port", c.Port),
		slog.Bool("debug", c.Debug),
		slog.String("engine_binary", c.EngineBinary),
		slog.Duration("engine_timeout", c.EngineTimeout),
		slog.Int("max_pixels", c.MaxPixels),
		slog.String("cache_dir", c.CacheDir),
		slog.Duration("cache_ttl", c.CacheTTL),
		slog.String("presets_file", c.PresetsFile),
		slog.Int("rate_per_minute", c.RatePerMinute),
		slog.Bool("audit_enabled", c.AuditEnabled),
		slog.Bool("generation_enabled", c.GenerationEnabled()),
		slog.String("gemini_model", c.GeminiModel),
	)
}

// cacheDir resolves ALCHEMIST_CACHE_DIR, falling back to a directory under
// the user's home.
func cacheDir() string {
	dir := os.Getenv("ALCHEMIST_CACHE_DIR")
	if strings.EqualFold(dir, CacheDisabled) {
		return ""
	}
	if dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".aleutian", "cache", "alchemist")
}

// envString reads a string environment variable with a default value.
func envString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envBool reads a boolean environment variable with a default value.
func envBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

// envInt reads an integer environment variable with a default value.
func envInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// envDuration reads a time.ParseDuration value with a default.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
