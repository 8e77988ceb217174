// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gencache persists generated command text keyed by vibe.
//
// Generation is the slow, rate-limited step of turning a vibe into a
// command. The same phrase typed twice should not cost a second request, so
// the cleaned (unvalidated) text is kept in BadgerDB with a TTL. Validation
// still runs on every hit, so grammar changes take effect without flushing
// the cache.
//
// Storage layout:
//
//	alchemist/gen/v1/{sha256(normalized vibe)}  →  gob-encoded Entry
//	                                                TTL: 7 days by default
package gencache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is the lifetime of a cached generation when none is configured.
const DefaultTTL = 7 * 24 * time.Hour

// KeyPrefix is prepended to the vibe hash to form the BadgerDB key.
// Versioned so a future Entry layout does not collide.
const KeyPrefix = "alchemist/gen/v1/"

// ErrNotFound is returned by Get when the vibe has no live entry.
var ErrNotFound = errors.New("gencache: not found")

// Entry is one cached generation.
type Entry struct {
	// Vibe is the normalized phrase that produced Command.
	Vibe string

	// Command is the cleaned generator output, before validation.
	Command string

	// CreatedAtMilli is the write time in Unix milliseconds.
	CreatedAtMilli int64
}

// Options configures Open.
type Options struct {
	// Dir is the BadgerDB directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// ReadOnly opens an existing directory without writing to it.
	ReadOnly bool

	// TTL applies to every Put. Zero uses DefaultTTL.
	TTL time.Duration

	Logger *slog.Logger
}

// Store is a BadgerDB-backed generation cache.
//
// Description:
//
//	Keys are the SHA256 of the normalized vibe (lowercase, single spaces),
//	so "Neon  Rot" and "neon rot" share an entry. Expiry is enforced by
//	BadgerDB; an expired key reads as ErrNotFound.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger
}

// Open opens (or creates) a generation cache.
//
// Inputs:
//   - opts: Location and TTL. Dir must be set unless InMemory is true.
//
// Outputs:
//   - *Store: The open store. The caller must Close it.
//   - error: Non-nil if the directory is missing or BadgerDB fails to open.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("gencache: directory is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Dir).WithLogger(nil)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	if opts.ReadOnly {
		bopts = bopts.WithReadOnly(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("gencache: open %q: %w", opts.Dir, err)
	}

	return &Store{
		db:     db,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "gencache")),
	}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("gencache: close: %w", err)
	}
	return nil
}

// TTL returns the lifetime applied to new entries.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the cached generation for vibe.
//
// Outputs:
//   - Entry: The cached entry on a hit.
//   - error: ErrNotFound on a miss or expiry, otherwise a storage or decode
//     failure.
func (s *Store) Get(ctx context.Context, vibe string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	key := Key(vibe)
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		lookupsTotal.WithLabelValues("miss").Inc()
		s.logger.Debug("miss", slog.String("hash", shortHash(key)))
		return Entry{}, ErrNotFound
	}
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		return Entry{}, fmt.Errorf("gencache: get: %w", err)
	}

	e, err := decode(raw)
	if err != nil {
		lookupsTotal.WithLabelValues("error").Inc()
		return Entry{}, fmt.Errorf("gencache: decode: %w", err)
	}

	lookupsTotal.WithLabelValues("hit").Inc()
	s.logger.Debug("hit", slog.String("hash", shortHash(key)))
	return e, nil
}

// Put stores command as the generation for vibe, replacing any earlier
// entry and resetting its TTL. Blank commands are not stored.
func (s *Store) Put(ctx context.Context, vibe, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(command) == "" {
		return nil
	}

	raw, err := encode(Entry{
		Vibe:           Normalize(vibe),
		Command:        command,
		CreatedAtMilli: time.Now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("gencache: encode: %w", err)
	}

	key := Key(vibe)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key, raw).WithTTL(s.ttl))
	})
	if err != nil {
		writesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("gencache: put: %w", err)
	}

	writesTotal.WithLabelValues("success").Inc()
	s.logger.Debug("saved",
		slog.String("hash", shortHash(key)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

// Record is one entry as seen by Iterate.
type Record struct {
	Key   string
	Entry Entry

	// ExpiresAt is zero when the key has no expiry.
	ExpiresAt time.Time

	// Size is the encoded value length in bytes.
	Size int

	// Err is set when the value could not be decoded; Entry is zero then.
	Err error
}

// Iterate calls fn for every live entry in key order. Undecodable values
// are reported through Record.Err rather than aborting the walk. A non-nil
// error from fn stops iteration and is returned unchanged.
func (s *Store) Iterate(ctx context.Context, fn func(Record) error) error {
	prefix := []byte(KeyPrefix)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			rec := Record{Key: string(item.KeyCopy(nil))}
			if exp := item.ExpiresAt(); exp > 0 {
				rec.ExpiresAt = time.Unix(int64(exp), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				rec.Err = fmt.Errorf("copy value: %w", err)
			} else {
				rec.Size = len(raw)
				rec.Entry, rec.Err = decode(raw)
			}

			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// Keys
// =============================================================================

// Normalize lowercases vibe and collapses whitespace runs to one space.
func Normalize(vibe string) string {
	return strings.Join(strings.Fields(strings.ToLower(vibe)), " ")
}

// Key builds the BadgerDB key for vibe.
func Key(vibe string) []byte {
	sum := sha256.Sum256([]byte(Normalize(vibe)))
	return []byte(KeyPrefix + hex.EncodeToString(sum[:]))
}

// shortHash returns the first 8 hex characters of a key's hash for logs.
func shortHash(key []byte) string {
	h := strings.TrimPrefix(string(key), KeyPrefix)
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}

func encode(e Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (Entry, error) {
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
