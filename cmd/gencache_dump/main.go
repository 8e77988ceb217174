// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// gencache_dump inspects the Alchemist generation cache.
//
// The generation cache persists cleaned model replies per normalized vibe in
// BadgerDB between service restarts. This tool opens the cache read-only and
// prints each entry: key, vibe, cached command, age, TTL remaining and size.
//
// Usage:
//
//	gencache_dump [--path /path/to/alchemist/cache] [--vibe "melting clock"]
//
// If --path is not given, reads ALCHEMIST_CACHE_DIR from the environment,
// falling back to ~/.aleutian/cache/alchemist/. --vibe prints only the entry
// for that vibe.
//
// The service holds an exclusive lock on the directory; stop it first.
//
// Exit codes:
//
//	0 - success (including "empty cache" which prints a message and exits 0)
//	1 - error opening or reading the database
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianAlchemist/services/alchemist/gencache"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the generation cache directory (overrides ALCHEMIST_CACHE_DIR env var)")
	vibeFlag := flag.String("vibe", "", "Only show the entry for this vibe")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("ALCHEMIST_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".aleutian", "cache", "alchemist")
	}

	fmt.Printf("Generation cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. The service has not yet cached any generations.")
		fmt.Println("Start the Alchemist service with GEMINI_API_KEY set to populate the cache.")
		os.Exit(0)
	}

	store, err := gencache.Open(gencache.Options{Dir: dbPath, ReadOnly: true})
	if err != nil {
		fatalf("open cache at %s: %v", dbPath, err)
	}
	defer func() { _ = store.Close() }()

	wantKey := ""
	if *vibeFlag != "" {
		wantKey = string(gencache.Key(*vibeFlag))
	}

	var records []gencache.Record
	err = store.Iterate(context.Background(), func(r gencache.Record) error {
		if wantKey == "" || r.Key == wantKey {
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		fatalf("read cache: %v", err)
	}

	if len(records) == 0 {
		if wantKey != "" {
			fmt.Printf("\nNo cache entry for %q (key %s).\n", gencache.Normalize(*vibeFlag), wantKey)
			os.Exit(0)
		}
		fmt.Println("\nNo generation cache entries found.")
		fmt.Println("Either no vibe has reached the model yet, or every entry has expired.")
		os.Exit(0)
	}

	fmt.Printf("\nFound %d cache entr%s:\n", len(records), plural(len(records), "y", "ies"))
	fmt.Println(strings.Repeat("─", 80))

	var totalBytes int
	for i, r := range records {
		totalBytes += r.Size
		fmt.Printf("\n[%d] Key:      %s\n", i+1, r.Key)

		if r.ExpiresAt.IsZero() {
			fmt.Printf("    TTL:      no expiry set\n")
		} else if remaining := time.Until(r.ExpiresAt); remaining < 0 {
			fmt.Printf("    TTL:      EXPIRED (%s ago)\n", (-remaining).Round(time.Second))
		} else {
			fmt.Printf("    TTL:      %s remaining (expires %s)\n",
				remaining.Round(time.Second),
				r.ExpiresAt.Format("2006-01-02 15:04:05 MST"),
			)
		}

		fmt.Printf("    Raw size: %s\n", formatBytes(r.Size))

		if r.Err != nil {
			fmt.Printf("    DECODE ERROR: %v\n", r.Err)
			continue
		}

		fmt.Printf("    Vibe:     %s\n", r.Entry.Vibe)
		if r.Entry.CreatedAtMilli > 0 {
			created := time.UnixMilli(r.Entry.CreatedAtMilli)
			fmt.Printf("    Created:  %s (%s ago)\n",
				created.Format("2006-01-02 15:04:05 MST"),
				time.Since(created).Round(time.Second),
			)
		}
		fmt.Printf("    Command:  %s\n", truncate(r.Entry.Command, 200))
	}

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d entr%s, %s, cache path: %s\n",
		len(records), plural(len(records), "y", "ies"), formatBytes(totalBytes), dbPath)
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + " ..."
}

// formatBytes formats a byte count as a human-readable string.
func formatBytes(n int) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.1f MB (%d bytes)", float64(n)/1024/1024, n)
	case n >= 1024:
		return fmt.Sprintf("%.1f KB (%d bytes)", float64(n)/1024, n)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gencache_dump: "+format+"\n", args...)
	os.Exit(1)
}
