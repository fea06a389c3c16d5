package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/trailofbits/cvedb/src/nvd"
	"github.com/trailofbits/cvedb/src/schema"
	"github.com/trailofbits/cvedb/src/store"
)

// CVEdbService wraps an open store.Session for the lifetime of a CLI
// invocation or a daemon process.
type CVEdbService struct {
	Session *store.Session
}

func defaultDatabasePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "cvedb", "cvedb.sqlite")
	}
	return store.DefaultDatabasePath
}

// CreateCVEdbService opens the session at path (or the default path if
// empty), creating the on-disk schema if needed.
func CreateCVEdbService(ctx context.Context, path string, interactive, showProgress bool) (*CVEdbService, error) {
	if path == "" {
		path = defaultDatabasePath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cvedb: creating database directory: %w", err)
	}

	prompt := schema.Prompter(func(from, to int) bool {
		if !interactive {
			return false
		}
		fmt.Fprintf(os.Stderr, "database schema is version %d; upgrade to %d? [y/N] ", from, to)
		var answer string
		fmt.Scanln(&answer)
		return answer == "y" || answer == "Y"
	})

	fetcher := nvd.HTTPFetcher(nil)
	if showProgress {
		fetcher = nvd.ProgressFetcher(nil)
	}

	session, err := store.Open(ctx, path, nil, fetcher, interactive, prompt)
	if err != nil {
		return nil, err
	}

	log.Printf("cvedb: opened database at %s", path)
	return &CVEdbService{Session: session}, nil
}

// Close closes the underlying session.
func (s *CVEdbService) Close() {
	if s.Session != nil {
		if err := s.Session.Close(); err != nil {
			log.Printf("cvedb: error closing database: %v", err)
		}
	}
}
