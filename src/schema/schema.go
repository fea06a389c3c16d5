// Package schema implements the schema-versioned persistence layer: table
// definitions, forward-only migrations, row CRUD, and CVE reconstruction
// from result rows, registered by integer PRAGMA user_version.
package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/search"
)

// DB is the subset of *bun.DB / *bun.Tx that schema operations need,
// satisfied by both so CRUD code runs identically inside or outside a
// transaction.
type DB interface {
	bun.IDB
}

// Schema is a single versioned persistence layout. Implementations are
// registered in the package-level registry by Version().
type Schema interface {
	Version() int

	// Create issues the DDL for a brand new database at this version.
	Create(ctx context.Context, db DB) error

	// FeedID returns the rowid of the feeds row named name, inserting it
	// (with INSERT OR IGNORE + SELECT rowid fallback) if absent.
	FeedID(ctx context.Context, db DB, name string) (int64, error)

	// StampFeed records last_modified/last_checked for a feed.
	StampFeed(ctx context.Context, db DB, feedID int64, lastModified, lastChecked *int64) error

	// FeedTimestamps reads last_modified/last_checked for a feed.
	FeedTimestamps(ctx context.Context, db DB, feedID int64) (lastModified, lastChecked *int64, err error)

	// Add upserts one CVE, owned by feedID.
	Add(ctx context.Context, db DB, c cve.CVE, feedID int64) error

	// CVEIter reconstructs CVEs from the rows produced by a query over
	// Columns()/FromTables(), in this schema's column order, filling in
	// descriptions/references with a per-CVE follow-up query.
	CVEIter(ctx context.Context, db DB, rows *sql.Rows) ([]cve.CVE, error)

	// Columns and FromTables are the base SELECT clauses the query
	// compiler finalizes against.
	Columns() string
	FromTables() string

	// SupportsCPEQuery reports whether this schema version can fold a CPE
	// predicate into the join shape (only v1+ carries the cpes table).
	SupportsCPEQuery() bool

	// SortColumn maps a search.Sort to a column expression in this
	// schema's FromTables join.
	SortColumn(s search.Sort) string
}

// Migration is implemented by a schema that knows how to upgrade from its
// immediate predecessor.
type Migration interface {
	// MigrateFromPrevious either performs the upgrade and returns true,
	// or declines (returning false, nil) leaving the database at the
	// older version.
	MigrateFromPrevious(ctx context.Context, db DB, interactive bool) (bool, error)
}

var registry = map[int]func() Schema{}

func register(version int, factory func() Schema) {
	registry[version] = factory
}

// Latest returns the highest registered schema version.
func Latest() int {
	latest := -1
	for v := range registry {
		if v > latest {
			latest = v
		}
	}
	return latest
}

func byVersion(v int) (Schema, bool) {
	factory, ok := registry[v]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// ErrUnknownVersion is returned by Open when the database's stored
// user_version has no registered schema.
type ErrUnknownVersion struct{ Version int }

func (e *ErrUnknownVersion) Error() string {
	return fmt.Sprintf("schema: unknown schema version %d", e.Version)
}

// Prompter asks the caller whether to perform an interactive upgrade; it
// is the seam used to replace a bare terminal confirm() with whatever the
// host program wants (CLI flag, prompt, always-yes in tests).
type Prompter func(fromVersion, toVersion int) bool

// Open consults PRAGMA user_version and returns the Schema to use: an
// unregistered stored version is a fatal error; a blank database (version
// 0 with no cves table) is created at the latest version; an older stored
// version is migrated forward only if interactive is true and prompt
// approves each step, otherwise the database is used at its stored
// version.
func Open(ctx context.Context, db DB, interactive bool, prompt Prompter) (Schema, error) {
	v, err := userVersion(ctx, db)
	if err != nil {
		return nil, err
	}

	current, ok := byVersion(v)
	if !ok {
		return nil, &ErrUnknownVersion{Version: v}
	}

	if v == 0 {
		exists, err := tableExists(ctx, db, "cves")
		if err != nil {
			return nil, err
		}
		if !exists {
			latest, ok := byVersion(Latest())
			if !ok {
				return nil, fmt.Errorf("schema: no schema registered")
			}
			if err := latest.Create(ctx, db); err != nil {
				return nil, err
			}
			if err := setUserVersion(ctx, db, latest.Version()); err != nil {
				return nil, err
			}
			return latest, nil
		}
	}

	for current.Version() < Latest() {
		next, ok := byVersion(current.Version() + 1)
		if !ok {
			break
		}
		migration, ok := next.(Migration)
		if !ok {
			break
		}
		if !interactive {
			break
		}
		if prompt != nil && !prompt(current.Version(), next.Version()) {
			break
		}
		applied, err := migration.MigrateFromPrevious(ctx, db, interactive)
		if err != nil {
			return nil, err
		}
		if !applied {
			break
		}
		if err := setUserVersion(ctx, db, next.Version()); err != nil {
			return nil, err
		}
		current = next
	}

	return current, nil
}

func userVersion(ctx context.Context, db DB) (int, error) {
	var v int
	if err := db.NewRaw("PRAGMA user_version").Scan(ctx, &v); err != nil {
		return 0, fmt.Errorf("schema: reading user_version: %w", err)
	}
	return v, nil
}

func setUserVersion(ctx context.Context, db DB, v int) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v))
	if err != nil {
		return fmt.Errorf("schema: setting user_version: %w", err)
	}
	return nil
}

func tableExists(ctx context.Context, db DB, name string) (bool, error) {
	var count int
	err := db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(ctx, &count)
	if err != nil {
		return false, fmt.Errorf("schema: checking table %q: %w", name, err)
	}
	return count > 0, nil
}
