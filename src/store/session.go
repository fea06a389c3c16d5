// Package store implements the database session: connection/transaction
// scoping, the configured set of per-year feeds, and the aggregate Data
// view that consults feed staleness and reloads out-of-date feeds under
// the active transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/mattn/go-sqlite3"

	"github.com/trailofbits/cvedb/src/compiler"
	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/feed"
	"github.com/trailofbits/cvedb/src/nvd"
	"github.com/trailofbits/cvedb/src/schema"
	"github.com/trailofbits/cvedb/src/search"
)

// DefaultDatabasePath is the store's default location when the caller
// does not provide one.
const DefaultDatabasePath = ".config/cvedb/cvedb.sqlite"

// Reporter receives progress notices during a reload; a nil Reporter is a
// no-op.
type Reporter func(feedName, message string)

// Session wraps a SQLite connection with a reentrant transaction scope: the
// first Enter opens a transaction, nested Enters share it, and the
// outermost Exit commits (or rolls back if an error occurred).
type Session struct {
	db     *bun.DB
	schema schema.Schema

	mu       sync.Mutex
	entries  int
	tx       *bun.Tx
	txFailed bool

	feeds   []*namedFeed
	fetcher nvd.Fetcher
}

type namedFeed struct {
	name   string
	feed   feed.Feed
	feedID int64
}

// Open opens (creating if necessary) the SQLite database at path, running
// schema migration per §4.7, and configures one database-backed feed
// (persistentFeed) per entry in
// years (default: 2002..current year, per the Open Question resolution in
// DESIGN.md).
func Open(ctx context.Context, path string, years []string, fetcher nvd.Fetcher, interactive bool, prompt schema.Prompter) (*Session, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	// A single connection avoids both SQLITE_BUSY under concurrent writers
	// and losing an in-memory database to a second, independent connection.
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())

	sc, err := schema.Open(ctx, db, interactive, prompt)
	if err != nil {
		db.Close()
		return nil, err
	}

	if fetcher == nil {
		fetcher = nvd.HTTPFetcher(nil)
	}

	if years == nil {
		years = defaultYears(time.Now())
	}

	s := &Session{db: db, schema: sc, fetcher: fetcher}
	for _, y := range years {
		if err := s.registerFeed(ctx, y); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func defaultYears(now time.Time) []string {
	var years []string
	for y := 2002; y <= now.Year(); y++ {
		years = append(years, fmt.Sprintf("%d", y))
	}
	return years
}

func (s *Session) registerFeed(ctx context.Context, name string) error {
	feedID, err := s.schema.FeedID(ctx, s.db, name)
	if err != nil {
		return err
	}
	s.feeds = append(s.feeds, &namedFeed{
		name:   name,
		feedID: feedID,
		feed:   s.persist(nvd.NewFeed(name, s.fetcher, false), feedID),
	})
	return nil
}

// RegisterCustomFeed installs a feed outside the NVD year rotation (e.g. a
// synthetic in-test feed); it participates in Reload and Search exactly
// like a year feed, via the same staleness protocol.
func (s *Session) RegisterCustomFeed(ctx context.Context, name string, reload feed.Reloader) error {
	feedID, err := s.schema.FeedID(ctx, s.db, name)
	if err != nil {
		return err
	}
	s.feeds = append(s.feeds, &namedFeed{
		name:   name,
		feedID: feedID,
		feed:   s.persist(&feed.BaseFeed{FeedName: name, Reload: reload}, feedID),
	})
	return nil
}

// persist wraps inner with the database-backed staleness check so that a
// freshly constructed Session never re-probes the network for a feed whose
// persisted last_checked is still within feed.UpdateIntervalSeconds.
func (s *Session) persist(inner feed.Feed, feedID int64) feed.Feed {
	return &persistentFeed{inner: inner, schema: s.schema, db: s.db, feedID: feedID}
}

// DB returns the active bun.IDB: the open transaction if one is in
// progress, else the plain connection.
func (s *Session) DB() bun.IDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Enter begins (or joins, if already nested) the session's single writer
// transaction.
func (s *Session) Enter(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == 0 {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: beginning transaction: %w", err)
		}
		s.tx = &tx
		s.txFailed = false
	}
	s.entries++
	return nil
}

// Exit ends the current Enter scope; the outermost Exit commits the
// transaction, or rolls it back if failed is true or any Enter scope
// reported failure.
func (s *Session) Exit(failed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == 0 {
		return fmt.Errorf("store: Exit without matching Enter")
	}
	if failed {
		s.txFailed = true
	}
	s.entries--
	if s.entries > 0 {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if tx == nil {
		return nil
	}
	if s.txFailed {
		return tx.Rollback()
	}
	return tx.Commit()
}

// Close closes the underlying connection.
func (s *Session) Close() error { return s.db.Close() }

// Reload reloads every out-of-date feed under the active transaction. A
// feed whose persisted last_checked is still within
// feed.UpdateIntervalSeconds is skipped without ever touching the network,
// regardless of in-memory staleness. A per-feed fetch failure is logged
// and non-fatal: the feed's last_checked is still stamped (so a flaky
// origin doesn't get re-probed on every invocation) but last_modified is
// left untouched, and the session proceeds to the next feed.
func (s *Session) Reload(ctx context.Context, report Reporter) error {
	// The staleness check reads through the plain connection, so it runs
	// before the transaction takes the pool's single connection.
	var pending []*namedFeed
	for _, nf := range s.feeds {
		if nf.feed.IsOutOfDate() {
			pending = append(pending, nf)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	if err := s.Enter(ctx); err != nil {
		return err
	}
	failed := false
	defer func() { _ = s.Exit(failed) }()

	bar := progressbar.Default(int64(len(pending)), "reloading feeds")
	for _, nf := range pending {
		if report != nil {
			report(nf.name, "checking")
		}
		data, err := nf.feed.Fetch(false)
		now := time.Now().Unix()
		if err != nil {
			log.Printf("store: reloading feed %q: %v", nf.name, err)
			if report != nil {
				report(nf.name, "error: "+err.Error())
			}
			if stampErr := s.stampChecked(ctx, nf.feedID, now); stampErr != nil {
				log.Printf("store: stamping feed %q as checked: %v", nf.name, stampErr)
			}
			bar.Add(1)
			continue
		}
		if report != nil {
			report(nf.name, fmt.Sprintf("upserting %d cves", data.Len()))
		}
		for _, c := range data.All() {
			if err := s.schema.Add(ctx, s.DB(), c, nf.feedID); err != nil {
				failed = true
				return fmt.Errorf("store: upserting into feed %q: %w", nf.name, err)
			}
		}
		modified := data.LastModified().Unix()
		if err := s.schema.StampFeed(ctx, s.DB(), nf.feedID, &modified, &now); err != nil {
			failed = true
			return err
		}
		if report != nil {
			report(nf.name, "fresh")
		}
		_ = bar.Add(1)
	}
	return nil
}

// stampChecked records a reload attempt's timestamp without disturbing the
// feed's last_modified column, used when a fetch fails outright.
func (s *Session) stampChecked(ctx context.Context, feedID int64, checkedAt int64) error {
	lastModified, _, err := s.schema.FeedTimestamps(ctx, s.DB(), feedID)
	if err != nil {
		return err
	}
	return s.schema.StampFeed(ctx, s.DB(), feedID, lastModified, &checkedAt)
}

// Feeds returns the names of every configured feed, in registration order
// (default: ascending year).
func (s *Session) Feeds() []string {
	names := make([]string, len(s.feeds))
	for i, nf := range s.feeds {
		names[i] = nf.name
	}
	return names
}

func (s *Session) feedIDs() []int64 {
	ids := make([]int64, len(s.feeds))
	for i, nf := range s.feeds {
		ids[i] = nf.feedID
	}
	return ids
}

// Search runs q against the store: it first attempts to compile q to SQL
// and execute it; if q cannot be compiled, or as a safety net against
// compiler approximations (imprecise LIKE filtering), it re-applies q
// in-memory to the materialized rows.
func (s *Session) Search(ctx context.Context, q search.Query, sorts []search.Sort, descending bool, limit *int) ([]cve.CVE, error) {
	sel, ok := compiler.Compile(s.schema, q, s.feedIDs(), sorts, descending, limit)
	if !ok {
		return s.searchInMemory(ctx, q, sorts, descending)
	}

	rows, err := s.DB().QueryContext(ctx, sel.ToSQL(), sel.Params...)
	if err != nil {
		return nil, fmt.Errorf("store: executing search: %w", err)
	}
	defer rows.Close()

	cves, err := s.schema.CVEIter(ctx, s.DB(), rows)
	if err != nil {
		return nil, err
	}

	out := cves[:0]
	for _, c := range cves {
		if q == nil || q.Matches(c) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Session) searchInMemory(ctx context.Context, q search.Query, sorts []search.Sort, descending bool) ([]cve.CVE, error) {
	var all []cve.CVE
	for _, nf := range s.feeds {
		data, err := nf.feed.Fetch(false)
		if err != nil {
			return nil, err
		}
		all = append(all, data.All()...)
	}
	var out []cve.CVE
	for _, c := range all {
		if q == nil || q.Matches(c) {
			out = append(out, c)
		}
	}
	search.SortCVEs(out, sorts, descending)
	return out, nil
}
