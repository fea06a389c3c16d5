package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/search"
)

func init() {
	register(0, func() Schema { return &schemaV0{} })
}

const createV0SQL = `
CREATE TABLE IF NOT EXISTS feeds (
	name TEXT UNIQUE NOT NULL,
	last_modified INTEGER NULL,
	last_checked INTEGER NULL
);
CREATE TABLE IF NOT EXISTS cves (
	id TEXT NOT NULL,
	feed INTEGER NOT NULL REFERENCES feeds(rowid),
	published INTEGER NOT NULL,
	last_modified INTEGER NOT NULL,
	impact_vector TEXT NULL,
	base_score REAL NULL,
	severity INTEGER NOT NULL,
	PRIMARY KEY (id, feed)
);
CREATE TABLE IF NOT EXISTS descriptions (
	cve TEXT NOT NULL,
	lang TEXT NOT NULL DEFAULT 'en',
	description TEXT NOT NULL
);
`

// schemaV0 is the original layout: feeds, cves, descriptions only. It
// predates references and CPE indexing, so CPEQuery cannot be compiled to
// SQL at this version.
type schemaV0 struct{}

func (s *schemaV0) Version() int { return 0 }

func (s *schemaV0) Create(ctx context.Context, db DB) error {
	_, err := db.ExecContext(ctx, createV0SQL)
	if err != nil {
		return fmt.Errorf("schema v0: create: %w", err)
	}
	return nil
}

func (s *schemaV0) FeedID(ctx context.Context, db DB, name string) (int64, error) {
	return feedID(ctx, db, name)
}

func feedID(ctx context.Context, db DB, name string) (int64, error) {
	_, err := db.ExecContext(ctx, "INSERT OR IGNORE INTO feeds (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("schema: inserting feed %q: %w", name, err)
	}
	var rowid int64
	err = db.NewRaw("SELECT rowid FROM feeds WHERE name = ?", name).Scan(ctx, &rowid)
	if err != nil {
		return 0, fmt.Errorf("schema: looking up feed %q: %w", name, err)
	}
	return rowid, nil
}

func (s *schemaV0) StampFeed(ctx context.Context, db DB, feedID int64, lastModified, lastChecked *int64) error {
	return stampFeed(ctx, db, feedID, lastModified, lastChecked)
}

func stampFeed(ctx context.Context, db DB, feedID int64, lastModified, lastChecked *int64) error {
	_, err := db.ExecContext(ctx,
		"UPDATE feeds SET last_modified = ?, last_checked = ? WHERE rowid = ?",
		lastModified, lastChecked, feedID)
	if err != nil {
		return fmt.Errorf("schema: stamping feed %d: %w", feedID, err)
	}
	return nil
}

func (s *schemaV0) FeedTimestamps(ctx context.Context, db DB, feedID int64) (*int64, *int64, error) {
	return feedTimestamps(ctx, db, feedID)
}

func feedTimestamps(ctx context.Context, db DB, feedID int64) (*int64, *int64, error) {
	var lastModified, lastChecked sql.NullInt64
	row := db.QueryRowContext(ctx, "SELECT last_modified, last_checked FROM feeds WHERE rowid = ?", feedID)
	if err := row.Scan(&lastModified, &lastChecked); err != nil {
		return nil, nil, fmt.Errorf("schema: reading feed %d timestamps: %w", feedID, err)
	}
	var lm, lc *int64
	if lastModified.Valid {
		lm = &lastModified.Int64
	}
	if lastChecked.Valid {
		lc = &lastChecked.Int64
	}
	return lm, lc, nil
}

func (s *schemaV0) Add(ctx context.Context, db DB, c cve.CVE, feedID int64) error {
	var vector *string
	var baseScore *float64
	if c.Impact != nil {
		vector = &c.Impact.Vector
		baseScore = &c.Impact.BaseScore
	}
	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cves (id, feed, published, last_modified, impact_vector, base_score, severity)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.CVEID, feedID, c.PublishedDate.Unix(), c.LastModifiedDate.Unix(), vector, baseScore, int(c.Severity()))
	if err != nil {
		return fmt.Errorf("schema v0: upserting cve %q: %w", c.CVEID, err)
	}

	_, err = db.ExecContext(ctx, "DELETE FROM descriptions WHERE cve = ?", c.CVEID)
	if err != nil {
		return fmt.Errorf("schema v0: clearing descriptions for %q: %w", c.CVEID, err)
	}
	for _, d := range c.Descriptions {
		_, err := db.ExecContext(ctx,
			"INSERT INTO descriptions (cve, lang, description) VALUES (?, ?, ?)",
			c.CVEID, d.Lang, d.Value)
		if err != nil {
			return fmt.Errorf("schema v0: inserting description for %q: %w", c.CVEID, err)
		}
	}
	return nil
}

// baseCVERow is the portion of a cves row shared by every schema version,
// in the column order Columns() always begins with.
type baseCVERow struct {
	id            string
	feedID        int64
	published     int64
	lastModified  int64
	impactVector  sql.NullString
	baseScore     sql.NullFloat64
	severity      int
}

func scanBaseCVERow(rows *sql.Rows, dest ...any) (baseCVERow, error) {
	var r baseCVERow
	args := append([]any{&r.id, &r.feedID, &r.published, &r.lastModified, &r.impactVector, &r.baseScore, &r.severity}, dest...)
	if err := rows.Scan(args...); err != nil {
		return baseCVERow{}, fmt.Errorf("schema: scanning cve row: %w", err)
	}
	return r, nil
}

func (r baseCVERow) toCVE() cve.CVE {
	c := cve.CVE{
		CVEID:            r.id,
		PublishedDate:    unixTime(r.published),
		LastModifiedDate: unixTime(r.lastModified),
	}
	if r.impactVector.Valid {
		impact := cve.ParseImpact(r.impactVector.String, r.baseScore.Float64)
		c.Impact = &impact
	}
	return c
}

// CVEIter reconstructs CVEs from rows produced over Columns()/FromTables().
// Descriptions are not part of the joined row (the join is one row per
// description); they are loaded per CVE with a follow-up query.
func (s *schemaV0) CVEIter(ctx context.Context, db DB, rows *sql.Rows) ([]cve.CVE, error) {
	var ids []string
	byID := map[string]cve.CVE{}
	for rows.Next() {
		r, err := scanBaseCVERow(rows)
		if err != nil {
			return nil, err
		}
		if _, ok := byID[r.id]; ok {
			continue
		}
		byID[r.id] = r.toCVE()
		ids = append(ids, r.id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]cve.CVE, 0, len(ids))
	for _, id := range ids {
		c := byID[id]
		descs, err := loadDescriptions(ctx, db, id)
		if err != nil {
			return nil, err
		}
		c.Descriptions = descs
		out = append(out, c)
	}
	return out, nil
}

func loadDescriptions(ctx context.Context, db DB, cveID string) ([]cve.Description, error) {
	descRows, err := db.QueryContext(ctx, "SELECT lang, description FROM descriptions WHERE cve = ?", cveID)
	if err != nil {
		return nil, fmt.Errorf("schema: loading descriptions for %q: %w", cveID, err)
	}
	defer descRows.Close()
	var out []cve.Description
	for descRows.Next() {
		var d cve.Description
		if err := descRows.Scan(&d.Lang, &d.Value); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, descRows.Err()
}

func (s *schemaV0) Columns() string { return "c.id, c.feed, c.published, c.last_modified, c.impact_vector, c.base_score, c.severity" }

func (s *schemaV0) FromTables() string {
	return "descriptions d INNER JOIN cves c ON d.cve = c.id"
}

func (s *schemaV0) SupportsCPEQuery() bool { return false }

func (s *schemaV0) SortColumn(sort search.Sort) string {
	switch sort {
	case search.SortCVEID:
		return "c.id"
	case search.SortDescription:
		return "d.description"
	case search.SortPublishedDate:
		return "c.published"
	case search.SortLastModifiedDate:
		return "c.last_modified"
	case search.SortImpact:
		return "c.base_score"
	case search.SortSeverity:
		return "c.severity"
	default:
		return "c.id"
	}
}
