package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/trailofbits/cvedb/src/applicability"
	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/search"
)

func init() {
	register(1, func() Schema { return &schemaV1{schemaV0: &schemaV0{}} })
}

const createV1SQL = `
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
	configurations TEXT NULL,
	PRIMARY KEY (id, feed)
);
CREATE TABLE IF NOT EXISTS descriptions (
	cve TEXT NOT NULL,
	lang TEXT NOT NULL DEFAULT 'en',
	description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS refs (
	cve TEXT NOT NULL,
	name TEXT NULL,
	url TEXT NULL
);
CREATE TABLE IF NOT EXISTS cpes (
	part TEXT NOT NULL,
	vendor TEXT NOT NULL,
	product TEXT NOT NULL,
	version TEXT NOT NULL,
	update_str TEXT NOT NULL,
	edition TEXT NOT NULL,
	language TEXT NOT NULL,
	sw_edition TEXT NOT NULL,
	target_sw TEXT NOT NULL,
	target_hw TEXT NOT NULL,
	other TEXT NOT NULL,
	UNIQUE (part, vendor, product, version, update_str, edition, language, sw_edition, target_sw, target_hw, other)
);
CREATE TABLE IF NOT EXISTS configurations (
	cpe INTEGER NOT NULL REFERENCES cpes(rowid),
	cve TEXT NOT NULL REFERENCES cves(id),
	PRIMARY KEY (cpe, cve)
);
`

// schemaV1 adds references, a serialized configurations tree, and a
// deduplicated cpes/configurations join, enabling CPEQuery to be folded
// into the SQL join shape.
type schemaV1 struct {
	*schemaV0
}

func (s *schemaV1) Version() int { return 1 }

func (s *schemaV1) Create(ctx context.Context, db DB) error {
	_, err := db.ExecContext(ctx, createV1SQL)
	if err != nil {
		return fmt.Errorf("schema v1: create: %w", err)
	}
	return nil
}

// MigrateFromPrevious wipes and recreates the database at v1: v0 lacks
// references and CPE indexing, so there is no way to backfill them
// without a re-download. It proceeds only when interactive (an explicit
// operator confirmation), refusing otherwise per the forward-migration
// contract.
func (s *schemaV1) MigrateFromPrevious(ctx context.Context, db DB, interactive bool) (bool, error) {
	if !interactive {
		return false, nil
	}
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS cves; DROP TABLE IF EXISTS descriptions; DROP TABLE IF EXISTS feeds;")
	if err != nil {
		return false, fmt.Errorf("schema v1: wiping v0 tables: %w", err)
	}
	if err := s.Create(ctx, db); err != nil {
		return false, err
	}
	return true, nil
}

func (s *schemaV1) Add(ctx context.Context, db DB, c cve.CVE, feedID int64) error {
	var vector *string
	var baseScore *float64
	if c.Impact != nil {
		vector = &c.Impact.Vector
		baseScore = &c.Impact.BaseScore
	}
	configs := c.Configurations.Dumps()

	_, err := db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cves (id, feed, published, last_modified, impact_vector, base_score, severity, configurations)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CVEID, feedID, c.PublishedDate.Unix(), c.LastModifiedDate.Unix(), vector, baseScore, int(c.Severity()), configs)
	if err != nil {
		return fmt.Errorf("schema v1: upserting cve %q: %w", c.CVEID, err)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM descriptions WHERE cve = ?", c.CVEID); err != nil {
		return fmt.Errorf("schema v1: clearing descriptions for %q: %w", c.CVEID, err)
	}
	for _, d := range c.Descriptions {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO descriptions (cve, lang, description) VALUES (?, ?, ?)",
			c.CVEID, d.Lang, d.Value); err != nil {
			return fmt.Errorf("schema v1: inserting description for %q: %w", c.CVEID, err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM refs WHERE cve = ?", c.CVEID); err != nil {
		return fmt.Errorf("schema v1: clearing refs for %q: %w", c.CVEID, err)
	}
	for _, r := range c.References {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO refs (cve, name, url) VALUES (?, ?, ?)",
			c.CVEID, r.Name, r.URL); err != nil {
			return fmt.Errorf("schema v1: inserting ref for %q: %w", c.CVEID, err)
		}
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM configurations WHERE cve = ?", c.CVEID); err != nil {
		return fmt.Errorf("schema v1: clearing configurations for %q: %w", c.CVEID, err)
	}
	for _, leaf := range c.Configurations.VulnerableCPEs() {
		cpeRowID, err := cpeID(ctx, db, leaf)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx,
			"INSERT OR IGNORE INTO configurations (cpe, cve) VALUES (?, ?)",
			cpeRowID, c.CVEID); err != nil {
			return fmt.Errorf("schema v1: linking cpe to %q: %w", c.CVEID, err)
		}
	}
	return nil
}

// cpeID returns the rowid of c's row in the cpes table, inserting it
// (INSERT OR IGNORE + SELECT rowid fallback) if it is not already there.
func cpeID(ctx context.Context, db DB, c cpe.CPE) (int64, error) {
	fields := cpeFields(c)
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cpes
		 (part, vendor, product, version, update_str, edition, language, sw_edition, target_sw, target_hw, other)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7], fields[8], fields[9], fields[10])
	if err != nil {
		return 0, fmt.Errorf("schema v1: inserting cpe: %w", err)
	}
	var rowid int64
	err = db.NewRaw(
		`SELECT rowid FROM cpes WHERE part = ? AND vendor = ? AND product = ? AND version = ? AND update_str = ?
		 AND edition = ? AND language = ? AND sw_edition = ? AND target_sw = ? AND target_hw = ? AND other = ?`,
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7], fields[8], fields[9], fields[10],
	).Scan(ctx, &rowid)
	if err != nil {
		return 0, fmt.Errorf("schema v1: looking up cpe rowid: %w", err)
	}
	return rowid, nil
}

func cpeFields(c cpe.CPE) [11]string {
	return [11]string{
		c.Part.String(), c.Vendor.String(), c.Product.String(), c.Version.String(),
		c.Update.String(), c.Edition.String(), c.Lang.String(), c.SWEdition.String(),
		c.TargetSW.String(), c.TargetHW.String(), c.Other.String(),
	}
}

func (s *schemaV1) CVEIter(ctx context.Context, db DB, rows *sql.Rows) ([]cve.CVE, error) {
	var ids []string
	byID := map[string]cve.CVE{}
	for rows.Next() {
		var configs sql.NullString
		r, err := scanBaseCVERow(rows, &configs)
		if err != nil {
			return nil, err
		}
		if _, ok := byID[r.id]; ok {
			continue
		}
		c := r.toCVE()
		if configs.Valid && configs.String != "" {
			parsed, err := applicability.Loads(configs.String)
			if err != nil {
				return nil, fmt.Errorf("schema v1: parsing configurations for %q: %w", r.id, err)
			}
			c.Configurations = parsed
		}
		byID[r.id] = c
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

		refs, err := loadReferences(ctx, db, id)
		if err != nil {
			return nil, err
		}
		c.References = refs

		out = append(out, c)
	}
	return out, nil
}

func loadReferences(ctx context.Context, db DB, cveID string) ([]cve.Reference, error) {
	refRows, err := db.QueryContext(ctx, "SELECT name, url FROM refs WHERE cve = ?", cveID)
	if err != nil {
		return nil, fmt.Errorf("schema: loading refs for %q: %w", cveID, err)
	}
	defer refRows.Close()
	var out []cve.Reference
	for refRows.Next() {
		var r cve.Reference
		var name, url sql.NullString
		if err := refRows.Scan(&name, &url); err != nil {
			return nil, err
		}
		r.Name, r.URL = name.String, url.String
		out = append(out, r)
	}
	return out, refRows.Err()
}

func (s *schemaV1) Columns() string {
	return "c.id, c.feed, c.published, c.last_modified, c.impact_vector, c.base_score, c.severity, c.configurations"
}

func (s *schemaV1) FromTables() string {
	return "descriptions d INNER JOIN cves c ON d.cve = c.id"
}

func (s *schemaV1) SupportsCPEQuery() bool { return true }

func (s *schemaV1) SortColumn(sort search.Sort) string {
	return s.schemaV0.SortColumn(sort)
}
