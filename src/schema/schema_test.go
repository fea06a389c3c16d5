package schema_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/trailofbits/cvedb/src/applicability"
	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/schema"
)

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	t.Cleanup(func() { sqldb.Close() })
	return bun.NewDB(sqldb, sqlitedialect.New())
}

func TestOpenBootstrapsBlankDatabaseAtLatest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	sc, err := schema.Open(ctx, db, false, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.Latest(), sc.Version())
}

func TestOpenDeclinesNonInteractiveMigration(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Bootstrap a v0 database by hand, then reopen non-interactively.
	_, err := db.ExecContext(ctx, `
		CREATE TABLE feeds (name TEXT UNIQUE NOT NULL, last_modified INTEGER NULL, last_checked INTEGER NULL);
		CREATE TABLE cves (id TEXT NOT NULL, feed INTEGER NOT NULL, published INTEGER NOT NULL, last_modified INTEGER NOT NULL, impact_vector TEXT NULL, base_score REAL NULL, severity INTEGER NOT NULL, PRIMARY KEY (id, feed));
		CREATE TABLE descriptions (cve TEXT NOT NULL, lang TEXT NOT NULL DEFAULT 'en', description TEXT NOT NULL);
	`)
	require.NoError(t, err)

	sc, err := schema.Open(ctx, db, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sc.Version())
}

func TestFeedIDIsStableAndDeduplicated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sc, err := schema.Open(ctx, db, false, nil)
	require.NoError(t, err)

	id1, err := sc.FeedID(ctx, db, "2020")
	require.NoError(t, err)
	id2, err := sc.FeedID(ctx, db, "2020")
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestStampAndReadFeedTimestamps(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sc, err := schema.Open(ctx, db, false, nil)
	require.NoError(t, err)

	id, err := sc.FeedID(ctx, db, "2021")
	require.NoError(t, err)

	now := time.Now().Unix()
	require.NoError(t, sc.StampFeed(ctx, db, id, &now, &now))

	lm, lc, err := sc.FeedTimestamps(ctx, db, id)
	require.NoError(t, err)
	require.NotNil(t, lm)
	require.NotNil(t, lc)
	assert.Equal(t, now, *lm)
}

func TestAddAndCVEIterRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	sc, err := schema.Open(ctx, db, false, nil)
	require.NoError(t, err)

	id, err := sc.FeedID(ctx, db, "2020")
	require.NoError(t, err)

	pattern, err := cpe.Parse("cpe:2.3:a:acme:widget:1.0:*:*:*:*:*:*:*")
	require.NoError(t, err)

	c := cve.CVE{
		CVEID:            "CVE-2020-1234",
		PublishedDate:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		LastModifiedDate: time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
		Descriptions:     []cve.Description{{Lang: "en", Value: "a bug"}},
		References:       []cve.Reference{{Name: "ref", URL: "https://example.com"}},
		Configurations:   applicability.Configurations{Nodes: []applicability.Node{applicability.CPELeaf{CPE: pattern}}},
	}
	require.NoError(t, sc.Add(ctx, db, c, id))

	rows, err := db.QueryContext(ctx, "SELECT "+sc.Columns()+" FROM "+sc.FromTables()+" WHERE c.id = ?", c.CVEID)
	require.NoError(t, err)
	defer rows.Close()

	out, err := sc.CVEIter(ctx, db, rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, c.CVEID, out[0].CVEID)
	assert.Equal(t, "a bug", out[0].Descriptions[0].Value)

	if sc.SupportsCPEQuery() {
		require.Len(t, out[0].References, 1)
		assert.True(t, out[0].Configurations.Match(pattern))
	}
}
