package sqlbuilder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trailofbits/cvedb/src/sqlbuilder"
)

func TestAndDropsTrueQuery(t *testing.T) {
	q := sqlbuilder.And(sqlbuilder.True, sqlbuilder.SimpleQuery{Text: "a = 1"})
	assert.Equal(t, "a = 1", q.ToSQL())
}

func TestAndFlattensNested(t *testing.T) {
	inner := sqlbuilder.And(sqlbuilder.SimpleQuery{Text: "a"}, sqlbuilder.SimpleQuery{Text: "b"})
	q := sqlbuilder.And(inner, sqlbuilder.SimpleQuery{Text: "c"})
	assert.Equal(t, "(a) AND (b) AND (c)", q.ToSQL())
}

func TestEmptyAndIsTrue(t *testing.T) {
	assert.Equal(t, sqlbuilder.True, sqlbuilder.And())
}

func TestOrOfSingleIsUnwrapped(t *testing.T) {
	q := sqlbuilder.Or(sqlbuilder.SimpleQuery{Text: "a = 1"})
	assert.Equal(t, "a = 1", q.ToSQL())
}

func TestSelectToSQL(t *testing.T) {
	sel := sqlbuilder.Select{
		Columns:    "c.id",
		FromTables: "cves c",
		Where:      sqlbuilder.SimpleQuery{Text: "c.id = ?"},
		OrderBy:    "c.id",
		Descending: true,
	}
	assert.Equal(t, "SELECT c.id FROM cves c WHERE c.id = ? ORDER BY c.id DESC", sel.ToSQL())
}

func TestExtractCPEQueriesRebuildsTree(t *testing.T) {
	placeholder := sqlbuilder.CPEPlaceholder{Pattern: "pattern"}
	tree := sqlbuilder.And(sqlbuilder.SimpleQuery{Text: "a = 1"}, placeholder)

	rest, extracted := sqlbuilder.ExtractCPEQueries(tree)

	assert.Equal(t, "a = 1", rest.ToSQL())
	assert.Len(t, extracted, 1)
	assert.Equal(t, "pattern", extracted[0].Pattern)
}

func TestExtractCPEQueriesAllExtractedLeavesNilTree(t *testing.T) {
	placeholder := sqlbuilder.CPEPlaceholder{Pattern: "only"}
	rest, extracted := sqlbuilder.ExtractCPEQueries(placeholder)
	assert.Nil(t, rest)
	assert.Len(t, extracted, 1)
}

func TestCPEPlaceholderToSQLPanics(t *testing.T) {
	assert.Panics(t, func() { sqlbuilder.CPEPlaceholder{}.ToSQL() })
}
