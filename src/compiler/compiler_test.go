package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailofbits/cvedb/src/compiler"
	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/schema"
	"github.com/trailofbits/cvedb/src/search"
)

func TestToQueryTermProducesLike(t *testing.T) {
	frag, params, ok := compiler.ToQuery(search.TermQuery{Text: "foo"})
	require.True(t, ok)
	require.Len(t, params, 2)
	assert.Contains(t, frag.ToSQL(), "LIKE")
}

type unknownQuery struct{}

func (unknownQuery) Matches(c cve.CVE) bool { return false }

func TestToQueryUnknownTypeFails(t *testing.T) {
	_, _, ok := compiler.ToQuery(unknownQuery{})
	assert.False(t, ok)
}

func TestCompileFeedScoping(t *testing.T) {
	sel, ok := compiler.Compile(fakeSchema{}, search.TermQuery{Text: "x"}, []int64{1, 2}, nil, false, nil)
	require.True(t, ok)
	assert.Contains(t, sel.ToSQL(), "c.feed IN (?, ?)")
}

func TestCompileRejectsCPEQueryWhenUnsupported(t *testing.T) {
	pattern := cpe.Wildcard()
	_, ok := compiler.Compile(fakeSchema{}, search.CPEQuery{Pattern: pattern}, nil, nil, false, nil)
	assert.False(t, ok)
}

func TestCompileFoldsCPEQueryWhenSupported(t *testing.T) {
	pattern := cpe.Wildcard()
	pattern.Vendor = cpe.ConcreteAV("acme")
	sel, ok := compiler.Compile(fakeSchema{cpeSupport: true}, search.CPEQuery{Pattern: pattern}, nil, nil, false, nil)
	require.True(t, ok)
	assert.Contains(t, sel.ToSQL(), "INNER JOIN cpes p")
	assert.Contains(t, sel.ToSQL(), "p.vendor = ?")
}

// fakeSchema satisfies schema.Schema by embedding a nil interface: Compile
// only ever calls Columns/FromTables/SupportsCPEQuery/SortColumn, all
// overridden below, so the embedded nil is never dereferenced.
type fakeSchema struct {
	schema.Schema
	cpeSupport bool
}

func (f fakeSchema) Columns() string        { return "c.id" }
func (f fakeSchema) FromTables() string     { return "descriptions d INNER JOIN cves c ON d.cve = c.id" }
func (f fakeSchema) SupportsCPEQuery() bool { return f.cpeSupport }
func (f fakeSchema) SortColumn(s search.Sort) string { return "c.id" }
