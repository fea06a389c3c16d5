package search_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/search"
)

func TestTermQueryMatchesDescriptionAndID(t *testing.T) {
	c := cve.CVE{
		CVEID:        "CVE-2021-9999",
		Descriptions: []cve.Description{{Lang: "en", Value: "a remote code execution flaw"}},
	}
	assert.True(t, search.TermQuery{Text: "remote"}.Matches(c))
	assert.True(t, search.TermQuery{Text: "2021-9999"}.Matches(c))
	assert.False(t, search.TermQuery{Text: "sql injection"}.Matches(c))
}

func TestTermQueryCaseSensitivity(t *testing.T) {
	c := cve.CVE{Descriptions: []cve.Description{{Lang: "en", Value: "Heap Overflow"}}}
	assert.True(t, search.TermQuery{Text: "heap"}.Matches(c))
	assert.False(t, search.TermQuery{Text: "heap", CaseSensitive: true}.Matches(c))
	assert.True(t, search.TermQuery{Text: "Heap", CaseSensitive: true}.Matches(c))
}

func TestBeforePublishedDateTruncatesToDate(t *testing.T) {
	cutoff := time.Date(2020, 6, 15, 0, 0, 0, 0, time.UTC)
	c := cve.CVE{PublishedDate: time.Date(2020, 6, 15, 23, 59, 0, 0, time.UTC)}
	// Before* truncates the CVE timestamp to a calendar date before comparing,
	// so a CVE published later the same day as the cutoff still matches.
	assert.True(t, search.BeforePublishedDateQuery{Date: cutoff}.Matches(c))
}

func TestAfterPublishedDateDoesNotTruncate(t *testing.T) {
	cutoff := time.Date(2020, 6, 15, 12, 0, 0, 0, time.UTC)
	before := cve.CVE{PublishedDate: time.Date(2020, 6, 15, 6, 0, 0, 0, time.UTC)}
	assert.False(t, search.AfterPublishedDateQuery{Date: cutoff}.Matches(before))

	after := cve.CVE{PublishedDate: time.Date(2020, 6, 15, 18, 0, 0, 0, time.UTC)}
	assert.True(t, search.AfterPublishedDateQuery{Date: cutoff}.Matches(after))
}

func TestAndOrQueries(t *testing.T) {
	c := cve.CVE{CVEID: "CVE-2020-0001", Descriptions: []cve.Description{{Lang: "en", Value: "buffer overflow"}}}

	and := search.AndQuery{Sub: []search.Query{
		search.TermQuery{Text: "buffer"},
		search.TermQuery{Text: "overflow"},
	}}
	assert.True(t, and.Matches(c))

	and2 := search.AndQuery{Sub: []search.Query{
		search.TermQuery{Text: "buffer"},
		search.TermQuery{Text: "sql"},
	}}
	assert.False(t, and2.Matches(c))

	or := search.OrQuery{Sub: []search.Query{
		search.TermQuery{Text: "sql"},
		search.TermQuery{Text: "buffer"},
	}}
	assert.True(t, or.Matches(c))
}

func TestMakeQuery(t *testing.T) {
	assert.Nil(t, search.MakeQuery())

	single := search.MakeQuery("foo")
	if _, ok := single.(search.TermQuery); !ok {
		t.Fatalf("expected TermQuery, got %T", single)
	}

	multi := search.MakeQuery("foo", "bar")
	or, ok := multi.(search.OrQuery)
	if !ok {
		t.Fatalf("expected OrQuery, got %T", multi)
	}
	assert.Len(t, or.Sub, 2)
}

func TestSortCVEsByImpactDescendingWithCVEIDTiebreak(t *testing.T) {
	mk := func(id string, score float64) cve.CVE {
		impact := cve.ParseImpact("CVSS:3.1/AV:N/AC:L/PR:N/UI:N/S:U/C:H/I:H/A:H", score)
		return cve.CVE{CVEID: id, Impact: &impact}
	}
	cves := []cve.CVE{mk("A", 9.5), mk("B", 7.0), mk("C", 7.0)}

	search.SortCVEs(cves, []search.Sort{search.SortImpact, search.SortCVEID}, true)

	ids := []string{cves[0].CVEID, cves[1].CVEID, cves[2].CVEID}
	assert.Equal(t, []string{"A", "C", "B"}, ids)
}
