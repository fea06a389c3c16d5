// Package search defines the composite search query algebra: a closed
// sum type of predicates over a CVE, each carrying a pure in-memory
// Matches method, plus the Sort enum used to order results.
package search

import (
	"strings"
	"time"

	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/cve"
)

// Query is any predicate over a CVE.
type Query interface {
	Matches(c cve.CVE) bool
}

// Sort is a result ordering key.
type Sort int

const (
	SortCVEID Sort = iota
	SortDescription
	SortPublishedDate
	SortLastModifiedDate
	SortImpact
	SortSeverity
)

func containsFold(haystack, needle string, caseSensitive bool) bool {
	if caseSensitive {
		return strings.Contains(haystack, needle)
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// TermQuery matches a substring against any description, the CVE id, any
// reference name/url, and the assigner.
type TermQuery struct {
	Text          string
	CaseSensitive bool
}

func (q TermQuery) Matches(c cve.CVE) bool {
	for _, d := range c.Descriptions {
		if containsFold(d.Value, q.Text, q.CaseSensitive) {
			return true
		}
	}
	if containsFold(c.CVEID, q.Text, q.CaseSensitive) {
		return true
	}
	for _, r := range c.References {
		if containsFold(r.Name, q.Text, q.CaseSensitive) || containsFold(r.URL, q.Text, q.CaseSensitive) {
			return true
		}
	}
	if c.Assigner != "" && containsFold(c.Assigner, q.Text, q.CaseSensitive) {
		return true
	}
	return false
}

// DescriptionQuery is a TermQuery restricted to description values.
type DescriptionQuery struct {
	Text          string
	CaseSensitive bool
}

func (q DescriptionQuery) Matches(c cve.CVE) bool {
	for _, d := range c.Descriptions {
		if containsFold(d.Value, q.Text, q.CaseSensitive) {
			return true
		}
	}
	return false
}

// AfterPublishedDateQuery matches published_date >= Date.
type AfterPublishedDateQuery struct{ Date time.Time }

func (q AfterPublishedDateQuery) Matches(c cve.CVE) bool {
	return !c.PublishedDate.Before(q.Date)
}

// BeforePublishedDateQuery matches published_date.date() <= Date: the CVE
// timestamp is truncated to a UTC calendar date before comparison, per the
// documented (if asymmetric) semantics.
type BeforePublishedDateQuery struct{ Date time.Time }

func truncateToDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (q BeforePublishedDateQuery) Matches(c cve.CVE) bool {
	return !truncateToDate(c.PublishedDate).After(q.Date)
}

// AfterModifiedDateQuery matches last_modified_date >= Date.
type AfterModifiedDateQuery struct{ Date time.Time }

func (q AfterModifiedDateQuery) Matches(c cve.CVE) bool {
	return !c.LastModifiedDate.Before(q.Date)
}

// BeforeModifiedDateQuery mirrors BeforePublishedDateQuery's date-only
// coercion for last_modified_date.
type BeforeModifiedDateQuery struct{ Date time.Time }

func (q BeforeModifiedDateQuery) Matches(c cve.CVE) bool {
	return !truncateToDate(c.LastModifiedDate).After(q.Date)
}

// CPEQuery matches when some configuration tree of the CVE matches
// Pattern.
type CPEQuery struct{ Pattern cpe.CPE }

func (q CPEQuery) Matches(c cve.CVE) bool {
	return c.Configurations.Match(q.Pattern)
}

// AndQuery matches when every sub-query matches.
type AndQuery struct{ Sub []Query }

func (q AndQuery) Matches(c cve.CVE) bool {
	for _, s := range q.Sub {
		if !s.Matches(c) {
			return false
		}
	}
	return true
}

// OrQuery matches when any sub-query matches.
type OrQuery struct{ Sub []Query }

func (q OrQuery) Matches(c cve.CVE) bool {
	for _, s := range q.Sub {
		if s.Matches(c) {
			return true
		}
	}
	return false
}

// MakeQuery lifts bare strings to TermQuery and wraps multiple queries in
// an OrQuery; a single query is returned unwrapped, and no arguments
// yields nil (matches everything).
func MakeQuery(args ...any) Query {
	var qs []Query
	for _, a := range args {
		switch v := a.(type) {
		case string:
			qs = append(qs, TermQuery{Text: v})
		case Query:
			qs = append(qs, v)
		}
	}
	switch len(qs) {
	case 0:
		return nil
	case 1:
		return qs[0]
	default:
		return OrQuery{Sub: qs}
	}
}
