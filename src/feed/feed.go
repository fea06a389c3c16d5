// Package feed defines the DataSource/Data/Feed abstraction and the
// staleness protocol shared by every concrete feed implementation (the NVD
// ingest, a custom in-test feed, or a database-backed one).
package feed

import (
	"time"

	"github.com/trailofbits/cvedb/src/cve"
	"github.com/trailofbits/cvedb/src/search"
)

// MaxDataAgeSeconds is how long a feed's data may go unrefreshed before it
// is considered out of date.
const MaxDataAgeSeconds = 24 * 60 * 60

// UpdateIntervalSeconds bounds how often a database-backed feed (see the
// store package's persistentFeed) re-probes the network, checked against
// the feed's persisted last-checked timestamp independent of in-memory
// data staleness, to avoid hammering the origin on every query.
const UpdateIntervalSeconds = MaxDataAgeSeconds

// DataSource is an iterable of CVEs stamped with a last-modified time.
type DataSource interface {
	LastModified() time.Time
	All() []cve.CVE
}

// Data is a sized DataSource that additionally supports a composite
// search.
type Data interface {
	DataSource
	Len() int
	Search(q search.Query, sorts []search.Sort, descending bool) []cve.CVE
}

// SliceData is the default in-memory Data: a plain slice of CVEs plus a
// last-modified stamp, with Search implemented as a linear filter and
// stable sort.
type SliceData struct {
	CVEs     []cve.CVE
	Modified time.Time
}

func (d SliceData) LastModified() time.Time { return d.Modified }
func (d SliceData) All() []cve.CVE          { return d.CVEs }
func (d SliceData) Len() int                { return len(d.CVEs) }

func (d SliceData) Search(q search.Query, sorts []search.Sort, descending bool) []cve.CVE {
	var out []cve.CVE
	for _, c := range d.CVEs {
		if q == nil || q.Matches(c) {
			out = append(out, c)
		}
	}
	search.SortCVEs(out, sorts, descending)
	return out
}

// Feed owns a name and a lazily (re)loaded Data.
type Feed interface {
	Name() string
	// Fetch returns the feed's current data, reloading it if absent,
	// forced, or out of date.
	Fetch(forceReload bool) (Data, error)
	IsOutOfDate() bool
}

// Reloader produces fresh Data given the feed's previous Data (nil on
// first load).
type Reloader func(existing Data) (Data, error)

// BaseFeed is the common Feed implementation: caches Data and reloads it
// per the staleness protocol in §4.5.
type BaseFeed struct {
	FeedName string
	Reload   Reloader

	data Data
}

func (f *BaseFeed) Name() string { return f.FeedName }

func (f *BaseFeed) IsOutOfDate() bool {
	if f.data == nil {
		return true
	}
	return time.Since(f.data.LastModified()) >= MaxDataAgeSeconds*time.Second
}

func (f *BaseFeed) Fetch(forceReload bool) (Data, error) {
	if f.data == nil || forceReload || f.IsOutOfDate() {
		d, err := f.Reload(f.data)
		if err != nil {
			return nil, err
		}
		f.data = d
	}
	return f.data, nil
}
