package store

import (
	"context"
	"time"

	"github.com/trailofbits/cvedb/src/feed"
	"github.com/trailofbits/cvedb/src/schema"
)

// persistentFeed wraps a feed.Feed with the database-backed staleness check
// from the original cvedb's DbBackedFeed.is_out_of_date(): before ever
// consulting (or falling back to) in-memory data staleness, it asks the
// feeds table for this feed's last_checked timestamp and short-circuits to
// "not out of date" when that check happened recently enough, independent
// of whether anything has been loaded into memory yet this process.
type persistentFeed struct {
	inner  feed.Feed
	schema schema.Schema
	db     schema.DB
	feedID int64
}

func (p *persistentFeed) Name() string { return p.inner.Name() }

func (p *persistentFeed) IsOutOfDate() bool {
	_, lastChecked, err := p.schema.FeedTimestamps(context.Background(), p.db, p.feedID)
	if err == nil && lastChecked != nil {
		if time.Now().Unix()-*lastChecked < feed.UpdateIntervalSeconds {
			return false
		}
	}
	return p.inner.IsOutOfDate()
}

func (p *persistentFeed) Fetch(forceReload bool) (feed.Data, error) {
	return p.inner.Fetch(forceReload)
}
