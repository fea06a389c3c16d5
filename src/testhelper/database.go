// Package testhelper provides shared test setup for packages that need a
// live cvedb session: an in-memory SQLite database taken straight to the
// latest schema, with no feeds registered.
package testhelper

import (
	"context"
	"testing"

	"github.com/trailofbits/cvedb/src/nvd"
	"github.com/trailofbits/cvedb/src/store"
)

// SetupSessionTestDB opens a fresh in-memory session for testing, with no
// year feeds registered (callers use RegisterCustomFeed for fixtures).
func SetupSessionTestDB(t *testing.T) (*store.Session, func()) {
	t.Helper()
	ctx := context.Background()
	session, err := store.Open(ctx, ":memory:", []string{}, nvd.HTTPFetcher(nil), false, nil)
	if err != nil {
		t.Fatalf("testhelper: opening in-memory session: %v", err)
	}
	return session, func() { _ = session.Close() }
}
