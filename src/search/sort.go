package search

import (
	"sort"

	"github.com/trailofbits/cvedb/src/cve"
)

func lessBy(a, b cve.CVE, key Sort) (less, equal bool) {
	switch key {
	case SortCVEID:
		return a.CVEID < b.CVEID, a.CVEID == b.CVEID
	case SortDescription:
		da, _ := a.Description("")
		db, _ := b.Description("")
		return da < db, da == db
	case SortPublishedDate:
		return a.PublishedDate.Before(b.PublishedDate), a.PublishedDate.Equal(b.PublishedDate)
	case SortLastModifiedDate:
		return a.LastModifiedDate.Before(b.LastModifiedDate), a.LastModifiedDate.Equal(b.LastModifiedDate)
	case SortImpact:
		as, bs := impactScore(a), impactScore(b)
		return as < bs, as == bs
	case SortSeverity:
		return a.Severity() < b.Severity(), a.Severity() == b.Severity()
	default:
		return false, true
	}
}

func impactScore(c cve.CVE) float64 {
	if c.Impact == nil {
		return 0
	}
	return c.Impact.BaseScore
}

// SortCVEs orders cves in place by the given Sort keys, applied in order
// as tie-breakers, ascending unless descending is true.
func SortCVEs(cves []cve.CVE, keys []Sort, descending bool) {
	if len(keys) == 0 {
		keys = []Sort{SortCVEID}
	}
	sort.SliceStable(cves, func(i, j int) bool {
		for _, k := range keys {
			less, equal := lessBy(cves[i], cves[j], k)
			if equal {
				continue
			}
			if descending {
				return !less
			}
			return less
		}
		return false
	})
}
