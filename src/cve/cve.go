// Package cve defines the CVE aggregate record and the derived severity
// mapping from a CVSS impact vector.
package cve

import (
	"strings"
	"time"

	"github.com/trailofbits/cvedb/src/applicability"
)

// Severity is the derived risk tier of a CVE. The ordering (ascending
// integer value) is load-bearing: it is the order SQL sorts use.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityUnknown
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityUnknown:
		return "UNKNOWN"
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Impact is the CVSS vector attached to a CVE, consumed opaquely from the
// feed: the version (2 or 3) is inferred from the vector's own prefix, and
// the base score is carried alongside rather than recomputed.
type Impact struct {
	Version   int
	Vector    string
	BaseScore float64
}

// ParseImpact builds an Impact from a raw vector string and base score,
// inferring the CVSS version from the vector's own prefix.
func ParseImpact(vector string, baseScore float64) Impact {
	version := 2
	if strings.HasPrefix(vector, "CVSS:3") {
		version = 3
	}
	return Impact{Version: version, Vector: vector, BaseScore: baseScore}
}

// SeverityOf maps an optional Impact to its Severity per §4.2: CVSS2
// buckets at 4.0/7.0; CVSS3 buckets at 0.0/4.0/7.0/9.0; a nil impact is
// UNKNOWN.
func SeverityOf(impact *Impact) Severity {
	if impact == nil {
		return SeverityUnknown
	}
	if impact.Version == 2 {
		switch {
		case impact.BaseScore < 4.0:
			return SeverityLow
		case impact.BaseScore < 7.0:
			return SeverityMedium
		default:
			return SeverityHigh
		}
	}
	switch {
	case impact.BaseScore == 0.0:
		return SeverityNone
	case impact.BaseScore < 4.0:
		return SeverityLow
	case impact.BaseScore < 7.0:
		return SeverityMedium
	case impact.BaseScore < 9.0:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// Description is a single localized description string.
type Description struct {
	Lang  string
	Value string
}

// Reference is a single named external link for a CVE.
type Reference struct {
	Name string
	URL  string
}

// CVE is the aggregate vulnerability record.
type CVE struct {
	CVEID            string
	PublishedDate    time.Time
	LastModifiedDate time.Time
	Impact           *Impact
	Descriptions     []Description
	References       []Reference
	Assigner         string
	Configurations   applicability.Configurations
}

// Severity returns the CVE's derived severity.
func (c CVE) Severity() Severity { return SeverityOf(c.Impact) }

// Description returns the description text for lang, defaulting to "en"
// when lang is empty, and false if no such description exists.
func (c CVE) Description(lang string) (string, bool) {
	if lang == "" {
		lang = "en"
	}
	for _, d := range c.Descriptions {
		if d.Lang == lang {
			return d.Value, true
		}
	}
	return "", false
}

// String returns the CVE's identifier.
func (c CVE) String() string { return c.CVEID }
