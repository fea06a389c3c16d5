// Package nvd implements the NVD 1.1 JSON feed ingest: meta file parsing,
// gzip decompression, and JSON-to-CVE translation including the
// configurations applicability tree.
package nvd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BaseJSONURL is the root of the NVD 1.1 JSON feed.
const BaseJSONURL = "https://nvd.nist.gov/feeds/json/cve/1.1/nvdcve-1.1-"

// Meta is the sidecar metadata file accompanying a yearly feed.
type Meta struct {
	LastModifiedDate time.Time
	Size             int64
	ZipSize          int64
	GzSize           int64
	SHA256           []byte
}

// camelToUnderscore normalizes a CamelKey metadata key to snake_case,
// lower-casing the first character and inserting an underscore before
// every subsequent upper-case letter.
func camelToUnderscore(text string) string {
	var b strings.Builder
	for i, c := range text {
		switch {
		case i == 0:
			b.WriteRune(toLower(c))
		case c >= 'A' && c <= 'Z':
			b.WriteByte('_')
			b.WriteRune(toLower(c))
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

func toLower(c rune) rune {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// ParseMeta parses the plain key/value lines of a .meta file.
func ParseMeta(data []byte) (Meta, error) {
	kvs := make(map[string]string)
	for _, rawLine := range bytes.Split(data, []byte("\n")) {
		line := strings.TrimRight(string(rawLine), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return Meta{}, fmt.Errorf("nvd: unexpected meta line: %q", line)
		}
		key := camelToUnderscore(line[:idx])
		if _, ok := kvs[key]; ok {
			return Meta{}, fmt.Errorf("nvd: duplicate metadata key: %q", key)
		}
		kvs[key] = line[idx+1:]
	}

	var m Meta
	var err error
	if m.LastModifiedDate, err = parseMetaTime(kvs["last_modified_date"]); err != nil {
		return Meta{}, fmt.Errorf("nvd: last_modified_date: %w", err)
	}
	if m.Size, err = strconv.ParseInt(kvs["size"], 10, 64); err != nil {
		return Meta{}, fmt.Errorf("nvd: size: %w", err)
	}
	if m.ZipSize, err = strconv.ParseInt(kvs["zip_size"], 10, 64); err != nil {
		return Meta{}, fmt.Errorf("nvd: zip_size: %w", err)
	}
	if m.GzSize, err = strconv.ParseInt(kvs["gz_size"], 10, 64); err != nil {
		return Meta{}, fmt.Errorf("nvd: gz_size: %w", err)
	}
	if m.SHA256, err = hex.DecodeString(kvs["sha256"]); err != nil {
		return Meta{}, fmt.Errorf("nvd: sha256: %w", err)
	}
	return m, nil
}

// parseMetaTime parses the ISO-8601 timestamp used by NVD meta files,
// trying the layouts actually seen in the feed (with and without seconds,
// with a numeric or "Z" offset).
func parseMetaTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04Z07:00",
		time.RFC3339,
	}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
