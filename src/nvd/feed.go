package nvd

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/trailofbits/cvedb/src/feed"
)

// Fetcher is the opaque fetch(url) -> bytes collaborator described in
// §1's out-of-scope list: the HTTP mechanism itself is not part of the
// core, only this seam.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

const maxRetries = 5

// HTTPFetcher is the default Fetcher, with exponential backoff on
// transient failures, mirroring the retry shape used by the rest of the
// ingest stack.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		var lastErr error
		for retries := 0; retries < maxRetries; retries++ {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("nvd: building request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				lastErr = err
				log.Printf("nvd: %v, retrying (%d/%d)", err, retries+1, maxRetries)
				time.Sleep(time.Duration(2<<retries) * time.Second)
				continue
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limited")
				log.Printf("nvd: rate limit exceeded, retrying (%d/%d)", retries+1, maxRetries)
				time.Sleep(time.Duration(2<<retries) * time.Second)
				continue
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("nvd: unexpected response status: %s", resp.Status)
			}
			body, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("nvd: reading response body: %w", err)
			}
			return body, nil
		}
		return nil, fmt.Errorf("nvd: max retries reached: %w", lastErr)
	}
}

// DecompressGZ inflates a gzip-compressed JSON feed body.
func DecompressGZ(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("nvd: opening gzip stream: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("nvd: decompressing: %w", err)
	}
	return out, nil
}

// Data is the NVD-specific feed.Data: the parsed CVEs of a year's feed
// plus the Meta that produced them.
type Data struct {
	feed.SliceData
	Meta Meta
}

// NewFeed builds a feed.BaseFeed for a single NVD year, fetching
// <BaseJSONURL><year>.meta and, if it is newer than existing data,
// <BaseJSONURL><year>.json.gz — per the download-and-conditionally-fetch
// protocol of §4.6.
func NewFeed(year string, fetch Fetcher, showProgress bool) *feed.BaseFeed {
	metaURL := BaseJSONURL + year + ".meta"
	gzURL := BaseJSONURL + year + ".json.gz"

	reload := func(existing feed.Data) (feed.Data, error) {
		ctx := context.Background()
		metaBody, err := fetch(ctx, metaURL)
		if err != nil {
			return nil, fmt.Errorf("nvd: fetching %s: %w", metaURL, err)
		}
		meta, err := ParseMeta(metaBody)
		if err != nil {
			return nil, err
		}
		if nd, ok := existing.(Data); ok && !meta.LastModifiedDate.After(nd.Meta.LastModifiedDate) {
			return existing, nil
		}

		gzBody, err := fetch(ctx, gzURL)
		if err != nil {
			return nil, fmt.Errorf("nvd: fetching %s: %w", gzURL, err)
		}
		jsonBody, err := DecompressGZ(gzBody)
		if err != nil {
			return nil, err
		}

		cves, parseErrs := Ingest(jsonBody)
		for _, e := range parseErrs {
			log.Println(e)
		}

		return Data{
			SliceData: feed.SliceData{CVEs: cves, Modified: meta.LastModifiedDate},
			Meta:      meta,
		}, nil
	}

	return &feed.BaseFeed{FeedName: year, Reload: reload}
}

// ProgressFetcher wraps the default HTTP fetch with a progress bar over the
// Content-Length of the response, for interactive CLI use where the
// long-lived .json.gz download benefits from visible feedback.
func ProgressFetcher(client *http.Client) Fetcher {
	return progressFetcher(nil, client)
}

// progressFetcher issues a single GET with client and shows a progress bar
// over the Content-Length of the response, for every URL it is given (meta
// and gz alike). The inner Fetcher is not called, and failed requests are
// not retried.
func progressFetcher(inner Fetcher, client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("nvd: unexpected response status: %s", resp.Status)
		}
		bar := progressbar.DefaultBytes(resp.ContentLength, url)
		var buf bytes.Buffer
		if _, err := io.Copy(io.MultiWriter(&buf, bar), resp.Body); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
