package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/trailofbits/cvedb/src/cpe"
	"github.com/trailofbits/cvedb/src/search"
)

func main() {
	var help = flag.Bool("help", false, "Show help")
	var daemon = flag.Bool("daemon", false, "Run as daemon with cron scheduler")
	var debug = flag.Bool("debug", false, "Enable debug logging for cron jobs")
	var database = flag.String("database", "", "Path to the SQLite database (default ~/.config/cvedb/cvedb.sqlite)")
	var interactive = flag.Bool("interactive", false, "Allow interactive schema upgrade prompts")
	var progress = flag.Bool("progress", false, "Show a progress bar while downloading feeds")
	var sortFlag = flag.String("sort", "cve", "comma-separated sort keys: cve,description,published,modified,impact,severity")
	var descending = flag.Bool("descending", false, "Sort results in descending order")
	var after = flag.String("after", "", "only CVEs published on or after this date/year")
	var before = flag.String("before", "", "only CVEs published on or before this date/year")
	var modifiedAfter = flag.String("modified-after", "", "only CVEs modified on or after this date/year")
	var modifiedBefore = flag.String("modified-before", "", "only CVEs modified on or before this date/year")
	var vendor = flag.String("vendor", "", "restrict to CVEs applicable to this CPE vendor")
	var product = flag.String("product", "", "restrict to CVEs applicable to this CPE product")
	var softwareVersion = flag.String("software-version", "", "restrict to CVEs applicable to this CPE version")
	var update = flag.String("update", "", "restrict to CVEs applicable to this CPE update")

	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}

	ctx := context.Background()

	if *daemon {
		runDaemon(ctx, *database, *debug, *interactive, *progress)
		return
	}

	terms := flag.Args()
	service, err := CreateCVEdbService(ctx, *database, *interactive, *progress)
	if err != nil {
		log.Fatalf("cvedb: %v", err)
	}
	defer service.Close()

	if err := service.Session.Reload(ctx, nil); err != nil {
		log.Printf("cvedb: reload encountered errors: %v", err)
	}

	query, err := buildQuery(terms, *after, *before, *modifiedAfter, *modifiedBefore, *vendor, *product, *softwareVersion, *update)
	if err != nil {
		log.Fatalf("cvedb: %v", err)
	}

	sorts, err := parseSorts(*sortFlag)
	if err != nil {
		log.Fatalf("cvedb: %v", err)
	}

	results, err := service.Session.Search(ctx, query, sorts, *descending, nil)
	if err != nil {
		log.Fatalf("cvedb: search failed: %v", err)
	}

	for _, c := range results {
		desc, _ := c.Description("en")
		if _, err := fmt.Printf("%s\t%s\t%s\n", c.CVEID, c.Severity(), desc); err != nil {
			// broken output pipe: exit cleanly rather than spam further errors
			os.Exit(1)
		}
	}
}

func runDaemon(ctx context.Context, database string, debug, interactive, progress bool) {
	log.Println("Starting cvedb service in daemon mode with cron scheduler...")

	service, err := CreateCVEdbService(ctx, database, interactive, progress)
	if err != nil {
		log.Fatalf("Failed to create cvedb service: %v", err)
	}
	defer service.Close()

	c := cron.New(cron.WithSeconds())

	cronExpr := "0 0 */6 * * *" // every 6 hours
	if debug {
		log.Printf("Debug mode: reloading every minute for testing")
		cronExpr = "0 * * * * *"
	}

	_, err = c.AddFunc(cronExpr, func() {
		timestamp := time.Now().Format("2006-01-02 15:04:05")
		log.Printf("[%s] Starting scheduled cvedb reload...", timestamp)

		start := time.Now()
		err := service.Session.Reload(ctx, func(name, message string) {
			log.Printf("[%s] feed %s: %s", timestamp, name, message)
		})
		duration := time.Since(start)

		if err != nil {
			log.Printf("[%s] ERROR: scheduled reload failed after %v: %v", timestamp, duration, err)
		} else {
			log.Printf("[%s] SUCCESS: scheduled reload completed in %v", timestamp, duration)
		}
	})
	if err != nil {
		log.Fatalf("Failed to add cron job: %v", err)
	}

	c.Start()
	log.Println("cvedb service started successfully")

	select {}
}

func parseSorts(flagValue string) ([]search.Sort, error) {
	var sorts []search.Sort
	for _, part := range strings.Split(flagValue, ",") {
		switch strings.TrimSpace(part) {
		case "", "cve":
			sorts = append(sorts, search.SortCVEID)
		case "description":
			sorts = append(sorts, search.SortDescription)
		case "published":
			sorts = append(sorts, search.SortPublishedDate)
		case "modified":
			sorts = append(sorts, search.SortLastModifiedDate)
		case "impact":
			sorts = append(sorts, search.SortImpact)
		case "severity":
			sorts = append(sorts, search.SortSeverity)
		default:
			return nil, fmt.Errorf("unknown sort key %q", part)
		}
	}
	return sorts, nil
}

func buildQuery(terms []string, after, before, modifiedAfter, modifiedBefore, vendor, product, softwareVersion, update string) (search.Query, error) {
	var subs []search.Query
	for _, t := range terms {
		subs = append(subs, search.TermQuery{Text: t})
	}

	dateSub := func(flagName, value string, build func(time.Time) search.Query) error {
		if value == "" {
			return nil
		}
		t, err := parseFlagDate(value)
		if err != nil {
			return fmt.Errorf("--%s: %w", flagName, err)
		}
		subs = append(subs, build(t))
		return nil
	}
	if err := dateSub("after", after, func(t time.Time) search.Query { return search.AfterPublishedDateQuery{Date: t} }); err != nil {
		return nil, err
	}
	if err := dateSub("before", before, func(t time.Time) search.Query { return search.BeforePublishedDateQuery{Date: t} }); err != nil {
		return nil, err
	}
	if err := dateSub("modified-after", modifiedAfter, func(t time.Time) search.Query { return search.AfterModifiedDateQuery{Date: t} }); err != nil {
		return nil, err
	}
	if err := dateSub("modified-before", modifiedBefore, func(t time.Time) search.Query { return search.BeforeModifiedDateQuery{Date: t} }); err != nil {
		return nil, err
	}

	if vendor != "" || product != "" || softwareVersion != "" || update != "" {
		pattern := cpe.Wildcard()
		if vendor != "" {
			pattern.Vendor = cpe.ConcreteAV(vendor)
		}
		if product != "" {
			pattern.Product = cpe.ConcreteAV(product)
		}
		if softwareVersion != "" {
			pattern.Version = cpe.ConcreteAV(softwareVersion)
		}
		if update != "" {
			pattern.Update = cpe.ConcreteAV(update)
		}
		subs = append(subs, search.CPEQuery{Pattern: pattern})
	}

	if len(subs) == 0 {
		return nil, nil
	}
	return search.AndQuery{Sub: subs}, nil
}

// parseFlagDate accepts a bare year or a full ISO-8601 date/time.
func parseFlagDate(s string) (time.Time, error) {
	if year, err := strconv.Atoi(s); err == nil && len(s) == 4 {
		return time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	layouts := []string{"2006-01-02", time.RFC3339}
	var lastErr error
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}
