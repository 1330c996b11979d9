// Package dategen produces the ordered list of (date, platform) work items
// that drives the link fetcher, per spec.md §4.1.
package dategen

import (
	"fmt"
	"time"
)

// DefaultLookbackDays is the number of prior days covered when not
// overridden.
const DefaultLookbackDays = 5

// DefaultPlatforms is the Sentinel-2 platform set covered when not
// overridden.
var DefaultPlatforms = []string{"S2A", "S2B", "S2C"}

// QueryDatePlatform is one unit of discovery work.
type QueryDatePlatform struct {
	Date     string
	Platform string
}

// Options configures Generate; zero values select the spec defaults.
type Options struct {
	// Now defaults to today (UTC) when zero.
	Now time.Time
	// LookbackDays defaults to DefaultLookbackDays when zero.
	LookbackDays int
	// Platforms defaults to DefaultPlatforms when empty.
	Platforms []string
}

// Generate returns {now-1, now-2, ..., now-lookback_days} crossed with
// platforms, most-recent-first within each platform. Pure function of its
// inputs; no I/O.
func Generate(opts Options) []QueryDatePlatform {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	lookback := opts.LookbackDays
	if lookback == 0 {
		lookback = DefaultLookbackDays
	}

	platforms := opts.Platforms
	if len(platforms) == 0 {
		platforms = DefaultPlatforms
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	dates := make([]string, 0, lookback)
	for day := 1; day <= lookback; day++ {
		dates = append(dates, today.AddDate(0, 0, -day).Format("2006-01-02"))
	}

	// Dates are already newest-first; platforms cycle within each date,
	// matching the itertools.product(dates, platforms) order of the
	// original implementation.
	result := make([]QueryDatePlatform, 0, len(dates)*len(platforms))
	for _, date := range dates {
		for _, platform := range platforms {
			result = append(result, QueryDatePlatform{Date: date, Platform: platform})
		}
	}
	return result
}

// String renders a work item for logging, matching the tuple shape
// operators see in the orchestrator's invocation payloads.
func (q QueryDatePlatform) String() string {
	return fmt.Sprintf("(%s, %s)", q.Date, q.Platform)
}
