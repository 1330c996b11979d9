// Package granulecount tracks per-(date, platform) discovery progress used
// by the link fetcher as both a resume point and a telemetry record.
package granulecount

import "time"

// GranuleCount mirrors spec.md §3's GranuleCount table.
type GranuleCount struct {
	Date            time.Time
	Platform        string
	AvailableLinks  int64
	FetchedLinks    int64
	LastFetchedTime time.Time
}

// New creates a fresh count row for a (date, platform) pair that has not
// been seen before, per the "create if absent" branch of spec.md §4.2.1
// step 1.
func New(date time.Time, platform string) *GranuleCount {
	return &GranuleCount{
		Date:            date,
		Platform:        platform,
		AvailableLinks:  0,
		FetchedLinks:    0,
		LastFetchedTime: time.Time{},
	}
}
