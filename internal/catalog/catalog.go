// Package catalog serves the embedded intercity train list and the
// valid journey-date search window. The list is a build-time asset;
// the reservation API has no endpoint to enumerate trains.
package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"time"
)

//go:embed trains.json
var assets embed.FS

// searchWindowDays is how far ahead of today a journey may be booked.
const searchWindowDays = 10

// Catalog holds the train display strings and the railway's local
// timezone, which anchors the search window.
type Catalog struct {
	trains []string
	loc    *time.Location
}

// Load parses the embedded train list. The Dhaka zone comes from the
// system tz database when available; otherwise a fixed +06:00 zone
// stands in (Bangladesh has no DST).
func Load() (*Catalog, error) {
	raw, err := assets.ReadFile("trains.json")
	if err != nil {
		return nil, fmt.Errorf("catalog: read embedded trains: %w", err)
	}
	var trains []string
	if err := json.Unmarshal(raw, &trains); err != nil {
		return nil, fmt.Errorf("catalog: parse trains: %w", err)
	}
	if len(trains) == 0 {
		return nil, fmt.Errorf("catalog: embedded train list is empty")
	}

	loc, err := time.LoadLocation("Asia/Dhaka")
	if err != nil {
		loc = time.FixedZone("BST", 6*60*60)
	}
	return &Catalog{trains: trains, loc: loc}, nil
}

// Trains returns the display strings ("NAME (model)") in list order.
func (c *Catalog) Trains() []string {
	return c.trains
}

// SearchWindow returns the earliest and latest bookable journey dates
// as ISO dates, computed from now in the railway's local time.
func (c *Catalog) SearchWindow(now time.Time) (minDate, maxDate string) {
	local := now.In(c.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	return today.Format("2006-01-02"), today.AddDate(0, 0, searchWindowDays).Format("2006-01-02")
}
