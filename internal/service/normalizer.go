package service

import (
	"strconv"
	"strings"
	"time"

	"github.com/trainseat/matrix/internal/model"
	"github.com/trainseat/matrix/internal/railapi"
)

// Date layouts used across the service. The reservation API wants ISO
// dates on the route call; users see DD-MMM-YYYY everywhere.
const (
	isoDateLayout     = "2006-01-02"
	userDateLayout    = "02-Jan-2006"
	displayDateLayout = "02 Jan"
)

const (
	minutesPerDay = 24 * 60

	// Halts longer than this are treated as upstream data errors and
	// recomputed from the arrival/departure clocks.
	maxPlausibleHalt = 120

	// A backwards clock jump smaller than this gap is a midnight wrap;
	// anything larger is clock noise and does not advance the date.
	clockNoiseThreshold = 12 * 60
)

// NormalizedRoute is the route normalizer's output: cleaned stops plus
// the per-station local calendar dates derived across midnight
// boundaries.
type NormalizedRoute struct {
	Stops          []model.RouteStop
	StationDates   map[string]string // city → YYYY-MM-DD
	FormattedDates map[string]string // city → DD-MMM-YYYY
	Segmented      bool              // route spans more than one date
}

// NormalizeRoute cleans halt durations and assigns each stop its local
// calendar date, starting from the journey date.
//
// Halt correction: when both arrival and departure clocks parse, the
// halt is recomputed as departure minus arrival (wrapping past
// midnight); the recomputed value replaces the original only when the
// original is non-numeric or outside [0, maxPlausibleHalt].
//
// Date derivation: stops are walked in order, tracking the latest
// parseable clock (departure preferred over arrival). A strictly
// earlier clock with a wrap gap under clockNoiseThreshold advances the
// date by one day and marks both flanking stops with a DisplayDate.
// Unparseable clocks leave all state unchanged; every stop inherits
// the date in effect when it is visited.
func NormalizeRoute(raw []railapi.RouteStop, journeyDate time.Time) NormalizedRoute {
	out := NormalizedRoute{
		Stops:          make([]model.RouteStop, 0, len(raw)),
		StationDates:   make(map[string]string, len(raw)),
		FormattedDates: make(map[string]string, len(raw)),
	}

	currentDate := journeyDate
	prevClock := -1

	for _, rs := range raw {
		stop := model.RouteStop{
			City:          rs.City,
			ArrivalTime:   rs.ArrivalTime,
			DepartureTime: rs.DepartureTime,
			Halt:          string(rs.Halt),
		}

		arr, arrOK := parseClockMinutes(rs.ArrivalTime)
		dep, depOK := parseClockMinutes(rs.DepartureTime)

		if arrOK && depOK {
			halt := dep - arr
			if halt < 0 {
				halt += minutesPerDay
			}
			if n, err := strconv.Atoi(strings.TrimSpace(string(rs.Halt))); err != nil || n < 0 || n > maxPlausibleHalt {
				stop.Halt = strconv.Itoa(halt)
			}
		}

		clock, clockOK := arr, arrOK
		if strings.TrimSpace(rs.DepartureTime) != "" {
			clock, clockOK = dep, depOK
		}
		if clockOK {
			if prevClock >= 0 && clock < prevClock {
				wrapGap := clock + minutesPerDay - prevClock
				if wrapGap < clockNoiseThreshold {
					if n := len(out.Stops); n > 0 {
						out.Stops[n-1].DisplayDate = currentDate.Format(displayDateLayout)
					}
					currentDate = currentDate.AddDate(0, 0, 1)
					stop.DisplayDate = currentDate.Format(displayDateLayout)
				}
			}
			prevClock = clock
		}

		out.StationDates[stop.City] = currentDate.Format(isoDateLayout)
		out.FormattedDates[stop.City] = currentDate.Format(userDateLayout)
		out.Stops = append(out.Stops, stop)
	}

	distinct := make(map[string]struct{}, 2)
	for _, d := range out.StationDates {
		distinct[d] = struct{}{}
	}
	out.Segmented = len(distinct) > 1
	return out
}

// parseClockMinutes parses the upstream's 12-hour clock form
// ("HH:MM am/pm BST", the zone suffix optional) into minutes of day.
func parseClockMinutes(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.ToLower(s)
	s = strings.TrimSuffix(s, " bst")
	t, err := time.Parse("03:04 pm", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
