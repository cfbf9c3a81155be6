// Package service implements the seat matrix engine: route
// normalization plus the fan-out that turns one (train, date) request
// into an origin-to-destination fare-and-availability matrix.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/trainseat/matrix/internal/model"
	"github.com/trainseat/matrix/internal/railapi"
)

// ─── Matrix Errors ──────────────────────────────────────────
//
// These error strings surface verbatim as the user-visible failure
// message, so they carry product copy rather than Go-style text.

var (
	// ErrNoTrainInfo means the route endpoint returned nothing usable.
	ErrNoTrainInfo = errors.New("No information found for this train.")

	// ErrNoSeats means every station pair reported zero availability.
	ErrNoSeats = errors.New("No seats available for the selected train and date. Please try a different date or train.")
)

// berthSurcharge is added to the fare of the two berth classes on
// every populated cell. Operator pricing rule, not an upstream value.
const berthSurcharge = 50.0

// pairFanout caps concurrent availability lookups within one matrix.
const pairFanout = 10

// RouteSource provides train route data: the cached repository in
// production, the bare API client elsewhere.
type RouteSource interface {
	FetchTrainData(ctx context.Context, trainModel, apiDate string) (*railapi.TrainData, error)
}

// TripSource provides per-pair seat availability.
type TripSource interface {
	FetchTrip(ctx context.Context, fromCity, toCity, journeyDate, seatClass string, auth model.AuthCredentials) ([]railapi.Train, error)
}

// MatrixService computes fare-and-availability matrices.
type MatrixService struct {
	routes RouteSource
	trips  TripSource
}

// NewMatrixService creates a matrix service.
func NewMatrixService(routes RouteSource, trips TripSource) *MatrixService {
	return &MatrixService{routes: routes, trips: trips}
}

// ComputeMatrix builds the full origin-to-destination matrix for one
// train and journey date.
//
// Flow:
//  1. Fetch the route; no train name or no stops fails the request.
//  2. Normalize stops (halt correction, per-station local dates).
//  3. Validate the journey weekday against the train's running days.
//  4. Fan out one availability lookup per ordered station pair (i<j),
//     at most pairFanout at a time, each dated by the origin
//     station's local date.
//  5. Assemble the fare matrices; berth classes get the surcharge.
//
// Auth and throttling failures abort the whole computation and
// propagate unwrapped. Any other per-pair failure becomes a zero
// record so a single bad pair cannot sink the matrix.
func (s *MatrixService) ComputeMatrix(ctx context.Context, params model.MatrixParams) (*model.Matrix, error) {
	if params.Auth.Token == "" && params.Auth.DeviceKey == "" {
		return nil, railapi.ErrCredentialsRequired
	}

	journeyDate, err := time.Parse(userDateLayout, params.JourneyDate)
	if err != nil {
		return nil, fmt.Errorf("invalid journey date %q: %w", params.JourneyDate, err)
	}

	td, err := s.routes.FetchTrainData(ctx, params.TrainModel, params.APIDate)
	if err != nil {
		return nil, err
	}
	if td == nil || td.TrainName == "" || len(td.Routes) == 0 {
		return nil, ErrNoTrainInfo
	}

	route := NormalizeRoute(td.Routes, journeyDate)

	if !containsDay(td.Days, journeyDate.Format("Mon")) {
		return nil, fmt.Errorf("%s does not run on %s.", td.TrainName, journeyDate.Format("Monday"))
	}

	stations := make([]string, len(route.Stops))
	for i, st := range route.Stops {
		stations[i] = st.City
	}

	type pair struct{ from, to string }
	pairs := make([]pair, 0, len(stations)*(len(stations)-1)/2)
	for i := 0; i < len(stations); i++ {
		for j := i + 1; j < len(stations); j++ {
			pairs = append(pairs, pair{stations[i], stations[j]})
		}
	}

	log.Printf("[matrix] Computing %s (%s) on %s: %d stations, %d pairs",
		td.TrainName, params.TrainModel, params.JourneyDate, len(stations), len(pairs))

	// Each worker writes only its own slot, so the collection needs no
	// locking; a fatal error cancels the remaining lookups.
	fanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]map[string]model.SeatEntry, len(pairs))
	errs := make([]error, len(pairs))

	sem := make(chan struct{}, pairFanout)
	var wg sync.WaitGroup
	for idx, p := range pairs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, p pair) {
			defer wg.Done()
			defer func() { <-sem }()
			info, err := s.fetchPair(fanCtx, params, route.FormattedDates[p.from], p.from, p.to)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			results[idx] = info
		}(idx, p)
	}
	wg.Wait()

	// Auth sentinels win over throttling errors; both fail the matrix.
	var pairErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if railapi.IsAuth(err) {
			return nil, err
		}
		if pairErr == nil {
			pairErr = err
		}
	}
	if pairErr != nil {
		return nil, pairErr
	}

	fareMatrices := make(map[string]map[string]map[string]model.SeatEntry, len(model.SeatTypes))
	hasData := make(map[string]bool, len(model.SeatTypes))
	for _, st := range model.SeatTypes {
		byFrom := make(map[string]map[string]model.SeatEntry, len(stations))
		for _, from := range stations {
			byFrom[from] = make(map[string]model.SeatEntry)
		}
		fareMatrices[st] = byFrom
		hasData[st] = false
	}

	for idx, p := range pairs {
		info := results[idx]
		if info == nil {
			info = zeroSeatInfo()
		}
		for _, st := range model.SeatTypes {
			entry := info[st]
			fareMatrices[st][p.from][p.to] = entry
			if entry.Online+entry.Offline > 0 {
				hasData[st] = true
			}
		}
	}

	anyData := false
	for _, ok := range hasData {
		if ok {
			anyData = true
			break
		}
	}
	if !anyData {
		return nil, ErrNoSeats
	}

	m := &model.Matrix{
		TrainModel:            params.TrainModel,
		TrainName:             td.TrainName,
		Date:                  params.JourneyDate,
		Stations:              stations,
		SeatTypes:             model.SeatTypes,
		FareMatrices:          fareMatrices,
		HasDataMap:            hasData,
		Routes:                route.Stops,
		Days:                  td.Days,
		TotalDuration:         string(td.TotalDuration),
		StationDates:          route.StationDates,
		StationDatesFormatted: route.FormattedDates,
		HasSegmentedDates:     route.Segmented,
	}
	if route.Segmented {
		m.NextDayStr = journeyDate.AddDate(0, 0, 1).Format(userDateLayout)
		m.PrevDayStr = journeyDate.AddDate(0, 0, -1).Format(userDateLayout)
	}

	log.Printf("[matrix] ✓ %s on %s assembled (segmented=%v)",
		td.TrainName, params.JourneyDate, route.Segmented)
	return m, nil
}

// fetchPair looks up availability for one ordered station pair and
// copies out the requested train's seat classes.
func (s *MatrixService) fetchPair(ctx context.Context, params model.MatrixParams, journeyDate, from, to string) (map[string]model.SeatEntry, error) {
	trains, err := s.trips.FetchTrip(ctx, from, to, journeyDate, railapi.DefaultSeatClass, params.Auth)
	if err != nil {
		if railapi.IsAuth(err) || railapi.IsRetryable(err) {
			return nil, err
		}
		return zeroSeatInfo(), nil
	}

	for _, tr := range trains {
		if string(tr.TrainModel) != params.TrainModel {
			continue
		}
		info := zeroSeatInfo()
		for _, st := range tr.SeatTypes {
			if _, ok := info[st.Type]; !ok {
				continue // unknown class codes stay out of the matrix
			}
			fare := float64(st.Fare)
			if st.Type == "AC_B" || st.Type == "F_BERTH" {
				fare += berthSurcharge
			}
			info[st.Type] = model.SeatEntry{
				Online:    st.SeatCounts.Online,
				Offline:   st.SeatCounts.Offline,
				Fare:      fare,
				VatAmount: float64(st.VatAmount),
			}
		}
		return info, nil
	}
	return zeroSeatInfo(), nil
}

func zeroSeatInfo() map[string]model.SeatEntry {
	info := make(map[string]model.SeatEntry, len(model.SeatTypes))
	for _, st := range model.SeatTypes {
		info[st] = model.SeatEntry{}
	}
	return info
}

func containsDay(days []string, day string) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}
