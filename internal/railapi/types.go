package railapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexString decodes JSON values that arrive as a string, a number, or
// null. The reservation API is not consistent about halt and model
// fields, so wire types tolerate both encodings.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	*f = FlexString(b)
	return nil
}

// FlexFloat decodes numeric JSON values that may arrive quoted
// ("405.00") or bare (405).
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse %q as number: %w", s, err)
	}
	*f = FlexFloat(v)
	return nil
}

// RouteStop is a raw stop on a train's route, exactly as the upstream
// returns it. Halt is minutes as text and is frequently bogus; the
// normalizer recomputes it.
type RouteStop struct {
	City          string     `json:"city"`
	ArrivalTime   string     `json:"arrival_time"`
	DepartureTime string     `json:"departure_time"`
	Halt          FlexString `json:"halt"`
}

// TrainData is the data subobject of the train-routes response.
type TrainData struct {
	TrainName     string      `json:"train_name"`
	Days          []string    `json:"days"`
	Routes        []RouteStop `json:"routes"`
	TotalDuration FlexString  `json:"total_duration"`
}

// SeatCounts holds online/offline availability for one seat class.
type SeatCounts struct {
	Online  int `json:"online"`
	Offline int `json:"offline"`
}

// SeatType is one seat class offer inside a Train.
type SeatType struct {
	Type       string     `json:"type"`
	Fare       FlexFloat  `json:"fare"`
	VatAmount  FlexFloat  `json:"vat_amount"`
	SeatCounts SeatCounts `json:"seat_counts"`
}

// Train is one entry from the search-trips response.
type Train struct {
	TrainModel          FlexString `json:"train_model"`
	TripNumber          FlexString `json:"trip_number"`
	OriginCityName      string     `json:"origin_city_name"`
	DestinationCityName string     `json:"destination_city_name"`
	DepartureDateTime   string     `json:"departure_date_time"`
	ArrivalDateTime     string     `json:"arrival_date_time"`
	TravelTime          string     `json:"travel_time"`
	SeatTypes           []SeatType `json:"seat_types"`
}
