// Package model contains domain models for the seat matrix service.
// These structs define the scheduler's request lifecycle and the
// fare-and-availability matrix assembled from the rail reservation API.
package model

import "time"

// ─── Enums ──────────────────────────────────────────────────

type RequestStatus string

const (
	RequestQueued     RequestStatus = "queued"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// SeatTypes is the fixed seat class ordering used by every matrix.
// Rendering relies on this order, so it never changes at runtime.
var SeatTypes = []string{
	"S_CHAIR", "SHOVAN", "SNIGDHA", "F_SEAT", "F_CHAIR",
	"AC_S", "F_BERTH", "AC_B", "SHULOV", "AC_CHAIR",
}

// ─── Matrix ─────────────────────────────────────────────────

// SeatEntry is one cell of a fare matrix: availability counts plus
// pricing for a single (seat type, from, to) combination.
type SeatEntry struct {
	Online    int     `json:"online"`
	Offline   int     `json:"offline"`
	Fare      float64 `json:"fare"`
	VatAmount float64 `json:"vat_amount"`
}

// RouteStop is a normalized stop on a train's route. Halt is the stop
// duration in minutes, corrected when the upstream value is bogus.
// DisplayDate is set only on the stops flanking a midnight boundary.
type RouteStop struct {
	City          string `json:"city"`
	ArrivalTime   string `json:"arrival_time,omitempty"`
	DepartureTime string `json:"departure_time,omitempty"`
	Halt          string `json:"halt,omitempty"`
	DisplayDate   string `json:"display_date,omitempty"`
}

// Matrix is the full fare-and-availability result for one train and
// journey date. FareMatrices is keyed seat type → from city → to city,
// defined only for pairs where from precedes to in Stations.
type Matrix struct {
	TrainModel            string                                 `json:"train_model"`
	TrainName             string                                 `json:"train_name"`
	Date                  string                                 `json:"date"`
	Stations              []string                               `json:"stations"`
	SeatTypes             []string                               `json:"seat_types"`
	FareMatrices          map[string]map[string]map[string]SeatEntry `json:"fare_matrices"`
	HasDataMap            map[string]bool                        `json:"has_data_map"`
	Routes                []RouteStop                            `json:"routes"`
	Days                  []string                               `json:"days"`
	TotalDuration         string                                 `json:"total_duration"`
	StationDates          map[string]string                      `json:"station_dates"`
	StationDatesFormatted map[string]string                      `json:"station_dates_formatted"`
	HasSegmentedDates     bool                                   `json:"has_segmented_dates"`
	NextDayStr            string                                 `json:"next_day_str,omitempty"`
	PrevDayStr            string                                 `json:"prev_day_str,omitempty"`
}

// ─── Scheduler records ──────────────────────────────────────

// AuthCredentials carries the upstream bearer token and device key.
// Either field may be empty; the matrix engine rejects a computation
// when both resolve empty.
type AuthCredentials struct {
	Token     string `json:"-"`
	DeviceKey string `json:"-"`
}

// FormValues echoes the user's submitted form back inside the result.
type FormValues struct {
	TrainModel string `json:"train_model"`
	Date       string `json:"date"`
}

// MatrixParams is the typed parameter record carried by a scheduled
// request: everything the matrix engine needs for one computation.
type MatrixParams struct {
	TrainModel  string          `json:"train_model"`
	JourneyDate string          `json:"journey_date"` // DD-MMM-YYYY
	APIDate     string          `json:"api_date"`     // YYYY-MM-DD
	FormValues  FormValues      `json:"form_values"`
	Auth        AuthCredentials `json:"-"`
}

// StatusRecord is the poll-visible snapshot of a request. Position and
// EstimatedTime are recomputed on every read while the request is
// queued and are fixed to 0 for every other status.
type StatusRecord struct {
	Status        RequestStatus `json:"status"`
	Position      int           `json:"position"`
	CreatedAt     time.Time     `json:"created_at"`
	EstimatedTime float64       `json:"estimated_time"`
	LastBeatAge   float64       `json:"last_heartbeat_secs"`
	ErrorMessage  string        `json:"errorMessage,omitempty"`
}

// Result is the one-shot outcome of a completed request: either a
// matrix with the echoed form values, or an error message.
type Result struct {
	Success    bool        `json:"success,omitempty"`
	Matrix     *Matrix     `json:"result,omitempty"`
	FormValues *FormValues `json:"form_values,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Stats is the scheduler's aggregate view. RecentAbandonments counts
// abandonments within the past hour.
type Stats struct {
	Queued             int     `json:"queued"`
	Processing         int     `json:"processing"`
	AvgProcessingTime  float64 `json:"avg_processing_time"`
	RecentAbandonments int     `json:"recent_abandonments"`
	QueueSize          int     `json:"queue_size"`
}
