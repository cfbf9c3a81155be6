// Package handler contains HTTP request handlers for the seat matrix API.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/trainseat/matrix/internal/model"
	"github.com/trainseat/matrix/internal/queue"
	"github.com/trainseat/matrix/internal/railapi"
	"github.com/trainseat/matrix/internal/service"
)

const (
	userDateLayout = "02-Jan-2006"
	isoDateLayout  = "2006-01-02"
)

// Form validation messages, surfaced verbatim to the user.
const (
	msgMissingFields = "Both Train Name and Journey Date are required."
	msgBadDate       = "Invalid date format. Use DD-MMM-YYYY (e.g. 15-Nov-2024)."
)

// modelPattern extracts the numeric model from a "NAME (726)" display
// string.
var modelPattern = regexp.MustCompile(`\((\d+)\)\s*$`)

// MatrixHandler serves submission, polling, and result retrieval.
type MatrixHandler struct {
	sched        *queue.Scheduler
	engine       *service.MatrixService
	defaultAuth  model.AuthCredentials
	queueEnabled bool
}

// NewMatrixHandler creates a handler wired to the scheduler and the
// matrix engine. When queueEnabled is false, submissions compute
// synchronously and the scheduler is bypassed.
func NewMatrixHandler(sched *queue.Scheduler, engine *service.MatrixService, defaultAuth model.AuthCredentials, queueEnabled bool) *MatrixHandler {
	return &MatrixHandler{
		sched:        sched,
		engine:       engine,
		defaultAuth:  defaultAuth,
		queueEnabled: queueEnabled,
	}
}

type submitRequest struct {
	TrainModel string `json:"train_model"`
	Date       string `json:"date"`
	AuthToken  string `json:"auth_token"`
	DeviceKey  string `json:"device_key"`
}

// Submit handles POST /api/v1/submit
//
// Validates the form, extracts the numeric train model, and either
// enqueues the computation (202 with the request id and wait estimate)
// or, with the queue disabled, computes the matrix inline.
func (h *MatrixHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	trainDisplay := strings.TrimSpace(req.TrainModel)
	dateStr := strings.TrimSpace(req.Date)
	if trainDisplay == "" || dateStr == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgMissingFields})
		return
	}

	journeyDate, err := time.Parse(userDateLayout, dateStr)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msgBadDate})
		return
	}

	auth := h.defaultAuth
	if req.AuthToken != "" {
		auth.Token = req.AuthToken
	}
	if req.DeviceKey != "" {
		auth.DeviceKey = req.DeviceKey
	}

	params := model.MatrixParams{
		TrainModel:  extractModel(trainDisplay),
		JourneyDate: dateStr,
		APIDate:     journeyDate.Format(isoDateLayout),
		FormValues:  model.FormValues{TrainModel: trainDisplay, Date: dateStr},
		Auth:        auth,
	}

	if !h.queueEnabled {
		h.computeInline(w, r, params)
		return
	}

	id := h.sched.Submit(h.engine.ComputeMatrix, params)
	rec, _ := h.sched.GetStatus(id)
	resp := map[string]interface{}{
		"request_id": id,
		"status":     model.RequestQueued,
	}
	if rec != nil {
		resp["position"] = rec.Position
		resp["estimated_time"] = rec.EstimatedTime
	}
	writeJSON(w, http.StatusAccepted, resp)
}

// computeInline runs the matrix engine synchronously, without the
// retry envelope or any queue bookkeeping.
func (h *MatrixHandler) computeInline(w http.ResponseWriter, r *http.Request, params model.MatrixParams) {
	matrix, err := h.engine.ComputeMatrix(r.Context(), params)
	if err != nil {
		writeJSON(w, computeErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, model.Result{
		Success:    true,
		Matrix:     matrix,
		FormValues: &params.FormValues,
	})
}

// GetStatus handles GET /api/v1/status/{id}
//
// Returns the poll-visible snapshot, or 404 for unknown ids. Failed
// requests carry their error message so the poll page can show it.
func (h *MatrixHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, ok := h.sched.GetStatus(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Request not found.",
		})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetResult handles GET /api/v1/result/{id}
//
// One-shot: the first successful read removes the request from the
// scheduler; later reads 404.
func (h *MatrixHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	res, ok := h.sched.GetResult(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "not_found",
			"message": "Result not available.",
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// extractModel pulls the numeric model out of a "NAME (726)" display
// string; without a trailing parenthesized number, the text before the
// first parenthesis is used as-is.
func extractModel(display string) string {
	if m := modelPattern.FindStringSubmatch(display); m != nil {
		return m[1]
	}
	if i := strings.Index(display, "("); i >= 0 {
		return strings.TrimSpace(display[:i])
	}
	return strings.TrimSpace(display)
}

// computeErrorStatus maps a synchronous compute failure onto an HTTP
// status. Auth sentinels get 401 so the client can re-authenticate;
// throttling gets 429; everything else is a user-visible 422 apart
// from upstream outages.
func computeErrorStatus(err error) int {
	switch {
	case railapi.IsAuth(err):
		return http.StatusUnauthorized
	case railapi.IsRetryable(err):
		return http.StatusTooManyRequests
	case errors.Is(err, railapi.ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[handler] encode response: %v", err)
	}
}
