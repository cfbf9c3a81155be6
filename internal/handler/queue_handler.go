package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/trainseat/matrix/internal/queue"
)

// QueueHandler serves the scheduler's lifecycle endpoints: cancel,
// heartbeat, stats, and the forced cleanup pass.
type QueueHandler struct {
	sched *queue.Scheduler
}

// NewQueueHandler creates a handler wired to the scheduler.
func NewQueueHandler(sched *queue.Scheduler) *QueueHandler {
	return &QueueHandler{sched: sched}
}

// Cancel handles POST /api/v1/cancel/{id}
//
// Removes the request from the scheduler. Returns 200 with whether
// anything was removed; unknown ids are a no-op, not an error.
func (h *QueueHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]bool{
		"cancelled": h.sched.Cancel(id),
	})
}

// CancelBeacon handles POST /api/v1/cancel_beacon/{id}
//
// Fire-and-forget cancellation for navigator.sendBeacon on page
// unload: always 204, never a body, never an error.
func (h *QueueHandler) CancelBeacon(w http.ResponseWriter, r *http.Request) {
	h.sched.Cancel(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// Heartbeat handles POST /api/v1/heartbeat/{id}
//
// Refreshes the request's keepalive. active=false tells the poll page
// its request is gone and polling should stop.
func (h *QueueHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, map[string]bool{
		"active": h.sched.Heartbeat(id),
	})
}

// GetStats handles GET /api/v1/stats
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sched.Stats())
}

// ForceCleanup handles POST /api/v1/cleanup
//
// Synchronously runs the stale-queue and terminal-result reapers and
// returns the post-cleanup stats.
func (h *QueueHandler) ForceCleanup(w http.ResponseWriter, r *http.Request) {
	h.sched.ForceCleanup()
	writeJSON(w, http.StatusOK, h.sched.Stats())
}
