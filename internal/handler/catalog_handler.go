package handler

import (
	"net/http"
	"time"

	"github.com/trainseat/matrix/internal/catalog"
)

// CatalogHandler serves the train list and the bookable date window.
type CatalogHandler struct {
	cat *catalog.Catalog
}

// NewCatalogHandler creates a handler over the embedded catalog.
func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{cat: cat}
}

// ListTrains handles GET /api/v1/trains
//
// Returns the train display strings plus the min/max journey dates the
// reservation system accepts, anchored to the railway's local day.
func (h *CatalogHandler) ListTrains(w http.ResponseWriter, r *http.Request) {
	minDate, maxDate := h.cat.SearchWindow(time.Now())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trains":   h.cat.Trains(),
		"min_date": minDate,
		"max_date": maxDate,
	})
}
