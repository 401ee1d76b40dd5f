package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/service"
)

// BinHandler serves /api/bins.
type BinHandler struct {
	svc    *service.BinService
	logger *slog.Logger
}

func NewBinHandler(svc *service.BinService, logger *slog.Logger) *BinHandler {
	return &BinHandler{svc: svc, logger: logger}
}

type binsResponse struct {
	Bins []model.Bin `json:"bins"`
}

type nearbyResponse struct {
	Bins     []model.NearbyBin `json:"bins"`
	RadiusKm float64           `json:"radius"`
}

type binResponse struct {
	Bin *model.Bin `json:"bin"`
}

// HandleList returns bins, optionally filtered.
//
// HTTP: GET /api/bins?search=&status=&limit=&offset=
func (h *BinHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	bins, err := h.svc.List(r.Context(), model.BinFilter{
		Search: q.Get("search"),
		Status: model.BinStatus(q.Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, binsResponse{Bins: bins})
}

// HandleGet returns one bin with its officer and recent notifications.
//
// HTTP: GET /api/bins/{id}
func (h *BinHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	details, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// HandleNearby lists bins around a point, closest first.
//
// HTTP: GET /api/bins/search/nearby?latitude=&longitude=&radius=
func (h *BinHandler) HandleNearby(w http.ResponseWriter, r *http.Request) {
	lat, err := queryFloat(r, "latitude")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	lng, err := queryFloat(r, "longitude")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	radius := service.DefaultNearbyRadiusKm
	if r.URL.Query().Get("radius") != "" {
		if radius, err = queryFloat(r, "radius"); err != nil {
			writeError(w, h.logger, err)
			return
		}
	}

	bins, err := h.svc.Nearby(r.Context(), lat, lng, radius)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if radius <= 0 {
		radius = service.DefaultNearbyRadiusKm
	}
	writeJSON(w, http.StatusOK, nearbyResponse{Bins: bins, RadiusKm: radius})
}

// HandleStats returns fleet counters.
//
// HTTP: GET /api/bins/stats
func (h *BinHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleCreate registers a new bin (officer/admin).
//
// HTTP: POST /api/bins
func (h *BinHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.BinInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	bin, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, binResponse{Bin: bin})
}

// HandleUpdate patches a bin (officer/admin).
//
// HTTP: PUT /api/bins/{id}
func (h *BinHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in service.BinInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	bin, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, binResponse{Bin: bin})
}

// HandleDelete removes a bin (officer/admin).
//
// HTTP: DELETE /api/bins/{id}
func (h *BinHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
