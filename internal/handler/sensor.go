package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/service"
)

const defaultReadingsLimit = 50

// SensorHandler serves /api/sensor.
type SensorHandler struct {
	svc    *service.SensorService
	logger *slog.Logger
}

func NewSensorHandler(svc *service.SensorService, logger *slog.Logger) *SensorHandler {
	return &SensorHandler{svc: svc, logger: logger}
}

// HandleData ingests one reading.
//
// HTTP: POST /api/sensor/data {bin_id|sensor_id, fill_level, battery_level?}
func (h *SensorHandler) HandleData(w http.ResponseWriter, r *http.Request) {
	var in service.ReadingInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.Ingest(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HTTP: GET /api/sensor/{binId}/readings?limit=
func (h *SensorHandler) HandleReadings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultReadingsLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	readings, err := h.svc.Readings(r.Context(), chi.URLParam(r, "binId"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]model.SensorReading{"readings": readings})
}
