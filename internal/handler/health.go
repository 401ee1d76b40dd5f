package handler

import (
	"net/http"

	"github.com/sakif/smartbin/internal/service"
)

// HealthHandler serves GET /api/health. It answers 503 when the database
// is unreachable so load balancers take the instance out.
type HealthHandler struct {
	svc *service.HealthService
}

func NewHealthHandler(svc *service.HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.svc.Check(r.Context())
	status := http.StatusOK
	if report.Status == service.HealthDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
