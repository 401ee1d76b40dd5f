package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/smartbin/internal/auth"
	"github.com/sakif/smartbin/internal/model"
	"github.com/sakif/smartbin/internal/repository"
	"github.com/sakif/smartbin/internal/service"
)

const defaultHistoryLimit = 50

// ActionHandler serves /api/actions.
type ActionHandler struct {
	svc    *service.ActionService
	logger *slog.Logger
}

func NewActionHandler(svc *service.ActionService, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{svc: svc, logger: logger}
}

type actionResponse struct {
	Message string        `json:"message"`
	Action  *model.Action `json:"action"`
}

type historyResponse struct {
	History []model.ActionHistoryEntry `json:"history"`
	Limit   int                        `json:"limit"`
	Offset  int                        `json:"offset"`
}

// HandleEmpty records that the caller emptied a bin.
//
// HTTP: POST /api/actions/empty {bin_id?, notes?}
func (h *ActionHandler) HandleEmpty(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())

	var in service.EmptyBinInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}

	action, err := h.svc.EmptyBin(r.Context(), claims.UserID, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, actionResponse{Message: "Action recorded", Action: action})
}

// HandleHistory pages through the action log.
//
// HTTP: GET /api/actions/history?limit=50&offset=0
func (h *ActionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultHistoryLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	history, err := h.svc.History(r.Context(), repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{History: history, Limit: limit, Offset: offset})
}
