package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/notify"
	"pso/admission-service/internal/store"
)

type submitRequest struct {
	ServiceID string          `json:"service_id"`
	Data      json.RawMessage `json:"data"`
	Remarks   string          `json:"remarks"`
}

func (h *Handler) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmitRequest(w, r)
	case http.MethodGet:
		h.handleListRequests(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Remarks = strings.TrimSpace(req.Remarks)
	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if len(req.Data) > 0 && !json.Valid(req.Data) {
		writeError(w, http.StatusBadRequest, "invalid_request", "data must be a JSON object")
		return
	}

	request, err := h.store.SubmitRequest(r.Context(), store.SubmitRequestInput{
		CitizenID: actor.ID,
		ServiceID: req.ServiceID,
		Data:      req.Data,
		Remark:    req.Remarks,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	sectorID := strings.TrimSpace(r.URL.Query().Get("sector_id"))
	if sectorID != "" {
		if _, ok := requireOfficer(w, r); !ok {
			return
		}
		if !isValidUUID(sectorID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "sector_id must be a UUID")
			return
		}
		requests, err := h.store.ListRequestsBySector(r.Context(), sectorID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, requests)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	requests, err := h.store.ListRequestsByCitizen(r.Context(), actor.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

// handleRequestSubtree serves both GET /api/requests/{id} and
// POST /api/requests/{id}/actions/{action}.
func (h *Handler) handleRequestSubtree(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/requests/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGetRequest(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "actions" && r.Method == http.MethodPost:
		if !isValidUUID(parts[0]) {
			writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
			return
		}
		h.handleRequestStatusAction(w, r, parts[0], parts[2])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	if !isValidUUID(requestID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	request, err := h.store.GetRequest(r.Context(), requestID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if actor.Role != models.RoleOfficer && request.CitizenID != actor.ID {
		writeError(w, http.StatusForbidden, "access_denied", "entity belongs to another citizen")
		return
	}
	writeJSON(w, http.StatusOK, request)
}

type requestActionBody struct {
	Remarks string `json:"remarks"`
}

func (h *Handler) handleRequestStatusAction(w http.ResponseWriter, r *http.Request, requestID, action string) {
	switch action {
	case "start", "approve", "reject":
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	actor, ok := requireOfficer(w, r)
	if !ok {
		return
	}

	var body requestActionBody
	if r.ContentLength > 0 {
		if !decodeRequest(w, r, &body) {
			return
		}
	}

	request, prev, err := h.store.UpdateRequestStatus(r.Context(), store.RequestActionInput{
		RequestID:  requestID,
		Action:     action,
		OfficerID:  actor.ID,
		Remark:     strings.TrimSpace(body.Remarks),
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindRequest, prev, request.Status, request.CitizenID, request.RequestID, request.ServiceName)
	writeJSON(w, http.StatusOK, request)
}
