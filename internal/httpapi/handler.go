package httpapi

import (
	"encoding/json"
	"errors"
	"expvar"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pso/admission-service/internal/notify"
	"pso/admission-service/internal/store"

	"github.com/google/uuid"
)

type Handler struct {
	store    store.Store
	notifier *notify.Notifier
}

func NewHandler(store store.Store, notifier *notify.Notifier) *Handler {
	return &Handler{
		store:    store,
		notifier: notifier,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.Handle("/metrics", expvar.Handler())
	mux.HandleFunc("/api/services", h.handleServices)
	mux.HandleFunc("/api/tickets", h.handleTakeTicket)
	mux.HandleFunc("/api/tickets/walk-in", h.handleWalkIn)
	mux.HandleFunc("/api/tickets/my", h.handleMyStatus)
	mux.HandleFunc("/api/tickets/", h.handleTicketActions)
	mux.HandleFunc("/api/queues", h.handleListQueue)
	mux.HandleFunc("/api/slots", h.handleAvailableSlots)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/", h.handleAppointmentActions)
	mux.HandleFunc("/api/requests", h.handleRequests)
	mux.HandleFunc("/api/requests/", h.handleRequestSubtree)
	mux.HandleFunc("/api/notifications", h.handleNotifications)
	return mux
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 200 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	events, err := h.store.ListNotifications(r.Context(), actor.ID, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sectorID := strings.TrimSpace(r.URL.Query().Get("sector_id"))
	if sectorID != "" && !isValidUUID(sectorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "sector_id must be a UUID")
		return
	}
	services, err := h.store.ListServices(r.Context(), sectorID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, services)
}

type takeTicketRequest struct {
	ServiceID string `json:"service_id"`
}

func (h *Handler) handleTakeTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req takeTicketRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id is required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}

	ticket, err := h.store.TakeTicket(r.Context(), store.TakeTicketInput{
		CitizenID: actor.ID,
		ServiceID: req.ServiceID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

type walkInRequest struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	ServiceID string `json:"service_id"`
}

func (h *Handler) handleWalkIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireOfficer(w, r)
	if !ok {
		return
	}

	var req walkInRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.Name == "" || req.Phone == "" || req.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name, phone, and service_id are required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if !isValidPhone(req.Phone) {
		writeError(w, http.StatusBadRequest, "invalid_request", "phone must be 8-16 digits")
		return
	}

	ticket, err := h.store.RegisterWalkIn(r.Context(), store.WalkInInput{
		OfficerID: actor.ID,
		Name:      req.Name,
		Phone:     req.Phone,
		ServiceID: req.ServiceID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleMyStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticket, found, err := h.store.MyStatus(r.Context(), actor.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	if !found {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleListQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sectorID := strings.TrimSpace(r.URL.Query().Get("sector_id"))
	if sectorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "sector_id is required")
		return
	}
	if !isValidUUID(sectorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "sector_id must be a UUID")
		return
	}

	tickets, err := h.store.ListQueue(r.Context(), sectorID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

type forwardRequest struct {
	TargetSectorID string `json:"target_sector_id"`
	Remarks        string `json:"remarks"`
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticketID, action, ok := actionPath(w, r, "/api/tickets/")
	if !ok {
		return
	}

	switch action {
	case "call", "start", "complete", "reject":
		h.handleTicketStatusAction(w, r, ticketID, action)
	case "cancel":
		h.handleCancelTicket(w, r, ticketID)
	case "forward":
		h.handleForwardTicket(w, r, ticketID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTicketStatusAction(w http.ResponseWriter, r *http.Request, ticketID, action string) {
	actor, ok := requireOfficer(w, r)
	if !ok {
		return
	}

	ticket, prev, err := h.store.UpdateTicketStatus(r.Context(), store.TicketActionInput{
		TicketID:   ticketID,
		Action:     action,
		OfficerID:  actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindTicket, prev, ticket.Status, ticket.CitizenID, ticket.TicketID, ticket.ServiceName)
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCancelTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ticket, _, err := h.store.CancelTicket(r.Context(), store.CancelTicketInput{
		TicketID:   ticketID,
		CitizenID:  actor.ID,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleForwardTicket(w http.ResponseWriter, r *http.Request, ticketID string) {
	actor, ok := requireOfficer(w, r)
	if !ok {
		return
	}

	var req forwardRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TargetSectorID = strings.TrimSpace(req.TargetSectorID)
	req.Remarks = strings.TrimSpace(req.Remarks)
	if req.TargetSectorID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "target_sector_id is required")
		return
	}
	if !isValidUUID(req.TargetSectorID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "target_sector_id must be a UUID")
		return
	}

	ticket, err := h.store.ForwardTicket(r.Context(), store.ForwardTicketInput{
		TicketID:       ticketID,
		TargetSectorID: req.TargetSectorID,
		Remark:         req.Remarks,
		OfficerID:      actor.ID,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// actionPath parses "/{prefix}{id}/actions/{action}" and validates the id.
func actionPath(w http.ResponseWriter, r *http.Request, prefix string) (string, string, bool) {
	path := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[1] != "actions" {
		w.WriteHeader(http.StatusNotFound)
		return "", "", false
	}
	if !isValidUUID(parts[0]) {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a UUID")
		return "", "", false
	}
	return parts[0], parts[2], true
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func isValidPhone(value string) bool {
	if len(value) < 8 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isValidDate(value string) bool {
	_, err := time.Parse("2006-01-02", value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrServiceNotFound):
		return http.StatusNotFound, "service_not_found", "service not found"
	case errors.Is(err, store.ErrSectorNotFound):
		return http.StatusNotFound, "sector_not_found", "sector not found"
	case errors.Is(err, store.ErrCitizenNotFound):
		return http.StatusNotFound, "citizen_not_found", "citizen not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrAppointmentNotFound):
		return http.StatusNotFound, "appointment_not_found", "appointment not found"
	case errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound, "request_not_found", "request not found"
	case errors.Is(err, store.ErrServiceMode):
		return http.StatusBadRequest, "service_mode_mismatch", "service mode does not allow this operation"
	case errors.Is(err, store.ErrActiveTicket):
		return http.StatusConflict, "already_active", "citizen already holds an active ticket"
	case errors.Is(err, store.ErrDuplicateBooking):
		return http.StatusConflict, "duplicate_booking", "citizen already holds a booking for this date"
	case errors.Is(err, store.ErrSlotFull):
		return http.StatusConflict, "slot_full", "time slot is at capacity"
	case errors.Is(err, store.ErrSequenceConflict):
		return http.StatusConflict, "sequence_conflict", "ticket number allocation conflict, please retry"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "current status does not allow this action"
	case errors.Is(err, store.ErrNotCancellable):
		return http.StatusConflict, "not_cancellable", "only scheduled appointments can be cancelled"
	case errors.Is(err, store.ErrNotOwner):
		return http.StatusForbidden, "access_denied", "entity belongs to another citizen"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
