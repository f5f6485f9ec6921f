package httpapi

import (
	"net/http"
	"strings"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/notify"
	"pso/admission-service/internal/store"
)

func (h *Handler) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if serviceID == "" || date == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id and date are required")
		return
	}
	if !isValidUUID(serviceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if !isValidDate(date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.store.AvailableSlots(r.Context(), serviceID, date)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

type bookRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	TimeSlot  string `json:"time_slot"`
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleBook(w, r)
	case http.MethodGet:
		h.handleListAppointments(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Date = strings.TrimSpace(req.Date)
	req.TimeSlot = strings.TrimSpace(req.TimeSlot)
	if req.ServiceID == "" || req.Date == "" || req.TimeSlot == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id, date, and time_slot are required")
		return
	}
	if !isValidUUID(req.ServiceID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "service_id must be a UUID")
		return
	}
	if !isValidDate(req.Date) {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}
	if !models.IsValidTimeSlot(req.TimeSlot) {
		writeError(w, http.StatusBadRequest, "invalid_request", "time_slot is not a recognized slot")
		return
	}

	appt, err := h.store.BookAppointment(r.Context(), store.BookInput{
		CitizenID: actor.ID,
		ServiceID: req.ServiceID,
		Date:      req.Date,
		TimeSlot:  req.TimeSlot,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindAppointment, "", appt.Status, appt.CitizenID, appt.AppointmentID, appt.ServiceName)
	writeJSON(w, http.StatusCreated, appt)
}

func (h *Handler) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	sectorID := strings.TrimSpace(r.URL.Query().Get("sector_id"))
	if sectorID != "" {
		if _, ok := requireOfficer(w, r); !ok {
			return
		}
		if !isValidUUID(sectorID) {
			writeError(w, http.StatusBadRequest, "invalid_request", "sector_id must be a UUID")
			return
		}
		appointments, err := h.store.ListAppointmentsBySector(r.Context(), sectorID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, appointments)
		return
	}

	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	appointments, err := h.store.ListAppointmentsByCitizen(r.Context(), actor.ID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, appointments)
}

func (h *Handler) handleAppointmentActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	appointmentID, action, ok := actionPath(w, r, "/api/appointments/")
	if !ok {
		return
	}

	switch action {
	case "approve", "reject", "complete":
		h.handleAppointmentStatusAction(w, r, appointmentID, action)
	case "cancel":
		h.handleCancelAppointment(w, r, appointmentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAppointmentStatusAction(w http.ResponseWriter, r *http.Request, appointmentID, action string) {
	actor, ok := requireOfficer(w, r)
	if !ok {
		return
	}

	appt, prev, err := h.store.UpdateAppointmentStatus(r.Context(), store.AppointmentActionInput{
		AppointmentID: appointmentID,
		Action:        action,
		OfficerID:     actor.ID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindAppointment, prev, appt.Status, appt.CitizenID, appt.AppointmentID, appt.ServiceName)
	writeJSON(w, http.StatusOK, appt)
}

// Officers cancel through the transition table; citizens go through the
// ownership-checked path.
func (h *Handler) handleCancelAppointment(w http.ResponseWriter, r *http.Request, appointmentID string) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role == models.RoleOfficer {
		h.handleAppointmentStatusAction(w, r, appointmentID, "cancel")
		return
	}

	appt, prev, err := h.store.CancelAppointment(r.Context(), store.CancelAppointmentInput{
		AppointmentID: appointmentID,
		CitizenID:     actor.ID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	h.notifier.Notify(r.Context(), notify.KindAppointment, prev, appt.Status, appt.CitizenID, appt.AppointmentID, appt.ServiceName)
	writeJSON(w, http.StatusOK, appt)
}
