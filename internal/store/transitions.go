package store

import "pso/admission-service/internal/models"

// Each map keys an officer/citizen action to the statuses it may be applied
// from. Missing actions and terminal states always fail.

var ticketTransitions = map[string][]string{
	"call":     {models.TicketWaiting},
	"start":    {models.TicketCalling},
	"complete": {models.TicketProcessing},
	"reject":   {models.TicketWaiting, models.TicketCalling, models.TicketProcessing},
	"cancel":   {models.TicketWaiting},
	"forward":  {models.TicketWaiting, models.TicketCalling, models.TicketProcessing},
}

var ticketActionStatus = map[string]string{
	"call":     models.TicketCalling,
	"start":    models.TicketProcessing,
	"complete": models.TicketCompleted,
	"reject":   models.TicketRejected,
	"cancel":   models.TicketCancelled,
	"forward":  models.TicketWaiting,
}

var appointmentTransitions = map[string][]string{
	"approve":  {models.AppointmentPending},
	"reject":   {models.AppointmentPending},
	"complete": {models.AppointmentScheduled},
	"cancel":   {models.AppointmentScheduled},
}

var appointmentActionStatus = map[string]string{
	"approve":  models.AppointmentScheduled,
	"reject":   models.AppointmentRejected,
	"complete": models.AppointmentCompleted,
	"cancel":   models.AppointmentCancelled,
}

var requestTransitions = map[string][]string{
	"start":   {models.RequestPending},
	"approve": {models.RequestProcessing},
	"reject":  {models.RequestPending, models.RequestProcessing},
}

var requestActionStatus = map[string]string{
	"start":   models.RequestProcessing,
	"approve": models.RequestCompleted,
	"reject":  models.RequestRejected,
}

func allowedFrom(table map[string][]string, action, fromStatus string) bool {
	allowed, ok := table[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

func ValidTicketTransition(action, fromStatus string) bool {
	return allowedFrom(ticketTransitions, action, fromStatus)
}

func ValidAppointmentTransition(action, fromStatus string) bool {
	return allowedFrom(appointmentTransitions, action, fromStatus)
}

func ValidRequestTransition(action, fromStatus string) bool {
	return allowedFrom(requestTransitions, action, fromStatus)
}

// TicketStatusFor returns the status an action moves a ticket into.
func TicketStatusFor(action string) (string, bool) {
	status, ok := ticketActionStatus[action]
	return status, ok
}

func AppointmentStatusFor(action string) (string, bool) {
	status, ok := appointmentActionStatus[action]
	return status, ok
}

func RequestStatusFor(action string) (string, bool) {
	status, ok := requestActionStatus[action]
	return status, ok
}

// TicketStatusesFor returns the statuses an action may be applied from, for
// use in guarded UPDATE statements.
func TicketStatusesFor(action string) []string {
	return ticketTransitions[action]
}

func AppointmentStatusesFor(action string) []string {
	return appointmentTransitions[action]
}

func RequestStatusesFor(action string) []string {
	return requestTransitions[action]
}
