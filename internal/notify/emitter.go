package notify

import (
	"context"
	"fmt"
	"log"

	"pso/admission-service/internal/models"
)

// Entity kinds accepted by Emit.
const (
	KindTicket      = "ticket"
	KindAppointment = "appointment"
	KindRequest     = "request"
)

// Emit translates a lifecycle transition into a notification event, or nil
// when the transition has no citizen-facing meaning. Queue tickets never
// notify (clients poll their status); appointments notify on every
// transition; requests notify on completion and rejection only.
func Emit(kind, oldStatus, newStatus, citizenID, entityID, serviceName string) *models.NotificationEvent {
	if oldStatus == newStatus {
		return nil
	}
	switch kind {
	case KindTicket:
		return nil
	case KindAppointment:
		title, message := appointmentTemplate(newStatus, serviceName)
		if title == "" {
			return nil
		}
		return &models.NotificationEvent{
			CitizenID:       citizenID,
			Title:           title,
			Message:         message,
			Type:            "appointment." + newStatus,
			RelatedEntityID: entityID,
		}
	case KindRequest:
		title, message := requestTemplate(newStatus, serviceName)
		if title == "" {
			return nil
		}
		return &models.NotificationEvent{
			CitizenID:       citizenID,
			Title:           title,
			Message:         message,
			Type:            "request." + newStatus,
			RelatedEntityID: entityID,
		}
	}
	return nil
}

func appointmentTemplate(status, serviceName string) (string, string) {
	switch status {
	case models.AppointmentPending:
		return "Appointment received", fmt.Sprintf("Your appointment request for %s was received and is awaiting approval.", serviceName)
	case models.AppointmentScheduled:
		return "Appointment scheduled", fmt.Sprintf("Your appointment for %s has been scheduled.", serviceName)
	case models.AppointmentCompleted:
		return "Appointment completed", fmt.Sprintf("Your appointment for %s is complete.", serviceName)
	case models.AppointmentRejected:
		return "Appointment rejected", fmt.Sprintf("Your appointment request for %s was rejected.", serviceName)
	case models.AppointmentCancelled:
		return "Appointment cancelled", fmt.Sprintf("Your appointment for %s has been cancelled.", serviceName)
	}
	return "", ""
}

func requestTemplate(status, serviceName string) (string, string) {
	switch status {
	case models.RequestCompleted:
		return "Request completed", fmt.Sprintf("Your request for %s has been completed.", serviceName)
	case models.RequestRejected:
		return "Request rejected", fmt.Sprintf("Your request for %s was rejected.", serviceName)
	}
	return "", ""
}

// Sink records emit decisions for out-of-band delivery.
type Sink interface {
	PublishNotification(ctx context.Context, event models.NotificationEvent) error
}

// Notifier publishes emitted events best-effort: sink failures are logged
// and never surfaced, so a notification problem cannot undo a committed
// state transition.
type Notifier struct {
	sink Sink
}

func NewNotifier(sink Sink) *Notifier {
	return &Notifier{sink: sink}
}

func (n *Notifier) Notify(ctx context.Context, kind, oldStatus, newStatus, citizenID, entityID, serviceName string) {
	if n == nil || n.sink == nil {
		return
	}
	event := Emit(kind, oldStatus, newStatus, citizenID, entityID, serviceName)
	if event == nil {
		return
	}
	if err := n.sink.PublishNotification(ctx, *event); err != nil {
		log.Printf("notify publish error kind=%s entity=%s: %v", kind, entityID, err)
	}
}
