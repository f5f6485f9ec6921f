package store

import (
	"context"
	"encoding/json"
	"time"

	"pso/admission-service/internal/models"
)

type TakeTicketInput struct {
	CitizenID string
	ServiceID string
	CreatedAt time.Time
}

type WalkInInput struct {
	OfficerID string
	Name      string
	Phone     string
	ServiceID string
	CreatedAt time.Time
}

type TicketActionInput struct {
	TicketID   string
	Action     string
	OfficerID  string
	OccurredAt time.Time
}

type CancelTicketInput struct {
	TicketID   string
	CitizenID  string
	OccurredAt time.Time
}

type ForwardTicketInput struct {
	TicketID       string
	TargetSectorID string
	Remark         string
	OfficerID      string
	OccurredAt     time.Time
}

type BookInput struct {
	CitizenID string
	ServiceID string
	Date      string
	TimeSlot  string
	CreatedAt time.Time
}

type AppointmentActionInput struct {
	AppointmentID string
	Action        string
	OfficerID     string
	OccurredAt    time.Time
}

type CancelAppointmentInput struct {
	AppointmentID string
	CitizenID     string
	OccurredAt    time.Time
}

type SubmitRequestInput struct {
	CitizenID string
	ServiceID string
	Data      json.RawMessage
	Remark    string
	CreatedAt time.Time
}

type RequestActionInput struct {
	RequestID  string
	Action     string
	OfficerID  string
	Remark     string
	OccurredAt time.Time
}

// Store is the persistence contract for the three admission engines and the
// catalog read model. Transition methods return the entity after the update
// together with the status it was in before, so callers can describe the
// transition without a second read.
type Store interface {
	TakeTicket(ctx context.Context, input TakeTicketInput) (models.Ticket, error)
	RegisterWalkIn(ctx context.Context, input WalkInInput) (models.Ticket, error)
	ListQueue(ctx context.Context, sectorID string) ([]models.Ticket, error)
	UpdateTicketStatus(ctx context.Context, input TicketActionInput) (models.Ticket, string, error)
	CancelTicket(ctx context.Context, input CancelTicketInput) (models.Ticket, string, error)
	MyStatus(ctx context.Context, citizenID string) (models.Ticket, bool, error)
	ForwardTicket(ctx context.Context, input ForwardTicketInput) (models.Ticket, error)

	AvailableSlots(ctx context.Context, serviceID, date string) ([]models.SlotAvailability, error)
	BookAppointment(ctx context.Context, input BookInput) (models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, input AppointmentActionInput) (models.Appointment, string, error)
	CancelAppointment(ctx context.Context, input CancelAppointmentInput) (models.Appointment, string, error)
	ListAppointmentsBySector(ctx context.Context, sectorID string) ([]models.Appointment, error)
	ListAppointmentsByCitizen(ctx context.Context, citizenID string) ([]models.Appointment, error)

	SubmitRequest(ctx context.Context, input SubmitRequestInput) (models.ServiceRequest, error)
	UpdateRequestStatus(ctx context.Context, input RequestActionInput) (models.ServiceRequest, string, error)
	GetRequest(ctx context.Context, requestID string) (models.ServiceRequest, error)
	ListRequestsBySector(ctx context.Context, sectorID string) ([]models.ServiceRequest, error)
	ListRequestsByCitizen(ctx context.Context, citizenID string) ([]models.ServiceRequest, error)

	ListServices(ctx context.Context, sectorID string) ([]models.Service, error)
	ListNotifications(ctx context.Context, citizenID string, limit int) ([]models.NotificationEvent, error)
}
