package models

import "time"

type Ticket struct {
	TicketID     string    `json:"ticket_id"`
	ServiceID    string    `json:"service_id"`
	ServiceName  string    `json:"service_name,omitempty"`
	ServiceCode  string    `json:"service_code,omitempty"`
	SectorID     string    `json:"sector_id,omitempty"`
	CitizenID    string    `json:"citizen_id"`
	TicketNumber int       `json:"ticket_number"`
	Display      string    `json:"display,omitempty"`
	Status       string    `json:"status"`
	OfficerID    *string   `json:"officer_id,omitempty"`
	Remark       string    `json:"remark,omitempty"`
	PeopleAhead  *int      `json:"people_ahead,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	TicketWaiting    = "waiting"
	TicketCalling    = "calling"
	TicketProcessing = "processing"
	TicketCompleted  = "completed"
	TicketRejected   = "rejected"
	TicketCancelled  = "cancelled"
)

// ActiveTicketStatuses are the states in which a ticket still occupies the
// citizen's single queue slot.
var ActiveTicketStatuses = []string{TicketWaiting, TicketCalling, TicketProcessing}
