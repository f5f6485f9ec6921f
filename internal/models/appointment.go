package models

import "time"

type Appointment struct {
	AppointmentID string    `json:"appointment_id"`
	ServiceID     string    `json:"service_id"`
	ServiceName   string    `json:"service_name,omitempty"`
	SectorID      string    `json:"sector_id,omitempty"`
	CitizenID     string    `json:"citizen_id"`
	Date          string    `json:"date"`
	TimeSlot      string    `json:"time_slot"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const (
	AppointmentPending   = "pending"
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentRejected  = "rejected"
	AppointmentCancelled = "cancelled"
)

// TimeSlots is the fixed daily slot set. Capacity per slot is bounded by the
// slot allocator, not by this list.
var TimeSlots = []string{
	"08:30-09:30",
	"09:30-10:30",
	"10:30-11:30",
	"13:00-14:00",
	"14:00-15:00",
}

func IsValidTimeSlot(slot string) bool {
	for _, s := range TimeSlots {
		if s == slot {
			return true
		}
	}
	return false
}

type SlotAvailability struct {
	TimeSlot    string `json:"time_slot"`
	Booked      int    `json:"booked"`
	Capacity    int    `json:"capacity"`
	IsAvailable bool   `json:"is_available"`
}
