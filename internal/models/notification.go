package models

import "time"

// NotificationEvent is the decision to notify a citizen about a lifecycle
// transition. Delivery (push/SMS/email) is handled outside this service.
type NotificationEvent struct {
	EventID         string    `json:"event_id"`
	CitizenID       string    `json:"citizen_id"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	Type            string    `json:"type"`
	RelatedEntityID string    `json:"related_entity_id"`
	CreatedAt       time.Time `json:"created_at"`
}
