package postgres

import (
	"context"
	"time"

	"pso/admission-service/internal/models"

	"github.com/google/uuid"
)

// PublishNotification records an emit decision in the notification outbox.
// Delivery workers drain the outbox out of band; this runs after the state
// transition has committed and its failure is the caller's to log, not to
// propagate.
func (s *Store) PublishNotification(ctx context.Context, event models.NotificationEvent) error {
	eventID := event.EventID
	if eventID == "" {
		eventID = uuid.NewString()
	}
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notification_outbox (event_id, citizen_id, title, message, type, related_entity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, eventID, event.CitizenID, event.Title, event.Message, event.Type, event.RelatedEntityID, createdAt)
	return err
}

// ListNotifications returns outbox entries for a citizen, newest first.
func (s *Store) ListNotifications(ctx context.Context, citizenID string, limit int) ([]models.NotificationEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, citizen_id, title, message, type, related_entity_id, created_at
		FROM notification_outbox
		WHERE citizen_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, citizenID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.NotificationEvent
	for rows.Next() {
		var event models.NotificationEvent
		if err := rows.Scan(&event.EventID, &event.CitizenID, &event.Title, &event.Message, &event.Type, &event.RelatedEntityID, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
