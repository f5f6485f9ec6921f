package postgres

import (
	"context"
	"errors"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) AvailableSlots(ctx context.Context, serviceID, date string) ([]models.SlotAvailability, error) {
	svc, err := s.getService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if svc.Mode != models.ModeAppointment {
		return nil, store.ErrServiceMode
	}

	rows, err := s.pool.Query(ctx, `
		SELECT time_slot, booked
		FROM slot_capacity
		WHERE service_id = $1 AND date = $2
	`, serviceID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	booked := make(map[string]int)
	for rows.Next() {
		var slot string
		var count int
		if err := rows.Scan(&slot, &count); err != nil {
			return nil, err
		}
		booked[slot] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slots := make([]models.SlotAvailability, 0, len(models.TimeSlots))
	for _, slot := range models.TimeSlots {
		count := booked[slot]
		slots = append(slots, models.SlotAvailability{
			TimeSlot:    slot,
			Booked:      count,
			Capacity:    s.slotCapacity,
			IsAvailable: count < s.slotCapacity,
		})
	}
	return slots, nil
}

// BookAppointment holds the duplicate-booking check, the capacity increment,
// and the insert in one transaction so two citizens racing for the last
// capacity unit cannot both win.
func (s *Store) BookAppointment(ctx context.Context, input store.BookInput) (models.Appointment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	svc, err := lookupService(ctx, tx, input.ServiceID)
	if err != nil {
		return models.Appointment{}, err
	}
	if svc.Mode != models.ModeAppointment {
		err = store.ErrServiceMode
		return models.Appointment{}, err
	}

	var hasBooking bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE citizen_id = $1 AND date = $2 AND status = ANY($3)
		)
	`, input.CitizenID, input.Date, []string{models.AppointmentPending, models.AppointmentScheduled})
	if err = row.Scan(&hasBooking); err != nil {
		return models.Appointment{}, err
	}
	if hasBooking {
		err = store.ErrDuplicateBooking
		return models.Appointment{}, err
	}

	// Guarded upsert on the capacity counter; no row returned means the slot
	// is already at capacity.
	var bookedCount int
	row = tx.QueryRow(ctx, `
		INSERT INTO slot_capacity (service_id, date, time_slot, booked)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (service_id, date, time_slot)
		DO UPDATE SET booked = slot_capacity.booked + 1
		WHERE slot_capacity.booked < $4
		RETURNING booked
	`, input.ServiceID, input.Date, input.TimeSlot, s.slotCapacity)
	if err = row.Scan(&bookedCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrSlotFull
		}
		return models.Appointment{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var appt models.Appointment
	row = tx.QueryRow(ctx, `
		INSERT INTO appointments (appointment_id, service_id, citizen_id, date, time_slot, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING appointment_id, service_id, citizen_id, date::text, time_slot, status, created_at, updated_at
	`, uuid.NewString(), input.ServiceID, input.CitizenID, input.Date, input.TimeSlot, models.AppointmentPending, createdAt)
	if err = row.Scan(&appt.AppointmentID, &appt.ServiceID, &appt.CitizenID, &appt.Date, &appt.TimeSlot, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		if uniqueViolation(err, "appointments_one_per_day_idx") {
			err = store.ErrDuplicateBooking
		}
		return models.Appointment{}, err
	}
	appt.ServiceName = svc.Name
	appt.SectorID = svc.SectorID

	if err = tx.Commit(ctx); err != nil {
		if uniqueViolation(err, "appointments_one_per_day_idx") {
			err = store.ErrDuplicateBooking
		}
		return models.Appointment{}, err
	}
	return appt, nil
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, input store.AppointmentActionInput) (models.Appointment, string, error) {
	newStatus, ok := store.AppointmentStatusFor(input.Action)
	if !ok {
		return models.Appointment{}, "", store.ErrInvalidTransition
	}
	allowed := store.AppointmentStatusesFor(input.Action)
	releaseCapacity := newStatus == models.AppointmentRejected || newStatus == models.AppointmentCancelled
	return s.transitionAppointment(ctx, input.AppointmentID, "", newStatus, allowed, input.OccurredAt, releaseCapacity)
}

// CancelAppointment is the citizen-initiated path: ownership is enforced and
// only a scheduled appointment may be cancelled.
func (s *Store) CancelAppointment(ctx context.Context, input store.CancelAppointmentInput) (models.Appointment, string, error) {
	appt, prev, err := s.transitionAppointment(ctx, input.AppointmentID, input.CitizenID, models.AppointmentCancelled,
		[]string{models.AppointmentScheduled}, input.OccurredAt, true)
	if errors.Is(err, store.ErrInvalidTransition) {
		return models.Appointment{}, "", store.ErrNotCancellable
	}
	return appt, prev, err
}

func (s *Store) transitionAppointment(ctx context.Context, appointmentID, ownerID, newStatus string, allowed []string, occurredAt time.Time, releaseCapacity bool) (models.Appointment, string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var citizenID, status string
	row := tx.QueryRow(ctx, `
		SELECT citizen_id, status FROM appointments WHERE appointment_id = $1 FOR UPDATE
	`, appointmentID)
	if err = row.Scan(&citizenID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrAppointmentNotFound
		}
		return models.Appointment{}, "", err
	}
	if ownerID != "" && citizenID != ownerID {
		err = store.ErrNotOwner
		return models.Appointment{}, "", err
	}
	allowedFrom := false
	for _, from := range allowed {
		if from == status {
			allowedFrom = true
			break
		}
	}
	if !allowedFrom {
		err = store.ErrInvalidTransition
		return models.Appointment{}, "", err
	}

	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var appt models.Appointment
	row = tx.QueryRow(ctx, `
		UPDATE appointments a
		SET status = $2, updated_at = $3
		FROM services s
		WHERE a.appointment_id = $1 AND s.service_id = a.service_id
		RETURNING a.appointment_id, a.service_id, s.name, s.sector_id, a.citizen_id, a.date::text, a.time_slot, a.status, a.created_at, a.updated_at
	`, appointmentID, newStatus, occurredAt)
	if err = row.Scan(&appt.AppointmentID, &appt.ServiceID, &appt.ServiceName, &appt.SectorID, &appt.CitizenID, &appt.Date, &appt.TimeSlot, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return models.Appointment{}, "", err
	}

	if releaseCapacity {
		if _, err = tx.Exec(ctx, `
			UPDATE slot_capacity
			SET booked = GREATEST(booked - 1, 0)
			WHERE service_id = $1 AND date = $2 AND time_slot = $3
		`, appt.ServiceID, appt.Date, appt.TimeSlot); err != nil {
			return models.Appointment{}, "", err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, "", err
	}
	return appt, status, nil
}

func (s *Store) ListAppointmentsBySector(ctx context.Context, sectorID string) ([]models.Appointment, error) {
	return s.listAppointments(ctx, `s.sector_id = $1`, sectorID)
}

func (s *Store) ListAppointmentsByCitizen(ctx context.Context, citizenID string) ([]models.Appointment, error) {
	return s.listAppointments(ctx, `a.citizen_id = $1`, citizenID)
}

func (s *Store) listAppointments(ctx context.Context, filter, arg string) ([]models.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.appointment_id, a.service_id, s.name, s.sector_id, a.citizen_id,
			a.date::text, a.time_slot, a.status, a.created_at, a.updated_at
		FROM appointments a
		JOIN services s ON s.service_id = a.service_id
		WHERE `+filter+`
		ORDER BY a.created_at DESC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		var appt models.Appointment
		if err := rows.Scan(&appt.AppointmentID, &appt.ServiceID, &appt.ServiceName, &appt.SectorID, &appt.CitizenID, &appt.Date, &appt.TimeSlot, &appt.Status, &appt.CreatedAt, &appt.UpdatedAt); err != nil {
			return nil, err
		}
		appointments = append(appointments, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appointments, nil
}
