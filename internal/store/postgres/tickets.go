package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const ticketNumberPad = 3

func (s *Store) TakeTicket(ctx context.Context, input store.TakeTicketInput) (models.Ticket, error) {
	return s.withNumberRetry(ctx, func(ctx context.Context, tx pgx.Tx) (models.Ticket, error) {
		return createTicketTx(ctx, tx, input.CitizenID, "", input.ServiceID, input.CreatedAt)
	})
}

// RegisterWalkIn resolves the citizen by phone (creating one if needed) and
// creates the ticket in the same transaction, stamped with the registering
// officer.
func (s *Store) RegisterWalkIn(ctx context.Context, input store.WalkInInput) (models.Ticket, error) {
	return s.withNumberRetry(ctx, func(ctx context.Context, tx pgx.Tx) (models.Ticket, error) {
		citizenID, err := upsertCitizenByPhone(ctx, tx, input.Name, input.Phone, input.CreatedAt)
		if err != nil {
			return models.Ticket{}, err
		}
		return createTicketTx(ctx, tx, citizenID, input.OfficerID, input.ServiceID, input.CreatedAt)
	})
}

// withNumberRetry runs the creation transaction, retrying once if the daily
// number uniqueness backstop fires. Exhausting the retry surfaces a conflict
// rather than renumbering silently.
func (s *Store) withNumberRetry(ctx context.Context, create func(context.Context, pgx.Tx) (models.Ticket, error)) (models.Ticket, error) {
	var ticket models.Ticket
	for attempt := 0; attempt < 2; attempt++ {
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return models.Ticket{}, err
		}
		ticket, err = create(ctx, tx)
		if err == nil {
			err = tx.Commit(ctx)
		}
		if err == nil {
			return ticket, nil
		}
		_ = tx.Rollback(ctx)
		switch {
		case uniqueViolation(err, "tickets_one_active_idx"):
			return models.Ticket{}, store.ErrActiveTicket
		case uniqueViolation(err, "tickets_service_day_number_idx"):
			continue
		default:
			return models.Ticket{}, err
		}
	}
	return models.Ticket{}, store.ErrSequenceConflict
}

func upsertCitizenByPhone(ctx context.Context, tx pgx.Tx, name, phone string, createdAt time.Time) (string, error) {
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var citizenID string
	row := tx.QueryRow(ctx, `
		INSERT INTO citizens (citizen_id, name, phone, role, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (phone) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), citizens.name)
		RETURNING citizen_id
	`, uuid.NewString(), name, phone, models.RoleCitizen, createdAt)
	if err := row.Scan(&citizenID); err != nil {
		return "", err
	}
	return citizenID, nil
}

func createTicketTx(ctx context.Context, tx pgx.Tx, citizenID, officerID, serviceID string, createdAt time.Time) (models.Ticket, error) {
	svc, err := lookupService(ctx, tx, serviceID)
	if err != nil {
		return models.Ticket{}, err
	}
	if svc.Mode != models.ModeQueue {
		return models.Ticket{}, store.ErrServiceMode
	}

	var hasActive bool
	row := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE citizen_id = $1 AND status = ANY($2)
		)
	`, citizenID, models.ActiveTicketStatuses)
	if err = row.Scan(&hasActive); err != nil {
		return models.Ticket{}, err
	}
	if hasActive {
		return models.Ticket{}, store.ErrActiveTicket
	}

	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	day := createdAt.UTC().Format("2006-01-02")
	seq, err := nextTicketNumber(ctx, tx, serviceID, day)
	if err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	var officerNull sql.NullString
	row = tx.QueryRow(ctx, `
		INSERT INTO tickets (ticket_id, service_id, citizen_id, day, ticket_number, status, officer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING ticket_id, service_id, citizen_id, ticket_number, status, officer_id, created_at, updated_at
	`, uuid.NewString(), serviceID, citizenID, day, seq, models.TicketWaiting, nullIfEmpty(officerID), createdAt)
	if err = row.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &officerNull, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	ticket.OfficerID = nullStringPtr(officerNull)
	ticket.ServiceName = svc.Name
	ticket.ServiceCode = svc.Code
	ticket.SectorID = svc.SectorID
	ticket.Display = formatTicketNumber(svc.Code, ticket.TicketNumber)
	return ticket, nil
}

func (s *Store) ListQueue(ctx context.Context, sectorID string) ([]models.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.ticket_id, t.service_id, s.name, s.code, s.sector_id, t.citizen_id,
			t.ticket_number, t.status, t.officer_id, t.remark, t.created_at, t.updated_at
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE s.sector_id = $1 AND t.status = ANY($2)
		ORDER BY t.created_at ASC
	`, sectorID, models.ActiveTicketStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var ticket models.Ticket
		var officerNull sql.NullString
		if err := rows.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.ServiceName, &ticket.ServiceCode, &ticket.SectorID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &officerNull, &ticket.Remark, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
			return nil, err
		}
		ticket.OfficerID = nullStringPtr(officerNull)
		ticket.Display = formatTicketNumber(ticket.ServiceCode, ticket.TicketNumber)
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) UpdateTicketStatus(ctx context.Context, input store.TicketActionInput) (models.Ticket, string, error) {
	newStatus, ok := store.TicketStatusFor(input.Action)
	if !ok {
		return models.Ticket{}, "", store.ErrInvalidTransition
	}
	allowed := store.TicketStatusesFor(input.Action)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var ticket models.Ticket
	var officerNull sql.NullString
	var prevStatus string
	row := tx.QueryRow(ctx, `
		WITH current AS (
			SELECT ticket_id, status
			FROM tickets
			WHERE ticket_id = $1
			FOR UPDATE
		), updated AS (
			UPDATE tickets t
			SET status = $2,
				officer_id = COALESCE(t.officer_id, $3),
				updated_at = $4
			FROM current
			WHERE t.ticket_id = current.ticket_id AND current.status = ANY($5)
			RETURNING t.ticket_id, t.service_id, t.citizen_id, t.ticket_number, t.status, t.officer_id, t.remark, t.created_at, t.updated_at
		)
		SELECT updated.ticket_id, updated.service_id, updated.citizen_id, updated.ticket_number,
			updated.status, updated.officer_id, updated.remark, updated.created_at, updated.updated_at, current.status
		FROM updated
		JOIN current ON TRUE
	`, input.TicketID, newStatus, nullIfEmpty(input.OfficerID), occurredAt, allowed)
	if err = row.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &officerNull, &ticket.Remark, &ticket.CreatedAt, &ticket.UpdatedAt, &prevStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = classifyTicketFailure(ctx, tx, input.TicketID)
			return models.Ticket{}, "", err
		}
		return models.Ticket{}, "", err
	}
	ticket.OfficerID = nullStringPtr(officerNull)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, "", err
	}
	return ticket, prevStatus, nil
}

func (s *Store) CancelTicket(ctx context.Context, input store.CancelTicketInput) (models.Ticket, string, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ownerID, status string
	row := tx.QueryRow(ctx, `
		SELECT citizen_id, status FROM tickets WHERE ticket_id = $1 FOR UPDATE
	`, input.TicketID)
	if err = row.Scan(&ownerID, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, "", err
	}
	if ownerID != input.CitizenID {
		err = store.ErrNotOwner
		return models.Ticket{}, "", err
	}
	if !store.ValidTicketTransition("cancel", status) {
		err = store.ErrInvalidTransition
		return models.Ticket{}, "", err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	var ticket models.Ticket
	var officerNull sql.NullString
	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET status = $2, updated_at = $3
		WHERE ticket_id = $1
		RETURNING ticket_id, service_id, citizen_id, ticket_number, status, officer_id, remark, created_at, updated_at
	`, input.TicketID, models.TicketCancelled, occurredAt)
	if err = row.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &officerNull, &ticket.Remark, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return models.Ticket{}, "", err
	}
	ticket.OfficerID = nullStringPtr(officerNull)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, "", err
	}
	return ticket, status, nil
}

func (s *Store) MyStatus(ctx context.Context, citizenID string) (models.Ticket, bool, error) {
	var ticket models.Ticket
	var officerNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT t.ticket_id, t.service_id, s.name, s.code, s.sector_id, t.citizen_id,
			t.ticket_number, t.status, t.officer_id, t.remark, t.created_at, t.updated_at
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.citizen_id = $1 AND t.status = ANY($2)
		ORDER BY t.created_at DESC
		LIMIT 1
	`, citizenID, models.ActiveTicketStatuses)
	if err := row.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.ServiceName, &ticket.ServiceCode, &ticket.SectorID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &officerNull, &ticket.Remark, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	ticket.OfficerID = nullStringPtr(officerNull)
	ticket.Display = formatTicketNumber(ticket.ServiceCode, ticket.TicketNumber)

	// Always recompute; positions shift as earlier tickets resolve.
	var ahead int
	row = s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM tickets
		WHERE service_id = $1 AND status = $2 AND created_at < $3
	`, ticket.ServiceID, models.TicketWaiting, ticket.CreatedAt)
	if err := row.Scan(&ahead); err != nil {
		return models.Ticket{}, false, err
	}
	ticket.PeopleAhead = &ahead

	return ticket, true, nil
}

// ForwardTicket moves a live ticket to the target sector's matching service.
// The ticket keeps its created_at (arrival seniority) but draws a fresh
// number from the target service's daily sequence, and the officer claim is
// cleared so the receiving sector starts from waiting.
func (s *Store) ForwardTicket(ctx context.Context, input store.ForwardTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var currentStatus, currentServiceID, currentCode string
	row := tx.QueryRow(ctx, `
		SELECT t.status, t.service_id, s.code
		FROM tickets t
		JOIN services s ON s.service_id = t.service_id
		WHERE t.ticket_id = $1
		FOR UPDATE OF t
	`, input.TicketID)
	if err = row.Scan(&currentStatus, &currentServiceID, &currentCode); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	if !store.ValidTicketTransition("forward", currentStatus) {
		err = store.ErrInvalidTransition
		return models.Ticket{}, err
	}

	if err = ensureSectorExists(ctx, tx, input.TargetSectorID); err != nil {
		return models.Ticket{}, err
	}
	target, err := findForwardTarget(ctx, tx, input.TargetSectorID, currentCode)
	if err != nil {
		return models.Ticket{}, err
	}

	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	day := occurredAt.UTC().Format("2006-01-02")
	seq, err := nextTicketNumber(ctx, tx, target.ServiceID, day)
	if err != nil {
		return models.Ticket{}, err
	}

	var ticket models.Ticket
	row = tx.QueryRow(ctx, `
		UPDATE tickets
		SET service_id = $2,
			day = $3,
			ticket_number = $4,
			status = $5,
			officer_id = NULL,
			remark = $6,
			updated_at = $7
		WHERE ticket_id = $1
		RETURNING ticket_id, service_id, citizen_id, ticket_number, status, remark, created_at, updated_at
	`, input.TicketID, target.ServiceID, day, seq, models.TicketWaiting, input.Remark, occurredAt)
	if err = row.Scan(&ticket.TicketID, &ticket.ServiceID, &ticket.CitizenID, &ticket.TicketNumber, &ticket.Status, &ticket.Remark, &ticket.CreatedAt, &ticket.UpdatedAt); err != nil {
		return models.Ticket{}, err
	}
	ticket.ServiceName = target.Name
	ticket.ServiceCode = target.Code
	ticket.SectorID = target.SectorID
	ticket.Display = formatTicketNumber(target.Code, ticket.TicketNumber)

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// findForwardTarget picks the equivalent service in the target sector: same
// service code when one exists, otherwise the sector's first active queue
// service.
func findForwardTarget(ctx context.Context, tx pgx.Tx, sectorID, code string) (models.Service, error) {
	var svc models.Service
	row := tx.QueryRow(ctx, `
		SELECT service_id, sector_id, name, code, mode, active
		FROM services
		WHERE sector_id = $1 AND mode = $2 AND active = TRUE
		ORDER BY (code = $3) DESC, name ASC
		LIMIT 1
	`, sectorID, models.ModeQueue, code)
	if err := row.Scan(&svc.ServiceID, &svc.SectorID, &svc.Name, &svc.Code, &svc.Mode, &svc.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func classifyTicketFailure(ctx context.Context, tx pgx.Tx, ticketID string) error {
	var status string
	row := tx.QueryRow(ctx, `SELECT status FROM tickets WHERE ticket_id = $1`, ticketID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrTicketNotFound
		}
		return err
	}
	return store.ErrInvalidTransition
}

func formatTicketNumber(code string, number int) string {
	return fmt.Sprintf("%s-%0*d", code, ticketNumberPad, number)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	result := value.String
	return &result
}
