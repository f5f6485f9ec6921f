package postgres

import (
	"context"
	"errors"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultSlotCapacity = 3

type Store struct {
	pool         *pgxpool.Pool
	slotCapacity int
}

type Options struct {
	SlotCapacity int
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	capacity := options.SlotCapacity
	if capacity <= 0 {
		capacity = defaultSlotCapacity
	}
	return &Store{
		pool:         pool,
		slotCapacity: capacity,
	}
}

func (s *Store) ListServices(ctx context.Context, sectorID string) ([]models.Service, error) {
	query := `
		SELECT service_id, sector_id, name, code, mode, active
		FROM services
		WHERE active = TRUE
	`
	args := []interface{}{}
	if sectorID != "" {
		query += " AND sector_id = $1"
		args = append(args, sectorID)
	}
	query += " ORDER BY name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		var svc models.Service
		if err := rows.Scan(&svc.ServiceID, &svc.SectorID, &svc.Name, &svc.Code, &svc.Mode, &svc.Active); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return services, nil
}

func (s *Store) getService(ctx context.Context, serviceID string) (models.Service, error) {
	var svc models.Service
	row := s.pool.QueryRow(ctx, `
		SELECT service_id, sector_id, name, code, mode, active
		FROM services
		WHERE service_id = $1 AND active = TRUE
	`, serviceID)
	if err := row.Scan(&svc.ServiceID, &svc.SectorID, &svc.Name, &svc.Code, &svc.Mode, &svc.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func lookupService(ctx context.Context, tx pgx.Tx, serviceID string) (models.Service, error) {
	var svc models.Service
	row := tx.QueryRow(ctx, `
		SELECT service_id, sector_id, name, code, mode, active
		FROM services
		WHERE service_id = $1 AND active = TRUE
	`, serviceID)
	if err := row.Scan(&svc.ServiceID, &svc.SectorID, &svc.Name, &svc.Code, &svc.Mode, &svc.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Service{}, store.ErrServiceNotFound
		}
		return models.Service{}, err
	}
	return svc, nil
}

func ensureSectorExists(ctx context.Context, tx pgx.Tx, sectorID string) error {
	var id string
	row := tx.QueryRow(ctx, `SELECT sector_id FROM sectors WHERE sector_id = $1`, sectorID)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrSectorNotFound
		}
		return err
	}
	return nil
}

// nextTicketNumber allocates the next number in the per-service daily
// sequence. The upsert increments the counter row atomically, so two
// concurrent allocations for the same (service, day) can never observe the
// same value; the unique index on tickets is a backstop, not the mechanism.
func nextTicketNumber(ctx context.Context, tx pgx.Tx, serviceID, day string) (int, error) {
	var next int
	row := tx.QueryRow(ctx, `
		INSERT INTO ticket_sequences (service_id, day, next_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (service_id, day)
		DO UPDATE SET next_number = ticket_sequences.next_number + 1
		RETURNING next_number
	`, serviceID, day)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
