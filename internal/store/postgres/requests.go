package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Store) SubmitRequest(ctx context.Context, input store.SubmitRequestInput) (models.ServiceRequest, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServiceRequest{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	svc, err := lookupService(ctx, tx, input.ServiceID)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	if svc.Mode != models.ModeOnline {
		err = store.ErrServiceMode
		return models.ServiceRequest{}, err
	}

	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	data := input.Data
	if len(data) == 0 {
		data = []byte("{}")
	}

	var request models.ServiceRequest
	row := tx.QueryRow(ctx, `
		INSERT INTO service_requests (request_id, service_id, citizen_id, data, remark, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING request_id, service_id, citizen_id, data, remark, status, created_at, updated_at
	`, uuid.NewString(), input.ServiceID, input.CitizenID, data, input.Remark, models.RequestPending, createdAt)
	if err = row.Scan(&request.RequestID, &request.ServiceID, &request.CitizenID, &request.Data, &request.Remark, &request.Status, &request.CreatedAt, &request.UpdatedAt); err != nil {
		return models.ServiceRequest{}, err
	}
	request.ServiceName = svc.Name
	request.SectorID = svc.SectorID

	if input.Remark != "" {
		if err = appendRemark(ctx, tx, request.RequestID, "", input.Remark, createdAt); err != nil {
			return models.ServiceRequest{}, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ServiceRequest{}, err
	}
	return request, nil
}

func (s *Store) UpdateRequestStatus(ctx context.Context, input store.RequestActionInput) (models.ServiceRequest, string, error) {
	newStatus, ok := store.RequestStatusFor(input.Action)
	if !ok {
		return models.ServiceRequest{}, "", store.ErrInvalidTransition
	}
	allowed := store.RequestStatusesFor(input.Action)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ServiceRequest{}, "", err
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

	var request models.ServiceRequest
	var officerNull sql.NullString
	var prevStatus string
	row := tx.QueryRow(ctx, `
		WITH current AS (
			SELECT request_id, status
			FROM service_requests
			WHERE request_id = $1
			FOR UPDATE
		), updated AS (
			UPDATE service_requests r
			SET status = $2,
				officer_id = COALESCE(r.officer_id, $3),
				remark = CASE WHEN $4 <> '' THEN $4 ELSE r.remark END,
				updated_at = $5
			FROM current
			WHERE r.request_id = current.request_id AND current.status = ANY($6)
			RETURNING r.request_id, r.service_id, r.citizen_id, r.data, r.remark, r.status, r.officer_id, r.created_at, r.updated_at
		)
		SELECT updated.request_id, updated.service_id, updated.citizen_id, updated.data, updated.remark,
			updated.status, updated.officer_id, updated.created_at, updated.updated_at, current.status
		FROM updated
		JOIN current ON TRUE
	`, input.RequestID, newStatus, nullIfEmpty(input.OfficerID), input.Remark, occurredAt, allowed)
	if err = row.Scan(&request.RequestID, &request.ServiceID, &request.CitizenID, &request.Data, &request.Remark, &request.Status, &officerNull, &request.CreatedAt, &request.UpdatedAt, &prevStatus); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = classifyRequestFailure(ctx, tx, input.RequestID)
			return models.ServiceRequest{}, "", err
		}
		return models.ServiceRequest{}, "", err
	}
	request.OfficerID = nullStringPtr(officerNull)

	if input.Remark != "" {
		if err = appendRemark(ctx, tx, request.RequestID, input.OfficerID, input.Remark, occurredAt); err != nil {
			return models.ServiceRequest{}, "", err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ServiceRequest{}, "", err
	}
	return request, prevStatus, nil
}

// appendRemark records one entry in the request's append-only remark history.
// The request row is already locked by the caller's transaction, so the max
// sequence read is race-free.
func appendRemark(ctx context.Context, tx pgx.Tx, requestID, officerID, remark string, createdAt time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO request_remarks (request_id, seq, officer_id, remark, created_at)
		SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
		FROM request_remarks
		WHERE request_id = $1
	`, requestID, nullIfEmpty(officerID), remark, createdAt)
	return err
}

func (s *Store) GetRequest(ctx context.Context, requestID string) (models.ServiceRequest, error) {
	var request models.ServiceRequest
	var officerNull sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT r.request_id, r.service_id, s.name, s.sector_id, r.citizen_id,
			r.data, r.remark, r.status, r.officer_id, r.created_at, r.updated_at
		FROM service_requests r
		JOIN services s ON s.service_id = r.service_id
		WHERE r.request_id = $1
	`, requestID)
	if err := row.Scan(&request.RequestID, &request.ServiceID, &request.ServiceName, &request.SectorID, &request.CitizenID, &request.Data, &request.Remark, &request.Status, &officerNull, &request.CreatedAt, &request.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ServiceRequest{}, store.ErrRequestNotFound
		}
		return models.ServiceRequest{}, err
	}
	request.OfficerID = nullStringPtr(officerNull)

	rows, err := s.pool.Query(ctx, `
		SELECT seq, officer_id, remark, created_at
		FROM request_remarks
		WHERE request_id = $1
		ORDER BY seq ASC
	`, requestID)
	if err != nil {
		return models.ServiceRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var remark models.RequestRemark
		var remarkOfficer sql.NullString
		if err := rows.Scan(&remark.Seq, &remarkOfficer, &remark.Remark, &remark.CreatedAt); err != nil {
			return models.ServiceRequest{}, err
		}
		remark.OfficerID = nullStringPtr(remarkOfficer)
		request.Remarks = append(request.Remarks, remark)
	}
	if err := rows.Err(); err != nil {
		return models.ServiceRequest{}, err
	}
	return request, nil
}

func (s *Store) ListRequestsBySector(ctx context.Context, sectorID string) ([]models.ServiceRequest, error) {
	return s.listRequests(ctx, `s.sector_id = $1`, sectorID)
}

func (s *Store) ListRequestsByCitizen(ctx context.Context, citizenID string) ([]models.ServiceRequest, error) {
	return s.listRequests(ctx, `r.citizen_id = $1`, citizenID)
}

func (s *Store) listRequests(ctx context.Context, filter, arg string) ([]models.ServiceRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.request_id, r.service_id, s.name, s.sector_id, r.citizen_id,
			r.data, r.remark, r.status, r.officer_id, r.created_at, r.updated_at
		FROM service_requests r
		JOIN services s ON s.service_id = r.service_id
		WHERE `+filter+`
		ORDER BY r.created_at DESC
	`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []models.ServiceRequest
	for rows.Next() {
		var request models.ServiceRequest
		var officerNull sql.NullString
		if err := rows.Scan(&request.RequestID, &request.ServiceID, &request.ServiceName, &request.SectorID, &request.CitizenID, &request.Data, &request.Remark, &request.Status, &officerNull, &request.CreatedAt, &request.UpdatedAt); err != nil {
			return nil, err
		}
		request.OfficerID = nullStringPtr(officerNull)
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

func classifyRequestFailure(ctx context.Context, tx pgx.Tx, requestID string) error {
	var status string
	row := tx.QueryRow(ctx, `SELECT status FROM service_requests WHERE request_id = $1`, requestID)
	if err := row.Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrRequestNotFound
		}
		return err
	}
	return store.ErrInvalidTransition
}
