package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"pso/admission-service/internal/models"
	"pso/admission-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestTakeTicketConcurrentNumbers(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "General Affairs")
	serviceID := seedService(t, ctx, pool, sectorID, "Certificates", "CS", models.ModeQueue)

	const workers = 8
	citizens := make([]string, workers)
	for i := range citizens {
		citizens[i] = seedCitizen(t, ctx, pool)
	}

	var wg sync.WaitGroup
	results := make(chan models.Ticket, workers)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(citizenID string) {
			defer wg.Done()
			ticket, err := st.TakeTicket(ctx, store.TakeTicketInput{
				CitizenID: citizenID,
				ServiceID: serviceID,
				CreatedAt: time.Now().UTC(),
			})
			if err != nil {
				errs <- err
				return
			}
			results <- ticket
		}(citizens[i])
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("take ticket: %v", err)
	}

	seen := make(map[int]bool)
	for ticket := range results {
		if seen[ticket.TicketNumber] {
			t.Fatalf("duplicate ticket number %d", ticket.TicketNumber)
		}
		seen[ticket.TicketNumber] = true
	}
	if len(seen) != workers {
		t.Fatalf("expected %d tickets, got %d", workers, len(seen))
	}
	for n := 1; n <= workers; n++ {
		if !seen[n] {
			t.Fatalf("missing ticket number %d", n)
		}
	}
}

func TestSingleActiveTicketPerCitizen(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "General Affairs")
	serviceID := seedService(t, ctx, pool, sectorID, "Certificates", "CS", models.ModeQueue)
	citizenID := seedCitizen(t, ctx, pool)

	first, err := st.TakeTicket(ctx, store.TakeTicketInput{CitizenID: citizenID, ServiceID: serviceID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("take first ticket: %v", err)
	}

	_, err = st.TakeTicket(ctx, store.TakeTicketInput{CitizenID: citizenID, ServiceID: serviceID, CreatedAt: time.Now().UTC()})
	if !errors.Is(err, store.ErrActiveTicket) {
		t.Fatalf("expected ErrActiveTicket, got %v", err)
	}

	// Cancelling frees the slot.
	if _, _, err := st.CancelTicket(ctx, store.CancelTicketInput{TicketID: first.TicketID, CitizenID: citizenID, OccurredAt: time.Now().UTC()}); err != nil {
		t.Fatalf("cancel ticket: %v", err)
	}
	if _, err := st.TakeTicket(ctx, store.TakeTicketInput{CitizenID: citizenID, ServiceID: serviceID, CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("take ticket after cancel: %v", err)
	}
}

func TestMyStatusPeopleAhead(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "General Affairs")
	serviceID := seedService(t, ctx, pool, sectorID, "Certificates", "CS", models.ModeQueue)

	base := time.Now().UTC().Add(-time.Minute)
	var tickets []models.Ticket
	var third string
	for i := 0; i < 3; i++ {
		citizenID := seedCitizen(t, ctx, pool)
		ticket, err := st.TakeTicket(ctx, store.TakeTicketInput{
			CitizenID: citizenID,
			ServiceID: serviceID,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("take ticket %d: %v", i, err)
		}
		tickets = append(tickets, ticket)
		third = citizenID
	}

	ticket, found, err := st.MyStatus(ctx, third)
	if err != nil {
		t.Fatalf("my status: %v", err)
	}
	if !found {
		t.Fatalf("expected live ticket")
	}
	if ticket.PeopleAhead == nil || *ticket.PeopleAhead != 2 {
		t.Fatalf("expected 2 people ahead, got %+v", ticket.PeopleAhead)
	}

	// Serving the first ticket shifts everyone behind it forward.
	officerID := uuid.NewString()
	for _, action := range []string{"call", "start", "complete"} {
		if _, _, err := st.UpdateTicketStatus(ctx, store.TicketActionInput{
			TicketID:   tickets[0].TicketID,
			Action:     action,
			OfficerID:  officerID,
			OccurredAt: time.Now().UTC(),
		}); err != nil {
			t.Fatalf("%s first ticket: %v", action, err)
		}
	}

	ticket, found, err = st.MyStatus(ctx, third)
	if err != nil {
		t.Fatalf("my status after completion: %v", err)
	}
	if !found {
		t.Fatalf("expected live ticket after completion ahead")
	}
	if ticket.PeopleAhead == nil || *ticket.PeopleAhead != 1 {
		t.Fatalf("expected 1 person ahead after completion, got %+v", ticket.PeopleAhead)
	}
}

func TestTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "General Affairs")
	serviceID := seedService(t, ctx, pool, sectorID, "Certificates", "CS", models.ModeQueue)
	citizenID := seedCitizen(t, ctx, pool)
	officerID := uuid.NewString()

	ticket, err := st.TakeTicket(ctx, store.TakeTicketInput{CitizenID: citizenID, ServiceID: serviceID, CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("take ticket: %v", err)
	}

	for _, step := range []struct {
		action string
		want   string
		prev   string
	}{
		{"call", models.TicketCalling, models.TicketWaiting},
		{"start", models.TicketProcessing, models.TicketCalling},
		{"complete", models.TicketCompleted, models.TicketProcessing},
	} {
		updated, prev, err := st.UpdateTicketStatus(ctx, store.TicketActionInput{
			TicketID:   ticket.TicketID,
			Action:     step.action,
			OfficerID:  officerID,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
		if updated.Status != step.want || prev != step.prev {
			t.Fatalf("%s: got status %s prev %s", step.action, updated.Status, prev)
		}
	}

	// Completed is terminal.
	_, _, err = st.UpdateTicketStatus(ctx, store.TicketActionInput{
		TicketID:   ticket.TicketID,
		Action:     "reject",
		OfficerID:  officerID,
		OccurredAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from completed, got %v", err)
	}
}

func TestForwardTicketKeepsArrival(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sourceSector := seedSector(t, ctx, pool, "General Affairs")
	targetSector := seedSector(t, ctx, pool, "Licensing")
	sourceService := seedService(t, ctx, pool, sourceSector, "Certificates", "CS", models.ModeQueue)
	seedService(t, ctx, pool, targetSector, "Licences", "LC", models.ModeQueue)
	citizenID := seedCitizen(t, ctx, pool)

	createdAt := time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Microsecond)
	ticket, err := st.TakeTicket(ctx, store.TakeTicketInput{CitizenID: citizenID, ServiceID: sourceService, CreatedAt: createdAt})
	if err != nil {
		t.Fatalf("take ticket: %v", err)
	}

	forwarded, err := st.ForwardTicket(ctx, store.ForwardTicketInput{
		TicketID:       ticket.TicketID,
		TargetSectorID: targetSector,
		Remark:         "wrong sector",
		OfficerID:      uuid.NewString(),
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("forward ticket: %v", err)
	}
	if forwarded.SectorID != targetSector {
		t.Fatalf("expected sector %s, got %s", targetSector, forwarded.SectorID)
	}
	if forwarded.Status != models.TicketWaiting {
		t.Fatalf("expected waiting after forward, got %s", forwarded.Status)
	}
	if !forwarded.CreatedAt.Equal(createdAt) {
		t.Fatalf("expected created_at preserved: %v vs %v", forwarded.CreatedAt, createdAt)
	}
	if forwarded.TicketNumber != 1 {
		t.Fatalf("expected fresh number 1 under target service, got %d", forwarded.TicketNumber)
	}
	if forwarded.OfficerID != nil {
		t.Fatalf("expected officer claim cleared, got %v", *forwarded.OfficerID)
	}
}

func TestBookAppointmentCapacity(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "Health")
	serviceID := seedService(t, ctx, pool, sectorID, "Vaccination", "VAX", models.ModeAppointment)

	const attempts = 5
	citizens := make([]string, attempts)
	for i := range citizens {
		citizens[i] = seedCitizen(t, ctx, pool)
	}

	date := "2026-09-15"
	slot := models.TimeSlots[0]

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(citizenID string) {
			defer wg.Done()
			_, err := st.BookAppointment(ctx, store.BookInput{
				CitizenID: citizenID,
				ServiceID: serviceID,
				Date:      date,
				TimeSlot:  slot,
				CreatedAt: time.Now().UTC(),
			})
			errs <- err
		}(citizens[i])
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrSlotFull):
			full++
		default:
			t.Fatalf("book appointment: %v", err)
		}
	}
	if ok != 3 || full != 2 {
		t.Fatalf("expected 3 bookings and 2 slot-full, got %d/%d", ok, full)
	}

	slots, err := st.AvailableSlots(ctx, serviceID, date)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	for _, s := range slots {
		if s.TimeSlot == slot {
			if s.Booked != 3 || s.IsAvailable {
				t.Fatalf("expected slot full with 3 booked, got %+v", s)
			}
		} else if !s.IsAvailable {
			t.Fatalf("expected other slots open, got %+v", s)
		}
	}
}

func TestBookAppointmentDuplicateDay(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "Health")
	serviceID := seedService(t, ctx, pool, sectorID, "Vaccination", "VAX", models.ModeAppointment)
	citizenID := seedCitizen(t, ctx, pool)

	date := "2026-09-15"
	if _, err := st.BookAppointment(ctx, store.BookInput{
		CitizenID: citizenID, ServiceID: serviceID, Date: date, TimeSlot: models.TimeSlots[0], CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("first booking: %v", err)
	}

	_, err := st.BookAppointment(ctx, store.BookInput{
		CitizenID: citizenID, ServiceID: serviceID, Date: date, TimeSlot: models.TimeSlots[1], CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrDuplicateBooking) {
		t.Fatalf("expected ErrDuplicateBooking, got %v", err)
	}
}

func TestCancelAppointmentReleasesCapacity(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "Health")
	serviceID := seedService(t, ctx, pool, sectorID, "Vaccination", "VAX", models.ModeAppointment)
	citizenID := seedCitizen(t, ctx, pool)

	date := "2026-09-15"
	slot := models.TimeSlots[2]
	appt, err := st.BookAppointment(ctx, store.BookInput{
		CitizenID: citizenID, ServiceID: serviceID, Date: date, TimeSlot: slot, CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	// Pending bookings cannot be cancelled by the citizen.
	_, _, err = st.CancelAppointment(ctx, store.CancelAppointmentInput{AppointmentID: appt.AppointmentID, CitizenID: citizenID, OccurredAt: time.Now().UTC()})
	if !errors.Is(err, store.ErrNotCancellable) {
		t.Fatalf("expected ErrNotCancellable for pending, got %v", err)
	}

	if _, _, err = st.UpdateAppointmentStatus(ctx, store.AppointmentActionInput{
		AppointmentID: appt.AppointmentID, Action: "approve", OfficerID: uuid.NewString(), OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	cancelled, prev, err := st.CancelAppointment(ctx, store.CancelAppointmentInput{AppointmentID: appt.AppointmentID, CitizenID: citizenID, OccurredAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != models.AppointmentCancelled || prev != models.AppointmentScheduled {
		t.Fatalf("got status %s prev %s", cancelled.Status, prev)
	}

	slots, err := st.AvailableSlots(ctx, serviceID, date)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	for _, s := range slots {
		if s.TimeSlot == slot && s.Booked != 0 {
			t.Fatalf("expected capacity released, got %+v", s)
		}
	}
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "Civil Registry")
	serviceID := seedService(t, ctx, pool, sectorID, "Name Change", "NC", models.ModeOnline)
	citizenID := seedCitizen(t, ctx, pool)
	officerID := uuid.NewString()

	request, err := st.SubmitRequest(ctx, store.SubmitRequestInput{
		CitizenID: citizenID,
		ServiceID: serviceID,
		Data:      []byte(`{"new_name":"Ana Smith"}`),
		Remark:    "supporting documents attached",
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("submit request: %v", err)
	}
	if request.Status != models.RequestPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}

	if _, _, err = st.UpdateRequestStatus(ctx, store.RequestActionInput{
		RequestID: request.RequestID, Action: "start", OfficerID: officerID, OccurredAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("start: %v", err)
	}

	completed, prev, err := st.UpdateRequestStatus(ctx, store.RequestActionInput{
		RequestID: request.RequestID, Action: "approve", OfficerID: officerID,
		Remark: "approved after review", OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if completed.Status != models.RequestCompleted || prev != models.RequestProcessing {
		t.Fatalf("got status %s prev %s", completed.Status, prev)
	}

	// Terminal state refuses further actions.
	_, _, err = st.UpdateRequestStatus(ctx, store.RequestActionInput{
		RequestID: request.RequestID, Action: "reject", OfficerID: officerID, OccurredAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	fetched, err := st.GetRequest(ctx, request.RequestID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if len(fetched.Remarks) != 2 {
		t.Fatalf("expected 2 remark entries, got %d", len(fetched.Remarks))
	}
	if fetched.Remarks[0].Seq != 1 || fetched.Remarks[1].Seq != 2 {
		t.Fatalf("remark sequence out of order: %+v", fetched.Remarks)
	}
}

func TestWalkInResolvesCitizenByPhone(t *testing.T) {
	ctx := context.Background()
	st, pool, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	sectorID := seedSector(t, ctx, pool, "General Affairs")
	serviceID := seedService(t, ctx, pool, sectorID, "Certificates", "CS", models.ModeQueue)
	officerID := uuid.NewString()

	ticket, err := st.RegisterWalkIn(ctx, store.WalkInInput{
		OfficerID: officerID,
		Name:      "Ana",
		Phone:     "5550001234",
		ServiceID: serviceID,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("register walk-in: %v", err)
	}
	if ticket.OfficerID == nil || *ticket.OfficerID != officerID {
		t.Fatalf("expected officer stamp, got %+v", ticket.OfficerID)
	}

	// Same phone while the ticket is live hits the single-active rule.
	_, err = st.RegisterWalkIn(ctx, store.WalkInInput{
		OfficerID: officerID,
		Name:      "Ana",
		Phone:     "5550001234",
		ServiceID: serviceID,
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, store.ErrActiveTicket) {
		t.Fatalf("expected ErrActiveTicket, got %v", err)
	}

	var count int
	row := pool.QueryRow(ctx, `SELECT COUNT(*) FROM citizens WHERE phone = '5550001234'`)
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count citizens: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one citizen per phone, got %d", count)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, *pgxpool.Pool, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	store := NewStore(pool, Options{SlotCapacity: 3})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return store, pool, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func seedSector(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) string {
	t.Helper()
	sectorID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO sectors (sector_id, name) VALUES ($1, $2)
	`, sectorID, name); err != nil {
		t.Fatalf("insert sector: %v", err)
	}
	return sectorID
}

func seedService(t *testing.T, ctx context.Context, pool *pgxpool.Pool, sectorID, name, code, mode string) string {
	t.Helper()
	serviceID := uuid.NewString()
	if _, err := pool.Exec(ctx, `
		INSERT INTO services (service_id, sector_id, name, code, mode, active) VALUES ($1, $2, $3, $4, $5, TRUE)
	`, serviceID, sectorID, name, code, mode); err != nil {
		t.Fatalf("insert service: %v", err)
	}
	return serviceID
}

func seedCitizen(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	citizenID := uuid.NewString()
	phone := "55" + strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	if _, err := pool.Exec(ctx, `
		INSERT INTO citizens (citizen_id, name, phone, role) VALUES ($1, 'Citizen', $2, 'citizen')
	`, citizenID, phone); err != nil {
		t.Fatalf("insert citizen: %v", err)
	}
	return citizenID
}
