package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

const windowColumns = `id, owner_id, day_of_week, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	kind, notes, active, vigency_start, vigency_end, max_appointments_per_day, booking_interval,
	created_at, updated_at`

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

func scanWindow(row pgx.Row) (*Window, error) {
	var w Window
	var start, end string

	err := row.Scan(
		&w.ID,
		&w.OwnerID,
		&w.DayOfWeek,
		&start,
		&end,
		&w.Kind,
		&w.Notes,
		&w.Active,
		&w.VigencyStart,
		&w.VigencyEnd,
		&w.MaxAppointmentsPerDay,
		&w.BookingInterval,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, err
	}

	if w.Start, err = timeofday.Parse(start); err != nil {
		return nil, fmt.Errorf("scan window start: %w", err)
	}
	if w.End, err = timeofday.Parse(end); err != nil {
		return nil, fmt.Errorf("scan window end: %w", err)
	}
	return &w, nil
}

func collectWindows(rows pgx.Rows) ([]Window, error) {
	defer rows.Close()

	var result []Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error) {
	row := q.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1`, id)
	return scanWindow(row)
}

func (r *PgRepository) GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error) {
	row := q.QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1 FOR UPDATE`, id)
	return scanWindow(row)
}

func (r *PgRepository) ListActiveForOwnerDay(ctx context.Context, q db.DBTX, ownerID uuid.UUID, day timeofday.Weekday) ([]Window, error) {
	rows, err := q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE owner_id = $1
		  AND day_of_week = $2
		  AND active
		ORDER BY start_time
	`, ownerID, string(day))
	if err != nil {
		return nil, fmt.Errorf("list windows for owner day: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) ListForOwner(ctx context.Context, q db.DBTX, ownerID uuid.UUID, from time.Time) ([]Window, error) {
	rows, err := q.Query(ctx, `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE owner_id = $1
		  AND active
		  AND (vigency_end IS NULL OR vigency_end >= $2)
		ORDER BY CASE day_of_week
		    WHEN 'monday' THEN 1 WHEN 'tuesday' THEN 2 WHEN 'wednesday' THEN 3
		    WHEN 'thursday' THEN 4 WHEN 'friday' THEN 5 WHEN 'saturday' THEN 6 ELSE 7 END,
		  start_time
	`, ownerID, from)
	if err != nil {
		return nil, fmt.Errorf("list windows for owner: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) Create(ctx context.Context, q db.DBTX, w *Window) (*Window, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO availability_windows (id, owner_id, day_of_week, start_time, end_time, kind, notes,
			active, vigency_start, vigency_end, max_appointments_per_day, booking_interval, created_at, updated_at)
		VALUES ($1, $2, $3, $4::time, $5::time, $6, $7, TRUE, $8, $9, $10, $11, now(), now())
		RETURNING `+windowColumns,
		w.ID, w.OwnerID, string(w.DayOfWeek), w.Start.String(), w.End.String(), string(w.Kind), w.Notes,
		w.VigencyStart, w.VigencyEnd, w.MaxAppointmentsPerDay, w.BookingInterval)
	return scanWindow(row)
}

func (r *PgRepository) Update(ctx context.Context, q db.DBTX, w *Window) (*Window, error) {
	row := q.QueryRow(ctx, `
		UPDATE availability_windows
		SET day_of_week = $2,
		    start_time = $3::time,
		    end_time = $4::time,
		    kind = $5,
		    notes = $6,
		    vigency_end = $7,
		    max_appointments_per_day = $8,
		    booking_interval = $9,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns,
		w.ID, string(w.DayOfWeek), w.Start.String(), w.End.String(), string(w.Kind), w.Notes,
		w.VigencyEnd, w.MaxAppointmentsPerDay, w.BookingInterval)
	return scanWindow(row)
}

func (r *PgRepository) Deactivate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error) {
	row := q.QueryRow(ctx, `
		UPDATE availability_windows
		SET active = FALSE,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns, id)
	return scanWindow(row)
}

func (r *PgRepository) CountFutureBookings(ctx context.Context, q db.DBTX, fq FutureBookingQuery) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE (primary_professional_id = $1 OR secondary_professional_id = $1)
		  AND date > $2
		  AND status IN ('scheduled', 'confirmed')
		  AND EXTRACT(ISODOW FROM date) = $3
		  AND time >= $4::time
		  AND time < $5::time
	`, fq.OwnerID, fq.AfterDate, fq.ISODay, fq.Start.String(), fq.End.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count future bookings: %w", err)
	}
	return n, nil
}
