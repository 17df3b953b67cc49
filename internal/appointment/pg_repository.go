package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

const appointmentColumns = `id, patient_id, primary_professional_id, secondary_professional_id,
	date, to_char(time, 'HH24:MI'), duration_minutes, modality, status, notes,
	cancellation_reason, previous_date, to_char(previous_time, 'HH24:MI'), created_at, updated_at`

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var at string
	var prevTime *string

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PrimaryProfessionalID,
		&a.SecondaryProfessional,
		&a.Date,
		&at,
		&a.DurationMinutes,
		&a.Modality,
		&a.Status,
		&a.Notes,
		&a.CancellationReason,
		&a.PreviousDate,
		&prevTime,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if a.Time, err = timeofday.Parse(at); err != nil {
		return nil, fmt.Errorf("scan appointment time: %w", err)
	}
	if prevTime != nil {
		pt, err := timeofday.Parse(*prevTime)
		if err != nil {
			return nil, fmt.Errorf("scan previous time: %w", err)
		}
		a.PreviousTime = &pt
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Appointment, error) {
	row := q.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CountConflicts(ctx context.Context, q db.DBTX, cq ConflictQuery) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE (primary_professional_id = ANY($1::uuid[]) OR secondary_professional_id = ANY($1::uuid[]))
		  AND date = $2
		  AND time = $3::time
		  AND status IN ('scheduled', 'confirmed')
		  AND ($4::uuid IS NULL OR id <> $4::uuid)
	`, cq.Professionals, cq.Date, cq.Time.String(), cq.ExcludeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count conflicting appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) Create(ctx context.Context, q db.DBTX, a *Appointment) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, primary_professional_id, secondary_professional_id,
			date, time, duration_minutes, modality, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::time, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, a.PrimaryProfessionalID, a.SecondaryProfessional,
		a.Date, a.Time.String(), a.DurationMinutes, string(a.Modality), string(a.Status), a.Notes)

	created, err := scanAppointment(row)
	if isUniqueViolation(err) {
		return nil, ErrSlotTaken
	}
	return created, err
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, q db.DBTX, id uuid.UUID, date time.Time, at timeofday.TimeOfDay, note string) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET previous_date = date,
		    previous_time = time,
		    date = $2,
		    time = $3::time,
		    status = 'scheduled',
		    cancellation_reason = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, date, at.String(), note)

	updated, err := scanAppointment(row)
	if isUniqueViolation(err) {
		return nil, ErrSlotTaken
	}
	return updated, err
}

func (r *PgRepository) UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	row := q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancellation_reason = COALESCE($4, cancellation_reason),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, string(to), string(from), reason)
	return scanAppointment(row)
}

func (r *PgRepository) CancelFutureForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID, onOrAfter time.Time, reason string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
		    cancellation_reason = $3,
		    updated_at = now()
		WHERE patient_id = $1
		  AND date >= $2
		  AND status IN ('scheduled', 'confirmed')
	`, patientID, onOrAfter, reason)
	if err != nil {
		return 0, fmt.Errorf("cancel future appointments: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) CountCompletedForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID) (int, error) {
	var n int
	err := q.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE patient_id = $1 AND status = 'completed'
	`, patientID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count completed appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveForProfessionalOnDate(ctx context.Context, q db.DBTX, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE (primary_professional_id = $1 OR secondary_professional_id = $1)
		  AND date = $2
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY time
	`, professionalID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
