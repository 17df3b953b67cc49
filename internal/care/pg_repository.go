package care

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
)

const (
	patientColumns = `id, name, email, active, status, created_at, updated_at`

	assignmentColumns = `id, patient_id, primary_professional_id, intern_id, start_date, end_date,
	status, end_reason, notes, created_at, updated_at`

	dischargeColumns = `id, patient_id, proposed_by, actor_id, discharge_type, status, reason,
	recommendations, final_assessment, follow_up_recommended, follow_up_date, sessions_completed,
	rejection_reason, proposal_date, discharge_date, created_at, updated_at`
)

type PgRepository struct{}

func NewPgRepository() *PgRepository {
	return &PgRepository{}
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Active, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.PrimaryProfessionalID,
		&a.InternID,
		&a.StartDate,
		&a.EndDate,
		&a.Status,
		&a.EndReason,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssignmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanDischarge(row pgx.Row) (*Discharge, error) {
	var d Discharge
	err := row.Scan(
		&d.ID,
		&d.PatientID,
		&d.ProposedBy,
		&d.ActorID,
		&d.Type,
		&d.Status,
		&d.Evaluation.Reason,
		&d.Evaluation.Recommendations,
		&d.Evaluation.FinalAssessment,
		&d.Evaluation.FollowUpRecommended,
		&d.Evaluation.FollowUpDate,
		&d.SessionsCompleted,
		&d.RejectionReason,
		&d.ProposalDate,
		&d.DischargeDate,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDischargeNotFound
		}
		return nil, err
	}
	return &d, nil
}

func assessmentArg(a *Assessment) *string {
	if a == nil {
		return nil
	}
	s := string(*a)
	return &s
}

// Patients

func (r *PgRepository) GetPatient(ctx context.Context, q db.DBTX, id uuid.UUID) (*Patient, error) {
	row := q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Patient, error) {
	row := q.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 FOR UPDATE`, id)
	return scanPatient(row)
}

func (r *PgRepository) DeactivatePatient(ctx context.Context, q db.DBTX, id uuid.UUID, status string) error {
	tag, err := q.Exec(ctx, `
		UPDATE patients
		SET active = FALSE,
		    status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("deactivate patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatientNotFound
	}
	return nil
}

// Assignments

func (r *PgRepository) GetAssignment(ctx context.Context, q db.DBTX, id uuid.UUID) (*Assignment, error) {
	row := q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	return scanAssignment(row)
}

func (r *PgRepository) GetAssignmentForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Assignment, error) {
	row := q.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id)
	return scanAssignment(row)
}

func (r *PgRepository) GetActiveAssignment(ctx context.Context, q db.DBTX, patientID uuid.UUID) (*Assignment, error) {
	row := q.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE patient_id = $1
		  AND status = 'active'
	`, patientID)
	return scanAssignment(row)
}

func (r *PgRepository) CreateAssignment(ctx context.Context, q db.DBTX, a *Assignment) (*Assignment, error) {
	row := q.QueryRow(ctx, `
		INSERT INTO assignments (id, patient_id, primary_professional_id, intern_id, start_date,
			status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+assignmentColumns,
		a.ID, a.PatientID, a.PrimaryProfessionalID, a.InternID, a.StartDate, string(a.Status), a.Notes)
	return scanAssignment(row)
}

func (r *PgRepository) FinalizeAssignment(ctx context.Context, q db.DBTX, id uuid.UUID, endDate time.Time, reason string) (*Assignment, error) {
	row := q.QueryRow(ctx, `
		UPDATE assignments
		SET status = 'finalized',
		    end_date = $2,
		    end_reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'active'
		RETURNING `+assignmentColumns, id, endDate, reason)
	return scanAssignment(row)
}

func (r *PgRepository) FinalizeActiveAssignments(ctx context.Context, q db.DBTX, patientID uuid.UUID, endDate time.Time, reason string) (int64, error) {
	tag, err := q.Exec(ctx, `
		UPDATE assignments
		SET status = 'finalized',
		    end_date = $2,
		    end_reason = $3,
		    updated_at = now()
		WHERE patient_id = $1
		  AND status = 'active'
	`, patientID, endDate, reason)
	if err != nil {
		return 0, fmt.Errorf("finalize assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Discharges

func (r *PgRepository) GetDischarge(ctx context.Context, q db.DBTX, id uuid.UUID) (*Discharge, error) {
	row := q.QueryRow(ctx, `SELECT `+dischargeColumns+` FROM discharges WHERE id = $1`, id)
	return scanDischarge(row)
}

func (r *PgRepository) GetDischargeForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Discharge, error) {
	row := q.QueryRow(ctx, `SELECT `+dischargeColumns+` FROM discharges WHERE id = $1 FOR UPDATE`, id)
	return scanDischarge(row)
}

func (r *PgRepository) GetProposedDischarge(ctx context.Context, q db.DBTX, patientID uuid.UUID) (*Discharge, error) {
	row := q.QueryRow(ctx, `
		SELECT `+dischargeColumns+`
		FROM discharges
		WHERE patient_id = $1
		  AND status = 'proposed'
	`, patientID)
	return scanDischarge(row)
}

func (r *PgRepository) CreateDischarge(ctx context.Context, q db.DBTX, d *Discharge) (*Discharge, error) {
	e := d.Evaluation
	row := q.QueryRow(ctx, `
		INSERT INTO discharges (id, patient_id, proposed_by, actor_id, discharge_type, status, reason,
			recommendations, final_assessment, follow_up_recommended, follow_up_date, sessions_completed,
			proposal_date, discharge_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+dischargeColumns,
		d.ID, d.PatientID, d.ProposedBy, d.ActorID, string(d.Type), string(d.Status), e.Reason,
		e.Recommendations, assessmentArg(e.FinalAssessment), e.FollowUpRecommended, e.FollowUpDate,
		d.SessionsCompleted, d.ProposalDate, d.DischargeDate)

	created, err := scanDischarge(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateProposal
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) UpdateDischarge(ctx context.Context, q db.DBTX, d *Discharge) (*Discharge, error) {
	e := d.Evaluation
	row := q.QueryRow(ctx, `
		UPDATE discharges
		SET actor_id = $2,
		    discharge_type = $3,
		    status = $4,
		    reason = $5,
		    recommendations = $6,
		    final_assessment = $7,
		    follow_up_recommended = $8,
		    follow_up_date = $9,
		    sessions_completed = $10,
		    rejection_reason = $11,
		    discharge_date = $12,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+dischargeColumns,
		d.ID, d.ActorID, string(d.Type), string(d.Status), e.Reason, e.Recommendations,
		assessmentArg(e.FinalAssessment), e.FollowUpRecommended, e.FollowUpDate, d.SessionsCompleted,
		d.RejectionReason, d.DischargeDate)
	return scanDischarge(row)
}

func (r *PgRepository) ListDischarges(ctx context.Context, q db.DBTX, f DischargeFilter) ([]Discharge, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.Status != nil {
		add("status = $%d", string(*f.Status))
	}
	if f.Type != nil {
		add("discharge_type = $%d", string(*f.Type))
	}
	if f.From != nil {
		add("discharge_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("discharge_date <= $%d", *f.To)
	}

	sql := `SELECT ` + dischargeColumns + ` FROM discharges`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	sql += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list discharges: %w", err)
	}
	defer rows.Close()

	var result []Discharge
	for rows.Next() {
		d, err := scanDischarge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
