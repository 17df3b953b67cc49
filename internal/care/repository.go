package care

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
)

var (
	ErrPatientNotFound    = errors.New("patient not found")
	ErrAssignmentNotFound = errors.New("assignment not found")
	ErrDischargeNotFound  = errors.New("discharge not found")
)

// Repository contains the care-episode queries. Every method takes the
// handle to run on so the discharge cascade stays inside one transaction.
type Repository interface {
	// Patients
	GetPatient(ctx context.Context, q db.DBTX, id uuid.UUID) (*Patient, error)
	GetPatientForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Patient, error)
	DeactivatePatient(ctx context.Context, q db.DBTX, id uuid.UUID, status string) error

	// Assignments
	GetAssignment(ctx context.Context, q db.DBTX, id uuid.UUID) (*Assignment, error)
	GetAssignmentForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Assignment, error)
	GetActiveAssignment(ctx context.Context, q db.DBTX, patientID uuid.UUID) (*Assignment, error)
	CreateAssignment(ctx context.Context, q db.DBTX, a *Assignment) (*Assignment, error)
	FinalizeAssignment(ctx context.Context, q db.DBTX, id uuid.UUID, endDate time.Time, reason string) (*Assignment, error)
	FinalizeActiveAssignments(ctx context.Context, q db.DBTX, patientID uuid.UUID, endDate time.Time, reason string) (int64, error)

	// Discharges
	GetDischarge(ctx context.Context, q db.DBTX, id uuid.UUID) (*Discharge, error)
	GetDischargeForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Discharge, error)
	GetProposedDischarge(ctx context.Context, q db.DBTX, patientID uuid.UUID) (*Discharge, error)
	CreateDischarge(ctx context.Context, q db.DBTX, d *Discharge) (*Discharge, error)
	UpdateDischarge(ctx context.Context, q db.DBTX, d *Discharge) (*Discharge, error)
	ListDischarges(ctx context.Context, q db.DBTX, f DischargeFilter) ([]Discharge, error)
}
