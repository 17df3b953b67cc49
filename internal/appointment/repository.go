package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all DB interactions needed by the service. Every method
// takes the handle to run on, either the pool or an open transaction.
type Repository interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Appointment, error)
	GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Appointment, error)

	// For conflict checks
	CountConflicts(ctx context.Context, q db.DBTX, cq ConflictQuery) (int, error)

	// Creation and updates
	Create(ctx context.Context, q db.DBTX, a *Appointment) (*Appointment, error)
	UpdateSchedule(ctx context.Context, q db.DBTX, id uuid.UUID, date time.Time, at timeofday.TimeOfDay, note string) (*Appointment, error)
	UpdateStatus(ctx context.Context, q db.DBTX, id uuid.UUID, from, to Status, reason *string) (*Appointment, error)
	CancelFutureForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID, onOrAfter time.Time, reason string) (int64, error)

	// Reads
	CountCompletedForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID) (int, error)
	ListByPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListActiveForProfessionalOnDate(ctx context.Context, q db.DBTX, professionalID uuid.UUID, date time.Time) ([]Appointment, error)
}
