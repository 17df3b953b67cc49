package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ActiveStatuses are the statuses that hold a professional's time.
var ActiveStatuses = []Status{StatusScheduled, StatusConfirmed}

func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// CanTransition reports whether the lifecycle allows moving from s to to.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusScheduled:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCompleted || to == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

type Modality string

const (
	ModalityInPerson Modality = "in_person"
	ModalityVirtual  Modality = "virtual"
)

func ParseModality(s string) (Modality, error) {
	switch Modality(s) {
	case "":
		return ModalityInPerson, nil
	case ModalityInPerson, ModalityVirtual:
		return Modality(s), nil
	default:
		return "", fmt.Errorf("%w: modality %q", timeofday.ErrInvalidFormat, s)
	}
}

type Appointment struct {
	ID                    uuid.UUID
	PatientID             uuid.UUID
	PrimaryProfessionalID uuid.UUID
	SecondaryProfessional *uuid.UUID
	Date                  time.Time
	Time                  timeofday.TimeOfDay
	DurationMinutes       int
	Modality              Modality
	Status                Status
	Notes                 *string
	CancellationReason    *string
	PreviousDate          *time.Time
	PreviousTime          *timeofday.TimeOfDay
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Professionals returns the primary professional and, when present, the
// secondary one.
func (a *Appointment) Professionals() []uuid.UUID {
	ids := []uuid.UUID{a.PrimaryProfessionalID}
	if a.SecondaryProfessional != nil && *a.SecondaryProfessional != a.PrimaryProfessionalID {
		ids = append(ids, *a.SecondaryProfessional)
	}
	return ids
}

// BookingRequest carries the inputs of a new booking.
type BookingRequest struct {
	PatientID             uuid.UUID
	PrimaryProfessionalID uuid.UUID
	SecondaryProfessional *uuid.UUID
	Date                  time.Time
	Time                  timeofday.TimeOfDay
	DurationMinutes       int
	Modality              Modality
	Notes                 *string
}

// ConflictQuery identifies a (professionals, date, time) cell to check.
type ConflictQuery struct {
	Professionals []uuid.UUID
	Date          time.Time
	Time          timeofday.TimeOfDay
	ExcludeID     *uuid.UUID
}
