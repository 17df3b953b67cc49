package availability

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type Kind string

const (
	KindRegular       Kind = "regular"
	KindExtraordinary Kind = "extraordinary"
	KindLimited       Kind = "limited"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "":
		return KindRegular, nil
	case KindRegular, KindExtraordinary, KindLimited:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("%w: kind %q", timeofday.ErrInvalidFormat, s)
	}
}

// Window is a weekly recurring range during which a professional accepts
// bookings.
type Window struct {
	ID                    uuid.UUID
	OwnerID               uuid.UUID
	DayOfWeek             timeofday.Weekday
	Start                 timeofday.TimeOfDay
	End                   timeofday.TimeOfDay
	Kind                  Kind
	Notes                 *string
	Active                bool
	VigencyStart          time.Time
	VigencyEnd            *time.Time
	MaxAppointmentsPerDay int
	BookingInterval       int // minutes
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// CoversDate reports whether d falls inside the window's vigency.
func (w *Window) CoversDate(d time.Time) bool {
	if d.Before(w.VigencyStart) {
		return false
	}
	return w.VigencyEnd == nil || !w.VigencyEnd.Before(d)
}

// NewWindow carries the inputs of Create. Zero-valued numeric fields and an
// empty kind take the configured defaults.
type NewWindow struct {
	OwnerID               uuid.UUID
	DayOfWeek             string
	Start                 string
	End                   string
	Kind                  string
	Notes                 *string
	VigencyEnd            *time.Time
	MaxAppointmentsPerDay int
	BookingInterval       int
}

// Patch carries the fields of Update; nil fields are left unchanged.
type Patch struct {
	DayOfWeek             *string
	Start                 *string
	End                   *string
	Kind                  *string
	Notes                 *string
	VigencyEnd            *time.Time
	// ClearVigencyEnd makes the window open-ended again.
	ClearVigencyEnd       bool
	MaxAppointmentsPerDay *int
	BookingInterval       *int
}

// Slot is a bookable start/end pair derived from a window.
type Slot struct {
	Start timeofday.TimeOfDay
	End   timeofday.TimeOfDay
}

// Booked is the part of an existing appointment the slot generator looks at.
type Booked struct {
	Time            timeofday.TimeOfDay
	DurationMinutes int
}
