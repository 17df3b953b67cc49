package availability

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

var (
	ErrWindowNotFound = errors.New("availability window not found")
)

// FutureBookingQuery selects active appointments of an owner that fall in a
// window's weekday and [Start, End) after a date.
type FutureBookingQuery struct {
	OwnerID   uuid.UUID
	ISODay    int
	Start     timeofday.TimeOfDay
	End       timeofday.TimeOfDay
	AfterDate time.Time
}

type Repository interface {
	GetByID(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error)
	GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error)

	// Active windows of an owner on one weekday, used for overlap checks
	ListActiveForOwnerDay(ctx context.Context, q db.DBTX, ownerID uuid.UUID, day timeofday.Weekday) ([]Window, error)
	// Active windows of an owner whose vigency has not ended before from
	ListForOwner(ctx context.Context, q db.DBTX, ownerID uuid.UUID, from time.Time) ([]Window, error)

	Create(ctx context.Context, q db.DBTX, w *Window) (*Window, error)
	Update(ctx context.Context, q db.DBTX, w *Window) (*Window, error)
	Deactivate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error)

	CountFutureBookings(ctx context.Context, q db.DBTX, fq FutureBookingQuery) (int, error)
}
