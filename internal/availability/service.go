package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/audit"
	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

var (
	ErrOverlapConflict   = errors.New("availability window overlaps an existing window")
	ErrHasFutureBookings = errors.New("availability window has future bookings")
)

// AppointmentReader lists the appointments that occupy a professional's day.
type AppointmentReader interface {
	ListForProfessionalOnDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]appointment.Appointment, error)
}

type Service struct {
	repo         Repository
	conn         db.Conn
	appointments AppointmentReader
	audit        *audit.Recorder
	defaults     config.WindowDefaults
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithAudit(r *audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, conn db.Conn, appointments AppointmentReader, cfg config.Config, opts ...Option) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:         repo,
		conn:         conn,
		appointments: appointments,
		defaults:     cfg.Defaults,
		loc:          loc,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return timeofday.DateOf(s.now(), s.loc)
}

// Create validates the new window and stores it as active from today. It
// fails with ErrOverlapConflict when the range touches or overlaps another
// active window of the same owner on the same weekday.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, in NewWindow) (*Window, error) {
	if in.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", timeofday.ErrInvalidFormat)
	}
	day, err := timeofday.ParseWeekday(in.DayOfWeek)
	if err != nil {
		return nil, err
	}
	start, end, err := timeofday.ValidateRange(in.Start, in.End)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}

	w := &Window{
		ID:                    uuid.New(),
		OwnerID:               in.OwnerID,
		DayOfWeek:             day,
		Start:                 start,
		End:                   end,
		Kind:                  kind,
		Notes:                 in.Notes,
		Active:                true,
		VigencyStart:          s.today(),
		VigencyEnd:            in.VigencyEnd,
		MaxAppointmentsPerDay: in.MaxAppointmentsPerDay,
		BookingInterval:       in.BookingInterval,
	}
	if w.MaxAppointmentsPerDay == 0 {
		w.MaxAppointmentsPerDay = s.defaults.MaxAppointmentsPerDay
	}
	if w.BookingInterval == 0 {
		w.BookingInterval = s.defaults.BookingInterval
	}
	if err := validateWindow(w); err != nil {
		return nil, err
	}

	var created *Window
	err = s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockKeys(ctx, tx, ownerDayKey(w.OwnerID, w.DayOfWeek)); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, tx, w, nil); err != nil {
			return err
		}

		created, err = s.repo.Create(ctx, tx, w)
		if err != nil {
			return fmt.Errorf("create availability window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("availability window created",
		zap.String("window_id", created.ID.String()),
		zap.String("owner_id", created.OwnerID.String()),
		zap.String("day", string(created.DayOfWeek)),
	)
	s.audit.Record(ctx, actorID, audit.ModuleAvailability, "create", nil, created)
	return created, nil
}

// Update applies patch to an active window, re-checking overlap against the
// owner's other windows when the day or range changes.
func (s *Service) Update(ctx context.Context, actorID uuid.UUID, id uuid.UUID, patch Patch) (*Window, error) {
	var before, updated *Window
	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		before, err = s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if !before.Active {
			return ErrWindowNotFound
		}

		next, err := applyPatch(before, patch)
		if err != nil {
			return err
		}

		if next.DayOfWeek != before.DayOfWeek || next.Start != before.Start || next.End != before.End {
			if err := db.LockKeys(ctx, tx,
				ownerDayKey(before.OwnerID, before.DayOfWeek),
				ownerDayKey(next.OwnerID, next.DayOfWeek),
			); err != nil {
				return err
			}
			if err := s.checkOverlap(ctx, tx, next, &before.ID); err != nil {
				return err
			}
		}

		updated, err = s.repo.Update(ctx, tx, next)
		if err != nil {
			return fmt.Errorf("update availability window: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("availability window updated", zap.String("window_id", id.String()))
	s.audit.Record(ctx, actorID, audit.ModuleAvailability, "update", before, updated)
	return updated, nil
}

// Deactivate switches a window off unless the owner still has scheduled or
// confirmed appointments after today that fall inside it.
func (s *Service) Deactivate(ctx context.Context, actorID uuid.UUID, id uuid.UUID) (*Window, error) {
	var before, updated *Window
	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		w, err := s.repo.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		before = w
		if !w.Active {
			updated = w
			return nil
		}

		isoDay, err := w.DayOfWeek.ISONumber()
		if err != nil {
			return err
		}
		n, err := s.repo.CountFutureBookings(ctx, tx, FutureBookingQuery{
			OwnerID:   w.OwnerID,
			ISODay:    isoDay,
			Start:     w.Start,
			End:       w.End,
			AfterDate: s.today(),
		})
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d appointment(s)", ErrHasFutureBookings, n)
		}

		updated, err = s.repo.Deactivate(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if before.Active {
		s.logger.Info("availability window deactivated", zap.String("window_id", id.String()))
		s.audit.Record(ctx, actorID, audit.ModuleAvailability, "deactivate", before, updated)
	}
	return updated, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Window, error) {
	return s.repo.GetByID(ctx, s.conn, id)
}

// ListForOwner returns active windows whose vigency has not ended before
// from. A zero from means today.
func (s *Service) ListForOwner(ctx context.Context, ownerID uuid.UUID, from time.Time) ([]Window, error) {
	if from.IsZero() {
		from = s.today()
	}
	windows, err := s.repo.ListForOwner(ctx, s.conn, ownerID, from)
	if err != nil {
		return nil, err
	}
	if windows == nil {
		windows = []Window{}
	}
	return windows, nil
}

// FreeSlots returns the free slots of a professional on date across every
// active window for that weekday whose vigency covers the date.
func (s *Service) FreeSlots(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Slot, error) {
	windows, err := s.repo.ListActiveForOwnerDay(ctx, s.conn, professionalID, timeofday.WeekdayOf(date))
	if err != nil {
		return nil, err
	}

	var applicable []Window
	for _, w := range windows {
		if w.CoversDate(date) {
			applicable = append(applicable, w)
		}
	}
	if len(applicable) == 0 {
		return []Slot{}, nil
	}

	appts, err := s.appointments.ListForProfessionalOnDate(ctx, professionalID, date)
	if err != nil {
		return nil, err
	}
	booked := make([]Booked, 0, len(appts))
	for _, a := range appts {
		booked = append(booked, Booked{Time: a.Time, DurationMinutes: a.DurationMinutes})
	}

	lists := make([][]Slot, 0, len(applicable))
	for _, w := range applicable {
		lists = append(lists, GenerateSlots(w, booked))
	}
	return MergeSlots(lists...), nil
}

func (s *Service) checkOverlap(ctx context.Context, tx db.DBTX, w *Window, exclude *uuid.UUID) error {
	existing, err := s.repo.ListActiveForOwnerDay(ctx, tx, w.OwnerID, w.DayOfWeek)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if exclude != nil && other.ID == *exclude {
			continue
		}
		if timeofday.Overlaps(w.Start, w.End, other.Start, other.End) {
			return fmt.Errorf("%w: %s %s-%s", ErrOverlapConflict, other.DayOfWeek, other.Start, other.End)
		}
	}
	return nil
}

func applyPatch(current *Window, p Patch) (*Window, error) {
	next := *current

	if p.DayOfWeek != nil {
		day, err := timeofday.ParseWeekday(*p.DayOfWeek)
		if err != nil {
			return nil, err
		}
		next.DayOfWeek = day
	}

	start, end := current.Start.String(), current.End.String()
	if p.Start != nil {
		start = *p.Start
	}
	if p.End != nil {
		end = *p.End
	}
	var err error
	if next.Start, next.End, err = timeofday.ValidateRange(start, end); err != nil {
		return nil, err
	}

	if p.Kind != nil {
		if next.Kind, err = ParseKind(*p.Kind); err != nil {
			return nil, err
		}
	}
	if p.Notes != nil {
		next.Notes = p.Notes
	}
	switch {
	case p.ClearVigencyEnd && p.VigencyEnd != nil:
		return nil, fmt.Errorf("%w: vigency end cannot be both set and cleared", timeofday.ErrInvalidFormat)
	case p.ClearVigencyEnd:
		next.VigencyEnd = nil
	case p.VigencyEnd != nil:
		next.VigencyEnd = p.VigencyEnd
	}
	if p.MaxAppointmentsPerDay != nil {
		next.MaxAppointmentsPerDay = *p.MaxAppointmentsPerDay
	}
	if p.BookingInterval != nil {
		next.BookingInterval = *p.BookingInterval
	}

	if err := validateWindow(&next); err != nil {
		return nil, err
	}
	return &next, nil
}

func validateWindow(w *Window) error {
	if w.MaxAppointmentsPerDay <= 0 {
		return fmt.Errorf("%w: max appointments per day must be positive", timeofday.ErrInvalidFormat)
	}
	if w.BookingInterval <= 0 {
		return fmt.Errorf("%w: booking interval must be positive", timeofday.ErrInvalidFormat)
	}
	if w.VigencyEnd != nil && w.VigencyEnd.Before(w.VigencyStart) {
		return fmt.Errorf("%w: vigency ends before it starts", timeofday.ErrInvalidTimeRange)
	}
	return nil
}

func ownerDayKey(ownerID uuid.UUID, day timeofday.Weekday) string {
	return fmt.Sprintf("availability:%s:%s", ownerID, day)
}
