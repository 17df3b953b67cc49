package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/metrics"
	"github.com/hackgods/clinic-care-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-care-scheduling/internal/redis"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

var (
	ErrSlotTaken               = errors.New("slot already has an active appointment")
	ErrSlotBeingBooked         = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInvalidBooking          = errors.New("invalid booking request")
)

type Service struct {
	repo     Repository
	conn     db.Conn
	locker   redisclient.Locker
	defaults config.WindowDefaults
	loc      *time.Location
	now      func() time.Time
	logger   *zap.Logger
	metrics  *metrics.SchedulingMetrics
	notifier *notify.Dispatcher
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(d *notify.Dispatcher) Option {
	return func(s *Service) { s.notifier = d }
}

// WithClock overrides the wall clock used to compute "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, conn db.Conn, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	if locker == nil {
		locker = redisclient.NopLocker{}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:     repo,
		conn:     conn,
		locker:   locker,
		defaults: cfg.Defaults,
		loc:      loc,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current civil date in the clinic timezone.
func (s *Service) Today() time.Time {
	return timeofday.DateOf(s.now(), s.loc)
}

// CheckConflict reports whether any of the given professionals already holds
// an active appointment at exactly date+time, optionally ignoring one
// appointment. q may be the pool or an open transaction.
func (s *Service) CheckConflict(ctx context.Context, q db.DBTX, cq ConflictQuery) (bool, error) {
	if len(cq.Professionals) == 0 {
		return false, nil
	}
	n, err := s.repo.CountConflicts(ctx, q, cq)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Book creates an appointment in scheduled status. Concurrent bookings of the
// same professional/date/time serialize on a Redis lock and a transaction
// advisory lock, so exactly one of them succeeds and the rest get ErrSlotTaken.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := s.normalize(&req); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:                    uuid.New(),
		PatientID:             req.PatientID,
		PrimaryProfessionalID: req.PrimaryProfessionalID,
		SecondaryProfessional: req.SecondaryProfessional,
		Date:                  req.Date,
		Time:                  req.Time,
		DurationMinutes:       req.DurationMinutes,
		Modality:              req.Modality,
		Status:                StatusScheduled,
		Notes:                 req.Notes,
	}
	keys := slotKeys(appt.Professionals(), appt.Date, appt.Time)

	var created *Appointment
	err := s.locker.WithLock(ctx, keys, func(lockCtx context.Context) error {
		return s.conn.WithinTx(lockCtx, func(ctx context.Context, tx db.DBTX) error {
			if err := db.LockKeys(ctx, tx, keys...); err != nil {
				return err
			}

			taken, err := s.CheckConflict(ctx, tx, ConflictQuery{
				Professionals: appt.Professionals(),
				Date:          appt.Date,
				Time:          appt.Time,
			})
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotTaken
			}

			created, err = s.repo.Create(ctx, tx, appt)
			if err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return err
				}
				return fmt.Errorf("create appointment: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		err = lockError(err)
		s.metrics.ObserveBooking("book", outcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("book", "ok")
	s.logger.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("professional_id", created.PrimaryProfessionalID.String()),
		zap.String("date", timeofday.FormatDate(created.Date)),
		zap.String("time", created.Time.String()),
	)
	return created, nil
}

// Reschedule moves an appointment to a new date and time, resetting it to
// scheduled. The prior date/time stay on the row and the reason is stored as
// a "Rescheduled" annotation in the cancellation reason.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime timeofday.TimeOfDay, reason string) (*Appointment, error) {
	current, err := s.repo.GetByID(ctx, s.conn, id)
	if err != nil {
		return nil, err
	}
	if !current.Status.Active() {
		return nil, ErrInvalidStatusTransition
	}
	if err := validateSlot(newTime, current.DurationMinutes); err != nil {
		return nil, err
	}

	note := "Rescheduled"
	if reason != "" {
		note = "Rescheduled: " + reason
	}
	keys := slotKeys(current.Professionals(), newDate, newTime)

	var updated *Appointment
	err = s.locker.WithLock(ctx, keys, func(lockCtx context.Context) error {
		return s.conn.WithinTx(lockCtx, func(ctx context.Context, tx db.DBTX) error {
			if err := db.LockKeys(ctx, tx, keys...); err != nil {
				return err
			}

			appt, err := s.repo.GetByIDForUpdate(ctx, tx, id)
			if err != nil {
				return err
			}
			if !appt.Status.Active() {
				return ErrInvalidStatusTransition
			}

			taken, err := s.CheckConflict(ctx, tx, ConflictQuery{
				Professionals: appt.Professionals(),
				Date:          newDate,
				Time:          newTime,
				ExcludeID:     &appt.ID,
			})
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotTaken
			}

			updated, err = s.repo.UpdateSchedule(ctx, tx, id, newDate, newTime, note)
			if err != nil {
				if errors.Is(err, ErrSlotTaken) {
					return err
				}
				return fmt.Errorf("reschedule appointment: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		err = lockError(err)
		s.metrics.ObserveBooking("reschedule", outcome(err))
		return nil, err
	}

	s.metrics.ObserveBooking("reschedule", "ok")
	s.logger.Info("appointment rescheduled",
		zap.String("appointment_id", updated.ID.String()),
		zap.String("date", timeofday.FormatDate(updated.Date)),
		zap.String("time", updated.Time.String()),
	)

	message := fmt.Sprintf("Appointment moved to %s at %s", timeofday.FormatDate(updated.Date), updated.Time)
	notes := make([]notify.Notification, 0, 2)
	for _, profID := range updated.Professionals() {
		notes = append(notes, notify.Notification{
			UserID:  profID,
			Type:    notify.TypeAppointmentRescheduled,
			Title:   "Appointment rescheduled",
			Message: message,
		})
	}
	s.notifier.Send(ctx, notes...)

	return updated, nil
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, nil)
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, nil)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	var r *string
	if reason != "" {
		r = &reason
	}
	return s.transition(ctx, id, StatusCancelled, r)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, reason *string) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, s.conn, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanTransition(to) {
		return nil, ErrInvalidStatusTransition
	}

	// The update is conditional on the status we just read; losing a race to
	// another transition surfaces as not found.
	updated, err := s.repo.UpdateStatus(ctx, s.conn, id, appt.Status, to, reason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logger.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("from", string(appt.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// CancelFutureForPatient cancels every scheduled or confirmed appointment of
// the patient dated on or after onOrAfter. It runs on the caller's
// transaction so it commits or rolls back with the rest of the caller's work.
func (s *Service) CancelFutureForPatient(ctx context.Context, tx db.DBTX, patientID uuid.UUID, onOrAfter time.Time, reason string) (int64, error) {
	return s.repo.CancelFutureForPatient(ctx, tx, patientID, onOrAfter, reason)
}

// CountCompletedForPatient counts the patient's completed sessions.
func (s *Service) CountCompletedForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID) (int, error) {
	return s.repo.CountCompletedForPatient(ctx, q, patientID)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, s.conn, id)
}

// ListByPatient retrieves appointments for a specific patient, newest first
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByPatient(ctx, s.conn, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListForProfessionalOnDate returns the professional's scheduled and
// confirmed appointments on date, as primary or secondary, ordered by time.
func (s *Service) ListForProfessionalOnDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	appointments, err := s.repo.ListActiveForProfessionalOnDate(ctx, s.conn, professionalID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments for professional: %w", err)
	}
	return appointments, nil
}

func (s *Service) normalize(req *BookingRequest) error {
	if req.PatientID == uuid.Nil || req.PrimaryProfessionalID == uuid.Nil {
		return fmt.Errorf("%w: patient and primary professional are required", ErrInvalidBooking)
	}
	if req.SecondaryProfessional != nil && (*req.SecondaryProfessional == uuid.Nil || *req.SecondaryProfessional == req.PrimaryProfessionalID) {
		req.SecondaryProfessional = nil
	}
	if req.DurationMinutes == 0 {
		req.DurationMinutes = s.defaults.AppointmentDuration
	}
	if req.Modality == "" {
		req.Modality = ModalityInPerson
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", timeofday.ErrInvalidFormat)
	}
	return validateSlot(req.Time, req.DurationMinutes)
}

func validateSlot(at timeofday.TimeOfDay, duration int) error {
	if !at.WithinDay() {
		return fmt.Errorf("%w: time %s", timeofday.ErrInvalidFormat, at)
	}
	if duration <= 0 {
		return fmt.Errorf("%w: duration must be positive", timeofday.ErrInvalidTimeRange)
	}
	if at.AddMinutes(duration) > timeofday.EndOfDay {
		return fmt.Errorf("%w: appointment must end by 24:00", timeofday.ErrInvalidTimeRange)
	}
	return nil
}

// slotKeys names the lock for each professional's date+time cell.
func slotKeys(professionals []uuid.UUID, date time.Time, at timeofday.TimeOfDay) []string {
	keys := make([]string, 0, len(professionals))
	for _, id := range professionals {
		keys = append(keys, fmt.Sprintf("appointment:%s:%s:%s", id, timeofday.FormatDate(date), at))
	}
	return keys
}

func lockError(err error) error {
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, ErrSlotBeingBooked):
		return "lock_timeout"
	case errors.Is(err, ErrAppointmentNotFound), errors.Is(err, ErrInvalidStatusTransition):
		return "rejected"
	default:
		return "error"
	}
}
