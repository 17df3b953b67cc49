package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/db/dbtest"
	"github.com/hackgods/clinic-care-scheduling/internal/notify"
	redisclient "github.com/hackgods/clinic-care-scheduling/internal/redis"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

// memRepo is an in-memory Repository. It ignores the db.DBTX handle.
type memRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]Appointment

	failCancel error
}

func newMemRepo() *memRepo {
	return &memRepo{items: make(map[uuid.UUID]Appointment)}
}

func (r *memRepo) Snapshot() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]Appointment, len(r.items))
	for k, v := range r.items {
		saved[k] = v
	}
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		r.items = saved
		r.mu.Unlock()
	}
}

func (r *memRepo) put(a Appointment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[a.ID] = a
}

func (r *memRepo) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *memRepo) GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Appointment, error) {
	return r.GetByID(ctx, q, id)
}

func (r *memRepo) CountConflicts(_ context.Context, _ db.DBTX, cq ConflictQuery) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(cq.Professionals))
	for _, p := range cq.Professionals {
		wanted[p] = true
	}

	n := 0
	for _, a := range r.items {
		if cq.ExcludeID != nil && a.ID == *cq.ExcludeID {
			continue
		}
		if !a.Status.Active() || !a.Date.Equal(cq.Date) || a.Time != cq.Time {
			continue
		}
		for _, p := range a.Professionals() {
			if wanted[p] {
				n++
				break
			}
		}
	}
	return n, nil
}

func (r *memRepo) Create(_ context.Context, _ db.DBTX, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *a
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	r.items[created.ID] = created
	return &created, nil
}

func (r *memRepo) UpdateSchedule(_ context.Context, _ db.DBTX, id uuid.UUID, date time.Time, at timeofday.TimeOfDay, note string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	prevDate, prevTime := a.Date, a.Time
	a.PreviousDate, a.PreviousTime = &prevDate, &prevTime
	a.Date, a.Time = date, at
	a.Status = StatusScheduled
	a.CancellationReason = &note
	r.items[id] = a
	return &a, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, _ db.DBTX, id uuid.UUID, from, to Status, reason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if reason != nil {
		a.CancellationReason = reason
	}
	r.items[id] = a
	return &a, nil
}

func (r *memRepo) CancelFutureForPatient(_ context.Context, _ db.DBTX, patientID uuid.UUID, onOrAfter time.Time, reason string) (int64, error) {
	if r.failCancel != nil {
		return 0, r.failCancel
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.items {
		if a.PatientID != patientID || a.Date.Before(onOrAfter) || !a.Status.Active() {
			continue
		}
		a.Status = StatusCancelled
		a.CancellationReason = &reason
		r.items[id] = a
		n++
	}
	return n, nil
}

func (r *memRepo) CountCompletedForPatient(_ context.Context, _ db.DBTX, patientID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.items {
		if a.PatientID == patientID && a.Status == StatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r *memRepo) ListByPatient(_ context.Context, _ db.DBTX, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.items {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) ListActiveForProfessionalOnDate(_ context.Context, _ db.DBTX, professionalID uuid.UUID, date time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.items {
		if !a.Status.Active() || !a.Date.Equal(date) {
			continue
		}
		for _, p := range a.Professionals() {
			if p == professionalID {
				out = append(out, a)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

type recordingSink struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (s *recordingSink) Enqueue(_ context.Context, userID uuid.UUID, typ notify.Type, title, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, notify.Notification{UserID: userID, Type: typ, Title: title, Message: message})
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Location: time.UTC,
		Defaults: config.WindowDefaults{MaxAppointmentsPerDay: 8, BookingInterval: 50, AppointmentDuration: 50},
	}
}

func newTestService(t *testing.T, locker redisclient.Locker, opts ...Option) (*Service, *memRepo, *dbtest.Conn) {
	t.Helper()
	repo := newMemRepo()
	conn := dbtest.NewConn(repo)
	return NewService(repo, conn, locker, testConfig(), opts...), repo, conn
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := timeofday.ParseDate(s)
	require.NoError(t, err)
	return d
}

func bookingAt(prof uuid.UUID, date time.Time, at string) BookingRequest {
	return BookingRequest{
		PatientID:             uuid.New(),
		PrimaryProfessionalID: prof,
		Date:                  date,
		Time:                  timeofday.MustParse(at),
	}
}

func TestBookCreatesScheduledAppointmentWithDefaults(t *testing.T) {
	svc, _, conn := newTestService(t, nil)
	prof := uuid.New()
	date := mustDate(t, "2025-03-10")

	appt, err := svc.Book(context.Background(), bookingAt(prof, date, "10:00"))
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, 50, appt.DurationMinutes)
	assert.Equal(t, ModalityInPerson, appt.Modality)
	assert.Equal(t, "10:00", appt.Time.String())
	assert.Equal(t, 1, conn.Commits())
	assert.Equal(t, []string{"appointment:" + prof.String() + ":2025-03-10:10:00"}, conn.Locks())
}

func TestBookRejectsTakenSlot(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	prof := uuid.New()
	date := mustDate(t, "2025-03-10")

	_, err := svc.Book(context.Background(), bookingAt(prof, date, "10:00"))
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), bookingAt(prof, date, "10:00"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Another professional at the same time is free.
	_, err = svc.Book(context.Background(), bookingAt(uuid.New(), date, "10:00"))
	assert.NoError(t, err)
}

func TestBookDetectsSecondaryProfessionalConflict(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	primary, intern := uuid.New(), uuid.New()
	date := mustDate(t, "2025-03-10")

	req := bookingAt(primary, date, "11:00")
	req.SecondaryProfessional = &intern
	_, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	// The intern is the primary of the next booking.
	_, err = svc.Book(context.Background(), bookingAt(intern, date, "11:00"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// The intern is the secondary of a booking led by someone else.
	other := bookingAt(uuid.New(), date, "11:00")
	other.SecondaryProfessional = &intern
	_, err = svc.Book(context.Background(), other)
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookIgnoresCancelledAppointments(t *testing.T) {
	svc, repo, _ := newTestService(t, nil)
	prof := uuid.New()
	date := mustDate(t, "2025-03-10")

	repo.put(Appointment{
		ID:                    uuid.New(),
		PatientID:             uuid.New(),
		PrimaryProfessionalID: prof,
		Date:                  date,
		Time:                  timeofday.MustParse("10:00"),
		DurationMinutes:       50,
		Status:                StatusCancelled,
	})

	_, err := svc.Book(context.Background(), bookingAt(prof, date, "10:00"))
	assert.NoError(t, err)
}

func TestBookValidatesRequest(t *testing.T) {
	svc, _, conn := newTestService(t, nil)
	date := mustDate(t, "2025-03-10")

	tests := []struct {
		name    string
		mutate  func(r *BookingRequest)
		wantErr error
	}{
		{"missing patient", func(r *BookingRequest) { r.PatientID = uuid.Nil }, ErrInvalidBooking},
		{"missing date", func(r *BookingRequest) { r.Date = time.Time{} }, timeofday.ErrInvalidFormat},
		{"time past midnight", func(r *BookingRequest) { r.Time = timeofday.TimeOfDay(24 * 60) }, timeofday.ErrInvalidFormat},
		{"negative duration", func(r *BookingRequest) { r.DurationMinutes = -5 }, timeofday.ErrInvalidTimeRange},
		{"ends after midnight", func(r *BookingRequest) { r.Time = timeofday.MustParse("23:30") }, timeofday.ErrInvalidTimeRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bookingAt(uuid.New(), date, "10:00")
			tt.mutate(&req)
			_, err := svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, conn.Commits())
}

func TestConcurrentBookingsExactlyOneSucceeds(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"nop":   redisclient.NopLocker{},
		"redis": redisclient.NewRedisLocker(client, 2*time.Second, 5*time.Second),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			svc, repo, _ := newTestService(t, locker)
			prof := uuid.New()
			date := mustDate(t, "2025-03-11")

			const workers = 12
			var wg sync.WaitGroup
			errs := make([]error, workers)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, errs[i] = svc.Book(context.Background(), bookingAt(prof, date, "09:00"))
				}(i)
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				assert.ErrorIs(t, err, ErrSlotTaken)
			}
			assert.Equal(t, 1, succeeded)

			n, err := repo.CountConflicts(context.Background(), nil, ConflictQuery{
				Professionals: []uuid.UUID{prof},
				Date:          date,
				Time:          timeofday.MustParse("09:00"),
			})
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestBookMapsLockTimeout(t *testing.T) {
	svc, _, _ := newTestService(t, failingLocker{err: redisclient.ErrLockNotAcquired})

	_, err := svc.Book(context.Background(), bookingAt(uuid.New(), mustDate(t, "2025-03-10"), "10:00"))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

type failingLocker struct{ err error }

func (l failingLocker) WithLock(context.Context, []string, func(context.Context) error) error {
	return l.err
}

func TestRescheduleMovesAppointmentAndNotifies(t *testing.T) {
	sink := &recordingSink{}
	svc, _, _ := newTestService(t, nil, WithNotifier(notify.NewDispatcher(sink, nil, nil)))
	prof, intern := uuid.New(), uuid.New()
	date := mustDate(t, "2025-03-10")

	req := bookingAt(prof, date, "10:00")
	req.SecondaryProfessional = &intern
	appt, err := svc.Book(context.Background(), req)
	require.NoError(t, err)

	newDate := mustDate(t, "2025-03-12")
	moved, err := svc.Reschedule(context.Background(), appt.ID, newDate, timeofday.MustParse("15:00"), "patient request")
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, moved.Status)
	assert.True(t, moved.Date.Equal(newDate))
	assert.Equal(t, "15:00", moved.Time.String())
	require.NotNil(t, moved.PreviousDate)
	require.NotNil(t, moved.PreviousTime)
	assert.True(t, moved.PreviousDate.Equal(date))
	assert.Equal(t, "10:00", moved.PreviousTime.String())
	require.NotNil(t, moved.CancellationReason)
	assert.Equal(t, "Rescheduled: patient request", *moved.CancellationReason)

	require.Len(t, sink.notes, 2)
	assert.Equal(t, notify.TypeAppointmentRescheduled, sink.notes[0].Type)
	assert.ElementsMatch(t, []uuid.UUID{prof, intern}, []uuid.UUID{sink.notes[0].UserID, sink.notes[1].UserID})
}

func TestRescheduleToOwnSlotIsAllowed(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	date := mustDate(t, "2025-03-10")

	appt, err := svc.Book(context.Background(), bookingAt(uuid.New(), date, "10:00"))
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), appt.ID, date, timeofday.MustParse("10:00"), "")
	assert.NoError(t, err)
}

func TestRescheduleConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	prof := uuid.New()
	date := mustDate(t, "2025-03-10")

	_, err := svc.Book(context.Background(), bookingAt(prof, date, "10:00"))
	require.NoError(t, err)
	second, err := svc.Book(context.Background(), bookingAt(prof, date, "11:00"))
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), second.ID, date, timeofday.MustParse("10:00"), "")
	assert.ErrorIs(t, err, ErrSlotTaken)

	after, err := svc.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, "11:00", after.Time.String())
}

func TestRescheduleUnknownAppointment(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	_, err := svc.Reschedule(context.Background(), uuid.New(), mustDate(t, "2025-03-10"), timeofday.MustParse("10:00"), "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestRescheduleRejectsTerminalAppointment(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	appt, err := svc.Book(context.Background(), bookingAt(uuid.New(), mustDate(t, "2025-03-10"), "10:00"))
	require.NoError(t, err)

	_, err = svc.Cancel(context.Background(), appt.ID, "no show")
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), appt.ID, mustDate(t, "2025-03-11"), timeofday.MustParse("10:00"), "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestStatusLifecycle(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	appt, err := svc.Book(context.Background(), bookingAt(uuid.New(), mustDate(t, "2025-03-10"), "10:00"))
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition, "scheduled cannot jump to completed")

	confirmed, err := svc.Confirm(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := svc.Complete(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = svc.Cancel(context.Background(), appt.ID, "too late")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelFutureForPatientUsesCallerTransaction(t *testing.T) {
	svc, repo, conn := newTestService(t, nil)
	patient := uuid.New()
	prof := uuid.New()
	today := mustDate(t, "2025-03-10")

	for _, d := range []string{"2025-03-09", "2025-03-10", "2025-03-20"} {
		req := bookingAt(prof, mustDate(t, d), "10:00")
		req.PatientID = patient
		_, err := svc.Book(context.Background(), req)
		require.NoError(t, err)
	}

	boom := errors.New("later step failed")
	err := conn.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		n, err := svc.CancelFutureForPatient(ctx, tx, patient, today, "patient discharged")
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	list, err := svc.ListByPatient(context.Background(), patient, 0, 0)
	require.NoError(t, err)
	for _, a := range list {
		assert.Equal(t, StatusScheduled, a.Status, "rolled back with the caller")
	}

	err = conn.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		_, err := svc.CancelFutureForPatient(ctx, tx, patient, today, "patient discharged")
		return err
	})
	require.NoError(t, err)

	list, err = repo.ListByPatient(context.Background(), nil, patient, 10, 0)
	require.NoError(t, err)
	cancelled := 0
	for _, a := range list {
		if a.Status == StatusCancelled {
			cancelled++
			assert.Equal(t, "patient discharged", *a.CancellationReason)
			assert.False(t, a.Date.Before(today))
		}
	}
	assert.Equal(t, 2, cancelled)
}

func TestListForProfessionalOnDate(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	prof := uuid.New()
	date := mustDate(t, "2025-03-10")

	for _, at := range []string{"15:00", "09:00", "11:00"} {
		_, err := svc.Book(context.Background(), bookingAt(prof, date, at))
		require.NoError(t, err)
	}

	list, err := svc.ListForProfessionalOnDate(context.Background(), prof, date)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "09:00", list[0].Time.String())
	assert.Equal(t, "15:00", list[2].Time.String())
}

func TestToday(t *testing.T) {
	loc, err := time.LoadLocation("America/Mexico_City")
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Location = loc
	fixed := time.Date(2025, 3, 11, 3, 0, 0, 0, time.UTC) // 21:00 on the 10th in Mexico City
	svc := NewService(newMemRepo(), dbtest.NewConn(), nil, cfg, WithClock(func() time.Time { return fixed }))

	assert.Equal(t, "2025-03-10", timeofday.FormatDate(svc.Today()))
}
