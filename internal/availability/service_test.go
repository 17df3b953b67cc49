package availability

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/audit"
	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/db/dbtest"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type memRepo struct {
	mu      sync.Mutex
	windows map[uuid.UUID]Window
	// appointments consulted by CountFutureBookings
	appointments []appointment.Appointment
}

func newMemRepo() *memRepo {
	return &memRepo{windows: make(map[uuid.UUID]Window)}
}

func (r *memRepo) Snapshot() func() {
	r.mu.Lock()
	saved := make(map[uuid.UUID]Window, len(r.windows))
	for k, v := range r.windows {
		saved[k] = v
	}
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		r.windows = saved
		r.mu.Unlock()
	}
}

func (r *memRepo) GetByID(_ context.Context, _ db.DBTX, id uuid.UUID) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	return &w, nil
}

func (r *memRepo) GetByIDForUpdate(ctx context.Context, q db.DBTX, id uuid.UUID) (*Window, error) {
	return r.GetByID(ctx, q, id)
}

func (r *memRepo) ListActiveForOwnerDay(_ context.Context, _ db.DBTX, ownerID uuid.UUID, day timeofday.Weekday) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, w := range r.windows {
		if w.Active && w.OwnerID == ownerID && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (r *memRepo) ListForOwner(_ context.Context, _ db.DBTX, ownerID uuid.UUID, from time.Time) ([]Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Window
	for _, w := range r.windows {
		if w.Active && w.OwnerID == ownerID && (w.VigencyEnd == nil || !w.VigencyEnd.Before(from)) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *memRepo) Create(_ context.Context, _ db.DBTX, w *Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	created := *w
	r.windows[w.ID] = created
	return &created, nil
}

func (r *memRepo) Update(_ context.Context, _ db.DBTX, w *Window) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.windows[w.ID]; !ok {
		return nil, ErrWindowNotFound
	}
	r.windows[w.ID] = *w
	updated := *w
	return &updated, nil
}

func (r *memRepo) Deactivate(_ context.Context, _ db.DBTX, id uuid.UUID) (*Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.windows[id]
	if !ok {
		return nil, ErrWindowNotFound
	}
	w.Active = false
	r.windows[id] = w
	return &w, nil
}

func (r *memRepo) CountFutureBookings(_ context.Context, _ db.DBTX, fq FutureBookingQuery) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.appointments {
		iso, _ := timeofday.WeekdayOf(a.Date).ISONumber()
		if !a.Date.After(fq.AfterDate) || !a.Status.Active() || iso != fq.ISODay {
			continue
		}
		if a.Time < fq.Start || a.Time >= fq.End {
			continue
		}
		for _, p := range a.Professionals() {
			if p == fq.OwnerID {
				n++
				break
			}
		}
	}
	return n, nil
}

type stubAppointments struct {
	byDate map[string][]appointment.Appointment
}

func (s stubAppointments) ListForProfessionalOnDate(_ context.Context, _ uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	return s.byDate[timeofday.FormatDate(date)], nil
}

type auditEntry struct {
	actor  uuid.UUID
	module string
	action string
}

type memAuditLog struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (l *memAuditLog) Record(_ context.Context, actorID uuid.UUID, module, action string, _, _ any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, auditEntry{actor: actorID, module: module, action: action})
	return nil
}

// 2025-03-10 is a Monday.
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	repo  *memRepo
	conn  *dbtest.Conn
	audit *memAuditLog
	appts *stubAppointments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemRepo()
	conn := dbtest.NewConn(repo)
	log := &memAuditLog{}
	appts := &stubAppointments{byDate: map[string][]appointment.Appointment{}}
	cfg := config.Config{
		Location: time.UTC,
		Defaults: config.WindowDefaults{MaxAppointmentsPerDay: 8, BookingInterval: 50, AppointmentDuration: 50},
	}
	svc := NewService(repo, conn, appts, cfg,
		WithAudit(audit.NewRecorder(log, nil, nil)),
		WithClock(func() time.Time { return testNow }),
	)
	return &fixture{svc: svc, repo: repo, conn: conn, audit: log, appts: appts}
}

func monday(owner uuid.UUID, start, end string) NewWindow {
	return NewWindow{OwnerID: owner, DayOfWeek: "monday", Start: start, End: end}
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	owner, actor := uuid.New(), uuid.New()

	w, err := f.svc.Create(context.Background(), actor, monday(owner, "09:00", "12:00"))
	require.NoError(t, err)

	assert.True(t, w.Active)
	assert.Equal(t, KindRegular, w.Kind)
	assert.Equal(t, 8, w.MaxAppointmentsPerDay)
	assert.Equal(t, 50, w.BookingInterval)
	assert.Equal(t, "2025-03-10", timeofday.FormatDate(w.VigencyStart))
	assert.Equal(t, []string{"availability:" + owner.String() + ":monday"}, f.conn.Locks())

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, auditEntry{actor: actor, module: audit.ModuleAvailability, action: "create"}, f.audit.entries[0])
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	_, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)

	tests := []struct {
		name       string
		start, end string
		wantErr    error
	}{
		{"partial overlap", "10:00", "12:00", ErrOverlapConflict},
		{"contained", "09:30", "10:30", ErrOverlapConflict},
		{"touching boundary", "11:00", "12:00", ErrOverlapConflict},
		{"disjoint", "11:30", "13:00", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), owner, monday(owner, tt.start, tt.end))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateOverlapIsScopedToOwnerAndDay(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	_, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)

	tuesday := monday(owner, "09:00", "11:00")
	tuesday.DayOfWeek = "tuesday"
	_, err = f.svc.Create(context.Background(), owner, tuesday)
	assert.NoError(t, err)

	other := uuid.New()
	_, err = f.svc.Create(context.Background(), other, monday(other, "09:00", "11:00"))
	assert.NoError(t, err)
}

func TestCreateIgnoresDeactivatedWindows(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)
	_, err = f.svc.Deactivate(context.Background(), owner, w.ID)
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	assert.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	tests := []struct {
		name    string
		in      NewWindow
		wantErr error
	}{
		{"bad day", NewWindow{OwnerID: owner, DayOfWeek: "funday", Start: "09:00", End: "10:00"}, timeofday.ErrInvalidFormat},
		{"bad time", monday(owner, "9am", "10:00"), timeofday.ErrInvalidFormat},
		{"end before start", monday(owner, "10:00", "09:00"), timeofday.ErrInvalidTimeRange},
		{"empty range", monday(owner, "10:00", "10:00"), timeofday.ErrInvalidTimeRange},
		{"bad kind", NewWindow{OwnerID: owner, DayOfWeek: "monday", Start: "09:00", End: "10:00", Kind: "weekly"}, timeofday.ErrInvalidFormat},
		{"negative interval", NewWindow{OwnerID: owner, DayOfWeek: "monday", Start: "09:00", End: "10:00", BookingInterval: -10}, timeofday.ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), owner, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Zero(t, f.conn.Commits())
}

func TestUpdateExcludesItselfFromOverlap(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), owner, monday(owner, "14:00", "16:00"))
	require.NoError(t, err)

	end := "12:00"
	updated, err := f.svc.Update(context.Background(), owner, w.ID, Patch{End: &end})
	require.NoError(t, err)
	assert.Equal(t, "12:00", updated.End.String())

	start := "13:00"
	end = "15:00"
	_, err = f.svc.Update(context.Background(), owner, w.ID, Patch{Start: &start, End: &end})
	assert.ErrorIs(t, err, ErrOverlapConflict)

	end = "08:00"
	_, err = f.svc.Update(context.Background(), owner, w.ID, Patch{End: &end})
	assert.ErrorIs(t, err, timeofday.ErrInvalidTimeRange)

	stored, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, "09:00", stored.Start.String())
	assert.Equal(t, "12:00", stored.End.String())
}

func TestUpdateNonRangeFieldsSkipsOverlapCheck(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)

	maxPerDay := 3
	notes := "front desk only"
	updated, err := f.svc.Update(context.Background(), owner, w.ID, Patch{MaxAppointmentsPerDay: &maxPerDay, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MaxAppointmentsPerDay)
	assert.Equal(t, "front desk only", *updated.Notes)
}

func TestUpdateClearsVigencyEnd(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "11:00"))
	require.NoError(t, err)

	until := testNow.AddDate(0, 2, 0)
	updated, err := f.svc.Update(context.Background(), owner, w.ID, Patch{VigencyEnd: &until})
	require.NoError(t, err)
	require.NotNil(t, updated.VigencyEnd)

	_, err = f.svc.Update(context.Background(), owner, w.ID, Patch{VigencyEnd: &until, ClearVigencyEnd: true})
	assert.ErrorIs(t, err, timeofday.ErrInvalidFormat)

	updated, err = f.svc.Update(context.Background(), owner, w.ID, Patch{ClearVigencyEnd: true})
	require.NoError(t, err)
	assert.Nil(t, updated.VigencyEnd)

	stored, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.VigencyEnd)
}

func TestUpdateUnknownWindow(t *testing.T) {
	f := newFixture(t)
	end := "12:00"
	_, err := f.svc.Update(context.Background(), uuid.New(), uuid.New(), Patch{End: &end})
	assert.ErrorIs(t, err, ErrWindowNotFound)
}

func TestDeactivateBlockedByFutureBookings(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "12:00"))
	require.NoError(t, err)

	secondary := owner
	f.repo.appointments = []appointment.Appointment{
		// Next Monday, inside the window, owner as intern.
		{
			ID:                    uuid.New(),
			PrimaryProfessionalID: uuid.New(),
			SecondaryProfessional: &secondary,
			Date:                  time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC),
			Time:                  timeofday.MustParse("10:00"),
			Status:                appointment.StatusConfirmed,
		},
	}

	_, err = f.svc.Deactivate(context.Background(), owner, w.ID)
	assert.ErrorIs(t, err, ErrHasFutureBookings)

	stored, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active)
}

func TestDeactivateIgnoresBookingsOutsideWindow(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	w, err := f.svc.Create(context.Background(), owner, monday(owner, "09:00", "12:00"))
	require.NoError(t, err)

	f.repo.appointments = []appointment.Appointment{
		// Today does not count, only dates after today.
		{ID: uuid.New(), PrimaryProfessionalID: owner, Date: testNow.Truncate(24 * time.Hour), Time: timeofday.MustParse("10:00"), Status: appointment.StatusScheduled},
		// Starts at the window end.
		{ID: uuid.New(), PrimaryProfessionalID: owner, Date: time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), Time: timeofday.MustParse("12:00"), Status: appointment.StatusScheduled},
		// Tuesday.
		{ID: uuid.New(), PrimaryProfessionalID: owner, Date: time.Date(2025, 3, 18, 0, 0, 0, 0, time.UTC), Time: timeofday.MustParse("10:00"), Status: appointment.StatusScheduled},
		// Cancelled.
		{ID: uuid.New(), PrimaryProfessionalID: owner, Date: time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), Time: timeofday.MustParse("10:00"), Status: appointment.StatusCancelled},
	}

	deactivated, err := f.svc.Deactivate(context.Background(), owner, w.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	windows, err := f.svc.ListForOwner(context.Background(), owner, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, windows)
}

func TestListForOwnerFiltersByVigency(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	ended := time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)
	in := monday(owner, "09:00", "10:00")
	in.VigencyEnd = &ended
	_, err := f.svc.Create(context.Background(), owner, in)
	require.NoError(t, err)
	_, err = f.svc.Create(context.Background(), owner, monday(owner, "15:00", "16:00"))
	require.NoError(t, err)

	windows, err := f.svc.ListForOwner(context.Background(), owner, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, windows, 2)

	windows, err = f.svc.ListForOwner(context.Background(), owner, time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, "15:00", windows[0].Start.String())
}

func TestFreeSlots(t *testing.T) {
	f := newFixture(t)
	owner := uuid.New()

	in := monday(owner, "09:00", "12:00")
	in.BookingInterval = 60
	_, err := f.svc.Create(context.Background(), owner, in)
	require.NoError(t, err)

	in = monday(owner, "14:00", "15:00")
	in.BookingInterval = 30
	_, err = f.svc.Create(context.Background(), owner, in)
	require.NoError(t, err)

	nextMonday := time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC)
	f.appts.byDate["2025-03-17"] = []appointment.Appointment{
		{Time: timeofday.MustParse("10:00"), DurationMinutes: 60, Status: appointment.StatusScheduled},
	}

	slots, err := f.svc.FreeSlots(context.Background(), owner, nextMonday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00-10:00", "11:00-12:00", "14:00-14:30", "14:30-15:00"}, slotStrings(slots))

	// No window on Tuesdays.
	slots, err = f.svc.FreeSlots(context.Background(), owner, nextMonday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, slots)

	// Before the vigency started.
	slots, err = f.svc.FreeSlots(context.Background(), owner, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, slots)
}
