package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

func window(start, end string, interval, maxPerDay int) Window {
	return Window{
		DayOfWeek:             timeofday.Monday,
		Start:                 timeofday.MustParse(start),
		End:                   timeofday.MustParse(end),
		BookingInterval:       interval,
		MaxAppointmentsPerDay: maxPerDay,
		Active:                true,
	}
}

func slotStrings(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Start.String()+"-"+s.End.String())
	}
	return out
}

func TestGenerateSlots(t *testing.T) {
	tests := []struct {
		name     string
		window   Window
		existing []Booked
		want     []string
	}{
		{
			name:   "empty day",
			window: window("09:00", "12:00", 60, 8),
			want:   []string{"09:00-10:00", "10:00-11:00", "11:00-12:00"},
		},
		{
			name:     "booked start removed",
			window:   window("09:00", "12:00", 60, 8),
			existing: []Booked{{Time: timeofday.MustParse("10:00"), DurationMinutes: 60}},
			want:     []string{"09:00-10:00", "11:00-12:00"},
		},
		{
			name:   "partial trailing slot dropped",
			window: window("09:00", "11:30", 50, 8),
			want:   []string{"09:00-09:50", "09:50-10:40", "10:40-11:30"},
		},
		{
			name:   "interval longer than window",
			window: window("09:00", "09:30", 50, 8),
			want:   []string{},
		},
		{
			name:   "capacity reached",
			window: window("09:00", "17:00", 60, 2),
			existing: []Booked{
				{Time: timeofday.MustParse("15:00"), DurationMinutes: 60},
				{Time: timeofday.MustParse("16:00"), DurationMinutes: 60},
			},
			want: []string{},
		},
		{
			name:     "off-grid appointment does not block overlapping slots",
			window:   window("09:00", "11:00", 60, 8),
			existing: []Booked{{Time: timeofday.MustParse("09:30"), DurationMinutes: 60}},
			want:     []string{"09:00-10:00", "10:00-11:00"},
		},
		{
			name:   "zero interval yields nothing",
			window: window("09:00", "11:00", 0, 8),
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateSlots(tt.window, tt.existing)
			assert.Equal(t, tt.want, slotStrings(got))
		})
	}
}

func TestGenerateSlotsIsDeterministic(t *testing.T) {
	w := window("08:00", "14:00", 45, 10)
	existing := []Booked{
		{Time: timeofday.MustParse("09:30"), DurationMinutes: 45},
		{Time: timeofday.MustParse("08:00"), DurationMinutes: 45},
	}

	first := GenerateSlots(w, existing)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, GenerateSlots(w, existing))
	}
	// Input order does not matter.
	assert.Equal(t, first, GenerateSlots(w, []Booked{existing[1], existing[0]}))
}

func TestMergeSlots(t *testing.T) {
	morning := GenerateSlots(window("09:00", "11:00", 60, 8), nil)
	afternoon := GenerateSlots(window("15:00", "16:00", 30, 8), nil)

	got := MergeSlots(afternoon, morning, morning)
	assert.Equal(t, []string{"09:00-10:00", "10:00-11:00", "15:00-15:30", "15:30-16:00"}, slotStrings(got))
}
