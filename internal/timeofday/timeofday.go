// Package timeofday holds the wall-clock primitives the scheduler works with:
// HH:MM times of day, weekday tokens and civil dates.
package timeofday

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidTimeRange = errors.New("end time must be after start time")
)

const minutesPerDay = 24 * 60

// EndOfDay is 24:00, the latest end a range inside one day may have.
const EndOfDay TimeOfDay = minutesPerDay

// TimeOfDay is a wall-clock time in minutes since midnight. Values produced
// by AddMinutes may exceed 23:59; they never roll over to the next day.
type TimeOfDay int

// Parse accepts HH:MM (or H:MM) with hour 0-23 and minute 0-59. A trailing
// ":SS" as returned by SQL TIME columns is tolerated when it is ":00".
func Parse(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if len(s) == 8 && strings.HasSuffix(s, ":00") {
		s = s[:5]
	}

	hh, mm, ok := strings.Cut(s, ":")
	if !ok || len(hh) < 1 || len(hh) > 2 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: time %q, want HH:MM", ErrInvalidFormat, s)
	}

	h, okH := atoi(hh)
	m, okM := atoi(mm)
	if !okH || !okM || h > 23 || m > 59 {
		return 0, fmt.Errorf("%w: time %q, want HH:MM", ErrInvalidFormat, s)
	}

	return TimeOfDay(h*60 + m), nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

func atoi(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Compare orders by (hour, minute) and returns -1, 0 or 1.
func (t TimeOfDay) Compare(o TimeOfDay) int {
	switch {
	case t < o:
		return -1
	case t > o:
		return 1
	default:
		return 0
	}
}

// AddMinutes carries minutes into hours. There is no day rollover: 23:30 plus
// 60 minutes is 24:30, which callers reject through WithinDay.
func (t TimeOfDay) AddMinutes(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// WithinDay reports whether t is a real wall-clock time.
func (t TimeOfDay) WithinDay() bool {
	return t >= 0 && t < minutesPerDay
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Overlaps reports whether [startA,endA] and [startB,endB] intersect. Ranges
// that only touch at an endpoint count as overlapping.
func Overlaps(startA, endA, startB, endB TimeOfDay) bool {
	return startA <= endB && startB <= endA
}

// ValidateRange parses both bounds and requires end > start.
func ValidateRange(start, end string) (TimeOfDay, TimeOfDay, error) {
	s, err := Parse(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := Parse(end)
	if err != nil {
		return 0, 0, err
	}
	if e.Compare(s) <= 0 {
		return 0, 0, fmt.Errorf("%w: %s-%s", ErrInvalidTimeRange, s, e)
	}
	return s, e, nil
}
