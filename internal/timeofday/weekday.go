package timeofday

import (
	"fmt"
	"strings"
	"time"
)

// Weekday is one of the seven lowercase day tokens stored with availability
// windows.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays lists the tokens in ISO order, Monday first.
var Weekdays = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func ParseWeekday(s string) (Weekday, error) {
	w := Weekday(strings.ToLower(strings.TrimSpace(s)))
	if _, err := w.ISONumber(); err != nil {
		return "", err
	}
	return w, nil
}

// ISONumber maps Monday=1 .. Sunday=7, matching Postgres EXTRACT(ISODOW ...).
// This is the only day numbering used anywhere in the repository.
func (w Weekday) ISONumber() (int, error) {
	switch w {
	case Monday:
		return 1, nil
	case Tuesday:
		return 2, nil
	case Wednesday:
		return 3, nil
	case Thursday:
		return 4, nil
	case Friday:
		return 5, nil
	case Saturday:
		return 6, nil
	case Sunday:
		return 7, nil
	default:
		return 0, fmt.Errorf("%w: weekday %q", ErrInvalidFormat, string(w))
	}
}

// WeekdayOf returns the token for the calendar day of d.
func WeekdayOf(d time.Time) Weekday {
	switch d.Weekday() {
	case time.Monday:
		return Monday
	case time.Tuesday:
		return Tuesday
	case time.Wednesday:
		return Wednesday
	case time.Thursday:
		return Thursday
	case time.Friday:
		return Friday
	case time.Saturday:
		return Saturday
	default:
		return Sunday
	}
}
