package availability

import (
	"sort"

	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

// GenerateSlots steps through w in BookingInterval increments and returns the
// slots whose start is not already booked. Nothing is returned once the day
// holds MaxAppointmentsPerDay appointments, and a trailing slot that would
// end after the window is dropped.
//
// Only exact start-time matches count as taken: an appointment whose
// duration differs from the grid interval does not block the neighbouring
// slots it overlaps.
func GenerateSlots(w Window, existing []Booked) []Slot {
	if len(existing) >= w.MaxAppointmentsPerDay || w.BookingInterval <= 0 {
		return []Slot{}
	}

	occupied := make(map[timeofday.TimeOfDay]struct{}, len(existing))
	for _, b := range existing {
		occupied[b.Time] = struct{}{}
	}

	slots := []Slot{}
	for start := w.Start; start < w.End; start = start.AddMinutes(w.BookingInterval) {
		end := start.AddMinutes(w.BookingInterval)
		if end > w.End {
			break
		}
		if _, taken := occupied[start]; taken {
			continue
		}
		slots = append(slots, Slot{Start: start, End: end})
	}
	return slots
}

// MergeSlots concatenates per-window slot lists in start order, dropping
// duplicate starts.
func MergeSlots(lists ...[]Slot) []Slot {
	seen := make(map[timeofday.TimeOfDay]struct{})
	merged := []Slot{}
	for _, list := range lists {
		for _, s := range list {
			if _, dup := seen[s.Start]; dup {
				continue
			}
			seen[s.Start] = struct{}{}
			merged = append(merged, s)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Start < merged[j].Start })
	return merged
}
