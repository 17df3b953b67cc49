package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/care"
	redisclient "github.com/hackgods/clinic-care-scheduling/internal/redis"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

// errorStatuses maps domain errors to HTTP responses. The first match wins.
var errorStatuses = []struct {
	err    error
	status int
	code   string
}{
	{timeofday.ErrInvalidTimeRange, http.StatusBadRequest, "invalid_time_range"},
	{timeofday.ErrInvalidFormat, http.StatusBadRequest, "invalid_format"},
	{appointment.ErrInvalidBooking, http.StatusBadRequest, "invalid_booking"},

	{authz.ErrUnknownUser, http.StatusUnauthorized, "unauthenticated"},
	{authz.ErrForbidden, http.StatusForbidden, "forbidden"},
	{care.ErrNotAssigned, http.StatusForbidden, "not_assigned"},

	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{availability.ErrWindowNotFound, http.StatusNotFound, "window_not_found"},
	{care.ErrPatientNotFound, http.StatusNotFound, "patient_not_found"},
	{care.ErrAssignmentNotFound, http.StatusNotFound, "assignment_not_found"},
	{care.ErrDischargeNotFound, http.StatusNotFound, "discharge_not_found"},

	{appointment.ErrSlotTaken, http.StatusConflict, "slot_taken"},
	{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
	{redisclient.ErrLockNotAcquired, http.StatusConflict, "slot_being_booked"},
	{availability.ErrOverlapConflict, http.StatusConflict, "overlap_conflict"},
	{availability.ErrHasFutureBookings, http.StatusConflict, "has_future_bookings"},
	{care.ErrDuplicateProposal, http.StatusConflict, "duplicate_proposal"},
	{appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{care.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},

	{care.ErrPatientInactive, http.StatusUnprocessableEntity, "patient_inactive"},
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError answers with the status mapped to err. Unmapped errors
// are logged and reported as a 500 without their text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	LoggerFrom(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
