package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDField(w http.ResponseWriter, name, value string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(w http.ResponseWriter, name string, value *string) (*uuid.UUID, bool) {
	if value == nil || *value == "" {
		return nil, true
	}
	id, ok := parseUUIDField(w, name, *value)
	if !ok {
		return nil, false
	}
	return &id, true
}

func parseDate(w http.ResponseWriter, r *http.Request, value string) (time.Time, bool) {
	d, err := timeofday.ParseDate(value)
	if err != nil {
		writeServiceError(w, r, err)
		return time.Time{}, false
	}
	return d, true
}

func parseOptionalDate(w http.ResponseWriter, r *http.Request, value *string) (*time.Time, bool) {
	if value == nil || *value == "" {
		return nil, true
	}
	d, ok := parseDate(w, r, *value)
	if !ok {
		return nil, false
	}
	return &d, true
}

// queryInt reads a non-negative integer query parameter, returning def when
// it is absent.
func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func bookAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		patientID, ok := parseUUIDField(w, "patient_id", req.PatientID)
		if !ok {
			return
		}
		primaryID, ok := parseUUIDField(w, "primary_professional_id", req.PrimaryProfessionalID)
		if !ok {
			return
		}
		secondaryID, ok := parseOptionalUUID(w, "secondary_professional_id", req.SecondaryProfessionalID)
		if !ok {
			return
		}
		// An intern booking without naming a secondary attends as one.
		if secondaryID == nil && RoleFrom(r.Context()) == authz.RoleIntern {
			if actor := ActorFrom(r.Context()); actor != primaryID {
				secondaryID = &actor
			}
		}
		date, ok := parseDate(w, r, req.Date)
		if !ok {
			return
		}
		at, err := timeofday.Parse(req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		modality, err := appointment.ParseModality(req.Modality)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookingRequest{
			PatientID:             patientID,
			PrimaryProfessionalID: primaryID,
			SecondaryProfessional: secondaryID,
			Date:                  date,
			Time:                  at,
			DurationMinutes:       req.DurationMinutes,
			Modality:              modality,
			Notes:                 req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler lists a patient's appointments, or a professional's
// appointments on one date when professional_id and date are given.
func listAppointmentsHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var (
			list []appointment.Appointment
			err  error
		)
		switch {
		case q.Get("patient_id") != "":
			patientID, ok := parseUUIDField(w, "patient_id", q.Get("patient_id"))
			if !ok {
				return
			}
			limit, ok := queryInt(w, r, "limit", 0)
			if !ok {
				return
			}
			offset, ok := queryInt(w, r, "offset", 0)
			if !ok {
				return
			}
			list, err = svc.ListByPatient(r.Context(), patientID, limit, offset)
		case q.Get("professional_id") != "":
			professionalID, ok := parseUUIDField(w, "professional_id", q.Get("professional_id"))
			if !ok {
				return
			}
			date, ok := parseDate(w, r, q.Get("date"))
			if !ok {
				return
			}
			list, err = svc.ListForProfessionalOnDate(r.Context(), professionalID, date)
		default:
			writeError(w, http.StatusBadRequest, "missing_filter", "patient_id or professional_id is required")
			return
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(list))
		for i := range list {
			resp = append(resp, toAppointmentResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, ok := parseDate(w, r, req.Date)
		if !ok {
			return
		}
		at, err := timeofday.Parse(req.Time)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, date, at, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return statusHandler(svc.Confirm)
}

func completeAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return statusHandler(svc.Complete)
}

func statusHandler(apply func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		appt, err := apply(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req CancelRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
