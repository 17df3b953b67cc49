package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

// requireOwnerOrCoordinator lets professionals manage only their own windows.
func requireOwnerOrCoordinator(w http.ResponseWriter, r *http.Request, ownerID uuid.UUID) bool {
	if RoleFrom(r.Context()) == authz.RoleCoordinator || ActorFrom(r.Context()) == ownerID {
		return true
	}
	writeServiceError(w, r, fmt.Errorf("%w: window belongs to another professional", authz.ErrForbidden))
	return false
}

// ownerParam returns the owner named by value, defaulting to the caller.
func ownerParam(w http.ResponseWriter, r *http.Request, name, value string) (uuid.UUID, bool) {
	if value == "" {
		return ActorFrom(r.Context()), true
	}
	return parseUUIDField(w, name, value)
}

func createWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateWindowRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ownerID, ok := ownerParam(w, r, "owner_id", req.OwnerID)
		if !ok {
			return
		}
		if !requireOwnerOrCoordinator(w, r, ownerID) {
			return
		}
		vigencyEnd, ok := parseOptionalDate(w, r, req.VigencyEnd)
		if !ok {
			return
		}

		win, err := svc.Create(r.Context(), ActorFrom(r.Context()), availability.NewWindow{
			OwnerID:               ownerID,
			DayOfWeek:             req.DayOfWeek,
			Start:                 req.StartTime,
			End:                   req.EndTime,
			Kind:                  req.Kind,
			Notes:                 req.Notes,
			VigencyEnd:            vigencyEnd,
			MaxAppointmentsPerDay: req.MaxAppointmentsPerDay,
			BookingInterval:       req.BookingInterval,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWindowResponse(win))
	}
}

func listWindowsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		ownerID, ok := ownerParam(w, r, "owner_id", q.Get("owner_id"))
		if !ok {
			return
		}
		var from time.Time
		if raw := q.Get("from"); raw != "" {
			if from, ok = parseDate(w, r, raw); !ok {
				return
			}
		}

		windows, err := svc.ListForOwner(r.Context(), ownerID, from)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := make([]WindowResponse, 0, len(windows))
		for i := range windows {
			resp = append(resp, toWindowResponse(&windows[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func updateWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req UpdateWindowRequest
		if !decodeBody(w, r, &req) {
			return
		}

		current, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !requireOwnerOrCoordinator(w, r, current.OwnerID) {
			return
		}
		vigencyEnd, ok := parseOptionalDate(w, r, req.VigencyEnd)
		if !ok {
			return
		}

		win, err := svc.Update(r.Context(), ActorFrom(r.Context()), id, availability.Patch{
			DayOfWeek:             req.DayOfWeek,
			Start:                 req.StartTime,
			End:                   req.EndTime,
			Kind:                  req.Kind,
			Notes:                 req.Notes,
			VigencyEnd:            vigencyEnd,
			MaxAppointmentsPerDay: req.MaxAppointmentsPerDay,
			BookingInterval:       req.BookingInterval,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toWindowResponse(win))
	}
}

func deactivateWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		current, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if !requireOwnerOrCoordinator(w, r, current.OwnerID) {
			return
		}

		win, err := svc.Deactivate(r.Context(), ActorFrom(r.Context()), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toWindowResponse(win))
	}
}

func freeSlotsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		professionalID, ok := parseUUIDField(w, "professional_id", q.Get("professional_id"))
		if !ok {
			return
		}
		date, ok := parseDate(w, r, q.Get("date"))
		if !ok {
			return
		}

		slots, err := svc.FreeSlots(r.Context(), professionalID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := SlotsResponse{
			ProfessionalID: professionalID,
			Date:           timeofday.FormatDate(date),
			Slots:          make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{Start: s.Start.String(), End: s.End.String()})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
