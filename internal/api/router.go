package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/authz"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/care"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type AvailabilityService interface {
	Create(ctx context.Context, actorID uuid.UUID, in availability.NewWindow) (*availability.Window, error)
	Update(ctx context.Context, actorID, id uuid.UUID, patch availability.Patch) (*availability.Window, error)
	Deactivate(ctx context.Context, actorID, id uuid.UUID) (*availability.Window, error)
	Get(ctx context.Context, id uuid.UUID) (*availability.Window, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID, from time.Time) ([]availability.Window, error)
	FreeSlots(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]availability.Slot, error)
}

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime timeofday.TimeOfDay, reason string) (*appointment.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListForProfessionalOnDate(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]appointment.Appointment, error)
}

type CareService interface {
	CreateAssignment(ctx context.Context, actorID uuid.UUID, in care.NewAssignment) (*care.Assignment, error)
	FinalizeAssignment(ctx context.Context, actorID, id uuid.UUID, reason string) (*care.Assignment, error)
	GetAssignment(ctx context.Context, id uuid.UUID) (*care.Assignment, error)
	GetActiveAssignment(ctx context.Context, patientID uuid.UUID) (*care.Assignment, error)
	Propose(ctx context.Context, professionalID, patientID uuid.UUID, typ care.DischargeType, eval care.Evaluation) (*care.Discharge, error)
	Approve(ctx context.Context, actorID, dischargeID uuid.UUID, finalType care.DischargeType, eval care.Evaluation) (*care.Discharge, error)
	Reject(ctx context.Context, actorID, dischargeID uuid.UUID, reason string) (*care.Discharge, error)
	DirectDischarge(ctx context.Context, actorID, patientID uuid.UUID, typ care.DischargeType, eval care.Evaluation) (*care.Discharge, error)
	GetDischarge(ctx context.Context, id uuid.UUID) (*care.Discharge, error)
	ListDischarges(ctx context.Context, f care.DischargeFilter) ([]care.Discharge, error)
}

type RouterConfig struct {
	Availability   AvailabilityService
	Appointments   AppointmentService
	Care           CareService
	Authz          *authz.Checker
	PgPool         Pinger
	Redis          *redis.Client
	MetricsHandler http.Handler
	Logger         *zap.Logger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(ActorMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	can := func(c authz.Capability) func(http.Handler) http.Handler {
		return RequireCapability(cfg.Authz, c)
	}

	// Availability endpoints
	r.Route("/availability", func(r chi.Router) {
		r.With(can(authz.AvailabilityManage)).Post("/", createWindowHandler(cfg.Availability))
		r.With(can(authz.AvailabilityView)).Get("/", listWindowsHandler(cfg.Availability))
		r.With(can(authz.AvailabilityManage)).Patch("/{id}", updateWindowHandler(cfg.Availability))
		r.With(can(authz.AvailabilityManage)).Post("/{id}/deactivate", deactivateWindowHandler(cfg.Availability))
	})
	r.With(can(authz.AppointmentsView)).Get("/slots", freeSlotsHandler(cfg.Availability))

	// Appointment endpoints
	r.Route("/appointments", func(r chi.Router) {
		r.With(can(authz.AppointmentsBook)).Post("/", bookAppointmentHandler(cfg.Appointments))
		r.With(can(authz.AppointmentsView)).Get("/", listAppointmentsHandler(cfg.Appointments))
		r.With(can(authz.AppointmentsView)).Get("/{id}", getAppointmentHandler(cfg.Appointments))
		r.Group(func(r chi.Router) {
			r.Use(can(authz.AppointmentsManage))
			r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/confirm", confirmAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/complete", completeAppointmentHandler(cfg.Appointments))
			r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Appointments))
		})
	})

	// Assignment endpoints
	r.Route("/assignments", func(r chi.Router) {
		r.With(can(authz.AssignmentsManage)).Post("/", createAssignmentHandler(cfg.Care))
		r.With(can(authz.AssignmentsManage)).Post("/{id}/finalize", finalizeAssignmentHandler(cfg.Care))
		r.With(can(authz.AssignmentsView)).Get("/{id}", getAssignmentHandler(cfg.Care))
	})
	r.With(can(authz.AssignmentsView)).Get("/patients/{id}/assignment", activeAssignmentHandler(cfg.Care))

	// Discharge endpoints
	r.Route("/discharges", func(r chi.Router) {
		r.With(can(authz.DischargesPropose)).Post("/proposals", proposeDischargeHandler(cfg.Care))
		r.With(can(authz.DischargesDecide)).Post("/direct", directDischargeHandler(cfg.Care))
		r.With(can(authz.DischargesDecide)).Post("/{id}/approve", approveDischargeHandler(cfg.Care))
		r.With(can(authz.DischargesDecide)).Post("/{id}/reject", rejectDischargeHandler(cfg.Care))
		r.With(can(authz.DischargesView)).Get("/", listDischargesHandler(cfg.Care))
		r.With(can(authz.DischargesView)).Get("/{id}", getDischargeHandler(cfg.Care))
	})

	return r
}
