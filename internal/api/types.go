package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/appointment"
	"github.com/hackgods/clinic-care-scheduling/internal/availability"
	"github.com/hackgods/clinic-care-scheduling/internal/care"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Availability

type CreateWindowRequest struct {
	OwnerID               string  `json:"owner_id"`
	DayOfWeek             string  `json:"day_of_week"`
	StartTime             string  `json:"start_time"`
	EndTime               string  `json:"end_time"`
	Kind                  string  `json:"kind"`
	Notes                 *string `json:"notes"`
	VigencyEnd            *string `json:"vigency_end"`
	MaxAppointmentsPerDay int     `json:"max_appointments_per_day"`
	BookingInterval       int     `json:"booking_interval_minutes"`
}

type UpdateWindowRequest struct {
	DayOfWeek             *string `json:"day_of_week"`
	StartTime             *string `json:"start_time"`
	EndTime               *string `json:"end_time"`
	Kind                  *string `json:"kind"`
	Notes                 *string `json:"notes"`
	VigencyEnd            *string `json:"vigency_end"`
	ClearVigencyEnd       bool    `json:"clear_vigency_end"`
	MaxAppointmentsPerDay *int    `json:"max_appointments_per_day"`
	BookingInterval       *int    `json:"booking_interval_minutes"`
}

type WindowResponse struct {
	ID                    uuid.UUID `json:"id"`
	OwnerID               uuid.UUID `json:"owner_id"`
	DayOfWeek             string    `json:"day_of_week"`
	StartTime             string    `json:"start_time"`
	EndTime               string    `json:"end_time"`
	Kind                  string    `json:"kind"`
	Notes                 *string   `json:"notes,omitempty"`
	Active                bool      `json:"active"`
	VigencyStart          string    `json:"vigency_start"`
	VigencyEnd            *string   `json:"vigency_end,omitempty"`
	MaxAppointmentsPerDay int       `json:"max_appointments_per_day"`
	BookingInterval       int       `json:"booking_interval_minutes"`
}

type SlotResponse struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type SlotsResponse struct {
	ProfessionalID uuid.UUID      `json:"professional_id"`
	Date           string         `json:"date"`
	Slots          []SlotResponse `json:"slots"`
}

// Appointments

type BookAppointmentRequest struct {
	PatientID               string  `json:"patient_id"`
	PrimaryProfessionalID   string  `json:"primary_professional_id"`
	SecondaryProfessionalID *string `json:"secondary_professional_id"`
	Date                    string  `json:"date"`
	Time                    string  `json:"time"`
	DurationMinutes         int     `json:"duration_minutes"`
	Modality                string  `json:"modality"`
	Notes                   *string `json:"notes"`
}

type RescheduleRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AppointmentResponse struct {
	ID                      uuid.UUID  `json:"id"`
	PatientID               uuid.UUID  `json:"patient_id"`
	PrimaryProfessionalID   uuid.UUID  `json:"primary_professional_id"`
	SecondaryProfessionalID *uuid.UUID `json:"secondary_professional_id,omitempty"`
	Date                    string     `json:"date"`
	Time                    string     `json:"time"`
	DurationMinutes         int        `json:"duration_minutes"`
	Modality                string     `json:"modality"`
	Status                  string     `json:"status"`
	Notes                   *string    `json:"notes,omitempty"`
	CancellationReason      *string    `json:"cancellation_reason,omitempty"`
	PreviousDate            *string    `json:"previous_date,omitempty"`
	PreviousTime            *string    `json:"previous_time,omitempty"`
}

// Assignments

type CreateAssignmentRequest struct {
	PatientID             string  `json:"patient_id"`
	PrimaryProfessionalID string  `json:"primary_professional_id"`
	InternID              *string `json:"intern_id"`
	Notes                 *string `json:"notes"`
}

type FinalizeAssignmentRequest struct {
	Reason string `json:"reason"`
}

type AssignmentResponse struct {
	ID                    uuid.UUID  `json:"id"`
	PatientID             uuid.UUID  `json:"patient_id"`
	PrimaryProfessionalID uuid.UUID  `json:"primary_professional_id"`
	InternID              *uuid.UUID `json:"intern_id,omitempty"`
	StartDate             string     `json:"start_date"`
	EndDate               *string    `json:"end_date,omitempty"`
	Status                string     `json:"status"`
	EndReason             *string    `json:"end_reason,omitempty"`
	Notes                 *string    `json:"notes,omitempty"`
}

// Discharges

type EvaluationRequest struct {
	Reason              *string `json:"reason"`
	Recommendations     *string `json:"recommendations"`
	FinalAssessment     *string `json:"final_assessment"`
	FollowUpRecommended bool    `json:"follow_up_recommended"`
	FollowUpDate        *string `json:"follow_up_date"`
}

type ProposeDischargeRequest struct {
	PatientID string `json:"patient_id"`
	Type      string `json:"discharge_type"`
	EvaluationRequest
}

type ApproveDischargeRequest struct {
	Type string `json:"discharge_type"`
	EvaluationRequest
}

type RejectDischargeRequest struct {
	Reason string `json:"reason"`
}

type DirectDischargeRequest = ProposeDischargeRequest

type DischargeResponse struct {
	ID                  uuid.UUID  `json:"id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	ProposedBy          *uuid.UUID `json:"proposed_by,omitempty"`
	ActorID             *uuid.UUID `json:"actor_id,omitempty"`
	Type                string     `json:"discharge_type"`
	Status              string     `json:"status"`
	Reason              *string    `json:"reason,omitempty"`
	Recommendations     *string    `json:"recommendations,omitempty"`
	FinalAssessment     *string    `json:"final_assessment,omitempty"`
	FollowUpRecommended bool       `json:"follow_up_recommended"`
	FollowUpDate        *string    `json:"follow_up_date,omitempty"`
	SessionsCompleted   int        `json:"sessions_completed"`
	RejectionReason     *string    `json:"rejection_reason,omitempty"`
	ProposalDate        *string    `json:"proposal_date,omitempty"`
	DischargeDate       *string    `json:"discharge_date,omitempty"`
}

func formatDatePtr(d *time.Time) *string {
	if d == nil {
		return nil
	}
	s := timeofday.FormatDate(*d)
	return &s
}

func toWindowResponse(w *availability.Window) WindowResponse {
	return WindowResponse{
		ID:                    w.ID,
		OwnerID:               w.OwnerID,
		DayOfWeek:             string(w.DayOfWeek),
		StartTime:             w.Start.String(),
		EndTime:               w.End.String(),
		Kind:                  string(w.Kind),
		Notes:                 w.Notes,
		Active:                w.Active,
		VigencyStart:          timeofday.FormatDate(w.VigencyStart),
		VigencyEnd:            formatDatePtr(w.VigencyEnd),
		MaxAppointmentsPerDay: w.MaxAppointmentsPerDay,
		BookingInterval:       w.BookingInterval,
	}
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                      a.ID,
		PatientID:               a.PatientID,
		PrimaryProfessionalID:   a.PrimaryProfessionalID,
		SecondaryProfessionalID: a.SecondaryProfessional,
		Date:                    timeofday.FormatDate(a.Date),
		Time:                    a.Time.String(),
		DurationMinutes:         a.DurationMinutes,
		Modality:                string(a.Modality),
		Status:                  string(a.Status),
		Notes:                   a.Notes,
		CancellationReason:      a.CancellationReason,
		PreviousDate:            formatDatePtr(a.PreviousDate),
	}
	if a.PreviousTime != nil {
		s := a.PreviousTime.String()
		resp.PreviousTime = &s
	}
	return resp
}

func toAssignmentResponse(a *care.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:                    a.ID,
		PatientID:             a.PatientID,
		PrimaryProfessionalID: a.PrimaryProfessionalID,
		InternID:              a.InternID,
		StartDate:             timeofday.FormatDate(a.StartDate),
		EndDate:               formatDatePtr(a.EndDate),
		Status:                string(a.Status),
		EndReason:             a.EndReason,
		Notes:                 a.Notes,
	}
}

func toDischargeResponse(d *care.Discharge) DischargeResponse {
	resp := DischargeResponse{
		ID:                  d.ID,
		PatientID:           d.PatientID,
		ProposedBy:          d.ProposedBy,
		ActorID:             d.ActorID,
		Type:                string(d.Type),
		Status:              string(d.Status),
		Reason:              d.Evaluation.Reason,
		Recommendations:     d.Evaluation.Recommendations,
		FollowUpRecommended: d.Evaluation.FollowUpRecommended,
		FollowUpDate:        formatDatePtr(d.Evaluation.FollowUpDate),
		SessionsCompleted:   d.SessionsCompleted,
		RejectionReason:     d.RejectionReason,
		ProposalDate:        formatDatePtr(d.ProposalDate),
		DischargeDate:       formatDatePtr(d.DischargeDate),
	}
	if d.Evaluation.FinalAssessment != nil {
		s := string(*d.Evaluation.FinalAssessment)
		resp.FinalAssessment = &s
	}
	return resp
}
