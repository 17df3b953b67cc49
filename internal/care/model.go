package care

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Active    bool
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AssignmentStatus string

const (
	AssignmentActive    AssignmentStatus = "active"
	AssignmentFinalized AssignmentStatus = "finalized"
	AssignmentSuspended AssignmentStatus = "suspended"
)

// Assignment links a patient to a primary professional and, optionally, the
// intern working the case.
type Assignment struct {
	ID                    uuid.UUID
	PatientID             uuid.UUID
	PrimaryProfessionalID uuid.UUID
	InternID              *uuid.UUID
	StartDate             time.Time
	EndDate               *time.Time
	Status                AssignmentStatus
	EndReason             *string
	Notes                 *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Team returns the primary professional and the intern, if any.
func (a *Assignment) Team() []uuid.UUID {
	ids := []uuid.UUID{a.PrimaryProfessionalID}
	if a.InternID != nil && *a.InternID != a.PrimaryProfessionalID {
		ids = append(ids, *a.InternID)
	}
	return ids
}

// Involves reports whether userID is the primary professional or the intern.
func (a *Assignment) Involves(userID uuid.UUID) bool {
	for _, id := range a.Team() {
		if id == userID {
			return true
		}
	}
	return false
}

type NewAssignment struct {
	PatientID             uuid.UUID
	PrimaryProfessionalID uuid.UUID
	InternID              *uuid.UUID
	Notes                 *string
}

type DischargeStatus string

const (
	DischargeProposed DischargeStatus = "proposed"
	DischargeApproved DischargeStatus = "approved"
	DischargeRejected DischargeStatus = "rejected"
)

func ParseDischargeStatus(s string) (DischargeStatus, error) {
	switch DischargeStatus(s) {
	case DischargeProposed, DischargeApproved, DischargeRejected:
		return DischargeStatus(s), nil
	default:
		return "", fmt.Errorf("%w: discharge status %q", timeofday.ErrInvalidFormat, s)
	}
}

// CanTransition reports whether a discharge may move from s to to. Only a
// proposal can change; approved and rejected are terminal.
func (s DischargeStatus) CanTransition(to DischargeStatus) bool {
	switch s {
	case DischargeProposed:
		return to == DischargeApproved || to == DischargeRejected
	case DischargeApproved, DischargeRejected:
		return false
	default:
		return false
	}
}

type DischargeType string

const (
	DischargeTherapeutic   DischargeType = "therapeutic"
	DischargeDropout       DischargeType = "dropout"
	DischargeTransfer      DischargeType = "transfer"
	DischargeGraduation    DischargeType = "graduation"
	DischargeNotContinuing DischargeType = "not_continuing"
	DischargeOther         DischargeType = "other"
)

func ParseDischargeType(s string) (DischargeType, error) {
	switch DischargeType(s) {
	case DischargeTherapeutic, DischargeDropout, DischargeTransfer,
		DischargeGraduation, DischargeNotContinuing, DischargeOther:
		return DischargeType(s), nil
	default:
		return "", fmt.Errorf("%w: discharge type %q", timeofday.ErrInvalidFormat, s)
	}
}

// PatientStatus is the status a patient takes when discharged with t.
func (t DischargeType) PatientStatus() string {
	return "discharged_" + string(t)
}

type Assessment string

const (
	AssessmentExcellent Assessment = "excellent"
	AssessmentGood      Assessment = "good"
	AssessmentFair      Assessment = "fair"
	AssessmentPoor      Assessment = "poor"
)

func ParseAssessment(s string) (Assessment, error) {
	switch Assessment(s) {
	case AssessmentExcellent, AssessmentGood, AssessmentFair, AssessmentPoor:
		return Assessment(s), nil
	default:
		return "", fmt.Errorf("%w: final assessment %q", timeofday.ErrInvalidFormat, s)
	}
}

// Evaluation is the clinical summary attached to a discharge.
type Evaluation struct {
	Reason              *string
	Recommendations     *string
	FinalAssessment     *Assessment
	FollowUpRecommended bool
	FollowUpDate        *time.Time
}

// normalized drops a follow-up date that was given without recommending a
// follow-up.
func (e Evaluation) normalized() Evaluation {
	if !e.FollowUpRecommended {
		e.FollowUpDate = nil
	}
	return e
}

// merge overlays the fields set in o onto e. The follow-up pair is replaced
// only when o recommends a follow-up.
func (e Evaluation) merge(o Evaluation) Evaluation {
	if o.Reason != nil {
		e.Reason = o.Reason
	}
	if o.Recommendations != nil {
		e.Recommendations = o.Recommendations
	}
	if o.FinalAssessment != nil {
		e.FinalAssessment = o.FinalAssessment
	}
	if o.FollowUpRecommended {
		e.FollowUpRecommended = true
		e.FollowUpDate = o.FollowUpDate
	}
	return e.normalized()
}

// Discharge ends a patient's care episode, either through a proposal that a
// coordinator decides on or directly.
type Discharge struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	ProposedBy        *uuid.UUID
	ActorID           *uuid.UUID
	Type              DischargeType
	Status            DischargeStatus
	Evaluation        Evaluation
	SessionsCompleted int
	RejectionReason   *string
	ProposalDate      *time.Time
	DischargeDate     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DischargeFilter narrows ListDischarges. Zero fields do not filter.
type DischargeFilter struct {
	PatientID *uuid.UUID
	Status    *DischargeStatus
	Type      *DischargeType
	From      *time.Time // discharge date, inclusive
	To        *time.Time // discharge date, inclusive
	Limit     int
	Offset    int
}
