// Package care runs the care-episode lifecycle: who is assigned to a patient
// and how the episode ends through a discharge.
package care

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/audit"
	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/metrics"
	"github.com/hackgods/clinic-care-scheduling/internal/notify"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

var (
	ErrNotAssigned       = errors.New("professional has no active assignment to this patient")
	ErrPatientInactive   = errors.New("patient is not active")
	ErrDuplicateProposal = errors.New("patient already has a pending discharge proposal")
	ErrInvalidTransition = errors.New("invalid care-episode transition")
)

const (
	reasonReassignment = "reassignment"
	reasonDischarged   = "patient discharged"
)

// AppointmentLedger is the part of the booking side the cascade needs. Both
// calls run on the handle they are given.
type AppointmentLedger interface {
	CancelFutureForPatient(ctx context.Context, tx db.DBTX, patientID uuid.UUID, onOrAfter time.Time, reason string) (int64, error)
	CountCompletedForPatient(ctx context.Context, q db.DBTX, patientID uuid.UUID) (int, error)
}

// Coordinators lists the users who decide on discharge proposals.
type Coordinators interface {
	CoordinatorIDs(ctx context.Context) ([]uuid.UUID, error)
}

type Service struct {
	repo         Repository
	conn         db.Conn
	ledger       AppointmentLedger
	coordinators Coordinators
	notifier     *notify.Dispatcher
	audit        *audit.Recorder
	metrics      *metrics.SchedulingMetrics
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = logging.OrNop(l) }
}

func WithNotifier(d *notify.Dispatcher) Option {
	return func(s *Service) { s.notifier = d }
}

func WithAudit(r *audit.Recorder) Option {
	return func(s *Service) { s.audit = r }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithCoordinators(c Coordinators) Option {
	return func(s *Service) { s.coordinators = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, conn db.Conn, ledger AppointmentLedger, cfg config.Config, opts ...Option) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:   repo,
		conn:   conn,
		ledger: ledger,
		loc:    loc,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	return timeofday.DateOf(s.now(), s.loc)
}

func patientKey(id uuid.UUID) string {
	return "patient:" + id.String()
}

// Assignments

// CreateAssignment makes a new active assignment for the patient, finalizing
// the current one with reason "reassignment" in the same transaction.
func (s *Service) CreateAssignment(ctx context.Context, actorID uuid.UUID, in NewAssignment) (*Assignment, error) {
	if in.PatientID == uuid.Nil || in.PrimaryProfessionalID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient and primary professional are required", timeofday.ErrInvalidFormat)
	}
	if in.InternID != nil && (*in.InternID == uuid.Nil || *in.InternID == in.PrimaryProfessionalID) {
		in.InternID = nil
	}

	today := s.today()
	var previous, created *Assignment

	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockKeys(ctx, tx, patientKey(in.PatientID)); err != nil {
			return err
		}

		patient, err := s.repo.GetPatientForUpdate(ctx, tx, in.PatientID)
		if err != nil {
			return err
		}
		if !patient.Active {
			return ErrPatientInactive
		}

		current, err := s.repo.GetActiveAssignment(ctx, tx, in.PatientID)
		switch {
		case err == nil:
			previous, err = s.repo.FinalizeAssignment(ctx, tx, current.ID, today, reasonReassignment)
			if err != nil {
				return fmt.Errorf("finalize previous assignment: %w", err)
			}
		case errors.Is(err, ErrAssignmentNotFound):
		default:
			return err
		}

		created, err = s.repo.CreateAssignment(ctx, tx, &Assignment{
			ID:                    uuid.New(),
			PatientID:             in.PatientID,
			PrimaryProfessionalID: in.PrimaryProfessionalID,
			InternID:              in.InternID,
			StartDate:             today,
			Status:                AssignmentActive,
			Notes:                 in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment created",
		zap.String("assignment_id", created.ID.String()),
		zap.String("patient_id", created.PatientID.String()),
		zap.Bool("reassigned", previous != nil),
	)
	s.audit.Record(ctx, actorID, audit.ModuleAssignments, "create", previous, created)

	notes := make([]notify.Notification, 0, 2)
	for _, userID := range created.Team() {
		notes = append(notes, notify.Notification{
			UserID:  userID,
			Type:    notify.TypeAssignmentNew,
			Title:   "New patient assignment",
			Message: "A patient has been assigned to you",
		})
	}
	s.notifier.Send(ctx, notes...)

	return created, nil
}

// FinalizeAssignment ends an active assignment without touching the patient.
func (s *Service) FinalizeAssignment(ctx context.Context, actorID uuid.UUID, id uuid.UUID, reason string) (*Assignment, error) {
	var before, after *Assignment
	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		var err error
		before, err = s.repo.GetAssignmentForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if before.Status != AssignmentActive {
			return fmt.Errorf("%w: assignment is %s", ErrInvalidTransition, before.Status)
		}

		after, err = s.repo.FinalizeAssignment(ctx, tx, id, s.today(), reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("assignment finalized", zap.String("assignment_id", id.String()))
	s.audit.Record(ctx, actorID, audit.ModuleAssignments, "finalize", before, after)
	return after, nil
}

func (s *Service) GetAssignment(ctx context.Context, id uuid.UUID) (*Assignment, error) {
	return s.repo.GetAssignment(ctx, s.conn, id)
}

func (s *Service) GetActiveAssignment(ctx context.Context, patientID uuid.UUID) (*Assignment, error) {
	return s.repo.GetActiveAssignment(ctx, s.conn, patientID)
}

// Discharges

// Propose records a discharge proposal by a professional assigned to the
// patient and notifies the coordinators.
func (s *Service) Propose(ctx context.Context, professionalID, patientID uuid.UUID, typ DischargeType, eval Evaluation) (*Discharge, error) {
	if _, err := ParseDischargeType(string(typ)); err != nil {
		return nil, err
	}

	today := s.today()
	var created *Discharge

	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockKeys(ctx, tx, patientKey(patientID)); err != nil {
			return err
		}

		patient, err := s.repo.GetPatientForUpdate(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if !patient.Active {
			return ErrPatientInactive
		}

		assignment, err := s.repo.GetActiveAssignment(ctx, tx, patientID)
		if errors.Is(err, ErrAssignmentNotFound) {
			return ErrNotAssigned
		}
		if err != nil {
			return err
		}
		if !assignment.Involves(professionalID) {
			return ErrNotAssigned
		}

		if err := s.ensureNoPendingProposal(ctx, tx, patientID); err != nil {
			return err
		}

		sessions, err := s.ledger.CountCompletedForPatient(ctx, tx, patientID)
		if err != nil {
			return fmt.Errorf("count completed sessions: %w", err)
		}

		proposer := professionalID
		created, err = s.repo.CreateDischarge(ctx, tx, &Discharge{
			ID:                uuid.New(),
			PatientID:         patientID,
			ProposedBy:        &proposer,
			Type:              typ,
			Status:            DischargeProposed,
			Evaluation:        eval.normalized(),
			SessionsCompleted: sessions,
			ProposalDate:      &today,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDischarge("proposed")
	s.logger.Info("discharge proposed",
		zap.String("discharge_id", created.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.String("type", string(typ)),
	)
	s.audit.Record(ctx, professionalID, audit.ModuleDischarges, "propose", nil, created)
	s.notifyCoordinators(ctx, created)

	return created, nil
}

// Approve accepts a pending proposal and runs the discharge cascade in the
// same transaction. An empty finalType keeps the proposed type; evaluation
// fields that are set replace the proposed ones.
func (s *Service) Approve(ctx context.Context, actorID, dischargeID uuid.UUID, finalType DischargeType, eval Evaluation) (*Discharge, error) {
	if finalType != "" {
		if _, err := ParseDischargeType(string(finalType)); err != nil {
			return nil, err
		}
	}

	pending, err := s.repo.GetDischarge(ctx, s.conn, dischargeID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	var before, approved *Discharge
	var team []uuid.UUID
	var cancelled int64

	err = s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockKeys(ctx, tx, patientKey(pending.PatientID)); err != nil {
			return err
		}

		d, err := s.repo.GetDischargeForUpdate(ctx, tx, dischargeID)
		if err != nil {
			return err
		}
		if !d.Status.CanTransition(DischargeApproved) {
			return fmt.Errorf("%w: discharge is %s", ErrDischargeNotFound, d.Status)
		}
		before = d

		sessions, err := s.ledger.CountCompletedForPatient(ctx, tx, d.PatientID)
		if err != nil {
			return fmt.Errorf("count completed sessions: %w", err)
		}

		next := *d
		next.Status = DischargeApproved
		next.ActorID = &actorID
		if finalType != "" {
			next.Type = finalType
		}
		next.Evaluation = d.Evaluation.merge(eval)
		next.SessionsCompleted = sessions
		next.DischargeDate = &today

		approved, err = s.repo.UpdateDischarge(ctx, tx, &next)
		if err != nil {
			return fmt.Errorf("approve discharge: %w", err)
		}

		team, cancelled, err = s.cascade(ctx, tx, d.PatientID, next.Type, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDischarge("approved")
	s.logger.Info("discharge approved",
		zap.String("discharge_id", dischargeID.String()),
		zap.String("patient_id", approved.PatientID.String()),
		zap.Int64("cancelled_appointments", cancelled),
	)
	s.audit.Record(ctx, actorID, audit.ModuleDischarges, "approve", before, approved)
	s.notifyTeam(ctx, team, notify.TypeDischargeApproved, "Discharge approved", approved)

	return approved, nil
}

// Reject closes a pending proposal without touching the patient and notifies
// the professional who proposed it.
func (s *Service) Reject(ctx context.Context, actorID, dischargeID uuid.UUID, reason string) (*Discharge, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", timeofday.ErrInvalidFormat)
	}

	var before, rejected *Discharge
	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		d, err := s.repo.GetDischargeForUpdate(ctx, tx, dischargeID)
		if err != nil {
			return err
		}
		if !d.Status.CanTransition(DischargeRejected) {
			return fmt.Errorf("%w: discharge is %s", ErrDischargeNotFound, d.Status)
		}
		before = d

		next := *d
		next.Status = DischargeRejected
		next.ActorID = &actorID
		next.RejectionReason = &reason

		rejected, err = s.repo.UpdateDischarge(ctx, tx, &next)
		if err != nil {
			return fmt.Errorf("reject discharge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDischarge("rejected")
	s.logger.Info("discharge rejected", zap.String("discharge_id", dischargeID.String()))
	s.audit.Record(ctx, actorID, audit.ModuleDischarges, "reject", before, rejected)

	if rejected.ProposedBy != nil {
		s.notifier.Send(ctx, notify.Notification{
			UserID:  *rejected.ProposedBy,
			Type:    notify.TypeDischargeRejected,
			Title:   "Discharge proposal rejected",
			Message: "Reason: " + reason,
		})
	}
	return rejected, nil
}

// DirectDischarge discharges an active patient without a prior proposal. It
// stores an approved record and runs the same cascade as Approve.
func (s *Service) DirectDischarge(ctx context.Context, actorID, patientID uuid.UUID, typ DischargeType, eval Evaluation) (*Discharge, error) {
	if _, err := ParseDischargeType(string(typ)); err != nil {
		return nil, err
	}

	today := s.today()
	var created *Discharge
	var team []uuid.UUID
	var cancelled int64

	err := s.conn.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		if err := db.LockKeys(ctx, tx, patientKey(patientID)); err != nil {
			return err
		}

		patient, err := s.repo.GetPatientForUpdate(ctx, tx, patientID)
		if err != nil {
			return err
		}
		if !patient.Active {
			return ErrPatientInactive
		}
		if err := s.ensureNoPendingProposal(ctx, tx, patientID); err != nil {
			return err
		}

		sessions, err := s.ledger.CountCompletedForPatient(ctx, tx, patientID)
		if err != nil {
			return fmt.Errorf("count completed sessions: %w", err)
		}

		actor := actorID
		created, err = s.repo.CreateDischarge(ctx, tx, &Discharge{
			ID:                uuid.New(),
			PatientID:         patientID,
			ActorID:           &actor,
			Type:              typ,
			Status:            DischargeApproved,
			Evaluation:        eval.normalized(),
			SessionsCompleted: sessions,
			DischargeDate:     &today,
		})
		if err != nil {
			return err
		}

		team, cancelled, err = s.cascade(ctx, tx, patientID, typ, today)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveDischarge("direct")
	s.logger.Info("patient discharged",
		zap.String("discharge_id", created.ID.String()),
		zap.String("patient_id", patientID.String()),
		zap.Int64("cancelled_appointments", cancelled),
	)
	s.audit.Record(ctx, actorID, audit.ModuleDischarges, "direct", nil, created)
	s.notifyTeam(ctx, team, notify.TypeDischargeApproved, "Patient discharged", created)

	return created, nil
}

func (s *Service) GetDischarge(ctx context.Context, id uuid.UUID) (*Discharge, error) {
	return s.repo.GetDischarge(ctx, s.conn, id)
}

// ListDischarges returns discharges newest first.
func (s *Service) ListDischarges(ctx context.Context, f DischargeFilter) ([]Discharge, error) {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	discharges, err := s.repo.ListDischarges(ctx, s.conn, f)
	if err != nil {
		return nil, err
	}
	if discharges == nil {
		discharges = []Discharge{}
	}
	return discharges, nil
}

// cascade ends the patient's episode: the patient is deactivated, active
// assignments are finalized and future appointments are cancelled, all on
// tx. It returns the care team of the assignment that was active.
func (s *Service) cascade(ctx context.Context, tx db.DBTX, patientID uuid.UUID, typ DischargeType, today time.Time) ([]uuid.UUID, int64, error) {
	var team []uuid.UUID
	current, err := s.repo.GetActiveAssignment(ctx, tx, patientID)
	switch {
	case err == nil:
		team = current.Team()
	case errors.Is(err, ErrAssignmentNotFound):
	default:
		return nil, 0, err
	}

	if err := s.repo.DeactivatePatient(ctx, tx, patientID, typ.PatientStatus()); err != nil {
		return nil, 0, err
	}
	if _, err := s.repo.FinalizeActiveAssignments(ctx, tx, patientID, today, reasonDischarged); err != nil {
		return nil, 0, err
	}
	cancelled, err := s.ledger.CancelFutureForPatient(ctx, tx, patientID, today, reasonDischarged)
	if err != nil {
		return nil, 0, fmt.Errorf("cancel future appointments: %w", err)
	}
	return team, cancelled, nil
}

func (s *Service) ensureNoPendingProposal(ctx context.Context, tx db.DBTX, patientID uuid.UUID) error {
	_, err := s.repo.GetProposedDischarge(ctx, tx, patientID)
	switch {
	case err == nil:
		return ErrDuplicateProposal
	case errors.Is(err, ErrDischargeNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) notifyCoordinators(ctx context.Context, d *Discharge) {
	if s.coordinators == nil {
		return
	}
	ids, err := s.coordinators.CoordinatorIDs(ctx)
	if err != nil {
		s.metrics.ObserveSideEffectFailure("notification")
		s.logger.Warn("list coordinators failed", zap.Error(err))
		return
	}

	notes := make([]notify.Notification, 0, len(ids))
	for _, id := range ids {
		notes = append(notes, notify.Notification{
			UserID:  id,
			Type:    notify.TypeDischargeProposed,
			Title:   "Discharge proposal pending",
			Message: fmt.Sprintf("A %s discharge was proposed and awaits a decision", d.Type),
		})
	}
	s.notifier.Send(ctx, notes...)
}

func (s *Service) notifyTeam(ctx context.Context, team []uuid.UUID, typ notify.Type, title string, d *Discharge) {
	notes := make([]notify.Notification, 0, len(team))
	for _, id := range team {
		notes = append(notes, notify.Notification{
			UserID:  id,
			Type:    typ,
			Title:   title,
			Message: fmt.Sprintf("Patient discharged (%s)", d.Type),
		})
	}
	s.notifier.Send(ctx, notes...)
}
