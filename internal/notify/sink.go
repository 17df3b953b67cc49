// Package notify enqueues in-app notifications for clinic staff. Delivery is
// handled elsewhere; this package only writes the rows.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/metrics"
)

type Type string

const (
	TypeAssignmentNew          Type = "assignment_new"
	TypeAppointmentRescheduled Type = "appointment_rescheduled"
	TypeDischargeProposed      Type = "discharge_proposed"
	TypeDischargeApproved      Type = "discharge_approved"
	TypeDischargeRejected      Type = "discharge_rejected"
)

type Notification struct {
	UserID  uuid.UUID
	Type    Type
	Title   string
	Message string
}

// Sink persists a notification for later delivery.
type Sink interface {
	Enqueue(ctx context.Context, userID uuid.UUID, typ Type, title, message string) error
}

type PgSink struct {
	db db.DBTX
}

func NewPgSink(conn db.DBTX) *PgSink {
	return &PgSink{db: conn}
}

func (s *PgSink) Enqueue(ctx context.Context, userID uuid.UUID, typ Type, title, message string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notifications (user_id, type, title, message, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, userID, string(typ), title, message)
	if err != nil {
		return fmt.Errorf("enqueue notification: %w", err)
	}
	return nil
}

// Dispatcher enqueues notifications outside of any business transaction.
// Failures are logged and counted, never returned.
type Dispatcher struct {
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.SchedulingMetrics
}

func NewDispatcher(sink Sink, logger *zap.Logger, m *metrics.SchedulingMetrics) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logging.OrNop(logger), metrics: m}
}

func (d *Dispatcher) Send(ctx context.Context, notes ...Notification) {
	if d == nil || d.sink == nil {
		return
	}
	sent := make(map[uuid.UUID]bool, len(notes))
	for _, n := range notes {
		if n.UserID == uuid.Nil || sent[n.UserID] {
			continue
		}
		sent[n.UserID] = true

		if err := d.sink.Enqueue(ctx, n.UserID, n.Type, n.Title, n.Message); err != nil {
			d.metrics.ObserveSideEffectFailure("notification")
			d.logger.Warn("notification enqueue failed",
				zap.String("user_id", n.UserID.String()),
				zap.String("type", string(n.Type)),
				zap.Error(err),
			)
		}
	}
}
