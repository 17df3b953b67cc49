// Package audit records who changed scheduling and care-episode state.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/logging"
	"github.com/hackgods/clinic-care-scheduling/internal/metrics"
)

const (
	ModuleAvailability = "availability"
	ModuleAssignments  = "assignments"
	ModuleDischarges   = "discharges"
)

// Log stores an audit entry. before and after are JSON-encoded snapshots.
type Log interface {
	Record(ctx context.Context, actorID uuid.UUID, module, action string, before, after any) error
}

type PgLog struct {
	db db.DBTX
}

func NewPgLog(conn db.DBTX) *PgLog {
	return &PgLog{db: conn}
}

func (l *PgLog) Record(ctx context.Context, actorID uuid.UUID, module, action string, before, after any) error {
	beforeJSON, err := encode(before)
	if err != nil {
		return fmt.Errorf("encode before snapshot: %w", err)
	}
	afterJSON, err := encode(after)
	if err != nil {
		return fmt.Errorf("encode after snapshot: %w", err)
	}

	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO audit_logs (actor_id, module, action, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, actor, module, action, beforeJSON, afterJSON)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// encode stores a missing snapshot as SQL NULL, including typed nil
// pointers such as a *Assignment that was never loaded.
func encode(v any) ([]byte, error) {
	if isNil(v) {
		return nil, nil
	}
	return json.Marshal(v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// Recorder writes audit entries best-effort: a failure is logged and counted
// but never reaches the caller.
type Recorder struct {
	log     Log
	logger  *zap.Logger
	metrics *metrics.SchedulingMetrics
}

func NewRecorder(log Log, logger *zap.Logger, m *metrics.SchedulingMetrics) *Recorder {
	return &Recorder{log: log, logger: logging.OrNop(logger), metrics: m}
}

func (r *Recorder) Record(ctx context.Context, actorID uuid.UUID, module, action string, before, after any) {
	if r == nil || r.log == nil {
		return
	}
	if err := r.log.Record(ctx, actorID, module, action, before, after); err != nil {
		r.metrics.ObserveSideEffectFailure("audit")
		r.logger.Warn("audit record failed",
			zap.String("module", module),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
