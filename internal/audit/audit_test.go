package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgLogRecordEncodesSnapshots(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	actor := uuid.New()
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(&actor, ModuleAvailability, "deactivate", []byte(`{"active":true}`), []byte(`{"active":false}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewPgLog(mock)
	err = l.Record(context.Background(), actor, ModuleAvailability, "deactivate",
		map[string]bool{"active": true}, map[string]bool{"active": false})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type snapshot struct {
	Active bool `json:"active"`
}

func TestPgLogRecordStoresTypedNilAsNull(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	actor := uuid.New()
	var missing *snapshot
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(&actor, ModuleAssignments, "create", []byte(nil), []byte(`{"active":true}`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	l := NewPgLog(mock)
	err = l.Record(context.Background(), actor, ModuleAssignments, "create", missing, &snapshot{Active: true})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEncodeNilKinds(t *testing.T) {
	var ptr *snapshot
	var m map[string]bool
	var sl []int

	for _, v := range []any{nil, ptr, m, sl} {
		b, err := encode(v)
		require.NoError(t, err)
		assert.Nil(t, b)
	}

	b, err := encode(snapshot{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"active":false}`, string(b))
}

type failingLog struct{ calls int }

func (f *failingLog) Record(ctx context.Context, actorID uuid.UUID, module, action string, before, after any) error {
	f.calls++
	return errors.New("db down")
}

func TestRecorderSwallowsFailures(t *testing.T) {
	fl := &failingLog{}
	r := NewRecorder(fl, nil, nil)

	assert.NotPanics(t, func() {
		r.Record(context.Background(), uuid.New(), ModuleDischarges, "approve", nil, nil)
	})
	assert.Equal(t, 1, fl.calls)
}
