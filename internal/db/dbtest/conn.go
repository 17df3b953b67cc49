// Package dbtest provides an in-memory db.Conn for service tests that run
// against fake repositories.
package dbtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
)

var ErrNoSQL = errors.New("dbtest: SQL is not supported by the in-memory connection")

// Snapshotter is implemented by fake stores whose state should be restored
// when a unit of work fails. Snapshot returns the function that restores it.
type Snapshotter interface {
	Snapshot() (restore func())
}

// Conn serializes units of work the way advisory locks would and rolls back
// every registered store when the unit of work returns an error.
type Conn struct {
	mu     sync.Mutex
	stores []Snapshotter

	statsMu   sync.Mutex
	commits   int
	rollbacks int
	locks     []string
}

var _ db.Conn = (*Conn)(nil)

func NewConn(stores ...Snapshotter) *Conn {
	return &Conn{stores: stores}
}

func (c *Conn) WithinTx(ctx context.Context, fn db.TxFunc) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restores := make([]func(), 0, len(c.stores))
	for _, s := range c.stores {
		restores = append(restores, s.Snapshot())
	}

	defer func() {
		if p := recover(); p != nil {
			c.rollback(restores)
			panic(p)
		}
	}()

	if err = fn(ctx, c); err != nil {
		c.rollback(restores)
		return err
	}

	c.statsMu.Lock()
	c.commits++
	c.statsMu.Unlock()
	return nil
}

func (c *Conn) rollback(restores []func()) {
	for _, restore := range restores {
		restore()
	}
	c.statsMu.Lock()
	c.rollbacks++
	c.statsMu.Unlock()
}

// Exec accepts the advisory lock statements issued by db.LockKeys and records
// their keys.
func (c *Conn) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	for _, a := range args {
		if k, ok := a.(string); ok {
			c.locks = append(c.locks, k)
		}
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (c *Conn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, ErrNoSQL
}

func (c *Conn) QueryRow(context.Context, string, ...any) pgx.Row {
	return errRow{}
}

func (c *Conn) Commits() int {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.commits
}

func (c *Conn) Rollbacks() int {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.rollbacks
}

// Locks returns the advisory lock keys taken so far, in order.
func (c *Conn) Locks() []string {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return append([]string(nil), c.locks...)
}

type errRow struct{}

func (errRow) Scan(...any) error { return ErrNoSQL }
