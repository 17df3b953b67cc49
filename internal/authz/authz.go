// Package authz decides which staff role may run which operation. The
// role-to-capability policy is a value handed to the Checker, never a global.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/clinic-care-scheduling/internal/db"
)

var (
	ErrUnknownUser = errors.New("unknown or inactive user")
	ErrForbidden   = errors.New("operation not permitted for this role")
)

type Role string

const (
	RoleCoordinator  Role = "coordinator"
	RolePsychologist Role = "psychologist"
	RoleIntern       Role = "intern"
)

type Capability string

const (
	AvailabilityView   Capability = "availability.view"
	AvailabilityManage Capability = "availability.manage"
	AppointmentsView   Capability = "appointments.view"
	AppointmentsBook   Capability = "appointments.book"
	AppointmentsManage Capability = "appointments.manage"
	AssignmentsView    Capability = "assignments.view"
	AssignmentsManage  Capability = "assignments.manage"
	DischargesView     Capability = "discharges.view"
	DischargesPropose  Capability = "discharges.propose"
	DischargesDecide   Capability = "discharges.decide"
)

// Policy maps each role to the capabilities it holds.
type Policy map[Role]map[Capability]bool

func (p Policy) Allows(role Role, c Capability) bool {
	return p[role][c]
}

func grant(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// DefaultPolicy is the clinic's standard policy. Coordinators hold every
// capability; professionals manage their own schedule and propose
// discharges; interns work the schedule and propose too.
func DefaultPolicy() Policy {
	return Policy{
		RoleCoordinator: grant(
			AvailabilityView, AvailabilityManage,
			AppointmentsView, AppointmentsBook, AppointmentsManage,
			AssignmentsView, AssignmentsManage,
			DischargesView, DischargesPropose, DischargesDecide,
		),
		RolePsychologist: grant(
			AvailabilityView, AvailabilityManage,
			AppointmentsView, AppointmentsBook, AppointmentsManage,
			AssignmentsView,
			DischargesView, DischargesPropose,
		),
		RoleIntern: grant(
			AvailabilityView,
			AppointmentsView, AppointmentsBook, AppointmentsManage,
			AssignmentsView,
			DischargesView, DischargesPropose,
		),
	}
}

// Directory resolves staff roles.
type Directory interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (Role, error)
}

type Checker struct {
	dir    Directory
	policy Policy
}

func NewChecker(dir Directory, policy Policy) *Checker {
	return &Checker{dir: dir, policy: policy}
}

// Require returns the caller's role when it holds c, ErrForbidden when it
// does not, and ErrUnknownUser when the caller is not an active staff user.
func (c *Checker) Require(ctx context.Context, userID uuid.UUID, capability Capability) (Role, error) {
	if userID == uuid.Nil {
		return "", ErrUnknownUser
	}
	role, err := c.dir.RoleOf(ctx, userID)
	if err != nil {
		return "", err
	}
	if !c.policy.Allows(role, capability) {
		return role, fmt.Errorf("%w: %s lacks %s", ErrForbidden, role, capability)
	}
	return role, nil
}

// PgDirectory reads roles from the users table.
type PgDirectory struct {
	db db.DBTX
}

func NewPgDirectory(conn db.DBTX) *PgDirectory {
	return &PgDirectory{db: conn}
}

func (d *PgDirectory) RoleOf(ctx context.Context, userID uuid.UUID) (Role, error) {
	var role string
	err := d.db.QueryRow(ctx, `SELECT role FROM users WHERE id = $1 AND active`, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("load user role: %w", err)
	}
	return Role(role), nil
}

// CoordinatorIDs lists active coordinators, the recipients of discharge
// proposals.
func (d *PgDirectory) CoordinatorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := d.db.Query(ctx, `SELECT id FROM users WHERE role = $1 AND active ORDER BY created_at`, string(RoleCoordinator))
	if err != nil {
		return nil, fmt.Errorf("list coordinators: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
