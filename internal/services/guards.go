package services

import (
	"fmt"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

type Operation string

const (
	OpCreateAvailable Operation = "create_available"
	OpCreateRecurring Operation = "create_recurring"
	OpBook            Operation = "book"
	OpConfirm         Operation = "confirm"
	OpComplete        Operation = "complete"
	OpCancel          Operation = "cancel"
	OpAssignTrainer   Operation = "assign_trainer"
)

// ownership decides whether a subject holding the matching role may act on
// the session. A nil predicate grants the role unconditionally.
type ownership func(subject Subject, session *models.Session) bool

type capability struct {
	role  models.Role
	owner ownership
}

func assignedTrainer(subject Subject, session *models.Session) bool {
	return session != nil && session.HasTrainer(subject.ID)
}

func owningClient(subject Subject, session *models.Session) bool {
	return session != nil && session.HasClient(subject.ID)
}

var guardTable = map[Operation][]capability{
	OpCreateAvailable: {
		{role: models.RoleAdmin},
	},
	OpCreateRecurring: {
		{role: models.RoleAdmin},
	},
	OpBook: {
		{role: models.RoleClient},
	},
	OpConfirm: {
		{role: models.RoleAdmin},
		{role: models.RoleTrainer, owner: assignedTrainer},
	},
	OpComplete: {
		{role: models.RoleAdmin},
		{role: models.RoleTrainer, owner: assignedTrainer},
	},
	OpCancel: {
		{role: models.RoleAdmin},
		{role: models.RoleTrainer, owner: assignedTrainer},
		{role: models.RoleClient, owner: owningClient},
	},
	OpAssignTrainer: {
		{role: models.RoleAdmin},
	},
}

// authorize evaluates the guard table once for the operation. session is nil
// for operations that create rows.
func authorize(op Operation, subject Subject, session *models.Session) error {
	capabilities, ok := guardTable[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %q", ErrForbidden, op)
	}

	role := subject.effectiveRole()
	for _, c := range capabilities {
		if c.role != role {
			continue
		}
		if c.owner == nil || c.owner(subject, session) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s may not %s this session", ErrForbidden, role, op)
}
