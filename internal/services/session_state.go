package services

import (
	"fmt"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

// transitionRule lists the statuses an operation may start from. An empty
// target keeps the current status.
type transitionRule struct {
	from   []models.SessionStatus
	target models.SessionStatus
}

var transitionTable = map[Operation]transitionRule{
	OpBook: {
		from:   []models.SessionStatus{models.StatusAvailable},
		target: models.StatusScheduled,
	},
	OpConfirm: {
		from:   []models.SessionStatus{models.StatusScheduled, models.StatusRequested},
		target: models.StatusConfirmed,
	},
	OpComplete: {
		from:   []models.SessionStatus{models.StatusConfirmed, models.StatusScheduled},
		target: models.StatusCompleted,
	},
	OpCancel: {
		from: []models.SessionStatus{
			models.StatusAvailable,
			models.StatusScheduled,
			models.StatusConfirmed,
			models.StatusRequested,
		},
		target: models.StatusCancelled,
	},
	OpAssignTrainer: {
		from: []models.SessionStatus{
			models.StatusAvailable,
			models.StatusRequested,
			models.StatusScheduled,
			models.StatusConfirmed,
			models.StatusCompleted,
		},
	},
}

// NextStatus returns the status a session moves to when op is applied from
// current, or an error matching ErrInvalidStateTransition.
func NextStatus(op Operation, current models.SessionStatus) (models.SessionStatus, error) {
	rule, ok := transitionTable[op]
	if !ok {
		return "", fmt.Errorf("%w: %s does not change session status", ErrInvalidStateTransition, op)
	}

	for _, from := range rule.from {
		if from != current {
			continue
		}
		if op == OpAssignTrainer && current == models.StatusRequested {
			return models.StatusScheduled, nil
		}
		if rule.target == "" {
			return current, nil
		}
		return rule.target, nil
	}

	if op == OpBook {
		return "", ErrSessionUnavailable
	}
	return "", fmt.Errorf("%w: cannot %s a %s session", ErrInvalidStateTransition, op, current)
}
