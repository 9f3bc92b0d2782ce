package services

import (
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

// Subject is the authenticated caller an operation runs on behalf of.
type Subject struct {
	ID   int64
	Role models.Role
}

func NewSubject(id int64, role string) Subject {
	return Subject{ID: id, Role: models.ParseRole(role)}
}

// effectiveRole narrows anything unrecognised down to client scope.
func (s Subject) effectiveRole() models.Role {
	switch s.Role {
	case models.RoleAdmin, models.RoleTrainer:
		return s.Role
	default:
		return models.RoleClient
	}
}

func (s Subject) IsAdmin() bool {
	return s.effectiveRole() == models.RoleAdmin
}

func (s Subject) IsTrainer() bool {
	return s.effectiveRole() == models.RoleTrainer
}

func (s Subject) IsClient() bool {
	return s.effectiveRole() == models.RoleClient
}

// SessionQuery is the caller supplied filter before role scoping.
type SessionQuery struct {
	Statuses  []models.SessionStatus
	TrainerID *int64
	ClientID  *int64
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// ScopeQuery turns a raw filter into the filter the subject is allowed to run.
// Admins pass through untouched. Trainers are pinned to their own sessions.
// Clients see their own sessions plus unclaimed available slots.
func ScopeQuery(subject Subject, query SessionQuery) repository.SessionFilter {
	filter := repository.SessionFilter{
		Statuses:     query.Statuses,
		TrainerID:    query.TrainerID,
		ClientID:     query.ClientID,
		StartsAfter:  query.From,
		StartsBefore: query.To,
		Limit:        query.Limit,
		Offset:       query.Offset,
	}

	switch subject.effectiveRole() {
	case models.RoleAdmin:
	case models.RoleTrainer:
		trainerID := subject.ID
		filter.TrainerID = &trainerID
	default:
		clientID := subject.ID
		filter.ClientID = nil
		filter.ClientOrAvailable = &clientID
	}
	return filter
}

// CanView is the single-row form of ScopeQuery.
func CanView(subject Subject, session *models.Session) bool {
	if session == nil {
		return false
	}
	switch subject.effectiveRole() {
	case models.RoleAdmin:
		return true
	case models.RoleTrainer:
		return session.HasTrainer(subject.ID)
	default:
		if session.HasClient(subject.ID) {
			return true
		}
		return session.Status == models.StatusAvailable && session.ClientID == nil
	}
}

// redactFor strips fields the subject may not read. Private notes belong to
// staff, so clients never receive them, not even on their own sessions.
func redactFor(subject Subject, session models.Session) models.Session {
	switch subject.effectiveRole() {
	case models.RoleAdmin, models.RoleTrainer:
		return session
	}
	session.PrivateNotes = nil
	return session
}
