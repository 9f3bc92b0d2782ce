package services

import (
	"context"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

// GetStats counts sessions inside the subject's scope, plus role specific
// extras.
func (s *SessionService) GetStats(ctx context.Context, subject Subject) (*models.SessionStats, error) {
	repos := s.store.Repos()

	counts, err := repos.Sessions.CountByStatus(ctx, ScopeQuery(subject, SessionQuery{}))
	if err != nil {
		return nil, err
	}

	stats := &models.SessionStats{
		Available: counts[models.StatusAvailable],
		Booked:    counts[models.StatusScheduled] + counts[models.StatusConfirmed],
		Completed: counts[models.StatusCompleted],
		Cancelled: counts[models.StatusCancelled],
	}
	for _, count := range counts {
		stats.Total += count
	}

	switch {
	case subject.IsAdmin():
		clients, err := repos.Users.CountByRole(ctx, models.RoleClient)
		if err != nil {
			return nil, err
		}
		trainers, err := repos.Users.CountByRole(ctx, models.RoleTrainer)
		if err != nil {
			return nil, err
		}
		stats.TotalClients = &clients
		stats.TotalTrainers = &trainers

	case subject.IsTrainer():
		assigned := stats.Total - stats.Cancelled
		stats.Assigned = &assigned

	default:
		clientID := subject.ID
		own, err := repos.Sessions.CountByStatus(ctx, repository.SessionFilter{
			ClientID: &clientID,
			Statuses: committedStatuses,
		})
		if err != nil {
			return nil, err
		}
		ownBooked := own[models.StatusScheduled] + own[models.StatusConfirmed]
		stats.OwnBooked = &ownBooked
	}

	return stats, nil
}
