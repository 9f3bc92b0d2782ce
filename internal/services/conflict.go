package services

import (
	"context"
	"fmt"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

type ConflictMode string

const (
	ConflictModeCreate ConflictMode = "create"
	ConflictModeBook   ConflictMode = "book"
	ConflictModeAssign ConflictMode = "assign"
)

type ConflictSeverity string

const (
	SeverityHigh   ConflictSeverity = "high"
	SeverityMedium ConflictSeverity = "medium"
)

type ConflictReport struct {
	Kind                  string           `json:"kind"`
	Severity              ConflictSeverity `json:"severity"`
	SessionID             int64            `json:"session_id"`
	OwnerID               int64            `json:"owner_id"`
	ConflictingSessionIDs []int64          `json:"conflicting_session_ids"`
	Start                 time.Time        `json:"start"`
	End                   time.Time        `json:"end"`
	Suggestions           []string         `json:"suggestions"`
}

// committedStatuses are the statuses that hold a trainer's or client's time.
var committedStatuses = []models.SessionStatus{models.StatusScheduled, models.StatusConfirmed}

// ConflictDetector reports overlapping committed sessions. It is advisory and
// never blocks the operation that triggered it.
type ConflictDetector struct {
	store repository.Store
}

func NewConflictDetector(store repository.Store) *ConflictDetector {
	return &ConflictDetector{store: store}
}

// FindConflicts checks the candidate's trainer always and its client only in
// book mode. Intervals are half open, so back to back sessions do not clash.
func (d *ConflictDetector) FindConflicts(
	ctx context.Context,
	candidate models.Session,
	mode ConflictMode,
) ([]ConflictReport, error) {
	if candidate.SessionDate == nil {
		return nil, nil
	}
	start := candidate.SessionDate.UTC()
	end := candidate.EndTime().UTC()
	sessions := d.store.Repos().Sessions

	reports := make([]ConflictReport, 0, 2)

	if candidate.TrainerID != nil {
		overlapping, err := sessions.FindOverlapping(ctx, repository.OverlapQuery{
			TrainerID: candidate.TrainerID,
			Start:     start,
			End:       end,
			ExcludeID: candidate.ID,
			Statuses:  committedStatuses,
		})
		if err != nil {
			return nil, fmt.Errorf("trainer overlap: %w", err)
		}
		if len(overlapping) > 0 {
			reports = append(reports, newConflictReport(
				"trainer",
				SeverityHigh,
				candidate,
				*candidate.TrainerID,
				overlapping,
				start,
				end,
			))
		}
	}

	if mode == ConflictModeBook && candidate.ClientID != nil {
		overlapping, err := sessions.FindOverlapping(ctx, repository.OverlapQuery{
			ClientID:  candidate.ClientID,
			Start:     start,
			End:       end,
			ExcludeID: candidate.ID,
			Statuses:  committedStatuses,
		})
		if err != nil {
			return nil, fmt.Errorf("client overlap: %w", err)
		}
		if len(overlapping) > 0 {
			reports = append(reports, newConflictReport(
				"client",
				SeverityMedium,
				candidate,
				*candidate.ClientID,
				overlapping,
				start,
				end,
			))
		}
	}

	return reports, nil
}

func newConflictReport(
	kind string,
	severity ConflictSeverity,
	candidate models.Session,
	ownerID int64,
	overlapping []models.Session,
	start time.Time,
	end time.Time,
) ConflictReport {
	ids := make([]int64, 0, len(overlapping))
	for _, session := range overlapping {
		ids = append(ids, session.ID)
	}

	window := fmt.Sprintf("%s-%s UTC", start.Format("2006-01-02 15:04"), end.Format("15:04"))
	suggestions := []string{
		fmt.Sprintf("%s %d has %d other session(s) during %s", kind, ownerID, len(ids), window),
		fmt.Sprintf("move session %d to a free time window", candidate.ID),
	}
	if kind == "trainer" {
		suggestions = append(suggestions, "assign one of the overlapping sessions to another trainer")
	} else {
		suggestions = append(suggestions, "ask the client to cancel one of the overlapping bookings")
	}

	return ConflictReport{
		Kind:                  kind,
		Severity:              severity,
		SessionID:             candidate.ID,
		OwnerID:               ownerID,
		ConflictingSessionIDs: ids,
		Start:                 start,
		End:                   end,
		Suggestions:           suggestions,
	}
}
