package services

import (
	"context"
	"strings"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

// decorate redacts each session for the subject and fills the derived end
// and title fields. Participant names are loaded in one query.
func (s *SessionService) decorate(
	ctx context.Context,
	users repository.UserStore,
	subject Subject,
	sessions []models.Session,
) ([]models.SessionView, error) {
	views := make([]models.SessionView, 0, len(sessions))
	if len(sessions) == 0 {
		return views, nil
	}

	ids := make([]int64, 0, len(sessions)*2)
	seen := make(map[int64]struct{}, len(sessions)*2)
	for _, session := range sessions {
		for _, id := range participants(session) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	names := map[int64]string{}
	if len(ids) > 0 {
		loaded, err := users.FirstNames(ctx, ids)
		if err != nil {
			return nil, err
		}
		names = loaded
	}

	for _, session := range sessions {
		views = append(views, buildView(redactFor(subject, session), names))
	}
	return views, nil
}

func (s *SessionService) decorateOne(
	ctx context.Context,
	users repository.UserStore,
	subject Subject,
	session models.Session,
) (*models.SessionView, error) {
	views, err := s.decorate(ctx, users, subject, []models.Session{session})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// decorateCommitted builds views for rows that are already committed. A failed
// name lookup degrades the titles to the status label and is only logged.
func (s *SessionService) decorateCommitted(
	ctx context.Context,
	subject Subject,
	sessions []models.Session,
) []models.SessionView {
	views, err := s.decorate(ctx, s.store.Repos().Users, subject, sessions)
	if err == nil {
		return views
	}
	serviceLogger(ctx, s.logger, "session", "", "user_id", subject.ID).
		Warn("participant name lookup failed", "error_kind", ErrorKind(err), "error", err)

	views = make([]models.SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, buildView(redactFor(subject, session), nil))
	}
	return views
}

func (s *SessionService) decorateCommittedOne(
	ctx context.Context,
	subject Subject,
	session models.Session,
) *models.SessionView {
	views := s.decorateCommitted(ctx, subject, []models.Session{session})
	return &views[0]
}

func buildView(session models.Session, firstNames map[int64]string) models.SessionView {
	var trainerName, clientName string
	if session.TrainerID != nil {
		trainerName = firstNames[*session.TrainerID]
	}
	if session.ClientID != nil {
		clientName = firstNames[*session.ClientID]
	}
	location := ""
	if session.Location != nil {
		location = *session.Location
	}

	return models.SessionView{
		Session: session,
		End:     session.EndTime(),
		Title:   sessionTitle(session.Status, trainerName, clientName, location),
	}
}

// sessionTitle renders "{Status} with {trainer} for {client} @ {location}",
// leaving out every segment whose value is missing.
func sessionTitle(status models.SessionStatus, trainerName, clientName, location string) string {
	parts := make([]string, 0, 4)
	if label := status.Label(); label != "" {
		parts = append(parts, label)
	}
	if name := strings.TrimSpace(trainerName); name != "" {
		parts = append(parts, "with "+name)
	}
	if name := strings.TrimSpace(clientName); name != "" {
		parts = append(parts, "for "+name)
	}
	if loc := strings.TrimSpace(location); loc != "" {
		parts = append(parts, "@ "+loc)
	}
	if len(parts) == 0 {
		return "Session"
	}
	return strings.Join(parts, " ")
}
