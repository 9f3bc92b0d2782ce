package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/recurrence"
	"github.com/saeid-a/SessionLedgerBack/internal/repository"
)

const (
	recurringSampleSize       = 5
	defaultCancellationReason = "No reason provided"
)

type SessionServiceConfig struct {
	// Location reads the wall clock times of recurring patterns.
	Location           *time.Location
	RecurringSlotLimit int
	Now                func() time.Time
	Logger             *slog.Logger
}

type SessionService struct {
	store          repository.Store
	dispatcher     *Dispatcher
	ledger         creditLedger
	recurrence     *recurrence.Engine
	recurringLimit int
	now            func() time.Time
	logger         *slog.Logger
}

func NewSessionService(
	store repository.Store,
	dispatcher *Dispatcher,
	cfg SessionServiceConfig,
) *SessionService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		store:          store,
		dispatcher:     dispatcher,
		recurrence:     recurrence.NewEngine(cfg.Location),
		recurringLimit: cfg.RecurringSlotLimit,
		now:            now,
		logger:         defaultLogger(cfg.Logger),
	}
}

// SlotSpec describes one available slot to publish.
type SlotSpec struct {
	SessionDate *time.Time
	EndDate     *time.Time
	Duration    int
	TrainerID   *int64
	Location    *string
	SessionType *string
	Notes       *string
}

// RecurringSpec describes a weekly pattern of available slots. StartDate and
// EndDate are calendar dates; Times are HH:MM wall clock values.
type RecurringSpec struct {
	StartDate  time.Time
	EndDate    time.Time
	DaysOfWeek []int
	Times      []string
	TrainerID  *int64
	Location   *string
	Duration   int
}

type BookOptions struct {
	// DeductSession defaults to true when nil.
	DeductSession *bool
}

func (s *SessionService) GetSessions(
	ctx context.Context,
	subject Subject,
	query SessionQuery,
) ([]models.SessionView, error) {
	repos := s.store.Repos()
	sessions, err := repos.Sessions.List(ctx, ScopeQuery(subject, query))
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, repos.Users, subject, sessions)
}

// CountSessions reports how many sessions the subject would see for query,
// ignoring its limit and offset.
func (s *SessionService) CountSessions(
	ctx context.Context,
	subject Subject,
	query SessionQuery,
) (int, error) {
	counts, err := s.store.Repos().Sessions.CountByStatus(ctx, ScopeQuery(subject, query))
	if err != nil {
		return 0, err
	}
	total := 0
	for _, count := range counts {
		total += count
	}
	return total, nil
}

func (s *SessionService) GetSessionByID(
	ctx context.Context,
	subject Subject,
	sessionID int64,
) (*models.SessionView, error) {
	repos := s.store.Repos()
	session, err := repos.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, mapSessionLookup(err)
	}
	if !CanView(subject, session) {
		return nil, ErrSessionNotFound
	}
	return s.decorateOne(ctx, repos.Users, subject, *session)
}

func (s *SessionService) CreateAvailable(
	ctx context.Context,
	subject Subject,
	specs []SlotSpec,
) ([]models.SessionView, error) {
	logger := serviceLogger(ctx, s.logger, "session", string(OpCreateAvailable), "user_id", subject.ID)
	if err := authorize(OpCreateAvailable, subject, nil); err != nil {
		return nil, err
	}

	inputs, err := s.validateSlots(specs)
	if err != nil {
		return nil, err
	}

	box := newOutbox(s.now)
	var created []models.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		checked := make(map[int64]struct{})
		created = make([]models.Session, 0, len(inputs))
		for _, input := range inputs {
			if input.TrainerID != nil {
				if _, ok := checked[*input.TrainerID]; !ok {
					if err := requireTrainer(ctx, repos.Users, *input.TrainerID); err != nil {
						return err
					}
					checked[*input.TrainerID] = struct{}{}
				}
			}
			session, err := repos.Sessions.Create(ctx, input)
			if err != nil {
				return err
			}
			created = append(created, *session)
		}
		return nil
	})
	if err != nil {
		logger.Warn("create available slots failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	for _, session := range created {
		box.Broadcast(EventSessionCreated, sessionEventPayload(session), BroadcastOptions{
			ExcludeUserID: &subject.ID,
			Priority:      PriorityNormal,
		})
		box.CheckConflicts(session, ConflictModeCreate)
	}
	s.dispatcher.Drain(ctx, box)

	logger.Info("available slots created", "count", len(created))
	return s.decorateCommitted(ctx, subject, created), nil
}

func (s *SessionService) CreateRecurring(
	ctx context.Context,
	subject Subject,
	spec RecurringSpec,
) (*models.RecurringResult, error) {
	logger := serviceLogger(ctx, s.logger, "session", string(OpCreateRecurring), "user_id", subject.ID)
	if err := authorize(OpCreateRecurring, subject, nil); err != nil {
		return nil, err
	}

	starts, duration, err := s.expandRecurring(spec)
	if err != nil {
		return nil, err
	}

	box := newOutbox(s.now)
	var created []models.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if spec.TrainerID != nil {
			if err := requireTrainer(ctx, repos.Users, *spec.TrainerID); err != nil {
				return err
			}
		}
		created = make([]models.Session, 0, len(starts))
		for _, start := range starts {
			end := start.Add(time.Duration(duration) * time.Minute)
			session, err := repos.Sessions.Create(ctx, repository.CreateSessionInput{
				SessionDate: &start,
				EndDate:     &end,
				Duration:    duration,
				Status:      models.StatusAvailable,
				TrainerID:   spec.TrainerID,
				Location:    trimmedOrNil(spec.Location),
			})
			if err != nil {
				return err
			}
			created = append(created, *session)
		}
		return nil
	})
	if err != nil {
		logger.Warn("create recurring slots failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	if len(created) > 0 {
		box.Broadcast(EventSessionCreated, map[string]any{
			"count":      len(created),
			"trainer_id": spec.TrainerID,
			"recurring":  true,
		}, BroadcastOptions{ExcludeUserID: &subject.ID, Priority: PriorityNormal})
	}
	for _, session := range created {
		box.CheckConflicts(session, ConflictModeCreate)
	}
	s.dispatcher.Drain(ctx, box)

	sample := created
	if len(sample) > recurringSampleSize {
		sample = sample[:recurringSampleSize]
	}
	views := s.decorateCommitted(ctx, subject, sample)

	logger.Info("recurring slots created", "count", len(created))
	return &models.RecurringResult{Count: len(created), SampleSessions: views}, nil
}

func (s *SessionService) Book(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	opts BookOptions,
) (*models.SessionView, error) {
	logger := serviceLogger(ctx, s.logger, "session", string(OpBook), "session_id", sessionID, "user_id", subject.ID)
	deduct := opts.DeductSession == nil || *opts.DeductSession

	box := newOutbox(s.now)
	var booked *models.Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return mapSessionLookup(err)
		}
		if err := authorize(OpBook, subject, session); err != nil {
			return err
		}

		next, err := NextStatus(OpBook, session.Status)
		if err != nil {
			return err
		}
		if session.ClientID != nil && !session.HasClient(subject.ID) {
			return ErrSessionUnavailable
		}

		now := s.now().UTC()
		if session.SessionDate == nil || !session.SessionDate.After(now) {
			return validationFailure("session_date", "only future dated slots can be booked")
		}

		clientID := subject.ID
		session.ClientID = &clientID
		session.Status = next
		session.BookingDate = &now
		session.SessionDeducted = deduct

		updated, err := repos.Sessions.Update(ctx, session)
		if err != nil {
			return err
		}

		if deduct {
			if _, err := s.ledger.Debit(ctx, repos.Users, subject.ID, 1); err != nil {
				return err
			}
		}

		booked = updated
		return nil
	})
	if err != nil {
		logger.Warn("book session failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	box.Notify(NotifyBookingCreated, booked.ID, participants(*booked), sessionNotificationPayload(*booked))
	box.Broadcast(EventSessionBooked, sessionEventPayload(*booked), BroadcastOptions{
		ExcludeUserID: &subject.ID,
		Priority:      PriorityNormal,
	})
	box.CheckConflicts(*booked, ConflictModeBook)
	s.dispatcher.Drain(ctx, box)

	logger.Info("session booked", "deducted", deduct)
	return s.decorateCommittedOne(ctx, subject, *booked), nil
}

func (s *SessionService) Confirm(
	ctx context.Context,
	subject Subject,
	sessionID int64,
) (*models.SessionView, error) {
	confirmed, err := s.transition(ctx, subject, sessionID, OpConfirm, func(session *models.Session, now time.Time) error {
		session.Confirmed = true
		session.ConfirmedBy = &subject.ID
		session.ConfirmationDate = &now
		return nil
	}, func(box *Outbox, session models.Session) {
		box.Notify(NotifyConfirmed, session.ID, participants(session), sessionNotificationPayload(session))
		box.Broadcast(EventSessionUpdated, sessionEventPayload(session), BroadcastOptions{
			ExcludeUserID: &subject.ID,
			Priority:      PriorityNormal,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.decorateCommittedOne(ctx, subject, *confirmed), nil
}

func (s *SessionService) Complete(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	notes *string,
) (*models.SessionView, error) {
	completed, err := s.transition(ctx, subject, sessionID, OpComplete, func(session *models.Session, now time.Time) error {
		if session.ClientID == nil || session.TrainerID == nil {
			return fmt.Errorf("%w: session needs a client and a trainer to be completed", ErrInvalidStateTransition)
		}
		session.CompletedBy = &subject.ID
		session.CompletionDate = &now
		if trimmed := trimmedOrNil(notes); trimmed != nil {
			session.PrivateNotes = trimmed
		}
		return nil
	}, func(box *Outbox, session models.Session) {
		box.Notify(NotifyCompleted, session.ID, participants(session), sessionNotificationPayload(session))
		box.Broadcast(EventSessionCompleted, sessionEventPayload(session), BroadcastOptions{
			ExcludeUserID: &subject.ID,
			Priority:      PriorityNormal,
		})
	})
	if err != nil {
		return nil, err
	}
	return s.decorateCommittedOne(ctx, subject, *completed), nil
}

func (s *SessionService) Cancel(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	reason string,
) (*models.CancelResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancellationReason
	}

	refunded := false
	cancelled, err := s.transitionTx(ctx, subject, sessionID, OpCancel, func(
		ctx context.Context,
		repos repository.Repositories,
		session *models.Session,
		now time.Time,
	) error {
		session.CancelledBy = &subject.ID
		session.CancellationReason = &reason
		session.CancellationDate = &now

		if session.SessionDeducted && session.ClientID != nil {
			if _, err := s.ledger.Credit(ctx, repos.Users, *session.ClientID, 1); err != nil {
				return err
			}
			session.SessionDeducted = false
			refunded = true
		}
		return nil
	}, func(box *Outbox, session models.Session) {
		payload := sessionNotificationPayload(session)
		payload["reason"] = reason
		payload["refunded"] = refunded
		box.Notify(NotifyCancelled, session.ID, participants(session), payload)
		box.Broadcast(EventSessionCancelled, sessionEventPayload(session), BroadcastOptions{
			ExcludeUserID: &subject.ID,
			Priority:      PriorityNormal,
		})
	})
	if err != nil {
		return nil, err
	}

	return &models.CancelResult{
		ID:                 cancelled.ID,
		Status:             cancelled.Status,
		CancelledBy:        subject.ID,
		CancellationReason: reason,
		CancellationDate:   *cancelled.CancellationDate,
	}, nil
}

func (s *SessionService) AssignTrainer(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	trainerID int64,
) (*models.SessionView, error) {
	if trainerID <= 0 {
		return nil, validationFailure("trainer_id", "must be a positive id")
	}

	assigned, err := s.transitionTx(ctx, subject, sessionID, OpAssignTrainer, func(
		ctx context.Context,
		repos repository.Repositories,
		session *models.Session,
		now time.Time,
	) error {
		if err := requireTrainer(ctx, repos.Users, trainerID); err != nil {
			return err
		}
		session.TrainerID = &trainerID
		session.AssignedBy = &subject.ID
		session.AssignedAt = &now
		return nil
	}, func(box *Outbox, session models.Session) {
		box.Notify(NotifyTrainerAssigned, session.ID, participants(session), sessionNotificationPayload(session))
		box.Broadcast(EventSessionUpdated, sessionEventPayload(session), BroadcastOptions{
			ExcludeUserID: &subject.ID,
			Priority:      PriorityNormal,
		})
		box.CheckConflicts(session, ConflictModeAssign)
	})
	if err != nil {
		return nil, err
	}
	return s.decorateCommittedOne(ctx, subject, *assigned), nil
}

// mutateFunc applies an operation's field changes to a freshly locked row.
type mutateFunc func(ctx context.Context, repos repository.Repositories, session *models.Session, now time.Time) error

// enqueueFunc records the side effects of a committed transition.
type enqueueFunc func(box *Outbox, session models.Session)

func (s *SessionService) transition(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	op Operation,
	mutate func(session *models.Session, now time.Time) error,
	enqueue enqueueFunc,
) (*models.Session, error) {
	return s.transitionTx(ctx, subject, sessionID, op, func(
		_ context.Context,
		_ repository.Repositories,
		session *models.Session,
		now time.Time,
	) error {
		return mutate(session, now)
	}, enqueue)
}

// transitionTx is the shared shape of every status change: lock and re-read
// the row, check the guard and the transition table, mutate, persist, and
// only after commit hand the side effects to the dispatcher.
func (s *SessionService) transitionTx(
	ctx context.Context,
	subject Subject,
	sessionID int64,
	op Operation,
	mutate mutateFunc,
	enqueue enqueueFunc,
) (*models.Session, error) {
	logger := serviceLogger(ctx, s.logger, "session", string(op), "session_id", sessionID, "user_id", subject.ID)

	var updated *models.Session
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		session, err := repos.Sessions.GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return mapSessionLookup(err)
		}
		if err := authorize(op, subject, session); err != nil {
			return err
		}

		next, err := NextStatus(op, session.Status)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		if err := mutate(ctx, repos, session, now); err != nil {
			return err
		}
		session.Status = next

		updated, err = repos.Sessions.Update(ctx, session)
		return err
	})
	if err != nil {
		logger.Warn("session transition failed", "error_kind", ErrorKind(err), "error", err)
		return nil, err
	}

	box := newOutbox(s.now)
	enqueue(box, *updated)
	s.dispatcher.Drain(ctx, box)

	logger.Info("session transitioned", "status", updated.Status)
	return updated, nil
}

func (s *SessionService) validateSlots(specs []SlotSpec) ([]repository.CreateSessionInput, error) {
	vErr := &ValidationError{}
	if len(specs) == 0 {
		vErr.add("slots", "at least one slot is required")
		return nil, vErr
	}

	now := s.now().UTC()
	inputs := make([]repository.CreateSessionInput, 0, len(specs))
	for i, spec := range specs {
		field := func(name string) string {
			return fmt.Sprintf("slots[%d].%s", i, name)
		}

		if spec.SessionDate == nil || spec.SessionDate.IsZero() {
			vErr.add(field("session_date"), "is required")
			continue
		}
		start := spec.SessionDate.UTC()
		if !start.After(now) {
			vErr.add(field("session_date"), "must be in the future")
		}

		duration := spec.Duration
		if duration < 0 {
			vErr.add(field("duration"), "must be positive")
		}

		var end time.Time
		switch {
		case spec.EndDate != nil:
			end = spec.EndDate.UTC()
			window := int(end.Sub(start) / time.Minute)
			switch {
			case window < 1:
				vErr.add(field("end_date"), "must be at least one minute after session_date")
			case duration == 0:
				duration = window
			case duration != window:
				vErr.add(field("duration"), "must match the minutes between session_date and end_date")
			}
		default:
			if duration <= 0 {
				duration = models.DefaultSessionDuration
			}
			end = start.Add(time.Duration(duration) * time.Minute)
		}

		if spec.TrainerID != nil && *spec.TrainerID <= 0 {
			vErr.add(field("trainer_id"), "must be a positive id")
		}

		inputs = append(inputs, repository.CreateSessionInput{
			SessionDate: &start,
			EndDate:     &end,
			Duration:    duration,
			Status:      models.StatusAvailable,
			TrainerID:   spec.TrainerID,
			Location:    trimmedOrNil(spec.Location),
			SessionType: trimmedOrNil(spec.SessionType),
			Notes:       trimmedOrNil(spec.Notes),
		})
	}

	if err := vErr.orNil(); err != nil {
		return nil, err
	}
	return inputs, nil
}

func (s *SessionService) expandRecurring(spec RecurringSpec) ([]time.Time, int, error) {
	vErr := &ValidationError{}

	if spec.StartDate.IsZero() {
		vErr.add("start_date", "is required")
	}
	if spec.EndDate.IsZero() {
		vErr.add("end_date", "is required")
	}
	if spec.Duration < 0 {
		vErr.add("duration", "must be positive")
	}
	if spec.TrainerID != nil && *spec.TrainerID <= 0 {
		vErr.add("trainer_id", "must be a positive id")
	}

	weekdays := make([]time.Weekday, 0, len(spec.DaysOfWeek))
	if len(spec.DaysOfWeek) == 0 {
		vErr.add("days_of_week", "at least one day is required")
	}
	for _, day := range spec.DaysOfWeek {
		if day < int(time.Sunday) || day > int(time.Saturday) {
			vErr.add("days_of_week", "days must be between 0 (Sunday) and 6 (Saturday)")
			continue
		}
		weekdays = append(weekdays, time.Weekday(day))
	}

	clocks := make([]recurrence.ClockTime, 0, len(spec.Times))
	if len(spec.Times) == 0 {
		vErr.add("times", "at least one time is required")
	}
	for _, raw := range spec.Times {
		clock, err := recurrence.ParseClockTime(raw)
		if err != nil {
			vErr.add("times", "times must use HH:MM")
			continue
		}
		clocks = append(clocks, clock)
	}

	if vErr.HasErrors() {
		return nil, 0, vErr
	}

	duration := spec.Duration
	if duration == 0 {
		duration = models.DefaultSessionDuration
	}

	starts, err := s.recurrence.Expand(recurrence.Pattern{
		StartsOn: spec.StartDate,
		EndsOn:   spec.EndDate,
		Weekdays: weekdays,
		Times:    clocks,
	}, s.now(), s.recurringLimit)
	switch {
	case errors.Is(err, recurrence.ErrInvalidWindow):
		return nil, 0, validationFailure("end_date", "must not be before start_date")
	case errors.Is(err, recurrence.ErrTooManySlots):
		return nil, 0, validationFailure(
			"days_of_week",
			fmt.Sprintf("pattern produces more than %d sessions", s.recurringLimit),
		)
	case err != nil:
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return starts, duration, nil
}

func requireTrainer(ctx context.Context, users repository.UserStore, trainerID int64) error {
	trainer, err := users.GetByID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTrainerNotFound
		}
		return err
	}
	if trainer.Role != models.RoleTrainer {
		return ErrTrainerNotFound
	}
	return nil
}

func mapSessionLookup(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func participants(session models.Session) []int64 {
	ids := make([]int64, 0, 2)
	if session.ClientID != nil {
		ids = append(ids, *session.ClientID)
	}
	if session.TrainerID != nil {
		ids = append(ids, *session.TrainerID)
	}
	return ids
}

// sessionEventPayload never carries private notes; broadcasts fan out to
// subscribers of every role.
func sessionEventPayload(session models.Session) map[string]any {
	return map[string]any{
		"id":           session.ID,
		"status":       session.Status,
		"session_date": session.SessionDate,
		"end":          session.EndTime(),
		"client_id":    session.ClientID,
		"trainer_id":   session.TrainerID,
		"location":     session.Location,
	}
}

func sessionNotificationPayload(session models.Session) map[string]any {
	return map[string]any{
		"status":       session.Status,
		"session_date": session.SessionDate,
		"location":     session.Location,
	}
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
