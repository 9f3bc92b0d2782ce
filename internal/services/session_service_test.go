package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/models"
	"github.com/saeid-a/SessionLedgerBack/internal/services"
	"github.com/saeid-a/SessionLedgerBack/internal/testfixtures"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var (
	suiteNow  = time.Date(2029, time.December, 1, 8, 0, 0, 0, time.UTC)
	slotStart = time.Date(2030, time.January, 1, 10, 0, 0, 0, time.UTC)
)

type SessionServiceSuite struct {
	suite.Suite

	ctx         context.Context
	store       *testfixtures.MemoryStore
	notifier    *testfixtures.RecordingNotifier
	broadcaster *testfixtures.RecordingBroadcaster
	clock       *testfixtures.Clock
	service     *services.SessionService

	admin        services.Subject
	trainer      services.Subject
	otherTrainer services.Subject
	client       services.Subject
	otherClient  services.Subject
}

func TestSessionServiceSuite(t *testing.T) {
	suite.Run(t, new(SessionServiceSuite))
}

func (s *SessionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = testfixtures.NewMemoryStore()
	s.notifier = &testfixtures.RecordingNotifier{}
	s.broadcaster = &testfixtures.RecordingBroadcaster{}
	s.clock = testfixtures.NewClock(suiteNow)

	dispatcher := services.NewDispatcher(
		s.notifier,
		s.broadcaster,
		services.NewConflictDetector(s.store),
		nil,
	)
	s.service = services.NewSessionService(s.store, dispatcher, services.SessionServiceConfig{
		Location:           time.UTC,
		RecurringSlotLimit: 50,
		Now:                s.clock.Now,
	})

	s.admin = s.addUser("Ada", models.RoleAdmin, 0)
	s.trainer = s.addUser("Tina", models.RoleTrainer, 0)
	s.otherTrainer = s.addUser("Omar", models.RoleTrainer, 0)
	s.client = s.addUser("Carl", models.RoleClient, 5)
	s.otherClient = s.addUser("Cora", models.RoleClient, 5)
}

func (s *SessionServiceSuite) addUser(name string, role models.Role, balance int) services.Subject {
	user := s.store.AddUser(models.User{
		Email:             name + "@example.com",
		FirstName:         name,
		Role:              role,
		AvailableSessions: balance,
	})
	return services.Subject{ID: user.ID, Role: role}
}

func (s *SessionServiceSuite) balance(subject services.Subject) int {
	user, ok := s.store.User(subject.ID)
	s.Require().True(ok)
	return user.AvailableSessions
}

// seedSession stores a session directly, bypassing the service.
func (s *SessionServiceSuite) seedSession(status models.SessionStatus, start time.Time, trainer, client *int64) models.Session {
	return s.store.AddSession(models.Session{
		SessionDate: testfixtures.Time(start),
		Duration:    60,
		Status:      status,
		TrainerID:   trainer,
		ClientID:    client,
	})
}

func (s *SessionServiceSuite) createSlot(start time.Time, trainerID *int64) models.SessionView {
	created, err := s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{{
		SessionDate: testfixtures.Time(start),
		Duration:    60,
		TrainerID:   trainerID,
	}})
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	return created[0]
}

func (s *SessionServiceSuite) TestEndToEndLifecycle() {
	slot := s.createSlot(slotStart, &s.trainer.ID)
	s.Equal(models.StatusAvailable, slot.Status)
	s.Require().NotNil(slot.End)
	s.Equal(slotStart.Add(time.Hour), *slot.End)
	s.Equal("Available with Tina", slot.Title)

	booked, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().NoError(err)
	s.Equal(models.StatusScheduled, booked.Status)
	s.True(booked.SessionDeducted)
	s.Require().NotNil(booked.BookingDate)
	s.Equal(4, s.balance(s.client))

	confirmed, err := s.service.Confirm(s.ctx, s.trainer, slot.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, confirmed.Status)
	s.True(confirmed.Confirmed)
	s.Equal(s.trainer.ID, *confirmed.ConfirmedBy)

	notes := "great session"
	completed, err := s.service.Complete(s.ctx, s.trainer, slot.ID, &notes)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, completed.Status)
	s.Require().NotNil(completed.PrivateNotes)
	s.Equal("great session", *completed.PrivateNotes)
	s.Equal("Completed with Tina for Carl", completed.Title)

	clientView, err := s.service.GetSessionByID(s.ctx, s.client, slot.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusCompleted, clientView.Status)
	s.Nil(clientView.PrivateNotes)

	trainerView, err := s.service.GetSessionByID(s.ctx, s.trainer, slot.ID)
	s.Require().NoError(err)
	s.Require().NotNil(trainerView.PrivateNotes)

	stored, _ := s.store.Session(slot.ID)
	s.Require().NotNil(stored.PrivateNotes)
	s.Equal(4, s.balance(s.client))

	s.Equal([]services.NotificationKind{
		services.NotifyBookingCreated,
		services.NotifyConfirmed,
		services.NotifyCompleted,
	}, s.notifier.Kinds())
	s.Len(s.broadcaster.EventsOf(services.EventSessionCreated), 1)
	s.Len(s.broadcaster.EventsOf(services.EventSessionBooked), 1)
	s.Len(s.broadcaster.EventsOf(services.EventSessionCompleted), 1)
	s.Empty(s.broadcaster.EventsOf(services.EventScheduleConflict))
}

func (s *SessionServiceSuite) TestBookRollsBackWhenLedgerFails() {
	slot := s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)
	s.store.FailOn(testfixtures.FaultUserAdjustBalance, errors.New("ledger unavailable"))

	_, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().Error(err)

	stored, _ := s.store.Session(slot.ID)
	s.Equal(slot, stored)
	s.Equal(5, s.balance(s.client))
	s.Empty(s.notifier.Notifications())
	s.Empty(s.broadcaster.Events())

	_, rollbacks := s.store.TxStats()
	s.Equal(1, rollbacks)
}

func (s *SessionServiceSuite) TestBookRollsBackWhenCommitFails() {
	slot := s.seedSession(models.StatusAvailable, slotStart, nil, nil)
	s.store.FailOn(testfixtures.FaultCommit, errors.New("connection reset"))

	_, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().Error(err)

	stored, _ := s.store.Session(slot.ID)
	s.Equal(models.StatusAvailable, stored.Status)
	s.Nil(stored.ClientID)
	s.Equal(5, s.balance(s.client))
}

func (s *SessionServiceSuite) TestConcurrentBookingHasOneWinner() {
	slot := s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)

	contenders := []services.Subject{s.client, s.otherClient}
	errs := make([]error, len(contenders))

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i, subject := range contenders {
		wg.Add(1)
		go func(i int, subject services.Subject) {
			defer wg.Done()
			<-start
			_, errs[i] = s.service.Book(s.ctx, subject, slot.ID, services.BookOptions{})
		}(i, subject)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.ErrorIs(err, services.ErrSessionUnavailable)
	}
	s.Equal(1, succeeded)

	stored, _ := s.store.Session(slot.ID)
	s.Equal(models.StatusScheduled, stored.Status)
	s.Require().NotNil(stored.ClientID)
	s.Equal(9, s.balance(s.client)+s.balance(s.otherClient))
}

func (s *SessionServiceSuite) TestCancelRefundsOnlyDeductedSessions() {
	deducted := s.createSlot(slotStart, &s.trainer.ID)
	_, err := s.service.Book(s.ctx, s.client, deducted.ID, services.BookOptions{})
	s.Require().NoError(err)
	s.Equal(4, s.balance(s.client))

	result, err := s.service.Cancel(s.ctx, s.client, deducted.ID, "sick")
	s.Require().NoError(err)
	s.Equal(models.StatusCancelled, result.Status)
	s.Equal(s.client.ID, result.CancelledBy)
	s.Equal("sick", result.CancellationReason)
	s.Equal(suiteNow, result.CancellationDate)
	s.Equal(5, s.balance(s.client))

	stored, _ := s.store.Session(deducted.ID)
	s.False(stored.SessionDeducted)

	free := s.createSlot(slotStart.Add(2*time.Hour), &s.trainer.ID)
	skip := false
	booked, err := s.service.Book(s.ctx, s.client, free.ID, services.BookOptions{DeductSession: &skip})
	s.Require().NoError(err)
	s.False(booked.SessionDeducted)
	s.Equal(5, s.balance(s.client))

	_, err = s.service.Cancel(s.ctx, s.admin, free.ID, "")
	s.Require().NoError(err)
	s.Equal(5, s.balance(s.client))

	stored, _ = s.store.Session(free.ID)
	s.Require().NotNil(stored.CancellationReason)
	s.Equal("No reason provided", *stored.CancellationReason)
}

func (s *SessionServiceSuite) TestBookRejectsWithoutCredits() {
	broke := s.addUser("Bo", models.RoleClient, 0)
	slot := s.seedSession(models.StatusAvailable, slotStart, nil, nil)

	_, err := s.service.Book(s.ctx, broke, slot.ID, services.BookOptions{})
	s.ErrorIs(err, services.ErrInsufficientCredits)

	stored, _ := s.store.Session(slot.ID)
	s.Equal(models.StatusAvailable, stored.Status)
	s.Nil(stored.ClientID)

	skip := false
	_, err = s.service.Book(s.ctx, broke, slot.ID, services.BookOptions{DeductSession: &skip})
	s.NoError(err)
	s.Equal(0, s.balance(broke))
}

func (s *SessionServiceSuite) TestBookValidatesSlot() {
	past := s.seedSession(models.StatusAvailable, suiteNow.Add(-time.Hour), nil, nil)
	_, err := s.service.Book(s.ctx, s.client, past.ID, services.BookOptions{})
	s.ErrorIs(err, services.ErrInvalidInput)

	placeholder := s.store.AddSession(models.Session{Status: models.StatusAvailable, ClientID: &s.otherClient.ID})
	_, err = s.service.Book(s.ctx, s.client, placeholder.ID, services.BookOptions{})
	s.ErrorIs(err, services.ErrSessionUnavailable)

	_, err = s.service.Book(s.ctx, s.client, 999, services.BookOptions{})
	s.ErrorIs(err, services.ErrSessionNotFound)

	slot := s.seedSession(models.StatusAvailable, slotStart, nil, nil)
	_, err = s.service.Book(s.ctx, s.trainer, slot.ID, services.BookOptions{})
	s.ErrorIs(err, services.ErrForbidden)
}

func (s *SessionServiceSuite) TestInvalidTransitionsLeaveRowUnchanged() {
	valid := map[services.Operation][]models.SessionStatus{
		services.OpBook:          {models.StatusAvailable},
		services.OpConfirm:       {models.StatusScheduled, models.StatusRequested},
		services.OpComplete:      {models.StatusConfirmed, models.StatusScheduled},
		services.OpCancel:        {models.StatusAvailable, models.StatusScheduled, models.StatusConfirmed, models.StatusRequested},
		services.OpAssignTrainer: {models.StatusAvailable, models.StatusRequested, models.StatusScheduled, models.StatusConfirmed, models.StatusCompleted},
	}

	isValid := func(op services.Operation, status models.SessionStatus) bool {
		for _, allowed := range valid[op] {
			if allowed == status {
				return true
			}
		}
		return false
	}

	for op := range valid {
		for _, status := range models.AllStatuses() {
			if isValid(op, status) {
				continue
			}
			session := s.seedSession(status, slotStart, &s.trainer.ID, &s.client.ID)

			var err error
			switch op {
			case services.OpBook:
				_, err = s.service.Book(s.ctx, s.client, session.ID, services.BookOptions{})
			case services.OpConfirm:
				_, err = s.service.Confirm(s.ctx, s.admin, session.ID)
			case services.OpComplete:
				_, err = s.service.Complete(s.ctx, s.admin, session.ID, nil)
			case services.OpCancel:
				_, err = s.service.Cancel(s.ctx, s.admin, session.ID, "late")
			case services.OpAssignTrainer:
				_, err = s.service.AssignTrainer(s.ctx, s.admin, session.ID, s.otherTrainer.ID)
			}

			s.ErrorIsf(err, services.ErrInvalidStateTransition, "%s from %s", op, status)
			stored, _ := s.store.Session(session.ID)
			s.Equalf(session, stored, "%s from %s changed the row", op, status)
		}
	}
	s.Equal(5, s.balance(s.client))
	s.Empty(s.notifier.Notifications())
}

func (s *SessionServiceSuite) TestCompleteRequiresParticipants() {
	session := s.seedSession(models.StatusScheduled, slotStart, nil, &s.client.ID)

	_, err := s.service.Complete(s.ctx, s.admin, session.ID, nil)
	s.ErrorIs(err, services.ErrInvalidStateTransition)
}

func (s *SessionServiceSuite) TestGuards() {
	mine := s.seedSession(models.StatusScheduled, slotStart, &s.trainer.ID, &s.client.ID)

	_, err := s.service.Confirm(s.ctx, s.otherTrainer, mine.ID)
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.Confirm(s.ctx, s.client, mine.ID)
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.Complete(s.ctx, s.otherTrainer, mine.ID, nil)
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.Cancel(s.ctx, s.otherClient, mine.ID, "not mine")
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.Cancel(s.ctx, s.otherTrainer, mine.ID, "not mine")
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.AssignTrainer(s.ctx, s.trainer, mine.ID, s.trainer.ID)
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.CreateAvailable(s.ctx, s.trainer, []services.SlotSpec{{SessionDate: testfixtures.Time(slotStart)}})
	s.ErrorIs(err, services.ErrForbidden)

	_, err = s.service.CreateRecurring(s.ctx, s.client, services.RecurringSpec{})
	s.ErrorIs(err, services.ErrForbidden)

	stored, _ := s.store.Session(mine.ID)
	s.Equal(mine, stored)

	_, err = s.service.Cancel(s.ctx, s.trainer, mine.ID, "trainer ill")
	s.NoError(err)
}

func (s *SessionServiceSuite) TestAssignTrainer() {
	requested := s.seedSession(models.StatusRequested, slotStart, nil, &s.client.ID)

	assigned, err := s.service.AssignTrainer(s.ctx, s.admin, requested.ID, s.trainer.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusScheduled, assigned.Status)
	s.Equal(s.trainer.ID, *assigned.TrainerID)
	s.Equal(s.admin.ID, *assigned.AssignedBy)
	s.Equal(suiteNow, *assigned.AssignedAt)

	notifications := s.notifier.Notifications()
	s.Require().Len(notifications, 1)
	s.Equal(services.NotifyTrainerAssigned, notifications[0].Kind)
	s.ElementsMatch([]int64{s.client.ID, s.trainer.ID}, notifications[0].Recipients)

	_, err = s.service.AssignTrainer(s.ctx, s.admin, requested.ID, s.client.ID)
	s.ErrorIs(err, services.ErrTrainerNotFound)

	_, err = s.service.AssignTrainer(s.ctx, s.admin, requested.ID, 4242)
	s.ErrorIs(err, services.ErrTrainerNotFound)

	stored, _ := s.store.Session(requested.ID)
	s.Equal(s.trainer.ID, *stored.TrainerID)
}

func (s *SessionServiceSuite) TestConflictDetectionIsAdvisory() {
	existing := s.seedSession(models.StatusConfirmed, slotStart, &s.trainer.ID, &s.otherClient.ID)

	overlapping := s.createSlot(slotStart.Add(30*time.Minute), &s.trainer.ID)
	s.Equal(models.StatusAvailable, overlapping.Status)

	conflicts := s.broadcaster.EventsOf(services.EventScheduleConflict)
	s.Require().Len(conflicts, 1)
	report, ok := conflicts[0].Payload.(services.ConflictReport)
	s.Require().True(ok)
	s.Equal("trainer", report.Kind)
	s.Equal(services.SeverityHigh, report.Severity)
	s.Equal(overlapping.ID, report.SessionID)
	s.Equal([]int64{existing.ID}, report.ConflictingSessionIDs)
	s.NotEmpty(report.Suggestions)
	s.Equal(services.PriorityHigh, conflicts[0].Options.Priority)
	s.ElementsMatch([]models.Role{models.RoleAdmin, models.RoleTrainer}, conflicts[0].Options.Roles)

	s.createSlot(slotStart.Add(time.Hour), &s.trainer.ID)
	s.Len(s.broadcaster.EventsOf(services.EventScheduleConflict), 1)
}

func (s *SessionServiceSuite) TestClientConflictOnBooking() {
	s.seedSession(models.StatusScheduled, slotStart, &s.otherTrainer.ID, &s.client.ID)
	slot := s.seedSession(models.StatusAvailable, slotStart.Add(15*time.Minute), &s.trainer.ID, nil)

	_, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().NoError(err)

	conflicts := s.broadcaster.EventsOf(services.EventScheduleConflict)
	s.Require().Len(conflicts, 1)
	report := conflicts[0].Payload.(services.ConflictReport)
	s.Equal("client", report.Kind)
	s.Equal(services.SeverityMedium, report.Severity)
	s.Equal(s.client.ID, report.OwnerID)
}

func (s *SessionServiceSuite) TestSideEffectFailuresDoNotFailOperation() {
	s.notifier.Panic = true
	s.broadcaster.Err = errors.New("hub queue full")
	s.store.FailOn(testfixtures.FaultSessionOverlap, errors.New("replica lag"))

	slot := s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)
	booked, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().NoError(err)
	s.Equal(models.StatusScheduled, booked.Status)
	s.Equal(4, s.balance(s.client))
}

func (s *SessionServiceSuite) TestCommittedBookingSurvivesNameLookupFailure() {
	slot := s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)
	s.store.FailOn(testfixtures.FaultUserFirstNames, errors.New("read replica down"))

	booked, err := s.service.Book(s.ctx, s.client, slot.ID, services.BookOptions{})
	s.Require().NoError(err)
	s.Equal(models.StatusScheduled, booked.Status)
	s.Equal("Scheduled", booked.Title)
	s.Equal(4, s.balance(s.client))

	confirmed, err := s.service.Confirm(s.ctx, s.trainer, slot.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusConfirmed, confirmed.Status)

	created, err := s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{
		{SessionDate: testfixtures.Time(slotStart.Add(24 * time.Hour)), TrainerID: &s.trainer.ID},
	})
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal("Available", created[0].Title)

	_, err = s.service.GetSessionByID(s.ctx, s.client, slot.ID)
	s.Error(err)
}

func (s *SessionServiceSuite) TestRoleScopedListing() {
	open := s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)
	mine := s.seedSession(models.StatusScheduled, slotStart.Add(time.Hour), &s.trainer.ID, &s.client.ID)
	theirs := s.seedSession(models.StatusScheduled, slotStart.Add(2*time.Hour), &s.otherTrainer.ID, &s.otherClient.ID)
	placeholder := s.store.AddSession(models.Session{Status: models.StatusAvailable, ClientID: &s.otherClient.ID})
	notes := "knee injury"
	s.store.AddSession(models.Session{
		SessionDate:  testfixtures.Time(slotStart.Add(3 * time.Hour)),
		Status:       models.StatusConfirmed,
		ClientID:     &s.otherClient.ID,
		TrainerID:    &s.trainer.ID,
		PrivateNotes: &notes,
	})

	first, err := s.service.GetSessions(s.ctx, s.client, services.SessionQuery{})
	s.Require().NoError(err)
	second, err := s.service.GetSessions(s.ctx, s.client, services.SessionQuery{})
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Equal([]int64{open.ID, mine.ID}, viewIDs(first))

	spoofed, err := s.service.GetSessions(s.ctx, s.client, services.SessionQuery{ClientID: &s.otherClient.ID})
	s.Require().NoError(err)
	s.Equal([]int64{open.ID, mine.ID}, viewIDs(spoofed))

	trainerViews, err := s.service.GetSessions(s.ctx, s.trainer, services.SessionQuery{TrainerID: &s.otherTrainer.ID})
	s.Require().NoError(err)
	s.Len(trainerViews, 3)
	for _, view := range trainerViews {
		s.True(view.HasTrainer(s.trainer.ID))
	}
	s.NotNil(trainerViews[2].PrivateNotes)

	all, err := s.service.GetSessions(s.ctx, s.admin, services.SessionQuery{})
	s.Require().NoError(err)
	s.Len(all, 5)
	s.Equal(placeholder.ID, all[len(all)-1].ID)

	filtered, err := s.service.GetSessions(s.ctx, s.admin, services.SessionQuery{
		Statuses:  []models.SessionStatus{models.StatusScheduled},
		TrainerID: &s.otherTrainer.ID,
	})
	s.Require().NoError(err)
	s.Equal([]int64{theirs.ID}, viewIDs(filtered))

	_, err = s.service.GetSessionByID(s.ctx, s.client, theirs.ID)
	s.ErrorIs(err, services.ErrSessionNotFound)
	_, err = s.service.GetSessionByID(s.ctx, s.client, placeholder.ID)
	s.ErrorIs(err, services.ErrSessionNotFound)
	_, err = s.service.GetSessionByID(s.ctx, s.otherTrainer, mine.ID)
	s.ErrorIs(err, services.ErrSessionNotFound)
}

func (s *SessionServiceSuite) TestPagedListingAndCount() {
	for i := 0; i < 5; i++ {
		s.seedSession(models.StatusAvailable, slotStart.Add(time.Duration(i)*time.Hour), &s.trainer.ID, nil)
	}
	s.seedSession(models.StatusScheduled, slotStart, &s.otherTrainer.ID, &s.otherClient.ID)

	page, err := s.service.GetSessions(s.ctx, s.trainer, services.SessionQuery{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Len(page, 2)
	s.True(slotStart.Add(2*time.Hour).Equal(*page[0].SessionDate))

	total, err := s.service.CountSessions(s.ctx, s.trainer, services.SessionQuery{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Equal(5, total)

	beyond, err := s.service.GetSessions(s.ctx, s.trainer, services.SessionQuery{Limit: 2, Offset: 10})
	s.Require().NoError(err)
	s.Empty(beyond)

	adminTotal, err := s.service.CountSessions(s.ctx, s.admin, services.SessionQuery{})
	s.Require().NoError(err)
	s.Equal(6, adminTotal)
}

func (s *SessionServiceSuite) TestCreateAvailableValidation() {
	_, err := s.service.CreateAvailable(s.ctx, s.admin, nil)
	var vErr *services.ValidationError
	s.Require().ErrorAs(err, &vErr)
	s.Contains(vErr.FieldErrors, "slots")

	_, err = s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{
		{},
		{SessionDate: testfixtures.Time(suiteNow.Add(-time.Minute))},
		{SessionDate: testfixtures.Time(slotStart), Duration: -5},
		{SessionDate: testfixtures.Time(slotStart), EndDate: testfixtures.Time(slotStart.Add(-time.Hour))},
		{SessionDate: testfixtures.Time(slotStart), EndDate: testfixtures.Time(slotStart)},
		{SessionDate: testfixtures.Time(slotStart), EndDate: testfixtures.Time(slotStart.Add(30 * time.Second))},
		{SessionDate: testfixtures.Time(slotStart), EndDate: testfixtures.Time(slotStart.Add(time.Hour)), Duration: 45},
	})
	s.Require().ErrorAs(err, &vErr)
	s.Contains(vErr.FieldErrors, "slots[0].session_date")
	s.Contains(vErr.FieldErrors, "slots[1].session_date")
	s.Contains(vErr.FieldErrors, "slots[2].duration")
	s.Contains(vErr.FieldErrors, "slots[3].end_date")
	s.Contains(vErr.FieldErrors, "slots[4].end_date")
	s.Contains(vErr.FieldErrors, "slots[5].end_date")
	s.Contains(vErr.FieldErrors, "slots[6].duration")

	_, err = s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{
		{SessionDate: testfixtures.Time(slotStart), TrainerID: &s.client.ID},
	})
	s.ErrorIs(err, services.ErrTrainerNotFound)
	s.Equal(0, s.store.SessionCount())

	created, err := s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{
		{SessionDate: testfixtures.Time(slotStart), EndDate: testfixtures.Time(slotStart.Add(45 * time.Minute)), Location: testfixtures.String(" Gym A ")},
		{SessionDate: testfixtures.Time(slotStart.Add(time.Hour))},
	})
	s.Require().NoError(err)
	s.Require().Len(created, 2)
	s.Equal(45, created[0].Duration)
	s.Equal("Gym A", *created[0].Location)
	s.Equal("Available @ Gym A", created[0].Title)
	s.Equal(models.DefaultSessionDuration, created[1].Duration)

	matched, err := s.service.CreateAvailable(s.ctx, s.admin, []services.SlotSpec{
		{SessionDate: testfixtures.Time(slotStart.Add(2 * time.Hour)), EndDate: testfixtures.Time(slotStart.Add(150 * time.Minute)), Duration: 30},
	})
	s.Require().NoError(err)
	s.Require().Len(matched, 1)
	s.Equal(30, matched[0].Duration)
	s.Require().NotNil(matched[0].End)
	s.Equal(slotStart.Add(150*time.Minute), *matched[0].End)
}

func (s *SessionServiceSuite) TestCreateRecurring() {
	trainerID := s.trainer.ID
	result, err := s.service.CreateRecurring(s.ctx, s.admin, services.RecurringSpec{
		StartDate:  time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2030, time.January, 20, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{1, 3},
		Times:      []string{"07:30", "18:00"},
		TrainerID:  &trainerID,
		Location:   testfixtures.String("Studio"),
	})
	s.Require().NoError(err)
	s.Equal(8, result.Count)
	s.Len(result.SampleSessions, 5)
	s.Equal(8, s.store.SessionCount())

	first := result.SampleSessions[0]
	s.Equal(time.Date(2030, time.January, 7, 7, 30, 0, 0, time.UTC), *first.SessionDate)
	s.Equal(models.DefaultSessionDuration, first.Duration)
	s.Equal("Available with Tina @ Studio", first.Title)

	_, err = s.service.CreateRecurring(s.ctx, s.admin, services.RecurringSpec{
		StartDate:  time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2030, time.December, 31, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{0, 1, 2, 3, 4, 5, 6},
		Times:      []string{"09:00"},
	})
	s.ErrorIs(err, services.ErrInvalidInput)

	_, err = s.service.CreateRecurring(s.ctx, s.admin, services.RecurringSpec{
		StartDate:  time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{9},
		Times:      []string{"25:00"},
	})
	var vErr *services.ValidationError
	s.Require().ErrorAs(err, &vErr)
	s.Contains(vErr.FieldErrors, "days_of_week")
	s.Contains(vErr.FieldErrors, "times")

	past, err := s.service.CreateRecurring(s.ctx, s.admin, services.RecurringSpec{
		StartDate:  time.Date(2029, time.November, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2029, time.November, 30, 0, 0, 0, 0, time.UTC),
		DaysOfWeek: []int{1},
		Times:      []string{"09:00"},
	})
	s.Require().NoError(err)
	s.Equal(0, past.Count)
	s.Empty(past.SampleSessions)
	s.Equal(8, s.store.SessionCount())
}

func (s *SessionServiceSuite) TestStats() {
	s.seedSession(models.StatusAvailable, slotStart, &s.trainer.ID, nil)
	s.seedSession(models.StatusScheduled, slotStart.Add(time.Hour), &s.trainer.ID, &s.client.ID)
	s.seedSession(models.StatusConfirmed, slotStart.Add(2*time.Hour), &s.otherTrainer.ID, &s.otherClient.ID)
	s.seedSession(models.StatusCompleted, slotStart.Add(3*time.Hour), &s.trainer.ID, &s.client.ID)
	s.seedSession(models.StatusCancelled, slotStart.Add(4*time.Hour), &s.trainer.ID, &s.otherClient.ID)
	s.addUser("Lena", models.Role("user"), 0)

	adminStats, err := s.service.GetStats(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Equal(5, adminStats.Total)
	s.Equal(1, adminStats.Available)
	s.Equal(2, adminStats.Booked)
	s.Equal(1, adminStats.Completed)
	s.Equal(1, adminStats.Cancelled)
	s.Equal(3, *adminStats.TotalClients)
	s.Equal(2, *adminStats.TotalTrainers)
	s.Nil(adminStats.OwnBooked)

	trainerStats, err := s.service.GetStats(s.ctx, s.trainer)
	s.Require().NoError(err)
	s.Equal(4, trainerStats.Total)
	s.Equal(3, *trainerStats.Assigned)
	s.Nil(trainerStats.TotalClients)

	clientStats, err := s.service.GetStats(s.ctx, s.client)
	s.Require().NoError(err)
	s.Equal(3, clientStats.Total)
	s.Equal(1, clientStats.Booked)
	s.Equal(1, *clientStats.OwnBooked)
}

func viewIDs(views []models.SessionView) []int64 {
	ids := make([]int64, 0, len(views))
	for _, view := range views {
		ids = append(ids, view.ID)
	}
	return ids
}

func TestConflictDetectorHalfOpenIntervals(t *testing.T) {
	store := testfixtures.NewMemoryStore()
	trainerID := int64(7)
	existing := store.AddSession(models.Session{
		SessionDate: testfixtures.Time(slotStart),
		Duration:    60,
		Status:      models.StatusConfirmed,
		TrainerID:   &trainerID,
	})
	store.AddSession(models.Session{
		SessionDate: testfixtures.Time(slotStart),
		Duration:    60,
		Status:      models.StatusCancelled,
		TrainerID:   &trainerID,
	})
	detector := services.NewConflictDetector(store)

	cases := []struct {
		name    string
		start   time.Time
		reports int
	}{
		{"overlapping tail", slotStart.Add(30 * time.Minute), 1},
		{"adjacent after", slotStart.Add(time.Hour), 0},
		{"adjacent before", slotStart.Add(-time.Hour), 0},
		{"contained", slotStart.Add(10 * time.Minute), 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			candidate := models.Session{
				ID:          99,
				SessionDate: testfixtures.Time(tc.start),
				Duration:    60,
				TrainerID:   &trainerID,
			}
			reports, err := detector.FindConflicts(context.Background(), candidate, services.ConflictModeCreate)
			require.NoError(t, err)
			require.Len(t, reports, tc.reports)
			if tc.reports == 1 {
				require.Equal(t, []int64{existing.ID}, reports[0].ConflictingSessionIDs)
				require.Equal(t, int64(99), reports[0].SessionID)
			}
		})
	}

	self, err := detector.FindConflicts(context.Background(), existing, services.ConflictModeCreate)
	require.NoError(t, err)
	require.Empty(t, self)
}
