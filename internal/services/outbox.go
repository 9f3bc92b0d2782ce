package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/saeid-a/SessionLedgerBack/internal/models"
)

type NotificationKind string

const (
	NotifyBookingCreated  NotificationKind = "booking_created"
	NotifyCancelled       NotificationKind = "cancelled"
	NotifyConfirmed       NotificationKind = "confirmed"
	NotifyCompleted       NotificationKind = "completed"
	NotifyTrainerAssigned NotificationKind = "trainer_assigned"
)

type EventKind string

const (
	EventSessionCreated   EventKind = "session_created"
	EventSessionUpdated   EventKind = "session_updated"
	EventSessionBooked    EventKind = "session_booked"
	EventSessionCancelled EventKind = "session_cancelled"
	EventSessionCompleted EventKind = "session_completed"
	EventScheduleConflict EventKind = "schedule_conflict"
)

const (
	PriorityNormal = "normal"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification asks an external worker to tell Recipients about a session.
type Notification struct {
	ID         string           `json:"id"`
	Kind       NotificationKind `json:"kind"`
	SessionID  int64            `json:"session_id"`
	Recipients []int64          `json:"recipients"`
	Payload    map[string]any   `json:"payload,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

type BroadcastOptions struct {
	ExcludeUserID *int64
	Priority      string
	// Roles limits delivery to subscribers holding one of these roles. Empty
	// means everyone.
	Roles []models.Role
}

type Event struct {
	ID         string           `json:"id"`
	Kind       EventKind        `json:"type"`
	Payload    any              `json:"payload"`
	Options    BroadcastOptions `json:"-"`
	OccurredAt time.Time        `json:"occurred_at"`
}

type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

type conflictCheck struct {
	session models.Session
	mode    ConflictMode
}

// Outbox collects the side effects of one operation. It is filled while the
// transaction runs and drained only after a successful commit.
type Outbox struct {
	now            func() time.Time
	notifications  []Notification
	events         []Event
	conflictChecks []conflictCheck
}

func newOutbox(now func() time.Time) *Outbox {
	if now == nil {
		now = time.Now
	}
	return &Outbox{now: now}
}

func (o *Outbox) Notify(kind NotificationKind, sessionID int64, recipients []int64, payload map[string]any) {
	o.notifications = append(o.notifications, Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		SessionID:  sessionID,
		Recipients: recipients,
		Payload:    payload,
		CreatedAt:  o.now().UTC(),
	})
}

func (o *Outbox) Broadcast(kind EventKind, payload any, opts BroadcastOptions) {
	o.events = append(o.events, Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    payload,
		Options:    opts,
		OccurredAt: o.now().UTC(),
	})
}

func (o *Outbox) CheckConflicts(session models.Session, mode ConflictMode) {
	if session.SessionDate == nil {
		return
	}
	o.conflictChecks = append(o.conflictChecks, conflictCheck{session: session, mode: mode})
}

func (o *Outbox) Len() int {
	return len(o.notifications) + len(o.events) + len(o.conflictChecks)
}

// Dispatcher delivers a committed outbox. Every entry is isolated: errors and
// panics are logged and never reach the caller of the operation.
type Dispatcher struct {
	notifier    Notifier
	broadcaster Broadcaster
	conflicts   *ConflictDetector
	logger      *slog.Logger
	timeout     time.Duration

	background bool
	inflight   sync.WaitGroup
}

func NewDispatcher(
	notifier Notifier,
	broadcaster Broadcaster,
	conflicts *ConflictDetector,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		notifier:    notifier,
		broadcaster: broadcaster,
		conflicts:   conflicts,
		logger:      defaultLogger(logger),
		timeout:     5 * time.Second,
	}
}

// InBackground makes Drain return at once and deliver on its own goroutine.
// Call Wait before exiting to flush deliveries still in flight.
func (d *Dispatcher) InBackground() *Dispatcher {
	d.background = true
	return d
}

// Drain delivers a committed outbox. Entries of one outbox are delivered in
// order.
func (d *Dispatcher) Drain(ctx context.Context, box *Outbox) {
	if d == nil || box == nil || box.Len() == 0 {
		return
	}
	// The operation has already committed, so delivery must outlive a
	// cancelled request.
	ctx = context.WithoutCancel(ctx)
	if !d.background {
		d.deliver(ctx, box)
		return
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.deliver(ctx, box)
	}()
}

// Wait blocks until background deliveries finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, box *Outbox) {
	logger := serviceLogger(ctx, d.logger, "dispatcher", "drain")

	for _, notification := range box.notifications {
		d.isolated(ctx, logger, "notify", string(notification.Kind), func(ctx context.Context) error {
			if d.notifier == nil {
				return nil
			}
			return d.notifier.Notify(ctx, notification)
		})
	}

	for _, event := range box.events {
		d.isolated(ctx, logger, "broadcast", string(event.Kind), func(ctx context.Context) error {
			return d.broadcast(ctx, event)
		})
	}

	for _, check := range box.conflictChecks {
		d.isolated(ctx, logger, "conflict_scan", string(check.mode), func(ctx context.Context) error {
			return d.reportConflicts(ctx, check, box.now)
		})
	}
}

func (d *Dispatcher) broadcast(ctx context.Context, event Event) error {
	if d.broadcaster == nil {
		return nil
	}
	return d.broadcaster.Broadcast(ctx, event)
}

func (d *Dispatcher) reportConflicts(ctx context.Context, check conflictCheck, now func() time.Time) error {
	if d.conflicts == nil {
		return nil
	}
	reports, err := d.conflicts.FindConflicts(ctx, check.session, check.mode)
	if err != nil {
		return err
	}

	for _, report := range reports {
		event := Event{
			ID:         uuid.NewString(),
			Kind:       EventScheduleConflict,
			Payload:    report,
			OccurredAt: now().UTC(),
			Options: BroadcastOptions{
				Priority: string(report.Severity),
				Roles:    []models.Role{models.RoleAdmin, models.RoleTrainer},
			},
		}
		if err := d.broadcast(ctx, event); err != nil {
			return fmt.Errorf("broadcast conflict for session %d: %w", report.SessionID, err)
		}
	}
	return nil
}

func (d *Dispatcher) isolated(
	ctx context.Context,
	logger *slog.Logger,
	step string,
	kind string,
	fn func(ctx context.Context) error,
) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("side effect panicked", "step", step, "kind", kind, "panic", recovered)
		}
	}()

	if err := fn(ctx); err != nil {
		logger.Warn("side effect failed", "step", step, "kind", kind, "error", err)
	}
}
