package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/saeid-a/SessionLedgerBack/internal/services"
)

// RecordingNotifier keeps every notification it is handed. Set Err to make
// delivery fail, or Panic to make it blow up.
type RecordingNotifier struct {
	mu            sync.Mutex
	notifications []services.Notification
	Err           error
	Panic         bool
}

func (n *RecordingNotifier) Notify(_ context.Context, notification services.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Panic {
		panic("notifier exploded")
	}
	if n.Err != nil {
		return n.Err
	}
	n.notifications = append(n.notifications, notification)
	return nil
}

func (n *RecordingNotifier) Notifications() []services.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]services.Notification(nil), n.notifications...)
}

func (n *RecordingNotifier) Kinds() []services.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	kinds := make([]services.NotificationKind, 0, len(n.notifications))
	for _, notification := range n.notifications {
		kinds = append(kinds, notification.Kind)
	}
	return kinds
}

type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []services.Event
	Err    error
}

func (b *RecordingBroadcaster) Broadcast(_ context.Context, event services.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.events = append(b.events, event)
	return nil
}

func (b *RecordingBroadcaster) Events() []services.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]services.Event(nil), b.events...)
}

// EventsOf filters recorded events by kind.
func (b *RecordingBroadcaster) EventsOf(kind services.EventKind) []services.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]services.Event, 0)
	for _, event := range b.events {
		if event.Kind == kind {
			out = append(out, event)
		}
	}
	return out
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(now time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func Int64(v int64) *int64 {
	return &v
}

func Int(v int) *int {
	return &v
}

func String(v string) *string {
	return &v
}

func Time(v time.Time) *time.Time {
	return &v
}
