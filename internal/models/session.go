package models

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the closed set of lifecycle states a session can be in.
type SessionStatus string

const (
	StatusAvailable SessionStatus = "available"
	StatusRequested SessionStatus = "requested"
	StatusScheduled SessionStatus = "scheduled"
	StatusConfirmed SessionStatus = "confirmed"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

const DefaultSessionDuration = 60

var allStatuses = []SessionStatus{
	StatusAvailable,
	StatusRequested,
	StatusScheduled,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []SessionStatus {
	out := make([]SessionStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseSessionStatus accepts the canonical names plus the legacy "booked"
// spelling, which reads as scheduled.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "available":
		return StatusAvailable, nil
	case "requested":
		return StatusRequested, nil
	case "scheduled", "booked":
		return StatusScheduled, nil
	case "confirmed":
		return StatusConfirmed, nil
	case "completed":
		return StatusCompleted, nil
	case "cancelled", "canceled":
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("unknown session status %q", raw)
	}
}

func (s SessionStatus) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Label is the capitalised form used in display titles.
func (s SessionStatus) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

type Session struct {
	ID                 int64         `json:"id"`
	SessionDate        *time.Time    `json:"session_date"`
	EndDate            *time.Time    `json:"end_date,omitempty"`
	Duration           int           `json:"duration"`
	Status             SessionStatus `json:"status"`
	Confirmed          bool          `json:"confirmed"`
	ClientID           *int64        `json:"client_id"`
	TrainerID          *int64        `json:"trainer_id"`
	Location           *string       `json:"location,omitempty"`
	SessionType        *string       `json:"session_type,omitempty"`
	Notes              *string       `json:"notes,omitempty"`
	PrivateNotes       *string       `json:"private_notes,omitempty"`
	BookingDate        *time.Time    `json:"booking_date,omitempty"`
	ConfirmedBy        *int64        `json:"confirmed_by,omitempty"`
	ConfirmationDate   *time.Time    `json:"confirmation_date,omitempty"`
	CompletedBy        *int64        `json:"completed_by,omitempty"`
	CompletionDate     *time.Time    `json:"completion_date,omitempty"`
	CancelledBy        *int64        `json:"cancelled_by,omitempty"`
	CancellationReason *string       `json:"cancellation_reason,omitempty"`
	CancellationDate   *time.Time    `json:"cancellation_date,omitempty"`
	AssignedBy         *int64        `json:"assigned_by,omitempty"`
	AssignedAt         *time.Time    `json:"assigned_at,omitempty"`
	SessionDeducted    bool          `json:"session_deducted"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// EndTime is the stored end date, or the start plus the duration when no end was
// stored. Unscheduled sessions have no end.
func (s *Session) EndTime() *time.Time {
	if s.EndDate != nil {
		end := *s.EndDate
		return &end
	}
	if s.SessionDate == nil {
		return nil
	}
	duration := s.Duration
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	end := s.SessionDate.Add(time.Duration(duration) * time.Minute)
	return &end
}

func (s *Session) HasClient(userID int64) bool {
	return s.ClientID != nil && *s.ClientID == userID
}

func (s *Session) HasTrainer(userID int64) bool {
	return s.TrainerID != nil && *s.TrainerID == userID
}

// SessionView is the read model handed to callers: the stored row plus the
// fields derived on every read.
type SessionView struct {
	Session
	End   *time.Time `json:"end"`
	Title string     `json:"title"`
}

type CancelResult struct {
	ID                 int64         `json:"id"`
	Status             SessionStatus `json:"status"`
	CancelledBy        int64         `json:"cancelled_by"`
	CancellationReason string        `json:"cancellation_reason"`
	CancellationDate   time.Time     `json:"cancellation_date"`
}

type RecurringResult struct {
	Count          int           `json:"count"`
	SampleSessions []SessionView `json:"sample_sessions"`
}

type SessionStats struct {
	Total         int  `json:"total"`
	Available     int  `json:"available"`
	Booked        int  `json:"booked"`
	Completed     int  `json:"completed"`
	Cancelled     int  `json:"cancelled"`
	OwnBooked     *int `json:"own_booked,omitempty"`
	Assigned      *int `json:"assigned,omitempty"`
	TotalClients  *int `json:"total_clients,omitempty"`
	TotalTrainers *int `json:"total_trainers,omitempty"`
}
