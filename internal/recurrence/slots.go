package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidWindow indicates the pattern ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: end date is before start date")

// ErrNoWeekdays indicates the pattern selects no days.
var ErrNoWeekdays = errors.New("recurrence: at least one weekday is required")

// ErrNoTimes indicates the pattern has no start times.
var ErrNoTimes = errors.New("recurrence: at least one start time is required")

// ErrTooManySlots indicates the pattern expands beyond the caller's limit.
var ErrTooManySlots = errors.New("recurrence: pattern produces too many slots")

// ClockTime is a wall clock start time, interpreted in the engine's location.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" in 24 hour form.
func ParseClockTime(raw string) (ClockTime, error) {
	hours, minutes, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("recurrence: time %q must be HH:MM", raw)
	}
	h, err := strconv.Atoi(hours)
	if err != nil || h < 0 || h > 23 {
		return ClockTime{}, fmt.Errorf("recurrence: invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(minutes)
	if err != nil || m < 0 || m > 59 || len(minutes) != 2 {
		return ClockTime{}, fmt.Errorf("recurrence: invalid minute in %q", raw)
	}
	return ClockTime{Hour: h, Minute: m}, nil
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Pattern describes weekly slots between two calendar dates, both inclusive.
// Only the calendar date of StartsOn and EndsOn is used, read in their own
// location.
type Pattern struct {
	StartsOn time.Time
	EndsOn   time.Time
	Weekdays []time.Weekday
	Times    []ClockTime
}

// Engine expands patterns into concrete start instants.
type Engine struct {
	location *time.Location
}

// NewEngine constructs an Engine that reads wall clock times in loc. A nil
// loc means UTC.
func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{location: loc}
}

func (e *Engine) Location() *time.Location {
	return e.location
}

// Expand returns every date x time combination of the pattern that starts
// strictly after notBefore, in chronological order and normalized to UTC.
// A limit above zero caps the number of results; exceeding it is an error
// rather than a silent truncation.
func (e *Engine) Expand(pattern Pattern, notBefore time.Time, limit int) ([]time.Time, error) {
	if len(pattern.Weekdays) == 0 {
		return nil, ErrNoWeekdays
	}
	if len(pattern.Times) == 0 {
		return nil, ErrNoTimes
	}

	loc := e.location
	first := dateOnly(pattern.StartsOn, loc)
	last := dateOnly(pattern.EndsOn, loc)
	if last.Before(first) {
		return nil, ErrInvalidWindow
	}

	weekdaySet := make(map[time.Weekday]struct{}, len(pattern.Weekdays))
	for _, day := range pattern.Weekdays {
		weekdaySet[day] = struct{}{}
	}

	times := append([]ClockTime(nil), pattern.Times...)
	sort.Slice(times, func(i, j int) bool {
		if times[i].Hour != times[j].Hour {
			return times[i].Hour < times[j].Hour
		}
		return times[i].Minute < times[j].Minute
	})

	starts := make([]time.Time, 0)
	seen := make(map[time.Time]struct{})
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if _, ok := weekdaySet[day.Weekday()]; !ok {
			continue
		}
		y, m, d := day.Date()
		for _, clock := range times {
			start := time.Date(y, m, d, clock.Hour, clock.Minute, 0, 0, loc).UTC()
			if !start.After(notBefore) {
				continue
			}
			if _, dup := seen[start]; dup {
				continue
			}
			seen[start] = struct{}{}
			starts = append(starts, start)
			if limit > 0 && len(starts) > limit {
				return nil, fmt.Errorf("%w: more than %d", ErrTooManySlots, limit)
			}
		}
	}

	return starts, nil
}

func dateOnly(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
