package clock

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidTimeOfDay = errors.New("time of day must be HH:MM (24h)")
	ErrInvalidDate      = errors.New("date must be YYYY-MM-DD")
)

// Clock is the source of "now" for date and time comparisons.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

// NewSystemClock returns a wall clock reporting time in loc (UTC when nil).
func NewSystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Fixed is a settable clock, used by tests and the load simulator.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	f.now = now
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// TimeOfDay is a fixed-width HH:MM wall-clock time. Because the width is fixed,
// plain string comparison orders values chronologically.
type TimeOfDay string

var timeOfDayPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ParseTimeOfDay rejects anything that is not a zero-padded 24h HH:MM value.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	return TimeOfDay(s), nil
}

func (t TimeOfDay) String() string { return string(t) }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t < o }

func (t TimeOfDay) After(o TimeOfDay) bool { return t > o }

// Within reports whether t lies in the inclusive range [start, end].
func (t TimeOfDay) Within(start, end TimeOfDay) bool {
	return start <= t && t <= end
}

// TimeOfDayOf truncates t to minute precision.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Format("15:04"))
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOf drops the time-of-day component of t, keeping its calendar date as
// observed in t's own location, and returns it as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// DaysInclusive counts calendar days in [start, end]; zero when end is before start.
func DaysInclusive(start, end time.Time) int {
	s, e := DateOf(start), DateOf(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}
