package roster

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
)

type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftEvening   Shift = "evening"
)

func (s Shift) Valid() bool {
	switch s {
	case ShiftMorning, ShiftAfternoon, ShiftEvening:
		return true
	}
	return false
}

type EntryStatus string

const (
	EntryAvailable EntryStatus = "available"
	EntryFull      EntryStatus = "full"
	EntryCancelled EntryStatus = "cancelled"
)

func (s EntryStatus) Valid() bool {
	switch s {
	case EntryAvailable, EntryFull, EntryCancelled:
		return true
	}
	return false
}

type LeaveType string

const (
	LeaveSick      LeaveType = "sick"
	LeaveAnnual    LeaveType = "annual"
	LeavePersonal  LeaveType = "personal"
	LeaveEmergency LeaveType = "emergency"
	LeaveOther     LeaveType = "other"
)

func (t LeaveType) Valid() bool {
	switch t {
	case LeaveSick, LeaveAnnual, LeavePersonal, LeaveEmergency, LeaveOther:
		return true
	}
	return false
}

type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

func (s LeaveStatus) Valid() bool {
	switch s {
	case LeavePending, LeaveApproved, LeaveRejected, LeaveCancelled:
		return true
	}
	return false
}

const DefaultCapacity = 20

// Window is a bookable wall-clock range, inclusive at both ends.
type Window struct {
	Start clock.TimeOfDay `json:"start"`
	End   clock.TimeOfDay `json:"end"`
}

func (w Window) Contains(t clock.TimeOfDay) bool {
	return t.Within(w.Start, w.End)
}

// Overlaps reports whether two windows share any minute other than a
// touching boundary (08:00-12:00 and 12:00-14:00 do not overlap).
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

func (w Window) String() string {
	return string(w.Start) + "-" + string(w.End)
}

// Entry is one published availability window for a doctor on a date.
type Entry struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	Shift     Shift
	StartTime clock.TimeOfDay // empty when the roster only names a shift
	EndTime   clock.TimeOfDay
	Capacity  int
	Status    EntryStatus
	Note      *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasWindow is false for shift-only entries, which can never match a time slot.
func (e Entry) HasWindow() bool {
	return e.StartTime != "" && e.EndTime != ""
}

func (e Entry) Window() Window {
	return Window{Start: e.StartTime, End: e.EndTime}
}

// Leave is a doctor's absence over an inclusive date range.
type Leave struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	LeaveType          LeaveType
	StartDate          time.Time
	EndDate            time.Time
	Status             LeaveStatus
	Reason             *string
	SubstituteDoctorID *uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (l Leave) Covers(date time.Time) bool {
	d := clock.DateOf(date)
	return !d.Before(clock.DateOf(l.StartDate)) && !d.After(clock.DateOf(l.EndDate))
}

func (l Leave) Days() int {
	return clock.DaysInclusive(l.StartDate, l.EndDate)
}

// AvailableEntry is the read-side projection of an entry for callers browsing
// open rosters.
type AvailableEntry struct {
	Entry
	DoctorName string
	Department *string
}

type AvailableFilter struct {
	Date       *time.Time
	Department string
	Shift      Shift
}
