package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

// RosterSource is the roster store and leave registry as seen by the booking
// engine. roster.Service satisfies it.
type RosterSource interface {
	EntriesFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]roster.Entry, error)
	ApprovedLeaveCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]roster.Leave, error)
	SetEntryStatus(ctx context.Context, id uuid.UUID, status roster.EntryStatus) error
}

// SlotValidator decides whether a (doctor, date, time) triple is bookable.
// Checks run cheapest first: date sanity, roster existence, window
// membership, then leave.
type SlotValidator struct {
	rosters RosterSource
	clock   clock.Clock
}

func NewSlotValidator(rosters RosterSource, clk clock.Clock) *SlotValidator {
	return &SlotValidator{rosters: rosters, clock: clk}
}

// Validate returns the roster entry whose window contains slot, or a
// *Rejection explaining why the slot cannot be booked.
func (v *SlotValidator) Validate(ctx context.Context, doctorID uuid.UUID, date time.Time, slot clock.TimeOfDay) (*roster.Entry, error) {
	if _, err := clock.ParseTimeOfDay(string(slot)); err != nil {
		return nil, invalidInput(err)
	}

	now := v.clock.Now()
	today := clock.DateOf(now)
	date = clock.DateOf(date)

	if date.Before(today) {
		return nil, ErrPastDate
	}
	if date.Equal(today) && !slot.After(clock.TimeOfDayOf(now)) {
		return nil, ErrPastTime
	}

	entries, err := v.rosters.EntriesFor(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load roster entries: %w", err)
	}

	var live []roster.Entry
	for _, e := range entries {
		if e.Status != roster.EntryCancelled {
			live = append(live, e)
		}
	}
	if len(live) == 0 {
		return nil, ErrNoRoster
	}

	var matched *roster.Entry
	windows := make([]roster.Window, 0, len(live))
	for i := range live {
		if !live[i].HasWindow() {
			continue
		}
		w := live[i].Window()
		windows = append(windows, w)
		if matched == nil && w.Contains(slot) {
			matched = &live[i]
		}
	}
	if matched == nil {
		r := ErrOutsideWindow.with(fmt.Sprintf("%s is outside %v", slot, windows))
		r.Windows = windows
		return nil, r
	}

	leaves, err := v.rosters.ApprovedLeaveCovering(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load leave: %w", err)
	}
	if len(leaves) > 0 {
		r := ErrDoctorOnLeave.with(fmt.Sprintf("doctor is on %s leave %s to %s",
			leaves[0].LeaveType, clock.FormatDate(leaves[0].StartDate), clock.FormatDate(leaves[0].EndDate)))
		for _, l := range leaves {
			if l.SubstituteDoctorID != nil {
				sub := *l.SubstituteDoctorID
				r.SubstituteDoctorID = &sub
				break
			}
		}
		return nil, r
	}

	return matched, nil
}
