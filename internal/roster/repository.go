package roster

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound  = errors.New("roster entry not found")
	ErrDuplicateShift = errors.New("doctor already has a roster entry for this shift")
)

// Store holds roster entries and leave intervals.
type Store interface {
	EntriesFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error)
	// CreateEntry returns ErrDuplicateShift when (doctor, date, shift) is taken.
	CreateEntry(ctx context.Context, e *Entry) error
	SetEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus) error
	ListAvailable(ctx context.Context, f AvailableFilter) ([]AvailableEntry, error)

	ApprovedLeaveCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Leave, error)
	ApprovedLeaveOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Leave, error)
	CreateLeave(ctx context.Context, l *Leave) error
}
