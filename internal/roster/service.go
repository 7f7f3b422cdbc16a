package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/clock"
)

var (
	ErrDoctorNotFound     = errors.New("doctor not found")
	ErrInvalidShift       = errors.New("invalid shift")
	ErrInvalidWindow      = errors.New("start time must be before end time")
	ErrInvalidCapacity    = errors.New("capacity must be positive")
	ErrInvalidEntryStatus = errors.New("invalid roster entry status")
	ErrWindowOverlap      = errors.New("time window overlaps another roster entry")
	ErrDoctorOnLeave      = errors.New("doctor has approved leave on this date")
	ErrInvalidLeaveRange  = errors.New("leave start date must not be after end date")
	ErrInvalidLeaveType   = errors.New("invalid leave type")
	ErrInvalidLeaveStatus = errors.New("invalid leave status")
	ErrLeaveOverlap       = errors.New("leave overlaps an approved leave")
	ErrSubstituteIsSelf   = errors.New("substitute doctor must differ from the doctor on leave")
)

// Doctors answers whether a doctor exists and is not deleted.
type Doctors interface {
	DoctorExists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	store   Store
	doctors Doctors
	logger  zerolog.Logger
}

func NewService(store Store, doctors Doctors, logger zerolog.Logger) *Service {
	return &Service{
		store:   store,
		doctors: doctors,
		logger:  logger.With().Str("component", "roster").Logger(),
	}
}

func (s *Service) requireDoctor(ctx context.Context, id uuid.UUID) error {
	if s.doctors == nil {
		return nil
	}
	ok, err := s.doctors.DoctorExists(ctx, id)
	if err != nil {
		return fmt.Errorf("load doctor: %w", err)
	}
	if !ok {
		return ErrDoctorNotFound
	}
	return nil
}

// PublishEntry validates and stores a new availability window. A doctor may
// hold one entry per shift per day, and windows on the same day may touch but
// not overlap.
func (s *Service) PublishEntry(ctx context.Context, e *Entry) error {
	if !e.Shift.Valid() {
		return ErrInvalidShift
	}
	if (e.StartTime == "") != (e.EndTime == "") {
		return ErrInvalidWindow
	}
	if e.HasWindow() {
		if _, err := clock.ParseTimeOfDay(string(e.StartTime)); err != nil {
			return err
		}
		if _, err := clock.ParseTimeOfDay(string(e.EndTime)); err != nil {
			return err
		}
		if !e.StartTime.Before(e.EndTime) {
			return ErrInvalidWindow
		}
	}
	if e.Capacity == 0 {
		e.Capacity = DefaultCapacity
	}
	if e.Capacity < 0 {
		return ErrInvalidCapacity
	}
	if e.Status == "" {
		e.Status = EntryAvailable
	}
	if !e.Status.Valid() {
		return ErrInvalidEntryStatus
	}
	e.Date = clock.DateOf(e.Date)

	if err := s.requireDoctor(ctx, e.DoctorID); err != nil {
		return err
	}

	existing, err := s.store.EntriesFor(ctx, e.DoctorID, e.Date)
	if err != nil {
		return fmt.Errorf("load roster entries: %w", err)
	}
	for _, other := range existing {
		if other.Shift == e.Shift {
			return ErrDuplicateShift
		}
		if other.Status == EntryCancelled || !other.HasWindow() || !e.HasWindow() {
			continue
		}
		if other.Window().Overlaps(e.Window()) {
			return fmt.Errorf("%w: %s", ErrWindowOverlap, other.Window())
		}
	}

	leaves, err := s.store.ApprovedLeaveCovering(ctx, e.DoctorID, e.Date)
	if err != nil {
		return fmt.Errorf("load leave: %w", err)
	}
	if len(leaves) > 0 {
		return ErrDoctorOnLeave
	}

	if err := s.store.CreateEntry(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicateShift) {
			return err
		}
		return fmt.Errorf("create roster entry: %w", err)
	}

	s.logger.Info().
		Str("entry_id", e.ID.String()).
		Str("doctor_id", e.DoctorID.String()).
		Str("date", clock.FormatDate(e.Date)).
		Str("shift", string(e.Shift)).
		Int("capacity", e.Capacity).
		Msg("roster entry published")

	return nil
}

// RecordLeave stores a leave interval. Approved leave may not overlap another
// approved leave of the same doctor.
func (s *Service) RecordLeave(ctx context.Context, l *Leave) error {
	if !l.LeaveType.Valid() {
		return ErrInvalidLeaveType
	}
	if l.Status == "" {
		l.Status = LeavePending
	}
	if !l.Status.Valid() {
		return ErrInvalidLeaveStatus
	}
	l.StartDate = clock.DateOf(l.StartDate)
	l.EndDate = clock.DateOf(l.EndDate)
	if l.StartDate.After(l.EndDate) {
		return ErrInvalidLeaveRange
	}
	if l.SubstituteDoctorID != nil && *l.SubstituteDoctorID == l.DoctorID {
		return ErrSubstituteIsSelf
	}

	if err := s.requireDoctor(ctx, l.DoctorID); err != nil {
		return err
	}
	if l.SubstituteDoctorID != nil {
		if err := s.requireDoctor(ctx, *l.SubstituteDoctorID); err != nil {
			return fmt.Errorf("substitute: %w", err)
		}
	}

	if l.Status == LeaveApproved {
		overlapping, err := s.store.ApprovedLeaveOverlapping(ctx, l.DoctorID, l.StartDate, l.EndDate)
		if err != nil {
			return fmt.Errorf("load approved leave: %w", err)
		}
		if len(overlapping) > 0 {
			return ErrLeaveOverlap
		}
	}

	if err := s.store.CreateLeave(ctx, l); err != nil {
		return fmt.Errorf("create leave: %w", err)
	}

	s.logger.Info().
		Str("leave_id", l.ID.String()).
		Str("doctor_id", l.DoctorID.String()).
		Str("type", string(l.LeaveType)).
		Str("status", string(l.Status)).
		Int("days", l.Days()).
		Msg("leave recorded")

	return nil
}

func (s *Service) ListAvailable(ctx context.Context, f AvailableFilter) ([]AvailableEntry, error) {
	if f.Shift != "" && !f.Shift.Valid() {
		return nil, ErrInvalidShift
	}
	entries, err := s.store.ListAvailable(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list available rosters: %w", err)
	}
	return entries, nil
}

func (s *Service) EntriesFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Entry, error) {
	return s.store.EntriesFor(ctx, doctorID, date)
}

func (s *Service) ApprovedLeaveCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Leave, error) {
	return s.store.ApprovedLeaveCovering(ctx, doctorID, date)
}

func (s *Service) SetEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus) error {
	if !status.Valid() {
		return ErrInvalidEntryStatus
	}
	return s.store.SetEntryStatus(ctx, id, status)
}
