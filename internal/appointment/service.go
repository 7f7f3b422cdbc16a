package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/config"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed     = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled     = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted     = "APPOINTMENT_COMPLETED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

// Routing keys for appointment events on the appointment exchange.
const (
	RKAppointmentCreated   = "appointment.created"
	RKAppointmentCancelled = "appointment.cancelled"
	RKAppointmentCompleted = "appointment.completed"
)

const (
	retryBaseDelay = 20 * time.Millisecond
	retryMaxDelay  = 500 * time.Millisecond
)

// Publisher emits appointment events to the message bus.
type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

type Service struct {
	repo      Repository
	dir       Directory
	rosters   RosterSource
	validator *SlotValidator
	locker    redisclient.Locker
	clock     clock.Clock
	cfg       config.Config
	logger    zerolog.Logger
	tracer    trace.Tracer
	publisher Publisher
}

func NewService(repo Repository, dir Directory, rosters RosterSource, locker redisclient.Locker, clk clock.Clock, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		dir:       dir,
		rosters:   rosters,
		validator: NewSlotValidator(rosters, clk),
		locker:    locker,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.With().Str("component", "appointment").Logger(),
		tracer:    otel.Tracer("github.com/hackgods/hospital-scheduling/internal/appointment"),
	}
}

// WithPublisher makes the service emit appointment events after each commit.
func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("rejection.reason", ReasonOf(err)))
		if KindOf(err) == KindStorage {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// CreateBooking reserves a slot for a patient. Validation runs first; the
// capacity and conflict checks, the booking number and the insert then run
// under the doctor-day and patient-slot locks inside one transaction.
// Concurrent writers detected there are retried with jittered backoff.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.CreateBooking", trace.WithAttributes(
		attribute.String("doctor.id", req.DoctorID.String()),
		attribute.String("patient.id", req.PatientID.String()),
		attribute.String("slot", req.TimeSlot),
	))
	defer func() { endSpan(span, err) }()

	slot, err := clock.ParseTimeOfDay(req.TimeSlot)
	if err != nil {
		return nil, invalidInput(err)
	}
	if req.Date.IsZero() {
		return nil, ErrInvalidInput.with("date is required")
	}
	date := clock.DateOf(req.Date)

	patient, err := s.dir.GetPatientByID(ctx, req.PatientID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient.DeletedAt != nil {
		return nil, ErrPatientNotFound
	}

	doctor, err := s.dir.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.DeletedAt != nil {
		return nil, ErrDoctorNotFound
	}

	entry, err := s.validator.Validate(ctx, doctor.ID, date, slot)
	if err != nil {
		return nil, err
	}

	department := req.Department
	if department == "" && doctor.Department != nil {
		department = *doctor.Department
	}

	candidate := Appointment{
		PatientID:  patient.ID,
		DoctorID:   doctor.ID,
		Date:       date,
		TimeSlot:   slot,
		Department: department,
		Status:     StatusPending,
		Note:       req.Note,
	}

	var booked int
	attempts := s.cfg.BookingRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		appt, booked, err = s.book(ctx, candidate, entry)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrentBooking) {
			return nil, err
		}
		s.logger.Debug().
			Int("attempt", attempt+1).
			Str("doctor_id", doctor.ID.String()).
			Str("slot", string(slot)).
			Msg("concurrent booking detected, retrying")
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("booking.no", appt.BookingNo))

	s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
		"booking_no": appt.BookingNo,
		"patient_id": appt.PatientID.String(),
		"doctor_id":  appt.DoctorID.String(),
		"date":       clock.FormatDate(appt.Date),
		"time_slot":  string(appt.TimeSlot),
		"roster_id":  entry.ID.String(),
	})
	s.publish(ctx, RKAppointmentCreated, appt)

	if booked >= entry.Capacity && entry.Status == roster.EntryAvailable {
		if err := s.rosters.SetEntryStatus(ctx, entry.ID, roster.EntryFull); err != nil {
			s.logger.Warn().Err(err).Str("roster_id", entry.ID.String()).Msg("failed to mark roster entry full")
		}
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("booking_no", appt.BookingNo).
		Str("doctor_id", appt.DoctorID.String()).
		Str("date", clock.FormatDate(appt.Date)).
		Str("slot", string(appt.TimeSlot)).
		Msg("appointment booked")

	return appt, nil
}

// book runs one locked, transactional booking attempt and returns the new
// appointment with the window's active count including it.
func (s *Service) book(ctx context.Context, candidate Appointment, entry *roster.Entry) (*Appointment, int, error) {
	keys := []string{
		redisclient.DoctorDayKey(candidate.DoctorID, candidate.Date),
		redisclient.PatientSlotKey(candidate.PatientID, candidate.Date, string(candidate.TimeSlot)),
	}

	var created *Appointment
	var booked int

	err := s.locker.WithLocks(ctx, keys, func(lockCtx context.Context) error {
		return s.repo.WithTx(lockCtx, func(tx Repository) error {
			count, err := tx.CountActiveInWindow(lockCtx, candidate.DoctorID, candidate.Date, entry.Window())
			if err != nil {
				return err
			}
			if count >= entry.Capacity {
				return rosterFull(count, entry.Capacity)
			}

			taken, err := tx.DoctorSlotTaken(lockCtx, candidate.DoctorID, candidate.Date, candidate.TimeSlot)
			if err != nil {
				return err
			}
			if taken {
				return ErrDoctorAlreadyBooked
			}

			taken, err = tx.PatientSlotTaken(lockCtx, candidate.PatientID, candidate.Date, candidate.TimeSlot)
			if err != nil {
				return err
			}
			if taken {
				return ErrPatientAlreadyBooked
			}

			prefix := BookingPrefix(s.clock.Now())
			seq, err := tx.NextBookingSeq(lockCtx, prefix)
			if err != nil {
				return err
			}
			no, err := FormatBookingNo(prefix, seq)
			if err != nil {
				return err
			}

			a := candidate
			a.ID = uuid.New()
			a.BookingNo = no
			if err := tx.InsertAppointment(lockCtx, &a); err != nil {
				return err
			}

			created = &a
			booked = count + 1
			return nil
		})
	})

	switch {
	case err == nil:
		return created, booked, nil
	case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, ErrWriteConflict):
		return nil, 0, ErrConcurrentBooking
	}

	var rej *Rejection
	if errors.As(err, &rej) {
		return nil, 0, err
	}
	return nil, 0, fmt.Errorf("book appointment: %w", err)
}

func sleepBackoff(ctx context.Context, attempt int) error {
	base := retryBaseDelay << min(attempt-1, 5)
	base = min(base, retryMaxDelay)
	delay := base/2 + rand.N(base)

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// transition moves an appointment to a new status inside one transaction.
// check sees the row as locked by the transaction and may refuse the move.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to AppointmentStatus, check func(*Appointment) error) (before AppointmentStatus, updated *Appointment, err error) {
	err = s.repo.WithTx(ctx, func(tx Repository) error {
		current, err := tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := check(current); err != nil {
			return err
		}

		before = current.Status
		if current.Status == to {
			updated = current
			return nil
		}

		updated, err = tx.UpdateAppointmentStatus(ctx, id, current.Status, to)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrWriteConflict) {
			return "", nil, ErrSlotTaken
		}
		var rej *Rejection
		if errors.As(err, &rej) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("update appointment %s: %w", id, err)
	}
	return before, updated, nil
}

// CancelBooking cancels a pending or confirmed appointment and frees its slot.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (appt *Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointment.CancelBooking", trace.WithAttributes(
		attribute.String("appointment.id", id.String()),
	))
	defer func() { endSpan(span, err) }()

	before, appt, err := s.transition(ctx, id, StatusCancelled, func(a *Appointment) error {
		switch a.Status {
		case StatusCancelled:
			return ErrAlreadyCancelled
		case StatusCompleted:
			return ErrCannotCancelCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{
		"from": string(before),
	})
	s.publish(ctx, RKAppointmentCancelled, appt)
	s.reopenRoster(ctx, appt)

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("booking_no", appt.BookingNo).
		Msg("appointment cancelled")

	return appt, nil
}

// ConfirmBooking moves a pending appointment to confirmed.
func (s *Service) ConfirmBooking(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	_, appt, err := s.transition(ctx, id, StatusConfirmed, func(a *Appointment) error {
		if !a.Status.CanTransitionTo(StatusConfirmed) {
			return ErrInvalidTransition.with(fmt.Sprintf("cannot confirm a %s appointment", a.Status))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentConfirmed, map[string]any{})
	return appt, nil
}

// UpdateStatus sets any status without transition checks. It exists for
// front-desk corrections; automated callers use CancelBooking or
// ConfirmBooking instead.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus.with(fmt.Sprintf("unknown status %q", status))
	}

	before, appt, err := s.transition(ctx, id, status, func(*Appointment) error { return nil })
	if err != nil {
		return nil, err
	}

	if before != status {
		s.logEvent(ctx, appt.ID, EventAppointmentStatusChanged, map[string]any{
			"from": string(before),
			"to":   string(status),
		})
		if status == StatusCancelled {
			s.reopenRoster(ctx, appt)
		}
		s.logger.Warn().
			Str("appointment_id", appt.ID.String()).
			Str("from", string(before)).
			Str("to", string(status)).
			Msg("appointment status overridden")
	}
	return appt, nil
}

// CompleteIfActive completes a pending or confirmed appointment. It reports
// whether the status changed; completed and cancelled appointments are left
// untouched.
func (s *Service) CompleteIfActive(ctx context.Context, id uuid.UUID) (*Appointment, bool, error) {
	before, appt, err := s.transition(ctx, id, StatusCompleted, func(a *Appointment) error {
		if a.Status.Terminal() {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
		"from": string(before),
	})
	s.publish(ctx, RKAppointmentCompleted, appt)
	return appt, true, nil
}

var errNoChange = errors.New("appointment already terminal")

func (s *Service) reopenRoster(ctx context.Context, appt *Appointment) {
	entries, err := s.rosters.EntriesFor(ctx, appt.DoctorID, appt.Date)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to load roster for reopen")
		return
	}
	for _, e := range entries {
		if e.Status != roster.EntryFull || !e.HasWindow() || !e.Window().Contains(appt.TimeSlot) {
			continue
		}
		if err := s.rosters.SetEntryStatus(ctx, e.ID, roster.EntryAvailable); err != nil {
			s.logger.Warn().Err(err).Str("roster_id", e.ID.String()).Msg("failed to reopen roster entry")
		}
		return
	}
}

// GetBooking retrieves one appointment with patient and doctor names.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListBookings returns a page of appointments matching f and the total
// number of matches.
func (s *Service) ListBookings(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, ErrInvalidStatus.with(fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return nil, 0, ErrInvalidInput.with("from must not be after to")
	}

	items, total, err := s.repo.ListAppointments(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	return items, total, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// AppointmentEvent is the message body published for appointment.* keys.
type AppointmentEvent struct {
	Event   string          `json:"event"`
	Version int             `json:"version"`
	Data    AppointmentData `json:"data"`
}

type AppointmentData struct {
	AppointmentID string `json:"appointment_id"`
	BookingNo     string `json:"booking_no"`
	PatientID     string `json:"patient_id"`
	DoctorID      string `json:"doctor_id"`
	Date          string `json:"date"`
	TimeSlot      string `json:"time_slot"`
	Status        string `json:"status"`
}

func (s *Service) publish(ctx context.Context, key string, a *Appointment) {
	if s.publisher == nil {
		return
	}
	evt := AppointmentEvent{
		Event:   key,
		Version: 1,
		Data: AppointmentData{
			AppointmentID: a.ID.String(),
			BookingNo:     a.BookingNo,
			PatientID:     a.PatientID.String(),
			DoctorID:      a.DoctorID.String(),
			Date:          clock.FormatDate(a.Date),
			TimeSlot:      string(a.TimeSlot),
			Status:        string(a.Status),
		},
	}
	if err := s.publisher.PublishJSON(ctx, key, evt); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Str("appointment_id", a.ID.String()).Msg("failed to publish appointment event")
	}
}
