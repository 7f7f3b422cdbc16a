package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/roster"
)

// Kind groups rejections by how a caller should react to them.
type Kind string

const (
	KindReference   Kind = "reference"
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindState       Kind = "state"
	KindConcurrency Kind = "concurrency"
	KindStorage     Kind = "storage"
)

// Rejection is the typed result of a refused scheduling operation. Two
// rejections match under errors.Is when their reason codes are equal, so the
// exported sentinels below can be compared against rejections carrying extra
// detail.
type Rejection struct {
	Kind   Kind
	Reason string
	Detail string

	// Windows lists the bookable windows when the time fell outside all of them.
	Windows []roster.Window
	// Booked and Capacity are set for roster_full.
	Booked   int
	Capacity int
	// SubstituteDoctorID is set for doctor_on_leave when the leave names one.
	SubstituteDoctorID *uuid.UUID
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return r.Reason
	}
	return r.Reason + ": " + r.Detail
}

func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Reason == r.Reason
}

func (r *Rejection) with(detail string) *Rejection {
	c := *r
	c.Detail = detail
	return &c
}

var (
	ErrPatientNotFound     = &Rejection{Kind: KindReference, Reason: "patient_not_found", Detail: "patient not found"}
	ErrDoctorNotFound      = &Rejection{Kind: KindReference, Reason: "doctor_not_found", Detail: "doctor not found"}
	ErrAppointmentNotFound = &Rejection{Kind: KindReference, Reason: "appointment_not_found", Detail: "appointment not found"}

	ErrInvalidInput  = &Rejection{Kind: KindValidation, Reason: "invalid_input"}
	ErrInvalidStatus = &Rejection{Kind: KindValidation, Reason: "invalid_status", Detail: "unknown appointment status"}
	ErrPastDate      = &Rejection{Kind: KindValidation, Reason: "past_date", Detail: "appointment date is in the past"}
	ErrPastTime      = &Rejection{Kind: KindValidation, Reason: "past_time", Detail: "appointment time has already passed today"}

	ErrNoRoster             = &Rejection{Kind: KindConflict, Reason: "no_roster", Detail: "doctor has no roster for this date"}
	ErrOutsideWindow        = &Rejection{Kind: KindConflict, Reason: "outside_window", Detail: "time is outside the doctor's roster windows"}
	ErrDoctorOnLeave        = &Rejection{Kind: KindConflict, Reason: "doctor_on_leave", Detail: "doctor is on leave on this date"}
	ErrRosterFull           = &Rejection{Kind: KindConflict, Reason: "roster_full", Detail: "roster is fully booked"}
	ErrDoctorAlreadyBooked  = &Rejection{Kind: KindConflict, Reason: "doctor_already_booked", Detail: "doctor already has an appointment at this time"}
	ErrPatientAlreadyBooked = &Rejection{Kind: KindConflict, Reason: "patient_already_booked", Detail: "patient already has an appointment at this time"}
	ErrSlotTaken            = &Rejection{Kind: KindConflict, Reason: "slot_taken", Detail: "slot is held by another active appointment"}

	ErrAlreadyCancelled      = &Rejection{Kind: KindState, Reason: "already_cancelled", Detail: "appointment is already cancelled"}
	ErrCannotCancelCompleted = &Rejection{Kind: KindState, Reason: "cannot_cancel_completed", Detail: "completed appointments cannot be cancelled"}
	ErrInvalidTransition     = &Rejection{Kind: KindState, Reason: "invalid_transition", Detail: "status transition not allowed"}

	ErrConcurrentBooking = &Rejection{Kind: KindConcurrency, Reason: "concurrent_booking", Detail: "slot is being booked concurrently, please retry"}
	ErrStatusChanged     = &Rejection{Kind: KindConcurrency, Reason: "status_changed", Detail: "appointment status changed concurrently"}

	ErrBookingSequenceExhausted = &Rejection{Kind: KindStorage, Reason: "booking_sequence_exhausted", Detail: "no booking numbers left for today"}
)

// ErrWriteConflict is returned by repositories when a write hits one of the
// ledger's uniqueness constraints.
var ErrWriteConflict = errors.New("appointment write conflict")

// KindOf classifies err. Errors that are not rejections are storage faults.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind
	}
	return KindStorage
}

// ReasonOf returns the machine-readable reason code of err, or "internal".
func ReasonOf(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return "internal"
}

func invalidInput(err error) *Rejection {
	return ErrInvalidInput.with(err.Error())
}

func rosterFull(booked, capacity int) *Rejection {
	r := ErrRosterFull.with(fmt.Sprintf("%d of %d booked, %d remaining", booked, capacity, max(capacity-booked, 0)))
	r.Booked = booked
	r.Capacity = capacity
	return r
}
