package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

// Directory resolves patients and doctors. Lookups of unknown ids return
// ErrPatientNotFound or ErrDoctorNotFound.
type Directory interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

// Repository is the booking ledger.
type Repository interface {
	// WithTx runs fn against a repository bound to a single transaction,
	// committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetAppointmentForUpdate locks the row until the surrounding transaction ends.
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Conflict checks
	CountActiveInWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, w roster.Window) (int, error)
	DoctorSlotTaken(ctx context.Context, doctorID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error)
	PatientSlotTaken(ctx context.Context, patientID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error)

	// NextBookingSeq serializes callers sharing prefix for the rest of the
	// transaction and returns the sequence after the highest one issued.
	NextBookingSeq(ctx context.Context, prefix string) (int, error)

	// Creation and updates. Both return ErrWriteConflict on a uniqueness violation.
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	// Read-side projections
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
