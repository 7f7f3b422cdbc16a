package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// transitions lists the legal moves out of each status. completed and
// cancelled are terminal.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCompleted, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: nil,
}

func (s AppointmentStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Active statuses hold a slot and count against roster capacity.
func (s AppointmentStatus) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID         uuid.UUID
	Name       string
	Department *string
	Title      *string
	Status     string
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID         uuid.UUID
	BookingNo  string
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time
	TimeSlot   clock.TimeOfDay
	Department string
	Status     AppointmentStatus
	Note       *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// AppointmentDetail is the read-side view of an appointment with display
// names joined in. Nothing on the write path depends on it.
type AppointmentDetail struct {
	Appointment
	PatientName      string
	DoctorName       string
	DoctorDepartment *string
}

type CreateRequest struct {
	PatientID  uuid.UUID
	DoctorID   uuid.UUID
	Date       time.Time
	TimeSlot   string
	Department string
	Note       *string
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type ListFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	From      *time.Time
	To        *time.Time
	Status    AppointmentStatus
	Limit     int
	Offset    int
}
