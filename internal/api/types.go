package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

type CreateAppointmentRequest struct {
	PatientID  string  `json:"patient_id" validate:"required,uuid"`
	DoctorID   string  `json:"doctor_id" validate:"required,uuid"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot   string  `json:"time_slot" validate:"required"`
	Department string  `json:"department" validate:"max=100"`
	Note       *string `json:"note" validate:"omitempty,max=1000"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	BookingNo   string    `json:"booking_no"`
	PatientID   uuid.UUID `json:"patient_id"`
	PatientName string    `json:"patient_name,omitempty"`
	DoctorID    uuid.UUID `json:"doctor_id"`
	DoctorName  string    `json:"doctor_name,omitempty"`
	Date        string    `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	Department  string    `json:"department"`
	Status      string    `json:"status"`
	Note        *string   `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:         a.ID,
		BookingNo:  a.BookingNo,
		PatientID:  a.PatientID,
		DoctorID:   a.DoctorID,
		Date:       clock.FormatDate(a.Date),
		TimeSlot:   string(a.TimeSlot),
		Department: a.Department,
		Status:     string(a.Status),
		Note:       a.Note,
		CreatedAt:  a.CreatedAt,
	}
}

func toDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	resp.PatientName = d.PatientName
	resp.DoctorName = d.DoctorName
	return resp
}

type AppointmentListResponse struct {
	Items  []AppointmentResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type CreateRosterRequest struct {
	DoctorID  string  `json:"doctor_id" validate:"required,uuid"`
	Date      string  `json:"date" validate:"required,datetime=2006-01-02"`
	Shift     string  `json:"shift" validate:"required,oneof=morning afternoon evening"`
	StartTime string  `json:"start_time" validate:"required_with=EndTime"`
	EndTime   string  `json:"end_time" validate:"required_with=StartTime"`
	Capacity  int     `json:"capacity" validate:"gte=0"`
	Status    string  `json:"status" validate:"omitempty,oneof=available full cancelled"`
	Note      *string `json:"note" validate:"omitempty,max=1000"`
}

type RosterResponse struct {
	ID         uuid.UUID `json:"id"`
	DoctorID   uuid.UUID `json:"doctor_id"`
	DoctorName string    `json:"doctor_name,omitempty"`
	Department *string   `json:"department,omitempty"`
	Date       string    `json:"date"`
	Shift      string    `json:"shift"`
	StartTime  string    `json:"start_time,omitempty"`
	EndTime    string    `json:"end_time,omitempty"`
	Capacity   int       `json:"capacity"`
	Status     string    `json:"status"`
	Note       *string   `json:"note,omitempty"`
}

func toRosterResponse(e *roster.Entry) RosterResponse {
	return RosterResponse{
		ID:        e.ID,
		DoctorID:  e.DoctorID,
		Date:      clock.FormatDate(e.Date),
		Shift:     string(e.Shift),
		StartTime: string(e.StartTime),
		EndTime:   string(e.EndTime),
		Capacity:  e.Capacity,
		Status:    string(e.Status),
		Note:      e.Note,
	}
}

type CreateLeaveRequest struct {
	DoctorID           string  `json:"doctor_id" validate:"required,uuid"`
	LeaveType          string  `json:"leave_type" validate:"required,oneof=sick annual personal emergency other"`
	StartDate          string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	Status             string  `json:"status" validate:"omitempty,oneof=pending approved rejected cancelled"`
	Reason             *string `json:"reason" validate:"omitempty,max=1000"`
	SubstituteDoctorID *string `json:"substitute_doctor_id" validate:"omitempty,uuid"`
}

type LeaveResponse struct {
	ID                 uuid.UUID  `json:"id"`
	DoctorID           uuid.UUID  `json:"doctor_id"`
	LeaveType          string     `json:"leave_type"`
	StartDate          string     `json:"start_date"`
	EndDate            string     `json:"end_date"`
	Days               int        `json:"days"`
	Status             string     `json:"status"`
	Reason             *string    `json:"reason,omitempty"`
	SubstituteDoctorID *uuid.UUID `json:"substitute_doctor_id,omitempty"`
}

func toLeaveResponse(l *roster.Leave) LeaveResponse {
	return LeaveResponse{
		ID:                 l.ID,
		DoctorID:           l.DoctorID,
		LeaveType:          string(l.LeaveType),
		StartDate:          clock.FormatDate(l.StartDate),
		EndDate:            clock.FormatDate(l.EndDate),
		Days:               l.Days(),
		Status:             string(l.Status),
		Reason:             l.Reason,
		SubstituteDoctorID: l.SubstituteDoctorID,
	}
}

type MedicationApprovalRequest struct {
	MedicationRequestID string  `json:"medication_request_id" validate:"required"`
	AppointmentID       *string `json:"appointment_id" validate:"omitempty,uuid"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`

	Windows            []roster.Window `json:"windows,omitempty"`
	Booked             *int            `json:"booked,omitempty"`
	Capacity           *int            `json:"capacity,omitempty"`
	SubstituteDoctorID *uuid.UUID      `json:"substitute_doctor_id,omitempty"`
}
