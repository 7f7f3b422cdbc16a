package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

type RosterService interface {
	PublishEntry(ctx context.Context, e *roster.Entry) error
	RecordLeave(ctx context.Context, l *roster.Leave) error
	ListAvailable(ctx context.Context, f roster.AvailableFilter) ([]roster.AvailableEntry, error)
}

type FulfillmentBridge interface {
	OnMedicationRequestApproved(ctx context.Context, appointmentID *uuid.UUID) error
}

type rosterHandler struct {
	svc    RosterService
	logger zerolog.Logger
}

func (h *rosterHandler) publish(w http.ResponseWriter, r *http.Request) {
	var req CreateRosterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	date, err := clock.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	e := &roster.Entry{
		DoctorID:  uuid.MustParse(req.DoctorID),
		Date:      date,
		Shift:     roster.Shift(req.Shift),
		StartTime: clock.TimeOfDay(req.StartTime),
		EndTime:   clock.TimeOfDay(req.EndTime),
		Capacity:  req.Capacity,
		Status:    roster.EntryStatus(req.Status),
		Note:      req.Note,
	}
	if err := h.svc.PublishEntry(r.Context(), e); err != nil {
		writeRosterError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRosterResponse(e))
}

func (h *rosterHandler) available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := roster.AvailableFilter{
		Department: q.Get("department"),
		Shift:      roster.Shift(q.Get("shift")),
	}
	if v := q.Get("date"); v != "" {
		d, err := clock.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
			return
		}
		f.Date = &d
	}

	entries, err := h.svc.ListAvailable(r.Context(), f)
	if err != nil {
		writeRosterError(w, h.logger, err)
		return
	}

	resp := make([]RosterResponse, 0, len(entries))
	for i := range entries {
		item := toRosterResponse(&entries[i].Entry)
		item.DoctorName = entries[i].DoctorName
		item.Department = entries[i].Department
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *rosterHandler) recordLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	start, err := clock.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	end, err := clock.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	l := &roster.Leave{
		DoctorID:  uuid.MustParse(req.DoctorID),
		LeaveType: roster.LeaveType(req.LeaveType),
		StartDate: start,
		EndDate:   end,
		Status:    roster.LeaveStatus(req.Status),
		Reason:    req.Reason,
	}
	if req.SubstituteDoctorID != nil && *req.SubstituteDoctorID != "" {
		sub, err := uuid.Parse(*req.SubstituteDoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "substitute_doctor_id must be a valid UUID")
			return
		}
		l.SubstituteDoctorID = &sub
	}

	if err := h.svc.RecordLeave(r.Context(), l); err != nil {
		writeRosterError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toLeaveResponse(l))
}

type fulfillmentHandler struct {
	bridge FulfillmentBridge
	logger zerolog.Logger
}

func (h *fulfillmentHandler) medicationApproved(w http.ResponseWriter, r *http.Request) {
	var req MedicationApprovalRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	var apptID *uuid.UUID
	if req.AppointmentID != nil && *req.AppointmentID != "" {
		id, err := uuid.Parse(*req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_input", "appointment_id must be a valid UUID")
			return
		}
		apptID = &id
	}

	if err := h.bridge.OnMedicationRequestApproved(r.Context(), apptID); err != nil {
		h.logger.Error().Err(err).Str("medication_request_id", req.MedicationRequestID).Msg("medication approval cascade failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
