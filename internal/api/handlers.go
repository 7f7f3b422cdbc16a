package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/clock"
)

type AppointmentService interface {
	CreateBooking(ctx context.Context, req appointment.CreateRequest) (*appointment.Appointment, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListBookings(ctx context.Context, f appointment.ListFilter) ([]appointment.AppointmentDetail, int, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	ConfirmBooking(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status appointment.AppointmentStatus) (*appointment.Appointment, error)
}

type appointmentHandler struct {
	svc    AppointmentService
	logger zerolog.Logger
}

func (h *appointmentHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	date, err := clock.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}

	appt, err := h.svc.CreateBooking(r.Context(), appointment.CreateRequest{
		PatientID:  uuid.MustParse(req.PatientID),
		DoctorID:   uuid.MustParse(req.DoctorID),
		Date:       date,
		TimeSlot:   req.TimeSlot,
		Department: req.Department,
		Note:       req.Note,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *appointmentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	detail, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *appointmentHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f appointment.ListFilter

	for _, p := range []struct {
		name string
		dst  **uuid.UUID
	}{{"doctor_id", &f.DoctorID}, {"patient_id", &f.PatientID}} {
		if v := q.Get(p.name); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", p.name+" must be a valid UUID")
				return
			}
			*p.dst = &id
		}
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(p.name); v != "" {
			d, err := clock.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", p.name+": "+err.Error())
				return
			}
			*p.dst = &d
		}
	}

	f.Status = appointment.AppointmentStatus(q.Get("status"))

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		if v := q.Get(p.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_input", p.name+" must be an integer")
				return
			}
			*p.dst = n
		}
	}

	items, total, err := h.svc.ListBookings(r.Context(), f)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := AppointmentListResponse{
		Items:  make([]AppointmentResponse, 0, len(items)),
		Total:  total,
		Limit:  clampLimit(f.Limit),
		Offset: max(f.Offset, 0),
	}
	for i := range items {
		resp.Items = append(resp.Items, toDetailResponse(&items[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return appointment.DefaultListLimit
	}
	return min(limit, appointment.MaxListLimit)
}

func (h *appointmentHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.svc.CancelBooking)
}

func (h *appointmentHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.svc.ConfirmBooking)
}

func (h *appointmentHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), id, appointment.AppointmentStatus(req.Status))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentHandler) apply(w http.ResponseWriter, r *http.Request, op func(context.Context, uuid.UUID) (*appointment.Appointment, error)) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	appt, err := op(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}
