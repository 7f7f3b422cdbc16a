package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/appointment"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

type fakeAppointments struct {
	created    appointment.CreateRequest
	createErr  error
	listFilter appointment.ListFilter
	statusErr  error
	cancelled  []uuid.UUID
}

func (f *fakeAppointments) CreateBooking(_ context.Context, req appointment.CreateRequest) (*appointment.Appointment, error) {
	f.created = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &appointment.Appointment{
		ID:        uuid.New(),
		BookingNo: "AP202506010000",
		PatientID: req.PatientID,
		DoctorID:  req.DoctorID,
		Date:      req.Date,
		TimeSlot:  "09:00",
		Status:    appointment.StatusPending,
	}, nil
}

func (f *fakeAppointments) GetBooking(_ context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	return nil, appointment.ErrAppointmentNotFound
}

func (f *fakeAppointments) ListBookings(_ context.Context, filter appointment.ListFilter) ([]appointment.AppointmentDetail, int, error) {
	f.listFilter = filter
	return []appointment.AppointmentDetail{{
		Appointment: appointment.Appointment{ID: uuid.New(), BookingNo: "AP202506010001", Status: appointment.StatusConfirmed},
		PatientName: "Ada",
		DoctorName:  "Dr. Lin",
	}}, 1, nil
}

func (f *fakeAppointments) CancelBooking(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	f.cancelled = append(f.cancelled, id)
	return &appointment.Appointment{ID: id, Status: appointment.StatusCancelled}, nil
}

func (f *fakeAppointments) ConfirmBooking(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return nil, appointment.ErrInvalidTransition
}

func (f *fakeAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status appointment.AppointmentStatus) (*appointment.Appointment, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &appointment.Appointment{ID: id, Status: status}, nil
}

type fakeRosters struct {
	published *roster.Entry
	err       error
}

func (f *fakeRosters) PublishEntry(_ context.Context, e *roster.Entry) error {
	if f.err != nil {
		return f.err
	}
	e.ID = uuid.New()
	if e.Capacity == 0 {
		e.Capacity = roster.DefaultCapacity
	}
	e.Status = roster.EntryAvailable
	f.published = e
	return nil
}

func (f *fakeRosters) RecordLeave(_ context.Context, l *roster.Leave) error {
	if f.err != nil {
		return f.err
	}
	l.ID = uuid.New()
	return nil
}

func (f *fakeRosters) ListAvailable(context.Context, roster.AvailableFilter) ([]roster.AvailableEntry, error) {
	return nil, roster.ErrInvalidShift
}

type fakeBridge struct {
	ids []*uuid.UUID
	err error
}

func (f *fakeBridge) OnMedicationRequestApproved(_ context.Context, id *uuid.UUID) error {
	f.ids = append(f.ids, id)
	return f.err
}

type testServer struct {
	handler http.Handler
	appts   *fakeAppointments
	rosters *fakeRosters
	bridge  *fakeBridge
}

func newTestServer() *testServer {
	ts := &testServer{
		appts:   &fakeAppointments{},
		rosters: &fakeRosters{},
		bridge:  &fakeBridge{},
	}
	ts.handler = NewRouter(RouterConfig{
		Appointments: ts.appts,
		Rosters:      ts.rosters,
		Fulfillment:  ts.bridge,
		Logger:       zerolog.Nop(),
		Env:          "test",
	})
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestCreateAppointment(t *testing.T) {
	ts := newTestServer()
	patient, doctor := uuid.New(), uuid.New()

	rec := ts.do(http.MethodPost, "/appointments", `{"patient_id":"`+patient.String()+`","doctor_id":"`+doctor.String()+`","date":"2025-06-10","time_slot":"09:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}

	var resp AppointmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.BookingNo != "AP202506010000" || resp.Date != "2025-06-10" || resp.Status != "pending" {
		t.Errorf("unexpected response %+v", resp)
	}
	if ts.appts.created.PatientID != patient || !ts.appts.created.Date.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected request passed to service %+v", ts.appts.created)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestCreateAppointment_BadRequests(t *testing.T) {
	ts := newTestServer()
	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "invalid_request_body"},
		{"unknown field", `{"slot_id":"x"}`, "invalid_request_body"},
		{"missing fields", `{}`, "invalid_input"},
		{"bad uuid", `{"patient_id":"p1","doctor_id":"` + uuid.NewString() + `","date":"2025-06-10","time_slot":"09:00"}`, "invalid_input"},
		{"bad date", `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","date":"10/06/2025","time_slot":"09:00"}`, "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/appointments", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if resp := decodeError(t, rec); resp.Error != tt.code {
				t.Errorf("expected %s, got %s", tt.code, resp.Error)
			}
		})
	}
}

func TestCreateAppointment_RejectionMapping(t *testing.T) {
	sub := uuid.New()
	onLeave := *appointment.ErrDoctorOnLeave
	onLeave.SubstituteDoctorID = &sub
	outside := *appointment.ErrOutsideWindow
	outside.Windows = []roster.Window{{Start: "08:00", End: "12:00"}}
	full := *appointment.ErrRosterFull
	full.Booked, full.Capacity = 20, 20

	tests := []struct {
		name   string
		err    error
		status int
		reason string
		check  func(t *testing.T, resp ErrorResponse)
	}{
		{"reference", appointment.ErrPatientNotFound, http.StatusNotFound, "patient_not_found", nil},
		{"validation", appointment.ErrPastDate, http.StatusBadRequest, "past_date", nil},
		{"concurrency", appointment.ErrConcurrentBooking, http.StatusConflict, "concurrent_booking", nil},
		{"storage", errors.New("pool closed"), http.StatusInternalServerError, "internal_error", func(t *testing.T, resp ErrorResponse) {
			if strings.Contains(resp.Details, "pool closed") {
				t.Error("storage cause leaked to client")
			}
		}},
		{"roster full", &full, http.StatusConflict, "roster_full", func(t *testing.T, resp ErrorResponse) {
			if resp.Booked == nil || *resp.Booked != 20 || resp.Capacity == nil || *resp.Capacity != 20 {
				t.Errorf("expected booked/capacity, got %+v", resp)
			}
		}},
		{"outside window", &outside, http.StatusConflict, "outside_window", func(t *testing.T, resp ErrorResponse) {
			if len(resp.Windows) != 1 || resp.Windows[0].End != "12:00" {
				t.Errorf("expected windows, got %+v", resp.Windows)
			}
		}},
		{"on leave", &onLeave, http.StatusConflict, "doctor_on_leave", func(t *testing.T, resp ErrorResponse) {
			if resp.SubstituteDoctorID == nil || *resp.SubstituteDoctorID != sub {
				t.Errorf("expected substitute, got %v", resp.SubstituteDoctorID)
			}
		}},
	}

	body := `{"patient_id":"` + uuid.NewString() + `","doctor_id":"` + uuid.NewString() + `","date":"2025-06-10","time_slot":"09:00"}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.appts.createErr = tt.err

			rec := ts.do(http.MethodPost, "/appointments", body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			resp := decodeError(t, rec)
			if resp.Error != tt.reason {
				t.Errorf("expected reason %s, got %s", tt.reason, resp.Error)
			}
			if tt.check != nil {
				tt.check(t, resp)
			}
		})
	}
}

func TestListAppointments(t *testing.T) {
	ts := newTestServer()
	doctor := uuid.New()

	rec := ts.do(http.MethodGet, "/appointments?doctor_id="+doctor.String()+"&from=2025-06-01&status=confirmed&limit=500", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}

	f := ts.appts.listFilter
	if f.DoctorID == nil || *f.DoctorID != doctor || f.From == nil || f.Status != appointment.StatusConfirmed || f.Limit != 500 {
		t.Errorf("unexpected filter %+v", f)
	}

	var resp AppointmentListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Limit != appointment.MaxListLimit || resp.Items[0].PatientName != "Ada" {
		t.Errorf("unexpected response %+v", resp)
	}

	if rec := ts.do(http.MethodGet, "/appointments?patient_id=nope", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad patient_id, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/appointments?limit=ten", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestAppointmentActions(t *testing.T) {
	ts := newTestServer()
	id := uuid.New()

	if rec := ts.do(http.MethodPost, "/appointments/"+id.String()+"/cancel", ""); rec.Code != http.StatusOK {
		t.Errorf("cancel: expected 200, got %d", rec.Code)
	}
	if len(ts.appts.cancelled) != 1 || ts.appts.cancelled[0] != id {
		t.Errorf("cancel not forwarded: %v", ts.appts.cancelled)
	}

	if rec := ts.do(http.MethodPost, "/appointments/"+id.String()+"/confirm", ""); rec.Code != http.StatusConflict {
		t.Errorf("confirm: expected 409, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/appointments/"+id.String(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("get: expected 404, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/appointments/not-a-uuid/cancel", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id: expected 400, got %d", rec.Code)
	}

	rec := ts.do(http.MethodPatch, "/appointments/"+id.String()+"/status", `{"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}

	ts.appts.statusErr = appointment.ErrInvalidStatus
	rec = ts.do(http.MethodPatch, "/appointments/"+id.String()+"/status", `{"status":"done"}`)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Error != "invalid_status" {
		t.Errorf("expected invalid_status 400, got %d", rec.Code)
	}
}

func TestPublishRoster(t *testing.T) {
	ts := newTestServer()
	doctor := uuid.New()

	rec := ts.do(http.MethodPost, "/rosters", `{"doctor_id":"`+doctor.String()+`","date":"2025-06-10","shift":"morning","start_time":"08:00","end_time":"12:00"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp RosterResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Capacity != roster.DefaultCapacity || resp.StartTime != "08:00" || resp.Status != "available" {
		t.Errorf("unexpected response %+v", resp)
	}

	if rec := ts.do(http.MethodPost, "/rosters", `{"doctor_id":"`+doctor.String()+`","date":"2025-06-10","shift":"night"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown shift, got %d", rec.Code)
	}

	ts.rosters.err = roster.ErrWindowOverlap
	rec = ts.do(http.MethodPost, "/rosters", `{"doctor_id":"`+doctor.String()+`","date":"2025-06-10","shift":"afternoon","start_time":"11:00","end_time":"15:00"}`)
	if rec.Code != http.StatusConflict || decodeError(t, rec).Error != "window_overlap" {
		t.Errorf("expected window_overlap 409, got %d", rec.Code)
	}

	if rec := ts.do(http.MethodGet, "/rosters/available?shift=night", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 from ListAvailable, got %d", rec.Code)
	}
}

func TestRecordLeave(t *testing.T) {
	ts := newTestServer()
	doctor, sub := uuid.New(), uuid.New()

	rec := ts.do(http.MethodPost, "/leaves", `{"doctor_id":"`+doctor.String()+`","leave_type":"annual","start_date":"2025-08-01","end_date":"2025-08-03","status":"approved","substitute_doctor_id":"`+sub.String()+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var resp LeaveResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Days != 3 || resp.SubstituteDoctorID == nil || *resp.SubstituteDoctorID != sub {
		t.Errorf("unexpected response %+v", resp)
	}

	ts.rosters.err = roster.ErrDoctorNotFound
	rec = ts.do(http.MethodPost, "/leaves", `{"doctor_id":"`+doctor.String()+`","leave_type":"sick","start_date":"2025-08-01","end_date":"2025-08-01"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMedicationApproval(t *testing.T) {
	ts := newTestServer()
	id := uuid.New()

	rec := ts.do(http.MethodPost, "/fulfillment/medication-approvals", `{"medication_request_id":"mr-1","appointment_id":"`+id.String()+`"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = ts.do(http.MethodPost, "/fulfillment/medication-approvals", `{"medication_request_id":"mr-2"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 without appointment, got %d", rec.Code)
	}
	if len(ts.bridge.ids) != 2 || ts.bridge.ids[0] == nil || *ts.bridge.ids[0] != id || ts.bridge.ids[1] != nil {
		t.Errorf("unexpected bridge calls %v", ts.bridge.ids)
	}

	ts.bridge.err = errors.New("db down")
	rec = ts.do(http.MethodPost, "/fulfillment/medication-approvals", `{"medication_request_id":"mr-3","appointment_id":"`+id.String()+`"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	down := PingFunc(func(context.Context) error { return errors.New("refused") })
	up := PingFunc(func(context.Context) error { return nil })

	tests := []struct {
		name     string
		postgres Pinger
		redis    Pinger
		code     int
		status   string
	}{
		{"all up", up, up, http.StatusOK, "ok"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"postgres down", down, up, http.StatusServiceUnavailable, "error"},
		{"local locks", up, nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRouter(RouterConfig{Postgres: tt.postgres, Redis: tt.redis, Logger: zerolog.Nop()})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
			if rec.Code != tt.code {
				t.Fatalf("expected %d, got %d", tt.code, rec.Code)
			}
			var resp ReadinessResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.status {
				t.Errorf("expected %s, got %s", tt.status, resp.Status)
			}
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
