package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	redisclient "github.com/hackgods/hospital-scheduling/internal/redis"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

// memLedger is an in-memory Repository. Transactions are serialized and roll
// back on error; inserts enforce the same uniqueness rules as the schema.
type memLedger struct {
	txMu sync.Mutex

	mu           sync.Mutex
	appointments []Appointment
	events       []EventLog
	lastFilter   ListFilter

	// failInserts makes the next n inserts report a write conflict.
	failInserts int
	inserts     int
}

func (m *memLedger) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := append([]Appointment(nil), m.appointments...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.appointments = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memLedger) find(id uuid.UUID) int {
	for i := range m.appointments {
		if m.appointments[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *memLedger) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 {
		return nil, ErrAppointmentNotFound
	}
	a := m.appointments[i]
	return &a, nil
}

func (m *memLedger) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetAppointmentByID(ctx, id)
}

func (m *memLedger) CountActiveInWindow(_ context.Context, doctorID uuid.UUID, date time.Time, w roster.Window) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(clock.DateOf(date)) && a.Status.Active() && w.Contains(a.TimeSlot) {
			n++
		}
	}
	return n, nil
}

func (m *memLedger) DoctorSlotTaken(_ context.Context, doctorID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(clock.DateOf(date)) && a.TimeSlot == slot && a.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) PatientSlotTaken(_ context.Context, patientID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appointments {
		if a.PatientID == patientID && a.Date.Equal(clock.DateOf(date)) && a.TimeSlot == slot && a.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) NextBookingSeq(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := 0
	for _, a := range m.appointments {
		if seq, ok := BookingSeq(a.BookingNo, prefix); ok && seq+1 > next {
			next = seq + 1
		}
	}
	return next, nil
}

// violates reports whether a would break one of the ledger's unique indexes.
func (m *memLedger) violates(a Appointment) bool {
	for _, o := range m.appointments {
		if o.ID == a.ID {
			continue
		}
		if o.BookingNo == a.BookingNo {
			return true
		}
		if o.Status == StatusCancelled || a.Status == StatusCancelled || !o.Date.Equal(a.Date) || o.TimeSlot != a.TimeSlot {
			continue
		}
		if o.DoctorID == a.DoctorID || o.PatientID == a.PatientID {
			return true
		}
	}
	return false
}

func (m *memLedger) InsertAppointment(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if m.failInserts > 0 {
		m.failInserts--
		return ErrWriteConflict
	}
	if m.violates(*a) {
		return ErrWriteConflict
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	m.appointments = append(m.appointments, *a)
	return nil
}

func (m *memLedger) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.find(id)
	if i < 0 || m.appointments[i].Status != from {
		return nil, ErrStatusChanged
	}
	next := m.appointments[i]
	next.Status = to
	if m.violates(next) {
		return nil, ErrWriteConflict
	}
	next.UpdatedAt = time.Now()
	m.appointments[i] = next
	return &next, nil
}

func (m *memLedger) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	a, err := m.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AppointmentDetail{Appointment: *a}, nil
}

func (m *memLedger) ListAppointments(_ context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f

	var matched []AppointmentDetail
	for _, a := range m.appointments {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.From != nil && a.Date.Before(clock.DateOf(*f.From)) {
			continue
		}
		if f.To != nil && a.Date.After(clock.DateOf(*f.To)) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		matched = append(matched, AppointmentDetail{Appointment: a})
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].BookingNo < matched[j].BookingNo })

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return matched[f.Offset:end], total, nil
}

func (m *memLedger) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memLedger) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.EventType)
	}
	return out
}

func (m *memLedger) activeAt(doctorID uuid.UUID, date time.Time, slot clock.TimeOfDay) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(date) && a.TimeSlot == slot && a.Status.Active() {
			n++
		}
	}
	return n
}

func (m *memLedger) setStatus(id uuid.UUID, status AppointmentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.find(id); i >= 0 {
		m.appointments[i].Status = status
	}
}

type memDirectory struct {
	patients map[uuid.UUID]*Patient
	doctors  map[uuid.UUID]*Doctor
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		patients: make(map[uuid.UUID]*Patient),
		doctors:  make(map[uuid.UUID]*Doctor),
	}
}

func (d *memDirectory) addPatient(name string) uuid.UUID {
	id := uuid.New()
	d.patients[id] = &Patient{ID: id, Name: name}
	return id
}

func (d *memDirectory) addDoctor(name, department string) uuid.UUID {
	id := uuid.New()
	dept := department
	d.doctors[id] = &Doctor{ID: id, Name: name, Department: &dept, Status: "active"}
	return id
}

func (d *memDirectory) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (d *memDirectory) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	doc, ok := d.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return doc, nil
}

// memRosters is an in-memory RosterSource.
type memRosters struct {
	mu      sync.Mutex
	entries []roster.Entry
	leaves  []roster.Leave
	err     error
}

func (r *memRosters) add(doctorID uuid.UUID, date time.Time, shift roster.Shift, start, end string, capacity int) roster.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := roster.Entry{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		Date:      date,
		Shift:     shift,
		StartTime: clock.TimeOfDay(start),
		EndTime:   clock.TimeOfDay(end),
		Capacity:  capacity,
		Status:    roster.EntryAvailable,
	}
	r.entries = append(r.entries, e)
	return e
}

func (r *memRosters) status(id uuid.UUID) roster.EntryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e.Status
		}
	}
	return ""
}

func (r *memRosters) EntriesFor(_ context.Context, doctorID uuid.UUID, date time.Time) ([]roster.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []roster.Entry
	for _, e := range r.entries {
		if e.DoctorID == doctorID && e.Date.Equal(clock.DateOf(date)) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRosters) ApprovedLeaveCovering(_ context.Context, doctorID uuid.UUID, date time.Time) ([]roster.Leave, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []roster.Leave
	for _, l := range r.leaves {
		if l.DoctorID == doctorID && l.Status == roster.LeaveApproved && l.Covers(date) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *memRosters) SetEntryStatus(_ context.Context, id uuid.UUID, status roster.EntryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Status = status
			return nil
		}
	}
	return roster.ErrEntryNotFound
}

type busyLocker struct{ calls int }

func (b *busyLocker) WithLocks(context.Context, []string, func(context.Context) error) error {
	b.calls++
	return redisclient.ErrLockNotAcquired
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
	fail error
}

func (p *recordingPublisher) PublishJSON(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return p.fail
}

var errStorage = errors.New("connection refused")
