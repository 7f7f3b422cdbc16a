package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/roster"
)

// PgRepository implements Repository and Directory on Postgres. A repository
// returned to a WithTx callback runs every statement on that transaction.
type PgRepository struct {
	pool *pgxpool.Pool
	q    db.Queryable
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool, q: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.pool == nil {
		// already inside a transaction
		return fn(r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgRepository{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrWriteConflict
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.DeletedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Department,
		&d.Title,
		&d.Status,
		&d.DeletedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const appointmentCols = `id, booking_no, patient_id, doctor_id, date, time_slot, department, status, note, created_at, updated_at`

func appointmentFields(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.BookingNo,
		&a.PatientID,
		&a.DoctorID,
		&a.Date,
		&a.TimeSlot,
		&a.Department,
		&a.Status,
		&a.Note,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentFields(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const detailSelect = `
	SELECT a.id, a.booking_no, a.patient_id, a.doctor_id, a.date, a.time_slot, a.department, a.status,
	       a.note, a.created_at, a.updated_at, p.name, d.name, d.department
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id`

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	dest := append(appointmentFields(&d.Appointment), &d.PatientName, &d.DoctorName, &d.DoctorDepartment)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Directory

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, phone, deleted_at, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, department, title, status, deleted_at, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) DoctorExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM doctors WHERE id = $1 AND deleted_at IS NULL)
	`, id).Scan(&ok)
	return ok, err
}

// Ledger

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

// CountActiveInWindow counts pending and confirmed bookings whose slot falls
// inside w, not every active booking the doctor has that day, so each shift
// of a multi-shift day keeps its own capacity.
func (r *PgRepository) CountActiveInWindow(ctx context.Context, doctorID uuid.UUID, date time.Time, w roster.Window) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND date = $2
		  AND status IN ('pending', 'confirmed')
		  AND time_slot COLLATE "C" BETWEEN $3 AND $4
	`, doctorID, clock.DateOf(date), string(w.Start), string(w.End)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active appointments: %w", err)
	}
	return n, nil
}

func (r *PgRepository) DoctorSlotTaken(ctx context.Context, doctorID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error) {
	var taken bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND time_slot = $3 AND status <> 'cancelled'
		)
	`, doctorID, clock.DateOf(date), string(slot)).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check doctor slot: %w", err)
	}
	return taken, nil
}

func (r *PgRepository) PatientSlotTaken(ctx context.Context, patientID uuid.UUID, date time.Time, slot clock.TimeOfDay) (bool, error) {
	var taken bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND date = $2 AND time_slot = $3 AND status <> 'cancelled'
		)
	`, patientID, clock.DateOf(date), string(slot)).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check patient slot: %w", err)
	}
	return taken, nil
}

func (r *PgRepository) NextBookingSeq(ctx context.Context, prefix string) (int, error) {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, prefix); err != nil {
		return 0, fmt.Errorf("lock booking prefix: %w", err)
	}

	var next int
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(RIGHT(booking_no, 4) AS INTEGER)), -1) + 1
		FROM appointments
		WHERE booking_no LIKE $1::text || '%'
	`, prefix).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("read booking sequence: %w", err)
	}
	return next, nil
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, booking_no, patient_id, doctor_id, date, time_slot, department, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.BookingNo, a.PatientID, a.DoctorID, clock.DateOf(a.Date), string(a.TimeSlot), a.Department, string(a.Status), a.Note)

	if err := row.Scan(&a.CreatedAt, &a.UpdatedAt); err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrWriteConflict
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols,
		id, string(to), string(from))

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrStatusChanged
		}
		if _, ok := db.UniqueViolation(err); ok {
			return nil, ErrWriteConflict
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	return a, nil
}

// Projections

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.q.QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, int, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.DoctorID != nil {
		add("a.doctor_id = $%d", *f.DoctorID)
	}
	if f.PatientID != nil {
		add("a.patient_id = $%d", *f.PatientID)
	}
	if f.From != nil {
		add("a.date >= $%d", clock.DateOf(*f.From))
	}
	if f.To != nil {
		add("a.date <= $%d", clock.DateOf(*f.To))
	}
	if f.Status != "" {
		add("a.status = $%d", string(f.Status))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM appointments a`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count appointments: %w", err)
	}

	query := detailSelect + clause +
		fmt.Sprintf(` ORDER BY a.date DESC, a.time_slot DESC, a.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	rows, err := r.q.Query(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
