package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/hospital-scheduling/internal/clock"
	"github.com/hackgods/hospital-scheduling/internal/db"
)

type PgStore struct {
	q db.Queryable
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{q: pool}
}

const entryCols = `id, doctor_id, date, shift, start_time, end_time, capacity, status, note, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var start, end *string

	err := row.Scan(
		&e.ID,
		&e.DoctorID,
		&e.Date,
		&e.Shift,
		&start,
		&end,
		&e.Capacity,
		&e.Status,
		&e.Note,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	if start != nil {
		e.StartTime = clock.TimeOfDay(*start)
	}
	if end != nil {
		e.EndTime = clock.TimeOfDay(*end)
	}
	return &e, nil
}

const leaveCols = `id, doctor_id, leave_type, start_date, end_date, status, reason, substitute_doctor_id, created_at, updated_at`

func scanLeave(row pgx.Row) (*Leave, error) {
	var l Leave
	err := row.Scan(
		&l.ID,
		&l.DoctorID,
		&l.LeaveType,
		&l.StartDate,
		&l.EndDate,
		&l.Status,
		&l.Reason,
		&l.SubstituteDoctorID,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func nullableTime(t clock.TimeOfDay) *string {
	if t == "" {
		return nil
	}
	s := string(t)
	return &s
}

func (s *PgStore) EntriesFor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Entry, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+entryCols+`
		FROM roster_entries
		WHERE doctor_id = $1 AND date = $2
		ORDER BY start_time NULLS LAST, shift
	`, doctorID, clock.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query roster entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PgStore) GetEntry(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := s.q.QueryRow(ctx, `SELECT `+entryCols+` FROM roster_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (s *PgStore) CreateEntry(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO roster_entries (id, doctor_id, date, shift, start_time, end_time, capacity, status, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, e.ID, e.DoctorID, clock.DateOf(e.Date), string(e.Shift), nullableTime(e.StartTime), nullableTime(e.EndTime),
		e.Capacity, string(e.Status), e.Note)

	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		if name, ok := db.UniqueViolation(err); ok && name == "roster_entries_doctor_date_shift_key" {
			return ErrDuplicateShift
		}
		return fmt.Errorf("insert roster entry: %w", err)
	}
	return nil
}

func (s *PgStore) SetEntryStatus(ctx context.Context, id uuid.UUID, status EntryStatus) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE roster_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update roster entry status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *PgStore) ListAvailable(ctx context.Context, f AvailableFilter) ([]AvailableEntry, error) {
	query := `
		SELECT r.id, r.doctor_id, r.date, r.shift, r.start_time, r.end_time, r.capacity, r.status, r.note,
		       r.created_at, r.updated_at, d.name, d.department
		FROM roster_entries r
		JOIN doctors d ON d.id = r.doctor_id
		WHERE r.status = 'available'
		  AND d.status = 'active'
		  AND d.deleted_at IS NULL`
	var args []any
	idx := 1

	if f.Date != nil {
		query += fmt.Sprintf(` AND r.date = $%d`, idx)
		args = append(args, clock.DateOf(*f.Date))
		idx++
	}
	if f.Department != "" {
		query += fmt.Sprintf(` AND d.department = $%d`, idx)
		args = append(args, f.Department)
		idx++
	}
	if f.Shift != "" {
		query += fmt.Sprintf(` AND r.shift = $%d`, idx)
		args = append(args, string(f.Shift))
	}
	query += ` ORDER BY r.date, r.start_time NULLS LAST, d.name`

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query available rosters: %w", err)
	}
	defer rows.Close()

	var out []AvailableEntry
	for rows.Next() {
		var a AvailableEntry
		var start, end *string
		if err := rows.Scan(
			&a.ID, &a.DoctorID, &a.Date, &a.Shift, &start, &end, &a.Capacity, &a.Status, &a.Note,
			&a.CreatedAt, &a.UpdatedAt, &a.DoctorName, &a.Department,
		); err != nil {
			return nil, err
		}
		if start != nil {
			a.StartTime = clock.TimeOfDay(*start)
		}
		if end != nil {
			a.EndTime = clock.TimeOfDay(*end)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PgStore) ApprovedLeaveCovering(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Leave, error) {
	return s.ApprovedLeaveOverlapping(ctx, doctorID, date, date)
}

func (s *PgStore) ApprovedLeaveOverlapping(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]Leave, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+leaveCols+`
		FROM doctor_leaves
		WHERE doctor_id = $1
		  AND status = 'approved'
		  AND start_date <= $3
		  AND end_date >= $2
		ORDER BY start_date
	`, doctorID, clock.DateOf(start), clock.DateOf(end))
	if err != nil {
		return nil, fmt.Errorf("query approved leave: %w", err)
	}
	defer rows.Close()

	var out []Leave
	for rows.Next() {
		l, err := scanLeave(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *PgStore) CreateLeave(ctx context.Context, l *Leave) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO doctor_leaves (id, doctor_id, leave_type, start_date, end_date, status, reason, substitute_doctor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, l.ID, l.DoctorID, string(l.LeaveType), clock.DateOf(l.StartDate), clock.DateOf(l.EndDate),
		string(l.Status), l.Reason, l.SubstituteDoctorID)

	if err := row.Scan(&l.CreatedAt, &l.UpdatedAt); err != nil {
		return fmt.Errorf("insert leave: %w", err)
	}
	return nil
}
