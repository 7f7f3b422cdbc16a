package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/config"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/obs"
)

var departments = []string{
	"Cardiology",
	"Dermatology",
	"Endocrinology",
	"ENT",
	"General Medicine",
	"Neurology",
	"Ophthalmology",
	"Orthopedics",
	"Pediatrics",
	"Psychiatry",
}

var shifts = []struct {
	name       string
	start, end string
}{
	{"morning", "08:00", "12:00"},
	{"afternoon", "13:00", "17:00"},
	{"evening", "18:00", "21:00"},
}

var leaveTypes = []string{"sick", "annual", "personal", "emergency", "other"}

var leaveReasons = []string{
	"conference attendance",
	"family matter",
	"scheduled vacation",
	"unwell",
	"training course",
}

type seedPlan struct {
	Doctors    int
	Patients   int
	RosterDays int
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogLevel, true).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))
	plan := seedPlan{Doctors: 40, Patients: 5000, RosterDays: 14}

	work := context.Background()
	doctors, err := seedDoctors(work, pool, faker, plan.Doctors, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(work, pool, faker, plan.Patients, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	today := time.Now().In(cfg.Location)
	firstDay := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if err := seedRosters(work, pool, faker, doctors, firstDay, plan.RosterDays, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed rosters")
	}
	if err := seedLeaves(work, pool, faker, doctors, firstDay, plan.RosterDays, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed leaves")
	}

	logger.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) ([]uuid.UUID, error) {
	logger.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		dept := departments[faker.Number(0, len(departments)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, department, title, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 'active', now(), now())
		`, id, "Dr. "+faker.Name(), dept, faker.RandomString([]string{"Attending", "Consultant", "Resident"}))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	logger.Info().Msg("doctors seeded")
	return ids, nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int, logger zerolog.Logger) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			batch.Queue(`
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, uuid.New(), faker.Name(), faker.Email(), faker.Phone())
		}

		if err := pool.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}
		logger.Debug().Int("seeded", end).Int("total", count).Msg("patients batch")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

// seedRosters publishes one to three shifts per doctor per day, Sundays off.
// Roughly one shift in ten carries no hours and so takes no bookings.
func seedRosters(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors []uuid.UUID, firstDay time.Time, days int, logger zerolog.Logger) error {
	logger.Info().Int("doctors", len(doctors)).Int("days", days).Msg("seeding rosters")

	batch := &pgx.Batch{}
	for _, doctorID := range doctors {
		for d := 0; d < days; d++ {
			day := firstDay.AddDate(0, 0, d)
			if day.Weekday() == time.Sunday {
				continue
			}
			for _, s := range shifts {
				if !faker.Bool() && s.name != "morning" {
					continue
				}
				var start, end any = s.start, s.end
				if faker.Number(1, 10) == 1 {
					start, end = nil, nil
				}
				batch.Queue(`
					INSERT INTO roster_entries (id, doctor_id, date, shift, start_time, end_time, capacity, status)
					VALUES ($1, $2, $3, $4, $5, $6, $7, 'available')
					ON CONFLICT (doctor_id, date, shift) DO NOTHING
				`, uuid.New(), doctorID, day, s.name, start, end, faker.Number(4, 20))
			}
		}
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	logger.Info().Int("entries", batch.Len()).Msg("rosters seeded")
	return nil
}

// seedLeaves puts a few doctors on approved leave, half of them covered by a
// substitute, and leaves a couple of pending requests that do not block booking.
func seedLeaves(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctors []uuid.UUID, firstDay time.Time, days int, logger zerolog.Logger) error {
	if len(doctors) < 2 {
		return nil
	}
	count := max(len(doctors)/10, 1)
	logger.Info().Int("count", count).Msg("seeding leaves")

	batch := &pgx.Batch{}
	for i := 0; i < count; i++ {
		doctorID := doctors[faker.Number(0, len(doctors)-1)]
		start := firstDay.AddDate(0, 0, faker.Number(1, days-1))
		end := start.AddDate(0, 0, faker.Number(0, 2))

		status := "approved"
		if i%4 == 3 {
			status = "pending"
		}

		var substitute any
		if i%2 == 0 {
			sub := doctors[faker.Number(0, len(doctors)-1)]
			if sub != doctorID {
				substitute = sub
			}
		}

		batch.Queue(`
			INSERT INTO doctor_leaves (id, doctor_id, leave_type, start_date, end_date, status, reason, substitute_doctor_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New(), doctorID, faker.RandomString(leaveTypes), start, end, status, faker.RandomString(leaveReasons), substitute)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	logger.Info().Msg("leaves seeded")
	return nil
}
