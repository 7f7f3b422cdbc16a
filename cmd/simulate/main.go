package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-scheduling/internal/config"
	"github.com/hackgods/hospital-scheduling/internal/db"
	"github.com/hackgods/hospital-scheduling/internal/obs"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ConfirmRatio float64
	ReadRatio    float64
	PatientLimit int
	RosterLimit  int
	SlotStep     time.Duration
}

type rosterWindow struct {
	DoctorID uuid.UUID
	Date     time.Time
	Start    time.Time // clock time on the zero date
	End      time.Time
	Capacity int
}

// slots lists every step-aligned HH:MM in the window.
func (w rosterWindow) slots(step time.Duration) []string {
	var out []string
	for t := w.Start; !t.After(w.End); t = t.Add(step) {
		out = append(out, t.Format("15:04"))
	}
	return out
}

type DataPool struct {
	Patients []uuid.UUID
	Rosters  []rosterWindow

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.IntN(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total    int64
	Success  int64
	Conflict int64
	Error    int64

	mu        sync.Mutex
	latencies []time.Duration
	reasons   map[string]int
}

func (om *OperationMetrics) Record(latency time.Duration, status int, reason string) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	if reason != "" {
		if om.reasons == nil {
			om.reasons = make(map[string]int)
		}
		om.reasons[reason]++
	}
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, maxLat time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.latencies) == 0 {
		return 0, 0, 0, 0
	}
	latencies := append([]time.Duration(nil), om.latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking      OperationMetrics
	Cancel       OperationMetrics
	Confirm      OperationMetrics
	ReadByID     OperationMetrics
	ListByDoctor OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(baseCfg.LogLevel, true).With().Str("service", "simulate").Logger()

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulator config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4, 1)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg, baseCfg.Location)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().Int("patients", len(dataPool.Patients)).Int("rosters", len(dataPool.Rosters)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	auditCtx, cancelAudit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAudit()
	if err := audit(auditCtx, pgPool); err != nil {
		logger.Error().Err(err).Msg("ledger audit failed")
		os.Exit(1)
	}
	logger.Info().Msg("ledger audit passed")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.1),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.15),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.25),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		RosterLimit:  getInt("SIM_ROSTER_LIMIT", 200),
		SlotStep:     getDuration("SIM_SLOT_STEP", 15*time.Minute),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotStep < time.Minute {
		return fmt.Errorf("SIM_SLOT_STEP must be at least 1m")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, loc *time.Location) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `SELECT id FROM patients WHERE deleted_at IS NULL LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dataPool.Patients = append(dataPool.Patients, id)
	}
	rows.Close()

	// Future windowed rosters only; today's may already be in the past.
	today := time.Now().In(loc).Format("2006-01-02")
	rows, err = pool.Query(ctx, `
		SELECT r.doctor_id, r.date, r.start_time, r.end_time, r.capacity
		FROM roster_entries r
		JOIN doctors d ON d.id = r.doctor_id AND d.deleted_at IS NULL
		WHERE r.status = 'available'
		  AND r.start_time IS NOT NULL AND r.end_time IS NOT NULL
		  AND r.date > $1::date
		ORDER BY r.date
		LIMIT $2
	`, today, cfg.RosterLimit)
	if err != nil {
		return nil, fmt.Errorf("load rosters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w rosterWindow
		var start, end string
		if err := rows.Scan(&w.DoctorID, &w.Date, &start, &end, &w.Capacity); err != nil {
			return nil, err
		}
		if w.Start, err = time.Parse("15:04", start); err != nil {
			return nil, fmt.Errorf("roster start %q: %w", start, err)
		}
		if w.End, err = time.Parse("15:04", end); err != nil {
			return nil, fmt.Errorf("roster end %q: %w", end, err)
		}
		dataPool.Rosters = append(dataPool.Rosters, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dataPool.Rosters) == 0 {
		return nil, fmt.Errorf("no future rosters loaded, run cmd/seed first")
	}
	return dataPool, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
	c := s.config

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < c.BookingRatio:
			s.doBooking(ctx, rng)
		case r < c.BookingRatio+c.CancelRatio:
			s.doAction(ctx, rng, "cancel", &s.metrics.Cancel)
		case r < c.BookingRatio+c.CancelRatio+c.ConfirmRatio:
			s.doAction(ctx, rng, "confirm", &s.metrics.Confirm)
		default:
			if rng.IntN(2) == 0 {
				s.doReadByID(ctx, rng)
			} else {
				s.doListByDoctor(ctx, rng)
			}
		}
	}
}

// call performs one request and returns the status and the error reason code, if any.
func (s *Simulator) call(ctx context.Context, method, path string, body any, out any) (int, string) {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return 0, "request_build"
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "transport"
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, e.Error
	}
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, ""
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	w := s.pool.Rosters[rng.IntN(len(s.pool.Rosters))]
	slots := w.slots(s.config.SlotStep)
	patientID := s.pool.Patients[rng.IntN(len(s.pool.Patients))]

	start := time.Now()
	var created struct {
		ID uuid.UUID `json:"id"`
	}
	status, reason := s.call(ctx, http.MethodPost, "/appointments", map[string]string{
		"patient_id": patientID.String(),
		"doctor_id":  w.DoctorID.String(),
		"date":       w.Date.Format("2006-01-02"),
		"time_slot":  slots[rng.IntN(len(slots))],
	}, &created)
	if ctx.Err() != nil {
		return
	}
	s.metrics.Booking.Record(time.Since(start), status, reason)

	if status == http.StatusCreated && created.ID != uuid.Nil {
		s.pool.AddAppointment(created.ID)
	}
}

func (s *Simulator) doAction(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, reason := s.call(ctx, http.MethodPost, "/appointments/"+id.String()+"/"+action, nil, nil)
	if ctx.Err() != nil {
		return
	}
	om.Record(time.Since(start), status, reason)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}
	start := time.Now()
	status, reason := s.call(ctx, http.MethodGet, "/appointments/"+id.String(), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ReadByID.Record(time.Since(start), status, reason)
}

func (s *Simulator) doListByDoctor(ctx context.Context, rng *rand.Rand) {
	w := s.pool.Rosters[rng.IntN(len(s.pool.Rosters))]
	day := w.Date.Format("2006-01-02")

	start := time.Now()
	status, reason := s.call(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?doctor_id=%s&from=%s&to=%s&limit=20", w.DoctorID, day, day), nil, nil)
	if ctx.Err() != nil {
		return
	}
	s.metrics.ListByDoctor.Record(time.Since(start), status, reason)
}

// audit checks the ledger invariants the booking engine promises under load.
func audit(ctx context.Context, pool *pgxpool.Pool) error {
	var overbooked int
	err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT r.id
			FROM roster_entries r
			JOIN appointments a
			  ON a.doctor_id = r.doctor_id AND a.date = r.date
			 AND a.status IN ('pending', 'confirmed')
			 AND a.time_slot COLLATE "C" BETWEEN r.start_time COLLATE "C" AND r.end_time COLLATE "C"
			WHERE r.status <> 'cancelled'
			GROUP BY r.id, r.capacity
			HAVING count(a.id) > r.capacity
		) over_capacity
	`).Scan(&overbooked)
	if err != nil {
		return fmt.Errorf("capacity audit: %w", err)
	}
	if overbooked > 0 {
		return fmt.Errorf("%d roster windows exceed capacity", overbooked)
	}

	var duplicates int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT booking_no FROM appointments GROUP BY booking_no HAVING count(*) > 1
		) dup
	`).Scan(&duplicates)
	if err != nil {
		return fmt.Errorf("booking number audit: %w", err)
	}
	if duplicates > 0 {
		return fmt.Errorf("%d duplicate booking numbers", duplicates)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n\n", s.config.Workers)

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Doctor", &s.metrics.ListByDoctor)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)
	avg, p50, p95, maxLat := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}

	om.mu.Lock()
	reasons := make([]string, 0, len(om.reasons))
	for r := range om.reasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("    %-24s %d\n", r, om.reasons[r])
	}
	om.mu.Unlock()

	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), maxLat.Round(time.Millisecond))
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
