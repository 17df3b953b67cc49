package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
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

	"github.com/hackgods/clinic-care-scheduling/internal/config"
	"github.com/hackgods/clinic-care-scheduling/internal/db"
	"github.com/hackgods/clinic-care-scheduling/internal/timeofday"
)

type SimConfig struct {
	APIBaseURL      string
	Duration        time.Duration
	Workers         int
	BookingRatio    float64
	ConfirmRatio    float64
	ReadRatio       float64
	AssignmentLimit int
	HorizonDays     int
	PostgresDSN     string
	Location        *time.Location
}

// caseload is an active assignment: the patient and the professional who
// books for them.
type caseload struct {
	PatientID      uuid.UUID
	ProfessionalID uuid.UUID
}

type DataPool struct {
	Caseloads    []caseload
	mu           sync.RWMutex
	appointments []bookedAppointment // Thread-safe list of created appointments
}

type bookedAppointment struct {
	ID    uuid.UUID
	Actor uuid.UUID
}

func (dp *DataPool) AddAppointment(a bookedAppointment) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, a)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (bookedAppointment, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return bookedAppointment{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]

	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Contention    OperationMetrics
	Booking       OperationMetrics
	Confirm       OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	FreeSlots     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

type slotsResponse struct {
	Slots []struct {
		Start string `json:"start"`
	} `json:"slots"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d booking=%.2f confirm=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.BookingRatio, cfg.ConfirmRatio, cfg.ReadRatio)

	// Load data from Postgres
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	log.Printf("loaded: %d active assignments", len(dataPool.Caseloads))

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	// All workers race for one slot first; exactly one booking may win.
	sim.RunContention()

	// Run simulation
	sim.Run()

	// Print report
	sim.PrintReport()
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:      getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:        getDuration("SIM_DURATION", 30*time.Second),
		Workers:         getInt("SIM_WORKERS", 10),
		BookingRatio:    getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio:    getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:       getFloat("SIM_READ_RATIO", 0.3),
		AssignmentLimit: getInt("SIM_ASSIGNMENT_LIMIT", 2000),
		HorizonDays:     getInt("SIM_HORIZON_DAYS", 14),
		PostgresDSN:     baseCfg.PostgresDSN,
		Location:        baseCfg.Location,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HorizonDays <= 0 {
		return fmt.Errorf("SIM_HORIZON_DAYS must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT a.patient_id, a.primary_professional_id
		FROM assignments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status = 'active' AND p.active
		LIMIT $1
	`, cfg.AssignmentLimit)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c caseload
		if err := rows.Scan(&c.PatientID, &c.ProfessionalID); err != nil {
			return nil, err
		}
		dataPool.Caseloads = append(dataPool.Caseloads, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dataPool.Caseloads) == 0 {
		return nil, fmt.Errorf("no active assignments loaded, run cmd/seed first")
	}

	return dataPool, nil
}

// RunContention books the first free slot of one professional from every
// worker at once and reports how many bookings went through.
func (s *Simulator) RunContention() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := s.pool.Caseloads[0]
	var (
		date  time.Time
		start string
	)
	for d := 1; d <= s.config.HorizonDays && start == ""; d++ {
		date = s.today().AddDate(0, 0, d)
		slots, err := s.fetchSlots(ctx, c.ProfessionalID, date)
		if err == nil && len(slots) > 0 {
			start = slots[0]
		}
	}
	if start == "" {
		log.Println("contention: no free slot found, skipping")
		return
	}

	log.Printf("contention: %d workers booking %s %s for one professional", s.config.Workers, timeofday.FormatDate(date), start)

	var wg sync.WaitGroup
	release := make(chan struct{})
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			s.book(ctx, c, date, start, &s.metrics.Contention)
		}()
	}
	close(release)
	wg.Wait()

	if won := atomic.LoadInt64(&s.metrics.Contention.Success); won != 1 {
		log.Printf("contention: expected exactly one booking, got %d", won)
	}
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			// Select operation based on ratios
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.ConfirmRatio {
				s.doConfirm(ctx, rng)
			} else {
				// Read operations - distribute evenly
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doFreeSlots(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) today() time.Time {
	return timeofday.DateOf(time.Now(), s.config.Location)
}

func (s *Simulator) randomCaseload(rng *rand.Rand) caseload {
	return s.pool.Caseloads[rng.Intn(len(s.pool.Caseloads))]
}

func (s *Simulator) randomDate(rng *rand.Rand) time.Time {
	return s.today().AddDate(0, 0, 1+rng.Intn(s.config.HorizonDays))
}

func (s *Simulator) newRequest(ctx context.Context, method, path string, actor uuid.UUID, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", actor.String())
	return req
}

func (s *Simulator) fetchSlots(ctx context.Context, professionalID uuid.UUID, date time.Time) ([]string, error) {
	path := fmt.Sprintf("/slots?professional_id=%s&date=%s", professionalID, timeofday.FormatDate(date))
	resp, err := s.client.Do(s.newRequest(ctx, http.MethodGet, path, professionalID, nil))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slots: status %d", resp.StatusCode)
	}
	var out slotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	starts := make([]string, 0, len(out.Slots))
	for _, sl := range out.Slots {
		starts = append(starts, sl.Start)
	}
	return starts, nil
}

func (s *Simulator) book(ctx context.Context, c caseload, date time.Time, at string, om *OperationMetrics) {
	start := time.Now()

	reqBody := map[string]string{
		"patient_id":              c.PatientID.String(),
		"primary_professional_id": c.ProfessionalID.String(),
		"date":                    timeofday.FormatDate(date),
		"time":                    at,
	}
	resp, err := s.client.Do(s.newRequest(ctx, http.MethodPost, "/appointments", c.ProfessionalID, reqBody))
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusCreated {
			success = true
			// Parse response to get appointment ID
			var apptResp struct {
				ID uuid.UUID `json:"id"`
			}
			if json.NewDecoder(resp.Body).Decode(&apptResp) == nil && apptResp.ID != uuid.Nil {
				s.pool.AddAppointment(bookedAppointment{ID: apptResp.ID, Actor: c.ProfessionalID})
			}
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	om.Record(latency, success, conflict)
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	c := s.randomCaseload(rng)
	date := s.randomDate(rng)

	slots, err := s.fetchSlots(ctx, c.ProfessionalID, date)
	if err != nil || len(slots) == 0 {
		return
	}

	s.book(ctx, c, date, slots[rng.Intn(len(slots))], &s.metrics.Booking)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(s.newRequest(ctx, http.MethodPost,
		fmt.Sprintf("/appointments/%s/confirm", appt.ID), appt.Actor, nil))
	latency := time.Since(start)

	success := false
	conflict := false

	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			success = true
		} else if resp.StatusCode == http.StatusConflict {
			conflict = true
		}
	}

	s.metrics.Confirm.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.client.Do(s.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/appointments/%s", appt.ID), appt.Actor, nil))
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	c := s.randomCaseload(rng)

	start := time.Now()
	resp, err := s.client.Do(s.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("/appointments?patient_id=%s&limit=20&offset=0", c.PatientID), c.ProfessionalID, nil))
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByPatient.Record(latency, success, false)
}

func (s *Simulator) doFreeSlots(ctx context.Context, rng *rand.Rand) {
	c := s.randomCaseload(rng)

	start := time.Now()
	_, err := s.fetchSlots(ctx, c.ProfessionalID, s.randomDate(rng))
	s.metrics.FreeSlots.Record(time.Since(start), err == nil, false)
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Same-slot contention", &s.metrics.Contention)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Free slots", &s.metrics.FreeSlots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

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

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
