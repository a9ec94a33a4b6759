package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-booking/internal/config"
	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/logging"
)

const (
	modeHerd      = "herd"
	modeCrossRoom = "cross-room"
)

type SimConfig struct {
	APIBaseURL  string
	Mode        string
	Requests    int
	StartAt     time.Time
	Duration    time.Duration
	Timeout     time.Duration
	PostgresDSN string
}

// Fixture is one tenant's ids used to build booking requests.
type Fixture struct {
	OrganizationID uuid.UUID
	DoctorID       uuid.UUID
	ServiceID      uuid.UUID
	PatientID      uuid.UUID
	DeviceID       uuid.UUID
	RoomIDs        []uuid.UUID
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	Codes     map[string]int
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int, code string) {
	atomic.AddInt64(&om.Total, 1)
	switch status {
	case http.StatusCreated:
		atomic.AddInt64(&om.Success, 1)
	case http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	if code != "" {
		if om.Codes == nil {
			om.Codes = make(map[string]int)
		}
		om.Codes[code]++
	}
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95, p99 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0, 0
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
	p50 = percentile(latencies, 50)
	p95 = percentile(latencies, 95)
	p99 = percentile(latencies, 99)

	return avg, min, max, p50, p95, p99
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Simulator struct {
	config  SimConfig
	fixture Fixture
	client  *http.Client
	logger  zerolog.Logger
	metrics OperationMetrics
}

func main() {
	var (
		cfg   SimConfig
		start string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Fire concurrent bookings for one slot and report the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("--start must be RFC3339: %w", err)
				}
				cfg.StartAt = t
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.APIBaseURL, "api", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&cfg.Mode, "mode", modeHerd, "herd (same room and doctor) or cross-room (same doctor, distinct rooms)")
	cmd.Flags().IntVar(&cfg.Requests, "requests", 1000, "number of concurrent booking requests")
	cmd.Flags().StringVar(&start, "start", "", "slot start (RFC3339), defaults to tomorrow 09:00 UTC")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Minute, "slot length")
	cmd.Flags().DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "per request timeout")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg SimConfig) error {
	baseCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load base config: %w", err)
	}
	cfg.PostgresDSN = baseCfg.PostgresDSN
	if cfg.StartAt.IsZero() {
		tomorrow := time.Now().UTC().AddDate(0, 0, 1)
		cfg.StartAt = time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, time.UTC)
	}
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(baseCfg.IsDev(), baseCfg.LogLevel)
	logger.Info().
		Str("mode", cfg.Mode).
		Int("requests", cfg.Requests).
		Time("start_at", cfg.StartAt).
		Dur("duration", cfg.Duration).
		Msg("simulator starting")

	// Load fixture ids from Postgres
	loadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(loadCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	fixture, err := loadFixture(loadCtx, pgPool)
	if err != nil {
		return fmt.Errorf("load fixture: %w", err)
	}
	if cfg.Mode == modeCrossRoom && len(fixture.RoomIDs) < cfg.Requests {
		logger.Warn().Int("rooms", len(fixture.RoomIDs)).Msg("fewer rooms than requests, capping request count")
		cfg.Requests = len(fixture.RoomIDs)
	}

	logger.Info().
		Str("organization_id", fixture.OrganizationID.String()).
		Int("rooms", len(fixture.RoomIDs)).
		Msg("fixture loaded")

	sim := &Simulator{
		config:  cfg,
		fixture: fixture,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.Requests,
			},
		},
		logger: logger,
	}

	sim.Run(ctx)
	sim.PrintReport()

	if sim.metrics.Success > 1 && cfg.Mode == modeHerd {
		return errors.New("more than one booking succeeded for the same slot")
	}
	return nil
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Requests <= 0 {
		return fmt.Errorf("--requests must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("--duration must be > 0")
	}
	if cfg.Mode != modeHerd && cfg.Mode != modeCrossRoom {
		return fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	return nil
}

// loadFixture picks the organization with the most rooms.
func loadFixture(ctx context.Context, pool *pgxpool.Pool) (Fixture, error) {
	var f Fixture
	err := pool.QueryRow(ctx, `
		SELECT o.id,
			(SELECT id FROM doctors  WHERE organization_id = o.id ORDER BY id LIMIT 1),
			(SELECT id FROM services WHERE organization_id = o.id ORDER BY id LIMIT 1),
			(SELECT id FROM patients WHERE organization_id = o.id ORDER BY id LIMIT 1),
			(SELECT id FROM devices  WHERE organization_id = o.id ORDER BY id LIMIT 1)
		FROM organizations o
		ORDER BY (SELECT count(*) FROM rooms r WHERE r.organization_id = o.id) DESC, o.id
		LIMIT 1
	`).Scan(&f.OrganizationID, &f.DoctorID, &f.ServiceID, &f.PatientID, &f.DeviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return f, errors.New("no organizations found, run seed first")
		}
		return f, fmt.Errorf("load organization: %w (run seed first)", err)
	}

	rows, err := pool.Query(ctx, `SELECT id FROM rooms WHERE organization_id = $1 ORDER BY name, id`, f.OrganizationID)
	if err != nil {
		return f, fmt.Errorf("load rooms: %w", err)
	}
	f.RoomIDs, err = pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return f, fmt.Errorf("load rooms: %w", err)
	}
	if len(f.RoomIDs) == 0 {
		return f, errors.New("organization has no rooms")
	}
	return f, nil
}

// Run releases every request at once behind a start gate.
func (s *Simulator) Run(ctx context.Context) {
	gate := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < s.config.Requests; i++ {
		room := s.fixture.RoomIDs[0]
		if s.config.Mode == modeCrossRoom {
			room = s.fixture.RoomIDs[i]
		}

		wg.Add(1)
		go func(room uuid.UUID) {
			defer wg.Done()
			<-gate
			s.doBooking(ctx, room)
		}(room)
	}

	s.logger.Info().Int("requests", s.config.Requests).Msg("releasing requests")
	close(gate)
	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) doBooking(ctx context.Context, roomID uuid.UUID) {
	reqBody := map[string]any{
		"doctor_id":  s.fixture.DoctorID,
		"service_id": s.fixture.ServiceID,
		"room_id":    roomID,
		"patient_id": s.fixture.PatientID,
		"device_ids": []uuid.UUID{s.fixture.DeviceID},
		"start_at":   s.config.StartAt.Format(time.RFC3339),
		"end_at":     s.config.StartAt.Add(s.config.Duration).Format(time.RFC3339),
	}
	body, _ := json.Marshal(reqBody)

	start := time.Now()

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Organization-ID", s.fixture.OrganizationID.String())

	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		s.metrics.Record(latency, 0, "transport_error")
		s.logger.Debug().Err(err).Msg("request failed")
		return
	}
	defer resp.Body.Close()

	var errResp struct {
		Error string `json:"error"`
	}
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &errResp)
	}
	s.metrics.Record(latency, resp.StatusCode, errResp.Error)
}

func (s *Simulator) PrintReport() {
	om := &s.metrics
	total := atomic.LoadInt64(&om.Total)

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Mode: %s\n", s.config.Mode)
	fmt.Printf("Slot: %s - %s\n", s.config.StartAt.Format(time.RFC3339), s.config.StartAt.Add(s.config.Duration).Format(time.RFC3339))
	fmt.Printf("Requests: %d\n", total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	fmt.Printf("  Success: %d\n", success)
	fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}

	codes := make([]string, 0, len(om.Codes))
	for c := range om.Codes {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	for _, c := range codes {
		fmt.Printf("    %s: %d\n", c, om.Codes[c])
	}

	avg, min, max, p50, p95, p99 := om.Stats()
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}
