package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-booking/internal/config"
	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/logging"
)

type seedOptions struct {
	Organizations int
	Doctors       int
	Rooms         int
	Devices       int
	Patients      int
	Migrate       bool
}

var timezones = []string{
	"Europe/Berlin",
	"Europe/London",
	"America/New_York",
	"America/Los_Angeles",
	"Asia/Kolkata",
	"Australia/Sydney",
	"UTC",
}

var services = []struct {
	Name    string
	Minutes int
}{
	{"General Consultation", 15},
	{"Follow-up", 15},
	{"Dermatology Review", 30},
	{"Cardiology Assessment", 45},
	{"Ultrasound", 30},
	{"Physiotherapy Session", 60},
	{"Minor Surgery", 90},
}

var deviceKinds = []string{
	"Ultrasound Scanner",
	"ECG Monitor",
	"Dermatoscope",
	"Infusion Pump",
	"Laser Unit",
	"Spirometer",
}

func main() {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the database with fake clinics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().IntVar(&opts.Organizations, "organizations", 3, "number of clinics")
	cmd.Flags().IntVar(&opts.Doctors, "doctors", 10, "doctors per clinic")
	cmd.Flags().IntVar(&opts.Rooms, "rooms", 8, "rooms per clinic")
	cmd.Flags().IntVar(&opts.Devices, "devices", 12, "devices per clinic")
	cmd.Flags().IntVar(&opts.Patients, "patients", 2000, "patients per clinic")
	cmd.Flags().BoolVar(&opts.Migrate, "migrate", true, "apply pending migrations first")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.IsDev(), cfg.LogLevel)
	logger.Info().Interface("options", opts).Msg("seed starting")

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(connCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if opts.Migrate {
		applied, err := db.NewMigrator(pool).Up(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("applied", applied).Msg("migrations complete")
	}

	for i := 0; i < opts.Organizations; i++ {
		err := db.InTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			return seedOrganization(ctx, tx, opts, logger)
		})
		if err != nil {
			return fmt.Errorf("seed organization %d: %w", i+1, err)
		}
	}

	logger.Info().Msg("seed complete")
	return nil
}

func seedOrganization(ctx context.Context, tx pgx.Tx, opts seedOptions, logger zerolog.Logger) error {
	orgID := uuid.New()
	name := gofakeit.Company() + " Clinic"
	slug := strings.ToLower(strings.ReplaceAll(gofakeit.LetterN(4)+"-"+orgID.String()[:8], " ", "-"))
	tz := timezones[gofakeit.Number(0, len(timezones)-1)]

	_, err := tx.Exec(ctx, `
		INSERT INTO organizations (id, name, slug, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
	`, orgID, name, slug, tz)
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	doctorIDs := make([]uuid.UUID, opts.Doctors)
	for i := range doctorIDs {
		doctorIDs[i] = uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, organization_id, name) VALUES ($1, $2, $3)
		`, doctorIDs[i], orgID, "Dr. "+gofakeit.LastName())
		if err != nil {
			return fmt.Errorf("insert doctor: %w", err)
		}
	}

	if err := seedWorkingHours(ctx, tx, doctorIDs); err != nil {
		return err
	}

	for i := 0; i < opts.Rooms; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, organization_id, name) VALUES ($1, $2, $3)
		`, uuid.New(), orgID, fmt.Sprintf("Room %d", i+1))
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
	}

	for i := 0; i < opts.Devices; i++ {
		kind := deviceKinds[i%len(deviceKinds)]
		_, err := tx.Exec(ctx, `
			INSERT INTO devices (id, organization_id, name) VALUES ($1, $2, $3)
		`, uuid.New(), orgID, fmt.Sprintf("%s #%d", kind, i/len(deviceKinds)+1))
		if err != nil {
			return fmt.Errorf("insert device: %w", err)
		}
	}

	for _, s := range services {
		_, err := tx.Exec(ctx, `
			INSERT INTO services (id, organization_id, name, duration_minutes) VALUES ($1, $2, $3, $4)
		`, uuid.New(), orgID, s.Name, s.Minutes)
		if err != nil {
			return fmt.Errorf("insert service: %w", err)
		}
	}

	rows := make([][]any, opts.Patients)
	for i := range rows {
		rows[i] = []any{uuid.New(), orgID, gofakeit.Name(), gofakeit.Email()}
	}
	copied, err := tx.CopyFrom(ctx,
		pgx.Identifier{"patients"},
		[]string{"id", "organization_id", "name", "email"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy patients: %w", err)
	}

	logger.Info().
		Str("organization_id", orgID.String()).
		Str("name", name).
		Str("timezone", tz).
		Int("doctors", opts.Doctors).
		Int("rooms", opts.Rooms).
		Int("devices", opts.Devices).
		Int64("patients", copied).
		Msg("organization seeded")
	return nil
}

// seedWorkingHours gives every doctor a weekday shift with a random start
// between 07:00 and 10:00.
func seedWorkingHours(ctx context.Context, tx pgx.Tx, doctorIDs []uuid.UUID) error {
	for _, id := range doctorIDs {
		startHour := gofakeit.Number(7, 10)
		for day := 1; day <= 5; day++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_working_hours (id, doctor_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, $4::time, $5::time)
			`, uuid.New(), id, day, fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", startHour+8))
			if err != nil {
				return fmt.Errorf("insert working hours: %w", err)
			}
		}
	}
	return nil
}
