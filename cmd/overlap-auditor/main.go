package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hackgods/appointment-booking/internal/appointment"
	"github.com/hackgods/appointment-booking/internal/config"
	"github.com/hackgods/appointment-booking/internal/db"
	"github.com/hackgods/appointment-booking/internal/logging"
)

var errUnclean = errors.New("audit found double bookings or failed")

func main() {
	var once bool
	cmd := &cobra.Command{
		Use:   "overlap-auditor",
		Short: "Periodically scan committed appointments for double bookings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single audit and exit non-zero on violations")
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.IsDev(), cfg.LogLevel).With().Str("component", "overlap-auditor").Logger()
	logger.Info().
		Dur("interval", cfg.AuditInterval).
		Dur("lookback", cfg.AuditLookback).
		Dur("lookahead", cfg.AuditLookahead).
		Msg("overlap auditor starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 2})
	cancelPg()
	if err != nil {
		return err
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := appointment.NewPgRepository(pgPool)
	svc := appointment.NewService(repo, nil, cfg, logger)

	// Run once at startup
	clean := runOnce(rootCtx, svc, cfg, logger)
	if once {
		if !clean {
			return errUnclean
		}
		return nil
	}

	ticker := time.NewTicker(cfg.AuditInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping overlap auditor")
			return nil
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg, logger)
		}
	}
}

// runOnce audits the configured window around now and reports whether it was
// free of violations.
func runOnce(ctx context.Context, svc *appointment.Service, cfg config.Config, logger zerolog.Logger) bool {
	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	start := time.Now()
	report, err := svc.AuditOverlaps(runCtx, start.Add(-cfg.AuditLookback), start.Add(cfg.AuditLookahead))
	if err != nil {
		logger.Error().Err(err).Msg("audit run failed")
		return false
	}

	evt := logger.Info()
	if len(report.Violations) > 0 {
		evt = logger.Error()
	}
	evt.
		Int("scanned", report.Scanned).
		Int("violations", len(report.Violations)).
		Dur("took", time.Since(start)).
		Msg("audit run complete")

	return len(report.Violations) == 0
}
