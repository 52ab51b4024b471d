package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"hhfoundation/config"
	"hhfoundation/internal/app"
	"hhfoundation/internal/crons"
	"hhfoundation/internal/database"
	"hhfoundation/internal/metrics"
	"hhfoundation/internal/repository"
	"hhfoundation/internal/router"
	"hhfoundation/internal/service"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed and start the HTTP server with its cron jobs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := migrated(cfg.Database, cfg.Admin)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, db)
		if err != nil {
			return errors.Wrap(err, "wire app")
		}
		defer a.Close()

		runner := crons.New(a.Services.Help, a.Services.Integrity)
		if err := runner.Start(crons.Schedules{
			crons.JobExpireHelps:    cfg.Help.ExpirySchedule,
			crons.JobIntegrityAudit: cfg.Help.AuditSchedule,
		}); err != nil {
			return err
		}
		defer runner.Stop()

		if sqlDB, err := db.DB(); err == nil {
			go metrics.RecordDBStats(sqlDB, 15*time.Second, ctx.Done())
		}

		srv := &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router.Setup(a),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		errc := make(chan error, 1)
		go func() {
			log.Info().Str("section", "http").Str("addr", srv.Addr).Msg("server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()

		select {
		case err := <-errc:
			return errors.Wrap(err, "listen")
		case <-ctx.Done():
		}
		log.Info().Str("section", "http").Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "server shutdown")
		}
		log.Info().Str("section", "http").Msg("server stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run schema migrations and seed the admin account and default settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, err = migrated(cfg.Database, cfg.Admin)
		if err == nil {
			log.Info().Str("section", "db").Msg("migrations applied")
		}
		return err
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check stored helps against the matching invariants; exits 1 on violations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		db, err := database.NewDB(&cfg.Database)
		if err != nil {
			return err
		}
		svc := service.NewIntegrityService(repository.NewIntegrityRepository(db))
		report, err := svc.Audit(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if !report.OK() {
			return errors.Errorf("%d violations found", len(report.Violations))
		}
		return nil
	},
}

func migrated(dbCfg config.DatabaseConfig, adminCfg config.AdminConfig) (*gorm.DB, error) {
	db, err := database.NewDB(&dbCfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "migrate")
	}
	if err := database.SeedAdmin(db, adminCfg); err != nil {
		return nil, errors.Wrap(err, "seed admin")
	}
	if err := repository.NewSettingRepository(db).SeedDefaults(database.DefaultSettings()); err != nil {
		return nil, errors.Wrap(err, "seed settings")
	}
	return db, nil
}
