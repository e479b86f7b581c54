package db

import (
	"fmt"
	"log/slog"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"attendance-backend/config"
	"attendance-backend/internal/model"
)

// Init initializes the database connection and runs migrations.
func Init(cfg *config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: slogGorm.New(
			slogGorm.WithHandler(logger.Handler()),
			slogGorm.WithSlowThreshold(200*time.Millisecond),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	logger.Info("Running database migrations...")
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if cfg.EnforceConstraints && cfg.Driver == "postgres" {
		logger.Info("Applying check constraints...")
		if err := applyConstraintDDL(db); err != nil {
			logger.Warn("failed to apply some check constraints; continuing without them", "error", err)
		}
	}

	logger.Info("Database initialization complete.")
	return db, nil
}

// Migrate creates or updates every table the application uses.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Participant{},
		&model.Gathering{},
		&model.Registration{},
		&model.AttendanceRecord{},
		&model.PointEntry{},
		&model.WarningState{},
		&model.EscalationRun{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyConstraintDDL(db *gorm.DB) error {
	ddls := []string{
		"ALTER TABLE gatherings DROP CONSTRAINT IF EXISTS gatherings_window_valid;",
		"ALTER TABLE gatherings ADD CONSTRAINT gatherings_window_valid " +
			"CHECK (opens_at IS NULL OR closes_at IS NULL OR opens_at < closes_at);",

		"ALTER TABLE gatherings DROP CONSTRAINT IF EXISTS gatherings_radius_positive;",
		"ALTER TABLE gatherings ADD CONSTRAINT gatherings_radius_positive CHECK (radius_meters >= 0);",

		"ALTER TABLE attendance_records DROP CONSTRAINT IF EXISTS attendance_records_kind_valid;",
		"ALTER TABLE attendance_records ADD CONSTRAINT attendance_records_kind_valid " +
			"CHECK (kind IN ('check_in', 'check_out'));",

		"ALTER TABLE point_entries DROP CONSTRAINT IF EXISTS point_entries_month_valid;",
		"ALTER TABLE point_entries ADD CONSTRAINT point_entries_month_valid CHECK (month BETWEEN 1 AND 12);",

		"ALTER TABLE warning_states DROP CONSTRAINT IF EXISTS warning_states_level_valid;",
		"ALTER TABLE warning_states ADD CONSTRAINT warning_states_level_valid " +
			"CHECK (level IN ('none', 'reminder', 'discipline', 'removal'));",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
