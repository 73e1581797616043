package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hugh/agencydesk/internal/database/models"
	"github.com/hugh/agencydesk/pkg/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 500 * time.Millisecond

// SQLLogger sends gorm's log through the application logger. Every statement
// is traced when the logger runs at debug level; otherwise only slow queries
// and errors are. Missing rows are not errors here: session resolution and
// the org-scoped lookups expect them.
func SQLLogger(log *slog.Logger) logger.Interface {
	level := logger.Warn
	if log.Enabled(context.Background(), slog.LevelDebug) {
		level = logger.Info
	}
	return logger.New(slog.NewLogLogger(log.With("component", "gorm").Handler(), slog.LevelInfo), logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func Connect(cfg *config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: SQLLogger(log),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting underlying db: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info("connected to database", "host", cfg.Host, "database", cfg.Name)
	return db, nil
}

// AutoMigrate creates or updates every app table.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}
