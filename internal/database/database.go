package database

import (
	"fmt"

	"github.com/jyron/tradershub/internal/config"
	"github.com/jyron/tradershub/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// New creates a new database connection and performs auto-migration.
func New(cfg config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the ledger schema. The trade ledger is the
// sole source of truth and is never dropped here; snapshots are rebuilt
// explicitly by the snapshot generator.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Bot{},
		&models.Trade{},
		&models.Position{},
		&models.PortfolioSnapshot{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
