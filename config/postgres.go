package config

import (
	"errors"
	"time"

	"github.com/yoockh/meetsense/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var PostgresDB *gorm.DB

// InitPostgres opens the database holding transcript segments and
// participant reports.
func InitPostgres(cfg PostgresConfig) error {
	if cfg.URI == "" {
		return errors.New("postgres uri is not set (POSTGRES_URI or [postgres].uri)")
	}
	db, err := gorm.Open(postgres.Open(cfg.URI), &gorm.Config{})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	// Connection Pooling settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&models.SegmentRow{}, &models.ParticipantRow{}); err != nil {
			return err
		}
	}

	PostgresDB = db
	return nil
}
