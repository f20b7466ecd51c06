package datastore

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// performAutoMigration runs GORM auto-migration for all model tables.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(
		&Establishment{},
		&Silo{},
		&AerationConfig{},
		&SensorBar{},
		&SensorSlot{},
		&TemperatureSensor{},
		&TemperatureReading{},
		&GlobalAeratorControl{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate %s database: %w", dbType, err)
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}
	return nil
}

// createGormLogger creates a GORM logger that only reports slow queries and errors.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
