package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/noah-isme/interview-prep-api/internal/models"
)

// ConnectPostgres opens the interview store on PostgreSQL and applies the schema.
func ConnectPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn must not be empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access postgres pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := MigrateInterviews(db); err != nil {
		return nil, err
	}

	return db, nil
}

// MigrateInterviews creates or updates the interview tables.
func MigrateInterviews(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Interview{}, &models.InterviewAnswer{}); err != nil {
		return fmt.Errorf("failed to migrate interview schema: %w", err)
	}
	return nil
}
