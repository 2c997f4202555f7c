package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a database connection. PostgreSQL DSNs (postgres:// or
// key=value form) use the postgres driver; everything else is treated as a
// SQLite path, which keeps local development and CI runs dependency-free.
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Duplicate-key violations on the attendance dedup index must be
		// recognizable across both drivers.
		TranslateError: true,
	}

	if isPostgresDSN(dsn) {
		DB, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		DB, err = gorm.Open(sqlite.Open(dsn), cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	return AutoMigrateDB(DB)
}

// AutoMigrateDB runs migrations against a specific database handle.
// Accepts a db parameter so tests can migrate in-memory databases.
func AutoMigrateDB(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Identity{},
		&Alias{},
		&AttendanceRecord{},
		&PendingReviewItem{},
		&MergeLogEntry{},
		&ResolverSettings{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	if _, err := GetOrCreateResolverSettings(DB); err != nil {
		return fmt.Errorf("failed to initialize resolver settings: %w", err)
	}
	return nil
}

// GetOrCreateResolverSettings retrieves or creates resolver settings (singleton).
// Accepts a db parameter to support transaction contexts and testing.
func GetOrCreateResolverSettings(db *gorm.DB) (*ResolverSettings, error) {
	var settings ResolverSettings
	result := db.First(&settings)
	if result.Error == gorm.ErrRecordNotFound {
		settings = *NewDefaultResolverSettings()
		if err := db.Create(&settings).Error; err != nil {
			return nil, err
		}
	} else if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}

// UpdateResolverSettings updates resolver settings.
// Uses Save() which handles both insert and update operations.
func UpdateResolverSettings(db *gorm.DB, settings *ResolverSettings) error {
	return db.Save(settings).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
