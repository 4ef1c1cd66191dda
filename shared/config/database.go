package config

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pavitra93/go-planning-dashboard/shared/models"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GetDatabaseConfig returns database configuration from environment variables
func GetDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "planboard"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// ConnectDatabase opens the pool described by the environment
func ConnectDatabase() (*gorm.DB, error) {
	return OpenDatabase(GetDatabaseConfig().GetDSN())
}

// OpenDatabase opens and pings a Postgres pool for dsn
func OpenDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt: true,
		Logger:      logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	// Five services share the server's default 100 connections
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// PlanningModels lists every tenant-owned record type
func PlanningModels() []interface{} {
	return []interface{}{
		&models.Problem{},
		&models.CustomerSegment{},
		&models.TargetAudience{},
		&models.Channel{},
		&models.FinancialEntry{},
		&models.Metric{},
		&models.Task{},
		&models.CompetitorMatrix{},
		&models.Benefit{},
		&models.Feature{},
	}
}

// Migrate creates or updates the tables of the given models
func Migrate(db *gorm.DB, extra ...interface{}) error {
	all := append([]interface{}{&models.Company{}, &models.User{}}, extra...)
	if err := db.AutoMigrate(all...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
