package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DBService handles database connection and lifecycle management
type DBService interface {
	GetDB() *gorm.DB
	Close() error
}

type dbService struct {
	db *gorm.DB
}

// NewDBService opens the mirror database selected by cfg and migrates it.
func NewDBService(cfg config.DBConfig) (DBService, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresDBService(cfg.DSN, cfg)
	case "sqlite", "":
		return NewSqliteDBService(cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewSqliteDBService creates a new DBService with SQLite connection
func NewSqliteDBService(dbPath string) (DBService, error) {
	db, err := OpenSqlite(dbPath)
	if err != nil {
		return nil, err
	}
	return newDBService(db)
}

// NewPostgresDBService creates a new DBService backed by postgres
func NewPostgresDBService(dsn string, cfg config.DBConfig) (DBService, error) {
	db, err := OpenPostgres(dsn, cfg)
	if err != nil {
		return nil, err
	}
	return newDBService(db)
}

// OpenLedgerDB opens the database holding the ledger tables. It falls back to the
// mirror database settings when no dedicated ledger location is configured.
func OpenLedgerDB(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.Driver == "postgres" {
		dsn := cfg.LedgerDSN
		if dsn == "" {
			dsn = cfg.DSN
		}
		return OpenPostgres(dsn, cfg)
	}
	path := cfg.LedgerPath
	if path == "" {
		path = cfg.Path
	}
	return OpenSqlite(path)
}

func OpenSqlite(dbPath string) (*gorm.DB, error) {
	if dbPath != ":memory:" {
		// Create directory if it doesn't exist
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; an in-memory database also lives on one connection
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func OpenPostgres(dsn string, cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger()})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// gormLogger only logs errors and slow queries
func gormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stderr, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			ParameterizedQueries:      false,
			Colorful:                  false,
		},
	)
}

func newDBService(db *gorm.DB) (DBService, error) {
	service := &dbService{db: db}
	if err := service.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return service, nil
}

// GetDB returns the underlying GORM database instance
func (s *dbService) GetDB() *gorm.DB {
	return s.db
}

// migrate runs database migrations
func (s *dbService) migrate() error {
	return s.db.AutoMigrate(
		&models.PoolCreate{},
		&models.ChartData{},
		&models.TopHolder{},
		&models.UserDetails{},
		&models.LotteryHistory{},
		&models.TransactionRecord{},
	)
}

// Close closes the database connection
func (s *dbService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
