// Package datastore opens the source and target SQL stores and persists migration
// bookkeeping (checkpoints and recorded issues) on the target.
package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/casebridge/dispatch-migrate/internal/conf"
	"github.com/casebridge/dispatch-migrate/internal/errors"
	"github.com/casebridge/dispatch-migrate/internal/logger"
)

// slowQueryThreshold marks statements logged as slow. Full-table lookup scans on large
// targets legitimately take a few seconds.
const slowQueryThreshold = 5 * time.Second

const connectTimeout = 15 * time.Second

// Store is one open SQL connection pool together with its dialect.
type Store struct {
	db       *gorm.DB
	driver   string
	location string
}

// Open connects to the configured store and verifies the connection with a ping.
// Failures are returned as connection errors, which are fatal to a run.
func Open(ctx context.Context, role string, settings *conf.DatabaseSettings, log logger.Logger) (*Store, error) {
	dialector, err := dialectorFor(settings)
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("role", role).
			Build()
	}

	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLoggerAdapter(log.Module("datastore"), slowQueryThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, connectionError(err, role, settings)
	}

	store := &Store{db: db, driver: settings.Driver, location: settings.Location()}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = store.Close()
		return nil, connectionError(err, role, settings)
	}

	sqlDB, err := db.DB()
	if err == nil && settings.Driver != conf.DriverSQLite {
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	log.Info("database connection established",
		logger.String("role", role),
		logger.String("driver", settings.Driver),
		logger.String("location", settings.Location()))

	return store, nil
}

// NewStore wraps an already-open gorm handle. Used by tests and by callers that
// manage their own pools.
func NewStore(db *gorm.DB, driver string) *Store {
	return &Store{db: db, driver: driver, location: driver}
}

func dialectorFor(settings *conf.DatabaseSettings) (gorm.Dialector, error) {
	dsn := settings.GetDSN()
	switch settings.Driver {
	case conf.DriverPostgres:
		return postgres.Open(dsn), nil
	case conf.DriverMySQL:
		return mysql.Open(dsn), nil
	case conf.DriverSQLite:
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", settings.Driver)
	}
}

func connectionError(err error, role string, settings *conf.DatabaseSettings) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryConnection).
		Context("role", role).
		Context("driver", settings.Driver).
		Context("location", settings.Location()).
		Build()
}

// DB returns the gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Driver returns the dialect name: postgres, mysql or sqlite.
func (s *Store) Driver() string {
	return s.driver
}

// IsMySQL reports whether the store uses the MySQL dialect.
func (s *Store) IsMySQL() bool {
	return s.driver == conf.DriverMySQL
}

// Location returns a printable, credential-free description of the store.
func (s *Store) Location() string {
	return s.location
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}
