package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bcromer77/prooftimelines/internal/config"
	"github.com/bcromer77/prooftimelines/internal/infra/db/migrations"

	"github.com/glebarez/sqlite"
	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Store struct {
	DB      *gorm.DB
	Dialect goose.Dialect
}

func NewStore(cfg config.Config) (*Store, error) {
	switch cfg.DBDriver {
	case config.DBDriverPostgres:
		return OpenPostgres(cfg.PostgresDSN)
	case config.DBDriverSQLite:
		return OpenSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func OpenPostgres(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{DB: gdb, Dialect: goose.DialectPostgres}, nil
}

// OpenSQLite opens a file or in-memory database. Writers are serialized
// through a single connection, which is also what keeps per-case sequence
// assignment ordered on this driver.
func OpenSQLite(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("SQLITE_PATH is required")
	}
	gdb, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return &Store{DB: gdb, Dialect: goose.DialectSQLite3}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Migrate applies every pending embedded migration.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(s.Dialect, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
