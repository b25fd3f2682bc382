package db

import (
	"context"
	"database/sql"

	"github.com/bcromer77/prooftimelines/internal/usecase"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

// ReadOnly runs fn inside one transaction that sees a single committed
// state. Postgres gets a read-only REPEATABLE READ transaction. On sqlite
// the transaction holds the only pooled connection, so writers wait until
// fn returns. fn must issue every query through tx.
func (s *Store) ReadOnly(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.DB == nil {
		return errDBUnavailable
	}
	var opts []*sql.TxOptions
	if s.Dialect == goose.DialectPostgres {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	}
	return s.DB.WithContext(ctx).Transaction(fn, opts...)
}

// Snapshotter hands out repositories bound to a ReadOnly transaction.
type Snapshotter struct {
	store *Store
}

func NewSnapshotter(store *Store) *Snapshotter {
	return &Snapshotter{store: store}
}

func (s *Snapshotter) ReadSnapshot(ctx context.Context, fn func(usecase.ReadRepositories) error) error {
	return s.store.ReadOnly(ctx, func(tx *gorm.DB) error {
		return fn(usecase.ReadRepositories{
			Cases:    NewCaseRepository(tx),
			Events:   NewEventRepository(tx),
			Evidence: NewEvidenceRepository(tx),
			Ledger:   NewLedgerRepository(tx),
		})
	})
}
