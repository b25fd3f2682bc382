// Package testdb opens a migrated, throwaway database for repository and
// handler tests. Postgres is used when PROOFTIMELINES_TEST_POSTGRES_DSN is
// set; otherwise each test gets its own in-memory sqlite database.
package testdb

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bcromer77/prooftimelines/internal/infra/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const postgresDSNEnv = "PROOFTIMELINES_TEST_POSTGRES_DSN"

func Open(t *testing.T) *db.Store {
	t.Helper()
	if dsn := os.Getenv(postgresDSNEnv); dsn != "" {
		return openPostgres(t, dsn)
	}
	return OpenSQLite(t)
}

func OpenSQLite(t *testing.T) *db.Store {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	store, err := db.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	migrate(t, store)
	return store
}

func openPostgres(t *testing.T, baseDSN string) *db.Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	adminConn, err := pgx.Connect(ctx, withDatabase(baseDSN, "postgres"))
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}
	dbName := "prooftimelines_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := adminConn.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		_ = adminConn.Close(context.Background())
		t.Fatalf("create database: %v", err)
	}

	store, err := db.OpenPostgres(withDatabase(baseDSN, dbName))
	if err != nil {
		_ = dropDatabase(context.Background(), adminConn, dbName)
		_ = adminConn.Close(context.Background())
		t.Fatalf("connect test db: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
		_ = dropDatabase(context.Background(), adminConn, dbName)
		_ = adminConn.Close(context.Background())
	})
	migrate(t, store)
	return store
}

func migrate(t *testing.T, store *db.Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func withDatabase(dsn string, dbName string) string {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return dsn
	}
	parsed.Path = "/" + dbName
	return parsed.String()
}

func dropDatabase(ctx context.Context, conn *pgx.Conn, name string) error {
	_, err := conn.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{name}.Sanitize()+" WITH (FORCE)")
	return err
}
