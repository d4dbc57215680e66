// Package postgres provides a Postgres-backed dataset store that mirrors the
// in-memory semantics and keeps each dataset as a JSONB document.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"thermofit/internal/infra/persistence/memory"
	"thermofit/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.DatasetStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN is used when no DSN is configured.
	DefaultDSN = "postgres://localhost/thermofit?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists datasets to Postgres while serving reads from memory.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN).
// It ensures the datasets table exists and hydrates the in-memory read model.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(memory.WithPersister(s.persist))
	s.ImportState(snapshot)
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

func ensureTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS datasets (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		output TEXT NOT NULL,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure datasets table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, payload FROM datasets ORDER BY seq`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan dataset: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		var ds domain.Dataset
		if err := json.Unmarshal(payload, &ds); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", id, err)
		}
		ds.ID = id
		snapshot.Datasets = append(snapshot.Datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate datasets: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, changes []memory.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		switch change.Action {
		case memory.ActionInsert:
			data, err := json.Marshal(change.Dataset)
			if err != nil {
				return fmt.Errorf("encode %s: %w", change.Dataset.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO datasets(id, output, payload) VALUES($1,$2,$3)`, change.Dataset.ID, change.Dataset.Output, data); err != nil {
				return fmt.Errorf("insert %s: %w", change.Dataset.ID, err)
			}
		case memory.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, change.Dataset.ID); err != nil {
				return fmt.Errorf("delete %s: %w", change.Dataset.ID, err)
			}
		default:
			return fmt.Errorf("unknown change action %q", change.Action)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
