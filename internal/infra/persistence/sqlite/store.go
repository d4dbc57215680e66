// Package sqlite provides an embedded SQLite dataset store. Datasets are kept
// as JSON documents, one row per dataset, and served from an in-memory read
// model hydrated at startup.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"thermofit/internal/infra/persistence/memory"
	"thermofit/pkg/domain"
)

var _ domain.DatasetStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "thermofit.db"

// Store persists datasets to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the SQLite file at path and loads its datasets.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS datasets (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		output TEXT NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create datasets table: %w", err)
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(memory.WithPersister(s.persist))
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM datasets ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		var ds domain.Dataset
		if err := json.Unmarshal(payload, &ds); err != nil {
			return fmt.Errorf("decode dataset %s: %w", id, err)
		}
		ds.ID = id
		snapshot.Datasets = append(snapshot.Datasets, ds)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate datasets: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, changes []memory.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, change := range changes {
		switch change.Action {
		case memory.ActionInsert:
			data, err := json.Marshal(change.Dataset)
			if err != nil {
				return fmt.Errorf("encode dataset %s: %w", change.Dataset.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO datasets(id, output, payload) VALUES(?,?,?)`, change.Dataset.ID, change.Dataset.Output, data); err != nil {
				return fmt.Errorf("insert %s: %w", change.Dataset.ID, err)
			}
		case memory.ActionDelete:
			if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, change.Dataset.ID); err != nil {
				return fmt.Errorf("delete %s: %w", change.Dataset.ID, err)
			}
		default:
			return fmt.Errorf("unknown change action %q", change.Action)
		}
	}
	return tx.Commit()
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
