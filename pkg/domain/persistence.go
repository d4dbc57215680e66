package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a dataset id is unknown.
	ErrNotFound = errors.New("domain: dataset not found")
	// ErrDuplicate is returned when inserting an id that already exists.
	ErrDuplicate = errors.New("domain: dataset already exists")
)

// DatasetSource is the read side consumed by residual functions. Search
// returns snapshots in insertion order.
type DatasetSource interface {
	Search(ctx context.Context, pred Predicate) ([]Dataset, error)
}

// DatasetStore is a minimal abstraction over durable dataset backends.
type DatasetStore interface {
	DatasetSource
	// Insert stores datasets atomically, assigning ids where missing, and
	// returns the stored records.
	Insert(ctx context.Context, datasets ...Dataset) ([]Dataset, error)
	Get(ctx context.Context, id string) (Dataset, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
