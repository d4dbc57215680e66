// Package memory provides an in-memory implementation of the dataset store
// used for tests, ephemeral environments and as the read model of the
// durable backends.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"thermofit/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.DatasetStore = (*Store)(nil)

// Action identifies a change recorded in a transaction.
type Action string

const (
	ActionInsert Action = "insert"
	ActionDelete Action = "delete"
)

// Change is a single mutation captured in a transaction.
type Change struct {
	Action  Action
	Dataset domain.Dataset
}

// Persister writes the changes of a transaction to a durable backend. It runs
// while the store lock is held and before the new state becomes visible; an
// error aborts the transaction.
type Persister func(ctx context.Context, changes []Change) error

type memoryState struct {
	order    []string
	datasets map[string]domain.Dataset
}

func newMemoryState() memoryState {
	return memoryState{datasets: make(map[string]domain.Dataset)}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		order:    append([]string(nil), s.order...),
		datasets: make(map[string]domain.Dataset, len(s.datasets)),
	}
	for k, v := range s.datasets {
		out.datasets[k] = v
	}
	return out
}

// Snapshot captures a point-in-time clone of the store state in insertion order.
type Snapshot struct {
	Datasets []domain.Dataset `json:"datasets"`
}

// Store provides an in-memory transactional dataset store.
type Store struct {
	mu      sync.RWMutex
	state   memoryState
	persist Persister
	newID   func() string
}

// Option configures a Store.
type Option func(*Store)

// WithPersister installs a hook that durably records every committed transaction.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithIDFunc overrides dataset id generation.
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewStore constructs an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{state: newMemoryState(), newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	store   *Store
	state   memoryState
	changes []Change
}

// Insert adds a dataset, assigning an id when it has none.
func (tx *Transaction) Insert(ds domain.Dataset) (domain.Dataset, error) {
	ds = ds.Clone()
	if ds.ID == "" {
		ds.ID = tx.store.newID()
	}
	if _, exists := tx.state.datasets[ds.ID]; exists {
		return domain.Dataset{}, fmt.Errorf("%w: %s", domain.ErrDuplicate, ds.ID)
	}
	tx.state.datasets[ds.ID] = ds
	tx.state.order = append(tx.state.order, ds.ID)
	tx.changes = append(tx.changes, Change{Action: ActionInsert, Dataset: ds.Clone()})
	return ds.Clone(), nil
}

// Delete removes a dataset by id.
func (tx *Transaction) Delete(id string) error {
	ds, ok := tx.state.datasets[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(tx.state.datasets, id)
	for i, existing := range tx.state.order {
		if existing == id {
			tx.state.order = append(tx.state.order[:i:i], tx.state.order[i+1:]...)
			break
		}
	}
	tx.changes = append(tx.changes, Change{Action: ActionDelete, Dataset: ds})
	return nil
}

// Find returns a dataset visible within the transaction.
func (tx *Transaction) Find(id string) (domain.Dataset, bool) {
	ds, ok := tx.state.datasets[id]
	if !ok {
		return domain.Dataset{}, false
	}
	return ds.Clone(), true
}

// RunInTransaction applies fn to a private copy of the state and commits it
// when fn and the persister succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx *Transaction) error) ([]Change, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Transaction{store: s, state: s.state.clone()}
	if err := fn(tx); err != nil {
		return nil, err
	}
	if s.persist != nil && len(tx.changes) > 0 {
		if err := s.persist(ctx, tx.changes); err != nil {
			return nil, err
		}
	}
	s.state = tx.state
	return tx.changes, nil
}

// Insert stores datasets atomically.
func (s *Store) Insert(ctx context.Context, datasets ...domain.Dataset) ([]domain.Dataset, error) {
	out := make([]domain.Dataset, 0, len(datasets))
	_, err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		for _, ds := range datasets {
			stored, err := tx.Insert(ds)
			if err != nil {
				return err
			}
			out = append(out, stored)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a dataset.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.RunInTransaction(ctx, func(tx *Transaction) error {
		return tx.Delete(id)
	})
	return err
}

// Get returns a snapshot of one dataset.
func (s *Store) Get(_ context.Context, id string) (domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.state.datasets[id]
	if !ok {
		return domain.Dataset{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return ds.Clone(), nil
}

// Search returns snapshots of all datasets matching pred, in insertion order.
func (s *Store) Search(ctx context.Context, pred domain.Predicate) ([]domain.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pred == nil {
		pred = domain.All
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Dataset
	for _, id := range s.state.order {
		ds := s.state.datasets[id]
		if pred(ds) {
			out = append(out, ds.Clone())
		}
	}
	return out, nil
}

// Len returns the number of stored datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.order)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Datasets: make([]domain.Dataset, 0, len(s.state.order))}
	for _, id := range s.state.order {
		out.Datasets = append(out.Datasets, s.state.datasets[id].Clone())
	}
	return out
}

// ImportState replaces the store state with the provided snapshot without
// invoking the persister. Datasets without an id are assigned one.
func (s *Store) ImportState(snapshot Snapshot) {
	state := newMemoryState()
	for _, ds := range snapshot.Datasets {
		ds = ds.Clone()
		if ds.ID == "" {
			ds.ID = s.newID()
		}
		if _, dup := state.datasets[ds.ID]; dup {
			continue
		}
		state.datasets[ds.ID] = ds
		state.order = append(state.order, ds.ID)
	}
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }
