// Package memory implements an in-memory document store for tests and for
// seeding imports programmatically.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"thermofit/internal/blob/object"
)

var _ object.Store = (*Store)(nil)

type entry struct {
	info object.Info
	data []byte
}

// Store implements object.Store backed by process memory.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
	now  func() time.Time
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{objs: make(map[string]entry), now: func() time.Time { return time.Now().UTC() }}
}

// Driver returns the blob driver identifier.
func (s *Store) Driver() object.Driver { return object.DriverMemory }

// Put stores a new document; existing keys are rejected.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts object.PutOptions) (object.Info, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, err
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return object.Info{}, err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return object.Info{}, err
	}
	sum := sha256.Sum256(b)
	info := object.Info{
		Key:          k,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: s.now(),
	}
	if info.ContentType == "" {
		info.ContentType = object.ContentTypeFor(k)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[k]; exists {
		return object.Info{}, fmt.Errorf("%w: %s", object.ErrExists, k)
	}
	s.objs[k] = entry{info: info, data: b}
	return info, nil
}

// Get returns document metadata and a reader over a private copy of its bytes.
func (s *Store) Get(ctx context.Context, key string) (object.Info, io.ReadCloser, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return object.Info{}, nil, err
	}
	return e.info, io.NopCloser(bytes.NewReader(bytes.Clone(e.data))), nil
}

// Head returns document metadata only.
func (s *Store) Head(ctx context.Context, key string) (object.Info, error) {
	e, err := s.lookup(ctx, key)
	if err != nil {
		return object.Info{}, err
	}
	return e.info, nil
}

func (s *Store) lookup(ctx context.Context, key string) (entry, error) {
	if err := ctx.Err(); err != nil {
		return entry{}, err
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return entry{}, err
	}
	s.mu.RLock()
	e, ok := s.objs[k]
	s.mu.RUnlock()
	if !ok {
		return entry{}, fmt.Errorf("%w: %s", object.ErrNotFound, k)
	}
	return e, nil
}

// Delete removes the document returning true if it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k, err := object.CleanKey(key)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[k]
	delete(s.objs, k)
	return ok, nil
}

// List returns all documents whose key starts with prefix, sorted by key.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]object.Info, 0, len(s.objs))
	for k, e := range s.objs {
		if strings.HasPrefix(k, prefix) {
			out = append(out, e.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
