// Package fs serves dataset documents from a local directory tree. Keys are
// slash separated paths relative to the root, so a directory of hand written
// JSON files can be imported without any sidecar metadata.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"thermofit/internal/blob/object"
)

var _ object.Store = (*Store)(nil)

// DefaultRoot is used when no root directory is configured.
const DefaultRoot = "./datasets"

const tempPrefix = ".tmp-"

// Store implements object.Store on the local filesystem.
type Store struct {
	root string
}

// New returns a filesystem-backed store rooted at root, creating it if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = DefaultRoot
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

// Driver returns the blob driver identifier.
func (s *Store) Driver() object.Driver { return object.DriverFilesystem }

func (s *Store) pathFor(key string) (string, string, error) {
	k, err := object.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes a new document; existing keys are rejected.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts object.PutOptions) (object.Info, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, err
	}
	k, dataPath, err := s.pathFor(key)
	if err != nil {
		return object.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return object.Info{}, fmt.Errorf("%w: %s", object.ErrExists, k)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o750); err != nil {
		return object.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dataPath), tempPrefix+"*")
	if err != nil {
		return object.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		_ = tmp.Close()
		return object.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return object.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return object.Info{}, err
	}
	info, err := s.stat(k, dataPath)
	if err != nil {
		return object.Info{}, err
	}
	info.ETag = hex.EncodeToString(h.Sum(nil))
	if opts.ContentType != "" {
		info.ContentType = opts.ContentType
	}
	return info, nil
}

// Get opens a document for reading.
func (s *Store) Get(ctx context.Context, key string) (object.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, nil, err
	}
	k, dataPath, err := s.pathFor(key)
	if err != nil {
		return object.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return object.Info{}, nil, notFound(k, err)
	}
	info, err := s.stat(k, dataPath)
	if err != nil {
		_ = file.Close()
		return object.Info{}, nil, err
	}
	return info, file, nil
}

// Head returns document metadata, including a content digest.
func (s *Store) Head(ctx context.Context, key string) (object.Info, error) {
	if err := ctx.Err(); err != nil {
		return object.Info{}, err
	}
	k, dataPath, err := s.pathFor(key)
	if err != nil {
		return object.Info{}, err
	}
	info, err := s.stat(k, dataPath)
	if err != nil {
		return object.Info{}, err
	}
	etag, err := digest(dataPath)
	if err != nil {
		return object.Info{}, err
	}
	info.ETag = etag
	return info, nil
}

// Delete removes a document, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, dataPath, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List walks the root and returns documents whose key starts with prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]object.Info, error) {
	var infos []object.Info
	err := filepath.WalkDir(s.root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, object.Info{
			Key:          key,
			Size:         fi.Size(),
			ContentType:  object.ContentTypeFor(key),
			LastModified: fi.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) stat(key, dataPath string) (object.Info, error) {
	fi, err := os.Stat(dataPath)
	if err != nil {
		return object.Info{}, notFound(key, err)
	}
	if fi.IsDir() {
		return object.Info{}, fmt.Errorf("%w: %s is a directory", object.ErrNotFound, key)
	}
	return object.Info{
		Key:          key,
		Size:         fi.Size(),
		ContentType:  object.ContentTypeFor(key),
		LastModified: fi.ModTime().UTC(),
	}, nil
}

func notFound(key string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %s", object.ErrNotFound, key)
	}
	return err
}

func digest(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
