// Package blob is the single entry point to the dataset document backends.
// Other packages depend on Store and Open; only this package imports the
// infra implementations.
package blob

import (
	"context"
	"fmt"
	"strings"

	"thermofit/internal/blob/object"
	"thermofit/internal/infra/blob/fs"
	"thermofit/internal/infra/blob/memory"
	"thermofit/internal/infra/blob/s3"
)

type (
	// Store is the document store contract.
	Store = object.Store
	// Info describes a stored document.
	Info = object.Info
	// PutOptions specifies optional parameters for Put.
	PutOptions = object.PutOptions
	// Driver identifies a backend.
	Driver = object.Driver
	// S3Config configures the S3 backend.
	S3Config = s3.Config
)

const (
	DriverFilesystem = object.DriverFilesystem
	DriverS3         = object.DriverS3
	DriverMemory     = object.DriverMemory
)

var (
	ErrNotFound   = object.ErrNotFound
	ErrExists     = object.ErrExists
	ErrInvalidKey = object.ErrInvalidKey
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root"`
	S3     S3Config `yaml:"s3"`
}

// Open constructs the configured store. An empty driver selects the
// filesystem.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(cfg.Driver))))
	switch driver {
	case "", DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverMemory:
		return memory.New(), nil
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", cfg.Driver)
	}
}
