// Package config loads thermofit settings from an optional YAML file layered
// under THERMOFIT_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"thermofit/internal/blob"
	"thermofit/internal/core"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "THERMOFIT_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Log configures the structured logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Storage    core.StorageConfig `yaml:"storage"`
	Blob       blob.Config        `yaml:"blob"`
	Weights    map[string]float64 `yaml:"weights"`
	Symbols    []string           `yaml:"symbols"`
	Components []string           `yaml:"components"`
	Workers    int                `yaml:"workers"`
	Log        Log                `yaml:"log"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Storage: core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: "thermofit.db"},
		Blob:    blob.Config{Driver: blob.DriverFilesystem, FSRoot: "./datasets"},
		Workers: 1,
		Log:     Log{Level: "info", Format: "text"},
	}
}

// Load reads path (when non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.Decode(raw); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode merges a YAML document into cfg. Unknown keys are rejected.
func (c *Config) Decode(raw []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: yaml: %v", ErrInvalid, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	var storage, blobDriver string
	str("STORAGE_DRIVER", &storage)
	if storage != "" {
		c.Storage.Driver = core.StorageDriver(storage)
	}
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("BLOB_DRIVER", &blobDriver)
	if blobDriver != "" {
		c.Blob.Driver = blob.Driver(blobDriver)
	}
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("BLOB_S3_REGION", &c.Blob.S3.Region)
	str("BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup(EnvPrefix + "BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %sBLOB_S3_PATH_STYLE=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Blob.S3.PathStyle = b
	}
	if v, ok := lookup(EnvPrefix + "WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sWORKERS=%q", ErrInvalid, EnvPrefix, v)
		}
		c.Workers = n
	}
	return nil
}

// Validate rejects values no component can use.
func (c Config) Validate() error {
	var problems []string
	switch core.StorageDriver(strings.ToLower(string(c.Storage.Driver))) {
	case "", core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			problems = append(problems, "storage.postgres_dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q is unknown", c.Storage.Driver))
	}
	switch blob.Driver(strings.ToLower(string(c.Blob.Driver))) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			problems = append(problems, "blob.s3.bucket is required for the s3 driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("blob.driver %q is unknown", c.Blob.Driver))
	}
	if c.Workers < 1 {
		problems = append(problems, fmt.Sprintf("workers must be at least 1, got %d", c.Workers))
	}
	tags := make([]string, 0, len(c.Weights))
	for tag := range c.Weights {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	for _, tag := range tags {
		if w := c.Weights[tag]; !(w > 0) {
			problems = append(problems, fmt.Sprintf("weights.%s must be positive, got %v", tag, w))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is unknown", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is unknown", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
