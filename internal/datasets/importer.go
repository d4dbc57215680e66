// Package datasets imports experimental dataset documents from a blob source
// into a dataset store.
package datasets

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"thermofit/internal/blob"
	"thermofit/pkg/domain"
)

// Logger is the structured logging surface used by the importer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Importer copies dataset documents from a blob source into a store.
type Importer struct {
	source    blob.Store
	store     domain.DatasetStore
	validator *Validator
	logger    Logger
	newID     func(key string, index int) string
}

// Option configures an Importer.
type Option func(*Importer)

// WithLogger sets the importer logger.
func WithLogger(l Logger) Option {
	return func(im *Importer) {
		if l != nil {
			im.logger = l
		}
	}
}

// WithIDFunc overrides how ids are derived for datasets that carry none.
func WithIDFunc(fn func(key string, index int) string) Option {
	return func(im *Importer) {
		if fn != nil {
			im.newID = fn
		}
	}
}

// DocumentID derives a stable id from the document key so that importing the
// same document twice is reported as a duplicate.
func DocumentID(key string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("thermofit:dataset:"+key+"#"+strconv.Itoa(index))).String()
}

// NewImporter binds a source to a store.
func NewImporter(source blob.Store, store domain.DatasetStore, opts ...Option) *Importer {
	im := &Importer{
		source:    source,
		store:     store,
		validator: NewValidator(),
		logger:    noopLogger{},
		newID:     DocumentID,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Report summarises one import.
type Report struct {
	Keys    []string
	Skipped []string
	IDs     []string
}

// Import reads every supported document under prefix and inserts all of
// their datasets in one store transaction. The first invalid document stops
// the import and nothing is inserted.
func (im *Importer) Import(ctx context.Context, prefix string) (Report, error) {
	var rep Report
	infos, err := im.source.List(ctx, prefix)
	if err != nil {
		return rep, fmt.Errorf("list %q: %w", prefix, err)
	}
	var pending []domain.Dataset
	for _, info := range infos {
		if !Supported(info.Key) {
			rep.Skipped = append(rep.Skipped, info.Key)
			continue
		}
		found, err := im.Load(ctx, info.Key)
		if err != nil {
			return rep, err
		}
		rep.Keys = append(rep.Keys, info.Key)
		pending = append(pending, found...)
		im.logger.Debug("dataset document decoded", "key", info.Key, "datasets", len(found))
	}
	if len(pending) == 0 {
		return rep, nil
	}
	stored, err := im.store.Insert(ctx, pending...)
	if err != nil {
		return rep, fmt.Errorf("insert datasets: %w", err)
	}
	for _, ds := range stored {
		rep.IDs = append(rep.IDs, ds.ID)
	}
	im.logger.Info("datasets imported", "prefix", prefix, "documents", len(rep.Keys), "datasets", len(rep.IDs), "skipped", len(rep.Skipped))
	return rep, nil
}

// Load reads, decodes and validates one document, assigning ids to datasets
// that have none.
func (im *Importer) Load(ctx context.Context, key string) ([]domain.Dataset, error) {
	_, body, err := im.source.Get(ctx, key)
	if err != nil {
		return nil, &DocumentError{Key: key, Err: err}
	}
	defer func() { _ = body.Close() }()
	found, err := Decode(key, body)
	if err != nil {
		return nil, &DocumentError{Key: key, Err: err}
	}
	for i := range found {
		if err := im.validator.Validate(found[i]); err != nil {
			return nil, &DocumentError{Key: key, Err: err}
		}
		if found[i].ID == "" {
			found[i].ID = im.newID(key, i)
		}
	}
	return found, nil
}
