package datasets

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/zstd"

	"thermofit/pkg/domain"
)

var (
	// ErrInvalidDocument is returned for documents that fail to decode or
	// validate.
	ErrInvalidDocument = errors.New("datasets: invalid document")
	// ErrEmptyDocument is returned for documents with no dataset in them.
	ErrEmptyDocument = errors.New("datasets: empty document")
)

// DocumentError names the document that stopped an import.
type DocumentError struct {
	Key string
	Err error
}

func (e *DocumentError) Error() string { return fmt.Sprintf("dataset document %s: %v", e.Key, e.Err) }

func (e *DocumentError) Unwrap() error { return e.Err }

// Supported reports whether key names a dataset document.
func Supported(key string) bool {
	return strings.HasSuffix(key, ".json") || strings.HasSuffix(key, ".json.zst")
}

// Decode reads one document, inflating zstd frames when key ends in .zst. A
// document holds either one dataset object or an array of them.
func Decode(key string, r io.Reader) ([]domain.Dataset, error) {
	if strings.HasSuffix(key, ".zst") {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrInvalidDocument, err)
		}
		defer dec.Close()
		r = dec
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrInvalidDocument, err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, ErrEmptyDocument
	}
	var out []domain.Dataset
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	} else {
		var ds domain.Dataset
		if err := json.Unmarshal(raw, &ds); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		out = append(out, ds)
	}
	if len(out) == 0 {
		return nil, ErrEmptyDocument
	}
	return out, nil
}

// Validator checks decoded datasets against their struct tags and the
// shape rules the residual functions rely on.
type Validator struct {
	v *validator.Validate
}

// NewValidator builds a Validator.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateConditions, domain.Dataset{})
	return &Validator{v: v}
}

// Validate returns ErrInvalidDocument wrapping every field violation.
func (v *Validator) Validate(ds domain.Dataset) error {
	if err := v.v.Struct(ds); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// validateConditions requires P and T and rejects empty condition arrays.
func validateConditions(sl validator.StructLevel) {
	ds := sl.Current().Interface().(domain.Dataset)
	for _, axis := range []string{"P", "T"} {
		a, ok := ds.Conditions[axis]
		if !ok {
			sl.ReportError(ds.Conditions, "Conditions["+axis+"]", axis, "required", "")
			continue
		}
		if a.Size() == 0 {
			sl.ReportError(a, "Conditions["+axis+"]", axis, "min", "1")
		}
	}
	if ds.ReferenceState != nil {
		for name, a := range ds.ReferenceState.Conditions {
			if !a.IsScalar() && a.Size() != 1 {
				sl.ReportError(a, "ReferenceState.Conditions["+name+"]", name, "scalar", "")
			}
		}
	}
}
