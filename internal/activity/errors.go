package activity

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch reports condition and value arrays that cannot be
	// reconciled to a common sample count.
	ErrShapeMismatch = errors.New("activity: shape mismatch")
	// ErrMissingCondition reports a dataset without a P or T axis.
	ErrMissingCondition = errors.New("activity: missing condition")
	// ErrParameterCount reports a trial vector whose length differs from the
	// fitted symbol list.
	ErrParameterCount = errors.New("activity: parameter count mismatch")
	// ErrBadOutput reports an output tag that names no component.
	ErrBadOutput = errors.New("activity: malformed output tag")
)

// ShapeError describes an axis that could not be broadcast onto the values.
type ShapeError struct {
	Dataset string
	Axis    string
	Shape   []int
	Values  []int
	Err     error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("dataset %s: condition %s with shape %v cannot broadcast onto values %v: %v",
		e.Dataset, e.Axis, e.Shape, e.Values, e.Err)
}

func (e *ShapeError) Unwrap() error { return e.Err }
