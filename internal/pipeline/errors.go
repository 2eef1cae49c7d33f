package pipeline

import (
	"errors"
	"fmt"
)

// Category classifies a run failure for the caller.
type Category string

const (
	// CategoryInput covers invalid or missing run parameters.
	CategoryInput Category = "input"
	// CategoryDataAvailability covers empty scene collections for the
	// requested region and time windows.
	CategoryDataAvailability Category = "data_availability"
	// CategorySampling covers reference point problems: invalid labels or
	// no usable samples after intersecting points with the stack.
	CategorySampling Category = "sampling"
	// CategoryComputation covers failures inside the analysis itself,
	// including exceeded pixel limits.
	CategoryComputation Category = "computation"
	// CategoryExport covers mask export failures after a successful
	// analysis.
	CategoryExport Category = "export"
)

// Error is a categorized run failure with a human-readable message.
type Error struct {
	Category Category
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func inputErr(format string, args ...any) *Error {
	return &Error{Category: CategoryInput, Err: fmt.Errorf(format, args...)}
}

func wrapErr(cat Category, err error) *Error {
	return &Error{Category: cat, Err: err}
}

// CategoryOf extracts the failure category from an error, defaulting to
// computation for uncategorized errors.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryComputation
}
