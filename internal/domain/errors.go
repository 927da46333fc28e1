package domain

import (
	"fmt"
	"strings"
)

// DataError means no historical rows exist for the requested product.
type DataError struct {
	ProductID string
	Reason    string
}

func (e *DataError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("data error for product %q: %s", e.ProductID, e.Reason)
	}
	return fmt.Sprintf("data error: no historical rows for product %q", e.ProductID)
}

// SchemaError lists required input columns that are missing.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ModelFitError means a model failed to fit the training series.
type ModelFitError struct {
	Model string
	Err   error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("model fit error (%s): %v", e.Model, e.Err)
}

func (e *ModelFitError) Unwrap() error {
	return e.Err
}
