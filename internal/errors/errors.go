package errors

import (
	"io/fs"
	"strings"
)

type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Field + ": " + e.Message
}

// NotFoundError reports a history table file that does not exist yet.
// Callers treat it as the "create a new table" signal.
type NotFoundError struct {
	Table string
	Path  string
}

func (e *NotFoundError) Error() string {
	return e.Table + " history CSV not found: " + e.Path
}

// Unwrap lets errors.Is(err, fs.ErrNotExist) match.
func (e *NotFoundError) Unwrap() error {
	return fs.ErrNotExist
}

// SchemaError reports required columns missing from a history table.
type SchemaError struct {
	Table   string
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns in " + strings.ToLower(e.Table) + " CSV: [" + strings.Join(e.Missing, ", ") + "]"
}
