package engine

import (
	"errors"
	"fmt"
)

// ErrDatasetNotFound is returned when a streaming request names a dataset
// that does not exist in the data directory.
var ErrDatasetNotFound = errors.New("dataset not found")

// OutputParseError reports that a batch computation finished without
// producing a usable result document. It carries the raw output for
// diagnosis.
type OutputParseError struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

func (e *OutputParseError) Error() string {
	return fmt.Sprintf("computation output unusable (exit code %d): %v", e.ExitCode, e.Err)
}

func (e *OutputParseError) Unwrap() error {
	return e.Err
}
