package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
)

var (
	// ErrNotFound is returned when no result exists for an identifier.
	ErrNotFound = errors.New("result not found")
	// ErrExists is returned when a result is put under an identifier already in use.
	ErrExists = errors.New("result already exists")
)

// listPageSize bounds how many entries a driver reads per listing query.
const listPageSize = 128

var idRe = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// Entry is one persisted result document.
type Entry struct {
	ID  string
	Doc []byte
}

// Store persists completed result documents by identifier. Documents are
// immutable once written. All implementations are safe for concurrent use.
type Store interface {
	// PutResult stores doc under id. It fails with ErrExists if id is taken.
	PutResult(ctx context.Context, id string, doc []byte) error
	// GetResult returns the document stored under id, or ErrNotFound.
	GetResult(ctx context.Context, id string) ([]byte, error)
	// Results yields every entry in ascending id order. Each call starts a
	// fresh listing. A listing failure is yielded once and ends the sequence.
	Results(ctx context.Context) iter.Seq2[Entry, error]
	Close() error
}

// Count returns the number of stored results.
func Count(ctx context.Context, s Store) (int, error) {
	n := 0
	for _, err := range s.Results(ctx) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func checkID(id string) error {
	if !idRe.MatchString(id) {
		return fmt.Errorf("invalid result id %q", id)
	}
	return nil
}
