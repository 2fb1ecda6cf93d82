package store

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketResults = []byte("results")

var _ Store = (*BoltStore)(nil)

// BoltStore implements Store using a bbolt file. Keys are result ids, so the
// bucket's byte ordering is the listing order.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketResults); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketResults, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) PutResult(_ context.Context, id string, doc []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		if b.Get([]byte(id)) != nil {
			return ErrExists
		}
		return b.Put([]byte(id), doc)
	})
	if err == ErrExists {
		return err
	}
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	return nil
}

func (s *BoltStore) GetResult(_ context.Context, id string) ([]byte, error) {
	var doc []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketResults).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		// Values are only valid for the life of the transaction.
		doc = bytes.Clone(v)
		return nil
	})
	if err == ErrNotFound {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return doc, nil
}

// Results reads one page per read transaction and yields outside it, so a
// slow consumer never pins the database.
func (s *BoltStore) Results(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		var after []byte
		for {
			if err := ctx.Err(); err != nil {
				yield(Entry{}, err)
				return
			}
			page, err := s.resultPage(after)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, e := range page {
				if !yield(e, nil) {
					return
				}
			}
			if len(page) < listPageSize {
				return
			}
			after = []byte(page[len(page)-1].ID)
		}
	}
}

func (s *BoltStore) resultPage(after []byte) ([]Entry, error) {
	var page []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResults).Cursor()
		k, v := c.First()
		if after != nil {
			k, v = c.Seek(after)
			if k != nil && bytes.Equal(k, after) {
				k, v = c.Next()
			}
		}
		for ; k != nil && len(page) < listPageSize; k, v = c.Next() {
			page = append(page, Entry{ID: string(k), Doc: bytes.Clone(v)})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return page, nil
}
