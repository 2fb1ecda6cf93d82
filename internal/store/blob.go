package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"slices"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

const (
	blobPrefix = "results/"
	blobSuffix = ".json"
)

var _ Store = (*BlobStore)(nil)

// BlobStore implements Store on a gocloud.dev/blob bucket.
// Results are stored at: results/<id>.json
type BlobStore struct {
	bucket *blob.Bucket
}

// NewBlobStore wraps an open bucket. Close closes the bucket.
func NewBlobStore(bucket *blob.Bucket) *BlobStore {
	return &BlobStore{bucket: bucket}
}

func blobKey(id string) string {
	return blobPrefix + id + blobSuffix
}

func (s *BlobStore) Close() error {
	return s.bucket.Close()
}

// PutResult writes the document unless an object already exists at its key.
func (s *BlobStore) PutResult(ctx context.Context, id string, doc []byte) error {
	if err := checkID(id); err != nil {
		return err
	}
	key := blobKey(id)

	exists, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check result: %w", err)
	}
	if exists {
		return ErrExists
	}

	w, err := s.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("open writer: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		w.Close()
		return fmt.Errorf("write result: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (s *BlobStore) GetResult(ctx context.Context, id string) ([]byte, error) {
	if checkID(id) != nil {
		return nil, ErrNotFound
	}
	doc, err := s.bucket.ReadAll(ctx, blobKey(id))
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	return doc, nil
}

// Results lists keys first, sorts them, then reads each document lazily.
// Objects removed between the listing and the read are skipped.
func (s *BlobStore) Results(ctx context.Context) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		ids, err := s.ids(ctx)
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, id := range ids {
			doc, err := s.GetResult(ctx, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if !yield(Entry{ID: id, Doc: doc}, nil) {
				return
			}
		}
	}
}

func (s *BlobStore) ids(ctx context.Context) ([]string, error) {
	var ids []string
	it := s.bucket.List(&blob.ListOptions{Prefix: blobPrefix})
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		if obj.IsDir {
			continue
		}
		id, ok := strings.CutSuffix(strings.TrimPrefix(obj.Key, blobPrefix), blobSuffix)
		if !ok || checkID(id) != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
