package store

import (
	"context"
	"fmt"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
)

// Open selects a driver from url:
//
//	sqlite://<path>, or a bare path   SQLite database
//	bolt://<path>                     bbolt database file
//	file:///<dir>?create_dir=true     directory of JSON files
//	mem://                            in-memory bucket
func Open(ctx context.Context, url string) (Store, error) {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return NewSQLiteStore(url)
	}

	switch scheme {
	case "sqlite":
		return NewSQLiteStore(rest)
	case "bolt":
		return NewBoltStore(rest)
	}

	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket: %w", err)
	}
	return NewBlobStore(bucket), nil
}
