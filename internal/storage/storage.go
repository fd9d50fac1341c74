// Package storage abstracts where stored-file bytes live. The site
// settings pick one implementation at startup: local filesystem or S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store reads and writes file content blobs by opaque key.
type Store interface {
	// Put streams content into the store under key.
	Put(ctx context.Context, key string, content io.Reader) (int64, error)

	// Get opens the content behind key. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the content behind key. Deleting a missing key is
	// not an error; delete retries must stay idempotent.
	Delete(ctx context.Context, key string) error
}

// NewKey produces a fresh storage key, date-sharded so a busy site does
// not pile every blob into one directory or prefix.
func NewKey(ownerID string) string {
	d := time.Now()
	return fmt.Sprintf("%s/%d/%02d/%02d/%s", ownerID, d.Year(), d.Month(), d.Day(), uuid.New())
}
