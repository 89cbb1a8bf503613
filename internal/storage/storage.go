// Package storage defines where rendered blocklists are written.
package storage

import (
	"context"
	"io"
)

// BlobStore writes one object and returns a URI identifying it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
