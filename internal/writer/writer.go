// Package writer renders a blocklist set and writes it to every configured
// blob store.
package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/urlsec-blocklist/internal/blocklist"
	"github.com/JakeFAU/urlsec-blocklist/internal/hash/sha256"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage"
)

// TimestampLayout formats the write time logged with each blocklist.
const TimestampLayout = "02_Jan_2006_15_04_05-UTC"

// ContentType is sent to stores that record one.
const ContentType = "text/plain; charset=utf-8"

// ErrNoEntries is returned for an empty set. Nothing is written.
var ErrNoEntries = errors.New("URL extraction failed: no entries")

// Clock provides the write time.
type Clock interface {
	Now() time.Time
}

// Hasher fingerprints the rendered content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Result describes a completed write.
type Result struct {
	Entries   int
	Path      string
	Timestamp string
	WrittenAt time.Time
	// SHA256 is the hex digest of the written content.
	SHA256 string
	// URIs holds one URI per store, in store order.
	URIs []string
}

// Writer writes rendered blocklists.
type Writer struct {
	path   string
	stores []storage.BlobStore
	clock  Clock
	hasher Hasher
	logger *zap.Logger
}

// New builds a Writer that stores the blocklist under path in every store.
// stores[0] is the primary store; the rest are mirrors. The primary is only
// written once every mirror has accepted the content.
func New(path string, stores []storage.BlobStore, clock Clock, logger *zap.Logger) (*Writer, error) {
	if path == "" {
		return nil, errors.New("output path is required")
	}
	if len(stores) == 0 {
		return nil, errors.New("at least one blob store is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{path: path, stores: stores, clock: clock, hasher: sha256.New(), logger: logger}, nil
}

// Write renders set and writes it to every mirror, then to the primary
// store. An empty or nil set returns ErrNoEntries without touching any
// store, and a failed mirror leaves the primary untouched.
func (w *Writer) Write(ctx context.Context, set *blocklist.Set) (Result, error) {
	if set.Len() == 0 {
		return Result{}, ErrNoEntries
	}

	now := w.clock.Now().UTC()
	content := []byte(set.Render())
	digest, err := w.hasher.Hash(content)
	if err != nil {
		return Result{}, fmt.Errorf("hash blocklist: %w", err)
	}
	res := Result{
		Entries:   set.Len(),
		Path:      w.path,
		Timestamp: now.Format(TimestampLayout),
		WrittenAt: now,
		SHA256:    digest,
		URIs:      make([]string, len(w.stores)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, store := range w.stores[1:] {
		g.Go(func() error {
			uri, err := store.PutObject(gctx, w.path, ContentType, bytes.NewReader(content))
			if err != nil {
				return fmt.Errorf("write %s mirror: %w", w.path, err)
			}
			res.URIs[i+1] = uri
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	uri, err := w.stores[0].PutObject(ctx, w.path, ContentType, bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("write %s: %w", w.path, err)
	}
	res.URIs[0] = uri

	w.logger.Info("Blocklist written",
		zap.Int("entries", res.Entries),
		zap.String("file", res.Path),
		zap.String("timestamp", res.Timestamp),
		zap.Strings("uris", res.URIs),
	)
	return res, nil
}
