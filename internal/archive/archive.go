// Package archive stores raw sitemap bodies so each crawl can be replayed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

const contentType = "application/xml"

// Archiver writes sitemap snapshots to a BlobStore.
type Archiver struct {
	store  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// New builds an Archiver. An empty prefix defaults to "sitemaps".
func New(store crawler.BlobStore, hasher crawler.Hasher, clock crawler.Clock, prefix string, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "sitemaps"
	}
	return &Archiver{
		store:  store,
		hasher: hasher,
		clock:  clock,
		prefix: prefix,
		logger: logger,
	}
}

// ObjectPath returns <prefix>/<yyyy>/<mm>/<dd>/<runID>-<digest>.xml.
func ObjectPath(prefix string, at time.Time, runID, digest string) string {
	at = at.UTC()
	return path.Join(prefix, at.Format("2006"), at.Format("01"), at.Format("02"),
		fmt.Sprintf("%s-%s.xml", runID, digest))
}

// Store archives body for runID and returns the blob URI.
func (a *Archiver) Store(ctx context.Context, runID string, body []byte) (string, error) {
	digest, err := a.hasher.Hash(body)
	if err != nil {
		return "", fmt.Errorf("hash sitemap: %w", err)
	}
	objectPath := ObjectPath(a.prefix, a.clock.Now(), runID, digest)
	uri, err := a.store.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("archive sitemap: %w", err)
	}
	a.logger.Debug("sitemap archived",
		zap.String("run_id", runID),
		zap.String("uri", uri),
		zap.Int("bytes", len(body)),
	)
	return uri, nil
}
