// Package sitemap downloads sitemap XML and turns its entries into job
// descriptors with numeric ids derived from each entry's loc.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-job-crawler/internal/crawler"
)

// defaultNamespace matches the first default namespace declaration. Removing it
// lets entries be located by bare tag name.
var defaultNamespace = regexp.MustCompile(`\sxmlns="[^"]+"`)

// Config controls parsing strictness.
type Config struct {
	// SkipMalformedIDs logs and drops entries whose loc has a non-numeric trailing
	// segment instead of failing the whole sitemap.
	SkipMalformedIDs bool
}

// Fetcher retrieves and parses sitemaps.
type Fetcher struct {
	fetcher crawler.Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New constructs a sitemap Fetcher on top of a page fetcher.
func New(fetcher crawler.Fetcher, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		fetcher: fetcher,
		cfg:     cfg,
		logger:  logger,
	}
}

// Fetch downloads the sitemap at url and parses it.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]crawler.SitemapEntry, error) {
	body, err := f.Download(ctx, url)
	if err != nil {
		return nil, err
	}
	return f.Parse(body)
}

// Download issues a single GET for the sitemap and returns the raw body.
func (f *Fetcher) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := f.fetcher.Fetch(ctx, crawler.FetchRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("download sitemap: %w", err)
	}
	f.logger.Debug("sitemap downloaded",
		zap.String("url", url),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
	)
	return resp.Body, nil
}

// Parse converts sitemap XML into entries in document order. Each element
// child of the root is one entry; its loc supplies the id and every other child
// element is kept as an extra field.
func (f *Fetcher) Parse(body []byte) ([]crawler.SitemapEntry, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(stripDefaultNamespace(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crawler.ErrParse, err)
	}
	root, err := rootElement(doc)
	if err != nil {
		return nil, err
	}

	var (
		entries []crawler.SitemapEntry
		seen    = make(map[int64]struct{})
		index   int
	)
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != xmlquery.ElementNode {
			continue
		}
		index++
		entry, err := parseEntry(child)
		if err != nil {
			if f.cfg.SkipMalformedIDs && isMalformed(err) {
				f.logger.Warn("skipping sitemap entry", zap.Int("entry", index), zap.Error(err))
				continue
			}
			return nil, fmt.Errorf("sitemap entry %d: %w", index, err)
		}
		if _, dup := seen[entry.ID]; dup {
			f.logger.Debug("duplicate sitemap entry", zap.Int64("job_id", entry.ID), zap.String("loc", entry.Loc))
			continue
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}
	return entries, nil
}
