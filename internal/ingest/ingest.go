// Package ingest accepts raw news items and persists the ones not seen
// before. Exact duplicates are detected by the content-address of the item
// URL, which doubles as the storage key, so repeated ingestion of the same
// URL is naturally idempotent.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/fingerprint"
	"github.com/Seci84/ITriggr/internal/logger"
)

// Store is the slice of the persistence adapter ingestion needs.
type Store interface {
	RawItemExists(ctx context.Context, id string) (bool, error)
	SaveRawItem(ctx context.Context, item core.RawItem) error
}

// Summary reports what a batch ingestion did.
type Summary struct {
	Stored  int
	Skipped int
	Dropped int
	Total   int
}

// Deduplicator persists incoming items, suppressing exact URL repeats.
type Deduplicator struct {
	store Store
}

// NewDeduplicator creates a deduplicator backed by the given store.
func NewDeduplicator(store Store) *Deduplicator {
	return &Deduplicator{store: store}
}

// ContentAddress returns the stable storage key for a URL: the first 32 hex
// characters of its SHA-256 digest.
func ContentAddress(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:32]
}

// Ingest processes one item. It returns true if the item was stored, false
// if it was suppressed as an exact duplicate or dropped for missing fields.
// Store failures propagate so the caller can decide whether to retry the
// batch.
func (d *Deduplicator) Ingest(ctx context.Context, item core.RawItem) (bool, error) {
	item.Title = NormalizeText(item.Title)
	item.ContentHint = NormalizeText(item.ContentHint)
	if item.Title == "" || item.URL == "" {
		return false, nil
	}

	id := ContentAddress(item.URL)
	exists, err := d.store.RawItemExists(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if exists {
		return false, nil
	}

	item.ID = id
	item.Fingerprint = fingerprint.Fingerprint(item.Title + " " + item.ContentHint)
	if item.PublishedAt == 0 {
		item.PublishedAt = time.Now().Unix()
	}
	item.CreatedAt = time.Now().UTC()

	if err := d.store.SaveRawItem(ctx, item); err != nil {
		return false, fmt.Errorf("failed to store item: %w", err)
	}
	return true, nil
}

// IngestBatch runs Ingest over a slice of items. Per-item store failures
// are logged and counted as skipped so one bad write does not abort the
// batch; only a nil store or context cancellation stops the loop early.
func (d *Deduplicator) IngestBatch(ctx context.Context, items []core.RawItem) (Summary, error) {
	summary := Summary{Total: len(items)}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if NormalizeText(item.Title) == "" || item.URL == "" {
			summary.Dropped++
			continue
		}
		stored, err := d.Ingest(ctx, item)
		if err != nil {
			logger.Error("Failed to ingest item", err, "url", item.URL)
			summary.Skipped++
			continue
		}
		if stored {
			summary.Stored++
		} else {
			summary.Skipped++
		}
	}
	return summary, nil
}

// NormalizeText collapses runs of whitespace into single spaces and trims
// the ends, so cosmetic edits do not change fingerprints.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
