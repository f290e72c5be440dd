// Package cluster groups recently ingested items into similarity clusters
// keyed by a prefix of their fingerprints. Clusters are recomputed on every
// run from a trailing time window; membership is not stable across runs and
// is not meant to be. Idempotent generation is keyed by the cluster key, not
// by item identity.
package cluster

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/fingerprint"
	"github.com/Seci84/ITriggr/internal/logger"
)

// Store is the slice of the persistence adapter clustering reads from.
type Store interface {
	ListRawItemsSince(ctx context.Context, since int64) ([]core.RawItem, error)
}

// Options controls how clusters are built.
type Options struct {
	Window          time.Duration // Trailing window of items to consider
	PrefixBits      int           // Fingerprint prefix width for the cluster key
	MinClusterSize  int           // Groups smaller than this are discarded (1 keeps singletons)
	ExcludedDomains []string      // Source domains skipped before grouping
}

// DefaultOptions mirror the production pipeline settings.
func DefaultOptions() Options {
	return Options{
		Window:         6 * time.Hour,
		PrefixBits:     16,
		MinClusterSize: 1,
	}
}

// Builder groups raw items into clusters.
type Builder struct {
	store Store
	opts  Options
	now   func() time.Time
}

// NewBuilder creates a cluster builder. Zero-valued options fall back to
// defaults.
func NewBuilder(store Store, opts Options) *Builder {
	defaults := DefaultOptions()
	if opts.Window <= 0 {
		opts.Window = defaults.Window
	}
	if opts.PrefixBits <= 0 {
		opts.PrefixBits = defaults.PrefixBits
	}
	if opts.MinClusterSize < 1 {
		opts.MinClusterSize = defaults.MinClusterSize
	}
	return &Builder{store: store, opts: opts, now: time.Now}
}

// BuildGroups reads items published within the window and returns them
// grouped by cluster key. Items within a group keep their stored order
// (ascending publish time).
func (b *Builder) BuildGroups(ctx context.Context) (map[string][]core.RawItem, error) {
	since := b.now().Add(-b.opts.Window).Unix()
	items, err := b.store.ListRawItemsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent items: %w", err)
	}

	groups := make(map[string][]core.RawItem)
	excluded := 0
	for _, item := range items {
		if b.isExcluded(item.URL) {
			excluded++
			continue
		}
		key := fingerprint.Prefix(item.Fingerprint, b.opts.PrefixBits)
		groups[key] = append(groups[key], item)
	}

	for key, members := range groups {
		if len(members) < b.opts.MinClusterSize {
			delete(groups, key)
		}
	}

	logger.Debug("Built clusters",
		"clusters", len(groups), "items", len(items), "excluded", excluded)
	return groups, nil
}

// isExcluded reports whether the item URL's host matches a denylisted
// domain or one of its subdomains.
func (b *Builder) isExcluded(rawURL string) bool {
	if len(b.opts.ExcludedDomains) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}
	for _, domain := range b.opts.ExcludedDomains {
		domain = strings.ToLower(domain)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}
