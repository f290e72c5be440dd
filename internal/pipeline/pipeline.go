// Package pipeline wires the stages together into short-lived batch runs:
// ingest feeds, cluster recent items, generate articles, attach images.
// Every run terminates with summary counts regardless of backend
// availability; partial failures never abort a batch.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Seci84/ITriggr/internal/cluster"
	"github.com/Seci84/ITriggr/internal/config"
	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/fetch"
	"github.com/Seci84/ITriggr/internal/generate"
	"github.com/Seci84/ITriggr/internal/images"
	"github.com/Seci84/ITriggr/internal/ingest"
	"github.com/Seci84/ITriggr/internal/llm"
	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/Seci84/ITriggr/internal/sources"
	"github.com/Seci84/ITriggr/internal/visual"
)

// Store combines the persistence operations the pipeline stages consume.
// *store.Store satisfies it.
type Store interface {
	ingest.Store
	cluster.Store
	generate.Store
	images.Store
	LogEvent(ctx context.Context, kind string, payload map[string]any) error
}

// HeadlineSource yields incoming items from a headline API.
type HeadlineSource interface {
	TopHeadlines(ctx context.Context) ([]sources.Item, error)
}

// FeedSource yields incoming items from configured feeds; per-feed errors
// come back alongside whatever items survived.
type FeedSource interface {
	Fetch(ctx context.Context) ([]sources.Item, []error)
}

// RunSummary aggregates the per-stage summaries of a full run.
type RunSummary struct {
	Ingest   ingest.Summary
	Generate generate.Summary
	Images   images.Summary
}

// Pipeline holds one invocation's immutable configuration and capability
// objects. Components share no in-memory state; everything flows through
// the store.
type Pipeline struct {
	cfg       *config.Config
	store     Store
	dedup     *ingest.Deduplicator
	builder   *cluster.Builder
	generator *generate.Generator
	worker    *images.Worker

	headlines HeadlineSource
	feeds     FeedSource
}

// New assembles a pipeline from configuration. Missing backend credentials
// are not errors: the affected stage degrades (template synthesis, no
// images) and the degradation is logged once at run time.
func New(cfg *config.Config, st Store) *Pipeline {
	p := &Pipeline{cfg: cfg, store: st}

	p.dedup = ingest.NewDeduplicator(st)

	p.builder = cluster.NewBuilder(st, cluster.Options{
		Window:          cfg.Window(),
		PrefixBits:      cfg.Cluster.PrefixBits,
		MinClusterSize:  cfg.Cluster.MinClusterSize,
		ExcludedDomains: cfg.Cluster.ExcludedDomains,
	})

	var textGen generate.TextGenerator
	if cfg.Generation.Enabled {
		client, err := llm.NewClient(cfg.Generation.GeminiKey, cfg.Generation.Model, cfg.Generation.Temperature)
		if err != nil {
			logger.Warn("Generation backend unavailable, run will use template synthesis",
				"error", err.Error())
		} else {
			textGen = client
		}
	}

	fetchTimeout := config.ParseTimeout(cfg.Fetch.Timeout, 10*time.Second)
	fetcher := fetch.NewFetcher(fetchTimeout, cfg.Fetch.UserAgent)

	p.generator = generate.NewGenerator(st, textGen, fetcher, generate.Options{
		BackendEnabled: cfg.Generation.Enabled && textGen != nil,
		LegacyGate:     cfg.Generation.LegacyGate,
		CallTimeout:    config.ParseTimeout(cfg.Generation.Timeout, 60*time.Second),
		FetchTimeout:   fetchTimeout,
		PerSourceChars: cfg.Fetch.PerSourceChars,
	})

	if cfg.Images.Enabled && cfg.Images.OpenAIKey != "" {
		imageClient := visual.NewClient(cfg.Images.OpenAIKey, cfg.Images.Model, cfg.Images.Size,
			config.ParseTimeout(cfg.Images.Timeout, 120*time.Second))
		p.worker = images.NewWorker(st, imageClient, cfg.App.DataDir)
	}

	sourceTimeout := config.ParseTimeout(cfg.Sources.Timeout, 20*time.Second)
	if cfg.Sources.NewsAPIKey != "" {
		p.headlines = sources.NewNewsAPIClient(cfg.Sources.NewsAPIKey, cfg.Sources.Language,
			cfg.Sources.PageSize, sourceTimeout)
	}
	if len(cfg.Sources.RSSFeeds) > 0 {
		p.feeds = sources.NewRSSCollector(cfg.Sources.RSSFeeds, sourceTimeout, cfg.Fetch.UserAgent)
	}

	return p
}

// RunIngest collects items from every configured source and ingests them.
// A failing source is logged and skipped; the batch continues with the rest.
func (p *Pipeline) RunIngest(ctx context.Context) (ingest.Summary, error) {
	var incoming []sources.Item

	if p.headlines != nil {
		items, err := p.headlines.TopHeadlines(ctx)
		if err != nil {
			logger.Error("Headline source failed", err)
		} else {
			incoming = append(incoming, items...)
		}
	}
	if p.feeds != nil {
		items, errs := p.feeds.Fetch(ctx)
		for _, err := range errs {
			logger.Error("Feed fetch failed", err)
		}
		incoming = append(incoming, items...)
	}

	rawItems := make([]core.RawItem, 0, len(incoming))
	for _, item := range incoming {
		rawItems = append(rawItems, core.RawItem{
			Source:      item.Source,
			SourceName:  item.SourceName,
			Title:       item.Title,
			URL:         item.URL,
			PublishedAt: item.PublishedAt,
			ContentHint: item.ContentHint,
		})
	}

	summary, err := p.dedup.IngestBatch(ctx, rawItems)
	if err != nil {
		return summary, fmt.Errorf("ingest batch aborted: %w", err)
	}

	logger.Info("Ingest finished",
		"stored", summary.Stored, "skipped", summary.Skipped,
		"dropped", summary.Dropped, "total", summary.Total)
	if err := p.store.LogEvent(ctx, "ingest_done", map[string]any{
		"stored": summary.Stored, "skipped": summary.Skipped, "total": summary.Total,
	}); err != nil {
		logger.Warn("Failed to record ingest event", "error", err.Error())
	}
	return summary, nil
}

// RunGenerate clusters the recent window and generates one article per
// ungenerated cluster.
func (p *Pipeline) RunGenerate(ctx context.Context) (generate.Summary, error) {
	groups, err := p.builder.BuildGroups(ctx)
	if err != nil {
		return generate.Summary{}, fmt.Errorf("clustering failed: %w", err)
	}

	summary, err := p.generator.Run(ctx, groups)
	if err != nil {
		return summary, fmt.Errorf("generation aborted: %w", err)
	}

	logger.Info("Generation finished",
		"clusters", summary.Clusters, "generated", summary.Generated,
		"skipped", summary.Skipped, "fallbacks", summary.Fallbacks, "failed", summary.Failed)
	if err := p.store.LogEvent(ctx, "generate_done", map[string]any{
		"clusters": summary.Clusters, "generated": summary.Generated,
	}); err != nil {
		logger.Warn("Failed to record generate event", "error", err.Error())
	}
	return summary, nil
}

// RunImages attaches hero images to recent articles. Without an image
// backend configured this is a no-op with zero counts.
func (p *Pipeline) RunImages(ctx context.Context) (images.Summary, error) {
	if p.worker == nil {
		logger.Info("Image backend not configured, skipping image pass")
		return images.Summary{}, nil
	}

	summary, err := p.worker.Run(ctx, p.cfg.Images.RunLimit)
	if err != nil {
		return summary, fmt.Errorf("image pass aborted: %w", err)
	}

	logger.Info("Image pass finished",
		"scanned", summary.Scanned, "created", summary.Created,
		"skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// ResetFailedImage clears a failed article's image state (operator repair).
func (p *Pipeline) ResetFailedImage(ctx context.Context, articleID string) error {
	return p.store.ResetImageStatus(ctx, articleID)
}

// RunAll executes ingest, generate, and images in order. A stage error
// stops the run but the summaries collected so far are still returned.
func (p *Pipeline) RunAll(ctx context.Context) (RunSummary, error) {
	var summary RunSummary
	var err error

	if summary.Ingest, err = p.RunIngest(ctx); err != nil {
		return summary, err
	}
	if summary.Generate, err = p.RunGenerate(ctx); err != nil {
		return summary, err
	}
	if summary.Images, err = p.RunImages(ctx); err != nil {
		return summary, err
	}
	return summary, nil
}
