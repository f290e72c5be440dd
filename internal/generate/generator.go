// Package generate turns item clusters into stored articles: at most one
// per cluster key, synthesized by the generation backend when available and
// by deterministic templates when not.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/Seci84/ITriggr/internal/store"
	"github.com/google/uuid"
)

// Store is the slice of the persistence adapter generation writes through.
// CreateArticle must return store.ErrClusterExists when an article for the
// cluster key already exists.
type Store interface {
	HasArticleForCluster(ctx context.Context, clusterKey string) (bool, error)
	CreateArticle(ctx context.Context, article core.GeneratedArticle) error
}

// TextGenerator is the generation backend capability. Tests substitute a
// fake; production wires the Gemini client.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// ContentFetcher pulls a bounded amount of body text for a source URL.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string, limit int) (string, error)
}

// Options configures a generation run.
type Options struct {
	BackendEnabled bool          // When false the whole run uses template synthesis
	LegacyGate     bool          // Use the non-transactional check-then-insert gate
	CallTimeout    time.Duration // Per-cluster backend call budget
	FetchTimeout   time.Duration // Per-source body fetch budget
	PerSourceChars int           // Character budget per source in the prompt
}

// Summary reports what a generation run did.
type Summary struct {
	Clusters  int
	Generated int
	Skipped   int
	Fallbacks int
	Failed    int
}

// Generator produces one article per ungenerated cluster.
type Generator struct {
	store   Store
	textGen TextGenerator
	fetcher ContentFetcher
	opts    Options
}

// NewGenerator creates a generator. textGen may be nil when the backend is
// disabled; fetcher may be nil to skip body fetching.
func NewGenerator(st Store, textGen TextGenerator, fetcher ContentFetcher, opts Options) *Generator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 60 * time.Second
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	if opts.PerSourceChars <= 0 {
		opts.PerSourceChars = 1500
	}
	if textGen == nil {
		opts.BackendEnabled = false
	}
	return &Generator{store: st, textGen: textGen, fetcher: fetcher, opts: opts}
}

// Run processes every cluster in groups. Per-cluster failures are logged
// and counted, never fatal; the summary is always populated.
func (g *Generator) Run(ctx context.Context, groups map[string][]core.RawItem) (Summary, error) {
	summary := Summary{Clusters: len(groups)}
	if !g.opts.BackendEnabled {
		logger.Info("Generation backend disabled, using template synthesis for this run")
	}

	for clusterKey, items := range groups {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if len(items) == 0 {
			continue
		}

		if g.opts.LegacyGate {
			ok, err := g.ShouldGenerate(ctx, clusterKey)
			if err != nil {
				logger.Error("Gate check failed", err, "cluster_key", clusterKey)
				summary.Failed++
				continue
			}
			if !ok {
				summary.Skipped++
				continue
			}
		}

		article := g.generateOne(ctx, clusterKey, items)
		if article.ModelUsed == TemplateModel && g.opts.BackendEnabled {
			summary.Fallbacks++
		}

		err := g.store.CreateArticle(ctx, article)
		switch {
		case errors.Is(err, store.ErrClusterExists):
			// Another run got there first; expected under overlap.
			summary.Skipped++
		case err != nil:
			logger.Error("Failed to store article", err, "cluster_key", clusterKey)
			summary.Failed++
		default:
			summary.Generated++
		}
	}
	return summary, nil
}

// generateOne builds the article for a single cluster. It always returns a
// storable record: backend errors and malformed output degrade to template
// synthesis, never propagate.
func (g *Generator) generateOne(ctx context.Context, clusterKey string, items []core.RawItem) core.GeneratedArticle {
	record := core.StructuredRecord{}
	modelUsed := TemplateModel
	var latency time.Duration

	if g.opts.BackendEnabled {
		sourceLines := g.buildSourceLines(ctx, items)
		start := time.Now()
		raw, err := g.callBackend(ctx, sourceLines)
		latency = time.Since(start)
		if err != nil {
			logger.Warn("Generation backend failed, falling back to template",
				"cluster_key", clusterKey, "error", err.Error())
		} else {
			parsed, err := Normalize(raw)
			if err != nil {
				logger.Warn("Backend output failed normalization, falling back to template",
					"cluster_key", clusterKey, "error", err.Error())
			} else {
				record = parsed
				modelUsed = g.textGen.ModelName()
			}
		}
	}

	if modelUsed == TemplateModel {
		record = Synthesize(items)
	}

	evidenceURLs := make([]string, 0, len(items))
	sourceRefs := make([]string, 0, len(items))
	window := core.PublishedWindow{Start: items[0].PublishedAt, End: items[0].PublishedAt}
	for _, item := range items {
		evidenceURLs = append(evidenceURLs, item.URL)
		sourceRefs = append(sourceRefs, item.ID)
		if item.PublishedAt < window.Start {
			window.Start = item.PublishedAt
		}
		if item.PublishedAt > window.End {
			window.End = item.PublishedAt
		}
	}

	return core.GeneratedArticle{
		ID:              uuid.NewString(),
		ClusterKey:      clusterKey,
		Title:           record.Title,
		Summary:         record.Summary,
		Bullets:         record.Bullets,
		Facts:           record.Facts,
		Talks:           record.Talks,
		EvidenceURLs:    evidenceURLs,
		SourceRefs:      sourceRefs,
		PublishedWindow: window,
		ModelUsed:       modelUsed,
		LatencyMS:       latency.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
}

func (g *Generator) callBackend(ctx context.Context, sourceLines []string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()

	raw, err := g.textGen.Generate(callCtx, BuildPrompt(sourceLines))
	if err != nil {
		return "", fmt.Errorf("backend call failed: %w", err)
	}
	return raw, nil
}

// buildSourceLines renders one prompt line per item: title, URL, and a
// bounded slice of fetched body text. A slow or failing source never stalls
// the cluster; its line just carries no body.
func (g *Generator) buildSourceLines(ctx context.Context, items []core.RawItem) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		content := "Content unavailable"
		if g.fetcher != nil {
			fetchCtx, cancel := context.WithTimeout(ctx, g.opts.FetchTimeout)
			body, err := g.fetcher.FetchContent(fetchCtx, item.URL, g.opts.PerSourceChars)
			cancel()
			if err != nil {
				logger.Debug("Failed to fetch source body", "url", item.URL, "error", err.Error())
			} else if body != "" {
				content = body
			}
		}
		lines = append(lines, fmt.Sprintf("- %s | %s | %s", item.Title, item.URL, content))
	}
	return lines
}
