// Package images attaches hero illustrations to generated articles. Each
// article is guarded by a transactional compare-and-set lock in the store:
// at most one worker ever generates an image for a given article, no matter
// how many invocations overlap. A failed article stays failed until an
// operator resets it.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/logger"
	"github.com/Seci84/ITriggr/internal/visual"
)

// Store is the slice of the persistence adapter the image worker uses.
type Store interface {
	ListRecentArticles(ctx context.Context, limit int) ([]core.GeneratedArticle, error)
	AcquireImageLock(ctx context.Context, articleID string) (bool, error)
	MarkImageDone(ctx context.Context, articleID string, record core.ImageRecord) error
	MarkImageFailed(ctx context.Context, articleID string, message string) error
	ResetImageStatus(ctx context.Context, articleID string) error
}

// Generator is the image backend capability.
type Generator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
	ModelName() string
}

// Summary reports what an image run did.
type Summary struct {
	Scanned int
	Created int
	Skipped int
	Failed  int
}

// Worker drives image generation for stored articles.
type Worker struct {
	store     Store
	generator Generator
	imagesDir string
}

// NewWorker creates an image worker writing artifacts under imagesDir.
func NewWorker(store Store, generator Generator, imagesDir string) *Worker {
	return &Worker{store: store, generator: generator, imagesDir: imagesDir}
}

// Run scans up to limit recent articles and ensures each has a hero image.
// Per-article failures are logged and counted; the batch always finishes.
func (w *Worker) Run(ctx context.Context, limit int) (Summary, error) {
	articles, err := w.store.ListRecentArticles(ctx, limit)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list articles: %w", err)
	}

	summary := Summary{Scanned: len(articles)}
	for _, article := range articles {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		record, err := w.EnsureImage(ctx, article)
		switch {
		case err != nil:
			logger.Error("Image generation failed", err, "article_id", article.ID)
			summary.Failed++
		case record == nil:
			summary.Skipped++
		default:
			summary.Created++
		}
	}
	return summary, nil
}

// EnsureImage generates and attaches a hero image for one article. It
// returns (nil, nil) when the article is skipped: hero already present, or
// the lock was held by another worker. Lock contention is not an error.
func (w *Worker) EnsureImage(ctx context.Context, article core.GeneratedArticle) (*core.ImageRecord, error) {
	// Optimistic check before touching the lock.
	if article.HeroImage != nil || article.ImageStatus == core.ImageStatusDone {
		return nil, nil
	}

	acquired, err := w.acquireWithBackoff(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire image lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	record, err := w.generateAndStore(ctx, article)
	if err != nil {
		if markErr := w.store.MarkImageFailed(ctx, article.ID, err.Error()); markErr != nil {
			logger.Error("Failed to record image failure", markErr, "article_id", article.ID)
		}
		return nil, err
	}

	if err := w.store.MarkImageDone(ctx, article.ID, *record); err != nil {
		// The lock is held as pending; without a transition to failed the
		// article would be stuck beyond the reach of ResetFailed.
		err = fmt.Errorf("failed to record image: %w", err)
		if markErr := w.store.MarkImageFailed(ctx, article.ID, err.Error()); markErr != nil {
			logger.Error("Failed to record image failure", markErr, "article_id", article.ID)
		}
		return nil, err
	}
	return record, nil
}

// acquireWithBackoff retries the compare-and-set on transient store errors
// with bounded exponential backoff. A clean not-acquired answer returns
// immediately.
func (w *Worker) acquireWithBackoff(ctx context.Context, articleID string) (bool, error) {
	const maxAttempts = 3
	delay := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		acquired, err := w.store.AcquireImageLock(ctx, articleID)
		if err == nil {
			return acquired, nil
		}
		lastErr = err
	}
	return false, fmt.Errorf("lock retries exhausted: %w", lastErr)
}

func (w *Worker) generateAndStore(ctx context.Context, article core.GeneratedArticle) (*core.ImageRecord, error) {
	prompt := BuildPrompt(article, "general")

	data, err := w.generator.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("backend generation failed: %w", err)
	}

	rendered, err := visual.Render(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render image: %w", err)
	}

	dest := filepath.Join(w.imagesDir, "articles", article.ID,
		fmt.Sprintf("hero_%d.png", time.Now().Unix()))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	if err := os.WriteFile(dest, rendered, 0644); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	return &core.ImageRecord{
		ArticleID: article.ID,
		Kind:      core.HeroImageKind,
		URL:       dest,
		Prompt:    prompt,
		Meta: core.ImageMeta{
			Backend: "openai",
			Model:   w.generator.ModelName(),
			Width:   visual.RenderWidth,
			Height:  visual.RenderHeight,
		},
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ResetFailed clears a failed article's image state so the next run may
// retry it. This is the operator repair path; the pipeline never resets on
// its own.
func (w *Worker) ResetFailed(ctx context.Context, articleID string) error {
	return w.store.ResetImageStatus(ctx, articleID)
}

const promptStyle = "newspaper editorial illustration, flat minimal, high contrast, vector shading, " +
	"no text, clean shapes, soft rim light, cinematic composition"

// BuildPrompt derives the image prompt from an article's summary and one
// talks entry, each length-capped for backend stability.
func BuildPrompt(article core.GeneratedArticle, readerType string) string {
	summary := truncate(article.Summary, 300)
	talk := truncate(article.Talks.Get(readerType), 160)
	if talk == "" {
		return fmt.Sprintf("%s. Scene inspired by: %s", promptStyle, summary)
	}
	return fmt.Sprintf("%s. Scene inspired by: %s. Hint: %s", promptStyle, summary, talk)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
