package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Seci84/ITriggr/internal/core"
)

// memStore mimics the store's image-lock semantics in memory.
type memStore struct {
	articles map[string]*core.GeneratedArticle
	acquires int
	lockErr  error
	lockErrN int // Fail the first N acquire calls
	doneErr  error
}

func newMemStore(articles ...core.GeneratedArticle) *memStore {
	m := &memStore{articles: make(map[string]*core.GeneratedArticle)}
	for i := range articles {
		a := articles[i]
		m.articles[a.ID] = &a
	}
	return m
}

func (m *memStore) ListRecentArticles(ctx context.Context, limit int) ([]core.GeneratedArticle, error) {
	var out []core.GeneratedArticle
	for _, a := range m.articles {
		if len(out) >= limit {
			break
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) AcquireImageLock(ctx context.Context, articleID string) (bool, error) {
	m.acquires++
	if m.lockErr != nil && m.acquires <= m.lockErrN {
		return false, m.lockErr
	}
	a, ok := m.articles[articleID]
	if !ok {
		return false, errors.New("not found")
	}
	if a.HeroImage != nil || a.ImageStatus != core.ImageStatusNone {
		return false, nil
	}
	a.ImageStatus = core.ImageStatusPending
	return true, nil
}

func (m *memStore) MarkImageDone(ctx context.Context, articleID string, record core.ImageRecord) error {
	if m.doneErr != nil {
		return m.doneErr
	}
	a := m.articles[articleID]
	a.ImageStatus = core.ImageStatusDone
	a.HeroImage = &record
	return nil
}

func (m *memStore) MarkImageFailed(ctx context.Context, articleID string, message string) error {
	a := m.articles[articleID]
	a.ImageStatus = core.ImageStatusFailed
	a.ImageError = message
	return nil
}

func (m *memStore) ResetImageStatus(ctx context.Context, articleID string) error {
	a, ok := m.articles[articleID]
	if !ok || a.ImageStatus != core.ImageStatusFailed {
		return errors.New("not failed")
	}
	a.ImageStatus = core.ImageStatusNone
	a.ImageError = ""
	return nil
}

type fakeGenerator struct {
	err   error
	calls int
}

func (f *fakeGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	return buf.Bytes(), nil
}

func (f *fakeGenerator) ModelName() string { return "fake-image-model" }

func article(id string) core.GeneratedArticle {
	return core.GeneratedArticle{
		ID:      id,
		Summary: "A summary of the event.",
		Talks:   core.Talks{General: "A general take."},
	}
}

func TestEnsureImage_GeneratesAndRecords(t *testing.T) {
	st := newMemStore(article("a1"))
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	record, err := worker.EnsureImage(context.Background(), *st.articles["a1"])
	if err != nil {
		t.Fatalf("EnsureImage failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected an image record")
	}

	if record.Kind != core.HeroImageKind {
		t.Errorf("Expected hero kind, got %q", record.Kind)
	}
	if record.Meta.Width != 960 || record.Meta.Height != 540 {
		t.Errorf("Unexpected meta dimensions: %+v", record.Meta)
	}
	if _, err := os.Stat(record.URL); err != nil {
		t.Errorf("Expected artifact on disk at %s: %v", record.URL, err)
	}
	if st.articles["a1"].ImageStatus != core.ImageStatusDone {
		t.Errorf("Expected done status, got %q", st.articles["a1"].ImageStatus)
	}
}

func TestEnsureImage_SkipsWhenHeroPresent(t *testing.T) {
	a := article("a2")
	a.HeroImage = &core.ImageRecord{URL: "existing"}
	st := newMemStore(a)
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	record, err := worker.EnsureImage(context.Background(), a)
	if err != nil {
		t.Fatalf("EnsureImage failed: %v", err)
	}
	if record != nil {
		t.Error("Expected skip for article with existing hero")
	}
	if gen.calls != 0 {
		t.Errorf("Backend should not be called, got %d calls", gen.calls)
	}
}

func TestEnsureImage_LockContentionIsSilentSkip(t *testing.T) {
	a := article("a3")
	a.ImageStatus = core.ImageStatusPending // another worker holds the lock
	st := newMemStore(a)
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	record, err := worker.EnsureImage(context.Background(), a)
	if err != nil {
		t.Fatalf("Lock contention should not be an error: %v", err)
	}
	if record != nil {
		t.Error("Expected skip under contention")
	}
	if gen.calls != 0 {
		t.Error("Backend should not be called under contention")
	}
}

func TestEnsureImage_BackendFailureMarksFailed(t *testing.T) {
	st := newMemStore(article("a4"))
	gen := &fakeGenerator{err: errors.New("image backend down")}
	worker := NewWorker(st, gen, t.TempDir())

	_, err := worker.EnsureImage(context.Background(), *st.articles["a4"])
	if err == nil {
		t.Fatal("Expected error from backend failure")
	}

	a := st.articles["a4"]
	if a.ImageStatus != core.ImageStatusFailed {
		t.Errorf("Expected failed status, got %q", a.ImageStatus)
	}
	if !strings.Contains(a.ImageError, "image backend down") {
		t.Errorf("Expected error message recorded, got %q", a.ImageError)
	}

	// Failed is terminal: a second pass skips without calling the backend.
	gen.err = nil
	calls := gen.calls
	record, err := worker.EnsureImage(context.Background(), *a)
	if err != nil {
		t.Fatalf("EnsureImage after failure errored: %v", err)
	}
	if record != nil {
		t.Error("Failed article should not be retried automatically")
	}
	if gen.calls != calls {
		t.Error("Backend should not be called for a failed article")
	}
}

func TestEnsureImage_DoneWriteFailureMarksFailed(t *testing.T) {
	st := newMemStore(article("a7"))
	st.doneErr = errors.New("write rejected")
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	_, err := worker.EnsureImage(context.Background(), *st.articles["a7"])
	if err == nil {
		t.Fatal("Expected error when the done write fails")
	}

	// The article must not stay pending: that would hold the lock forever
	// with no repair path, since ResetFailed only clears failed articles.
	a := st.articles["a7"]
	if a.ImageStatus != core.ImageStatusFailed {
		t.Fatalf("Expected failed status after done-write failure, got %q", a.ImageStatus)
	}
	if !strings.Contains(a.ImageError, "write rejected") {
		t.Errorf("Expected error message recorded, got %q", a.ImageError)
	}

	if err := worker.ResetFailed(context.Background(), "a7"); err != nil {
		t.Fatalf("ResetFailed should clear the article: %v", err)
	}
	st.doneErr = nil
	record, err := worker.EnsureImage(context.Background(), *st.articles["a7"])
	if err != nil {
		t.Fatalf("Retry after reset failed: %v", err)
	}
	if record == nil {
		t.Error("Expected image after reset")
	}
}

func TestEnsureImage_ResetFailedPermitsRetry(t *testing.T) {
	st := newMemStore(article("a5"))
	gen := &fakeGenerator{err: errors.New("boom")}
	worker := NewWorker(st, gen, t.TempDir())

	if _, err := worker.EnsureImage(context.Background(), *st.articles["a5"]); err == nil {
		t.Fatal("Expected first attempt to fail")
	}

	if err := worker.ResetFailed(context.Background(), "a5"); err != nil {
		t.Fatalf("ResetFailed failed: %v", err)
	}

	gen.err = nil
	record, err := worker.EnsureImage(context.Background(), *st.articles["a5"])
	if err != nil {
		t.Fatalf("Retry after reset failed: %v", err)
	}
	if record == nil {
		t.Error("Expected image after reset")
	}
}

func TestAcquireWithBackoff_RetriesTransientErrors(t *testing.T) {
	st := newMemStore(article("a6"))
	st.lockErr = errors.New("database is locked")
	st.lockErrN = 2 // first two attempts fail, third succeeds
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	start := time.Now()
	record, err := worker.EnsureImage(context.Background(), *st.articles["a6"])
	if err != nil {
		t.Fatalf("EnsureImage failed despite retries: %v", err)
	}
	if record == nil {
		t.Fatal("Expected image after transient errors")
	}
	if st.acquires != 3 {
		t.Errorf("Expected 3 acquire attempts, got %d", st.acquires)
	}
	if time.Since(start) < 300*time.Millisecond {
		t.Error("Expected backoff delays between retries")
	}
}

func TestRun_CountsPerArticle(t *testing.T) {
	done := article("done")
	done.ImageStatus = core.ImageStatusDone
	st := newMemStore(article("fresh"), done)
	gen := &fakeGenerator{}
	worker := NewWorker(st, gen, t.TempDir())

	summary, err := worker.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Scanned != 2 {
		t.Errorf("Expected 2 scanned, got %d", summary.Scanned)
	}
	if summary.Created != 1 {
		t.Errorf("Expected 1 created, got %d", summary.Created)
	}
	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", summary.Skipped)
	}
}

func TestBuildPrompt(t *testing.T) {
	a := core.GeneratedArticle{
		Summary: strings.Repeat("s", 400),
		Talks:   core.Talks{General: strings.Repeat("t", 200)},
	}

	prompt := BuildPrompt(a, "general")
	if !strings.Contains(prompt, "Scene inspired by: "+strings.Repeat("s", 300)) {
		t.Error("Summary should be capped at 300 characters")
	}
	if strings.Contains(prompt, strings.Repeat("s", 301)) {
		t.Error("Summary exceeded its cap")
	}
	if !strings.Contains(prompt, "Hint: "+strings.Repeat("t", 160)) {
		t.Error("Talk should be capped at 160 characters")
	}

	// No talk for the reader type drops the hint clause.
	prompt = BuildPrompt(core.GeneratedArticle{Summary: "short"}, "investor")
	if strings.Contains(prompt, "Hint:") {
		t.Error("Prompt without talk should have no hint clause")
	}
}
