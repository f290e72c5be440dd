package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/Seci84/ITriggr/internal/core"
	"github.com/Seci84/ITriggr/internal/store"
)

// memStore is an in-memory generation Store for tests.
type memStore struct {
	articles  map[string]core.GeneratedArticle // keyed by cluster key
	createErr error
}

func newMemStore() *memStore {
	return &memStore{articles: make(map[string]core.GeneratedArticle)}
}

func (m *memStore) HasArticleForCluster(ctx context.Context, clusterKey string) (bool, error) {
	_, ok := m.articles[clusterKey]
	return ok, nil
}

func (m *memStore) CreateArticle(ctx context.Context, article core.GeneratedArticle) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.articles[article.ClusterKey]; ok {
		return store.ErrClusterExists
	}
	m.articles[article.ClusterKey] = article
	return nil
}

// fakeTextGen returns a canned response or error.
type fakeTextGen struct {
	response string
	err      error
	calls    int
}

func (f *fakeTextGen) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func (f *fakeTextGen) ModelName() string { return "fake-model" }

func groups(keys ...string) map[string][]core.RawItem {
	out := make(map[string][]core.RawItem)
	for i, key := range keys {
		out[key] = []core.RawItem{
			{ID: key + "-1", Title: "Title " + key, URL: "https://example.com/" + key, PublishedAt: int64(100 + i)},
		}
	}
	return out
}

func TestRun_TemplateModeWhenBackendDisabled(t *testing.T) {
	st := newMemStore()
	gen := NewGenerator(st, nil, nil, Options{BackendEnabled: false})

	summary, err := gen.Run(context.Background(), groups("aaaa", "bbbb"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Generated != 2 {
		t.Errorf("Expected 2 generated, got %d", summary.Generated)
	}
	for key, article := range st.articles {
		if article.ModelUsed != TemplateModel {
			t.Errorf("Cluster %s: expected template model, got %q", key, article.ModelUsed)
		}
		if len(article.Bullets) != 3 {
			t.Errorf("Cluster %s: expected 3 bullets, got %d", key, len(article.Bullets))
		}
		if len(article.Facts) == 0 {
			t.Errorf("Cluster %s: expected non-empty facts", key)
		}
		if article.ClusterKey != key {
			t.Errorf("Article stored under wrong key: %s vs %s", article.ClusterKey, key)
		}
	}
}

func TestRun_BackendOutputIsNormalized(t *testing.T) {
	st := newMemStore()
	textGen := &fakeTextGen{response: "```json\n" + validBody + "\n```"}
	gen := NewGenerator(st, textGen, nil, Options{BackendEnabled: true})

	summary, err := gen.Run(context.Background(), groups("cafe"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Generated != 1 {
		t.Fatalf("Expected 1 generated, got %d", summary.Generated)
	}
	article := st.articles["cafe"]
	if article.ModelUsed != "fake-model" {
		t.Errorf("Expected backend model recorded, got %q", article.ModelUsed)
	}
	if article.Title != "Markets rally on rate decision" {
		t.Errorf("Expected backend title, got %q", article.Title)
	}
}

func TestRun_MalformedBackendOutputFallsBack(t *testing.T) {
	st := newMemStore()
	textGen := &fakeTextGen{response: "I could not produce JSON, sorry."}
	gen := NewGenerator(st, textGen, nil, Options{BackendEnabled: true})

	summary, err := gen.Run(context.Background(), groups("dead"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Generated != 1 {
		t.Fatalf("Expected 1 generated, got %d", summary.Generated)
	}
	if summary.Fallbacks != 1 {
		t.Errorf("Expected 1 fallback, got %d", summary.Fallbacks)
	}
	article := st.articles["dead"]
	if article.ModelUsed != TemplateModel {
		t.Errorf("Expected template model after fallback, got %q", article.ModelUsed)
	}
	if len(article.Bullets) != 3 {
		t.Errorf("Fallback article must have 3 bullets, got %d", len(article.Bullets))
	}
}

func TestRun_BackendErrorFallsBack(t *testing.T) {
	st := newMemStore()
	textGen := &fakeTextGen{err: errors.New("backend timeout")}
	gen := NewGenerator(st, textGen, nil, Options{BackendEnabled: true})

	summary, err := gen.Run(context.Background(), groups("beef"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Generated != 1 || summary.Fallbacks != 1 {
		t.Errorf("Expected 1 generated via fallback, got %+v", summary)
	}
}

func TestRun_ExistingClusterIsSkipped(t *testing.T) {
	st := newMemStore()
	st.articles["a1b2"] = core.GeneratedArticle{ClusterKey: "a1b2"}
	gen := NewGenerator(st, nil, nil, Options{})

	summary, err := gen.Run(context.Background(), groups("a1b2", "ffff"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Generated != 1 {
		t.Errorf("Expected 1 generated, got %d", summary.Generated)
	}
	if summary.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", summary.Skipped)
	}
}

func TestRun_LegacyGateSkipsWithoutInsert(t *testing.T) {
	st := newMemStore()
	st.articles["a1b2"] = core.GeneratedArticle{ClusterKey: "a1b2"}
	textGen := &fakeTextGen{response: validBody}
	gen := NewGenerator(st, textGen, nil, Options{BackendEnabled: true, LegacyGate: true})

	summary, err := gen.Run(context.Background(), groups("a1b2"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Skipped != 1 || summary.Generated != 0 {
		t.Errorf("Expected legacy gate skip, got %+v", summary)
	}
	if textGen.calls != 0 {
		t.Errorf("Legacy gate should skip before calling the backend, got %d calls", textGen.calls)
	}
}

func TestRun_StoreFailureCountsAsFailed(t *testing.T) {
	st := newMemStore()
	st.createErr = errors.New("store down")
	gen := NewGenerator(st, nil, nil, Options{})

	summary, err := gen.Run(context.Background(), groups("aaaa"))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Failed != 1 || summary.Generated != 0 {
		t.Errorf("Expected 1 failed, got %+v", summary)
	}
}

func TestGenerateOne_ArticleMetadata(t *testing.T) {
	st := newMemStore()
	gen := NewGenerator(st, nil, nil, Options{})

	items := []core.RawItem{
		{ID: "id1", Title: "First", URL: "https://example.com/1", PublishedAt: 300},
		{ID: "id2", Title: "Second", URL: "https://example.com/2", PublishedAt: 100},
		{ID: "id3", Title: "Third", URL: "https://example.com/3", PublishedAt: 200},
	}

	article := gen.generateOne(context.Background(), "abcd", items)

	if article.ID == "" {
		t.Error("Expected generated article id")
	}
	if article.PublishedWindow.Start != 100 || article.PublishedWindow.End != 300 {
		t.Errorf("Unexpected published window: %+v", article.PublishedWindow)
	}
	if len(article.EvidenceURLs) != 3 || len(article.SourceRefs) != 3 {
		t.Errorf("Expected 3 evidence URLs and refs, got %d and %d",
			len(article.EvidenceURLs), len(article.SourceRefs))
	}
	if article.SourceRefs[0] != "id1" {
		t.Errorf("Source refs should preserve item order, got %v", article.SourceRefs)
	}
}

func TestShouldGenerate(t *testing.T) {
	st := newMemStore()
	st.articles["used"] = core.GeneratedArticle{ClusterKey: "used"}
	gen := NewGenerator(st, nil, nil, Options{})
	ctx := context.Background()

	ok, err := gen.ShouldGenerate(ctx, "used")
	if err != nil {
		t.Fatalf("ShouldGenerate failed: %v", err)
	}
	if ok {
		t.Error("Expected false for existing cluster")
	}

	ok, err = gen.ShouldGenerate(ctx, "new")
	if err != nil {
		t.Fatalf("ShouldGenerate failed: %v", err)
	}
	if !ok {
		t.Error("Expected true for new cluster")
	}
}
