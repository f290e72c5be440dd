package core

import "time"

// Image status values for GeneratedArticle.ImageStatus. The empty string
// means no image work has started yet.
const (
	ImageStatusNone    = ""
	ImageStatusPending = "pending"
	ImageStatusDone    = "done"
	ImageStatusFailed  = "failed"
)

// HeroImageKind is the single illustration slot an article carries.
const HeroImageKind = "hero"

// ReaderTypes enumerates the audiences a generated article speaks to.
// Every StructuredRecord carries one talk paragraph per reader type.
var ReaderTypes = []string{"general", "entrepreneur", "politician", "investor"}

// RawItem is an ingested news item. Its identity is the content-address of
// its URL; repeated ingestion of the same URL maps to the same record.
type RawItem struct {
	ID          string    `json:"id"`           // Content-address key: hex(sha256(url))[:32]
	Source      string    `json:"source"`       // Upstream kind (e.g. "newsapi", "rss")
	SourceName  string    `json:"source_name"`  // Human-readable outlet name
	Title       string    `json:"title"`        // Normalized headline
	URL         string    `json:"url"`          // Canonical article URL
	PublishedAt int64     `json:"published_at"` // Unix seconds, UTC
	ContentHint string    `json:"content_hint"` // Normalized description/summary, not the full body
	Fingerprint string    `json:"fingerprint"`  // 64-bit simhash, hex encoded
	CreatedAt   time.Time `json:"created_at"`   // When the item was first stored
}

// Fact is a single claim with its supporting source URL.
type Fact struct {
	Text        string `json:"text"`
	EvidenceURL string `json:"evidence_url"`
}

// Talks holds one conversational paragraph per reader type.
type Talks struct {
	General      string `json:"general"`
	Entrepreneur string `json:"entrepreneur"`
	Politician   string `json:"politician"`
	Investor     string `json:"investor"`
}

// Get returns the paragraph for a reader type, empty string if unknown.
func (t Talks) Get(readerType string) string {
	switch readerType {
	case "general":
		return t.General
	case "entrepreneur":
		return t.Entrepreneur
	case "politician":
		return t.Politician
	case "investor":
		return t.Investor
	}
	return ""
}

// StructuredRecord is the schema the generation backend is asked to return:
// one JSON object with exactly these top-level keys.
type StructuredRecord struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets"`
	Facts   []Fact   `json:"facts"`
	Talks   Talks    `json:"talks"`
}

// PublishedWindow is the [min, max] publish-time range of a cluster's items.
type PublishedWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// GeneratedArticle is the synthesized output for one event cluster. At most
// one exists per ClusterKey; images are attached later by the image worker.
type GeneratedArticle struct {
	ID              string          `json:"id"`
	ClusterKey      string          `json:"cluster_key"`
	Title           string          `json:"title"`
	Summary         string          `json:"summary"`
	Bullets         []string        `json:"bullets"`
	Facts           []Fact          `json:"facts"`
	Talks           Talks           `json:"talks"`
	EvidenceURLs    []string        `json:"evidence_urls"`
	SourceRefs      []string        `json:"source_refs"` // RawItem IDs this article was built from
	PublishedWindow PublishedWindow `json:"published_window"`
	ModelUsed       string          `json:"model_used"` // Backend model name, or "template" for fallback output
	LatencyMS       int64           `json:"latency_ms"`
	CreatedAt       time.Time       `json:"created_at"`
	ImageStatus     string          `json:"image_status"`
	ImageError      string          `json:"image_error"`
	HeroImage       *ImageRecord    `json:"hero_image,omitempty"`
}

// ImageRecord describes one generated illustration. It lives on its
// article's hero slot and is duplicated into an audit collection keyed by
// "{article_id}_{kind}".
type ImageRecord struct {
	ArticleID string    `json:"article_id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	Prompt    string    `json:"prompt"`
	Meta      ImageMeta `json:"meta"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageMeta records how an image was produced.
type ImageMeta struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
	Width   int    `json:"w"`
	Height  int    `json:"h"`
}
