package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Item is an incoming news item before deduplication. The ingest stage
// attaches identity and fingerprint.
type Item struct {
	Source      string
	SourceName  string
	Title       string
	URL         string
	PublishedAt int64
	ContentHint string
}

const newsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPIClient fetches top headlines from NewsAPI.
type NewsAPIClient struct {
	apiKey   string
	language string
	pageSize int
	client   *http.Client
	baseURL  string
	now      func() time.Time
}

// NewNewsAPIClient creates a NewsAPI client. The returned client is nil-safe
// to skip: callers should not construct one without an API key.
func NewNewsAPIClient(apiKey, language string, pageSize int, timeout time.Duration) *NewsAPIClient {
	if language == "" {
		language = "en"
	}
	if pageSize <= 0 {
		pageSize = 50
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &NewsAPIClient{
		apiKey:   apiKey,
		language: language,
		pageSize: pageSize,
		client:   &http.Client{Timeout: timeout},
		baseURL:  newsAPIBaseURL,
		now:      time.Now,
	}
}

type newsAPIResponse struct {
	Status   string           `json:"status"`
	Message  string           `json:"message"`
	Articles []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
}

// TopHeadlines fetches the current top headlines, dropping entries missing
// a title or URL.
func (c *NewsAPIClient) TopHeadlines(ctx context.Context) ([]Item, error) {
	params := url.Values{}
	params.Set("language", c.language)
	params.Set("pageSize", fmt.Sprintf("%d", c.pageSize))
	params.Set("apiKey", c.apiKey)

	endpoint := c.baseURL + "/top-headlines?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch headlines: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("newsapi returned status %d", resp.StatusCode)
	}

	var parsed newsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.Status != "ok" {
		return nil, fmt.Errorf("newsapi error: %s", parsed.Message)
	}

	var items []Item
	for _, article := range parsed.Articles {
		if article.Title == "" || article.URL == "" {
			continue
		}
		sourceName := article.Source.Name
		if sourceName == "" {
			sourceName = "newsapi"
		}
		items = append(items, Item{
			Source:      "newsapi",
			SourceName:  sourceName,
			Title:       article.Title,
			URL:         article.URL,
			PublishedAt: parseDate(article.PublishedAt, c.now),
			ContentHint: article.Description,
		})
	}
	return items, nil
}
