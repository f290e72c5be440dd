// Package fetch pulls bounded excerpts of article bodies for prompting.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent is sent with every body fetch.
const DefaultUserAgent = "Mozilla/5.0 (compatible; ITriggr/1.0)"

// Fetcher extracts paragraph text from source URLs with a bounded timeout.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

// NewFetcher creates a fetcher. timeout bounds the whole request; the
// per-call context can shorten it further.
func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// FetchContent downloads the page at url and returns the concatenated text
// of its paragraph elements, truncated to limit characters. Network and
// parse errors return an error so the caller can log and continue; one
// slow or broken source never aborts a batch.
func (f *Fetcher) FetchContent(ctx context.Context, url string, limit int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s returned status %d", url, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", url, err)
	}

	var parts []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	content := strings.Join(parts, " ")
	if limit > 0 {
		// Truncate on runes so a multi-byte character is never split.
		if runes := []rune(content); len(runes) > limit {
			content = string(runes[:limit])
		}
	}
	return content, nil
}
