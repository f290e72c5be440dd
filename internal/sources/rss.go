// Package sources collects incoming items from upstream feeds (NewsAPI and
// RSS/Atom) and normalizes them into core.RawItem inputs. Items missing a
// title or URL are dropped here, before fingerprinting; unparseable
// timestamps default to the current time.
package sources

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RSS represents an RSS feed document.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel Channel  `xml:"channel"`
}

// Channel represents an RSS channel.
type Channel struct {
	Title string    `xml:"title"`
	Items []RSSItem `xml:"item"`
}

// RSSItem represents an RSS item.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// Atom represents an Atom feed document.
type Atom struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// AtomLink represents an Atom link element.
type AtomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

// AtomEntry represents an Atom entry.
type AtomEntry struct {
	Title     string     `xml:"title"`
	Link      []AtomLink `xml:"link"`
	Summary   string     `xml:"summary"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
}

// RSSCollector fetches and parses configured RSS/Atom feeds.
type RSSCollector struct {
	client    *http.Client
	userAgent string
	feeds     []string
	now       func() time.Time
}

// NewRSSCollector creates a collector for the given feed URLs.
func NewRSSCollector(feeds []string, timeout time.Duration, userAgent string) *RSSCollector {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RSSCollector{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		feeds:     feeds,
		now:       time.Now,
	}
}

// Fetch pulls every configured feed and returns the normalized items. A
// failing feed is reported through the errs slice and does not stop the
// others.
func (c *RSSCollector) Fetch(ctx context.Context) (items []Item, errs []error) {
	for _, feedURL := range c.feeds {
		feedItems, err := c.fetchOne(ctx, feedURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("feed %s: %w", feedURL, err))
			continue
		}
		items = append(items, feedItems...)
	}
	return items, errs
}

func (c *RSSCollector) fetchOne(ctx context.Context, feedURL string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("failed to read feed body: %w", err)
	}
	body := raw.String()

	// Try RSS first, then Atom.
	var rss RSS
	if err := xml.Unmarshal([]byte(body), &rss); err == nil && len(rss.Channel.Items) > 0 {
		return c.fromRSS(rss), nil
	}
	var atom Atom
	if err := xml.Unmarshal([]byte(body), &atom); err == nil && len(atom.Entries) > 0 {
		return c.fromAtom(atom), nil
	}
	return nil, fmt.Errorf("unable to parse as RSS or Atom feed")
}

func (c *RSSCollector) fromRSS(rss RSS) []Item {
	sourceName := rss.Channel.Title
	if sourceName == "" {
		sourceName = "rss"
	}
	var items []Item
	for _, entry := range rss.Channel.Items {
		if strings.TrimSpace(entry.Title) == "" || entry.Link == "" {
			continue
		}
		items = append(items, Item{
			Source:      "rss",
			SourceName:  sourceName,
			Title:       entry.Title,
			URL:         entry.Link,
			PublishedAt: parseDate(entry.PubDate, c.now),
			ContentHint: entry.Description,
		})
	}
	return items
}

func (c *RSSCollector) fromAtom(atom Atom) []Item {
	sourceName := atom.Title
	if sourceName == "" {
		sourceName = "rss"
	}
	var items []Item
	for _, entry := range atom.Entries {
		var link string
		for _, l := range entry.Link {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}
		if strings.TrimSpace(entry.Title) == "" || link == "" {
			continue
		}
		published := entry.Published
		if published == "" {
			published = entry.Updated
		}
		items = append(items, Item{
			Source:      "rss",
			SourceName:  sourceName,
			Title:       entry.Title,
			URL:         link,
			PublishedAt: parseDate(published, c.now),
			ContentHint: entry.Summary,
		})
	}
	return items
}

// parseDate tries the common feed timestamp formats and falls back to the
// current time when none match.
func parseDate(dateStr string, now func() time.Time) int64 {
	dateStr = strings.TrimSpace(dateStr)
	if dateStr == "" {
		return now().Unix()
	}

	formats := []string{
		time.RFC3339,
		time.RFC1123,
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, dateStr); err == nil {
			return t.UTC().Unix()
		}
	}
	return now().Unix()
}
