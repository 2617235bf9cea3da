package fetch

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"curio/internal/core"
)

// LooksLikeFeed reports whether the response is an RSS, Atom, or JSON feed.
// The Content-Type header is only a hint; sniffing the body catches servers
// that serve feeds as text/html or text/plain.
func LooksLikeFeed(contentType string, body []byte) bool {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "application/rss+xml") ||
		strings.Contains(ct, "application/atom+xml") ||
		strings.Contains(ct, "application/feed+json") {
		return true
	}
	return gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown
}

// ParseFeedCandidates parses a feed document into candidates, newest first as
// published by the feed. Items without a title or link are dropped, relative
// links are resolved against feedURL, and the feed's own URL never becomes a
// candidate. At most limit candidates are returned when limit > 0.
func ParseFeedCandidates(body []byte, feedURL string, limit int) ([]core.Candidate, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	base, err := url.Parse(feedURL)
	if err != nil {
		base = nil
	}

	candidates := make([]core.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		link := resolveLink(base, strings.TrimSpace(item.Link))
		if title == "" || link == "" || link == feedURL {
			continue
		}
		cand := core.Candidate{
			Title:       title,
			URL:         link,
			Description: feedItemDescription(item),
		}
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			cand.PublishedDate = &t
		} else if item.UpdatedParsed != nil {
			t := item.UpdatedParsed.UTC()
			cand.PublishedDate = &t
		}
		candidates = append(candidates, cand)
		if limit > 0 && len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}

func resolveLink(base *url.URL, link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	if base == nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// feedItemDescription picks the item summary and strips any embedded markup.
// Feed descriptions routinely carry HTML fragments.
func feedItemDescription(item *gofeed.Item) string {
	raw := strings.TrimSpace(item.Description)
	if raw == "" {
		raw = strings.TrimSpace(item.Content)
	}
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "<") {
		return strings.Join(strings.Fields(raw), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return strings.Join(strings.Fields(raw), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
