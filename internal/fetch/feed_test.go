package fetch

import (
	"strings"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Example Research Blog</title>
  <link>https://blog.example.com/</link>
  <item>
    <title>Scaling Laws Revisited</title>
    <link>https://blog.example.com/posts/scaling-laws</link>
    <description>&lt;p&gt;A look at &lt;b&gt;recent&lt;/b&gt; results.&lt;/p&gt;</description>
    <pubDate>Tue, 10 Jun 2025 08:30:00 GMT</pubDate>
  </item>
  <item>
    <title>Relative Link Post</title>
    <link>/posts/relative</link>
  </item>
  <item>
    <title></title>
    <link>https://blog.example.com/posts/untitled</link>
  </item>
  <item>
    <title>Self Reference</title>
    <link>https://blog.example.com/feed.xml</link>
  </item>
</channel>
</rss>`

func TestLooksLikeFeed(t *testing.T) {
	testCases := []struct {
		name        string
		contentType string
		body        string
		expected    bool
	}{
		{
			name:        "RSS content type",
			contentType: "application/rss+xml; charset=utf-8",
			body:        "",
			expected:    true,
		},
		{
			name:        "Atom content type",
			contentType: "application/atom+xml",
			body:        "",
			expected:    true,
		},
		{
			name:        "RSS body served as text/plain",
			contentType: "text/plain",
			body:        sampleRSS,
			expected:    true,
		},
		{
			name:        "Atom body served as text/xml",
			contentType: "text/xml",
			body:        `<?xml version="1.0"?><feed xmlns="http://www.w3.org/2005/Atom"><title>t</title></feed>`,
			expected:    true,
		},
		{
			name:        "HTML page",
			contentType: "text/html",
			body:        "<html><body><a href='/x'>x</a></body></html>",
			expected:    false,
		},
		{
			name:        "Plain text",
			contentType: "text/plain",
			body:        "just some words",
			expected:    false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := LooksLikeFeed(tc.contentType, []byte(tc.body))
			if got != tc.expected {
				t.Errorf("LooksLikeFeed(%q) = %v, expected %v", tc.contentType, got, tc.expected)
			}
		})
	}
}

func TestParseFeedCandidates(t *testing.T) {
	candidates, err := ParseFeedCandidates([]byte(sampleRSS), "https://blog.example.com/feed.xml", 0)
	if err != nil {
		t.Fatalf("ParseFeedCandidates failed: %v", err)
	}

	// Untitled item and the feed's own URL are dropped.
	if len(candidates) != 2 {
		t.Fatalf("Expected 2 candidates, got %d", len(candidates))
	}

	first := candidates[0]
	if first.Title != "Scaling Laws Revisited" {
		t.Errorf("Expected title 'Scaling Laws Revisited', got %q", first.Title)
	}
	if first.URL != "https://blog.example.com/posts/scaling-laws" {
		t.Errorf("Unexpected URL: %q", first.URL)
	}
	if first.Description != "A look at recent results." {
		t.Errorf("Expected HTML-stripped description, got %q", first.Description)
	}
	if first.PublishedDate == nil {
		t.Fatal("Expected published date to be set")
	}
	want := time.Date(2025, 6, 10, 8, 30, 0, 0, time.UTC)
	if !first.PublishedDate.Equal(want) {
		t.Errorf("Expected published %v, got %v", want, *first.PublishedDate)
	}

	second := candidates[1]
	if second.URL != "https://blog.example.com/posts/relative" {
		t.Errorf("Expected resolved relative link, got %q", second.URL)
	}
	if second.PublishedDate != nil {
		t.Error("Expected nil published date for undated item")
	}
}

func TestParseFeedCandidates_Limit(t *testing.T) {
	candidates, err := ParseFeedCandidates([]byte(sampleRSS), "https://blog.example.com/feed.xml", 1)
	if err != nil {
		t.Fatalf("ParseFeedCandidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Errorf("Expected 1 candidate with limit 1, got %d", len(candidates))
	}
}

func TestParseFeedCandidates_Atom(t *testing.T) {
	atom := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Example Atom</title>
  <entry>
    <title>An Atom Entry</title>
    <link href="https://atom.example.com/entries/1"/>
    <summary>Entry summary.</summary>
    <updated>2025-06-11T10:00:00Z</updated>
  </entry>
</feed>`

	candidates, err := ParseFeedCandidates([]byte(atom), "https://atom.example.com/feed", 0)
	if err != nil {
		t.Fatalf("ParseFeedCandidates failed: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].URL != "https://atom.example.com/entries/1" {
		t.Errorf("Unexpected URL: %q", candidates[0].URL)
	}
	if candidates[0].PublishedDate == nil {
		t.Error("Expected updated timestamp to fill published date")
	}
}

func TestParseFeedCandidates_Malformed(t *testing.T) {
	_, err := ParseFeedCandidates([]byte("<html><body>not a feed</body></html>"), "https://example.com", 0)
	if err == nil {
		t.Error("Expected error for non-feed document")
	}
	if err != nil && !strings.Contains(err.Error(), "parse feed") {
		t.Errorf("Expected parse feed error, got: %v", err)
	}
}
