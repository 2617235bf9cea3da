package core

import (
	"testing"
	"time"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected ResourceKind
		ok       bool
	}{
		{"exact paper", "Paper", KindPaper, true},
		{"lowercase video", "video", KindVideo, true},
		{"blog post with space", "Blog Post", KindBlogPost, true},
		{"blog post with underscore", "blog_post", KindBlogPost, true},
		{"article alias", "article", KindBlogPost, true},
		{"social media post", "SocialMediaPost", KindSocialMediaPost, true},
		{"tweet alias", "tweet", KindSocialMediaPost, true},
		{"padded input", "  Video  ", KindVideo, true},
		{"unknown kind", "podcast", "", false},
		{"empty string", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := ParseKind(tt.input)
			if ok != tt.ok {
				t.Errorf("ParseKind(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if kind != tt.expected {
				t.Errorf("ParseKind(%q) = %q, want %q", tt.input, kind, tt.expected)
			}
		})
	}
}

func TestFeedKinds(t *testing.T) {
	kinds := FeedKinds()

	if len(kinds) != 4 {
		t.Fatalf("Expected 4 feed kinds, got %d", len(kinds))
	}

	expected := []ResourceKind{KindPaper, KindVideo, KindBlogPost, KindSocialMediaPost}
	for i, kind := range kinds {
		if kind != expected[i] {
			t.Errorf("FeedKinds()[%d] = %q, want %q", i, kind, expected[i])
		}
	}
}

func TestCivilDay(t *testing.T) {
	est := time.FixedZone("EST", -5*3600)

	tests := []struct {
		name     string
		input    time.Time
		expected time.Time
	}{
		{
			"afternoon UTC",
			time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC),
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			"midnight stays put",
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			"late evening EST crosses into next UTC day",
			time.Date(2025, 3, 14, 22, 30, 0, 0, est),
			time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CivilDay(tt.input)
			if !got.Equal(tt.expected) {
				t.Errorf("CivilDay(%v) = %v, want %v", tt.input, got, tt.expected)
			}
			if got.Location() != time.UTC {
				t.Errorf("CivilDay(%v) location = %v, want UTC", tt.input, got.Location())
			}
		})
	}
}

func TestEmbeddingText(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		expected    string
	}{
		{"title and description", "Attention Is All You Need", "Transformer paper", "Attention Is All You Need Transformer paper"},
		{"empty description", "Go Concurrency Patterns", "", "Go Concurrency Patterns"},
		{"whitespace description", "Go Concurrency Patterns", "   ", "Go Concurrency Patterns"},
		{"padded title", "  Title  ", "desc", "Title desc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EmbeddingText(tt.title, tt.description)
			if got != tt.expected {
				t.Errorf("EmbeddingText(%q, %q) = %q, want %q", tt.title, tt.description, got, tt.expected)
			}
		})
	}
}
