package core

import (
	"strings"
	"time"
)

// ResourceKind discriminates the resource variants. The kind doubles as the
// feed type a user browses.
type ResourceKind string

const (
	KindPaper           ResourceKind = "Paper"
	KindVideo           ResourceKind = "Video"
	KindBlogPost        ResourceKind = "BlogPost"
	KindSocialMediaPost ResourceKind = "SocialMediaPost"
)

// FeedKinds returns the enumerated feed types in a stable order.
// SocialMediaPost is included even though standard ingestion never creates
// resources of that kind; its feeds stay empty.
func FeedKinds() []ResourceKind {
	return []ResourceKind{KindPaper, KindVideo, KindBlogPost, KindSocialMediaPost}
}

// ParseKind maps free-form kind strings (LLM output, source categories) onto
// a ResourceKind. The second return is false when the string matches nothing.
func ParseKind(s string) (ResourceKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(normalized)
	switch normalized {
	case "paper", "papers", "arxiv":
		return KindPaper, true
	case "video", "videos", "youtube":
		return KindVideo, true
	case "blogpost", "blogposts", "blog", "article", "articles", "post":
		return KindBlogPost, true
	case "socialmediapost", "socialmedia", "tweet", "x":
		return KindSocialMediaPost, true
	}
	return "", false
}

// Vote polarity values. At most one vote exists per (user, resource).
const (
	Upvote   = 1
	Downvote = -1
)

// Resource is an immutable content reference keyed by URL.
type Resource struct {
	ID            string       `json:"id"`             // Stable unique identifier
	Kind          ResourceKind `json:"kind"`           // Variant discriminator
	Title         string       `json:"title"`          // Required, non-empty
	Description   string       `json:"description"`    // Optional
	URL           string       `json:"url"`            // Required, unique across all resources
	SourceID      string       `json:"source_id"`      // Weak reference to Source; empty when unset
	PublishedDate *time.Time   `json:"published_date"` // Optional original publication date
	CreatedAt     time.Time    `json:"created_at"`     // First sighting of the URL
	UpdatedAt     time.Time    `json:"updated_at"`     // Bumped on mutations
}

// Source is a user-configured ingestion endpoint. The core only reads these.
type Source struct {
	ID          string       `json:"id"`            // Unique identifier
	OwnerUserID string       `json:"owner_user_id"` // User who configured the source
	Name        string       `json:"name"`          // Display name
	URL         string       `json:"url"`           // Endpoint fetched during ingestion
	Category    ResourceKind `json:"category"`      // Fallback kind when extraction omits one
	IsActive    bool         `json:"is_active"`     // Inactive sources are skipped
}

// User is the identity anchor. The core only reads these.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Vote is a user's polarity signal on a resource.
type Vote struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	ResourceID string    `json:"resource_id"`
	Polarity   int       `json:"polarity"`   // +1 or -1
	CreatedAt  time.Time `json:"created_at"` // When the vote was cast
	Resource   *Resource `json:"resource"`   // Eager-loaded referenced resource
}

// Recommendation is a persisted row of a generated feed. Rows are historical:
// never updated, never deleted by the core.
type Recommendation struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	ResourceID  string       `json:"resource_id"`
	FeedType    ResourceKind `json:"feed_type"`
	Date        time.Time    `json:"date"`     // Civil day in UTC (midnight)
	Position    int          `json:"position"` // 1..N without gaps per (user, date, feed_type)
	Score       float64      `json:"score"`    // Final ranking score
	GeneratedAt time.Time    `json:"generated_at"`
}

// VectorDocument mirrors a resource into the vector index. Its ID equals the
// resource ID; title/description/url ride along for observability.
type VectorDocument struct {
	ID            string       `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	URL           string       `json:"url"`
	Kind          ResourceKind `json:"kind"`
	SourceID      string       `json:"source_id"`
	PublishedDate time.Time    `json:"published_date"` // Falls back to created_at when unknown
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	Embedding     []float64    `json:"embedding"` // Fixed-dimension unit vector
}

// UserProfile is the transient preference snapshot rebuilt on every feed run.
type UserProfile struct {
	UserEmbedding     []float64          `json:"user_embedding"`     // nil when the user has no upvotes
	SourcePreference  map[string]float64 `json:"source_preference"`  // source_id -> [0,1]
	TotalInteractions int                `json:"total_interactions"` // Number of votes considered
}

// Candidate is an item proposed by extraction before persistence.
type Candidate struct {
	Title         string       `json:"title"`
	URL           string       `json:"url"`
	Description   string       `json:"description"`
	Kind          ResourceKind `json:"kind"`           // Empty when extraction omitted it
	PublishedDate *time.Time   `json:"published_date"` // Known for feed entries, absent for LLM output
}

// CivilDay truncates t to its calendar date in UTC.
func CivilDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EmbeddingText composes the canonical "{title} {description}" text embedded
// for a resource. An empty description collapses to the title alone.
func EmbeddingText(title, description string) string {
	if strings.TrimSpace(description) == "" {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(title) + " " + strings.TrimSpace(description)
}
