// Package extract turns raw source content into candidate resources using
// LLM-assisted extraction with strict JSON output.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"curio/internal/core"
)

const (
	// DefaultModel is the default Gemini model used for extraction.
	DefaultModel = "gemini-2.0-flash"
	// DefaultMaxCandidates caps how many items a single extraction may yield.
	DefaultMaxCandidates = 20
)

// Extractor translates source content into candidate resources.
type Extractor interface {
	Extract(ctx context.Context, sourceURL, content string, category core.ResourceKind) ([]core.Candidate, error)
}

// Options configures a Client.
type Options struct {
	Model             string
	Temperature       float32
	MaxTokens         int32
	MaxCandidates     int
	RequestsPerMinute int
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.MaxCandidates <= 0 {
		o.MaxCandidates = DefaultMaxCandidates
	}
	return o
}

// Client is an LLM extraction client backed by the Gemini API.
type Client struct {
	gClient *genai.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates an extraction client. The API key is required; a missing
// key is a configuration error and fails fast.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("extract: gemini API key is required: %w", core.ErrInvalidInput)
	}
	opts = opts.withDefaults()

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("extract: create Gemini client: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}

	return &Client{gClient: gClient, opts: opts, limiter: limiter}, nil
}

// responseSchema enforces the {resources: [{title, url, description, kind}]}
// shape on the model output.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"resources": {
				Type:        genai.TypeArray,
				Description: "Individual learning resources found in the content",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"title": {
							Type:        genai.TypeString,
							Description: "Title of the resource as it appears in the content",
						},
						"url": {
							Type:        genai.TypeString,
							Description: "Absolute URL of the resource",
						},
						"description": {
							Type:        genai.TypeString,
							Description: "Short description when the content provides one",
						},
						"kind": {
							Type:        genai.TypeString,
							Description: "One of: Paper, Video, BlogPost",
						},
					},
					Required: []string{"title", "url"},
				},
			},
		},
		Required: []string{"resources"},
	}
}

// buildPrompt constructs the extraction prompt for one source page.
func buildPrompt(sourceURL, content string, maxCandidates int) string {
	return fmt.Sprintf(`You are extracting individual learning resources from a web page or feed.

SOURCE URL: %s

RULES:
1. Respond with strict JSON only, matching the schema {"resources": [{"title": "...", "url": "...", "description": "...", "kind": "..."}]}.
2. Never invent URLs. Every URL you emit must appear in the content below.
3. Resolve relative URLs against the source URL, or against an explicit base declared in the content.
4. Do not emit the source URL itself, nor feed or channel level metadata. Emit only individual items.
5. Emit at most %d resources.
6. "kind" must be one of: Paper, Video, BlogPost. Omit it when the content gives no indication.

CONTENT:
---
%s
---`, sourceURL, maxCandidates, content)
}

// Extract asks the model for candidate resources found in content. A response
// that cannot be parsed yields an empty list wrapped in core.ErrParse; callers
// treat that as the source producing nothing this run. Authentication
// failures are wrapped in core.ErrAuth and are fatal to the job.
func (c *Client) Extract(ctx context.Context, sourceURL, content string, category core.ResourceKind) ([]core.Candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("extract %s: %w", sourceURL, err)
		}
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: buildPrompt(sourceURL, content, c.opts.MaxCandidates)}},
		Role:  "user",
	}}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}
	if c.opts.Temperature > 0 {
		temp := c.opts.Temperature
		config.Temperature = &temp
	}
	if c.opts.MaxTokens > 0 {
		config.MaxOutputTokens = c.opts.MaxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", sourceURL, classify(err))
	}

	candidates, err := ParseCandidates(resp.Text(), category, c.opts.MaxCandidates)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", sourceURL, err)
	}
	return candidates, nil
}

// classify maps Gemini API failures onto the error taxonomy. Credential
// problems become core.ErrAuth; everything else stays a transport error.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 401 || apiErr.Code == 403 {
			return fmt.Errorf("%v: %w", err, core.ErrAuth)
		}
	}
	return err
}

// extractionResponse is the expected JSON shape of the model output.
type extractionResponse struct {
	Resources []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
		Kind        string `json:"kind"`
	} `json:"resources"`
}

// ParseCandidates parses a model response into candidates. It tolerates
// preamble and epilogue around the JSON body by slicing from the first '{'
// to the last '}'. Entries missing a title or URL are dropped, unknown kinds
// fall back to fallbackKind, and at most limit candidates are returned when
// limit > 0. A body with no parseable JSON returns core.ErrParse.
func ParseCandidates(response string, fallbackKind core.ResourceKind, limit int) ([]core.Candidate, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response: %w", core.ErrParse)
	}

	var parsed extractionResponse
	if err := json.Unmarshal([]byte(response[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("malformed JSON in response: %v: %w", err, core.ErrParse)
	}

	candidates := make([]core.Candidate, 0, len(parsed.Resources))
	for _, r := range parsed.Resources {
		title := strings.TrimSpace(r.Title)
		url := strings.TrimSpace(r.URL)
		if title == "" || url == "" {
			continue
		}
		kind, ok := core.ParseKind(r.Kind)
		if !ok {
			kind = fallbackKind
		}
		candidates = append(candidates, core.Candidate{
			Title:       title,
			URL:         url,
			Description: strings.TrimSpace(r.Description),
			Kind:        kind,
		})
		if limit > 0 && len(candidates) >= limit {
			break
		}
	}
	return candidates, nil
}
