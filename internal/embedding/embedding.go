// Package embedding produces fixed-dimension unit-normalized vectors for
// text, batching requests against the Gemini embedding API.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"curio/internal/core"
)

const (
	// DefaultModel is the default Gemini embedding model.
	DefaultModel = "gemini-embedding-001"
	// DefaultDimensions is the output dimension. It is a deploy-time constant
	// and must match the vector index schema.
	DefaultDimensions = 1536
	// DefaultBatchSize caps how many texts go into one API request.
	DefaultBatchSize = 100
)

// Embedder produces one vector per input text, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Options configures a Client.
type Options struct {
	Model             string
	Dimensions        int
	BatchSize         int
	RequestsPerMinute int
}

func (o Options) withDefaults() Options {
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Dimensions <= 0 {
		o.Dimensions = DefaultDimensions
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Client is an embedding client backed by the Gemini API.
type Client struct {
	gClient *genai.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates an embedding client. A missing API key is a
// configuration error and fails fast.
func NewClient(ctx context.Context, apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: gemini API key is required: %w", core.ErrInvalidInput)
	}
	opts = opts.withDefaults()

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: create Gemini client: %w", err)
	}

	var limiter *rate.Limiter
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.RequestsPerMinute)/60.0), 1)
	}

	return &Client{gClient: gClient, opts: opts, limiter: limiter}, nil
}

// Dimensions returns the configured output dimension.
func (c *Client) Dimensions() int {
	return c.opts.Dimensions
}

// Embed returns one unit-normalized vector per input text, in input order.
// Inputs are chunked into batches of at most the configured batch size. An
// input with no non-empty text is rejected with core.ErrInvalidInput.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedding: empty input: %w", core.ErrInvalidInput)
	}
	allEmpty := true
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return nil, fmt.Errorf("embedding: all inputs empty: %w", core.ErrInvalidInput)
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.opts.BatchSize {
		end := start + c.opts.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedding: %w", err)
		}
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			// The API rejects empty content; a space keeps list positions aligned.
			text = " "
		}
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		}
	}

	dims := int32(c.opts.Dimensions)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed batch of %d: %w", len(texts), err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("embedding: expected %d vectors, got %d", len(texts), got)
	}

	vectors := make([][]float64, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) != c.opts.Dimensions {
			got := 0
			if emb != nil {
				got = len(emb.Values)
			}
			return nil, fmt.Errorf("embedding: dimension mismatch at index %d: expected %d, got %d", i, c.opts.Dimensions, got)
		}
		vector := make([]float64, len(emb.Values))
		for j, v := range emb.Values {
			vector[j] = float64(v)
		}
		// The API is documented to return unit vectors; normalizing again
		// keeps downstream cosine math honest either way.
		vectors[i] = Normalize(vector)
	}
	return vectors, nil
}

// Normalize returns v scaled to unit L2 norm. Zero vectors are returned
// unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Mean returns the element-wise mean of the given vectors. All vectors must
// share the same dimension; nil is returned for empty input.
func Mean(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			out[i] += x
		}
	}
	n := float64(len(vectors))
	for i := range out {
		out[i] /= n
	}
	return out
}
