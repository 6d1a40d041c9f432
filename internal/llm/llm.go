package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"headlines/internal/config"
	"headlines/internal/core"
)

const (
	// DefaultModel is the default Gemini model used to answer questions.
	DefaultModel = "gemini-2.0-flash"
	// DefaultEmbeddingModel is the default model for generating embeddings
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka)
	DefaultEmbeddingDimensions = int32(768)
	// DefaultTemperature keeps answers close to the retrieved context
	DefaultTemperature = float32(0.1)
)

// Client wraps the Gemini SDK for embeddings and text generation.
type Client struct {
	gClient        *genai.Client
	modelName      string
	embeddingModel string
	dimensions     int32
	temperature    float32
	maxTokens      int32
	timeout        time.Duration
	batchSize      int
	concurrency    int
}

// NewClient creates a Gemini client from the AI configuration.
func NewClient(ctx context.Context, cfg config.AI) (*Client, error) {
	if cfg.Gemini.APIKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	c := &Client{
		gClient:        gClient,
		modelName:      cfg.Gemini.Model,
		embeddingModel: cfg.Gemini.EmbeddingModel,
		dimensions:     cfg.Gemini.EmbeddingDimensions,
		temperature:    cfg.Gemini.Temperature,
		maxTokens:      cfg.Gemini.MaxTokens,
		timeout:        cfg.Gemini.Timeout,
		batchSize:      cfg.EmbeddingBatchSize,
		concurrency:    cfg.EmbeddingConcurrency,
	}
	if c.modelName == "" {
		c.modelName = DefaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.dimensions <= 0 {
		c.dimensions = DefaultEmbeddingDimensions
	}
	if c.batchSize <= 0 {
		c.batchSize = 100
	}
	if c.concurrency <= 0 {
		c.concurrency = 1
	}

	return c, nil
}

// ModelName returns the generation model in use.
func (c *Client) ModelName() string { return c.modelName }

// Embed returns the embedding of a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.embedContents(ctx, []string{text})
	if err != nil {
		return nil, &core.ProviderError{Op: "embed", Err: err}
	}
	return vectors[0], nil
}

// EmbedMany returns one embedding per text, in input order. Texts are sent in
// batches with a bounded number of batches in flight.
func (c *Client) EmbedMany(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := EmbedBatches(ctx, texts, c.batchSize, c.concurrency, c.embedContents)
	if err != nil {
		return nil, &core.ProviderError{Op: "embed_many", Err: err}
	}
	return vectors, nil
}

// embedContents embeds one request worth of texts.
func (c *Client) embedContents(ctx context.Context, texts []string) ([][]float64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		}
	}

	// Configure embedding dimensions using Matryoshka
	dims := c.dimensions
	embedConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), got)
	}

	vectors := make([][]float64, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding values returned for input %d", i)
		}
		// Convert float32 to float64
		v := make([]float64, len(e.Values))
		for j, val := range e.Values {
			v[j] = float64(val)
		}
		vectors[i] = v
	}

	return vectors, nil
}

// Generate completes a prompt with the configured model and temperature.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	temp := c.temperature
	genConfig := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if c.maxTokens > 0 {
		genConfig.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, genConfig)
	if err != nil {
		return "", &core.ProviderError{Op: "generate", Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &core.ProviderError{Op: "generate", Err: fmt.Errorf("empty response from model")}
	}

	return text, nil
}

// EmbedBatches splits texts into chunks of batchSize and embeds them with at
// most concurrency chunks in flight. Each chunk writes into its own range of
// the result, so the output order matches the input order.
func EmbedBatches(ctx context.Context, texts []string, batchSize, concurrency int, embed func(context.Context, []string) ([][]float64, error)) ([][]float64, error) {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		g.Go(func() error {
			vectors, err := embed(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("batch %d-%d: expected %d embeddings, got %d", start, end, end-start, len(vectors))
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
