package pipeline

import (
	"fmt"
	"log/slog"

	"headlines/internal/categorization"
	"headlines/internal/clustering"
	"headlines/internal/config"
	"headlines/internal/highlights"
	"headlines/internal/retry"
	"headlines/internal/vectorstore"
)

// EmbeddingProvider is what the builder needs from the embedding backend:
// single embeddings for classification and batches for the pipeline.
type EmbeddingProvider interface {
	Embedder
	categorization.Embedder
}

// Builder helps construct a fully configured Pipeline
type Builder struct {
	cfg      *config.Config
	embedder EmbeddingProvider
	store    *vectorstore.Store
	log      *slog.Logger
}

// NewBuilder creates a new pipeline builder from the application configuration
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithEmbedder sets the embedding provider
func (b *Builder) WithEmbedder(embedder EmbeddingProvider) *Builder {
	b.embedder = embedder
	return b
}

// WithStore sets the article index
func (b *Builder) WithStore(store *vectorstore.Store) *Builder {
	b.store = store
	return b
}

// WithLogger sets the logger handed to every component; output is
// discarded when none is set
func (b *Builder) WithLogger(log *slog.Logger) *Builder {
	b.log = log
	return b
}

// Build constructs a fully configured Pipeline
func (b *Builder) Build() (*Pipeline, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if b.embedder == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if b.store == nil {
		return nil, fmt.Errorf("article index is required")
	}

	policy := retry.FromConfig(b.cfg.Retry)

	classifier := categorization.NewClassifier(
		b.embedder,
		b.store,
		categorization.Prototypes(b.cfg.Taxonomy.Categories),
		policy,
		b.log,
	)

	clusterer, err := clustering.NewClusterer(clustering.FromSettings(b.cfg.Clustering), b.log)
	if err != nil {
		return nil, fmt.Errorf("failed to create clusterer: %w", err)
	}

	selector, err := highlights.NewSelector(
		b.cfg.Taxonomy.PriorityKeywords,
		b.cfg.Highlights.PerCategory,
		b.cfg.Highlights.PriorityWeight,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create highlight selector: %w", err)
	}

	return NewPipeline(b.embedder, classifier, clusterer, selector, b.store, policy, &Config{
		NewsCSV:       b.cfg.Data.NewsCSV,
		ClassifiedCSV: b.cfg.Data.ClassifiedCSV,
		HighlightsCSV: b.cfg.Data.HighlightsCSV,
	}, b.log), nil
}
