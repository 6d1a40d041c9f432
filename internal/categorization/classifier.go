package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"headlines/internal/core"
	"headlines/internal/logger"
	"headlines/internal/retry"
	"headlines/internal/vectorstore"
)

// Embedder produces embeddings for classification.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// Prediction is the nearest category of a text and its cosine distance to
// the category prototype (lower = more similar).
type Prediction struct {
	Category string
	Distance float64
}

// Classifier assigns each text the category whose prototype embedding is
// nearest. Prototypes live in the categories collection of the index.
type Classifier struct {
	embedder   Embedder
	prototypes *vectorstore.Collection[core.PrototypeMetadata]
	categories []core.CategoryPrototype
	names      map[string]bool
	retry      retry.Policy
	log        *slog.Logger
}

// NewClassifier creates a classifier over the given category set.
func NewClassifier(embedder Embedder, store *vectorstore.Store, categories []core.CategoryPrototype, policy retry.Policy, log *slog.Logger) *Classifier {
	names := make(map[string]bool, len(categories))
	for _, c := range categories {
		names[c.Name] = true
	}
	return &Classifier{
		embedder:   embedder,
		prototypes: vectorstore.NewCollection[core.PrototypeMetadata](store, core.CollectionCategories),
		categories: categories,
		names:      names,
		retry:      policy,
		log:        logger.OrDiscard(log).With("component", "classifier"),
	}
}

// Categories returns the configured category set.
func (c *Classifier) Categories() []core.CategoryPrototype { return c.categories }

// InitPrototypes embeds every category description and replaces the
// categories collection with exactly one prototype per category.
func (c *Classifier) InitPrototypes(ctx context.Context) error {
	if len(c.categories) == 0 {
		return errors.New("no categories configured")
	}

	descriptions := make([]string, len(c.categories))
	for i, cat := range c.categories {
		descriptions[i] = cat.Description
	}

	var vectors [][]float64
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = c.embedder.EmbedMany(ctx, descriptions)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to embed category prototypes: %w", err)
	}

	records := make([]vectorstore.Record[core.PrototypeMetadata], len(c.categories))
	for i, cat := range c.categories {
		records[i] = vectorstore.Record[core.PrototypeMetadata]{
			ID:        cat.Name,
			Text:      cat.Description,
			Embedding: vectors[i],
			Metadata:  core.PrototypeMetadata{Category: cat.Name},
		}
	}

	if err := c.prototypes.Replace(ctx, records); err != nil {
		return fmt.Errorf("failed to store category prototypes: %w", err)
	}

	c.log.Info("Category prototypes initialized", "categories", len(records))
	return nil
}

// Classify embeds a single text and returns its nearest category.
// The embedding and the lookup are retried together.
func (c *Classifier) Classify(ctx context.Context, text string) (Prediction, error) {
	var prediction Prediction
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		embedding, err := c.embedder.Embed(ctx, text)
		if err != nil {
			return err
		}
		prediction, err = c.nearest(ctx, embedding)
		return err
	})
	return prediction, err
}

// ClassifyEmbedding returns the nearest category of an already embedded text.
func (c *Classifier) ClassifyEmbedding(ctx context.Context, embedding []float64) (Prediction, error) {
	var prediction Prediction
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		prediction, err = c.nearest(ctx, embedding)
		return err
	})
	return prediction, err
}

// ClassifyMany embeds all texts in batches and classifies each one.
// It returns the predictions and the embeddings, both in input order.
func (c *Classifier) ClassifyMany(ctx context.Context, texts []string) ([]Prediction, [][]float64, error) {
	var vectors [][]float64
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		vectors, err = c.embedder.EmbedMany(ctx, texts)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if len(vectors) != len(texts) {
		return nil, nil, &core.ProviderError{Op: "embed_many", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))}
	}

	predictions, err := c.ClassifyEmbeddings(ctx, vectors)
	if err != nil {
		return nil, nil, err
	}
	return predictions, vectors, nil
}

// ClassifyEmbeddings classifies a batch of embeddings in input order.
func (c *Classifier) ClassifyEmbeddings(ctx context.Context, vectors [][]float64) ([]Prediction, error) {
	predictions := make([]Prediction, len(vectors))
	for i, v := range vectors {
		p, err := c.ClassifyEmbedding(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("failed to classify item %d: %w", i, err)
		}
		predictions[i] = p
	}
	return predictions, nil
}

func (c *Classifier) nearest(ctx context.Context, embedding []float64) (Prediction, error) {
	hits, err := c.prototypes.Query(ctx, vectorstore.Query{Embedding: embedding, K: 1})
	if err != nil {
		return Prediction{}, err
	}
	if len(hits) == 0 {
		return Prediction{}, &core.IndexError{Op: "classify", Collection: c.prototypes.Name(),
			Err: errors.New("no category prototypes; InitPrototypes must run first")}
	}

	category := hits[0].Metadata.Category
	if !c.names[category] {
		return Prediction{}, fmt.Errorf("%w: %q", core.ErrCategoryUnknown, category)
	}
	return Prediction{Category: category, Distance: hits[0].Distance}, nil
}
