package pipeline

import (
	"context"

	"headlines/internal/categorization"
	"headlines/internal/clustering"
	"headlines/internal/core"
)

// Embedder creates vector embeddings for article texts
type Embedder interface {
	// EmbedMany embeds all texts in one batched call, output in input order
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// ArticleClassifier assigns each article the nearest category prototype
type ArticleClassifier interface {
	// InitPrototypes (re)builds the category prototype collection
	InitPrototypes(ctx context.Context) error

	// ClassifyEmbeddings returns one prediction per embedding, in input order
	ClassifyEmbeddings(ctx context.Context, vectors [][]float64) ([]categorization.Prediction, error)
}

// DuplicateClusterer groups near-duplicate articles
type DuplicateClusterer interface {
	// Cluster returns one label per embedding; core.NoiseLabel marks noise
	Cluster(ctx context.Context, embeddings [][]float64) (*clustering.Result, error)
}

// HighlightSelector scores articles and picks the per-category slate
type HighlightSelector interface {
	// Select annotates articles in place and returns the highlights
	Select(articles []core.Article) ([]core.Article, error)
}
