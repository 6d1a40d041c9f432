// Package pipeline runs the daily processing: load the news CSV, classify
// and cluster every article, select highlights, index and write results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"headlines/internal/core"
	"headlines/internal/dataset"
	"headlines/internal/highlights"
	"headlines/internal/logger"
	"headlines/internal/retry"
	"headlines/internal/vectorstore"
)

// Pipeline orchestrates the end-to-end highlight generation workflow
type Pipeline struct {
	embedder   Embedder
	classifier ArticleClassifier
	clusterer  DuplicateClusterer
	selector   HighlightSelector

	articles   *vectorstore.Collection[core.ArticleMetadata]
	highlights *vectorstore.Collection[core.HighlightMetadata]

	retry  retry.Policy
	config *Config
	log    *slog.Logger
}

// Config holds the default dataset locations
type Config struct {
	NewsCSV       string
	ClassifiedCSV string
	HighlightsCSV string
}

// NewPipeline creates a new pipeline with all dependencies
func NewPipeline(
	embedder Embedder,
	classifier ArticleClassifier,
	clusterer DuplicateClusterer,
	selector HighlightSelector,
	store *vectorstore.Store,
	policy retry.Policy,
	config *Config,
	log *slog.Logger,
) *Pipeline {
	if config == nil {
		config = &Config{}
	}
	return &Pipeline{
		embedder:   embedder,
		classifier: classifier,
		clusterer:  clusterer,
		selector:   selector,
		articles:   vectorstore.NewCollection[core.ArticleMetadata](store, core.CollectionArticles),
		highlights: vectorstore.NewCollection[core.HighlightMetadata](store, core.CollectionHighlights),
		retry:      policy,
		config:     config,
		log:        logger.OrDiscard(log).With("component", "pipeline"),
	}
}

// Options overrides the configured dataset paths for one run
type Options struct {
	NewsCSV       string
	ClassifiedCSV string
	HighlightsCSV string
}

// Result contains the output of one pipeline run
type Result struct {
	RunID          string
	Articles       []core.Article
	Highlights     []core.Article
	Embeddings     [][]float64 // Parallel to Articles; never written to the article records
	CategoryCounts map[string]int
	Stats          ProcessingStats
}

// ProcessingStats tracks pipeline execution metrics
type ProcessingStats struct {
	Articles       int
	Highlights     int
	Clusters       int
	Noise          int
	ProcessingTime time.Duration
	StartTime      time.Time
	EndTime        time.Time
}

func (p *Pipeline) resolve(opts Options) Options {
	if opts.NewsCSV == "" {
		opts.NewsCSV = p.config.NewsCSV
	}
	if opts.ClassifiedCSV == "" {
		opts.ClassifiedCSV = p.config.ClassifiedCSV
	}
	if opts.HighlightsCSV == "" {
		opts.HighlightsCSV = p.config.HighlightsCSV
	}
	return opts
}

// Process executes the full pipeline. Nothing is indexed or written until
// classification, clustering and highlight selection have all succeeded.
// The CSV outputs are written first, then the highlight slate is swapped,
// and the article collection is updated last, so a failed write leaves the
// index as the previous run left it.
func (p *Pipeline) Process(ctx context.Context, opts Options) (*Result, error) {
	opts = p.resolve(opts)
	stats := ProcessingStats{StartTime: time.Now()}
	runID := uuid.NewString()
	log := p.log.With("run_id", runID)

	// Step 1: Load the dataset
	log.Info("Loading news dataset", "path", opts.NewsCSV)
	ds, err := dataset.Load(opts.NewsCSV)
	if err != nil {
		return nil, err
	}
	articles := ds.Articles
	stats.Articles = len(articles)

	// Step 2: Category prototypes
	if err := p.classifier.InitPrototypes(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize category prototypes: %w", err)
	}

	// Step 3: One batched embedding pass, reused for classification and clustering
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = a.Text
	}
	var embeddings [][]float64
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = p.embedder.EmbedMany(ctx, texts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed articles: %w", err)
	}
	if len(embeddings) != len(articles) {
		return nil, &core.ProviderError{Op: "embed_many", Err: fmt.Errorf("expected %d embeddings, got %d", len(articles), len(embeddings))}
	}
	log.Info("Articles embedded", "articles", len(articles))

	// Step 4: Classify
	predictions, err := p.classifier.ClassifyEmbeddings(ctx, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to classify articles: %w", err)
	}
	for i := range articles {
		articles[i].PredictedCategory = predictions[i].Category
		articles[i].Similarity = predictions[i].Distance
	}
	counts := highlights.CountByCategory(articles)
	log.Info("Articles classified", "categories", counts)

	// Step 5: Cluster near-duplicates
	clusters, err := p.clusterer.Cluster(ctx, embeddings)
	if err != nil {
		return nil, fmt.Errorf("failed to cluster articles: %w", err)
	}
	for i := range articles {
		articles[i].Cluster = clusters.Labels[i]
		articles[i].ClusterSize = clusters.Sizes[i]
	}
	stats.Clusters = clusters.Clusters
	stats.Noise = clusters.Noise

	// Step 6: Highlights
	selected, err := p.selector.Select(articles)
	if err != nil {
		return nil, fmt.Errorf("failed to select highlights: %w", err)
	}
	stats.Highlights = len(selected)
	log.Info("Highlights selected", "highlights", len(selected))

	// Step 7: Write datasets
	if err := dataset.Write(opts.ClassifiedCSV, ds.Columns, articles); err != nil {
		return nil, fmt.Errorf("failed to write processed dataset: %w", err)
	}
	if err := dataset.Write(opts.HighlightsCSV, ds.Columns, selected); err != nil {
		return nil, fmt.Errorf("failed to write highlights dataset: %w", err)
	}

	// Step 8: Replace the highlight slate, then index articles
	if err := p.replaceHighlights(ctx, selected); err != nil {
		return nil, err
	}
	if err := p.indexArticles(ctx, articles, embeddings); err != nil {
		return nil, err
	}

	stats.EndTime = time.Now()
	stats.ProcessingTime = stats.EndTime.Sub(stats.StartTime)
	log.Info("Pipeline complete",
		"articles", stats.Articles,
		"highlights", stats.Highlights,
		"clusters", stats.Clusters,
		"noise", stats.Noise,
		"duration", stats.ProcessingTime)

	return &Result{
		RunID:          runID,
		Articles:       articles,
		Highlights:     selected,
		Embeddings:     embeddings,
		CategoryCounts: counts,
		Stats:          stats,
	}, nil
}

// IndexHighlights rebuilds the highlights collection from a highlights
// CSV. A missing file leaves an empty collection. Returns the number of
// highlights the collection holds afterwards.
func (p *Pipeline) IndexHighlights(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = p.config.HighlightsCSV
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		p.log.Warn("Highlights file not found; highlights index will be empty", "path", path)
		if err := p.highlights.Replace(ctx, nil); err != nil {
			return 0, fmt.Errorf("failed to reset highlights index: %w", err)
		}
		return 0, nil
	}

	ds, err := dataset.LoadProcessed(path)
	if err != nil {
		return 0, err
	}
	if err := p.replaceHighlights(ctx, ds.Articles); err != nil {
		return 0, err
	}
	n, err := p.highlights.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count indexed highlights: %w", err)
	}

	p.log.Info("Highlights indexed", "path", path, "highlights", n)
	return n, nil
}

func (p *Pipeline) indexArticles(ctx context.Context, articles []core.Article, embeddings [][]float64) error {
	records := make([]vectorstore.Record[core.ArticleMetadata], len(articles))
	for i, a := range articles {
		records[i] = vectorstore.Record[core.ArticleMetadata]{
			ID:        a.ID,
			Text:      a.Text,
			Embedding: embeddings[i],
			Metadata: core.ArticleMetadata{
				Title:    a.Title,
				Category: a.PredictedCategory,
				Cluster:  a.Cluster,
			},
		}
	}

	err := p.retry.Do(ctx, func(ctx context.Context) error {
		return p.articles.Upsert(ctx, records)
	})
	if err != nil {
		return fmt.Errorf("failed to index articles: %w", err)
	}
	return nil
}

// replaceHighlights swaps the highlights collection for the given slate in
// one step. Highlight documents are embedded by the index.
func (p *Pipeline) replaceHighlights(ctx context.Context, selected []core.Article) error {
	records := make([]vectorstore.Record[core.HighlightMetadata], len(selected))
	for i, a := range selected {
		records[i] = vectorstore.Record[core.HighlightMetadata]{
			ID:   a.ID,
			Text: core.HighlightText(a),
			Metadata: core.HighlightMetadata{
				SourceID:   a.ID,
				Title:      a.Title,
				Category:   a.PredictedCategory,
				IsPriority: a.IsPriority,
			},
		}
	}

	if err := p.highlights.Replace(ctx, records); err != nil {
		return fmt.Errorf("failed to replace highlights index: %w", err)
	}
	return nil
}
