// Package clustering groups near-duplicate articles: embeddings are reduced
// with UMAP and the reduced points are clustered with HDBSCAN.
package clustering

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"headlines/internal/config"
	"headlines/internal/core"
	"headlines/internal/logger"
)

// Config holds the reduction and density clustering parameters.
type Config struct {
	Components     int
	Neighbors      int
	MinDist        float64
	Epochs         int
	Seed           int64
	MinClusterSize int
	MinSamples     int
	Metric         string // Input-space metric for the neighbour graph: euclidean or cosine

	// Cosine distance under which two embeddings count as the same article.
	// Duplicates are reduced once and placed at the same coordinates.
	DuplicateDistance float64
}

// DefaultConfig returns the defaults for near-duplicate grouping.
func DefaultConfig() Config {
	hdb := DefaultHDBSCANConfig()
	return Config{
		Components:     5,
		Neighbors:      15,
		MinDist:        0.1,
		Epochs:         200,
		Seed:           42,
		MinClusterSize: hdb.MinClusterSize,
		MinSamples:     hdb.MinSamples,
		Metric:         "euclidean",

		DuplicateDistance: 0.02,
	}
}

// FromSettings builds a Config from the clustering configuration section.
func FromSettings(cfg config.Clustering) Config {
	return Config{
		Components:     cfg.UMAPComponents,
		Neighbors:      cfg.UMAPNeighbors,
		MinDist:        cfg.UMAPMinDist,
		Epochs:         cfg.UMAPEpochs,
		Seed:           cfg.RandomSeed,
		MinClusterSize: cfg.MinClusterSize,
		MinSamples:     cfg.MinSamples,
		Metric:         cfg.Metric,

		DuplicateDistance: cfg.DuplicateDistance,
	}
}

// Result holds one label per input, in input order, plus diagnostics.
type Result struct {
	Labels     []int
	Sizes      []int
	Reduced    [][]float64
	Clusters   int
	Noise      int
	Silhouette float64
}

// Clusterer labels embeddings with cluster ids; core.NoiseLabel marks
// articles that belong to no cluster.
type Clusterer struct {
	cfg Config
	log *slog.Logger
}

// NewClusterer validates cfg and returns a Clusterer. A nil log discards
// output.
func NewClusterer(cfg Config, log *slog.Logger) (*Clusterer, error) {
	if cfg.Components < 1 {
		return nil, fmt.Errorf("umap components must be positive, got %d", cfg.Components)
	}
	if cfg.MinClusterSize < 2 {
		return nil, fmt.Errorf("min cluster size must be at least 2, got %d", cfg.MinClusterSize)
	}
	if cfg.DuplicateDistance < 0 {
		return nil, fmt.Errorf("duplicate distance must not be negative, got %f", cfg.DuplicateDistance)
	}
	if _, err := metricByName(cfg.Metric); err != nil {
		return nil, err
	}
	return &Clusterer{cfg: cfg, log: logger.OrDiscard(log).With("component", "clusterer")}, nil
}

// Cluster reduces the embeddings and clusters the reduced points. The same
// input and seed always produce the same labels, and articles with
// duplicate embeddings always share a label.
func (c *Clusterer) Cluster(ctx context.Context, embeddings [][]float64) (*Result, error) {
	start := time.Now()
	n := len(embeddings)
	result := &Result{Labels: make([]int, n)}

	if n < c.cfg.MinClusterSize {
		for i := range result.Labels {
			result.Labels[i] = core.NoiseLabel
		}
		result.Sizes = ClusterSizes(result.Labels)
		result.Noise = n
		c.log.Info("Too few articles to cluster; all marked as noise", "articles", n, "min_cluster_size", c.cfg.MinClusterSize)
		return result, nil
	}

	metric, _ := metricByName(c.cfg.Metric)
	reducer := &Reducer{
		Components: c.cfg.Components,
		Neighbors:  c.cfg.Neighbors,
		MinDist:    c.cfg.MinDist,
		Epochs:     c.cfg.Epochs,
		Seed:       c.cfg.Seed,
		Metric:     metric,
	}
	unique, owner := collapseDuplicates(embeddings, c.cfg.DuplicateDistance)
	layout, err := reducer.Reduce(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("dimensionality reduction failed: %w", err)
	}
	reduced := make([][]float64, n)
	for i, o := range owner {
		reduced[i] = append([]float64(nil), layout[o]...)
	}

	labels, err := HDBSCAN(ctx, reduced, HDBSCANConfig{MinClusterSize: c.cfg.MinClusterSize, MinSamples: c.cfg.MinSamples})
	if err != nil {
		return nil, fmt.Errorf("density clustering failed: %w", err)
	}

	result.Labels = labels
	result.Reduced = reduced
	result.Sizes = ClusterSizes(labels)
	for _, l := range labels {
		if l == core.NoiseLabel {
			result.Noise++
		} else if l+1 > result.Clusters {
			result.Clusters = l + 1
		}
	}
	result.Silhouette = Silhouette(reduced, labels, EuclideanDistance)

	c.log.Info("Clustering complete",
		"articles", n,
		"unique", len(unique),
		"clusters", result.Clusters,
		"noise", result.Noise,
		"silhouette", result.Silhouette,
		"duration", time.Since(start))
	return result, nil
}

// ClusterSizes returns, per article, how many articles share its label.
// Noise articles are singletons and always get 1.
func ClusterSizes(labels []int) []int {
	counts := make(map[int]int)
	for _, l := range labels {
		if l != core.NoiseLabel {
			counts[l]++
		}
	}
	sizes := make([]int, len(labels))
	for i, l := range labels {
		if l == core.NoiseLabel {
			sizes[i] = 1
		} else {
			sizes[i] = counts[l]
		}
	}
	return sizes
}

// collapseDuplicates keeps one representative per group of near-identical
// vectors. Vectors are visited in order and each joins the first earlier
// representative within maxDistance, so groups never chain. owner[i] is the
// index into unique that stands for vectors[i].
func collapseDuplicates(vectors [][]float64, maxDistance float64) (unique [][]float64, owner []int) {
	owner = make([]int, len(vectors))
	for i, v := range vectors {
		owner[i] = -1
		for u, rep := range unique {
			if sameVector(v, rep) || (maxDistance > 0 && core.CosineDistance(v, rep) <= maxDistance) {
				owner[i] = u
				break
			}
		}
		if owner[i] < 0 {
			owner[i] = len(unique)
			unique = append(unique, v)
		}
	}
	return unique, owner
}

func sameVector(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func metricByName(name string) (DistanceFunc, error) {
	switch strings.ToLower(name) {
	case "", "euclidean":
		return EuclideanDistance, nil
	case "cosine":
		return core.CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown clustering metric %q", name)
	}
}
