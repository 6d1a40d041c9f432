package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"headlines/internal/config"
	"headlines/internal/core"
	"headlines/internal/dataset"
	"headlines/internal/llm/llmtest"
	"headlines/internal/vectorstore"
)

type fixture struct {
	cfg      *config.Config
	store    *vectorstore.Store
	embedder *llmtest.HashEmbedder
	pipeline *Pipeline
	dir      string
}

var topicWeights = map[string]float64{
	"sports":   5,
	"finance":  5,
	"politics": 5,
	"music":    5,
}

func newFixture(t *testing.T, embedder EmbeddingProvider) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Taxonomy.Categories = map[string]string{
		"sports":   "sports matches teams",
		"finance":  "finance markets stocks",
		"politics": "politics elections government",
		"music":    "music albums concerts",
	}
	cfg.Taxonomy.PriorityKeywords = map[string][]string{
		"sports":   {"championship"},
		"finance":  {"rate hike"},
		"politics": {"election"},
		"music":    {"new album"},
	}
	cfg.Clustering.MinClusterSize = 3
	cfg.Clustering.MinSamples = 3
	cfg.Clustering.UMAPNeighbors = 6
	cfg.Clustering.UMAPEpochs = 50
	cfg.Retry = config.Retry{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
	cfg.Data = config.Data{
		NewsCSV:       filepath.Join(dir, "news.csv"),
		ClassifiedCSV: filepath.Join(dir, "out", "classified.csv"),
		HighlightsCSV: filepath.Join(dir, "out", "highlights.csv"),
	}

	hash := &llmtest.HashEmbedder{Weights: topicWeights}
	if embedder == nil {
		embedder = hash
	}

	store, err := vectorstore.Open(filepath.Join(dir, "index", "headlines.db"), hash, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	p, err := NewBuilder(cfg).WithEmbedder(embedder).WithStore(store).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return &fixture{cfg: cfg, store: store, embedder: hash, pipeline: p, dir: dir}
}

type row struct {
	id, title, summary, topic string
}

// newsRows returns 20 articles: a priority sports story reported three
// times, a non-priority sports story reported four times, and groups of
// near-identical finance, politics and music stories.
func newsRows() []row {
	var rows []row
	add := func(n int, topic, title, summary string) {
		for i := 0; i < n; i++ {
			rows = append(rows, row{
				id:      fmt.Sprintf("a%02d", len(rows)),
				title:   title,
				summary: summary,
				topic:   topic,
			})
		}
	}
	add(3, "sports", "Championship victory for city club", "sports fans celebrate the championship victory downtown")
	add(4, "sports", "Stadium renovation approved", "sports stadium renovation plan approved by council")
	add(5, "finance", "Markets rally on earnings", "finance markets rally as quarterly earnings beat forecasts")
	add(4, "politics", "Parliament debates budget", "politics parliament debates the annual budget bill")
	add(4, "music", "Orchestra tours abroad", "music orchestra announces a tour abroad this spring")
	return rows
}

func writeNews(t *testing.T, path string, rows []row) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create news CSV: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	_ = w.Write([]string{"id", "Title", "news_summary", "source"})
	for _, r := range rows {
		_ = w.Write([]string{r.id, r.title, r.summary, "wire"})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("failed to write news CSV: %v", err)
	}
}

func TestProcessEndToEnd(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	rows := newsRows()
	writeNews(t, fx.cfg.Data.NewsCSV, rows)

	result, err := fx.pipeline.Process(ctx, Options{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if result.RunID == "" {
		t.Error("expected a run id")
	}
	if len(result.Articles) != len(rows) || len(result.Embeddings) != len(rows) {
		t.Fatalf("expected %d articles and embeddings, got %d and %d", len(rows), len(result.Articles), len(result.Embeddings))
	}

	// Classification
	for i, a := range result.Articles {
		if a.PredictedCategory != rows[i].topic {
			t.Errorf("article %s: expected %s, got %s", a.ID, rows[i].topic, a.PredictedCategory)
		}
		if a.Extra["source"] != "wire" {
			t.Errorf("article %s: extra column lost", a.ID)
		}
	}
	if result.CategoryCounts["sports"] != 7 || result.CategoryCounts["finance"] != 5 {
		t.Errorf("unexpected category counts: %v", result.CategoryCounts)
	}

	// Cluster sizes and scores are consistent with the labels
	labelCounts := make(map[int]int)
	for _, a := range result.Articles {
		labelCounts[a.Cluster]++
	}
	for _, a := range result.Articles {
		want := labelCounts[a.Cluster]
		if a.Cluster == core.NoiseLabel {
			want = 1
		}
		if a.ClusterSize != want {
			t.Errorf("article %s: cluster %d expected size %d, got %d", a.ID, a.Cluster, want, a.ClusterSize)
		}
		priority := 0
		if a.IsPriority {
			priority = 1000
		}
		if a.HighlightScore != priority+a.ClusterSize {
			t.Errorf("article %s: inconsistent score %d", a.ID, a.HighlightScore)
		}
	}

	// Every story is reported under one shared label, and the triple
	// championship report becomes the top sports highlight
	groupSizes := []int{3, 4, 5, 4, 4}
	start := 0
	for g, size := range groupSizes {
		label := result.Articles[start].Cluster
		if label == core.NoiseLabel {
			t.Errorf("story %d: expected a cluster, got noise", g)
		}
		for i := start; i < start+size; i++ {
			a := result.Articles[i]
			if a.Cluster != label || a.ClusterSize != size {
				t.Errorf("article %s: expected cluster %d of size %d, got %d of size %d", a.ID, label, size, a.Cluster, a.ClusterSize)
			}
		}
		start += size
	}
	for _, a := range result.Articles[:3] {
		if a.PredictedCategory != "sports" || !a.IsPriority || a.HighlightScore != fx.cfg.Highlights.PriorityWeight+3 {
			t.Errorf("article %s: expected a priority sports story scored %d, got %+v", a.ID, fx.cfg.Highlights.PriorityWeight+3, a)
		}
	}
	if result.Stats.Clusters != len(groupSizes) || result.Stats.Noise != 0 {
		t.Errorf("expected %d clusters and no noise, got %d and %d", len(groupSizes), result.Stats.Clusters, result.Stats.Noise)
	}

	// Highlights: at most 5 per category, categories ascending, priority first
	byCategory := make(map[string][]core.Article)
	var order []string
	for _, h := range result.Highlights {
		if len(byCategory[h.PredictedCategory]) == 0 {
			order = append(order, h.PredictedCategory)
		}
		byCategory[h.PredictedCategory] = append(byCategory[h.PredictedCategory], h)
	}
	wantOrder := []string{"finance", "music", "politics", "sports"}
	if fmt.Sprint(order) != fmt.Sprint(wantOrder) {
		t.Errorf("expected category order %v, got %v", wantOrder, order)
	}
	for cat, list := range byCategory {
		if len(list) > 5 {
			t.Errorf("category %s has %d highlights", cat, len(list))
		}
	}
	sports := byCategory["sports"]
	if len(sports) != 5 {
		t.Fatalf("expected 5 sports highlights, got %d", len(sports))
	}
	for i := 0; i < 3; i++ {
		if !sports[i].IsPriority || sports[i].ID != rows[i].id {
			t.Errorf("sports highlight %d: expected priority article %s, got %+v", i, rows[i].id, sports[i])
		}
	}
	if sports[3].IsPriority || sports[4].IsPriority {
		t.Error("expected only the championship story to be priority")
	}

	// Index
	counts := map[string]int{
		core.CollectionCategories: 4,
		core.CollectionArticles:   20,
		core.CollectionHighlights: len(result.Highlights),
	}
	for collection, want := range counts {
		n, err := fx.store.Count(ctx, collection)
		if err != nil {
			t.Fatalf("Count(%s) failed: %v", collection, err)
		}
		if n != want {
			t.Errorf("collection %s: expected %d documents, got %d", collection, want, n)
		}
	}

	// Output files
	processed, err := dataset.LoadProcessed(fx.cfg.Data.ClassifiedCSV)
	if err != nil {
		t.Fatalf("LoadProcessed failed: %v", err)
	}
	if len(processed.Articles) != 20 {
		t.Errorf("expected 20 processed rows, got %d", len(processed.Articles))
	}
	written, err := dataset.LoadProcessed(fx.cfg.Data.HighlightsCSV)
	if err != nil {
		t.Fatalf("LoadProcessed failed: %v", err)
	}
	if len(written.Articles) != len(result.Highlights) || written.Articles[0].ID != result.Highlights[0].ID {
		t.Errorf("highlights CSV does not match the slate")
	}
}

func TestProcessIsDeterministicAndIdempotent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	writeNews(t, fx.cfg.Data.NewsCSV, newsRows())

	first, err := fx.pipeline.Process(ctx, Options{})
	if err != nil {
		t.Fatalf("first Process failed: %v", err)
	}
	second, err := fx.pipeline.Process(ctx, Options{})
	if err != nil {
		t.Fatalf("second Process failed: %v", err)
	}

	for i := range first.Articles {
		if first.Articles[i].Cluster != second.Articles[i].Cluster {
			t.Fatalf("cluster labels differ between runs at %d", i)
		}
	}
	if first.RunID == second.RunID {
		t.Error("expected a new run id per run")
	}

	n, err := fx.store.Count(ctx, core.CollectionArticles)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 20 {
		t.Errorf("expected re-processing to keep 20 articles, got %d", n)
	}
}

func TestProcessOptionsOverridePaths(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	news := filepath.Join(fx.dir, "other.csv")
	writeNews(t, news, newsRows())
	out := filepath.Join(fx.dir, "custom", "top.csv")

	if _, err := fx.pipeline.Process(ctx, Options{NewsCSV: news, HighlightsCSV: out}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("expected highlights at the overridden path: %v", err)
	}
}

func TestProcessInvalidInputWritesNothing(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	if err := os.WriteFile(fx.cfg.Data.NewsCSV, []byte("headline,news_summary\nA,B\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := fx.pipeline.Process(ctx, Options{})
	var inputErr *core.InputDataError
	if !errors.As(err, &inputErr) {
		t.Fatalf("expected InputDataError, got %v", err)
	}

	if _, err := os.Stat(fx.cfg.Data.HighlightsCSV); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected no highlights file after a failed run")
	}
}

func TestProcessProviderFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	flaky := &llmtest.FlakyEmbedder{Embedder: &llmtest.HashEmbedder{Weights: topicWeights}, Failures: 100}
	fx := newFixture(t, flaky)
	writeNews(t, fx.cfg.Data.NewsCSV, newsRows())

	_, err := fx.pipeline.Process(ctx, Options{})
	if !errors.Is(err, llmtest.ErrUnavailable) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if flaky.Attempts() != fx.cfg.Retry.MaxAttempts {
		t.Errorf("expected %d attempts, got %d", fx.cfg.Retry.MaxAttempts, flaky.Attempts())
	}

	n, err := fx.store.Count(ctx, core.CollectionArticles)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no indexed articles, got %d", n)
	}
	if _, err := os.Stat(fx.cfg.Data.ClassifiedCSV); !errors.Is(err, os.ErrNotExist) {
		t.Error("expected no processed file after a failed run")
	}
}

func TestProcessFailedWriteLeavesIndexUntouched(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	writeNews(t, fx.cfg.Data.NewsCSV, newsRows())

	// A regular file where the output directory should be
	blocker := filepath.Join(fx.dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := fx.pipeline.Process(ctx, Options{HighlightsCSV: filepath.Join(blocker, "highlights.csv")})
	if err == nil {
		t.Fatal("expected the highlights write to fail")
	}

	for _, collection := range []string{core.CollectionArticles, core.CollectionHighlights} {
		n, err := fx.store.Count(ctx, collection)
		if err != nil {
			t.Fatalf("Count(%s) failed: %v", collection, err)
		}
		if n != 0 {
			t.Errorf("collection %s: expected no documents after a failed write, got %d", collection, n)
		}
	}
}

func TestIndexHighlights(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, nil)
	writeNews(t, fx.cfg.Data.NewsCSV, newsRows())

	result, err := fx.pipeline.Process(ctx, Options{})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	// Drop the collection, then rebuild it from the CSV
	if err := fx.store.DeleteCollection(ctx, core.CollectionHighlights); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	n, err := fx.pipeline.IndexHighlights(ctx, "")
	if err != nil {
		t.Fatalf("IndexHighlights failed: %v", err)
	}
	if n != len(result.Highlights) {
		t.Errorf("expected %d highlights indexed, got %d", len(result.Highlights), n)
	}

	doc, err := fx.store.Get(ctx, core.CollectionHighlights, result.Highlights[0].ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if doc.Text != core.HighlightText(result.Highlights[0]) {
		t.Errorf("unexpected highlight text %q", doc.Text)
	}

	// A missing file empties the collection
	n, err = fx.pipeline.IndexHighlights(ctx, filepath.Join(fx.dir, "missing.csv"))
	if err != nil {
		t.Fatalf("IndexHighlights failed: %v", err)
	}
	count, err := fx.store.Count(ctx, core.CollectionHighlights)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 0 || count != 0 {
		t.Errorf("expected empty highlights index, got n=%d count=%d", n, count)
	}
}

func TestBuilderRequiresDependencies(t *testing.T) {
	if _, err := NewBuilder(nil).Build(); err == nil {
		t.Error("expected error without configuration")
	}
	if _, err := NewBuilder(config.Default()).Build(); err == nil {
		t.Error("expected error without embedder")
	}
	if _, err := NewBuilder(config.Default()).WithEmbedder(&llmtest.HashEmbedder{}).Build(); err == nil {
		t.Error("expected error without store")
	}
}
