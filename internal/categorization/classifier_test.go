package categorization

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"headlines/internal/core"
	"headlines/internal/llm/llmtest"
	"headlines/internal/retry"
	"headlines/internal/vectorstore"
)

var testCategories = map[string]string{
	"sports":   "sports football basketball match championship",
	"finance":  "finance markets stocks economy banks",
	"politics": "politics election government parliament vote",
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func newTestClassifier(t *testing.T, embedder Embedder) (*Classifier, *vectorstore.Store) {
	t.Helper()
	store, err := vectorstore.Open(filepath.Join(t.TempDir(), "headlines.db"), nil, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewClassifier(embedder, store, Prototypes(testCategories), fastPolicy(), nil), store
}

func TestPrototypesAreSorted(t *testing.T) {
	protos := Prototypes(testCategories)
	want := []string{"finance", "politics", "sports"}
	if len(protos) != len(want) {
		t.Fatalf("expected %d prototypes, got %d", len(want), len(protos))
	}
	for i := range want {
		if protos[i].Name != want[i] || protos[i].Description != testCategories[want[i]] {
			t.Errorf("prototype %d: expected %s, got %+v", i, want[i], protos[i])
		}
	}
}

func TestInitPrototypesReplacesCollection(t *testing.T) {
	ctx := context.Background()
	classifier, store := newTestClassifier(t, &llmtest.HashEmbedder{})

	// A stale prototype from an older taxonomy must disappear
	stale := core.Document{ID: "weather", Text: "rain", Embedding: make([]float64, 256), Metadata: []byte(`{"category":"weather"}`)}
	stale.Embedding[0] = 1
	if err := store.Upsert(ctx, core.CollectionCategories, []core.Document{stale}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := classifier.InitPrototypes(ctx); err != nil {
			t.Fatalf("InitPrototypes #%d failed: %v", i+1, err)
		}
	}

	n, err := store.Count(ctx, core.CollectionCategories)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != len(testCategories) {
		t.Errorf("expected %d prototypes, got %d", len(testCategories), n)
	}
	if _, err := store.Get(ctx, core.CollectionCategories, "weather"); !errors.Is(err, vectorstore.ErrNotFound) {
		t.Errorf("expected stale prototype to be removed, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	classifier, _ := newTestClassifier(t, &llmtest.HashEmbedder{})
	if err := classifier.InitPrototypes(ctx); err != nil {
		t.Fatalf("InitPrototypes failed: %v", err)
	}

	tests := []struct {
		text string
		want string
	}{
		{"Championship football match tonight", "sports"},
		{"Stocks and banks rally as markets recover", "finance"},
		{"Parliament vote on election reform", "politics"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := classifier.Classify(ctx, tt.text)
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if got.Category != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.text, got.Category, tt.want)
			}
			if got.Distance < 0 || got.Distance > 2 {
				t.Errorf("distance out of range: %f", got.Distance)
			}
		})
	}
}

func TestClassifyManyKeepsOrder(t *testing.T) {
	ctx := context.Background()
	embedder := &llmtest.HashEmbedder{}
	classifier, _ := newTestClassifier(t, embedder)
	if err := classifier.InitPrototypes(ctx); err != nil {
		t.Fatalf("InitPrototypes failed: %v", err)
	}

	texts := []string{"markets and stocks", "football match", "government vote", "banks economy"}
	predictions, vectors, err := classifier.ClassifyMany(ctx, texts)
	if err != nil {
		t.Fatalf("ClassifyMany failed: %v", err)
	}
	if len(predictions) != len(texts) || len(vectors) != len(texts) {
		t.Fatalf("expected %d predictions and vectors, got %d and %d", len(texts), len(predictions), len(vectors))
	}

	want := []string{"finance", "sports", "politics", "finance"}
	for i, p := range predictions {
		if p.Category != want[i] {
			t.Errorf("prediction %d: expected %s, got %s", i, want[i], p.Category)
		}
	}

	// One batch call for prototypes, one for the texts
	single, many := embedder.Calls()
	if single != 0 || many != 2 {
		t.Errorf("expected 0 single and 2 batch calls, got %d and %d", single, many)
	}
}

func TestClassifyRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	flaky := &llmtest.FlakyEmbedder{Embedder: &llmtest.HashEmbedder{}}
	classifier, _ := newTestClassifier(t, flaky)
	if err := classifier.InitPrototypes(ctx); err != nil {
		t.Fatalf("InitPrototypes failed: %v", err)
	}

	flaky.Failures = flaky.Attempts() + 2
	got, err := classifier.Classify(ctx, "football championship")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got.Category != "sports" {
		t.Errorf("expected sports, got %s", got.Category)
	}

	flaky.Failures = flaky.Attempts() + 5
	if _, err := classifier.Classify(ctx, "football"); !errors.Is(err, llmtest.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable after exhausting retries, got %v", err)
	}
}

func TestClassifyWithoutPrototypes(t *testing.T) {
	classifier, _ := newTestClassifier(t, &llmtest.HashEmbedder{})

	_, err := classifier.Classify(context.Background(), "anything")
	var indexErr *core.IndexError
	if !errors.As(err, &indexErr) {
		t.Fatalf("expected IndexError, got %v", err)
	}
}

func TestClassifyUnknownCategory(t *testing.T) {
	ctx := context.Background()
	classifier, store := newTestClassifier(t, &llmtest.HashEmbedder{})

	v := make([]float64, 256)
	v[3] = 1
	doc := core.Document{ID: "weather", Text: "rain", Embedding: v, Metadata: []byte(`{"category":"weather"}`)}
	if err := store.Upsert(ctx, core.CollectionCategories, []core.Document{doc}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if _, err := classifier.ClassifyEmbedding(ctx, v); !errors.Is(err, core.ErrCategoryUnknown) {
		t.Errorf("expected ErrCategoryUnknown, got %v", err)
	}
}
