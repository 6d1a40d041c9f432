package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"headlines/internal/core"
)

// Record is a document of a collection whose metadata has type M.
type Record[M any] struct {
	ID        string
	Text      string
	Embedding []float64 // Optional; computed by the store's embedder when empty
	Metadata  M
}

// Hit is a query result with decoded metadata.
type Hit[M any] struct {
	ID       string
	Text     string
	Metadata M
	Distance float64
}

// Collection is a typed view over one collection of a Store.
type Collection[M any] struct {
	store *Store
	name  string
}

// NewCollection returns a typed view of the named collection.
func NewCollection[M any](store *Store, name string) *Collection[M] {
	return &Collection[M]{store: store, name: name}
}

// Name returns the collection name.
func (c *Collection[M]) Name() string { return c.name }

// Upsert inserts or replaces records by id.
func (c *Collection[M]) Upsert(ctx context.Context, records []Record[M]) error {
	docs, err := c.documents(records)
	if err != nil {
		return err
	}
	return c.store.Upsert(ctx, c.name, docs)
}

// Replace atomically swaps the collection content for records.
func (c *Collection[M]) Replace(ctx context.Context, records []Record[M]) error {
	docs, err := c.documents(records)
	if err != nil {
		return err
	}
	return c.store.ReplaceCollection(ctx, c.name, docs)
}

// Query returns the k nearest records.
func (c *Collection[M]) Query(ctx context.Context, q Query) ([]Hit[M], error) {
	results, err := c.store.Query(ctx, c.name, q)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit[M], len(results))
	for i, r := range results {
		hits[i] = Hit[M]{ID: r.ID, Text: r.Text, Distance: r.Distance}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &hits[i].Metadata); err != nil {
				return nil, &core.IndexError{Op: "query", Collection: c.name, Err: fmt.Errorf("decode metadata of %s: %w", r.ID, err)}
			}
		}
	}
	return hits, nil
}

// Count returns the number of records in the collection.
func (c *Collection[M]) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx, c.name)
}

func (c *Collection[M]) documents(records []Record[M]) ([]core.Document, error) {
	docs := make([]core.Document, len(records))
	for i, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return nil, &core.IndexError{Op: "upsert", Collection: c.name, Err: fmt.Errorf("encode metadata of %s: %w", r.ID, err)}
		}
		docs[i] = core.Document{ID: r.ID, Text: r.Text, Embedding: r.Embedding, Metadata: meta}
	}
	return docs, nil
}
