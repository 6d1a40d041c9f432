package vectorstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"headlines/internal/core"
	"headlines/internal/logger"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// Embedder computes embeddings for documents submitted without one.
type Embedder interface {
	EmbedMany(ctx context.Context, texts []string) ([][]float64, error)
}

// Query selects the k documents nearest to a query text or embedding.
// When Embedding is empty the Text is embedded first.
type Query struct {
	Text      string
	Embedding []float64
	K         int
}

// CollectionInfo describes one collection of the index.
type CollectionInfo struct {
	Name      string `db:"name" json:"name"`
	Documents int    `db:"documents" json:"documents"`
}

// Store is a persistent, SQLite-backed vector index organised in named
// collections. Similarity is cosine distance.
type Store struct {
	db       *sqlx.DB
	path     string
	embedder Embedder
	timeout  time.Duration
	log      *slog.Logger
}

type documentRow struct {
	ID        string `db:"id"`
	Text      string `db:"text"`
	Embedding []byte `db:"embedding"`
	Dims      int    `db:"dims"`
	Metadata  string `db:"metadata"`
}

// Open opens (creating if needed) the index database at path.
// timeout bounds every index operation; zero disables it. A nil log
// discards output.
func Open(path string, embedder Embedder, timeout time.Duration, log *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	s := &Store{
		db:       db,
		path:     path,
		embedder: embedder,
		timeout:  timeout,
		log:      logger.OrDiscard(log).With("component", "vectorstore"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}

	return s, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	collectionsTable := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);`

	documentsTable := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		dims INTEGER NOT NULL,
		metadata TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (collection, id)
	);`

	for _, table := range []string{collectionsTable, documentsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Upsert inserts or replaces documents by id, creating the collection if
// needed. Documents without an embedding are embedded first. Either every
// document is stored or none is.
func (s *Store) Upsert(ctx context.Context, collection string, docs []core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	docs, err := s.prepare(ctx, collection, docs)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, "upsert", collection, func(tx *sqlx.Tx) error {
		return s.write(ctx, tx, collection, docs)
	})
}

// ReplaceCollection atomically swaps the whole content of a collection.
// Embeddings are computed before the swap; readers observe either the old
// or the new content.
func (s *Store) ReplaceCollection(ctx context.Context, collection string, docs []core.Document) error {
	docs, err := s.prepare(ctx, collection, docs)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, "replace", collection, func(tx *sqlx.Tx) error {
		query, args, err := sq.Delete("documents").Where(sq.Eq{"collection": collection}).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear collection: %w", err)
		}
		if len(docs) == 0 {
			return s.ensureCollection(ctx, tx, collection)
		}
		return s.write(ctx, tx, collection, docs)
	})
}

// DeleteCollection removes a collection and all of its documents.
// Deleting a missing collection is not an error.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, "delete", collection, func(tx *sqlx.Tx) error {
		for _, table := range []struct{ name, column string }{
			{"documents", "collection"},
			{"collections", "name"},
		} {
			query, args, err := sq.Delete(table.name).Where(sq.Eq{table.column: collection}).ToSql()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query returns up to q.K documents ordered by ascending cosine distance.
// A missing or empty collection yields no results.
func (s *Store) Query(ctx context.Context, collection string, q Query) ([]core.QueryResult, error) {
	if q.K <= 0 {
		return nil, nil
	}

	embedding := q.Embedding
	if len(embedding) == 0 {
		if s.embedder == nil {
			return nil, &core.IndexError{Op: "query", Collection: collection, Err: errors.New("no embedder configured for text queries")}
		}
		vectors, err := s.embedder.EmbedMany(ctx, []string{q.Text})
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, &core.ProviderError{Op: "embed", Err: fmt.Errorf("expected 1 embedding, got %d", len(vectors))}
		}
		embedding = vectors[0]
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args, err := sq.Select("id", "text", "embedding", "dims", "metadata").
		From("documents").
		Where(sq.Eq{"collection": collection}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, &core.IndexError{Op: "query", Collection: collection, Err: err}
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, &core.IndexError{Op: "query", Collection: collection, Err: err}
	}

	results := make([]core.QueryResult, 0, len(rows))
	for _, row := range rows {
		if row.Dims != len(embedding) {
			return nil, &core.IndexError{Op: "query", Collection: collection,
				Err: fmt.Errorf("query has %d dimensions, document %s has %d", len(embedding), row.ID, row.Dims)}
		}
		results = append(results, core.QueryResult{
			ID:       row.ID,
			Text:     row.Text,
			Metadata: []byte(row.Metadata),
			Distance: core.CosineDistance(embedding, decodeEmbedding(row.Embedding)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > q.K {
		results = results[:q.K]
	}

	return results, nil
}

// Get returns one document including its embedding.
func (s *Store) Get(ctx context.Context, collection, id string) (core.Document, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args, err := sq.Select("id", "text", "embedding", "dims", "metadata").
		From("documents").
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return core.Document{}, &core.IndexError{Op: "get", Collection: collection, Err: err}
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return core.Document{}, &core.IndexError{Op: "get", Collection: collection, Err: err}
	}
	if len(rows) == 0 {
		return core.Document{}, ErrNotFound
	}

	return core.Document{
		ID:        rows[0].ID,
		Text:      rows[0].Text,
		Embedding: decodeEmbedding(rows[0].Embedding),
		Metadata:  []byte(rows[0].Metadata),
	}, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args, err := sq.Select("COUNT(*)").From("documents").Where(sq.Eq{"collection": collection}).ToSql()
	if err != nil {
		return 0, &core.IndexError{Op: "count", Collection: collection, Err: err}
	}

	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, &core.IndexError{Op: "count", Collection: collection, Err: err}
	}
	return n, nil
}

// Collections lists every collection with its document count.
func (s *Store) Collections(ctx context.Context) ([]CollectionInfo, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query, args, err := sq.Select("c.name AS name", "COUNT(d.id) AS documents").
		From("collections c").
		LeftJoin("documents d ON d.collection = c.name").
		GroupBy("c.name").
		OrderBy("c.name").
		ToSql()
	if err != nil {
		return nil, &core.IndexError{Op: "collections", Err: err}
	}

	var infos []CollectionInfo
	if err := s.db.SelectContext(ctx, &infos, query, args...); err != nil {
		return nil, &core.IndexError{Op: "collections", Err: err}
	}
	return infos, nil
}

// prepare validates ids and fills in missing embeddings.
func (s *Store) prepare(ctx context.Context, collection string, docs []core.Document) ([]core.Document, error) {
	out := make([]core.Document, len(docs))
	copy(out, docs)
	if len(out) == 0 {
		return out, nil
	}

	seen := make(map[string]bool, len(out))
	var missing []int
	for i, doc := range out {
		if doc.ID == "" {
			return nil, &core.IndexError{Op: "upsert", Collection: collection, Err: fmt.Errorf("document %d has an empty id", i)}
		}
		if seen[doc.ID] {
			return nil, &core.IndexError{Op: "upsert", Collection: collection, Err: fmt.Errorf("duplicate id %q in batch", doc.ID)}
		}
		seen[doc.ID] = true
		if len(doc.Metadata) == 0 {
			out[i].Metadata = []byte("{}")
		}
		if len(doc.Embedding) == 0 {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 {
		if s.embedder == nil {
			return nil, &core.IndexError{Op: "upsert", Collection: collection, Err: errors.New("documents without embeddings and no embedder configured")}
		}
		texts := make([]string, len(missing))
		for j, i := range missing {
			texts[j] = out[i].Text
		}
		vectors, err := s.embedder.EmbedMany(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(texts) {
			return nil, &core.IndexError{Op: "upsert", Collection: collection,
				Err: fmt.Errorf("embedder returned %d embeddings for %d documents", len(vectors), len(texts))}
		}
		for j, i := range missing {
			out[i].Embedding = vectors[j]
		}
	}

	dims := len(out[0].Embedding)
	for _, doc := range out {
		if len(doc.Embedding) != dims {
			return nil, &core.IndexError{Op: "upsert", Collection: collection,
				Err: fmt.Errorf("document %s has %d dimensions, expected %d", doc.ID, len(doc.Embedding), dims)}
		}
	}

	return out, nil
}

// write stores prepared documents and verifies every one of them landed.
func (s *Store) write(ctx context.Context, tx *sqlx.Tx, collection string, docs []core.Document) error {
	if err := s.ensureCollection(ctx, tx, collection); err != nil {
		return err
	}

	// Existing documents must share the dimensionality of the new ones
	dimsQuery, dimsArgs, err := sq.Select("dims").From("documents").
		Where(sq.Eq{"collection": collection}).
		Where(sq.NotEq{"dims": len(docs[0].Embedding)}).
		Limit(1).
		ToSql()
	if err != nil {
		return err
	}
	var mismatched []int
	if err := tx.SelectContext(ctx, &mismatched, dimsQuery, dimsArgs...); err != nil {
		return err
	}
	if len(mismatched) > 0 {
		return fmt.Errorf("collection holds %d-dimensional embeddings, got %d", mismatched[0], len(docs[0].Embedding))
	}

	now := time.Now().UTC()
	var stored int64
	for _, doc := range docs {
		query, args, err := sq.Insert("documents").
			Columns("collection", "id", "text", "embedding", "dims", "metadata", "updated_at").
			Values(collection, doc.ID, doc.Text, encodeEmbedding(doc.Embedding), len(doc.Embedding), string(doc.Metadata), now).
			Suffix("ON CONFLICT(collection, id) DO UPDATE SET text = excluded.text, embedding = excluded.embedding, " +
				"dims = excluded.dims, metadata = excluded.metadata, updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to store document %s: %w", doc.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		stored += n
	}

	if stored != int64(len(docs)) {
		return fmt.Errorf("submitted %d documents, stored %d", len(docs), stored)
	}
	return nil
}

func (s *Store) ensureCollection(ctx context.Context, tx *sqlx.Tx, collection string) error {
	query, args, err := sq.Insert("collections").
		Options("OR IGNORE").
		Columns("name", "created_at").
		Values(collection, time.Now().UTC()).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) inTx(ctx context.Context, op, collection string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &core.IndexError{Op: op, Collection: collection, Err: err}
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("Rollback failed", "op", op, "collection", collection, "error", rbErr)
		}
		return &core.IndexError{Op: op, Collection: collection, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &core.IndexError{Op: op, Collection: collection, Err: err}
	}
	return nil
}

// encodeEmbedding stores float64 values little-endian so embeddings round-trip exactly.
func encodeEmbedding(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float64 {
	v := make([]float64, len(buf)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
	return v
}
