package core

import (
	"encoding/json"
	"strings"
)

// NoiseLabel is the cluster label assigned to articles that belong to no dense group.
const NoiseLabel = -1

// Collection names used in the article index.
const (
	CollectionCategories = "news_categories" // One prototype document per category
	CollectionArticles   = "news_articles"   // Every processed article
	CollectionHighlights = "highlights"      // Current daily highlights, replaced atomically
)

// Article represents one row of the daily news dataset together with the
// attributes derived by the processing pipeline.
type Article struct {
	ID      string `json:"id"`           // Unique within a dataset; row ordinal when the input has no id column
	Title   string `json:"Title"`        // Headline
	Summary string `json:"news_summary"` // Short summary, "" when absent or scrubbed
	Text    string `json:"text"`         // Combined text that is embedded

	// Derived attributes, added in this order by the pipeline
	PredictedCategory string  `json:"predicted_category"` // Nearest category prototype
	Similarity        float64 `json:"similarity"`         // Cosine distance to that prototype (lower = closer)
	Cluster           int     `json:"cluster"`            // Duplicate-cluster label, NoiseLabel for noise
	ClusterSize       int     `json:"cluster_size"`       // Articles sharing the label, 1 for noise
	TitleLC           string  `json:"title_lc"`           // Lowercased title used for keyword matching
	IsPriority        bool    `json:"is_priority"`        // Title matched a priority keyword of its category
	HighlightScore    int     `json:"highlight_score"`    // priority_weight*IsPriority + ClusterSize

	// Extra holds input columns the pipeline does not interpret; they are written back out unchanged.
	Extra map[string]string `json:"-"`
}

// CombinedText builds the text that is embedded for an article.
// A summary equal to the literal "nil" is treated as empty.
func CombinedText(title, summary string, hasSummary bool) string {
	if !hasSummary {
		return title
	}
	return title + " \n\n " + ScrubSummary(summary)
}

// ScrubSummary replaces the "nil" sentinel some feeds emit with an empty summary.
func ScrubSummary(summary string) string {
	if strings.TrimSpace(summary) == "nil" {
		return ""
	}
	return summary
}

// HighlightText is the document text stored for a highlight in the index.
func HighlightText(a Article) string {
	return a.Title + ". " + a.Text
}

// CategoryPrototype is a named category with a natural-language description
// whose embedding acts as the category centroid.
type CategoryPrototype struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// PrototypeMetadata is stored with each document of the categories collection.
type PrototypeMetadata struct {
	Category string `json:"category"`
}

// ArticleMetadata is stored with each document of the articles collection.
type ArticleMetadata struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Cluster  int    `json:"cluster"`
}

// HighlightMetadata is stored with each document of the highlights collection.
type HighlightMetadata struct {
	SourceID   string `json:"source_id"`
	Title      string `json:"title"`
	Category   string `json:"category"`
	IsPriority bool   `json:"is_priority"`
}

// Document is one entry of an index collection. Metadata is the JSON
// encoding of the collection's metadata record.
type Document struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Embedding []float64       `json:"embedding,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
}

// QueryResult is a document returned by a similarity query.
type QueryResult struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata"`
	Distance float64         `json:"distance"` // Cosine distance to the query (lower = more similar)
}

// Source identifies a highlight used to answer a question.
type Source struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// Answer is the result of answering a question over the highlights.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}
