// Package rag answers questions about the current highlights by retrieving
// the closest highlight documents and handing them to the language model.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"headlines/internal/core"
	"headlines/internal/logger"
	"headlines/internal/vectorstore"
)

const promptTemplate = `You are a helpful assistant that answers questions about today's news headlines.
Use the following context to answer the question. If you don't know the answer, just say you don't know.
Don't refer to "Document 1" or similar in your answer; answer naturally using the information.

Context:
%s

Question: %s

Answer:`

// Generator produces an answer from a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Retriever returns the k highlight documents nearest to a question.
type Retriever interface {
	Query(ctx context.Context, q vectorstore.Query) ([]vectorstore.Hit[core.HighlightMetadata], error)
}

// Answerer runs retrieve → assemble → filter → generate for one question.
type Answerer struct {
	retriever  Retriever
	generator  Generator
	categories []string
	topK       int
	minSources int
	log        *slog.Logger
}

// NewAnswerer creates an Answerer. Categories are the names that may be
// detected in a question, in precedence order; topK and minSources fall
// back to 5 and 2. A nil log discards output.
func NewAnswerer(retriever Retriever, generator Generator, categories []string, topK, minSources int, log *slog.Logger) *Answerer {
	if topK <= 0 {
		topK = 5
	}
	if minSources <= 0 {
		minSources = 2
	}
	return &Answerer{
		retriever:  retriever,
		generator:  generator,
		categories: append([]string(nil), categories...),
		topK:       topK,
		minSources: minSources,
		log:        logger.OrDiscard(log).With("component", "answerer"),
	}
}

// Answer answers a question from the indexed highlights. Empty retrieval
// still reaches the model with an empty context. Retrieval and generation
// errors are returned unchanged.
func (a *Answerer) Answer(ctx context.Context, question string) (*core.Answer, error) {
	hits, err := a.retriever.Query(ctx, vectorstore.Query{Text: question, K: a.topK})
	if err != nil {
		return nil, err
	}

	var docs strings.Builder
	for _, h := range hits {
		docs.WriteString(h.Text)
		docs.WriteString("\n\n")
	}

	sources := dedupeSources(hits)
	if category := a.DetectCategory(question); category != "" {
		filtered := filterSources(sources, category)
		if len(filtered) >= a.minSources {
			sources = filtered
		}
	}

	answer, err := a.generator.Generate(ctx, BuildPrompt(docs.String(), question))
	if err != nil {
		return nil, err
	}

	a.log.Debug("Question answered", "retrieved", len(hits), "sources", len(sources))
	return &core.Answer{Answer: strings.TrimSpace(answer), Sources: sources}, nil
}

// BuildPrompt fills the answering prompt.
func BuildPrompt(docs, question string) string {
	return fmt.Sprintf(promptTemplate, docs, question)
}

// DetectCategory returns the first category, in precedence order, whose
// name appears in the lower-cased question, or "".
func (a *Answerer) DetectCategory(question string) string {
	q := strings.ToLower(question)
	for _, name := range a.categories {
		if strings.Contains(q, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func dedupeSources(hits []vectorstore.Hit[core.HighlightMetadata]) []core.Source {
	seen := make(map[core.Source]bool)
	sources := make([]core.Source, 0, len(hits))
	for i, h := range hits {
		src := core.Source{
			ID:       h.Metadata.SourceID,
			Title:    h.Metadata.Title,
			Category: h.Metadata.Category,
		}
		if src.ID == "" {
			src.ID = fmt.Sprintf("source-%d", i)
		}
		if src.Title == "" {
			src.Title = "Unknown"
		}
		if src.Category == "" {
			src.Category = "Unknown"
		}
		if seen[src] {
			continue
		}
		seen[src] = true
		sources = append(sources, src)
	}
	return sources
}

func filterSources(sources []core.Source, category string) []core.Source {
	var out []core.Source
	for _, s := range sources {
		if strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out
}
