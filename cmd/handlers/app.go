package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"headlines/internal/config"
	"headlines/internal/core"
	"headlines/internal/llm"
	"headlines/internal/logger"
	"headlines/internal/pipeline"
	"headlines/internal/rag"
	"headlines/internal/vectorstore"
)

// app bundles the components shared by the commands that talk to the
// provider and the article index.
type app struct {
	cfg      *config.Config
	client   *llm.Client
	store    *vectorstore.Store
	pipeline *pipeline.Pipeline
	answerer *rag.Answerer
	log      *slog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	cfg := appConfig
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	log := logger.OrDiscard(appLogger)

	client, err := llm.NewClient(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	store, err := vectorstore.Open(cfg.Index.Path, client, cfg.Index.Timeout, log)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.NewBuilder(cfg).
		WithEmbedder(client).
		WithStore(store).
		WithLogger(log).
		Build()
	if err != nil {
		store.Close()
		return nil, err
	}

	answerer := rag.NewAnswerer(
		vectorstore.NewCollection[core.HighlightMetadata](store, core.CollectionHighlights),
		client,
		cfg.CategoryNames(),
		cfg.RAG.TopK,
		cfg.RAG.MinCategorySources,
		log,
	)

	return &app{
		cfg:      cfg,
		client:   client,
		store:    store,
		pipeline: p,
		answerer: answerer,
		log:      log,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
