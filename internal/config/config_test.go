package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.yaml", "app:\n  debug: false\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Clustering.UMAPComponents != 5 || cfg.Clustering.MinClusterSize != 15 || cfg.Clustering.RandomSeed != 42 {
		t.Errorf("unexpected clustering defaults: %+v", cfg.Clustering)
	}
	if cfg.Clustering.MinSamples != 15 {
		t.Errorf("MinSamples should default to MinClusterSize, got %d", cfg.Clustering.MinSamples)
	}
	if cfg.Clustering.DuplicateDistance != 0.02 {
		t.Errorf("unexpected duplicate distance default: %v", cfg.Clustering.DuplicateDistance)
	}
	if cfg.Highlights.PerCategory != 5 || cfg.Highlights.PriorityWeight != 1000 {
		t.Errorf("unexpected highlight defaults: %+v", cfg.Highlights)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialInterval != 2*time.Second || cfg.Retry.MaxInterval != 10*time.Second {
		t.Errorf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.AI.Gemini.Timeout != 30*time.Second {
		t.Errorf("expected 30s gemini timeout, got %s", cfg.AI.Gemini.Timeout)
	}
	if len(cfg.Taxonomy.Categories) != 5 {
		t.Errorf("expected 5 default categories, got %d", len(cfg.Taxonomy.Categories))
	}
	if got := cfg.CategoryNames(); strings.Join(got, ",") != "sports,finance,politics,lifestyle,music" {
		t.Errorf("CategoryNames() = %v", got)
	}
	if cfg.App.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.App.ConfigFile, path)
	}
}

func TestLoadOverridesFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cfg.yaml", `
clustering:
  min_cluster_size: 4
  min_samples: 2
highlights:
  per_category: 3
taxonomy:
  categories:
    tech: Technology companies, gadgets and software
  priority_keywords:
    tech: [launch, outage]
`)
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Clustering.MinClusterSize != 4 || cfg.Clustering.MinSamples != 2 {
		t.Errorf("clustering override not applied: %+v", cfg.Clustering)
	}
	if cfg.Highlights.PerCategory != 3 {
		t.Errorf("PerCategory = %d, want 3", cfg.Highlights.PerCategory)
	}
	if cfg.AI.Gemini.APIKey != "test-key" {
		t.Errorf("APIKey = %q", cfg.AI.Gemini.APIKey)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if _, ok := cfg.Taxonomy.Categories["tech"]; !ok {
		t.Errorf("expected tech category, got %v", cfg.Taxonomy.Categories)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("RequireAPIKey() error = %v", err)
	}
}

func TestLoadTaxonomyFile(t *testing.T) {
	dir := t.TempDir()
	taxonomy := writeFile(t, dir, "taxonomy.yaml", `
categories:
  Science: Research, space and discoveries
  Arts: Galleries, theatre and film
priority_keywords:
  Science: [breakthrough]
`)
	path := writeFile(t, dir, "cfg.yaml", "taxonomy:\n  file: "+taxonomy+"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Taxonomy.Categories) != 2 || cfg.Taxonomy.Categories["science"] == "" {
		t.Errorf("expected the taxonomy file to replace the category set, got %v", cfg.Taxonomy.Categories)
	}
	if got := cfg.Taxonomy.PriorityKeywords["science"]; len(got) != 1 || got[0] != "breakthrough" {
		t.Errorf("unexpected keywords %v", got)
	}
	if got := cfg.CategoryNames(); strings.Join(got, ",") != "science,arts" {
		t.Errorf("expected categories in file order, got %v", got)
	}
}

func TestCategoryNamesOrder(t *testing.T) {
	categories := map[string]string{"sports": "s", "finance": "f", "music": "m", "tech": "t"}
	tests := []struct {
		name  string
		order []string
		want  string
	}{
		{"no order sorts by name", nil, "finance,music,sports,tech"},
		{"order first, rest sorted", []string{"sports", "finance"}, "sports,finance,music,tech"},
		{"unknown and repeated names skipped", []string{"music", "weather", "music"}, "music,finance,sports,tech"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Taxonomy: Taxonomy{Categories: categories, Order: tt.order}}
			if got := strings.Join(cfg.CategoryNames(), ","); got != tt.want {
				t.Errorf("CategoryNames() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"keywords for unknown category", func(c *Config) {
			c.Taxonomy.PriorityKeywords["weather"] = []string{"storm"}
		}, `unknown category "weather"`},
		{"order names unknown category", func(c *Config) {
			c.Taxonomy.Order = append(c.Taxonomy.Order, "weather")
		}, "taxonomy.order"},
		{"zero weight", func(c *Config) { c.Highlights.PriorityWeight = 0 }, "priority_weight"},
		{"tiny clusters", func(c *Config) { c.Clustering.MinClusterSize = 1 }, "min_cluster_size"},
		{"bad metric", func(c *Config) { c.Clustering.Metric = "manhattan" }, "clustering metric"},
		{"duplicate distance too large", func(c *Config) { c.Clustering.DuplicateDistance = 1 }, "duplicate_distance"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging format"},
		{"negative timeout", func(c *Config) { c.Index.Timeout = -time.Second }, "index.timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Default()
	cfg.AI.Gemini.APIKey = ""
	if err := cfg.RequireAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("RequireAPIKey() = %v, want ErrMissingAPIKey", err)
	}
}
