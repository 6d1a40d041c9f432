package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        App        `mapstructure:"app"`
	AI         AI         `mapstructure:"ai"`
	Retry      Retry      `mapstructure:"retry"`
	Index      Index      `mapstructure:"index"`
	Data       Data       `mapstructure:"data"`
	Taxonomy   Taxonomy   `mapstructure:"taxonomy"`
	Clustering Clustering `mapstructure:"clustering"`
	Highlights Highlights `mapstructure:"highlights"`
	RAG        RAG        `mapstructure:"rag"`
	Server     Server     `mapstructure:"server"`
	Logging    Logging    `mapstructure:"logging"`
}

// App holds general application configuration
type App struct {
	Debug      bool   `mapstructure:"debug"`
	ConfigFile string `mapstructure:"config_file"`
}

// AI holds embedding and generation provider configuration
type AI struct {
	Gemini               GeminiConfig `mapstructure:"gemini"`
	EmbeddingBatchSize   int          `mapstructure:"embedding_batch_size"`
	EmbeddingConcurrency int          `mapstructure:"embedding_concurrency"`
}

// GeminiConfig holds Google Gemini configuration
type GeminiConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	EmbeddingModel      string        `mapstructure:"embedding_model"`
	EmbeddingDimensions int32         `mapstructure:"embedding_dimensions"`
	Temperature         float32       `mapstructure:"temperature"`
	MaxTokens           int32         `mapstructure:"max_tokens"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

// Retry configures the retry policy used around provider and index calls
type Retry struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// Index holds the article index (SQLite) configuration
type Index struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Data holds dataset file locations
type Data struct {
	NewsCSV       string `mapstructure:"news_csv"`
	ClassifiedCSV string `mapstructure:"classified_csv"`
	HighlightsCSV string `mapstructure:"highlights_csv"`
}

// Taxonomy holds the category set and the priority keywords per category
type Taxonomy struct {
	Categories       map[string]string   `mapstructure:"categories" yaml:"categories"`
	PriorityKeywords map[string][]string `mapstructure:"priority_keywords" yaml:"priority_keywords"`
	Order            []string            `mapstructure:"order" yaml:"order"` // Category precedence, e.g. when a question names two
	File             string              `mapstructure:"file" yaml:"-"`
}

// Clustering holds dimensionality reduction and density clustering parameters
type Clustering struct {
	UMAPComponents int     `mapstructure:"umap_components"`
	UMAPNeighbors  int     `mapstructure:"umap_neighbors"`
	UMAPMinDist    float64 `mapstructure:"umap_min_dist"`
	UMAPEpochs     int     `mapstructure:"umap_epochs"`
	RandomSeed     int64   `mapstructure:"random_seed"`
	MinClusterSize int     `mapstructure:"min_cluster_size"`
	MinSamples     int     `mapstructure:"min_samples"`
	Metric         string  `mapstructure:"metric"`

	// Articles whose embeddings are within this cosine distance of an earlier
	// article share its reduced coordinates; 0 merges exact copies only
	DuplicateDistance float64 `mapstructure:"duplicate_distance"`
}

// Highlights holds highlight ranking configuration
type Highlights struct {
	PerCategory    int `mapstructure:"per_category"`
	PriorityWeight int `mapstructure:"priority_weight"`
}

// RAG holds question answering configuration
type RAG struct {
	TopK               int `mapstructure:"top_k"`
	MinCategorySources int `mapstructure:"min_category_sources"`
}

// Server holds HTTP server configuration
type Server struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ErrMissingAPIKey is returned by RequireAPIKey when no Gemini key is configured
var ErrMissingAPIKey = errors.New("Gemini API key is required. Set GEMINI_API_KEY environment variable or ai.gemini.api_key in config file")

// Load loads the configuration from the config file, .env and the environment.
// An empty configFile searches for .headlines.yaml in the working directory and $HOME.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Error loading .env file: %v\n", err)
		}
	}

	v := viper.New()

	// Configure viper
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		v.SetConfigName(".headlines")
		v.SetConfigType("yaml")
	}

	setDefaults(v)
	bindEnvironmentVariables(v)

	v.SetEnvPrefix("HEADLINES")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.App.ConfigFile = v.ConfigFileUsed()

	if err := postProcessConfig(config); err != nil {
		return nil, fmt.Errorf("error post-processing config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Default returns the configuration used when no file or environment overrides are present
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	config := &Config{}
	_ = v.Unmarshal(config)
	_ = postProcessConfig(config)
	return config
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.debug", false)

	// AI defaults
	v.SetDefault("ai.gemini.model", "gemini-2.0-flash")
	v.SetDefault("ai.gemini.embedding_model", "gemini-embedding-001")
	v.SetDefault("ai.gemini.embedding_dimensions", 768)
	v.SetDefault("ai.gemini.temperature", 0.1)
	v.SetDefault("ai.gemini.max_tokens", 2048)
	v.SetDefault("ai.gemini.timeout", "30s")
	v.SetDefault("ai.embedding_batch_size", 100)
	v.SetDefault("ai.embedding_concurrency", 2)

	// Retry defaults: 3 attempts, exponential backoff starting at 2s capped at 10s
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", "2s")
	v.SetDefault("retry.max_interval", "10s")

	// Index defaults
	v.SetDefault("index.path", "chroma_db/headlines.db")
	v.SetDefault("index.timeout", "10s")

	// Dataset defaults
	v.SetDefault("data.news_csv", "datasets/Aggregated News Dataset - Sheet1.csv")
	v.SetDefault("data.classified_csv", "datasets/classified_articles.csv")
	v.SetDefault("data.highlights_csv", "datasets/daily_highlights.csv")

	// Taxonomy file; the category set itself falls back to DefaultCategories in postProcessConfig
	v.SetDefault("taxonomy.file", "")

	// Clustering defaults
	v.SetDefault("clustering.umap_components", 5)
	v.SetDefault("clustering.umap_neighbors", 15)
	v.SetDefault("clustering.umap_min_dist", 0.1)
	v.SetDefault("clustering.umap_epochs", 200)
	v.SetDefault("clustering.random_seed", 42)
	v.SetDefault("clustering.min_cluster_size", 15)
	v.SetDefault("clustering.min_samples", 0)
	v.SetDefault("clustering.metric", "euclidean")
	v.SetDefault("clustering.duplicate_distance", 0.02)

	// Highlight defaults
	v.SetDefault("highlights.per_category", 5)
	v.SetDefault("highlights.priority_weight", 1000)

	// RAG defaults
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_category_sources", 2)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding
func bindEnvironmentVariables(v *viper.Viper) {
	// Gemini API key - support multiple formats
	bindEnvKeys(v, "ai.gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
	})

	bindEnvKeys(v, "server.port", []string{
		"PORT",
	})

	bindEnvKeys(v, "app.debug", []string{
		"DEBUG",
		"HEADLINES_DEBUG",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key
func bindEnvKeys(v *viper.Viper, viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			v.Set(viperKey, value)
			return
		}
	}
}

// postProcessConfig applies post-processing to configuration values
func postProcessConfig(config *Config) error {
	// Expand paths
	config.Index.Path = expandPath(config.Index.Path)
	config.Data.NewsCSV = expandPath(config.Data.NewsCSV)
	config.Data.ClassifiedCSV = expandPath(config.Data.ClassifiedCSV)
	config.Data.HighlightsCSV = expandPath(config.Data.HighlightsCSV)

	if config.Taxonomy.File != "" {
		config.Taxonomy.File = expandPath(config.Taxonomy.File)
		taxonomy, err := LoadTaxonomyFile(config.Taxonomy.File)
		if err != nil {
			return err
		}
		config.Taxonomy.Categories = taxonomy.Categories
		config.Taxonomy.PriorityKeywords = taxonomy.PriorityKeywords
		config.Taxonomy.Order = taxonomy.Order
	}
	if len(config.Taxonomy.Categories) == 0 {
		config.Taxonomy.Categories = DefaultCategories()
		if len(config.Taxonomy.PriorityKeywords) == 0 {
			config.Taxonomy.PriorityKeywords = DefaultPriorityKeywords()
		}
		if len(config.Taxonomy.Order) == 0 {
			config.Taxonomy.Order = DefaultCategoryOrder()
		}
	}
	for i, name := range config.Taxonomy.Order {
		config.Taxonomy.Order[i] = strings.ToLower(strings.TrimSpace(name))
	}

	if config.Clustering.MinSamples <= 0 {
		config.Clustering.MinSamples = config.Clustering.MinClusterSize
	}
	config.Logging.Level = strings.ToLower(config.Logging.Level)
	config.Clustering.Metric = strings.ToLower(config.Clustering.Metric)

	return nil
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

// validateConfig ensures configuration values are usable
func validateConfig(config *Config) error {
	var errs []string

	if len(config.Taxonomy.Categories) == 0 {
		errs = append(errs, "at least one category is required (taxonomy.categories)")
	}
	for name, description := range config.Taxonomy.Categories {
		if strings.TrimSpace(name) == "" || strings.TrimSpace(description) == "" {
			errs = append(errs, fmt.Sprintf("category %q needs a non-empty name and description", name))
		}
	}
	for name := range config.Taxonomy.PriorityKeywords {
		if _, ok := config.Taxonomy.Categories[name]; !ok {
			errs = append(errs, fmt.Sprintf("priority keywords given for unknown category %q", name))
		}
	}
	for _, name := range config.Taxonomy.Order {
		if _, ok := config.Taxonomy.Categories[name]; !ok {
			errs = append(errs, fmt.Sprintf("taxonomy.order names unknown category %q", name))
		}
	}

	if config.Highlights.PriorityWeight <= 0 {
		errs = append(errs, "highlights.priority_weight must be positive")
	}
	if config.Highlights.PerCategory <= 0 {
		errs = append(errs, "highlights.per_category must be positive")
	}

	if config.Clustering.MinClusterSize < 2 {
		errs = append(errs, "clustering.min_cluster_size must be at least 2")
	}
	if config.Clustering.UMAPComponents < 1 {
		errs = append(errs, "clustering.umap_components must be at least 1")
	}
	if config.Clustering.UMAPNeighbors < 2 {
		errs = append(errs, "clustering.umap_neighbors must be at least 2")
	}
	if config.Clustering.UMAPEpochs < 1 {
		errs = append(errs, "clustering.umap_epochs must be at least 1")
	}
	if config.Clustering.DuplicateDistance < 0 || config.Clustering.DuplicateDistance >= 1 {
		errs = append(errs, "clustering.duplicate_distance must be in [0, 1)")
	}
	switch config.Clustering.Metric {
	case "euclidean", "cosine":
	default:
		errs = append(errs, fmt.Sprintf("Unknown clustering metric: %s. Supported: euclidean, cosine", config.Clustering.Metric))
	}

	if config.Retry.MaxAttempts < 1 {
		errs = append(errs, "retry.max_attempts must be at least 1")
	}
	if config.AI.EmbeddingBatchSize < 1 {
		errs = append(errs, "ai.embedding_batch_size must be at least 1")
	}
	if config.AI.EmbeddingConcurrency < 1 {
		errs = append(errs, "ai.embedding_concurrency must be at least 1")
	}
	if config.RAG.TopK < 1 {
		errs = append(errs, "rag.top_k must be at least 1")
	}

	durations := map[string]time.Duration{
		"ai.gemini.timeout":       config.AI.Gemini.Timeout,
		"retry.initial_interval":  config.Retry.InitialInterval,
		"retry.max_interval":      config.Retry.MaxInterval,
		"index.timeout":           config.Index.Timeout,
		"server.read_timeout":     config.Server.ReadTimeout,
		"server.write_timeout":    config.Server.WriteTimeout,
		"server.shutdown_timeout": config.Server.ShutdownTimeout,
	}
	keys := make([]string, 0, len(durations))
	for key := range durations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if durations[key] < 0 {
			errs = append(errs, fmt.Sprintf("invalid duration for %s: %s", key, durations[key]))
		}
	}

	switch config.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("Unknown logging format: %s. Supported: json, console", config.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errs, "\n- "))
	}

	return nil
}

// RequireAPIKey returns ErrMissingAPIKey when commands that call the provider have no key
func (c *Config) RequireAPIKey() error {
	if c.AI.Gemini.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

// CategoryNames returns the configured category names in taxonomy order.
// Categories missing from taxonomy.order follow, sorted by name.
func (c *Config) CategoryNames() []string {
	names := make([]string, 0, len(c.Taxonomy.Categories))
	listed := make(map[string]bool, len(c.Taxonomy.Order))
	for _, name := range c.Taxonomy.Order {
		if _, ok := c.Taxonomy.Categories[name]; ok && !listed[name] {
			listed[name] = true
			names = append(names, name)
		}
	}

	var rest []string
	for name := range c.Taxonomy.Categories {
		if !listed[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
