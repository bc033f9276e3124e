package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the project root
const DefaultFileName = ".livecontext.yaml"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider    string `yaml:"provider"` // local, openai, jina, ollama; empty = detect from API keys
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"-"` // only from the environment
	CacheSize   int    `yaml:"cache_size"`
	Workers     int    `yaml:"workers"`
	QueueSize   int    `yaml:"queue_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// IndexerConfig tunes the index coordinator.
type IndexerConfig struct {
	DebounceMs          int `yaml:"debounce_ms"`
	PersistIntervalSecs int `yaml:"persist_interval_secs"`
	RetryIntervalSecs   int `yaml:"retry_interval_secs"`
	MaxConcurrentPasses int `yaml:"max_concurrent_passes"`
	EventQueueSize      int `yaml:"event_queue_size"`
}

// Debounce returns the debounce window
func (c IndexerConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// PersistInterval returns the minimum time between two snapshot saves
func (c IndexerConfig) PersistInterval() time.Duration {
	return time.Duration(c.PersistIntervalSecs) * time.Second
}

// RetryInterval returns how often pending embeddings are retried
func (c IndexerConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSecs) * time.Second
}

// SearchConfig holds query defaults.
type SearchConfig struct {
	DefaultLimit  int     `yaml:"default_limit"`
	MaxLimit      int     `yaml:"max_limit"`
	MinSimilarity float64 `yaml:"min_similarity"`
	CacheSize     int     `yaml:"cache_size"`
}

// ComplexityThresholds are the lowest scores of the medium and high levels.
type ComplexityThresholds struct {
	Medium int `yaml:"medium"`
	High   int `yaml:"high"`
}

// Config is the root configuration structure.
type Config struct {
	Root     string   `yaml:"root"`
	Include  []string `yaml:"include"`
	Exclude  []string `yaml:"exclude"`
	DBPath   string   `yaml:"db_path"`
	LogLevel string   `yaml:"log_level"`

	// RulesFile points to a classifier rule table; empty uses the built-in one.
	RulesFile string `yaml:"rules_file"`

	Embedder   EmbedderConfig       `yaml:"embedder"`
	Indexer    IndexerConfig        `yaml:"indexer"`
	Search     SearchConfig         `yaml:"search"`
	Complexity ComplexityThresholds `yaml:"complexity"`

	// Bundles maps a bundle name to the glob patterns of its member files.
	Bundles BundleMap `yaml:"bundles"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Root:     ".",
		Include:  []string{"**/*.{js,jsx,mjs,cjs,ts,tsx,mts,cts}"},
		Exclude:  []string{"**/node_modules/**", "**/.git/**", "**/dist/**", "**/build/**", "**/coverage/**", "**/*.min.js", "**/*.d.ts"},
		DBPath:   filepath.Join(".livecontext", "index.db"),
		LogLevel: "info",
		Embedder: EmbedderConfig{
			CacheSize:   10000,
			Workers:     2,
			QueueSize:   256,
			TimeoutSecs: 30,
		},
		Indexer: IndexerConfig{
			DebounceMs:          300,
			PersistIntervalSecs: 5,
			RetryIntervalSecs:   30,
			MaxConcurrentPasses: 4,
			EventQueueSize:      1024,
		},
		Search: SearchConfig{
			DefaultLimit:  10,
			MaxLimit:      100,
			MinSimilarity: 0,
			CacheSize:     1000,
		},
		Complexity: ComplexityThresholds{Medium: 6, High: 15},
	}
}

// Load reads configuration from path, applies environment overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored and variables already set are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Root, "LIVECONTEXT_ROOT")
	setString(&c.DBPath, "LIVECONTEXT_DB_PATH")
	setString(&c.LogLevel, "LIVECONTEXT_LOG_LEVEL")
	setString(&c.RulesFile, "LIVECONTEXT_RULES")
	setString(&c.Embedder.Provider, "LIVECONTEXT_EMBEDDING_PROVIDER")
	setString(&c.Embedder.Model, "LIVECONTEXT_EMBEDDING_MODEL")
	setInt(&c.Indexer.DebounceMs, "LIVECONTEXT_DEBOUNCE_MS")

	c.Embedder.Provider = strings.ToLower(strings.TrimSpace(c.Embedder.Provider))
	if c.Embedder.Provider == "" {
		switch {
		case os.Getenv("JINA_API_KEY") != "":
			c.Embedder.Provider = "jina"
		case os.Getenv("OPENAI_API_KEY") != "":
			c.Embedder.Provider = "openai"
		default:
			c.Embedder.Provider = "local"
		}
	}

	switch c.Embedder.Provider {
	case "jina":
		c.Embedder.APIKey = os.Getenv("JINA_API_KEY")
	case "openai":
		c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	case "ollama":
		setString(&c.Embedder.BaseURL, "OLLAMA_HOST")
	}
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Root == "" {
		c.Root = d.Root
	}
	if len(c.Include) == 0 {
		c.Include = d.Include
	}
	if c.DBPath == "" {
		c.DBPath = d.DBPath
	}
	if c.Embedder.CacheSize <= 0 {
		c.Embedder.CacheSize = d.Embedder.CacheSize
	}
	if c.Embedder.Workers <= 0 {
		c.Embedder.Workers = d.Embedder.Workers
	}
	if c.Embedder.QueueSize <= 0 {
		c.Embedder.QueueSize = d.Embedder.QueueSize
	}
	if c.Embedder.TimeoutSecs <= 0 {
		c.Embedder.TimeoutSecs = d.Embedder.TimeoutSecs
	}
	if c.Indexer.DebounceMs <= 0 {
		c.Indexer.DebounceMs = d.Indexer.DebounceMs
	}
	if c.Indexer.PersistIntervalSecs <= 0 {
		c.Indexer.PersistIntervalSecs = d.Indexer.PersistIntervalSecs
	}
	if c.Indexer.RetryIntervalSecs <= 0 {
		c.Indexer.RetryIntervalSecs = d.Indexer.RetryIntervalSecs
	}
	if c.Indexer.MaxConcurrentPasses <= 0 {
		c.Indexer.MaxConcurrentPasses = d.Indexer.MaxConcurrentPasses
	}
	if c.Indexer.EventQueueSize <= 0 {
		c.Indexer.EventQueueSize = d.Indexer.EventQueueSize
	}
	if c.Search.DefaultLimit <= 0 {
		c.Search.DefaultLimit = d.Search.DefaultLimit
	}
	if c.Search.MaxLimit <= 0 {
		c.Search.MaxLimit = d.Search.MaxLimit
	}
	if c.Search.CacheSize <= 0 {
		c.Search.CacheSize = d.Search.CacheSize
	}
	if c.Complexity == (ComplexityThresholds{}) {
		c.Complexity = d.Complexity
	}
}

// Validate checks value ranges and glob syntax
func (c *Config) Validate() error {
	switch c.Embedder.Provider {
	case "local", "openai", "jina", "ollama":
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", ErrInvalidConfig, c.Embedder.Provider)
	}
	if err := c.Complexity.Validate(); err != nil {
		return err
	}
	if c.Search.MinSimilarity < -1 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be between -1 and 1", ErrInvalidConfig)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("%w: default_limit exceeds max_limit", ErrInvalidConfig)
	}
	if _, err := c.LogLevelValue(); err != nil {
		return err
	}
	if err := validateGlobs(slices.Concat(c.Include, c.Exclude)); err != nil {
		return err
	}
	return c.Bundles.Validate()
}

// Validate requires 0 < Medium < High so the level mapping is monotonic
func (t ComplexityThresholds) Validate() error {
	if t.Medium <= 0 || t.High <= t.Medium {
		return fmt.Errorf("%w: complexity thresholds must satisfy 0 < medium < high (got %d, %d)",
			ErrInvalidConfig, t.Medium, t.High)
	}
	return nil
}

// LogLevelValue parses LogLevel into a slog level
func (c *Config) LogLevelValue() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: log_level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}

// ResolvePath makes p absolute relative to the configured root
func (c *Config) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
