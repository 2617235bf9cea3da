package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all worker configuration.
type Config struct {
	App       App       `mapstructure:"app"`
	Database  Database  `mapstructure:"database"`
	Gemini    Gemini    `mapstructure:"gemini"`
	Embedding Embedding `mapstructure:"embedding"`
	Fetch     Fetch     `mapstructure:"fetch"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Feeds     Feeds     `mapstructure:"feeds"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Logging   Logging   `mapstructure:"logging"`
}

// App holds general application configuration.
type App struct {
	DataDir string `mapstructure:"data_dir"` // Directory for the local worker state database
}

// Database holds PostgreSQL configuration.
type Database struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
}

// Gemini holds LLM extraction configuration.
type Gemini struct {
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Temperature       float32 `mapstructure:"temperature"`
	MaxTokens         int32   `mapstructure:"max_tokens"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// Embedding holds embedding client configuration. Dimensions is a deploy-time
// constant and must match the vector index schema.
type Embedding struct {
	Model             string `mapstructure:"model"`
	Dimensions        int    `mapstructure:"dimensions"`
	BatchSize         int    `mapstructure:"batch_size"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// Fetch holds content fetcher configuration.
type Fetch struct {
	Timeout      string `mapstructure:"timeout"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
	MaxRedirects int    `mapstructure:"max_redirects"`
	UserAgent    string `mapstructure:"user_agent"`
}

// Ingest holds ingestion job configuration.
type Ingest struct {
	BatchSize      int    `mapstructure:"batch_size"`      // Sources per batch
	SourceTimeout  string `mapstructure:"source_timeout"`  // Per-source deadline
	MaxCandidates  int    `mapstructure:"max_candidates"`  // Cap on extractor output per source
	ContentWindow  int    `mapstructure:"content_window"`  // Max characters of content handed to the LLM
	FeedFastPath   bool   `mapstructure:"feed_fast_path"`  // Parse RSS/Atom directly instead of via the LLM
	ReindexChunk   int    `mapstructure:"reindex_chunk"`   // Resources per reindex chunk
	ConditionalGet bool   `mapstructure:"conditional_get"` // Send If-None-Match/If-Modified-Since
}

// Feeds holds feed generation configuration.
type Feeds struct {
	PerFeedCount      int     `mapstructure:"per_feed_count"`   // N recommendations per (user, feed type)
	RetrievalFactor   int     `mapstructure:"retrieval_factor"` // k = factor * N candidates retrieved
	VectorWeight      float64 `mapstructure:"vector_weight"`    // Share of the hybrid score from vector similarity
	RecencyWindowDays int     `mapstructure:"recency_window_days"`
	ExclusionDays     int     `mapstructure:"exclusion_days"` // Recently-recommended lookback
	MaxPerSource      int     `mapstructure:"max_per_source"` // Diversity cap
}

// Scheduler holds worker loop configuration.
type Scheduler struct {
	TickInterval      string `mapstructure:"tick_interval"`
	IngestionInterval string `mapstructure:"ingestion_interval"`
	FeedHourUTC       int    `mapstructure:"feed_hour_utc"` // Civil-day feed generation runs at or after this hour
	RunOnStartup      bool   `mapstructure:"run_on_startup"`
	StartupDelay      string `mapstructure:"startup_delay"` // Pause between startup jobs for index visibility
}

// Logging holds logging configuration.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

var globalConfig *Config

// Load loads the configuration from .env, config file, and environment.
func Load(configFile string) (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	// Load .env file if it exists (for local development)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			fmt.Printf("Warning: Error loading .env file: %v\n", err)
		}
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".curio")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	bindEnvironmentVariables()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, err
	}

	globalConfig = config
	return config, nil
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	if globalConfig == nil {
		config, err := Load("")
		if err != nil {
			panic(fmt.Sprintf("Failed to load configuration: %v", err))
		}
		return config
	}
	return globalConfig
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.data_dir", ".curio")

	// Database defaults
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")

	// Gemini defaults
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.temperature", 0.2)
	viper.SetDefault("gemini.max_tokens", 8192)
	viper.SetDefault("gemini.requests_per_minute", 30)

	// Embedding defaults
	viper.SetDefault("embedding.model", "gemini-embedding-001")
	viper.SetDefault("embedding.dimensions", 1536)
	viper.SetDefault("embedding.batch_size", 100)
	viper.SetDefault("embedding.requests_per_minute", 60)

	// Fetch defaults
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.max_body_bytes", 2*1024*1024)
	viper.SetDefault("fetch.max_redirects", 5)
	viper.SetDefault("fetch.user_agent", "curio/1.0 (+https://github.com/curio)")

	// Ingest defaults
	viper.SetDefault("ingest.batch_size", 5)
	viper.SetDefault("ingest.source_timeout", "120s")
	viper.SetDefault("ingest.max_candidates", 20)
	viper.SetDefault("ingest.content_window", 50000)
	viper.SetDefault("ingest.feed_fast_path", true)
	viper.SetDefault("ingest.reindex_chunk", 50)
	viper.SetDefault("ingest.conditional_get", true)

	// Feeds defaults
	viper.SetDefault("feeds.per_feed_count", 10)
	viper.SetDefault("feeds.retrieval_factor", 10)
	viper.SetDefault("feeds.vector_weight", 0.7)
	viper.SetDefault("feeds.recency_window_days", 90)
	viper.SetDefault("feeds.exclusion_days", 7)
	viper.SetDefault("feeds.max_per_source", 3)

	// Scheduler defaults
	viper.SetDefault("scheduler.tick_interval", "1m")
	viper.SetDefault("scheduler.ingestion_interval", "24h")
	viper.SetDefault("scheduler.feed_hour_utc", 2)
	viper.SetDefault("scheduler.run_on_startup", false)
	viper.SetDefault("scheduler.startup_delay", "10s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// bindEnvironmentVariables sets up flexible environment variable binding.
func bindEnvironmentVariables() {
	bindEnvKeys("gemini.api_key", []string{
		"GEMINI_API_KEY",
		"GOOGLE_GEMINI_API_KEY",
		"GOOGLE_AI_API_KEY",
	})

	bindEnvKeys("database.url", []string{
		"CURIO_DATABASE_URL",
		"DATABASE_URL",
		"POSTGRES_URL",
	})
}

// bindEnvKeys binds the first found environment variable to a viper key.
func bindEnvKeys(viperKey string, envKeys []string) {
	for _, envKey := range envKeys {
		if value := os.Getenv(envKey); value != "" {
			viper.Set(viperKey, value)
			return
		}
	}
}

// validateConfig ensures required configuration is present and well-formed.
// Failures here are fatal to the process by design.
func validateConfig(config *Config) error {
	var errors []string

	if config.Gemini.APIKey == "" {
		errors = append(errors, "Gemini API key is required. Set GEMINI_API_KEY environment variable or gemini.api_key in config file")
	}

	if config.Database.URL == "" {
		errors = append(errors, "Database URL is required. Set DATABASE_URL environment variable or database.url in config file")
	}

	if config.Embedding.Dimensions <= 0 {
		errors = append(errors, "embedding.dimensions must be positive")
	}

	durations := map[string]string{
		"database.conn_max_lifetime":   config.Database.ConnMaxLifetime,
		"fetch.timeout":                config.Fetch.Timeout,
		"ingest.source_timeout":        config.Ingest.SourceTimeout,
		"scheduler.tick_interval":      config.Scheduler.TickInterval,
		"scheduler.ingestion_interval": config.Scheduler.IngestionInterval,
		"scheduler.startup_delay":      config.Scheduler.StartupDelay,
	}
	for key, duration := range durations {
		if duration != "" {
			if _, err := time.ParseDuration(duration); err != nil {
				errors = append(errors, fmt.Sprintf("invalid duration for %s: %s", key, duration))
			}
		}
	}

	if config.Scheduler.FeedHourUTC < 0 || config.Scheduler.FeedHourUTC > 23 {
		errors = append(errors, fmt.Sprintf("scheduler.feed_hour_utc must be in [0,23], got %d", config.Scheduler.FeedHourUTC))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Duration parses a duration field, falling back when the field is empty or
// malformed. Malformed values are caught earlier by validateConfig; the
// fallback keeps callers total.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// Reset clears the global configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viper.Reset()
}
