package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the deep research pipeline
type Config struct {
	General  GeneralConfig  `mapstructure:"general"`
	Search   SearchConfig   `mapstructure:"search"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// SearchConfig contains search-provider settings
type SearchConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Region         string        `mapstructure:"region"`
	SafeSearch     string        `mapstructure:"safe_search"` // strict, moderate, off
	MaxResults     int           `mapstructure:"max_results"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	TermDelay      time.Duration `mapstructure:"term_delay"`
	DorkDelay      time.Duration `mapstructure:"dork_delay"`
	BlockedDomains []string      `mapstructure:"blocked_domains"`
	AllowedDomains []string      `mapstructure:"allowed_domains"`
}

func (s SearchConfig) Validate() error {
	switch s.SafeSearch {
	case "strict", "moderate", "off":
	default:
		return fmt.Errorf("search.safe_search must be strict, moderate or off")
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be > 0")
	}
	if s.DorkDelay <= s.TermDelay {
		return fmt.Errorf("search.dork_delay must be greater than search.term_delay")
	}
	return nil
}

// ScraperConfig contains page-fetch and content-extraction settings
type ScraperConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	MaxRedirects    int           `mapstructure:"max_redirects"`
	MaxContentChars int           `mapstructure:"max_content_chars"`
	MinContentChars int           `mapstructure:"min_content_chars"`
	MaxConcurrent   int           `mapstructure:"max_concurrent"`
	ChunkDelay      time.Duration `mapstructure:"chunk_delay"`
}

func (s ScraperConfig) Validate() error {
	if s.MaxConcurrent <= 0 {
		return fmt.Errorf("scraper.max_concurrent must be > 0")
	}
	if s.MinContentChars <= 0 {
		return fmt.Errorf("scraper.min_content_chars must be > 0")
	}
	if s.MaxContentChars < s.MinContentChars {
		return fmt.Errorf("scraper.max_content_chars must be >= scraper.min_content_chars")
	}
	return nil
}

// AnalysisConfig contains the language-model service settings
type AnalysisConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`

	EmbeddingDimensions   int `mapstructure:"embedding_dimensions"`
	EmbeddingMaxChars     int `mapstructure:"embedding_max_chars"`
	EmbeddingMinRelevance int `mapstructure:"embedding_min_relevance"`

	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
}

func (a AnalysisConfig) Validate() error {
	if strings.TrimSpace(a.CompletionModel) == "" {
		return fmt.Errorf("analysis.completion_model is required")
	}
	if strings.TrimSpace(a.EmbeddingModel) == "" {
		return fmt.Errorf("analysis.embedding_model is required")
	}
	if a.EmbeddingDimensions <= 0 {
		return fmt.Errorf("analysis.embedding_dimensions must be > 0")
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("analysis.batch_size must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres       PostgresConfig `mapstructure:"postgres"`
	Redis          RedisConfig    `mapstructure:"redis"`
	EmbeddingCache string         `mapstructure:"embedding_cache"` // memory, postgres, redis
}

func (s StorageConfig) Validate() error {
	switch s.EmbeddingCache {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("storage.embedding_cache must be memory, postgres or redis")
	}
	if s.EmbeddingCache == "redis" {
		return s.Redis.Validate()
	}
	return nil
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// DSN builds a Postgres connection string, preferring the explicit URL.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", 30*time.Second)

	viper.SetDefault("search.base_url", "https://html.duckduckgo.com/html/")
	viper.SetDefault("search.region", "us-en")
	viper.SetDefault("search.safe_search", "moderate")
	viper.SetDefault("search.max_results", 10)
	viper.SetDefault("search.timeout", 15*time.Second)
	viper.SetDefault("search.rate_per_second", 1.0)
	viper.SetDefault("search.term_delay", 500*time.Millisecond)
	viper.SetDefault("search.dork_delay", 1500*time.Millisecond)
	viper.SetDefault("search.blocked_domains", []string{})
	viper.SetDefault("search.allowed_domains", []string{"*"})

	viper.SetDefault("scraper.timeout", 15*time.Second)
	viper.SetDefault("scraper.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	viper.SetDefault("scraper.rate_per_second", 4.0)
	viper.SetDefault("scraper.max_redirects", 5)
	viper.SetDefault("scraper.max_content_chars", 10000)
	viper.SetDefault("scraper.min_content_chars", 100)
	viper.SetDefault("scraper.max_concurrent", 3)
	viper.SetDefault("scraper.chunk_delay", 500*time.Millisecond)

	viper.SetDefault("analysis.base_url", "https://api.openai.com/v1")
	viper.SetDefault("analysis.completion_model", "gpt-4o-mini")
	viper.SetDefault("analysis.embedding_model", "text-embedding-3-small")
	viper.SetDefault("analysis.temperature", 0.3)
	viper.SetDefault("analysis.max_tokens", 4096)
	viper.SetDefault("analysis.timeout", 60*time.Second)
	viper.SetDefault("analysis.embedding_dimensions", 1536)
	viper.SetDefault("analysis.embedding_max_chars", 8000)
	viper.SetDefault("analysis.embedding_min_relevance", 30)
	viper.SetDefault("analysis.batch_size", 3)
	viper.SetDefault("analysis.batch_delay", time.Second)

	viper.SetDefault("storage.embedding_cache", "memory")
	viper.SetDefault("storage.redis.ttl", 720*time.Hour)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("DEEPRESEARCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine, defaults plus env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Search.Validate(); err != nil {
		panic(err)
	}
	if err := config.Scraper.Validate(); err != nil {
		panic(err)
	}
	if err := config.Analysis.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Validate(); err != nil {
		panic(err)
	}
	return &config
}
