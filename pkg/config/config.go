package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultLLMBaseURL = "https://api.upstage.ai/v1/solar"
	DefaultLayoutURL  = "https://api.upstage.ai/v1/document-ai/layout-analysis"
)

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	Multiplier  float64       `yaml:"multiplier"`
}

type LLMConfig struct {
	BaseURL               string      `yaml:"base_url"`
	APIKey                string      `yaml:"api_key"`
	ChatModel             string      `yaml:"chat_model"`
	QueryEmbeddingModel   string      `yaml:"query_embedding_model"`
	PassageEmbeddingModel string      `yaml:"passage_embedding_model"`
	RateLimit             float64     `yaml:"rate_limit"`
	Retry                 RetryConfig `yaml:"retry"`
}

type LayoutConfig struct {
	// Driver is "upstage" for the remote API or "local" for the offline PDF reader.
	Driver  string        `yaml:"driver"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
	OCR     bool          `yaml:"ocr"`
}

type DatabaseConfig struct {
	// Driver is "pgvector" or "memory".
	Driver   string `yaml:"driver"`
	URL      string `yaml:"url"`
	Metric   string `yaml:"metric"`
	MaxConns int32  `yaml:"max_conns"`
}

type ScraperConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	RateLimit         float64  `yaml:"rate_limit"`
	IgnorePatterns    []string `yaml:"ignore_patterns"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

type ProcessorConfig struct {
	ChunkSize      int `yaml:"chunk_size"`
	ChunkOverlap   int `yaml:"chunk_overlap"`
	MinChunkLength int `yaml:"min_chunk_length"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Layout    LayoutConfig    `yaml:"layout"`
	Database  DatabaseConfig  `yaml:"database"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Processor ProcessorConfig `yaml:"processor"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// LoadConfig reads path, or the first default location that exists, then
// applies environment overrides and defaults. A .env file in the working
// directory is loaded into the environment first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/solar/config.yaml"),
			"/etc/solar/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() *Config {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = DefaultLLMBaseURL
	}
	if config.LLM.ChatModel == "" {
		config.LLM.ChatModel = "solar-1-mini-chat"
	}
	if config.LLM.QueryEmbeddingModel == "" {
		config.LLM.QueryEmbeddingModel = "solar-embedding-1-large-query"
	}
	if config.LLM.PassageEmbeddingModel == "" {
		config.LLM.PassageEmbeddingModel = "solar-embedding-1-large-passage"
	}
	if config.LLM.Retry.MaxAttempts == 0 {
		config.LLM.Retry.MaxAttempts = 5
	}
	if config.LLM.Retry.BaseDelay == 0 {
		config.LLM.Retry.BaseDelay = time.Second
	}
	if config.LLM.Retry.Multiplier == 0 {
		config.LLM.Retry.Multiplier = 2
	}

	if config.Layout.Driver == "" {
		config.Layout.Driver = "upstage"
	}
	if config.Layout.URL == "" {
		config.Layout.URL = DefaultLayoutURL
	}
	if config.Layout.APIKey == "" {
		config.Layout.APIKey = config.LLM.APIKey
	}
	if config.Layout.Timeout == 0 {
		config.Layout.Timeout = 120 * time.Second
	}

	if config.Database.Driver == "" {
		config.Database.Driver = "pgvector"
	}
	if config.Database.Metric == "" {
		config.Database.Metric = "cosine"
	}
	if config.Database.MaxConns == 0 {
		config.Database.MaxConns = 10
	}

	if config.Scraper.MaxDepth == 0 {
		config.Scraper.MaxDepth = 3
	}
	if config.Scraper.RateLimit == 0 {
		config.Scraper.RateLimit = 2.0
	}
	if len(config.Scraper.AllowedExtensions) == 0 {
		config.Scraper.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 200
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 50
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func mergeWithEnv(config *Config) {
	if apiKey := os.Getenv("UPSTAGE_API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	} else if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		config.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if layoutURL := os.Getenv("LAYOUT_API_URL"); layoutURL != "" {
		config.Layout.URL = layoutURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			config.Server.Addr = ":" + port
		}
	}
}
