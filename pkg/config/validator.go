package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// LLM
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "LLM base URL is required",
		})
	} else if !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid LLM base URL",
		})
	}

	if c.LLM.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must not be negative",
		})
	}

	if c.LLM.Retry.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.retry.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.LLM.Retry.BaseDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.retry.base_delay",
			Message: "base_delay must not be negative",
		})
	}

	if c.LLM.Retry.Multiplier < 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.retry.multiplier",
			Message: "multiplier must be at least 1",
		})
	}

	// Layout
	switch c.Layout.Driver {
	case "upstage":
		if !isHTTPURL(c.Layout.URL) {
			errors = append(errors, ValidationError{
				Field:   "layout.url",
				Message: "invalid layout analysis URL",
			})
		}
	case "local":
	default:
		errors = append(errors, ValidationError{
			Field:   "layout.driver",
			Message: fmt.Sprintf("unknown layout driver: %s", c.Layout.Driver),
		})
	}

	// Database
	switch c.Database.Driver {
	case "pgvector":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the pgvector driver",
			})
		} else if u, err := url.Parse(c.Database.URL); err != nil || u.Scheme == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	case "memory":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unknown database driver: %s", c.Database.Driver),
		})
	}

	switch c.Database.Metric {
	case "cosine", "l2", "ip":
	default:
		errors = append(errors, ValidationError{
			Field:   "database.metric",
			Message: fmt.Sprintf("unknown metric: %s", c.Database.Metric),
		})
	}

	if c.Database.MaxConns < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.max_conns",
			Message: "max_conns must be positive",
		})
	}

	// Scraper
	if c.Scraper.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scraper.max_depth",
			Message: "max_depth must be positive",
		})
	}

	if c.Scraper.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "scraper.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for _, ext := range c.Scraper.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") && ext != "" && ext != "/" {
			errors = append(errors, ValidationError{
				Field:   "scraper.allowed_extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Processor
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Log
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Log.Level),
		})
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errors = append(errors, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("unknown log format: %s", c.Log.Format),
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
