package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("found %d configuration error(s):\n", len(errs)))
	for i, err := range errs {
		b.WriteString(fmt.Sprintf("  %d. [%s] %s\n", i+1, err.Field, err.Message))
	}
	return b.String()
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	var errs ValidationErrors
	errs = append(errs, c.validateThresholds()...)
	errs = append(errs, c.validateTemporal()...)
	errs = append(errs, c.validateRetriever()...)
	errs = append(errs, c.validateWebSearch()...)
	errs = append(errs, c.validateMemory()...)

	if c.Engine.MaxRetries < 1 {
		errs = append(errs, ValidationError{
			Field:   "engine.max_retries",
			Message: fmt.Sprintf("engine.max_retries must be at least 1, got %d", c.Engine.MaxRetries),
		})
	}
	if c.Search.MaxSources <= 0 || c.Search.MaxSources > 50 {
		errs = append(errs, ValidationError{
			Field:   "search.max_sources",
			Message: fmt.Sprintf("search.max_sources must be in [1, 50], got %d", c.Search.MaxSources),
		})
	}
	if c.Search.InternalTopK <= 0 || c.Search.InternalTopK > 100 {
		errs = append(errs, ValidationError{
			Field:   "search.internal_top_k",
			Message: fmt.Sprintf("search.internal_top_k must be in [1, 100], got %d", c.Search.InternalTopK),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) validateThresholds() ValidationErrors {
	var errs ValidationErrors
	checks := []struct {
		field string
		value float64
	}{
		{"analysis.clarity_threshold", c.Analysis.ClarityThreshold},
		{"rewrite.confidence_threshold", c.Rewrite.ConfidenceThreshold},
		{"search.external_trigger_threshold", c.Search.ExternalTriggerThreshold},
		{"search.freshness_requirement", c.Search.FreshnessRequirement},
		{"search.freshness_penalty_threshold", c.Search.FreshnessPenaltyThreshold},
		{"search.freshness_penalty", c.Search.FreshnessPenalty},
		{"search.external_relevance", c.Search.ExternalRelevance},
		{"engine.quality_threshold", c.Engine.QualityThreshold},
		{"engine.coverage_threshold", c.Engine.CoverageThreshold},
		{"engine.freshness_threshold", c.Engine.FreshnessThreshold},
		{"engine.clarity_threshold", c.Engine.ClarityThreshold},
		{"engine.quality_floor", c.Engine.QualityFloor},
	}
	for _, ck := range checks {
		if ck.value < 0 || ck.value > 1 {
			errs = append(errs, ValidationError{
				Field:   ck.field,
				Message: fmt.Sprintf("%s must be in [0, 1], got %.2f", ck.field, ck.value),
			})
		}
	}
	return errs
}

func (c *Config) validateTemporal() ValidationErrors {
	if c.Temporal.Timezone == "" {
		return nil
	}
	if _, err := time.LoadLocation(c.Temporal.Timezone); err != nil {
		return ValidationErrors{{
			Field:   "temporal.timezone",
			Message: fmt.Sprintf("unknown timezone %q: %v", c.Temporal.Timezone, err),
		}}
	}
	return nil
}

// validateRetriever validates the knowledge base configuration
func (c *Config) validateRetriever() ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(c.Retriever.Provider) {
	case "", "memory":
	case "milvus":
		if c.Retriever.Milvus.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "retriever.milvus.host",
				Message: "milvus host is required for milvus provider",
			})
		}
		if c.Retriever.Milvus.Collection == "" {
			errs = append(errs, ValidationError{
				Field:   "retriever.milvus.collection",
				Message: "collection name is required for milvus provider",
			})
		}
		if c.Embedding.Model == "" {
			errs = append(errs, ValidationError{
				Field:   "embedding.model",
				Message: "embedding model is required for milvus provider",
			})
		}
	case "archive":
		if c.Retriever.Archive.Path == "" {
			errs = append(errs, ValidationError{
				Field:   "retriever.archive.path",
				Message: "database path is required for archive provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "retriever.provider",
			Message: fmt.Sprintf("unsupported retriever provider %q", c.Retriever.Provider),
		})
	}
	return errs
}

func (c *Config) validateWebSearch() ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(c.WebSearch.Provider) {
	case "", "none":
	case "perplexity":
		if c.WebSearch.Endpoint == "" {
			errs = append(errs, ValidationError{
				Field:   "websearch.endpoint",
				Message: "endpoint is required for perplexity provider",
			})
		}
		if c.WebSearch.TimeoutSeconds <= 0 {
			errs = append(errs, ValidationError{
				Field:   "websearch.timeout_seconds",
				Message: fmt.Sprintf("websearch.timeout_seconds must be positive, got %d", c.WebSearch.TimeoutSeconds),
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "websearch.provider",
			Message: fmt.Sprintf("unsupported websearch provider %q", c.WebSearch.Provider),
		})
	}
	if c.WebSearch.DailyLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "websearch.daily_limit",
			Message: "websearch.daily_limit must be non-negative",
		})
	}
	return errs
}

func (c *Config) validateMemory() ValidationErrors {
	var errs ValidationErrors
	switch strings.ToLower(c.Memory.Provider) {
	case "", "memory":
	case "redis":
		if c.Redis.Address == "" {
			errs = append(errs, ValidationError{
				Field:   "redis.address",
				Message: "redis address is required for redis memory provider",
			})
		}
	case "firestore":
		if c.Memory.Firestore.ProjectID == "" {
			errs = append(errs, ValidationError{
				Field:   "memory.firestore.project_id",
				Message: "project id is required for firestore memory provider",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "memory.provider",
			Message: fmt.Sprintf("unsupported memory provider %q", c.Memory.Provider),
		})
	}
	if c.Memory.TTLDays <= 0 {
		errs = append(errs, ValidationError{
			Field:   "memory.ttl_days",
			Message: fmt.Sprintf("memory.ttl_days must be positive, got %d", c.Memory.TTLDays),
		})
	}
	return errs
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Temporal.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Temporal.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
