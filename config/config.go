package config

// Config represents the main configuration structure for the news service
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" mapstructure:"server"`
	Log       LogConfig       `json:"log" yaml:"log" mapstructure:"log"`
	Temporal  TemporalConfig  `json:"temporal" yaml:"temporal" mapstructure:"temporal"`
	Analysis  AnalysisConfig  `json:"analysis" yaml:"analysis" mapstructure:"analysis"`
	Rewrite   RewriteConfig   `json:"rewrite" yaml:"rewrite" mapstructure:"rewrite"`
	Search    SearchConfig    `json:"search" yaml:"search" mapstructure:"search"`
	Engine    EngineConfig    `json:"engine" yaml:"engine" mapstructure:"engine"`
	Synth     SynthConfig     `json:"synth" yaml:"synth" mapstructure:"synth"`
	LLM       LLMConfig       `json:"llm" yaml:"llm" mapstructure:"llm"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	Retriever RetrieverConfig `json:"retriever" yaml:"retriever" mapstructure:"retriever"`
	WebSearch WebSearchConfig `json:"websearch" yaml:"websearch" mapstructure:"websearch"`
	Redis     RedisConfig     `json:"redis" yaml:"redis" mapstructure:"redis"`
	Memory    MemoryConfig    `json:"memory" yaml:"memory" mapstructure:"memory"`
}

// ServerConfig holds listener settings for the HTTP/WebSocket surface.
type ServerConfig struct {
	Address          string   `json:"address" yaml:"address" mapstructure:"address"`
	ReadTimeoutMs    int      `json:"read_timeout_ms" yaml:"read_timeout_ms" mapstructure:"read_timeout_ms"`
	WriteTimeoutMs   int      `json:"write_timeout_ms" yaml:"write_timeout_ms" mapstructure:"write_timeout_ms"`
	EnableMCP        bool     `json:"enable_mcp" yaml:"enable_mcp" mapstructure:"enable_mcp"`
	EnableMetrics    bool     `json:"enable_metrics" yaml:"enable_metrics" mapstructure:"enable_metrics"`
	AllowedWSOrigins []string `json:"allowed_ws_origins" yaml:"allowed_ws_origins" mapstructure:"allowed_ws_origins"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format" mapstructure:"format"` // json, console
}

// TemporalConfig controls date handling. Timezone is an IANA name.
type TemporalConfig struct {
	Timezone string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`
}

type AnalysisConfig struct {
	ClarityThreshold float64 `json:"clarity_threshold" yaml:"clarity_threshold" mapstructure:"clarity_threshold"`
}

type RewriteConfig struct {
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxRewrites         int     `json:"max_rewrites" yaml:"max_rewrites" mapstructure:"max_rewrites"`
	MaxClarifications   int     `json:"max_clarifications" yaml:"max_clarifications" mapstructure:"max_clarifications"`
}

// SearchConfig tunes internal/external orchestration.
type SearchConfig struct {
	ExternalEnabled           bool     `json:"external_enabled" yaml:"external_enabled" mapstructure:"external_enabled"`
	InternalTopK              int      `json:"internal_top_k" yaml:"internal_top_k" mapstructure:"internal_top_k"`
	MaxSources                int      `json:"max_sources" yaml:"max_sources" mapstructure:"max_sources"`
	ExternalTriggerThreshold  float64  `json:"external_trigger_threshold" yaml:"external_trigger_threshold" mapstructure:"external_trigger_threshold"`
	FreshnessRequirement      float64  `json:"freshness_requirement" yaml:"freshness_requirement" mapstructure:"freshness_requirement"`
	FreshnessPenaltyThreshold float64  `json:"freshness_penalty_threshold" yaml:"freshness_penalty_threshold" mapstructure:"freshness_penalty_threshold"`
	FreshnessPenalty          float64  `json:"freshness_penalty" yaml:"freshness_penalty" mapstructure:"freshness_penalty"`
	ExternalRelevance         float64  `json:"external_relevance" yaml:"external_relevance" mapstructure:"external_relevance"`
	TrustedDomains            []string `json:"trusted_domains" yaml:"trusted_domains" mapstructure:"trusted_domains"`
}

// EngineConfig holds the named thresholds and retry policy of the workflow engine.
type EngineConfig struct {
	QualityThreshold   float64 `json:"quality_threshold" yaml:"quality_threshold" mapstructure:"quality_threshold"`
	CoverageThreshold  float64 `json:"coverage_threshold" yaml:"coverage_threshold" mapstructure:"coverage_threshold"`
	FreshnessThreshold float64 `json:"freshness_threshold" yaml:"freshness_threshold" mapstructure:"freshness_threshold"`
	ClarityThreshold   float64 `json:"clarity_threshold" yaml:"clarity_threshold" mapstructure:"clarity_threshold"`
	QualityFloor       float64 `json:"quality_floor" yaml:"quality_floor" mapstructure:"quality_floor"`
	MaxRetries         int     `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`
	BaseDelayMs        int     `json:"base_delay_ms" yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	StepTimeoutMs      int     `json:"step_timeout_ms" yaml:"step_timeout_ms" mapstructure:"step_timeout_ms"`
}

type SynthConfig struct {
	MaxTokens     int     `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxExemplars  int     `json:"max_exemplars" yaml:"max_exemplars" mapstructure:"max_exemplars"`
	ExemplarsFile string  `json:"exemplars_file" yaml:"exemplars_file" mapstructure:"exemplars_file"`
	HistoryTurns  int     `json:"history_turns" yaml:"history_turns" mapstructure:"history_turns"`
}

// LLMConfig defines configuration for Large Language Models
type LLMConfig struct {
	Provider       string `json:"provider" yaml:"provider" mapstructure:"provider"` // Available options: openai
	APIKey         string `json:"api_key,omitempty" yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url" mapstructure:"base_url"`
	Model          string `json:"model" yaml:"model" mapstructure:"model"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	// Tiers maps a complexity level (simple, medium, complex) to a model name.
	Tiers map[string]string `json:"tiers" yaml:"tiers" mapstructure:"tiers"`
}

// EmbeddingConfig defines configuration for embedding models
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider" mapstructure:"provider"` // Available options: openai
	APIKey     string `json:"api_key,omitempty" yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string `json:"base_url,omitempty" yaml:"base_url" mapstructure:"base_url"`
	Model      string `json:"model" yaml:"model" mapstructure:"model"`
	Dimensions int    `json:"dimensions" yaml:"dimensions" mapstructure:"dimensions"`
}

// RetrieverConfig selects the internal knowledge base.
type RetrieverConfig struct {
	Provider string        `json:"provider" yaml:"provider" mapstructure:"provider"` // Available options: memory, milvus, archive
	Milvus   MilvusConfig  `json:"milvus" yaml:"milvus" mapstructure:"milvus"`
	Archive  ArchiveConfig `json:"archive" yaml:"archive" mapstructure:"archive"`
	// CorpusFile seeds the in-memory retriever with a YAML list of articles.
	CorpusFile string `json:"corpus_file" yaml:"corpus_file" mapstructure:"corpus_file"`
}

// MilvusConfig defines the Milvus collection and field layout.
type MilvusConfig struct {
	Host           string `json:"host" yaml:"host" mapstructure:"host"`
	Port           int    `json:"port" yaml:"port" mapstructure:"port"`
	Database       string `json:"database" yaml:"database" mapstructure:"database"`
	Collection     string `json:"collection" yaml:"collection" mapstructure:"collection"`
	Username       string `json:"username" yaml:"username" mapstructure:"username"`
	Password       string `json:"password" yaml:"password" mapstructure:"password"`
	VectorField    string `json:"vector_field" yaml:"vector_field" mapstructure:"vector_field"`
	PublishedField string `json:"published_field" yaml:"published_field" mapstructure:"published_field"`
	SearchEf       int    `json:"search_ef" yaml:"search_ef" mapstructure:"search_ef"`
}

type ArchiveConfig struct {
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// WebSearchConfig configures the external search provider.
type WebSearchConfig struct {
	Provider        string           `json:"provider" yaml:"provider" mapstructure:"provider"` // Available options: perplexity, none
	APIKey          string           `json:"api_key,omitempty" yaml:"api_key" mapstructure:"api_key"`
	Endpoint        string           `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`
	Model           string           `json:"model" yaml:"model" mapstructure:"model"`
	Temperature     float64          `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxSources      int              `json:"max_sources" yaml:"max_sources" mapstructure:"max_sources"`
	TimeoutSeconds  int              `json:"timeout_seconds" yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	SkipCoverage    float64          `json:"skip_coverage" yaml:"skip_coverage" mapstructure:"skip_coverage"`
	CacheTTLSeconds int              `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds" mapstructure:"cache_ttl_seconds"`
	L1CacheSize     int              `json:"l1_cache_size" yaml:"l1_cache_size" mapstructure:"l1_cache_size"`
	DailyLimit      int              `json:"daily_limit" yaml:"daily_limit" mapstructure:"daily_limit"` // 0 disables the quota
	HTTP            HTTPClientConfig `json:"http" yaml:"http" mapstructure:"http"`
}

// HTTPClientConfig defines common options for outbound HTTP calls.
type HTTPClientConfig struct {
	TimeoutMs              int      `json:"timeout_ms" yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Retry                  int      `json:"retry" yaml:"retry" mapstructure:"retry"`
	BackoffMinMs           int      `json:"backoff_min_ms" yaml:"backoff_min_ms" mapstructure:"backoff_min_ms"`
	BackoffMaxMs           int      `json:"backoff_max_ms" yaml:"backoff_max_ms" mapstructure:"backoff_max_ms"`
	HostAllowlist          []string `json:"host_allowlist" yaml:"host_allowlist" mapstructure:"host_allowlist"`
	MaxConsecutiveFailures int      `json:"max_consecutive_failures" yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	CircuitOpenSeconds     int      `json:"circuit_open_seconds" yaml:"circuit_open_seconds" mapstructure:"circuit_open_seconds"`
}

// RedisConfig is shared by the search cache and the redis conversation store.
// An empty Address disables redis.
type RedisConfig struct {
	Address  string `json:"address" yaml:"address" mapstructure:"address"`
	Password string `json:"password,omitempty" yaml:"password" mapstructure:"password"`
	DB       int    `json:"db" yaml:"db" mapstructure:"db"`
}

// MemoryConfig selects the conversation message store.
type MemoryConfig struct {
	Provider    string          `json:"provider" yaml:"provider" mapstructure:"provider"` // Available options: memory, redis, firestore
	TTLDays     int             `json:"ttl_days" yaml:"ttl_days" mapstructure:"ttl_days"`
	KeyPrefix   string          `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	MaxMessages int             `json:"max_messages" yaml:"max_messages" mapstructure:"max_messages"`
	Encoding    string          `json:"encoding" yaml:"encoding" mapstructure:"encoding"` // tiktoken encoding name
	Firestore   FirestoreConfig `json:"firestore" yaml:"firestore" mapstructure:"firestore"`
}

type FirestoreConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id" mapstructure:"project_id"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file" mapstructure:"credentials_file"`
	Collection      string `json:"collection" yaml:"collection" mapstructure:"collection"`
}
