package config

// Default returns the configuration used when no file or environment overrides
// are present. Thresholds follow the canonical values documented in DESIGN.md.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeoutMs:  15000,
			WriteTimeoutMs: 120000,
			EnableMCP:      true,
			EnableMetrics:  true,
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Temporal: TemporalConfig{Timezone: "Asia/Seoul"},
		Analysis: AnalysisConfig{ClarityThreshold: 0.6},
		Rewrite: RewriteConfig{
			ConfidenceThreshold: 0.75,
			MaxRewrites:         3,
			MaxClarifications:   3,
		},
		Search: SearchConfig{
			ExternalEnabled:           true,
			InternalTopK:              10,
			MaxSources:                10,
			ExternalTriggerThreshold:  0.5,
			FreshnessRequirement:      0.8,
			FreshnessPenaltyThreshold: 0.7,
			FreshnessPenalty:          0.7,
			ExternalRelevance:         0.8,
			TrustedDomains:            []string{"sedaily.com", "yonhapnews.co.kr", "chosun.com", "joongang.co.kr"},
		},
		Engine: EngineConfig{
			QualityThreshold:   0.85,
			CoverageThreshold:  0.7,
			FreshnessThreshold: 0.6,
			ClarityThreshold:   0.6,
			QualityFloor:       0.5,
			MaxRetries:         3,
			BaseDelayMs:        2000,
			StepTimeoutMs:      90000,
		},
		Synth: SynthConfig{
			MaxTokens:    3000,
			Temperature:  0.3,
			MaxExemplars: 2,
			HistoryTurns: 3,
		},
		LLM: LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 60,
			Tiers: map[string]string{
				"simple":  "gpt-4o-mini",
				"medium":  "gpt-4o-mini",
				"complex": "gpt-4o",
			},
		},
		Embedding: EmbeddingConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
		},
		Retriever: RetrieverConfig{
			Provider: "memory",
			Milvus: MilvusConfig{
				Host:           "localhost",
				Port:           19530,
				Database:       "default",
				Collection:     "news_articles",
				VectorField:    "vector",
				PublishedField: "published_at",
				SearchEf:       64,
			},
			Archive: ArchiveConfig{Path: "newsrag.db"},
		},
		WebSearch: WebSearchConfig{
			Provider:        "perplexity",
			Endpoint:        "https://api.perplexity.ai",
			Model:           "sonar-pro",
			Temperature:     0.1,
			MaxSources:      5,
			TimeoutSeconds:  30,
			SkipCoverage:    0.8,
			CacheTTLSeconds: 3600,
			L1CacheSize:     256,
			HTTP: HTTPClientConfig{
				TimeoutMs:              30000,
				Retry:                  1,
				BackoffMinMs:           100,
				BackoffMaxMs:           800,
				MaxConsecutiveFailures: 5,
				CircuitOpenSeconds:     5,
			},
		},
		Memory: MemoryConfig{
			Provider:    "memory",
			TTLDays:     180,
			KeyPrefix:   "newsrag:conversation:",
			MaxMessages: 50,
			Encoding:    "cl100k_base",
			Firestore:   FirestoreConfig{Collection: "conversations"},
		},
	}
}
