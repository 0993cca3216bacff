package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides, e.g. NEWSRAG_LLM_API_KEY.
const EnvPrefix = "NEWSRAG"

// Load reads defaults, then the optional YAML file at path, then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(Default())
	if err != nil {
		return nil, fmt.Errorf("marshal default config failed, err: %w", err)
	}
	// Seeding viper with the full default tree registers every key, so env
	// overrides work for keys the file does not mention.
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read default config failed, err: %w", err)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s failed, err: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config failed, err: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders cfg as YAML with secrets masked.
func Marshal(cfg Config) ([]byte, error) {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	cfg.Embedding.APIKey = mask(cfg.Embedding.APIKey)
	cfg.WebSearch.APIKey = mask(cfg.WebSearch.APIKey)
	cfg.Redis.Password = mask(cfg.Redis.Password)
	cfg.Retriever.Milvus.Password = mask(cfg.Retriever.Milvus.Password)
	return yaml.Marshal(cfg)
}
