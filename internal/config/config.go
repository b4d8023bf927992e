package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Collect   CollectConfig   `yaml:"collect" mapstructure:"collect"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Cluster   ClusterConfig   `yaml:"cluster" mapstructure:"cluster"`
	Analyze   AnalyzeConfig   `yaml:"analyze" mapstructure:"analyze"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	ClassifyModel string `yaml:"classify_model" mapstructure:"classify_model"`
	AnalyzeModel  string `yaml:"analyze_model" mapstructure:"analyze_model"`
	NamingModel   string `yaml:"naming_model" mapstructure:"naming_model"`
	MaxTokens     int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaPricing             `yaml:"jina" mapstructure:"jina"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// JinaPricing holds Jina embeddings pricing.
type JinaPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// CollectConfig configures raw item ingestion.
type CollectConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Sources []string `yaml:"sources" mapstructure:"sources"`
	Limit   int      `yaml:"limit" mapstructure:"limit"`
	MinLen  int      `yaml:"min_len" mapstructure:"min_len"`
	MaxLen  int      `yaml:"max_len" mapstructure:"max_len"`
}

// ClassifyConfig configures the classification stage.
type ClassifyConfig struct {
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// ClusterConfig configures the clustering stage.
type ClusterConfig struct {
	Eps              float64 `yaml:"eps" mapstructure:"eps"`
	MinClusterSize   int     `yaml:"min_cluster_size" mapstructure:"min_cluster_size"`
	JaccardThreshold float64 `yaml:"jaccard_threshold" mapstructure:"jaccard_threshold"`
	WeightsFile      string  `yaml:"weights_file" mapstructure:"weights_file"`
}

// AnalyzeConfig configures deep analysis.
type AnalyzeConfig struct {
	TopK            int  `yaml:"top_k" mapstructure:"top_k"`
	MaxContextPains int  `yaml:"max_context_pains" mapstructure:"max_context_pains"`
	Force           bool `yaml:"force" mapstructure:"force"`
}

// PipelineConfig configures concurrency and per-source rate limits.
type PipelineConfig struct {
	Workers     int     `yaml:"workers" mapstructure:"workers"`
	SourceRate  float64 `yaml:"source_rate" mapstructure:"source_rate"`
	SourceBurst int     `yaml:"source_burst" mapstructure:"source_burst"`
}

// ServerConfig configures the query API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PAINMINER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.classify_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.analyze_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.naming_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("jina.base_url", "https://api.jina.ai")
	v.SetDefault("jina.model", "jina-embeddings-v3")
	v.SetDefault("jina.batch_size", 64)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 0.80, "output": 4.00},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.00, "output": 15.00},
		"claude-opus-4-5-20251101":   map[string]any{"input": 5.00, "output": 25.00},
	})
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("collect.dir", "./data")
	v.SetDefault("collect.min_len", 80)
	v.SetDefault("collect.max_len", 20000)
	v.SetDefault("classify.max_attempts", 3)
	v.SetDefault("classify.temperature", 0.0)
	v.SetDefault("cluster.eps", 0.30)
	v.SetDefault("cluster.min_cluster_size", 3)
	v.SetDefault("cluster.jaccard_threshold", 0.5)
	v.SetDefault("analyze.top_k", 10)
	v.SetDefault("analyze.max_context_pains", 10)
	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.source_rate", 1.0)
	v.SetDefault("pipeline.source_burst", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
