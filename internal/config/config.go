package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Server   ServerConfig   `mapstructure:"server"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Log      LogConfig      `mapstructure:"log"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	EmbedModel  string        `mapstructure:"embed_model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

type VectorConfig struct {
	Host       string  `mapstructure:"host"`
	Port       int     `mapstructure:"port"`
	Collection string  `mapstructure:"collection"`
	VectorSize uint64  `mapstructure:"vector_size"`
	Threshold  float32 `mapstructure:"threshold"`
	Limit      int     `mapstructure:"limit"`
	BatchSize  int     `mapstructure:"batch_size"`
}

type MemoryConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecretsConfig selects the secrets backend. Provider "env" reads from the
// environment; "file" reads a JSON file at FilePath, useful in development.
type SecretsConfig struct {
	Provider string `mapstructure:"provider"`
	FilePath string `mapstructure:"file_path"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4",
			EmbedModel:  "text-embedding-ada-002",
			Temperature: 0.3,
		},
		Vector: VectorConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "ecom_faq",
			VectorSize: 1536,
			Threshold:  0.65,
			Limit:      3,
			BatchSize:  100,
		},
		Memory: MemoryConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "chat",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			HealthAddr: ":8081",
		},
		Temporal: TemporalConfig{
			Host:      "localhost:7233",
			Namespace: "default",
			TaskQueue: "shopclerk-reindex",
		},
		Tracing: TracingConfig{
			ServiceName: "shopclerk",
			Environment: "development",
			SampleRate:  1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Secrets: SecretsConfig{
			Provider: "env",
		},
	}
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}

	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Vector.Threshold < 0 || c.Vector.Threshold > 1 {
		warnings = append(warnings, fmt.Sprintf("vector threshold %.2f is outside [0.0, 1.0]; scores are cosine similarities", c.Vector.Threshold))
	}

	if c.Vector.Limit <= 0 {
		warnings = append(warnings, fmt.Sprintf("vector limit %d will return no results", c.Vector.Limit))
	}

	if c.Memory.TTL < 0 {
		warnings = append(warnings, fmt.Sprintf("memory ttl %s is negative", c.Memory.TTL))
	}

	return warnings
}

// Load reads configuration from file and environment. An empty path loads
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SHOPCLERK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it even without a
// config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.embed_model", cfg.LLM.EmbedModel)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)
	v.SetDefault("llm.max_retries", cfg.LLM.MaxRetries)
	v.SetDefault("vector.host", cfg.Vector.Host)
	v.SetDefault("vector.port", cfg.Vector.Port)
	v.SetDefault("vector.collection", cfg.Vector.Collection)
	v.SetDefault("vector.vector_size", cfg.Vector.VectorSize)
	v.SetDefault("vector.threshold", cfg.Vector.Threshold)
	v.SetDefault("vector.limit", cfg.Vector.Limit)
	v.SetDefault("vector.batch_size", cfg.Vector.BatchSize)
	v.SetDefault("memory.addr", cfg.Memory.Addr)
	v.SetDefault("memory.password", cfg.Memory.Password)
	v.SetDefault("memory.db", cfg.Memory.DB)
	v.SetDefault("memory.ttl", cfg.Memory.TTL)
	v.SetDefault("memory.key_prefix", cfg.Memory.KeyPrefix)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.health_addr", cfg.Server.HealthAddr)
	v.SetDefault("temporal.host", cfg.Temporal.Host)
	v.SetDefault("temporal.namespace", cfg.Temporal.Namespace)
	v.SetDefault("temporal.task_queue", cfg.Temporal.TaskQueue)
	v.SetDefault("tracing.endpoint", cfg.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", cfg.Tracing.ServiceName)
	v.SetDefault("tracing.environment", cfg.Tracing.Environment)
	v.SetDefault("tracing.sample_rate", cfg.Tracing.SampleRate)
	v.SetDefault("audit.enabled", cfg.Audit.Enabled)
	v.SetDefault("audit.path", cfg.Audit.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("secrets.provider", cfg.Secrets.Provider)
	v.SetDefault("secrets.file_path", cfg.Secrets.FilePath)
}
