package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for lexcascade.
type Config struct {
	BackendsPath string `mapstructure:"backends_path"`
	Task         string `mapstructure:"task"`

	Workers  int    `mapstructure:"workers"`
	Parallel bool   `mapstructure:"parallel"`
	Strategy string `mapstructure:"strategy"`

	RPS         float64 `mapstructure:"rps"`
	HTTPTimeout string  `mapstructure:"http_timeout"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	CacheDir string `mapstructure:"cache_dir"`
	CacheTTL string `mapstructure:"cache_ttl"`
	NoCache  bool   `mapstructure:"no_cache"`

	LogLevel string `mapstructure:"log_level"`

	ErrorDriven ErrorDrivenConfig `mapstructure:"error_driven"`
	RateLimited RateLimitedConfig `mapstructure:"rate_limited"`

	Vertex     VertexConfig   `mapstructure:"vertex"`
	Gemini     ProviderConfig `mapstructure:"gemini"`
	Groq       ProviderConfig `mapstructure:"groq"`
	OpenRouter ProviderConfig `mapstructure:"openrouter"`
	Ollama     ProviderConfig `mapstructure:"ollama"`
}

// ErrorDrivenConfig tunes the reactive cascade strategy.
type ErrorDrivenConfig struct {
	CooldownThreshold int `mapstructure:"cooldown_threshold"`
}

// RateLimitedConfig tunes the preemptive cascade strategy.
type RateLimitedConfig struct {
	Cooldown string `mapstructure:"cooldown"`
	Window   string `mapstructure:"window"`
}

// ProviderConfig holds API-key providers' settings.
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// VertexConfig holds Vertex AI settings (ADC auth, no API key).
type VertexConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
}

// Load reads configuration from file, environment, and defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("backends_path", "backends.yaml")
	v.SetDefault("task", "reporting")
	v.SetDefault("workers", 1)
	v.SetDefault("parallel", false)
	v.SetDefault("rps", 10)
	v.SetDefault("http_timeout", "120s")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("cache_ttl", "168h")
	v.SetDefault("no_cache", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("error_driven.cooldown_threshold", 100)
	v.SetDefault("rate_limited.cooldown", "10m")
	v.SetDefault("rate_limited.window", "1m")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ollama.base_url", "http://localhost:11434")
	v.SetDefault("vertex.location", "us-central1")

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/lexcascade")
	}

	// Environment variables
	v.SetEnvPrefix("LEXCASCADE")
	v.AutomaticEnv()

	// Bind specific env vars
	_ = v.BindEnv("strategy", "LLM_CASCADE_STRATEGY")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("ollama.base_url", "OLLAMA_BASE_URL")
	_ = v.BindEnv("vertex.project", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("vertex.location", "GOOGLE_CLOUD_LOCATION")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Resolve backends path relative to the config file's directory.
	if !filepath.IsAbs(cfg.BackendsPath) && v.ConfigFileUsed() != "" {
		cfg.BackendsPath = filepath.Join(filepath.Dir(v.ConfigFileUsed()), cfg.BackendsPath)
	}

	return &cfg, nil
}

// Duration parses a duration-typed config field, falling back when unset or
// malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func defaultCacheDir() string {
	return filepath.Join(".lexcascade", "cache")
}
