package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	OpenAI    OpenAIConfig
	Catalog   CatalogConfig
	Matching  MatchingConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// OpenAIConfig holds Azure OpenAI configuration. An empty API key disables
// both oracles and the local fallbacks are used.
type OpenAIConfig struct {
	Endpoint          string        `mapstructure:"endpoint"`
	APIKey            string        `mapstructure:"api_key"`
	Deployment        string        `mapstructure:"deployment"`
	APIVersion        string        `mapstructure:"api_version"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Debug             bool          `mapstructure:"debug"`
}

// Enabled reports whether an API key is configured
func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}

// CatalogConfig holds product catalog configuration
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// MatchingConfig holds candidate generation and resolution thresholds
type MatchingConfig struct {
	AdmissionThreshold float64       `mapstructure:"admission_threshold"`
	MaxCandidates      int           `mapstructure:"max_candidates"`
	PreOracleCertainty float64       `mapstructure:"pre_oracle_certainty"`
	OracleCertainty    float64       `mapstructure:"oracle_certainty"`
	OracleTimeout      time.Duration `mapstructure:"oracle_timeout"`
	MaxOptionsShown    int           `mapstructure:"max_options_shown"`
}

// SessionConfig holds session store configuration
type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // Requests per minute per client IP
	Burst int `mapstructure:"burst"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/marketbuddy/")

	// Environment variable settings: openai.api_key -> MARKETBUDDY_OPENAI_API_KEY
	v.SetEnvPrefix("MARKETBUDDY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// OpenAI defaults; every key needs a default for env lookup to apply
	v.SetDefault("openai.endpoint", "")
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.deployment", "")
	v.SetDefault("openai.api_version", "2023-05-15")
	v.SetDefault("openai.timeout", "30s")
	v.SetDefault("openai.requests_per_second", 5.0)
	v.SetDefault("openai.burst", 10)
	v.SetDefault("openai.debug", false)

	// Catalog defaults
	v.SetDefault("catalog.path", "data/catalog.csv")

	// Matching defaults
	v.SetDefault("matching.admission_threshold", 0.4)
	v.SetDefault("matching.max_candidates", 5)
	v.SetDefault("matching.pre_oracle_certainty", 0.9)
	v.SetDefault("matching.oracle_certainty", 0.8)
	v.SetDefault("matching.oracle_timeout", "20s")
	v.SetDefault("matching.max_options_shown", 5)

	// Session defaults
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.cleanup_interval", "10m")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)
	v.SetDefault("ratelimit.burst", 20)

	// Log defaults
	v.SetDefault("log.level", "info")
}

// validate validates the configuration
func validate(config *Config) error {
	m := config.Matching
	thresholds := map[string]float64{
		"admission_threshold":  m.AdmissionThreshold,
		"pre_oracle_certainty": m.PreOracleCertainty,
		"oracle_certainty":     m.OracleCertainty,
	}
	for name, value := range thresholds {
		if value < 0 || value > 1 {
			return fmt.Errorf("matching.%s must be between 0 and 1, got: %v", name, value)
		}
	}

	if m.PreOracleCertainty < m.OracleCertainty {
		return fmt.Errorf("matching.pre_oracle_certainty (%v) must be >= matching.oracle_certainty (%v)",
			m.PreOracleCertainty, m.OracleCertainty)
	}

	if m.MaxCandidates < 1 {
		return fmt.Errorf("matching.max_candidates must be at least 1, got: %d", m.MaxCandidates)
	}

	if m.MaxOptionsShown < 3 || m.MaxOptionsShown > 5 {
		return fmt.Errorf("matching.max_options_shown must be between 3 and 5, got: %d", m.MaxOptionsShown)
	}

	if config.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required (set MARKETBUDDY_CATALOG_PATH)")
	}

	if config.OpenAI.Enabled() {
		if config.OpenAI.Endpoint == "" {
			return fmt.Errorf("OpenAI endpoint is required when an API key is set (set MARKETBUDDY_OPENAI_ENDPOINT)")
		}
		if config.OpenAI.Deployment == "" {
			return fmt.Errorf("OpenAI deployment is required when an API key is set (set MARKETBUDDY_OPENAI_DEPLOYMENT)")
		}
	}

	switch strings.ToLower(config.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error, got: %s", config.Log.Level)
	}

	return nil
}
