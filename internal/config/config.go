package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Trivia     TriviaConfig     `mapstructure:"trivia"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

// ServerConfig describes the remote knowledge service.
type ServerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ClientTimeout  time.Duration `mapstructure:"client_timeout"`
}

type TriviaConfig struct {
	DefaultQuestions int `mapstructure:"default_questions"`
	MaxQuestions     int `mapstructure:"max_questions"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Enable environment variable substitution
	viper.AutomaticEnv()

	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Set environment variable overrides
	viper.SetEnvPrefix("") // No prefix
	viper.BindEnv("server.base_url", "CHATBOT_SERVER_URL")
	viper.BindEnv("logging.level", "CHATBOT_LOG_LEVEL")
	viper.BindEnv("monitoring.metrics.port", "CHATBOT_METRICS_PORT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.request_timeout", 30*time.Second)
	viper.SetDefault("server.client_timeout", 120*time.Second)
	viper.SetDefault("trivia.default_questions", 5)
	viper.SetDefault("trivia.max_questions", 20)
	viper.SetDefault("cache.ttl", 10*time.Minute)
	viper.SetDefault("cache.max_size", 1000)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("monitoring.metrics.path", "/metrics")
	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en"})
}

func validateConfig(cfg *Config) error {
	if cfg.Server.BaseURL == "" {
		return fmt.Errorf("server base URL is required")
	}
	if !strings.HasPrefix(cfg.Server.BaseURL, "http://") && !strings.HasPrefix(cfg.Server.BaseURL, "https://") {
		return fmt.Errorf("server base URL must be an http(s) address: %s", cfg.Server.BaseURL)
	}
	if cfg.Trivia.DefaultQuestions <= 0 {
		return fmt.Errorf("trivia default question count must be positive")
	}
	return nil
}
