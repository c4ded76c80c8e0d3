package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Provider  ProviderConfig
	Chat      ChatConfig
	Ingestion IngestionConfig
	Session   SessionConfig
	Redis     RedisConfig
	SQLite    SQLiteConfig
	Breaker   BreakerConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

type ProviderConfig struct {
	BaseURL    string
	APIVersion string
	APIKey     string
	TimeoutSec int
}

type ChatConfig struct {
	Model            string
	ThinkingBudget   int
	SystemPromptFile string
	HistoryLimit     int
	RetryAttempts    int
}

type IngestionConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
	TempDir      string
	MaxFileSize  int
}

type SessionConfig struct {
	Backend string
}

type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

type SQLiteConfig struct {
	Enabled bool
	Path    string
}

type BreakerConfig struct {
	FailureThreshold uint32
	SuccessThreshold uint32
	TimeoutSec       int
}

type RateLimitConfig struct {
	RequestsPerMinute int
}

type MetricsConfig struct {
	Enabled bool
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default search paths
// when path is empty. Environment variables win over file values.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/dealroom")
	}

	v.SetEnvPrefix("DEALROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.BindEnv("provider.apiKey", "DEALROOM_PROVIDER_APIKEY", "GEMINI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}
	if err := v.BindEnv("chat.model", "DEALROOM_CHAT_MODEL", "GEMINI_MODEL"); err != nil {
		return nil, fmt.Errorf("failed to bind model env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Session.Backend {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("invalid session backend %q: want memory, redis or sqlite", c.Session.Backend)
	}
	if c.Ingestion.PollInterval <= 0 {
		return fmt.Errorf("ingestion.pollInterval must be positive, got %s", c.Ingestion.PollInterval)
	}
	if c.Ingestion.MaxWait < c.Ingestion.PollInterval {
		return fmt.Errorf("ingestion.maxWait (%s) is shorter than ingestion.pollInterval (%s)",
			c.Ingestion.MaxWait, c.Ingestion.PollInterval)
	}
	if c.Chat.HistoryLimit < 0 {
		return fmt.Errorf("chat.historyLimit must not be negative, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.RetryAttempts < 1 {
		return fmt.Errorf("chat.retryAttempts must be at least 1, got %d", c.Chat.RetryAttempts)
	}
	return nil
}

// SystemPrompt returns the contents of chat.systemPromptFile, or "" when unset.
func (c *ChatConfig) SystemPrompt() (string, error) {
	if c.SystemPromptFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.SystemPromptFile)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 900)
	v.SetDefault("server.bodyLimit", 104857600)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.development", false)

	v.SetDefault("provider.baseURL", "https://generativelanguage.googleapis.com")
	v.SetDefault("provider.apiVersion", "v1beta")
	v.SetDefault("provider.apiKey", "")
	v.SetDefault("provider.timeoutSec", 300)

	v.SetDefault("chat.model", "gemini-2.5-flash")
	v.SetDefault("chat.thinkingBudget", -1)
	v.SetDefault("chat.systemPromptFile", "")
	v.SetDefault("chat.historyLimit", 0)
	v.SetDefault("chat.retryAttempts", 1)

	v.SetDefault("ingestion.pollInterval", "1s")
	v.SetDefault("ingestion.maxWait", "10m")
	v.SetDefault("ingestion.tempDir", "")
	v.SetDefault("ingestion.maxFileSize", 104857600)

	v.SetDefault("session.backend", "memory")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.keyPrefix", "dealroom")

	v.SetDefault("sqlite.enabled", false)
	v.SetDefault("sqlite.path", "./data/dealroom.db")

	v.SetDefault("breaker.failureThreshold", 5)
	v.SetDefault("breaker.successThreshold", 2)
	v.SetDefault("breaker.timeoutSec", 30)

	v.SetDefault("rateLimit.requestsPerMinute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("metrics.enabled", true)
}
