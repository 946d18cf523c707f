// Package config provides unified configuration loading for the voice agent backend.
// Supports YAML files, .env files, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the voice agent backend.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Notify        NotifyConfig        `yaml:"notify"`
	Auth          AuthConfig          `yaml:"auth"`
	Business      BusinessConfig      `yaml:"business"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds answer cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// RetrievalConfig holds resolution cascade settings.
type RetrievalConfig struct {
	ResultWindow       int            `yaml:"result_window"`
	StageTimeout       time.Duration  `yaml:"stage_timeout"`
	Budget             time.Duration  `yaml:"budget"`
	DiagnosticSentinel string         `yaml:"diagnostic_sentinel"`
	FallbackAnswer     string         `yaml:"fallback_answer"`
	Semantic           SemanticConfig `yaml:"semantic"`
}

// SemanticConfig controls the optional embedding-backed cascade stage.
type SemanticConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Threshold  float64 `yaml:"threshold"`
	MatchCount int     `yaml:"match_count"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig holds email notification settings.
type NotifyConfig struct {
	ResendAPIKey string        `yaml:"resend_api_key"`
	From         string        `yaml:"from"`
	CallbackTo   []string      `yaml:"callback_to"`
	MessageTo    []string      `yaml:"message_to"`
	TimeZone     string        `yaml:"time_zone"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
}

// AuthConfig holds admin authentication settings.
type AuthConfig struct {
	JWTSecret  string             `yaml:"jwt_secret"`
	SessionTTL time.Duration      `yaml:"session_ttl"`
	Provider   string             `yaml:"provider"` // supabase or static
	Supabase   SupabaseAuthConfig `yaml:"supabase"`
	Static     []StaticUser       `yaml:"static_users"`
}

// SupabaseAuthConfig holds the external identity provider settings.
type SupabaseAuthConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// StaticUser is a locally configured admin account.
type StaticUser struct {
	ID           string `yaml:"id"`
	Email        string `yaml:"email"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// BusinessConfig holds the values spoken back to callers.
type BusinessConfig struct {
	Name  string `yaml:"name"`
	Phone string `yaml:"phone"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads .env, then the YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with defaults for local development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             4000,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   10 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/voice-agent.db",
				MaxOpenConns: 1,
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			Enabled:    true,
			TTL:        5 * time.Minute,
			MaxEntries: 5000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "va:",
			},
		},
		Retrieval: RetrievalConfig{
			ResultWindow:       5,
			StageTimeout:       time.Second,
			Budget:             3 * time.Second,
			DiagnosticSentinel: "TEST",
			Semantic: SemanticConfig{
				Enabled:    false,
				Threshold:  0.78,
				MatchCount: 3,
			},
		},
		Embedding: EmbeddingConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "text-embedding-3-small",
			Timeout: 5 * time.Second,
		},
		Notify: NotifyConfig{
			From:        "Axmen Recycling <onboarding@resend.dev>",
			TimeZone:    "America/Denver",
			SendTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			SessionTTL: 7 * 24 * time.Hour,
			Provider:   "supabase",
			Supabase: SupabaseAuthConfig{
				Timeout: 10 * time.Second,
			},
		},
		Business: BusinessConfig{
			Name:  "Axmen Recycling",
			Phone: "406-543-1905",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "voice-agent",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver requires a dsn")
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Retrieval.ResultWindow < 1 || c.Retrieval.ResultWindow > 5 {
		return fmt.Errorf("result_window must be between 1 and 5")
	}

	if c.Retrieval.Budget < c.Retrieval.StageTimeout {
		return fmt.Errorf("retrieval budget %s is shorter than stage_timeout %s", c.Retrieval.Budget, c.Retrieval.StageTimeout)
	}

	if c.Retrieval.Semantic.Threshold < 0 || c.Retrieval.Semantic.Threshold > 1 {
		return fmt.Errorf("semantic threshold must be 0-1, got %f", c.Retrieval.Semantic.Threshold)
	}

	if c.Auth.Provider != "supabase" && c.Auth.Provider != "static" {
		return fmt.Errorf("invalid auth provider: %s", c.Auth.Provider)
	}

	if c.Business.Phone == "" {
		return fmt.Errorf("business phone is required for the fallback answer")
	}

	return nil
}

// DatabaseDSN returns the connection string for the configured driver.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// FallbackAnswer returns the configured no-match sentence, or the default built
// from the business phone line.
func (c *Config) FallbackAnswer() string {
	if c.Retrieval.FallbackAnswer != "" {
		return c.Retrieval.FallbackAnswer
	}
	return fmt.Sprintf("I don't have specific information about that. Please call us at %s and our team will be happy to help you.", c.Business.Phone)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	// PORT is what most PaaS runtimes inject.
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}

	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Auth.Supabase.URL = v
	}

	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		cfg.Auth.Supabase.APIKey = v
	}

	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Notify.ResendAPIKey = v
	}

	if v := os.Getenv("NOTIFY_TO"); v != "" {
		recipients := splitList(v)
		cfg.Notify.CallbackTo = recipients
		cfg.Notify.MessageTo = recipients
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}

	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}

	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}

	if v := os.Getenv("SEMANTIC_ENABLED"); v != "" {
		cfg.Retrieval.Semantic.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("BUSINESS_PHONE"); v != "" {
		cfg.Business.Phone = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
