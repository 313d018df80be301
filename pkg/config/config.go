package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	LLM        LLMConfig
	Generation GenerationConfig
	Cache      CacheConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret      string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	AIRequests    int // per user, AI routes only
}

type CORSConfig struct {
	AllowedOrigins []string
}

// LLMConfig selects the completion provider behind the chat proxy.
type LLMConfig struct {
	Provider       string // openrouter or gemini
	APIKey         string
	Model          string
	BaseURL        string
	TimeoutSeconds int
	MaxRetries     int
	Temperature    float64
	MaxTokens      int
}

type GenerationConfig struct {
	DefaultTarget     int
	Ceiling           int
	PromptBatchSize   int
	DocumentBatchSize int
	ListBatchSize     int
	ChunkSize         int
	GapFillRounds     int
	WorkerConcurrency int
	PurgeCron         string
	RetentionHours    int
}

type CacheConfig struct {
	PublicCardsSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (g *GenerationConfig) Retention() time.Duration {
	return time.Duration(g.RetentionHours) * time.Hour
}

func (c *CacheConfig) PublicCardsTTL() time.Duration {
	return time.Duration(c.PublicCardsSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3001)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "medpocket")
	v.SetDefault("DATABASE_PASSWORD", "medpocket_secret")
	v.SetDefault("DATABASE_NAME", "medpocket")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_EXPIRY_HOURS", 168)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_AI_REQUESTS", 20)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("LLM_PROVIDER", "openrouter")
	v.SetDefault("LLM_MODEL", "anthropic/claude-3.5-sonnet")
	v.SetDefault("LLM_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("LLM_TIMEOUT_SECONDS", 120)
	v.SetDefault("LLM_MAX_RETRIES", 3)
	v.SetDefault("LLM_TEMPERATURE", 0.7)
	v.SetDefault("LLM_MAX_TOKENS", 16000)
	v.SetDefault("GENERATION_DEFAULT_TARGET", 50)
	v.SetDefault("GENERATION_CEILING", 200)
	v.SetDefault("GENERATION_PROMPT_BATCH_SIZE", 20)
	v.SetDefault("GENERATION_DOCUMENT_BATCH_SIZE", 20)
	v.SetDefault("GENERATION_LIST_BATCH_SIZE", 10)
	v.SetDefault("GENERATION_CHUNK_SIZE", 15000)
	v.SetDefault("GENERATION_GAP_FILL_ROUNDS", 3)
	v.SetDefault("GENERATION_WORKER_CONCURRENCY", 4)
	v.SetDefault("GENERATION_PURGE_CRON", "0 3 * * *")
	v.SetDefault("GENERATION_RETENTION_HOURS", 72)
	v.SetDefault("PUBLIC_CARDS_CACHE_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			AIRequests:    v.GetInt("RATE_LIMIT_AI_REQUESTS"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(v.GetString("FRONTEND_URL")),
		},
		LLM: LLMConfig{
			Provider:       strings.ToLower(v.GetString("LLM_PROVIDER")),
			APIKey:         firstNonEmpty(v.GetString("LLM_API_KEY"), v.GetString("OPENROUTER_API_KEY")),
			Model:          v.GetString("LLM_MODEL"),
			BaseURL:        v.GetString("LLM_BASE_URL"),
			TimeoutSeconds: v.GetInt("LLM_TIMEOUT_SECONDS"),
			MaxRetries:     v.GetInt("LLM_MAX_RETRIES"),
			Temperature:    v.GetFloat64("LLM_TEMPERATURE"),
			MaxTokens:      v.GetInt("LLM_MAX_TOKENS"),
		},
		Generation: GenerationConfig{
			DefaultTarget:     v.GetInt("GENERATION_DEFAULT_TARGET"),
			Ceiling:           v.GetInt("GENERATION_CEILING"),
			PromptBatchSize:   v.GetInt("GENERATION_PROMPT_BATCH_SIZE"),
			DocumentBatchSize: v.GetInt("GENERATION_DOCUMENT_BATCH_SIZE"),
			ListBatchSize:     v.GetInt("GENERATION_LIST_BATCH_SIZE"),
			ChunkSize:         v.GetInt("GENERATION_CHUNK_SIZE"),
			GapFillRounds:     v.GetInt("GENERATION_GAP_FILL_ROUNDS"),
			WorkerConcurrency: v.GetInt("GENERATION_WORKER_CONCURRENCY"),
			PurgeCron:         v.GetString("GENERATION_PURGE_CRON"),
			RetentionHours:    v.GetInt("GENERATION_RETENTION_HOURS"),
		},
		Cache: CacheConfig{
			PublicCardsSeconds: v.GetInt("PUBLIC_CARDS_CACHE_SECONDS"),
		},
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
