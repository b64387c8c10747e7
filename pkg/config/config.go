package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Lifecycle LifecycleConfig
	Milestone MilestoneQueueConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the secret shared with the token issuer.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LifecycleConfig tunes the rule catalog and the transition engine.
type LifecycleConfig struct {
	CatalogTTL        time.Duration
	StoreTimeout      time.Duration
	TransitionRetries int
	ShareCatalog      bool
	CacheNamespace    string
}

// MilestoneQueueConfig sizes the background milestone event workers.
type MilestoneQueueConfig struct {
	Workers    int
	BufferSize int
	Retries       int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:            v.GetString("DB_HOST"),
		Port:            v.GetInt("DB_PORT"),
		User:            v.GetString("DB_USER"),
		Password:        v.GetString("DB_PASSWORD"),
		Name:            v.GetString("DB_NAME"),
		SSLMode:         v.GetString("DB_SSL_MODE"),
		MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: parseDuration(v.GetString("DB_CONN_MAX_LIFETIME"), 30*time.Minute),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lifecycle = LifecycleConfig{
		CatalogTTL:        parseDuration(v.GetString("LIFECYCLE_CATALOG_TTL"), 5*time.Minute),
		StoreTimeout:      parseDuration(v.GetString("LIFECYCLE_STORE_TIMEOUT"), 3*time.Second),
		TransitionRetries: v.GetInt("LIFECYCLE_TRANSITION_RETRIES"),
		ShareCatalog:      v.GetBool("LIFECYCLE_CATALOG_REDIS"),
		CacheNamespace:    v.GetString("LIFECYCLE_CACHE_NAMESPACE"),
	}

	cfg.Milestone = MilestoneQueueConfig{
		Workers:       v.GetInt("MILESTONE_QUEUE_WORKERS"),
		BufferSize:    v.GetInt("MILESTONE_QUEUE_BUFFER"),
		Retries:       v.GetInt("MILESTONE_QUEUE_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("MILESTONE_QUEUE_RETRY_DELAY"), time.Second),
		MaxRetryDelay: parseDuration(v.GetString("MILESTONE_QUEUE_MAX_RETRY_DELAY"), 30*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "university_lifecycle")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LIFECYCLE_CATALOG_TTL", "5m")
	v.SetDefault("LIFECYCLE_STORE_TIMEOUT", "3s")
	v.SetDefault("LIFECYCLE_TRANSITION_RETRIES", 3)
	v.SetDefault("LIFECYCLE_CATALOG_REDIS", true)
	v.SetDefault("LIFECYCLE_CACHE_NAMESPACE", "univ")

	v.SetDefault("MILESTONE_QUEUE_WORKERS", 2)
	v.SetDefault("MILESTONE_QUEUE_BUFFER", 64)
	v.SetDefault("MILESTONE_QUEUE_RETRIES", 5)
	v.SetDefault("MILESTONE_QUEUE_RETRY_DELAY", "1s")
	v.SetDefault("MILESTONE_QUEUE_MAX_RETRY_DELAY", "30s")
}

// isMissingFile tolerates an absent .env, which viper reports as a path
// error when SetConfigFile is used.
func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
