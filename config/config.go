// Package config gathers the service settings from the environment.
//
// Values are read from process environment variables. cmd loads an optional
// .env file first, so a local .env works the same as exported variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server    Server
	Store     Store
	Embedding Embedding
	Search    Search
	Conflict  Conflict
	Log       Log
}

type Server struct {
	Addr           string `validate:"required"`
	APIToken       string
	MaxUploadBytes int           `validate:"gt=0"`
	SessionTTL     time.Duration `validate:"gt=0"`
}

type Store struct {
	Driver      string `validate:"oneof=postgres sqlite"`
	PostgresDSN string
	SQLitePath  string
	Dimensions  int `validate:"gt=0"`
}

type Embedding struct {
	APIKey     string
	BaseURL    string        `validate:"omitempty,url"`
	Model      string        `validate:"required"`
	Dimensions int           `validate:"gte=0"`
	Timeout    time.Duration `validate:"gt=0"`
	MaxTokens  int           `validate:"gte=0"`
}

type Search struct {
	Timeout time.Duration `validate:"gt=0"`
}

type Conflict struct {
	Threshold float64 `validate:"gte=0,lte=1"`
	Limit     int     `validate:"gte=1"`
}

type Log struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=text json"`
}

func defaults() Config {
	return Config{
		Server: Server{
			Addr:           ":3000",
			MaxUploadBytes: 20 << 20,
			SessionTTL:     30 * time.Minute,
		},
		Store: Store{
			Driver:     "postgres",
			SQLitePath: "secondbrain.db",
			Dimensions: 1536,
		},
		Embedding: Embedding{
			BaseURL:    "https://api.openai.com/v1",
			Model:      "text-embedding-ada-002",
			Dimensions: 1536,
			Timeout:    10 * time.Second,
			MaxTokens:  8191,
		},
		Search: Search{
			Timeout: 5 * time.Second,
		},
		Conflict: Conflict{
			Threshold: 0.85,
			Limit:     5,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration from the environment and validates it.
// The embedding credential is not checked here; the embedding client
// refuses to start without it.
func Load() (Config, error) {
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()
	env := envReader{getenv: getenv}

	env.str("SERVER_ADDR", &cfg.Server.Addr)
	env.str("API_TOKEN", &cfg.Server.APIToken)
	env.integer("MAX_UPLOAD_BYTES", &cfg.Server.MaxUploadBytes)
	env.duration("UPLOAD_SESSION_TTL", &cfg.Server.SessionTTL)

	env.str("STORE_DRIVER", &cfg.Store.Driver)
	env.str("SQLITE_PATH", &cfg.Store.SQLitePath)
	cfg.Store.PostgresDSN = postgresDSN(getenv)

	env.str("OPENAI_API_KEY", &cfg.Embedding.APIKey)
	env.str("EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	env.str("EMBEDDING_MODEL", &cfg.Embedding.Model)
	env.integer("EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	env.duration("EMBEDDING_TIMEOUT", &cfg.Embedding.Timeout)
	env.integer("EMBEDDING_MAX_TOKENS", &cfg.Embedding.MaxTokens)
	if cfg.Embedding.Dimensions > 0 {
		cfg.Store.Dimensions = cfg.Embedding.Dimensions
	}

	env.duration("SEARCH_TIMEOUT", &cfg.Search.Timeout)

	env.number("CONFLICT_THRESHOLD", &cfg.Conflict.Threshold)
	env.integer("CONFLICT_LIMIT", &cfg.Conflict.Limit)

	env.str("LOG_LEVEL", &cfg.Log.Level)
	env.str("LOG_FORMAT", &cfg.Log.Format)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if env.err != nil {
		return Config{}, env.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and the driver specific settings.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			parts := make([]string, 0, len(errs))
			for _, e := range errs {
				parts = append(parts, fmt.Sprintf("%s failed on '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(parts, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("missing required config: PG_DSN or PG_HOST/PG_DB_NAME for the postgres store")
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return fmt.Errorf("missing required config: SQLITE_PATH for the sqlite store")
	}
	return nil
}

// SlogLevel maps the configured level name to a slog.Level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// postgresDSN prefers PG_DSN and otherwise assembles a keyword/value string
// from the PG_* variables.
func postgresDSN(getenv func(string) string) string {
	if dsn := getenv("PG_DSN"); dsn != "" {
		return dsn
	}
	host, db := getenv("PG_HOST"), getenv("PG_DB_NAME")
	if host == "" || db == "" {
		return ""
	}
	port := getenv("PG_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, getenv("PG_USER"), getenv("PG_PASS"), db)
}

// envReader applies non-empty variables to config fields and keeps the first
// parse error.
type envReader struct {
	getenv func(string) string
	err    error
}

func (r *envReader) str(key string, dst *string) {
	if v := r.getenv(key); v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid integer for %s: %w", key, err))
		return
	}
	*dst = i
}

func (r *envReader) number(key string, dst *float64) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(fmt.Errorf("invalid number for %s: %w", key, err))
		return
	}
	*dst = f
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v := r.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(fmt.Errorf("invalid duration for %s: %w", key, err))
		return
	}
	*dst = d
}

func (r *envReader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}
