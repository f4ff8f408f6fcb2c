package config

import (
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

// TestDefaults verifies the defaults when only the store location is given.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(envMap(map[string]string{
		"PG_HOST":    "localhost",
		"PG_DB_NAME": "brain",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":3000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":3000")
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	want := "host=localhost port=5432 user= password= dbname=brain sslmode=disable"
	if cfg.Store.PostgresDSN != want {
		t.Errorf("Store.PostgresDSN = %q, want %q", cfg.Store.PostgresDSN, want)
	}
	if cfg.Embedding.Model != "text-embedding-ada-002" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 || cfg.Store.Dimensions != 1536 {
		t.Errorf("dimensions = %d/%d, want 1536", cfg.Embedding.Dimensions, cfg.Store.Dimensions)
	}
	if cfg.Conflict.Threshold != 0.85 {
		t.Errorf("Conflict.Threshold = %v, want 0.85", cfg.Conflict.Threshold)
	}
	if cfg.Conflict.Limit != 5 {
		t.Errorf("Conflict.Limit = %d, want 5", cfg.Conflict.Limit)
	}
	if cfg.Server.SessionTTL != 30*time.Minute {
		t.Errorf("Server.SessionTTL = %v, want 30m", cfg.Server.SessionTTL)
	}
	if cfg.Embedding.Timeout != 10*time.Second || cfg.Search.Timeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Embedding.Timeout, cfg.Search.Timeout)
	}
}

// TestEnvOverride verifies that every kind of value is parsed from the environment.
func TestEnvOverride(t *testing.T) {
	cfg, err := loadWith(envMap(map[string]string{
		"STORE_DRIVER":         "sqlite",
		"SQLITE_PATH":          "/tmp/brain.db",
		"SERVER_ADDR":          "127.0.0.1:8080",
		"OPENAI_API_KEY":       "sk-test",
		"EMBEDDING_MODEL":      "text-embedding-3-small",
		"EMBEDDING_DIMENSIONS": "512",
		"EMBEDDING_TIMEOUT":    "3s",
		"SEARCH_TIMEOUT":       "750ms",
		"UPLOAD_SESSION_TTL":   "10m",
		"CONFLICT_THRESHOLD":   "0.5",
		"CONFLICT_LIMIT":       "10",
		"LOG_LEVEL":            "DEBUG",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Driver != "sqlite" || cfg.Store.SQLitePath != "/tmp/brain.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Embedding.APIKey != "sk-test" {
		t.Errorf("Embedding.APIKey = %q", cfg.Embedding.APIKey)
	}
	if cfg.Store.Dimensions != 512 {
		t.Errorf("Store.Dimensions = %d, want 512", cfg.Store.Dimensions)
	}
	if cfg.Embedding.Timeout != 3*time.Second {
		t.Errorf("Embedding.Timeout = %v", cfg.Embedding.Timeout)
	}
	if cfg.Search.Timeout != 750*time.Millisecond {
		t.Errorf("Search.Timeout = %v", cfg.Search.Timeout)
	}
	if cfg.Server.SessionTTL != 10*time.Minute {
		t.Errorf("Server.SessionTTL = %v, want 10m", cfg.Server.SessionTTL)
	}
	if cfg.Conflict.Threshold != 0.5 || cfg.Conflict.Limit != 10 {
		t.Errorf("Conflict = %+v", cfg.Conflict)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestPostgresDSNPreferred(t *testing.T) {
	cfg, err := loadWith(envMap(map[string]string{
		"PG_DSN":  "postgres://u:p@db:5432/brain",
		"PG_HOST": "ignored",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.PostgresDSN != "postgres://u:p@db:5432/brain" {
		t.Errorf("PostgresDSN = %q", cfg.Store.PostgresDSN)
	}
}

func TestMissingPostgresLocation(t *testing.T) {
	_, err := loadWith(envMap(nil))
	if err == nil {
		t.Fatal("expected error for missing postgres settings, got nil")
	}
	if !strings.Contains(err.Error(), "missing required config") {
		t.Errorf("error = %q", err)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"threshold out of range": {"STORE_DRIVER": "sqlite", "CONFLICT_THRESHOLD": "1.5"},
		"bad integer":            {"STORE_DRIVER": "sqlite", "CONFLICT_LIMIT": "five"},
		"bad duration":           {"STORE_DRIVER": "sqlite", "SEARCH_TIMEOUT": "soon"},
		"unknown driver":         {"STORE_DRIVER": "mysql"},
		"unknown log format":     {"STORE_DRIVER": "sqlite", "LOG_FORMAT": "xml"},
	}
	for name, env := range cases {
		if _, err := loadWith(envMap(env)); err == nil {
			t.Errorf("%s: expected error, got nil", name)
		}
	}
}
