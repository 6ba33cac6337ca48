package config

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("SNOWFLAKE_ACCOUNT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.StoreBackend != "yaml" {
		t.Errorf("StoreBackend = %s, want yaml", cfg.StoreBackend)
	}
	if cfg.BaseCurrency != "EUR" {
		t.Errorf("BaseCurrency = %s, want EUR", cfg.BaseCurrency)
	}
	if cfg.ChunkSize != 1000 {
		t.Errorf("ChunkSize = %d, want 1000", cfg.ChunkSize)
	}
	if cfg.SessionTTL.Hours() != 2 {
		t.Errorf("SessionTTL = %v, want 2h", cfg.SessionTTL)
	}
	if cfg.Snowflake != nil {
		t.Error("Snowflake config loaded without SNOWFLAKE_ACCOUNT")
	}
}

func TestLoadConfigPostgresBackendRequiresCredentials(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_USER", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig succeeded without PostgreSQL credentials")
	}
}

func TestLoadConfigPostgresBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("POSTGRES_USER", "vatflow")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "vatflow")
	t.Setenv("SNOWFLAKE_ACCOUNT", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Postgres == nil {
		t.Fatal("Postgres config missing")
	}
	if cfg.Postgres.Host != "localhost" || cfg.Postgres.Port != 5432 {
		t.Errorf("unexpected defaults: %s:%d", cfg.Postgres.Host, cfg.Postgres.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			StoreBackend:   "yaml",
			HeadersFile:    "headers.yaml",
			RulesFile:      "rules.yaml",
			BaseCurrency:   "EUR",
			ChunkSize:      1000,
			WorkerPoolSize: 4,
			SessionTTL:     1,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.BaseCurrency = "EURO"
	if err := cfg.Validate(); err == nil {
		t.Error("4-letter base currency accepted")
	}

	cfg = base()
	cfg.ChunkSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero chunk size accepted")
	}

	cfg = base()
	cfg.StoreBackend = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown backend accepted")
	}
}

func TestNotifyEnabled(t *testing.T) {
	cfg := &Config{SMTPHost: "smtp.example.com", SMTPFrom: "a@b.c", ReviewRecipient: "ops@b.c"}
	if !cfg.NotifyEnabled() {
		t.Error("complete SMTP config reported disabled")
	}
	cfg.ReviewRecipient = ""
	if cfg.NotifyEnabled() {
		t.Error("incomplete SMTP config reported enabled")
	}
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := &PostgresConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", Database: "vatflow", SSLMode: "disable",
	}
	want := "host=db port=5432 user=u password=p dbname=vatflow sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}
