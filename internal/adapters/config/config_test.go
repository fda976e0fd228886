package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("DB_USER", "pulse")
	os.Setenv("DB_PASSWORD", "secret")
	t.Cleanup(func() {
		os.Unsetenv("DB_USER")
		os.Unsetenv("DB_PASSWORD")
	})
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.MinBaselineSamples != 14 {
		t.Errorf("expected default min baseline samples 14, got %d", cfg.Engine.MinBaselineSamples)
	}

	if cfg.Engine.MatchPolicy != "all" {
		t.Errorf("expected default match policy \"all\", got %q", cfg.Engine.MatchPolicy)
	}

	if cfg.Engine.BaselineInterval != 24*time.Hour {
		t.Errorf("expected default baseline interval 24h, got %s", cfg.Engine.BaselineInterval)
	}

	if cfg.Database.Port != 5432 {
		t.Errorf("expected default db port 5432, got %d", cfg.Database.Port)
	}
}

func TestValidate(t *testing.T) {
	setRequiredEnv(t)

	t.Run("rejects unknown match policy", func(t *testing.T) {
		os.Setenv("ENGINE_MATCH_POLICY", "most")
		defer os.Unsetenv("ENGINE_MATCH_POLICY")

		if _, err := Load(); err == nil {
			t.Error("expected error for unknown match policy")
		}
	})

	t.Run("rejects min samples below 2", func(t *testing.T) {
		os.Setenv("ENGINE_MIN_BASELINE_SAMPLES", "1")
		defer os.Unsetenv("ENGINE_MIN_BASELINE_SAMPLES")

		if _, err := Load(); err == nil {
			t.Error("expected error for min samples below 2")
		}
	})

	t.Run("requires chat id with bot token", func(t *testing.T) {
		os.Setenv("TELEGRAM_BOT_TOKEN", "token123")
		defer os.Unsetenv("TELEGRAM_BOT_TOKEN")

		if _, err := Load(); err == nil {
			t.Error("expected error for bot token without chat id")
		}
	})
}

func TestGetDSN(t *testing.T) {
	c := &DatabaseConfig{
		Host: "db", Port: 5433, User: "u", Password: "p", Name: "pulse", SSLMode: "disable",
	}

	want := "host=db port=5433 user=u password=p dbname=pulse sslmode=disable"
	if got := c.GetDSN(); got != want {
		t.Errorf("GetDSN() = %q, want %q", got, want)
	}
}
