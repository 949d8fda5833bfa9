package config

import (
	"testing"
)

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SESSION_STORE_DB_USERNAME", "broker")
	t.Setenv("SESSION_STORE_DB_PASSWORD", "hunter2")

	var cfg Config
	cfg.Database.Username = "from-file"
	cfg.Database.Host = "db.internal"

	applyEnvOverrides(&cfg)

	if cfg.Database.Username != "broker" {
		t.Errorf("Expected username override, got %s", cfg.Database.Username)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("Expected password override, got %s", cfg.Database.Password)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("Expected host untouched, got %s", cfg.Database.Host)
	}
}
