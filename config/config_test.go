package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRequiresModelPath(t *testing.T) {
	t.Setenv("MODEL_PATH", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when MODEL_PATH is unset")
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/rf_asl_15letters.json")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Http.Port != 8100 {
		t.Fatalf("unexpected default port: %d", config.Http.Port)
	}
	if config.Database.Name != "asl_predictions" {
		t.Fatalf("unexpected default database: %s", config.Database.Name)
	}

	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PORT", "5433")
	t.Setenv("LOG_LEVEL", "debug")

	config, err = Load("")
	if err != nil {
		t.Fatalf("Load with overrides: %v", err)
	}
	if config.Http.Port != 9000 {
		t.Fatalf("HTTP_PORT override not applied: %d", config.Http.Port)
	}
	if config.Database.Host != "db.internal" || config.Database.Port != 5433 {
		t.Fatalf("database overrides not applied: %+v", config.Database)
	}
	if config.Log.Level != "debug" {
		t.Fatalf("LOG_LEVEL override not applied: %s", config.Log.Level)
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/from-env.json")
	t.Setenv("POSTGRES_PASSWORD", "env-secret")

	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
http:
  port: 8200
model:
  path: /models/from-yaml.json
database:
  password: yaml-secret
`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Http.Port != 8200 {
		t.Fatalf("yaml port not applied: %d", config.Http.Port)
	}
	if config.Model.Path != "/models/from-env.json" {
		t.Fatalf("environment must win over yaml, got %s", config.Model.Path)
	}
	if config.Database.Password != "env-secret" {
		t.Fatalf("environment must win over yaml, got %s", config.Database.Password)
	}
}

func TestLoadMissingYAMLFileIsNotFatal(t *testing.T) {
	t.Setenv("MODEL_PATH", "/models/rf.json")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config file must not fail startup: %v", err)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	if got := GetEnvInt("SOME_INT", 7); got != 42 {
		t.Fatalf("got %d", got)
	}
	t.Setenv("SOME_INT", "not-a-number")
	if got := GetEnvInt("SOME_INT", 7); got != 7 {
		t.Fatalf("invalid value must fall back, got %d", got)
	}
	if got := GetEnvInt("UNSET_INT", 7); got != 7 {
		t.Fatalf("unset must fall back, got %d", got)
	}
}
