package config

import (
	"os"
	"path/filepath"
	"testing"
)

// chdirTemp switches into a fresh temp dir for the test's duration.
// (Stand-in for t.Chdir, which needs Go 1.24.)
func chdirTemp(t *testing.T) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Default()
	if cfg.Database != want.Database || cfg.EditIterations != want.EditIterations {
		t.Errorf("Load without file = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing config file accepted")
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabula.yaml")
	doc := `
database: books.db
output_dir: out
edit_iterations: 5
backend:
  model: gpt-4o-mini
  base_url: http://localhost:8080/v1
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database != "books.db" {
		t.Errorf("database = %q", cfg.Database)
	}
	if cfg.EditIterations != 5 {
		t.Errorf("edit_iterations = %d", cfg.EditIterations)
	}
	if cfg.Backend.Model != "gpt-4o-mini" || cfg.Backend.BaseURL != "http://localhost:8080/v1" {
		t.Errorf("backend = %+v", cfg.Backend)
	}
	// Unset fields keep their defaults.
	if cfg.SessionDir != Default().SessionDir {
		t.Errorf("session_dir = %q, want default", cfg.SessionDir)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fabula.yaml")
	if err := os.WriteFile(path, []byte("database: from_file.db\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("FABULA_DB", "from_env.db")
	t.Setenv("FABULA_MODEL", "llama3")
	t.Setenv("FABULA_EDIT_ITERATIONS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database != "from_env.db" {
		t.Errorf("database = %q, env must win", cfg.Database)
	}
	if cfg.Backend.Model != "llama3" {
		t.Errorf("model = %q", cfg.Backend.Model)
	}
	if cfg.EditIterations != 7 {
		t.Errorf("edit_iterations = %d", cfg.EditIterations)
	}
}

func TestAPIKeyFallsBackToOpenAIVariable(t *testing.T) {
	chdirTemp(t)
	t.Setenv("FABULA_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Backend.APIKey)
	}

	t.Setenv("FABULA_API_KEY", "sk-own")
	cfg, err = Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.APIKey != "sk-own" {
		t.Errorf("api key = %q, FABULA_API_KEY must win", cfg.Backend.APIKey)
	}
}
