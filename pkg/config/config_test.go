package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Port    string        `yaml:"port"`
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
	Nested  struct {
		URL string `yaml:"url"`
	} `yaml:"nested"`
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faqgen.yaml")
	yml := "workers: 8\ntimeout: 45s\nnested:\n  url: neo4j://db:7687\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := sample{Port: "8080", Workers: 4}
	if err := Load(path, &cfg, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("default port lost: %q", cfg.Port)
	}
	if cfg.Workers != 8 || cfg.Timeout != 45*time.Second || cfg.Nested.URL != "neo4j://db:7687" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, "test.env")
	if err := os.WriteFile(env, []byte("FAQ_TEST_DOTENV=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("FAQ_TEST_DOTENV") })

	var cfg sample
	if err := Load("", &cfg, env); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := EnvOr("FAQ_TEST_DOTENV", ""); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	var cfg sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &cfg); err == nil {
		t.Fatal("expected error for missing file")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("workers: [oops"), 0o644)
	if err := Load(bad, &cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("FAQ_T_STR", "x")
	t.Setenv("FAQ_T_INT", "12")
	t.Setenv("FAQ_T_BAD_INT", "twelve")
	t.Setenv("FAQ_T_FLOAT", "0.75")
	t.Setenv("FAQ_T_DUR", "90s")
	t.Setenv("FAQ_T_BOOL", "true")

	if EnvOr("FAQ_T_STR", "d") != "x" || EnvOr("FAQ_T_UNSET", "d") != "d" {
		t.Error("EnvOr")
	}
	if EnvInt("FAQ_T_INT", 1) != 12 || EnvInt("FAQ_T_BAD_INT", 1) != 1 {
		t.Error("EnvInt")
	}
	if EnvFloat("FAQ_T_FLOAT", 0) != 0.75 {
		t.Error("EnvFloat")
	}
	if EnvDuration("FAQ_T_DUR", time.Second) != 90*time.Second || EnvDuration("FAQ_T_UNSET", time.Second) != time.Second {
		t.Error("EnvDuration")
	}
	if !EnvBool("FAQ_T_BOOL", false) || EnvBool("FAQ_T_UNSET", false) {
		t.Error("EnvBool")
	}
}
