package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingConfigYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Version != "1" {
		t.Fatalf("unexpected default version %q", cfg.Version)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	data := `{"version": "1", "model": "gpt-4o-mini", "base_url": "http://localhost:9999"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model %q", cfg.Model)
	}
	if cfg.BaseURL != "http://localhost:9999" {
		t.Fatalf("unexpected base url %q", cfg.BaseURL)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := `# credentials
PROMPTC_TEST_A=hello
export PROMPTC_TEST_B="quoted value"

PROMPTC_TEST_SET=from-file
not a valid line
`
	if err := os.WriteFile(envPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PROMPTC_TEST_SET", "from-env")
	t.Setenv("PROMPTC_TEST_A", "")
	t.Setenv("PROMPTC_TEST_B", "")
	os.Unsetenv("PROMPTC_TEST_A")
	os.Unsetenv("PROMPTC_TEST_B")

	if err := LoadEnvFile(envPath); err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}

	if got := os.Getenv("PROMPTC_TEST_A"); got != "hello" {
		t.Fatalf("PROMPTC_TEST_A = %q", got)
	}
	if got := os.Getenv("PROMPTC_TEST_B"); got != "quoted value" {
		t.Fatalf("PROMPTC_TEST_B = %q", got)
	}
	// Already-set variables win over the file.
	if got := os.Getenv("PROMPTC_TEST_SET"); got != "from-env" {
		t.Fatalf("PROMPTC_TEST_SET = %q", got)
	}
}

func TestLoadEnvFileMissingIsFine(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing env file should not error: %v", err)
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	t.Setenv(EnvAPIKey, "primary")
	t.Setenv(EnvAPIKeyFallback, "fallback")
	if got := APIKey(); got != "primary" {
		t.Fatalf("APIKey = %q", got)
	}

	t.Setenv(EnvAPIKey, "")
	if got := APIKey(); got != "fallback" {
		t.Fatalf("APIKey fallback = %q", got)
	}
}
