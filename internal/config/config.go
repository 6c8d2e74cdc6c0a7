// Package config locates the .promptc workspace and loads project settings
// and generation credentials.
package config

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// DirName is the workspace directory created next to the sources.
const DirName = ".promptc"

// EnvAPIKey and EnvAPIKeyFallback are consulted in order for the generation
// service credential.
const (
	EnvAPIKey         = "PROMPTC_API_KEY"
	EnvAPIKeyFallback = "OPENAI_API_KEY"
)

// Config is the project configuration file.
type Config struct {
	Version string `json:"version"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
	Debug   bool   `json:"debug,omitempty"`
}

// BasePath returns the workspace directory under the current working
// directory.
func BasePath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return DirName
	}
	return filepath.Join(cwd, DirName)
}

// CachePath returns the cache artifact location inside the workspace.
func CachePath(basePath string) string {
	return filepath.Join(basePath, "cache.json")
}

// SymtabPath returns the known-exports database location.
func SymtabPath(basePath string) string {
	return filepath.Join(basePath, "symbols.db")
}

// RunsDir returns where generation run records are written.
func RunsDir(basePath string) string {
	return filepath.Join(basePath, "runs")
}

// Load reads config.json from the workspace. A missing file yields defaults.
func Load(basePath string) (*Config, error) {
	cfg := &Config{Version: "1"}
	data, err := os.ReadFile(filepath.Join(basePath, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIKey returns the generation service credential from the environment.
func APIKey() string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	return os.Getenv(EnvAPIKeyFallback)
}

// LoadEnvFile populates the process environment from a KEY=VALUE file,
// skipping blank lines, comments, and variables that are already set. A
// missing file is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		os.Setenv(key, value)
	}
	return sc.Err()
}
