// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  base_url: "https://api.veazy.test"
  request_timeout: "45s"

upload:
  notify_delay: "250ms"

history:
  enabled: true
  path: "./history.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://api.veazy.test" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "https://api.veazy.test")
	}
	if cfg.Backend.RequestTimeout != 45*time.Second {
		t.Errorf("Backend.RequestTimeout = %v, want %v", cfg.Backend.RequestTimeout, 45*time.Second)
	}

	if cfg.Upload.NotifyDelay != 250*time.Millisecond {
		t.Errorf("Upload.NotifyDelay = %v, want %v", cfg.Upload.NotifyDelay, 250*time.Millisecond)
	}

	if !cfg.History.Enabled {
		t.Error("History.Enabled = false, want true")
	}
	if cfg.History.Path != "./history.db" {
		t.Errorf("History.Path = %q, want %q", cfg.History.Path, "./history.db")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_DefaultsPreserved(t *testing.T) {
	// A file that only overrides the backend URL keeps every other default.
	configPath := writeConfig(t, `
backend:
  base_url: "http://127.0.0.1:9000"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "http://127.0.0.1:9000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://127.0.0.1:9000")
	}

	def := Default()
	if cfg.Backend.RequestTimeout != def.Backend.RequestTimeout {
		t.Errorf("Backend.RequestTimeout = %v, want default %v", cfg.Backend.RequestTimeout, def.Backend.RequestTimeout)
	}
	if cfg.Upload.NotifyDelay != def.Upload.NotifyDelay {
		t.Errorf("Upload.NotifyDelay = %v, want default %v", cfg.Upload.NotifyDelay, def.Upload.NotifyDelay)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_VEAZY_URL", "https://env.veazy.test")

	configPath := writeConfig(t, `
backend:
  base_url: "${TEST_VEAZY_URL}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Backend.BaseURL != "https://env.veazy.test" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "https://env.veazy.test")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  base_url "missing colon"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
backend:
  base_url: "http://localhost:8000"
  request_timeout: "invalid-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid duration, got nil")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing base_url",
			configContent: `
backend:
  base_url: ""
`,
			wantErrSubstr: "backend.base_url is required",
		},
		{
			name: "history enabled without path",
			configContent: `
backend:
  base_url: "http://localhost:8000"
history:
  enabled: true
  path: ""
`,
			wantErrSubstr: "history.path is required",
		},
		{
			name: "unknown log level",
			configContent: `
backend:
  base_url: "http://localhost:8000"
logging:
  level: "verbose"
`,
			wantErrSubstr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.configContent)

			_, err := Load(configPath)
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestDefaultPath_EnvOverride(t *testing.T) {
	t.Setenv("VEAZY_CONFIG", "/etc/veazy/custom.yaml")

	if got := DefaultPath(); got != "/etc/veazy/custom.yaml" {
		t.Errorf("DefaultPath() = %q, want %q", got, "/etc/veazy/custom.yaml")
	}
}

func TestDefaultPath_XDG(t *testing.T) {
	t.Setenv("VEAZY_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	want := filepath.Join("/tmp/xdg", "veazy", "config.yaml")
	if got := DefaultPath(); got != want {
		t.Errorf("DefaultPath() = %q, want %q", got, want)
	}
}
