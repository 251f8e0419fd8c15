// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and profiles

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  url: "http://gateway.local:8080"
  sender: "dev-laptop"

dedupe:
  ttl: "30s"
  cleanup_interval: "2m"
  stale_after: "10m"

stream:
  throttle: "150ms"
  max_preview: 200

task:
  poll_interval: "250ms"

history:
  path: "./history.db"

logging:
  level: "debug"
  format: "json"
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "http://gateway.local:8080" {
		t.Errorf("Server.URL = %q, want http://gateway.local:8080", cfg.Server.URL)
	}
	if cfg.Server.Sender != "dev-laptop" {
		t.Errorf("Server.Sender = %q, want dev-laptop", cfg.Server.Sender)
	}
	if cfg.Dedupe.TTL != 30*time.Second {
		t.Errorf("Dedupe.TTL = %v, want 30s", cfg.Dedupe.TTL)
	}
	if cfg.Dedupe.CleanupInterval != 2*time.Minute {
		t.Errorf("Dedupe.CleanupInterval = %v, want 2m", cfg.Dedupe.CleanupInterval)
	}
	if cfg.Dedupe.StaleAfter != 10*time.Minute {
		t.Errorf("Dedupe.StaleAfter = %v, want 10m", cfg.Dedupe.StaleAfter)
	}
	if cfg.Stream.Throttle != 150*time.Millisecond {
		t.Errorf("Stream.Throttle = %v, want 150ms", cfg.Stream.Throttle)
	}
	if cfg.Stream.MaxPreview != 200 {
		t.Errorf("Stream.MaxPreview = %d, want 200", cfg.Stream.MaxPreview)
	}
	if cfg.Task.PollInterval != 250*time.Millisecond {
		t.Errorf("Task.PollInterval = %v, want 250ms", cfg.Task.PollInterval)
	}
	if cfg.History.Path != "./history.db" {
		t.Errorf("History.Path = %q, want ./history.db", cfg.History.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.URL != "http://localhost:8080" {
		t.Errorf("default Server.URL = %q", cfg.Server.URL)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("default Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("EMBER_TEST_URL", "http://expanded:9090")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
server:
  url: "${EMBER_TEST_URL}"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.URL != "http://expanded:9090" {
		t.Errorf("Server.URL = %q, want expanded value", cfg.Server.URL)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := `
dedupe:
  ttl: "not-a-duration"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "dedupe.ttl") {
		t.Errorf("error should name the offending field, got: %v", err)
	}
}

func TestValidate_BadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad log level")
	}
}

func TestValidate_BadLogFormat(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for bad log format")
	}
}

func TestValidate_NegativeMaxPreview(t *testing.T) {
	cfg := Default()
	cfg.Stream.MaxPreview = -1

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for negative max_preview")
	}
}

func TestLoadProfiles(t *testing.T) {
	tmpDir := t.TempDir()
	profilesPath := filepath.Join(tmpDir, "profiles.toml")

	content := `
default = "work"

[profile.work]
url = "https://gateway.corp.example"
token_file = "/home/me/.config/ember/work-token"
default_agent = "reviewer"

[profile.home]
url = "http://localhost:8080"
`
	if err := os.WriteFile(profilesPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing profiles: %v", err)
	}

	p, err := LoadProfiles(profilesPath)
	if err != nil {
		t.Fatalf("LoadProfiles failed: %v", err)
	}

	// Empty name resolves the configured default.
	prof, err := p.Resolve("")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if prof.URL != "https://gateway.corp.example" {
		t.Errorf("default profile URL = %q", prof.URL)
	}
	if prof.DefaultAgent != "reviewer" {
		t.Errorf("default profile agent = %q", prof.DefaultAgent)
	}

	prof, err = p.Resolve("home")
	if err != nil {
		t.Fatalf("Resolve(home) failed: %v", err)
	}
	if prof.URL != "http://localhost:8080" {
		t.Errorf("home profile URL = %q", prof.URL)
	}
}

func TestLoadProfiles_MissingFile(t *testing.T) {
	p, err := LoadProfiles(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("missing profiles file should not error: %v", err)
	}

	prof, err := p.Resolve("")
	if err != nil {
		t.Fatalf("Resolve on empty set failed: %v", err)
	}
	if prof.URL != "" {
		t.Errorf("expected zero profile, got %+v", prof)
	}
}

func TestResolve_UnknownProfile(t *testing.T) {
	p := &Profiles{Profile: map[string]Profile{}}

	if _, err := p.Resolve("nope"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
