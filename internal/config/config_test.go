// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and durations

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:9090"

project:
  endpoint: "https://example.services.ai.azure.com/api/projects/demo"
  api_version: "2025-05-01"

agents:
  default_model: "gpt-4-turbo"
  request_timeout: "90s"
  poll_interval: "500ms"

dispatch:
  strict_errors: true

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:9090" {
		t.Errorf("unexpected http_addr: %s", cfg.Server.HTTPAddr)
	}
	if cfg.Project.Endpoint != "https://example.services.ai.azure.com/api/projects/demo" {
		t.Errorf("unexpected endpoint: %s", cfg.Project.Endpoint)
	}
	if cfg.Agents.DefaultModel != "gpt-4-turbo" {
		t.Errorf("unexpected default_model: %s", cfg.Agents.DefaultModel)
	}
	if cfg.Agents.RequestTimeout != 90*time.Second {
		t.Errorf("unexpected request_timeout: %v", cfg.Agents.RequestTimeout)
	}
	if cfg.Agents.PollInterval != 500*time.Millisecond {
		t.Errorf("unexpected poll_interval: %v", cfg.Agents.PollInterval)
	}
	if !cfg.Dispatch.StrictErrors {
		t.Error("expected strict_errors true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GROUNDING_TOKEN", "tok-secret")

	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
project:
  endpoint: "https://example.services.ai.azure.com/api/projects/demo"
  token: "${TEST_GROUNDING_TOKEN}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Project.Token != "tok-secret" {
		t.Errorf("expected expanded token, got %q", cfg.Project.Token)
	}
}

func TestLoad_DefaultsPreserved(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Agents.DefaultModel != "gpt-4o" {
		t.Errorf("expected default model gpt-4o, got %s", cfg.Agents.DefaultModel)
	}
	if cfg.Agents.RequestTimeout != 2*time.Minute {
		t.Errorf("expected default request timeout, got %v", cfg.Agents.RequestTimeout)
	}
	if cfg.Project.APIVersion != "2025-05-01" {
		t.Errorf("expected default api version, got %s", cfg.Project.APIVersion)
	}
	if cfg.Dispatch.StrictErrors {
		t.Error("strict_errors should default to false")
	}
}

func TestLoad_BadDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"
agents:
  request_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for bad duration")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error should mention request_timeout: %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate_TailscaleRequiresHostname(t *testing.T) {
	cfg := Default()
	cfg.Tailscale.Enabled = true
	cfg.Tailscale.Hostname = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing tailscale hostname")
	}
}

func TestValidate_MissingEndpointIsAllowed(t *testing.T) {
	// A missing project endpoint means an empty agent pool, not a refusal
	// to start.
	cfg := Default()
	cfg.Project.Endpoint = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestDefault_EnvFallbacks(t *testing.T) {
	t.Setenv("AZURE_AI_PROJECT_ENDPOINT", "https://fallback.services.ai.azure.com/api/projects/p")
	t.Setenv("AZURE_AI_PROJECT_TOKEN", "tok-env")

	cfg := Default()
	if cfg.Project.Endpoint != "https://fallback.services.ai.azure.com/api/projects/p" {
		t.Errorf("expected endpoint from env, got %q", cfg.Project.Endpoint)
	}
	if cfg.Project.Token != "tok-env" {
		t.Errorf("expected token from env, got %q", cfg.Project.Token)
	}
}
