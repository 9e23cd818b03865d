package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestRun_InvalidConfigPath verifies run fails with a missing config file.
func TestRun_InvalidConfigPath(t *testing.T) {
	originalEnv := os.Getenv("GRAYPULSE_CONFIG")
	defer os.Setenv("GRAYPULSE_CONFIG", originalEnv)

	os.Setenv("GRAYPULSE_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a missing config file")
	}
}

// TestRun_InvalidConfig verifies run fails when validation rejects the config.
func TestRun_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	// Auth token below the minimum length fails validation
	configContent := `
api:
  auth_token: "short"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GRAYPULSE_CONFIG")
	defer os.Setenv("GRAYPULSE_CONFIG", originalEnv)
	os.Setenv("GRAYPULSE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a too-short auth token")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	originalEnv := os.Getenv("GRAYPULSE_CONFIG")
	defer os.Setenv("GRAYPULSE_CONFIG", originalEnv)

	os.Unsetenv("GRAYPULSE_CONFIG")

	path := getConfigPath()
	if path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	originalEnv := os.Getenv("GRAYPULSE_CONFIG")
	defer os.Setenv("GRAYPULSE_CONFIG", originalEnv)

	expected := "/custom/path/config.yaml"
	os.Setenv("GRAYPULSE_CONFIG", expected)

	path := getConfigPath()
	if path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_StartupAndShutdown runs the full service, HTTP-only, against
// an unreachable relay device, and shuts it down via context timeout.
// An unreachable device warns at startup but never blocks it.
func TestRun_StartupAndShutdown(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
actuator:
  host: "127.0.0.1:9"
  timeout_ms: 200

api:
  host: "127.0.0.1"
  port: 19099
  timeouts:
    read: 5
    write: 5
    idle: 5

monitor:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	originalEnv := os.Getenv("GRAYPULSE_CONFIG")
	defer os.Setenv("GRAYPULSE_CONFIG", originalEnv)
	os.Setenv("GRAYPULSE_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error: %v", err)
	}
}
