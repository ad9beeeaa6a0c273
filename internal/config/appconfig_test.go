package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "roadsight.yml")

	testYAML := `
server:
  listen_addr: ":9090"
  admin_token: "secret"
store:
  path: "/var/lib/roadsight/records.db"
  retention_days: 14
tracking: "config/tracking.defaults.json"
debug: "ops,diag"
`
	if err := os.WriteFile(configPath, []byte(testYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAppConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.AdminToken != "secret" {
		t.Errorf("AdminToken = %q, want secret", cfg.Server.AdminToken)
	}
	if cfg.Store.Path != "/var/lib/roadsight/records.db" {
		t.Errorf("Store.Path = %q, want /var/lib/roadsight/records.db", cfg.Store.Path)
	}
	if cfg.Store.RetentionDays != 14 {
		t.Errorf("RetentionDays = %d, want 14", cfg.Store.RetentionDays)
	}
	if cfg.Debug != "ops,diag" {
		t.Errorf("Debug = %q, want ops,diag", cfg.Debug)
	}
}

func TestLoadAppConfigPartialKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yml")

	partialYAML := `
store:
  retention_days: 7
`
	if err := os.WriteFile(configPath, []byte(partialYAML), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadAppConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default :8080", cfg.Server.ListenAddr)
	}
	if cfg.Store.Path != "roadsight.db" {
		t.Errorf("Store.Path = %q, want default roadsight.db", cfg.Store.Path)
	}
	if cfg.Store.RetentionDays != 7 {
		t.Errorf("RetentionDays = %d, want 7", cfg.Store.RetentionDays)
	}
	if cfg.Debug != "ops" {
		t.Errorf("Debug = %q, want default ops", cfg.Debug)
	}
}

func TestLoadAppConfigMissingExplicitPath(t *testing.T) {
	_, err := LoadAppConfig("/nonexistent/roadsight.yml")
	if err == nil {
		t.Error("Expected error for missing explicit path, got nil")
	}
}

func TestLoadAppConfigNoFileUsesDefaults(t *testing.T) {
	// Run from a directory with no candidate files.
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(oldWD)

	cfg, err := LoadAppConfig("")
	if err != nil {
		t.Fatalf("Expected defaults, got error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default :8080", cfg.Server.ListenAddr)
	}
}

func TestLoadAppConfigInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broken.yml")

	if err := os.WriteFile(configPath, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadAppConfig(configPath)
	if err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoadAppConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad listen addr",
			yaml: "server:\n  listen_addr: \"not a port\"\n",
		},
		{
			name: "negative retention",
			yaml: "store:\n  retention_days: -1\n",
		},
		{
			name: "empty store path",
			yaml: "store:\n  path: \"\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "bad.yml")
			if err := os.WriteFile(configPath, []byte(tt.yaml), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := LoadAppConfig(configPath); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}
