package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockEnv creates an environment lookup function from a map.
func mockEnv(env map[string]string) func(string) string {
	return func(key string) string {
		return env[key]
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() returned nil")
	}
	if !cfg.Policy.ReservationsEnforced {
		t.Error("DefaultConfig() Policy.ReservationsEnforced should default true")
	}
	if !cfg.Policy.ContactEnforced {
		t.Error("DefaultConfig() Policy.ContactEnforced should default true")
	}
	if cfg.Policy.NameEnforcement != "coerce" {
		t.Errorf("DefaultConfig() Policy.NameEnforcement = %q, want %q", cfg.Policy.NameEnforcement, "coerce")
	}
	if cfg.Policy.AckTTL != 72*time.Hour {
		t.Errorf("DefaultConfig() Policy.AckTTL = %v, want %v", cfg.Policy.AckTTL, 72*time.Hour)
	}
	if cfg.Attachments.ConvertImages {
		t.Error("DefaultConfig() Attachments.ConvertImages should default false")
	}
	if cfg.LLM.Enabled {
		t.Error("DefaultConfig() LLM.Enabled should default false")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("DefaultConfig() Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

func TestLoadWithConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "agentmail")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
storage:
  root: /data/agentmail-archive
  git_author_name: "Release Bot"
  git_author_email: "release-bot@example.com"
policy:
  reservations_enforced: false
  name_enforcement: strict
  ack_ttl: 24h
attachments:
  convert_images: true
log:
  level: debug
  file: /var/log/agentmail.log
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Storage.Root != "/data/agentmail-archive" {
		t.Errorf("LoadWithEnv() Storage.Root = %q, want %q", cfg.Storage.Root, "/data/agentmail-archive")
	}
	if cfg.Policy.ReservationsEnforced {
		t.Error("LoadWithEnv() Policy.ReservationsEnforced should be false per file")
	}
	if cfg.Policy.NameEnforcement != "strict" {
		t.Errorf("LoadWithEnv() Policy.NameEnforcement = %q, want %q", cfg.Policy.NameEnforcement, "strict")
	}
	if cfg.Policy.AckTTL != 24*time.Hour {
		t.Errorf("LoadWithEnv() Policy.AckTTL = %v, want %v", cfg.Policy.AckTTL, 24*time.Hour)
	}
	if !cfg.Attachments.ConvertImages {
		t.Error("LoadWithEnv() Attachments.ConvertImages should be true per file")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("LoadWithEnv() Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "agentmail")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	configContent := `
policy:
  name_enforcement: strict
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME":           tmpDir,
		"AGENTMAIL_NAME_ENFORCEMENT": "always_auto",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if cfg.Policy.NameEnforcement != "always_auto" {
		t.Errorf("LoadWithEnv() Policy.NameEnforcement = %q, want %q (env override)", cfg.Policy.NameEnforcement, "always_auto")
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}

	if !cfg.Policy.ReservationsEnforced {
		t.Error("LoadWithEnv() without file should use default ReservationsEnforced")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("LoadWithEnv() without file should use default Log.Level, got %q", cfg.Log.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "agentmail")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	invalidContent := `
storage: [this is invalid yaml
policy:
  ack_ttl: not a duration
`
	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	_, err := LoadWithEnv(env)
	if err == nil {
		t.Error("LoadWithEnv() with invalid YAML should return error")
	}
}

func TestGetConfigPathXDG(t *testing.T) {
	t.Parallel()
	tmpDir := "/custom/config/path"

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	path := getConfigPathWithEnv(env)
	expected := filepath.Join(tmpDir, "agentmail", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestGetConfigPathFallback(t *testing.T) {
	t.Parallel()
	env := mockEnv(map[string]string{})

	path := getConfigPathWithEnv(env)
	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".config", "agentmail", "config.yaml")
	if path != expected {
		t.Errorf("getConfigPathWithEnv() = %q, want %q", path, expected)
	}
}

func TestLoadDefaultsDatabasePathUnderConfigDir(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME": tmpDir,
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	expected := filepath.Join(tmpDir, "agentmail", "index.db")
	if cfg.Database.Path != expected {
		t.Errorf("LoadWithEnv() Database.Path = %q, want %q", cfg.Database.Path, expected)
	}
}

func TestLoadDBPathEnvOverride(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	env := mockEnv(map[string]string{
		"XDG_CONFIG_HOME":    tmpDir,
		"AGENTMAIL_DB_PATH": "/custom/index.db",
	})

	cfg, err := LoadWithEnv(env)
	if err != nil {
		t.Fatalf("LoadWithEnv() error: %v", err)
	}
	if cfg.Database.Path != "/custom/index.db" {
		t.Errorf("LoadWithEnv() Database.Path = %q, want %q", cfg.Database.Path, "/custom/index.db")
	}
}
