package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Policy      PolicyConfig      `yaml:"policy"`
	Attachments AttachmentsConfig `yaml:"attachments"`
	LLM         LLMConfig         `yaml:"llm"`
	Log         LogConfig         `yaml:"log"`
}

// DatabaseConfig points at the SQLite index backing C2.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig is recorded, not bound: the RPC/MCP transport that would
// listen on it is out of scope, but health_check still reports it.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// StorageConfig locates the on-disk git archive and its commit identity.
type StorageConfig struct {
	Root            string `yaml:"root"`
	GitAuthorName   string `yaml:"git_author_name"`
	GitAuthorEmail  string `yaml:"git_author_email"`
	RetentionIgnore []string `yaml:"retention_ignore"`
}

// PolicyConfig governs the enforcement toggles for reservations, contact
// approval, agent naming, and acknowledgement expiry (spec §3/§4.4/§4.5).
type PolicyConfig struct {
	ReservationsEnforced bool            `yaml:"reservations_enforced"`
	ContactEnforced      bool            `yaml:"contact_enforced"`
	ContactTTL           time.Duration   `yaml:"contact_ttl"`
	NameEnforcement      string          `yaml:"name_enforcement"`
	AckTTL               time.Duration   `yaml:"ack_ttl"`
	ReservationMinTTL    time.Duration   `yaml:"reservation_min_ttl"`
}

// AttachmentsConfig controls how C3 materializes referenced/explicit attachments.
type AttachmentsConfig struct {
	InlineThresholdBytes int64 `yaml:"inline_threshold_bytes"`
	ConvertImages        bool  `yaml:"convert_images"`
}

// LLMConfig gates the optional summarization augmentation in C7.
type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path: "",
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8700,
			Path: "/mcp",
		},
		Storage: StorageConfig{
			GitAuthorName:  "agentmail",
			GitAuthorEmail: "agentmail@localhost",
		},
		Policy: PolicyConfig{
			ReservationsEnforced: true,
			ContactEnforced:      true,
			ContactTTL:           30 * 24 * time.Hour,
			NameEnforcement:      "coerce",
			AckTTL:               72 * time.Hour,
			ReservationMinTTL:    60 * time.Second,
		},
		Attachments: AttachmentsConfig{
			InlineThresholdBytes: 64 * 1024,
			ConvertImages:        false,
		},
		LLM: LLMConfig{
			Enabled: false,
			Model:   "",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration using the real environment.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environments rather than mutating
// process-global state.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := getenv("AGENTMAIL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := getenv("AGENTMAIL_STORAGE_ROOT"); v != "" {
		cfg.Storage.Root = v
	}
	if v := getenv("AGENTMAIL_GIT_AUTHOR_NAME"); v != "" {
		cfg.Storage.GitAuthorName = v
	}
	if v := getenv("AGENTMAIL_GIT_AUTHOR_EMAIL"); v != "" {
		cfg.Storage.GitAuthorEmail = v
	}
	if v := getenv("AGENTMAIL_NAME_ENFORCEMENT"); v != "" {
		cfg.Policy.NameEnforcement = v
	}
	if v := getenv("AGENTMAIL_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
		cfg.LLM.Enabled = true
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = defaultDBPathWithEnv(getenv)
	}

	return cfg, nil
}

func getConfigPath() string {
	return getConfigPathWithEnv(os.Getenv)
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentmail", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentmail", "config.yaml")
}

func defaultDBPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "agentmail", "index.db")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "agentmail", "index.db")
}
