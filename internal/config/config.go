package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration
type Config struct {
	ListenAddr    string   `yaml:"listen_addr"`
	DataDir       string   `yaml:"data_dir"`
	PublicBaseURL string   `yaml:"public_base_url"`
	Database      Database `yaml:"database"`
	Auth          Auth     `yaml:"auth"`
	NATS          NATS     `yaml:"nats"`
	Storage       Storage  `yaml:"storage"`
	AI            AI       `yaml:"ai"`
}

// Database selects the sqlite driver and file
type Database struct {
	// Driver is "sqlite" (modernc, pure Go) or "sqlite3" (mattn, cgo)
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Auth configures JWT verification
type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	JWKSURL   string        `yaml:"jwks_url"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// NATS configures channel event publishing. Empty URL disables publishing.
type NATS struct {
	URL string `yaml:"url"`
}

// Storage configures where synced and uploaded file bytes are kept
type Storage struct {
	Provider              string `yaml:"provider"`
	LocalDir              string `yaml:"local_dir"`
	AzureConnectionString string `yaml:"azure_connection_string"`
	AzureContainer        string `yaml:"azure_container"`
	GCSBucket             string `yaml:"gcs_bucket"`
	// GCSCredentialsFile falls back to Application Default Credentials when empty
	GCSCredentialsFile string `yaml:"gcs_credentials_file"`
}

// AI configures the OpenAI-compatible completion endpoint used for email summaries
type AI struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DataDir:    "data",
		Database: Database{
			Driver: "sqlite",
			Path:   filepath.Join("data", "brain.db"),
		},
		Auth: Auth{
			TokenTTL: 24 * time.Hour,
		},
		Storage: Storage{
			Provider: "local",
			LocalDir: filepath.Join("data", "uploads"),
		},
		AI: AI{
			Timeout: 2 * time.Minute,
		},
	}
}

// Load reads the YAML file at path (if non-empty and present), applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	set(&c.ListenAddr, "BRAIN_LISTEN_ADDR")
	set(&c.DataDir, "BRAIN_DATA_DIR")
	set(&c.PublicBaseURL, "BRAIN_PUBLIC_BASE_URL")
	set(&c.Database.Driver, "BRAIN_DB_DRIVER")
	set(&c.Database.Path, "BRAIN_DB_PATH")
	set(&c.Auth.JWTSecret, "BRAIN_JWT_SECRET")
	set(&c.Auth.JWKSURL, "BRAIN_JWKS_URL")
	set(&c.NATS.URL, "BRAIN_NATS_URL")
	set(&c.Storage.Provider, "BRAIN_STORAGE_PROVIDER")
	set(&c.Storage.LocalDir, "BRAIN_STORAGE_DIR")
	set(&c.Storage.AzureConnectionString, "BRAIN_AZURE_CONNECTION_STRING")
	set(&c.Storage.AzureContainer, "BRAIN_AZURE_CONTAINER")
	set(&c.Storage.GCSBucket, "BRAIN_GCS_BUCKET")
	set(&c.Storage.GCSCredentialsFile, "BRAIN_GCS_CREDENTIALS_FILE")
	set(&c.AI.BaseURL, "BRAIN_AI_BASE_URL")
	set(&c.AI.APIKey, "BRAIN_AI_API_KEY")
}

// Validate checks the configuration for missing or conflicting values
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Auth.JWTSecret == "" && c.Auth.JWKSURL == "" {
		return fmt.Errorf("one of auth.jwt_secret or auth.jwks_url is required")
	}

	switch strings.ToLower(c.Storage.Provider) {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir is required for local storage")
		}
	case "azure":
		if c.Storage.AzureConnectionString == "" || c.Storage.AzureContainer == "" {
			return fmt.Errorf("azure storage needs a connection string and container")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for gcs storage")
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Storage.Provider)
	}

	return nil
}
