package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig contains the HTTP listener configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`
	// AdminToken guards the admin surface (SQL console, backup, delete).
	// Empty disables the admin routes entirely.
	AdminToken string `yaml:"admin_token"`
}

// StoreConfig contains the SQLite store configuration.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
	// RetentionDays is how long crossing records are kept before the
	// sweeper deletes them. Zero keeps records forever.
	RetentionDays int `yaml:"retention_days" validate:"gte=0"`
}

// AppConfig is the root configuration structure for trafficd.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	// Tracking is an optional path to a session defaults JSON file.
	// Empty uses the compiled-in defaults.
	Tracking string `yaml:"tracking"`
	// Debug selects pipeline log streams, comma separated out of
	// "ops", "diag" and "trace". An explicit empty string silences all
	// three, including the persist failure warnings on ops.
	Debug string `yaml:"debug"`
}

// DefaultAppConfig returns the configuration used when no file is found.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{ListenAddr: ":8080"},
		Store:  StoreConfig{Path: "roadsight.db"},
		Debug:  "ops",
	}
}

// LoadAppConfig loads and validates the application configuration.
// With an explicit path the file must exist. With an empty path the
// usual locations are tried and compiled-in defaults are returned when
// none exists, so a bare `trafficd` still starts.
func LoadAppConfig(path string) (*AppConfig, error) {
	paths := []string{path}
	if path == "" {
		paths = []string{"roadsight.yml", "config/roadsight.yml"}
	}
	var data []byte
	var err error
	found := false
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			found = true
			break
		}
	}
	if !found {
		if path != "" {
			return nil, fmt.Errorf("read app config: %w", err)
		}
		return DefaultAppConfig(), nil
	}

	// Unmarshal over the defaults so omitted fields keep them.
	cfg := DefaultAppConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse app config: %w", err)
	}
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate app config: %w", err)
	}
	return cfg, nil
}
