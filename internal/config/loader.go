package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// Load loads configuration from the default file location and environment variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigPath())
}

// LoadFrom loads configuration from path (optional) and environment variables.
// A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	if p := os.Getenv("EVOC_CONFIG"); p != "" {
		return p
	}
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "evoc", "config.yaml")
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, ".config", "evoc", "config.yaml")
}

func defaultDBPath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "evoc", DefaultDBFile)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DefaultDBFile
	}
	return filepath.Join(homeDir, ".local", "share", "evoc", DefaultDBFile)
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if provider := os.Getenv("EVOC_PROVIDER"); provider != "" {
		cfg.API.Provider = strings.ToLower(provider)
	}

	// Priority: EVOC_API_KEY > provider specific key
	if apiKey := os.Getenv("EVOC_API_KEY"); apiKey != "" {
		cfg.API.APIKey = apiKey
	} else if cfg.API.APIKey == "" {
		switch cfg.API.Provider {
		case "groq":
			cfg.API.APIKey = os.Getenv("GROQ_API_KEY")
		case "openai":
			cfg.API.APIKey = os.Getenv("OPENAI_API_KEY")
		case "gemini":
			cfg.API.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	if model := os.Getenv("EVOC_MODEL"); model != "" {
		cfg.Model.Name = model
	}
	if dbPath := os.Getenv("EVOC_DB_PATH"); dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if level := os.Getenv("EVOC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// RequireAuth reports ErrMissingAuth when the active provider needs a key and none is set.
func (c *Config) RequireAuth() error {
	if c.API.Provider != "ollama" && c.API.APIKey == "" {
		return ErrMissingAuth
	}
	return nil
}

// ConfigError is a configuration validation error.
type ConfigError string

func (e ConfigError) Error() string {
	return string(e)
}

const (
	ErrMissingAuth ConfigError = "missing authentication: set EVOC_API_KEY or GROQ_API_KEY/GEMINI_API_KEY, or api.api_key in the config file"
	ErrInvalid     ConfigError = "invalid configuration"
)

// GetConfigPath returns the path to the config file.
func GetConfigPath() string {
	return getConfigPath()
}

// Save writes the configuration to path atomically.
func (c *Config) Save(path string) error {
	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return fmt.Errorf("could not determine config path")
	}

	// 0700: the file may contain API keys
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}
