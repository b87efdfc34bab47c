// Package config provides configuration loading and management for anatqc.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TokenEnv is the environment variable consulted for the upload API token
// when no token file is configured. The token is never compiled into the
// binary.
const TokenEnv = "ANATQC_TOKEN"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Labels maps tissue names to segmentation codes
	Labels map[string]int32 `yaml:"labels"`

	// Metrics parameters
	Metrics struct {
		// Erode applies morphological cleanup to tissue masks before the
		// SNR-family statistics
		Erode bool `yaml:"erode"`

		// NCoils is the number of acquisition coils for the QI2 noise fit
		NCoils int `yaml:"nCoils"`

		// MinVoxels is the minimum number of air samples for the QI2 fit
		MinVoxels int `yaml:"minVoxels"`

		// QI2File is where the QI2 diagnostic record is written
		QI2File string `yaml:"qi2File"`
	} `yaml:"metrics"`

	// Upload parameters for the metrics aggregation service
	Upload struct {
		// Address is the host of the aggregation service
		Address string `yaml:"address"`

		// Port is the service port
		Port int `yaml:"port"`

		// Email optionally identifies the sender
		Email string `yaml:"email"`

		// Strict escalates a failed upload to a fatal error
		Strict bool `yaml:"strict"`

		// TokenFile holds the API token; when empty the ANATQC_TOKEN
		// environment variable is used instead
		TokenFile string `yaml:"tokenFile"`
	} `yaml:"upload"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// FSL FAST label convention
	cfg.Labels = map[string]int32{"bg": 0, "csf": 1, "gm": 2, "wm": 3}

	// Set default metric parameters
	cfg.Metrics.Erode = true
	cfg.Metrics.NCoils = 12
	cfg.Metrics.MinVoxels = 1000
	cfg.Metrics.QI2File = "qi2_fitting.txt"

	// Set default upload parameters
	cfg.Upload.Address = "localhost"
	cfg.Upload.Port = 80
	cfg.Upload.Strict = false

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// Token resolves the upload API token from the configured token file or,
// when none is set, from the ANATQC_TOKEN environment variable.
func (c *Config) Token() (string, error) {
	if c.Upload.TokenFile != "" {
		data, err := os.ReadFile(c.Upload.TokenFile)
		if err != nil {
			return "", fmt.Errorf("error reading token file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if token := os.Getenv(TokenEnv); token != "" {
		return token, nil
	}
	return "", fmt.Errorf("no upload token: set %s or upload.tokenFile", TokenEnv)
}
