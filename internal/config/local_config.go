package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml fields read directly from
// the file rather than through the viper singleton, needed when the
// CWD has changed since Initialize ran, or when checking config before
// Initialize has been called at all (e.g. the CLI's early flag parsing).
//
// Using proper YAML parsing handles edge cases like comments,
// indentation, and special characters that regex-based parsing would
// miss.
type LocalConfig struct {
	StateDir       string `yaml:"state-dir"`
	LogLevel       string `yaml:"log-level"`
	DefaultBatchSize int  `yaml:"default-batch-size"`
}

// LoadLocalConfig reads and parses config.yaml directly from the
// specified stratum directory. This bypasses the viper singleton and
// reads the file directly.
//
// Returns an empty LocalConfig (not nil) if the file doesn't exist or
// can't be parsed.
func LoadLocalConfig(stratumDir string) *LocalConfig {
	configPath := filepath.Join(stratumDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from stratumDir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}

	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies environment
// variable overrides. Environment variables take precedence over
// config file values.
//
// Supported environment variables:
//   - STRATUM_STATE_DIR: overrides state-dir
func LoadLocalConfigWithEnv(stratumDir string) *LocalConfig {
	cfg := LoadLocalConfig(stratumDir)

	if envDir := os.Getenv("STRATUM_STATE_DIR"); envDir != "" {
		cfg.StateDir = envDir
	}

	return cfg
}

// GetLocalStateDir reads state-dir from the local config.yaml file.
// First checks the STRATUM_STATE_DIR environment variable, then falls
// back to config.yaml.
func GetLocalStateDir(stratumDir string) string {
	return LoadLocalConfigWithEnv(stratumDir).StateDir
}
