package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPath is where the CLI looks for the configuration file when the
// --config flag is not given.
const DefaultPath = "~/.vcfping/config.toml"

// Load reads and parses the configuration from a TOML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	expandEnvVars(&cfg)

	return &cfg, nil
}

// Validate checks the configuration and returns all problems found.
func (c *Config) Validate() []error {
	var errors []error

	if c.Operations.Host == "" {
		errors = append(errors, fmt.Errorf("operations.host is required"))
	}
	if c.Operations.LoginDataPath == "" {
		errors = append(errors, fmt.Errorf("operations.login_data_path is required"))
	}
	if c.Operations.RequestTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("operations.request_timeout_seconds must not be negative"))
	}
	if c.Operations.TokenTTLMinutes < 0 {
		errors = append(errors, fmt.Errorf("operations.token_ttl_minutes must not be negative"))
	}

	if c.Scheduler.DataDir == "" {
		errors = append(errors, fmt.Errorf("scheduler.data_dir is required"))
	}
	if c.Scheduler.PollIntervalSeconds < 1 {
		errors = append(errors, fmt.Errorf("scheduler.poll_interval_seconds must be at least 1"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errors = append(errors, fmt.Errorf("invalid logging.level: %s (expected: debug, info, warn, error)", c.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errors = append(errors, fmt.Errorf("invalid logging.format: %s (expected: json, text)", c.Logging.Format))
	}

	if c.Logging.Output == "" {
		errors = append(errors, fmt.Errorf("logging.output is required"))
	}

	return errors
}

// applyDefaults fills unset fields with default values.
func applyDefaults(c *Config) {
	if c.Operations.RequestTimeoutSeconds == 0 {
		c.Operations.RequestTimeoutSeconds = 30
	}
	if c.Operations.TokenTTLMinutes == 0 {
		c.Operations.TokenTTLMinutes = 25
	}
	if c.Operations.TokenSafetyMarginSecond == 0 {
		c.Operations.TokenSafetyMarginSecond = 60
	}

	if c.Scheduler.DataDir == "" {
		c.Scheduler.DataDir = "~/.vcfping"
	}
	if c.Scheduler.PollIntervalSeconds == 0 {
		c.Scheduler.PollIntervalSeconds = 30
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stderr"
	}
}

// expandEnvVars expands environment variable references and home-relative
// paths in the configuration.
func expandEnvVars(c *Config) {
	c.Operations.Host = expandEnv(c.Operations.Host)
	c.Operations.LoginDataPath = expandHome(expandEnv(c.Operations.LoginDataPath))
	c.Scheduler.DataDir = expandHome(expandEnv(c.Scheduler.DataDir))
}

// expandEnv expands a ${VAR} or ${VAR:default} reference.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "${") {
		return s
	}

	end := strings.Index(s, "}")
	if end == -1 {
		return s
	}

	content := s[2:end]
	if parts := strings.SplitN(content, ":", 2); len(parts) == 2 {
		key := parts[0]
		defaultVal := parts[1]
		if val := os.Getenv(key); val != "" {
			return val
		}
		return defaultVal
	}

	return os.Getenv(content)
}

// expandHome expands a leading ~ in a path.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
