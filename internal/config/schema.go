// Package config provides configuration loading and validation for vcfping.
// It supports TOML configuration files with environment variable expansion,
// default values, and validation.
//
// Configuration structure:
//   - [operations]: VCF Operations endpoint and credential settings
//   - [scheduler]: Scheduler data directory and poll interval
//   - [logging]: Logging level, format, and output
//
// Environment variables can be referenced using ${VAR} or ${VAR:default}
// syntax. For example: host = "${VCF_OPS_HOST:ops.example.com}".
package config

// Config represents the main application configuration.
type Config struct {
	Operations OperationsConfig `toml:"operations"`
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Logging    LoggingConfig    `toml:"logging"`
}

// OperationsConfig holds the VCF Operations connection settings.
type OperationsConfig struct {
	Host                    string `toml:"host"`
	LoginDataPath           string `toml:"login_data_path"`
	InsecureSkipVerify      bool   `toml:"insecure_skip_verify"`
	RequestTimeoutSeconds   int    `toml:"request_timeout_seconds"`
	TokenTTLMinutes         int    `toml:"token_ttl_minutes"`
	TokenSafetyMarginSecond int    `toml:"token_safety_margin_seconds"`
}

// SchedulerConfig holds the scheduler daemon settings.
type SchedulerConfig struct {
	DataDir             string `toml:"data_dir"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MetricsListenAddr   string `toml:"metrics_listen_addr"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}
