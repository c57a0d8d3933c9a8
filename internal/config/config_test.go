package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
[operations]
host = "ops.example.com"
login_data_path = "/etc/vcfping/login.json"
insecure_skip_verify = true
request_timeout_seconds = 60
token_ttl_minutes = 20

[scheduler]
data_dir = "/var/lib/vcfping"
poll_interval_seconds = 15
metrics_listen_addr = "127.0.0.1:9321"

[logging]
level = "debug"
format = "json"
output = "stdout"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ops.example.com", cfg.Operations.Host)
	assert.Equal(t, "/etc/vcfping/login.json", cfg.Operations.LoginDataPath)
	assert.True(t, cfg.Operations.InsecureSkipVerify)
	assert.Equal(t, 60, cfg.Operations.RequestTimeoutSeconds)
	assert.Equal(t, 20, cfg.Operations.TokenTTLMinutes)
	assert.Equal(t, "/var/lib/vcfping", cfg.Scheduler.DataDir)
	assert.Equal(t, 15, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, "127.0.0.1:9321", cfg.Scheduler.MetricsListenAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	assert.Empty(t, cfg.Validate())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[operations]
host = "ops.example.com"
login_data_path = "/etc/vcfping/login.json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Operations.RequestTimeoutSeconds)
	assert.Equal(t, 25, cfg.Operations.TokenTTLMinutes)
	assert.Equal(t, 60, cfg.Operations.TokenSafetyMarginSecond)
	assert.Equal(t, 30, cfg.Scheduler.PollIntervalSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.NotEmpty(t, cfg.Scheduler.DataDir)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("VCFPING_TEST_HOST", "env.example.com")

	path := writeConfig(t, `
[operations]
host = "${VCFPING_TEST_HOST:fallback.example.com}"
login_data_path = "${VCFPING_TEST_LOGIN:/tmp/login.json}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Set variable wins, unset variable falls back to the default
	assert.Equal(t, "env.example.com", cfg.Operations.Host)
	assert.Equal(t, "/tmp/login.json", cfg.Operations.LoginDataPath)
}

func TestLoad_ExpandsHome(t *testing.T) {
	path := writeConfig(t, `
[operations]
host = "ops.example.com"
login_data_path = "~/login.json"

[scheduler]
data_dir = "~/.vcfping"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "login.json"), cfg.Operations.LoginDataPath)
	assert.Equal(t, filepath.Join(home, ".vcfping"), cfg.Scheduler.DataDir)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `[operations`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_Validate_ReportsAllProblems(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Operations.Host = ""
	cfg.Operations.LoginDataPath = ""
	cfg.Logging.Level = "verbose"

	errs := cfg.Validate()

	require.NotEmpty(t, errs)
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	assert.Contains(t, messages, "operations.host is required")
	assert.Contains(t, messages, "operations.login_data_path is required")
}
