package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	cfg.applyFallbacks()
	return &cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.Cache.CurrentUserTTL)
	assert.Equal(t, 2*time.Minute, cfg.Cache.APIKeyStatusTTL)
	assert.Equal(t, 60*time.Second, cfg.Cache.RunsTTL)
	assert.Equal(t, "json", cfg.App.DefaultFormat)
	assert.Equal(t, 20, cfg.App.DefaultRunLimit)
	assert.False(t, cfg.Vault.Enabled)
}

func TestValidateRejectsMissingBaseURL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL is required")
}

func TestValidateRejectsMalformedBaseURL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = "not a url"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid backend base URL")
}

func TestValidateRejectsNonPositiveTTL(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Cache.RunsTTL = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache TTLs must be positive")
}

func TestValidateRejectsUnsupportedDefaultFormat(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.App.DefaultFormat = "yaml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid default format")
}

func TestApplyFallbacksTrimsTrailingSlash(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Backend.BaseURL = "https://api.example.com/"
	cfg.applyFallbacks()

	assert.Equal(t, "https://api.example.com", cfg.Backend.BaseURL)
}

func TestApplyFallbacksGeneratesServiceInstance(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Observability.ServiceInstance = ""
	cfg.applyFallbacks()

	assert.NotEmpty(t, cfg.Observability.ServiceInstance)
	assert.Contains(t, cfg.Observability.ServiceInstance, cfg.Observability.ServiceName)
}

func TestDebugLogLevelEnablesConsoleOutput(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.App.LogLevel = "debug"
	cfg.Observability.ConsoleOutput = false
	cfg.applyFallbacks()

	assert.True(t, cfg.Observability.ConsoleOutput)
}

func TestLoadVaultSecretsSkippedWhenDisabled(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Vault.Enabled = false

	require.NoError(t, cfg.loadVaultSecrets())
	assert.Empty(t, cfg.Credentials.AccessToken)
	assert.Empty(t, cfg.Credentials.ProviderKey)
}
