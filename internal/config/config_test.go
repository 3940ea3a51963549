package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "data/taskdeck.db", cfg.Storage.DatabasePath)
	assert.Equal(t, "unlock_key.pem", cfg.Security.PrivateKeyFile)
	assert.Equal(t, "taskdeck_session", cfg.Security.SessionCookie)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TASKDECK_SERVER_PORT", "9090")
	t.Setenv("TASKDECK_SECURITY_SIGNING_SECRET", "from-env")
	t.Setenv("TASKDECK_LOGGING_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Security.SigningSecret)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.UsingInsecureSecret())
}

func TestInsecureSecretFallback(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, InsecureDefaultSigningSecret, cfg.Security.SigningSecret)
	assert.True(t, cfg.UsingInsecureSecret())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"missing key file", func(c *Config) { c.Security.PrivateKeyFile = "" }},
		{"missing db path", func(c *Config) { c.Storage.DatabasePath = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnsureParentDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureParentDir(dir+"/nested/deep/file.db"))
	require.NoError(t, EnsureParentDir("file.db"))
}
