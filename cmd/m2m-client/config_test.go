package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/m2m-client/pkg/session"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "m2m-endpoint", cfg.Endpoint)
	assert.Equal(t, "none", cfg.Security)
	assert.Equal(t, 60*time.Second, cfg.OperationTimeout)
	assert.Equal(t, "Manufacturer_String", cfg.Manufacturer)
	assert.Equal(t, "SerialNumber_String", cfg.Serial)
}

func TestLoadConfigLayers(t *testing.T) {
	path := writeConfigFile(t, `
endpoint: node-file
domain: plant
server: tcp://10.0.0.1:5683
renew_interval: 30s
retry_attempts: 2
`)

	t.Run("file", func(t *testing.T) {
		cfg, err := loadConfig(path, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "node-file", cfg.Endpoint)
		assert.Equal(t, "plant", cfg.Domain)
		assert.Equal(t, 30*time.Second, cfg.RenewInterval)
		assert.Equal(t, 2, cfg.RetryAttempts)
		assert.Equal(t, "test", cfg.Type, "unset keys keep defaults")
	})

	t.Run("env overrides file", func(t *testing.T) {
		t.Setenv("M2M_ENDPOINT", "node-env")
		t.Setenv("M2M_RENEW_INTERVAL", "5s")

		cfg, err := loadConfig(path, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "node-env", cfg.Endpoint)
		assert.Equal(t, 5*time.Second, cfg.RenewInterval)
		assert.Equal(t, "plant", cfg.Domain)
	})

	t.Run("changed flags override env", func(t *testing.T) {
		t.Setenv("M2M_ENDPOINT", "node-env")
		flags := defaultConfig()
		flags.Endpoint = "node-flag"
		flags.Domain = "ignored"

		changed := func(name string) bool { return name == "endpoint" }
		cfg, err := loadConfig(path, &flags, changed)
		require.NoError(t, err)
		assert.Equal(t, "node-flag", cfg.Endpoint)
		assert.Equal(t, "plant", cfg.Domain, "unchanged flags do not apply")
	})
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil)
		assert.ErrorContains(t, err, "read config")
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := writeConfigFile(t, "endpoint: [unclosed\n")
		_, err := loadConfig(path, nil, nil)
		assert.ErrorContains(t, err, "parse config")
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("M2M_LOCAL_PORT", "not-a-port")
		_, err := loadConfig("", nil, nil)
		assert.ErrorContains(t, err, "parse env")
	})
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := defaultConfig()
		cfg.Server = "tcp://127.0.0.1:5683"
		return cfg
	}

	require.NoError(t, validateConfig(ptr(valid())))

	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint name is required"},
		{"no server", func(c *Config) { c.Server = "" }, "server URI is required"},
		{"bad security", func(c *Config) { c.Security = "magic" }, "unknown security mode"},
		{"cert without key", func(c *Config) { c.Security = "certificate"; c.CertFile = "a.crt" }, "cert and key"},
		{"port too low", func(c *Config) { c.LocalPort = 80 }, "local port"},
		{"negative timeout", func(c *Config) { c.OperationTimeout = -time.Second }, "timeouts"},
		{"negative retry", func(c *Config) { c.RetryAttempts = -1 }, "retry attempts"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			assert.ErrorContains(t, validateConfig(&cfg), tt.want)
		})
	}

	t.Run("errors are joined", func(t *testing.T) {
		cfg := valid()
		cfg.Endpoint = ""
		cfg.LogLevel = "loud"
		err := validateConfig(&cfg)
		assert.ErrorContains(t, err, "endpoint name is required")
		assert.ErrorContains(t, err, "unknown log level")
	})
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Lifetime: 300}
	applyDefaults(&cfg)
	assert.Equal(t, uint32(300), cfg.RenewLifetime)

	cfg = Config{}
	applyDefaults(&cfg)
	assert.NotZero(t, cfg.Lifetime)
	assert.Equal(t, cfg.Lifetime, cfg.RenewLifetime)
}

func TestConfigIdentityAndSecurity(t *testing.T) {
	cfg := defaultConfig()
	cfg.Server = "tls://mgmt:5684"
	cfg.Security = "cert"
	cfg.CertFile, cfg.KeyFile = "n.crt", "n.key"

	id := cfg.identity()
	assert.Equal(t, "m2m-endpoint", id.Name)
	assert.Equal(t, session.BindingTCP, id.Binding)
	assert.Equal(t, "ModelNumber_String", id.Device.ModelNumber)

	sec := cfg.security()
	assert.Equal(t, session.SecurityCertificate, sec.Mode)
	assert.Equal(t, "tls://mgmt:5684", sec.ServerURI)
	assert.Equal(t, "n.key", sec.KeyFile)
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warning", "error"} {
		_, err := parseLogLevel(s)
		assert.NoError(t, err, s)
	}
	_, err := parseLogLevel("trace")
	assert.Error(t, err)
}

func ptr[T any](v T) *T { return &v }
