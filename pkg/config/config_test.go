package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func missing(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent")
}

func loadWithFile(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pcsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0600))
	return Load(viper.New(), path, missing(t))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadWithFile(t, "node_name: cat8\n")
	require.NoError(t, err)

	assert.Equal(t, "cat8", cfg.NodeName)
	assert.Equal(t, 2224, cfg.Port)
	assert.Equal(t, "/var/lib/pcsd", cfg.DataDir)
	assert.Equal(t, "/var/lib/pcsd/pcs_users.conf", cfg.TokensFile)
	assert.Equal(t, "/var/lib/pcsd/clusters.conf", cfg.ClustersFile)
	assert.Equal(t, "/var/lib/pcsd/peers.db", cfg.PeersDB)
	assert.Equal(t, "/var/lib/pcsd", cfg.CertDir)
	assert.Equal(t, 5*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, int64(10<<20), cfg.RPC.MaxBodyBytes)
	assert.Equal(t, 16, cfg.Aggregate.Concurrency)
	assert.Equal(t, time.Second, cfg.Aggregate.Slack)
	assert.Equal(t, "/usr/sbin/pcs", cfg.Tools.PCS)
	assert.Equal(t, 30*time.Second, cfg.Tools.Timeout)
	assert.Equal(t, "store", cfg.Auth.Backend)
	assert.Equal(t, 1.0, cfg.Auth.LoginRate)
	assert.Equal(t, 5, cfg.Auth.LoginBurst)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":2224", cfg.ListenAddr())
}

func TestLoadFile(t *testing.T) {
	cfg, err := loadWithFile(t, `
node_name: ace8
bind: 10.0.0.2
data_dir: /srv/pcsd
rpc:
  timeout: 2s
aggregate:
  concurrency: 4
cors:
  origins:
    - https://console.example.com
log:
  level: debug
  json: true
`)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:2224", cfg.ListenAddr())
	assert.Equal(t, "/srv/pcsd/clusters.conf", cfg.ClustersFile)
	assert.Equal(t, 2*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, 4, cfg.Aggregate.Concurrency)
	assert.Equal(t, []string{"https://console.example.com"}, cfg.CORS.Origins)
	assert.True(t, cfg.Log.JSON)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PCSD_RPC_TIMEOUT", "750ms")
	t.Setenv("PCSD_PORT", "3224")

	cfg, err := loadWithFile(t, "node_name: cat8\nport: 2225\nrpc:\n  timeout: 2s\n")
	require.NoError(t, err)

	assert.Equal(t, 750*time.Millisecond, cfg.RPC.Timeout)
	assert.Equal(t, 3224, cfg.Port)
}

func TestEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "pcsd")
	require.NoError(t, os.WriteFile(envFile, []byte("PCSD_NODE_NAME=bee8\nPCSD_LOG_LEVEL=warn\n"), 0600))
	t.Cleanup(func() {
		os.Unsetenv("PCSD_NODE_NAME")
		os.Unsetenv("PCSD_LOG_LEVEL")
	})

	cfg, err := Load(viper.New(), filepath.Join(t.TempDir(), "pcsd.yaml"), envFile)
	// explicit config file is required
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "pcsd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 2224\n"), 0600))
	cfg, err = Load(viper.New(), path, envFile)
	require.NoError(t, err)

	assert.Equal(t, "bee8", cfg.NodeName)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:      2224,
			DataDir:   "/var/lib/pcsd",
			RPC:       RPCConfig{Timeout: time.Second, MaxBodyBytes: 1024},
			Aggregate: AggregateConfig{Concurrency: 1},
			Tools:     ToolsConfig{Timeout: time.Second},
			Auth:      AuthConfig{Backend: "store"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"pam backend", func(c *Config) { c.Auth.Backend = "pam" }, false},
		{"zero port", func(c *Config) { c.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Port = 70000 }, true},
		{"no data dir", func(c *Config) { c.DataDir = "" }, true},
		{"zero rpc timeout", func(c *Config) { c.RPC.Timeout = 0 }, true},
		{"zero concurrency", func(c *Config) { c.Aggregate.Concurrency = 0 }, true},
		{"negative slack", func(c *Config) { c.Aggregate.Slack = -time.Second }, true},
		{"unknown backend", func(c *Config) { c.Auth.Backend = "ldap" }, true},
		{"negative login rate", func(c *Config) { c.Auth.LoginRate = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	_, err := loadWithFile(t, "node_name: cat8\nport: -1\n")
	assert.Error(t, err)
}
