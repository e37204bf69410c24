package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.Remote.PollInterval)
	assert.Equal(t, 1.02, cfg.Local.PaddingFactor)
	assert.Equal(t, "sqlite", cfg.Storage.Database.Driver)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
server:
  port: 9000
remote:
  api_key: from-file
  poll_interval: 2s
storage:
  root_dir: /tmp/fx
cache:
  driver: memory
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("EXTRACTTABLE_API_KEY", "from-env")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/fx")
	t.Setenv("REDIS_URL", "redis://cache:6379")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Remote.APIKey)
	assert.Equal(t, 2*time.Second, cfg.Remote.PollInterval)
	assert.Equal(t, "/tmp/fx", cfg.Storage.RootDir)
	assert.Equal(t, "postgres", cfg.Storage.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost/fx", cfg.DatabaseDSN())
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "cache:6379", cfg.Cache.Redis.Addr)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "driver", mutate: func(c *Config) { c.Storage.Database.Driver = "mysql" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Database.Driver = "postgres" }},
		{name: "cache", mutate: func(c *Config) { c.Cache.Driver = "memcached" }},
		{name: "poll", mutate: func(c *Config) { c.Remote.PollInterval = 0 }},
		{name: "padding", mutate: func(c *Config) { c.Local.PaddingFactor = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
