package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: test
server:
  port: 9090
factors:
  kmax: 8
  p: 1
cache:
  result_ttl: 5m
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 8, c.Factors.Kmax)
	assert.Equal(t, 1, c.Factors.P)
	assert.Equal(t, 5*time.Minute, c.Cache.ResultTTL)
	assert.Equal(t, 50, c.Factors.MaxIter, "unset keys keep defaults")
	assert.Equal(t, "local", c.Jobs.Backend)
}

func TestLoadWithEnv(t *testing.T) {
	t.Setenv("FINDS_ENV", "staging")
	t.Setenv("FINDS_REDIS_ADDR", "redis:6380")
	t.Setenv("FINDS_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("FINDS_FREDMD_URL", "/data/fred-md")

	c, err := LoadWithEnv("")
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "/data/fred-md", c.FredMD.URL)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty environment", func(c *Config) { c.Environment = "" }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown job backend", func(c *Config) { c.Jobs.Backend = "sqs" }},
		{"redis jobs without redis", func(c *Config) { c.Jobs.Backend = "redis" }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }},
		{"clickhouse without host", func(c *Config) { c.ClickHouse.Enabled = true }},
		{"penalty out of range", func(c *Config) { c.Factors.P = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
