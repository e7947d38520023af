package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"MLLP_LISTEN_PORT", "MLLP_IDLE_TIMEOUT", "STORE_DRIVER", "HL7_SEGMENT_SEPARATOR", "STORE_TIMEOUT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2575, cfg.ListenPort)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, 15*time.Second, cfg.StoreTimeout)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.NoError(t, cfg.Validate())

	sep, err := cfg.Separator()
	require.NoError(t, err)
	assert.Equal(t, "\r", sep)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MLLP_LISTEN_PORT", "6661")
	t.Setenv("MLLP_IDLE_TIMEOUT", "30s")
	t.Setenv("STORE_TIMEOUT", "5")
	t.Setenv("HL7_SEGMENT_SEPARATOR", "LF")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://ris@localhost/ris")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 6661, cfg.ListenPort)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	require.NoError(t, cfg.Validate())

	sep, err := cfg.Separator()
	require.NoError(t, err)
	assert.Equal(t, "\n", sep)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenPort:      2575,
			WebPort:         5678,
			IdleTimeout:     time.Minute,
			WriteTimeout:    time.Second,
			StoreTimeout:    time.Second,
			MaxMessageBytes: 1024,
			StoreDriver:     DriverMemory,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"postgres without url", func(c *Config) { c.StoreDriver = DriverPostgres }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mongo" }, "STORE_DRIVER"},
		{"bad separator", func(c *Config) { c.SegmentSeparator = "tab" }, "HL7_SEGMENT_SEPARATOR"},
		{"zero idle timeout", func(c *Config) { c.IdleTimeout = 0 }, "MLLP_IDLE_TIMEOUT"},
		{"port out of range", func(c *Config) { c.ListenPort = 70000 }, "MLLP_LISTEN_PORT"},
		{"min above max conns", func(c *Config) {
			c.StoreDriver = DriverPostgres
			c.DatabaseURL = "postgres://x"
			c.DBMinConns, c.DBMaxConns = 5, 2
		}, "DB_MIN_CONNS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, valid().Validate())
}
