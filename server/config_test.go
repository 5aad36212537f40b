package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, http://b.example,")
	t.Setenv("MAX_PLAYERS", "4")
	t.Setenv("PONG_WAIT", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4000", cfg.Addr())
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Origins())
	assert.Equal(t, 4, cfg.MaxPlayers)
	assert.Equal(t, 30*time.Second, cfg.PongWait)
	assert.Equal(t, 10*time.Second, cfg.WriteWait)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("MAX_PLAYERS", "0")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"no capacity", func(c *Config) { c.MaxPlayers = 0 }},
		{"empty room name", func(c *Config) { c.RoomName = "" }},
		{"zero send queue", func(c *Config) { c.SendQueueSize = 0 }},
		{"zero pong wait", func(c *Config) { c.PongWait = 0 }},
		{"negative write wait", func(c *Config) { c.WriteWait = -time.Second }},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
