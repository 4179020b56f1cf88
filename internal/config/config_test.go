package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, "/ws", config.WebSocket.Path)
	assert.Equal(t, 30, config.RateLimit.MaxMessages)
	assert.Equal(t, time.Minute, config.RateLimit.Window.Std())
	assert.Equal(t, "auto", config.Support.Mode)
	assert.Equal(t, "load", config.Support.Policy)
	assert.True(t, config.Support.GuestContinuity)
	assert.Equal(t, "0.0.0.0:8080", config.Addr())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = -1 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"missing section", func(c *Config) { c.Support = nil }},
		{"relative websocket path", func(c *Config) { c.WebSocket.Path = "ws" }},
		{"ping not shorter than read timeout", func(c *Config) { c.WebSocket.PingInterval = c.WebSocket.ReadTimeout }},
		{"zero rate limit", func(c *Config) { c.RateLimit.MaxMessages = 0 }},
		{"unknown support mode", func(c *Config) { c.Support.Mode = "sometimes" }},
		{"unknown policy", func(c *Config) { c.Support.Policy = "fastest" }},
		{"bad working hours", func(c *Config) {
			c.Support.WorkingHours.Enabled = true
			c.Support.WorkingHours.Start = "9am"
		}},
		{"bad timezone", func(c *Config) {
			c.Support.WorkingHours.Enabled = true
			c.Support.WorkingHours.Timezone = "Mars/Olympus"
		}},
		{"empty maintenance schedule", func(c *Config) { c.Hub.MaintenanceSchedule = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("EDUHUB_HTTP_PORT", "9090")
	t.Setenv("EDUHUB_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("EDUHUB_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("EDUHUB_SUPPORT_GUEST_CONTINUITY", "false")
	t.Setenv("EDUHUB_WEBSOCKET_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("EDUHUB_HTTP_READ_TIMEOUT", "not-a-duration")

	config := LoadFromEnv()

	assert.Equal(t, 9090, config.HTTP.Port)
	assert.Equal(t, "/tmp/test.db", config.Database.Path)
	assert.Equal(t, 30*time.Second, config.RateLimit.Window.Std())
	assert.False(t, config.Support.GuestContinuity)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, config.WebSocket.AllowedOrigins)
	assert.Equal(t, 30*time.Second, config.HTTP.ReadTimeout.Std(), "invalid values keep the default")
}

func TestConfig_LoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"http": {"port": 9191, "read_timeout": "15s"},
		"support": {"mode": "manual", "policy": "round_robin"}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config := DefaultConfig()
	require.NoError(t, LoadFromFile(path, config))

	assert.Equal(t, 9191, config.HTTP.Port)
	assert.Equal(t, 15*time.Second, config.HTTP.ReadTimeout.Std())
	assert.Equal(t, "0.0.0.0", config.HTTP.Host, "unset fields keep their defaults")
	assert.Equal(t, "manual", config.Support.Mode)
	assert.Equal(t, "round_robin", config.Support.Policy)
	assert.Equal(t, 5, config.Support.MaxConcurrentSessions)
}

func TestConfig_LoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
websocket:
  path: /realtime
  allowed_origins:
    - https://app.example
support:
  max_concurrent_sessions: 2
  working_hours:
    enabled: true
    start: "08:00"
    end: "17:30"
    timezone: Europe/Berlin
    days: [mon, tue, wed, thu, fri]
hub:
  persist_timeout: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config := DefaultConfig()
	require.NoError(t, LoadFromFile(path, config))

	assert.Equal(t, "/realtime", config.WebSocket.Path)
	assert.Equal(t, []string{"https://app.example"}, config.WebSocket.AllowedOrigins)
	assert.Equal(t, 2, config.Support.MaxConcurrentSessions)
	assert.True(t, config.Support.WorkingHours.Enabled)
	assert.Equal(t, "Europe/Berlin", config.Support.WorkingHours.Timezone)
	assert.Len(t, config.Support.WorkingHours.Days, 5)
	assert.Equal(t, 2*time.Second, config.Hub.PersistTimeout.Std())
	assert.NoError(t, config.Validate())
}

func TestConfig_LoadFromFile_Errors(t *testing.T) {
	config := DefaultConfig()
	assert.Error(t, LoadFromFile(filepath.Join(t.TempDir(), "missing.json"), config))

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hub:\n  persist_timeout: soon\n"), 0o644))
	assert.Error(t, LoadFromFile(path, config))
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EDUHUB_HTTP_PORT", "7000")
	t.Setenv("EDUHUB_LOG_LEVEL", "debug")

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"http": {"port": 7100}}`), 0o644))

	config, err := LoadConfigWithPrecedence(path)
	require.NoError(t, err)
	assert.Equal(t, 7100, config.HTTP.Port, "file overrides environment")
	assert.Equal(t, "debug", config.Log.Level, "environment overrides defaults")

	_, err = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConfig_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("EDUHUB_SUPPORT_MODE=manual\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("EDUHUB_SUPPORT_MODE") })

	config, err := LoadConfigWithPrecedence("")
	require.NoError(t, err)
	assert.Equal(t, "manual", config.Support.Mode)
}
