// Package config loads hub settings from defaults, the environment and an
// optional JSON or YAML file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EDUHUB_"

type Config struct {
	Database  *DatabaseConfig  `json:"database" yaml:"database"`
	HTTP      *HTTPConfig      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfig `json:"websocket" yaml:"websocket"`
	RateLimit *RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Auth      *AuthConfig      `json:"auth" yaml:"auth"`
	Support   *SupportConfig   `json:"support" yaml:"support"`
	Hub       *HubConfig       `json:"hub" yaml:"hub"`
	Log       *LogConfig       `json:"log" yaml:"log"`
}

type DatabaseConfig struct {
	Path           string `json:"path" yaml:"path"`
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
}

type HTTPConfig struct {
	Host            string   `json:"host" yaml:"host"`
	Port            int      `json:"port" yaml:"port"`
	ReadTimeout     Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// WebSocketConfig covers the upgrade endpoint and per-connection transport.
type WebSocketConfig struct {
	Path              string   `json:"path" yaml:"path"`
	PingInterval      Duration `json:"ping_interval" yaml:"ping_interval"`
	ReadTimeout       Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      Duration `json:"write_timeout" yaml:"write_timeout"`
	BufferSize        int      `json:"buffer_size" yaml:"buffer_size"`
	MaxMessageSize    int64    `json:"max_message_size" yaml:"max_message_size"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins"`
	UpgradesPerSecond float64  `json:"upgrades_per_second" yaml:"upgrades_per_second"`
	UpgradeBurst      int      `json:"upgrade_burst" yaml:"upgrade_burst"`
}

// RateLimitConfig is the per-(identity, frame kind) fixed window.
type RateLimitConfig struct {
	Window      Duration `json:"window" yaml:"window"`
	MaxMessages int      `json:"max_messages" yaml:"max_messages"`
}

type AuthConfig struct {
	// JWTSecret enables HS256 token verification of auth frames. Empty means
	// the identity is an external ID already validated upstream.
	JWTSecret  string `json:"jwt_secret" yaml:"jwt_secret"`
	AdminToken string `json:"admin_token" yaml:"admin_token"`
}

type SupportConfig struct {
	Mode                  string             `json:"mode" yaml:"mode"`
	Policy                string             `json:"policy" yaml:"policy"`
	MaxConcurrentSessions int                `json:"max_concurrent_sessions" yaml:"max_concurrent_sessions"`
	WelcomeText           string             `json:"welcome_text" yaml:"welcome_text"`
	QueuedText            string             `json:"queued_text" yaml:"queued_text"`
	GuestContinuity       bool               `json:"guest_continuity" yaml:"guest_continuity"`
	WorkingHours          WorkingHoursConfig `json:"working_hours" yaml:"working_hours"`
}

type WorkingHoursConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Start    string   `json:"start" yaml:"start"`
	End      string   `json:"end" yaml:"end"`
	Timezone string   `json:"timezone" yaml:"timezone"`
	Days     []string `json:"days" yaml:"days"`
}

type HubConfig struct {
	PersistTimeout      Duration `json:"persist_timeout" yaml:"persist_timeout"`
	MaintenanceSchedule string   `json:"maintenance_schedule" yaml:"maintenance_schedule"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./data/eduhub.db",
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		WebSocket: &WebSocketConfig{
			Path:              "/ws",
			PingInterval:      Duration(30 * time.Second),
			ReadTimeout:       Duration(60 * time.Second),
			WriteTimeout:      Duration(5 * time.Second),
			BufferSize:        100,
			MaxMessageSize:    64 * 1024,
			UpgradesPerSecond: 5,
			UpgradeBurst:      10,
		},
		RateLimit: &RateLimitConfig{
			Window:      Duration(time.Minute),
			MaxMessages: 30,
		},
		Auth: &AuthConfig{},
		Support: &SupportConfig{
			Mode:                  "auto",
			Policy:                "load",
			MaxConcurrentSessions: 5,
			WelcomeText:           "Hi! I'm {agent}. How can I help you today?",
			QueuedText:            "All of our agents are busy right now. We'll be with you shortly.",
			GuestContinuity:       true,
			WorkingHours: WorkingHoursConfig{
				Start:    "09:00",
				End:      "18:00",
				Timezone: "UTC",
			},
		},
		Hub: &HubConfig{
			PersistTimeout:      Duration(5 * time.Second),
			MaintenanceSchedule: "@every 1m",
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects settings the hub cannot start with.
func (c *Config) Validate() error {
	if c.Database == nil || c.HTTP == nil || c.WebSocket == nil || c.RateLimit == nil ||
		c.Auth == nil || c.Support == nil || c.Hub == nil || c.Log == nil {
		return errors.New("all configuration sections are required")
	}

	if c.Database.Path == "" {
		return errors.New("database path cannot be empty")
	}
	if c.Database.MaxConnections <= 0 {
		return errors.New("database max connections must be positive")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return errors.New("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return errors.New("HTTP host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 || c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("HTTP timeouts must be positive")
	}

	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return errors.New("WebSocket path must start with /")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return errors.New("WebSocket timeouts must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.ReadTimeout {
		return errors.New("WebSocket ping interval must be shorter than the read timeout")
	}
	if c.WebSocket.BufferSize <= 0 {
		return errors.New("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return errors.New("WebSocket max message size must be positive")
	}
	if c.WebSocket.UpgradesPerSecond <= 0 || c.WebSocket.UpgradeBurst <= 0 {
		return errors.New("WebSocket upgrade throttle must be positive")
	}

	if c.RateLimit.Window <= 0 || c.RateLimit.MaxMessages <= 0 {
		return errors.New("rate limit window and max messages must be positive")
	}

	switch c.Support.Mode {
	case "auto", "manual":
	default:
		return fmt.Errorf("support mode %q must be auto or manual", c.Support.Mode)
	}
	switch c.Support.Policy {
	case "load", "round_robin", "random":
	default:
		return fmt.Errorf("support policy %q must be load, round_robin or random", c.Support.Policy)
	}
	if c.Support.MaxConcurrentSessions <= 0 {
		return errors.New("support max concurrent sessions must be positive")
	}
	if wh := c.Support.WorkingHours; wh.Enabled {
		if _, err := time.Parse("15:04", wh.Start); err != nil {
			return fmt.Errorf("working hours start: %w", err)
		}
		if _, err := time.Parse("15:04", wh.End); err != nil {
			return fmt.Errorf("working hours end: %w", err)
		}
		if _, err := time.LoadLocation(wh.Timezone); err != nil {
			return fmt.Errorf("working hours timezone: %w", err)
		}
	}

	if c.Hub.PersistTimeout <= 0 {
		return errors.New("hub persist timeout must be positive")
	}
	if c.Hub.MaintenanceSchedule == "" {
		return errors.New("hub maintenance schedule cannot be empty")
	}

	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadFromEnv returns defaults overridden by EDUHUB_* variables.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(c *Config) {
	envString("DATABASE_PATH", &c.Database.Path)
	envInt("DATABASE_MAX_CONNECTIONS", &c.Database.MaxConnections)

	envString("HTTP_HOST", &c.HTTP.Host)
	envInt("HTTP_PORT", &c.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envDuration("HTTP_SHUTDOWN_TIMEOUT", &c.HTTP.ShutdownTimeout)

	envString("WEBSOCKET_PATH", &c.WebSocket.Path)
	envDuration("WEBSOCKET_PING_INTERVAL", &c.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	if v, ok := lookup("WEBSOCKET_ALLOWED_ORIGINS"); ok {
		c.WebSocket.AllowedOrigins = splitList(v)
	}

	envDuration("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	envInt("RATE_LIMIT_MAX_MESSAGES", &c.RateLimit.MaxMessages)

	envString("AUTH_JWT_SECRET", &c.Auth.JWTSecret)
	envString("AUTH_ADMIN_TOKEN", &c.Auth.AdminToken)

	envString("SUPPORT_MODE", &c.Support.Mode)
	envString("SUPPORT_POLICY", &c.Support.Policy)
	envInt("SUPPORT_MAX_CONCURRENT_SESSIONS", &c.Support.MaxConcurrentSessions)
	envString("SUPPORT_WELCOME_TEXT", &c.Support.WelcomeText)
	envString("SUPPORT_QUEUED_TEXT", &c.Support.QueuedText)
	envBool("SUPPORT_GUEST_CONTINUITY", &c.Support.GuestContinuity)

	envDuration("HUB_PERSIST_TIMEOUT", &c.Hub.PersistTimeout)
	envString("HUB_MAINTENANCE_SCHEDULE", &c.Hub.MaintenanceSchedule)

	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)
}

// LoadFromFile overlays a JSON or YAML file (chosen by extension) on dst.
func LoadFromFile(path string, dst *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, dst)
	default:
		err = json.Unmarshal(data, dst)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadConfigWithPrecedence builds the runtime config: defaults, then a .env
// file if present, then EDUHUB_* variables, then the config file if given.
func LoadConfigWithPrecedence(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := LoadFromEnv()

	if path != "" {
		if err := LoadFromFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *Duration) {
	if v, ok := lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
