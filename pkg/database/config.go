package database

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds database configuration
type Config struct {
	DatabasePath    string        `json:"database_path" yaml:"database_path"`
	MaxConnections  int           `json:"max_connections" yaml:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
}

// DefaultConfig returns production database configuration
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    "./data/eduhub.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 10,
	}
}

// Validate ensures the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return errors.New("max connections must be greater than 0")
	}
	if c.ConnMaxLifetime <= 0 {
		return errors.New("connection max lifetime must be greater than 0")
	}
	if c.ConnMaxIdleTime <= 0 {
		return errors.New("connection max idle time must be greater than 0")
	}
	return nil
}

// WAL keeps readers unblocked while the manager's single writer commits.
const sqliteOptimizations = `
	PRAGMA journal_mode = WAL;
	PRAGMA synchronous = NORMAL;
	PRAGMA cache_size = -64000;
	PRAGMA temp_store = MEMORY;
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;
`

// ApplyPragmas applies the SQLite tuning pragmas to an open handle.
func ApplyPragmas(db *sql.DB) error {
	_, err := db.Exec(sqliteOptimizations)
	return err
}
