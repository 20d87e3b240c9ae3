package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// MemoryPath keeps the journal in process memory.
const MemoryPath = ":memory:"

// Config holds sqlite connection settings
type Config struct {
	DatabasePath    string        `json:"database_path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

// DefaultConfig returns production-ready database configuration for path
func DefaultConfig(path string) *Config {
	return &Config{
		DatabasePath:    path,
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

// IsMemory reports whether the database lives only in memory.
func (c *Config) IsMemory() bool {
	return c.DatabasePath == MemoryPath || strings.Contains(c.DatabasePath, "mode=memory")
}

// DSN returns the go-sqlite3 connection string.
func (c *Config) DSN() string {
	if c.IsMemory() {
		return c.DatabasePath
	}
	return c.DatabasePath + "?_busy_timeout=5000&_journal_mode=WAL"
}

// MaxOpen returns the pool size; every in-memory connection would be a separate database.
func (c *Config) MaxOpen() int {
	if c.IsMemory() {
		return 1
	}
	return c.MaxConnections
}

// SQLite optimization pragmas
// ARCHITECTURAL DISCOVERY: WAL mode enables concurrent reads while the journal
// keeps a single writer goroutine
var sqliteOptimizations = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -16000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA busy_timeout = 5000",
}

// ApplySQLiteOptimizations applies performance pragmas to the connection
func ApplySQLiteOptimizations(db *sql.DB) error {
	for _, pragma := range sqliteOptimizations {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Join(errors.New("failed to execute "+pragma), err)
		}
	}
	return nil
}
