package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNotFound is returned when a config key has no stored value.
var ErrNotFound = errors.New("config value not found")

// Well-known configuration keys.
const (
	KeyTenantID          = "tenant_id"
	KeyClientID          = "client_id"
	KeyAPIKey            = "api_key"
	KeyToken             = "token"
	KeyUser              = "user"
	KeyHeartbeatInterval = "heartbeat_interval"
	KeyEnvironment       = "environment"
	KeyAutoRegister      = "auto_register"
)

// ConfigStore persists agent settings by string key. Values are stored as
// JSON so any serializable type round-trips.
type ConfigStore interface {
	// SetValue stores a JSON-serializable value under key.
	SetValue(key string, value interface{}) error
	// GetValue loads the value for key into dest; ErrNotFound if absent.
	GetValue(key string, dest interface{}) error
	// GetString is a convenience for string values; empty if absent.
	GetString(key string) (string, error)
	// DeleteValue removes a stored value.
	DeleteValue(key string) error
	// Close closes the underlying database.
	Close() error
}

// SQLiteConfigStore implements ConfigStore on a local SQLite database.
type SQLiteConfigStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewConfigStore opens (or creates) the settings database at dbPath.
func NewConfigStore(dbPath string) (ConfigStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config database: %w", err)
	}

	store := &SQLiteConfigStore{db: db}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteConfigStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agent_config (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create agent_config schema: %w", err)
	}
	return nil
}

func (s *SQLiteConfigStore) SetValue(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize config value %s: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO agent_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, string(data))
	if err != nil {
		return fmt.Errorf("failed to save config value %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteConfigStore) GetValue(key string, dest interface{}) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM agent_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get config value %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to parse config value %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteConfigStore) GetString(key string) (string, error) {
	var value string
	err := s.GetValue(key, &value)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return value, err
}

func (s *SQLiteConfigStore) DeleteValue(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM agent_config WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete config value %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteConfigStore) Close() error {
	return s.db.Close()
}
