package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"repairmind/print-agent/storage"
)

// Config is the agent configuration, loaded from TOML with environment
// variable overrides on top.
type Config struct {
	// Environment selects a named backend profile: development | production.
	Environment string `toml:"environment"`

	Tenant     TenantConfig     `toml:"tenant"`
	Connection ConnectionConfig `toml:"connection"`
	Printing   PrintingConfig   `toml:"printing"`
	Logging    LoggingConfig    `toml:"logging"`
}

// TenantConfig identifies this agent against the backend.
type TenantConfig struct {
	TenantID string `toml:"tenant_id"`
	ClientID string `toml:"client_id"`
	APIKey   string `toml:"api_key"`
	Token    string `toml:"token"` // Stored after first login
}

// ConnectionConfig holds backend connectivity settings.
type ConnectionConfig struct {
	WebsocketURL       string `toml:"websocket_url"` // Overrides the profile URL when set
	BackendURL         string `toml:"backend_url"`
	HeartbeatInterval  int    `toml:"heartbeat_interval_seconds"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"` // Skip TLS verification (dev/testing only)
	AutoRegister       bool   `toml:"auto_register"`
}

// PrintingConfig holds print pipeline settings.
type PrintingConfig struct {
	SNMPCommunity string `toml:"snmp_community"`
	SpoolDir      string `toml:"spool_dir"`  // Empty = <os-temp>/repairmind-print
	QueuePath     string `toml:"queue_path"` // Empty = ~/.repairmind-print/job-queue.json
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level string `toml:"level"`
	Dir   string `toml:"dir"`
}

// backendProfile pins the URLs of one named environment.
type backendProfile struct {
	WebsocketURL string
	BackendURL   string
}

var environments = map[string]backendProfile{
	"development": {
		WebsocketURL: "ws://localhost:4000/print",
		BackendURL:   "http://localhost:4000",
	},
	"production": {
		WebsocketURL: "wss://api.repairmind.app/print",
		BackendURL:   "https://api.repairmind.app",
	},
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Connection: ConnectionConfig{
			HeartbeatInterval: 30,
			AutoRegister:      true,
		},
		Printing: PrintingConfig{
			SNMPCommunity: "public",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configPath (optional) and applies environment variable
// overrides. A missing file with no explicit path falls back to defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath()
	}
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	} else if explicit {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	applyEnvOverrides(cfg)

	if _, ok := environments[cfg.Environment]; !ok {
		return nil, fmt.Errorf("unknown environment %q (want development or production)", cfg.Environment)
	}
	return cfg, nil
}

func defaultConfigPath() string {
	exeDir := filepath.Dir(os.Args[0])
	candidate := filepath.Join(exeDir, "config.toml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return "config.toml"
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("WEBSOCKET_URL"); val != "" {
		cfg.Connection.WebsocketURL = val
	}
	if val := os.Getenv("BACKEND_URL"); val != "" {
		cfg.Connection.BackendURL = val
	}
	if val := os.Getenv("TENANT_ID"); val != "" {
		cfg.Tenant.TenantID = val
	}
	if val := os.Getenv("CLIENT_ID"); val != "" {
		cfg.Tenant.ClientID = val
	}
	if val := os.Getenv("API_KEY"); val != "" {
		cfg.Tenant.APIKey = val
	}
	if val := os.Getenv("TOKEN"); val != "" {
		cfg.Tenant.Token = val
	}
	if val := os.Getenv("HEARTBEAT_INTERVAL"); val != "" {
		if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
			cfg.Connection.HeartbeatInterval = seconds
		}
	}
	if val := os.Getenv("AUTO_REGISTER"); val != "" {
		cfg.Connection.AutoRegister = isTruthy(val)
	}
	if val := os.Getenv("ENVIRONMENT"); val != "" {
		cfg.Environment = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		cfg.Logging.Level = strings.ToLower(val)
	}
}

func isTruthy(val string) bool {
	switch strings.ToLower(val) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// WebsocketURL resolves the effective websocket endpoint: explicit setting
// first, then the environment profile.
func (c *Config) WebsocketURL() string {
	if c.Connection.WebsocketURL != "" {
		return c.Connection.WebsocketURL
	}
	return environments[c.Environment].WebsocketURL
}

// BackendURL resolves the effective backend HTTP endpoint.
func (c *Config) BackendURL() string {
	if c.Connection.BackendURL != "" {
		return c.Connection.BackendURL
	}
	return environments[c.Environment].BackendURL
}

// Validate checks that the settings needed to authenticate are present.
func (c *Config) Validate() error {
	if c.Tenant.TenantID == "" {
		return errors.New("tenant_id is required (config [tenant] or TENANT_ID)")
	}
	if c.Tenant.ClientID == "" {
		return errors.New("client_id is required (config [tenant] or CLIENT_ID)")
	}
	if c.Tenant.APIKey == "" && c.Tenant.Token == "" {
		return errors.New("an api_key or token is required")
	}
	return nil
}

// MergeStore fills empty credential fields from the persisted settings
// store and writes back values that arrived via file or environment, so
// the next run works without them.
func (c *Config) MergeStore(store storage.ConfigStore) {
	merge := func(field *string, key string) {
		if *field == "" {
			if stored, err := store.GetString(key); err == nil && stored != "" {
				*field = stored
			}
			return
		}
		if err := store.SetValue(key, *field); err == nil {
			return
		}
	}
	merge(&c.Tenant.TenantID, storage.KeyTenantID)
	merge(&c.Tenant.ClientID, storage.KeyClientID)
	merge(&c.Tenant.APIKey, storage.KeyAPIKey)
	merge(&c.Tenant.Token, storage.KeyToken)

	var interval int
	if c.Connection.HeartbeatInterval > 0 {
		store.SetValue(storage.KeyHeartbeatInterval, c.Connection.HeartbeatInterval)
	} else if err := store.GetValue(storage.KeyHeartbeatInterval, &interval); err == nil && interval > 0 {
		c.Connection.HeartbeatInterval = interval
	}
	store.SetValue(storage.KeyEnvironment, c.Environment)
	store.SetValue(storage.KeyAutoRegister, c.Connection.AutoRegister)
}

// WriteDefaultConfig writes a commented starter configuration.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	f, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString(defaultConfigTOML); err != nil {
		return err
	}
	return f.Sync()
}

const defaultConfigTOML = `# RepairMind print agent configuration

# Backend profile: "development" or "production"
environment = "production"

[tenant]
tenant_id = ""
client_id = ""
api_key = ""
# token is stored automatically after the first login

[connection]
# websocket_url = "wss://api.repairmind.app/print"
heartbeat_interval_seconds = 30
auto_register = true
insecure_skip_verify = false

[printing]
snmp_community = "public"
# spool_dir = ""
# queue_path = ""

[logging]
level = "info"
# dir = ""
`
