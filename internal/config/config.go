// Package config handles configuration loading, validation, and persistence
// for the importer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ggeimport/ggeimport/internal/network"
	"github.com/ggeimport/ggeimport/internal/protocol"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultOutputFile = "data2.json"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Server          ServerData      `json:"server"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerData contains the game server connection settings.
type ServerData struct {
	Address  string `json:"address"`
	Room     string `json:"room"`
	Language string `json:"language"`

	// Credentials are usually supplied through the environment.
	Username string `json:"username"`
	Password string `json:"password"`

	ConnectTimeoutSec int `json:"connect_timeout_sec"`
	ReadTimeoutMs     int `json:"read_timeout_ms"`
	WriteTimeoutSec   int `json:"write_timeout_sec"`

	// RequestDetails sends a detail request for every alliance member.
	RequestDetails bool                `json:"request_details"`
	RegionQueries  []RegionQueryConfig `json:"region_queries"`
}

// RegionQueryConfig is one map rectangle to query after login.
type RegionQueryConfig struct {
	World int   `json:"world"`
	X1    int64 `json:"x1"`
	Y1    int64 `json:"y1"`
	X2    int64 `json:"x2"`
	Y2    int64 `json:"y2"`
}

// ApplicationData contains everything around the import itself.
type ApplicationData struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	MQTT    MQTTConfig    `json:"mqtt"`
	API     APIConfig     `json:"api"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// StorageConfig holds the output locations. An empty SQLitePath disables
// the database snapshot.
type StorageConfig struct {
	JSONPath   string `json:"json_path"`
	SQLitePath string `json:"sqlite_path"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// APIConfig holds the read-only REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`

	// KeepServing leaves the API up after the import until interrupted.
	KeepServing bool `json:"keep_serving"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerData{
			Address:           protocol.DefaultServerAddr,
			Room:              protocol.DefaultRoom,
			Language:          protocol.DefaultLanguage,
			ConnectTimeoutSec: 10,
			ReadTimeoutMs:     2000,
			WriteTimeoutSec:   5,
			RequestDetails:    true,
		},
		ApplicationData: ApplicationData{
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
				Console:    true,
			},
			Storage: StorageConfig{
				JSONPath: DefaultOutputFile,
			},
			MQTT: MQTTConfig{
				Port:        8883,
				UseTLS:      true,
				TopicPrefix: "ggeimport",
			},
			API: APIConfig{
				Port:         DefaultAPIPort,
				RateLimitRPS: 100,
			},
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServerData returns a copy of the server configuration.
func (c *Config) GetServerData() ServerData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sd := c.Server
	sd.RegionQueries = append([]RegionQueryConfig(nil), c.Server.RegionQueries...)
	return sd
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetCredentials updates the game account used for login.
func (c *Config) SetCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server.Username = username
	c.Server.Password = password
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// NeedsCredentials returns true if no usable account is configured.
func (c *Config) NeedsCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Server.Username) < minCredentialLen || len(c.Server.Password) < minCredentialLen
}

// Credentials returns the configured account.
func (c *Config) Credentials() protocol.Credentials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return protocol.Credentials{Username: c.Server.Username, Password: c.Server.Password}
}

// SessionOptions converts the server section into session options.
func (c *Config) SessionOptions() network.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return network.Options{
		Room:           c.Server.Room,
		Language:       c.Server.Language,
		ConnectTimeout: time.Duration(c.Server.ConnectTimeoutSec) * time.Second,
		ReadTimeout:    time.Duration(c.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:   time.Duration(c.Server.WriteTimeoutSec) * time.Second,
	}
}

// RegionQueries converts the configured rectangles into requests.
func (c *Config) RegionQueries() []protocol.RegionQuery {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]protocol.RegionQuery, 0, len(c.Server.RegionQueries))
	for _, q := range c.Server.RegionQueries {
		out = append(out, protocol.RegionQuery{Region: q.World, X1: q.X1, Y1: q.Y1, X2: q.X2, Y2: q.Y2})
	}
	return out
}
