package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Home      HomeConfig      `yaml:"home"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Locks     LocksConfig     `yaml:"locks"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Store     StoreConfig     `yaml:"store"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	History   HistoryConfig   `yaml:"history"`
}

// HomeConfig identifies the installation.
type HomeConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// CORSConfig lists origins allowed to call the API from a browser.
// An empty list allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings for admin endpoints.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// LocksConfig contains door lock access-control settings.
type LocksConfig struct {
	// AutoRelockDelay is the number of seconds after a successful unlock
	// before the hub issues an automatic lock. Zero disables auto-relock.
	AutoRelockDelay int `yaml:"auto_relock_delay"`

	// InitialPIN seeds the shared PIN at startup.
	InitialPIN string `yaml:"initial_pin"`

	Face     FaceConfig     `yaml:"face"`
	Dispatch DispatchConfig `yaml:"dispatch"`
}

// FaceConfig tunes the biometric best-match policy.
type FaceConfig struct {
	MinAbsScore float64 `yaml:"min_abs_score"`
	MinGap      float64 `yaml:"min_gap"`
}

// DispatchConfig controls command publish retries.
type DispatchConfig struct {
	Retries          int `yaml:"retries"`
	InitialBackoffMS int `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int `yaml:"max_backoff_ms"`
}

// IngestConfig controls the bus ingest pipeline.
type IngestConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// StoreConfig controls the device state store.
type StoreConfig struct {
	EventBuffer int  `yaml:"event_buffer"`
	RejectStale bool `yaml:"reject_stale"`
}

// FanoutConfig controls subscriber delivery.
type FanoutConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// HistoryConfig controls retention of the SQLite event and snapshot log.
type HistoryConfig struct {
	// Retention is how many hours of history to keep. Zero keeps
	// everything and disables pruning.
	Retention int `yaml:"retention"`

	// PruneInterval is the number of minutes between prune passes.
	PruneInterval int `yaml:"prune_interval"`
}

// GetRetention returns the history retention as a Duration.
func (h HistoryConfig) GetRetention() time.Duration {
	return time.Duration(h.Retention) * time.Hour
}

// GetPruneInterval returns the prune interval as a Duration.
func (h HistoryConfig) GetPruneInterval() time.Duration {
	return time.Duration(h.PruneInterval) * time.Minute
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. .env file in the working directory, if present
//  4. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_LOCK_PIN
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// godotenv never overwrites variables already present in the process
	// environment, so real environment values keep precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Home: HomeConfig{
			ID:   "home-001",
			Name: "Gray Logic Home",
		},
		Database: DatabaseConfig{
			Path:        "./data/grayhub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "grayhub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 5000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 15,
			},
		},
		Locks: LocksConfig{
			AutoRelockDelay: 30,
			InitialPIN:      "041117",
			Face: FaceConfig{
				MinAbsScore: 0.35,
				MinGap:      0.10,
			},
			Dispatch: DispatchConfig{
				Retries:          3,
				InitialBackoffMS: 200,
				MaxBackoffMS:     2000,
			},
		},
		Ingest: IngestConfig{
			Workers:   4,
			QueueSize: 256,
		},
		Store: StoreConfig{
			EventBuffer: 200,
		},
		Fanout: FanoutConfig{
			QueueSize: 64,
		},
		History: HistoryConfig{
			Retention:     720,
			PruneInterval: 60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("GRAYLOGIC_LOCK_PIN"); v != "" {
		cfg.Locks.InitialPIN = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Home.ID == "" {
		errs = append(errs, "home.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// The JWT secret guards PIN rotation; a weak secret lets anyone
	// replace the door PIN.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set GRAYLOGIC_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if !validPIN(c.Locks.InitialPIN) {
		errs = append(errs, "locks.initial_pin must be 4 to 12 digits")
	}
	if c.Locks.AutoRelockDelay < 0 {
		errs = append(errs, "locks.auto_relock_delay must not be negative")
	}
	if c.Locks.Face.MinAbsScore < 0 || c.Locks.Face.MinAbsScore > 1 {
		errs = append(errs, "locks.face.min_abs_score must be between 0 and 1")
	}
	if c.Locks.Face.MinGap < 0 || c.Locks.Face.MinGap > 1 {
		errs = append(errs, "locks.face.min_gap must be between 0 and 1")
	}
	if c.Locks.Dispatch.Retries < 0 {
		errs = append(errs, "locks.dispatch.retries must not be negative")
	}

	if c.Ingest.Workers < 1 {
		errs = append(errs, "ingest.workers must be at least 1")
	}
	if c.Ingest.QueueSize < 1 {
		errs = append(errs, "ingest.queue_size must be at least 1")
	}
	if c.Fanout.QueueSize < 1 {
		errs = append(errs, "fanout.queue_size must be at least 1")
	}
	if c.History.Retention < 0 {
		errs = append(errs, "history.retention must not be negative")
	}
	if c.History.Retention > 0 && c.History.PruneInterval < 1 {
		errs = append(errs, "history.prune_interval must be at least 1 when retention is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPIN(pin string) bool {
	if len(pin) < 4 || len(pin) > 12 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetAutoRelockDelay returns the auto-relock delay as a Duration.
func (c LocksConfig) GetAutoRelockDelay() time.Duration {
	return time.Duration(c.AutoRelockDelay) * time.Second
}

// GetInitialBackoff returns the first publish retry interval.
func (c DispatchConfig) GetInitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// GetMaxBackoff returns the cap on publish retry intervals.
func (c DispatchConfig) GetMaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}
