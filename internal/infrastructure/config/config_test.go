package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-key-at-least-32-chars!"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
home:
  id: "test-home"
database:
  path: "/tmp/test.db"
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
locks:
  auto_relock_delay: 10
  initial_pin: "0411"
  face:
    min_gap: 0.2
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Home.ID != "test-home" {
		t.Errorf("Home.ID = %q, want %q", cfg.Home.ID, "test-home")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Locks.InitialPIN != "0411" {
		t.Errorf("Locks.InitialPIN = %q, want %q", cfg.Locks.InitialPIN, "0411")
	}
	if got := cfg.Locks.GetAutoRelockDelay(); got != 10*time.Second {
		t.Errorf("GetAutoRelockDelay() = %v, want 10s", got)
	}
	if cfg.Locks.Face.MinGap != 0.2 {
		t.Errorf("Face.MinGap = %v, want 0.2", cfg.Locks.Face.MinGap)
	}
	// Unset keys keep their defaults.
	if cfg.Locks.Face.MinAbsScore != 0.35 {
		t.Errorf("Face.MinAbsScore = %v, want default 0.35", cfg.Locks.Face.MinAbsScore)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("Ingest.Workers = %d, want default 4", cfg.Ingest.Workers)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
home:
  id: "test-home"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
locks:
  initial_pin: "12ab"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "locks.initial_pin") {
		t.Errorf("error = %v, want mention of locks.initial_pin", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults with secret",
			modify: func(c *Config) {},
		},
		{
			name:    "missing home id",
			modify:  func(c *Config) { c.Home.ID = "" },
			wantErr: "home.id is required",
		},
		{
			name:    "missing database path",
			modify:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "invalid qos",
			modify:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "invalid port",
			modify:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "missing jwt secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantErr: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			modify:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantErr: "at least 32 characters",
		},
		{
			name:    "pin too short",
			modify:  func(c *Config) { c.Locks.InitialPIN = "123" },
			wantErr: "locks.initial_pin",
		},
		{
			name:    "pin with letters",
			modify:  func(c *Config) { c.Locks.InitialPIN = "04a117" },
			wantErr: "locks.initial_pin",
		},
		{
			name:    "negative relock delay",
			modify:  func(c *Config) { c.Locks.AutoRelockDelay = -1 },
			wantErr: "auto_relock_delay",
		},
		{
			name:    "face score out of range",
			modify:  func(c *Config) { c.Locks.Face.MinAbsScore = 1.5 },
			wantErr: "min_abs_score",
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Ingest.Workers = 0 },
			wantErr: "ingest.workers",
		},
		{
			name:    "zero fanout queue",
			modify:  func(c *Config) { c.Fanout.QueueSize = 0 },
			wantErr: "fanout.queue_size",
		},
		{
			name:    "negative history retention",
			modify:  func(c *Config) { c.History.Retention = -1 },
			wantErr: "history.retention",
		},
		{
			name:    "retention without prune interval",
			modify:  func(c *Config) { c.History.PruneInterval = 0 },
			wantErr: "history.prune_interval",
		},
		{
			name: "retention disabled ignores interval",
			modify: func(c *Config) {
				c.History.Retention = 0
				c.History.PruneInterval = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Security.JWT.Secret = testSecret
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Timeouts = APITimeoutConfig{Read: 10, Write: 20, Idle: 30}

	if got := cfg.GetReadTimeout(); got != 10*time.Second {
		t.Errorf("GetReadTimeout() = %v, want 10s", got)
	}
	if got := cfg.GetWriteTimeout(); got != 20*time.Second {
		t.Errorf("GetWriteTimeout() = %v, want 20s", got)
	}
	if got := cfg.GetIdleTimeout(); got != 30*time.Second {
		t.Errorf("GetIdleTimeout() = %v, want 30s", got)
	}
	if got := cfg.Locks.Dispatch.GetInitialBackoff(); got != 200*time.Millisecond {
		t.Errorf("GetInitialBackoff() = %v, want 200ms", got)
	}
	if got := cfg.History.GetRetention(); got != 720*time.Hour {
		t.Errorf("GetRetention() = %v, want 720h", got)
	}
	if got := cfg.History.GetPruneInterval(); got != time.Hour {
		t.Errorf("GetPruneInterval() = %v, want 1h", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/env/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.env")
	t.Setenv("GRAYLOGIC_MQTT_PORT", "8883")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "env-secret")
	t.Setenv("GRAYLOGIC_LOCK_PIN", "9999")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Database.Path != "/env/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/env/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.env" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.env")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.Security.JWT.Secret != "env-secret" {
		t.Errorf("JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "env-secret")
	}
	if cfg.Locks.InitialPIN != "9999" {
		t.Errorf("Locks.InitialPIN = %q, want %q", cfg.Locks.InitialPIN, "9999")
	}
}

func TestApplyEnvOverrides_InvalidPortIgnored(t *testing.T) {
	t.Setenv("GRAYLOGIC_MQTT_PORT", "not-a-number")

	cfg := defaultConfig()
	applyEnvOverrides(cfg)

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want default 1883", cfg.MQTT.Broker.Port)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Locks.InitialPIN != "041117" {
		t.Errorf("default InitialPIN = %q, want %q", cfg.Locks.InitialPIN, "041117")
	}
	if cfg.Store.EventBuffer != 200 {
		t.Errorf("default Store.EventBuffer = %d, want 200", cfg.Store.EventBuffer)
	}
	if cfg.Store.RejectStale {
		t.Error("default Store.RejectStale = true, want false")
	}
	if cfg.Fanout.QueueSize != 64 {
		t.Errorf("default Fanout.QueueSize = %d, want 64", cfg.Fanout.QueueSize)
	}
	if cfg.API.Port != 5000 {
		t.Errorf("default API.Port = %d, want 5000", cfg.API.Port)
	}
}
