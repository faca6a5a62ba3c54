// Package config provides configuration management for Crewly.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for crewlyd.
type Config struct {
	Home      string          `mapstructure:"home"`
	Session   SessionConfig   `mapstructure:"session"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Events    EventsConfig    `mapstructure:"events"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	MCP       MCPConfig       `mapstructure:"mcp"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// SessionConfig selects and tunes the terminal-multiplexer session backend (C1).
type SessionConfig struct {
	// Backend selects the session backend: "pty" (default) or "tmux".
	Backend string `mapstructure:"backend"`
	// PollInterval is how often the runtime adapter (C3) re-renders a pane
	// while waiting for a ready/error pattern to appear.
	PollInterval time.Duration `mapstructure:"pollInterval"`
	// ReadyTimeout bounds how long C4 waits for a freshly-launched agent to
	// reach its first ready state.
	ReadyTimeout time.Duration `mapstructure:"readyTimeout"`
}

// DatabaseConfig holds connection configuration for the durable stores (A3:
// scheduled messages, A6: audit log). sqlite is the default, zero-config
// dialect; postgres is available for multi-process deployments.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite3 | pgx
	Path     string `mapstructure:"path"`   // sqlite file path
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbName"`
	SSLMode  string `mapstructure:"sslMode"`
}

// EventsConfig namespaces the chat-event bus (C10).
type EventsConfig struct {
	Namespace string `mapstructure:"namespace"`
}

// QueueConfig tunes the message queue (C5) and the queue processor (C6).
type QueueConfig struct {
	MaxSize    int `mapstructure:"maxSize"`
	MaxHistory int `mapstructure:"maxHistory"`
	// MaxRetries is C6's MAX_REQUEUE_RETRIES: how many times a message may
	// be requeued for readiness before the processor gives up and fails it.
	MaxRetries int `mapstructure:"maxRetries"`
	// InterMessage is C6's INTER_MESSAGE_DELAY, the pause between processing
	// two messages (spec.md recommends 10-200ms).
	InterMessage time.Duration `mapstructure:"interMessageDelay"`
	// PostIdleWait bounds C6's post-completion idle wait: a best-effort,
	// non-fatal pause for the agent to settle before the next dispatch.
	PostIdleWait time.Duration `mapstructure:"postIdleWait"`
	// ResponseTimeout is C6's DEFAULT_MESSAGE_TIMEOUT: how long the
	// processor waits on the chat event bus for the orchestrator's reply
	// before completing the message with a timeout marker.
	ResponseTimeout time.Duration `mapstructure:"responseTimeout"`
}

// SchedulerConfig tunes the scheduled-message subsystem (C8).
type SchedulerConfig struct {
	AutoAssignSettle time.Duration `mapstructure:"autoAssignSettle"`
}

// MemoryConfig tunes the memory subsystem's briefing assembly (C9).
type MemoryConfig struct {
	// MaxSectionChars bounds each independently-truncated section of a
	// generated startup briefing.
	MaxSectionChars int `mapstructure:"maxSectionChars"`
}

// MCPConfig controls the embedded MCP tool server (A5).
type MCPConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// TracingConfig controls OpenTelemetry export (A4). Empty Endpoint disables
// export and falls back to a no-op tracer.
type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("CREWLY_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// defaultHome returns ~/.crewly, respecting CREWLY_HOME.
func defaultHome() string {
	if home := os.Getenv("CREWLY_HOME"); home != "" {
		return home
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return ".crewly"
	}
	return filepath.Join(dir, ".crewly")
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("home", defaultHome())

	v.SetDefault("session.backend", "pty")
	v.SetDefault("session.pollInterval", 500*time.Millisecond)
	v.SetDefault("session.readyTimeout", 60*time.Second)

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", filepath.Join(defaultHome(), "crewly.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "crewly")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbName", "crewly")
	v.SetDefault("database.sslMode", "disable")

	v.SetDefault("events.namespace", "")

	v.SetDefault("queue.maxSize", 100)
	v.SetDefault("queue.maxHistory", 200)
	v.SetDefault("queue.maxRetries", 3)
	v.SetDefault("queue.interMessageDelay", 100*time.Millisecond)
	v.SetDefault("queue.postIdleWait", 5*time.Second)
	v.SetDefault("queue.responseTimeout", 10*time.Minute)

	v.SetDefault("scheduler.autoAssignSettle", 2*time.Second)

	v.SetDefault("memory.maxSectionChars", 2000)

	v.SetDefault("mcp.enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("tracing.endpoint", "")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix CREWLY_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory,
// $CREWLY_HOME, or /etc/crewly/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("CREWLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("session.backend", "CREWLY_SESSION_BACKEND")
	_ = v.BindEnv("logging.level", "CREWLY_LOG_LEVEL")
	_ = v.BindEnv("database.path", "CREWLY_DATABASE_PATH")
	_ = v.BindEnv("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath(defaultHome())
	v.AddConfigPath("/etc/crewly/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Session.Backend != "pty" && cfg.Session.Backend != "tmux" {
		errs = append(errs, "session.backend must be one of: pty, tmux")
	}

	if cfg.Database.Driver == "pgx" {
		if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
			errs = append(errs, "database.port must be between 1 and 65535")
		}
		if cfg.Database.DBName == "" {
			errs = append(errs, "database.dbName is required for the pgx driver")
		}
	}

	if cfg.Queue.MaxSize <= 0 {
		errs = append(errs, "queue.maxSize must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the PostgreSQL connection string for the pgx driver.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
