// Package config loads daemon configuration from a YAML file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fentz26/pageforge/internal/cancel"
	"github.com/fentz26/pageforge/internal/events"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/orchestrator"
	"github.com/fentz26/pageforge/internal/reports"
	"github.com/fentz26/pageforge/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// Driver kinds.
const (
	DriverSimulated = "simulated"
	DriverRemote    = "remote"
)

// Config is the full daemon configuration.
type Config struct {
	Listen string `yaml:"listen" env:"PAGEFORGE_LISTEN"`
	DBPath string `yaml:"db_path" env:"PAGEFORGE_DB_PATH"`

	Log          LogConfig           `yaml:"log"`
	Orchestrator orchestrator.Config `yaml:"orchestrator"`
	Driver       DriverConfig        `yaml:"driver"`
	Invites      InvitesConfig       `yaml:"invites"`
	Redis        cancel.RedisConfig  `yaml:"redis"`
	NATS         events.NATSConfig   `yaml:"nats"`
	MinIO        reports.MinIOConfig `yaml:"minio"`
	Telemetry    telemetry.Config    `yaml:"telemetry"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"PAGEFORGE_LOG_LEVEL"`
	Format string `yaml:"format" env:"PAGEFORGE_LOG_FORMAT"`
}

// DriverConfig selects and tunes the Automation Driver.
type DriverConfig struct {
	Kind     string        `yaml:"kind" env:"PAGEFORGE_DRIVER"`
	Endpoint string        `yaml:"endpoint" env:"PAGEFORGE_DRIVER_ENDPOINT"`
	Headless bool          `yaml:"headless" env:"PAGEFORGE_DRIVER_HEADLESS"`
	Timeout  time.Duration `yaml:"timeout" env:"PAGEFORGE_DRIVER_TIMEOUT"`

	// Simulated driver knobs.
	Latency             time.Duration `yaml:"latency" env:"PAGEFORGE_DRIVER_LATENCY"`
	FailureRate         float64       `yaml:"failure_rate" env:"PAGEFORGE_DRIVER_FAILURE_RATE"`
	SessionFailureAfter int           `yaml:"session_failure_after" env:"PAGEFORGE_DRIVER_SESSION_FAILURE_AFTER"`
}

// InvitesConfig controls invite defaults and expiry.
type InvitesConfig struct {
	DefaultRole   models.Role   `yaml:"default_role" env:"PAGEFORGE_INVITE_DEFAULT_ROLE"`
	ExpireAfter   time.Duration `yaml:"expire_after" env:"PAGEFORGE_INVITE_EXPIRE_AFTER"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"PAGEFORGE_INVITE_SWEEP_INTERVAL"`
}

// Home returns the pageforge state directory.
func Home() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".pageforge")
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(Home(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:       "127.0.0.1:7466",
		DBPath:       filepath.Join(Home(), "pageforge.db"),
		Log:          LogConfig{Level: "info", Format: "text"},
		Orchestrator: *orchestrator.DefaultConfig(),
		Driver: DriverConfig{
			Kind:     DriverSimulated,
			Headless: true,
			Timeout:  30 * time.Second,
			Latency:  500 * time.Millisecond,
		},
		Invites: InvitesConfig{
			DefaultRole:   models.RoleEditor,
			ExpireAfter:   7 * 24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Telemetry: telemetry.Config{ServiceName: "pageforge"},
	}
}

// Load reads path (or DefaultPath when empty), applies environment
// overrides and validates the result. A missing default file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	switch c.Driver.Kind {
	case DriverSimulated:
	case DriverRemote:
		if c.Driver.Endpoint == "" {
			errs = append(errs, errors.New("driver.endpoint is required for the remote driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown driver.kind %q", c.Driver.Kind))
	}
	if c.Driver.FailureRate < 0 || c.Driver.FailureRate > 1 {
		errs = append(errs, errors.New("driver.failure_rate must be within [0, 1]"))
	}
	if c.Invites.DefaultRole != "" && !c.Invites.DefaultRole.Valid() {
		errs = append(errs, fmt.Errorf("invalid invites.default_role %q", c.Invites.DefaultRole))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the process logger.
func (c LogConfig) NewLogger() *slog.Logger {
	level, _ := ParseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
