package supervisor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config controls the frontend process manager. Fields left unset in the
// TOML file keep their defaults.
type Config struct {
	LogDir  string   `toml:"log_dir"`
	Command string   `toml:"command"`
	Args    []string `toml:"args"`

	MaxRestartAttempts   int `toml:"max_restart_attempts"`
	RestartWindowSeconds int `toml:"restart_window_seconds"`
	MinUptimeSeconds     int `toml:"min_uptime_seconds"`
	RestartDelaySeconds  int `toml:"restart_delay_seconds"`
}

func DefaultConfig() Config {
	return Config{
		LogDir:               "logs",
		Command:              "frontend",
		MaxRestartAttempts:   5,
		RestartWindowSeconds: 60,
		MinUptimeSeconds:     3,
		RestartDelaySeconds:  2,
	}
}

// LoadConfig reads a TOML config over the defaults. A missing file is not
// an error; the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.LogDir == "" {
		return errors.New("log_dir must not be empty")
	}
	if c.Command == "" {
		return errors.New("command must not be empty")
	}
	if c.MaxRestartAttempts < 1 {
		return errors.New("max_restart_attempts must be at least 1")
	}
	if c.RestartWindowSeconds < 1 {
		return errors.New("restart_window_seconds must be at least 1")
	}
	if c.MinUptimeSeconds < 0 {
		return errors.New("min_uptime_seconds must not be negative")
	}
	if c.RestartDelaySeconds < 0 {
		return errors.New("restart_delay_seconds must not be negative")
	}
	return nil
}

func (c Config) PIDPath() string      { return filepath.Join(c.LogDir, "frontend.pid") }
func (c Config) LockPath() string     { return filepath.Join(c.LogDir, "frontend.lock") }
func (c Config) LogPath() string      { return filepath.Join(c.LogDir, "frontend.log") }
func (c Config) ErrorLogPath() string { return filepath.Join(c.LogDir, "frontend_error.log") }

func (c Config) RestartWindow() time.Duration {
	return time.Duration(c.RestartWindowSeconds) * time.Second
}

func (c Config) MinUptime() time.Duration {
	return time.Duration(c.MinUptimeSeconds) * time.Second
}

func (c Config) RestartDelay() time.Duration {
	return time.Duration(c.RestartDelaySeconds) * time.Second
}
