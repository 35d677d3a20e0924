package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Notifications controls event delivery sinks and per-kind toggles.
type Notifications struct {
	NtfyTopic       string `toml:"ntfy_topic"`
	RequestTimeout  int    `toml:"request_timeout"`
	EventLogEnabled bool   `toml:"event_log_enabled"`
	EventLogPath    string `toml:"event_log_path"`
	QueueSize       int    `toml:"queue_size"`
	MaxAttempts     int    `toml:"max_attempts"`
	TaskAssigned    bool   `toml:"task_assigned"`
	TaskCompleted   bool   `toml:"task_completed"`
	HotfixAdded     bool   `toml:"hotfix_added"`
	StaleDetected   bool   `toml:"stale_detected"`
}

// DeveloperEntry is a statically configured developer identity.
type DeveloperEntry struct {
	ID    string `toml:"id"`
	Email string `toml:"email"`
}

// Directory configures developer lookups. When URL is empty the static
// Developers list is authoritative.
type Directory struct {
	URL            string           `toml:"url"`
	APIToken       string           `toml:"api_token"`
	RequestTimeout int              `toml:"request_timeout"`
	Developers     []DeveloperEntry `toml:"developers"`
}

// Stale configures the periodic stale task scan.
type Stale struct {
	Enabled          bool   `toml:"enabled"`
	ScanInterval     int    `toml:"scan_interval"`
	Threshold        int    `toml:"threshold"`
	RunOnStart       bool   `toml:"run_on_start"`
	PlaceholderEmail string `toml:"placeholder_email"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for FlowOps.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories plus the API bind address
//   - Notifications: event sinks (ntfy push, JSONL event log)
//   - Directory: developer identity lookups
//   - Stale: stale task detector cadence and threshold
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Notifications Notifications `toml:"notifications"`
	Directory     Directory     `toml:"directory"`
	Stale         Stale         `toml:"stale"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("flowops.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the release store database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "flowops.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "flowops.lock")
}

// ScanInterval returns the stale detector period.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Stale.ScanInterval) * time.Second
}

// StaleThreshold returns how long a task may stay in progress before it is reported.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.Stale.Threshold) * time.Second
}

// NotifyTimeout returns the per-request timeout for push notifications.
func (c *Config) NotifyTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// DirectoryTimeout returns the per-request timeout for directory lookups.
func (c *Config) DirectoryTimeout() time.Duration {
	return time.Duration(c.Directory.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
