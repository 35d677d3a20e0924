package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeNotifications(); err != nil {
		return err
	}
	c.normalizeDirectory()
	c.normalizeStale()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("FLOWOPS_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeNotifications() error {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("FLOWOPS_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	c.Notifications.EventLogPath = strings.TrimSpace(c.Notifications.EventLogPath)
	if c.Notifications.EventLogPath == "" {
		c.Notifications.EventLogPath = filepath.Join(c.Paths.DataDir, defaultEventLogName)
	}
	var err error
	if c.Notifications.EventLogPath, err = expandPath(c.Notifications.EventLogPath); err != nil {
		return fmt.Errorf("notifications.event_log_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDirectory() {
	c.Directory.URL = strings.TrimRight(strings.TrimSpace(c.Directory.URL), "/")
	c.Directory.APIToken = strings.TrimSpace(c.Directory.APIToken)
	if c.Directory.APIToken == "" {
		if value, ok := os.LookupEnv("FLOWOPS_DIRECTORY_TOKEN"); ok {
			c.Directory.APIToken = strings.TrimSpace(value)
		}
	}
	for i := range c.Directory.Developers {
		c.Directory.Developers[i].ID = strings.TrimSpace(c.Directory.Developers[i].ID)
		c.Directory.Developers[i].Email = strings.TrimSpace(c.Directory.Developers[i].Email)
	}
}

func (c *Config) normalizeStale() {
	c.Stale.PlaceholderEmail = strings.TrimSpace(c.Stale.PlaceholderEmail)
	if c.Stale.PlaceholderEmail == "" {
		c.Stale.PlaceholderEmail = defaultStalePlaceholderMail
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
