package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateNotifications(); err != nil {
		return err
	}
	if err := c.validateDirectory(); err != nil {
		return err
	}
	if err := c.validateStale(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if err := ensurePositiveMap(map[string]int{
		"notifications.request_timeout": c.Notifications.RequestTimeout,
		"notifications.queue_size":      c.Notifications.QueueSize,
		"notifications.max_attempts":    c.Notifications.MaxAttempts,
	}); err != nil {
		return err
	}
	if topic := c.Notifications.NtfyTopic; topic != "" {
		if err := validateURL(topic); err != nil {
			return fmt.Errorf("notifications.ntfy_topic: %w", err)
		}
	}
	return nil
}

func (c *Config) validateDirectory() error {
	if c.Directory.RequestTimeout <= 0 {
		return errors.New("directory.request_timeout must be positive")
	}
	if c.Directory.URL != "" {
		if err := validateURL(c.Directory.URL); err != nil {
			return fmt.Errorf("directory.url: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(c.Directory.Developers))
	for i, dev := range c.Directory.Developers {
		if dev.ID == "" {
			return fmt.Errorf("directory.developers[%d].id must be set", i)
		}
		if _, dup := seen[dev.ID]; dup {
			return fmt.Errorf("directory.developers: duplicate id %q", dev.ID)
		}
		seen[dev.ID] = struct{}{}
	}
	return nil
}

func (c *Config) validateStale() error {
	if !c.Stale.Enabled {
		return nil
	}
	if err := ensurePositiveMap(map[string]int{
		"stale.scan_interval": c.Stale.ScanInterval,
		"stale.threshold":     c.Stale.Threshold,
	}); err != nil {
		return err
	}
	if !strings.Contains(c.Stale.PlaceholderEmail, "@") {
		return fmt.Errorf("stale.placeholder_email %q is not an email address", c.Stale.PlaceholderEmail)
	}
	return nil
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
