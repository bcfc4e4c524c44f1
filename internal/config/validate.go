package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateCamera(); err != nil {
		return err
	}
	if err := c.validateTiming(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateService() error {
	parsed, err := url.Parse(c.Service.BaseURL)
	if err != nil {
		return fmt.Errorf("service.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("service.base_url must use http or https, got %q", c.Service.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("service.base_url must include a host, got %q", c.Service.BaseURL)
	}
	return nil
}

func (c *Config) validateCamera() error {
	if c.Camera.Device == "" {
		return errors.New("camera.device must be set")
	}
	return nil
}

func (c *Config) validateTiming() error {
	return ensurePositiveMap(map[string]int{
		"service.request_timeout_ms":    c.Service.RequestTimeoutMS,
		"service.stop_timeout_ms":       c.Service.StopTimeoutMS,
		"polling.interval_ms":           c.Polling.IntervalMS,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func (c *Config) validateSession() error {
	if c.Session.IdleScore < 0 || c.Session.IdleScore > 100 {
		return errors.New("session.idle_score must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	var invalid []string
	for key, value := range values {
		if value <= 0 {
			invalid = append(invalid, key)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	slices.Sort(invalid)
	return fmt.Errorf("%s must be positive", strings.Join(invalid, ", "))
}
