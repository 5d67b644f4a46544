package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.SpoolDir, err = expandPath(c.Paths.SpoolDir); err != nil {
		return err
	}

	if c.Bus.Partitions == 0 {
		c.Bus.Partitions = defaultBusPartitions
	}
	if c.Bus.DeliveryAttempts == 0 {
		c.Bus.DeliveryAttempts = defaultDeliveryAttempts
	}
	if c.Bus.BufferSize <= 0 {
		c.Bus.BufferSize = defaultBusBufferSize
	}
	if c.Alerting.ThresholdWindowSeconds == 0 {
		c.Alerting.ThresholdWindowSeconds = defaultThresholdWindowSec
	}
	if c.Alerting.ThresholdCount == 0 {
		c.Alerting.ThresholdCount = defaultThresholdCount
	}
	if c.Pipeline.SpoolPollInterval <= 0 {
		c.Pipeline.SpoolPollInterval = defaultSpoolPollInterval
	}
	if c.Pipeline.ErrorRetryInterval <= 0 {
		c.Pipeline.ErrorRetryInterval = defaultErrorRetryInterval
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", trimmed, err)
	}
	return abs, nil
}
