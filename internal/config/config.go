package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	SpoolDir string `toml:"spool_dir"`
}

// Bus contains configuration for the in-process message bus.
type Bus struct {
	Partitions       int `toml:"partitions"`
	DeliveryAttempts int `toml:"delivery_attempts"`
	BufferSize       int `toml:"buffer_size"`
}

// Alerting contains configuration for error-rate gated alert logging.
type Alerting struct {
	ThresholdWindowSeconds int `toml:"threshold_window_seconds"`
	ThresholdCount         int `toml:"threshold_count"`
}

// Pipeline contains configuration for daemon timing.
type Pipeline struct {
	SpoolPollInterval  int `toml:"spool_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for sbomflow.
//
// Configuration sections by subsystem:
//   - Paths: data, log and upload spool directories
//   - Bus: in-process message bus sizing and redelivery
//   - Alerting: threshold guard for repeated consumer failures
//   - Pipeline: daemon polling intervals
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Bus      Bus      `toml:"bus"`
	Alerting Alerting `toml:"alerting"`
	Pipeline Pipeline `toml:"pipeline"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/sbomflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized. The boolean reports whether a
// config file was found at the resolved path.
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
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// Validate checks configuration invariants that normalization cannot repair.
func (c *Config) Validate() error {
	var problems []string
	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must not be empty")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must not be empty")
	}
	if c.Paths.SpoolDir == "" {
		problems = append(problems, "paths.spool_dir must not be empty")
	}
	if c.Bus.Partitions < 1 {
		problems = append(problems, "bus.partitions must be at least 1")
	}
	if c.Bus.DeliveryAttempts < 1 {
		problems = append(problems, "bus.delivery_attempts must be at least 1")
	}
	if c.Alerting.ThresholdWindowSeconds < 1 {
		problems = append(problems, "alerting.threshold_window_seconds must be at least 1")
	}
	if c.Alerting.ThresholdCount < 1 {
		problems = append(problems, "alerting.threshold_count must be at least 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnsureDirectories creates the directories the daemon expects to exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.SpoolDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
