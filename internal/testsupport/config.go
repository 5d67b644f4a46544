package testsupport

import (
	"path/filepath"
	"testing"

	"sbomflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SpoolDir = filepath.Join(base, "spool")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithBusPartitions overrides the partition count on the test config.
func WithBusPartitions(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Bus.Partitions = n
	}
}

// WithDeliveryAttempts overrides bus redelivery attempts on the test config.
func WithDeliveryAttempts(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Bus.DeliveryAttempts = n
	}
}
