package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"sbomflow/internal/bus"
	"sbomflow/internal/catalog"
	"sbomflow/internal/config"
	"sbomflow/internal/ingest"
	"sbomflow/internal/logging"
	"sbomflow/internal/pipeline"
	"sbomflow/internal/workflow"
)

// Daemon owns the long-running sbomflow process: it opens the stores, starts
// the bus, wires the pipeline driver and watches the spool directory for
// upload requests. A file lock keeps it single-instance.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	workflows *workflow.Store
	catalog   *catalog.Store
	broker    *bus.Broker

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	workflows, err := workflow.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open workflow store: %w", err)
	}
	catalogStore, err := catalog.Open(cfg)
	if err != nil {
		_ = workflows.Close()
		return nil, fmt.Errorf("open catalog store: %w", err)
	}
	if err := ingest.EnsureLicenseRegistry(context.Background(), catalogStore); err != nil {
		_ = workflows.Close()
		_ = catalogStore.Close()
		return nil, fmt.Errorf("seed license registry: %w", err)
	}

	broker := bus.NewBroker(cfg, logger)
	ingestPipeline := ingest.NewPipeline(catalogStore, broker, logger)
	driver := pipeline.NewDriver(workflows, catalogStore, ingestPipeline, broker, logger)
	driver.Register(broker)

	lockPath := filepath.Join(cfg.Paths.DataDir, "sbomflowd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		workflows: workflows,
		catalog:   catalogStore,
		broker:    broker,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the spool watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sbomflow daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watchSpool(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("sbomflow daemon started",
		logging.String("lock", d.lockPath),
		logging.String("spool", d.cfg.Paths.SpoolDir),
	)
	return nil
}

// Stop halts background processing, drains the bus and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.broker.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("sbomflow daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.workflows != nil {
		errs = append(errs, d.workflows.Close())
	}
	if d.catalog != nil {
		errs = append(errs, d.catalog.Close())
	}
	return errors.Join(errs...)
}

// Running reports whether the daemon loop is active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}
