package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"darkroom/internal/batch"
	"darkroom/internal/config"
	"darkroom/internal/dispatch"
	"darkroom/internal/logging"
	"darkroom/internal/priority"
	"darkroom/internal/resources"
)

// Services bundles the orchestration components the daemon hosts.
type Services struct {
	Store       *dispatch.Store
	Dispatcher  *dispatch.Dispatcher
	Coordinator *batch.Coordinator
	Calculator  *priority.Calculator
	Monitor     *resources.Monitor
}

// Daemon hosts the orchestration services and enforces single-instance
// execution through a lock file.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	svc    Services

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	JobDBPath     string
	LockFilePath  string
	ActiveBatches int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, svc Services, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || svc.Store == nil || svc.Dispatcher == nil || svc.Coordinator == nil {
		return nil, errors.New("daemon requires config, job store, dispatcher, and coordinator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.StateDir, "darkroomd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		svc:      svc,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted batches, and launches
// the resource monitor and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another darkroom daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	recovered, failed := d.svc.Coordinator.RecoverInterrupted()
	if recovered > 0 || failed > 0 {
		d.logger.Info("batch recovery finished",
			logging.Int("recovered", recovered),
			logging.Int("failed", failed))
	}

	if d.svc.Monitor != nil {
		if err := d.svc.Monitor.Start(d.ctx); err != nil {
			d.releaseOnStartFailure()
			return fmt.Errorf("start resource monitor: %w", err)
		}
	}

	if err := d.api.start(d.ctx); err != nil {
		if d.svc.Monitor != nil {
			d.svc.Monitor.Stop()
		}
		d.releaseOnStartFailure()
		return err
	}

	d.running.Store(true)
	d.logger.Info("darkroom daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background services and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.svc.Monitor != nil {
		d.svc.Monitor.Stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("darkroom daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.svc.Store.Close()
}

// APIAddr reports the bound API address, or "" before Start.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	active := 0
	for _, rec := range d.svc.Coordinator.List() {
		if !rec.Status.Terminal() {
			active++
		}
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		JobDBPath:     d.cfg.JobDBPath(),
		LockFilePath:  d.lockPath,
		ActiveBatches: active,
	}
}

func (d *Daemon) releaseOnStartFailure() {
	_ = d.lock.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.ctx = nil
}
