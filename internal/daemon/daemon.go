package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"stagequeue/internal/archive"
	"stagequeue/internal/config"
	"stagequeue/internal/lifecycle"
	"stagequeue/internal/logging"
	"stagequeue/internal/requests"
	"stagequeue/internal/reset"
	"stagequeue/internal/store"
)

// Daemon owns the request store and serves it over HTTP while enforcing
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQLite
	engine   *lifecycle.Engine
	reset    *reset.Coordinator
	archiver *archive.Dispatcher
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Bind         string
	DatabasePath string
	LockFilePath string
	Revision     uint64
	Counts       map[requests.Status]int
	Database     store.DatabaseHealth
	Archive      archive.Stats
	ArchiveOn    bool
	Player       lifecycle.PlayerCheck
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.SQLite, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	dispatcher := archive.NewDispatcher(archive.NewSink(cfg, logger), archive.DispatcherOptions{
		QueueSize:     cfg.Archive.QueueSize,
		MaxAttempts:   cfg.Archive.MaxAttempts,
		RatePerMinute: cfg.Archive.RatePerMinute,
		Timeout:       cfg.ArchiveRequestTimeout(),
	}, logger)

	engine := lifecycle.NewEngine(st,
		lifecycle.WithArchiver(dispatcher),
		lifecycle.WithOpener(lifecycle.NewOpener(cfg)),
		lifecycle.WithLogger(logger),
		lifecycle.WithSubmitTimeout(cfg.SubmitTimeout()),
		lifecycle.WithOpenTimeout(cfg.PlayerTimeout()),
	)

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   engine,
		reset:    reset.NewCoordinator(st, reset.NewGuard(cfg.ResetTicketTTL()), cfg.Store.ResetBatchSize, logger),
		archiver: dispatcher,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, starts archive delivery, and begins serving
// the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stagequeue daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.archiver.Run(d.ctx)
	}()

	d.running.Store(true)
	d.logger.Info("stagequeue daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.api.addr()))
	return nil
}

// Stop stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("stagequeue daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the address the API listens on, or the configured bind when
// not running.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Engine exposes the lifecycle engine.
func (d *Daemon) Engine() *lifecycle.Engine {
	return d.engine
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Bind:         d.api.addr(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Revision:     d.store.Revision(),
		Archive:      d.archiver.Stats(),
		ArchiveOn:    d.cfg.Archive.Enabled,
		Player:       lifecycle.CheckPlayer(d.cfg),
	}
	if counts, err := d.store.Stats(ctx); err == nil {
		status.Counts = counts
	} else {
		d.logger.Warn("request stats unavailable", logging.Error(err))
	}
	health, err := d.store.CheckHealth(ctx)
	if err != nil && health.Error == "" {
		health.Error = err.Error()
	}
	status.Database = health
	return status
}
