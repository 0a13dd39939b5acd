package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Archiver renders the expense report into storage and returns where it landed
type Archiver interface {
	Archive(ctx context.Context) (string, error)
	Extension() string
}

// Pruner trims stored reports down to a retention count
type Pruner interface {
	Prune(ctx context.Context, ext string, keep int) (int, error)
}

// ArchiveWorkerConfig holds configuration for the archive worker
type ArchiveWorkerConfig struct {
	Interval time.Duration
	Retain   int
}

// ArchiveStats reports what the archive worker has done so far
type ArchiveStats struct {
	Runs        int       `json:"runs"`
	Failures    int       `json:"failures"`
	LastPath    string    `json:"last_path,omitempty"`
	LastRun     time.Time `json:"last_run,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	IsRunning   bool      `json:"is_running"`
	IntervalSec float64   `json:"interval_seconds"`
}

// ArchiveWorker periodically exports the expense report to file storage
type ArchiveWorker struct {
	config   ArchiveWorkerConfig
	archiver Archiver
	pruner   Pruner
	logger   *zap.Logger

	mu        sync.RWMutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
	stats     ArchiveStats
}

// NewArchiveWorker creates a new archive worker. pruner may be nil to keep every report.
func NewArchiveWorker(config ArchiveWorkerConfig, archiver Archiver, pruner Pruner, logger *zap.Logger) *ArchiveWorker {
	return &ArchiveWorker{
		config:   config,
		archiver: archiver,
		pruner:   pruner,
		logger:   logger,
	}
}

// Name returns the worker name
func (w *ArchiveWorker) Name() string { return "report-archive" }

// Start begins the archive loop
func (w *ArchiveWorker) Start(ctx context.Context) error {
	if w.config.Interval <= 0 {
		return fmt.Errorf("archive interval must be positive, got %s", w.config.Interval)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("archive worker already running")
	}

	var runCtx context.Context
	runCtx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.isRunning = true

	w.logger.Info("ArchiveWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Int("retain", w.config.Retain))

	go w.loop(runCtx, w.done)
	return nil
}

// Stop terminates the loop and waits for an in-flight run to finish
func (w *ArchiveWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.logger.Info("ArchiveWorker stopped", zap.Int("runs", w.Stats().Runs))
	return nil
}

// Stats returns a snapshot of the worker's progress
func (w *ArchiveWorker) Stats() ArchiveStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := w.stats
	stats.IsRunning = w.isRunning
	stats.IntervalSec = w.config.Interval.Seconds()
	return stats
}

// RunOnce archives one report and applies retention
func (w *ArchiveWorker) RunOnce(ctx context.Context) error {
	path, err := w.archiver.Archive(ctx)

	w.mu.Lock()
	w.stats.Runs++
	w.stats.LastRun = time.Now()
	if err != nil {
		w.stats.Failures++
		w.stats.LastError = err.Error()
	} else {
		w.stats.LastPath = path
		w.stats.LastError = ""
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("Failed to archive report", zap.Error(err))
		return err
	}

	if w.pruner != nil && w.config.Retain > 0 {
		if _, err := w.pruner.Prune(ctx, w.archiver.Extension(), w.config.Retain); err != nil {
			w.logger.Error("Failed to prune reports", zap.Error(err))
			return err
		}
	}
	return nil
}

func (w *ArchiveWorker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = w.RunOnce(ctx)
		}
	}
}
