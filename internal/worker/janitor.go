package worker

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

// janitorLockName is the distributed lock shared by every replica's janitor.
const janitorLockName = "janitor"

// Cleaner removes expired records. driven.OAuthStateStore and
// driven.StagingStore both satisfy it.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Janitor periodically removes expired OAuth states and staged
// connections. With a lock configured only one replica sweeps per tick.
type Janitor struct {
	cleaners map[string]Cleaner
	names    []string
	lock     driven.DistributedLock
	interval time.Duration
	lockTTL  time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// JanitorConfig holds configuration for the janitor.
type JanitorConfig struct {
	// Cleaners are swept in name order; nil entries are skipped.
	Cleaners map[string]Cleaner

	// Lock is optional; without it every replica sweeps.
	Lock driven.DistributedLock

	Interval time.Duration // default 5m
	LockTTL  time.Duration // default 2m
	Logger   *zap.Logger
}

// NewJanitor creates a new janitor.
func NewJanitor(cfg JanitorConfig) *Janitor {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}

	cleaners := make(map[string]Cleaner, len(cfg.Cleaners))
	names := make([]string, 0, len(cfg.Cleaners))
	for name, c := range cfg.Cleaners {
		if c == nil {
			continue
		}
		cleaners[name] = c
		names = append(names, name)
	}
	sort.Strings(names)

	return &Janitor{
		cleaners: cleaners,
		names:    names,
		lock:     cfg.Lock,
		interval: interval,
		lockTTL:  lockTTL,
		timeout:  lockTTL,
		logger:   logger.Named("janitor"),
	}
}

// Start begins the sweep loop. It runs until Stop is called or ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	j.mu.Unlock()

	j.logger.Info("janitor starting",
		zap.Duration("interval", j.interval),
		zap.Strings("cleaners", j.names),
	)

	go j.run(ctx)
	return nil
}

// Stop gracefully stops the janitor and waits for an in-flight sweep.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopCh)
	doneCh := j.doneCh
	j.mu.Unlock()

	<-doneCh

	j.mu.Lock()
	j.running = false
	j.mu.Unlock()

	j.logger.Info("janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.doneCh)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs every cleaner once. It returns false when the sweep was
// skipped because the lock is held elsewhere or could not be acquired.
func (j *Janitor) Sweep(ctx context.Context) bool {
	if j.lock != nil {
		acquired, err := j.lock.Acquire(ctx, janitorLockName, j.lockTTL)
		if err != nil {
			j.logger.Warn("failed to acquire janitor lock", zap.Error(err))
			return false
		}
		if !acquired {
			j.logger.Debug("janitor lock held by another instance, skipping sweep")
			return false
		}
		defer func() {
			if err := j.lock.Release(context.WithoutCancel(ctx), janitorLockName); err != nil {
				j.logger.Warn("failed to release janitor lock", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	for _, name := range j.names {
		start := time.Now()
		if err := j.cleaners[name].Cleanup(ctx); err != nil {
			j.logger.Error("cleanup failed", zap.String("store", name), zap.Error(err))
			continue
		}
		j.logger.Debug("cleanup done", zap.String("store", name), zap.Duration("duration", time.Since(start)))
	}
	return true
}
