// Package refresher keeps the in-memory collection aligned with the
// upstream system of record.
package refresher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	applog "github.com/gillesbersier/financial-assistant-dashboard/internal/log"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
)

// Fetcher retrieves the raw upstream collection.
type Fetcher interface {
	FetchRecords(ctx context.Context) ([]core.RawRecord, error)
}

// Snapshotter persists the normalized collection between runs.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, records []core.Record) error
}

// Config holds refresher configuration
type Config struct {
	// Interval is how often the collection is refreshed (default: 5m)
	Interval time.Duration
	Logger   *applog.Logger
}

// Refresher periodically fetches, normalizes and installs the record
// collection, persisting a snapshot after every successful run. Manual
// refreshes go through the same path as the ticker.
type Refresher struct {
	fetcher  Fetcher
	store    *store.Store
	snapshot Snapshotter
	interval time.Duration
	logger   *applog.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(f Fetcher, s *store.Store, snap Snapshotter, cfg Config) *Refresher {
	interval := cfg.Interval
	if interval == 0 {
		interval = 5 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = applog.ForComponent(applog.ComponentRefresher)
	}
	return &Refresher{
		fetcher:  f,
		store:    s,
		snapshot: snap,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the refresh loop. Returns an error if already running.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("refresher is already running")
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.runLoop(ctx)

	r.logger.InfoContext(ctx, "refresher started", "interval", r.interval.String())
	return nil
}

// Stop gracefully stops the refresher and waits for completion.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	close(r.stopCh)

	select {
	case <-r.doneCh:
		r.logger.InfoContext(ctx, "refresher stopped")
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "refresher stop timed out")
		return ctx.Err()
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns whether the refresher is currently running
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Refresher) runLoop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Refresh immediately on startup
	r.refresh(ctx)

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// Refresh runs one fetch cycle on demand.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.refresh(ctx)
}

func (r *Refresher) refresh(ctx context.Context) error {
	raw, err := r.fetcher.FetchRecords(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "refresh failed",
			applog.FieldOperation, applog.OpFetch,
			applog.FieldError, err)
		r.store.SetFetchError(err.Error())
		return err
	}

	records := core.Normalize(raw)
	r.store.Replace(records)

	r.logger.InfoContext(ctx, "collection refreshed",
		applog.FieldOperation, applog.OpRefresh,
		applog.FieldCount, len(records))

	if r.snapshot != nil {
		if err := r.snapshot.SaveSnapshot(ctx, records); err != nil {
			// Snapshot persistence is best effort; the live collection
			// is already installed.
			r.logger.WarnContext(ctx, "snapshot save failed",
				applog.FieldOperation, applog.OpSnapshot,
				applog.FieldError, err)
		}
	}
	return nil
}
