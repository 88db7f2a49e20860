// Package syncer coordinates optimistic category mutations with the
// upstream system of record.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
	applog "github.com/gillesbersier/financial-assistant-dashboard/internal/log"
	"github.com/gillesbersier/financial-assistant-dashboard/internal/store"
)

// Updater pushes one category assignment upstream.
type Updater interface {
	UpdateCategory(ctx context.Context, id string, category core.Category, status core.Status) error
}

// Syncer applies category changes to the store immediately and reconciles
// them upstream in the background. Per-record sequence numbers make sure
// only the outcome of the most recent attempt is ever surfaced: a slow
// response from an earlier attempt cannot overwrite a newer one.
type Syncer struct {
	store      *store.Store
	updater    Updater
	logger     *applog.Logger
	successTTL time.Duration
	timeout    time.Duration

	mu   sync.Mutex
	seqs map[string]uint64

	wg sync.WaitGroup
}

type Options struct {
	// SuccessTTL is how long the success state stays visible before it is
	// cleared back to the clean state.
	SuccessTTL time.Duration
	// Timeout bounds each upstream attempt.
	Timeout time.Duration
	Logger  *applog.Logger
}

func New(s *store.Store, u Updater, opts Options) *Syncer {
	if opts.SuccessTTL == 0 {
		opts.SuccessTTL = 3 * time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.ForComponent(applog.ComponentSyncer)
	}
	return &Syncer{
		store:      s,
		updater:    u,
		logger:     logger,
		successTTL: opts.SuccessTTL,
		timeout:    opts.Timeout,
		seqs:       make(map[string]uint64),
	}
}

// UpdateCategory mutates the record optimistically and starts the upstream
// reconciliation. It returns the status the record ended up with. The call
// never blocks on the upstream; failures surface through the sync state,
// and the local mutation is never rolled back.
func (s *Syncer) UpdateCategory(id string, category core.Category) (core.Status, error) {
	status, err := s.store.ApplyCategory(id, category)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.seqs[id]++
	seq := s.seqs[id]
	s.mu.Unlock()

	s.store.SetSyncState(id, store.SyncSyncing)

	s.wg.Add(1)
	go s.reconcile(id, category, status, seq)

	return status, nil
}

func (s *Syncer) reconcile(id string, category core.Category, status core.Status, seq uint64) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	err := s.updater.UpdateCategory(ctx, id, category, status)

	if !s.isLatest(id, seq) {
		// A newer attempt owns the sync state now.
		return
	}

	fields := applog.NewFields().
		WithOperation(applog.OpUpdate).
		WithRecord(id, string(category), string(status))

	if err != nil {
		s.logger.Error("category sync failed", fields.WithError(err).ToSlice()...)
		s.store.SetSyncState(id, store.SyncError)
		return
	}

	s.logger.Info("category synced", fields.ToSlice()...)
	s.store.SetSyncState(id, store.SyncSuccess)

	time.AfterFunc(s.successTTL, func() {
		if s.isLatest(id, seq) {
			s.store.ClearSyncState(id, store.SyncSuccess)
		}
	})
}

func (s *Syncer) isLatest(id string, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[id] == seq
}

// Wait blocks until all in-flight reconciliations have finished. Success
// display timers are not waited on.
func (s *Syncer) Wait() {
	s.wg.Wait()
}
