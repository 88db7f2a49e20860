// Package store owns the in-memory canonical collection and the per-record
// sync-status map. Every consumer reads through it; the fetch path and the
// mutation coordinator are its only writers.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/gillesbersier/financial-assistant-dashboard/internal/core"
)

const (
	SyncSyncing SyncState = "syncing"
	SyncSuccess SyncState = "success"
	SyncError   SyncState = "error"
)

// SyncState is a record's asynchronous reconciliation state. It is
// independent of the record's business status. Absence from the map is the
// clean state.
type SyncState string

// Store holds the canonical records between fetches. Mutations are
// serialized by the internal mutex; readers get copies.
type Store struct {
	mu          sync.RWMutex
	records     []core.Record
	byID        map[string]int
	fetchErr    string
	fetchedAt   time.Time
	stale       bool // snapshot loaded from disk, no live fetch yet
	syncStates  map[string]SyncState
	subscribers []chan struct{}
}

func New() *Store {
	return &Store{
		byID:       make(map[string]int),
		syncStates: make(map[string]SyncState),
	}
}

// Replace installs a freshly normalized collection, clearing any
// collection-level fetch error. Called after every successful bulk fetch.
func (s *Store) Replace(records []core.Record) {
	s.mu.Lock()
	s.records = append([]core.Record(nil), records...)
	s.byID = make(map[string]int, len(records))
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
	s.fetchErr = ""
	s.stale = false
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	s.notify()
}

// Seed installs records loaded from the local snapshot. The collection is
// marked stale until the first live fetch replaces it.
func (s *Store) Seed(records []core.Record) {
	s.mu.Lock()
	s.records = append([]core.Record(nil), records...)
	s.byID = make(map[string]int, len(records))
	for i, r := range s.records {
		s.byID[r.ID] = i
	}
	s.stale = true
	s.mu.Unlock()
	s.notify()
}

// SetFetchError records a collection-level failure. Existing records are
// kept so the dashboard can keep rendering the last snapshot.
func (s *Store) SetFetchError(msg string) {
	s.mu.Lock()
	s.fetchErr = msg
	s.mu.Unlock()
	s.notify()
}

// FetchError returns the current collection-level error, empty when healthy.
func (s *Store) FetchError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchErr
}

// Stale reports whether the collection came from the local snapshot rather
// than a live fetch.
func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// FetchedAt returns the time of the last successful live fetch.
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Snapshot returns a copy of the collection.
func (s *Store) Snapshot() []core.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Record(nil), s.records...)
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (core.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byID[id]
	if !ok {
		return core.Record{}, false
	}
	return s.records[i], true
}

// ApplyCategory optimistically mutates the record in place and returns the
// status it ended up with (pending records advance to categorized,
// in_the_books is preserved).
func (s *Store) ApplyCategory(id string, category core.Category) (core.Status, error) {
	s.mu.Lock()
	i, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("record %q not found", id)
	}
	status := s.records[i].ApplyCategory(category)
	s.mu.Unlock()
	s.notify()
	return status, nil
}

// SetSyncState sets the reconciliation state for one record.
func (s *Store) SetSyncState(id string, state SyncState) {
	s.mu.Lock()
	s.syncStates[id] = state
	s.mu.Unlock()
	s.notify()
}

// ClearSyncState removes the entry for id, but only if it still holds the
// given state. This keeps a stale success-display timer from clobbering a
// newer syncing or error entry.
func (s *Store) ClearSyncState(id string, ifState SyncState) {
	s.mu.Lock()
	if s.syncStates[id] == ifState {
		delete(s.syncStates, id)
	}
	s.mu.Unlock()
	s.notify()
}

// SyncState returns the reconciliation state for one record.
func (s *Store) SyncState(id string) (SyncState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.syncStates[id]
	return state, ok
}

// SyncStates returns a copy of the whole sync-status map.
func (s *Store) SyncStates() map[string]SyncState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]SyncState, len(s.syncStates))
	for k, v := range s.syncStates {
		out[k] = v
	}
	return out
}

// Subscribe returns a channel that receives a signal after every change.
// Signals are coalesced; slow subscribers never block writers.
func (s *Store) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

func (s *Store) notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
