// Package store tracks the lifecycle record of every admitted request,
// keyed by request id. Records live only for the lifetime of the process.
package store

import (
	"container/list"
	"sync"
	"time"

	"github.com/paperbridge/paperbridge/schemas"
)

// Store is the process-local request store. Mark operations are no-ops once
// a record is terminal; the bound evicts oldest terminal records only, so
// pending requests are never dropped.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*schemas.Record
	terminal   *list.List // ids in terminal order, oldest at front
	maxEntries int
}

// New creates a store. maxEntries <= 0 disables eviction.
func New(maxEntries int) *Store {
	return &Store{
		records:    make(map[string]*schemas.Record),
		terminal:   list.New(),
		maxEntries: maxEntries,
	}
}

// Create inserts a fresh queued record. It must be called before the item is
// placed on the work queue.
func (s *Store) Create(id string, queuedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[id] = &schemas.Record{
		Status:   schemas.StatusQueued,
		QueuedAt: queuedAt,
	}
	s.evictLocked()
}

// CreateDone inserts a record that is terminal from birth, used for cache
// hits: finished_at equals queued_at and the item never touches the queue.
func (s *Store) CreateDone(id string, result schemas.AnalysisResult, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := now
	s.records[id] = &schemas.Record{
		Status:     schemas.StatusDone,
		QueuedAt:   now,
		FinishedAt: &finished,
		Result:     result,
	}
	s.terminal.PushBack(id)
	s.evictLocked()
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (schemas.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return schemas.Record{}, false
	}
	return *rec, true
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MarkProcessing transitions a queued record to processing. Returns false if
// the record is missing or already terminal.
func (s *Store) MarkProcessing(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status.Terminal() {
		return false
	}
	rec.Status = schemas.StatusProcessing
	return true
}

// MarkDone transitions a record to done with its result. Returns false if
// the record is missing or already terminal.
func (s *Store) MarkDone(id string, result schemas.AnalysisResult, finishedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status.Terminal() {
		return false
	}
	rec.Status = schemas.StatusDone
	rec.Result = result
	rec.FinishedAt = &finishedAt
	s.terminal.PushBack(id)
	return true
}

// MarkError transitions a record to error with a human-readable message.
// Returns false if the record is missing or already terminal.
func (s *Store) MarkError(id string, msg string, finishedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status.Terminal() {
		return false
	}
	rec.Status = schemas.StatusError
	rec.Error = msg
	rec.FinishedAt = &finishedAt
	s.terminal.PushBack(id)
	return true
}

// evictLocked drops oldest terminal records while over the bound. Records
// still pending are left alone even if that keeps the store over the bound.
func (s *Store) evictLocked() {
	if s.maxEntries <= 0 {
		return
	}
	for len(s.records) > s.maxEntries {
		el := s.terminal.Front()
		if el == nil {
			return
		}
		s.terminal.Remove(el)
		delete(s.records, el.Value.(string))
	}
}
