// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/bgapp-platform/bgapp/internal/metrics"
)

// ErrTaskNotFound is returned when no record exists for a task ID.
var ErrTaskNotFound = errors.New("task not found")

const recordKeyPrefix = "task:"

// TerminalListener is invoked after a record reaches a terminal status.
// Listeners run synchronously on the worker goroutine and must not
// block; the websocket hub and group tracker both hand off internally.
type TerminalListener func(rec *Record)

// ResultStore persists task records in BadgerDB with a TTL. Records are
// written at submission and updated through the lifecycle; expired
// records vanish on their own, which keeps the store bounded without a
// sweeper.
type ResultStore struct {
	db  *badger.DB
	ttl time.Duration

	mu        sync.RWMutex
	listeners []TerminalListener
}

// NewResultStore opens the store at dir. An empty dir opens an
// in-memory store, used by tests.
func NewResultStore(dir string, ttl time.Duration) (*ResultStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}

	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &ResultStore{db: db, ttl: ttl}, nil
}

// OnTerminal registers a listener for terminal status transitions.
func (s *ResultStore) OnTerminal(fn TerminalListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Put writes a record, resetting its TTL.
func (s *ResultStore) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(recordKeyPrefix+rec.ID), data).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("store record %s: %w", rec.ID, err)
	}

	if rec.Status.Terminal() {
		s.notifyTerminal(rec)
	}
	return nil
}

// Get retrieves a record by task ID.
func (s *ResultStore) Get(id string) (*Record, error) {
	var rec Record

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("get record: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// update applies fn to the stored record under a read-modify-write.
func (s *ResultStore) update(id string, fn func(rec *Record)) (*Record, error) {
	rec, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fn(rec)
	if err := s.Put(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MarkRunning transitions a record to running.
func (s *ResultStore) MarkRunning(id string) (*Record, error) {
	now := time.Now().UTC()
	return s.update(id, func(rec *Record) {
		rec.Status = StatusRunning
		rec.StartedAt = &now
	})
}

// MarkSucceeded finishes a record with its result payload.
func (s *ResultStore) MarkSucceeded(id string, result json.RawMessage) (*Record, error) {
	now := time.Now().UTC()
	rec, err := s.update(id, func(rec *Record) {
		rec.Status = StatusSucceeded
		rec.Result = result
		rec.Error = ""
		rec.FinishedAt = &now
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskTerminal(rec.Type, string(StatusSucceeded), rec.Duration())
	return rec, nil
}

// MarkFailed finishes a record with an error message.
func (s *ResultStore) MarkFailed(id string, taskErr error) (*Record, error) {
	now := time.Now().UTC()
	rec, err := s.update(id, func(rec *Record) {
		rec.Status = StatusFailed
		rec.Error = taskErr.Error()
		rec.FinishedAt = &now
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskTerminal(rec.Type, string(StatusFailed), rec.Duration())
	return rec, nil
}

// RecordAttempt notes a transient failure without changing status. The
// retry middleware will redeliver; only exhaustion parks the task.
func (s *ResultStore) RecordAttempt(id string, attemptErr error) (*Record, error) {
	return s.update(id, func(rec *Record) {
		rec.Retries++
		rec.Error = attemptErr.Error()
	})
}

// MarkDead parks a record that exhausted its retries.
func (s *ResultStore) MarkDead(id string, reason string) (*Record, error) {
	now := time.Now().UTC()
	rec, err := s.update(id, func(rec *Record) {
		rec.Status = StatusDead
		if reason != "" {
			rec.Error = reason
		}
		rec.FinishedAt = &now
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordTaskTerminal(rec.Type, string(StatusDead), rec.Duration())
	return rec, nil
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	Status Status
	Queue  Queue
	Type   string
	Limit  int
}

// List returns records matching the filter, newest submissions first.
func (s *ResultStore) List(filter ListFilter) ([]*Record, error) {
	var out []*Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				if filter.Status != "" && rec.Status != filter.Status {
					return nil
				}
				if filter.Queue != "" && rec.Queue != filter.Queue {
					return nil
				}
				if filter.Type != "" && rec.Type != filter.Type {
					return nil
				}
				out = append(out, &rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// QueueStats aggregates record counts per priority class.
type QueueStats struct {
	Queue     Queue `json:"queue"`
	Workers   int   `json:"workers"`
	Pending   int   `json:"pending"`
	Running   int   `json:"running"`
	Succeeded int   `json:"succeeded"`
	Failed    int   `json:"failed"`
	Dead      int   `json:"dead"`
}

// Stats walks the store once and buckets record counts by queue and
// status.
func (s *ResultStore) Stats() (map[Queue]*QueueStats, error) {
	stats := make(map[Queue]*QueueStats, len(Queues))
	for _, q := range Queues {
		stats[q] = &QueueStats{Queue: q}
	}

	records, err := s.List(ListFilter{})
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		st, ok := stats[rec.Queue]
		if !ok {
			continue
		}
		switch rec.Status {
		case StatusPending:
			st.Pending++
		case StatusRunning:
			st.Running++
		case StatusSucceeded:
			st.Succeeded++
		case StatusFailed:
			st.Failed++
		case StatusDead:
			st.Dead++
		}
	}

	for _, q := range Queues {
		metrics.QueueDepth.WithLabelValues(string(q)).Set(float64(stats[q].Pending + stats[q].Running))
	}
	return stats, nil
}

// Delete removes a record, used when purging the dead-letter set.
func (s *ResultStore) Delete(id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func (s *ResultStore) notifyTerminal(rec *Record) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(rec)
	}
}

// Close closes the underlying Badger database.
func (s *ResultStore) Close() error {
	return s.db.Close()
}
