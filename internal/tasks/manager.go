// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bgapp-platform/bgapp/internal/config"
	"github.com/bgapp-platform/bgapp/internal/logging"
)

// Manager owns the task system end to end: broker, stream, publisher,
// per-queue subscribers, processing router, and the result store. API
// handlers talk only to the Manager.
type Manager struct {
	cfg       *config.NATSConfig
	embedded  *EmbeddedServer // nil when using an external broker
	conn      *natsgo.Conn
	publisher *Publisher
	subs      []*Subscriber
	poisonSub *Subscriber
	router    *Router
	store     *ResultStore
	groups    *GroupTracker
	stream    *StreamInitializer
	workers   map[Queue]int
}

// NewManager brings up the broker (embedded or external), ensures the
// TASKS stream, opens the result store and wires the processing router.
// The router does not consume until Serve is called.
func NewManager(ctx context.Context, cfg *config.NATSConfig, executor *Executor) (*Manager, error) {
	m := &Manager{
		cfg:    cfg,
		groups: NewGroupTracker(),
		workers: map[Queue]int{
			QueueHigh:    cfg.WorkersHigh,
			QueueDefault: cfg.WorkersDefault,
			QueueLow:     cfg.WorkersLow,
		},
	}

	url := cfg.URL
	if cfg.EmbeddedServer {
		embedded, err := NewEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		m.embedded = embedded
		url = embedded.ClientURL()
		logging.Info().Str("url", url).Msg("Embedded NATS server started")
	}

	conn, err := natsgo.Connect(url,
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
	)
	if err != nil {
		m.shutdownPartial()
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	m.conn = conn

	js, err := jetstream.New(conn)
	if err != nil {
		m.shutdownPartial()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	m.stream, err = NewStreamInitializer(js, DefaultStreamConfig(cfg.RetentionDays))
	if err != nil {
		m.shutdownPartial()
		return nil, err
	}
	if _, err := m.stream.EnsureStream(ctx); err != nil {
		m.shutdownPartial()
		return nil, err
	}

	m.store, err = NewResultStore(cfg.ResultStoreDir, cfg.ResultTTL)
	if err != nil {
		m.shutdownPartial()
		return nil, err
	}
	m.store.OnTerminal(m.groups.Observe)

	wmLogger := NewWatermillLogger()

	m.publisher, err = NewPublisher(url, wmLogger)
	if err != nil {
		m.shutdownPartial()
		return nil, err
	}

	m.router, err = NewRouter(cfg, m.publisher.WatermillPublisher(), wmLogger)
	if err != nil {
		m.shutdownPartial()
		return nil, err
	}

	worker := NewWorker(m.store, executor)
	for _, q := range Queues {
		sub, err := NewQueueSubscriber(url, q, cfg.QueueGroup, cfg.DurableName, m.workers[q], wmLogger)
		if err != nil {
			m.shutdownPartial()
			return nil, err
		}
		m.subs = append(m.subs, sub)
		m.router.AddQueueWorker(sub, worker)
	}

	if cfg.RouterPoisonQueueEnabled {
		m.poisonSub, err = NewPoisonSubscriber(url, cfg.QueueGroup, cfg.DurableName, wmLogger)
		if err != nil {
			m.shutdownPartial()
			return nil, err
		}
		m.router.AddPoisonWorker(m.poisonSub, worker)
	}

	return m, nil
}

// Serve runs the processing router until the context is canceled.
func (m *Manager) Serve(ctx context.Context) error {
	logging.Info().
		Int("workers_high", m.workers[QueueHigh]).
		Int("workers_default", m.workers[QueueDefault]).
		Int("workers_low", m.workers[QueueLow]).
		Msg("Task router starting")
	return m.router.Run(ctx)
}

// Submit publishes a task and writes its pending record. Returns the
// record immediately; the result arrives in the store when a worker
// finishes.
func (m *Manager) Submit(ctx context.Context, taskType string, queue Queue, payload json.RawMessage) (*Record, error) {
	if !queue.Valid() {
		queue = QueueDefault
	}

	t := NewTask(taskType, queue, payload)
	rec := recordFromTask(t)

	if err := m.store.Put(rec); err != nil {
		return nil, err
	}
	if err := m.publisher.PublishTask(ctx, t); err != nil {
		// Roll the record forward to failed so it does not sit pending
		// forever for a task that never entered the queue.
		if _, markErr := m.store.MarkFailed(t.ID, err); markErr != nil {
			logging.Error().Err(markErr).Str("task_id", t.ID).Msg("Failed to mark unpublished task")
		}
		return nil, err
	}

	return rec, nil
}

// SubmitGroup publishes a set of same-type tasks as one tracked group
// and returns the group ID with the pending records. onDone fires once
// when the last member finishes.
func (m *Manager) SubmitGroup(ctx context.Context, taskType string, queue Queue, payloads []json.RawMessage, onDone func([]*Record)) (string, []*Record, error) {
	if !queue.Valid() {
		queue = QueueDefault
	}

	envelopes := make([]*Task, 0, len(payloads))
	ids := make([]string, 0, len(payloads))
	for _, p := range payloads {
		t := NewTask(taskType, queue, p)
		envelopes = append(envelopes, t)
		ids = append(ids, t.ID)
	}

	groupID := m.groups.Register(ids, onDone)

	records := make([]*Record, 0, len(envelopes))
	for _, t := range envelopes {
		t.GroupID = groupID
		rec := recordFromTask(t)
		if err := m.store.Put(rec); err != nil {
			return "", nil, err
		}
		if err := m.publisher.PublishTask(ctx, t); err != nil {
			if _, markErr := m.store.MarkFailed(t.ID, err); markErr != nil {
				logging.Error().Err(markErr).Str("task_id", t.ID).Msg("Failed to mark unpublished task")
			}
			return "", nil, err
		}
		records = append(records, rec)
	}

	return groupID, records, nil
}

// Get returns the record for one task.
func (m *Manager) Get(id string) (*Record, error) {
	return m.store.Get(id)
}

// List returns records matching the filter, newest first.
func (m *Manager) List(filter ListFilter) ([]*Record, error) {
	return m.store.List(filter)
}

// Stats returns per-queue record counts with configured worker sizes.
func (m *Manager) Stats() ([]*QueueStats, error) {
	byQueue, err := m.store.Stats()
	if err != nil {
		return nil, err
	}

	out := make([]*QueueStats, 0, len(Queues))
	for _, q := range Queues {
		st := byQueue[q]
		st.Workers = m.workers[q]
		out = append(out, st)
	}
	return out, nil
}

// GroupStatus returns tracking state for a task group.
func (m *Manager) GroupStatus(id string) (GroupStatus, bool) {
	return m.groups.Status(id)
}

// OnTaskTerminal registers a listener for terminal task transitions,
// used by the websocket hub to push lifecycle events.
func (m *Manager) OnTaskTerminal(fn TerminalListener) {
	m.store.OnTerminal(fn)
}

// Healthy reports whether the broker and router are up.
func (m *Manager) Healthy(ctx context.Context) bool {
	if m.embedded != nil && !m.embedded.IsRunning() {
		return false
	}
	if m.conn == nil || !m.conn.IsConnected() {
		return false
	}
	return m.stream.IsHealthy(ctx)
}

// PublisherBreakerState exposes the publish breaker for health output.
func (m *Manager) PublisherBreakerState() string {
	return m.publisher.BreakerState()
}

// Close tears the task system down in reverse dependency order.
func (m *Manager) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if m.router != nil {
		keep(m.router.Close())
	}
	for _, sub := range m.subs {
		keep(sub.Close())
	}
	if m.poisonSub != nil {
		keep(m.poisonSub.Close())
	}
	if m.publisher != nil {
		keep(m.publisher.Close())
	}
	if m.store != nil {
		keep(m.store.Close())
	}
	if m.conn != nil {
		m.conn.Close()
	}
	if m.embedded != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		keep(m.embedded.Shutdown(ctx))
	}
	return firstErr
}

// shutdownPartial cleans up after a failed constructor.
func (m *Manager) shutdownPartial() {
	_ = m.Close()
}
