// BGAPP - Marine Monitoring Platform for the Angola Exclusive Economic Zone
// Copyright 2026 BGAPP Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/bgapp-platform/bgapp

package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/bgapp-platform/bgapp/internal/config"
)

// Router wraps the Watermill router with the task middleware chain:
// panic recovery, exponential backoff retry, optional throttling, and
// poison-queue routing for messages that exhaust their retries.
type Router struct {
	router  *message.Router
	logger  watermill.LoggerAdapter
	running bool
}

// NewRouter builds the router from broker config. poisonPublisher
// receives exhausted messages; pass nil to disable the poison queue.
func NewRouter(cfg *config.NATSConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Router, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	closeTimeout := cfg.RouterCloseTimeout
	if closeTimeout <= 0 {
		closeTimeout = 30 * time.Second
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: closeTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill router: %w", err)
	}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RouterRetryCount,
		InitialInterval: cfg.RouterRetryInitialInterval,
		MaxInterval:     cfg.RouterRetryMaxInterval,
		Multiplier:      cfg.RouterRetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.RouterThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(int64(cfg.RouterThrottlePerSecond), time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	if poisonPublisher != nil && cfg.RouterPoisonQueueEnabled && cfg.RouterPoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.RouterPoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	return &Router{router: wmRouter, logger: logger}, nil
}

// AddQueueWorker registers the worker as a consumer handler for one
// priority-class subscriber.
func (r *Router) AddQueueWorker(sub *Subscriber, worker *Worker) {
	r.router.AddConsumerHandler(
		"tasks-"+sub.config.Name,
		sub.Topic(),
		sub,
		worker.Handle,
	)
}

// AddPoisonWorker registers the dead-letter consumer.
func (r *Router) AddPoisonWorker(sub *Subscriber, worker *Worker) {
	r.router.AddConsumerHandler(
		"tasks-poison",
		sub.Topic(),
		sub,
		worker.HandlePoison,
	)
}

// Run starts the router and blocks until context cancellation.
func (r *Router) Run(ctx context.Context) error {
	r.running = true
	defer func() { r.running = false }()
	return r.router.Run(ctx)
}

// Running returns a channel that closes once the router is processing.
func (r *Router) Running() <-chan struct{} {
	return r.router.Running()
}

// IsRunning reports whether the router is processing messages.
func (r *Router) IsRunning() bool {
	return r.running
}

// Close stops the router, waiting up to the close timeout for in-flight
// handlers.
func (r *Router) Close() error {
	return r.router.Close()
}
