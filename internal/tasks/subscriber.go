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
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
)

// SubscriberConfig holds settings for one durable subscriber.
type SubscriberConfig struct {
	URL         string
	Topic       string // NATS subject to consume
	Name        string // class name used to suffix the queue group and durable
	QueueGroup  string
	DurableName string
	Workers     int // concurrent consumers
}

// Subscriber is a durable JetStream subscriber bound to the task stream.
// Workers in the same queue group share the subject, so adding instances
// scales consumption without redelivery.
type Subscriber struct {
	subscriber message.Subscriber
	config     SubscriberConfig
}

// NewQueueSubscriber builds a subscriber for one priority class.
func NewQueueSubscriber(url string, q Queue, queueGroup, durableName string, workers int, logger watermill.LoggerAdapter) (*Subscriber, error) {
	return NewSubscriber(SubscriberConfig{
		URL:         url,
		Topic:       q.Subject(),
		Name:        string(q),
		QueueGroup:  queueGroup,
		DurableName: durableName,
		Workers:     workers,
	}, logger)
}

// NewPoisonSubscriber builds the subscriber draining the poison queue.
func NewPoisonSubscriber(url, queueGroup, durableName string, logger watermill.LoggerAdapter) (*Subscriber, error) {
	return NewSubscriber(SubscriberConfig{
		URL:         url,
		Topic:       PoisonSubject,
		Name:        "poison",
		QueueGroup:  queueGroup,
		DurableName: durableName,
		Workers:     1,
	}, logger)
}

// NewSubscriber builds a queue-group subscriber bound to the TASKS
// stream.
func NewSubscriber(cfg SubscriberConfig, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("Subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("Subscriber reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	subOpts := []natsgo.SubOpt{
		natsgo.BindStream(StreamName),
		natsgo.MaxDeliver(5),
		natsgo.MaxAckPending(cfg.Workers * 4),
		natsgo.AckWait(2 * time.Minute),
		natsgo.DeliverAll(), // tasks submitted while down still run
	}

	wmConfig := wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: fmt.Sprintf("%s-%s", cfg.QueueGroup, cfg.Name),
		SubscribersCount: cfg.Workers,
		AckWaitTimeout:   2 * time.Minute,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    false,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    fmt.Sprintf("%s-%s", cfg.DurableName, cfg.Name),
		},
	}

	sub, err := wmNats.NewSubscriber(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create subscriber for %s: %w", cfg.Topic, err)
	}

	return &Subscriber{subscriber: sub, config: cfg}, nil
}

// Subscribe returns the message channel for the given subject.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.subscriber.Subscribe(ctx, topic)
}

// Topic returns the subject this subscriber consumes.
func (s *Subscriber) Topic() string {
	return s.config.Topic
}

// Close shuts the subscriber down.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
