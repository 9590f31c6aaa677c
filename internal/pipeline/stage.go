// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/n6-community/n6/internal/cache"
)

// FlushOut is the sentinel value a Stage's iterative-publishing driver
// sends on its channel to force a flush of any buffered output, matching
// spec.md §4.3's FLUSH_OUT control value.
const FlushOut = "\x00FLUSH_OUT\x00"

// StageConfig configures the router middleware chain for one stage.
type StageConfig struct {
	Name string

	CloseTimeout time.Duration

	RetryMaxRetries      int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	RetryMultiplier      float64

	ThrottlePerSecond int64

	// PoisonQueueTopic is the dead-letter routing key a message is
	// published to (then acked) once retries are exhausted — the
	// Watermill-idiomatic equivalent of AMQP nack-without-requeue.
	PoisonQueueTopic string

	DeduplicationEnabled bool
	DeduplicationTTL     time.Duration
}

// DefaultStageConfig returns production defaults.
func DefaultStageConfig(name string) StageConfig {
	return StageConfig{
		Name:                 name,
		CloseTimeout:         30 * time.Second,
		RetryMaxRetries:      5,
		RetryInitialInterval: time.Second,
		RetryMaxInterval:     time.Minute,
		RetryMultiplier:      2.0,
		DeduplicationTTL:     5 * time.Minute,
	}
}

// InMemoryDeduplicator is an exact-match message-id deduplicator backed
// by the shared LRU cache, used by the optional Deduplicator middleware.
type InMemoryDeduplicator struct {
	cache *cache.LRUCache
}

// NewInMemoryDeduplicator returns a deduplicator with a bounded entry
// count, avoiding unbounded memory growth under sustained traffic.
func NewInMemoryDeduplicator(ttl time.Duration) *InMemoryDeduplicator {
	return &InMemoryDeduplicator{cache: cache.NewLRUCache(10000, ttl)}
}

// IsDuplicate implements middleware.ExpiringKeyRepository.
func (d *InMemoryDeduplicator) IsDuplicate(_ context.Context, key string) (bool, error) {
	return d.cache.IsDuplicate(key), nil
}

// Stage wraps a Watermill router with the retry/poison-queue/dedup
// middleware chain common to every n6 pipeline process.
type Stage struct {
	router    *message.Router
	config    StageConfig
	logger    watermill.LoggerAdapter
	poisonPub message.Publisher
	dedup     *InMemoryDeduplicator
}

// NewStage builds a Stage. poisonPublisher may be nil to disable the
// poison queue (e.g. in tests).
func NewStage(cfg StageConfig, poisonPublisher message.Publisher, logger watermill.LoggerAdapter) (*Stage, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	wmRouter, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.CloseTimeout}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	s := &Stage{router: wmRouter, config: cfg, logger: logger, poisonPub: poisonPublisher}

	wmRouter.AddMiddleware(middleware.Recoverer)

	retry := middleware.Retry{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
		Multiplier:      cfg.RetryMultiplier,
		Logger:          logger,
	}
	wmRouter.AddMiddleware(retry.Middleware)

	if cfg.ThrottlePerSecond > 0 {
		throttle := middleware.NewThrottle(cfg.ThrottlePerSecond, time.Second)
		wmRouter.AddMiddleware(throttle.Middleware)
	}

	if cfg.DeduplicationEnabled {
		s.dedup = NewInMemoryDeduplicator(cfg.DeduplicationTTL)
		dedup := middleware.Deduplicator{
			KeyFactory: func(msg *message.Message) (string, error) { return msg.UUID, nil },
			Repository: s.dedup,
		}
		wmRouter.AddMiddleware(dedup.Middleware)
	}

	if poisonPublisher != nil && cfg.PoisonQueueTopic != "" {
		poisonQueue, err := middleware.PoisonQueue(poisonPublisher, cfg.PoisonQueueTopic)
		if err != nil {
			return nil, fmt.Errorf("create poison queue middleware: %w", err)
		}
		wmRouter.AddMiddleware(poisonQueue)
	}

	return s, nil
}

// AddHandler registers a handler that consumes from subscribeTopic and
// publishes its results to publishTopic (empty publisher/topic for a
// consumer-only stage such as the recorder).
func (s *Stage) AddHandler(name, subscribeTopic string, subscriber message.Subscriber, publishTopic string, publisher message.Publisher, handler message.HandlerFunc) *message.Handler {
	return s.router.AddHandler(name, subscribeTopic, subscriber, publishTopic, publisher, handler)
}

// AddConsumerHandler registers a handler that produces no output message.
func (s *Stage) AddConsumerHandler(name, subscribeTopic string, subscriber message.Subscriber, handler message.NoPublishHandlerFunc) *message.Handler {
	return s.router.AddConsumerHandler(name, subscribeTopic, subscriber, handler)
}

// Run blocks until ctx is canceled or Close is called, draining in-flight
// handlers (up to CloseTimeout) before returning — the graceful-drain
// requirement from spec.md §5.
func (s *Stage) Run(ctx context.Context) error {
	return s.router.Run(ctx)
}

// Running returns a channel that closes once the router has started.
func (s *Stage) Running() <-chan struct{} { return s.router.Running() }

// Close stops the router, waiting up to CloseTimeout for in-flight
// handlers to finish.
func (s *Stage) Close() error { return s.router.Close() }

// IterativePublisher drives publishing from an internal ticker rather
// than from consumed messages (the notifier, and any future collector).
// Values sent on Items are published to Topic; FlushOut forces the
// publisher to flush any buffering layer beneath it before continuing.
type IterativePublisher struct {
	Items chan string
	Topic string

	publisher message.Publisher
}

// NewIterativePublisher returns a driver bound to publisher/topic.
func NewIterativePublisher(publisher message.Publisher, topic string) *IterativePublisher {
	return &IterativePublisher{Items: make(chan string), Topic: topic, publisher: publisher}
}

// Run consumes Items until ctx is done or the channel is closed,
// publishing each non-sentinel value as a new message body.
func (p *IterativePublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-p.Items:
			if !ok {
				return nil
			}
			if item == FlushOut {
				continue
			}
			msg := message.NewMessage(watermill.NewUUID(), []byte(item))
			if err := p.publisher.Publish(p.Topic, msg); err != nil {
				return fmt.Errorf("publish iterative item: %w", err)
			}
		}
	}
}
