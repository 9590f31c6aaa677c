// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package broker

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/v2/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/metrics"
)

// Client is a resilient AMQP publisher/subscriber pair, grounded on the
// teacher's eventprocessor.Publisher (NATS) pattern swapped to AMQP 0-9-1.
type Client struct {
	publisher      message.Publisher
	subscriber     message.Subscriber
	circuitBreaker *gobreaker.CircuitBreaker[any]
	logger         watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewClient connects a publisher and subscriber against the broker
// described by cfg, using Watermill's durable pub/sub AMQP config: each
// topic name gets its own fanout exchange, declared by Watermill on first
// use. The raw and event topic exchanges and the clients headers exchange
// are not declared here.
func NewClient(cfg config.BrokerConfig, logger watermill.LoggerAdapter) (*Client, error) {
	if logger == nil {
		logger = watermill.NewStdLogger(false, false)
	}

	uri, err := amqpURI(cfg)
	if err != nil {
		return nil, err
	}

	amqpConfig := wmamqp.NewDurablePubSubConfig(uri, nil)
	amqpConfig.Connection.AmqpConfig.Heartbeat = cfg.HeartbeatInterval

	if cfg.SSL {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("build tls config: %w", err)
		}
		amqpConfig.Connection.AmqpConfig.TLSClientConfig = tlsConfig
	}

	pub, err := wmamqp.NewPublisher(amqpConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create amqp publisher: %w", err)
	}

	sub, err := wmamqp.NewSubscriber(amqpConfig, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create amqp subscriber: %w", err)
	}

	var cb *gobreaker.CircuitBreaker[any]
	if cfg.CircuitBreakerName != "" {
		cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:    cfg.CircuitBreakerName,
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		})
	}

	return &Client{
		publisher:      pub,
		subscriber:     sub,
		circuitBreaker: cb,
		logger:         logger,
	}, nil
}

func amqpURI(cfg config.BrokerConfig) (string, error) {
	if cfg.Host == "" {
		return "", fmt.Errorf("broker host is required")
	}
	scheme := "amqp"
	if cfg.SSL {
		scheme = "amqps"
	}
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}
	creds := ""
	if cfg.Username != "" {
		creds = fmt.Sprintf("%s:%s@", cfg.Username, cfg.Password)
	}
	return fmt.Sprintf("%s://%s%s:%d/%s", scheme, creds, cfg.Host, cfg.Port, vhost), nil
}

func buildTLSConfig(cfg config.BrokerConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.SSLCACerts != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(cfg.SSLCACerts)
		if err != nil {
			return nil, err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %s", cfg.SSLCACerts)
		}
		tlsConfig.RootCAs = pool
	}
	if cfg.SSLCertfile != "" && cfg.SSLKeyfile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.SSLCertfile, cfg.SSLKeyfile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// Publish sends msg to the given topic (exchange.routing_key pair encoded
// by the caller), wrapped in the circuit breaker if one is configured.
func (c *Client) Publish(topic string, msg *message.Message) error {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return fmt.Errorf("broker client is closed")
	}
	c.mu.RUnlock()

	var err error
	if c.circuitBreaker != nil {
		_, err = c.circuitBreaker.Execute(func() (any, error) {
			return nil, c.publisher.Publish(topic, msg)
		})
	} else {
		err = c.publisher.Publish(topic, msg)
	}

	metrics.RecordBrokerPublish(topic, err)
	return err
}

// Subscribe returns the channel of messages bound to topic (queue name).
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return c.subscriber.Subscribe(ctx, topic)
}

// Close gracefully shuts down both the publisher and subscriber.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var firstErr error
	if err := c.publisher.Close(); err != nil {
		firstErr = err
	}
	if err := c.subscriber.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// WatermillPublisher exposes the underlying message.Publisher for wiring
// into a pipeline.Stage's router.
func (c *Client) WatermillPublisher() message.Publisher { return c.publisher }

// WatermillSubscriber exposes the underlying message.Subscriber.
func (c *Client) WatermillSubscriber() message.Subscriber { return c.subscriber }
