// Package consumer feeds the dispatcher from a RabbitMQ queue. Producers
// publish envelopes (notify, register, unregister) to a direct exchange;
// failed envelopes are redelivered a bounded number of times and then
// dead-lettered.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/streadway/amqp"
)

// Config holds broker connectivity and queue topology.
type Config struct {
	URL           string `yaml:"url"`
	Exchange      string `yaml:"exchange"`
	Queue         string `yaml:"queue"`
	DLQ           string `yaml:"dlq"`
	RoutingKey    string `yaml:"routing_key"`
	Prefetch      int    `yaml:"prefetch"`
	Workers       int    `yaml:"workers"`
	MaxDeliveries int    `yaml:"max_deliveries"`
}

func (c *Config) applyDefaults() {
	if c.Exchange == "" {
		c.Exchange = "pushgate.direct"
	}
	if c.Queue == "" {
		c.Queue = "pushgate.intake"
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "push"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 50
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 5
	}
}

// Consumer wires RabbitMQ connectivity, queue declaration and worker
// handling.
type Consumer struct {
	conn *amqp.Connection
	cfg  Config
	log  *slog.Logger
}

// Dial connects to the broker, retrying with exponential backoff so the
// service survives a broker that is still coming up.
func Dial(ctx context.Context, cfg Config) (*Consumer, error) {
	cfg.applyDefaults()

	var conn *amqp.Connection
	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		conn, err = amqp.Dial(cfg.URL)
		if err != nil {
			slog.Warn("Broker not reachable, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	return &Consumer{conn: conn, cfg: cfg, log: slog.Default()}, nil
}

// Start declares the topology and runs workers until the context ends.
func (c *Consumer) Start(ctx context.Context, handler func(context.Context, amqp.Delivery) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := c.setupQueue(ch); err != nil {
		return fmt.Errorf("queue setup failed: %w", err)
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos configuration failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.cfg.Queue,
		"",
		false, // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	c.log.Info("Consuming intake queue",
		"queue", c.cfg.Queue,
		"workers", c.cfg.Workers,
		"prefetch", c.cfg.Prefetch)

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-deliveries:
					if !ok {
						return
					}
					if err := handler(ctx, msg); err != nil {
						c.log.Error("Envelope handler returned error", "error", err)
					}
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

func (c *Consumer) setupQueue(ch *amqp.Channel) error {
	args := amqp.Table{}
	if c.cfg.DLQ != "" {
		args["x-dead-letter-exchange"] = ""
		args["x-dead-letter-routing-key"] = c.cfg.DLQ
	}

	if err := ch.ExchangeDeclare(
		c.cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,
		false,
		false,
		false,
		args,
	); err != nil {
		return err
	}

	if err := ch.QueueBind(
		c.cfg.Queue,
		c.cfg.RoutingKey,
		c.cfg.Exchange,
		false,
		nil,
	); err != nil {
		return err
	}

	if c.cfg.DLQ != "" {
		if _, err := ch.QueueDeclare(
			c.cfg.DLQ,
			true,
			false,
			false,
			false,
			nil,
		); err != nil {
			return err
		}
	}
	return nil
}

// Health reports whether the broker connection is still usable.
func (c *Consumer) Health(ctx context.Context) error {
	if c.conn.IsClosed() {
		return errors.New("broker connection closed")
	}
	return nil
}

// Close tears down the broker connection.
func (c *Consumer) Close() error {
	return c.conn.Close()
}
