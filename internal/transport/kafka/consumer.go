// Package kafka is the alternative inbound transport for deployments that
// mirror the notification feed into a Kafka topic. Record values carry the
// same decoded payload the push endpoint receives after base64 decoding.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/ttauveron/gcp-iam-watcher/internal/engine"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/config"
)

const maxRetryWait = 30 * time.Second

// Processor is the engine boundary the transport depends on.
type Processor interface {
	Process(ctx context.Context, raw []byte) engine.Outcome
}

// Consumer reads the feed topic within a consumer group. Offsets are
// committed per record only once processing reports processed or dropped; a
// transient failure is retried in place with capped backoff so the offset
// never advances past an unprocessed message (at-least-once).
type Consumer struct {
	client    *kgo.Client
	processor Processor
	log       *slog.Logger
}

func NewConsumer(cfg config.KafkaConfig, processor Processor, log *slog.Logger) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}
	return &Consumer{client: client, processor: processor, log: log}, nil
}

// Run polls until ctx is canceled or the client closes.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.log.Error("fetch error", "topic", topic, "partition", partition, "error", err)
		})

		iter := fetches.RecordIter()
		for !iter.Done() {
			if err := c.handle(ctx, iter.Next()); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) error {
	for attempt := 0; ; attempt++ {
		outcome := c.processor.Process(ctx, rec.Value)
		if outcome != engine.OutcomeTransientFailure {
			break
		}

		wait := backoff(attempt)
		c.log.Warn("transient processing failure, retrying record",
			"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset,
			"attempt", attempt+1, "wait", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	if err := c.client.CommitRecords(ctx, rec); err != nil {
		// Redelivery after restart is acceptable; duplicates are tolerated.
		c.log.Error("offset commit failed", "topic", rec.Topic, "offset", rec.Offset, "error", err)
	}
	return nil
}

// Close flushes group state and releases the client.
func (c *Consumer) Close() {
	c.client.Close()
}

func backoff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	wait := time.Duration(1<<attempt) * time.Second
	if wait > maxRetryWait {
		wait = maxRetryWait
	}
	return wait
}
