package redpanda

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"
)

// Handler processes one task payload. A nil return acknowledges the record.
// A non-nil return leaves the offset uncommitted so the record is
// redelivered; handlers must therefore be idempotent.
type Handler func(ctx context.Context, value []byte) error

// Consumer pulls records one at a time from a single topic and hands them to
// a Handler. One in-flight record per consumer keeps slow generation work
// from starving the group (the prefetch=1 analogue).
type Consumer struct {
	client  *kgo.Client
	topic   string
	groupID string
	handler Handler
}

// NewConsumer constructs a Consumer for topic within groupID.
func NewConsumer(brokers []string, groupID, topic string, handler Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	slog.Info("creating redpanda consumer",
		slog.Any("brokers", brokers),
		slog.String("group_id", groupID),
		slog.String("topic", topic))

	if err := EnsureTopics(context.Background(), brokers); err != nil {
		slog.Warn("failed to ensure topics, they may already exist", slog.Any("error", err))
	}

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.DisableAutoCommit(),
		kgo.WithHooks(kotelService.Hooks()...),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		// Generation jobs can poll external services for minutes; keep the
		// rebalance interval well above the handler budget.
		kgo.RebalanceTimeout(5 * time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	return &Consumer{client: client, topic: topic, groupID: groupID, handler: handler}, nil
}

// Run consumes until ctx is cancelled. Each record is handled to completion
// and committed before the next poll; handler errors leave the offset alone
// and back off before re-polling, so the broker redelivers.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("consumer started", slog.String("topic", c.topic), slog.String("group_id", c.groupID))

	pollBackoff := backoff.NewExponentialBackOff()
	pollBackoff.InitialInterval = time.Second
	pollBackoff.MaxInterval = 30 * time.Second
	pollBackoff.MaxElapsedTime = 0 // retry forever; broker outages heal

	for {
		if ctx.Err() != nil {
			slog.Info("consumer shutting down", slog.String("topic", c.topic))
			return ctx.Err()
		}

		fetches := c.client.PollRecords(ctx, 1)
		if fetches.IsClientClosed() {
			return fmt.Errorf("op=queue.consume: client closed")
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				if fe.Err == context.Canceled || ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			sleepCtx(ctx, pollBackoff.NextBackOff())
			continue
		}
		pollBackoff.Reset()

		var handleErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if handleErr != nil {
				return
			}
			handleErr = c.handleRecord(ctx, record)
		})
		if handleErr != nil {
			slog.Error("record handling failed, offset not committed", slog.Any("error", handleErr))
			sleepCtx(ctx, pollBackoff.NextBackOff())
			continue
		}
		if fetches.NumRecords() > 0 {
			if err := c.client.CommitUncommittedOffsets(ctx); err != nil {
				slog.Error("offset commit failed", slog.Any("error", err))
			}
		}
	}
}

func (c *Consumer) handleRecord(ctx context.Context, record *kgo.Record) error {
	tracer := otel.Tracer("queue.consumer")
	ctx, span := tracer.Start(ctx, "consume "+c.topic)
	defer span.End()

	slog.Info("record received",
		slog.String("topic", record.Topic),
		slog.Int("partition", int(record.Partition)),
		slog.Int64("offset", record.Offset),
		slog.String("key", string(record.Key)))
	return c.handler(ctx, record.Value)
}

// Close closes the underlying client.
func (c *Consumer) Close() error {
	if c.client != nil {
		c.client.Close()
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
