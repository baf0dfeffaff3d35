// Package redpanda provides the Kafka/Redpanda transport for the render
// pipeline: durable at-least-once task queues for generation and composition
// plus a fanout event stream for segment completions. Handlers are
// idempotent, so redelivery is safe.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/videoforge/internal/adapter/observability"
	"github.com/fairyhunter13/videoforge/internal/domain"
)

// Producer publishes task payloads and events. It implements domain.Queue.
type Producer struct {
	client *kgo.Client
}

// NewProducer constructs a Producer and ensures the pipeline topics exist.
func NewProducer(brokers []string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers))

	kotelService := kotel.NewKotel(kotel.WithTracer(
		kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider())),
	))
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.WithHooks(kotelService.Hooks()...),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := EnsureTopics(context.Background(), brokers); err != nil {
		slog.Warn("failed to ensure topics, they may already exist", slog.Any("error", err))
	}
	return &Producer{client: client}, nil
}

// EnqueueGeneration publishes a segment generation task keyed by segment id.
func (p *Producer) EnqueueGeneration(ctx domain.Context, payload domain.GenerationTaskPayload) error {
	payload.Version = domain.TaskVersion
	if err := p.produce(ctx, TopicSegmentGeneration, payload.SegmentID, payload); err != nil {
		return fmt.Errorf("op=queue.enqueue_generation: %w", err)
	}
	observability.EnqueueTask("generation")
	slog.Info("generation task enqueued",
		slog.String("segment_id", payload.SegmentID),
		slog.String("render_job_id", payload.RenderJobID))
	return nil
}

// EnqueueComposition publishes a composition task keyed by render job id.
func (p *Producer) EnqueueComposition(ctx domain.Context, payload domain.CompositionTaskPayload) error {
	payload.Version = domain.TaskVersion
	payload.Event = domain.EventComposeVideo
	if err := p.produce(ctx, TopicVideoComposition, payload.RenderJobID, payload); err != nil {
		return fmt.Errorf("op=queue.enqueue_composition: %w", err)
	}
	observability.EnqueueTask("composition")
	slog.Info("composition task enqueued",
		slog.String("render_job_id", payload.RenderJobID),
		slog.Int("segments", len(payload.SegmentIDs)))
	return nil
}

// PublishSegmentCompleted emits a fanout event for UI/event subscribers.
// Failures are non-fatal to the caller's flow; the event stream is advisory.
func (p *Producer) PublishSegmentCompleted(ctx domain.Context, e domain.SegmentCompletedEvent) error {
	e.Event = domain.EventSegmentCompleted
	if err := p.produce(ctx, TopicSegmentCompleted, e.SegmentID, e); err != nil {
		return fmt.Errorf("op=queue.publish_segment_completed: %w", err)
	}
	return nil
}

func (p *Producer) produce(ctx context.Context, topic, key string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	record := &kgo.Record{Topic: topic, Key: []byte(key), Value: b}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	return nil
}

// Close closes the producer.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
