// Package stream publishes SLA status changes for dashboards and
// notification systems.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"concilia/internal/sla"
	"concilia/internal/sla/metrics"
)

// DefaultTopic carries one JSON StatusEvent per record, keyed by case ID.
const DefaultTopic = "concilia.sla.status"

// KafkaPublisher produces status events synchronously behind a circuit
// breaker, so a broker outage fails fast instead of stalling sweeps.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*KafkaPublisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *KafkaPublisher) {
		p.metrics = m
	}
}

func WithTopic(topic string) Option {
	return func(p *KafkaPublisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// NewKafkaPublisher connects to brokers. The client is owned by the
// publisher and released by Close.
func NewKafkaPublisher(brokers []string, opts ...Option) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher needs at least one broker")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &KafkaPublisher{client: client, topic: DefaultTopic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sla-status-stream",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Warn("circuit breaker state change",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			p.metrics.SetBreakerState(int(to))
		},
	})
	return p, nil
}

// EnsureTopic creates the topic when it does not exist yet.
func (p *KafkaPublisher) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	admin := kadm.NewClient(p.client)
	resp, err := admin.CreateTopics(ctx, partitions, replication, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Publish sends event keyed by case ID and waits for the broker ack.
func (p *KafkaPublisher) Publish(ctx context.Context, event sla.StatusEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	record := &kgo.Record{Topic: p.topic, Key: []byte(event.CaseID), Value: value}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.client.ProduceSync(ctx, record).FirstErr()
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		p.metrics.IncPublished("rejected")
		return fmt.Errorf("status stream unavailable: %w", err)
	case err != nil:
		p.metrics.IncPublished("error")
		return fmt.Errorf("produce status event: %w", err)
	}
	p.metrics.IncPublished("ok")
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
