// Package kafka forwards email and SMS requests to a Kafka topic, where an
// out-of-process worker composes and delivers them.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"brigade/internal/broadcast/channel"
	"brigade/internal/broadcast/metrics"
	"brigade/pkg/platform/sentinel"
)

// DefaultTopic receives forward requests when no topic is configured.
const DefaultTopic = "brigade.notifications.forward"

// Producer is the subset of *kgo.Client the sender uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sender publishes forward requests, keyed by organization so one organization's
// requests stay ordered within a partition.
type Sender struct {
	producer Producer
	topic    string
	breaker  *channel.CircuitBreaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Sender.
type Option func(*Sender)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(s *Sender) {
		if topic != "" {
			s.topic = topic
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *channel.CircuitBreaker) Option {
	return func(s *Sender) {
		if cb != nil {
			s.breaker = cb
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sender) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

// NewSender creates a Sender on top of producer.
func NewSender(producer Producer, opts ...Option) (*Sender, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}
	s := &Sender{
		producer: producer,
		topic:    DefaultTopic,
		breaker:  channel.NewCircuitBreaker(5, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send publishes req and returns the partition/offset as the reference.
// While the breaker is open requests fail fast with sentinel.ErrUnavailable.
func (s *Sender) Send(ctx context.Context, req channel.ForwardRequest) (channel.Result, error) {
	if !s.breaker.Allow() {
		return channel.Result{}, fmt.Errorf("forward pipeline circuit open: %w", sentinel.ErrUnavailable)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return channel.Result{}, fmt.Errorf("encode forward request: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(req.OrganizationID),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "channel", Value: []byte(req.Channel)},
			{Key: "event_id", Value: []byte(req.EventID)},
		},
	}

	produced, err := s.producer.ProduceSync(ctx, record).First()
	if err != nil {
		if s.breaker.RecordFailure() {
			s.metrics.SetForwardBreakerState(true)
			if s.logger != nil {
				s.logger.WarnContext(ctx, "forward circuit breaker opened", "topic", s.topic, "error", err)
			}
		}
		return channel.Result{}, fmt.Errorf("produce forward request: %w", err)
	}
	s.breaker.RecordSuccess()
	s.metrics.SetForwardBreakerState(false)

	return channel.Result{
		Status:    channel.StatusAccepted,
		Reference: strconv.Itoa(int(produced.Partition)) + "/" + strconv.FormatInt(produced.Offset, 10),
	}, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}
