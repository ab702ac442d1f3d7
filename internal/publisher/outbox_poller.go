package publisher

import (
	"context"
	"log/slog"
	"time"

	"github.com/fjod/coffee-store/internal/domain"
	"github.com/fjod/coffee-store/internal/repository"
	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "orders-outbox"
	batchSize    = 100
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StaleReconciler settles checkouts whose webhook never arrived.
type StaleReconciler interface {
	ReconcileStale(ctx context.Context) (int, error)
}

type Config struct {
	Brokers      []string
	Topic        string
	Timeout      time.Duration
	EventTick    time.Duration
	RecoveryTick time.Duration
}

// OutboxPoller relays committed outbox rows to Kafka and, on a slower tick,
// drives stale checkout reconciliation.
type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	repo         repository.OutboxRepository
	reconciler   StaleReconciler
	writer       messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewOutboxPoller(repo repository.OutboxRepository, reconciler StaleReconciler, cfg Config) *OutboxPoller {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.EventTick == 0 {
		cfg.EventTick = time.Second
	}
	if cfg.RecoveryTick == 0 {
		cfg.RecoveryTick = 5 * time.Minute
	}
	return &OutboxPoller{
		timeout:      cfg.Timeout,
		eventTick:    cfg.EventTick,
		recoveryTick: cfg.RecoveryTick,
		repo:         repo,
		reconciler:   reconciler,
		writer:       NewKafkaWriter(cfg.Brokers, cfg.Topic),
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.reconcileStale(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() error {
	return p.writer.Close()
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, batchSize)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			// keep order per aggregate: stop and retry the rest next tick
			slog.ErrorContext(ctx, "failed to publish outbox event", "event_id", event.ID, "event_type", event.EventType, "error", err)
			return
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event processed", "event_id", event.ID, "error", err)
			return
		}
	}
}

func (p *OutboxPoller) reconcileStale(ctx context.Context) {
	if p.reconciler == nil {
		return
	}
	n, err := p.reconciler.ReconcileStale(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "stale checkout reconciliation failed", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "stale checkouts reconciled", "count", n)
	}
}

func (p *OutboxPoller) publish(ctx context.Context, event *domain.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // transaction id keeps one order's events in one partition
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
		Time: event.CreatedAt,
	}
	return p.writer.WriteMessages(ctx, msg)
}
