package streaming

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/codes"

	"github.com/fraudguard-io/fraudguard/internal/alerts"
	"github.com/fraudguard-io/fraudguard/internal/circuitbreaker"
	"github.com/fraudguard-io/fraudguard/internal/traces"
)

// ErrTransportUnavailable is returned when a publish cannot reach Kafka,
// either because the broker is down or the circuit is open. Callers treat
// it as retryable.
var ErrTransportUnavailable = errors.New("streaming transport unavailable")

// Topics names the producer's output channels.
type Topics struct {
	Transactions string
	Alerts       string
	Processed    string
}

// Producer publishes envelopes, processed results, and alerts. It starts
// lazily on first publish; Start and Stop are idempotent and safe to call
// concurrently.
type Producer struct {
	brokers []string
	topics  Topics
	logger  *slog.Logger
	breaker *circuitbreaker.Breaker

	mu      sync.Mutex
	started bool
	writers map[string]*kafka.Writer
}

// NewProducer creates a producer for the given brokers and topics.
func NewProducer(brokers []string, topics Topics, logger *slog.Logger) *Producer {
	return &Producer{
		brokers: brokers,
		topics:  topics,
		logger:  logger,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

// Start connects to the broker and prepares one writer per topic. Calling
// Start on a started producer is a no-op; concurrent starts are serialized.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}

	// Writers dial lazily, so probe the broker now to surface
	// misconfiguration at startup instead of on the first publish.
	conn, err := kafka.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka broker: %w", err)
	}
	_ = conn.Close()

	p.writers = map[string]*kafka.Writer{
		p.topics.Transactions: p.newWriter(p.topics.Transactions),
		p.topics.Alerts:       p.newWriter(p.topics.Alerts),
		p.topics.Processed:    p.newWriter(p.topics.Processed),
	}
	p.started = true
	p.logger.Info("kafka producer started", "brokers", p.brokers)
	return nil
}

func (p *Producer) newWriter(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // key = transaction id, keeps per-key ordering
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Gzip,
		BatchBytes:   16384,
		BatchTimeout: 10 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			p.logger.Error(fmt.Sprintf(msg, args...), "topic", topic)
		}),
	}
}

// Stop closes all writers, flushing any batched messages. Safe to call on a
// producer that never started.
func (p *Producer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return nil
	}

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
	}
	p.writers = nil
	p.started = false
	p.logger.Info("kafka producer stopped")
	return firstErr
}

// Connected reports whether the producer has started successfully.
func (p *Producer) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// PublishTransaction puts a pending envelope on the inbound topic, keyed by
// correlation id.
func (p *Producer) PublishTransaction(ctx context.Context, env TransactionEnvelope) error {
	if err := p.publish(ctx, p.topics.Transactions, env.TransactionID, env); err != nil {
		return err
	}
	p.logger.Info("published transaction for analysis", "transaction_id", env.TransactionID)
	return nil
}

// PublishProcessed publishes a scored outcome, keyed by the store id.
func (p *Producer) PublishProcessed(ctx context.Context, result ProcessedResult) error {
	if err := p.publish(ctx, p.topics.Processed, result.TransactionID, result); err != nil {
		return err
	}
	p.logger.Debug("published processed result", "transaction_id", result.TransactionID)
	return nil
}

// PublishAlert publishes a fraud alert, keyed by the store id.
func (p *Producer) PublishAlert(ctx context.Context, alert alerts.Alert) error {
	key := strconv.FormatInt(alert.TransactionID, 10)
	if err := p.publish(ctx, p.topics.Alerts, key, alert); err != nil {
		return err
	}
	p.logger.Info("published fraud alert",
		"transaction_id", alert.TransactionID,
		"alert_type", alert.AlertType,
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, key string, payload interface{}) (retErr error) {
	ctx, span := traces.StartSpan(ctx, "streaming.publish", traces.Topic(topic))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	if err := p.ensureStarted(ctx); err != nil {
		stMessagesPublished.WithLabelValues(topic, "failure").Inc()
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	if !p.breaker.Allow(topic) {
		stMessagesPublished.WithLabelValues(topic, "rejected").Inc()
		return fmt.Errorf("%w: circuit open for topic %s", ErrTransportUnavailable, topic)
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message for topic %s: %w", topic, err)
	}

	w := p.writer(topic)
	if w == nil {
		stMessagesPublished.WithLabelValues(topic, "failure").Inc()
		return fmt.Errorf("%w: producer stopped", ErrTransportUnavailable)
	}

	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value}); err != nil {
		p.breaker.RecordFailure(topic)
		stMessagesPublished.WithLabelValues(topic, "failure").Inc()
		p.logger.Error("kafka publish failed", "topic", topic, "key", key, "error", err)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}

	p.breaker.RecordSuccess(topic)
	stMessagesPublished.WithLabelValues(topic, "success").Inc()
	return nil
}

func (p *Producer) ensureStarted(ctx context.Context) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		return nil
	}
	return p.Start(ctx)
}

func (p *Producer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writers[topic]
}
