package streaming

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

// Handler processes one raw message from the inbound topic. A non-nil error
// counts against the consumer's error rate but does not stop the loop.
type Handler func(ctx context.Context, value []byte) error

// fetcher is the slice of kafka.Reader the consume loop uses. Tests swap
// in a scripted implementation to drive the loop without a broker.
type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads the inbound transaction topic as part of a consumer group
// and hands each message to the pipeline, one at a time per partition.
type Consumer struct {
	brokers []string
	topic   string
	groupID string
	handler Handler
	logger  *slog.Logger

	mu        sync.Mutex
	running   bool
	reader    fetcher
	newReader func() fetcher
	cancel    context.CancelFunc
	done      chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// NewConsumer creates a consumer for the given topic and group.
func NewConsumer(brokers []string, topic, groupID string, handler Handler, logger *slog.Logger) *Consumer {
	c := &Consumer{
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		handler: handler,
		logger:  logger,
	}
	c.newReader = c.groupReader
	return c
}

// groupReader builds the real consumer-group reader.
func (c *Consumer) groupReader() fetcher {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.brokers,
		Topic:          c.topic,
		GroupID:        c.groupID,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			c.logger.Error(fmt.Sprintf(msg, args...), "topic", c.topic)
		}),
	})
}

// Start joins the consumer group and spawns the processing loop. Calling
// Start on a running consumer is a no-op.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.reader = c.newReader()

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.loop(loopCtx)

	c.logger.Info("kafka consumer started",
		"topic", c.topic,
		"group", c.groupID,
		"brokers", c.brokers,
	)
	return nil
}

// loop fetches, handles, and commits one message at a time. Offsets are
// committed whether or not the handler succeeded, so a poison message is
// counted and skipped instead of wedging the partition.
func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)

	// Shutdown cancels the fetch, never work already in hand.
	workCtx := context.WithoutCancel(ctx)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			stConsumerErrors.Inc()
			c.logger.Error("kafka fetch failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		c.logger.Debug("received message",
			"key", string(msg.Key),
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		stMessagesConsumed.Inc()

		if err := c.handler(workCtx, msg.Value); err != nil {
			c.failed.Add(1)
			stConsumerErrors.Inc()
			c.logger.Error("message processing failed",
				"key", string(msg.Key),
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else {
			c.processed.Add(1)
		}

		if err := c.reader.CommitMessages(workCtx, msg); err != nil {
			c.logger.Error("kafka commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Stop drains the loop: the in-flight message finishes, then the reader
// closes and group membership is released. Safe on a consumer that never
// started.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.cancel()
	<-c.done
	if err := c.reader.Close(); err != nil {
		c.logger.Error("failed to close kafka reader", "error", err)
	}
	c.running = false

	c.logger.Info("kafka consumer stopped",
		"processed", c.processed.Load(),
		"errors", c.failed.Load(),
	)
}

// Running reports whether the processing loop is live.
func (c *Consumer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Stats returns consumer counters. The success rate is the percentage of
// fetched messages the handler accepted.
func (c *Consumer) Stats() map[string]interface{} {
	processed := c.processed.Load()
	failed := c.failed.Load()

	rate := 0.0
	if processed > 0 {
		rate = float64(processed) / float64(processed+failed) * 100
	}

	return map[string]interface{}{
		"running":         c.Running(),
		"processed_count": processed,
		"error_count":     failed,
		"success_rate":    rate,
	}
}
