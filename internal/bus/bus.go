// Package bus wraps kafka-go behind small publish/subscribe interfaces
// so services get an explicitly constructed, closeable bus dependency
// and tests can substitute fakes.
package bus

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher sends one payload to a topic. Delivery is at-least-once;
// consumers must be idempotent.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// Handler processes one delivered message. Returning an error keeps the
// message uncommitted; the subscriber retries it in place. Messages that
// should be dropped (malformed payloads) must return nil.
type Handler func(ctx context.Context, payload []byte) error

// KafkaBus is the production Publisher backed by a shared kafka writer
// that routes on per-message topics.
type KafkaBus struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewKafkaBus(brokers []string, log *zap.SugaredLogger) *KafkaBus {
	return &KafkaBus{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		log: log,
	}
}

func (b *KafkaBus) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Value: payload,
		Time:  time.Now(),
	})
}

func (b *KafkaBus) Close() error { return b.writer.Close() }

const (
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 30 * time.Second
)

// Subscriber runs a consumer-group reader for one topic, invoking the
// handler per message. Commit happens only after the handler returns
// nil; a handler error blocks the partition and the message is retried
// with backoff, because committing any later offset would advance the
// group watermark past the failed one and acknowledge it forever.
type Subscriber struct {
	reader     *kafka.Reader
	log        *zap.SugaredLogger
	retryDelay time.Duration
}

func NewSubscriber(brokers []string, topic, groupID string, log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   topic,
			GroupID: groupID,
		}),
		log:        log,
		retryDelay: baseRetryDelay,
	}
}

// Run blocks until ctx is cancelled.
func (s *Subscriber) Run(ctx context.Context, h Handler) error {
	for {
		msg, err := s.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Errorf("fetch message: %v", err)
			continue
		}
		if err := s.deliver(ctx, h, msg); err != nil {
			return err
		}
		if err := s.reader.CommitMessages(ctx, msg); err != nil {
			s.log.Errorf("commit %s offset=%d: %v", msg.Topic, msg.Offset, err)
		}
	}
}

// deliver invokes the handler until it succeeds, backing off between
// attempts. Only ctx cancellation ends the retry loop.
func (s *Subscriber) deliver(ctx context.Context, h Handler, msg kafka.Message) error {
	delay := s.retryDelay
	for attempt := 1; ; attempt++ {
		err := h(ctx, msg.Value)
		if err == nil {
			return nil
		}
		s.log.Errorf("handle %s offset=%d attempt=%d: %v", msg.Topic, msg.Offset, attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay < maxRetryDelay {
			delay *= 2
		}
	}
}

func (s *Subscriber) Close() error { return s.reader.Close() }
