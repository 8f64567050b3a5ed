package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("publisher_closed")

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher keys messages by request id so redeliveries of one
// request land on the same partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) PublishCreated(ctx context.Context, event RequestCreated) error {
	if event.CorrelationID == "" {
		event.CorrelationID = tracing.CorrelationIDFromContext(ctx)
	}
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish purchase request %s: %w", event.RequestID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func newMessage(event RequestCreated) (kafka.Message, error) {
	if _, err := event.ID(); err != nil {
		return kafka.Message{}, err
	}
	payload, err := encode(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.RequestID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(TypeRequestCreated)},
			{Key: headerCorrelationID, Value: []byte(event.CorrelationID)},
		},
	}, nil
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer commits each message only after the processor ran, giving
// at-least-once delivery.
type KafkaConsumer struct {
	reader    messageReader
	processor Processor
	log       *zap.Logger
	backoff   time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, processor Processor, log *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6,
	})
	return newKafkaConsumer(reader, processor, log)
}

func newKafkaConsumer(reader messageReader, processor Processor, log *zap.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader:    reader,
		processor: processor,
		log:       log.Named("purchase.events.kafka"),
		backoff:   time.Second,
	}
}

// Run blocks until ctx is done.
func (c *KafkaConsumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			c.log.Warn("fetch purchase event failed", zap.Error(err))
			sleep(ctx, c.backoff)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// Not committed, but the next successful commit in this partition moves
			// past it. Only the pending sweep re-drives the request.
			c.log.Warn("purchase event not processed",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			sleep(ctx, c.backoff)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("commit purchase event failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	event, id, err := decode(msg.Value)
	if err != nil {
		// Poison messages are dropped; the pending sweep still covers the request.
		c.log.Error("malformed purchase event dropped", zap.ByteString("key", msg.Key), zap.Error(err))
		return nil
	}

	correlationID := event.CorrelationID
	for _, h := range msg.Headers {
		if h.Key == headerCorrelationID && len(h.Value) > 0 {
			correlationID = string(h.Value)
		}
	}
	if correlationID != "" {
		ctx = tracing.ContextWithCorrelationID(ctx, correlationID)
	}
	return c.processor.Process(ctx, id)
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
