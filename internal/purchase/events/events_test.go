package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingProcessor struct {
	mu           sync.Mutex
	ids          []snowflake.ID
	correlations []string
}

func (p *recordingProcessor) Process(ctx context.Context, id snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
	p.correlations = append(p.correlations, tracing.CorrelationIDFromContext(ctx))
	return nil
}

func (p *recordingProcessor) calls() []snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]snowflake.ID(nil), p.ids...)
}

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) == 0 {
		r.mu.Unlock()
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	r.mu.Unlock()
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type processorFunc func(ctx context.Context, id snowflake.ID) error

func (f processorFunc) Process(ctx context.Context, id snowflake.ID) error { return f(ctx, id) }

func TestInProcessPublisherRunsProcessor(t *testing.T) {
	processor := &recordingProcessor{}
	pub := NewInProcessPublisher(processor, zap.NewNop())

	ctx := tracing.ContextWithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, pub.PublishCreated(ctx, RequestCreated{RequestID: "42", UserID: "user-1"}))
	require.NoError(t, pub.Close(context.Background()))

	assert.Equal(t, []snowflake.ID{42}, processor.calls())
	assert.Equal(t, []string{"corr-1"}, processor.correlations)

	err := pub.PublishCreated(context.Background(), RequestCreated{RequestID: "43"})
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestInProcessPublisherRejectsBadID(t *testing.T) {
	pub := NewInProcessPublisher(&recordingProcessor{}, zap.NewNop())
	assert.Error(t, pub.PublishCreated(context.Background(), RequestCreated{RequestID: "not-a-number"}))
}

func TestMessageCarriesKeyAndHeaders(t *testing.T) {
	msg, err := newMessage(RequestCreated{RequestID: "42", UserID: "user-1", CorrelationID: "corr-1", CreatedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "42", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, TypeRequestCreated, headers["event_type"])
	assert.Equal(t, "corr-1", headers["correlation_id"])

	event, id, err := decode(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, snowflake.ID(42), id)

	_, _, err = decode([]byte(`{"request_id":"x"}`))
	assert.Error(t, err)
}

func TestConsumerCommitsOnlyProcessedMessages(t *testing.T) {
	good, err := newMessage(RequestCreated{RequestID: "7", CorrelationID: "corr-7"})
	require.NoError(t, err)
	good.Offset = 1
	poison := kafka.Message{Offset: 2, Value: []byte(`{"request_id":"x"}`)}
	failing, err := newMessage(RequestCreated{RequestID: "9"})
	require.NoError(t, err)
	failing.Offset = 3

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{messages: []kafka.Message{good, poison, failing}, cancel: cancel}

	processor := &recordingProcessor{}
	consumer := newKafkaConsumer(reader, processorFunc(func(ctx context.Context, id snowflake.ID) error {
		_ = processor.Process(ctx, id)
		if id == 9 {
			return errors.New("database unavailable")
		}
		return nil
	}), zap.NewNop())
	consumer.backoff = time.Millisecond

	consumer.Run(ctx)

	assert.Equal(t, []snowflake.ID{7, 9}, processor.calls())
	assert.Equal(t, "corr-7", processor.correlations[0])
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumerCommitMovesPastFailedMessage(t *testing.T) {
	failing, err := newMessage(RequestCreated{RequestID: "9"})
	require.NoError(t, err)
	failing.Offset = 3
	later, err := newMessage(RequestCreated{RequestID: "10"})
	require.NoError(t, err)
	later.Offset = 4

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{messages: []kafka.Message{failing, later}, cancel: cancel}

	processor := &recordingProcessor{}
	consumer := newKafkaConsumer(reader, processorFunc(func(ctx context.Context, id snowflake.ID) error {
		_ = processor.Process(ctx, id)
		if id == 9 {
			return errors.New("database unavailable")
		}
		return nil
	}), zap.NewNop())
	consumer.backoff = time.Millisecond

	consumer.Run(ctx)

	// Offset 3 is never handed out again once 4 is committed.
	assert.Equal(t, []snowflake.ID{9, 10}, processor.calls())
	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Equal(t, []int64{4}, reader.committed)
}
