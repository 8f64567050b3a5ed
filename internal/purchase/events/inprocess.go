package events

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	"go.uber.org/zap"
)

const defaultProcessTimeout = 30 * time.Second

// InProcessPublisher hands events to the processor on a background goroutine.
type InProcessPublisher struct {
	processor Processor
	log       *zap.Logger
	timeout   time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewInProcessPublisher(processor Processor, log *zap.Logger) *InProcessPublisher {
	return &InProcessPublisher{
		processor: processor,
		log:       log.Named("purchase.events.inprocess"),
		timeout:   defaultProcessTimeout,
	}
}

func (p *InProcessPublisher) PublishCreated(ctx context.Context, event RequestCreated) error {
	id, err := event.ID()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}

	correlationID := event.CorrelationID
	if correlationID == "" {
		correlationID = tracing.CorrelationIDFromContext(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		runCtx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if correlationID != "" {
			runCtx = tracing.ContextWithCorrelationID(runCtx, correlationID)
		}
		if err := p.processor.Process(runCtx, id); err != nil {
			p.log.Warn("purchase request processing failed",
				zap.String("request_id", event.RequestID),
				zap.String("correlation_id", correlationID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close rejects new events and waits for in-flight processing.
func (p *InProcessPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
