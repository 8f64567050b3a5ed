package events

import (
	"context"

	"github.com/smallbiznis/carbonmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the Publisher selected by TRIGGER_BACKEND.
var Module = fx.Module("purchase.events",
	fx.Provide(NewPublisher),
)

// ConsumerModule runs the Kafka consumer; it is a no-op for the in-process trigger.
var ConsumerModule = fx.Module("purchase.events.consumer",
	fx.Invoke(RegisterConsumer),
)

type Params struct {
	fx.In

	Lc        fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
	Processor Processor
}

func NewPublisher(p Params) Publisher {
	if p.Cfg.TriggerBackend == config.BackendKafka && len(p.Cfg.Kafka.Brokers) > 0 {
		pub := NewKafkaPublisher(p.Cfg.Kafka.Brokers, p.Cfg.Kafka.Topic)
		p.Lc.Append(fx.Hook{
			OnStop: func(context.Context) error { return pub.Close() },
		})
		p.Log.Info("purchase events published to kafka", zap.String("topic", p.Cfg.Kafka.Topic))
		return pub
	}

	pub := NewInProcessPublisher(p.Processor, p.Log)
	p.Lc.Append(fx.Hook{
		OnStop: pub.Close,
	})
	return pub
}

func RegisterConsumer(p Params) {
	if p.Cfg.TriggerBackend != config.BackendKafka || len(p.Cfg.Kafka.Brokers) == 0 {
		return
	}

	consumer := NewKafkaConsumer(p.Cfg.Kafka.Brokers, p.Cfg.Kafka.Topic, p.Cfg.Kafka.GroupID, p.Processor, p.Log)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.Lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				consumer.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return consumer.Close()
		},
	})
}
