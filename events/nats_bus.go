package events

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/messaging"
	"umbasa.net/seraph-mounts/tracing"
)

// NatsBus publishes encoded events on NATS subjects of the same name.
// Subscribers use a queue group per topic so that each event is handled
// once per service. Delivery is asynchronous; handler errors are logged.
type NatsBus struct {
	nc     *nats.Conn
	log    *slog.Logger
	tracer trace.Tracer
}

func NewNatsBus(nc *nats.Conn, logger *logging.Logger, tracing *tracing.Tracing) *NatsBus {
	return &NatsBus{
		nc:     nc,
		log:    logger.GetLogger("events"),
		tracer: tracing.TracerProvider.Tracer("events"),
	}
}

func (b *NatsBus) Publish(ctx context.Context, msg *Message) error {
	data := msg.Data
	if data == nil {
		var err error
		data, err = msg.Encode()
		if err != nil {
			return err
		}
	}

	return b.nc.PublishMsg(&nats.Msg{
		Subject: msg.Topic,
		Header:  messaging.InjectTraceContext(ctx, make(nats.Header)),
		Data:    data,
	})
}

func (b *NatsBus) Subscribe(topic string, handler Handler) (Subscription, error) {
	return b.nc.QueueSubscribe(topic, topic, func(m *nats.Msg) {
		ctx := messaging.ExtractTraceContext(context.Background(), m)
		ctx, span := b.tracer.Start(ctx, topic)
		defer span.End()

		err := handler(ctx, &Message{
			Topic: topic,
			Data:  m.Data,
		})
		if err != nil {
			b.log.Error("error while handling event", "topic", topic, "error", err)
		}
	})
}
