package messaging

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/fx"
)

type JetStreamParams struct {
	fx.In

	Nc *nats.Conn
}

type JetStreamResult struct {
	fx.Out

	Js jetstream.JetStream
}

func NewJetStream(p JetStreamParams) (JetStreamResult, error) {
	js, err := jetstream.New(p.Nc)

	return JetStreamResult{Js: js}, err
}

// KeyValue creates the bucket if needed. A zero ttl keeps entries forever.
func KeyValue(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (jetstream.KeyValue, error) {
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket: bucket,
		TTL:    ttl,
	})
}

// Keys lists all keys of the bucket; an empty bucket is not an error.
func Keys(ctx context.Context, kv jetstream.KeyValue) ([]string, error) {
	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []string{}, nil
	}
	return keys, err
}
