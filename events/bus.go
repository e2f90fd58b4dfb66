// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph <https://github.com/Vortex375/seraph>.

// Seraph is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License
// as published by the Free Software Foundation,
// either version 3 of the License, or (at your option)
// any later version.

// Seraph is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with Seraph.  If not, see <http://www.gnu.org/licenses/>.

package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// Codec converts event payloads to and from their wire representation.
// Only transports that leave the process use it.
type Codec[T any] interface {
	Encode(v *T) ([]byte, error)
	Decode(data []byte, v *T) error
}

// Topic names an event and fixes its payload type.
type Topic[T any] struct {
	Name  string
	Codec Codec[T]
}

// NewTopic returns a topic with JSON encoding.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{Name: name, Codec: JsonCodec[T]{}}
}

// Message is the untyped envelope handed to a [Bus]. Local delivery uses
// Value; remote delivery uses the bytes produced by Encode.
type Message struct {
	Topic  string
	Value  any
	Encode func() ([]byte, error)
	Data   []byte
}

type Handler func(ctx context.Context, msg *Message) error

type Subscription interface {
	Unsubscribe() error
}

// Bus delivers published messages to the handlers subscribed to a topic.
// Use [Publish] and [Subscribe] for typed access.
type Bus interface {
	Publish(ctx context.Context, msg *Message) error
	Subscribe(topic string, handler Handler) (Subscription, error)
}

func Publish[T any](ctx context.Context, bus Bus, topic Topic[T], v *T) error {
	return bus.Publish(ctx, &Message{
		Topic: topic.Name,
		Value: v,
		Encode: func() ([]byte, error) {
			return topic.Codec.Encode(v)
		},
	})
}

func Subscribe[T any](bus Bus, topic Topic[T], handler func(ctx context.Context, v *T) error) (Subscription, error) {
	return bus.Subscribe(topic.Name, func(ctx context.Context, msg *Message) error {
		if v, ok := msg.Value.(*T); ok {
			return handler(ctx, v)
		}
		v := new(T)
		if err := topic.Codec.Decode(msg.Data, v); err != nil {
			return fmt.Errorf("While decoding %s event: %w", topic.Name, err)
		}
		return handler(ctx, v)
	})
}

type JsonCodec[T any] struct{}

func (JsonCodec[T]) Encode(v *T) ([]byte, error) {
	return json.Marshal(v)
}

func (JsonCodec[T]) Decode(data []byte, v *T) error {
	return json.Unmarshal(data, v)
}
