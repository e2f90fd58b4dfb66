package events

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// LocalBus dispatches synchronously within Publish, in subscription order.
// Handler errors do not stop the dispatch; they are joined and returned to
// the publisher.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]*localSubscription
}

type localSubscription struct {
	bus     *LocalBus
	topic   string
	handler Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{
		handlers: make(map[string][]*localSubscription),
	}
}

func (b *LocalBus) Publish(ctx context.Context, msg *Message) error {
	b.mu.RLock()
	subs := slices.Clone(b.handlers[msg.Topic])
	b.mu.RUnlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.handler(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *LocalBus) Subscribe(topic string, handler Handler) (Subscription, error) {
	sub := &localSubscription{b, topic, handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], sub)

	return sub, nil
}

func (s *localSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.handlers[s.topic] = slices.DeleteFunc(s.bus.handlers[s.topic], func(other *localSubscription) bool {
		return other == s
	})
	return nil
}
