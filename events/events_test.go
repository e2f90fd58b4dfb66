package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hamba/avro/v2"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"umbasa.net/seraph-mounts/events"
	"umbasa.net/seraph-mounts/logging"
	"umbasa.net/seraph-mounts/tracing"
)

type testPayload struct {
	Users []string `json:"users"`
}

var testTopic = events.NewTopic[testPayload]("seraph.test")

func TestNodeWrittenEvent(t *testing.T) {
	input := events.NodeWrittenEvent{
		Event: events.Event{
			ID:      uuid.NewString(),
			Version: 1,
		},
		NodeId:    "6650f1a2c3d4e5f601234567",
		SizeDelta: -1,
	}

	doTest(t, events.Api, events.NodeWrittenEventSchema, input, events.NodeWrittenEvent{})
}

func TestNodeRenamedEvent(t *testing.T) {
	input := events.NodeRenamedEvent{
		Event:       events.Event{ID: uuid.NewString(), Version: 1},
		NodeId:      "6650f1a2c3d4e5f601234567",
		OldParentId: "6650f1a2c3d4e5f601234568",
		Size:        1024,
	}

	doTest(t, events.Api, events.NodeRenamedEventSchema, input, events.NodeRenamedEvent{})
}

func TestNodeDeletedEvent(t *testing.T) {
	input := events.NodeDeletedEvent{
		Event:    events.Event{ID: uuid.NewString(), Version: 1},
		NodeId:   "6650f1a2c3d4e5f601234567",
		ParentId: "6650f1a2c3d4e5f601234568",
		Size:     7,
	}

	doTest(t, events.Api, events.NodeDeletedEventSchema, input, events.NodeDeletedEvent{})
}

func doTest[T any](t *testing.T, api avro.API, schema avro.Schema, input T, output T) {
	data, err := api.Marshal(schema, input)
	if err != nil {
		t.Error(err)
	}

	err = api.Unmarshal(schema, data, &output)
	if err != nil {
		t.Error(err)
	}

	assert.Equal(t, input, output)
}

func TestLocalBusOrder(t *testing.T) {
	bus := events.NewLocalBus()
	calls := make([]string, 0)

	events.Subscribe(bus, testTopic, func(ctx context.Context, v *testPayload) error {
		calls = append(calls, "first:"+v.Users[0])
		return nil
	})
	events.Subscribe(bus, testTopic, func(ctx context.Context, v *testPayload) error {
		calls = append(calls, "second:"+v.Users[0])
		return nil
	})

	err := events.Publish(context.Background(), bus, testTopic, &testPayload{Users: []string{"alice"}})

	assert.Nil(t, err)
	assert.Equal(t, []string{"first:alice", "second:alice"}, calls)
}

func TestLocalBusErrors(t *testing.T) {
	bus := events.NewLocalBus()
	errA := errors.New("a")
	called := false

	events.Subscribe(bus, testTopic, func(ctx context.Context, v *testPayload) error {
		return errA
	})
	events.Subscribe(bus, testTopic, func(ctx context.Context, v *testPayload) error {
		called = true
		return nil
	})

	err := events.Publish(context.Background(), bus, testTopic, &testPayload{})

	assert.ErrorIs(t, err, errA)
	assert.True(t, called)
}

func TestLocalBusUnsubscribe(t *testing.T) {
	bus := events.NewLocalBus()
	count := 0

	sub, _ := events.Subscribe(bus, testTopic, func(ctx context.Context, v *testPayload) error {
		count++
		return nil
	})
	events.Publish(context.Background(), bus, testTopic, &testPayload{})
	sub.Unsubscribe()
	events.Publish(context.Background(), bus, testTopic, &testPayload{})

	assert.Equal(t, 1, count)
}

func TestNatsBus(t *testing.T) {
	srv, err := server.NewServer(&server.Options{Port: server.RANDOM_PORT})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Shutdown()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	bus := events.NewNatsBus(nc, logging.New(logging.Params{}), tracing.NewNoopTracing())
	received := make(chan *events.NodeWrittenEvent, 1)

	_, err = events.Subscribe(bus, events.NodeWrittenTopic, func(ctx context.Context, v *events.NodeWrittenEvent) error {
		received <- v
		return nil
	})
	assert.Nil(t, err)
	nc.Flush()

	err = events.Publish(context.Background(), bus, events.NodeWrittenTopic, &events.NodeWrittenEvent{
		NodeId:    "abc",
		SizeDelta: 12,
	})
	assert.Nil(t, err)

	select {
	case v := <-received:
		assert.Equal(t, "abc", v.NodeId)
		assert.Equal(t, int64(12), v.SizeDelta)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
