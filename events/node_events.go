package events

import (
	"github.com/hamba/avro/v2"
)

type Event struct {
	ID      string `avro:"id"`
	Version int    `avro:"version"`
}

// NodeWrittenEvent reports a content change of a file. SizeDelta is
// math.MinInt64 when the change in size is not known.
type NodeWrittenEvent struct {
	Event

	NodeId    string `avro:"nodeId"`
	SizeDelta int64  `avro:"sizeDelta"`
}

var NodeWrittenEventSchema = avro.MustParse(`{
	"type": "record",
	"name": "NodeWrittenEvent",
	"namespace": "seraph.events",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "version", "type": "int"},
		{"name": "nodeId", "type": "string"},
		{"name": "sizeDelta", "type": "long"}
	]
}`)

// NodeRenamedEvent is sent after a node was moved away from OldParentId.
type NodeRenamedEvent struct {
	Event

	NodeId      string `avro:"nodeId"`
	OldParentId string `avro:"oldParentId"`
	Size        int64  `avro:"size"`
}

var NodeRenamedEventSchema = avro.MustParse(`{
	"type": "record",
	"name": "NodeRenamedEvent",
	"namespace": "seraph.events",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "version", "type": "int"},
		{"name": "nodeId", "type": "string"},
		{"name": "oldParentId", "type": "string"},
		{"name": "size", "type": "long"}
	]
}`)

// NodeDeletedEvent is sent after a node was removed from ParentId.
// Size is the size the node had.
type NodeDeletedEvent struct {
	Event

	NodeId   string `avro:"nodeId"`
	ParentId string `avro:"parentId"`
	Size     int64  `avro:"size"`
}

var NodeDeletedEventSchema = avro.MustParse(`{
	"type": "record",
	"name": "NodeDeletedEvent",
	"namespace": "seraph.events",
	"fields": [
		{"name": "id", "type": "string"},
		{"name": "version", "type": "int"},
		{"name": "nodeId", "type": "string"},
		{"name": "parentId", "type": "string"},
		{"name": "size", "type": "long"}
	]
}`)

var Api = avro.Config{
	UnionResolutionError:       true,
	PartialUnionTypeResolution: false,
}.Freeze()

// AvroCodec encodes events with the shared [Api] and a fixed schema.
type AvroCodec[T any] struct {
	Schema avro.Schema
}

func (c AvroCodec[T]) Encode(v *T) ([]byte, error) {
	return Api.Marshal(c.Schema, v)
}

func (c AvroCodec[T]) Decode(data []byte, v *T) error {
	return Api.Unmarshal(c.Schema, data, v)
}
