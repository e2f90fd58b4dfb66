package entities_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"umbasa.net/seraph-mounts/entities"
)

type testProto struct {
	entities.Prototype

	Owner    entities.Definable[string] `bson:"owner"`
	Size     entities.Definable[int64]  `bson:"size,omitempty"`
	IsDir    entities.Definable[bool]
	Recount  bool `bson:"needsRecount"`
	internal string
}

func TestToBsonEmpty(t *testing.T) {
	assert.Equal(t, bson.M{"needsRecount": false}, entities.ToBson(&testProto{}))
}

func TestToBsonDefined(t *testing.T) {
	p := testProto{}
	p.Owner.Set("alice")
	p.IsDir = entities.Of(true)

	assert.Equal(t, bson.M{
		"owner":        "alice",
		"isdir":        true,
		"needsRecount": false,
	}, entities.ToBson(p))
}

func TestToBsonTagOptions(t *testing.T) {
	p := testProto{}
	p.Size.Set(42)
	p.Owner.Set("bob")
	p.Owner.Unset()

	assert.Equal(t, bson.M{"size": int64(42), "needsRecount": false}, entities.ToBson(&p))
}
