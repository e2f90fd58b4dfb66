package shares_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"umbasa.net/seraph-mounts/shares/shares"
)

func TestNewAttributes(t *testing.T) {
	attrs, err := shares.NewAttributes(
		shares.Attribute{Scope: "permissions", Key: "download", Value: true},
		shares.Attribute{Scope: "app", Key: "color", Value: "red"},
		shares.Attribute{Scope: "app", Key: "limit", Value: 5},
	)
	assert.Nil(t, err)
	assert.Equal(t, 3, attrs.Len())

	download, ok := attrs.Bool("permissions", "download")
	assert.True(t, ok)
	assert.True(t, download)

	limit, ok := attrs.Get("app", "limit")
	assert.True(t, ok)
	assert.Equal(t, int64(5), limit)

	_, ok = attrs.Bool("app", "color")
	assert.False(t, ok)

	all := attrs.All()
	assert.Equal(t, "color", all[0].Key)
	assert.Equal(t, "download", all[2].Key)
}

func TestNewAttributesInvalid(t *testing.T) {
	_, err := shares.NewAttributes(shares.Attribute{Scope: "", Key: "download", Value: true})
	assert.ErrorIs(t, err, shares.ErrInvalidAttribute)

	_, err = shares.NewAttributes(shares.Attribute{Scope: "permissions", Key: "download", Value: 1.5})
	assert.ErrorIs(t, err, shares.ErrInvalidAttribute)

	_, err = shares.NewAttributes(
		shares.Attribute{Scope: "permissions", Key: "download", Value: true},
		shares.Attribute{Scope: "permissions", Key: "download", Value: false},
	)
	assert.ErrorIs(t, err, shares.ErrInvalidAttribute)
}

func TestAttributesWith(t *testing.T) {
	attrs, _ := shares.NewAttributes(shares.Attribute{Scope: "permissions", Key: "download", Value: false})

	changed, err := attrs.With(shares.Attribute{Scope: "permissions", Key: "download", Value: true})
	assert.Nil(t, err)

	v, _ := changed.Bool("permissions", "download")
	assert.True(t, v)
	v, _ = attrs.Bool("permissions", "download")
	assert.False(t, v)
}

func TestAttributesEncoding(t *testing.T) {
	attrs, _ := shares.NewAttributes(
		shares.Attribute{Scope: "permissions", Key: "download", Value: true},
		shares.Attribute{Scope: "app", Key: "limit", Value: int64(3)},
	)
	share := shares.Share{Attributes: attrs}

	data, err := json.Marshal(share)
	assert.Nil(t, err)
	decoded := shares.Share{}
	assert.Nil(t, json.Unmarshal(data, &decoded))
	assert.True(t, attrs.Equal(decoded.Attributes))

	data, err = bson.Marshal(share)
	assert.Nil(t, err)
	decoded = shares.Share{}
	assert.Nil(t, bson.Unmarshal(data, &decoded))
	assert.True(t, attrs.Equal(decoded.Attributes))

	empty := shares.Share{}
	data, _ = bson.Marshal(empty)
	decoded = shares.Share{}
	assert.Nil(t, bson.Unmarshal(data, &decoded))
	assert.Equal(t, 0, decoded.Attributes.Len())
}

func TestTargetFor(t *testing.T) {
	share := shares.Share{
		Target:      "/docs",
		UserTargets: []shares.UserTarget{{User: "u1", Target: "/docs (2)"}},
	}

	assert.Equal(t, "/docs (2)", share.TargetFor("u1"))
	assert.Equal(t, "/docs", share.TargetFor("u2"))
}
