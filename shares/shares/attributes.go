package shares

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

var ErrInvalidAttribute = errors.New("invalid share attribute")

// Attribute is one scoped share attribute, e.g. ("permissions", "download").
// Value is a bool, string or int64.
type Attribute struct {
	Scope string `bson:"scope" json:"scope"`
	Key   string `bson:"key" json:"key"`
	Value any    `bson:"value" json:"value"`
}

// Attributes is an immutable set of share attributes, keyed by scope and key.
// The zero value is empty.
type Attributes struct {
	entries []Attribute
}

// NewAttributes validates attrs and returns them as Attributes.
// Supported values are bool, string and integers.
func NewAttributes(attrs ...Attribute) (Attributes, error) {
	if len(attrs) == 0 {
		return Attributes{}, nil
	}
	entries := make([]Attribute, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Scope == "" || attr.Key == "" {
			return Attributes{}, fmt.Errorf("%w: scope and key are required", ErrInvalidAttribute)
		}
		value, err := normalizeValue(attr.Value)
		if err != nil {
			return Attributes{}, fmt.Errorf("%w: %s.%s: %w", ErrInvalidAttribute, attr.Scope, attr.Key, err)
		}
		entries = append(entries, Attribute{attr.Scope, attr.Key, value})
	}
	slices.SortStableFunc(entries, compareAttributes)
	for i := 1; i < len(entries); i++ {
		if compareAttributes(entries[i-1], entries[i]) == 0 {
			return Attributes{}, fmt.Errorf("%w: duplicate key %s.%s", ErrInvalidAttribute, entries[i].Scope, entries[i].Key)
		}
	}
	return Attributes{entries}, nil
}

func normalizeValue(v any) (any, error) {
	switch value := v.(type) {
	case bool, string, int64:
		return value, nil
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case json.Number:
		return value.Int64()
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func compareAttributes(a, b Attribute) int {
	if c := strings.Compare(a.Scope, b.Scope); c != 0 {
		return c
	}
	return strings.Compare(a.Key, b.Key)
}

func (a Attributes) Get(scope, key string) (any, bool) {
	i, found := slices.BinarySearchFunc(a.entries, Attribute{Scope: scope, Key: key}, compareAttributes)
	if !found {
		return nil, false
	}
	return a.entries[i].Value, true
}

// Bool returns the attribute value if it is set and a bool.
func (a Attributes) Bool(scope, key string) (bool, bool) {
	v, ok := a.Get(scope, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (a Attributes) Len() int {
	return len(a.entries)
}

// All returns a copy of the attributes, sorted by scope and key.
func (a Attributes) All() []Attribute {
	return slices.Clone(a.entries)
}

// With returns a copy of a with attr added or replaced.
func (a Attributes) With(attr Attribute) (Attributes, error) {
	entries := slices.DeleteFunc(a.All(), func(other Attribute) bool {
		return other.Scope == attr.Scope && other.Key == attr.Key
	})
	return NewAttributes(append(entries, attr)...)
}

func (a Attributes) Equal(other Attributes) bool {
	return slices.Equal(a.entries, other.entries)
}

func (a Attributes) MarshalBSONValue() (bsontype.Type, []byte, error) {
	entries := a.entries
	if entries == nil {
		entries = []Attribute{}
	}
	return bson.MarshalValue(entries)
}

func (a *Attributes) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t == bson.TypeNull || t == bson.TypeUndefined {
		*a = Attributes{}
		return nil
	}
	var entries []Attribute
	err := bson.RawValue{Type: t, Value: data}.Unmarshal(&entries)
	if err != nil {
		return err
	}
	parsed, err := NewAttributes(entries...)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	entries := a.entries
	if entries == nil {
		entries = []Attribute{}
	}
	return json.Marshal(entries)
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	var entries []Attribute
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&entries); err != nil {
		return err
	}
	parsed, err := NewAttributes(entries...)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
