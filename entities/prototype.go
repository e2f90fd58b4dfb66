package entities

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Prototype marks a struct as a partial document. Embed it and declare
// the fields as [Definable]:
//
//	type NodePrototype struct {
//		entities.Prototype
//
//		Owner entities.Definable[string] `bson:"owner"`
//	}
//
// A Prototype can be passed directly as a filter or $set document once
// [RegisterEncoders] has been applied to the client registry.
type Prototype interface {
	isPrototype()
}

// ToBson converts a prototype to a bson.M containing only the defined fields.
func ToBson(p Prototype) bson.M {
	t := reflect.TypeOf(p)
	v := reflect.ValueOf(p)

	if t.Kind() == reflect.Pointer {
		t = t.Elem()
		v = v.Elem()
	}

	ret := bson.M{}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}

		fieldValue := v.Field(i).Interface()
		fieldName := bsonName(field)

		if def, ok := fieldValue.(definableInternal); ok {
			if val, defined := def.getInternal(); defined {
				ret[fieldName] = val
			}
		} else {
			ret[fieldName] = fieldValue
		}
	}

	return ret
}

func bsonName(field reflect.StructField) string {
	tag, _, _ := strings.Cut(field.Tag.Get("bson"), ",")
	if tag == "" {
		return strings.ToLower(field.Name)
	}
	return tag
}
