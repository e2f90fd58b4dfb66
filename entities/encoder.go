package entities

import (
	"errors"
	"reflect"

	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
)

type PrototypeEncoder struct{}

func (e *PrototypeEncoder) EncodeValue(ctx bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	typ := val.Type()

	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
		val = val.Elem()
	}

	docWriter, err := vw.WriteDocument()
	if err != nil {
		return err
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}

		fieldValue := val.Field(i)
		if def, ok := fieldValue.Interface().(definableInternal); ok {
			// Definables are always "omitempty"
			v, defined := def.getInternal()
			if !defined {
				continue
			}
			fieldValue = reflect.ValueOf(v)
		}
		valWriter, err := docWriter.WriteDocumentElement(bsonName(field))
		if err != nil {
			return err
		}
		if !fieldValue.IsValid() {
			if err := valWriter.WriteNull(); err != nil {
				return err
			}
			continue
		}
		enc, err := ctx.LookupEncoder(fieldValue.Type())
		if err != nil {
			return err
		}
		err = enc.EncodeValue(ctx, valWriter, fieldValue)
		if err != nil {
			return err
		}
	}

	return docWriter.WriteDocumentEnd()
}

type DefinableEncoder struct{}

func (e *DefinableEncoder) EncodeValue(ctx bsoncodec.EncodeContext, vw bsonrw.ValueWriter, val reflect.Value) error {
	valDefinable, ok := val.Interface().(definableInternal)
	if !ok {
		return errors.New("value is not Definable")
	}
	value, _ := valDefinable.getInternal()
	if value == nil {
		return vw.WriteNull()
	}

	encoder, err := ctx.LookupEncoder(reflect.TypeOf(value))
	if err != nil {
		return err
	}

	return encoder.EncodeValue(ctx, vw, reflect.ValueOf(value))
}

func RegisterEncoders(r *bsoncodec.Registry) {
	var d definableInternal
	definableType := reflect.TypeOf(&d).Elem()
	r.RegisterInterfaceEncoder(definableType, &DefinableEncoder{})

	var p Prototype
	prototypeType := reflect.TypeOf(&p).Elem()
	r.RegisterInterfaceEncoder(prototypeType, &PrototypeEncoder{})
}
