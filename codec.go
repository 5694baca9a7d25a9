package colstore

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type codecKind uint8

const (
	kindJSON codecKind = iota
	kindString
	kindBool
	kindInt
	kindUint
	kindFloat32
	kindFloat64
	kindBytes
	kindDecimal
	kindTime
)

var kindNames = map[codecKind]string{
	kindJSON:    "json",
	kindString:  "string",
	kindBool:    "bool",
	kindInt:     "int",
	kindUint:    "uint",
	kindFloat32: "float32",
	kindFloat64: "float64",
	kindBytes:   "bytes",
	kindDecimal: "decimal",
	kindTime:    "time",
}

func (k codecKind) String() string {
	return kindNames[k]
}

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	timeType    = reflect.TypeOf(time.Time{})

	errNilPointer = errors.New("nil pointer")
)

const timeWidth = 12

// codecKindOf resolves the byte layout used for t. Pointers resolve to their
// element. width is the fixed encoded size, or -1 for variable length.
func codecKindOf(t reflect.Type) (kind codecKind, width int) {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	switch t {
	case decimalType:
		return kindDecimal, -1
	case timeType:
		return kindTime, timeWidth
	}

	switch t.Kind() {
	case reflect.String:
		return kindString, -1
	case reflect.Bool:
		return kindBool, 1
	case reflect.Int8:
		return kindInt, 1
	case reflect.Int16:
		return kindInt, 2
	case reflect.Int32:
		return kindInt, 4
	case reflect.Int, reflect.Int64:
		return kindInt, 8
	case reflect.Uint8:
		return kindUint, 1
	case reflect.Uint16:
		return kindUint, 2
	case reflect.Uint32:
		return kindUint, 4
	case reflect.Uint, reflect.Uint64:
		return kindUint, 8
	case reflect.Float32:
		return kindFloat32, 4
	case reflect.Float64:
		return kindFloat64, 8
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return kindBytes, -1
		}
	}

	return kindJSON, -1
}

// Encode converts v into the byte layout of the declared type t. When t is
// nil the dynamic type of v is used.
//
// Scalars use fixed width big-endian layouts, strings are raw UTF-8,
// decimal.Decimal is a 4 byte scale followed by the two's complement unscaled
// value and every other type falls back to JSON.
func Encode(v any, t reflect.Type) ([]byte, error) {
	if v == nil {
		return nil, &UnsupportedTypeError{Type: t, Cause: errors.New("nil value")}
	}

	rv := reflect.ValueOf(v)
	if t == nil {
		t = rv.Type()
	}

	if rv.Type() != t {
		switch {
		case rv.Type().AssignableTo(t):
			nv := reflect.New(t).Elem()
			nv.Set(rv)
			rv = nv
		case rv.Type().ConvertibleTo(t) && sameCodecKind(rv.Type(), t):
			rv = rv.Convert(t)
		default:
			return nil, &UnsupportedTypeError{Type: t, Cause: errors.Errorf("value of type %s does not match", rv.Type())}
		}
	}

	return EncodeValue(rv)
}

// EncodeValue is Encode for a value whose type is the declared type.
func EncodeValue(rv reflect.Value) ([]byte, error) {
	if !rv.IsValid() {
		return nil, &UnsupportedTypeError{Cause: errors.New("invalid value")}
	}

	t := rv.Type()
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, &UnsupportedTypeError{Type: t, Cause: errNilPointer}
		}
		rv = rv.Elem()
	}

	kind, width := codecKindOf(rv.Type())
	switch kind {
	case kindString:
		return []byte(rv.String()), nil
	case kindBool:
		if rv.Bool() {
			return []byte{0xff}, nil
		}
		return []byte{0x00}, nil
	case kindInt:
		return putUint(uint64(rv.Int()), width), nil
	case kindUint:
		return putUint(rv.Uint(), width), nil
	case kindFloat32:
		return putUint(uint64(math.Float32bits(float32(rv.Float()))), 4), nil
	case kindFloat64:
		return putUint(math.Float64bits(rv.Float()), 8), nil
	case kindBytes:
		b := make([]byte, rv.Len())
		for i := range b {
			b[i] = byte(rv.Index(i).Uint())
		}
		return b, nil
	case kindDecimal:
		return encodeDecimal(rv.Interface().(decimal.Decimal)), nil
	case kindTime:
		return encodeTime(rv.Interface().(time.Time)), nil
	}

	b, err := json.Marshal(rv.Interface())
	if err != nil {
		return nil, &UnsupportedTypeError{Type: t, Cause: err}
	}

	return b, nil
}

// Decode converts b back into a value of the declared type t.
func Decode(b []byte, t reflect.Type) (any, error) {
	rv, err := DecodeValue(b, t)
	if err != nil {
		return nil, err
	}

	return rv.Interface(), nil
}

// DecodeValue is Decode returning the reflect.Value, ready to be assigned to
// a field of type t.
func DecodeValue(b []byte, t reflect.Type) (reflect.Value, error) {
	if t == nil {
		return reflect.Value{}, &UnsupportedTypeError{Cause: errors.New("nil type")}
	}

	if t.Kind() == reflect.Ptr {
		elem, err := DecodeValue(b, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}

		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(elem)
		return ptr, nil
	}

	kind, width := codecKindOf(t)
	if width >= 0 && len(b) != width {
		return reflect.Value{}, &DecodeError{Type: t, Want: width, Got: len(b)}
	}

	out := reflect.New(t).Elem()
	switch kind {
	case kindString:
		out.SetString(string(b))
	case kindBool:
		out.SetBool(b[0] != 0)
	case kindInt:
		out.SetInt(signExtend(getUint(b), width))
	case kindUint:
		out.SetUint(getUint(b))
	case kindFloat32:
		out.SetFloat(float64(math.Float32frombits(uint32(getUint(b)))))
	case kindFloat64:
		out.SetFloat(math.Float64frombits(getUint(b)))
	case kindBytes:
		out.Set(reflect.MakeSlice(t, len(b), len(b)))
		for i, c := range b {
			out.Index(i).SetUint(uint64(c))
		}
	case kindDecimal:
		d, err := decodeDecimal(b)
		if err != nil {
			return reflect.Value{}, &DecodeError{Type: t, Want: -1, Got: len(b), Cause: err}
		}
		out.Set(reflect.ValueOf(d))
	case kindTime:
		out.Set(reflect.ValueOf(decodeTime(b)))
	default:
		ptr := reflect.New(t)
		if err := json.Unmarshal(b, ptr.Interface()); err != nil {
			return reflect.Value{}, &DecodeError{Type: t, Want: -1, Got: len(b), Cause: err}
		}
		out = ptr.Elem()
	}

	return out, nil
}

// EncodeOf encodes v using its static type.
func EncodeOf[T any](v T) ([]byte, error) {
	return Encode(v, reflect.TypeOf((*T)(nil)).Elem())
}

// DecodeAs decodes b into a T.
func DecodeAs[T any](b []byte) (T, error) {
	var zero T
	rv, err := DecodeValue(b, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}

	return rv.Interface().(T), nil
}

func sameCodecKind(a, b reflect.Type) bool {
	ka, wa := codecKindOf(a)
	kb, wb := codecKindOf(b)
	return ka == kb && wa == wb && ka != kindJSON
}

func putUint(v uint64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.BigEndian.PutUint16(b, uint16(v))
	case 4:
		binary.BigEndian.PutUint32(b, uint32(v))
	default:
		binary.BigEndian.PutUint64(b, v)
	}
	return b
}

func getUint(b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	default:
		return binary.BigEndian.Uint64(b)
	}
}

func signExtend(v uint64, width int) int64 {
	switch width {
	case 1:
		return int64(int8(v))
	case 2:
		return int64(int16(v))
	case 4:
		return int64(int32(v))
	default:
		return int64(v)
	}
}

func encodeTime(t time.Time) []byte {
	b := make([]byte, timeWidth)
	binary.BigEndian.PutUint64(b, uint64(t.Unix()))
	binary.BigEndian.PutUint32(b[8:], uint32(t.Nanosecond()))
	return b
}

func decodeTime(b []byte) time.Time {
	sec := int64(binary.BigEndian.Uint64(b))
	nsec := int64(binary.BigEndian.Uint32(b[8:]))
	return time.Unix(sec, nsec).UTC()
}
