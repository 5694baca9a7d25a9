package colstore

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

var (
	ErrRowNotFound         = errors.New("row not found")
	ErrEmptyRowKey         = errors.New("row key is empty")
	ErrTableNotFound       = errors.New("table not found")
	ErrTableExists         = errors.New("table already exists")
	ErrClockMovedBackwards = errors.New("clock moved backwards")
	ErrStoreClosed         = errors.New("store is closed")
)

// MissingKeyFieldError is returned when an entity type has neither a field
// tagged as key nor a field named id.
type MissingKeyFieldError struct {
	TypeID string
}

func (e *MissingKeyFieldError) Error() string {
	return fmt.Sprintf("entity %s has no key field: tag one field with `col:\",key\"` or name it id", e.TypeID)
}

type DuplicateKeyFieldError struct {
	TypeID string
	Fields []string
}

func (e *DuplicateKeyFieldError) Error() string {
	return fmt.Sprintf("entity %s cannot have more than 1 key, got %v", e.TypeID, e.Fields)
}

type DuplicateQualifierError struct {
	TypeID    string
	Qualifier string
}

func (e *DuplicateQualifierError) Error() string {
	return fmt.Sprintf("entity %s maps qualifier %q more than once", e.TypeID, e.Qualifier)
}

// NotMappedError is returned by the registry for types that were never
// registered.
type NotMappedError struct {
	TypeID string
}

func (e *NotMappedError) Error() string {
	return fmt.Sprintf("type %s is not mapped", e.TypeID)
}

// UnsupportedTypeError is returned when a value cannot be encoded, not even
// through the JSON fallback.
type UnsupportedTypeError struct {
	Type  reflect.Type
	Cause error
}

func (e *UnsupportedTypeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("unsupported type %s: %s", e.Type, e.Cause)
	}
	return fmt.Sprintf("unsupported type %s", e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error {
	return e.Cause
}

// DecodeError reports bytes that cannot be converted into the declared type.
// Want is -1 for variable length types.
type DecodeError struct {
	Type  reflect.Type
	Want  int
	Got   int
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot decode %d bytes into %s: %s", e.Got, e.Type, e.Cause)
	}
	return fmt.Sprintf("cannot decode %d bytes into %s: expected %d bytes", e.Got, e.Type, e.Want)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// InvalidKeyTypeError is returned when a key policy cannot produce a value
// for the declared type of the key property.
type InvalidKeyTypeError struct {
	TypeID string
	Field  string
	Policy KeyPolicy
	Type   reflect.Type
}

func (e *InvalidKeyTypeError) Error() string {
	return fmt.Sprintf("key policy %s cannot assign %s.%s of type %s", e.Policy, e.TypeID, e.Field, e.Type)
}

type UnknownKeyPolicyError struct {
	Policy KeyPolicy
}

func (e *UnknownKeyPolicyError) Error() string {
	return fmt.Sprintf("no row key generator registered for policy %s", e.Policy)
}
