package colstore

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// KeyPolicy selects how the row key of an entity is produced when it is
// saved without one.
type KeyPolicy string

const (
	// KeyInput leaves the key to the caller.
	KeyInput KeyPolicy = "input"
	// KeyAssignID assigns a snowflake id to integer or string keys.
	KeyAssignID KeyPolicy = "assign_id"
	// KeyAssignUUID assigns 32 lowercase hex characters to string keys.
	KeyAssignUUID KeyPolicy = "assign_uuid"
	// KeyAssignObjectID assigns a 24 character hex ObjectID to string keys.
	KeyAssignObjectID KeyPolicy = "assign_object_id"
	// KeyAssignKSUID assigns a 27 character KSUID to string keys.
	KeyAssignKSUID KeyPolicy = "assign_ksuid"

	DefaultKeyPolicy = KeyAssignID
)

func (p KeyPolicy) String() string {
	return string(p)
}

func ParseKeyPolicy(s string) (KeyPolicy, error) {
	p := KeyPolicy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case KeyInput, KeyAssignID, KeyAssignUUID, KeyAssignObjectID, KeyAssignKSUID:
		return p, nil
	}

	return "", &UnknownKeyPolicyError{Policy: p}
}

var errIncompatibleKeyType = errors.New("incompatible key type")

// RowKeyGenerator produces key values for one policy. Generate returns an
// invalid reflect.Value when the policy does not assign anything.
type RowKeyGenerator interface {
	Policy() KeyPolicy
	Generate(t reflect.Type) (reflect.Value, error)
}

type inputKeyGenerator struct{}

func (inputKeyGenerator) Policy() KeyPolicy {
	return KeyInput
}

func (inputKeyGenerator) Generate(reflect.Type) (reflect.Value, error) {
	return reflect.Value{}, nil
}

type snowflakeKeyGenerator struct {
	sf *Snowflake
}

// NewSnowflakeKeyGenerator assigns ids from sf to int64, int, uint64 and uint
// keys, or their decimal form to string keys.
func NewSnowflakeKeyGenerator(sf *Snowflake) RowKeyGenerator {
	return snowflakeKeyGenerator{sf: sf}
}

func (g snowflakeKeyGenerator) Policy() KeyPolicy {
	return KeyAssignID
}

func (g snowflakeKeyGenerator) Generate(t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint64, reflect.String:
	default:
		return reflect.Value{}, errIncompatibleKeyType
	}

	id, err := g.sf.NextID()
	if err != nil {
		return reflect.Value{}, err
	}

	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int64:
		v.SetInt(id)
	case reflect.Uint, reflect.Uint64:
		v.SetUint(uint64(id))
	default:
		v.SetString(strconv.FormatInt(id, 10))
	}

	return v, nil
}

// stringKeyGenerator covers the policies that only produce strings.
type stringKeyGenerator struct {
	policy KeyPolicy
	next   func() string
}

func (g stringKeyGenerator) Policy() KeyPolicy {
	return g.policy
}

func (g stringKeyGenerator) Generate(t reflect.Type) (reflect.Value, error) {
	if t.Kind() != reflect.String {
		return reflect.Value{}, errIncompatibleKeyType
	}

	return reflect.ValueOf(g.next()).Convert(t), nil
}

func NewUUIDKeyGenerator() RowKeyGenerator {
	return stringKeyGenerator{
		policy: KeyAssignUUID,
		next: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

func NewObjectIDKeyGenerator() RowKeyGenerator {
	return stringKeyGenerator{
		policy: KeyAssignObjectID,
		next: func() string {
			return primitive.NewObjectID().Hex()
		},
	}
}

func NewKSUIDKeyGenerator() RowKeyGenerator {
	return stringKeyGenerator{
		policy: KeyAssignKSUID,
		next: func() string {
			return ksuid.New().String()
		},
	}
}

// KeyGeneratorRegistry dispatches key assignment to the generator registered
// for the policy of an entity.
type KeyGeneratorRegistry struct {
	mu         sync.RWMutex
	generators map[KeyPolicy]RowKeyGenerator
}

// NewKeyGeneratorRegistry returns a registry holding the input, uuid,
// object id and ksuid generators plus a snowflake generator backed by sf.
func NewKeyGeneratorRegistry(sf *Snowflake, extra ...RowKeyGenerator) *KeyGeneratorRegistry {
	r := &KeyGeneratorRegistry{generators: make(map[KeyPolicy]RowKeyGenerator)}
	r.Register(inputKeyGenerator{})
	r.Register(NewUUIDKeyGenerator())
	r.Register(NewObjectIDKeyGenerator())
	r.Register(NewKSUIDKeyGenerator())
	if sf != nil {
		r.Register(NewSnowflakeKeyGenerator(sf))
	}

	for _, g := range extra {
		r.Register(g)
	}

	return r
}

// Register adds g, replacing any generator for the same policy.
func (r *KeyGeneratorRegistry) Register(g RowKeyGenerator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[g.Policy()] = g
}

func (r *KeyGeneratorRegistry) Generator(p KeyPolicy) (RowKeyGenerator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[p]
	return g, ok
}

// Assign fills the key property of entity, a pointer to the described
// struct, when it is empty. A key that is already set is kept whatever the
// policy. The entity is left untouched on error.
func (r *KeyGeneratorRegistry) Assign(desc *EntityDescriptor, entity any) error {
	rv, err := desc.entityValue(entity)
	if err != nil {
		return err
	}

	key := desc.Key
	current, err := key.Get(rv)
	if err != nil {
		return err
	}

	if !isEmptyValue(current) {
		return nil
	}

	gen, ok := r.Generator(desc.KeyPolicy)
	if !ok {
		return &UnknownKeyPolicyError{Policy: desc.KeyPolicy}
	}

	t := key.Type
	depth := 0
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
		depth++
	}

	val, err := gen.Generate(t)
	if errors.Is(err, errIncompatibleKeyType) {
		return &InvalidKeyTypeError{TypeID: desc.TypeID, Field: key.Field, Policy: desc.KeyPolicy, Type: key.Type}
	}
	if err != nil {
		return errors.Wrapf(err, "generate key for %s", desc.TypeID)
	}

	if !val.IsValid() {
		return nil
	}

	for ; depth > 0; depth-- {
		ptr := reflect.New(val.Type())
		ptr.Elem().Set(val)
		val = ptr
	}

	return key.Set(rv, val)
}

// isEmptyValue reports whether v holds no key: nil pointers, zero scalars and
// empty strings or byte slices. A numeric key of 0 therefore never names a
// row, under any policy.
func isEmptyValue(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		return v.IsNil() || isEmptyValue(v.Elem())
	case reflect.Slice, reflect.Map, reflect.String:
		return v.Len() == 0
	}

	return v.IsZero()
}
