package colstore

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
)

const (
	DefaultColumnFamily = "info"

	keyFieldName = "id"
	columnTag    = "col"
)

// EntityDescriptor is the compiled mapping of one struct type. It is never
// modified after Compile returns.
type EntityDescriptor struct {
	TypeID    string
	Type      reflect.Type
	Table     string
	Family    string
	KeyPolicy KeyPolicy
	Key       *PropertyDescriptor
	// WriteKeyColumn reports whether the key property is also written as an
	// ordinary column next to being the row key.
	WriteKeyColumn bool
	Properties     map[string]*PropertyDescriptor

	columns []*PropertyDescriptor
}

// Columns returns the properties sorted by qualifier.
func (d *EntityDescriptor) Columns() []*PropertyDescriptor {
	return d.columns
}

func (d *EntityDescriptor) Property(qualifier string) (*PropertyDescriptor, bool) {
	p, ok := d.Properties[qualifier]
	return p, ok
}

// entityValue returns the addressable struct behind entity, which must be a
// non-nil pointer to d.Type.
func (d *EntityDescriptor) entityValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, errors.Errorf("entity must be a non-nil *%s, got %T", d.Type.Name(), entity)
	}

	rv = rv.Elem()
	if rv.Type() != d.Type {
		return reflect.Value{}, errors.Errorf("entity must be a *%s, got %T", d.Type.Name(), entity)
	}

	return rv, nil
}

// RowKey encodes the key property of entity.
func (d *EntityDescriptor) RowKey(entity any) ([]byte, error) {
	rv, err := d.entityValue(entity)
	if err != nil {
		return nil, err
	}

	return d.rowKey(rv)
}

func (d *EntityDescriptor) rowKey(rv reflect.Value) ([]byte, error) {
	kv, err := d.Key.Get(rv)
	if err != nil {
		return nil, err
	}

	if isEmptyValue(kv) {
		return nil, errors.Wrapf(ErrEmptyRowKey, "%s.%s", d.TypeID, d.Key.Field)
	}

	return EncodeValue(kv)
}

// PropertyDescriptor maps one struct field to one qualifier.
type PropertyDescriptor struct {
	Name  string
	Field string
	Type  reflect.Type

	kind  codecKind
	index []int
}

// Get reads the field from the struct value rv.
func (p *PropertyDescriptor) Get(rv reflect.Value) (reflect.Value, error) {
	f, err := rv.FieldByIndexErr(p.index)
	if err != nil {
		return reflect.Value{}, errors.Wrapf(err, "read field %s", p.Field)
	}

	return f, nil
}

// Layout names the byte layout the codec uses for this property.
func (p *PropertyDescriptor) Layout() string {
	return p.kind.String()
}

// Set assigns v to the field of the struct value rv.
func (p *PropertyDescriptor) Set(rv reflect.Value, v reflect.Value) error {
	f, err := rv.FieldByIndexErr(p.index)
	if err != nil {
		return errors.Wrapf(err, "set field %s", p.Field)
	}

	if !f.CanSet() {
		return errors.Errorf("field %s cannot be set", p.Field)
	}

	if !v.Type().AssignableTo(f.Type()) {
		return errors.Errorf("cannot assign %s to field %s of type %s", v.Type(), p.Field, f.Type())
	}

	f.Set(v)
	return nil
}

type mappingOption struct {
	defaultPolicy KeyPolicy
	defaultFamily string
	keyColumn     bool
}

func defaultMappingOption() *mappingOption {
	return &mappingOption{
		defaultPolicy: DefaultKeyPolicy,
		defaultFamily: DefaultColumnFamily,
		keyColumn:     true,
	}
}

type MappingOption func(o *mappingOption)

// WithDefaultKeyPolicy sets the policy of entities that do not name one.
func WithDefaultKeyPolicy(p KeyPolicy) MappingOption {
	return func(o *mappingOption) {
		o.defaultPolicy = p
	}
}

func WithDefaultFamily(family string) MappingOption {
	return func(o *mappingOption) {
		o.defaultFamily = family
	}
}

// WithKeyColumn controls whether the key property is written as a column
// too. It is by default.
func WithKeyColumn(write bool) MappingOption {
	return func(o *mappingOption) {
		o.keyColumn = write
	}
}

// TypeID returns the identifier entities of type t are registered under.
func TypeID(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.PkgPath() == "" {
		return t.String()
	}

	return t.PkgPath() + "." + t.Name()
}

// Compile builds the descriptor of the struct type t.
func Compile(t reflect.Type, options ...MappingOption) (*EntityDescriptor, error) {
	opt := defaultMappingOption()
	for _, op := range options {
		op(opt)
	}

	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t.Kind() != reflect.Struct || t.Name() == "" {
		return nil, errors.Errorf("entity must be a named struct, got %s", t)
	}

	typeID := TypeID(t)
	desc := &EntityDescriptor{
		TypeID:         typeID,
		Type:           t,
		Table:          strcase.ToSnake(t.Name()),
		Family:         opt.defaultFamily,
		WriteKeyColumn: opt.keyColumn,
		Properties:     make(map[string]*PropertyDescriptor),
	}

	var (
		tablePolicy KeyPolicy
		keyPolicy   KeyPolicy
		keys        []*PropertyDescriptor
		idProp      *PropertyDescriptor
	)

	var walk func(st reflect.Type, index []int) error
	walk = func(st reflect.Type, index []int) error {
		for i := 0; i < st.NumField(); i++ {
			field := st.Field(i)
			fieldIndex := append(append([]int{}, index...), i)

			if field.Type == tableMarkerType {
				if name := field.Tag.Get("table"); name != "" {
					desc.Table = name
				}
				if family := field.Tag.Get("family"); family != "" {
					desc.Family = family
				}
				if p := field.Tag.Get("policy"); p != "" {
					policy, err := ParseKeyPolicy(p)
					if err != nil {
						return errors.Wrapf(err, "entity %s", typeID)
					}
					tablePolicy = policy
				}
				continue
			}

			tagValue, tagged := field.Tag.Lookup(columnTag)
			if tagValue == "-" {
				continue
			}

			if field.Anonymous && !tagged && field.Type.Kind() == reflect.Struct {
				if err := walk(field.Type, fieldIndex); err != nil {
					return err
				}
				continue
			}

			if !field.IsExported() {
				continue
			}

			tag := parseColumnTag(tagValue)
			name := tag.name
			switch {
			case name != "":
			case strings.EqualFold(field.Name, keyFieldName):
				name = keyFieldName
			default:
				name = strcase.ToLowerCamel(field.Name)
			}

			if _, dup := desc.Properties[name]; dup {
				return &DuplicateQualifierError{TypeID: typeID, Qualifier: name}
			}

			kind, _ := codecKindOf(field.Type)
			prop := &PropertyDescriptor{
				Name:  name,
				Field: field.Name,
				Type:  field.Type,
				kind:  kind,
				index: fieldIndex,
			}
			desc.Properties[name] = prop

			if tag.isKey {
				keys = append(keys, prop)
				if tag.policy != "" {
					policy, err := ParseKeyPolicy(tag.policy)
					if err != nil {
						return errors.Wrapf(err, "entity %s field %s", typeID, field.Name)
					}
					keyPolicy = policy
				}
			}

			if idProp == nil && (strings.EqualFold(field.Name, keyFieldName) || name == keyFieldName) {
				idProp = prop
			}
		}
		return nil
	}

	if err := walk(t, nil); err != nil {
		return nil, err
	}

	switch {
	case len(keys) > 1:
		return nil, &DuplicateKeyFieldError{TypeID: typeID, Fields: fieldNames(keys)}
	case len(keys) == 1:
		desc.Key = keys[0]
	case idProp != nil:
		desc.Key = idProp
	default:
		return nil, &MissingKeyFieldError{TypeID: typeID}
	}

	desc.KeyPolicy = opt.defaultPolicy
	if tablePolicy != "" {
		desc.KeyPolicy = tablePolicy
	}
	if keyPolicy != "" {
		desc.KeyPolicy = keyPolicy
	}

	if model, ok := reflect.New(t).Interface().(Model); ok {
		applyTableDef(desc, model.GetTableDef())
	}

	if desc.Table == "" || desc.Family == "" {
		return nil, errors.Errorf("entity %s needs a table name and a column family", typeID)
	}

	desc.columns = make([]*PropertyDescriptor, 0, len(desc.Properties))
	for _, p := range desc.Properties {
		desc.columns = append(desc.columns, p)
	}
	sort.Slice(desc.columns, func(i, j int) bool {
		return desc.columns[i].Name < desc.columns[j].Name
	})

	return desc, nil
}

// CompileOf is Compile for the type parameter T.
func CompileOf[T any](options ...MappingOption) (*EntityDescriptor, error) {
	return Compile(reflect.TypeOf((*T)(nil)).Elem(), options...)
}

func fieldNames(props []*PropertyDescriptor) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Field
	}
	return names
}

type columnTagInfo struct {
	name   string
	isKey  bool
	policy string
}

// parseColumnTag reads `col:"name,key policy=assign_uuid"`. Options after the
// comma are separated by spaces.
func parseColumnTag(value string) columnTagInfo {
	var info columnTagInfo
	tagArr := strings.SplitN(value, ",", 2)
	info.name = strings.TrimSpace(tagArr[0])
	if len(tagArr) < 2 {
		return info
	}

	for _, v := range strings.Fields(tagArr[1]) {
		varr := strings.SplitN(v, "=", 2)
		key := strings.ToLower(strings.TrimSpace(varr[0]))
		switch {
		case key == "key" && (len(varr) == 1 || strings.EqualFold(varr[1], "true")):
			info.isKey = true
		case key == "policy" && len(varr) == 2:
			info.policy = strings.TrimSpace(varr[1])
		}
	}

	return info
}

func (d *EntityDescriptor) String() string {
	return fmt.Sprintf("%s -> %s:%s key=%s(%s) columns=%d", d.TypeID, d.Table, d.Family, d.Key.Name, d.KeyPolicy, len(d.Properties))
}
