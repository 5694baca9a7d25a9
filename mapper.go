package colstore

import (
	"reflect"

	"github.com/pkg/errors"
)

// EntityMapper converts entities to mutations and rows back to entities.
type EntityMapper struct {
	registry *MetadataRegistry
}

func NewEntityMapper(registry *MetadataRegistry) *EntityMapper {
	return &EntityMapper{registry: registry}
}

// Describe returns the registered descriptor of entity's type.
func (m *EntityMapper) Describe(entity any) (*EntityDescriptor, error) {
	return m.registry.LookupEntity(entity)
}

// ToMutation encodes every mapped field of entity into a column of
// desc.Family. The key must already be set: ToMutation never generates one.
// Nil pointers, slices and maps produce no column. When desc is nil it is
// looked up by the type of entity.
func (m *EntityMapper) ToMutation(entity any, desc *EntityDescriptor) (Mutation, error) {
	if desc == nil {
		var err error
		if desc, err = m.Describe(entity); err != nil {
			return Mutation{}, err
		}
	}

	rv, err := desc.entityValue(entity)
	if err != nil {
		return Mutation{}, err
	}

	row, err := desc.rowKey(rv)
	if err != nil {
		return Mutation{}, err
	}

	mutation := Mutation{Row: row, Columns: make([]Column, 0, len(desc.columns))}
	for _, p := range desc.columns {
		if p == desc.Key && !desc.WriteKeyColumn {
			continue
		}

		v, err := p.Get(rv)
		if err != nil {
			return Mutation{}, errors.Wrapf(err, "entity %s", desc.TypeID)
		}

		if isNilValue(v) {
			continue
		}

		b, err := EncodeValue(v)
		if err != nil {
			return Mutation{}, errors.Wrapf(err, "encode %s.%s", desc.TypeID, p.Field)
		}

		mutation.Columns = append(mutation.Columns, Column{
			Family:    desc.Family,
			Qualifier: p.Name,
			Value:     b,
		})
	}

	return mutation, nil
}

// FromRow builds a new *target from cells. It returns ErrRowNotFound when
// there are no cells at all. Cells of other families or with qualifiers the
// descriptor does not know are skipped; when a qualifier has several
// versions the newest wins. Any decode failure fails the whole row.
func (m *EntityMapper) FromRow(cells []Cell, desc *EntityDescriptor, target reflect.Type) (any, error) {
	if len(cells) == 0 {
		return nil, ErrRowNotFound
	}

	if desc == nil {
		if target == nil {
			return nil, errors.New("FromRow needs a descriptor or a target type")
		}

		var err error
		if desc, err = m.registry.LookupType(target); err != nil {
			return nil, err
		}
	}

	if target == nil {
		target = desc.Type
	}
	for target.Kind() == reflect.Ptr {
		target = target.Elem()
	}
	if target != desc.Type {
		return nil, errors.Errorf("descriptor of %s cannot build %s", desc.TypeID, target)
	}

	latest := make(map[string]Cell, len(cells))
	for _, c := range cells {
		if c.Family != desc.Family {
			continue
		}
		if prev, ok := latest[c.Qualifier]; ok && prev.Timestamp > c.Timestamp {
			continue
		}
		latest[c.Qualifier] = c
	}

	out := reflect.New(target)
	elem := out.Elem()
	for qualifier, c := range latest {
		p, ok := desc.Properties[qualifier]
		if !ok {
			continue
		}

		v, err := DecodeValue(c.Value, p.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s.%s", desc.TypeID, p.Field)
		}

		if err := p.Set(elem, v); err != nil {
			return nil, errors.Wrapf(err, "entity %s", desc.TypeID)
		}
	}

	if _, ok := latest[desc.Key.Name]; !ok && len(cells[0].Row) > 0 {
		v, err := DecodeValue(cells[0].Row, desc.Key.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "decode row key of %s", desc.TypeID)
		}

		if err := desc.Key.Set(elem, v); err != nil {
			return nil, errors.Wrapf(err, "entity %s", desc.TypeID)
		}
	}

	return out.Interface(), nil
}

// FromRowAs is FromRow returning a typed pointer.
func FromRowAs[T any](m *EntityMapper, cells []Cell, desc *EntityDescriptor) (*T, error) {
	v, err := m.FromRow(cells, desc, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return nil, err
	}

	return v.(*T), nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return v.IsNil()
	}
	return false
}
