package colstore

import (
	"reflect"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// MetadataRegistry holds the compiled descriptor of every mapped entity
// type. Registration happens at startup; lookups afterwards only take the
// read lock.
type MetadataRegistry struct {
	opt *mappingOption

	mu          sync.RWMutex
	descriptors map[string]*EntityDescriptor
}

func NewMetadataRegistry(options ...MappingOption) *MetadataRegistry {
	opt := defaultMappingOption()
	for _, op := range options {
		op(opt)
	}

	return &MetadataRegistry{
		opt:         opt,
		descriptors: make(map[string]*EntityDescriptor),
	}
}

// Register stores desc under typeID. A second call for the same typeID
// replaces the first.
func (r *MetadataRegistry) Register(typeID string, desc *EntityDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.descriptors[typeID] = desc
}

// Lookup returns the descriptor registered under typeID.
func (r *MetadataRegistry) Lookup(typeID string) (*EntityDescriptor, error) {
	r.mu.RLock()
	desc, ok := r.descriptors[typeID]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotMappedError{TypeID: typeID}
	}

	return desc, nil
}

func (r *MetadataRegistry) LookupType(t reflect.Type) (*EntityDescriptor, error) {
	return r.Lookup(TypeID(t))
}

// LookupEntity returns the descriptor for the dynamic type of entity.
func (r *MetadataRegistry) LookupEntity(entity any) (*EntityDescriptor, error) {
	return r.LookupType(reflect.TypeOf(entity))
}

// RegisterEntity compiles the type of sample, a struct or pointer to struct,
// and registers it. Nothing is registered when compilation fails.
func (r *MetadataRegistry) RegisterEntity(sample any) (*EntityDescriptor, error) {
	desc, err := Compile(reflect.TypeOf(sample), r.options()...)
	if err != nil {
		return nil, err
	}

	r.Register(desc.TypeID, desc)
	return desc, nil
}

// RegisterEntities registers every sample it can and reports all the
// failures at once.
func (r *MetadataRegistry) RegisterEntities(samples ...any) error {
	var result *multierror.Error
	for _, sample := range samples {
		if _, err := r.RegisterEntity(sample); err != nil {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Descriptors returns the registered descriptors sorted by type id.
func (r *MetadataRegistry) Descriptors() []*EntityDescriptor {
	r.mu.RLock()
	descs := make([]*EntityDescriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		descs = append(descs, d)
	}
	r.mu.RUnlock()

	sort.Slice(descs, func(i, j int) bool {
		return descs[i].TypeID < descs[j].TypeID
	})
	return descs
}

func (r *MetadataRegistry) options() []MappingOption {
	opt := *r.opt
	return []MappingOption{func(o *mappingOption) { *o = opt }}
}

// RegisterOf compiles and registers T.
func RegisterOf[T any](r *MetadataRegistry) (*EntityDescriptor, error) {
	var zero T
	return r.RegisterEntity(&zero)
}

// DescriptorOf looks T up in r.
func DescriptorOf[T any](r *MetadataRegistry) (*EntityDescriptor, error) {
	return r.LookupType(reflect.TypeOf((*T)(nil)).Elem())
}
