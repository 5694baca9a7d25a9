package colstore

import (
	"context"
	"encoding/hex"
	"reflect"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Repository stores entities of type T, keyed by K, in one table of a
// CellStore.
type Repository[K comparable, T any] interface {
	// Save assigns a key to entity when it has none and writes it. The
	// entity is updated in place with the assigned key.
	Save(ctx context.Context, entity *T, options ...QueryOption) (K, error)
	SaveAll(ctx context.Context, entities []*T, options ...QueryOption) ([]K, error)
	FindByID(ctx context.Context, id K) (*T, error)
	// FindAllByID returns the entities found, in the order of ids. Missing
	// ids are skipped.
	FindAllByID(ctx context.Context, ids []K) ([]*T, error)
	FindAll(ctx context.Context, options ...QueryOption) ([]*T, error)
	ExistsByID(ctx context.Context, id K) (bool, error)
	DeleteByID(ctx context.Context, id K) error
	Descriptor() *EntityDescriptor
}

type cellRepository[K comparable, T any] struct {
	store   CellStore
	mapper  *EntityMapper
	keys    *KeyGeneratorRegistry
	desc    *EntityDescriptor
	idType  reflect.Type
	opt     *option
	logger  log.FieldLogger
	metrics Metrics
}

// CreateRepository looks up, or registers, the descriptor of T and returns a
// repository over store.
func CreateRepository[K comparable, T any](
	ctx context.Context,
	store CellStore,
	registry *MetadataRegistry,
	keys *KeyGeneratorRegistry,
	options ...RepositoryOption,
) (Repository[K, T], error) {
	opt := defaultOption()
	for _, op := range options {
		op(opt)
	}

	desc, err := DescriptorOf[T](registry)
	if err != nil {
		if desc, err = RegisterOf[T](registry); err != nil {
			return nil, err
		}
	}

	if opt.name != "" && opt.name != desc.Table {
		renamed := *desc
		renamed.Table = opt.name
		desc = &renamed
	}

	idType := desc.Key.Type
	for idType.Kind() == reflect.Ptr {
		idType = idType.Elem()
	}

	repo := &cellRepository[K, T]{
		store:   store,
		mapper:  NewEntityMapper(registry),
		keys:    keys,
		desc:    desc,
		idType:  idType,
		opt:     opt,
		logger:  opt.logger.WithFields(log.Fields{"table": desc.Table, "entity": desc.TypeID}),
		metrics: NewMetrics(opt.scope.Tagged(map[string]string{"table": desc.Table})),
	}

	if opt.createTable {
		if err := repo.ensureTable(ctx); err != nil {
			return nil, err
		}
	}

	if opt.initValues != nil {
		if err := repo.init(ctx, opt.initValues); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (r *cellRepository[K, T]) ensureTable(ctx context.Context) error {
	exists, err := r.store.TableExists(ctx, r.desc.Table)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	if err := r.store.CreateTable(ctx, r.desc.Table); err != nil && !errors.Is(err, ErrTableExists) {
		return err
	}

	r.logger.Info("table created")
	return nil
}

func (r *cellRepository[K, T]) init(ctx context.Context, values interface{}) error {
	switch v := values.(type) {
	case []*T:
		_, err := r.SaveAll(ctx, v)
		return err
	case []T:
		entities := make([]*T, len(v))
		for i := range v {
			entities[i] = &v[i]
		}
		_, err := r.SaveAll(ctx, entities)
		return err
	}

	return errors.Errorf("values to init should be []%s or []*%s, got %T", r.desc.Type.Name(), r.desc.Type.Name(), values)
}

func (r *cellRepository[K, T]) Descriptor() *EntityDescriptor {
	return r.desc
}

// mutation assigns the key of entity and converts it.
func (r *cellRepository[K, T]) mutation(entity *T, opt *queryOption) (Mutation, K, error) {
	var zeroKey K

	if err := r.keys.Assign(r.desc, entity); err != nil {
		r.metrics.KeyAssignFail.Inc(1)
		return Mutation{}, zeroKey, err
	}
	r.metrics.KeyAssign.Inc(1)

	m, err := r.mapper.ToMutation(entity, r.desc)
	if err != nil {
		return Mutation{}, zeroKey, err
	}
	m.Timestamp = opt.timestamp

	id, err := r.keyOf(entity)
	if err != nil {
		return Mutation{}, zeroKey, err
	}

	return m, id, nil
}

func (r *cellRepository[K, T]) Save(ctx context.Context, entity *T, options ...QueryOption) (K, error) {
	opt := newQueryOption(options)

	var zeroKey K
	m, id, err := r.mutation(entity, opt)
	if err != nil {
		r.metrics.EntitySaveFail.Inc(1)
		return zeroKey, err
	}

	if err := r.store.Put(ctx, r.desc.Table, m); err != nil {
		r.metrics.EntitySaveFail.Inc(1)
		r.logger.WithError(err).WithField("row", hex.EncodeToString(m.Row)).Warn("failed to save entity")
		return zeroKey, err
	}

	r.metrics.EntitySave.Inc(1)
	r.logger.WithField("row", hex.EncodeToString(m.Row)).Debug("entity saved")
	return id, nil
}

// SaveAll writes every entity in one Put. Nothing is written when the key
// of any entity cannot be assigned or encoded.
func (r *cellRepository[K, T]) SaveAll(ctx context.Context, entities []*T, options ...QueryOption) ([]K, error) {
	opt := newQueryOption(options)

	mutations := make([]Mutation, 0, len(entities))
	ids := make([]K, 0, len(entities))
	for i, entity := range entities {
		m, id, err := r.mutation(entity, opt)
		if err != nil {
			r.metrics.EntitySaveFail.Inc(int64(len(entities)))
			return nil, errors.Wrapf(err, "entity %d", i)
		}

		mutations = append(mutations, m)
		ids = append(ids, id)
	}

	if len(mutations) == 0 {
		return ids, nil
	}

	if err := r.store.Put(ctx, r.desc.Table, mutations...); err != nil {
		r.metrics.EntitySaveFail.Inc(int64(len(entities)))
		return nil, err
	}

	r.metrics.EntitySave.Inc(int64(len(entities)))
	r.logger.WithField("count", len(entities)).Debug("entities saved")
	return ids, nil
}

func (r *cellRepository[K, T]) FindByID(ctx context.Context, id K) (*T, error) {
	row, err := r.rowKey(id)
	if err != nil {
		return nil, err
	}

	cells, err := r.store.Get(ctx, r.desc.Table, row, WithFamily(r.desc.Family))
	if err != nil {
		r.metrics.EntityGetFail.Inc(1)
		return nil, err
	}

	entity, err := FromRowAs[T](r.mapper, cells, r.desc)
	if errors.Is(err, ErrRowNotFound) {
		r.metrics.EntityNotFound.Inc(1)
		return nil, errors.Wrapf(err, "%s %v", r.desc.Table, id)
	}
	if err != nil {
		r.metrics.EntityGetFail.Inc(1)
		return nil, err
	}

	r.metrics.EntityGet.Inc(1)
	return entity, nil
}

func (r *cellRepository[K, T]) FindAllByID(ctx context.Context, ids []K) ([]*T, error) {
	found := make([]*T, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opt.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			entity, err := r.FindByID(gctx, id)
			if errors.Is(err, ErrRowNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			found[i] = entity
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	entities := make([]*T, 0, len(ids))
	for _, e := range found {
		if e != nil {
			entities = append(entities, e)
		}
	}

	return entities, nil
}

func (r *cellRepository[K, T]) FindAll(ctx context.Context, options ...QueryOption) ([]*T, error) {
	opt := newQueryOption(options)
	readOpts := append([]ReadOption{WithFamily(r.desc.Family)}, opt.readOpts...)

	rows, err := r.store.Scan(ctx, r.desc.Table, readOpts...)
	if err != nil {
		r.metrics.EntityScanFail.Inc(1)
		return nil, err
	}

	entities := make([]*T, 0, len(rows))
	for _, row := range rows {
		entity, err := FromRowAs[T](r.mapper, row.Cells, r.desc)
		if err != nil {
			r.metrics.EntityScanFail.Inc(1)
			return nil, errors.Wrapf(err, "row %x", row.Key)
		}
		entities = append(entities, entity)
	}

	r.metrics.EntityScan.Inc(1)
	return entities, nil
}

func (r *cellRepository[K, T]) ExistsByID(ctx context.Context, id K) (bool, error) {
	row, err := r.rowKey(id)
	if err != nil {
		return false, err
	}

	exists, err := r.store.Exists(ctx, r.desc.Table, row)
	if err != nil {
		r.metrics.EntityExistsFail.Inc(1)
		return false, err
	}

	r.metrics.EntityExists.Inc(1)
	return exists, nil
}

func (r *cellRepository[K, T]) DeleteByID(ctx context.Context, id K) error {
	row, err := r.rowKey(id)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, r.desc.Table, row); err != nil {
		r.metrics.EntityDeleteFail.Inc(1)
		return err
	}

	r.metrics.EntityDelete.Inc(1)
	r.logger.WithField("row", hex.EncodeToString(row)).Debug("entity deleted")
	return nil
}

// rowKey encodes id with the layout of the key property.
func (r *cellRepository[K, T]) rowKey(id K) ([]byte, error) {
	if isEmptyValue(reflect.ValueOf(id)) {
		return nil, errors.Wrapf(ErrEmptyRowKey, "%s", r.desc.TypeID)
	}

	return Encode(id, r.idType)
}

func (r *cellRepository[K, T]) keyOf(entity *T) (K, error) {
	var zeroKey K

	v, err := r.desc.Key.Get(reflect.ValueOf(entity).Elem())
	if err != nil {
		return zeroKey, err
	}

	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return zeroKey, errors.Wrapf(ErrEmptyRowKey, "%s.%s", r.desc.TypeID, r.desc.Key.Field)
		}
		v = v.Elem()
	}

	if id, ok := v.Interface().(K); ok {
		return id, nil
	}

	kt := reflect.TypeOf(zeroKey)
	if kt != nil && v.Kind() == kt.Kind() && v.Type().ConvertibleTo(kt) {
		return v.Convert(kt).Interface().(K), nil
	}

	return zeroKey, errors.Errorf("key %s.%s of type %s cannot be returned as %T", r.desc.TypeID, r.desc.Key.Field, v.Type(), zeroKey)
}
