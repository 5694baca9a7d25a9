package colstore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
)

type repoFixture struct {
	store    CellStore
	registry *MetadataRegistry
	keys     *KeyGeneratorRegistry
	scope    tally.TestScope
}

func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	sf, err := NewSnowflake(0, 1)
	require.NoError(t, err)

	return &repoFixture{
		store:    NewMemoryStore(),
		registry: NewMetadataRegistry(),
		keys:     NewKeyGeneratorRegistry(sf),
		scope:    tally.NewTestScope("", nil),
	}
}

func personRepository(t *testing.T, f *repoFixture, options ...RepositoryOption) Repository[int64, Person] {
	t.Helper()
	options = append([]RepositoryOption{WithCreateTable(), WithScope(f.scope)}, options...)
	repo, err := CreateRepository[int64, Person](context.Background(), f.store, f.registry, f.keys, options...)
	require.NoError(t, err)
	return repo
}

// counter sums the counters called name with the given type tag.
func counter(scope tally.TestScope, name, typ string) int64 {
	var total int64
	for _, c := range scope.Snapshot().Counters() {
		if c.Name() == name && c.Tags()["type"] == typ {
			total += c.Value()
		}
	}
	return total
}

func TestRepository_saveAndFind(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	p := &Person{Name: "Alice", Age: 30}
	id, err := repo.Save(ctx, p)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, p.ID)

	got, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, *p, *got)

	assert.Equal(t, int64(1), counter(f.scope, "entity.save", "success"))
	assert.Equal(t, int64(1), counter(f.scope, "entity.get", "success"))
	assert.Equal(t, int64(1), counter(f.scope, "row_key.assign", "success"))
}

func TestRepository_saveKeepsExistingKey(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	id, err := repo.Save(ctx, &Person{ID: 99, Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)

	_, err = repo.Save(ctx, &Person{ID: 99, Name: "Robert"})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.Name)
}

func TestRepository_saveWithTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	p := &Person{ID: 5, Name: "Eve"}
	_, err := repo.Save(ctx, p, WithTimestamp(1234))
	require.NoError(t, err)

	row, err := repo.Descriptor().RowKey(p)
	require.NoError(t, err)

	cells, err := f.store.Get(ctx, "person", row)
	require.NoError(t, err)
	require.NotEmpty(t, cells)
	for _, c := range cells {
		assert.Equal(t, int64(1234), c.Timestamp)
	}
}

func TestRepository_findMissing(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	_, err := repo.FindByID(ctx, 404)
	assert.True(t, errors.Is(err, ErrRowNotFound))
	assert.Equal(t, int64(1), counter(f.scope, "entity.get", "not_found"))

	_, err = repo.FindByID(ctx, 0)
	assert.True(t, errors.Is(err, ErrEmptyRowKey))
}

func TestRepository_saveAllAndFindAll(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	people := []*Person{{ID: 3, Name: "C"}, {ID: 1, Name: "A"}, {Name: "generated"}}
	ids, err := repo.SaveAll(ctx, people)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, int64(3), ids[0])
	assert.Equal(t, int64(1), ids[1])
	assert.Equal(t, people[2].ID, ids[2])

	found, err := repo.FindAllByID(ctx, []int64{ids[2], 404, 1})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "generated", found[0].Name)
	assert.Equal(t, "A", found[1].Name)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"A", "C", "generated"}, []string{all[0].Name, all[1].Name, all[2].Name})

	limited, err := repo.FindAll(ctx, WithReadOptions(WithLimit(2)))
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestRepository_saveAllIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	repo, err := CreateRepository[string, inputDoc](ctx, f.store, f.registry, f.keys, WithCreateTable(), WithScope(f.scope))
	require.NoError(t, err)

	_, err = repo.SaveAll(ctx, []*inputDoc{{ID: "a"}, {}})
	assert.True(t, errors.Is(err, ErrEmptyRowKey))

	exists, err := repo.ExistsByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, int64(2), counter(f.scope, "entity.save", "fail"))
}

func TestRepository_existsAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)
	repo := personRepository(t, f)

	id, err := repo.Save(ctx, &Person{Name: "Dan"})
	require.NoError(t, err)

	exists, err := repo.ExistsByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.DeleteByID(ctx, id))

	exists, err = repo.ExistsByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = repo.FindByID(ctx, id)
	assert.True(t, errors.Is(err, ErrRowNotFound))
	assert.Equal(t, int64(1), counter(f.scope, "entity.delete", "success"))
}

func TestRepository_inputKeyRequired(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	repo, err := CreateRepository[string, inputDoc](ctx, f.store, f.registry, f.keys, WithCreateTable())
	require.NoError(t, err)

	_, err = repo.Save(ctx, &inputDoc{})
	assert.True(t, errors.Is(err, ErrEmptyRowKey))

	id, err := repo.Save(ctx, &inputDoc{ID: "doc-1"})
	require.NoError(t, err)
	assert.Equal(t, "doc-1", id)
}

type inputCounter struct {
	ID    int64 `col:"id,key policy=input"`
	Total int64
}

func TestRepository_zeroNumericKeyIsAbsent(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	repo, err := CreateRepository[int64, inputCounter](ctx, f.store, f.registry, f.keys, WithCreateTable())
	require.NoError(t, err)

	_, err = repo.Save(ctx, &inputCounter{ID: 0, Total: 5})
	assert.True(t, errors.Is(err, ErrEmptyRowKey))

	_, err = repo.ExistsByID(ctx, 0)
	assert.True(t, errors.Is(err, ErrEmptyRowKey))

	id, err := repo.Save(ctx, &inputCounter{ID: -1, Total: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), id)
}

func TestRepository_options(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	logger, hook := logtest.NewNullLogger()
	repo := personRepository(t, f,
		WithName("people"),
		WithLogger(logger),
		InitWith([]Person{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}),
	)

	assert.Equal(t, "people", repo.Descriptor().Table)
	registered, err := DescriptorOf[Person](f.registry)
	require.NoError(t, err)
	assert.Equal(t, "person", registered.Table)

	exists, err := f.store.TableExists(ctx, "people")
	require.NoError(t, err)
	assert.True(t, exists)

	entry := hook.Entries[0]
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "table created", entry.Message)
	assert.Equal(t, "people", entry.Data["table"])

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = CreateRepository[int64, Person](ctx, f.store, f.registry, f.keys, WithName("people"), InitWith("nope"))
	assert.Error(t, err)
}

func TestRepository_missingTable(t *testing.T) {
	ctx := context.Background()
	f := newRepoFixture(t)

	repo, err := CreateRepository[int64, Person](ctx, f.store, f.registry, f.keys)
	require.NoError(t, err)

	_, err = repo.Save(ctx, &Person{Name: "x"})
	assert.True(t, errors.Is(err, ErrTableNotFound))
}
