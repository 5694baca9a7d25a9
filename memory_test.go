package colstore

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &CellStoreTestSuite{
		newStore: func() (CellStore, error) {
			return NewMemoryStore(), nil
		},
	})
}

func TestMemoryStore_closed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateTable(ctx, "t"))
	require.NoError(t, store.Close())

	_, err := store.Get(ctx, "t", []byte("r"))
	assert.True(t, errors.Is(err, ErrStoreClosed))

	err = store.CreateTable(ctx, "u")
	assert.True(t, errors.Is(err, ErrStoreClosed))
}

func TestMemoryStore_returnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.CreateTable(ctx, "t"))

	value := []byte("abc")
	require.NoError(t, store.Put(ctx, "t", Mutation{Row: []byte("r"), Columns: []Column{{Family: "f", Qualifier: "q", Value: value}}}))
	value[0] = 'x'

	cells, err := store.Get(ctx, "t", []byte("r"))
	require.NoError(t, err)
	require.Len(t, cells, 1)
	assert.Equal(t, []byte("abc"), cells[0].Value)

	cells[0].Value[0] = 'y'
	again, err := store.Get(ctx, "t", []byte("r"))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again[0].Value)
}
