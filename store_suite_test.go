package colstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// CellStoreTestSuite runs the same behaviour checks against every CellStore
// backend.
type CellStoreTestSuite struct {
	suite.Suite

	newStore func() (CellStore, error)
	store    CellStore
	ctx      context.Context
	table    string
}

func (s *CellStoreTestSuite) SetupTest() {
	store, err := s.newStore()
	s.Require().NoError(err)

	s.store = store
	s.ctx = context.Background()
	s.table = "cells"
	s.Require().NoError(s.store.CreateTable(s.ctx, s.table))
}

func (s *CellStoreTestSuite) TearDownTest() {
	if exists, err := s.store.TableExists(s.ctx, s.table); err == nil && exists {
		s.NoError(s.store.DropTable(s.ctx, s.table))
	}
	s.NoError(s.store.Close())
}

func (s *CellStoreTestSuite) put(row string, ts int64, columns ...Column) {
	s.Require().NoError(s.store.Put(s.ctx, s.table, Mutation{Row: []byte(row), Columns: columns, Timestamp: ts}))
}

func col(family, qualifier, value string) Column {
	return Column{Family: family, Qualifier: qualifier, Value: []byte(value)}
}

func rowKeys(rows []Row) []string {
	keys := make([]string, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, string(r.Key))
	}
	return keys
}

func (s *CellStoreTestSuite) TestTables() {
	exists, err := s.store.TableExists(s.ctx, s.table)
	s.Require().NoError(err)
	s.True(exists)

	err = s.store.CreateTable(s.ctx, s.table)
	s.True(errors.Is(err, ErrTableExists), "got %v", err)

	s.Require().NoError(s.store.CreateTable(s.ctx, "other"))
	tables, err := s.store.ListTables(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{s.table, "other"}, tables)

	s.Require().NoError(s.store.DropTable(s.ctx, "other"))
	exists, err = s.store.TableExists(s.ctx, "other")
	s.Require().NoError(err)
	s.False(exists)

	err = s.store.DropTable(s.ctx, "other")
	s.True(errors.Is(err, ErrTableNotFound), "got %v", err)

	s.NoError(s.store.Flush(s.ctx))
}

func (s *CellStoreTestSuite) TestMissingTable() {
	_, err := s.store.Get(s.ctx, "missing", []byte("r"))
	s.True(errors.Is(err, ErrTableNotFound), "get: %v", err)

	_, err = s.store.Scan(s.ctx, "missing")
	s.True(errors.Is(err, ErrTableNotFound), "scan: %v", err)

	err = s.store.Put(s.ctx, "missing", Mutation{Row: []byte("r"), Columns: []Column{col("f", "q", "v")}})
	s.True(errors.Is(err, ErrTableNotFound), "put: %v", err)
}

func (s *CellStoreTestSuite) TestPutGet() {
	s.put("row1", 100, col("info", "name", "Alice"), col("info", "age", "30"), col("meta", "src", "import"))

	cells, err := s.store.Get(s.ctx, s.table, []byte("row1"))
	s.Require().NoError(err)
	s.Require().Len(cells, 3)

	s.Equal("info", cells[0].Family)
	s.Equal("age", cells[0].Qualifier)
	s.Equal("info", cells[1].Family)
	s.Equal("name", cells[1].Qualifier)
	s.Equal([]byte("Alice"), cells[1].Value)
	s.Equal(int64(100), cells[1].Timestamp)
	s.Equal([]byte("row1"), cells[1].Row)
	s.Equal("meta", cells[2].Family)

	cells, err = s.store.Get(s.ctx, s.table, []byte("nope"))
	s.Require().NoError(err)
	s.Empty(cells)
}

func (s *CellStoreTestSuite) TestLastWriteWins() {
	s.put("row1", 100, col("info", "name", "Alice"))
	s.put("row1", 200, col("info", "name", "Alicia"))

	cells, err := s.store.Get(s.ctx, s.table, []byte("row1"))
	s.Require().NoError(err)
	s.Require().Len(cells, 1)
	s.Equal([]byte("Alicia"), cells[0].Value)
	s.Equal(int64(200), cells[0].Timestamp)
}

func (s *CellStoreTestSuite) TestReadFilters() {
	s.put("row1", 1, col("info", "name", "Alice"), col("info", "age", "30"), col("meta", "src", "import"))

	cells, err := s.store.Get(s.ctx, s.table, []byte("row1"), WithFamily("info"))
	s.Require().NoError(err)
	s.Len(cells, 2)

	cells, err = s.store.Get(s.ctx, s.table, []byte("row1"), WithQualifier("info", "name"))
	s.Require().NoError(err)
	s.Require().Len(cells, 1)
	s.Equal("name", cells[0].Qualifier)
}

func (s *CellStoreTestSuite) TestScan() {
	for _, row := range []string{"c", "a", "d", "b"} {
		s.put(row, 1, col("info", "v", row), col("meta", "m", row))
	}

	rows, err := s.store.Scan(s.ctx, s.table)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c", "d"}, rowKeys(rows))
	s.Len(rows[0].Cells, 2)

	rows, err = s.store.Scan(s.ctx, s.table, WithStartRow([]byte("b")), WithStopRow([]byte("d")))
	s.Require().NoError(err)
	s.Equal([]string{"b", "c"}, rowKeys(rows))

	rows, err = s.store.Scan(s.ctx, s.table, WithLimit(3))
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, rowKeys(rows))

	rows, err = s.store.Scan(s.ctx, s.table, WithFamily("meta"), WithLimit(2))
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, rowKeys(rows))
	for _, r := range rows {
		s.Require().Len(r.Cells, 1)
		s.Equal("meta", r.Cells[0].Family)
	}
}

func (s *CellStoreTestSuite) TestScanOrdersBinaryKeys() {
	keys := [][]byte{{0x01, 0x00}, {0x01}, {0x00, 0xff}, {0xff}, {0x01, 0x00, 0x00}}
	for _, k := range keys {
		s.Require().NoError(s.store.Put(s.ctx, s.table, Mutation{Row: k, Columns: []Column{col("info", "v", "x")}, Timestamp: 1}))
	}

	rows, err := s.store.Scan(s.ctx, s.table)
	s.Require().NoError(err)
	s.Require().Len(rows, 5)
	s.Equal([]byte{0x00, 0xff}, rows[0].Key)
	s.Equal([]byte{0x01}, rows[1].Key)
	s.Equal([]byte{0x01, 0x00}, rows[2].Key)
	s.Equal([]byte{0x01, 0x00, 0x00}, rows[3].Key)
	s.Equal([]byte{0xff}, rows[4].Key)

	cells, err := s.store.Get(s.ctx, s.table, []byte{0x01})
	s.Require().NoError(err)
	s.Require().Len(cells, 1)
	s.Equal([]byte{0x01}, cells[0].Row)
}

func (s *CellStoreTestSuite) TestDelete() {
	s.put("row1", 1, col("info", "name", "Alice"), col("info", "age", "30"), col("meta", "src", "import"))
	s.put("row2", 1, col("info", "name", "Bob"))

	s.Require().NoError(s.store.Delete(s.ctx, s.table, []byte("row1"), WithQualifier("info", "age")))
	cells, err := s.store.Get(s.ctx, s.table, []byte("row1"))
	s.Require().NoError(err)
	s.Len(cells, 2)

	s.Require().NoError(s.store.Delete(s.ctx, s.table, []byte("row1"), WithFamily("meta")))
	cells, err = s.store.Get(s.ctx, s.table, []byte("row1"))
	s.Require().NoError(err)
	s.Require().Len(cells, 1)
	s.Equal("name", cells[0].Qualifier)

	s.Require().NoError(s.store.Delete(s.ctx, s.table, []byte("row1")))
	exists, err := s.store.Exists(s.ctx, s.table, []byte("row1"))
	s.Require().NoError(err)
	s.False(exists)

	exists, err = s.store.Exists(s.ctx, s.table, []byte("row2"))
	s.Require().NoError(err)
	s.True(exists)

	s.NoError(s.store.Delete(s.ctx, s.table, []byte("never-written")))
}

func (s *CellStoreTestSuite) TestInvalidMutations() {
	err := s.store.Put(s.ctx, s.table, Mutation{Columns: []Column{col("info", "name", "x")}})
	s.True(errors.Is(err, ErrEmptyRowKey), "got %v", err)

	err = s.store.Put(s.ctx, s.table,
		Mutation{Row: []byte("ok"), Columns: []Column{col("info", "name", "x")}},
		Mutation{Row: []byte("bad"), Columns: []Column{col("", "name", "x")}},
	)
	s.Error(err)

	exists, err := s.store.Exists(s.ctx, s.table, []byte("ok"))
	s.Require().NoError(err)
	s.False(exists)
}

func (s *CellStoreTestSuite) TestDropTableRemovesCells() {
	s.put("row1", 1, col("info", "name", "Alice"))
	s.Require().NoError(s.store.DropTable(s.ctx, s.table))
	s.Require().NoError(s.store.CreateTable(s.ctx, s.table))

	rows, err := s.store.Scan(s.ctx, s.table)
	s.Require().NoError(err)
	s.Empty(rows)
}
