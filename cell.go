package colstore

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Cell is one stored value: row, family, qualifier and timestamp.
type Cell struct {
	Row       []byte
	Family    string
	Qualifier string
	Value     []byte
	// Timestamp in milliseconds since the unix epoch.
	Timestamp int64
}

// Column is one value of a Mutation.
type Column struct {
	Family    string
	Qualifier string
	Value     []byte
}

// Mutation writes Columns into Row. A zero Timestamp means the time of the
// write.
type Mutation struct {
	Row       []byte
	Columns   []Column
	Timestamp int64
}

// Row groups the cells of one row key as returned by Scan.
type Row struct {
	Key   []byte
	Cells []Cell
}

// Admin covers the table management operations of a store.
type Admin interface {
	CreateTable(ctx context.Context, table string) error
	DropTable(ctx context.Context, table string) error
	TableExists(ctx context.Context, table string) (bool, error)
	ListTables(ctx context.Context) ([]string, error)
	Flush(ctx context.Context) error
}

// CellStore is the wide-column client the mapping layer writes to and reads
// from. Reads of a row that does not exist return no cells and no error.
type CellStore interface {
	Admin
	Put(ctx context.Context, table string, mutations ...Mutation) error
	Get(ctx context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error)
	Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error)
	Delete(ctx context.Context, table string, row []byte, options ...ReadOption) error
	Exists(ctx context.Context, table string, row []byte) (bool, error)
	Close() error
}

type ReadOption func(o *readOption)

type readOption struct {
	Family    string
	Qualifier string
	StartRow  []byte
	StopRow   []byte
	Limit     int
}

// WithFamily restricts a read or delete to one column family.
func WithFamily(family string) ReadOption {
	return func(o *readOption) {
		o.Family = family
	}
}

// WithQualifier restricts a read or delete to one column.
func WithQualifier(family, qualifier string) ReadOption {
	return func(o *readOption) {
		o.Family = family
		o.Qualifier = qualifier
	}
}

// WithStartRow makes Scan begin at row, inclusive.
func WithStartRow(row []byte) ReadOption {
	return func(o *readOption) {
		o.StartRow = row
	}
}

// WithStopRow makes Scan end before row.
func WithStopRow(row []byte) ReadOption {
	return func(o *readOption) {
		o.StopRow = row
	}
}

// WithLimit caps the number of rows returned by Scan.
func WithLimit(limit int) ReadOption {
	return func(o *readOption) {
		o.Limit = limit
	}
}

func newReadOption(options []ReadOption) *readOption {
	opt := &readOption{}
	for _, op := range options {
		op(opt)
	}
	return opt
}

func (o *readOption) matches(family, qualifier string) bool {
	if o.Family != "" && o.Family != family {
		return false
	}
	return o.Qualifier == "" || o.Qualifier == qualifier
}

func (o *readOption) inRange(row []byte) bool {
	if o.StartRow != nil && bytes.Compare(row, o.StartRow) < 0 {
		return false
	}
	return o.StopRow == nil || bytes.Compare(row, o.StopRow) < 0
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Family != cells[j].Family {
			return cells[i].Family < cells[j].Family
		}
		return cells[i].Qualifier < cells[j].Qualifier
	})
}

func validateMutations(mutations []Mutation) error {
	for _, m := range mutations {
		if len(m.Row) == 0 {
			return ErrEmptyRowKey
		}
		for _, c := range m.Columns {
			if c.Family == "" || c.Qualifier == "" {
				return errors.Errorf("column of row %x needs a family and a qualifier", m.Row)
			}
		}
	}
	return nil
}

func mutationTimestamp(m Mutation) int64 {
	if m.Timestamp != 0 {
		return m.Timestamp
	}
	return time.Now().UnixMilli()
}
