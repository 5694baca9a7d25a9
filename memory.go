package colstore

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Ensure memoryStore implements CellStore.
var _ CellStore = (*memoryStore)(nil)

type memoryRow map[string]map[string]Cell

// memoryStore keeps one version of every cell in process memory; the last
// write wins.
type memoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]memoryRow
	closed bool
}

// NewMemoryStore returns an empty CellStore that lives in process memory.
func NewMemoryStore() CellStore {
	return &memoryStore{tables: make(map[string]map[string]memoryRow)}
}

func (s *memoryStore) table(name string) (map[string]memoryRow, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}

	t, ok := s.tables[name]
	if !ok {
		return nil, errors.Wrap(ErrTableNotFound, name)
	}
	return t, nil
}

func (s *memoryStore) CreateTable(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.tables[table]; ok {
		return errors.Wrap(ErrTableExists, table)
	}

	s.tables[table] = make(map[string]memoryRow)
	return nil
}

func (s *memoryStore) DropTable(_ context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.table(table); err != nil {
		return err
	}

	delete(s.tables, table)
	return nil
}

func (s *memoryStore) TableExists(_ context.Context, table string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false, ErrStoreClosed
	}

	_, ok := s.tables[table]
	return ok, nil
}

func (s *memoryStore) ListTables(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memoryStore) Flush(_ context.Context) error {
	return nil
}

func (s *memoryStore) Put(_ context.Context, table string, mutations ...Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}

	if err := validateMutations(mutations); err != nil {
		return err
	}

	for _, m := range mutations {
		if len(m.Columns) == 0 {
			continue
		}

		ts := mutationTimestamp(m)
		row, ok := t[string(m.Row)]
		if !ok {
			row = make(memoryRow)
			t[string(m.Row)] = row
		}

		for _, c := range m.Columns {
			fam, ok := row[c.Family]
			if !ok {
				fam = make(map[string]Cell)
				row[c.Family] = fam
			}

			fam[c.Qualifier] = Cell{
				Row:       append([]byte(nil), m.Row...),
				Family:    c.Family,
				Qualifier: c.Qualifier,
				Value:     append([]byte(nil), c.Value...),
				Timestamp: ts,
			}
		}
	}

	return nil
}

func (s *memoryStore) Get(_ context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	return s.rowCells(t[string(row)], newReadOption(options)), nil
}

func (s *memoryStore) rowCells(r memoryRow, opt *readOption) []Cell {
	var cells []Cell
	for family, fam := range r {
		for qualifier, c := range fam {
			if opt.matches(family, qualifier) {
				c.Value = append([]byte(nil), c.Value...)
				cells = append(cells, c)
			}
		}
	}

	sortCells(cells)
	return cells
}

func (s *memoryStore) Scan(_ context.Context, table string, options ...ReadOption) ([]Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return nil, err
	}

	opt := newReadOption(options)
	keys := make([]string, 0, len(t))
	for k := range t {
		if opt.inRange([]byte(k)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var rows []Row
	for _, k := range keys {
		cells := s.rowCells(t[k], opt)
		if len(cells) == 0 {
			continue
		}

		rows = append(rows, Row{Key: []byte(k), Cells: cells})
		if opt.Limit > 0 && len(rows) >= opt.Limit {
			break
		}
	}

	return rows, nil
}

func (s *memoryStore) Delete(_ context.Context, table string, row []byte, options ...ReadOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(table)
	if err != nil {
		return err
	}

	r, ok := t[string(row)]
	if !ok {
		return nil
	}

	opt := newReadOption(options)
	for family, fam := range r {
		for qualifier := range fam {
			if opt.matches(family, qualifier) {
				delete(fam, qualifier)
			}
		}
		if len(fam) == 0 {
			delete(r, family)
		}
	}

	if len(r) == 0 {
		delete(t, string(row))
	}

	return nil
}

func (s *memoryStore) Exists(_ context.Context, table string, row []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(table)
	if err != nil {
		return false, err
	}

	_, ok := t[string(row)]
	return ok, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
