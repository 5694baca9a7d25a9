package colstore

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Ensure pebbleStore implements CellStore.
var _ CellStore = (*pebbleStore)(nil)

const (
	pebbleMetaPrefix byte = 0x01
	pebbleDataPrefix byte = 0x02
)

// pebbleStore keeps cells in a Pebble database. Every cell is one key made
// of the escaped table, row, family and qualifier, so keys sort by table,
// then row key bytes, then family and qualifier. Values carry an 8 byte
// timestamp prefix.
type pebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore opens the Pebble database in dirname. Pass options with
// vfs.NewMem() as FS to keep it in memory.
func NewPebbleStore(dirname string, opts *pebble.Options) (CellStore, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	if opts.LoggerAndTracer == nil {
		opts.LoggerAndTracer = pebbleLogger{log.WithField("component", "pebble")}
	}

	db, err := pebble.Open(dirname, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pebble database")
	}

	log.WithField("dir", dirname).Debug("pebble cell store opened")
	return &pebbleStore{db: db}, nil
}

// pebbleLogger routes pebble's informational logs to logrus at debug level.
type pebbleLogger struct {
	log.FieldLogger
}

func (l pebbleLogger) Infof(format string, args ...interface{}) {
	l.FieldLogger.Debugf(format, args...)
}

func (l pebbleLogger) Eventf(_ context.Context, _ string, _ ...interface{}) {}

func (l pebbleLogger) IsTracingEnabled(_ context.Context) bool {
	return false
}

// appendEscaped appends b with 0x00 escaped as 0x00 0xff and terminated by
// 0x00 0x01, which keeps byte order across components.
func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			dst = append(dst, 0x00, 0xff)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00, 0x01)
}

func readEscaped(b []byte) (component, rest []byte, err error) {
	for i := 0; i < len(b); i++ {
		if b[i] != 0x00 {
			component = append(component, b[i])
			continue
		}

		if i+1 >= len(b) {
			break
		}

		switch b[i+1] {
		case 0x01:
			return component, b[i+2:], nil
		case 0xff:
			component = append(component, 0x00)
			i++
		default:
			return nil, nil, errors.Errorf("invalid escape 0x%02x in pebble key", b[i+1])
		}
	}

	return nil, nil, errors.New("unterminated pebble key component")
}

func pebbleMetaKey(table string) []byte {
	return appendEscaped([]byte{pebbleMetaPrefix}, []byte(table))
}

func pebbleKey(table string, parts ...[]byte) []byte {
	key := appendEscaped([]byte{pebbleDataPrefix}, []byte(table))
	for _, p := range parts {
		key = appendEscaped(key, p)
	}
	return key
}

// prefixEnd returns the smallest key greater than every key starting with
// prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *pebbleStore) checkTable(table string) error {
	_, closer, err := s.db.Get(pebbleMetaKey(table))
	if errors.Is(err, pebble.ErrNotFound) {
		return errors.Wrap(ErrTableNotFound, table)
	}
	if err != nil {
		return errors.Wrap(err, "failed to read table metadata")
	}
	return closer.Close()
}

func (s *pebbleStore) CreateTable(_ context.Context, table string) error {
	if err := s.checkTable(table); err == nil {
		return errors.Wrap(ErrTableExists, table)
	} else if !errors.Is(err, ErrTableNotFound) {
		return err
	}

	return s.db.Set(pebbleMetaKey(table), nil, pebble.Sync)
}

func (s *pebbleStore) DropTable(_ context.Context, table string) error {
	if err := s.checkTable(table); err != nil {
		return err
	}

	prefix := pebbleKey(table)
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange(prefix, prefixEnd(prefix), nil); err != nil {
		return errors.Wrap(err, "failed to delete table cells")
	}
	if err := batch.Delete(pebbleMetaKey(table), nil); err != nil {
		return errors.Wrap(err, "failed to delete table metadata")
	}

	return batch.Commit(pebble.Sync)
}

func (s *pebbleStore) TableExists(_ context.Context, table string) (bool, error) {
	err := s.checkTable(table)
	if errors.Is(err, ErrTableNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *pebbleStore) ListTables(_ context.Context) ([]string, error) {
	prefix := []byte{pebbleMetaPrefix}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pebble iterator")
	}
	defer iter.Close()

	var tables []string
	for iter.First(); iter.Valid(); iter.Next() {
		name, _, err := readEscaped(iter.Key()[1:])
		if err != nil {
			return nil, err
		}
		tables = append(tables, string(name))
	}

	return tables, iter.Error()
}

func (s *pebbleStore) Flush(_ context.Context) error {
	if err := s.db.Flush(); err != nil {
		return errors.Wrap(err, "failed to flush pebble database")
	}
	return nil
}

func (s *pebbleStore) Put(_ context.Context, table string, mutations ...Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}

	if err := s.checkTable(table); err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	for _, m := range mutations {
		ts := mutationTimestamp(m)
		for _, c := range m.Columns {
			value := make([]byte, 8, 8+len(c.Value))
			binary.BigEndian.PutUint64(value, uint64(ts))
			value = append(value, c.Value...)

			key := pebbleKey(table, m.Row, []byte(c.Family), []byte(c.Qualifier))
			if err := batch.Set(key, value, nil); err != nil {
				return errors.Wrap(err, "failed to set cell")
			}
		}
	}

	return batch.Commit(pebble.Sync)
}

// readPrefix narrows a row prefix to the family or qualifier of opt.
func readPrefix(table string, row []byte, opt *readOption) []byte {
	switch {
	case opt.Qualifier != "":
		return pebbleKey(table, row, []byte(opt.Family), []byte(opt.Qualifier))
	case opt.Family != "":
		return pebbleKey(table, row, []byte(opt.Family))
	}
	return pebbleKey(table, row)
}

func (s *pebbleStore) Get(_ context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	prefix := readPrefix(table, row, newReadOption(options))
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pebble iterator")
	}
	defer iter.Close()

	var cells []Cell
	for iter.First(); iter.Valid(); iter.Next() {
		c, err := decodePebbleCell(table, iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}

	return cells, iter.Error()
}

func decodePebbleCell(table string, key, value []byte) (Cell, error) {
	rest := key[len(pebbleKey(table)):]
	row, rest, err := readEscaped(rest)
	if err != nil {
		return Cell{}, err
	}
	family, rest, err := readEscaped(rest)
	if err != nil {
		return Cell{}, err
	}
	qualifier, _, err := readEscaped(rest)
	if err != nil {
		return Cell{}, err
	}

	if len(value) < 8 {
		return Cell{}, errors.Errorf("pebble cell value of %d bytes has no timestamp", len(value))
	}

	return Cell{
		Row:       row,
		Family:    string(family),
		Qualifier: string(qualifier),
		Value:     append([]byte(nil), value[8:]...),
		Timestamp: int64(binary.BigEndian.Uint64(value)),
	}, nil
}

func (s *pebbleStore) Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error) {
	if err := s.checkTable(table); err != nil {
		return nil, err
	}

	opt := newReadOption(options)
	prefix := pebbleKey(table)
	iterOpts := &pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)}
	if opt.StartRow != nil {
		iterOpts.LowerBound = pebbleKey(table, opt.StartRow)
	}

	iter, err := s.db.NewIter(iterOpts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pebble iterator")
	}
	defer iter.Close()

	var rows []Row
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "stopped scan via context")
		}

		c, err := decodePebbleCell(table, iter.Key(), iter.Value())
		if err != nil {
			return nil, err
		}

		if !opt.inRange(c.Row) {
			break
		}
		if !opt.matches(c.Family, c.Qualifier) {
			continue
		}

		if n := len(rows); n > 0 && bytes.Equal(rows[n-1].Key, c.Row) {
			rows[n-1].Cells = append(rows[n-1].Cells, c)
			continue
		}

		if opt.Limit > 0 && len(rows) >= opt.Limit {
			break
		}
		rows = append(rows, Row{Key: c.Row, Cells: []Cell{c}})
	}

	return rows, iter.Error()
}

func (s *pebbleStore) Delete(_ context.Context, table string, row []byte, options ...ReadOption) error {
	if err := s.checkTable(table); err != nil {
		return err
	}

	prefix := readPrefix(table, row, newReadOption(options))
	return s.db.DeleteRange(prefix, prefixEnd(prefix), pebble.Sync)
}

func (s *pebbleStore) Exists(ctx context.Context, table string, row []byte) (bool, error) {
	if err := s.checkTable(table); err != nil {
		return false, err
	}

	prefix := pebbleKey(table, row)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return false, errors.Wrap(err, "failed to create pebble iterator")
	}
	defer iter.Close()

	return iter.First(), iter.Error()
}

func (s *pebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "failed to close pebble database")
	}
	return nil
}
