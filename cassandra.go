package colstore

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Ensure cassandraStore implements CellStore.
var _ CellStore = (*cassandraStore)(nil)

var cqlTableName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,47}$`)

// cassandraStore keeps one CQL table per table with the row key as the
// partition key and (family, qualifier) as clustering columns.
type cassandraStore struct {
	session  *gocql.Session
	keyspace string
}

// NewCassandraStore uses session, bound to keyspace, for the cell tables.
func NewCassandraStore(session *gocql.Session, keyspace string) CellStore {
	return &cassandraStore{session: session, keyspace: keyspace}
}

func (c *cassandraStore) tableName(table string) (string, error) {
	if !cqlTableName.MatchString(table) {
		return "", errors.Errorf("invalid cassandra table name %q", table)
	}
	return fmt.Sprintf("%q.%q", c.keyspace, table), nil
}

func wrapCassandraError(err error, table string) error {
	if err == nil {
		return nil
	}

	var exists *gocql.RequestErrAlreadyExists
	if errors.As(err, &exists) {
		return errors.Wrap(ErrTableExists, table)
	}

	var reqErr gocql.RequestError
	if errors.As(err, &reqErr) {
		msg := strings.ToLower(reqErr.Message())
		if strings.Contains(msg, "unconfigured table") || strings.Contains(msg, "non existing table") {
			return errors.Wrap(ErrTableNotFound, table)
		}
	}

	return err
}

func (c *cassandraStore) CreateTable(ctx context.Context, table string) error {
	name, err := c.tableName(table)
	if err != nil {
		return err
	}

	qry := fmt.Sprintf(`CREATE TABLE %s (
		row_key   blob,
		family    text,
		qualifier text,
		ts        bigint,
		value     blob,
		PRIMARY KEY ((row_key), family, qualifier)
	)`, name)

	return wrapCassandraError(c.session.Query(qry).WithContext(ctx).Exec(), table)
}

func (c *cassandraStore) DropTable(ctx context.Context, table string) error {
	name, err := c.tableName(table)
	if err != nil {
		return err
	}

	return wrapCassandraError(c.session.Query("DROP TABLE "+name).WithContext(ctx).Exec(), table)
}

func (c *cassandraStore) TableExists(ctx context.Context, table string) (bool, error) {
	tables, err := c.ListTables(ctx)
	if err != nil {
		return false, err
	}

	for _, t := range tables {
		if t == table {
			return true, nil
		}
	}
	return false, nil
}

func (c *cassandraStore) ListTables(ctx context.Context) ([]string, error) {
	iter := c.session.Query(
		"SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?", c.keyspace,
	).WithContext(ctx).Iter()

	var (
		tables []string
		name   string
	)
	for iter.Scan(&name) {
		tables = append(tables, name)
	}

	if err := iter.Close(); err != nil {
		return nil, err
	}

	sort.Strings(tables)
	return tables, nil
}

// Flush is a no-op: memtable flushes are not reachable over CQL.
func (c *cassandraStore) Flush(_ context.Context) error {
	return nil
}

func (c *cassandraStore) Put(ctx context.Context, table string, mutations ...Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}

	name, err := c.tableName(table)
	if err != nil {
		return err
	}

	qry := fmt.Sprintf("INSERT INTO %s (row_key, family, qualifier, ts, value) VALUES (?, ?, ?, ?, ?)", name)
	for _, m := range mutations {
		if len(m.Columns) == 0 {
			continue
		}

		ts := mutationTimestamp(m)
		// All columns of a mutation share one partition.
		batch := c.session.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
		for _, col := range m.Columns {
			batch.Query(qry, m.Row, col.Family, col.Qualifier, ts, col.Value)
		}

		if err := c.session.ExecuteBatch(batch); err != nil {
			return wrapCassandraError(err, table)
		}
	}

	return nil
}

func (c *cassandraStore) Get(ctx context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	name, err := c.tableName(table)
	if err != nil {
		return nil, err
	}

	opt := newReadOption(options)
	qry := fmt.Sprintf("SELECT family, qualifier, ts, value FROM %s WHERE row_key = ?", name)
	args := []any{row}
	if opt.Family != "" {
		qry += " AND family = ?"
		args = append(args, opt.Family)
		if opt.Qualifier != "" {
			qry += " AND qualifier = ?"
			args = append(args, opt.Qualifier)
		}
	}

	iter := c.session.Query(qry, args...).WithContext(ctx).Iter()

	var (
		cells []Cell
		cell  Cell
	)
	for iter.Scan(&cell.Family, &cell.Qualifier, &cell.Timestamp, &cell.Value) {
		cell.Row = row
		cells = append(cells, cell)
		cell = Cell{}
	}

	if err := iter.Close(); err != nil {
		return nil, wrapCassandraError(err, table)
	}

	return cells, nil
}

// Scan reads the whole table: partitions come back in token order, so
// range, limit and ordering by row key are applied here.
func (c *cassandraStore) Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error) {
	name, err := c.tableName(table)
	if err != nil {
		return nil, err
	}

	opt := newReadOption(options)
	iter := c.session.Query(
		fmt.Sprintf("SELECT row_key, family, qualifier, ts, value FROM %s", name),
	).WithContext(ctx).Iter()

	byRow := make(map[string][]Cell)
	var cell Cell
	for iter.Scan(&cell.Row, &cell.Family, &cell.Qualifier, &cell.Timestamp, &cell.Value) {
		if opt.inRange(cell.Row) && opt.matches(cell.Family, cell.Qualifier) {
			byRow[string(cell.Row)] = append(byRow[string(cell.Row)], cell)
		}
		cell = Cell{}
	}

	if err := iter.Close(); err != nil {
		return nil, wrapCassandraError(err, table)
	}

	rows := make([]Row, 0, len(byRow))
	for _, cells := range byRow {
		sortCells(cells)
		rows = append(rows, Row{Key: cells[0].Row, Cells: cells})
	}

	sort.Slice(rows, func(i, j int) bool {
		return bytes.Compare(rows[i].Key, rows[j].Key) < 0
	})

	if opt.Limit > 0 && len(rows) > opt.Limit {
		rows = rows[:opt.Limit]
	}

	return rows, nil
}

func (c *cassandraStore) Delete(ctx context.Context, table string, row []byte, options ...ReadOption) error {
	name, err := c.tableName(table)
	if err != nil {
		return err
	}

	opt := newReadOption(options)
	qry := fmt.Sprintf("DELETE FROM %s WHERE row_key = ?", name)
	args := []any{row}
	if opt.Family != "" {
		qry += " AND family = ?"
		args = append(args, opt.Family)
		if opt.Qualifier != "" {
			qry += " AND qualifier = ?"
			args = append(args, opt.Qualifier)
		}
	}

	return wrapCassandraError(c.session.Query(qry, args...).WithContext(ctx).Exec(), table)
}

func (c *cassandraStore) Exists(ctx context.Context, table string, row []byte) (bool, error) {
	name, err := c.tableName(table)
	if err != nil {
		return false, err
	}

	var key []byte
	err = c.session.Query(
		fmt.Sprintf("SELECT row_key FROM %s WHERE row_key = ? LIMIT 1", name), row,
	).WithContext(ctx).Scan(&key)

	if errors.Is(err, gocql.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrapCassandraError(err, table)
	}

	return true, nil
}

func (c *cassandraStore) Close() error {
	c.session.Close()
	log.WithField("keyspace", c.keyspace).Debug("cassandra session closed")
	return nil
}
