package colstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Ensure sqliteStore implements CellStore.
var _ CellStore = (*sqliteStore)(nil)

// sqliteStore keeps every table as a WITHOUT ROWID relation of cells. BLOB
// keys compare with memcmp, so the primary key orders rows by key bytes.
type sqliteStore struct {
	db *sqlx.DB
}

type SqliteConfig struct {
	// Path of the database file, or ":memory:".
	Path string `yaml:"path"`
}

// ConnectSqlite opens the database file of config. SQLite allows a single
// writer, so the pool holds one connection.
func ConnectSqlite(config SqliteConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", config.Path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite database")
	}

	db.SetMaxOpenConns(1)
	return db, nil
}

func NewSqliteStore(db *sqlx.DB) CellStore {
	return &sqliteStore{db: db}
}

func sqliteTableName(table string) string {
	return `"` + strings.ReplaceAll(table, `"`, `""`) + `"`
}

func wrapSqliteError(err error, table string) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return errors.Wrap(ErrTableNotFound, table)
	case strings.Contains(msg, "already exists"):
		return errors.Wrap(ErrTableExists, table)
	}

	return err
}

func (sl *sqliteStore) CreateTable(ctx context.Context, table string) error {
	qry := fmt.Sprintf(`CREATE TABLE %s (
		row_key   BLOB    NOT NULL,
		family    TEXT    NOT NULL,
		qualifier TEXT    NOT NULL,
		ts        INTEGER NOT NULL,
		value     BLOB    NOT NULL,
		PRIMARY KEY (row_key, family, qualifier)
	) WITHOUT ROWID`, sqliteTableName(table))

	_, err := sl.db.ExecContext(ctx, qry)
	return wrapSqliteError(err, table)
}

func (sl *sqliteStore) DropTable(ctx context.Context, table string) error {
	_, err := sl.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", sqliteTableName(table)))
	return wrapSqliteError(err, table)
}

func (sl *sqliteStore) TableExists(ctx context.Context, table string) (bool, error) {
	var n int
	qry := "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	if err := sl.db.GetContext(ctx, &n, qry, table); err != nil {
		return false, err
	}

	return n > 0, nil
}

func (sl *sqliteStore) ListTables(ctx context.Context) ([]string, error) {
	var tables []string
	qry := "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
	if err := sl.db.SelectContext(ctx, &tables, qry); err != nil {
		return nil, err
	}

	return tables, nil
}

// Flush checkpoints the write-ahead log when there is one.
func (sl *sqliteStore) Flush(ctx context.Context) error {
	_, err := sl.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (sl *sqliteStore) Put(ctx context.Context, table string, mutations ...Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}

	tx, err := sl.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, ts, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (row_key, family, qualifier)
		DO UPDATE SET ts = excluded.ts, value = excluded.value`, sqliteTableName(table)))
	if err != nil {
		return wrapSqliteError(err, table)
	}
	defer stmt.Close()

	for _, m := range mutations {
		ts := mutationTimestamp(m)
		for _, c := range m.Columns {
			value := c.Value
			if value == nil {
				value = []byte{}
			}

			if _, err := stmt.ExecContext(ctx, m.Row, c.Family, c.Qualifier, ts, value); err != nil {
				return wrapSqliteError(err, table)
			}
		}
	}

	return tx.Commit()
}

func (sl *sqliteStore) Get(ctx context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	w := cellFilter(newReadOption(options))
	w.add("row_key = ?", row)

	qry := fmt.Sprintf(`SELECT row_key, family, qualifier, ts, value FROM %s %s
		ORDER BY family, qualifier`, sqliteTableName(table), w)

	var rows []sqlCell
	if err := sl.db.SelectContext(ctx, &rows, qry, w.args...); err != nil {
		return nil, wrapSqliteError(err, table)
	}

	return Map(rows, sqlCell.toCell), nil
}

func (sl *sqliteStore) Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error) {
	opt := newReadOption(options)

	tx, err := sl.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	w := cellFilter(opt)
	rowRange(w, opt)
	keyQry := fmt.Sprintf("SELECT DISTINCT row_key FROM %s %s ORDER BY row_key", sqliteTableName(table), w)
	if opt.Limit > 0 {
		keyQry += fmt.Sprintf(" LIMIT %d", opt.Limit)
	}

	var keys [][]byte
	if err := tx.SelectContext(ctx, &keys, keyQry, w.args...); err != nil {
		return nil, wrapSqliteError(err, table)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	cw := cellFilter(opt)
	cw.add("row_key IN (?)", keys)
	cellQry, args, err := sqlx.In(fmt.Sprintf(`SELECT row_key, family, qualifier, ts, value FROM %s %s
		ORDER BY row_key, family, qualifier`, sqliteTableName(table), cw), cw.args...)
	if err != nil {
		return nil, err
	}

	var cells []sqlCell
	if err := tx.SelectContext(ctx, &cells, cellQry, args...); err != nil {
		return nil, wrapSqliteError(err, table)
	}

	return groupRows(Map(cells, sqlCell.toCell)), tx.Commit()
}

func (sl *sqliteStore) Delete(ctx context.Context, table string, row []byte, options ...ReadOption) error {
	w := cellFilter(newReadOption(options))
	w.add("row_key = ?", row)

	_, err := sl.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s %s", sqliteTableName(table), w), w.args...)
	return wrapSqliteError(err, table)
}

func (sl *sqliteStore) Exists(ctx context.Context, table string, row []byte) (bool, error) {
	var exists bool
	qry := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE row_key = ?)", sqliteTableName(table))
	if err := sl.db.GetContext(ctx, &exists, qry, row); err != nil {
		return false, wrapSqliteError(err, table)
	}

	return exists, nil
}

func (sl *sqliteStore) Close() error {
	log.Debug("sqlite cell store closed")
	return sl.db.Close()
}
