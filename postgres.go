package colstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Ensure postgresStore implements CellStore.
var _ CellStore = (*postgresStore)(nil)

// DefaultPostgresSchema holds the cell tables unless configured otherwise.
const DefaultPostgresSchema = "colstore"

// postgresStore maps every table to a relation of the schema with one row per
// cell, keyed by (row_key, family, qualifier).
type postgresStore struct {
	db     *sqlx.DB
	schema string
}

// NewPostgresStore uses db for the cell tables of schema, creating the schema
// when it does not exist yet.
func NewPostgresStore(ctx context.Context, db *sqlx.DB, schema string) (CellStore, error) {
	if schema == "" {
		schema = DefaultPostgresSchema
	}

	qry := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
	if _, err := db.ExecContext(ctx, qry); err != nil {
		return nil, errors.Wrapf(err, "failed to create schema %s", schema)
	}

	log.WithField("schema", schema).Debug("postgres cell store opened")
	return &postgresStore{db: db, schema: schema}, nil
}

func (p *postgresStore) tableName(table string) string {
	return pgx.Identifier{p.schema, table}.Sanitize()
}

func (p *postgresStore) CreateTable(ctx context.Context, table string) error {
	qry := fmt.Sprintf(`CREATE TABLE %s (
		row_key   BYTEA  NOT NULL,
		family    TEXT   NOT NULL,
		qualifier TEXT   NOT NULL,
		ts        BIGINT NOT NULL,
		value     BYTEA  NOT NULL,
		PRIMARY KEY (row_key, family, qualifier)
	)`, p.tableName(table))

	_, err := p.db.ExecContext(ctx, qry)
	return wrapPostgresError(err, table)
}

func (p *postgresStore) DropTable(ctx context.Context, table string) error {
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", p.tableName(table)))
	return wrapPostgresError(err, table)
}

func (p *postgresStore) TableExists(ctx context.Context, table string) (bool, error) {
	qry := p.db.Rebind(`SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_schema = ? AND table_name = ?
	)`)

	var exists bool
	if err := p.db.GetContext(ctx, &exists, qry, p.schema, table); err != nil {
		return false, wrapPostgresError(err, table)
	}

	return exists, nil
}

func (p *postgresStore) ListTables(ctx context.Context) ([]string, error) {
	qry := p.db.Rebind(`SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? ORDER BY table_name`)

	var tables []string
	if err := p.db.SelectContext(ctx, &tables, qry, p.schema); err != nil {
		return nil, err
	}

	return tables, nil
}

// Flush is a no-op: committed writes are already durable.
func (p *postgresStore) Flush(_ context.Context) error {
	return nil
}

func (p *postgresStore) Put(ctx context.Context, table string, mutations ...Mutation) error {
	if err := validateMutations(mutations); err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollback(tx)

	qry := tx.Rebind(fmt.Sprintf(`INSERT INTO %s (row_key, family, qualifier, ts, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (row_key, family, qualifier)
		DO UPDATE SET ts = EXCLUDED.ts, value = EXCLUDED.value`, p.tableName(table)))

	stmt, err := tx.PreparexContext(ctx, qry)
	if err != nil {
		return wrapPostgresError(err, table)
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
				return wrapPostgresError(err, table)
			}
		}
	}

	return tx.Commit()
}

func (p *postgresStore) Get(ctx context.Context, table string, row []byte, options ...ReadOption) ([]Cell, error) {
	w := cellFilter(newReadOption(options))
	w.add("row_key = ?", row)

	qry := p.db.Rebind(fmt.Sprintf(`SELECT row_key, family, qualifier, ts, value FROM %s %s
		ORDER BY family, qualifier`, p.tableName(table), w))

	var rows []sqlCell
	if err := p.db.SelectContext(ctx, &rows, qry, w.args...); err != nil {
		return nil, wrapPostgresError(err, table)
	}

	return Map(rows, sqlCell.toCell), nil
}

// Scan picks the row keys first so that the limit counts rows, then loads
// their cells in one query.
func (p *postgresStore) Scan(ctx context.Context, table string, options ...ReadOption) ([]Row, error) {
	opt := newReadOption(options)

	tx, err := p.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, err
	}
	defer rollback(tx)

	w := cellFilter(opt)
	rowRange(w, opt)
	keyQry := fmt.Sprintf("SELECT DISTINCT row_key FROM %s %s ORDER BY row_key", p.tableName(table), w)
	if opt.Limit > 0 {
		keyQry += fmt.Sprintf(" LIMIT %d", opt.Limit)
	}

	var keys pq.ByteaArray
	if err := tx.SelectContext(ctx, &keys, tx.Rebind(keyQry), w.args...); err != nil {
		return nil, wrapPostgresError(err, table)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	cw := cellFilter(opt)
	cw.add("row_key = ANY(?::bytea[])", keys)
	cellQry := tx.Rebind(fmt.Sprintf(`SELECT row_key, family, qualifier, ts, value FROM %s %s
		ORDER BY row_key, family, qualifier`, p.tableName(table), cw))

	var cells []sqlCell
	if err := tx.SelectContext(ctx, &cells, cellQry, cw.args...); err != nil {
		return nil, wrapPostgresError(err, table)
	}

	return groupRows(Map(cells, sqlCell.toCell)), tx.Commit()
}

func (p *postgresStore) Delete(ctx context.Context, table string, row []byte, options ...ReadOption) error {
	w := cellFilter(newReadOption(options))
	w.add("row_key = ?", row)

	qry := p.db.Rebind(fmt.Sprintf("DELETE FROM %s %s", p.tableName(table), w))
	_, err := p.db.ExecContext(ctx, qry, w.args...)
	return wrapPostgresError(err, table)
}

func (p *postgresStore) Exists(ctx context.Context, table string, row []byte) (bool, error) {
	qry := p.db.Rebind(fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE row_key = ?)", p.tableName(table)))

	var exists bool
	if err := p.db.GetContext(ctx, &exists, qry, row); err != nil {
		return false, wrapPostgresError(err, table)
	}

	return exists, nil
}

func (p *postgresStore) Close() error {
	return p.db.Close()
}
