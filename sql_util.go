package colstore

import (
	"database/sql"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// sqlCell is the row layout of every cell table.
type sqlCell struct {
	RowKey    []byte `db:"row_key"`
	Family    string `db:"family"`
	Qualifier string `db:"qualifier"`
	Ts        int64  `db:"ts"`
	Value     []byte `db:"value"`
}

func (c sqlCell) toCell() Cell {
	return Cell{
		Row:       c.RowKey,
		Family:    c.Family,
		Qualifier: c.Qualifier,
		Value:     c.Value,
		Timestamp: c.Ts,
	}
}

func wrapPostgresError(err error, table string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrap(ErrRowNotFound, err.Error())
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UndefinedTable:
			return errors.Wrap(ErrTableNotFound, table)
		case pgerrcode.DuplicateTable:
			return errors.Wrap(ErrTableExists, table)
		}
	}

	return err
}

// whereClause is a list of AND-ed conditions with ? placeholders. Rebind
// turns them into the driver's bind style.
type whereClause struct {
	conds []string
	args  []any
}

func (w *whereClause) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *whereClause) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// cellFilter builds the family and qualifier conditions of opt.
func cellFilter(opt *readOption) *whereClause {
	w := &whereClause{}
	if opt.Family != "" {
		w.add("family = ?", opt.Family)
	}
	if opt.Qualifier != "" {
		w.add("qualifier = ?", opt.Qualifier)
	}
	return w
}

// rowRange adds the scan bounds of opt to w.
func rowRange(w *whereClause, opt *readOption) {
	if opt.StartRow != nil {
		w.add("row_key >= ?", opt.StartRow)
	}
	if opt.StopRow != nil {
		w.add("row_key < ?", opt.StopRow)
	}
}

// groupRows folds cells ordered by row key into rows.
func groupRows(cells []Cell) []Row {
	var rows []Row
	for _, c := range cells {
		if n := len(rows); n > 0 && string(rows[n-1].Key) == string(c.Row) {
			rows[n-1].Cells = append(rows[n-1].Cells, c)
			continue
		}
		rows = append(rows, Row{Key: c.Row, Cells: []Cell{c}})
	}
	return rows
}

func rollback(tx *sqlx.Tx) {
	_ = tx.Rollback()
}
