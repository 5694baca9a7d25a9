package colstore

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const loadBatchSize = 500

var csvHeader = []string{"row", "column", "value", "timestamp"}

// LoadCSV writes the cells read from csvInput into table and returns how
// many it wrote. Every record is row,family:qualifier,value with an optional
// fourth timestamp field in milliseconds; row and value take a 0x prefix for
// hex. Cells are written in batches, so a failure can leave earlier batches
// stored.
func LoadCSV(ctx context.Context, store CellStore, table string, csvInput io.Reader, withHeader bool) (int, error) {
	rd := csv.NewReader(csvInput)
	rd.FieldsPerRecord = -1

	if withHeader {
		line, err := rd.Read()
		if err != nil {
			return 0, errors.Wrap(err, "failed to read csv header")
		}

		if len(line) < 3 || len(line) > len(csvHeader) {
			return 0, errors.Errorf("csv header has %d columns, want 3 or 4", len(line))
		}
		for i, col := range line {
			if !strings.EqualFold(strings.TrimSpace(col), csvHeader[i]) {
				return 0, errors.Errorf("columns header doesn't match %s", strings.Join(csvHeader[:len(line)], ","))
			}
		}
	}

	var (
		batch   []Mutation
		written int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.Put(ctx, table, batch...); err != nil {
			return err
		}
		written += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		line, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}

		m, err := parseCSVRecord(line)
		if err != nil {
			row, _ := rd.FieldPos(0)
			return written, errors.Wrapf(err, "line %d", row)
		}

		batch = append(batch, m)
		if len(batch) >= loadBatchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}

	return written, flush()
}

func parseCSVRecord(line []string) (Mutation, error) {
	if len(line) < 3 || len(line) > 4 {
		return Mutation{}, errors.Errorf("record has %d fields, want 3 or 4", len(line))
	}

	row, err := ParseBytes(strings.TrimSpace(line[0]))
	if err != nil {
		return Mutation{}, err
	}

	family, qualifier, err := ParseColumn(strings.TrimSpace(line[1]))
	if err != nil {
		return Mutation{}, err
	}

	value, err := ParseBytes(line[2])
	if err != nil {
		return Mutation{}, err
	}

	var ts int64
	if len(line) == 4 && strings.TrimSpace(line[3]) != "" {
		if ts, err = strconv.ParseInt(strings.TrimSpace(line[3]), 10, 64); err != nil {
			return Mutation{}, errors.Wrap(err, "invalid timestamp")
		}
	}

	return Mutation{
		Row:       row,
		Columns:   []Column{{Family: family, Qualifier: qualifier, Value: value}},
		Timestamp: ts,
	}, nil
}
